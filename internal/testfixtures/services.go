package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/crm-scheduler/internal/application"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers, a controllable clock and one shared report cache.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Cache       *application.ReportCache
	Policy      application.Policy
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Cache:       application.NewReportCache(64, time.Minute),
		Policy:      application.DefaultPolicy(),
		Logger:      DiscardLogger(),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithPolicy overrides the scheduling policy.
func WithPolicy(policy application.Policy) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Policy = policy
	}
}

// Services bundles every application service over one harness.
type Services struct {
	Bookings     *application.BookingService
	Rooms        *application.RoomService
	Members      *application.MemberService
	Availability *application.AvailabilityService
}

// NewServices wires every application service to the harness repositories.
func (f *ServiceFactory) NewServices(h *SQLiteHarness) Services {
	idGen := f.IDGenerator.NextFunc()
	now := f.Clock.NowFunc()
	return Services{
		Bookings:     application.NewBookingServiceWithLogger(h.Bookings, h.Occurrences, f.Cache, f.Policy, idGen, now, f.Logger),
		Rooms:        application.NewRoomServiceWithLogger(h.Rooms, h.Bookings, f.Cache, idGen, now, f.Logger),
		Members:      application.NewMemberServiceWithLogger(h.Members, f.Cache, idGen, now, f.Logger),
		Availability: application.NewAvailabilityService(h.Members, h.Bookings, f.Cache, f.Policy, f.Logger),
	}
}
