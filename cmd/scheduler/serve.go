package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/example/crm-scheduler/internal/application"
	"github.com/example/crm-scheduler/internal/config"
	httptransport "github.com/example/crm-scheduler/internal/http"
	"github.com/example/crm-scheduler/internal/jobs"
	"github.com/example/crm-scheduler/internal/persistence/sqlite"
)

const materializeTimeout = 5 * time.Minute

func newServeCommand(flags *rootFlags) *cobra.Command {
	var policyFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the occurrence materializer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime(cmd, flags)
			if err != nil {
				return err
			}
			if policyFile != "" {
				cfg.PolicyFile = policyFile
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&policyFile, "policy", "", "YAML scheduling policy (overrides SCHEDULER_POLICY_FILE)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return err
	}

	storage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage(storage, logger)

	app := newServices(storage, cfg, policy, time.Now, logger)

	materializer := jobs.NewMaterializeJob(ctx, app.bookings, materializeTimeout, logger)
	if err := materializer.RunOnce(ctx); err != nil {
		logger.Warn("initial occurrence materialization failed", "error", err)
	}
	runner := jobs.NewRunner(logger)
	if _, err := runner.Schedule(cfg.MaterializeSchedule, materializer); err != nil {
		return err
	}
	runner.Start()

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newHandler(app, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("scheduler API listening", "addr", server.Addr, "materialize_schedule", cfg.MaterializeSchedule)
		serveErr <- server.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("failed to shutdown server", "error", err)
	}
	if err := runner.Stop(shutdownCtx); err != nil {
		logger.Error("background jobs did not stop in time", "error", err)
	}
	return runErr
}

type services struct {
	bookings     *application.BookingService
	rooms        *application.RoomService
	members      *application.MemberService
	availability *application.AvailabilityService
}

func newServices(storage *sqlite.Storage, cfg config.Config, policy *config.Policy, now func() time.Time, logger *slog.Logger) services {
	appPolicy := toApplicationPolicy(policy, cfg)
	cache := application.NewReportCache(cfg.ReportCacheSize, cfg.ReportCacheTTL)
	idGenerator := uuid.NewString
	return services{
		bookings:     application.NewBookingServiceWithLogger(storage, storage, cache, appPolicy, idGenerator, now, logger),
		rooms:        application.NewRoomServiceWithLogger(storage, storage, cache, idGenerator, now, logger),
		members:      application.NewMemberServiceWithLogger(storage, cache, idGenerator, now, logger),
		availability: application.NewAvailabilityService(storage, storage, cache, appPolicy, logger),
	}
}

func newHandler(s services, cfg config.Config, logger *slog.Logger) http.Handler {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return httptransport.NewRouter(httptransport.RouterConfig{
		Bookings:     httptransport.NewBookingHandler(s.bookings, logger),
		Rooms:        httptransport.NewRoomHandler(s.rooms, logger),
		Members:      httptransport.NewMemberHandler(s.members, logger),
		Availability: httptransport.NewAvailabilityHandler(s.availability, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.Recoverer(logger),
			httptransport.RequestLogger(logger),
			httptransport.RateLimit(limiter, logger),
		},
	})
}

func toApplicationPolicy(policy *config.Policy, cfg config.Config) application.Policy {
	out := application.DefaultPolicy()
	if policy != nil {
		out.Granularity = policy.Granularity
		out.GoodRatio = policy.GoodRatio
		out.QuorumRatio = policy.QuorumRatio
		out.MaxResults = policy.MaxResults
		out.Thresholds = policy.Thresholds()
		out.SeriesHorizon = policy.SeriesHorizon
	}
	if cfg.MaterializeHorizon > 0 {
		out.MaterializeHorizon = cfg.MaterializeHorizon
	}
	return out
}
