package sqlite

import (
	"context"
	"log/slog"

	"github.com/example/crm-scheduler/internal/persistence"
	"github.com/example/crm-scheduler/internal/persistence/sqlite/migration"
)

// Storage bundles the SQLite repositories over one connection pool. It
// satisfies every repository interface in the persistence package.
type Storage struct {
	*MemberRepository
	*RoomRepository
	*BookingRepository
	*OccurrenceRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

var (
	_ persistence.MemberRepository     = (*Storage)(nil)
	_ persistence.RoomRepository       = (*Storage)(nil)
	_ persistence.BookingRepository    = (*Storage)(nil)
	_ persistence.OccurrenceRepository = (*Storage)(nil)
)

// Open connects to the database described by config.
func Open(config migration.SQLiteConfig, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	return &Storage{
		MemberRepository:     NewMemberRepository(pool),
		RoomRepository:       NewRoomRepository(pool),
		BookingRepository:    NewBookingRepository(pool),
		OccurrenceRepository: NewOccurrenceRepository(pool),
		pool:                 pool,
		logger:               logger,
	}, nil
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}

// Ping checks the database connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	return migration.Run(ctx, s.pool.DB(), s.logger)
}
