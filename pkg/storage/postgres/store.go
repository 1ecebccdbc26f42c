package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"

	defaultQueryTimeout = 5 * time.Second
)

// Store is the PostgreSQL implementation of the gatehouse store surface:
// grant checks, role membership, roles, permissions, OAuth clients and tokens.
type Store struct {
	primary *sql.DB
	replica func() *sql.DB
	timeout time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithQueryTimeout bounds every statement issued by the store.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *observability.Logger) Option {
	return func(s *Store) { s.logger = observability.OrNop(logger) }
}

// WithMetrics records per-operation counters and latencies.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Store) { s.metrics = metrics }
}

// NewStore creates a store where reads and writes share one pool.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		primary: db,
		replica: func() *sql.DB { return db },
		timeout: defaultQueryTimeout,
		logger:  observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStoreFromManager creates a store that sends listings to replicas.
func NewStoreFromManager(cm *ConnectionManager, opts ...Option) *Store {
	s := NewStore(cm.Primary(), opts...)
	s.replica = cm.Replica
	return s
}

// reader picks the pool for a listing: a replica, unless ctx requires a
// primary read.
func (s *Store) reader(ctx context.Context) *sql.DB {
	if storage.PrimaryReadRequired(ctx) {
		return s.primary
	}
	return s.replica()
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// observe is deferred with a pointer to the named error result.
func (s *Store) observe(op string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, storage.ErrNotFound) {
		err = nil
	}
	s.metrics.ObserveStoreOperation(op, start, err)
	if err != nil && errors.Is(err, storage.ErrUnavailable) {
		s.logger.WithError(err).WithField("operation", op).Warn("store operation failed")
	}
}

// classify maps driver errors onto the storage taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation, pqForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, storage.ErrConflict, pqErr.Message)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
}

// affectedOne turns a zero-row mutation into ErrNotFound.
func affectedOne(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}
