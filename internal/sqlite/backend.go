// Package sqlite implements the trace store on a single local SQLite file.
// Traces are written once and never updated; reads always consult the
// database, nothing is cached between calls.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/tracestore/internal/logging"
	"github.com/mesh-intelligence/tracestore/internal/metrics"
	"github.com/mesh-intelligence/tracestore/pkg/types"
)

// busyTimeoutMS bounds how long a writer waits on SQLite's lock before the
// driver reports SQLITE_BUSY.
const busyTimeoutMS = 5000

var _ types.TraceStore = (*Store)(nil)

// Store implements types.TraceStore. The zero value is not usable; call
// NewStore and then Initialize.
type Store struct {
	mu     sync.RWMutex // guards db and ownsDB; operations take no lock beyond reading the handle
	config types.Config
	db     *sql.DB
	ownsDB bool

	newID   IDFunc
	now     ClockFunc
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithIDFunc replaces the trace ID generator.
func WithIDFunc(f IDFunc) Option {
	return func(s *Store) { s.newID = f }
}

// WithClock replaces the timestamp source.
func WithClock(f ClockFunc) Option {
	return func(s *Store) { s.now = f }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = logging.OrNop(l) }
}

// WithMetrics records operation counts and latencies in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithDB uses an already-open database instead of opening the configured
// file. The caller keeps ownership: Close does not close db.
func WithDB(db *sql.DB) Option {
	return func(s *Store) { s.db = db }
}

// NewStore creates a trace store for cfg. It does not touch the filesystem;
// call Initialize before any other operation.
func NewStore(cfg types.Config, opts ...Option) *Store {
	s := &Store{
		config: cfg,
		newID:  newTraceID,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the store's configuration.
func (s *Store) Config() types.Config {
	return s.config
}

// Initialize creates the data directory and the traces table if they do not
// exist. It is idempotent: a second call re-runs the DDL on the open handle
// and never erases stored traces.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.config.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.config.DataDir, 0o755); err != nil {
		return types.NewStorageError("initialize", fmt.Errorf("create data dir: %w", err))
	}

	dbPath := s.config.DatabasePath()
	if s.db == nil {
		db, err := openDB(dbPath)
		if err != nil {
			return types.NewStorageError("initialize", err)
		}
		s.db = db
		s.ownsDB = true
	}

	for _, stmt := range schemaDDL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return types.NewStorageError("initialize", fmt.Errorf("apply schema: %w", err))
		}
	}

	s.logger.Info("database initialized", zap.String("path", dbPath))
	return nil
}

// Close releases the database handle. Idempotent. A handle supplied with
// WithDB is left open.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	var err error
	if s.ownsDB {
		err = s.db.Close()
	}
	s.db = nil
	s.ownsDB = false
	return err
}

// handle returns the open database or ErrNotInitialized.
func (s *Store) handle() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, types.ErrNotInitialized
	}
	return s.db, nil
}

// openDB opens the SQLite file with WAL journaling so readers proceed while
// a write is in flight.
func openDB(path string) (*sql.DB, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", abs, busyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
