// ABOUTME: Database connection and lifecycle management for SQLite and PostgreSQL.
// ABOUTME: Uses sqlx over modernc.org/sqlite (pure Go) or lib/pq, with schema bootstrap on open.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/logging"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/userctx"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const defaultTxTimeout = 30 * time.Second

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Recorder receives storage-level telemetry. Implementations must be safe
// for concurrent use.
type Recorder interface {
	Transaction(outcome string)
	PersonalRecord(kind string)
}

type nopRecorder struct{}

func (nopRecorder) Transaction(string)    {}
func (nopRecorder) PersonalRecord(string) {}

// Options configures Open.
type Options struct {
	Driver    string
	DSN       string
	Logger    *slog.Logger
	TxTimeout time.Duration
	Recorder  Recorder
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DB wraps the database connection pool.
type DB struct {
	db        *sqlx.DB
	driver    string
	dsn       string
	logger    *slog.Logger
	txTimeout time.Duration
	recorder  Recorder
	now       func() time.Time
	locks     *keyedLocker
}

// Open connects to the configured database and initializes the schema.
func Open(opts Options) (*DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	d := &DB{
		driver:    driver,
		dsn:       opts.DSN,
		logger:    opts.Logger,
		txTimeout: opts.TxTimeout,
		recorder:  opts.Recorder,
		now:       opts.Now,
		locks:     newKeyedLocker(),
	}
	if d.logger == nil {
		d.logger = logging.Discard()
	}
	if d.txTimeout <= 0 {
		d.txTimeout = defaultTxTimeout
	}
	if d.recorder == nil {
		d.recorder = nopRecorder{}
	}
	if d.now == nil {
		d.now = time.Now
	}

	var err error
	switch driver {
	case DriverSQLite:
		err = d.openSQLite()
	case DriverPostgres:
		err = d.openPostgres()
	default:
		return nil, fmt.Errorf("unknown driver: %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if err := d.initSchema(); err != nil {
		_ = d.db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return d, nil
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(dbPath string) (*DB, error) {
	return Open(Options{Driver: DriverSQLite, DSN: dbPath})
}

func (d *DB) openSQLite() error {
	// Ensure parent directory exists
	dir := filepath.Dir(d.dsn)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	db, err := sqlx.Open(DriverSQLite, d.dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// One writer; pragmas below are per-connection, so keep that connection alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Set file permissions
	if err := os.Chmod(d.dsn, 0600); err != nil && !os.IsNotExist(err) {
		_ = db.Close()
		return fmt.Errorf("set database permissions: %w", err)
	}

	d.db = db

	if err := d.configurePragmas(); err != nil {
		_ = db.Close()
		return fmt.Errorf("configure pragmas: %w", err)
	}
	return nil
}

func (d *DB) openPostgres() error {
	db, err := sqlx.Connect(DriverPostgres, d.dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	d.db = db
	return nil
}

// Driver returns the active driver name.
func (d *DB) Driver() string {
	return d.driver
}

func (d *DB) isPostgres() bool {
	return d.driver == DriverPostgres
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// configurePragmas sets up SQLite for optimal performance.
func (d *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := d.db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

// currentUser returns the acting user from ctx.
func currentUser(ctx context.Context) (int64, error) {
	userID, err := userctx.UserID(ctx)
	if err != nil {
		return 0, &ValidationError{Field: "user", Message: err.Error()}
	}
	return userID, nil
}
