package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver (cgo), registered as "sqlite3"
	_ "modernc.org/sqlite"             // SQLite driver (pure Go), registered as "sqlite"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverSQLite3  = "sqlite3"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// TableName is the counter table shared by every SQL dialect.
const TableName = "rate_limit_counters"

// SQLBackend implements Backend on a relational database.
//
// Each Update runs in its own transaction. PostgreSQL and MySQL lock the row
// with SELECT ... FOR UPDATE after making sure it exists; SQLite opens the
// transaction with BEGIN IMMEDIATE and uses a single connection, which
// serializes writers within and across processes.
type SQLBackend struct {
	db        *sql.DB
	dialect   *dialect
	ownsDB    bool
	done      chan struct{}
	closeOnce sync.Once

	// prepared statements
	ensureStmt  *sql.Stmt
	selectStmt  *sql.Stmt
	writeStmt   *sql.Stmt
	getStmt     *sql.Stmt
	cleanupStmt *sql.Stmt
}

// SQLBackendConfig configures the SQL backend.
type SQLBackendConfig struct {
	// Driver selects the dialect: sqlite, sqlite3, postgres or mysql.
	// Default: sqlite
	Driver string

	// DSN is passed to sql.Open unchanged. Required for postgres and mysql.
	// For SQLite drivers it overrides Path.
	DSN string

	// Path is the SQLite database file, used when DSN is empty.
	Path string

	// BusyTimeout is how long SQLite waits for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// CheckpointInterval is how often to checkpoint the SQLite WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// MaxOpenConns caps the pool for postgres and mysql.
	// Default: 10 (SQLite always uses 1)
	MaxOpenConns int
}

// NewSQLBackend opens a SQLite counter store at path with default settings.
func NewSQLBackend(path string) (*SQLBackend, error) {
	return NewSQLBackendWithConfig(SQLBackendConfig{
		Driver: DriverSQLite,
		Path:   path,
	})
}

// NewSQLBackendWithConfig opens a counter store with custom configuration.
func NewSQLBackendWithConfig(cfg SQLBackendConfig) (*SQLBackend, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 10
	}

	d, err := lookupDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if dsn == "" {
		if !d.sqlite {
			return nil, fmt.Errorf("dsn is required for driver %q", cfg.Driver)
		}
		if cfg.Path == "" {
			return nil, fmt.Errorf("db path cannot be empty")
		}
		dsn = sqliteDSN(cfg.Driver, cfg.Path, cfg.BusyTimeout)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d.sqlite {
		db.SetMaxOpenConns(1) // SQLite only supports single writer
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	}

	backend, err := newSQLBackend(db, d)
	if err != nil {
		db.Close()
		return nil, err
	}
	backend.ownsDB = true

	if d.sqlite {
		go backend.checkpointLoop(cfg.CheckpointInterval)
	}

	return backend, nil
}

// NewSQLBackendFromDB builds a backend on a connection pool owned by the
// caller. Close does not close db.
func NewSQLBackendFromDB(db *sql.DB, driver string) (*SQLBackend, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	d, err := lookupDialect(driver)
	if err != nil {
		return nil, err
	}
	return newSQLBackend(db, d)
}

func newSQLBackend(db *sql.DB, d *dialect) (*SQLBackend, error) {
	backend := &SQLBackend{
		db:      db,
		dialect: d,
		done:    make(chan struct{}),
	}

	if err := backend.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := backend.prepareStatements(); err != nil {
		backend.closeStatements()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return backend, nil
}

// sqliteDSN builds a DSN with WAL, busy timeout and immediate transactions
// using each driver's parameter syntax.
func sqliteDSN(driver, path string, busyTimeout time.Duration) string {
	ms := strconv.FormatInt(busyTimeout.Milliseconds(), 10)
	if driver == DriverSQLite3 {
		return fmt.Sprintf("file:%s?_busy_timeout=%s&_journal_mode=WAL&_synchronous=NORMAL&_txlock=immediate", path, ms)
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%s)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate", path, ms)
}

// initSchema creates the counter table and its expiry index if missing.
func (s *SQLBackend) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLBackend) prepareStatements() error {
	var err error
	d := s.dialect

	if d.ensureRow != "" {
		s.ensureStmt, err = s.db.Prepare(d.rebind(d.ensureRow))
		if err != nil {
			return fmt.Errorf("failed to prepare ensure statement: %w", err)
		}
	}

	s.selectStmt, err = s.db.Prepare(d.rebind(d.selectForUpdate))
	if err != nil {
		return fmt.Errorf("failed to prepare select statement: %w", err)
	}

	s.writeStmt, err = s.db.Prepare(d.rebind(d.write))
	if err != nil {
		return fmt.Errorf("failed to prepare write statement: %w", err)
	}

	s.getStmt, err = s.db.Prepare(d.rebind(d.get))
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.cleanupStmt, err = s.db.Prepare(d.rebind(d.cleanup))
	if err != nil {
		return fmt.Errorf("failed to prepare cleanup statement: %w", err)
	}

	return nil
}

// Update reads, transforms and writes the record for key in one transaction.
func (s *SQLBackend) Update(ctx context.Context, key string, fn UpdateFunc) (_ *Record, err error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, ErrUnavailable.Wrap(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.ensureStmt != nil {
		if _, err := tx.StmtContext(ctx, s.ensureStmt).ExecContext(ctx, key); err != nil {
			return nil, ErrUnavailable.Wrap(fmt.Errorf("failed to lock counter: %w", err))
		}
	}

	current, err := scanRecord(key, tx.StmtContext(ctx, s.selectStmt).QueryRowContext(ctx, key))
	if err != nil {
		return nil, ErrUnavailable.Wrap(fmt.Errorf("failed to load counter: %w", err))
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	if next == nil {
		if err := tx.Commit(); err != nil {
			return nil, ErrUnavailable.Wrap(fmt.Errorf("failed to commit: %w", err))
		}
		return current, nil
	}

	next.Key = key
	if _, err := tx.StmtContext(ctx, s.writeStmt).ExecContext(ctx, next.Points, next.ExpireAt.UnixMilli(), key); err != nil {
		return nil, ErrUnavailable.Wrap(fmt.Errorf("failed to save counter: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, ErrUnavailable.Wrap(fmt.Errorf("failed to commit: %w", err))
	}

	stored := *next
	stored.ExpireAt = time.UnixMilli(next.ExpireAt.UnixMilli())
	return &stored, nil
}

// Get returns the raw record for key.
func (s *SQLBackend) Get(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	rec, err := scanRecord(key, s.getStmt.QueryRowContext(ctx, key))
	if err != nil {
		return nil, ErrUnavailable.Wrap(fmt.Errorf("failed to load counter: %w", err))
	}
	return rec, nil
}

// DeleteExpired removes rows whose window ended at or before the given time.
func (s *SQLBackend) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	result, err := s.cleanupStmt.ExecContext(ctx, before.UnixMilli())
	if err != nil {
		return 0, ErrUnavailable.Wrap(fmt.Errorf("failed to cleanup: %w", err))
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, ErrUnavailable.Wrap(fmt.Errorf("failed to get rows affected: %w", err))
	}

	return int(deleted), nil
}

// Close releases statements and, when the backend opened it, the database.
// Close is idempotent and safe to call multiple times.
func (s *SQLBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)
		s.closeStatements()

		if s.ownsDB && s.db != nil {
			if s.dialect.sqlite {
				_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			}
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// Driver returns the configured driver name.
func (s *SQLBackend) Driver() string {
	return s.dialect.name
}

func (s *SQLBackend) closeStatements() {
	for _, stmt := range []*sql.Stmt{s.ensureStmt, s.selectStmt, s.writeStmt, s.getStmt, s.cleanupStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

// checkpointLoop runs periodic WAL checkpoints for SQLite.
func (s *SQLBackend) checkpointLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}

// scanRecord reads (points, expire_at) from row. A missing row yields nil.
func scanRecord(key string, row *sql.Row) (*Record, error) {
	var (
		points   int64
		expireAt int64
	)
	err := row.Scan(&points, &expireAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Record{Key: key, Points: points, ExpireAt: time.UnixMilli(expireAt)}, nil
}

// dialect holds the per-database SQL. Queries use '?' placeholders and are
// rebound for PostgreSQL.
type dialect struct {
	name            string
	sqlite          bool
	numbered        bool
	schema          []string
	ensureRow       string
	selectForUpdate string
	write           string
	get             string
	cleanup         string
}

func (d *dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func lookupDialect(driver string) (*dialect, error) {
	switch driver {
	case DriverSQLite, DriverSQLite3:
		return sqliteDialect(driver), nil
	case DriverPostgres:
		return postgresDialect, nil
	case DriverMySQL:
		return mysqlDialect, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s (supported: sqlite, sqlite3, postgres, mysql)", driver)
	}
}

func sqliteDialect(name string) *dialect {
	return &dialect{
		name:   name,
		sqlite: true,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS ` + TableName + ` (
				"key" TEXT PRIMARY KEY,
				points INTEGER NOT NULL DEFAULT 0,
				expire_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_` + TableName + `_expire_at ON ` + TableName + `(expire_at)`,
		},
		selectForUpdate: `SELECT points, expire_at FROM ` + TableName + ` WHERE "key" = ?`,
		write: `INSERT INTO ` + TableName + ` (points, expire_at, "key") VALUES (?, ?, ?)
			ON CONFLICT ("key") DO UPDATE SET points = excluded.points, expire_at = excluded.expire_at`,
		get:     `SELECT points, expire_at FROM ` + TableName + ` WHERE "key" = ?`,
		cleanup: `DELETE FROM ` + TableName + ` WHERE expire_at <= ?`,
	}
}

var postgresDialect = &dialect{
	name:     DriverPostgres,
	numbered: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS ` + TableName + ` (
			"key" TEXT PRIMARY KEY,
			points BIGINT NOT NULL DEFAULT 0,
			expire_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + TableName + `_expire_at ON ` + TableName + `(expire_at)`,
	},
	ensureRow:       `INSERT INTO ` + TableName + ` ("key", points, expire_at) VALUES (?, 0, 0) ON CONFLICT ("key") DO NOTHING`,
	selectForUpdate: `SELECT points, expire_at FROM ` + TableName + ` WHERE "key" = ? FOR UPDATE`,
	write:           `UPDATE ` + TableName + ` SET points = ?, expire_at = ? WHERE "key" = ?`,
	get:             `SELECT points, expire_at FROM ` + TableName + ` WHERE "key" = ?`,
	cleanup:         `DELETE FROM ` + TableName + ` WHERE expire_at <= ?`,
}

var mysqlDialect = &dialect{
	name: DriverMySQL,
	schema: []string{
		"CREATE TABLE IF NOT EXISTS " + TableName + " (" +
			"`key` VARCHAR(255) NOT NULL PRIMARY KEY, " +
			"points BIGINT NOT NULL DEFAULT 0, " +
			"expire_at BIGINT NOT NULL, " +
			"INDEX idx_" + TableName + "_expire_at (expire_at))",
	},
	ensureRow:       "INSERT IGNORE INTO " + TableName + " (`key`, points, expire_at) VALUES (?, 0, 0)",
	selectForUpdate: "SELECT points, expire_at FROM " + TableName + " WHERE `key` = ? FOR UPDATE",
	write:           "UPDATE " + TableName + " SET points = ?, expire_at = ? WHERE `key` = ?",
	get:             "SELECT points, expire_at FROM " + TableName + " WHERE `key` = ?",
	cleanup:         "DELETE FROM " + TableName + " WHERE expire_at <= ?",
}
