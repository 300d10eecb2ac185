package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Supported drivers, named after their database/sql registrations.
const (
	SQLite   = "sqlite3"
	Postgres = "postgres"
)

var (
	ErrSchemaMismatch    = errors.New("schema mismatch")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

type Config struct {
	// Driver is either SQLite or Postgres
	Driver string
	// DSN is a file path (or ":memory:") for SQLite, a connection string for Postgres
	DSN string
}

// Storage wraps a database handle and rewrites `?` placeholders for the configured dialect,
// so that repositories can be written once.
type Storage struct {
	Connection *sql.DB
	driver     string
	logger     logrus.FieldLogger
}

// Querier is satisfied by both Storage and the transactions it opens.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens the database and makes sure its schema is the expected one.
func New(logger logrus.FieldLogger, cfg Config) (*Storage, error) {
	var connection *sql.DB
	var err error

	switch cfg.Driver {
	case SQLite, "":
		cfg.Driver = SQLite
		logger.Info("initialising SQLite DB")
		connection, err = openSQLite(logger, cfg.DSN)
	case Postgres:
		logger.Info("initialising Postgres DB")
		connection, err = openPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	// opening the DB will fail silently when the sqlite package is compiled without CGO_ENABLED
	if err = connection.Ping(); err != nil {
		_ = connection.Close()
		return nil, err
	}
	return &Storage{Connection: connection, driver: cfg.Driver, logger: logger}, nil
}

func openSQLite(logger logrus.FieldLogger, path string) (connection *sql.DB, err error) {
	// the database already exists, check for its contents
	if _, statErr := os.Stat(path); statErr == nil {
		connection, err = getValidConnection(path)
		if err != nil {
			logger.WithError(err).Error("error while verifying existing database")
			return nil, err
		}
		return connection, nil
	}

	// create the file and initialise the schema; mind the explicit need for foreign keys constraints
	connection, err = sql.Open(SQLite, getConnectionString(path))
	if err != nil {
		logger.WithError(err).Error("error while creating new database")
		return nil, err
	}
	// a single writer; also keeps in memory databases alive across queries
	connection.SetMaxOpenConns(1)

	if _, err = connection.Exec(schema); err != nil {
		logger.WithError(err).Error("error while building database schema")
		_ = connection.Close()
		return nil, err
	}
	return connection, nil
}

func openPostgres(dsn string) (*sql.DB, error) {
	connection, err := sql.Open(Postgres, dsn)
	if err != nil {
		return nil, err
	}
	// idempotent thanks to IF NOT EXISTS clauses
	if _, err = connection.Exec(schema); err != nil {
		_ = connection.Close()
		return nil, fmt.Errorf("building database schema: %w", err)
	}
	return connection, nil
}

func getValidConnection(path string) (connection *sql.DB, err error) {
	connection, err = sql.Open(SQLite, getConnectionString(path))
	if err != nil {
		return nil, err
	}
	connection.SetMaxOpenConns(1)

	// read the schema as defined in the storage package
	desired, err := sql.Open(SQLite, getConnectionString(":memory:"))
	if err != nil {
		_ = connection.Close()
		return nil, err
	}
	defer desired.Close()
	desired.SetMaxOpenConns(1)

	if _, err = desired.Exec(schema); err != nil {
		_ = connection.Close()
		return nil, err
	}

	// compare the defined schema with the actual one found in the existing database
	desiredTables, err := mapSchema(desired)
	if err != nil {
		_ = connection.Close()
		return nil, err
	}
	actualTables, err := mapSchema(connection)
	if err != nil {
		_ = connection.Close()
		return nil, err
	}

	// the database already exists and its schema matches the desired one
	if sameSchemaMap(desiredTables, actualTables) {
		return connection, nil
	}
	_ = connection.Close()
	return nil, ErrSchemaMismatch
}

func mapSchema(connection *sql.DB) (tables map[string]string, err error) {

	rows, err := connection.Query(`SELECT name, sql FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// in memory and on file sqlite schemas may differ in line endings, depending on the hosting platform
	var replacer = strings.NewReplacer(
		"\r\n", "",
		"\n", "",
		"\t", "",
	)

	tables = make(map[string]string)
	var name, sqlCode string
	for rows.Next() {
		if err = rows.Scan(&name, &sqlCode); err != nil {
			return tables, err
		}
		tables[name] = replacer.Replace(sqlCode)
	}

	return tables, rows.Err()
}

func sameSchemaMap(first, second map[string]string) bool {
	// the second map might be larger than the first, hence the additional length check
	if len(first) != len(second) {
		return false
	}
	for firstKey, firstValue := range first {
		if secondValue, found := second[firstKey]; !found || secondValue != firstValue {
			return false
		}
	}
	return true
}

// getConnectionString enables foreign keys constraints, waits on locks and starts write transactions eagerly
func getConnectionString(path string) string {
	return path + "?_fk=on&_busy_timeout=5000&_txlock=immediate"
}

// Driver returns the name of the driver in use.
func (s *Storage) Driver() string {
	return s.driver
}

func (s *Storage) Close() error {
	s.logger.Debug("database stopping")
	return s.Connection.Close()
}

func (s *Storage) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.Connection.ExecContext(ctx, rebind(s.driver, query), args...)
}

func (s *Storage) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.Connection.QueryContext(ctx, rebind(s.driver, query), args...)
}

func (s *Storage) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.Connection.QueryRowContext(ctx, rebind(s.driver, query), args...)
}

// Transact runs fn inside a transaction, committing only when fn succeeds.
func (s *Storage) Transact(ctx context.Context, fn func(q Querier) error) error {
	sqlTx, err := s.Connection.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	// rolling back after a transaction commit will result in a safe NOP
	defer func() { _ = sqlTx.Rollback() }()

	if err = fn(&tx{sqlTx, s.driver}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type tx struct {
	*sql.Tx
	driver string
}

func (t *tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.Tx.ExecContext(ctx, rebind(t.driver, query), args...)
}

func (t *tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.Tx.QueryContext(ctx, rebind(t.driver, query), args...)
}

func (t *tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.Tx.QueryRowContext(ctx, rebind(t.driver, query), args...)
}

// rebind turns `?` placeholders into `$n` ones for Postgres, leaving quoted literals untouched.
func rebind(driver, query string) string {
	if driver != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var (
		builder strings.Builder
		n       int
		quoted  bool
	)
	builder.Grow(len(query) + 8)
	for _, r := range query {
		switch {
		case r == '\'':
			quoted = !quoted
			builder.WriteRune(r)
		case r == '?' && !quoted:
			n++
			_, _ = fmt.Fprintf(&builder, "$%d", n)
		default:
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// IsUniqueViolation detects primary key and unique constraint failures for both drivers.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// IsForeignKeyViolation detects references to missing rows for both drivers.
func IsForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return false
}

// CloseRows discards the error of a deferred rows.Close; rows.Err reports what matters.
func CloseRows(rows *sql.Rows) {
	_ = rows.Close()
}
