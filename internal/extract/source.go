// Package extract reads table rows out of a live database so they can be
// written as captures.
package extract

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/hpungsan/tablesnap/internal/capture"
	"github.com/hpungsan/tablesnap/internal/config"
	"github.com/hpungsan/tablesnap/internal/errors"
)

// DefaultPageSize is the keyset pagination batch size.
const DefaultPageSize = 1000

// ScanOptions controls how a table is read.
type ScanOptions struct {
	// Cursor pages through the table ordered by the key column instead of
	// issuing one full SELECT.
	Cursor   bool
	PageSize int
}

// Source is a database that rows can be extracted from.
type Source interface {
	// Tables lists the base tables of the source, sorted.
	Tables(ctx context.Context) ([]string, error)

	// Scan calls fn for every row of table. key is the column used for
	// cursor pagination.
	Scan(ctx context.Context, table, key string, opts ScanOptions, fn func(capture.Row) error) error

	Close() error
}

// dialect captures the per-driver SQL differences.
type dialect struct {
	quote       func(string) string
	placeholder func(n int) string
	tablesQuery string
}

var (
	mysqlDialect = dialect{
		quote:       func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
		placeholder: func(int) string { return "?" },
		tablesQuery: `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
			WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
			ORDER BY TABLE_NAME`,
	}
	postgresDialect = dialect{
		quote:       doubleQuote,
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		tablesQuery: `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
			ORDER BY table_name`,
	}
	sqliteDialect = dialect{
		quote:       doubleQuote,
		placeholder: func(int) string { return "?" },
		tablesQuery: `SELECT name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
			ORDER BY name`,
	}
)

func doubleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func dialectFor(driver string) (dialect, bool) {
	switch driver {
	case "mysql":
		return mysqlDialect, true
	case "postgres", "pgx":
		return postgresDialect, true
	case "sqlite":
		return sqliteDialect, true
	default:
		return dialect{}, false
	}
}

// sqlSource is the database/sql implementation shared by every driver.
type sqlSource struct {
	driver string
	d      dialect
	db     *sql.DB
}

// Open connects to the configured source and verifies the connection.
func Open(ctx context.Context, cfg config.Source) (Source, error) {
	d, ok := dialectFor(cfg.Driver)
	if !ok {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unsupported source driver %q: must be mysql, postgres, pgx or sqlite", cfg.Driver))
	}
	dsn, err := ResolveDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, errors.NewSourceUnavailable(cfg.Driver, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.NewSourceUnavailable(cfg.Driver, err)
	}

	return &sqlSource{driver: cfg.Driver, d: d, db: db}, nil
}

// ResolveDSN returns the connection string for cfg: the literal DSN, the
// DSN held in DSNEnv, or one built from the individual connection fields.
func ResolveDSN(cfg config.Source) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.DSNEnv != "" {
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return "", errors.NewInvalidRequest(fmt.Sprintf("environment variable %s is empty", cfg.DSNEnv))
		}
		return dsn, nil
	}

	password := ""
	if cfg.PasswordEnv != "" {
		password = os.Getenv(cfg.PasswordEnv)
	}

	switch cfg.Driver {
	case "mysql":
		if cfg.Host == "" || cfg.Database == "" {
			return "", errors.NewInvalidRequest("mysql source requires host and database")
		}
		return buildMySQLDSN(cfg, password), nil
	case "postgres", "pgx":
		if cfg.Host == "" || cfg.Database == "" {
			return "", errors.NewInvalidRequest(cfg.Driver + " source requires host and database")
		}
		return buildPostgresDSN(cfg, password), nil
	case "sqlite":
		if cfg.Database == "" {
			return "", errors.NewInvalidRequest("sqlite source requires database (file path)")
		}
		return cfg.Database + "?_pragma=busy_timeout(5000)", nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("unsupported source driver %q", cfg.Driver))
	}
}

func buildMySQLDSN(cfg config.Source, password string) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		cfg.User, password, cfg.Host, port, cfg.Database,
	)
	if cfg.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}

func buildPostgresDSN(cfg config.Source, password string) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.User, quoteConnValue(password), cfg.Database, sslMode,
	)
}

// quoteConnValue quotes a keyword/value connection parameter when needed.
func quoteConnValue(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}

func (s *sqlSource) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.d.tablesQuery)
	if err != nil {
		return nil, errors.NewSourceUnavailable(s.driver, fmt.Errorf("list tables: %w", err))
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.NewInternal(err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return tables, nil
}

func (s *sqlSource) Scan(ctx context.Context, table, key string, opts ScanOptions, fn func(capture.Row) error) error {
	if !opts.Cursor {
		_, _, err := s.scanQuery(ctx, "SELECT * FROM "+s.d.quote(table), nil, "", fn)
		return err
	}

	if key == "" {
		key = "id"
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	base := fmt.Sprintf("SELECT * FROM %s", s.d.quote(table))
	order := fmt.Sprintf(" ORDER BY %s LIMIT %d", s.d.quote(key), pageSize)
	query := base + order
	var args []any
	for {
		n, last, err := s.scanQuery(ctx, query, args, key, fn)
		if err != nil {
			return err
		}
		if n < pageSize {
			return nil
		}
		if last == nil {
			return errors.NewInvalidRequest(fmt.Sprintf("table %s has no value in key column %q; cursor mode needs a key on every row", table, key))
		}
		query = fmt.Sprintf("%s WHERE %s > %s%s", base, s.d.quote(key), s.d.placeholder(1), order)
		args = []any{last}
	}
}

// scanQuery runs query and hands each row to fn. It returns how many rows
// were read and the key column value of the last one.
func (s *sqlSource) scanQuery(ctx context.Context, query string, args []any, key string, fn func(capture.Row) error) (int, any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, nil, errors.NewSourceUnavailable(s.driver, fmt.Errorf("query: %w", err))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, nil, errors.NewInternal(fmt.Errorf("columns: %w", err))
	}

	var (
		n    int
		last any
	)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return n, last, errors.NewInternal(fmt.Errorf("scan row: %w", err))
		}

		row := make(capture.Row, len(cols))
		for i, c := range cols {
			row[c] = normalizeValue(values[i])
		}
		if key != "" {
			last = row[key]
		}
		if err := fn(row); err != nil {
			return n, last, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, last, errors.NewSourceUnavailable(s.driver, fmt.Errorf("iterate: %w", err))
	}
	return n, last, nil
}

// normalizeValue converts driver values to JSON-friendly ones. Bytes that are
// not valid UTF-8 keep every byte through capture.Text.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return capture.Text(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return val
	}
}

func (s *sqlSource) Close() error {
	return s.db.Close()
}
