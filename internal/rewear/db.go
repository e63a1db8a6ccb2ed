package rewear

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	dialectMySQL    = "mysql"
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"
)

// ErrConnect marks failures to acquire the database connection.
var ErrConnect = errors.New("connect to database")

// DBTX is the subset of *sqlx.Conn and *sqlx.DB the runner needs.
type DBTX interface {
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	Rebind(query string) string
}

// Dialect carries the per-database SQL differences used by the catalog.
type Dialect struct {
	Name       string
	DriverName string
}

func dialectFor(name string) (Dialect, error) {
	switch name {
	case dialectMySQL:
		return Dialect{Name: dialectMySQL, DriverName: "mysql"}, nil
	case dialectPostgres:
		return Dialect{Name: dialectPostgres, DriverName: "pgx"}, nil
	case dialectSQLite:
		return Dialect{Name: dialectSQLite, DriverName: "sqlite"}, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database type %q", name)
	}
}

// YearMonth truncates a date expression to a 'YYYY-MM' string key.
func (d Dialect) YearMonth(expr string) string {
	switch d.Name {
	case dialectPostgres:
		return "to_char(" + expr + ", 'YYYY-MM')"
	case dialectSQLite:
		return "strftime('%Y-%m', " + expr + ")"
	default:
		return "DATE_FORMAT(" + expr + ", '%Y-%m')"
	}
}

// Target is a resolved driver name and DSN.
type Target struct {
	Dialect Dialect
	DSN     string
}

func resolveTarget(creds Credentials) (Target, error) {
	location := stripJDBCPrefix(creds.URL)

	name, err := detectDialect(location)
	if err != nil {
		return Target{}, err
	}
	dialect, err := dialectFor(name)
	if err != nil {
		return Target{}, err
	}

	var dsn string
	switch name {
	case dialectMySQL:
		dsn, err = buildMySQLDSN(location, creds)
	case dialectPostgres:
		dsn, err = buildPostgresDSN(location, creds)
	case dialectSQLite:
		dsn = sqliteDSN(location)
	}
	if err != nil {
		return Target{}, err
	}

	return Target{Dialect: dialect, DSN: dsn}, nil
}

func stripJDBCPrefix(v string) string {
	s := strings.TrimSpace(v)
	if len(s) >= 5 && strings.EqualFold(s[:5], "jdbc:") {
		return s[5:]
	}
	return s
}

func detectDialect(v string) (string, error) {
	raw := strings.TrimSpace(v)
	if raw == "" {
		return "", errors.New("db url cannot be empty")
	}

	lower := strings.ToLower(raw)

	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return dialectPostgres, nil
	}
	if strings.HasPrefix(lower, "mysql://") {
		return dialectMySQL, nil
	}
	if strings.HasPrefix(lower, "sqlite://") || strings.HasPrefix(lower, "sqlite:") || strings.HasPrefix(lower, "file:") {
		return dialectSQLite, nil
	}

	if strings.Contains(lower, "@tcp(") || strings.Contains(lower, "@unix(") {
		return dialectMySQL, nil
	}

	if lower == ":memory:" || strings.HasSuffix(lower, ".db") || strings.HasSuffix(lower, ".sqlite") || strings.HasSuffix(lower, ".sqlite3") {
		return dialectSQLite, nil
	}
	if strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../") || strings.HasPrefix(raw, "/") {
		return dialectSQLite, nil
	}

	if strings.Contains(lower, "host=") && strings.Contains(lower, "dbname=") {
		return dialectPostgres, nil
	}

	return "", fmt.Errorf("unable to detect database type from %q", v)
}

func buildMySQLDSN(location string, creds Credentials) (string, error) {
	if !strings.HasPrefix(strings.ToLower(location), "mysql://") {
		cfg, err := mysql.ParseDSN(location)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		if cfg.User == "" {
			cfg.User = creds.User
			cfg.Passwd = creds.Password
		}
		return cfg.FormatDSN(), nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse mysql url: %w", err)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if cfg.Addr == "" {
		cfg.Addr = "localhost"
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		cfg.Addr = net.JoinHostPort(cfg.Addr, "3306")
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")

	if u.User != nil && u.User.Username() != "" {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	} else {
		cfg.User = creds.User
		cfg.Passwd = creds.Password
	}

	// JDBC connector options; anything else is connector-specific and dropped.
	q := u.Query()
	if v := q.Get("useSSL"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil && !enabled {
			cfg.TLSConfig = "false"
		} else if err == nil {
			cfg.TLSConfig = "true"
		}
	}
	if v := q.Get("serverTimezone"); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return "", fmt.Errorf("invalid serverTimezone %q: %w", v, err)
		}
		cfg.Loc = loc
	}

	return cfg.FormatDSN(), nil
}

func buildPostgresDSN(location string, creds Credentials) (string, error) {
	lower := strings.ToLower(location)
	if !strings.HasPrefix(lower, "postgres://") && !strings.HasPrefix(lower, "postgresql://") {
		dsn := location
		if !strings.Contains(lower, "user=") && creds.User != "" {
			dsn += " user=" + quoteKeywordValue(creds.User)
		}
		if !strings.Contains(lower, "password=") && creds.Password != "" {
			dsn += " password=" + quoteKeywordValue(creds.Password)
		}
		return dsn, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse postgres url: %w", err)
	}
	if (u.User == nil || u.User.Username() == "") && creds.User != "" {
		if creds.Password != "" {
			u.User = url.UserPassword(creds.User, creds.Password)
		} else {
			u.User = url.User(creds.User)
		}
	}
	return u.String(), nil
}

func quoteKeywordValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	escaped := strings.ReplaceAll(v, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}

func sqliteDSN(location string) string {
	s := strings.TrimSpace(location)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "sqlite://"):
		return s[len("sqlite://"):]
	case strings.HasPrefix(lower, "sqlite:"):
		return s[len("sqlite:"):]
	default:
		return s
	}
}

// Connection is the single database connection used for a run. The pool
// behind it is capped at one so every statement shares the same session.
type Connection struct {
	Dialect Dialect

	db     *sqlx.DB
	conn   *sqlx.Conn
	closed bool
}

// Connect opens the database described by creds and pins one connection.
// Errors wrap ErrConnect and carry the driver's message.
func Connect(ctx context.Context, creds Credentials) (*Connection, error) {
	target, err := resolveTarget(creds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	db, err := openDatabase(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	conn, err := db.Connx(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	return &Connection{Dialect: target.Dialect, db: db, conn: conn}, nil
}

func openDatabase(ctx context.Context, target Target) (*sqlx.DB, error) {
	db, err := sqlx.Open(target.Dialect.DriverName, target.DSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Conn returns the pinned connection.
func (c *Connection) Conn() DBTX {
	return c.conn
}

// Close releases the connection and its pool. Calls after the first are no-ops.
func (c *Connection) Close() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true

	connErr := c.conn.Close()
	dbErr := c.db.Close()
	return errors.Join(connErr, dbErr)
}
