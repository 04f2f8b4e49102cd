package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
	"modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

type backend interface {
	Ping(ctx context.Context) error
	Insert(ctx context.Context, rec Record) error
	Find(ctx context.Context, q Query) ([]Record, error)
	Close(ctx context.Context) error
}

type openFunc func(ctx context.Context, uri, dbName string) (backend, error)

// openBackend picks the backend from the URI scheme.
func openBackend(ctx context.Context, uri, dbName string) (backend, error) {
	switch scheme := schemeOf(uri); scheme {
	case "mongodb", "mongodb+srv":
		return openMongo(ctx, uri, dbName)
	case "postgres", "postgresql":
		return openPostgres(ctx, uri)
	case "sqlite", "sqlite3", "file":
		return openSQLite(ctx, uri)
	case "redis", "rediss":
		return openRedis(uri, dbName)
	case "bolt", "bbolt":
		return openBolt(uri, dbName)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedScheme, scheme)
	}
}

func schemeOf(uri string) string {
	scheme, _, ok := strings.Cut(strings.TrimSpace(uri), ":")
	if !ok {
		return ""
	}
	return strings.ToLower(scheme)
}

// pathOf returns what follows "scheme://", e.g. "/var/lib/chat.db".
func pathOf(uri string) string {
	if _, rest, ok := strings.Cut(uri, "://"); ok {
		return rest
	}
	return uri
}

// RedactURI strips credentials so a URI can be logged.
func RedactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	u.User = url.User("redacted")
	return u.String()
}

func openPostgres(ctx context.Context, dsn string) (backend, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := migratePostgres(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &sqlBackend{db: db, sql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar), lower: "LOWER"}, nil
}

func migratePostgres(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return fmt.Errorf("session locker: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys, goose.WithSessionLocker(locker))
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return err
	}
	return nil
}

func openSQLite(ctx context.Context, uri string) (backend, error) {
	dsn := uri
	if schemeOf(uri) != "file" {
		dsn = pathOf(uri)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if !strings.Contains(dsn, "_time_format=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_time_format=sqlite"
	}

	if err := registerUnicodeLower(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := initSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &sqlBackend{db: db, sql: sq.StatementBuilder.PlaceholderFormat(sq.Question), lower: unicodeLowerFunc}, nil
}

// SQLite's built-in LOWER only folds ASCII.
const unicodeLowerFunc = "unicode_lower"

var (
	unicodeLowerOnce sync.Once
	unicodeLowerErr  error
)

func registerUnicodeLower() error {
	unicodeLowerOnce.Do(func() {
		unicodeLowerErr = sqlite.RegisterDeterministicScalarFunction(unicodeLowerFunc, 1,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				switch v := args[0].(type) {
				case string:
					return strings.ToLower(v), nil
				case []byte:
					return strings.ToLower(string(v)), nil
				default:
					return v, nil
				}
			})
		if unicodeLowerErr != nil {
			unicodeLowerErr = fmt.Errorf("register %s: %w", unicodeLowerFunc, unicodeLowerErr)
		}
	})
	return unicodeLowerErr
}

func initSQLiteSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT,
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    model TEXT NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_logs_created_at ON logs(created_at DESC);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}
