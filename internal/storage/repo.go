package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// sqlBackend serves both Postgres and SQLite. The database name is part of
// the DSN there, so dbName is not used. lower names a Unicode-aware
// lower-casing SQL function.
type sqlBackend struct {
	db    *sql.DB
	sql   sq.StatementBuilderType
	lower string
}

func (s *sqlBackend) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlBackend) Insert(ctx context.Context, rec Record) error {
	q := s.sql.Insert(Collection).
		Columns("session_id", "question", "answer", "model", "created_at").
		Values(nullString(rec.SessionID), rec.Question, rec.Answer, rec.Model, rec.CreatedAt.UTC())

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert log query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

func (s *sqlBackend) Find(ctx context.Context, q Query) ([]Record, error) {
	sel := s.sql.Select("session_id", "question", "answer", "model", "created_at").
		From(Collection).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(q.Limit))
	if q.Term != "" {
		pattern := likePattern(q.Term)
		sel = sel.Where(sq.Or{
			sq.Expr(s.lower+`(question) LIKE ? ESCAPE '\'`, pattern),
			sq.Expr(s.lower+`(answer) LIKE ? ESCAPE '\'`, pattern),
		})
	}

	sqlStr, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find logs query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("find logs: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var (
			r         Record
			sessionID sql.NullString
			createdAt sqlTime
		)
		if err := rows.Scan(&sessionID, &r.Question, &r.Answer, &r.Model, &createdAt); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		if sessionID.Valid {
			r.SessionID = &sessionID.String
		}
		r.CreatedAt = time.Time(createdAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log rows: %w", err)
	}
	return out, nil
}

func (s *sqlBackend) Close(context.Context) error {
	return s.db.Close()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// likePattern builds a lower-cased substring pattern with LIKE wildcards in
// the term escaped.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(term)) + "%"
}

// sqlTime accepts the timestamp representations the two drivers return.
type sqlTime time.Time

var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*t = sqlTime(v.UTC())
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case int64:
		*t = sqlTime(time.Unix(v, 0).UTC())
		return nil
	default:
		return fmt.Errorf("unsupported created_at type %T", src)
	}
}

func (t *sqlTime) parse(s string) error {
	for _, layout := range sqliteTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = sqlTime(parsed.UTC())
			return nil
		}
	}
	return fmt.Errorf("parse created_at %q", s)
}
