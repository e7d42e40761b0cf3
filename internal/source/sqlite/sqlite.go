// Package sqlite is a catalog source backed by a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kailas-cloud/fedcat/internal/domain"
	"github.com/kailas-cloud/fedcat/internal/domain/query"
	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/source"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// attributeName restricts attribute keys to what is safe inside a JSON path.
var attributeName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	attributes TEXT NOT NULL DEFAULT '{}',
	modified   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_records_title ON records(title COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_records_modified ON records(modified);
`

// Source answers queries with SQL over a records table.
type Source struct {
	id string
	db *sql.DB
}

// Open opens (creating if needed) the database at path and prepares the schema.
func Open(id, path string) (*Source, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite source %s: path is required", domain.ErrInvalidConfig, id)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Source{id: id, db: db}, nil
}

// ID returns the source identifier.
func (s *Source) ID() string { return s.id }

// Close closes the database.
func (s *Source) Close() error { return s.db.Close() }

// Ping checks the database is usable.
func (s *Source) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Upsert inserts or replaces records.
func (s *Source) Upsert(ctx context.Context, records ...result.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO records (id, title, attributes, modified) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		attrs := r.Attributes()
		if attrs == nil {
			attrs = map[string]string{}
		}
		raw, err := json.Marshal(attrs)
		if err != nil {
			return fmt.Errorf("encode attributes of %s: %w", r.ID(), err)
		}
		var modified int64
		if !r.Modified().IsZero() {
			modified = r.Modified().UnixMilli()
		}
		if _, err := stmt.ExecContext(ctx, r.ID(), r.Title(), string(raw), modified); err != nil {
			return fmt.Errorf("upsert %s: %w", r.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Query runs the criteria as a LIKE search with attribute equality filters.
func (s *Source) Query(ctx context.Context, req query.Request) (result.Response, error) {
	q := req.Query()

	where, args, err := buildWhere(q)
	if err != nil {
		return result.Response{}, err
	}
	order, err := buildOrder(q.Sort())
	if err != nil {
		return result.Response{}, err
	}

	var hits int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records"+where, args...).Scan(&hits); err != nil {
		return result.Response{}, fmt.Errorf("count records: %w", err)
	}

	// Title matches score above attribute-only matches.
	stmt := `SELECT id, title, attributes, modified,
		CASE WHEN title LIKE ? ESCAPE '\' THEN 1.0 ELSE 0.5 END AS relevance
		FROM records` + where + order + " LIMIT ? OFFSET ?"
	selectArgs := append([]any{likePattern(q.Text())}, args...)

	limit := q.PageSize()
	if limit == 0 {
		limit = -1
	}
	selectArgs = append(selectArgs, limit, q.Start()-1)

	rows, err := s.db.QueryContext(ctx, stmt, selectArgs...)
	if err != nil {
		return result.Response{}, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []result.Result
	for rows.Next() {
		var (
			id, title, rawAttrs string
			modified            int64
			relevance           float64
		)
		if err := rows.Scan(&id, &title, &rawAttrs, &modified, &relevance); err != nil {
			return result.Response{}, fmt.Errorf("scan record: %w", err)
		}
		attrs := map[string]string{}
		if err := json.Unmarshal([]byte(rawAttrs), &attrs); err != nil {
			return result.Response{}, fmt.Errorf("decode attributes of %s: %w", id, err)
		}
		r := result.New(id, s.id, title, attrs, relevance)
		if modified > 0 {
			r = r.WithModified(time.UnixMilli(modified).UTC())
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return result.Response{}, fmt.Errorf("iterate records: %w", err)
	}

	return result.Response{Results: out, Hits: hits}, nil
}

func buildWhere(q query.Query) (string, []any, error) {
	var (
		conds []string
		args  []any
	)
	if pattern := likePattern(q.Text()); pattern != "%" {
		conds = append(conds, `(title LIKE ? ESCAPE '\' OR attributes LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	for name, value := range q.Criteria().Attributes {
		if !attributeName.MatchString(name) {
			return "", nil, fmt.Errorf("%w: attribute name %q", domain.ErrUnsupportedQuery, name)
		}
		conds = append(conds, "json_extract(attributes, ?) = ?")
		args = append(args, "$."+name, value)
	}
	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func buildOrder(sort query.Sort) (string, error) {
	dir := "ASC"
	if sort.Order == query.Descending {
		dir = "DESC"
	}
	switch sort.Field {
	case "", "relevance":
		if sort.Order == query.Ascending {
			return " ORDER BY relevance ASC, id", nil
		}
		return " ORDER BY relevance DESC, id", nil
	case "title":
		return " ORDER BY title COLLATE NOCASE " + dir + ", id", nil
	case "modified":
		return " ORDER BY modified " + dir + ", id", nil
	case "distance":
		return "", fmt.Errorf("%w: sqlite source cannot sort by distance", domain.ErrUnsupportedQuery)
	default:
		if !attributeName.MatchString(sort.Field) {
			return "", fmt.Errorf("%w: sort field %q", domain.ErrUnsupportedQuery, sort.Field)
		}
		return fmt.Sprintf(" ORDER BY json_extract(attributes, '$.%s') IS NULL, json_extract(attributes, '$.%s') %s, id",
			sort.Field, sort.Field, dir), nil
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns criteria text into a substring LIKE pattern; "%" matches all.
func likePattern(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || text == source.MatchAll {
		return "%"
	}
	return "%" + likeEscaper.Replace(text) + "%"
}
