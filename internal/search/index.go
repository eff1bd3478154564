package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Result is one documentation hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Index is a local full-text index over the documentation corpus. The file
// is produced by a build step; the gateway only reads it, except in tests.
type Index struct {
	db *sql.DB
}

// Open opens (or creates) the index at path. Use ":memory:" in tests.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("search: open index: %w", err)
	}
	return &Index{db: db}, nil
}

func (i *Index) Close() error { return i.db.Close() }

// Init creates the schema. The build step calls this once before indexing.
func (i *Index) Init(ctx context.Context) error {
	_, err := i.db.ExecContext(ctx, `
		CREATE VIRTUAL TABLE IF NOT EXISTS docs USING fts5(title, url UNINDEXED, content)`)
	if err != nil {
		return fmt.Errorf("search: create schema: %w", err)
	}
	return nil
}

// Add indexes one documentation page.
func (i *Index) Add(ctx context.Context, title, url, content string) error {
	_, err := i.db.ExecContext(ctx,
		`INSERT INTO docs (title, url, content) VALUES (?, ?, ?)`, title, url, content)
	if err != nil {
		return fmt.Errorf("search: index %q: %w", url, err)
	}
	return nil
}

const defaultLimit = 4

// Search returns the best-ranked pages for a free-text query. The query is
// tokenized and quoted so user input cannot inject FTS syntax.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := i.db.QueryContext(ctx, `
		SELECT title, url, content, bm25(docs)
		FROM docs WHERE docs MATCH ?
		ORDER BY bm25(docs) LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("search: query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Title, &r.URL, &r.Content, &r.Score); err != nil {
			return nil, fmt.Errorf("search: scan: %w", err)
		}
		// bm25 returns lower-is-better negative scores; flip so clients see
		// higher-is-better.
		r.Score = -r.Score
		results = append(results, r)
	}
	return results, rows.Err()
}

// ftsQuery quotes each token as a phrase term.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " ")
}
