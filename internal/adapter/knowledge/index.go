// Package knowledge is a SQLite FTS5 full-text index of wiki notes. It
// implements domain.Retriever for retrieval augmented generation and wiki
// search.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	_ "modernc.org/sqlite"

	"tidgi-agent/internal/domain"
)

var _ domain.Retriever = (*Index)(nil)

const (
	defaultLimit   = 5
	maxPassageText = 2000
)

// Document is a single indexed note.
type Document struct {
	ID        string
	Title     string
	Workspace string
	Body      string
	Source    string
	UpdatedAt time.Time
}

// Index stores documents and answers full-text queries.
type Index struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the index at path and runs migrations.
func Open(path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrRetrieval, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrRetrieval, err)
		}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrRetrieval, err)
	}
	return &Index{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (x *Index) Close() error {
	return x.db.Close()
}

// Put inserts or replaces a document.
func (x *Index) Put(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return domain.NewDomainError("Index.Put", domain.ErrInvalidInput, "document id is empty")
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now()
	}
	const upsert = `
		INSERT INTO documents (id, title, workspace, body, source, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title      = excluded.title,
			workspace  = excluded.workspace,
			body       = excluded.body,
			source     = excluded.source,
			updated_at = excluded.updated_at
	`
	_, err := x.db.ExecContext(ctx, upsert,
		doc.ID, doc.Title, doc.Workspace, doc.Body, doc.Source,
		doc.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", domain.ErrRetrieval, doc.ID, err)
	}
	return nil
}

// Delete removes a document. Unknown ids are not an error.
func (x *Index) Delete(ctx context.Context, id string) error {
	if _, err := x.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("%w: delete %s: %v", domain.ErrRetrieval, id, err)
	}
	return nil
}

// Count returns the number of documents, optionally within one workspace.
func (x *Index) Count(ctx context.Context, workspace string) (int, error) {
	var n int
	var err error
	if workspace == "" {
		err = x.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n)
	} else {
		err = x.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE workspace = ?", workspace).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", domain.ErrRetrieval, err)
	}
	return n, nil
}

// Retrieve implements domain.Retriever. Results are ranked by BM25 with
// titles weighted above bodies. A query the FTS parser rejects falls back to
// a substring match.
func (x *Index) Retrieve(ctx context.Context, query string, opts domain.RetrieveOptions) ([]domain.Passage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	match := ftsQuery(query)
	if match == "" {
		return []domain.Passage{}, nil
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.workspace, d.body, bm25(documents_fts, 5.0, 1.0) AS rank
		FROM documents_fts f
		JOIN documents d ON d.rowid = f.rowid
		WHERE documents_fts MATCH ? AND (? = '' OR d.workspace = ?)
		ORDER BY rank
		LIMIT ?`,
		match, opts.Workspace, opts.Workspace, limit,
	)
	if err != nil {
		x.logger.Debug("fts query rejected, using substring match", "query", query, "error", err)
		return x.likeSearch(ctx, query, opts.Workspace, limit)
	}
	defer rows.Close()

	out := make([]domain.Passage, 0, limit)
	for rows.Next() {
		var p domain.Passage
		var rank float64
		if err := rows.Scan(&p.ID, &p.Title, &p.Workspace, &p.Text, &rank); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrRetrieval, err)
		}
		// bm25 is lower-is-better and negative for matches.
		p.Score = -rank
		p.Text = truncate(p.Text, maxPassageText)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRetrieval, err)
	}
	return out, nil
}

func (x *Index) likeSearch(ctx context.Context, query, workspace string, limit int) ([]domain.Passage, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := x.db.QueryContext(ctx, `
		SELECT id, title, workspace, body FROM documents
		WHERE (title LIKE ? OR body LIKE ?) AND (? = '' OR workspace = ?)
		ORDER BY updated_at DESC
		LIMIT ?`,
		pattern, pattern, workspace, workspace, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: like search: %v", domain.ErrRetrieval, err)
	}
	defer rows.Close()

	out := make([]domain.Passage, 0, limit)
	for rows.Next() {
		var p domain.Passage
		if err := rows.Scan(&p.ID, &p.Title, &p.Workspace, &p.Text); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrRetrieval, err)
		}
		p.Text = truncate(p.Text, maxPassageText)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ftsQuery turns free text into an FTS5 expression matching any of its
// words. Words are quoted so user punctuation is never parsed as syntax.
func ftsQuery(q string) string {
	words := strings.FieldsFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return ""
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + w + `"`
	}
	return strings.Join(quoted, " OR ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
