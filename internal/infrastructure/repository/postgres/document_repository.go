package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	author_name TEXT NOT NULL DEFAULT '',
	analysis_status TEXT NOT NULL,
	analysis_summary TEXT NOT NULL DEFAULT '',
	analysis_keywords JSONB NOT NULL DEFAULT '[]'::jsonb,
	analysis_sentiment TEXT NOT NULL DEFAULT '',
	analysis_error TEXT NOT NULL DEFAULT '',
	analysis_attempt TEXT NOT NULL,
	analyzed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_analysis_status ON documents(analysis_status, updated_at);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const selectColumns = `id, filename, mime_type, storage_path, title, author_name,
	analysis_status, analysis_summary, analysis_keywords, analysis_sentiment, analysis_error,
	analysis_attempt, analyzed_at, created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	keywordsJSON, err := marshalKeywords(doc.AnalysisKeywords)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (`+selectColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		doc.ID, doc.Filename, doc.MimeType, doc.StoragePath, doc.Title, doc.AuthorName,
		string(doc.AnalysisStatus), doc.AnalysisSummary, keywordsJSON, string(doc.AnalysisSentiment), doc.AnalysisError,
		doc.AnalysisAttempt, nullTime(doc.AnalyzedAt), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "insert document", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, domain.WrapError(domain.ErrPersistence, "get document", err)
	}
	return doc, nil
}

// Save writes the analysis fields only while the stored attempt still equals
// expectedAttempt.
func (r *DocumentRepository) Save(ctx context.Context, doc *domain.Document, expectedAttempt string) error {
	keywordsJSON, err := marshalKeywords(doc.AnalysisKeywords)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET analysis_status = $2, analysis_summary = $3, analysis_keywords = $4, analysis_sentiment = $5,
	analysis_error = $6, analysis_attempt = $7, analyzed_at = $8, updated_at = $9
WHERE id = $1 AND analysis_attempt = $10
`,
		doc.ID, string(doc.AnalysisStatus), doc.AnalysisSummary, keywordsJSON, string(doc.AnalysisSentiment),
		doc.AnalysisError, doc.AnalysisAttempt, nullTime(doc.AnalyzedAt), doc.UpdatedAt, expectedAttempt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "save analysis", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "save analysis", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, doc.ID).Scan(&exists); err != nil {
		return domain.WrapError(domain.ErrPersistence, "save analysis", err)
	}
	if !exists {
		return domain.WrapError(domain.ErrDocumentNotFound, "save analysis", fmt.Errorf("id %s", doc.ID))
	}
	return domain.WrapError(domain.ErrStaleAttempt, "save analysis", fmt.Errorf("id %s attempt %s", doc.ID, expectedAttempt))
}

func (r *DocumentRepository) ListByStatus(ctx context.Context, status domain.AnalysisStatus, updatedBefore time.Time, limit int) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+selectColumns+`
FROM documents
WHERE analysis_status = $1 AND updated_at < $2
ORDER BY updated_at ASC
LIMIT $3
`, string(status), updatedBefore, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "list documents", err)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "list documents", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "list documents", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status, sentiment string
	var keywordsRaw []byte
	var analyzedAt sql.NullTime

	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.Title, &doc.AuthorName,
		&status, &doc.AnalysisSummary, &keywordsRaw, &sentiment, &doc.AnalysisError,
		&doc.AnalysisAttempt, &analyzedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(keywordsRaw) > 0 {
		if err := json.Unmarshal(keywordsRaw, &doc.AnalysisKeywords); err != nil {
			return nil, fmt.Errorf("unmarshal keywords: %w", err)
		}
	}
	doc.AnalysisStatus = domain.AnalysisStatus(status)
	doc.AnalysisSentiment = domain.Sentiment(sentiment)
	if analyzedAt.Valid {
		at := analyzedAt.Time
		doc.AnalyzedAt = &at
	}
	return &doc, nil
}

func marshalKeywords(keywords []string) ([]byte, error) {
	if keywords == nil {
		keywords = []string{}
	}
	raw, err := json.Marshal(keywords)
	if err != nil {
		return nil, fmt.Errorf("marshal keywords: %w", err)
	}
	return raw, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
