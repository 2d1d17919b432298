package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
	"github.com/code-sleuth/pubmedflo-go/pkg/db"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/rs/zerolog"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDeleteForbidden  = errors.New("user is not allowed to delete this document")
)

const (
	documentTypePubMedText = "pubmed_text"
	pubmedURLFormat        = "https://pubmed.ncbi.nlm.nih.gov/%d/"
)

// DeleteAuthorizer decides whether a delete may proceed for the given
// document. Returning a non-nil error aborts the delete.
type DeleteAuthorizer func(doc *models.Document) error

// OwnerOrAdmin permits deletion by the user who added the document, by
// an admin, or by anyone when the document has no recorded owner.
func OwnerOrAdmin(userID int64, isAdmin bool) DeleteAuthorizer {
	return func(doc *models.Document) error {
		if isAdmin || doc.AddedBy == nil || *doc.AddedBy == userID {
			return nil
		}
		return ErrDeleteForbidden
	}
}

// DocumentRepository tracks one document row per ingested article.
type DocumentRepository struct {
	db     *db.DB
	logger zerolog.Logger
}

func NewDocumentRepository(database *db.DB) *DocumentRepository {
	return &DocumentRepository{
		db:     database,
		logger: util.NewLogger(zerolog.ErrorLevel),
	}
}

// Ensure creates the document row for pmid if absent, or refreshes its
// title and owner when they changed. It returns the document in its
// stored state.
func (r *DocumentRepository) Ensure(ctx context.Context, pmid int64, title string, addedBy *int64) (*models.Document, error) {
	if title == "" {
		title = fmt.Sprintf("PMID %d", pmid)
	}
	sourceURL := fmt.Sprintf(pubmedURLFormat, pmid)

	query := `INSERT INTO documents (pmid, title, type, source_url, added_by)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (pmid) DO UPDATE SET
			title = excluded.title,
			added_by = COALESCE(excluded.added_by, documents.added_by)`

	if _, err := r.db.ExecContext(ctx, query, pmid, title, documentTypePubMedText, sourceURL, addedBy); err != nil {
		return nil, fmt.Errorf("failed to ensure document for article %d: %w", pmid, err)
	}

	return r.GetByPMID(ctx, pmid)
}

func (r *DocumentRepository) GetByID(ctx context.Context, docID int64) (*models.Document, error) {
	return r.getOne(ctx, `WHERE doc_id = ?`, docID)
}

func (r *DocumentRepository) GetByPMID(ctx context.Context, pmid int64) (*models.Document, error) {
	return r.getOne(ctx, `WHERE pmid = ?`, pmid)
}

func (r *DocumentRepository) getOne(ctx context.Context, where string, arg any) (*models.Document, error) {
	query := `SELECT doc_id, pmid, title, type, source_url, processed, added_by, added_at
		FROM documents ` + where

	var doc models.Document
	var processed int
	var addedAt string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&doc.DocID, &doc.PMID, &doc.Title, &doc.Type, &doc.SourceURL,
		&processed, &doc.AddedBy, &addedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc.Processed = processed != 0
	doc.AddedAt = parseTimestamp(addedAt)
	return &doc, nil
}

// List returns all documents with their chunk and embedding counts,
// newest first.
func (r *DocumentRepository) List(ctx context.Context) ([]models.DocumentSummary, error) {
	query := `SELECT d.doc_id, d.pmid, d.title, d.type, d.source_url, d.processed,
			d.added_by, d.added_at,
			COALESCE(tc.chunk_count, 0),
			COALESCE(ce.embedding_count, 0)
		FROM documents d
		LEFT JOIN (
			SELECT pmid, COUNT(*) AS chunk_count FROM text_chunks GROUP BY pmid
		) tc ON tc.pmid = d.pmid
		LEFT JOIN (
			SELECT pmid, COUNT(*) AS embedding_count FROM chunk_embeddings GROUP BY pmid
		) ce ON ce.pmid = d.pmid
		ORDER BY d.added_at DESC, d.doc_id DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Error().Err(err).Msg("failed to close rows")
		}
	}()

	var summaries []models.DocumentSummary
	for rows.Next() {
		var s models.DocumentSummary
		var processed int
		var addedAt string
		err := rows.Scan(&s.DocID, &s.PMID, &s.Title, &s.Type, &s.SourceURL,
			&processed, &s.AddedBy, &addedAt, &s.ChunkCount, &s.EmbeddingCount)
		if err != nil {
			return nil, err
		}
		s.Processed = processed != 0
		s.AddedAt = parseTimestamp(addedAt)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// Delete removes a document and everything derived from its article:
// embeddings, chunks, authors, the article row, and the document itself.
// The authorizer runs against the stored document before any row is
// touched.
func (r *DocumentRepository) Delete(ctx context.Context, docID int64, authorize DeleteAuthorizer) error {
	doc, err := r.GetByID(ctx, docID)
	if err != nil {
		return err
	}
	if authorize != nil {
		if err := authorize(doc); err != nil {
			return err
		}
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		// Every derived row is removed explicitly; foreign keys are not
		// enforced on this connection.
		statements := []string{
			`DELETE FROM retrieves WHERE doc_id IN (SELECT doc_id FROM documents WHERE pmid = ?)`,
			`DELETE FROM chunk_embeddings WHERE pmid = ?`,
			`DELETE FROM text_chunks WHERE pmid = ?`,
			`DELETE FROM article_authors WHERE pmid = ?`,
			`DELETE FROM documents WHERE pmid = ?`,
			`DELETE FROM articles WHERE pmid = ?`,
		}
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt, doc.PMID); err != nil {
				return fmt.Errorf("failed to delete document %d: %w", docID, err)
			}
		}
		r.logger.Info().Int64("doc_id", docID).Int64("pmid", doc.PMID).Msg("deleted document")
		return nil
	})
}

func parseTimestamp(value string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}
