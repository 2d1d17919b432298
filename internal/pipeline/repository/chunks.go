package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
	"github.com/code-sleuth/pubmedflo-go/pkg/db"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/rs/zerolog"
)

// ChunkRepository stores the windowed text chunks for each article.
type ChunkRepository struct {
	db     *db.DB
	logger zerolog.Logger
}

func NewChunkRepository(database *db.DB) *ChunkRepository {
	return &ChunkRepository{
		db:     database,
		logger: util.NewLogger(zerolog.ErrorLevel),
	}
}

// ReplaceForArticle makes the stored chunks for the article match the
// given slice exactly. Chunks whose text is unchanged keep their row
// (and so their chunk_id and any embeddings); changed chunks are
// rewritten in place, and indexes past the end of the new slice are
// removed. The document is marked processed in the same transaction.
func (r *ChunkRepository) ReplaceForArticle(ctx context.Context, pmid int64, chunks []models.Chunk) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		upsert := `INSERT INTO text_chunks (pmid, chunk_index, chunk_text, start_offset, end_offset, content_hash)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (pmid, chunk_index) DO UPDATE SET
				chunk_text = excluded.chunk_text,
				start_offset = excluded.start_offset,
				end_offset = excluded.end_offset,
				content_hash = excluded.content_hash
			WHERE text_chunks.content_hash <> excluded.content_hash`

		for i := range chunks {
			c := &chunks[i]
			_, err := tx.ExecContext(ctx, upsert,
				pmid, c.ChunkIndex, c.Text, c.StartOffset, c.EndOffset, c.ContentHash)
			if err != nil {
				return fmt.Errorf("failed to upsert chunk %d for article %d: %w", c.ChunkIndex, pmid, err)
			}
		}

		// Drop chunks beyond the new count, vectors first. The embedding
		// delete is explicit because foreign keys are not enforced on
		// this connection.
		_, err := tx.ExecContext(ctx,
			`DELETE FROM chunk_embeddings WHERE chunk_id IN (
				SELECT chunk_id FROM text_chunks WHERE pmid = ? AND chunk_index >= ?)`,
			pmid, len(chunks))
		if err != nil {
			return fmt.Errorf("failed to trim embeddings for article %d: %w", pmid, err)
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM text_chunks WHERE pmid = ? AND chunk_index >= ?`, pmid, len(chunks))
		if err != nil {
			return fmt.Errorf("failed to trim chunks for article %d: %w", pmid, err)
		}

		_, err = tx.ExecContext(ctx, `UPDATE documents SET processed = 1 WHERE pmid = ?`, pmid)
		if err != nil {
			return fmt.Errorf("failed to mark document processed for article %d: %w", pmid, err)
		}

		r.logger.Info().Int64("pmid", pmid).Int("chunks", len(chunks)).Msg("replaced chunks for article")
		return nil
	})
}

// GetForArticle returns the article's chunks in index order.
func (r *ChunkRepository) GetForArticle(ctx context.Context, pmid int64) ([]models.Chunk, error) {
	query := `SELECT chunk_id, pmid, chunk_index, chunk_text, start_offset, end_offset, content_hash
		FROM text_chunks WHERE pmid = ? ORDER BY chunk_index`

	rows, err := r.db.QueryContext(ctx, query, pmid)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks for article %d: %w", pmid, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Error().Err(err).Msg("failed to close rows")
		}
	}()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		err := rows.Scan(&c.ChunkID, &c.PMID, &c.ChunkIndex, &c.Text,
			&c.StartOffset, &c.EndOffset, &c.ContentHash)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return chunks, nil
}

// GetByIDs loads the given chunks joined with their documents. Duplicate
// ids are fetched once; the result order follows the database, so callers
// that care about ranking must reorder by chunk id themselves.
func (r *ChunkRepository) GetByIDs(ctx context.Context, chunkIDs []int64) (map[int64]models.RetrievedChunk, error) {
	if len(chunkIDs) == 0 {
		return map[int64]models.RetrievedChunk{}, nil
	}

	seen := make(map[int64]struct{}, len(chunkIDs))
	placeholders := make([]string, 0, len(chunkIDs))
	args := make([]any, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}

	query := fmt.Sprintf(`SELECT tc.chunk_id, tc.pmid, d.doc_id, d.title, tc.chunk_text
		FROM text_chunks tc
		JOIN documents d ON d.pmid = tc.pmid
		WHERE tc.chunk_id IN (%s)`, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks by id: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Error().Err(err).Msg("failed to close rows")
		}
	}()

	result := make(map[int64]models.RetrievedChunk, len(args))
	for rows.Next() {
		var rc models.RetrievedChunk
		if err := rows.Scan(&rc.ChunkID, &rc.PMID, &rc.DocID, &rc.Title, &rc.Text); err != nil {
			return nil, err
		}
		result[rc.ChunkID] = rc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// CountForArticle returns the number of stored chunks for the article.
func (r *ChunkRepository) CountForArticle(ctx context.Context, pmid int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM text_chunks WHERE pmid = ?`, pmid).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks for article %d: %w", pmid, err)
	}
	return count, nil
}
