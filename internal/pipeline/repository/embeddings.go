package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
	"github.com/code-sleuth/pubmedflo-go/pkg/db"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/rs/zerolog"
)

// EmbeddingRepository stores chunk vectors per model. Vectors are kept
// as JSON float arrays in a TEXT column so the schema stays portable
// across libsql deployments.
type EmbeddingRepository struct {
	db     *db.DB
	logger zerolog.Logger
}

func NewEmbeddingRepository(database *db.DB) *EmbeddingRepository {
	return &EmbeddingRepository{
		db:     database,
		logger: util.NewLogger(zerolog.ErrorLevel),
	}
}

// Pending returns the chunks that need (re-)embedding under the given
// model: chunks with no stored vector, and chunks whose stored text hash
// no longer matches the current content fingerprint.
func (r *EmbeddingRepository) Pending(ctx context.Context, modelName string) ([]models.Chunk, error) {
	query := `SELECT tc.chunk_id, tc.pmid, tc.chunk_index, tc.chunk_text,
			tc.start_offset, tc.end_offset, tc.content_hash
		FROM text_chunks tc
		LEFT JOIN chunk_embeddings ce
			ON ce.chunk_id = tc.chunk_id AND ce.model_name = ?
		WHERE ce.chunk_id IS NULL OR ce.text_hash <> substr(tc.content_hash, 1, 16)
		ORDER BY tc.pmid, tc.chunk_id`

	rows, err := r.db.QueryContext(ctx, query, modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending chunks: %w", err)
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

// PurgeOtherModels deletes vectors stored under any model other than
// modelName and reports how many rows were removed. The store keeps a
// single model's vectors at a time, matching the single on-disk index.
func (r *EmbeddingRepository) PurgeOtherModels(ctx context.Context, modelName string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM chunk_embeddings WHERE model_name <> ?`, modelName)
	if err != nil {
		return 0, fmt.Errorf("failed to purge embeddings for other models: %w", err)
	}
	purged, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		r.logger.Info().Int64("purged", purged).Str("model", modelName).Msg("purged embeddings from other models")
	}
	return purged, nil
}

// Upsert writes one vector, replacing any prior vector for the same
// chunk and model.
func (r *EmbeddingRepository) Upsert(ctx context.Context, emb *models.Embedding) error {
	vector, err := json.Marshal(emb.Vector)
	if err != nil {
		return fmt.Errorf("failed to encode vector for chunk %d: %w", emb.ChunkID, err)
	}

	query := `INSERT INTO chunk_embeddings (chunk_id, pmid, model_name, embedding_dim, embedding, text_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (chunk_id, model_name) DO UPDATE SET
			pmid = excluded.pmid,
			embedding_dim = excluded.embedding_dim,
			embedding = excluded.embedding,
			text_hash = excluded.text_hash`

	_, err = r.db.ExecContext(ctx, query,
		emb.ChunkID, emb.PMID, emb.ModelName, emb.Dim, string(vector), emb.TextHash)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding for chunk %d: %w", emb.ChunkID, err)
	}
	return nil
}

// FetchForModel streams out every stored vector for the model, ordered
// by chunk id. The parallel slices feed the vector index build.
func (r *EmbeddingRepository) FetchForModel(ctx context.Context, modelName string) ([]int64, [][]float32, error) {
	query := `SELECT chunk_id, embedding FROM chunk_embeddings
		WHERE model_name = ? ORDER BY chunk_id`

	rows, err := r.db.QueryContext(ctx, query, modelName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch embeddings: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Error().Err(err).Msg("failed to close rows")
		}
	}()

	var chunkIDs []int64
	var vectors [][]float32
	for rows.Next() {
		var chunkID int64
		var encoded string
		if err := rows.Scan(&chunkID, &encoded); err != nil {
			return nil, nil, err
		}
		var vector []float32
		if err := json.Unmarshal([]byte(encoded), &vector); err != nil {
			return nil, nil, fmt.Errorf("failed to decode vector for chunk %d: %w", chunkID, err)
		}
		chunkIDs = append(chunkIDs, chunkID)
		vectors = append(vectors, vector)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return chunkIDs, vectors, nil
}

// CountForArticle returns the number of stored vectors for the article
// under the given model.
func (r *EmbeddingRepository) CountForArticle(ctx context.Context, pmid int64, modelName string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunk_embeddings WHERE pmid = ? AND model_name = ?`,
		pmid, modelName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count embeddings for article %d: %w", pmid, err)
	}
	return count, nil
}
