package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/chunkers"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/config"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/extract"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/interfaces"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/metadata"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/repository"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/vectorindex"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNoMetadataRows = errors.New("no metadata rows provided")
	ErrEmptyDocument  = errors.New("document produced no chunks")
	ErrNoInputFiles   = errors.New("no ingestible files found")
)

// IngestionService runs documents through extraction, metadata
// resolution, chunking, embedding, and index rebuild.
type IngestionService struct {
	cfg        *config.Config
	registry   *extract.Registry
	articles   *repository.ArticleRepository
	documents  *repository.DocumentRepository
	chunks     *repository.ChunkRepository
	embeddings *repository.EmbeddingRepository
	embedder   interfaces.Embedder
	index      *vectorindex.Manager
	logger     zerolog.Logger
}

func NewIngestionService(
	cfg *config.Config,
	registry *extract.Registry,
	articles *repository.ArticleRepository,
	documents *repository.DocumentRepository,
	chunks *repository.ChunkRepository,
	embeddings *repository.EmbeddingRepository,
	embedder interfaces.Embedder,
	index *vectorindex.Manager,
) *IngestionService {
	return &IngestionService{
		cfg:        cfg,
		registry:   registry,
		articles:   articles,
		documents:  documents,
		chunks:     chunks,
		embeddings: embeddings,
		embedder:   embedder,
		index:      index,
		logger:     util.NewLogger(zerolog.InfoLevel),
	}
}

// IngestDocument runs the full pipeline for one file: extract and
// normalize its text, resolve it against the metadata candidates, store
// the article and document rows, rewrite the chunks, embed whatever is
// pending, and rebuild the index.
func (s *IngestionService) IngestDocument(ctx context.Context, path string, candidates []models.Article, addedBy *int64) (*models.IngestionResult, error) {
	result, err := s.ingestOne(ctx, path, metadata.NewResolver(candidates), candidates, addedBy)
	if err != nil {
		return nil, err
	}

	if err := s.EmbedPending(ctx); err != nil {
		return nil, err
	}
	if err := s.rebuildIndex(ctx); err != nil {
		return nil, err
	}

	embeddingCount, err := s.embeddings.CountForArticle(ctx, result.PMID, s.embedder.GetModelName())
	if err != nil {
		return nil, err
	}
	result.EmbeddingCount = embeddingCount
	return result, nil
}

// ingestOne does everything up to (but not including) embedding, so
// directory ingestion can batch the embed and rebuild across files.
func (s *IngestionService) ingestOne(ctx context.Context, path string, resolver *metadata.Resolver, candidates []models.Article, addedBy *int64) (*models.IngestionResult, error) {
	if len(candidates) == 0 {
		return nil, ErrNoMetadataRows
	}

	raw, err := s.registry.Extract(path)
	if err != nil {
		return nil, err
	}
	text := chunkers.Normalize(raw)

	article, err := resolver.Resolve(filepath.Base(path), text)
	if errors.Is(err, metadata.ErrNoMetadataMatch) && len(candidates) == 1 {
		// A single metadata row unambiguously describes the document
		// even when nothing in the text matches it.
		article = &candidates[0]
		s.logger.Warn().
			Str("document", filepath.Base(path)).
			Int64("pmid", article.PMID).
			Msg("no metadata match in text, using the only candidate")
	} else if err != nil {
		return nil, err
	}

	if err := s.articles.Upsert(ctx, candidates); err != nil {
		return nil, err
	}

	doc, err := s.documents.Ensure(ctx, article.PMID, article.Title, addedBy)
	if err != nil {
		return nil, err
	}

	chunks, err := chunkers.ChunkText(article.PMID, text, s.cfg.Input.ChunkSize, s.cfg.Input.OverlapRatio)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, filepath.Base(path))
	}

	if err := s.chunks.ReplaceForArticle(ctx, article.PMID, chunks); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("pmid", article.PMID).
		Int64("doc_id", doc.DocID).
		Int("chunks", len(chunks)).
		Str("document", filepath.Base(path)).
		Msg("ingested document")

	return &models.IngestionResult{
		PMID:       article.PMID,
		DocID:      doc.DocID,
		Title:      doc.Title,
		ChunkCount: len(chunks),
	}, nil
}

// IngestDirectory ingests every supported file in dir. Files fail in
// isolation: one bad document is logged and skipped, the rest proceed.
// Embedding and the index rebuild run once after all files.
func (s *IngestionService) IngestDirectory(ctx context.Context, dir string, candidates []models.Article, addedBy *int64) ([]models.IngestionResult, error) {
	if len(candidates) == 0 {
		return nil, ErrNoMetadataRows
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if s.registry.Supported(path) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoInputFiles, dir)
	}

	runID := uuid.New().String()
	logger := s.logger.With().Str("run_id", runID).Logger()
	logger.Info().Int("files", len(paths)).Str("dir", dir).Msg("starting batch ingestion")

	resolver := metadata.NewResolver(candidates)
	var results []models.IngestionResult
	for _, path := range paths {
		result, err := s.ingestOne(ctx, path, resolver, candidates, addedBy)
		if err != nil {
			logger.Error().Err(err).Str("document", filepath.Base(path)).Msg("skipping document")
			continue
		}
		results = append(results, *result)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: all documents failed", ErrNoInputFiles)
	}

	if err := s.EmbedPending(ctx); err != nil {
		return nil, err
	}
	if err := s.rebuildIndex(ctx); err != nil {
		return nil, err
	}

	model := s.embedder.GetModelName()
	for i := range results {
		count, err := s.embeddings.CountForArticle(ctx, results[i].PMID, model)
		if err != nil {
			return nil, err
		}
		results[i].EmbeddingCount = count
	}

	logger.Info().Int("ingested", len(results)).Msg("batch ingestion complete")
	return results, nil
}

// EmbedPending purges vectors from other models, then embeds every
// chunk that is missing or stale under the current model, in batches.
func (s *IngestionService) EmbedPending(ctx context.Context) error {
	model := s.embedder.GetModelName()

	if _, err := s.embeddings.PurgeOtherModels(ctx, model); err != nil {
		return err
	}

	pending, err := s.embeddings.Pending(ctx, model)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	batchSize := s.cfg.Embed.BatchSize
	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed batch starting at chunk %d: %w", batch[0].ChunkID, err)
		}

		for i, chunk := range batch {
			err := s.embeddings.Upsert(ctx, &models.Embedding{
				ChunkID:   chunk.ChunkID,
				PMID:      chunk.PMID,
				ModelName: model,
				Dim:       s.embedder.GetDimension(),
				Vector:    vectors[i],
				TextHash:  chunkers.Fingerprint(chunk.Text),
			})
			if err != nil {
				return err
			}
		}
	}

	s.logger.Info().Int("embedded", len(pending)).Str("model", model).Msg("embedded pending chunks")
	return nil
}

func (s *IngestionService) rebuildIndex(ctx context.Context) error {
	metric, err := vectorindex.ParseMetric(s.cfg.Metric())
	if err != nil {
		return err
	}
	return s.index.Build(ctx, s.embedder.GetModelName(), s.embedder.GetDimension(), metric)
}
