package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/config"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/interfaces"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/vectorindex"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/rs/zerolog"
)

var (
	ErrEmptyQuery    = errors.New("query text is empty")
	ErrModelMismatch = errors.New("index was built with a different model")
)

// SearchOptions tunes one retrieval call. A nil AnswerModel skips
// answer generation; UserID attributes the query log row.
type SearchOptions struct {
	AnswerModel *string
	UserID      *int64
}

// ChunkLookup resolves chunk ids back to their text and documents.
type ChunkLookup interface {
	GetByIDs(ctx context.Context, chunkIDs []int64) (map[int64]models.RetrievedChunk, error)
}

// QueryLogger records answered queries and their source documents.
type QueryLogger interface {
	Log(ctx context.Context, queryText string, responseText *string, userID *int64, docIDs []int64) (int64, error)
}

// Retriever answers queries against the vector index, resolves hits
// back to chunks and documents, optionally generates an answer, and
// logs the query.
type Retriever struct {
	cfg       *config.Config
	chunks    ChunkLookup
	queryLogs QueryLogger
	embedder  interfaces.Embedder
	answerer  interfaces.AnswerGenerator
	index     *vectorindex.Manager
	logger    zerolog.Logger
}

func NewRetriever(
	cfg *config.Config,
	chunks ChunkLookup,
	queryLogs QueryLogger,
	embedder interfaces.Embedder,
	answerer interfaces.AnswerGenerator,
	index *vectorindex.Manager,
) *Retriever {
	return &Retriever{
		cfg:       cfg,
		chunks:    chunks,
		queryLogs: queryLogs,
		embedder:  embedder,
		answerer:  answerer,
		index:     index,
		logger:    util.NewLogger(zerolog.InfoLevel),
	}
}

// Search embeds the query, searches the index for the top k chunks, and
// assembles the result. The index is rebuilt first if stale. Queries
// with no results are not logged.
func (r *Retriever) Search(ctx context.Context, queryText string, k int, opts SearchOptions) (*models.QueryResult, error) {
	if queryText == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = 5
	}

	metric, err := vectorindex.ParseMetric(r.cfg.Metric())
	if err != nil {
		return nil, err
	}
	model := r.embedder.GetModelName()
	if err := r.index.EnsureFresh(ctx, model, r.embedder.GetDimension(), metric); err != nil {
		return nil, err
	}

	ix, chunkIDs, meta, err := r.index.Load()
	if err != nil {
		return nil, err
	}
	if meta.ModelName != model {
		return nil, fmt.Errorf("%w: index has %q, query uses %q", ErrModelMismatch, meta.ModelName, model)
	}

	vectors, err := r.embedder.EmbedBatch(ctx, []string{queryText})
	if err != nil {
		return nil, err
	}
	query := vectors[0]
	if meta.Normalized {
		vectorindex.NormalizeL2([][]float32{query})
	}

	rows, scores, err := ix.Search(query, k)
	if err != nil {
		return nil, err
	}

	hitIDs := make([]int64, len(rows))
	for i, row := range rows {
		hitIDs[i] = chunkIDs[row]
	}

	byID, err := r.chunks.GetByIDs(ctx, hitIDs)
	if err != nil {
		return nil, err
	}

	result := &models.QueryResult{}
	for i, chunkID := range hitIDs {
		rc, ok := byID[chunkID]
		if !ok {
			// The chunk was deleted after the index was built.
			r.logger.Warn().Int64("chunk_id", chunkID).Msg("indexed chunk no longer stored")
			continue
		}
		rc.Score = scores[i]
		result.RetrievedChunks = append(result.RetrievedChunks, rc)
	}

	result.Citations = citations(result.RetrievedChunks)

	if len(result.RetrievedChunks) > 0 && opts.AnswerModel != nil && r.answerer != nil {
		answer, err := r.answerer.Generate(ctx, queryText, result.RetrievedChunks, *opts.AnswerModel)
		if err != nil {
			// Retrieval still succeeded; return the chunks without an answer.
			r.logger.Error().Err(err).Msg("answer generation failed")
		} else {
			result.Answer = answer
		}
	}

	if len(result.RetrievedChunks) > 0 {
		docIDs := make([]int64, 0, len(result.Citations))
		for _, c := range result.Citations {
			docIDs = append(docIDs, c.DocID)
		}
		queryID, err := r.queryLogs.Log(ctx, queryText, result.Answer, opts.UserID, docIDs)
		if err != nil {
			return nil, err
		}
		result.QueryID = &queryID
	}

	return result, nil
}

// citations deduplicates the retrieved chunks per article, keeping the
// order of first appearance.
func citations(chunks []models.RetrievedChunk) []models.Citation {
	seen := make(map[int64]struct{}, len(chunks))
	var out []models.Citation
	for _, rc := range chunks {
		if _, ok := seen[rc.PMID]; ok {
			continue
		}
		seen[rc.PMID] = struct{}{}
		out = append(out, models.Citation{PMID: rc.PMID, Title: rc.Title, DocID: rc.DocID})
	}
	return out
}
