package interfaces

import (
	"context"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
)

// Extractor defines the interface for pulling plain text out of a source file.
type Extractor interface {
	// Extract reads the file at path and returns its text content
	Extract(path string) (string, error)

	// Extensions returns the lowercase file extensions this extractor handles
	Extensions() []string
}

// Embedder defines the interface for generating vector embeddings.
type Embedder interface {
	// EmbedBatch creates one fixed-length vector per input text, in order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// GetModelName returns the name of the embedding model
	GetModelName() string

	// GetDimension returns the dimension of the embedding vectors
	GetDimension() int

	// GetMaxTokens returns the maximum number of tokens this embedder can handle
	GetMaxTokens() int
}

// AnswerGenerator defines the interface for writing a grounded answer from
// retrieved chunks. A nil answer with a nil error means generation was
// declined; callers treat any failure as non-fatal.
type AnswerGenerator interface {
	Generate(ctx context.Context, queryText string, chunks []models.RetrievedChunk, modelName string) (*string, error)
}

// EmbeddingSource supplies the vectors an index build consumes, ordered by
// chunk id so the index row order is reproducible.
type EmbeddingSource interface {
	FetchForModel(ctx context.Context, modelName string) (chunkIDs []int64, vectors [][]float32, err error)
}
