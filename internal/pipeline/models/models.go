package models

import (
	"time"
)

// Article is a bibliographic record keyed by its PubMed identifier.
type Article struct {
	PMID            int64    `json:"pmid"`
	Title           string   `json:"title"`
	Authors         []string `json:"authors"`
	Citation        *string  `json:"citation"`
	FirstAuthor     *string  `json:"first_author"`
	Journal         *string  `json:"journal"`
	PublicationYear *int     `json:"publication_year"`
	CreateDate      *string  `json:"create_date"`
	PMCID           *string  `json:"pmcid"`
	NIHMSID         *string  `json:"nihmsid"`
	DOI             *string  `json:"doi"`
}

// Document tracks one ingested file per article.
type Document struct {
	DocID     int64     `json:"doc_id"`
	PMID      int64     `json:"pmid"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	SourceURL string    `json:"source_url"`
	Processed bool      `json:"processed"`
	AddedBy   *int64    `json:"added_by"`
	AddedAt   time.Time `json:"added_at"`
}

// DocumentSummary is a Document annotated with chunk and embedding counts.
type DocumentSummary struct {
	Document

	ChunkCount     int `json:"chunk_count"`
	EmbeddingCount int `json:"embedding_count"`
}

// Chunk is a bounded, offset-tracked window of a document's normalized text.
// Offsets are character positions in the normalized text; ContentHash is the
// SHA-256 hex digest of Text.
type Chunk struct {
	ChunkID     int64  `json:"chunk_id"`
	PMID        int64  `json:"pmid"`
	ChunkIndex  int    `json:"chunk_index"`
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	ContentHash string `json:"content_hash"`
}

// Embedding is a stored vector for one chunk under one model. TextHash is the
// chunk's content fingerprint at embedding time; when it no longer matches the
// chunk, the embedding is stale.
type Embedding struct {
	ChunkID   int64     `json:"chunk_id"`
	PMID      int64     `json:"pmid"`
	ModelName string    `json:"model_name"`
	Dim       int       `json:"embedding_dim"`
	Vector    []float32 `json:"vector"`
	TextHash  string    `json:"text_hash"`
}

// IndexMeta is the descriptor persisted alongside the vector index and its
// chunk-id array.
type IndexMeta struct {
	ModelName    string    `json:"model_name"`
	EmbeddingDim int       `json:"embedding_dim"`
	ChunkCount   int       `json:"chunk_count"`
	Metric       string    `json:"metric"`
	Normalized   bool      `json:"normalized"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RetrievedChunk is one search hit resolved back to its chunk and document.
// Score semantics depend on the index metric: euclidean scores sort ascending,
// cosine/inner-product scores sort descending.
type RetrievedChunk struct {
	ChunkID int64   `json:"chunk_id"`
	PMID    int64   `json:"pmid"`
	DocID   int64   `json:"doc_id"`
	Title   string  `json:"title"`
	Score   float32 `json:"score"`
	Text    string  `json:"text"`
}

// Citation identifies a source document, deduplicated per article.
type Citation struct {
	PMID  int64  `json:"pmid"`
	Title string `json:"title"`
	DocID int64  `json:"doc_id"`
}

// QueryResult is the full response for one retrieval query. QueryID is nil
// when the query returned no results and therefore was not logged.
type QueryResult struct {
	QueryID         *int64           `json:"query_id"`
	Answer          *string          `json:"answer"`
	Citations       []Citation       `json:"citations"`
	RetrievedChunks []RetrievedChunk `json:"retrieved_chunks"`
}

// IngestionResult summarizes one successfully ingested document.
type IngestionResult struct {
	PMID           int64  `json:"pmid"`
	DocID          int64  `json:"doc_id"`
	Title          string `json:"title"`
	ChunkCount     int    `json:"chunk_count"`
	EmbeddingCount int    `json:"embedding_count"`
}
