package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/chunkers"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/testutil"
)

func strPtr(s string) *string { return &s }
func intPtr(i int64) *int64   { return &i }

func seedArticle(t *testing.T, articles *ArticleRepository, pmid int64, title string) {
	t.Helper()
	err := articles.Upsert(context.Background(), []models.Article{
		{PMID: pmid, Title: title, Authors: []string{"Smith J", "Doe A"}, DOI: strPtr("10.1/test")},
	})
	if err != nil {
		t.Fatalf("failed to seed article: %v", err)
	}
}

func TestArticleUpsertAndGet(t *testing.T) {
	database := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, database)

	articles := NewArticleRepository(database)
	ctx := context.Background()

	seedArticle(t, articles, 101, "original title")

	got, err := articles.GetByPMID(ctx, 101)
	if err != nil {
		t.Fatalf("GetByPMID failed: %v", err)
	}
	if got.Title != "original title" {
		t.Errorf("title = %s", got.Title)
	}
	if len(got.Authors) != 2 || got.Authors[0] != "Smith J" {
		t.Errorf("authors = %v", got.Authors)
	}

	// Re-upsert with new values converges on them.
	err = articles.Upsert(ctx, []models.Article{
		{PMID: 101, Title: "revised title", Authors: []string{"Doe A"}},
	})
	if err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}
	got, err = articles.GetByPMID(ctx, 101)
	if err != nil {
		t.Fatalf("GetByPMID failed: %v", err)
	}
	if got.Title != "revised title" {
		t.Errorf("title after update = %s", got.Title)
	}
	if len(got.Authors) != 1 {
		t.Errorf("authors after update = %v", got.Authors)
	}

	if _, err := articles.GetByPMID(ctx, 999); !errors.Is(err, ErrArticleNotFound) {
		t.Errorf("expected ErrArticleNotFound, got %v", err)
	}
}

func TestDocumentEnsure(t *testing.T) {
	database := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, database)

	articles := NewArticleRepository(database)
	documents := NewDocumentRepository(database)
	ctx := context.Background()

	seedArticle(t, articles, 202, "a document title")

	doc, err := documents.Ensure(ctx, 202, "a document title", intPtr(7))
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if doc.PMID != 202 || doc.Title != "a document title" {
		t.Errorf("unexpected document: %+v", doc)
	}
	if doc.Type != "pubmed_text" {
		t.Errorf("type = %s", doc.Type)
	}
	if doc.SourceURL != "https://pubmed.ncbi.nlm.nih.gov/202/" {
		t.Errorf("source url = %s", doc.SourceURL)
	}
	if doc.AddedBy == nil || *doc.AddedBy != 7 {
		t.Errorf("added_by = %v", doc.AddedBy)
	}

	// Calling again with an empty title falls back to the placeholder
	// but keeps the same row.
	again, err := documents.Ensure(ctx, 202, "", nil)
	if err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}
	if again.DocID != doc.DocID {
		t.Errorf("doc id changed: %d vs %d", again.DocID, doc.DocID)
	}
	if again.Title != "PMID 202" {
		t.Errorf("title = %s", again.Title)
	}
	if again.AddedBy == nil || *again.AddedBy != 7 {
		t.Errorf("added_by should survive nil update, got %v", again.AddedBy)
	}
}

func TestChunkReplaceAndStaleness(t *testing.T) {
	database := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, database)

	articles := NewArticleRepository(database)
	documents := NewDocumentRepository(database)
	chunks := NewChunkRepository(database)
	embeddings := NewEmbeddingRepository(database)
	ctx := context.Background()

	seedArticle(t, articles, 303, "staleness test")
	if _, err := documents.Ensure(ctx, 303, "staleness test", nil); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	first, err := chunkers.ChunkText(303, "alpha beta gamma delta epsilon zeta", 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := chunks.ReplaceForArticle(ctx, 303, first); err != nil {
		t.Fatalf("ReplaceForArticle failed: %v", err)
	}

	stored, err := chunks.GetForArticle(ctx, 303)
	if err != nil {
		t.Fatalf("GetForArticle failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(stored))
	}

	// Every chunk is pending before any embedding exists.
	pending, err := embeddings.Pending(ctx, "text-embedding-3-small")
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}

	// Embed both chunks; nothing is pending afterwards.
	for _, c := range stored {
		err := embeddings.Upsert(ctx, &models.Embedding{
			ChunkID:   c.ChunkID,
			PMID:      c.PMID,
			ModelName: "text-embedding-3-small",
			Dim:       2,
			Vector:    []float32{1, 0},
			TextHash:  chunkers.Fingerprint(c.Text),
		})
		if err != nil {
			t.Fatalf("Upsert embedding failed: %v", err)
		}
	}
	pending, err = embeddings.Pending(ctx, "text-embedding-3-small")
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected 0 pending, got %d", len(pending))
	}

	// Changing the text of chunk 0 makes only that chunk pending again,
	// and its chunk_id is stable.
	second, err := chunkers.ChunkText(303, "changed words here delta epsilon zeta", 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := chunks.ReplaceForArticle(ctx, 303, second); err != nil {
		t.Fatalf("second ReplaceForArticle failed: %v", err)
	}
	after, err := chunks.GetForArticle(ctx, 303)
	if err != nil {
		t.Fatal(err)
	}
	if after[0].ChunkID != stored[0].ChunkID || after[1].ChunkID != stored[1].ChunkID {
		t.Errorf("chunk ids not stable across replace")
	}

	pending, err = embeddings.Pending(ctx, "text-embedding-3-small")
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ChunkID != stored[0].ChunkID {
		t.Fatalf("expected only the changed chunk pending, got %+v", pending)
	}

	// A different model sees everything as pending.
	pending, err = embeddings.Pending(ctx, "text-embedding-3-large")
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending under other model, got %d", len(pending))
	}
}

func TestChunkTrimOnShrink(t *testing.T) {
	database := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, database)

	articles := NewArticleRepository(database)
	documents := NewDocumentRepository(database)
	chunks := NewChunkRepository(database)
	embeddings := NewEmbeddingRepository(database)
	ctx := context.Background()

	seedArticle(t, articles, 304, "shrink test")
	if _, err := documents.Ensure(ctx, 304, "shrink test", nil); err != nil {
		t.Fatal(err)
	}

	long, err := chunkers.ChunkText(304, "a b c d e f g h i", 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := chunks.ReplaceForArticle(ctx, 304, long); err != nil {
		t.Fatal(err)
	}
	stored, err := chunks.GetForArticle(ctx, 304)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range stored {
		err := embeddings.Upsert(ctx, &models.Embedding{
			ChunkID:   c.ChunkID,
			PMID:      c.PMID,
			ModelName: "text-embedding-3-small",
			Dim:       2,
			Vector:    []float32{1, 0},
			TextHash:  chunkers.Fingerprint(c.Text),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	short, err := chunkers.ChunkText(304, "a b c", 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := chunks.ReplaceForArticle(ctx, 304, short); err != nil {
		t.Fatal(err)
	}

	count, err := chunks.CountForArticle(ctx, 304)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 chunk after shrink, got %d", count)
	}

	// Trimmed chunks take their vectors with them, so a later index
	// build cannot pick up rows for chunks that no longer exist.
	if n := testutil.GetRecordCount(t, database, "chunk_embeddings"); n != 1 {
		t.Errorf("expected 1 embedding after shrink, got %d", n)
	}
	ids, _, err := embeddings.FetchForModel(ctx, "text-embedding-3-small")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != stored[0].ChunkID {
		t.Errorf("surviving vector ids = %v, want [%d]", ids, stored[0].ChunkID)
	}
}

func TestEmbeddingPurgeAndFetch(t *testing.T) {
	database := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, database)

	articles := NewArticleRepository(database)
	documents := NewDocumentRepository(database)
	chunks := NewChunkRepository(database)
	embeddings := NewEmbeddingRepository(database)
	ctx := context.Background()

	seedArticle(t, articles, 404, "purge test")
	if _, err := documents.Ensure(ctx, 404, "purge test", nil); err != nil {
		t.Fatal(err)
	}
	cs, err := chunkers.ChunkText(404, "one two three four five six", 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := chunks.ReplaceForArticle(ctx, 404, cs); err != nil {
		t.Fatal(err)
	}
	stored, err := chunks.GetForArticle(ctx, 404)
	if err != nil {
		t.Fatal(err)
	}

	for i, c := range stored {
		err := embeddings.Upsert(ctx, &models.Embedding{
			ChunkID:   c.ChunkID,
			PMID:      c.PMID,
			ModelName: "model-a",
			Dim:       2,
			Vector:    []float32{float32(i), 1},
			TextHash:  chunkers.Fingerprint(c.Text),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	purged, err := embeddings.PurgeOtherModels(ctx, "model-b")
	if err != nil {
		t.Fatalf("PurgeOtherModels failed: %v", err)
	}
	if purged != int64(len(stored)) {
		t.Errorf("purged = %d, want %d", purged, len(stored))
	}

	ids, vectors, err := embeddings.FetchForModel(ctx, "model-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 || len(vectors) != 0 {
		t.Errorf("expected no vectors after purge, got %d", len(ids))
	}
}

func TestQueryLogDedup(t *testing.T) {
	database := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, database)

	articles := NewArticleRepository(database)
	documents := NewDocumentRepository(database)
	queryLogs := NewQueryLogRepository(database)
	ctx := context.Background()

	seedArticle(t, articles, 505, "query log test")
	doc, err := documents.Ensure(ctx, 505, "query log test", nil)
	if err != nil {
		t.Fatal(err)
	}

	queryID, err := queryLogs.Log(ctx, "what is known?", strPtr("an answer"), intPtr(3),
		[]int64{doc.DocID, doc.DocID, doc.DocID})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if queryID == 0 {
		t.Error("expected non-zero query id")
	}
	if n := testutil.GetRecordCount(t, database, "retrieves"); n != 1 {
		t.Errorf("expected 1 retrieves row, got %d", n)
	}
}

func TestDocumentDelete(t *testing.T) {
	database := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, database)

	articles := NewArticleRepository(database)
	documents := NewDocumentRepository(database)
	chunks := NewChunkRepository(database)
	queryLogs := NewQueryLogRepository(database)
	ctx := context.Background()

	seedArticle(t, articles, 606, "delete test")
	doc, err := documents.Ensure(ctx, 606, "delete test", intPtr(9))
	if err != nil {
		t.Fatal(err)
	}
	cs, err := chunkers.ChunkText(606, "to be deleted text", 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := chunks.ReplaceForArticle(ctx, 606, cs); err != nil {
		t.Fatal(err)
	}
	if _, err := queryLogs.Log(ctx, "a query", nil, nil, []int64{doc.DocID}); err != nil {
		t.Fatal(err)
	}

	// A different non-admin user cannot delete.
	err = documents.Delete(ctx, doc.DocID, OwnerOrAdmin(4, false))
	if !errors.Is(err, ErrDeleteForbidden) {
		t.Fatalf("expected ErrDeleteForbidden, got %v", err)
	}

	// The owner can.
	if err := documents.Delete(ctx, doc.DocID, OwnerOrAdmin(9, false)); err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}

	if _, err := documents.GetByID(ctx, doc.DocID); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
	if _, err := articles.GetByPMID(ctx, 606); !errors.Is(err, ErrArticleNotFound) {
		t.Errorf("article should cascade, got %v", err)
	}
	if n := testutil.GetRecordCount(t, database, "text_chunks"); n != 0 {
		t.Errorf("chunks should cascade, got %d", n)
	}
	if n := testutil.GetRecordCount(t, database, "retrieves"); n != 0 {
		t.Errorf("retrieves rows should be removed with the document, got %d", n)
	}
	// The query log itself is audit history and survives.
	if n := testutil.GetRecordCount(t, database, "query_logs"); n != 1 {
		t.Errorf("query log should survive document delete, got %d", n)
	}
}

func TestDocumentList(t *testing.T) {
	database := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, database)

	articles := NewArticleRepository(database)
	documents := NewDocumentRepository(database)
	chunks := NewChunkRepository(database)
	ctx := context.Background()

	seedArticle(t, articles, 707, "list test")
	if _, err := documents.Ensure(ctx, 707, "list test", nil); err != nil {
		t.Fatal(err)
	}
	cs, err := chunkers.ChunkText(707, "some words to chunk up here", 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := chunks.ReplaceForArticle(ctx, 707, cs); err != nil {
		t.Fatal(err)
	}

	summaries, err := documents.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 document, got %d", len(summaries))
	}
	if summaries[0].ChunkCount != 2 {
		t.Errorf("chunk count = %d, want 2", summaries[0].ChunkCount)
	}
	if summaries[0].EmbeddingCount != 0 {
		t.Errorf("embedding count = %d, want 0", summaries[0].EmbeddingCount)
	}
	if !summaries[0].Processed {
		t.Error("document should be marked processed")
	}
}
