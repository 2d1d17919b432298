package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/extract"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/metadata"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/repository"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/services"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var ErrNoMetadataGiven = errors.New("either --metadata-csv or --pmid and --title are required")

var (
	ingestPath     string
	metadataCSV    string
	ingestTimeout  time.Duration
	ingestAddedBy  int64
	fieldPMID      string
	fieldTitle     string
	fieldAuthors   string
	fieldDOI       string
	fieldJournal   string
	fieldYear      string
	fieldCitation  string
	fieldCreatedAt string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest article files into the pipeline",
	Long: `Ingest a file or a directory of files: extract text, resolve each
document against PubMed metadata, chunk, embed, and rebuild the index.

Metadata comes from a PubMed CSV export (--metadata-csv) or, for a
single article, from the --pmid/--title/--authors/... flags.

Examples:
  # Ingest a directory against a CSV export
  pubmedflo ingest --path ./papers --metadata-csv csv-results.csv

  # Ingest one file with inline metadata
  pubmedflo ingest --path paper.txt --pmid 12345 --title "Some Title" --authors "Smith J; Doe A"`,
	Run: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVarP(&ingestPath, "path", "p", "", "File or directory to ingest (required)")
	ingestCmd.Flags().StringVar(&metadataCSV, "metadata-csv", "", "Path to a PubMed CSV export")
	ingestCmd.Flags().Int64Var(&ingestAddedBy, "added-by", 0, "User id to attribute the documents to")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 10*time.Minute, "Timeout for the entire operation")

	ingestCmd.Flags().StringVar(&fieldPMID, "pmid", "", "PMID for single-article metadata")
	ingestCmd.Flags().StringVar(&fieldTitle, "title", "", "Title for single-article metadata")
	ingestCmd.Flags().StringVar(&fieldAuthors, "authors", "", "Authors, separated by ; or ,")
	ingestCmd.Flags().StringVar(&fieldDOI, "doi", "", "DOI")
	ingestCmd.Flags().StringVar(&fieldJournal, "journal", "", "Journal or book name")
	ingestCmd.Flags().StringVar(&fieldYear, "year", "", "Publication year")
	ingestCmd.Flags().StringVar(&fieldCitation, "citation", "", "Citation string")
	ingestCmd.Flags().StringVar(&fieldCreatedAt, "create-date", "", "Create date (YYYY/MM/DD or YYYY-MM-DD)")

	if err := ingestCmd.MarkFlagRequired("path"); err != nil {
		return
	}
}

func runIngest(_ *cobra.Command, _ []string) {
	logger := util.NewLogger(zerolog.InfoLevel)

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	candidates, err := loadCandidates()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load metadata")
	}

	cfg := loadConfig(logger)
	database := openDatabase(logger)
	defer closeDatabase(logger, database)

	embeddings := repository.NewEmbeddingRepository(database)
	service := services.NewIngestionService(
		cfg,
		extract.NewRegistry(),
		repository.NewArticleRepository(database),
		repository.NewDocumentRepository(database),
		repository.NewChunkRepository(database),
		embeddings,
		newEmbedder(logger, cfg),
		newIndexManager(cfg, embeddings),
	)

	var addedBy *int64
	if ingestAddedBy != 0 {
		addedBy = &ingestAddedBy
	}

	info, err := os.Stat(ingestPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", ingestPath).Msg("Failed to stat input path")
	}

	var results []models.IngestionResult
	if info.IsDir() {
		results, err = service.IngestDirectory(ctx, ingestPath, candidates, addedBy)
	} else {
		var result *models.IngestionResult
		result, err = service.IngestDocument(ctx, ingestPath, candidates, addedBy)
		if result != nil {
			results = []models.IngestionResult{*result}
		}
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("Ingestion failed")
	}

	jsonOutput, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to marshal JSON")
	}
	logger.Info().RawJSON("results", jsonOutput).Msg("Ingestion completed successfully!")
}

func loadCandidates() ([]models.Article, error) {
	if metadataCSV != "" {
		return metadata.LoadCSV(metadataCSV)
	}
	if fieldPMID == "" && fieldTitle == "" {
		return nil, ErrNoMetadataGiven
	}
	article, err := metadata.NewArticle(metadata.ArticleFields{
		PMID:            fieldPMID,
		Title:           fieldTitle,
		Authors:         fieldAuthors,
		DOI:             fieldDOI,
		Journal:         fieldJournal,
		PublicationYear: fieldYear,
		Citation:        fieldCitation,
		CreateDate:      fieldCreatedAt,
	})
	if err != nil {
		return nil, err
	}
	return []models.Article{*article}, nil
}
