package cmd

import (
	"context"
	"encoding/json"
	"time"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/answerers"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/interfaces"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/repository"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/services"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	queryText        string
	queryK           int
	queryAnswer      bool
	queryAnswerModel string
	queryUserID      int64
	queryTimeout     time.Duration
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the indexed articles",
	Long: `Embed a query, search the vector index for the most similar chunks,
and print them with their source citations. With --answer, an answer
grounded in the retrieved chunks is generated as well.

Examples:
  pubmedflo query --query "role of mitochondria in aging" --k 5
  pubmedflo query --query "protein folding errors" --answer --answer-model gpt-4o-mini`,
	Run: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "Query text (required)")
	queryCmd.Flags().IntVarP(&queryK, "k", "k", 5, "Number of chunks to retrieve")
	queryCmd.Flags().BoolVar(&queryAnswer, "answer", false, "Generate an answer from the retrieved chunks")
	queryCmd.Flags().StringVar(&queryAnswerModel, "answer-model", "", "Model to generate the answer with")
	queryCmd.Flags().Int64Var(&queryUserID, "user", 0, "User id to attribute the query to")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 5*time.Minute, "Timeout for the entire operation")

	if err := queryCmd.MarkFlagRequired("query"); err != nil {
		return
	}
}

func runQuery(_ *cobra.Command, _ []string) {
	logger := util.NewLogger(zerolog.InfoLevel)

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	cfg := loadConfig(logger)
	database := openDatabase(logger)
	defer closeDatabase(logger, database)

	var answerer interfaces.AnswerGenerator
	if queryAnswer || queryAnswerModel != "" {
		generator, err := answerers.NewOpenAIAnswerer()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create answer generator")
		}
		answerer = generator
	}

	retriever := services.NewRetriever(
		cfg,
		repository.NewChunkRepository(database),
		repository.NewQueryLogRepository(database),
		newEmbedder(logger, cfg),
		answerer,
		newIndexManager(cfg, repository.NewEmbeddingRepository(database)),
	)

	opts := services.SearchOptions{}
	if answerer != nil {
		model := queryAnswerModel
		if model == "" {
			model = cfg.Generation.AnswerModel
		}
		opts.AnswerModel = &model
	}
	if queryUserID != 0 {
		opts.UserID = &queryUserID
	}

	result, err := retriever.Search(ctx, queryText, queryK, opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("Query failed")
	}

	jsonOutput, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to marshal JSON")
	}
	logger.Info().RawJSON("result", jsonOutput).Msg("Query completed successfully")
}
