package cmd

import (
	"context"
	"time"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/extract"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/repository"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/services"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var embedTimeout time.Duration

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed chunks that are missing or stale",
	Long: `Embed every stored chunk that has no vector under the configured
model, or whose text changed since it was last embedded. Vectors from
other models are purged first.`,
	Run: func(_ *cobra.Command, _ []string) {
		logger := util.NewLogger(zerolog.InfoLevel)

		ctx, cancel := context.WithTimeout(context.Background(), embedTimeout)
		defer cancel()

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

		if err := service.EmbedPending(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Embedding failed")
		}
		logger.Info().Msg("Embedding completed successfully!")
	},
}

func init() {
	rootCmd.AddCommand(embedCmd)
	embedCmd.Flags().DurationVar(&embedTimeout, "timeout", 10*time.Minute, "Timeout for the entire operation")
}
