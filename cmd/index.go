package cmd

import (
	"context"
	"time"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/repository"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/vectorindex"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	indexForce   bool
	indexTimeout time.Duration
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or refresh the vector index",
	Long: `Ensure the on-disk vector index matches the configured model and
metric, rebuilding it from the stored embeddings when it is missing or
stale. Use --force to rebuild unconditionally.`,
	Run: func(_ *cobra.Command, _ []string) {
		logger := util.NewLogger(zerolog.InfoLevel)

		ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
		defer cancel()

		cfg := loadConfig(logger)
		database := openDatabase(logger)
		defer closeDatabase(logger, database)

		embedder := newEmbedder(logger, cfg)
		manager := newIndexManager(cfg, repository.NewEmbeddingRepository(database))

		metric, err := vectorindex.ParseMetric(cfg.Metric())
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid metric")
		}

		if indexForce {
			err = manager.Build(ctx, embedder.GetModelName(), embedder.GetDimension(), metric)
		} else {
			err = manager.EnsureFresh(ctx, embedder.GetModelName(), embedder.GetDimension(), metric)
		}
		if err != nil {
			logger.Fatal().Err(err).Msg("Index build failed")
		}

		meta, err := manager.Meta()
		if err != nil || meta == nil {
			logger.Fatal().Err(err).Msg("Failed to read index meta")
		}
		logger.Info().
			Str("model", meta.ModelName).
			Str("metric", meta.Metric).
			Int("chunks", meta.ChunkCount).
			Time("updated_at", meta.UpdatedAt).
			Msg("Index is ready")
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "Rebuild even if the index is fresh")
	indexCmd.Flags().DurationVar(&indexTimeout, "timeout", 10*time.Minute, "Timeout for the entire operation")
}
