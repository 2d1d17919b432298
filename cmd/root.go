package cmd

import (
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/config"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/embedders"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/repository"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/vectorindex"
	"github.com/code-sleuth/pubmedflo-go/pkg/db"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pubmedflo",
	Short: "A CLI tool for indexing and querying scientific articles",
	Long: `pubmedflo ingests scientific article files, resolves them against
PubMed metadata, chunks and embeds their text, and answers queries
against the resulting vector index.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger := util.NewLogger(zerolog.ErrorLevel)
		logger.Fatal().Err(err).Msg("command failed")
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "pipeline.yaml", "Path to the pipeline config file")
}

func initConfig() {
	logger := util.NewLogger(zerolog.ErrorLevel)
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("No .env file found, using ambient environment")
	}
}

// loadConfig reads the pipeline config, falling back to defaults when
// the file is absent.
func loadConfig(logger zerolog.Logger) *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("config", configPath).Msg("Failed to load config")
	}
	return cfg
}

func openDatabase(logger zerolog.Logger) *db.DB {
	database, err := db.OpenFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	return database
}

func closeDatabase(logger zerolog.Logger, database *db.DB) {
	if err := database.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close database connection")
	}
}

func newEmbedder(logger zerolog.Logger, cfg *config.Config) *embedders.OpenAIEmbedder {
	embedder, err := embedders.NewOpenAIEmbedder(cfg.Embed.Model)
	if err != nil {
		logger.Fatal().Err(err).Str("model", cfg.Embed.Model).Msg("Failed to create embedder")
	}
	return embedder
}

func newIndexManager(cfg *config.Config, embeddings *repository.EmbeddingRepository) *vectorindex.Manager {
	return vectorindex.NewManager(vectorindex.NewArtifactSet(cfg.Index.Dir), embeddings, nil)
}
