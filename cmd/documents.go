package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/repository"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	deleteDocID  int64
	deleteUserID int64
	deleteAdmin  bool
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage documents",
	Long:  `Manage ingested documents - list and delete.`,
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all documents with chunk and embedding counts",
	Run: func(_ *cobra.Command, _ []string) {
		logger := util.NewLogger(zerolog.ErrorLevel)

		database := openDatabase(logger)
		defer closeDatabase(logger, database)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		summaries, err := repository.NewDocumentRepository(database).List(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to list documents")
		}
		if len(summaries) == 0 {
			logger.Info().Msg("No documents found")
			return
		}

		jsonOutput, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to marshal JSON")
		}
		logger.Info().RawJSON("documents", jsonOutput).Msg("Documents retrieved successfully")
	},
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a document and its article, chunks, and embeddings",
	Long: `Delete a document by id. The delete is allowed for the user who
added the document, for an admin (--admin), or for anyone when the
document has no recorded owner.`,
	Run: func(_ *cobra.Command, _ []string) {
		logger := util.NewLogger(zerolog.ErrorLevel)

		database := openDatabase(logger)
		defer closeDatabase(logger, database)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		documents := repository.NewDocumentRepository(database)
		err := documents.Delete(ctx, deleteDocID, repository.OwnerOrAdmin(deleteUserID, deleteAdmin))
		if errors.Is(err, repository.ErrDocumentNotFound) {
			logger.Error().Int64("doc_id", deleteDocID).Msg("Document not found")
			os.Exit(1)
		}
		if errors.Is(err, repository.ErrDeleteForbidden) {
			logger.Error().Int64("doc_id", deleteDocID).Int64("user", deleteUserID).Msg("Delete not allowed")
			os.Exit(1)
		}
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to delete document")
		}

		logger.Info().Int64("doc_id", deleteDocID).Msg("Document deleted successfully")
	},
}

func init() {
	rootCmd.AddCommand(documentsCmd)
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)

	documentsDeleteCmd.Flags().Int64Var(&deleteDocID, "id", 0, "Document id to delete (required)")
	documentsDeleteCmd.Flags().Int64Var(&deleteUserID, "user", 0, "User id performing the delete")
	documentsDeleteCmd.Flags().BoolVar(&deleteAdmin, "admin", false, "Delete with admin privileges")

	if err := documentsDeleteCmd.MarkFlagRequired("id"); err != nil {
		return
	}
}
