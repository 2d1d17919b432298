package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/code-sleuth/pubmedflo-go/pkg/db"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/rs/zerolog"
)

// QueryLogRepository records answered queries and which documents the
// retrieval drew from.
type QueryLogRepository struct {
	db     *db.DB
	logger zerolog.Logger
}

func NewQueryLogRepository(database *db.DB) *QueryLogRepository {
	return &QueryLogRepository{
		db:     database,
		logger: util.NewLogger(zerolog.ErrorLevel),
	}
}

// Log writes one query log row plus a deduplicated retrieves row per
// source document, returning the new query id.
func (r *QueryLogRepository) Log(ctx context.Context, queryText string, responseText *string, userID *int64, docIDs []int64) (int64, error) {
	var queryID int64
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO query_logs (query_text, response_text, user_id) VALUES (?, ?, ?)`,
			queryText, responseText, userID)
		if err != nil {
			return fmt.Errorf("failed to insert query log: %w", err)
		}
		queryID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read query log id: %w", err)
		}

		for _, docID := range docIDs {
			_, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO retrieves (query_id, doc_id) VALUES (?, ?)`,
				queryID, docID)
			if err != nil {
				return fmt.Errorf("failed to insert retrieve for document %d: %w", docID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.logger.Info().Int64("query_id", queryID).Int("documents", len(docIDs)).Msg("logged query")
	return queryID, nil
}
