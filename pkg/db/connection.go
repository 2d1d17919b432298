package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"

	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/rs/zerolog"
	"github.com/tursodatabase/libsql-client-go/libsql"
)

var (
	ErrDatabaseURLRequired = errors.New("TURSO_DATABASE_URL environment variable is required")
	ErrAuthTokenRequired   = errors.New("TURSO_AUTH_TOKEN environment variable is required")
)

// DB wraps an explicitly constructed sql.DB handle. Callers own the
// open/close lifecycle; nothing in the pipeline reaches for a global pool.
type DB struct {
	*sql.DB
}

// Open connects to the libsql database identified by url and authToken.
func Open(url, authToken string) (*DB, error) {
	logger := util.NewLogger(zerolog.ErrorLevel)

	if strings.EqualFold(url, "") {
		logger.Error().Msg("database URL is empty")
		return nil, ErrDatabaseURLRequired
	}
	if strings.EqualFold(authToken, "") {
		logger.Error().Msg("database auth token is empty")
		return nil, ErrAuthTokenRequired
	}

	connector, err := libsql.NewConnector(url, libsql.WithAuthToken(authToken))
	if err != nil {
		logger.Err(err).Msg("failed to create connector")
		return nil, err
	}

	conn := sql.OpenDB(connector)
	if err := conn.Ping(); err != nil {
		logger.Err(err).Msg("failed to ping database")
		return nil, err
	}

	return &DB{DB: conn}, nil
}

// OpenFromEnv connects using TURSO_DATABASE_URL and TURSO_AUTH_TOKEN.
func OpenFromEnv() (*DB, error) {
	return Open(os.Getenv("TURSO_DATABASE_URL"), os.Getenv("TURSO_AUTH_TOKEN"))
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger := util.NewLogger(zerolog.ErrorLevel)
			logger.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}
	return tx.Commit()
}
