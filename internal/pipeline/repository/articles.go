package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
	"github.com/code-sleuth/pubmedflo-go/pkg/db"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/rs/zerolog"
)

var ErrArticleNotFound = errors.New("article not found")

// ArticleRepository persists bibliographic records and their author lists.
type ArticleRepository struct {
	db     *db.DB
	logger zerolog.Logger
}

func NewArticleRepository(database *db.DB) *ArticleRepository {
	return &ArticleRepository{
		db:     database,
		logger: util.NewLogger(zerolog.ErrorLevel),
	}
}

// Upsert writes all articles in a single transaction. Existing rows are
// updated in place and their author lists replaced, so re-running an
// ingestion with a revised metadata file converges on the new values.
func (r *ArticleRepository) Upsert(ctx context.Context, articles []models.Article) error {
	if len(articles) == 0 {
		return nil
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for i := range articles {
			if err := upsertArticleTx(ctx, tx, &articles[i]); err != nil {
				r.logger.Error().Err(err).Int64("pmid", articles[i].PMID).Msg("failed to upsert article")
				return err
			}
		}
		return nil
	})
}

func upsertArticleTx(ctx context.Context, tx *sql.Tx, article *models.Article) error {
	query := `INSERT INTO articles (pmid, title, citation, first_author, journal,
			publication_year, create_date, pmcid, nihmsid, doi, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (pmid) DO UPDATE SET
			title = excluded.title,
			citation = excluded.citation,
			first_author = excluded.first_author,
			journal = excluded.journal,
			publication_year = excluded.publication_year,
			create_date = excluded.create_date,
			pmcid = excluded.pmcid,
			nihmsid = excluded.nihmsid,
			doi = excluded.doi,
			updated_at = CURRENT_TIMESTAMP`

	_, err := tx.ExecContext(ctx, query,
		article.PMID, article.Title, article.Citation, article.FirstAuthor,
		article.Journal, article.PublicationYear, article.CreateDate,
		article.PMCID, article.NIHMSID, article.DOI)
	if err != nil {
		return fmt.Errorf("failed to upsert article %d: %w", article.PMID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM article_authors WHERE pmid = ?`, article.PMID); err != nil {
		return fmt.Errorf("failed to clear authors for article %d: %w", article.PMID, err)
	}
	for position, name := range article.Authors {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO article_authors (pmid, position, author_name) VALUES (?, ?, ?)`,
			article.PMID, position, name)
		if err != nil {
			return fmt.Errorf("failed to insert author for article %d: %w", article.PMID, err)
		}
	}
	return nil
}

// GetByPMID loads one article with its ordered author list.
func (r *ArticleRepository) GetByPMID(ctx context.Context, pmid int64) (*models.Article, error) {
	query := `SELECT pmid, title, citation, first_author, journal, publication_year,
			create_date, pmcid, nihmsid, doi
		FROM articles WHERE pmid = ?`

	var article models.Article
	err := r.db.QueryRowContext(ctx, query, pmid).Scan(
		&article.PMID, &article.Title, &article.Citation, &article.FirstAuthor,
		&article.Journal, &article.PublicationYear, &article.CreateDate,
		&article.PMCID, &article.NIHMSID, &article.DOI)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article %d: %w", pmid, err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT author_name FROM article_authors WHERE pmid = ? ORDER BY position`, pmid)
	if err != nil {
		return nil, fmt.Errorf("failed to get authors for article %d: %w", pmid, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Error().Err(err).Msg("failed to close rows")
		}
	}()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		article.Authors = append(article.Authors, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &article, nil
}
