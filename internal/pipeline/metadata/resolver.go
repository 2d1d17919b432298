package metadata

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/rs/zerolog"
)

var ErrNoMetadataMatch = errors.New("unable to resolve metadata for document")

// maxTextWindow bounds how many characters of a document are scanned while
// matching it against candidate metadata.
const maxTextWindow = 20000

// titlePositionPenalty discounts title matches that appear later in the
// scanned text.
const titlePositionPenalty = 0.01

type candidateKey struct {
	key     string
	article *models.Article
}

// Resolver matches document text to one of a fixed set of candidate articles.
// Construct one per ingestion batch.
type Resolver struct {
	literalDOIs []candidateKey // lowercase DOI as published
	doiTokens   []candidateKey // DOI with all non-alphanumerics stripped
	titles      []candidateKey // normalized titles, longest first
	logger      zerolog.Logger
}

// NewResolver builds lookup structures over the candidate articles. Candidate
// order is preserved so resolution is deterministic; titles are additionally
// sorted longest-first so the most specific title is checked before more
// generic ones.
func NewResolver(articles []models.Article) *Resolver {
	r := &Resolver{
		logger: util.NewLogger(zerolog.ErrorLevel),
	}

	for i := range articles {
		article := &articles[i]
		if article.DOI != nil && *article.DOI != "" {
			doi := strings.ToLower(strings.TrimSpace(*article.DOI))
			r.literalDOIs = append(r.literalDOIs, candidateKey{key: doi, article: article})
			if token := normalizeForMatch(doi); token != "" {
				r.doiTokens = append(r.doiTokens, candidateKey{key: token, article: article})
			}
		}
		if article.Title != "" {
			if title := normalizeForMatch(article.Title); title != "" {
				r.titles = append(r.titles, candidateKey{key: title, article: article})
			}
		}
	}

	sort.SliceStable(r.titles, func(i, j int) bool {
		return len(r.titles[i].key) > len(r.titles[j].key)
	})

	return r
}

// Resolve identifies the article a document's text belongs to. Only the first
// maxTextWindow characters are examined. Strategies apply in strict priority
// order: literal DOI substring, punctuation-stripped DOI token, then
// best-scoring title match. The resolver never falls back to a sole remaining
// candidate; that policy belongs to the ingestion caller.
func (r *Resolver) Resolve(documentName, text string) (*models.Article, error) {
	window := text
	if len(window) > maxTextWindow {
		window = window[:maxTextWindow]
	}

	lowered := strings.ToLower(window)
	for _, entry := range r.literalDOIs {
		if strings.Contains(lowered, entry.key) {
			r.logger.Debug().Str("document", documentName).Str("doi", entry.key).Msg("Resolved by literal DOI")
			return entry.article, nil
		}
	}

	normalized := normalizeForMatch(window)
	for _, entry := range r.doiTokens {
		if strings.Contains(normalized, entry.key) {
			r.logger.Debug().Str("document", documentName).Str("doi_token", entry.key).Msg("Resolved by DOI token")
			return entry.article, nil
		}
	}

	if article := r.matchTitle(normalized); article != nil {
		r.logger.Debug().Str("document", documentName).Str("title", article.Title).Msg("Resolved by title")
		return article, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNoMetadataMatch, documentName)
}

// matchTitle scores each candidate title found in the normalized window as
// its length minus a small penalty per character of offset; ties keep the
// candidate appearing earlier in the longest-first order.
func (r *Resolver) matchTitle(normalized string) *models.Article {
	var best *models.Article
	bestScore := 0.0
	for _, entry := range r.titles {
		pos := strings.Index(normalized, entry.key)
		if pos < 0 {
			continue
		}
		score := float64(len(entry.key)) - titlePositionPenalty*float64(pos)
		if best == nil || score > bestScore {
			best = entry.article
			bestScore = score
		}
	}
	return best
}

// normalizeForMatch lowercases and strips everything but letters and digits,
// which lets DOIs and titles survive PDF-extraction punctuation noise.
func normalizeForMatch(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range strings.ToLower(value) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
