package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/rs/zerolog"
)

var (
	ErrMissingPMID  = errors.New("metadata requires a pmid")
	ErrInvalidPMID  = errors.New("pmid must be an integer")
	ErrMissingTitle = errors.New("metadata requires a title")
	ErrNoUsableRows = errors.New("no usable rows found in metadata CSV")
)

// CSV column names as exported by PubMed.
const (
	colPMID        = "PMID"
	colTitle       = "Title"
	colAuthors     = "Authors"
	colCitation    = "Citation"
	colFirstAuthor = "First Author"
	colJournal     = "Journal/Book"
	colPubYear     = "Publication Year"
	colCreateDate  = "Create Date"
	colPMCID       = "PMCID"
	colNIHMSID     = "NIHMS ID"
	colDOI         = "DOI"
)

// Dates in PubMed exports appear with either slash or dash separators.
var dateFormats = []string{"2006/01/02", "2006-01-02"}

var authorSeparators = regexp.MustCompile(`[;,]`)

// LoadCSV parses a PubMed metadata export into Article records. Rows without
// a parseable PMID are skipped with a warning; a file with zero usable rows
// is an error.
func LoadCSV(path string) ([]models.Article, error) {
	logger := util.NewLogger(zerolog.ErrorLevel)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("metadata CSV %s: %w", path, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close metadata CSV")
		}
	}()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("metadata CSV %s: %w", path, err)
	}
	// Excel exports prefix the first header cell with a UTF-8 BOM.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	var articles []models.Article
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("metadata CSV %s: %w", path, err)
		}

		field := func(name string) string {
			idx, ok := columns[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		pmid, err := strconv.ParseInt(field(colPMID), 10, 64)
		if err != nil {
			logger.Warn().Str("pmid", field(colPMID)).Msg("Skipping row with invalid PMID")
			continue
		}

		title := field(colTitle)
		if title == "" {
			title = fmt.Sprintf("PMID %d", pmid)
		}

		articles = append(articles, models.Article{
			PMID:            pmid,
			Title:           title,
			Authors:         SplitAuthors(field(colAuthors)),
			Citation:        optionalString(field(colCitation)),
			FirstAuthor:     optionalString(field(colFirstAuthor)),
			Journal:         optionalString(field(colJournal)),
			PublicationYear: optionalInt(field(colPubYear)),
			CreateDate:      parseDate(field(colCreateDate), logger),
			PMCID:           optionalString(field(colPMCID)),
			NIHMSID:         optionalString(field(colNIHMSID)),
			DOI:             optionalString(strings.ToLower(field(colDOI))),
		})
	}

	if len(articles) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoUsableRows, path)
	}
	return articles, nil
}

// ArticleFields holds raw form-style metadata for a single article.
type ArticleFields struct {
	PMID            string
	Title           string
	Authors         string
	DOI             string
	Journal         string
	PublicationYear string
	CreateDate      string
	Citation        string
	FirstAuthor     string
	PMCID           string
	NIHMSID         string
}

// NewArticle validates form-style metadata fields and builds an Article.
// PMID and title are required; the first author defaults to the first entry
// of the authors list.
func NewArticle(fields ArticleFields) (*models.Article, error) {
	if strings.TrimSpace(fields.PMID) == "" {
		return nil, ErrMissingPMID
	}
	pmid, err := strconv.ParseInt(strings.TrimSpace(fields.PMID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPMID, fields.PMID)
	}
	if strings.TrimSpace(fields.Title) == "" {
		return nil, ErrMissingTitle
	}

	authors := SplitAuthors(fields.Authors)
	firstAuthor := optionalString(strings.TrimSpace(fields.FirstAuthor))
	if firstAuthor == nil && len(authors) > 0 {
		firstAuthor = &authors[0]
	}

	logger := util.NewLogger(zerolog.ErrorLevel)
	return &models.Article{
		PMID:            pmid,
		Title:           strings.TrimSpace(fields.Title),
		Authors:         authors,
		Citation:        optionalString(strings.TrimSpace(fields.Citation)),
		FirstAuthor:     firstAuthor,
		Journal:         optionalString(strings.TrimSpace(fields.Journal)),
		PublicationYear: optionalInt(strings.TrimSpace(fields.PublicationYear)),
		CreateDate:      parseDate(strings.TrimSpace(fields.CreateDate), logger),
		PMCID:           optionalString(strings.TrimSpace(fields.PMCID)),
		NIHMSID:         optionalString(strings.TrimSpace(fields.NIHMSID)),
		DOI:             optionalString(strings.ToLower(strings.TrimSpace(fields.DOI))),
	}, nil
}

// SplitAuthors splits a comma- or semicolon-separated author string into
// cleaned names, dropping empty segments and trailing periods.
func SplitAuthors(value string) []string {
	if value == "" {
		return nil
	}
	var authors []string
	for _, segment := range authorSeparators.Split(value, -1) {
		name := strings.TrimSuffix(strings.TrimSpace(segment), ".")
		if name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}

// parseDate converts supported date formats to ISO (YYYY-MM-DD); unparseable
// values are logged and dropped.
func parseDate(value string, logger zerolog.Logger) *string {
	if value == "" {
		return nil
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, value); err == nil {
			iso := t.Format("2006-01-02")
			return &iso
		}
	}
	logger.Warn().Str("value", value).Msg("Could not parse date value")
	return nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func optionalInt(value string) *int {
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil
	}
	return &n
}
