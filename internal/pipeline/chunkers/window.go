package chunkers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"strings"
	"unicode"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
)

var (
	ErrInvalidChunkSize    = errors.New("chunkSize must be positive")
	ErrInvalidOverlapRatio = errors.New("overlapRatio must be between 0 and 1")
)

// fingerprintLen is the number of hex characters of the content hash stored
// with an embedding for staleness detection.
const fingerprintLen = 16

// Normalize drops characters outside the portable ASCII range, collapses
// whitespace runs to a single space, and trims the result. Normalizing
// already-normalized text is a no-op.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r < unicode.MaxASCII+1 {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ContentHash returns the SHA-256 hex digest of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns the short form of ContentHash used to detect whether a
// chunk's text changed since it was last embedded.
func Fingerprint(text string) string {
	return ContentHash(text)[:fingerprintLen]
}

// tokenSpan records the character positions of one whitespace-delimited token.
type tokenSpan struct {
	start int
	end   int
}

func tokenSpans(text string) []tokenSpan {
	var spans []tokenSpan
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, tokenSpan{start: start, end: i})
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, tokenSpan{start: start, end: len(text)})
	}
	return spans
}

// ChunkText splits normalized text into overlapping token windows. Each chunk
// records its ordinal index, the character span of its first and last token,
// and a stable hash of its rejoined text. Identical inputs always produce
// identical chunks. Zero tokens yield an empty result, which callers treat as
// an ingestion failure.
//
// The step is max(1, floor(chunkSize * (1 - overlapRatio))); an overlap ratio
// approaching 1 therefore produces a dense sliding window with step 1, which
// is accepted as-is.
func ChunkText(pmid int64, text string, chunkSize int, overlapRatio float64) ([]models.Chunk, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if overlapRatio < 0 || overlapRatio > 1 {
		return nil, ErrInvalidOverlapRatio
	}

	spans := tokenSpans(text)
	if len(spans) == 0 {
		return nil, nil
	}

	step := int(math.Floor(float64(chunkSize) * (1 - overlapRatio)))
	if step < 1 {
		step = 1
	}

	var chunks []models.Chunk
	chunkIndex := 0
	for start := 0; start < len(spans); start += step {
		end := start + chunkSize
		if end > len(spans) {
			end = len(spans)
		}

		window := make([]string, 0, end-start)
		for _, span := range spans[start:end] {
			window = append(window, text[span.start:span.end])
		}
		chunkText := strings.Join(window, " ")

		chunks = append(chunks, models.Chunk{
			PMID:        pmid,
			ChunkIndex:  chunkIndex,
			Text:        chunkText,
			StartOffset: spans[start].start,
			EndOffset:   spans[end-1].end,
			ContentHash: ContentHash(chunkText),
		})
		chunkIndex++
	}

	return chunks, nil
}
