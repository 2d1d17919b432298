package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/interfaces"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/rs/zerolog"
)

var (
	ErrUnsupportedFormat          = errors.New("unsupported file format")
	ErrNoTextExtracted            = errors.New("no text extracted from document")
	ErrExtractorAlreadyRegistered = errors.New("extractor already registered for extension")
)

// Registry dispatches text extraction by file extension.
type Registry struct {
	extractors map[string]interfaces.Extractor
	logger     zerolog.Logger
}

// NewRegistry returns a registry with the default extractors installed.
func NewRegistry() *Registry {
	r := &Registry{
		extractors: make(map[string]interfaces.Extractor),
		logger:     util.NewLogger(zerolog.ErrorLevel),
	}
	// Registration of the built-in extractors cannot collide.
	_ = r.Register(NewTextExtractor())
	_ = r.Register(NewHTMLExtractor())
	return r
}

// Register adds an extractor for each extension it claims.
func (r *Registry) Register(extractor interfaces.Extractor) error {
	for _, ext := range extractor.Extensions() {
		ext = strings.ToLower(ext)
		if _, exists := r.extractors[ext]; exists {
			r.logger.Error().Str("extension", ext).Msg("Extractor already registered")
			return fmt.Errorf("%w: %s", ErrExtractorAlreadyRegistered, ext)
		}
		r.extractors[ext] = extractor
	}
	return nil
}

// Supported reports whether path has an extension some extractor handles.
func (r *Registry) Supported(path string) bool {
	_, ok := r.extractors[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extract reads the document at path with the extractor matching its
// extension.
func (r *Registry) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	extractor, ok := r.extractors[ext]
	if !ok {
		r.logger.Error().Str("path", path).Str("extension", ext).Msg("No extractor for file")
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	text, err := extractor.Extract(path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrNoTextExtracted, path)
	}
	return text, nil
}

// TextExtractor reads plain-text documents directly.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

func (t *TextExtractor) Extensions() []string {
	return []string{".txt"}
}

func (t *TextExtractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}
