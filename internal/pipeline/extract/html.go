package extract

import (
	"os"

	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/rs/zerolog"
)

// HTMLExtractor converts HTML documents to markdown-formatted plain text.
type HTMLExtractor struct {
	converter *md.Converter
	logger    zerolog.Logger
}

func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{
		converter: md.NewConverter("", true, nil),
		logger:    util.NewLogger(zerolog.ErrorLevel),
	}
}

func (h *HTMLExtractor) Extensions() []string {
	return []string{".html", ".htm"}
}

func (h *HTMLExtractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text, err := h.converter.ConvertString(string(content))
	if err != nil {
		h.logger.Error().Err(err).Str("path", path).Msg("Failed to convert HTML")
		return "", err
	}
	return text, nil
}
