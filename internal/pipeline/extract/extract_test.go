package extract

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestRegistryExtractText(t *testing.T) {
	registry := NewRegistry()
	path := writeFile(t, "doc.txt", "plain text body")

	text, err := registry.Extract(path)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if text != "plain text body" {
		t.Errorf("text = %q", text)
	}
}

func TestRegistryExtractHTML(t *testing.T) {
	registry := NewRegistry()
	path := writeFile(t, "doc.html", "<html><body><h1>Heading</h1><p>Paragraph text.</p></body></html>")

	text, err := registry.Extract(path)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if !strings.Contains(text, "Heading") || !strings.Contains(text, "Paragraph text.") {
		t.Errorf("converted text missing content: %q", text)
	}
}

func TestRegistryUnsupportedFormat(t *testing.T) {
	registry := NewRegistry()
	path := writeFile(t, "doc.docx", "binary")

	_, err := registry.Extract(path)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestRegistryNoTextExtracted(t *testing.T) {
	registry := NewRegistry()
	path := writeFile(t, "empty.txt", "   \n\t ")

	_, err := registry.Extract(path)
	if !errors.Is(err, ErrNoTextExtracted) {
		t.Errorf("expected ErrNoTextExtracted, got %v", err)
	}
}

func TestRegistrySupported(t *testing.T) {
	registry := NewRegistry()
	if !registry.Supported("a/b/paper.TXT") {
		t.Error("expected .TXT to be supported case-insensitively")
	}
	if registry.Supported("a/b/paper.pdf") {
		t.Error("expected .pdf to be unsupported")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	registry := NewRegistry()
	err := registry.Register(NewTextExtractor())
	if !errors.Is(err, ErrExtractorAlreadyRegistered) {
		t.Errorf("expected ErrExtractorAlreadyRegistered, got %v", err)
	}
}
