package metadata

import (
	"errors"
	"strings"
	"testing"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
)

func strPtr(s string) *string {
	return &s
}

func TestResolverLiteralDOI(t *testing.T) {
	candidates := []models.Article{
		{PMID: 1, Title: "Central diabetes insipidus in adults", DOI: strPtr("10.1/abc")},
		{PMID: 2, Title: "An unrelated survey of anything"},
	}
	resolver := NewResolver(candidates)

	// The second candidate's title also appears, but a literal DOI hit wins.
	text := "An unrelated survey of anything ... see doi 10.1/abc for details"
	article, err := resolver.Resolve("paper.txt", text)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if article.PMID != 1 {
		t.Errorf("expected PMID 1 via literal DOI, got %d", article.PMID)
	}
}

func TestResolverLiteralDOICaseInsensitive(t *testing.T) {
	candidates := []models.Article{
		{PMID: 3, Title: "Some paper", DOI: strPtr("10.1234/abcd.ef")},
	}
	resolver := NewResolver(candidates)

	article, err := resolver.Resolve("paper.txt", "header DOI: 10.1234/ABCD.EF footer")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if article.PMID != 3 {
		t.Errorf("expected PMID 3, got %d", article.PMID)
	}
}

func TestResolverDOIToken(t *testing.T) {
	candidates := []models.Article{
		{PMID: 4, Title: "Tokenized paper", DOI: strPtr("10.5555/j.issn.1000-1234")},
	}
	resolver := NewResolver(candidates)

	// PDF extraction mangled the punctuation; only the token form survives.
	text := "running head 10 5555 j issn 1000 1234 page 1"
	article, err := resolver.Resolve("mangled.txt", text)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if article.PMID != 4 {
		t.Errorf("expected PMID 4 via DOI token, got %d", article.PMID)
	}
}

func TestResolverTitleMatch(t *testing.T) {
	candidates := []models.Article{
		{PMID: 5, Title: "Treatment"},
		{PMID: 6, Title: "Treatment of central diabetes insipidus"},
	}
	resolver := NewResolver(candidates)

	text := "Treatment of central diabetes insipidus. J Endocrine 2019."
	article, err := resolver.Resolve("paper.txt", text)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	// The longer, more specific title scores higher than its prefix.
	if article.PMID != 6 {
		t.Errorf("expected PMID 6, got %d", article.PMID)
	}
}

func TestResolverTitlePositionPenalty(t *testing.T) {
	candidates := []models.Article{
		{PMID: 7, Title: "first matching title"},
		{PMID: 8, Title: "other matching title"},
	}
	resolver := NewResolver(candidates)

	// Equal-length titles: the one occurring earlier wins.
	text := "other matching title and much later first matching title"
	article, err := resolver.Resolve("paper.txt", text)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if article.PMID != 8 {
		t.Errorf("expected PMID 8 (earlier occurrence), got %d", article.PMID)
	}
}

func TestResolverScanWindow(t *testing.T) {
	candidates := []models.Article{
		{PMID: 9, Title: "Needle title far beyond the window"},
	}
	resolver := NewResolver(candidates)

	// The title only appears past the 20,000-character scan window.
	text := strings.Repeat("x ", 12000) + "Needle title far beyond the window"
	_, err := resolver.Resolve("long.txt", text)
	if !errors.Is(err, ErrNoMetadataMatch) {
		t.Errorf("expected ErrNoMetadataMatch, got %v", err)
	}
}

func TestResolverNoMatch(t *testing.T) {
	candidates := []models.Article{
		{PMID: 10, Title: "Completely different paper", DOI: strPtr("10.9/xyz")},
	}
	resolver := NewResolver(candidates)

	_, err := resolver.Resolve("mystery.txt", "nothing in here matches anything")
	if !errors.Is(err, ErrNoMetadataMatch) {
		t.Fatalf("expected ErrNoMetadataMatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "mystery.txt") {
		t.Errorf("error should name the document: %v", err)
	}
}

func TestNormalizeForMatch(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"10.1/ABC", "101abc"},
		{"Hello, World!", "helloworld"},
		{"", ""},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := normalizeForMatch(tt.input); got != tt.expected {
			t.Errorf("normalizeForMatch(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
