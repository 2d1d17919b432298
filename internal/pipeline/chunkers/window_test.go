package chunkers

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "collapses whitespace runs",
			input:    "alpha \t beta\n\ngamma",
			expected: "alpha beta gamma",
		},
		{
			name:     "trims leading and trailing whitespace",
			input:    "  alpha beta  ",
			expected: "alpha beta",
		},
		{
			name:     "drops non-ascii characters",
			input:    "café résumé — done",
			expected: "caf rsum done",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "whitespace only",
			input:    " \n\t ",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"alpha beta gamma",
		"  mixed ü whitespace\t and  unicode  ",
		"already-normalized text stays put",
	}
	for _, input := range inputs {
		once := Normalize(input)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize is not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}

func TestChunkTextNoOverlap(t *testing.T) {
	chunks, err := ChunkText(1, "a b c d e f", 3, 0.0)
	if err != nil {
		t.Fatalf("ChunkText returned error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	if chunks[0].Text != "a b c" {
		t.Errorf("chunk 0 text = %q, want %q", chunks[0].Text, "a b c")
	}
	if chunks[1].Text != "d e f" {
		t.Errorf("chunk 1 text = %q, want %q", chunks[1].Text, "d e f")
	}
	for i, chunk := range chunks {
		if chunk.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, chunk.ChunkIndex)
		}
		if chunk.PMID != 1 {
			t.Errorf("chunk %d has pmid %d", i, chunk.PMID)
		}
	}
	// Non-overlapping windows must not share tokens.
	if chunks[0].EndOffset > chunks[1].StartOffset {
		t.Errorf("chunks overlap: chunk 0 ends at %d, chunk 1 starts at %d",
			chunks[0].EndOffset, chunks[1].StartOffset)
	}
}

func TestChunkTextWithOverlap(t *testing.T) {
	text := "t0 t1 t2 t3 t4 t5 t6 t7"
	chunks, err := ChunkText(1, text, 4, 0.5)
	if err != nil {
		t.Fatalf("ChunkText returned error: %v", err)
	}

	// step = max(1, floor(4 * 0.5)) = 2: windows start at tokens 0, 2, 4, 6.
	expected := []string{
		"t0 t1 t2 t3",
		"t2 t3 t4 t5",
		"t4 t5 t6 t7",
		"t6 t7",
	}
	if len(chunks) != len(expected) {
		t.Fatalf("expected %d chunks, got %d", len(expected), len(chunks))
	}
	for i, want := range expected {
		if chunks[i].Text != want {
			t.Errorf("chunk %d text = %q, want %q", i, chunks[i].Text, want)
		}
	}
}

func TestChunkTextOffsets(t *testing.T) {
	text := "alpha beta gamma delta"
	chunks, err := ChunkText(7, text, 2, 0.0)
	if err != nil {
		t.Fatalf("ChunkText returned error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		window := text[chunk.StartOffset:chunk.EndOffset]
		if window != chunk.Text {
			t.Errorf("chunk %d offsets [%d:%d] select %q, text is %q",
				i, chunk.StartOffset, chunk.EndOffset, window, chunk.Text)
		}
	}
}

func TestChunkTextDeterministic(t *testing.T) {
	text := strings.Repeat("token ", 100)
	first, err := ChunkText(42, text, 10, 0.2)
	if err != nil {
		t.Fatalf("ChunkText returned error: %v", err)
	}
	second, err := ChunkText(42, text, 10, 0.2)
	if err != nil {
		t.Fatalf("ChunkText returned error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between identical calls", i)
		}
	}
}

func TestChunkTextDenseOverlap(t *testing.T) {
	// An overlap ratio near 1 forces step = 1: one window per token start.
	chunks, err := ChunkText(1, "a b c d", 3, 0.99)
	if err != nil {
		t.Fatalf("ChunkText returned error: %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks with step 1, got %d", len(chunks))
	}
}

func TestChunkTextEmpty(t *testing.T) {
	chunks, err := ChunkText(1, "", 3, 0.0)
	if err != nil {
		t.Fatalf("ChunkText returned error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks for empty text, got %d", len(chunks))
	}
}

func TestChunkTextInvalidArgs(t *testing.T) {
	if _, err := ChunkText(1, "a b", 0, 0.0); err == nil {
		t.Error("expected error for zero chunk size")
	}
	if _, err := ChunkText(1, "a b", 3, -0.1); err == nil {
		t.Error("expected error for negative overlap ratio")
	}
	if _, err := ChunkText(1, "a b", 3, 1.5); err == nil {
		t.Error("expected error for overlap ratio above 1")
	}
}

func TestContentHashAndFingerprint(t *testing.T) {
	hash := ContentHash("alpha beta")
	if len(hash) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(hash))
	}
	if ContentHash("alpha beta") != hash {
		t.Error("ContentHash is not stable")
	}
	if ContentHash("alpha betb") == hash {
		t.Error("different texts produced the same hash")
	}

	fp := Fingerprint("alpha beta")
	if fp != hash[:16] {
		t.Errorf("Fingerprint = %q, want first 16 chars of content hash %q", fp, hash[:16])
	}
}
