package answerers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
)

func TestNewOpenAIAnswererMissingKey(t *testing.T) {
	originalAPIKey := os.Getenv("OPENAI_API_KEY")
	defer os.Setenv("OPENAI_API_KEY", originalAPIKey)
	os.Setenv("OPENAI_API_KEY", "")

	_, err := NewOpenAIAnswerer()
	if !errors.Is(err, ErrAPIKeyNotSet) {
		t.Errorf("expected ErrAPIKeyNotSet, got %v", err)
	}
}

func TestGenerate(t *testing.T) {
	originalAPIKey := os.Getenv("OPENAI_API_KEY")
	defer os.Setenv("OPENAI_API_KEY", originalAPIKey)
	os.Setenv("OPENAI_API_KEY", "test-api-key")

	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := chatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message chatMessage `json:"message"`
		}{Message: chatMessage{Role: "assistant", Content: "  The answer is 42. [1]  "}})
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	answerer, err := NewOpenAIAnswererWithClient(server.Client(), server.URL)
	if err != nil {
		t.Fatalf("failed to create answerer: %v", err)
	}

	chunks := []models.RetrievedChunk{
		{ChunkID: 1, PMID: 12345, Text: "mitochondria are the powerhouse of the cell"},
	}
	answer, err := answerer.Generate(context.Background(), "what is the powerhouse?", chunks, "")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if answer == nil || *answer != "The answer is 42. [1]" {
		t.Errorf("unexpected answer: %v", answer)
	}
	if gotReq.Model != defaultAnswerModel {
		t.Errorf("model = %s, want %s", gotReq.Model, defaultAnswerModel)
	}
	if len(gotReq.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(gotReq.Messages))
	}
	if !strings.Contains(gotReq.Messages[1].Content, "PMID 12345") {
		t.Errorf("user message missing chunk context: %s", gotReq.Messages[1].Content)
	}
	if !strings.Contains(gotReq.Messages[1].Content, "what is the powerhouse?") {
		t.Errorf("user message missing question: %s", gotReq.Messages[1].Content)
	}
}

func TestGenerateAPIError(t *testing.T) {
	originalAPIKey := os.Getenv("OPENAI_API_KEY")
	defer os.Setenv("OPENAI_API_KEY", originalAPIKey)
	os.Setenv("OPENAI_API_KEY", "test-api-key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "server error", http.StatusInternalServerError)
	}))
	defer server.Close()

	answerer, err := NewOpenAIAnswererWithClient(server.Client(), server.URL)
	if err != nil {
		t.Fatalf("failed to create answerer: %v", err)
	}

	_, err = answerer.Generate(context.Background(), "question", nil, "gpt-4o-mini")
	if !errors.Is(err, ErrAPIRequestFailed) {
		t.Errorf("expected ErrAPIRequestFailed, got %v", err)
	}
}
