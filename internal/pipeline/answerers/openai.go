package answerers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"
	"github.com/rs/zerolog"
)

var (
	ErrAPIKeyNotSet     = errors.New("OPENAI_API_KEY environment variable not set")
	ErrAPIRequestFailed = errors.New("API request failed")
	ErrNoChoices        = errors.New("no choices in API response")
)

const (
	defaultAnswerModel = "gpt-4o-mini"
	maxContextChunks   = 8
)

// OpenAIAnswerer generates grounded answers from retrieved chunks using
// the OpenAI chat completions API.
type OpenAIAnswerer struct {
	apiKey     string
	httpClient *http.Client
	apiURL     string
	logger     zerolog.Logger
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func NewOpenAIAnswerer() (*OpenAIAnswerer, error) {
	return NewOpenAIAnswererWithClient(&http.Client{Timeout: 60 * time.Second}, "https://api.openai.com/v1/chat/completions")
}

func NewOpenAIAnswererWithClient(httpClient *http.Client, apiURL string) (*OpenAIAnswerer, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return &OpenAIAnswerer{
		apiKey:     apiKey,
		httpClient: httpClient,
		apiURL:     apiURL,
		logger:     util.NewLogger(zerolog.ErrorLevel),
	}, nil
}

// Generate produces an answer to queryText grounded in the retrieved
// chunks. The returned string is nil only on error; callers treat
// generation failure as non-fatal.
func (a *OpenAIAnswerer) Generate(ctx context.Context, queryText string, chunks []models.RetrievedChunk, modelName string) (*string, error) {
	if modelName == "" {
		modelName = defaultAnswerModel
	}

	var sb strings.Builder
	for i, chunk := range chunks {
		if i >= maxContextChunks {
			break
		}
		fmt.Fprintf(&sb, "[%d] (PMID %d) %s\n\n", i+1, chunk.PMID, chunk.Text)
	}

	reqBody := chatRequest{
		Model: modelName,
		Messages: []chatMessage{
			{
				Role: "system",
				Content: "You answer questions about scientific articles using only the provided excerpts. " +
					"Cite excerpts by their bracketed number. If the excerpts do not contain the answer, say so.",
			},
			{
				Role:    "user",
				Content: fmt.Sprintf("Excerpts:\n\n%sQuestion: %s", sb.String(), queryText),
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Error().Err(err).Msg("failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		a.logger.Error().
			Int("status_code", resp.StatusCode).
			Str("model", modelName).
			Msg("chat completion request failed")
		return nil, fmt.Errorf("%w with status %d: %s", ErrAPIRequestFailed, resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	answer := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	return &answer, nil
}
