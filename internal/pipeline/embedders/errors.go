package embedders

import "errors"

var (
	ErrAPIKeyNotSet       = errors.New("API key not set")
	ErrUnsupportedModel   = errors.New("unsupported model")
	ErrNoInputTexts       = errors.New("no input texts provided")
	ErrAPIRequestFailed   = errors.New("API request failed")
	ErrNoEmbeddingData    = errors.New("no embedding data in response")
	ErrEmbeddingCount     = errors.New("embedding count does not match input count")
	ErrTokenLimitExceeded = errors.New("input exceeds model token limit")
)
