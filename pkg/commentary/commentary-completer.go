package commentary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Supported completion providers.
const (
	OpenAI = "openai"
	Gemini = "gemini"
)

var ErrMissingKey = errors.New("LLM API key is required")

// Prompt is a single completion request.
type Prompt struct {
	System string
	User   string
	// JSON asks the provider for a JSON object instead of free text
	JSON      bool
	MaxTokens int
}

// Completer is a large language model able to answer a single prompt.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

type Config struct {
	// Provider is either OpenAI or Gemini
	Provider string
	APIKey   string
	Model    string
	// BaseURL overrides the provider's endpoint, for compatible gateways
	BaseURL string
	Timeout time.Duration
}

// NewCompleter builds the configured provider's client; a missing key is an error.
func NewCompleter(ctx context.Context, cfg Config) (Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingKey
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	switch strings.ToLower(cfg.Provider) {
	case OpenAI, "":
		return NewOpenAIClient(cfg)
	case Gemini:
		return NewGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
