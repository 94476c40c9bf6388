package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Request is the normalized prompt sent to the brain.
type Request struct {
	RequestID string   `json:"request_id"`
	Model     string   `json:"model,omitempty"`
	Prompt    string   `json:"prompt"`
	Strategy  string   `json:"strategy,omitempty"`
	Context   []string `json:"context,omitempty"`
	MaxChars  int      `json:"max_chars,omitempty"`
}

// Response is the brain's completed answer.
type Response struct {
	Text string `json:"text"`
}

// Adapter bridges the reply pipeline with a language model backend.
type Adapter interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Config controls adapter construction.
type Config struct {
	Mode    string
	HTTPURL string
	APIKey  string
	Timeout time.Duration
}

func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPAdapterWithOptions(cfg.HTTPURL, cfg.APIKey, cfg.Timeout), nil
		}
		return NewMockAdapter(), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("brain HTTP url is required for http mode")
		}
		return NewHTTPAdapterWithOptions(cfg.HTTPURL, cfg.APIKey, cfg.Timeout), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported brain adapter mode %q", cfg.Mode)
	}
}
