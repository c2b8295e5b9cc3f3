// Package reasoning wraps the language-model backends behind a single
// Reasoner interface. Backends classify their failures into ErrTransient
// (safe to retry) and ErrRefused (the model declined); anything else is a
// hard failure that retrying will not fix.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/bloodlens/internal/analysis"
)

var (
	// ErrTransient marks failures worth retrying: rate limits, 5xx, timeouts
	// and dropped connections.
	ErrTransient = analysis.NewKindError("reasoning service unavailable", analysis.KindTransient)
	// ErrRefused marks responses the model declined to produce.
	ErrRefused = analysis.NewKindError("reasoning service refused", analysis.KindRefused)
)

// Provider names.
const (
	ProviderGemini     = "gemini"
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderDummy      = "dummy"
)

// Providers lists every supported provider name.
func Providers() []string {
	return []string{ProviderGemini, ProviderAnthropic, ProviderOpenAI, ProviderOpenRouter, ProviderOllama, ProviderDummy}
}

const (
	defaultMaxTokens = 2048
	defaultTimeout   = 120 * time.Second
)

// defaultModels is used when Config.Model is empty.
var defaultModels = map[string]string{
	ProviderGemini:     "gemini-2.5-flash",
	ProviderAnthropic:  "claude-sonnet-4-5",
	ProviderOpenAI:     "gpt-4o-mini",
	ProviderOpenRouter: "google/gemini-2.5-flash",
	ProviderOllama:     "llama3.1",
}

// DefaultModel returns the model used for provider when none is configured.
func DefaultModel(provider string) string {
	return defaultModels[strings.ToLower(provider)]
}

// Prompt is one reasoning request: a persona preamble plus the task.
type Prompt struct {
	System string
	User   string
}

// Reasoner turns a prompt into text.
type Reasoner interface {
	Reason(ctx context.Context, p Prompt) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	MaxTokens int
	// HTTPClient is used by the HTTP-based backends. Defaults to a client
	// with a two minute timeout.
	HTTPClient *http.Client
}

// New constructs the configured backend. Callers should close the result
// when it implements io.Closer.
func New(ctx context.Context, cfg Config) (Reasoner, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	case ProviderAnthropic:
		return NewAnthropic(cfg)
	case ProviderOpenAI:
		return NewOpenAI(cfg)
	case ProviderOpenRouter:
		return NewOpenRouter(cfg)
	case ProviderOllama:
		return NewOllama(cfg), nil
	case ProviderDummy:
		return Dummy{}, nil
	default:
		return nil, fmt.Errorf("unknown reasoning provider %q", cfg.Provider)
	}
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

// classifyStatus maps an HTTP status to a reasoning error.
func classifyStatus(provider string, status int, detail string) error {
	detail = strings.TrimSpace(detail)
	if len(detail) > 200 {
		detail = detail[:200]
	}
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		return fmt.Errorf("%s: %w (HTTP %d): %s", provider, ErrTransient, status, detail)
	case status >= 400:
		return fmt.Errorf("%s: %w (HTTP %d): %s", provider, ErrRefused, status, detail)
	default:
		return fmt.Errorf("%s: %w (unexpected HTTP %d): %s", provider, ErrRefused, status, detail)
	}
}

// transportError wraps a failure to reach the backend. Context
// cancellation passes through untouched so callers can tell it apart.
func transportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", provider, ErrTransient, err)
}
