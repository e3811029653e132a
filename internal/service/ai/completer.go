package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mentorgo/internal/config"
	"mentorgo/internal/nlp"
)

// ErrEmptyCompletion is returned when a model answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// CompletionRequest is a single system+user exchange with sampling limits.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Completer is the one boundary to a hosted language model.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// NewCompleter builds the backend named by cfg.LLM.Provider. It returns
// (nil, nil) when no provider is configured; callers then stay on their
// deterministic paths.
func NewCompleter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if provider == "" {
		return nil, nil
	}
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	if provCfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s has no api key", provider)
	}
	modelName := cfg.LLM.Model
	if modelName == "" {
		modelName = provCfg.Model
	}
	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second

	var (
		inner Completer
		err   error
	)
	switch provider {
	case "groq", "openai-compatible":
		inner = NewOpenAICompleter(provCfg.APIKey, provCfg.BaseURL, modelName, logger)
	default:
		inner, err = NewChatModelCompleter(ctx, provider, modelName, provCfg.BaseURL, provCfg.APIKey)
	}
	if err != nil {
		return nil, err
	}
	return WithTimeout(inner, timeout), nil
}

type timeoutCompleter struct {
	inner   Completer
	timeout time.Duration
}

// WithTimeout bounds every call made through c.
func WithTimeout(c Completer, timeout time.Duration) Completer {
	if timeout <= 0 {
		return c
	}
	return &timeoutCompleter{inner: c, timeout: timeout}
}

func (t *timeoutCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Complete(ctx, req)
}

const (
	intentTemperature = 0.2
	intentMaxTokens   = 150
)

type labelModel struct {
	completer Completer
}

// LabelModel adapts a Completer for intent classification.
func LabelModel(c Completer) nlp.LabelModel {
	if c == nil {
		return nil
	}
	return &labelModel{completer: c}
}

func (l *labelModel) Label(ctx context.Context, system, prompt string) (string, error) {
	return l.completer.Complete(ctx, CompletionRequest{
		System:      system,
		User:        prompt,
		Temperature: intentTemperature,
		MaxTokens:   intentMaxTokens,
	})
}
