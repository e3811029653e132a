package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	"mentorgo/internal/logger"
)

const (
	// DefaultGroqBaseURL is the OpenAI-compatible endpoint used for groq.
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "llama-3.3-70b-versatile"
	DefaultHTTPTimeout = 30 * time.Second
)

// OpenAICompleter talks to any OpenAI-compatible chat completions API.
type OpenAICompleter struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAICompleter(apiKey, baseURL, model string, log *zap.Logger) *OpenAICompleter {
	if model == "" {
		model = DefaultGroqModel
	}
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(&http.Client{Timeout: DefaultHTTPTimeout}),
	)
	return &OpenAICompleter{client: client, model: model, logger: logger.OrNop(log)}
}

func (p *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			p.logger.Warn("llm_api_error",
				zap.String("model", p.model),
				zap.Int("status_code", apiErr.StatusCode),
				zap.Int64("latency_ms", latency.Milliseconds()),
			)
			return "", fmt.Errorf("chat completion (status %d): %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	p.logger.Debug("llm_api_response",
		zap.String("model", p.model),
		zap.Int("response_length", len(content)),
		zap.String("response_preview", logger.Preview(content)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
