package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

const claudeMaxTokens = 1024

// ChatModelCompleter sends completions through an eino chat model.
type ChatModelCompleter struct {
	chatModel model.BaseChatModel
}

// NewChatModelCompleter builds the eino model for openai, gemini or claude.
func NewChatModelCompleter(ctx context.Context, provider, modelName, baseURL, token string) (*ChatModelCompleter, error) {
	var (
		chatModel model.BaseChatModel
		err       error
	)

	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: baseURL,
			Model:   modelName,
			APIKey:  token,
		})
	case "gemini":
		client, clientErr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: token,
		})
		if clientErr != nil {
			return nil, fmt.Errorf("new gemini client: %w", clientErr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if baseURL != "" {
			baseURLPtr = &baseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    token,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: claudeMaxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return &ChatModelCompleter{chatModel: chatModel}, nil
}

func (c *ChatModelCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := []*schema.Message{
		{
			Role:    schema.System,
			Content: req.System,
		},
		{
			Role:    schema.User,
			Content: req.User,
		},
	}
	var opts []model.Option
	if req.Temperature > 0 {
		opts = append(opts, model.WithTemperature(req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	resp, err := c.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("generate completion failed: %w", err)
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
