package ai

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mentorgo/internal/logger"
	"mentorgo/internal/nlp"
)

// ErrNoModel marks replies produced without a configured model.
var ErrNoModel = errors.New("no language model configured")

type ReplySource string

const (
	ReplyFromModel    ReplySource = "model"
	ReplyFromFallback ReplySource = "fallback"
)

// Reply is the outcome of one generation attempt. Err is set only for
// fallback replies and records why the model path was not used.
type Reply struct {
	Text     string
	Analysis nlp.Analysis
	Source   ReplySource
	Err      error
}

// Fallback reports whether the reply came from a fixed template.
func (r Reply) Fallback() bool { return r.Source == ReplyFromFallback }

// ResponseComposer analyzes a message, asks the model for a reply and falls
// back to a per-intent template when the model is missing or fails.
type ResponseComposer struct {
	analyzer  *nlp.Analyzer
	completer Completer
	logger    *zap.Logger
}

// NewResponseComposer accepts a nil completer.
func NewResponseComposer(analyzer *nlp.Analyzer, completer Completer, log *zap.Logger) *ResponseComposer {
	if analyzer == nil {
		analyzer = nlp.NewAnalyzer(nil)
	}
	return &ResponseComposer{analyzer: analyzer, completer: completer, logger: logger.OrNop(log)}
}

func (c *ResponseComposer) Compose(ctx context.Context, message string, conv nlp.ConversationContext) Reply {
	return c.Respond(ctx, message, conv, c.Analyze(ctx, message, conv))
}

// Analyze classifies message against the conversation without generating a reply.
func (c *ResponseComposer) Analyze(ctx context.Context, message string, conv nlp.ConversationContext) nlp.Analysis {
	return c.analyzer.Analyze(ctx, message, conv)
}

// Respond generates a reply for an analysis already computed by Analyze.
func (c *ResponseComposer) Respond(ctx context.Context, message string, conv nlp.ConversationContext, analysis nlp.Analysis) Reply {
	if c.completer == nil {
		return c.fallback(conv, analysis, ErrNoModel)
	}

	start := time.Now()
	text, err := c.completer.Complete(ctx, CompletionRequest{
		System:      buildSystemPrompt(conv, analysis),
		User:        buildUserPrompt(message, conv),
		Temperature: replyTemperature,
		MaxTokens:   ReplyTokenLimit(conv.Profile.Length()),
	})
	if err != nil {
		c.logger.Warn("llm_request_failed",
			zap.String("operation", "compose_reply"),
			zap.String("intent", string(analysis.Intent.Intent)),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
			zap.Error(err),
		)
		return c.fallback(conv, analysis, err)
	}
	if text == "" {
		return c.fallback(conv, analysis, ErrEmptyCompletion)
	}

	return Reply{
		Text:     Personalize(text, conv.Profile.ScreenName, conv.Profile.Pronouns),
		Analysis: analysis,
		Source:   ReplyFromModel,
	}
}

func (c *ResponseComposer) fallback(conv nlp.ConversationContext, analysis nlp.Analysis, reason error) Reply {
	return Reply{
		Text:     FallbackReply(analysis.Intent.Intent, conv.Profile.Name()),
		Analysis: analysis,
		Source:   ReplyFromFallback,
		Err:      reason,
	}
}
