package assistant

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mentorgo/internal/logger"
	"mentorgo/internal/models"
	"mentorgo/internal/nlp"
	"mentorgo/internal/validation"
)

// TurnResult is what a chat turn hands back to the client.
type TurnResult struct {
	Response  string     `json:"response"`
	Time      string     `json:"time"`
	Sentiment float64    `json:"sentiment"`
	SessionID string     `json:"sessionId"`
	Intent    nlp.Intent `json:"intent"`
	Tone      nlp.Tone   `json:"tone"`
	// Fallback is true when the reply came from a fixed template.
	Fallback bool `json:"-"`
}

// ChatTurn runs one user turn: the message is stored before a reply is
// generated, and a reply is always returned once the message is stored.
func (s *Service) ChatTurn(ctx context.Context, userID, message, title string) (*TurnResult, error) {
	start := time.Now()
	message = validation.SanitizeInput(message, validation.MaxMessageLength)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	profile, err := s.userContext(ctx, userID)
	if err != nil {
		return nil, err
	}

	sess, err := s.GetOrCreateActiveSession(ctx, userID, title, message)
	if err != nil {
		return nil, err
	}
	prior, err := s.store.SessionMessages(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if len(prior) > s.historyLimit {
		prior = prior[len(prior)-s.historyLimit:]
	}
	conv := nlp.BuildContext(profile, nlp.PairExchanges(prior))

	analysis := s.composer.Analyze(ctx, message, conv)
	if _, err := s.AppendMessage(ctx, sess, models.SenderUser, message, analysis.Sentiment); err != nil {
		return nil, err
	}

	reply := s.composer.Respond(ctx, message, conv, analysis)
	if reply.Fallback() {
		s.logger.Info("chat_reply_fallback",
			zap.String("session_id", logger.SanitizeID(sess.ID)),
			zap.String("intent", string(reply.Analysis.Intent.Intent)),
			zap.Error(reply.Err),
		)
	}
	if _, err := s.AppendMessage(ctx, sess, models.SenderBot, reply.Text, 0); err != nil {
		s.logger.Error("store_bot_message_failed",
			zap.String("session_id", logger.SanitizeID(sess.ID)),
			zap.Error(err),
		)
	}

	s.logger.Info("chat_turn_completed",
		zap.String("user_id", logger.SanitizeID(userID)),
		zap.String("session_id", logger.SanitizeID(sess.ID)),
		zap.String("intent", string(reply.Analysis.Intent.Intent)),
		zap.String("tone", string(reply.Analysis.Tone)),
		zap.String("source", string(reply.Source)),
		zap.Int64("latency_ms", time.Since(start).Milliseconds()),
	)

	return &TurnResult{
		Response:  reply.Text,
		Time:      s.now().Format("03:04 PM"),
		Sentiment: analysis.Sentiment,
		SessionID: sess.ID,
		Intent:    reply.Analysis.Intent.Intent,
		Tone:      reply.Analysis.Tone,
		Fallback:  reply.Fallback(),
	}, nil
}

func (s *Service) userContext(ctx context.Context, userID string) (nlp.UserContext, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nlp.UserContext{}, err
	}
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return nlp.UserContext{}, err
	}
	return nlp.NewUserContext(profile, prefs), nil
}
