package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"mentorgo/internal/logger"
	"mentorgo/internal/models"
	"mentorgo/internal/storage"
	"mentorgo/internal/validation"
)

const (
	NoUserMessages   = "No user messages."
	maxSummaryTags   = 5
	minTagLength     = 5
	moodThreshold    = 0.3
	summaryDateStyle = "2006-01-02"
)

// BuildSummary returns the session's summary, deriving and storing it on
// first call. The model reading is used when available; every field it
// leaves empty comes from the heuristic summary.
func (s *Service) BuildSummary(ctx context.Context, sess *models.Session) (*models.Summary, error) {
	existing, err := s.store.GetSummary(ctx, sess.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	messages, err := s.store.SessionMessages(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	summary := heuristicSummary(sess, messages)
	summary.CreatedAt = s.now()
	summary.Date = summary.CreatedAt.Format(summaryDateStyle)

	if hasUserMessages(messages) {
		insight, err := s.summaries.Analyze(ctx, messages)
		if err != nil {
			s.logger.Info("summary_model_unavailable",
				zap.String("session_id", logger.SanitizeID(sess.ID)),
				zap.Error(err),
			)
		} else {
			summary.Source = models.SummaryFromModel
			if insight.Title != "" {
				summary.Title = insight.Title
			}
			summary.Summary = insight.Summary
			if insight.Mood != "" {
				summary.Mood = insight.Mood
			}
			if len(insight.Topics) > 0 {
				summary.Tags = insight.Topics
			}
			summary.KeyInsights = insight.KeyInsights
			summary.ActionItems = insight.ActionItems
			summary.QualityScore = insight.QualityScore
			summary.EmotionalJourney = insight.EmotionalJourney
		}
	}

	if err := validation.Struct(summary); err != nil {
		return nil, fmt.Errorf("build summary: %w", err)
	}
	if err := s.store.CreateSummary(ctx, summary); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return s.store.GetSummary(ctx, sess.ID)
		}
		return nil, err
	}
	s.logger.Info("summary_created",
		zap.String("session_id", logger.SanitizeID(sess.ID)),
		zap.String("source", string(summary.Source)),
		zap.String("mood", string(summary.Mood)),
	)
	return summary, nil
}

// ListSummaries returns the user's newest summaries.
func (s *Service) ListSummaries(ctx context.Context, userID string, limit int) ([]models.Summary, error) {
	return s.store.ListSummaries(ctx, userID, limit)
}

func heuristicSummary(sess *models.Session, messages []models.Message) *models.Summary {
	var user []models.Message
	for _, m := range messages {
		if m.Sender == models.SenderUser {
			user = append(user, m)
		}
	}

	sum := &models.Summary{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Mood:      models.MoodNeutral,
		Tags:      []string{},
		Source:    models.SummaryFromHeuristic,
	}

	switch {
	case sess.Title != "":
		sum.Title = sess.Title
	case len(user) > 0:
		sum.Title = truncate(user[0].Text, maxDerivedTitle)
	default:
		sum.Title = fallbackTitle(sess.ID)
	}

	switch len(user) {
	case 0:
		sum.Summary = NoUserMessages
		return sum
	case 1:
		sum.Summary = user[0].Text
	default:
		sum.Summary = user[0].Text + " … " + user[len(user)-1].Text
	}

	var total float64
	for _, m := range user {
		total += m.Sentiment
	}
	sum.Mood = moodFor(total / float64(len(user)))
	sum.Tags = extractTags(user)
	return sum
}

func moodFor(mean float64) models.Mood {
	switch {
	case mean > moodThreshold:
		return models.MoodPositive
	case mean < -moodThreshold:
		return models.MoodNegative
	default:
		return models.MoodNeutral
	}
}

// extractTags collects distinct long words in first-occurrence order.
func extractTags(messages []models.Message) []string {
	tags := make([]string, 0, maxSummaryTags)
	seen := make(map[string]struct{})
	for _, m := range messages {
		for _, word := range strings.Fields(strings.ToLower(m.Text)) {
			word = strings.TrimFunc(word, func(r rune) bool {
				return unicode.IsPunct(r) || unicode.IsSymbol(r)
			})
			if utf8.RuneCountInString(word) < minTagLength {
				continue
			}
			if _, dup := seen[word]; dup {
				continue
			}
			seen[word] = struct{}{}
			tags = append(tags, word)
			if len(tags) == maxSummaryTags {
				return tags
			}
		}
	}
	return tags
}

func hasUserMessages(messages []models.Message) bool {
	for _, m := range messages {
		if m.Sender == models.SenderUser {
			return true
		}
	}
	return false
}
