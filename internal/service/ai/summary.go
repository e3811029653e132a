package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"mentorgo/internal/logger"
	"mentorgo/internal/models"
	"mentorgo/internal/nlp"
	"mentorgo/internal/validation"
)

const (
	summarySystemPrompt = "You are an expert therapy session analyst. Provide detailed, empathetic analysis of conversations while maintaining confidentiality and professional insight."
	summaryTemperature  = 0.3
	summaryMaxTokens    = 800
	maxSummaryTitle     = 50
	maxSummaryTopics    = 5
)

// SessionInsight is the model's reading of a finished session. Mood is empty
// when the model returned something outside positive/neutral/negative.
type SessionInsight struct {
	Title            string
	Summary          string
	Topics           []string
	Mood             models.Mood
	KeyInsights      string
	ActionItems      []string
	QualityScore     int
	EmotionalJourney string
}

// SummaryAnalyzer asks the model to summarize a session transcript.
type SummaryAnalyzer struct {
	completer Completer
	logger    *zap.Logger
}

func NewSummaryAnalyzer(completer Completer, log *zap.Logger) *SummaryAnalyzer {
	return &SummaryAnalyzer{completer: completer, logger: logger.OrNop(log)}
}

// flexList accepts either a JSON array of strings or a single string.
type flexList []string

func (l *flexList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s = strings.TrimSpace(s); s != "" {
			*l = flexList{s}
		}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// flexNumber accepts 7, 7.5 or "7".
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	*n = flexNumber(v)
	return nil
}

type summaryPayload struct {
	Title               string     `json:"title"`
	Summary             string     `json:"summary"`
	KeyTopics           flexList   `json:"key_topics"`
	Mood                string     `json:"mood"`
	KeyInsights         flexList   `json:"key_insights"`
	Insights            flexList   `json:"insights"`
	ActionItems         flexList   `json:"action_items"`
	SessionQualityScore flexNumber `json:"session_quality_score"`
	SessionQuality      flexNumber `json:"session_quality"`
	EmotionalJourney    string     `json:"emotional_journey"`
}

func (a *SummaryAnalyzer) Analyze(ctx context.Context, messages []models.Message) (*SessionInsight, error) {
	if a.completer == nil {
		return nil, ErrNoModel
	}
	if len(messages) == 0 {
		return nil, errors.New("no messages to summarize")
	}

	raw, err := a.completer.Complete(ctx, CompletionRequest{
		System:      summarySystemPrompt,
		User:        summaryPrompt(messages),
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("summarize session: %w", err)
	}

	var payload summaryPayload
	if err := nlp.ExtractJSON(raw, &payload); err != nil {
		a.logger.Warn("summary_parse_failed", zap.String("response_preview", logger.Preview(raw)), zap.Error(err))
		return nil, fmt.Errorf("parse summary: %w", err)
	}
	if strings.TrimSpace(payload.Summary) == "" {
		return nil, errors.New("parse summary: missing summary text")
	}
	return payload.normalize(), nil
}

func (p summaryPayload) normalize() *SessionInsight {
	insight := &SessionInsight{
		Title:            truncateRunes(strings.TrimSpace(p.Title), maxSummaryTitle),
		Summary:          strings.TrimSpace(p.Summary),
		EmotionalJourney: strings.TrimSpace(p.EmotionalJourney),
		ActionItems:      []string(p.ActionItems),
	}

	seen := make(map[string]struct{})
	for _, topic := range p.KeyTopics {
		topic = strings.ToLower(strings.TrimSpace(topic))
		if topic == "" {
			continue
		}
		if _, dup := seen[topic]; dup {
			continue
		}
		seen[topic] = struct{}{}
		insight.Topics = append(insight.Topics, topic)
		if len(insight.Topics) == maxSummaryTopics {
			break
		}
	}

	if mood := strings.ToLower(strings.TrimSpace(p.Mood)); validation.IsMood(mood) {
		insight.Mood = models.Mood(mood)
	}

	insights := p.KeyInsights
	if len(insights) == 0 {
		insights = p.Insights
	}
	insight.KeyInsights = strings.Join(insights, " ")

	quality := p.SessionQualityScore
	if quality == 0 {
		quality = p.SessionQuality
	}
	if quality != 0 {
		q := int(float64(quality) + 0.5)
		if q < 1 {
			q = 1
		}
		if q > 10 {
			q = 10
		}
		insight.QualityScore = q
	}
	return insight
}

func summaryPrompt(messages []models.Message) string {
	var b strings.Builder
	b.WriteString("Analyze this therapy/mentoring conversation and provide insights in JSON format:\n\nConversation:\n")
	for _, m := range messages {
		speaker := "User"
		if m.Sender == models.SenderBot {
			speaker = "M"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Text)
	}
	b.WriteString(`
Please analyze and return a JSON with these fields:
1. "title": A brief, descriptive title for this session (max 50 chars)
2. "summary": A concise summary of what was discussed (2-3 sentences)
3. "key_topics": List of main topics discussed (max 5)
4. "emotional_journey": Description of user's emotional state progression
5. "key_insights": Key insights or breakthroughs from the session
6. "mood": Overall mood assessment (positive/neutral/negative)
7. "action_items": Any suggested next steps or practices mentioned
8. "session_quality_score": Assessment of session effectiveness (1-10)
`)
	return b.String()
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
