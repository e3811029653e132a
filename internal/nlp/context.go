package nlp

import (
	"strings"

	"mentorgo/internal/models"
)

const (
	defaultName       = "friend"
	trajectoryWindow  = 5
	minTrendPoints    = 3
	TrendImproving    = "improving"
	TrendDeclining    = "declining"
	TrendStable       = "stable"
	TrendInsufficient = "insufficient_data"
)

// UserContext is the profile and preference data that shapes analysis and
// replies. Zero values mean "not provided".
type UserContext struct {
	ScreenName         string
	Pronouns           string
	IdentityGoals      string
	FocusArea          string
	CommunicationStyle string
	ResponseLength     models.ResponseLength
}

// NewUserContext merges a stored profile and preferences; either may be nil.
func NewUserContext(profile *models.Profile, prefs *models.Preferences) UserContext {
	var uc UserContext
	if profile != nil {
		uc.ScreenName = strings.TrimSpace(profile.ScreenName)
		uc.Pronouns = strings.TrimSpace(profile.Pronouns)
		uc.IdentityGoals = strings.TrimSpace(profile.IdentityGoals)
		uc.FocusArea = strings.TrimSpace(profile.FocusArea)
	}
	if prefs != nil {
		uc.CommunicationStyle = strings.TrimSpace(prefs.CommunicationStyle)
		uc.ResponseLength = prefs.ResponseLength
	}
	return uc
}

// Name is the display name used in prompts and templates.
func (u UserContext) Name() string {
	if u.ScreenName != "" {
		return u.ScreenName
	}
	return defaultName
}

// Length returns the preferred reply length, medium when unset.
func (u UserContext) Length() models.ResponseLength {
	switch u.ResponseLength {
	case models.ResponseShort, models.ResponseMedium, models.ResponseDetailed:
		return u.ResponseLength
	}
	return models.ResponseMedium
}

// Exchange pairs a user turn with the bot reply that followed it. Either
// side may be empty.
type Exchange struct {
	User string `json:"user,omitempty"`
	Bot  string `json:"bot,omitempty"`
}

// PairExchanges folds an ordered message list into exchanges. A bot message
// closes the current exchange; consecutive user messages each start a new one.
func PairExchanges(messages []models.Message) []Exchange {
	var (
		out     []Exchange
		current *Exchange
	)
	for _, m := range messages {
		switch m.Sender {
		case models.SenderUser:
			if current != nil {
				out = append(out, *current)
			}
			current = &Exchange{User: m.Text}
		case models.SenderBot:
			if current == nil {
				current = &Exchange{}
			}
			current.Bot = m.Text
			out = append(out, *current)
			current = nil
		}
	}
	if current != nil {
		out = append(out, *current)
	}
	return out
}

type TrajectoryPoint struct {
	Emotion   Emotion `json:"emotion"`
	Intensity float64 `json:"intensity"`
}

// Trajectory summarizes the emotional pattern of recent user turns. The zero
// value means there was no history to analyze.
type Trajectory struct {
	Trend            string    `json:"trend,omitempty"`
	DominantEmotions []Emotion `json:"dominant_emotions,omitempty"`
	AverageIntensity float64   `json:"average_intensity"`
	Consistency      float64   `json:"consistency"`
}

// Empty reports whether no user turns were analyzed.
func (t Trajectory) Empty() bool { return t.Trend == "" }

type ConversationContext struct {
	Profile    UserContext
	History    []Exchange
	Trajectory Trajectory
}

// BuildContext bundles the profile with the conversation so far.
func BuildContext(profile UserContext, history []Exchange) ConversationContext {
	return ConversationContext{
		Profile:    profile,
		History:    history,
		Trajectory: AnalyzeTrajectory(NewEmotionClassifier(), history),
	}
}

// Recent returns at most n of the newest exchanges.
func (c ConversationContext) Recent(n int) []Exchange {
	if n <= 0 || len(c.History) <= n {
		return c.History
	}
	return c.History[len(c.History)-n:]
}

// AnalyzeTrajectory classifies the user side of the last five exchanges and
// compares the final intensity with the first.
func AnalyzeTrajectory(classifier *EmotionClassifier, history []Exchange) Trajectory {
	if len(history) > trajectoryWindow {
		history = history[len(history)-trajectoryWindow:]
	}
	var points []TrajectoryPoint
	for _, ex := range history {
		if ex.User == "" {
			continue
		}
		emotion, intensity := classifier.Classify(ex.User).Dominant()
		points = append(points, TrajectoryPoint{Emotion: emotion, Intensity: intensity})
	}
	if len(points) == 0 {
		return Trajectory{}
	}

	trend := TrendInsufficient
	if len(points) >= minTrendPoints {
		first, last := points[0].Intensity, points[len(points)-1].Intensity
		switch {
		case last > first:
			trend = TrendImproving
		case last < first:
			trend = TrendDeclining
		default:
			trend = TrendStable
		}
	}

	names := make([]Emotion, len(points))
	distinct := make(map[Emotion]struct{})
	sum := 0.0
	for i, p := range points {
		names[i] = p.Emotion
		distinct[p.Emotion] = struct{}{}
		sum += p.Intensity
	}
	return Trajectory{
		Trend:            trend,
		DominantEmotions: names,
		AverageIntensity: sum / float64(len(points)),
		Consistency:      float64(len(distinct)) / float64(len(points)),
	}
}
