package models

import "time"

type Mood string

const (
	MoodPositive Mood = "positive"
	MoodNeutral  Mood = "neutral"
	MoodNegative Mood = "negative"
)

type SummarySource string

const (
	SummaryFromModel     SummarySource = "model"
	SummaryFromHeuristic SummarySource = "heuristic"
)

// Summary is derived once per session when the session ends.
type Summary struct {
	SessionID        string        `json:"session_id" validate:"required"`
	UserID           string        `json:"-"`
	Title            string        `json:"title"`
	Summary          string        `json:"summary"`
	Mood             Mood          `json:"mood" validate:"required,mood"`
	Tags             []string      `json:"tags"`
	Date             string        `json:"date"`
	KeyInsights      string        `json:"key_insights,omitempty"`
	ActionItems      []string      `json:"action_items,omitempty"`
	QualityScore     int           `json:"session_quality_score,omitempty" validate:"min=0,max=10"`
	EmotionalJourney string        `json:"emotional_journey,omitempty"`
	Source           SummarySource `json:"source"`
	CreatedAt        time.Time     `json:"created_at"`
}
