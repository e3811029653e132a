// Package analytics derives dashboard metrics from stored sessions,
// messages and summaries. Every calendar computation uses UTC days.
package analytics

import (
	"context"
	"math"
	"time"

	"mentorgo/internal/models"
	"mentorgo/internal/storage"
)

const (
	DefaultMoodDays = 7
	// NeutralMood is the display value of a zero sentiment.
	NeutralMood = 5.0
	dayLayout   = "2006-01-02"
)

// Reader is the slice of storage the aggregator needs.
type Reader interface {
	ListSessions(ctx context.Context, userID string) ([]models.Session, error)
	UserMessagesSince(ctx context.Context, userID string, since time.Time) ([]models.Message, error)
	ListSummaries(ctx context.Context, userID string, limit int) ([]models.Summary, error)
}

var _ Reader = (storage.Store)(nil)

type Aggregator struct {
	store Reader
	now   func() time.Time
}

func NewAggregator(store Reader) *Aggregator {
	return &Aggregator{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Stats is the aggregate dashboard view. AverageMood is nil when the user
// has no scored messages.
type Stats struct {
	TotalSessions int      `json:"totalSessions"`
	AverageMood   *float64 `json:"averageMood"`
	Streak        int      `json:"streak"`
	TopicsCount   int      `json:"topicsCount"`
}

// MoodPoint is one day of the mood series, on the 0..10 display scale.
type MoodPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

func (a *Aggregator) Stats(ctx context.Context, userID string) (*Stats, error) {
	sessions, err := a.store.ListSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	messages, err := a.store.UserMessagesSince(ctx, userID, time.Time{})
	if err != nil {
		return nil, err
	}
	summaries, err := a.store.ListSummaries(ctx, userID, 0)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalSessions: len(sessions),
		TopicsCount:   TopicCount(summaries),
	}
	dates := make([]time.Time, 0, len(messages))
	scores := make([]float64, 0, len(messages))
	for _, m := range messages {
		dates = append(dates, m.Timestamp)
		scores = append(scores, m.Sentiment)
	}
	stats.Streak = Streak(dates)
	if avg, ok := AverageMood(scores); ok {
		display := Rescale(avg)
		stats.AverageMood = &display
	}
	return stats, nil
}

// MoodData returns the trailing mood series for the user. days <= 0 means 7.
func (a *Aggregator) MoodData(ctx context.Context, userID string, days int) ([]MoodPoint, error) {
	if days <= 0 {
		days = DefaultMoodDays
	}
	now := a.now()
	since := startOfDay(now).AddDate(0, 0, -(days - 1))
	messages, err := a.store.UserMessagesSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	return MoodSeries(messages, days, now), nil
}

// Streak counts consecutive UTC calendar days with activity, ending at the
// most recent active day.
func Streak(dates []time.Time) int {
	if len(dates) == 0 {
		return 0
	}
	days := make(map[string]struct{}, len(dates))
	var latest time.Time
	for _, d := range dates {
		day := startOfDay(d)
		days[day.Format(dayLayout)] = struct{}{}
		if day.After(latest) {
			latest = day
		}
	}
	streak := 0
	for day := latest; ; day = day.AddDate(0, 0, -1) {
		if _, ok := days[day.Format(dayLayout)]; !ok {
			return streak
		}
		streak++
	}
}

// AverageMood returns the mean raw sentiment and false when scores is empty.
func AverageMood(scores []float64) (float64, bool) {
	if len(scores) == 0 {
		return 0, false
	}
	var total float64
	for _, s := range scores {
		total += s
	}
	return total / float64(len(scores)), true
}

// Rescale maps a sentiment in [-1, 1] onto the 0..10 display range,
// rounded to one decimal.
func Rescale(sentiment float64) float64 {
	sentiment = math.Max(-1, math.Min(1, sentiment))
	return math.Round((sentiment+1)*5*10) / 10
}

// MoodSeries returns one point per day for the trailing days ending on now's
// day, oldest first. Days without messages read NeutralMood.
func MoodSeries(messages []models.Message, days int, now time.Time) []MoodPoint {
	if days <= 0 {
		days = DefaultMoodDays
	}
	byDay := make(map[string][]float64)
	for _, m := range messages {
		key := m.Timestamp.UTC().Format(dayLayout)
		byDay[key] = append(byDay[key], m.Sentiment)
	}

	today := startOfDay(now)
	points := make([]MoodPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		key := today.AddDate(0, 0, -i).Format(dayLayout)
		value := NeutralMood
		if avg, ok := AverageMood(byDay[key]); ok {
			value = Rescale(avg)
		}
		points = append(points, MoodPoint{Date: key, Value: value})
	}
	return points
}

// TopicCount is the size of the union of summary tags.
func TopicCount(summaries []models.Summary) int {
	topics := make(map[string]struct{})
	for _, s := range summaries {
		for _, tag := range s.Tags {
			topics[tag] = struct{}{}
		}
	}
	return len(topics)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
