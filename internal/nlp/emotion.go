// Package nlp holds the rule-based text analysis used by the chat pipeline:
// emotion and intent classification, tone selection, example retrieval and
// conversation trajectory.
package nlp

import (
	"math"
	"strings"
)

// Emotion is a label produced by EmotionClassifier.
type Emotion string

const (
	Anxiety    Emotion = "anxiety"
	Sadness    Emotion = "sadness"
	Anger      Emotion = "anger"
	Confusion  Emotion = "confusion"
	Hope       Emotion = "hope"
	Joy        Emotion = "joy"
	Fear       Emotion = "fear"
	Shame      Emotion = "shame"
	Pride      Emotion = "pride"
	Love       Emotion = "love"
	Loneliness Emotion = "loneliness"
	Neutral    Emotion = "neutral"
)

const neutralScore = 0.5

type emotionKeywords struct {
	emotion  Emotion
	keywords []string
}

// emotionLexicon is ordered; the order breaks ties in Dominant.
var emotionLexicon = []emotionKeywords{
	{Anxiety, []string{"anxious", "worried", "nervous", "panic", "stress", "fear", "scared", "uneasy", "overwhelmed"}},
	{Sadness, []string{"sad", "depressed", "unhappy", "miserable", "grief", "heartbroken", "disappointed", "lonely", "down"}},
	{Anger, []string{"angry", "frustrated", "annoyed", "irritated", "mad", "upset", "furious", "resentful", "pissed"}},
	{Confusion, []string{"confused", "uncertain", "unsure", "lost", "unclear", "doubt", "puzzled", "perplexed", "mixed up"}},
	{Hope, []string{"hopeful", "optimistic", "positive", "looking forward", "excited", "eager", "anticipate", "confident"}},
	{Joy, []string{"happy", "joyful", "delighted", "pleased", "content", "cheerful", "thrilled", "grateful", "elated"}},
	{Fear, []string{"afraid", "terrified", "scared", "fearful", "dread", "horror", "panic", "phobia", "worried"}},
	{Shame, []string{"ashamed", "embarrassed", "guilty", "humiliated", "mortified", "regretful"}},
	{Pride, []string{"proud", "accomplished", "achieved", "successful", "satisfied", "fulfilled"}},
	{Love, []string{"love", "adore", "cherish", "affection", "care", "devoted", "attached"}},
	{Loneliness, []string{"lonely", "isolated", "alone", "disconnected", "abandoned", "excluded"}},
}

// subtleIndicators only apply when no lexicon label qualified.
var subtleIndicators = []emotionKeywords{
	{Confusion, []string{"maybe", "perhaps", "not sure", "i think", "might be"}},
	{Anxiety, []string{"busy", "tired", "exhausted", "overwhelmed", "pressure"}},
	{Joy, []string{"okay", "fine", "alright", "good", "well"}},
}

var emotionRank = func() map[Emotion]int {
	rank := make(map[Emotion]int, len(emotionLexicon)+1)
	for i, entry := range emotionLexicon {
		rank[entry.emotion] = i
	}
	rank[Neutral] = len(emotionLexicon)
	return rank
}()

// Emotions maps each detected label to a score in (0, 1].
type Emotions map[Emotion]float64

// Dominant returns the highest scoring label. Ties go to the label listed
// first in the lexicon; an empty set reads as neutral.
func (e Emotions) Dominant() (Emotion, float64) {
	best, bestScore := Neutral, -1.0
	for emotion, score := range e {
		if score > bestScore || (score == bestScore && rankOf(emotion) < rankOf(best)) {
			best, bestScore = emotion, score
		}
	}
	if bestScore < 0 {
		return Neutral, neutralScore
	}
	return best, bestScore
}

func rankOf(e Emotion) int {
	if r, ok := emotionRank[e]; ok {
		return r
	}
	return len(emotionRank)
}

// EmotionClassifier scores text against a fixed keyword lexicon.
type EmotionClassifier struct{}

func NewEmotionClassifier() *EmotionClassifier { return &EmotionClassifier{} }

// Classify never returns an empty map: with no signal at all it reports
// neutral at 0.5.
func (c *EmotionClassifier) Classify(text string) Emotions {
	lower := strings.ToLower(text)
	results := make(Emotions)

	for _, entry := range emotionLexicon {
		count := 0.0
		for _, keyword := range entry.keywords {
			if !strings.Contains(lower, keyword) {
				continue
			}
			if words := len(strings.Fields(keyword)); words > 1 {
				count += float64(words) * 1.2
			} else {
				count += 1.0
			}
		}
		score := math.Min(count/3, 1.0)
		if score > 0.1 {
			results[entry.emotion] = score
		}
	}

	if len(results) == 0 {
		for _, entry := range subtleIndicators {
			for _, word := range entry.keywords {
				if strings.Contains(lower, word) {
					results[entry.emotion] = 0.3
					break
				}
			}
		}
	}

	if len(results) == 0 {
		results[Neutral] = neutralScore
	}
	return results
}

// AdjustForProfile boosts emotions that line up with the user's stated focus
// area or identity goals. The input map is left untouched.
func AdjustForProfile(emotions Emotions, profile UserContext) Emotions {
	out := make(Emotions, len(emotions))
	for k, v := range emotions {
		out[k] = v
	}
	focus := strings.ToLower(profile.FocusArea)
	goals := strings.ToLower(profile.IdentityGoals)

	boost := func(e Emotion, factor float64) {
		if v, ok := out[e]; ok {
			out[e] = math.Min(v*factor, 1.0)
		}
	}
	if strings.Contains(focus, "anxiety") {
		boost(Anxiety, 1.2)
	}
	if strings.Contains(goals, "identity") || strings.Contains(goals, "self-discovery") {
		boost(Confusion, 1.1)
	}
	if strings.Contains(focus, "confidence") {
		boost(Shame, 1.1)
	}
	return out
}

// Sentiment folds a classification into a signed score in [-1, 1]: the
// dominant intensity, positive for joy/hope/pride/love, zero for neutral and
// negative otherwise.
func Sentiment(emotions Emotions) float64 {
	dominant, intensity := emotions.Dominant()
	switch dominant {
	case Joy, Hope, Pride, Love:
		return intensity
	case Neutral:
		return 0
	default:
		return -intensity
	}
}
