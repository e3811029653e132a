package nlp

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Intent is one of the fixed topical categories.
type Intent string

const (
	IdentityAffirmation Intent = "Identity Affirmation"
	GenderAffirmation   Intent = "Gender Affirmation"
	WellBeing           Intent = "Well-Being"
	SpiritualGrowth     Intent = "Spiritual Growth"
	Relationships       Intent = "Relationships"
	CareerGoals         Intent = "Career & Goals"
	FamilyDynamics      Intent = "Family Dynamics"
	SelfEsteem          Intent = "Self-Esteem"
	TraumaProcessing    Intent = "Trauma Processing"
	DailySupport        Intent = "Daily Support"
)

// Intents lists the closed set in canonical order.
var Intents = []Intent{
	IdentityAffirmation, GenderAffirmation, WellBeing, SpiritualGrowth, Relationships,
	CareerGoals, FamilyDynamics, SelfEsteem, TraumaProcessing, DailySupport,
}

// Valid reports whether i is in the closed set.
func (i Intent) Valid() bool {
	for _, known := range Intents {
		if i == known {
			return true
		}
	}
	return false
}

// IntentSource records which path produced a classification.
type IntentSource string

const (
	IntentFromModel    IntentSource = "model"
	IntentFromKeywords IntentSource = "keywords"
	IntentFromDefault  IntentSource = "default"
)

type IntentResult struct {
	Intent     Intent       `json:"intent"`
	Confidence float64      `json:"confidence"`
	Source     IntentSource `json:"source"`
}

// LabelModel is the language model used for the primary classification path.
type LabelModel interface {
	Label(ctx context.Context, system, prompt string) (string, error)
}

const (
	intentSystemPrompt      = "You are an expert at analyzing emotional and psychological content in therapeutic conversations. Be precise and empathetic."
	defaultModelConfidence  = 0.7
	minModelConfidence      = 0.4
	defaultIntentConfidence = 0.5
)

type intentKeywords struct {
	intent   Intent
	keywords []string
}

// Family Dynamics and Trauma Processing are only reachable through the model.
var intentLexicon = []intentKeywords{
	{IdentityAffirmation, []string{"identity", "who am i", "myself", "authentic", "real me", "true self"}},
	{GenderAffirmation, []string{"gender", "pronouns", "transition", "expression", "masculine", "feminine", "non-binary"}},
	{WellBeing, []string{"anxiety", "stress", "depression", "mental health", "wellbeing", "coping"}},
	{SpiritualGrowth, []string{"spiritual", "mindfulness", "meditation", "purpose", "meaning", "growth"}},
	{Relationships, []string{"relationship", "friends", "family", "partner", "social", "people"}},
	{CareerGoals, []string{"work", "job", "career", "goals", "future", "ambition"}},
	{SelfEsteem, []string{"confidence", "self-worth", "value", "deserve", "good enough"}},
	{DailySupport, []string{"today", "feeling", "how are", "help", "support", "listen"}},
}

// IntentClassifier asks the model first when one is configured and falls
// back to keyword matching.
type IntentClassifier struct {
	model  LabelModel
	logger *zap.Logger
}

// NewIntentClassifier accepts a nil model, in which case only keywords are used.
func NewIntentClassifier(model LabelModel, logger *zap.Logger) *IntentClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntentClassifier{model: model, logger: logger}
}

func (c *IntentClassifier) Classify(ctx context.Context, text string) IntentResult {
	if c.model != nil {
		result, err := c.classifyWithModel(ctx, text)
		if err == nil {
			return result
		}
		c.logger.Warn("intent_model_failed", zap.Error(err))
	}
	return ClassifyKeywords(text)
}

type modelIntent struct {
	Intent     string   `json:"intent"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

func (c *IntentClassifier) classifyWithModel(ctx context.Context, text string) (IntentResult, error) {
	raw, err := c.model.Label(ctx, intentSystemPrompt, intentPrompt(text))
	if err != nil {
		return IntentResult{}, fmt.Errorf("label intent: %w", err)
	}
	var parsed modelIntent
	if err := ExtractJSON(raw, &parsed); err != nil {
		return IntentResult{}, fmt.Errorf("parse intent: %w", err)
	}
	intent := Intent(strings.TrimSpace(parsed.Intent))
	if !intent.Valid() {
		return IntentResult{}, fmt.Errorf("unknown intent %q", parsed.Intent)
	}
	confidence := defaultModelConfidence
	if parsed.Confidence != nil {
		confidence = clamp01(*parsed.Confidence)
	}
	if confidence <= minModelConfidence {
		return IntentResult{}, fmt.Errorf("intent confidence %.2f too low", confidence)
	}
	return IntentResult{Intent: intent, Confidence: confidence, Source: IntentFromModel}, nil
}

func intentPrompt(text string) string {
	names := make([]string, len(Intents))
	for i, intent := range Intents {
		names[i] = string(intent)
	}
	var b strings.Builder
	b.WriteString("Analyze this message from a therapy/counseling context and classify the intent.\n\n")
	fmt.Fprintf(&b, "User message: %q\n\n", text)
	fmt.Fprintf(&b, "Available intent categories:\n%s\n\n", strings.Join(names, ", "))
	b.WriteString("Consider:\n- The emotional undertone\n- What kind of support the person might need\n- The specific topic area they're addressing\n\n")
	b.WriteString("Return JSON with:\n1. \"intent\": the most appropriate category\n2. \"confidence\": score 0.0-1.0\n3. \"reasoning\": brief explanation\n")
	return b.String()
}

// ClassifyKeywords scores each category by the fraction of its keywords
// present in text. The first category in canonical order wins ties.
func ClassifyKeywords(text string) IntentResult {
	lower := strings.ToLower(text)
	best := IntentResult{Intent: DailySupport, Confidence: defaultIntentConfidence, Source: IntentFromDefault}
	bestScore := 0.0
	for _, entry := range intentLexicon {
		hits := 0
		for _, keyword := range entry.keywords {
			if strings.Contains(lower, keyword) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := float64(hits) / float64(len(entry.keywords))
		if score > bestScore {
			bestScore = score
			best = IntentResult{Intent: entry.intent, Confidence: score, Source: IntentFromKeywords}
		}
	}
	return best
}

// Refine narrows a generic Well-Being classification using the profile's
// focus area.
func Refine(intent Intent, text string, profile UserContext) Intent {
	if intent != WellBeing {
		return intent
	}
	focus := strings.ToLower(profile.FocusArea)
	lower := strings.ToLower(text)
	if (strings.Contains(focus, "identity") || strings.Contains(focus, "gender")) &&
		containsAny(lower, "who am i", "myself", "identity", "authentic") {
		return IdentityAffirmation
	}
	if strings.Contains(focus, "relationship") && containsAny(lower, "people", "others", "friends", "family") {
		return Relationships
	}
	return intent
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
