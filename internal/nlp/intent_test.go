package nlp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubLabelModel struct {
	reply string
	err   error
	calls int
}

func (s *stubLabelModel) Label(context.Context, string, string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestClassifyKeywords(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text       string
		want       Intent
		confidence float64
		source     IntentSource
	}{
		{"I feel really anxious about my identity", IdentityAffirmation, 1.0 / 6, IntentFromKeywords},
		{"my partner and my friends", Relationships, 2.0 / 6, IntentFromKeywords},
		{"what a lovely afternoon", DailySupport, 0.5, IntentFromDefault},
		{"work and my career goals", CareerGoals, 3.0 / 6, IntentFromKeywords},
	}
	for _, tt := range tests {
		got := ClassifyKeywords(tt.text)
		assert.Equal(t, tt.want, got.Intent, tt.text)
		assert.InDelta(t, tt.confidence, got.Confidence, 1e-9, tt.text)
		assert.Equal(t, tt.source, got.Source, tt.text)
	}
}

func TestClassifyUsesModel(t *testing.T) {
	t.Parallel()
	model := &stubLabelModel{reply: "Sure! ```json\n{\"intent\": \"Family Dynamics\", \"confidence\": 0.9, \"reasoning\": \"x\"}\n```"}
	got := NewIntentClassifier(model, nil).Classify(context.Background(), "my mother never listens")
	assert.Equal(t, IntentResult{Intent: FamilyDynamics, Confidence: 0.9, Source: IntentFromModel}, got)
	assert.Equal(t, 1, model.calls)
}

func TestClassifyModelFallbacks(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		model *stubLabelModel
	}{
		{"error", &stubLabelModel{err: errors.New("boom")}},
		{"no json", &stubLabelModel{reply: "Relationships"}},
		{"unknown label", &stubLabelModel{reply: `{"intent": "Cooking", "confidence": 0.9}`}},
		{"low confidence", &stubLabelModel{reply: `{"intent": "Relationships", "confidence": 0.3}`}},
		{"malformed json", &stubLabelModel{reply: `{"intent": }`}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NewIntentClassifier(tt.model, nil).Classify(context.Background(), "my friends ignore me")
			assert.Equal(t, Relationships, got.Intent)
			assert.Equal(t, IntentFromKeywords, got.Source)
		})
	}
}

func TestClassifyDefaultsAndClampsModelConfidence(t *testing.T) {
	t.Parallel()
	got := NewIntentClassifier(&stubLabelModel{reply: `{"intent": "Self-Esteem"}`}, nil).Classify(context.Background(), "x")
	assert.Equal(t, SelfEsteem, got.Intent)
	assert.Equal(t, 0.7, got.Confidence)

	got = NewIntentClassifier(&stubLabelModel{reply: `{"intent": "Self-Esteem", "confidence": 7}`}, nil).Classify(context.Background(), "x")
	assert.Equal(t, 1.0, got.Confidence)
}

func TestClassifyStaysInClosedSet(t *testing.T) {
	t.Parallel()
	inputs := []string{"", "identity gender anxiety spiritual", "help me today", "good enough?", "???", "TRANSITION"}
	c := NewIntentClassifier(nil, nil)
	for _, text := range inputs {
		got := c.Classify(context.Background(), text)
		assert.True(t, got.Intent.Valid(), "text %q produced %q", text, got.Intent)
		assert.GreaterOrEqual(t, got.Confidence, 0.0)
		assert.LessOrEqual(t, got.Confidence, 1.0)
	}
}

func TestRefine(t *testing.T) {
	t.Parallel()
	assert.Equal(t, IdentityAffirmation, Refine(WellBeing, "I don't feel like myself", UserContext{FocusArea: "gender identity"}))
	assert.Equal(t, Relationships, Refine(WellBeing, "other people stress me", UserContext{FocusArea: "relationships"}))
	assert.Equal(t, WellBeing, Refine(WellBeing, "stress", UserContext{FocusArea: "identity"}))
	assert.Equal(t, CareerGoals, Refine(CareerGoals, "myself", UserContext{FocusArea: "identity"}))
}
