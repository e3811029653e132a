package nlp

import "context"

// Analysis is everything the reply generator needs to know about one message.
type Analysis struct {
	Emotions         Emotions        `json:"emotions"`
	DominantEmotion  Emotion         `json:"dominant_emotion"`
	EmotionIntensity float64         `json:"emotion_intensity"`
	Sentiment        float64         `json:"sentiment"`
	Intent           IntentResult    `json:"intent"`
	Tone             Tone            `json:"suggested_tone"`
	Examples         []ScoredExample `json:"-"`
	Trajectory       Trajectory      `json:"emotional_trajectory"`
}

// Analyzer runs the classifiers in sequence and applies profile adjustments.
type Analyzer struct {
	emotions *EmotionClassifier
	intents  *IntentClassifier
	examples *ExampleRetriever
}

func NewAnalyzer(intents *IntentClassifier) *Analyzer {
	if intents == nil {
		intents = NewIntentClassifier(nil, nil)
	}
	return &Analyzer{
		emotions: NewEmotionClassifier(),
		intents:  intents,
		examples: NewExampleRetriever(),
	}
}

// Emotions exposes the classifier so callers can score text without a full analysis.
func (a *Analyzer) Emotions() *EmotionClassifier { return a.emotions }

func (a *Analyzer) Analyze(ctx context.Context, text string, conv ConversationContext) Analysis {
	raw := a.emotions.Classify(text)
	emotions := AdjustForProfile(raw, conv.Profile)
	dominant, intensity := emotions.Dominant()

	intent := a.intents.Classify(ctx, text)
	intent.Intent = Refine(intent.Intent, text, conv.Profile)

	return Analysis{
		Emotions:         emotions,
		DominantEmotion:  dominant,
		EmotionIntensity: intensity,
		Sentiment:        Sentiment(emotions),
		Intent:           intent,
		Tone:             SelectTone(intent.Intent, emotions, conv.Profile.CommunicationStyle),
		Examples:         a.examples.Retrieve(text, intent.Intent, defaultTopK),
		Trajectory:       conv.Trajectory,
	}
}
