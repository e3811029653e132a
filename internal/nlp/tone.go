package nlp

import "strings"

// Tone is the affective register requested from the reply generator.
type Tone string

const (
	SupportiveReassuring       Tone = "Supportive & Reassuring"
	EmpoweringReflective       Tone = "Empowering & Reflective"
	EncouragingSafe            Tone = "Encouraging & Safe"
	AffirmingMotivational      Tone = "Affirming & Motivational"
	CalmGrounding              Tone = "Calm & Grounding"
	GentleSuggestive           Tone = "Gentle & Suggestive"
	ExplorativeReflective      Tone = "Explorative & Reflective"
	GuidedMeditative           Tone = "Guided & Meditative"
	CompassionateUnderstanding Tone = "Compassionate & Understanding"
	CoachingPractical          Tone = "Coaching & Practical"
	CelebratingValidating      Tone = "Celebrating & Validating"
	ProtectiveNurturing        Tone = "Protective & Nurturing"
)

var Tones = []Tone{
	SupportiveReassuring, EmpoweringReflective, EncouragingSafe, AffirmingMotivational,
	CalmGrounding, GentleSuggestive, ExplorativeReflective, GuidedMeditative,
	CompassionateUnderstanding, CoachingPractical, CelebratingValidating, ProtectiveNurturing,
}

var intentTones = map[Intent][]Tone{
	IdentityAffirmation: {SupportiveReassuring, EmpoweringReflective},
	GenderAffirmation:   {EncouragingSafe, AffirmingMotivational},
	WellBeing:           {CalmGrounding, GentleSuggestive},
	SpiritualGrowth:     {ExplorativeReflective, GuidedMeditative},
	Relationships:       {CompassionateUnderstanding, CoachingPractical},
	CareerGoals:         {CoachingPractical, AffirmingMotivational},
	SelfEsteem:          {CelebratingValidating, EmpoweringReflective},
	DailySupport:        {SupportiveReassuring, CompassionateUnderstanding},
}

var emotionTones = map[Emotion][]Tone{
	Anxiety:   {CalmGrounding, SupportiveReassuring},
	Fear:      {ProtectiveNurturing, CalmGrounding},
	Sadness:   {CompassionateUnderstanding, GentleSuggestive},
	Anger:     {CalmGrounding, CompassionateUnderstanding},
	Shame:     {CelebratingValidating, ProtectiveNurturing},
	Confusion: {GentleSuggestive, ExplorativeReflective},
	Hope:      {AffirmingMotivational, CelebratingValidating},
	Joy:       {CelebratingValidating, AffirmingMotivational},
}

// styleOverrides are checked in order against the communication style.
var styleOverrides = []struct {
	words []string
	tone  Tone
}{
	{[]string{"gentle", "soft"}, GentleSuggestive},
	{[]string{"direct", "straightforward"}, CoachingPractical},
	{[]string{"encouraging", "motivational"}, AffirmingMotivational},
	{[]string{"spiritual", "mindful"}, GuidedMeditative},
}

// SelectTone picks the first emotion-preferred tone that suits the intent,
// else the intent's first tone. A matching communication style wins over both.
func SelectTone(intent Intent, emotions Emotions, communicationStyle string) Tone {
	style := strings.ToLower(communicationStyle)
	for _, o := range styleOverrides {
		if containsAny(style, o.words...) {
			return o.tone
		}
	}

	suitable, ok := intentTones[intent]
	if !ok {
		suitable = Tones
	}
	if len(emotions) == 0 {
		return suitable[0]
	}
	dominant, _ := emotions.Dominant()
	preferred, ok := emotionTones[dominant]
	if !ok {
		preferred = suitable
	}
	for _, tone := range preferred {
		for _, s := range suitable {
			if tone == s {
				return tone
			}
		}
	}
	return suitable[0]
}
