package ai

import (
	"fmt"

	"mentorgo/internal/nlp"
)

var fallbackTemplates = map[nlp.Intent]string{
	nlp.IdentityAffirmation: "Thank you for sharing that with me, %s. Exploring identity takes courage. What feels most important to you right now?",
	nlp.GenderAffirmation:   "I hear you, %s. Your feelings about your gender identity are valid. What would feel supportive to you today?",
	nlp.WellBeing:           "I understand, %s. Taking care of your mental health is important. How have you been coping lately?",
	nlp.Relationships:       "Relationships can be complex, %s. What aspect of this situation feels most challenging for you?",
	nlp.DailySupport:        "Thanks for sharing, %s. I'm here to listen. How are you feeling about everything right now?",
}

// FallbackReply returns the fixed reply for intent addressed to name.
// Intents without their own template use the Daily Support one.
func FallbackReply(intent nlp.Intent, name string) string {
	tmpl, ok := fallbackTemplates[intent]
	if !ok {
		tmpl = fallbackTemplates[nlp.DailySupport]
	}
	return fmt.Sprintf(tmpl, name)
}
