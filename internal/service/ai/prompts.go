package ai

import (
	"fmt"
	"strings"

	"mentorgo/internal/models"
	"mentorgo/internal/nlp"
)

const (
	replyTemperature  = 0.7
	historyInPrompt   = 3
	examplesInPrompt  = 2
	defaultReplyLimit = 300
)

var replyTokenLimits = map[models.ResponseLength]int{
	models.ResponseShort:    100,
	models.ResponseMedium:   300,
	models.ResponseDetailed: 500,
}

// ReplyTokenLimit maps the preferred reply length to a token budget.
func ReplyTokenLimit(length models.ResponseLength) int {
	if n, ok := replyTokenLimits[length]; ok {
		return n
	}
	return defaultReplyLimit
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func buildSystemPrompt(conv nlp.ConversationContext, analysis nlp.Analysis) string {
	p := conv.Profile
	name := p.Name()
	goals := p.IdentityGoals
	if goals == "" {
		goals = p.FocusArea
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are M, a highly empathetic and skilled identity mentor and therapeutic AI assistant. You are having a conversation with %s.\n\n", name)

	b.WriteString("USER PROFILE:\n")
	fmt.Fprintf(&b, "- Name: %s\n", name)
	fmt.Fprintf(&b, "- Pronouns: %s\n", orDefault(p.Pronouns, "not specified"))
	fmt.Fprintf(&b, "- Identity Goals: %s\n", orDefault(p.IdentityGoals, "general personal growth"))
	fmt.Fprintf(&b, "- Focus Areas: %s\n", orDefault(p.FocusArea, "general wellbeing"))
	fmt.Fprintf(&b, "- Communication Preference: %s\n", orDefault(p.CommunicationStyle, "warm and supportive"))
	fmt.Fprintf(&b, "- Response Length Preference: %s\n\n", p.Length())

	b.WriteString("CONVERSATION CONTEXT:\n")
	fmt.Fprintf(&b, "- Current Intent: %s\n", analysis.Intent.Intent)
	fmt.Fprintf(&b, "- Emotional State: %s (intensity: %.2f)\n", analysis.DominantEmotion, analysis.EmotionIntensity)
	fmt.Fprintf(&b, "- Suggested Tone: %s\n\n", analysis.Tone)

	if len(analysis.Examples) > 0 {
		b.WriteString("EXAMPLE REPLIES IN THIS AREA:\n")
		n := 0
		for _, ex := range analysis.Examples {
			for _, v := range ex.Variations {
				if n == examplesInPrompt {
					break
				}
				fmt.Fprintf(&b, "- %s\n", v.Text)
				n++
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("INSTRUCTIONS:\n")
	fmt.Fprintf(&b, "1. Address %s by name naturally in your response\n", name)
	fmt.Fprintf(&b, "2. Use appropriate pronouns if provided: %s\n", orDefault(p.Pronouns, "use gender-neutral language"))
	fmt.Fprintf(&b, "3. Reference their goals/focus areas when relevant: %s\n", goals)
	fmt.Fprintf(&b, "4. Match the %s tone\n", analysis.Tone)
	fmt.Fprintf(&b, "5. Keep response length %s\n", p.Length())
	b.WriteString("6. Be warm, professional, and genuinely supportive\n")
	b.WriteString("7. Ask thoughtful follow-up questions when appropriate\n")
	b.WriteString("8. Validate their emotions and experiences\n\n")
	b.WriteString("Remember: You are creating a safe, non-judgmental space for personal growth and self-discovery.")
	return b.String()
}

func buildUserPrompt(message string, conv nlp.ConversationContext) string {
	name := conv.Profile.Name()
	var b strings.Builder
	if recent := conv.Recent(historyInPrompt); len(recent) > 0 {
		b.WriteString("RECENT CONVERSATION:\n")
		for _, ex := range recent {
			if ex.User != "" {
				fmt.Fprintf(&b, "%s: %s\n", name, ex.User)
			}
			if ex.Bot != "" {
				fmt.Fprintf(&b, "M: %s\n", ex.Bot)
			}
		}
		b.WriteString("\n")
	}
	if !conv.Trajectory.Empty() {
		fmt.Fprintf(&b, "EMOTIONAL PATTERN: %s trend observed in recent conversation.\n\n", conv.Trajectory.Trend)
	}
	fmt.Fprintf(&b, "Current message from %s: %q\n\n", name, message)
	fmt.Fprintf(&b, "Please respond as M, keeping in mind %s's profile, emotional state, and conversation history.", name)
	return b.String()
}
