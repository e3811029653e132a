package nlp

import (
	"sort"
	"strings"
)

// Variation is one canned reply for an example, with the profile fields its
// placeholders need.
type Variation struct {
	Text      string
	Tone      Tone
	Variables []string
}

// Available returns the subset of Variables the profile can fill.
func (v Variation) Available(profile UserContext) []string {
	var out []string
	for _, name := range v.Variables {
		var value string
		switch name {
		case "name":
			value = profile.ScreenName
		case "pronouns":
			value = profile.Pronouns
		case "identity_goals":
			value = profile.IdentityGoals
		case "focus_area":
			value = profile.FocusArea
		case "response_length":
			value = string(profile.ResponseLength)
		}
		if value != "" {
			out = append(out, name)
		}
	}
	return out
}

type Example struct {
	Intent     Intent
	UserInput  string
	Variations []Variation
	Tags       []string
}

type ScoredExample struct {
	Example
	Similarity float64
}

var builtinExamples = []Example{
	{
		Intent:    IdentityAffirmation,
		UserInput: "I feel lost about who I am.",
		Variations: []Variation{
			{"Exploring your identity is a brave journey, {name}. What aspects of yourself feel unclear right now?", SupportiveReassuring, []string{"name"}},
			{"It's completely okay to feel uncertain about identity. Given your goals around {identity_goals}, what feels most authentic to you?", SupportiveReassuring, []string{"identity_goals"}},
		},
		Tags: []string{"identity", "self-discovery", "uncertainty", "personal growth"},
	},
	{
		Intent:    GenderAffirmation,
		UserInput: "I want to express my true gender but I feel scared.",
		Variations: []Variation{
			{"Your feelings are completely valid, {name}. Using {pronouns} feels right to you - what's one small step you could take today to honor that?", EncouragingSafe, []string{"name", "pronouns"}},
			{"Fear around gender expression is natural. What would feel like a safe way to explore your authentic self?", EncouragingSafe, nil},
		},
		Tags: []string{"gender", "fear", "expression", "authenticity"},
	},
	{
		Intent:    WellBeing,
		UserInput: "I'm struggling with anxiety.",
		Variations: []Variation{
			{"Anxiety can feel overwhelming, {name}. Since you prefer {response_length} responses, let me offer a grounding technique that might help.", CalmGrounding, []string{"name", "response_length"}},
			{"I hear you. Given that you're focusing on {focus_area}, would you like to try a breathing exercise together?", CalmGrounding, []string{"focus_area"}},
		},
		Tags: []string{"anxiety", "mental health", "coping", "wellness"},
	},
	{
		Intent:    Relationships,
		UserInput: "My relationships feel strained.",
		Variations: []Variation{
			{"Relationship challenges are tough, {name}. How do others typically respond when you express yourself authentically?", CompassionateUnderstanding, []string{"name"}},
			{"It sounds difficult. What aspects of communication feel most challenging for you right now?", CompassionateUnderstanding, nil},
		},
		Tags: []string{"relationships", "communication", "strain", "support"},
	},
}

const defaultTopK = 2

// ExampleRetriever ranks a small fixed corpus of example exchanges by word
// overlap with the incoming message.
type ExampleRetriever struct {
	examples []Example
}

func NewExampleRetriever() *ExampleRetriever {
	return &ExampleRetriever{examples: builtinExamples}
}

// Retrieve returns at most k examples ordered by descending Jaccard
// similarity of lowercased word sets. A non-empty intent restricts the
// candidates to that category. k <= 0 means 2.
func (r *ExampleRetriever) Retrieve(text string, intent Intent, k int) []ScoredExample {
	if k <= 0 {
		k = defaultTopK
	}
	query := wordSet(text)
	var scored []ScoredExample
	for _, ex := range r.examples {
		if intent != "" && ex.Intent != intent {
			continue
		}
		scored = append(scored, ScoredExample{Example: ex, Similarity: jaccard(query, wordSet(ex.UserInput))})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	overlap := 0
	for w := range a {
		if _, ok := b[w]; ok {
			overlap++
		}
	}
	union := len(a) + len(b) - overlap
	if union == 0 {
		return 0
	}
	return float64(overlap) / float64(union)
}
