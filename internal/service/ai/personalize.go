package ai

import (
	"regexp"
	"strings"
)

type pronounRule struct {
	re   *regexp.Regexp
	repl string
}

func wordRule(word, repl string) pronounRule {
	return pronounRule{re: regexp.MustCompile(`(?i)\b` + word + `\b`), repl: repl}
}

var (
	shePronouns = []pronounRule{
		wordRule("theirs", "hers"), wordRule("their", "her"), wordRule("them", "her"), wordRule("they", "she"),
	}
	hePronouns = []pronounRule{
		wordRule("theirs", "his"), wordRule("their", "his"), wordRule("them", "him"), wordRule("they", "he"),
	}
)

// Personalize makes sure a model reply addresses the user by name and uses
// their stated pronouns in place of singular they.
func Personalize(reply, screenName, pronouns string) string {
	name := strings.TrimSpace(screenName)
	if name != "" {
		lower := strings.ToLower(reply)
		if !strings.Contains(lower, strings.ToLower(name)) {
			switch {
			case strings.HasPrefix(reply, "I "):
				reply = "I hear you, " + name + ". " + reply[2:]
			case !strings.Contains(lower, "you"):
				reply = name + ", " + reply
			}
		}
	}

	var rules []pronounRule
	p := strings.ToLower(pronouns)
	switch {
	case strings.Contains(p, "she/her"):
		rules = shePronouns
	case strings.Contains(p, "he/him"):
		rules = hePronouns
	}
	for _, r := range rules {
		reply = r.re.ReplaceAllString(reply, r.repl)
	}
	return reply
}
