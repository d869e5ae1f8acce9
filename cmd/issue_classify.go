package cmd

import "strings"

// classifyIssueCategory infers a category from the ticket text using keyword
// heuristics. Bug keywords are checked first, then compatibility, configuration
// and feature requests. Defaults to "Question". The result is matched against
// the configured categories when there are any.
func classifyIssueCategory(text string, categories []string) string {
	lower := strings.ToLower(text)

	guess := "Question"
	switch {
	case containsAny(lower, "not working", "issue with", "doesn't work", "does not work"),
		containsAny(lower, "bug", "broken", "crash", "error", "fatal", "fail", "white screen", "500"):
		guess = "Bug"
	case containsAny(lower, "conflict", "compatib", "theme", "another plugin", "after updating"):
		guess = "Compatibility"
	case containsAny(lower, "setting", "configur", "setup", "set up", "license", "api key"):
		guess = "Configuration"
	case containsAny(lower, "feature request", "would like", "wish", "could you add", "add support"):
		guess = "Feature Request"
	}

	return matchVocabulary(guess, categories)
}

// classifyEscalation reports whether the text suggests a developer is needed.
func classifyEscalation(text string) bool {
	lower := strings.ToLower(text)
	return containsAny(lower,
		"fatal error", "stack trace", "uncaught", "database error", "sql",
		"data loss", "lost orders", "security", "vulnerab", "crash", "segfault",
	)
}

// matchVocabulary returns the configured value that best matches guess: an
// exact case-insensitive match, then a substring match. With no match, or no
// vocabulary, guess is returned unchanged.
func matchVocabulary(guess string, vocabulary []string) string {
	g := strings.ToLower(guess)
	for _, v := range vocabulary {
		if strings.ToLower(v) == g {
			return v
		}
	}
	for _, v := range vocabulary {
		lv := strings.ToLower(v)
		if strings.Contains(lv, g) || strings.Contains(g, lv) {
			return v
		}
	}
	return guess
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
