package patterns

import "strings"

// correctionMarkers are lexical cues that a message corrects a previous
// automatic action rather than capturing something new.
var correctionMarkers = []string{
	"wrong",
	"that's not",
	"thats not",
	"that is not",
	"not what i",
	"i said",
	"i meant",
	"should be",
	"change that",
	"change it",
	"actually",
}

// IsCorrection reports whether the text reads as a correction to a recent
// action. Purely lexical; the caller decides what it corrects.
func IsCorrection(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	if strings.HasPrefix(t, "no,") || strings.HasPrefix(t, "no ") || t == "no" {
		return true
	}
	for _, marker := range correctionMarkers {
		if strings.Contains(t, marker) {
			return true
		}
	}
	return false
}
