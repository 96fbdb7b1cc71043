package answer

import "strings"

// Classifier decides whether a generated answer is confident enough to
// return directly, or needs a human supervisor. Kept behind an interface
// so the phrase heuristic can be swapped for a real classifier without
// touching the workflow.
type Classifier interface {
	// Escalates reports whether the text signals the question should be
	// routed to a supervisor.
	Escalates(text string) bool
}

// PhraseClassifier escalates when any configured trigger phrase appears in
// the text, case-insensitively. The phrase list is configuration, not code.
type PhraseClassifier struct {
	phrases []string
}

// NewPhraseClassifier creates a classifier over the given trigger phrases.
func NewPhraseClassifier(phrases []string) *PhraseClassifier {
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(p)
	}
	return &PhraseClassifier{phrases: lowered}
}

func (c *PhraseClassifier) Escalates(text string) bool {
	lowered := strings.ToLower(text)
	for _, p := range c.phrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}
