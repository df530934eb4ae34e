package scheduler

import "regexp"

// Classifier maps a task to the agent type that should execute it. The
// orchestrator accepts any Classifier, so callers can override the default
// keyword heuristics with project-specific rules.
type Classifier func(*Task) AgentType

// Keyword patterns use word boundaries so "latest" never matches "test".
// Ordering below encodes priority: test beats frontend beats the backend
// default when a task mentions both.
var (
	testPattern     = regexp.MustCompile(`(?i)\b(test|tests|testing|qa|coverage|verify|validation|e2e)\b`)
	frontendPattern = regexp.MustCompile(`(?i)\b(frontend|ui|ux|css|html|react|component|components|page|pages|view|layout|design|style|styling)\b`)
)

// DefaultClassifier resolves the agent type for a task. A declared type
// always wins; otherwise the title and description are matched against the
// keyword patterns, defaulting to backend.
func DefaultClassifier(t *Task) AgentType {
	if t.AgentType.Valid() {
		return t.AgentType
	}

	text := t.Title + " " + t.Description
	switch {
	case testPattern.MatchString(text):
		return AgentTest
	case frontendPattern.MatchString(text):
		return AgentFrontend
	default:
		return AgentBackend
	}
}
