package taskory

import (
	"regexp"
	"strings"
)

// intentKind is the outcome of the rule-based classifier for the latest
// user message.
type intentKind int

const (
	intentChat intentKind = iota
	intentTask
	intentCommand
)

func (k intentKind) String() string {
	return []string{"chat", "task", "command"}[k]
}

// commandVocabulary is matched by exact or prefix match and
// short-circuits classification to command routing.
var commandVocabulary = []string{
	"help", "status", "cancel", "reset", "approve", "lock",
}

var (
	// explicit save/file target: a save-class verb bound to a
	// destination or a concrete file name.
	saveTargetRe = regexp.MustCompile(`(?i)\b(save|write|export|put)\b.*\b(to|into|as|in)\b.*(\.\w{1,5}\b|file|folder|note)`)
	fileNameRe   = regexp.MustCompile(`(?i)\b[\w./-]+\.(md|txt|go|py|js|ts|json|yaml|yml|csv|html|sh)\b`)

	// write verb bound to a file/folder noun.
	writeVerbRe = regexp.MustCompile(`(?i)\b(create|write|make|add|generate|update|edit|append)\b.*\b(file|files|folder|directory|note|notes|document|script)\b`)

	// plan-request phrasing.
	planPhraseRe = regexp.MustCompile(`(?i)\b(make|create|draft|build)\s+(me\s+)?a\s+plan\b|\bplan\s+(out|for)\b|\bbreak\s+(this|it)?\s*down\b|\bstep[- ]by[- ]step\b`)
)

// taskVerbs classify a message as a task when they appear as the first
// word, or after a politeness prefix.
// Creative verbs (write, create, make) are deliberately absent: on
// their own they are as likely to ask for prose as for work, so they
// only count when bound to a file noun or save target above.
var taskVerbs = []string{
	"rename", "move", "delete", "remove", "copy", "run", "execute",
	"install", "build", "deploy", "download", "fetch", "convert",
	"organize", "summarize", "refactor", "fix", "set up", "setup",
	"clean up", "search", "list",
}

// taskPhrases classify by substring anywhere in the message.
var taskPhrases = []string{
	"i need you to", "can you do", "could you do", "please do",
	"for me and save", "and save it", "and write it",
}

var politenessPrefixes = []string{
	"please ", "can you ", "could you ", "would you ", "will you ",
}

// classifyIntent applies a deterministic, ordered rule set to the
// latest message. The precedence between overlapping signals (e.g. a
// write verb with and without a file target) is a tunable heuristic
// covered by scenario tests, not a guaranteed contract.
func classifyIntent(message string) intentKind {
	trimmed := strings.TrimSpace(message)
	lower := strings.ToLower(trimmed)

	if strings.HasPrefix(trimmed, "/") {
		return intentCommand
	}
	for _, cmd := range commandVocabulary {
		if lower == cmd || strings.HasPrefix(lower, cmd+" ") {
			return intentCommand
		}
	}

	if saveTargetRe.MatchString(trimmed) {
		return intentTask
	}
	if fileNameRe.MatchString(trimmed) && hasTaskVerb(lower) {
		return intentTask
	}
	if writeVerbRe.MatchString(trimmed) {
		return intentTask
	}
	if planPhraseRe.MatchString(trimmed) {
		return intentTask
	}
	if hasTaskVerbPrefix(lower) {
		return intentTask
	}
	for _, phrase := range taskPhrases {
		if strings.Contains(lower, phrase) {
			return intentTask
		}
	}

	return intentChat
}

func hasTaskVerbPrefix(lower string) bool {
	stripped := lower
	for _, p := range politenessPrefixes {
		stripped = strings.TrimPrefix(stripped, p)
	}
	for _, verb := range taskVerbs {
		if strings.HasPrefix(stripped, verb+" ") || stripped == verb {
			return true
		}
	}
	return false
}

func hasTaskVerb(lower string) bool {
	for _, verb := range taskVerbs {
		if strings.Contains(lower, verb+" ") {
			return true
		}
	}
	return false
}

// likelyToolUse reports whether the message carries any task-ish or
// file-ish signal. Speculative execution is skipped for such messages
// because the synthesizer will most likely produce a plan.
func likelyToolUse(message string) bool {
	trimmed := strings.TrimSpace(message)
	lower := strings.ToLower(trimmed)
	return saveTargetRe.MatchString(trimmed) ||
		fileNameRe.MatchString(trimmed) ||
		writeVerbRe.MatchString(trimmed) ||
		planPhraseRe.MatchString(trimmed) ||
		hasTaskVerbPrefix(lower)
}
