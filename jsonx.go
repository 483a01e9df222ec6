package taskory

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// extractJSON pulls a single JSON object out of free-form completion
// output. Models return JSON wrapped in markdown fences or prose even
// when a JSON content type is requested, and long responses are
// sometimes truncated mid-object.
//
// Strategy, in order: direct parse; markdown code fence; outermost
// {...} span; then the enumerated repairs on the span — append missing
// closing brackets, truncate to the last balanced bracket. This is a
// best-effort heuristic, not a JSON parser; a failure here degrades to
// a conversational fallback, never to a partially formed plan.
func extractJSON(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)

	if valid(text) {
		return json.RawMessage(text), nil
	}

	if m := codeBlockRe.FindStringSubmatch(text); len(m) > 1 {
		if inner := strings.TrimSpace(m[1]); valid(inner) {
			return json.RawMessage(inner), nil
		}
		text = strings.TrimSpace(m[1])
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return nil, goerr.New("no JSON object found in response")
	}
	span := outermostSpan(text[start:])

	if valid(span) {
		return json.RawMessage(span), nil
	}

	for _, repair := range []func(string) string{appendClosingBrackets, truncateToBalanced} {
		if fixed := repair(span); fixed != "" && valid(fixed) {
			return json.RawMessage(fixed), nil
		}
	}

	return nil, goerr.New("failed to extract JSON from response")
}

func valid(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var v map[string]any
	return json.Unmarshal([]byte(s), &v) == nil
}

// outermostSpan returns the substring from the first opening brace to
// its matching closing brace, honoring string literals and escapes. If
// the object never closes, the whole remainder is returned.
func outermostSpan(text string) string {
	depth := 0
	inString := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[:i+1]
			}
		}
	}
	return text
}

// appendClosingBrackets closes an object truncated after its last
// complete value by appending the missing brackets.
func appendClosingBrackets(span string) string {
	var stack []byte
	inString := false
	for i := 0; i < len(span); i++ {
		c := span[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if inString || len(stack) == 0 {
		return ""
	}

	fixed := strings.TrimRight(span, " \t\n\r,")
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			fixed += "}"
		} else {
			fixed += "]"
		}
	}
	return fixed
}

// truncateToBalanced cuts the span back to the last position where all
// brackets were balanced, dropping a trailing partial value.
func truncateToBalanced(span string) string {
	depth := 0
	inString := false
	last := -1
	for i := 0; i < len(span); i++ {
		c := span[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				last = i
			}
		}
	}
	if last < 0 {
		return ""
	}
	return span[:last+1]
}
