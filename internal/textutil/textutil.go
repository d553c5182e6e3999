// Package textutil holds the text normalization helpers shared by the
// pipeline stages.
package textutil

import (
	"regexp"
	"strings"
)

var (
	multiSpace   = regexp.MustCompile(` {2,}`)
	multiNewline = regexp.MustCompile(`\n{3,}`)

	// Prompt-injection markers redacted before clause text reaches a model.
	injectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\[SYSTEM[^\]]*\]`),
		regexp.MustCompile(`(?i)\[INSTRUCTION[^\]]*\]`),
		regexp.MustCompile(`(?i)IGNORE\s+PREVIOUS`),
		regexp.MustCompile(`(?i)DISREGARD\s+(?:ALL|PREVIOUS)`),
		regexp.MustCompile(`(?i)AI\s+REVIEWER:`),
	}
)

// CleanText normalizes extracted document text: strips NUL and zero-width
// spaces, collapses space runs, caps consecutive newlines at two, blanks
// whitespace-only lines and trims. Idempotent: CleanText(CleanText(x)) ==
// CleanText(x).
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "​", "")

	text = multiSpace.ReplaceAllString(text, " ")
	text = multiNewline.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
		}
	}
	text = strings.Join(lines, "\n")
	// Blanking whitespace-only lines can recreate a >=3 newline run, so
	// the collapse must run again to keep the two-newline cap.
	text = multiNewline.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// TruncateForContext caps text at maxTokens*4 characters for prompt
// assembly. When the cut falls mid-sentence it backs up to the last period,
// provided that period sits beyond 80% of the cap. Truncated output always
// ends with "...".
func TruncateForContext(text string, maxTokens int) string {
	maxChars := maxTokens * 4
	if len(text) <= maxChars {
		return text
	}

	truncated := text[:maxChars]
	lastPeriod := strings.LastIndex(truncated, ".")

	if lastPeriod > int(float64(maxChars)*0.8) {
		return truncated[:lastPeriod+1] + "..."
	}
	return truncated + "..."
}

// SanitizeForLLM redacts prompt-injection attempts embedded in contract
// text before it is inlined into a prompt.
func SanitizeForLLM(text string) string {
	sanitized := text
	for _, p := range injectionPatterns {
		sanitized = p.ReplaceAllString(sanitized, "[REDACTED]")
	}
	return sanitized
}
