package document

import (
	"regexp"
	"strings"

	"github.com/clauseguard/clauseguard/internal/models"
)

// Defined terms follow two dominant drafting conventions: a quoted term
// followed by a defining verb, or the "As used herein" preamble.
var definitionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"([^"]{3,50})"\s+(?:means?|shall mean|refers? to|is defined as)\s+([^.;]+[.;])`),
	regexp.MustCompile(`As used (?:herein|in this Agreement),\s+"([^"]{3,50})"\s+(?:means?|shall mean|refers? to)\s+([^.;]+[.;])`),
}

var sectionNumberRe = regexp.MustCompile(`(\d+\.\d+)`)

// ExtractDefinitions mines defined terms from the contract text. Duplicate
// terms (case-insensitive) keep their first definition.
func ExtractDefinitions(text string) []models.Definition {
	seen := make(map[string]bool)
	var defs []models.Definition

	for _, pat := range definitionPatterns {
		for _, loc := range pat.FindAllStringSubmatchIndex(text, -1) {
			term := strings.TrimSpace(text[loc[2]:loc[3]])
			body := strings.TrimSpace(text[loc[4]:loc[5]])

			key := strings.ToLower(term)
			if seen[key] {
				continue
			}
			seen[key] = true

			defs = append(defs, models.Definition{
				Term:       term,
				Definition: body,
				Section:    precedingSection(text, loc[0]),
			})
		}
	}
	return defs
}

// precedingSection looks back up to 100 characters for a section number
// like "2.3".
func precedingSection(text string, pos int) string {
	start := pos - 100
	if start < 0 {
		start = 0
	}
	matches := sectionNumberRe.FindAllString(text[start:pos], -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1]
}
