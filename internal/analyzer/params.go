// Package analyzer implements Stage 3: regex parameter extraction and the
// three-agent adversarial debate (pessimist, optimist, arbiter).
package analyzer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/clauseguard/clauseguard/internal/models"
)

// Structural clause features extracted with plain patterns. Extraction is
// pure: the same text always yields the same record, no model involved.
var (
	daysRe          = regexp.MustCompile(`(?i)(\d+)\s*(?:business\s+)?days?`)
	monthsRe        = regexp.MustCompile(`(?i)(\d+)\s*months?`)
	yearsRe         = regexp.MustCompile(`(?i)(\d+)\s*years?`)
	amountRe        = regexp.MustCompile(`\$\s*[\d,]+(?:\.\d{2})?`)
	writtenNoticeRe = regexp.MustCompile(`(?i)written\s+notice`)
	partySymmetryRe = regexp.MustCompile(`(?i)(?:either|both)\s+part(?:y|ies)`)
	forCauseRe      = regexp.MustCompile(`(?i)for\s+cause`)
)

var (
	capIndicators  = []string{"limited to", "shall not exceed", "maximum", "cap"}
	cureIndicators = []string{"cure", "remedy", "correct the breach"}
)

// ExtractParameters mines the structural features of a clause.
func ExtractParameters(text string) *models.ExtractedParameters {
	lower := strings.ToLower(text)

	params := &models.ExtractedParameters{
		DaysMentioned:   firstInt(daysRe, text),
		MonthsMentioned: firstInt(monthsRe, text),
		YearsMentioned:  firstInt(yearsRe, text),

		AmountsMentioned: amountRe.FindAllString(text, -1),

		HasWrittenNotice: writtenNoticeRe.MatchString(text),
		IsMutual:         partySymmetryRe.MatchString(text),
		RequiresCause:    forCauseRe.MatchString(text),
		HasCap:           containsAny(lower, capIndicators),
		HasCurePeriod:    containsAny(lower, cureIndicators),
	}

	params.RawTextMarkers = map[string]bool{
		"contains_unilateral":    strings.Contains(lower, "company may") || strings.Contains(lower, "vendor may"),
		"contains_either_party":  strings.Contains(lower, "either party"),
		"contains_without_cause": strings.Contains(lower, "without cause"),
		"contains_immediately":   strings.Contains(lower, "immediately"),
		"contains_unlimited":     strings.Contains(lower, "unlimited") || strings.Contains(lower, "all claims"),
	}
	return params
}

// FormatParameters renders the extracted record as prompt bullet lines.
func FormatParameters(params *models.ExtractedParameters) string {
	var lines []string
	if params.DaysMentioned != nil {
		lines = append(lines, "- Notice period: "+strconv.Itoa(*params.DaysMentioned)+" days")
	}
	if len(params.AmountsMentioned) > 0 {
		lines = append(lines, "- Amounts: "+strings.Join(params.AmountsMentioned, ", "))
	}
	if params.IsMutual {
		lines = append(lines, "- Mutual (either party)")
	} else {
		lines = append(lines, "- Unilateral (one party only)")
	}
	if params.HasWrittenNotice {
		lines = append(lines, "- Written notice required")
	}
	if params.RequiresCause {
		lines = append(lines, "- Requires cause")
	}
	if params.HasCap {
		lines = append(lines, "- Has liability cap")
	}

	if len(lines) == 0 {
		return "No specific parameters extracted"
	}
	return strings.Join(lines, "\n")
}

func firstInt(re *regexp.Regexp, text string) *int {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
