package document

import (
	"regexp"
	"strings"
)

// Contract metadata is mined from the document header with plain pattern
// matching. Best effort: a miss leaves the field empty rather than failing
// the pipeline.

const (
	// Parties and dates live near the top of a contract.
	headerWindow = 2000
	// Contract-type keywords are voted over a slightly larger window.
	typeWindow = 3000
)

var partyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)by\s+and\s+between\s+(.+?)\s+and\s+(.+?)(?:\s*\(|,|\.|\n)`),
	regexp.MustCompile(`(?i)entered\s+into\s+by\s+(.+?)\s+and\s+(.+?)(?:\s*\(|,|\.|\n)`),
	regexp.MustCompile(`(?m)^([A-Z][A-Za-z0-9\s,&]+(?:Inc|LLC|Corp|Ltd|Company)\.?)\s*$`),
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)effective\s+(?:as\s+of\s+)?(?:date[:\s]+)?([^\n.;]+)`),
	regexp.MustCompile(`(?i)dated\s+(?:as\s+of\s+)?([^\n.;]+)`),
	regexp.MustCompile(`(?i)entered\s+into\s+on\s+([^\n.;]+)`),
}

var (
	amountPattern = regexp.MustCompile(`(?i)\$\s*[\d,]+(?:\.\d{2})?(?:\s*(?:million|billion|thousand|USD|dollars))?`)
	dateCleanupRe = regexp.MustCompile(`[^\w\s,]`)
	contractTypes = []contractTypeRule{
		{"NDA", []string{"non-disclosure", "nondisclosure", "confidentiality agreement", "nda"}},
		{"Master Service Agreement", []string{"master service agreement", "master services agreement", "msa"}},
		{"Service Agreement", []string{"service agreement", "services agreement", "statement of work"}},
		{"Employment Contract", []string{"employment agreement", "employment contract", "offer of employment"}},
		{"Purchase Agreement", []string{"purchase agreement", "purchase order", "sale of goods"}},
	}
)

type contractTypeRule struct {
	name     string
	keywords []string
}

// ExtractParties returns up to two contracting parties found in the header.
// Fewer than two plausible names means the extraction is unreliable, so
// nothing is returned.
func ExtractParties(text string) []string {
	header := head(text, headerWindow)

	var candidates []string
	for _, pat := range partyPatterns {
		for _, m := range pat.FindAllStringSubmatch(header, -1) {
			for _, group := range m[1:] {
				name := strings.TrimSpace(group)
				if len(name) > 3 && len(name) < 100 {
					candidates = append(candidates, name)
				}
			}
		}
		if len(candidates) >= 2 {
			break
		}
	}

	if len(candidates) < 2 {
		return nil
	}
	return candidates[:2]
}

// ExtractEffectiveDate returns the first plausible effective-date phrase.
func ExtractEffectiveDate(text string) string {
	header := head(text, headerWindow)
	for _, pat := range datePatterns {
		m := pat.FindStringSubmatch(header)
		if m == nil {
			continue
		}
		date := strings.TrimSpace(dateCleanupRe.ReplaceAllString(m[1], ""))
		if len(date) > 3 && len(date) < 50 {
			return date
		}
	}
	return ""
}

// ExtractAmounts returns up to five distinct dollar amounts mentioned
// anywhere in the document.
func ExtractAmounts(text string) []string {
	seen := make(map[string]bool)
	var amounts []string
	for _, m := range amountPattern.FindAllString(text, -1) {
		m = strings.TrimSpace(m)
		if seen[m] {
			continue
		}
		seen[m] = true
		amounts = append(amounts, m)
		if len(amounts) == 5 {
			break
		}
	}
	return amounts
}

// DetectContractType votes keyword occurrences against the document opening
// and returns the best-supported type, defaulting to General Contract.
func DetectContractType(text string) string {
	window := strings.ToLower(head(text, typeWindow))

	best := "General Contract"
	bestVotes := 0
	for _, rule := range contractTypes {
		votes := 0
		for _, kw := range rule.keywords {
			votes += strings.Count(window, kw)
		}
		if votes > bestVotes {
			best = rule.name
			bestVotes = votes
		}
	}
	return best
}

func head(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n]
}
