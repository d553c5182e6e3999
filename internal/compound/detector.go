// Package compound implements Stage 5: detecting systemic risks that only
// appear when flagged clauses are considered together.
package compound

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/clauseguard/clauseguard/internal/errors"
	"github.com/clauseguard/clauseguard/internal/llm"
	"github.com/clauseguard/clauseguard/internal/logging"
	"github.com/clauseguard/clauseguard/internal/models"
	"github.com/clauseguard/clauseguard/internal/observe"
)

// dangerousPattern names a known-bad category combination.
type dangerousPattern struct {
	categories  []string
	riskType    string
	description string
}

var dangerousPatterns = []dangerousPattern{
	{
		categories:  []string{"Unilateral Termination", "Unlimited Liability"},
		riskType:    "Termination + Unlimited Liability",
		description: "Vendor can terminate at will while maintaining unlimited liability claims",
	},
	{
		categories:  []string{"Unilateral Termination", "Non-Compete"},
		riskType:    "Termination + Non-Compete Lock-in",
		description: "Vendor can terminate while non-compete prevents working elsewhere",
	},
	{
		categories:  []string{"Unlimited Liability", "Non-Compete"},
		riskType:    "Unlimited Liability + Restricted Exit",
		description: "Unlimited exposure with no ability to work for competitors",
	},
}

const patternDescriptionSuffix = ". This creates a power imbalance where one party controls both contract duration and financial exposure."

const patternMitigation = "Negotiate to make both clauses mutual and balanced. If one party can terminate unilaterally, ensure liability is capped and reasonable."

const synthesisSystemPrompt = "You are a senior contract attorney identifying systemic risks."

// Slot: newline-joined clause summaries.
const synthesisPrompt = `
FLAGGED CLAUSES:
%s

TASK: Identify COMPOUND RISKS where these clauses combine to create bigger problems.

CRITICAL: Respond with valid JSON matching this EXACT structure:
{
"risks": [
    {
    "risk_type": "Brief name of compound risk",
    "severity": "Critical",
    "description": "Why this combination is dangerous",
    "affected_clause_ids": ["chunk_005", "chunk_006"],
    "mitigation_advice": "How to fix it",
    "combined_risk_score": 90
    }
]
}

If no compound risks exist, return: {"risks": []}

Only report GENUINE compound risks (0-2 maximum).
`

var synthesisSchema = llm.Schema{
	Properties: map[string]string{"risks": "array"},
	Required:   []string{"risks"},
}

type structuredCompleter interface {
	CompleteStructured(ctx context.Context, messages []llm.Message, schema llm.Schema, out any, modelType llm.ModelType, temperature float32) error
}

// Detector finds compound risks across a document's flagged clauses.
type Detector struct {
	llm    structuredCompleter
	logger *logging.Logger
}

// New builds a compound-risk detector.
func New(client structuredCompleter) *Detector {
	return &Detector{
		llm:    client,
		logger: logging.With("component", "compound_detector"),
	}
}

// Detect runs pattern matching, severity escalation and model synthesis
// over the flagged clauses, deduplicating the combined results. Fewer than
// two analyses cannot combine, so the result is empty.
func (d *Detector) Detect(ctx context.Context, analyses []*models.RiskAnalysis) ([]models.CompoundRisk, error) {
	ctx, span := observe.Start(ctx, "Compound Risk Detection")
	defer span.End(nil)

	if len(analyses) < 2 {
		d.logger.Info("fewer than two risky clauses, no compound risks possible")
		return nil, nil
	}

	d.logger.Info("checking clauses for compound risks", "count", len(analyses))

	risks := d.detectPatternRisks(analyses)
	risks = append(risks, d.detectSeverityEscalation(analyses)...)

	synthesized, err := d.synthesize(ctx, analyses)
	if err != nil {
		return nil, err
	}
	risks = append(risks, synthesized...)

	unique := deduplicate(risks)
	d.logger.Info("compound risk detection complete", "found", len(unique))
	return unique, nil
}

// detectPatternRisks flags every known-dangerous category combination
// present among the relevant clauses.
func (d *Detector) detectPatternRisks(analyses []*models.RiskAnalysis) []models.CompoundRisk {
	present := make(map[string]bool)
	for _, a := range analyses {
		if a.IsRelevant {
			present[a.Category] = true
		}
	}

	var risks []models.CompoundRisk
	for _, pattern := range dangerousPatterns {
		covered := true
		inPattern := make(map[string]bool)
		for _, c := range pattern.categories {
			inPattern[c] = true
			if !present[c] {
				covered = false
			}
		}
		if !covered {
			continue
		}

		var affected []string
		var total, n int
		for _, a := range analyses {
			if a.IsRelevant && inPattern[a.Category] {
				affected = append(affected, a.ChunkID)
				total += a.FinalRiskScore
				n++
			}
		}

		combined := 50
		if n > 0 {
			combined = total / n
		}
		combined = clampScore(combined + 15)

		risks = append(risks, models.CompoundRisk{
			RiskType:          pattern.riskType,
			Severity:          models.ScoreToSeverity(combined),
			Description:       pattern.description + patternDescriptionSuffix,
			AffectedClauseIDs: affected,
			MitigationAdvice:  patternMitigation,
			CombinedRiskScore: combined,
		})
		d.logger.Info("dangerous pattern detected", "risk_type", pattern.riskType)
	}
	return risks
}

// detectSeverityEscalation flags categories with two or more high-scoring
// clauses: repeated exposure in one area is worse than the sum of parts.
func (d *Detector) detectSeverityEscalation(analyses []*models.RiskAnalysis) []models.CompoundRisk {
	byCategory := make(map[string][]*models.RiskAnalysis)
	var order []string
	for _, a := range analyses {
		if a.IsRelevant && a.FinalRiskScore >= 70 {
			if _, ok := byCategory[a.Category]; !ok {
				order = append(order, a.Category)
			}
			byCategory[a.Category] = append(byCategory[a.Category], a)
		}
	}

	var risks []models.CompoundRisk
	for _, category := range order {
		group := byCategory[category]
		if len(group) < 2 {
			continue
		}

		total := 0
		ids := make([]string, 0, len(group))
		for _, a := range group {
			total += a.FinalRiskScore
			ids = append(ids, a.ChunkID)
		}
		score := clampScore(total/len(group) + 10)

		risks = append(risks, models.CompoundRisk{
			RiskType: fmt.Sprintf("Multiple %s Risks", category),
			Severity: models.ScoreToSeverity(score),
			Description: fmt.Sprintf("Contract contains %d separate high-risk %s clauses, creating systemic vulnerability.",
				len(group), category),
			AffectedClauseIDs: ids,
			MitigationAdvice: fmt.Sprintf("Address all %s clauses holistically to ensure consistent protections throughout the contract.",
				category),
			CombinedRiskScore: score,
		})
		d.logger.Info("severity escalation", "category", category, "count", len(group))
	}
	return risks
}

// synthesisResult is the structured synthesis reply. Validate enforces what
// the schema cannot: scores within [0, 100] and at least one affected
// clause per risk.
type synthesisResult struct {
	Risks []models.CompoundRisk `json:"risks"`
}

func (r *synthesisResult) Validate() error {
	for i, risk := range r.Risks {
		if risk.CombinedRiskScore < 0 || risk.CombinedRiskScore > 100 {
			return fmt.Errorf("risk %d: combined_risk_score must be within [0, 100], got %d", i, risk.CombinedRiskScore)
		}
		if len(risk.AffectedClauseIDs) == 0 {
			return fmt.Errorf("risk %d: affected_clause_ids must not be empty", i)
		}
	}
	return nil
}

// synthesize asks the model for non-obvious combinations. A model failure
// yields no synthesized risks, never an error; only InsufficientCredits
// escapes.
func (d *Detector) synthesize(ctx context.Context, analyses []*models.RiskAnalysis) ([]models.CompoundRisk, error) {
	var summaries []string
	for i, a := range analyses {
		if !a.IsRelevant || a.FinalRiskScore < 50 {
			continue
		}
		issue := "See analysis"
		if a.Arbiter != nil {
			issue = a.Arbiter.Reasoning
			if len(issue) > 150 {
				issue = issue[:150]
			}
		}
		summaries = append(summaries, fmt.Sprintf("%d. [%s] Risk: %d/100\n   Issue: %s...",
			i+1, a.Category, a.FinalRiskScore, issue))
	}
	if len(summaries) < 2 {
		return nil, nil
	}

	prompt := fmt.Sprintf(synthesisPrompt, strings.Join(summaries, "\n"))

	var out synthesisResult
	err := d.llm.CompleteStructured(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: synthesisSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}, synthesisSchema, &out, llm.ModelSmart, 0.2)
	if err != nil {
		if errors.IsInsufficientCredits(err) {
			return nil, err
		}
		d.logger.Warn("compound synthesis failed", "error", err)
		return nil, nil
	}
	if len(out.Risks) > 2 {
		out.Risks = out.Risks[:2]
	}
	return out.Risks, nil
}

// deduplicate keeps the first risk for each (type, affected set) pair.
func deduplicate(risks []models.CompoundRisk) []models.CompoundRisk {
	seen := make(map[string]bool)
	var unique []models.CompoundRisk
	for _, r := range risks {
		ids := make([]string, len(r.AffectedClauseIDs))
		copy(ids, r.AffectedClauseIDs)
		sort.Strings(ids)
		key := r.RiskType + "|" + strings.Join(ids, ",")
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, r)
	}
	return unique
}

func clampScore(score int) int {
	if score > 100 {
		return 100
	}
	return score
}
