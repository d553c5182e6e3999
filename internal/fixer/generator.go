// Package fixer implements Stage 4: drafting a safe replacement for each
// flagged clause, guided by safe templates retrieved from the corpus.
package fixer

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
	"github.com/clauseguard/clauseguard/internal/textutil"
	"github.com/clauseguard/clauseguard/internal/vectorstore"
)

const fixSystemPrompt = "You are a senior contract attorney drafting protective legal language."

const fixTemperature = 0.3

// Slots: category, risky clause, risk summary, template examples, word count.
const fixPrompt = `
You are an expert contract attorney drafting safe, balanced legal language.

TASK: Rewrite this risky %s clause to be fair, mutual, and protective.

RISKY CLAUSE:
"%s"

IDENTIFIED RISKS:
%s

SAFE TEMPLATES FROM DATABASE (use these as guidance):
%s

REQUIREMENTS:
1. **Fix the specific risks identified** (unilateral → mutual, unlimited → capped, etc.)
2. **Maintain similar length** (~%d words)
3. **Use professional legal language** (formal but clear)
4. **Include specific protections**:
   - For Termination: notice period (30-90 days), written notice, mutual rights
   - For Liability: clear caps (e.g., "fees paid in 12 months"), exceptions only for fraud/gross negligence
   - For Non-Compete: reasonable scope (time/geography), carve-outs for general skills

5. **Edit comment**: Explain changes in 1-2 sentences (max 50 words)
6. **Key changes**: List 2-3 specific improvements (e.g., "Added 60-day notice period")

Generate a complete, copy-pasteable clause that a lawyer can insert directly into the contract.
`

var fixSchema = llm.Schema{
	Properties: map[string]string{
		"suggested_replacement": "string",
		"edit_comment":          "string",
		"key_changes":           "array",
		"precedent_citations":   "array",
	},
	Required: []string{"suggested_replacement", "edit_comment"},
}

// corpus is the retrieval surface the generator needs; tests stub it.
type corpus interface {
	QueryCategory(ctx context.Context, text, category, riskLevel string, k int) ([]vectorstore.Match, error)
}

type structuredCompleter interface {
	CompleteStructured(ctx context.Context, messages []llm.Message, schema llm.Schema, out any, modelType llm.ModelType, temperature float32) error
}

// Generator drafts replacements for flagged clauses.
type Generator struct {
	llm    structuredCompleter
	store  corpus
	logger *logging.Logger
}

// New builds a fix generator.
func New(client structuredCompleter, store corpus) *Generator {
	return &Generator{
		llm:    client,
		store:  store,
		logger: logging.With("component", "fix_generator"),
	}
}

// GenerateFix drafts a safe replacement for riskyText. Generation failures
// degrade to the best available template (or the original text) so the
// report is never missing a suggestion; only InsufficientCredits escapes.
func (g *Generator) GenerateFix(ctx context.Context, riskyText, category string, analysis *models.RiskAnalysis) (*models.GeneratedFix, error) {
	ctx, span := observe.Start(ctx, "Fix Generation")
	defer span.End(nil)
	span.SetAttr("category", category)

	g.logger.Info("generating fix", "category", category)

	templates, err := g.retrieveSafeTemplates(ctx, riskyText, category, analysis.Parameters)
	if err != nil {
		return nil, err
	}

	fix, err := g.generateWithTemplates(ctx, riskyText, category, analysis, templates)
	if err != nil {
		return nil, err
	}

	// Citations come from retrieval, not the model.
	fix.PrecedentCitations = citations(templates)

	g.logger.Info("fix generated", "chars", len(fix.SuggestedReplacement))
	return fix, nil
}

// retrieveSafeTemplates queries broadly, keeps only safe exemplars, then
// re-scores with structural boosts so templates matching the clause's shape
// (notice periods, mutuality, caps) rank first.
func (g *Generator) retrieveSafeTemplates(ctx context.Context, riskyText, category string, params *models.ExtractedParameters) ([]vectorstore.Match, error) {
	matches, err := g.store.QueryCategory(ctx, riskyText, category, "", 10)
	if err != nil {
		return nil, err
	}

	var safe []vectorstore.Match
	for _, m := range matches {
		if m.Metadata.RiskLevel == models.ExemplarSafe {
			safe = append(safe, m)
		}
	}

	if params != nil && len(safe) > 0 {
		type scored struct {
			score float64
			match vectorstore.Match
		}
		scoredTemplates := make([]scored, 0, len(safe))
		for _, m := range safe {
			score := m.Similarity
			text := strings.ToLower(m.Text)

			if params.DaysMentioned != nil && strings.Contains(text, "days") {
				score *= 1.2
			}
			if params.IsMutual && strings.Contains(text, "either party") {
				score *= 1.3
			}
			if params.HasCap && (strings.Contains(text, "limited") || strings.Contains(text, "cap")) {
				score *= 1.2
			}
			scoredTemplates = append(scoredTemplates, scored{score, m})
		}
		sort.SliceStable(scoredTemplates, func(i, j int) bool {
			return scoredTemplates[i].score > scoredTemplates[j].score
		})
		safe = safe[:0]
		for _, s := range scoredTemplates {
			safe = append(safe, s.match)
		}
	}

	if len(safe) > 5 {
		safe = safe[:5]
	}
	return safe, nil
}

func (g *Generator) generateWithTemplates(ctx context.Context, riskyText, category string, analysis *models.RiskAnalysis, templates []vectorstore.Match) (*models.GeneratedFix, error) {
	templateExamples := "No templates available - generate from scratch."
	if len(templates) > 0 {
		var parts []string
		for i, t := range templates {
			if i == 3 {
				break
			}
			parts = append(parts, fmt.Sprintf("Example %d (Similarity: %.0f%%):\n%s", i+1, t.Similarity*100, t.Text))
		}
		templateExamples = strings.Join(parts, "\n\n")
	}

	keyIssues := "See analysis"
	if analysis.Arbiter != nil {
		keyIssues = analysis.Arbiter.Reasoning
		if len(keyIssues) > 200 {
			keyIssues = keyIssues[:200]
		}
	}
	riskSummary := fmt.Sprintf("\nRisk Score: %d/100 (%s)\nKey Issues: %s\n",
		analysis.FinalRiskScore, analysis.FinalRiskLevel, keyIssues)

	prompt := fmt.Sprintf(fixPrompt,
		category, textutil.SanitizeForLLM(riskyText), riskSummary, templateExamples, len(strings.Fields(riskyText)))

	var fix models.GeneratedFix
	err := g.llm.CompleteStructured(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: fixSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}, fixSchema, &fix, llm.ModelSmart, fixTemperature)
	if err != nil {
		if errors.IsInsufficientCredits(err) {
			return nil, err
		}
		g.logger.Error("fix generation failed", "error", err)

		replacement := riskyText
		if len(templates) > 0 {
			replacement = templates[0].Text
		}
		return &models.GeneratedFix{
			SuggestedReplacement: replacement,
			EditComment:          "Manual drafting recommended due to generation error.",
			KeyChanges:           []string{"Review and revise manually"},
		}, nil
	}
	return &fix, nil
}

func citations(templates []vectorstore.Match) []string {
	var out []string
	for i, t := range templates {
		if i == 2 {
			break
		}
		text := t.Text
		if len(text) > 100 {
			text = text[:100]
		}
		out = append(out, text+"...")
	}
	return out
}
