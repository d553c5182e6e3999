package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/clauseguard/clauseguard/internal/errors"
	"github.com/clauseguard/clauseguard/internal/llm"
	"github.com/clauseguard/clauseguard/internal/logging"
	"github.com/clauseguard/clauseguard/internal/models"
	"github.com/clauseguard/clauseguard/internal/observe"
	"github.com/clauseguard/clauseguard/internal/textutil"
)

// Truncation budgets (approximate tokens) for prompt slots.
const (
	clauseBudget   = 400
	argumentBudget = 300
)

const agentTemperature = 0.2

// structuredCompleter is the model-client surface the analyzer needs;
// tests substitute a fake.
type structuredCompleter interface {
	CompleteStructured(ctx context.Context, messages []llm.Message, schema llm.Schema, out any, modelType llm.ModelType, temperature float32) error
}

// Analyzer runs the adversarial debate over one flagged chunk.
type Analyzer struct {
	llm    structuredCompleter
	logger *logging.Logger
}

// New builds an analyzer on the given model client.
func New(client structuredCompleter) *Analyzer {
	return &Analyzer{
		llm:    client,
		logger: logging.With("component", "adversarial_analyzer"),
	}
}

var pessimistSchema = llm.Schema{
	Properties: map[string]string{
		"is_relevant":         "boolean",
		"relevance_reasoning": "string",
		"risk_argument":       "string",
		"key_concerns":        "array",
	},
	Required: []string{"is_relevant", "relevance_reasoning", "risk_argument"},
}

var optimistSchema = llm.Schema{
	Properties: map[string]string{
		"defense_argument":   "string",
		"industry_context":   "string",
		"mitigating_factors": "array",
	},
	Required: []string{"defense_argument", "industry_context"},
}

var arbiterSchema = llm.Schema{
	Properties: map[string]string{
		"risk_score":  "integer",
		"risk_level":  "string",
		"reasoning":   "string",
		"key_factors": "array",
	},
	Required: []string{"risk_score", "reasoning"},
}

// AnalyzeRisk adjudicates one chunk. The pessimist gatekeeps relevance: an
// irrelevant verdict short-circuits with a zero-score analysis. Model
// failures degrade to conservative per-agent defaults; InsufficientCredits
// is the only error that escapes.
func (a *Analyzer) AnalyzeRisk(ctx context.Context, chunk models.SemanticChunk, detection *models.CategoryDetection) (*models.RiskAnalysis, error) {
	ctx, span := observe.Start(ctx, "Adversarial Analysis")
	defer span.End(nil)
	span.SetAttr("chunk_id", chunk.ID)
	span.SetAttr("category", detection.Category)

	a.logger.Info("analyzing chunk", "chunk_id", chunk.ID, "category", detection.Category)

	params := ExtractParameters(chunk.Text)
	// Redact injection markers; contract text is untrusted prompt input.
	text := textutil.SanitizeForLLM(chunk.Text)

	pessimist, err := a.runPessimist(ctx, text, detection.Category, detection.RetrievedRiskyExamples, params)
	if err != nil {
		return nil, err
	}

	if !pessimist.IsRelevant {
		a.logger.Info("dismissed as not relevant", "chunk_id", chunk.ID, "category", detection.Category)
		return &models.RiskAnalysis{
			ChunkID:        chunk.ID,
			Category:       detection.Category,
			IsRelevant:     false,
			FinalRiskScore: 0,
			FinalRiskLevel: models.RiskLevelLow,
		}, nil
	}

	optimist, err := a.runOptimist(ctx, text, pessimist.RiskArgument, detection.RetrievedSafeExamples, params)
	if err != nil {
		return nil, err
	}

	verdict, err := a.runArbiter(ctx, text, detection.Category, pessimist, optimist,
		detection.RetrievedSafeExamples, detection.RetrievedRiskyExamples, params)
	if err != nil {
		return nil, err
	}

	a.logger.Info("verdict reached",
		"chunk_id", chunk.ID, "score", verdict.RiskScore, "level", verdict.RiskLevel)

	return &models.RiskAnalysis{
		ChunkID:             chunk.ID,
		Category:            detection.Category,
		IsRelevant:          true,
		Pessimist:           pessimist,
		Optimist:            optimist,
		Arbiter:             verdict,
		Parameters:          params,
		SafePrecedentsUsed:  headN(detection.RetrievedSafeExamples, 3),
		RiskyPrecedentsUsed: headN(detection.RetrievedRiskyExamples, 3),
		FinalRiskScore:      verdict.RiskScore,
		FinalRiskLevel:      verdict.RiskLevel,
	}, nil
}

func (a *Analyzer) runPessimist(ctx context.Context, text, category string, riskyPrecedents []string, params *models.ExtractedParameters) (*models.PessimistAnalysis, error) {
	prompt := fmt.Sprintf(pessimistGatekeeperPrompt,
		category, category, category,
		textutil.TruncateForContext(text, clauseBudget),
		formatPrecedents(riskyPrecedents),
		FormatParameters(params))

	var out models.PessimistAnalysis
	err := a.llm.CompleteStructured(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: pessimistSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}, pessimistSchema, &out, llm.ModelSmart, agentTemperature)
	if err != nil {
		if fatal := abortable(err); fatal != nil {
			return nil, fatal
		}
		a.logger.Error("pessimist failed", "error", err)
		// Conservative default: keep the clause in play for manual review.
		return &models.PessimistAnalysis{
			IsRelevant:         true,
			RelevanceReasoning: "Error in analysis",
			RiskArgument:       "Manual review required",
		}, nil
	}
	return &out, nil
}

func (a *Analyzer) runOptimist(ctx context.Context, text, pessimistArgument string, safePrecedents []string, params *models.ExtractedParameters) (*models.OptimistAnalysis, error) {
	prompt := fmt.Sprintf(optimistDefensePrompt,
		textutil.TruncateForContext(text, clauseBudget),
		textutil.TruncateForContext(pessimistArgument, argumentBudget),
		formatPrecedents(safePrecedents),
		FormatParameters(params))

	var out models.OptimistAnalysis
	err := a.llm.CompleteStructured(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: optimistSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}, optimistSchema, &out, llm.ModelSmart, agentTemperature)
	if err != nil {
		if fatal := abortable(err); fatal != nil {
			return nil, fatal
		}
		a.logger.Error("optimist failed", "error", err)
		return &models.OptimistAnalysis{
			DefenseArgument: "Standard practice in industry",
			IndustryContext: "Common in similar agreements",
		}, nil
	}
	return &out, nil
}

func (a *Analyzer) runArbiter(ctx context.Context, text, category string, pessimist *models.PessimistAnalysis, optimist *models.OptimistAnalysis, safePrecedents, riskyPrecedents []string, params *models.ExtractedParameters) (*models.ArbiterVerdict, error) {
	safeSummary := fmt.Sprintf("Standard protection: %d examples show mutual rights, notice periods", len(safePrecedents))
	riskySummary := fmt.Sprintf("Risk patterns: %d examples show unilateral control, no protections", len(riskyPrecedents))

	prompt := fmt.Sprintf(arbiterVerdictPrompt,
		category,
		textutil.TruncateForContext(text, clauseBudget),
		textutil.TruncateForContext(pessimist.RiskArgument, argumentBudget),
		joinOrNone(pessimist.KeyConcerns),
		textutil.TruncateForContext(optimist.DefenseArgument, argumentBudget),
		joinOrNone(optimist.MitigatingFactors),
		safeSummary,
		riskySummary,
		FormatParameters(params))

	var out models.ArbiterVerdict
	err := a.llm.CompleteStructured(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: arbiterSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}, arbiterSchema, &out, llm.ModelSmart, agentTemperature)
	if err != nil {
		if fatal := abortable(err); fatal != nil {
			return nil, fatal
		}
		a.logger.Error("arbiter failed", "error", err)
		return &models.ArbiterVerdict{
			RiskScore: 50,
			RiskLevel: models.RiskLevelMedium,
			Reasoning: "Manual review required due to analysis error",
		}, nil
	}

	// The model's own level field is advisory; the score is authoritative.
	out.RiskLevel = models.ScoreToLevel(out.RiskScore)
	return &out, nil
}

// abortable returns err when it must stop the whole analysis instead of
// degrading to an agent default.
func abortable(err error) error {
	if errors.IsInsufficientCredits(err) {
		return err
	}
	return nil
}

func formatPrecedents(precedents []string) string {
	if len(precedents) == 0 {
		return "None available"
	}
	lines := make([]string, 0, 3)
	for _, p := range headN(precedents, 3) {
		if len(p) > 150 {
			p = p[:150]
		}
		lines = append(lines, "- "+p+"...")
	}
	return strings.Join(lines, "\n")
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(headN(items, 3), ", ")
}

func headN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
