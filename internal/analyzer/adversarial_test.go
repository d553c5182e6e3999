package analyzer

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clauseguard/clauseguard/internal/errors"
	"github.com/clauseguard/clauseguard/internal/llm"
	"github.com/clauseguard/clauseguard/internal/models"
)

// fakeLLM scripts per-agent behavior. Agents are dispatched on the output
// type, so ordering mistakes surface as nil-field assertions.
type fakeLLM struct {
	pessimist    *models.PessimistAnalysis
	pessimistErr error
	optimist     *models.OptimistAnalysis
	optimistErr  error
	arbiter      *models.ArbiterVerdict
	arbiterErr   error

	prompts []string
}

func (f *fakeLLM) CompleteStructured(_ context.Context, messages []llm.Message, _ llm.Schema, out any, _ llm.ModelType, _ float32) error {
	f.prompts = append(f.prompts, messages[len(messages)-1].Content)
	switch v := out.(type) {
	case *models.PessimistAnalysis:
		if f.pessimistErr != nil {
			return f.pessimistErr
		}
		*v = *f.pessimist
	case *models.OptimistAnalysis:
		if f.optimistErr != nil {
			return f.optimistErr
		}
		*v = *f.optimist
	case *models.ArbiterVerdict:
		if f.arbiterErr != nil {
			return f.arbiterErr
		}
		*v = *f.arbiter
	}
	return nil
}

func relevantPessimist() *models.PessimistAnalysis {
	return &models.PessimistAnalysis{
		IsRelevant:         true,
		RelevanceReasoning: "Clearly a termination clause",
		RiskArgument:       "Unilateral termination without notice",
		KeyConcerns:        []string{"no notice", "no cause", "no cure", "fourth concern"},
	}
}

func happyOptimist() *models.OptimistAnalysis {
	return &models.OptimistAnalysis{
		DefenseArgument:   "Common in vendor agreements",
		IndustryContext:   "SaaS norm",
		MitigatingFactors: []string{"short term"},
	}
}

func testDetection() *models.CategoryDetection {
	return &models.CategoryDetection{
		Category:               "Unilateral Termination",
		Zone:                   models.ZoneCourtroom,
		NeedsAgentReview:       true,
		RetrievedSafeExamples:  []string{"safe a", "safe b", "safe c", "safe d"},
		RetrievedRiskyExamples: []string{"risky a"},
	}
}

func testChunk() models.SemanticChunk {
	return models.SemanticChunk{
		ID:   "chunk_004",
		Text: "The Company may terminate this Agreement immediately without cause.",
	}
}

func TestAnalyzeRiskFullDebate(t *testing.T) {
	f := &fakeLLM{
		pessimist: relevantPessimist(),
		optimist:  happyOptimist(),
		arbiter:   &models.ArbiterVerdict{RiskScore: 80, RiskLevel: "wrong on purpose", Reasoning: "clear imbalance"},
	}

	out, err := New(f).AnalyzeRisk(context.Background(), testChunk(), testDetection())
	require.NoError(t, err)

	assert.True(t, out.IsRelevant)
	assert.Equal(t, "chunk_004", out.ChunkID)
	assert.Equal(t, 80, out.FinalRiskScore)
	// The level is recomputed from the score, never trusted from the model.
	assert.Equal(t, models.RiskLevelCritical, out.FinalRiskLevel)
	assert.Equal(t, models.RiskLevelCritical, out.Arbiter.RiskLevel)

	require.NotNil(t, out.Parameters)
	assert.True(t, out.Parameters.RawTextMarkers["contains_unilateral"])

	assert.Len(t, out.SafePrecedentsUsed, 3)
	assert.Equal(t, []string{"risky a"}, out.RiskyPrecedentsUsed)
	require.Len(t, f.prompts, 3)
}

func TestAnalyzeRiskIrrelevantShortCircuits(t *testing.T) {
	f := &fakeLLM{
		pessimist: &models.PessimistAnalysis{
			IsRelevant:         false,
			RelevanceReasoning: "This is a payment clause",
		},
	}

	out, err := New(f).AnalyzeRisk(context.Background(), testChunk(), testDetection())
	require.NoError(t, err)

	assert.False(t, out.IsRelevant)
	assert.Equal(t, 0, out.FinalRiskScore)
	assert.Equal(t, models.RiskLevelLow, out.FinalRiskLevel)
	assert.Nil(t, out.Optimist)
	assert.Nil(t, out.Arbiter)
	assert.Len(t, f.prompts, 1, "optimist and arbiter must not run")
}

func TestAnalyzeRiskPessimistFailureDefaultsRelevant(t *testing.T) {
	f := &fakeLLM{
		pessimistErr: errors.StructuredParse(stderrors.New("bad json"), "model returned garbage"),
		optimist:     happyOptimist(),
		arbiter:      &models.ArbiterVerdict{RiskScore: 55, Reasoning: "moderate"},
	}

	out, err := New(f).AnalyzeRisk(context.Background(), testChunk(), testDetection())
	require.NoError(t, err)

	assert.True(t, out.IsRelevant)
	assert.Equal(t, "Error in analysis", out.Pessimist.RelevanceReasoning)
	assert.Equal(t, "Manual review required", out.Pessimist.RiskArgument)
	assert.Equal(t, 55, out.FinalRiskScore)
}

func TestAnalyzeRiskAgentFailuresDegrade(t *testing.T) {
	f := &fakeLLM{
		pessimist:   relevantPessimist(),
		optimistErr: errors.StructuredParse(stderrors.New("bad json"), "structured output invalid"),
		arbiterErr:  errors.StructuredParse(stderrors.New("bad json"), "structured output invalid"),
	}

	out, err := New(f).AnalyzeRisk(context.Background(), testChunk(), testDetection())
	require.NoError(t, err)

	assert.Equal(t, "Standard practice in industry", out.Optimist.DefenseArgument)
	assert.Equal(t, "Common in similar agreements", out.Optimist.IndustryContext)
	assert.Equal(t, 50, out.FinalRiskScore)
	assert.Equal(t, models.RiskLevelMedium, out.FinalRiskLevel)
	assert.Equal(t, "Manual review required due to analysis error", out.Arbiter.Reasoning)
}

func TestAnalyzeRiskInsufficientCreditsAborts(t *testing.T) {
	f := &fakeLLM{pessimistErr: errors.InsufficientCredits("quota exhausted")}

	out, err := New(f).AnalyzeRisk(context.Background(), testChunk(), testDetection())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.IsInsufficientCredits(err))
}

func TestAnalyzeRiskPromptContents(t *testing.T) {
	f := &fakeLLM{
		pessimist: relevantPessimist(),
		optimist:  happyOptimist(),
		arbiter:   &models.ArbiterVerdict{RiskScore: 40, Reasoning: "mixed"},
	}

	_, err := New(f).AnalyzeRisk(context.Background(), testChunk(), testDetection())
	require.NoError(t, err)
	require.Len(t, f.prompts, 3)

	assert.Contains(t, f.prompts[0], `about "Unilateral Termination"`)
	assert.Contains(t, f.prompts[0], "- risky a...")
	assert.Contains(t, f.prompts[0], "Unilateral (one party only)")

	assert.Contains(t, f.prompts[1], "Unilateral termination without notice")
	assert.Contains(t, f.prompts[1], "- safe a...")

	// Arbiter sees at most three concerns and the precedent summaries.
	assert.Contains(t, f.prompts[2], "no notice, no cause, no cure")
	assert.False(t, strings.Contains(f.prompts[2], "fourth concern"))
	assert.Contains(t, f.prompts[2], "Standard protection: 4 examples show mutual rights, notice periods")
	assert.Contains(t, f.prompts[2], "Risk patterns: 1 examples show unilateral control, no protections")
}

func TestAnalyzeRiskNoPrecedents(t *testing.T) {
	f := &fakeLLM{
		pessimist: relevantPessimist(),
		optimist:  happyOptimist(),
		arbiter:   &models.ArbiterVerdict{RiskScore: 30, Reasoning: "fine"},
	}
	det := &models.CategoryDetection{Category: "Non-Compete", NeedsAgentReview: true}

	_, err := New(f).AnalyzeRisk(context.Background(), testChunk(), det)
	require.NoError(t, err)

	assert.Contains(t, f.prompts[0], "None available")
	assert.Contains(t, f.prompts[1], "None available")
}
