package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clauseguard/clauseguard/internal/errors"
	"github.com/clauseguard/clauseguard/internal/models"
)

type stubProcessor struct{ doc *models.ProcessedDocument }

func (s *stubProcessor) Process(context.Context, string) (*models.ProcessedDocument, error) {
	return s.doc, nil
}

type stubDetector struct {
	byChunk map[string]*models.CategoryDetection
}

func (s *stubDetector) Detect(_ context.Context, c models.SemanticChunk) (*models.CategoryDetection, error) {
	if d, ok := s.byChunk[c.ID]; ok {
		return d, nil
	}
	return &models.CategoryDetection{Category: models.CategoryUnknown, Zone: models.ZoneNoise}, nil
}

type stubRisk struct {
	byChunk map[string]*models.RiskAnalysis
	err     error
	calls   []string
}

func (s *stubRisk) AnalyzeRisk(_ context.Context, c models.SemanticChunk, _ *models.CategoryDetection) (*models.RiskAnalysis, error) {
	s.calls = append(s.calls, c.ID)
	if s.err != nil {
		return nil, s.err
	}
	return s.byChunk[c.ID], nil
}

type stubFixer struct{ calls []string }

func (s *stubFixer) GenerateFix(_ context.Context, _, category string, a *models.RiskAnalysis) (*models.GeneratedFix, error) {
	s.calls = append(s.calls, a.ChunkID)
	return &models.GeneratedFix{
		SuggestedReplacement: "balanced " + category + " clause",
		EditComment:          "made mutual",
		KeyChanges:           []string{"mutual rights"},
	}, nil
}

type stubCompound struct {
	risks []models.CompoundRisk
	got   []*models.RiskAnalysis
}

func (s *stubCompound) Detect(_ context.Context, analyses []*models.RiskAnalysis) ([]models.CompoundRisk, error) {
	s.got = analyses
	return s.risks, nil
}

func doc(chunkIDs ...string) *models.ProcessedDocument {
	d := &models.ProcessedDocument{Metadata: models.DocumentMetadata{Filename: "contract.pdf"}}
	for _, id := range chunkIDs {
		d.Chunks = append(d.Chunks, models.SemanticChunk{ID: id, Text: "text of " + id})
	}
	d.TotalChunks = len(d.Chunks)
	return d
}

func courtroom(category string) *models.CategoryDetection {
	return &models.CategoryDetection{Category: category, Zone: models.ZoneCourtroom, NeedsAgentReview: true}
}

func relevant(id, category string, score int) *models.RiskAnalysis {
	return &models.RiskAnalysis{
		ChunkID:        id,
		Category:       category,
		IsRelevant:     true,
		Pessimist:      &models.PessimistAnalysis{RiskArgument: "one-sided"},
		Optimist:       &models.OptimistAnalysis{DefenseArgument: "standard"},
		Arbiter:        &models.ArbiterVerdict{RiskScore: score, Reasoning: "weighed both"},
		FinalRiskScore: score,
		FinalRiskLevel: models.ScoreToLevel(score),
	}
}

func TestAnalyzeContractFullRun(t *testing.T) {
	risk := &stubRisk{byChunk: map[string]*models.RiskAnalysis{
		"chunk_001": relevant("chunk_001", "Unilateral Termination", 80),
		"chunk_003": relevant("chunk_003", "Unlimited Liability", 60),
	}}
	fixer := &stubFixer{}
	comp := &stubCompound{risks: []models.CompoundRisk{{RiskType: "Termination + Unlimited Liability"}}}

	a := New(
		&stubProcessor{doc: doc("chunk_001", "chunk_002", "chunk_003")},
		&stubDetector{byChunk: map[string]*models.CategoryDetection{
			"chunk_001": courtroom("Unilateral Termination"),
			"chunk_003": courtroom("Unlimited Liability"),
		}},
		risk, fixer, comp)

	result, err := a.AnalyzeContract(context.Background(), "contract.pdf")
	require.NoError(t, err)

	assert.Equal(t, "contract.pdf", result.Document.Filename)
	assert.Equal(t, 3, result.Document.TotalChunks)
	assert.Equal(t, 2, result.Document.RiskyClausesFound)

	// chunk_002 never reached the agents: noise zone.
	assert.Equal(t, []string{"chunk_001", "chunk_003"}, risk.calls)
	assert.Equal(t, []string{"chunk_001", "chunk_003"}, fixer.calls)

	assert.Equal(t, 70.0, result.Summary.AverageRiskScore)
	assert.Equal(t, models.RiskLevelHigh, result.Summary.OverallRisk)
	assert.Equal(t, 1, result.Summary.CompoundRisksFound)
	assert.Equal(t, []string{"Unilateral Termination", "Unlimited Liability"}, result.Summary.CategoriesFlagged)

	first := result.RiskyClauses[0]
	assert.Equal(t, "chunk_001", first.ChunkID)
	assert.Equal(t, "one-sided", first.PessimistArgument)
	assert.Equal(t, "standard", first.OptimistArgument)
	assert.Equal(t, "weighed both", first.ArbiterReasoning)
	assert.Equal(t, "balanced Unilateral Termination clause", first.SuggestedFix)

	require.Len(t, comp.got, 2, "compound detector sees the gated analyses")
}

func TestAnalyzeContractGatesLowScores(t *testing.T) {
	irrelevant := relevant("chunk_002", "Non-Compete", 90)
	irrelevant.IsRelevant = false

	risk := &stubRisk{byChunk: map[string]*models.RiskAnalysis{
		"chunk_001": relevant("chunk_001", "Non-Compete", 49),
		"chunk_002": irrelevant,
	}}
	fixer := &stubFixer{}
	comp := &stubCompound{}

	a := New(
		&stubProcessor{doc: doc("chunk_001", "chunk_002")},
		&stubDetector{byChunk: map[string]*models.CategoryDetection{
			"chunk_001": courtroom("Non-Compete"),
			"chunk_002": courtroom("Non-Compete"),
		}},
		risk, fixer, comp)

	result, err := a.AnalyzeContract(context.Background(), "contract.pdf")
	require.NoError(t, err)

	assert.Empty(t, fixer.calls, "gated clauses get no fix")
	assert.Empty(t, result.RiskyClauses)
	assert.Empty(t, comp.got)
	assert.Equal(t, 0.0, result.Summary.AverageRiskScore)
	assert.Equal(t, models.RiskLevelLow, result.Summary.OverallRisk)
	assert.NotNil(t, result.RiskyClauses)
	assert.NotNil(t, result.Summary.CategoriesFlagged)
}

func TestAnalyzeContractScoreFiftyPasses(t *testing.T) {
	risk := &stubRisk{byChunk: map[string]*models.RiskAnalysis{
		"chunk_001": relevant("chunk_001", "Non-Compete", 50),
	}}
	a := New(
		&stubProcessor{doc: doc("chunk_001")},
		&stubDetector{byChunk: map[string]*models.CategoryDetection{"chunk_001": courtroom("Non-Compete")}},
		risk, &stubFixer{}, &stubCompound{})

	result, err := a.AnalyzeContract(context.Background(), "contract.pdf")
	require.NoError(t, err)
	require.Len(t, result.RiskyClauses, 1)
	assert.Equal(t, 50, result.RiskyClauses[0].RiskScore)
}

func TestAnalyzeContractPropagatesFatalErrors(t *testing.T) {
	risk := &stubRisk{err: errors.InsufficientCredits("quota exhausted")}
	a := New(
		&stubProcessor{doc: doc("chunk_001")},
		&stubDetector{byChunk: map[string]*models.CategoryDetection{"chunk_001": courtroom("Non-Compete")}},
		risk, &stubFixer{}, &stubCompound{})

	_, err := a.AnalyzeContract(context.Background(), "contract.pdf")
	require.Error(t, err)
	assert.True(t, errors.IsInsufficientCredits(err))
}
