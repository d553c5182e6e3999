// Package pipeline wires the five analysis stages into one end-to-end run.
package pipeline

import (
	"context"
	"math"
	"sort"

	"github.com/clauseguard/clauseguard/internal/logging"
	"github.com/clauseguard/clauseguard/internal/models"
	"github.com/clauseguard/clauseguard/internal/observe"
)

// riskScoreGate is the minimum arbiter score for a clause to appear in the
// report. Relevant but low-scoring clauses are dropped silently.
const riskScoreGate = 50

// Stage interfaces, satisfied by the concrete packages and stubbed in tests.
type (
	documentProcessor interface {
		Process(ctx context.Context, path string) (*models.ProcessedDocument, error)
	}
	categoryDetector interface {
		Detect(ctx context.Context, chunk models.SemanticChunk) (*models.CategoryDetection, error)
	}
	riskAnalyzer interface {
		AnalyzeRisk(ctx context.Context, chunk models.SemanticChunk, detection *models.CategoryDetection) (*models.RiskAnalysis, error)
	}
	fixGenerator interface {
		GenerateFix(ctx context.Context, riskyText, category string, analysis *models.RiskAnalysis) (*models.GeneratedFix, error)
	}
	compoundDetector interface {
		Detect(ctx context.Context, analyses []*models.RiskAnalysis) ([]models.CompoundRisk, error)
	}
)

// Analyzer orchestrates a full contract analysis.
type Analyzer struct {
	processor documentProcessor
	detector  categoryDetector
	risk      riskAnalyzer
	fixer     fixGenerator
	compound  compoundDetector
	logger    *logging.Logger
}

// New wires the stages together.
func New(processor documentProcessor, detector categoryDetector, risk riskAnalyzer, fixer fixGenerator, compound compoundDetector) *Analyzer {
	return &Analyzer{
		processor: processor,
		detector:  detector,
		risk:      risk,
		fixer:     fixer,
		compound:  compound,
		logger:    logging.With("component", "pipeline"),
	}
}

// AnalyzeContract runs all five stages on the file at path. Chunks are
// processed in document order so the report is stable for a given input.
func (a *Analyzer) AnalyzeContract(ctx context.Context, path string) (*models.AnalysisResult, error) {
	ctx, span := observe.Start(ctx, "Contract Analysis")
	var err error
	defer func() { span.End(err) }()
	span.SetAttr("path", path)

	doc, err := a.processor.Process(ctx, path)
	if err != nil {
		return nil, err
	}
	a.logger.Info("analyzing document", "filename", doc.Metadata.Filename, "chunks", doc.TotalChunks)

	var (
		riskyClauses []models.RiskyClause
		analyses     []*models.RiskAnalysis
	)
	for _, chunk := range doc.Chunks {
		detection, detErr := a.detector.Detect(ctx, chunk)
		if detErr != nil {
			err = detErr
			return nil, err
		}
		if !detection.NeedsAgentReview {
			continue
		}

		analysis, anErr := a.risk.AnalyzeRisk(ctx, chunk, detection)
		if anErr != nil {
			err = anErr
			return nil, err
		}
		if !analysis.IsRelevant || analysis.FinalRiskScore < riskScoreGate {
			continue
		}
		analyses = append(analyses, analysis)

		fix, fixErr := a.fixer.GenerateFix(ctx, chunk.Text, detection.Category, analysis)
		if fixErr != nil {
			err = fixErr
			return nil, err
		}

		riskyClauses = append(riskyClauses, models.RiskyClause{
			ChunkID:           chunk.ID,
			Category:          detection.Category,
			OriginalText:      chunk.Text,
			RiskScore:         analysis.FinalRiskScore,
			RiskLevel:         analysis.FinalRiskLevel,
			PessimistArgument: riskArgument(analysis),
			OptimistArgument:  defenseArgument(analysis),
			ArbiterReasoning:  arbiterReasoning(analysis),
			SuggestedFix:      fix.SuggestedReplacement,
			FixComment:        fix.EditComment,
			KeyChanges:        fix.KeyChanges,
		})
	}

	compoundRisks, cmpErr := a.compound.Detect(ctx, analyses)
	if cmpErr != nil {
		err = cmpErr
		return nil, err
	}

	result := &models.AnalysisResult{
		Document: models.DocumentSummary{
			Filename:          doc.Metadata.Filename,
			TotalChunks:       doc.TotalChunks,
			RiskyClausesFound: len(riskyClauses),
		},
		Summary: models.RiskSummary{
			OverallRisk:        models.OverallRisk(averageScore(riskyClauses)),
			AverageRiskScore:   round1(averageScore(riskyClauses)),
			CompoundRisksFound: len(compoundRisks),
			CategoriesFlagged:  flaggedCategories(riskyClauses),
		},
		RiskyClauses:  riskyClauses,
		CompoundRisks: compoundRisks,
	}
	if result.RiskyClauses == nil {
		result.RiskyClauses = []models.RiskyClause{}
	}
	if result.CompoundRisks == nil {
		result.CompoundRisks = []models.CompoundRisk{}
	}

	a.logger.Info("analysis complete",
		"risky_clauses", len(riskyClauses),
		"compound_risks", len(compoundRisks),
		"overall", result.Summary.OverallRisk)
	return result, nil
}

func riskArgument(a *models.RiskAnalysis) string {
	if a.Pessimist == nil {
		return ""
	}
	return a.Pessimist.RiskArgument
}

func defenseArgument(a *models.RiskAnalysis) string {
	if a.Optimist == nil {
		return ""
	}
	return a.Optimist.DefenseArgument
}

func arbiterReasoning(a *models.RiskAnalysis) string {
	if a.Arbiter == nil {
		return ""
	}
	return a.Arbiter.Reasoning
}

func averageScore(clauses []models.RiskyClause) float64 {
	if len(clauses) == 0 {
		return 0
	}
	total := 0
	for _, c := range clauses {
		total += c.RiskScore
	}
	return float64(total) / float64(len(clauses))
}

func flaggedCategories(clauses []models.RiskyClause) []string {
	seen := make(map[string]bool)
	var categories []string
	for _, c := range clauses {
		if !seen[c.Category] {
			seen[c.Category] = true
			categories = append(categories, c.Category)
		}
	}
	sort.Strings(categories)
	if categories == nil {
		categories = []string{}
	}
	return categories
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
