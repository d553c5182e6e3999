package models

import (
	"fmt"
	"time"
)

// Risk levels assigned by the arbiter and reported per clause.
const (
	RiskLevelLow      = "Low"
	RiskLevelMedium   = "Medium"
	RiskLevelHigh     = "High"
	RiskLevelCritical = "Critical"
)

// Detection zones produced by the category detector.
const (
	ZoneNoise     = "noise"
	ZoneCourtroom = "courtroom"
	ZoneSafe      = "safe"
)

// Exemplar risk levels in the golden-standards corpus.
const (
	ExemplarSafe  = "safe"
	ExemplarRisky = "risky"
)

// TargetCategories is the closed set of risk topics the system recognizes.
var TargetCategories = []string{
	"Unilateral Termination",
	"Unlimited Liability",
	"Non-Compete",
}

// CategoryUnknown is returned when the prototype store yields no match.
const CategoryUnknown = "Unknown"

// DocumentMetadata describes an ingested contract. Created during Stage 1
// and immutable afterward.
type DocumentMetadata struct {
	Filename       string    `json:"filename"`
	FileSize       int64     `json:"file_size"`
	PageCount      int       `json:"page_count"`
	ExtractionDate time.Time `json:"extraction_date"`

	ContractType     string   `json:"contract_type,omitempty"`
	Parties          []string `json:"parties,omitempty"`
	EffectiveDate    string   `json:"effective_date,omitempty"`
	MentionedAmounts []string `json:"mentioned_amounts,omitempty"`
}

// Definition is a defined term extracted from the contract text.
type Definition struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
	Section    string `json:"section,omitempty"`
}

// SemanticChunk is a semantically coherent span of contract text, the unit
// of analysis. Spans are half-open [StartChar, EndChar) into the cleaned
// full text.
type SemanticChunk struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
	WordCount int    `json:"word_count"`

	PrecedingText string `json:"preceding_text,omitempty"`
	FollowingText string `json:"following_text,omitempty"`
}

// ProcessedDocument is the output of Stage 1.
type ProcessedDocument struct {
	Metadata    DocumentMetadata `json:"metadata"`
	FullText    string           `json:"full_text"`
	Definitions []Definition     `json:"definitions"`
	Chunks      []SemanticChunk  `json:"chunks"`

	TotalChunks           int     `json:"total_chunks"`
	AvgChunkLength        float64 `json:"avg_chunk_length"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

// CategoryDetection is the Stage 2 triage verdict for one chunk.
type CategoryDetection struct {
	Category              string  `json:"category"`
	Confidence            float64 `json:"confidence"`
	SimilarityToPrototype float64 `json:"similarity_to_prototype"`
	Zone                  string  `json:"zone"`
	NeedsAgentReview      bool    `json:"needs_agent_review"`

	RetrievedSafeExamples  []string `json:"retrieved_safe_examples,omitempty"`
	RetrievedRiskyExamples []string `json:"retrieved_risky_examples,omitempty"`
	DecisionReasoning      string   `json:"decision_reasoning"`
}

// ExtractedParameters is the fixed structural feature record produced by
// the regex parameter extractor. Pure: same text yields the same record.
type ExtractedParameters struct {
	DaysMentioned    *int     `json:"days_mentioned,omitempty"`
	MonthsMentioned  *int     `json:"months_mentioned,omitempty"`
	YearsMentioned   *int     `json:"years_mentioned,omitempty"`
	AmountsMentioned []string `json:"amounts_mentioned"`

	HasWrittenNotice bool `json:"has_written_notice"`
	IsMutual         bool `json:"is_mutual"`
	RequiresCause    bool `json:"requires_cause"`
	HasCap           bool `json:"has_cap"`
	HasCurePeriod    bool `json:"has_cure_period"`

	RawTextMarkers map[string]bool `json:"raw_text_markers"`
}

// PessimistAnalysis is the red-team agent's output. The pessimist also
// gatekeeps relevance: an irrelevant verdict short-circuits the debate.
type PessimistAnalysis struct {
	IsRelevant         bool     `json:"is_relevant"`
	RelevanceReasoning string   `json:"relevance_reasoning"`
	RiskArgument       string   `json:"risk_argument"`
	KeyConcerns        []string `json:"key_concerns"`
}

// OptimistAnalysis is the blue-team agent's defense.
type OptimistAnalysis struct {
	DefenseArgument   string   `json:"defense_argument"`
	IndustryContext   string   `json:"industry_context"`
	MitigatingFactors []string `json:"mitigating_factors"`
}

// ArbiterVerdict is the judge's synthesis. RiskLevel is always recomputed
// from RiskScore by ScoreToLevel, overriding whatever the model returned.
type ArbiterVerdict struct {
	RiskScore  int      `json:"risk_score"`
	RiskLevel  string   `json:"risk_level"`
	Reasoning  string   `json:"reasoning"`
	KeyFactors []string `json:"key_factors"`
}

// Validate rejects verdicts whose score falls outside [0, 100].
func (v *ArbiterVerdict) Validate() error {
	if v.RiskScore < 0 || v.RiskScore > 100 {
		return fmt.Errorf("risk_score must be within [0, 100], got %d", v.RiskScore)
	}
	return nil
}

// RiskAnalysis binds one chunk's full adversarial adjudication.
// When IsRelevant is false the agent records are nil, the score is 0 and
// the level is Low.
type RiskAnalysis struct {
	ChunkID  string `json:"chunk_id"`
	Category string `json:"category"`

	IsRelevant bool `json:"is_relevant"`

	Pessimist *PessimistAnalysis `json:"pessimist_analysis,omitempty"`
	Optimist  *OptimistAnalysis  `json:"optimist_analysis,omitempty"`
	Arbiter   *ArbiterVerdict    `json:"arbiter_verdict,omitempty"`

	Parameters *ExtractedParameters `json:"extracted_parameters,omitempty"`

	SafePrecedentsUsed  []string `json:"safe_precedents_used,omitempty"`
	RiskyPrecedentsUsed []string `json:"risky_precedents_used,omitempty"`

	FinalRiskScore int    `json:"final_risk_score"`
	FinalRiskLevel string `json:"final_risk_level"`
}

// GeneratedFix is the drafted safe replacement for a flagged clause.
type GeneratedFix struct {
	SuggestedReplacement string   `json:"suggested_replacement"`
	EditComment          string   `json:"edit_comment"`
	KeyChanges           []string `json:"key_changes"`
	PrecedentCitations   []string `json:"precedent_citations"`
}

// CompoundRisk is a systemic vulnerability arising from co-occurring
// flagged clauses.
type CompoundRisk struct {
	RiskType          string   `json:"risk_type"`
	Severity          string   `json:"severity"`
	Description       string   `json:"description"`
	AffectedClauseIDs []string `json:"affected_clause_ids"`
	MitigationAdvice  string   `json:"mitigation_advice"`
	CombinedRiskScore int      `json:"combined_risk_score"`
}

// RiskyClause is one entry in the final report, flattened for the wire.
type RiskyClause struct {
	ChunkID           string   `json:"chunk_id"`
	Category          string   `json:"category"`
	OriginalText      string   `json:"original_text"`
	RiskScore         int      `json:"risk_score"`
	RiskLevel         string   `json:"risk_level"`
	PessimistArgument string   `json:"pessimist_analysis"`
	OptimistArgument  string   `json:"optimist_analysis"`
	ArbiterReasoning  string   `json:"arbiter_reasoning"`
	SuggestedFix      string   `json:"suggested_fix"`
	FixComment        string   `json:"fix_comment"`
	KeyChanges        []string `json:"key_changes"`
}

// DocumentSummary heads the final report.
type DocumentSummary struct {
	Filename          string `json:"filename"`
	TotalChunks       int    `json:"total_chunks"`
	RiskyClausesFound int    `json:"risky_clauses_found"`
}

// RiskSummary aggregates the flagged clauses.
type RiskSummary struct {
	OverallRisk        string   `json:"overall_risk"`
	AverageRiskScore   float64  `json:"average_risk_score"`
	CompoundRisksFound int      `json:"compound_risks_found"`
	CategoriesFlagged  []string `json:"categories_flagged"`
}

// AnalysisResult is the top-level report; its field names are the wire
// contract for the HTTP layer.
type AnalysisResult struct {
	Document      DocumentSummary `json:"document"`
	Summary       RiskSummary     `json:"summary"`
	RiskyClauses  []RiskyClause   `json:"risky_clauses"`
	CompoundRisks []CompoundRisk  `json:"compound_risks"`
}

// Job statuses for background analyses.
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// JobRecord tracks one background analysis. Owned by the job registry;
// mutated only through it by the worker that owns the job.
type JobRecord struct {
	AnalysisID string          `json:"analysis_id"`
	Status     string          `json:"status"`
	Progress   int             `json:"progress"`
	Filename   string          `json:"filename"`
	FilePath   string          `json:"file_path"`
	Data       *AnalysisResult `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// ScoreToLevel maps an arbiter score to the canonical risk level.
func ScoreToLevel(score int) string {
	switch {
	case score >= 76:
		return RiskLevelCritical
	case score >= 51:
		return RiskLevelHigh
	case score >= 26:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// ScoreToSeverity maps a combined compound-risk score to a severity.
func ScoreToSeverity(score int) string {
	switch {
	case score >= 85:
		return RiskLevelCritical
	case score >= 70:
		return RiskLevelHigh
	case score >= 50:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// OverallRisk maps the average flagged-clause score to the report-level
// risk rating.
func OverallRisk(avgScore float64) string {
	switch {
	case avgScore >= 75:
		return RiskLevelCritical
	case avgScore >= 60:
		return RiskLevelHigh
	case avgScore >= 40:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}
