package fixer

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
	"github.com/clauseguard/clauseguard/internal/vectorstore"
)

type stubCorpus struct {
	matches []vectorstore.Match
	gotRisk string
	gotK    int
}

func (s *stubCorpus) QueryCategory(_ context.Context, _, _, riskLevel string, k int) ([]vectorstore.Match, error) {
	s.gotRisk = riskLevel
	s.gotK = k
	return s.matches, nil
}

type stubLLM struct {
	fix    *models.GeneratedFix
	err    error
	prompt string
}

func (s *stubLLM) CompleteStructured(_ context.Context, messages []llm.Message, _ llm.Schema, out any, _ llm.ModelType, _ float32) error {
	s.prompt = messages[len(messages)-1].Content
	if s.err != nil {
		return s.err
	}
	*(out.(*models.GeneratedFix)) = *s.fix
	return nil
}

func safeMatch(text string, sim float64) vectorstore.Match {
	return vectorstore.Match{
		Text:       text,
		Similarity: sim,
		Metadata:   vectorstore.Metadata{Category: "Unilateral Termination", RiskLevel: models.ExemplarSafe},
	}
}

func riskyMatch(text string, sim float64) vectorstore.Match {
	m := safeMatch(text, sim)
	m.Metadata.RiskLevel = models.ExemplarRisky
	return m
}

func analysisWith(score int, params *models.ExtractedParameters) *models.RiskAnalysis {
	return &models.RiskAnalysis{
		ChunkID:        "chunk_002",
		Category:       "Unilateral Termination",
		IsRelevant:     true,
		Parameters:     params,
		Arbiter:        &models.ArbiterVerdict{RiskScore: score, Reasoning: strings.Repeat("unbalanced termination rights ", 10)},
		FinalRiskScore: score,
		FinalRiskLevel: models.ScoreToLevel(score),
	}
}

func TestGenerateFixUsesSafeTemplatesOnly(t *testing.T) {
	store := &stubCorpus{matches: []vectorstore.Match{
		riskyMatch("company may terminate at will", 0.99),
		safeMatch("either party may terminate upon 60 days written notice", 0.80),
	}}
	client := &stubLLM{fix: &models.GeneratedFix{
		SuggestedReplacement: "Either party may terminate this Agreement upon sixty days written notice.",
		EditComment:          "Made termination mutual with a notice period.",
		KeyChanges:           []string{"Added 60-day notice period", "Mutual rights"},
	}}

	fix, err := New(client, store).GenerateFix(context.Background(),
		"The Company may terminate at any time.", "Unilateral Termination", analysisWith(80, nil))
	require.NoError(t, err)

	assert.Equal(t, "", store.gotRisk, "retrieval must not pre-filter by risk level")
	assert.Equal(t, 10, store.gotK)
	assert.NotContains(t, client.prompt, "company may terminate at will",
		"risky exemplars must not appear as templates")
	assert.Contains(t, client.prompt, "either party may terminate upon 60 days written notice")

	require.Len(t, fix.PrecedentCitations, 1)
	assert.True(t, strings.HasSuffix(fix.PrecedentCitations[0], "..."))
}

func TestGenerateFixStructuralBoosts(t *testing.T) {
	// The mutuality boost (x1.3) must outrank a slightly higher raw
	// similarity without it.
	store := &stubCorpus{matches: []vectorstore.Match{
		safeMatch("termination requires cause and written approval", 0.85),
		safeMatch("either party may terminate upon notice", 0.70),
	}}
	client := &stubLLM{fix: &models.GeneratedFix{SuggestedReplacement: "x", EditComment: "y"}}

	days := 30
	params := &models.ExtractedParameters{DaysMentioned: &days, IsMutual: true}
	_, err := New(client, store).GenerateFix(context.Background(),
		"Either party may terminate upon 30 days notice.", "Unilateral Termination", analysisWith(60, params))
	require.NoError(t, err)

	first := strings.Index(client.prompt, "either party may terminate upon notice")
	second := strings.Index(client.prompt, "termination requires cause")
	require.Positive(t, first)
	require.Positive(t, second)
	assert.Less(t, first, second, "boosted template should be Example 1")
}

func TestGenerateFixPromptContents(t *testing.T) {
	store := &stubCorpus{matches: []vectorstore.Match{safeMatch("safe template", 0.8)}}
	client := &stubLLM{fix: &models.GeneratedFix{SuggestedReplacement: "x", EditComment: "y"}}

	a := analysisWith(80, nil)
	_, err := New(client, store).GenerateFix(context.Background(),
		"The Company may terminate.", "Unilateral Termination", a)
	require.NoError(t, err)

	assert.Contains(t, client.prompt, "Risk Score: 80/100 (Critical)")
	assert.Contains(t, client.prompt, "Example 1 (Similarity: 80%)")
	// Arbiter reasoning is clipped to 200 chars in the prompt.
	assert.NotContains(t, client.prompt, a.Arbiter.Reasoning)
}

func TestGenerateFixFallbackToTemplate(t *testing.T) {
	store := &stubCorpus{matches: []vectorstore.Match{safeMatch("best safe template", 0.9)}}
	client := &stubLLM{err: errors.StructuredParse(stderrors.New("garbage"), "parse failed")}

	fix, err := New(client, store).GenerateFix(context.Background(),
		"risky text", "Unilateral Termination", analysisWith(70, nil))
	require.NoError(t, err)

	assert.Equal(t, "best safe template", fix.SuggestedReplacement)
	assert.Equal(t, "Manual drafting recommended due to generation error.", fix.EditComment)
	assert.Equal(t, []string{"Review and revise manually"}, fix.KeyChanges)
	require.Len(t, fix.PrecedentCitations, 1)
}

func TestGenerateFixFallbackToOriginalText(t *testing.T) {
	store := &stubCorpus{}
	client := &stubLLM{err: errors.StructuredParse(stderrors.New("garbage"), "parse failed")}

	fix, err := New(client, store).GenerateFix(context.Background(),
		"risky text", "Non-Compete", analysisWith(70, nil))
	require.NoError(t, err)

	assert.Equal(t, "risky text", fix.SuggestedReplacement)
	assert.Empty(t, fix.PrecedentCitations)
	assert.Contains(t, client.prompt, "No templates available - generate from scratch.")
}

func TestGenerateFixInsufficientCreditsAborts(t *testing.T) {
	store := &stubCorpus{}
	client := &stubLLM{err: errors.InsufficientCredits("out of quota")}

	_, err := New(client, store).GenerateFix(context.Background(),
		"risky text", "Non-Compete", analysisWith(70, nil))
	require.Error(t, err)
	assert.True(t, errors.IsInsufficientCredits(err))
}
