package detector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clauseguard/clauseguard/internal/config"
	"github.com/clauseguard/clauseguard/internal/models"
	"github.com/clauseguard/clauseguard/internal/vectorstore"
)

type stubCorpus struct {
	prototype     []vectorstore.PrototypeMatch
	safeMatches   []vectorstore.Match
	riskyMatches  []vectorstore.Match
	categoryCalls []string
}

func (s *stubCorpus) QueryPrototypes(context.Context, string, int) ([]vectorstore.PrototypeMatch, error) {
	return s.prototype, nil
}

func (s *stubCorpus) QueryCategory(_ context.Context, _, category, riskLevel string, _ int) ([]vectorstore.Match, error) {
	s.categoryCalls = append(s.categoryCalls, riskLevel)
	if riskLevel == models.ExemplarSafe {
		return s.safeMatches, nil
	}
	return s.riskyMatches, nil
}

func newDetector(c *stubCorpus) *Detector {
	return New(config.ZoneConfig{
		NoiseThreshold:     0.44,
		SafeThreshold:      0.85,
		SafeExemplarCutoff: 0.90,
	}, c)
}

func chunk() models.SemanticChunk {
	return models.SemanticChunk{ID: "chunk_001", Text: "The company may terminate at any time."}
}

func TestDetectEmptyCorpus(t *testing.T) {
	d := newDetector(&stubCorpus{})

	det, err := d.Detect(context.Background(), chunk())
	require.NoError(t, err)
	assert.Equal(t, models.CategoryUnknown, det.Category)
	assert.Equal(t, models.ZoneNoise, det.Zone)
	assert.False(t, det.NeedsAgentReview)
	assert.Equal(t, "No category match", det.DecisionReasoning)
}

func TestDetectNoiseZone(t *testing.T) {
	c := &stubCorpus{prototype: []vectorstore.PrototypeMatch{
		{Category: "Unilateral Termination", Similarity: 0.30},
	}}
	det, err := newDetector(c).Detect(context.Background(), chunk())
	require.NoError(t, err)

	assert.Equal(t, models.ZoneNoise, det.Zone)
	assert.False(t, det.NeedsAgentReview)
	assert.Empty(t, det.RetrievedSafeExamples)
	assert.Empty(t, c.categoryCalls, "noise zone must not hit the exemplar corpus")
	assert.Contains(t, det.DecisionReasoning, "below noise threshold")
}

func TestDetectGreyZoneRetrievesExemplars(t *testing.T) {
	c := &stubCorpus{
		prototype:    []vectorstore.PrototypeMatch{{Category: "Unilateral Termination", Similarity: 0.60}},
		safeMatches:  []vectorstore.Match{{Text: "safe one"}, {Text: "safe two"}},
		riskyMatches: []vectorstore.Match{{Text: "risky one"}},
	}
	det, err := newDetector(c).Detect(context.Background(), chunk())
	require.NoError(t, err)

	assert.Equal(t, models.ZoneCourtroom, det.Zone)
	assert.True(t, det.NeedsAgentReview)
	assert.Equal(t, []string{"safe one", "safe two"}, det.RetrievedSafeExamples)
	assert.Equal(t, []string{"risky one"}, det.RetrievedRiskyExamples)
	assert.Contains(t, det.DecisionReasoning, "grey zone")
}

func TestDetectSafeZoneRequiresExemplarMatch(t *testing.T) {
	// Strong prototype similarity alone is not enough; this chunk has no
	// close safe exemplar and must still go to the agents.
	c := &stubCorpus{
		prototype:   []vectorstore.PrototypeMatch{{Category: "Unlimited Liability", Similarity: 0.92}},
		safeMatches: []vectorstore.Match{{Text: "cap clause", Similarity: 0.88}},
	}
	det, err := newDetector(c).Detect(context.Background(), chunk())
	require.NoError(t, err)

	assert.Equal(t, models.ZoneCourtroom, det.Zone)
	assert.True(t, det.NeedsAgentReview)
	assert.Contains(t, det.DecisionReasoning, "deviates from safe standards")
}

func TestDetectSafeZone(t *testing.T) {
	c := &stubCorpus{
		prototype:   []vectorstore.PrototypeMatch{{Category: "Unlimited Liability", Similarity: 0.92}},
		safeMatches: []vectorstore.Match{{Text: "cap clause", Similarity: 0.95}},
	}
	det, err := newDetector(c).Detect(context.Background(), chunk())
	require.NoError(t, err)

	assert.Equal(t, models.ZoneSafe, det.Zone)
	assert.False(t, det.NeedsAgentReview)
	assert.Empty(t, det.RetrievedRiskyExamples)
	assert.Contains(t, det.DecisionReasoning, "matches safe standard")
}

func TestDetectSafeExemplarCutoffBoundary(t *testing.T) {
	// Exactly at the cutoff is not strictly greater, so no safe verdict.
	c := &stubCorpus{
		prototype:   []vectorstore.PrototypeMatch{{Category: "Non-Compete", Similarity: 0.90}},
		safeMatches: []vectorstore.Match{{Text: "narrow covenant", Similarity: 0.90}},
	}
	det, err := newDetector(c).Detect(context.Background(), chunk())
	require.NoError(t, err)
	assert.Equal(t, models.ZoneCourtroom, det.Zone)
}
