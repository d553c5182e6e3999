// Package detector implements Stage 2 triage: each chunk is compared to the
// category prototypes and sorted into one of three zones. Only courtroom
// chunks proceed to the adversarial agents.
package detector

import (
	"context"
	"fmt"

	"github.com/clauseguard/clauseguard/internal/config"
	"github.com/clauseguard/clauseguard/internal/logging"
	"github.com/clauseguard/clauseguard/internal/models"
	"github.com/clauseguard/clauseguard/internal/vectorstore"
)

// corpus is the slice of the vector store the detector needs; tests stub it.
type corpus interface {
	QueryPrototypes(ctx context.Context, text string, k int) ([]vectorstore.PrototypeMatch, error)
	QueryCategory(ctx context.Context, text, category, riskLevel string, k int) ([]vectorstore.Match, error)
}

// Detector classifies chunks against the prototype corpus.
type Detector struct {
	store corpus

	noiseThreshold     float64
	safeThreshold      float64
	safeExemplarCutoff float64
	logger             *logging.Logger
}

// New builds a detector over the given store.
func New(cfg config.ZoneConfig, store corpus) *Detector {
	return &Detector{
		store:              store,
		noiseThreshold:     cfg.NoiseThreshold,
		safeThreshold:      cfg.SafeThreshold,
		safeExemplarCutoff: cfg.SafeExemplarCutoff,
		logger:             logging.With("component", "detector"),
	}
}

// Detect assigns chunk to a zone. Never returns a nil detection on success.
func (d *Detector) Detect(ctx context.Context, chunk models.SemanticChunk) (*models.CategoryDetection, error) {
	matches, err := d.store.QueryPrototypes(ctx, chunk.Text, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &models.CategoryDetection{
			Category:          models.CategoryUnknown,
			Zone:              models.ZoneNoise,
			DecisionReasoning: "No category match",
		}, nil
	}

	category := matches[0].Category
	similarity := matches[0].Similarity

	zone, needsReview, reasoning, err := d.applyZoneLogic(ctx, similarity, category, chunk.Text)
	if err != nil {
		return nil, err
	}

	detection := &models.CategoryDetection{
		Category:              category,
		Confidence:            similarity,
		SimilarityToPrototype: similarity,
		Zone:                  zone,
		NeedsAgentReview:      needsReview,
		DecisionReasoning:     reasoning,
	}

	if needsReview {
		if detection.RetrievedSafeExamples, err = d.retrieveExamples(ctx, chunk.Text, category, models.ExemplarSafe); err != nil {
			return nil, err
		}
		if detection.RetrievedRiskyExamples, err = d.retrieveExamples(ctx, chunk.Text, category, models.ExemplarRisky); err != nil {
			return nil, err
		}
	}

	d.logger.Debug("chunk classified",
		"chunk_id", chunk.ID, "category", category, "zone", zone, "similarity", similarity)
	return detection, nil
}

func (d *Detector) applyZoneLogic(ctx context.Context, similarity float64, category, text string) (zone string, needsReview bool, reasoning string, err error) {
	if similarity < d.noiseThreshold {
		return models.ZoneNoise, false,
			fmt.Sprintf("Similarity %.2f%% below noise threshold. Not related to target categories.", similarity*100),
			nil
	}

	if similarity >= d.safeThreshold {
		safeMatches, err := d.store.QueryCategory(ctx, text, category, models.ExemplarSafe, 1)
		if err != nil {
			return "", false, "", err
		}

		// The safe zone demands a near-exact safe exemplar, not just a
		// strong prototype match.
		if len(safeMatches) > 0 && safeMatches[0].Similarity > d.safeExemplarCutoff {
			return models.ZoneSafe, false,
				fmt.Sprintf("High similarity to %s prototype (%.2f%%) and matches safe standard (%.2f%%).",
					category, similarity*100, safeMatches[0].Similarity*100),
				nil
		}
		return models.ZoneCourtroom, true,
			fmt.Sprintf("High category similarity (%.2f%%) but deviates from safe standards. Requires agent review.",
				similarity*100),
			nil
	}

	return models.ZoneCourtroom, true,
		fmt.Sprintf("Moderate similarity to %s (%.2f%%). Falls in grey zone - requires agent analysis.",
			category, similarity*100),
		nil
}

func (d *Detector) retrieveExamples(ctx context.Context, text, category, riskLevel string) ([]string, error) {
	matches, err := d.store.QueryCategory(ctx, text, category, riskLevel, 3)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Text)
	}
	return texts, nil
}
