package document

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/clauseguard/clauseguard/internal/config"
	"github.com/clauseguard/clauseguard/internal/embedding"
	"github.com/clauseguard/clauseguard/internal/logging"
	"github.com/clauseguard/clauseguard/internal/models"
)

// Chunker splits contract text into semantically coherent spans by placing
// breakpoints where consecutive-sentence embedding similarity dips below a
// document-relative percentile.
type Chunker struct {
	embedder embedding.Service

	minChunk   int
	maxChunk   int
	percentile float64 // fraction: 0.75 means the 75th percentile
	contextLen int
	logger     *logging.Logger
}

// NewChunker builds a chunker from configuration.
func NewChunker(cfg config.ChunkingConfig, embedder embedding.Service) *Chunker {
	return &Chunker{
		embedder:   embedder,
		minChunk:   cfg.MinChunkLength,
		maxChunk:   cfg.MaxChunkLength,
		percentile: cfg.SimilarityThreshold,
		contextLen: cfg.Overlap,
		logger:     logging.With("component", "chunker"),
	}
}

const periodToken = "<PERIOD>"

var (
	// Initials ("J. Smith") and corporate suffixes carry periods that are
	// not sentence boundaries.
	initialRe = regexp.MustCompile(`\b([A-Z][a-z]?)\.\s`)
	suffixRe  = regexp.MustCompile(`\b(Inc|LLC|Corp|Ltd)\.\s`)
	splitRe   = regexp.MustCompile(`[.!?]+\s+`)
)

// splitSentences segments text, protecting abbreviation periods. Fragments
// of 20 characters or fewer are dropped as headings or artifacts.
func splitSentences(text string) []string {
	protected := initialRe.ReplaceAllString(text, "$1"+periodToken+" ")
	protected = suffixRe.ReplaceAllString(protected, "$1"+periodToken+" ")

	var sentences []string
	for _, s := range splitRe.Split(protected, -1) {
		s = strings.ReplaceAll(s, periodToken, ".")
		s = strings.TrimSpace(s)
		if len(s) > 20 {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// Chunk produces the semantic chunks of fullText.
func (c *Chunker) Chunk(ctx context.Context, fullText string) ([]models.SemanticChunk, error) {
	sentences := splitSentences(fullText)

	if len(sentences) < 2 {
		text := strings.TrimSpace(fullText)
		if text == "" {
			return nil, nil
		}
		return []models.SemanticChunk{{
			ID:        "chunk_001",
			Text:      text,
			StartChar: 0,
			EndChar:   len(text),
			WordCount: len(strings.Fields(text)),
		}}, nil
	}

	vectors, err := c.embedder.EmbedBatch(ctx, sentences)
	if err != nil {
		return nil, err
	}

	similarities := make([]float64, len(sentences)-1)
	for i := range similarities {
		similarities[i] = embedding.CosineSimilarity(vectors[i], vectors[i+1])
	}
	threshold := percentile(similarities, c.percentile*100)

	breakpoints := []int{0}
	for i, sim := range similarities {
		if sim < threshold {
			breakpoints = append(breakpoints, i+1)
		}
	}
	breakpoints = append(breakpoints, len(sentences))

	var chunks []models.SemanticChunk
	for i := 0; i < len(breakpoints)-1; i++ {
		group := sentences[breakpoints[i]:breakpoints[i+1]]
		if len(group) == 0 {
			continue
		}
		text := strings.Join(group, " ")
		if len(text) < c.minChunk {
			continue
		}
		if len(text) > c.maxChunk {
			text = text[:c.maxChunk]
		}

		start := strings.Index(fullText, group[0])
		if start < 0 {
			start = 0
		}
		end := start + len(text)
		if end > len(fullText) {
			end = len(fullText)
		}

		chunks = append(chunks, models.SemanticChunk{
			ID:            fmt.Sprintf("chunk_%03d", len(chunks)+1),
			Text:          text,
			StartChar:     start,
			EndChar:       end,
			WordCount:     len(strings.Fields(text)),
			PrecedingText: window(fullText, start-c.contextLen, start),
			FollowingText: window(fullText, end, end+c.contextLen),
		})
	}

	c.logger.Debug("chunked document",
		"sentences", len(sentences), "chunks", len(chunks), "threshold", threshold)
	return chunks, nil
}

// percentile computes the p-th percentile (0-100) with linear interpolation
// between order statistics.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func window(text string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}
	if start >= end {
		return ""
	}
	return text[start:end]
}
