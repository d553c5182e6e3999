package document

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/clauseguard/clauseguard/internal/config"
	"github.com/clauseguard/clauseguard/internal/embedding"
	"github.com/clauseguard/clauseguard/internal/errors"
	"github.com/clauseguard/clauseguard/internal/logging"
	"github.com/clauseguard/clauseguard/internal/models"
	"github.com/clauseguard/clauseguard/internal/textutil"
)

// extractor is satisfied by PDFExtractor; tests substitute a stub.
type extractor interface {
	Extract(path string) (*Extraction, error)
}

// Processor runs the full Stage 1 pipeline on one file.
type Processor struct {
	extractor extractor
	chunker   *Chunker
	logger    *logging.Logger
}

// NewProcessor builds the default processor.
func NewProcessor(cfg config.ChunkingConfig, embedder embedding.Service) *Processor {
	return &Processor{
		extractor: NewPDFExtractor(),
		chunker:   NewChunker(cfg, embedder),
		logger:    logging.With("component", "document_processor"),
	}
}

// Process ingests the PDF at path: extraction, cleaning, metadata and
// definition mining, semantic chunking.
func (p *Processor) Process(ctx context.Context, path string) (*models.ProcessedDocument, error) {
	start := time.Now()

	extraction, err := p.extractor.Extract(path)
	if err != nil {
		return nil, err
	}

	fullText := textutil.CleanText(extraction.Text)
	if fullText == "" {
		return nil, errors.ValidationError("document contains no extractable text")
	}

	var fileSize int64
	if info, err := os.Stat(path); err == nil {
		fileSize = info.Size()
	}

	doc := &models.ProcessedDocument{
		Metadata: models.DocumentMetadata{
			Filename:         filepath.Base(path),
			FileSize:         fileSize,
			PageCount:        extraction.PageCount,
			ExtractionDate:   time.Now().UTC(),
			ContractType:     DetectContractType(fullText),
			Parties:          ExtractParties(fullText),
			EffectiveDate:    ExtractEffectiveDate(fullText),
			MentionedAmounts: ExtractAmounts(fullText),
		},
		FullText:    fullText,
		Definitions: ExtractDefinitions(fullText),
	}

	chunks, err := p.chunker.Chunk(ctx, fullText)
	if err != nil {
		return nil, err
	}
	doc.Chunks = chunks
	doc.TotalChunks = len(chunks)
	doc.AvgChunkLength = avgLength(chunks)
	doc.ProcessingTimeSeconds = time.Since(start).Seconds()

	p.logger.Info("document processed",
		"filename", doc.Metadata.Filename,
		"pages", doc.Metadata.PageCount,
		"chunks", doc.TotalChunks,
		"definitions", len(doc.Definitions),
		"used_ocr", extraction.UsedOCR,
		"duration_s", doc.ProcessingTimeSeconds)
	return doc, nil
}

func avgLength(chunks []models.SemanticChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	total := 0
	for _, c := range chunks {
		total += len(c.Text)
	}
	return float64(total) / float64(len(chunks))
}
