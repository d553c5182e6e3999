// Package document implements Stage 1 ingestion: hybrid PDF text extraction
// with an OCR fallback, metadata and definition mining, and semantic
// chunking.
package document

import (
	"bytes"
	"fmt"
	"image/png"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/otiai10/gosseract/v2"

	"github.com/clauseguard/clauseguard/internal/errors"
	"github.com/clauseguard/clauseguard/internal/logging"
)

// ocrFailurePrefix marks extraction output that came from a failed OCR
// attempt. Downstream stages pass it through so the report shows the user
// what went wrong instead of silently analyzing an empty document.
const ocrFailurePrefix = "OCR FAILED: "

// minExtractableChars is the aggregate threshold below which a document is
// treated as scanned and routed to OCR.
const minExtractableChars = 100

// pageExtractor pulls per-page text out of a PDF file.
type pageExtractor interface {
	// Pages returns one string per page, in order.
	Pages(path string) ([]string, error)
	Name() string
}

// ocrEngine recognizes text from a scanned document.
type ocrEngine interface {
	// Recognize returns the concatenated text of all pages.
	Recognize(path string) (string, error)
}

// Extraction is the raw result of pulling text from a PDF.
type Extraction struct {
	Text      string
	PageCount int
	Title     string
	Keywords  string
	UsedOCR   bool
}

// PDFExtractor combines two extraction engines page by page and falls back
// to OCR when both produce almost nothing.
type PDFExtractor struct {
	primary   pageExtractor
	secondary pageExtractor
	ocr       ocrEngine
	logger    *logging.Logger
}

// NewPDFExtractor wires the default engines.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{
		primary:   fitzExtractor{},
		secondary: plaintextExtractor{},
		ocr:       tesseractEngine{},
		logger:    logging.With("component", "pdf_extractor"),
	}
}

// Extract runs the hybrid strategy: both engines per page, keeping the
// secondary engine's page when it recovered at least 90% as much text as the
// primary. If the whole document still yields almost no text it is treated
// as a scan and sent through OCR.
func (e *PDFExtractor) Extract(path string) (*Extraction, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.FileSystemError(err, "document not found")
	}

	primaryPages, primaryErr := e.primary.Pages(path)
	secondaryPages, secondaryErr := e.secondary.Pages(path)

	if primaryErr != nil && secondaryErr != nil {
		return nil, errors.ExtractionError(primaryErr, "both PDF extraction engines failed")
	}

	var pages []string
	switch {
	case primaryErr != nil:
		e.logger.Warn("primary extraction failed, using secondary only",
			"engine", e.primary.Name(), "error", primaryErr)
		pages = secondaryPages
	case secondaryErr != nil:
		e.logger.Warn("secondary extraction failed, using primary only",
			"engine", e.secondary.Name(), "error", secondaryErr)
		pages = primaryPages
	default:
		pages = mergePages(primaryPages, secondaryPages)
	}

	result := &Extraction{
		Text:      strings.Join(pages, "\n\n"),
		PageCount: len(pages),
	}
	if title, keywords, err := documentInfo(path); err == nil {
		result.Title = title
		result.Keywords = keywords
	}

	if len(strings.TrimSpace(result.Text)) < minExtractableChars {
		e.logger.Info("extracted text below threshold, attempting OCR",
			"chars", len(result.Text), "path", path)
		result.UsedOCR = true
		text, err := e.ocr.Recognize(path)
		if err != nil {
			result.Text = ocrFailurePrefix + err.Error()
		} else {
			result.Text = text
		}
	}

	return result, nil
}

// mergePages picks, per page, the secondary engine's text when its yield is
// at least 90% of the primary's. Extra pages from either engine are kept.
func mergePages(primary, secondary []string) []string {
	n := len(primary)
	if len(secondary) > n {
		n = len(secondary)
	}
	merged := make([]string, 0, n)
	for i := 0; i < n; i++ {
		var p, s string
		if i < len(primary) {
			p = primary[i]
		}
		if i < len(secondary) {
			s = secondary[i]
		}
		if float64(len(s)) >= 0.9*float64(len(p)) && s != "" {
			merged = append(merged, s)
		} else {
			merged = append(merged, p)
		}
	}
	return merged
}

// fitzExtractor renders text through MuPDF.
type fitzExtractor struct{}

func (fitzExtractor) Name() string { return "fitz" }

func (fitzExtractor) Pages(path string) ([]string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i+1, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// plaintextExtractor walks the PDF content streams directly. It handles some
// malformed files MuPDF rejects and vice versa.
type plaintextExtractor struct{}

func (plaintextExtractor) Name() string { return "plaintext" }

func (plaintextExtractor) Pages(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// One bad page should not sink the document.
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// documentInfo reads the PDF info dictionary.
func documentInfo(path string) (title, keywords string, err error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", "", err
	}
	defer doc.Close()

	meta := doc.Metadata()
	return meta["title"], meta["keywords"], nil
}

// tesseractEngine rasterizes each page through MuPDF and runs Tesseract on
// the images.
type tesseractEngine struct{}

func (tesseractEngine) Recognize(path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("open pdf for ocr: %w", err)
	}
	defer doc.Close()

	client := gosseract.NewClient()
	defer client.Close()

	var pages []string
	for i := 0; i < doc.NumPage(); i++ {
		img, err := doc.Image(i)
		if err != nil {
			return "", fmt.Errorf("rasterize page %d: %w", i+1, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return "", fmt.Errorf("encode page %d: %w", i+1, err)
		}
		if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
			return "", fmt.Errorf("load page %d into ocr: %w", i+1, err)
		}
		text, err := client.Text()
		if err != nil {
			return "", fmt.Errorf("ocr page %d: %w", i+1, err)
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n\n"), nil
}
