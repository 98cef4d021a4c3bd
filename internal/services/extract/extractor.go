// -----------------------------------------------------------------------
// Text Extractor Service - Extract analysis text from PDF documents
// Uses pdfcpu for Go-native PDF processing
// -----------------------------------------------------------------------

package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/common"
	"github.com/ternarybob/censeo/internal/interfaces"
	"github.com/ternarybob/censeo/internal/models"
)

// TruncationMarker is appended to extracted text that was cut at the
// character budget.
const TruncationMarker = "\n\n[Document truncated due to length...]"

var pdfHeader = []byte("%PDF")

// Extractor implements the TextExtractor interface using pdfcpu. Extracted
// text is normalized and truncated to a fixed character budget so every
// analysis stage sees a bounded document.
type Extractor struct {
	config  *common.ExtractConfig
	logger  arbor.ILogger
	tempDir string
}

// Compile-time interface assertion
var _ interfaces.TextExtractor = (*Extractor)(nil)

// NewExtractor creates a new text extractor service
func NewExtractor(config *common.ExtractConfig, logger arbor.ILogger) *Extractor {
	// Create a temp directory for PDF processing
	tempDir := filepath.Join(os.TempDir(), "censeo-pdf")
	os.MkdirAll(tempDir, 0755)

	return &Extractor{
		config:  config,
		logger:  logger,
		tempDir: tempDir,
	}
}

// ValidatePDF checks the upload before any processing: size cap and the
// PDF magic header. Failures are *models.ValidationError.
func (e *Extractor) ValidatePDF(data []byte) error {
	if len(data) == 0 {
		return &models.ValidationError{Msg: "uploaded file is empty"}
	}
	if int64(len(data)) > e.config.MaxFileSize {
		return &models.ValidationError{Msg: fmt.Sprintf("file size %d exceeds the %d byte limit", len(data), e.config.MaxFileSize)}
	}
	if !bytes.HasPrefix(data, pdfHeader) {
		return &models.ValidationError{Msg: "file is not a PDF"}
	}
	return nil
}

// ExtractText extracts text from the PDF bytes, normalizes whitespace and
// truncates to the configured character budget. Warnings report pages with
// no extractable text and whether truncation occurred.
func (e *Extractor) ExtractText(ctx context.Context, data []byte) (string, []string, error) {
	if err := e.ValidatePDF(data); err != nil {
		return "", nil, err
	}

	// Write to temp file for pdfcpu processing
	tempFile := filepath.Join(e.tempDir, fmt.Sprintf("extract_%s.pdf", uuid.New().String()))
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return "", nil, fmt.Errorf("failed to write temp PDF file: %w", err)
	}
	defer os.Remove(tempFile)

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", nil, &models.ValidationError{Msg: fmt.Sprintf("failed to read PDF: %v", err)}
	}

	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(e.tempDir, fmt.Sprintf("pages_%s", uuid.New().String()))
	os.MkdirAll(outDir, 0755)
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return "", nil, fmt.Errorf("failed to extract PDF content: %w", err)
	}

	// Read extracted content files, keyed by page number
	pageTexts := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		if pageNum, ok := parsePageNumber(file.Name()); ok {
			pageTexts[pageNum] = string(content)
		}
	}

	var warnings []string
	var builder strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text := normalizeWhitespace(pageTexts[pageNum])
		if text == "" {
			warnings = append(warnings, fmt.Sprintf("page %d has no extractable text", pageNum))
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(text)
	}

	full := builder.String()
	if strings.TrimSpace(full) == "" {
		return "", warnings, &models.ValidationError{Msg: "no extractable text in document"}
	}

	if len(full) > e.config.TruncateChars {
		full = full[:e.config.TruncateChars] + TruncationMarker
		warnings = append(warnings, fmt.Sprintf("document text truncated to %d characters", e.config.TruncateChars))
	}

	e.logger.Debug().
		Int("page_count", pageCount).
		Int("text_length", len(full)).
		Int("warnings", len(warnings)).
		Msg("Extracted document text")

	return full, warnings, nil
}

// parsePageNumber pulls the page number out of a pdfcpu content filename.
// Names vary by version ("Content_page_1.txt", "<base>_Content_page_1.txt")
// so it matches on the last "page_" segment.
func parsePageNumber(name string) (int, bool) {
	idx := strings.LastIndex(name, "page_")
	if idx < 0 {
		return 0, false
	}
	rest := name[idx+len("page_"):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	var n int
	fmt.Sscanf(rest[:end], "%d", &n)
	return n, true
}

// normalizeWhitespace collapses runs of whitespace while keeping paragraph
// breaks.
func normalizeWhitespace(s string) string {
	paragraphs := strings.Split(s, "\n\n")
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		fields := strings.Fields(p)
		if len(fields) == 0 {
			continue
		}
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, "\n\n")
}
