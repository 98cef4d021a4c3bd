package extract

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/common"
	"github.com/ternarybob/censeo/internal/models"
)

func newTestExtractor(t *testing.T, maxSize int64, truncateChars int) *Extractor {
	t.Helper()
	return NewExtractor(&common.ExtractConfig{
		MaxFileSize:   maxSize,
		TruncateChars: truncateChars,
	}, arbor.NewLogger())
}

// samplePDF renders a one-page PDF with the given text.
func samplePDF(t *testing.T, text string) []byte {
	t.Helper()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	pdf.MultiCell(0, 6, text, "", "L", false)

	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func TestValidatePDF(t *testing.T) {
	e := newTestExtractor(t, 1024, 15000)

	tests := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{"empty upload", nil, "empty"},
		{"oversized upload", bytes.Repeat([]byte("a"), 2048), "exceeds"},
		{"wrong magic header", []byte("<html>not a pdf</html>"), "not a PDF"},
		{"valid header", []byte("%PDF-1.7 minimal"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.ValidatePDF(tt.data)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, models.IsValidation(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExtractTextFromGeneratedPDF(t *testing.T) {
	e := newTestExtractor(t, 10*1024*1024, 15000)

	data := samplePDF(t, "Quarterly revenue was 4.2 million dollars.")
	text, _, err := e.ExtractText(context.Background(), data)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(text))
}

func TestExtractTextRejectsNonPDF(t *testing.T) {
	e := newTestExtractor(t, 10*1024*1024, 15000)

	_, _, err := e.ExtractText(context.Background(), []byte("plain text, not a pdf"))
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestExtractTextTruncatesAtBudget(t *testing.T) {
	e := newTestExtractor(t, 10*1024*1024, 200)

	data := samplePDF(t, strings.Repeat("Net income increased across all operating segments. ", 50))
	text, warnings, err := e.ExtractText(context.Background(), data)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(text, TruncationMarker))
	assert.LessOrEqual(t, len(text), 200+len(TruncationMarker))

	found := false
	for _, w := range warnings {
		if strings.Contains(w, "truncated") {
			found = true
		}
	}
	assert.True(t, found, "expected a truncation warning, got %v", warnings)
}

func TestNormalizeWhitespace(t *testing.T) {
	in := "Revenue   grew\t12%\n\n\nNet  income   flat"
	out := normalizeWhitespace(in)
	assert.Equal(t, "Revenue grew 12%\n\nNet income flat", out)
}

func TestParsePageNumber(t *testing.T) {
	cases := []struct {
		name string
		num  int
		ok   bool
	}{
		{"Content_page_1.txt", 1, true},
		{"extract_abc_Content_page_12.txt", 12, true},
		{"page_3", 3, true},
		{"notes.txt", 0, false},
		{"page_", 0, false},
	}
	for _, tc := range cases {
		num, ok := parsePageNumber(tc.name)
		assert.Equal(t, tc.ok, ok, tc.name)
		if ok {
			assert.Equal(t, tc.num, num, tc.name)
		}
	}
}
