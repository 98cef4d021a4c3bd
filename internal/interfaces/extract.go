package interfaces

import "context"

// TextExtractor is the document-to-text extraction boundary, consumed once
// per submission before the job is created.
type TextExtractor interface {
	// ValidatePDF checks the raw upload: size cap and %PDF header. Failures
	// surface as *models.ValidationError.
	ValidatePDF(data []byte) error

	// ExtractText extracts text from the PDF bytes, normalizes whitespace
	// and truncates to the configured budget. Warnings carry non-fatal
	// issues such as truncation.
	ExtractText(ctx context.Context, data []byte) (text string, warnings []string, err error)
}
