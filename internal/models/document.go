package models

import "time"

// Document is the stored extraction result for one uploaded file. Jobs
// reference documents by ID; the raw PDF bytes are not retained once text
// has been extracted.
type Document struct {
	ID       string `json:"id" badgerhold:"key"`
	Filename string `json:"filename"`

	// Text is the extracted text, already truncated to the configured
	// budget by the extract service.
	Text string `json:"text"`

	// Warnings collects non-fatal extraction issues (truncation, empty
	// pages) for observability.
	Warnings []string `json:"warnings,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
