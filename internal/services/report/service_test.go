package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/models"
)

func succeededJob() *models.Job {
	job := models.NewJob("job-report", "doc-1", "Is this a sound investment?")
	job.MarkRunning()
	for _, name := range models.StageNames() {
		job.AppendResult(name, models.StageOutput{
			Summary: "Summary for " + string(name),
			Report:  "## Findings\n\nDetailed **findings** for " + string(name) + ".\n\n- point one\n- point two",
		})
	}
	job.MarkSucceeded()
	return job
}

func TestRenderJobReport(t *testing.T) {
	service := NewService(arbor.NewLogger())

	pdfBytes, err := service.RenderJobReport(succeededJob())
	require.NoError(t, err)
	require.NotEmpty(t, pdfBytes)

	// Basic PDF header check
	assert.Equal(t, "%PDF", string(pdfBytes[:4]))
	assert.Greater(t, len(pdfBytes), 500)
}

func TestRenderJobReportRequiresSucceededJob(t *testing.T) {
	service := NewService(arbor.NewLogger())

	job := models.NewJob("job-queued", "doc-1", "")
	_, err := service.RenderJobReport(job)
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	job.MarkRunning()
	job.MarkFailed(models.StageVerification, "bad document")
	_, err = service.RenderJobReport(job)
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestBuildReportMarkdownOrdersSections(t *testing.T) {
	job := succeededJob()
	now := time.Now().UTC()
	job.CompletedAt = &now

	md := buildReportMarkdown(job)

	verification := strings.Index(md, "## Document Verification")
	analysis := strings.Index(md, "## Financial Analysis")
	recommendations := strings.Index(md, "## Investment Recommendations")
	risk := strings.Index(md, "## Risk Assessment")

	require.True(t, verification >= 0 && analysis >= 0 && recommendations >= 0 && risk >= 0)
	assert.Less(t, verification, analysis)
	assert.Less(t, analysis, recommendations)
	assert.Less(t, recommendations, risk)

	assert.Contains(t, md, "Is this a sound investment?")
}
