// -----------------------------------------------------------------------
// Report Service - Render a completed analysis as a PDF document
// -----------------------------------------------------------------------

package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// Service renders the stage reports of a succeeded job into one PDF.
type Service struct {
	logger arbor.ILogger
}

// NewService creates a new report service
func NewService(logger arbor.ILogger) *Service {
	return &Service{logger: logger}
}

// stageTitles maps stage names to report section headings.
var stageTitles = map[models.StageName]string{
	models.StageVerification:              "Document Verification",
	models.StageFinancialAnalysis:         "Financial Analysis",
	models.StageInvestmentRecommendations: "Investment Recommendations",
	models.StageRiskAssessment:            "Risk Assessment",
}

// RenderJobReport renders the full analysis report for a succeeded job.
// Jobs in any other state have no complete report to render.
func (s *Service) RenderJobReport(job *models.Job) ([]byte, error) {
	if job.Status != models.JobStatusSucceeded {
		return nil, &models.ValidationError{Msg: fmt.Sprintf("job %s is %s; reports exist only for succeeded jobs", job.ID, job.Status)}
	}

	markdown := buildReportMarkdown(job)

	pdfBytes, err := s.convertMarkdownToPDF(markdown)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to render report PDF")
		return nil, fmt.Errorf("failed to render report: %w", err)
	}

	s.logger.Debug().
		Str("job_id", job.ID).
		Int("pdf_size", len(pdfBytes)).
		Msg("Report PDF generated")

	return pdfBytes, nil
}

// buildReportMarkdown assembles the report document from the job's stage
// results, in pipeline order.
func buildReportMarkdown(job *models.Job) string {
	var b strings.Builder

	b.WriteString("# Financial Document Analysis Report\n\n")
	b.WriteString(fmt.Sprintf("Job: %s\n\n", job.ID))
	if job.Query != "" {
		b.WriteString(fmt.Sprintf("Question: %s\n\n", job.Query))
	}
	if job.CompletedAt != nil {
		b.WriteString(fmt.Sprintf("Completed: %s\n\n", job.CompletedAt.Format("2006-01-02 15:04 MST")))
	}

	for _, result := range job.StageResults {
		title := stageTitles[result.Stage]
		if title == "" {
			title = string(result.Stage)
		}
		b.WriteString(fmt.Sprintf("## %s\n\n", title))
		if result.Output.Summary != "" {
			b.WriteString(fmt.Sprintf("*%s*\n\n", result.Output.Summary))
		}
		b.WriteString(result.Output.Report)
		b.WriteString("\n\n---\n\n")
	}

	return b.String()
}

// convertMarkdownToPDF renders markdown into PDF bytes.
func (s *Service) convertMarkdownToPDF(markdown string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 9)

	md := goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
	)

	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	renderer := &pdfRenderer{
		pdf:    pdf,
		source: source,
		font:   "Arial",
		size:   9,
	}
	if err := renderer.render(doc); err != nil {
		return nil, fmt.Errorf("failed to walk markdown: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}
	return buf.Bytes(), nil
}

type pdfRenderer struct {
	pdf       *fpdf.Fpdf
	source    []byte
	font      string
	size      float64
	bold      bool
	italic    bool
	listLevel int
}

func (r *pdfRenderer) render(node ast.Node) error {
	return ast.Walk(node, r.walk)
}

func (r *pdfRenderer) updateFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(r.font, style, r.size)
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindHeading:
		heading := n.(*ast.Heading)
		if entering {
			r.pdf.Ln(6)
			size := 14.0
			switch heading.Level {
			case 1:
				size = 14
			case 2:
				size = 12
			default:
				size = 10
			}
			r.pdf.SetFont(r.font, "B", size)
		} else {
			r.pdf.Ln(6)
			r.updateFont()
		}

	case ast.KindParagraph:
		if !entering {
			r.pdf.Ln(7)
		}

	case ast.KindText:
		if entering {
			r.pdf.Write(5, string(n.(*ast.Text).Text(r.source)))
		}

	case ast.KindEmphasis:
		if n.(*ast.Emphasis).Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.updateFont()

	case ast.KindCodeSpan:
		if entering {
			r.pdf.SetFont("Courier", "", r.size)
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if textNode, ok := c.(*ast.Text); ok {
					r.pdf.Write(5, string(textNode.Segment.Value(r.source)))
				}
			}
		} else {
			r.updateFont()
		}
		return ast.WalkSkipChildren, nil

	case ast.KindFencedCodeBlock:
		if entering {
			r.renderCodeLines(n.(*ast.FencedCodeBlock).Lines())
			return ast.WalkSkipChildren, nil
		}

	case ast.KindCodeBlock:
		if entering {
			r.renderCodeLines(n.(*ast.CodeBlock).Lines())
			return ast.WalkSkipChildren, nil
		}

	case ast.KindList:
		if entering {
			r.listLevel++
		} else {
			r.listLevel--
			if r.listLevel == 0 {
				r.pdf.Ln(2)
			}
		}

	case ast.KindListItem:
		if entering {
			r.pdf.Ln(5)
			r.pdf.SetX(15 + float64(r.listLevel)*5.0)
			r.pdf.Write(5, "- ")
		}

	case ast.KindThematicBreak:
		if entering {
			r.pdf.Ln(2)
			r.pdf.Line(15, r.pdf.GetY(), 195, r.pdf.GetY())
			r.pdf.Ln(2)
		}
	}

	return ast.WalkContinue, nil
}

func (r *pdfRenderer) renderCodeLines(lines *text.Segments) {
	r.pdf.Ln(2)
	r.pdf.SetFont("Courier", "", r.size)
	r.pdf.SetFillColor(245, 245, 245)
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		r.pdf.MultiCell(0, 5, string(line.Value(r.source)), "", "L", true)
	}
	r.pdf.SetFillColor(255, 255, 255)
	r.updateFont()
	r.pdf.Ln(2)
}
