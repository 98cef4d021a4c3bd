// -----------------------------------------------------------------------
// Stage Runner - Executes one analysis stage against the LLM provider
// Builds prompts from stage descriptors, parses and validates output.
// -----------------------------------------------------------------------

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/interfaces"
	"github.com/ternarybob/censeo/internal/models"
	"golang.org/x/time/rate"
)

// StageRunner runs one analysis stage per call against the configured
// provider. All stages share one rate limiter so concurrent jobs cannot
// overrun the provider's request budget.
type StageRunner struct {
	service  interfaces.LLMService
	limiter  *rate.Limiter
	validate *validator.Validate
	logger   arbor.ILogger
}

var _ interfaces.StageRunner = (*StageRunner)(nil)

// NewStageRunner creates a stage runner over the given LLM service.
// rateLimit is the model-call budget in calls per second.
func NewStageRunner(service interfaces.LLMService, rateLimit int, logger arbor.ILogger) *StageRunner {
	if rateLimit <= 0 {
		rateLimit = 2
	}
	return &StageRunner{
		service:  service,
		limiter:  rate.NewLimiter(rate.Limit(rateLimit), rateLimit),
		validate: validator.New(),
		logger:   logger,
	}
}

// RunStage executes one stage. Failures are classified:
// *models.ValidationError for empty input or unusable output (with
// MaybeTruncated set when the response may have been cut off), and
// *models.TransientError for provider failures worth retrying.
func (r *StageRunner) RunStage(ctx context.Context, stage models.Stage, input models.StageInput) (*models.StageOutput, error) {
	if strings.TrimSpace(input.DocumentText) == "" {
		return nil, &models.ValidationError{Msg: "document text is empty"}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	messages := buildStageMessages(stage, input)

	response, err := r.service.Chat(ctx, messages)
	if err != nil {
		if isTransientAPIError(err) {
			if delay := extractRetryDelay(err); delay > 0 {
				r.logger.Debug().
					Str("stage", string(stage.Name)).
					Str("suggested_delay", delay.String()).
					Msg("Provider suggested retry delay")
			}
			return nil, &models.TransientError{Msg: fmt.Sprintf("stage %s model call", stage.Name), Err: err}
		}
		return nil, fmt.Errorf("stage %s model call: %w", stage.Name, err)
	}

	output, err := r.parseOutput(response)
	if err != nil {
		r.logger.Warn().
			Str("stage", string(stage.Name)).
			Int("response_length", len(response)).
			Err(err).
			Msg("Stage output failed validation")
		return nil, err
	}

	return output, nil
}

// buildStageMessages assembles the conversation for one stage: the stage
// role as system instruction, then a single user message carrying the
// task, the user query, prior stage outputs and the document text.
func buildStageMessages(stage models.Stage, input models.StageInput) []interfaces.Message {
	var b strings.Builder

	b.WriteString(stage.Task)
	b.WriteString("\n")

	if q := strings.TrimSpace(input.Query); q != "" {
		b.WriteString("\nUser question to address: ")
		b.WriteString(q)
		b.WriteString("\n")
	}

	// Prior stage outputs in pipeline order, restricted to declared inputs
	for _, name := range stage.Inputs {
		prior, ok := input.Prior[name]
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("\n--- Output of %s stage ---\n", name))
		b.WriteString(prior.Report)
		b.WriteString("\n")
	}

	b.WriteString("\n--- Document ---\n")
	b.WriteString(input.DocumentText)
	b.WriteString("\n--- End of document ---\n")

	b.WriteString("\nRespond with a single JSON object, no surrounding prose:\n")
	b.WriteString(`{"summary": "<2-3 sentence summary>", "report": "<full detailed report in markdown>"}`)

	return []interfaces.Message{
		{Role: "system", Content: stage.Role},
		{Role: "user", Content: b.String()},
	}
}

// parseOutput parses the model response into a validated StageOutput.
// An unparseable response may be a cut-off completion, so it is flagged
// MaybeTruncated; a parsed response missing required fields is
// deterministic and is not.
func (r *StageRunner) parseOutput(response string) (*models.StageOutput, error) {
	raw := extractJSON(response)
	if raw == "" {
		return nil, &models.ValidationError{Msg: "response contains no JSON object", MaybeTruncated: true}
	}

	var output models.StageOutput
	if err := json.Unmarshal([]byte(raw), &output); err != nil {
		return nil, &models.ValidationError{Msg: fmt.Sprintf("response is not valid JSON: %v", err), MaybeTruncated: true}
	}

	if err := r.validate.Struct(&output); err != nil {
		return nil, &models.ValidationError{Msg: fmt.Sprintf("response missing required fields: %v", err)}
	}

	return &output, nil
}

// extractJSON pulls the outermost JSON object out of a model response,
// tolerating markdown code fences and surrounding prose.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	// Strip markdown code fences if present
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
