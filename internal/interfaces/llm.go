package interfaces

import (
	"context"

	"github.com/ternarybob/censeo/internal/models"
)

// StageRunner is the external model-call boundary consumed by the task
// executor. Implementations classify their failures: *models.TransientError
// for rate limits, timeouts and network faults; *models.ValidationError for
// output that cannot be parsed into the stage's expected shape.
type StageRunner interface {
	RunStage(ctx context.Context, stage models.Stage, input models.StageInput) (*models.StageOutput, error)
}

// Message represents one turn of a model conversation.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// LLMService is the provider-agnostic chat contract. Claude, Gemini and
// OpenAI implementations all satisfy it; the stage runner picks one at
// construction time.
type LLMService interface {
	// Chat generates a completion for the conversation history.
	Chat(ctx context.Context, messages []Message) (string, error)

	// HealthCheck verifies the provider is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases provider resources.
	Close() error
}
