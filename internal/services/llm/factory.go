package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/common"
	"github.com/ternarybob/censeo/internal/interfaces"
)

// NewService creates the LLM service for the configured provider.
func NewService(config *common.LLMConfig, logger arbor.ILogger) (interfaces.LLMService, error) {
	switch config.Provider {
	case "claude":
		return NewClaudeService(&config.Claude, logger)
	case "gemini":
		return NewGeminiService(&config.Gemini, logger)
	case "openai":
		return NewOpenAIService(&config.OpenAI, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (expected claude, gemini or openai)", config.Provider)
	}
}
