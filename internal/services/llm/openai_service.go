package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/common"
	"github.com/ternarybob/censeo/internal/interfaces"
)

// OpenAIService implements the LLMService interface using the OpenAI
// Chat Completions API.
type OpenAIService struct {
	config  *common.OpenAIConfig
	logger  arbor.ILogger
	client  openai.Client
	timeout time.Duration
}

// NewOpenAIService creates a new OpenAI LLM service instance.
func NewOpenAIService(openaiConfig *common.OpenAIConfig, logger arbor.ILogger) (*OpenAIService, error) {
	if openaiConfig.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required for OpenAI service (set via OPENAI_API_KEY or llm.openai.api_key in config)")
	}

	if openaiConfig.Model == "" {
		openaiConfig.Model = "gpt-4-turbo"
	}

	timeout, err := time.ParseDuration(openaiConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", openaiConfig.Timeout, err)
	}

	service := &OpenAIService{
		config:  openaiConfig,
		logger:  logger,
		client:  openai.NewClient(option.WithAPIKey(openaiConfig.APIKey)),
		timeout: timeout,
	}

	logger.Debug().
		Str("model", openaiConfig.Model).
		Dur("timeout", timeout).
		Msg("OpenAI LLM service initialized successfully")

	return service, nil
}

// Chat generates a completion response based on the conversation history.
func (s *OpenAIService) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty for chat completion")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(s.config.Model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	if s.config.Temperature > 0 {
		params.Temperature = openai.Float(float64(s.config.Temperature))
	}

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}

	completion, err := s.client.Chat.Completions.New(timeoutCtx, params)
	if err != nil {
		s.logger.Error().
			Err(err).
			Int("message_count", len(messages)).
			Msg("OpenAI chat completion failed")
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}

	response := completion.Choices[0].Message.Content
	if strings.TrimSpace(response) == "" {
		return "", fmt.Errorf("no response generated from OpenAI API")
	}

	duration := time.Since(startTime)
	s.logger.Debug().
		Int("message_count", len(messages)).
		Int("response_length", len(response)).
		Int("tokens_used", int(completion.Usage.TotalTokens)).
		Dur("duration", duration).
		Msg("OpenAI chat completion completed successfully")

	return response, nil
}

// HealthCheck verifies the OpenAI service is operational.
func (s *OpenAIService) HealthCheck(ctx context.Context) error {
	healthCheckCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	response, err := s.Chat(healthCheckCtx, []interfaces.Message{
		{Role: "user", Content: "ping"},
	})
	if err != nil {
		return fmt.Errorf("OpenAI probe failed: %w", err)
	}
	if len(strings.TrimSpace(response)) == 0 {
		return fmt.Errorf("OpenAI probe returned empty response")
	}

	return nil
}

// Close releases resources and performs cleanup operations.
func (s *OpenAIService) Close() error {
	s.logger.Debug().Msg("Closing OpenAI LLM service")
	return nil
}

var _ interfaces.LLMService = (*OpenAIService)(nil)
