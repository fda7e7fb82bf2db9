package oracle

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"
)

// openAICompat serves every chat-completions-compatible backend:
// OpenRouter, Ollama, and Gemini through its OpenAI-compatible endpoint.
type openAICompat struct {
	client openai.Client
	model  string
	logger zerolog.Logger
}

func newOpenAICompat(baseURL, apiKey, model string, logger zerolog.Logger) *openAICompat {
	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &openAICompat{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger.With().Str("component", "oracle").Str("model", model).Logger(),
	}
}

// Complete issues a single chat completion. The system text rides as a
// system message ahead of the user prompt.
func (p *openAICompat) Complete(ctx context.Context, prompt, system string, opts Options) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: messages,
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(float64(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		p.logger.Error().Err(err).Msg("completion failed")
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return completion.Choices[0].Message.Content, nil
}

var _ Provider = (*openAICompat)(nil)
