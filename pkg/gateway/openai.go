package gateway

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ChatClient captures the subset of the OpenAI SDK used here, satisfied by
// *openai.ChatCompletionService and by test fakes.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIProvider serves completions through the Chat Completions API. A
// custom base URL points it at any OpenAI-compatible endpoint, which is
// how Groq is configured.
type OpenAIProvider struct {
	name string
	chat ChatClient
}

// NewOpenAIProvider builds a provider with the default SDK HTTP client.
func NewOpenAIProvider(name, apiKey, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{name: name, chat: &client.Chat.Completions}
}

// NewOpenAIProviderWithClient injects a ChatClient; used by tests.
func NewOpenAIProviderWithClient(name string, chat ChatClient) *OpenAIProvider {
	return &OpenAIProvider{name: name, chat: chat}
}

// Name returns the configured provider name.
func (p *OpenAIProvider) Name() string { return p.name }

// Complete issues one chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, model string, messages []Message, maxTokens int) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		if m.Role == RoleSystem {
			msgs = append(msgs, openai.SystemMessage(m.Content))
			continue
		}
		msgs = append(msgs, openai.UserMessage(m.Content))
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("openai: at least one message is required")
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	resp, err := p.chat.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choice list")
	}
	return resp.Choices[0].Message.Content, nil
}
