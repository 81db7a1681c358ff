package gateway

import (
	"context"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// MessagesClient captures the subset of the Anthropic SDK used here, so
// tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicProvider serves completions through the Claude Messages API.
type AnthropicProvider struct {
	name string
	msg  MessagesClient
}

// NewAnthropicProvider builds a provider using the default SDK HTTP client.
func NewAnthropicProvider(name, apiKey string) *AnthropicProvider {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{name: name, msg: &client.Messages}
}

// NewAnthropicProviderWithClient injects a MessagesClient; used by tests.
func NewAnthropicProviderWithClient(name string, msg MessagesClient) *AnthropicProvider {
	return &AnthropicProvider{name: name, msg: msg}
}

// Name returns the configured provider name.
func (p *AnthropicProvider) Name() string { return p.name }

// Complete issues one non-streaming Messages.New call. System messages map
// to the request's system blocks; everything else is user content.
func (p *AnthropicProvider) Complete(ctx context.Context, model string, messages []Message, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	var system []sdk.TextBlockParam
	var convo []sdk.MessageParam
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		if m.Role == RoleSystem {
			system = append(system, sdk.TextBlockParam{Text: m.Content})
			continue
		}
		convo = append(convo, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
	}
	if len(convo) == 0 {
		return "", fmt.Errorf("anthropic: at least one user message is required")
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  convo,
	}
	if len(system) > 0 {
		params.System = system
	}
	msg, err := p.msg.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}
	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}
