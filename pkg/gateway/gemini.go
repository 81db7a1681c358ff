package gateway

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiModels captures the subset of the GenAI SDK used here.
type GeminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider serves completions through the Gemini API.
type GeminiProvider struct {
	name   string
	models GeminiModels
}

// NewGeminiProvider builds a provider with a fresh GenAI client.
func NewGeminiProvider(name, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiProvider{name: name, models: client.Models}, nil
}

// NewGeminiProviderWithModels injects a GeminiModels; used by tests.
func NewGeminiProviderWithModels(name string, models GeminiModels) *GeminiProvider {
	return &GeminiProvider{name: name, models: models}
}

// Name returns the configured provider name.
func (p *GeminiProvider) Name() string { return p.name }

// Complete issues one GenerateContent call. System messages become the
// request's system instruction; user messages become content parts.
func (p *GeminiProvider) Complete(ctx context.Context, model string, messages []Message, maxTokens int) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	var contents []*genai.Content
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		if m.Role == RoleSystem {
			cfg.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
			continue
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("gemini: at least one user message is required")
	}
	resp, err := p.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return text, nil
}
