package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// defaultGeminiModel is the model the analyst was tuned against.
const defaultGeminiModel = "gemini-2.0-flash-001"

// googleAIProvider talks to Gemini through the native generative language
// API rather than its OpenAI-compatible shim.
//
// API key: set via config or GOOGLE_API_KEY env var.
type googleAIProvider struct {
	client *googleai.GoogleAI
	model  string
}

// NewGoogleAI creates a native Gemini provider.
func NewGoogleAI(ctx context.Context, cfg Config) (Provider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("googleai: no API key configured")
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating googleai client: %w", err)
	}
	return &googleAIProvider{client: client, model: model}, nil
}

func (p *googleAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	model := p.model
	if req.Model != "" {
		model = req.Model
		opts = append(opts, llms.WithModel(model))
	}

	resp, err := p.client.GenerateContent(ctx, toMessageContent(req.Messages), opts...)
	if err != nil {
		return nil, fmt.Errorf("googleai generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := resp.Choices[0]
	out := &ChatResponse{
		Content:      choice.Content,
		Model:        model,
		FinishReason: choice.StopReason,
	}
	out.PromptTokens = intInfo(choice.GenerationInfo, "input_tokens")
	out.CompletionTokens = intInfo(choice.GenerationInfo, "output_tokens")
	out.TotalTokens = intInfo(choice.GenerationInfo, "total_tokens")
	return out, nil
}

func toMessageContent(msgs []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextPart(m.Content)},
		})
	}
	return out
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
