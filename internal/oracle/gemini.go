package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"lowvibe/internal/chat"
)

// GeminiConfig holds configuration for the Gemini backend.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Retry       RetryConfig
}

// Gemini completes against the Gemini API using response JSON schemas.
type Gemini struct {
	client    *genai.Client
	config    GeminiConfig
	validator *Validator
}

// NewGemini creates a Gemini-backed oracle.
func NewGemini(ctx context.Context, config GeminiConfig, validator *Validator) (*Gemini, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if config.Retry.MaxDelay == 0 {
		config.Retry = DefaultRetryConfig()
	}
	if validator == nil {
		validator = NewValidator()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{client: client, config: config, validator: validator}, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.config.Model }

// Complete implements Oracle.
func (g *Gemini) Complete(ctx context.Context, messages []chat.Message, schema Schema) (json.RawMessage, Usage, error) {
	system, contents := toGeminiContents(messages)
	cfg := &genai.GenerateContentConfig{
		Temperature:        ptr(float32(g.config.Temperature)),
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: schema.Definition,
	}
	if g.config.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.config.MaxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := withRetry(ctx, "gemini", g.config.Retry, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		return g.client.Models.GenerateContent(callCtx, g.config.Model, contents, cfg)
	})
	if err != nil {
		return nil, Usage{}, err
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	raw, err := g.validator.Check(schema, resp.Text())
	return raw, usage, err
}

// toGeminiContents folds the leading system messages into a system
// instruction; later system messages become tagged user turns.
func toGeminiContents(msgs []chat.Message) (string, []*genai.Content) {
	var system []string
	i := 0
	for ; i < len(msgs) && msgs[i].Role == chat.RoleSystem; i++ {
		system = append(system, msgs[i].Content)
	}
	contents := make([]*genai.Content, 0, len(msgs)-i)
	for _, m := range msgs[i:] {
		switch m.Role {
		case chat.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		case chat.RoleSystem:
			contents = append(contents, genai.NewContentFromText("[system] "+m.Content, genai.RoleUser))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}
