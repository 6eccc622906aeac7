package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"lowvibe/internal/chat"
	"lowvibe/internal/logging"
)

// OllamaConfig holds configuration for the Ollama backend.
type OllamaConfig struct {
	BaseURL       string
	APIKey        string // Optional, for remote servers behind auth
	Model         string
	Temperature   float64
	MaxTokens     int
	ContextLength int
	HTTPTimeout   time.Duration
	Retry         RetryConfig
}

// Ollama completes against an Ollama server using schema-constrained output.
type Ollama struct {
	client    *api.Client
	config    OllamaConfig
	validator *Validator
}

// authTransport adds Authorization header to HTTP requests.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(reqClone)
}

// NewOllama creates an Ollama-backed oracle.
func NewOllama(config OllamaConfig, validator *Validator) (*Ollama, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 300 * time.Second
	}
	if config.Retry.MaxDelay == 0 {
		config.Retry = DefaultRetryConfig()
	}
	if validator == nil {
		validator = NewValidator()
	}

	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}
	if baseURL.Scheme == "http" {
		host := baseURL.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			logging.Warn("Ollama connection uses unencrypted HTTP to remote host", "host", host)
		}
	}

	httpClient := &http.Client{Timeout: config.HTTPTimeout}
	if config.APIKey != "" {
		httpClient.Transport = &authTransport{base: http.DefaultTransport, apiKey: config.APIKey}
	}

	return &Ollama{
		client:    api.NewClient(baseURL, httpClient),
		config:    config,
		validator: validator,
	}, nil
}

// Model returns the configured model name.
func (o *Ollama) Model() string { return o.config.Model }

type ollamaReply struct {
	text  string
	usage Usage
}

// Complete implements Oracle.
func (o *Ollama) Complete(ctx context.Context, messages []chat.Message, schema Schema) (json.RawMessage, Usage, error) {
	req := &api.ChatRequest{
		Model:    o.config.Model,
		Messages: toOllamaMessages(messages),
		Stream:   ptr(false),
		Format:   schema.JSON(),
		Options:  o.options(),
	}

	reply, err := withRetry(ctx, "ollama", o.config.Retry, func(ctx context.Context) (ollamaReply, error) {
		return o.chat(ctx, req)
	})
	if err != nil {
		return nil, Usage{}, err
	}

	if limit := o.config.ContextLength; limit > 0 && reply.usage.PromptTokens >= limit {
		// Ollama truncates silently when the prompt fills num_ctx.
		return nil, reply.usage, &OverflowError{PromptTokens: reply.usage.PromptTokens, Limit: limit}
	}

	raw, err := o.validator.Check(schema, reply.text)
	return raw, reply.usage, err
}

func (o *Ollama) chat(ctx context.Context, req *api.ChatRequest) (ollamaReply, error) {
	var sb strings.Builder
	var out ollamaReply
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		if resp.Done {
			out.usage = Usage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			}
		}
		return nil
	})
	out.text = sb.String()
	return out, err
}

func (o *Ollama) options() map[string]any {
	opts := map[string]any{
		"temperature": o.config.Temperature,
	}
	if o.config.MaxTokens > 0 {
		opts["num_predict"] = o.config.MaxTokens
	}
	if o.config.ContextLength > 0 {
		opts["num_ctx"] = o.config.ContextLength
	}
	return opts
}

func toOllamaMessages(msgs []chat.Message) []api.Message {
	out := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, api.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
