package llmhost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"llmos/pkg/llmhost/resilience"
)

// OllamaHost is the primary backend: a local Ollama server. Grounded on
// pkg/agent/internal/llmimpl/ollama/client.go's api.Client wiring,
// extended with Format so ModeJSON/ModeStructured (spec.md §4.7) have
// somewhere to live — the teacher's client never needed them because it
// drives tool-calling models, not this runtime's strict-JSON turn
// format.
type OllamaHost struct {
	client *api.Client
}

// NewOllamaHost dials hostURL (e.g. "http://localhost:11434").
func NewOllamaHost(hostURL string) (*OllamaHost, error) {
	parsed, err := url.Parse(hostURL)
	if err != nil {
		return nil, fmt.Errorf("llmhost: parse ollama host url: %w", err)
	}
	return &OllamaHost{client: api.NewClient(parsed, http.DefaultClient)}, nil
}

func (h *OllamaHost) Chat(ctx context.Context, req Request) (Response, error) {
	return resilience.Do(ctx, func(ctx context.Context) (Response, error) {
		return h.chatOnce(ctx, req)
	})
}

func (h *OllamaHost) chatOnce(ctx context.Context, req Request) (Response, error) {
	messages := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: string(m.Role), Content: m.Content})
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
			"num_ctx":     req.ContextWindow,
		},
	}

	switch req.Mode {
	case ModeJSON:
		chatReq.Format = json.RawMessage(`"json"`)
	case ModeStructured:
		schema, err := json.Marshal(req.Schema)
		if err != nil {
			return Response{}, resilience.NewErrorWithCause(resilience.ErrorTypeBadPrompt, err, "marshal structured-output schema")
		}
		chatReq.Format = schema
	}

	var result api.ChatResponse
	err := h.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		result = resp
		return nil
	})
	if err != nil {
		return Response{}, classifyOllamaError(err)
	}
	if result.Message.Content == "" {
		return Response{}, resilience.NewError(resilience.ErrorTypeEmptyResponse, "ollama returned no content")
	}
	return Response{Content: result.Message.Content}, nil
}

// Embed implements Embedder via Ollama's embedding endpoint.
func (h *OllamaHost) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := &api.EmbedRequest{Model: "nomic-embed-text", Input: texts}
	resp, err := h.client.Embed(ctx, req)
	if err != nil {
		return nil, classifyOllamaError(err)
	}
	return resp.Embeddings, nil
}

func classifyOllamaError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return resilience.NewErrorWithCause(resilience.ErrorTypeTransient, err, "ollama server not reachable")
	case strings.Contains(msg, "model") && strings.Contains(msg, "not found"):
		return resilience.NewErrorWithCause(resilience.ErrorTypeBadPrompt, err, "ollama model not found")
	case strings.Contains(msg, "context canceled"):
		return resilience.NewErrorWithCause(resilience.ErrorTypeTransient, err, "request canceled")
	case strings.Contains(msg, "timeout"):
		return resilience.NewErrorWithCause(resilience.ErrorTypeTransient, err, "request timeout")
	default:
		return resilience.NewErrorWithCause(resilience.ErrorTypeUnknown, err, "ollama api error")
	}
}
