package llmhost

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"llmos/pkg/llmhost/resilience"
)

// GoogleHost is an alternate backend for conversations configured to use
// a Gemini model. Grounded on
// pkg/agent/internal/llmimpl/google/client.go's lazy client construction
// (genai.NewClient needs a context, which this package's constructor
// doesn't have one handy for) and its system-instruction/temperature/
// max-tokens wiring.
type GoogleHost struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

func NewGoogleHost(apiKey, model string) *GoogleHost {
	return &GoogleHost{apiKey: apiKey, model: model}
}

func (h *GoogleHost) Chat(ctx context.Context, req Request) (Response, error) {
	return resilience.Do(ctx, func(ctx context.Context) (Response, error) {
		return h.chatOnce(ctx, req)
	})
}

func (h *GoogleHost) ensureClient(ctx context.Context) (*genai.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client != nil {
		return h.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: h.apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, resilience.NewErrorWithCause(resilience.ErrorTypeAuth, err, "create gemini client")
	}
	h.client = client
	return client, nil
}

func (h *GoogleHost) chatOnce(ctx context.Context, req Request) (Response, error) {
	client, err := h.ensureClient(ctx)
	if err != nil {
		return Response{}, err
	}

	var systemInstruction string
	var contents []*genai.Content
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			if systemInstruction != "" {
				systemInstruction += "\n\n" + m.Content
			} else {
				systemInstruction = m.Content
			}
			continue
		}
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	temperature := req.Temperature
	maxTokens := int32(req.MaxTokens)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: maxTokens,
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}}
	}
	if req.Mode == ModeJSON || req.Mode == ModeStructured {
		config.ResponseMIMEType = "application/json"
		if req.Mode == ModeStructured && req.Schema != nil {
			schema, err := convertMapSchemaToGemini(req.Schema)
			if err != nil {
				return Response{}, resilience.NewErrorWithCause(resilience.ErrorTypeBadPrompt, err, "convert structured-output schema")
			}
			config.ResponseSchema = schema
		}
	}

	result, err := client.Models.GenerateContent(ctx, h.model, contents, config)
	if err != nil {
		return Response{}, classifyGoogleError(err)
	}
	if result == nil {
		return Response{}, resilience.NewError(resilience.ErrorTypeEmptyResponse, "empty response from gemini api")
	}
	content := result.Text()
	if content == "" {
		return Response{}, resilience.NewError(resilience.ErrorTypeEmptyResponse, "gemini returned no text")
	}
	return Response{Content: content}, nil
}

// convertMapSchemaToGemini translates the JSON-schema-shaped map this
// runtime builds for structured output (spec.md §4.7) into genai's typed
// Schema, handling only the object/string/number/array/boolean shapes
// the fixed {emotions,thoughts,function_call} schema actually uses.
func convertMapSchemaToGemini(m map[string]any) (*genai.Schema, error) {
	typ, _ := m["type"].(string)
	schema := &genai.Schema{}
	switch typ {
	case "object":
		schema.Type = genai.TypeObject
		props, _ := m["properties"].(map[string]any)
		if len(props) > 0 {
			schema.Properties = make(map[string]*genai.Schema, len(props))
			for name, propRaw := range props {
				propMap, ok := propRaw.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("property %q is not an object", name)
				}
				prop, err := convertMapSchemaToGemini(propMap)
				if err != nil {
					return nil, fmt.Errorf("property %q: %w", name, err)
				}
				schema.Properties[name] = prop
			}
		}
		if req, ok := m["required"].([]string); ok {
			schema.Required = req
		}
	case "array":
		schema.Type = genai.TypeArray
		if itemsRaw, ok := m["items"].(map[string]any); ok {
			items, err := convertMapSchemaToGemini(itemsRaw)
			if err != nil {
				return nil, fmt.Errorf("array items: %w", err)
			}
			schema.Items = items
		}
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "boolean":
		schema.Type = genai.TypeBoolean
	default:
		return nil, fmt.Errorf("unsupported schema type %q", typ)
	}
	return schema, nil
}

func classifyGoogleError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return resilience.NewErrorWithCause(resilience.ErrorTypeRateLimit, err, "gemini rate limited")
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return resilience.NewErrorWithCause(resilience.ErrorTypeAuth, err, "gemini auth error")
	case strings.Contains(msg, "500"), strings.Contains(msg, "503"):
		return resilience.NewErrorWithCause(resilience.ErrorTypeTransient, err, "gemini server error")
	default:
		return resilience.NewErrorWithCause(resilience.ErrorTypeUnknown, err, "gemini api error")
	}
}
