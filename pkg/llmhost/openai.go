package llmhost

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"llmos/pkg/llmhost/resilience"
)

// OpenAIHost is an alternate backend using the Responses API. Grounded
// on pkg/agent/internal/llmimpl/openaiofficial/client.go's
// role-prefixed input-text flattening (the Responses API takes a
// single input string/item list, not a role-tagged messages array the
// way Chat Completions does).
type OpenAIHost struct {
	client openai.Client
}

func NewOpenAIHost(apiKey string) *OpenAIHost {
	return &OpenAIHost{client: openai.NewClient(option.WithAPIKey(apiKey))}
}

func (h *OpenAIHost) Chat(ctx context.Context, req Request) (Response, error) {
	return resilience.Do(ctx, func(ctx context.Context) (Response, error) {
		return h.chatOnce(ctx, req)
	})
}

func (h *OpenAIHost) chatOnce(ctx context.Context, req Request) (Response, error) {
	var input strings.Builder
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			fmt.Fprintf(&input, "System: %s\n\n", m.Content)
		case RoleAssistant:
			fmt.Fprintf(&input, "Assistant: %s\n\n", m.Content)
		default:
			input.WriteString(m.Content)
			input.WriteString("\n\n")
		}
	}

	params := responses.ResponseNewParams{
		Model:           req.Model,
		MaxOutputTokens: openai.Int(int64(req.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input.String())},
	}
	if req.Mode == ModeJSON {
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{OfJSONObject: &responses.ResponseFormatTextJSONObjectParam{}},
		}
	}

	resp, err := h.client.Responses.New(ctx, params)
	if err != nil {
		return Response{}, classifyOpenAIError(err)
	}
	content := resp.OutputText()
	if content == "" {
		return Response{}, resilience.NewError(resilience.ErrorTypeEmptyResponse, "openai returned no output text")
	}
	return Response{Content: content}, nil
}

func classifyOpenAIError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return resilience.NewErrorWithCause(resilience.ErrorTypeRateLimit, err, "openai rate limited")
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return resilience.NewErrorWithCause(resilience.ErrorTypeAuth, err, "openai auth error")
	case strings.Contains(msg, "500"), strings.Contains(msg, "503"):
		return resilience.NewErrorWithCause(resilience.ErrorTypeTransient, err, "openai server error")
	default:
		return resilience.NewErrorWithCause(resilience.ErrorTypeUnknown, err, "openai api error")
	}
}
