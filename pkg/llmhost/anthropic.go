package llmhost

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"llmos/pkg/llmhost/resilience"
)

// AnthropicHost is an alternate backend for conversations configured to
// use a Claude model. Grounded on
// pkg/agent/internal/llmimpl/anthropic/client.go's system-prompt
// extraction and user/assistant alternation requirements, which this
// runtime also needs since Anthropic's Messages API rejects a system
// role inside the messages array.
type AnthropicHost struct {
	client anthropic.Client
}

func NewAnthropicHost(apiKey string) *AnthropicHost {
	return &AnthropicHost{client: anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))}
}

func (h *AnthropicHost) Chat(ctx context.Context, req Request) (Response, error) {
	return resilience.Do(ctx, func(ctx context.Context) (Response, error) {
		return h.chatOnce(ctx, req)
	})
}

func (h *AnthropicHost) chatOnce(ctx context.Context, req Request) (Response, error) {
	systemPrompt, messages, err := extractSystemAndAlternate(req.Messages)
	if err != nil {
		return Response{}, resilience.NewErrorWithCause(resilience.ErrorTypeBadPrompt, err, "prepare anthropic messages")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  messages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if req.Mode == ModeJSON || req.Mode == ModeStructured {
		// Claude has no native JSON/structured mode; the caller's
		// system prompt already instructs the exact JSON shape, so
		// strictness here is enforced downstream by
		// pkg/agentloop/strictjson, not by the host.
		_ = req.Schema
	}

	msg, err := h.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, classifyAnthropicError(err)
	}
	if len(msg.Content) == 0 {
		return Response{}, resilience.NewError(resilience.ErrorTypeEmptyResponse, "anthropic returned no content blocks")
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return Response{Content: text.String()}, nil
}

func extractSystemAndAlternate(messages []Message) (string, []anthropic.MessageParam, error) {
	var systemParts []string
	var rest []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			systemParts = append(systemParts, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	// merge consecutive same-role turns, matching the teacher's
	// alternation-enforcement idiom
	var merged []Message
	for _, m := range rest {
		if len(merged) > 0 && merged[len(merged)-1].Role == m.Role {
			merged[len(merged)-1].Content += "\n" + m.Content
			continue
		}
		merged = append(merged, m)
	}
	out := make([]anthropic.MessageParam, 0, len(merged))
	for _, m := range merged {
		switch m.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			return "", nil, fmt.Errorf("unsupported role %q for anthropic messages array", m.Role)
		}
	}
	return strings.Join(systemParts, "\n\n"), out, nil
}

func classifyAnthropicError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return resilience.NewErrorWithCause(resilience.ErrorTypeRateLimit, err, "anthropic rate limited")
	case strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return resilience.NewErrorWithCause(resilience.ErrorTypeAuth, err, "anthropic auth error")
	case strings.Contains(msg, "500"), strings.Contains(msg, "503"):
		return resilience.NewErrorWithCause(resilience.ErrorTypeTransient, err, "anthropic server error")
	default:
		return resilience.NewErrorWithCause(resilience.ErrorTypeUnknown, err, "anthropic api error")
	}
}
