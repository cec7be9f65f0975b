// Package summarizer implements spec.md §4.9: when the FIFO queue grows
// past FLUSH·W tokens, recursively summarize its oldest entries into a
// single system record so the conversation keeps fitting the model's
// context window. Grounded on llm_os/agent.py's
// summarise_messages_in_place and summary_message_seq, and on
// llm_os/prompts/llm_os_summarize.py's fixed system prompt.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"llmos/pkg/llmhost"
	"llmos/pkg/memory"
)

// DefaultWordLimit matches llm_os/prompts/llm_os_summarize.py's
// SUMMARY_WORD_LIMIT.
const DefaultWordLimit = 100

func systemPrompt(wordLimit int) string {
	return fmt.Sprintf(`Your job is to summarize a history of previous messages in a conversation between an AI persona and a human.
The conversation you are given is a from a fixed context window and may not be complete.
Messages sent by the AI are marked with the 'assistant' role.
The AI 'assistant' can also make calls to functions starting with '❮TOOL CALL❯', whose outputs can be seen in messages with the 'user' role starting with '❮TOOL MESSAGE❯'.
Things the AI says starting with '❮ASSISTANT MESSAGE❯' are considered inner monologue and are not seen by the user.
The only AI messages seen by the user are from when the AI uses 'send_message'.
Messages the user sends are in the 'user' role starting with '❮USER MESSAGE❯'.
The 'user' role is also used for important system events and messages, such as login events, heartbeat events (heartbeats run the AI's program without user action, allowing the AI to act without prompting from the user sending them a message), memory pressure warnings, and error messages. Such events start with '❮SYSTEM MESSAGE❯'.
Summarize what happened in the conversation from the perspective of the AI (use the first person).
Keep your summary less than %d words, do NOT exceed this word limit.
Only output the summary, do NOT include anything else in your output.`, wordLimit)
}

// assistantPayload is the minimal shape summarizeToolCallText needs out
// of a (previously validated) assistant turn's JSON body.
type assistantPayload struct {
	Thoughts     []string `json:"thoughts"`
	FunctionCall any      `json:"function_call"`
}

// buildTranscript flattens toSummarize into the single flat, newline
// -joined text llm_os/agent.py's active summary_message_seq builds —
// every record kind (including assistant) becomes one line in the same
// list, unlike the prompt-assembly collapse in pkg/memory which keeps
// assistant turns as separate chat messages.
func buildTranscript(toSummarize []memory.Record) string {
	var lines []string
	for _, r := range toSummarize {
		switch r.Kind {
		case memory.KindSystem:
			lines = append(lines, fmt.Sprintf("❮SYSTEM MESSAGE❯ %s", r.Content))
		case memory.KindTool:
			lines = append(lines, fmt.Sprintf("❮TOOL MESSAGE for conversation with user with id '%d'❯ %s", r.UserID, r.Content))
		case memory.KindUser:
			lines = append(lines, fmt.Sprintf("❮USER MESSAGE for conversation with user with id '%d'❯ %s", r.UserID, r.Content))
		case memory.KindAssistant:
			var payload assistantPayload
			if err := json.Unmarshal([]byte(r.Content), &payload); err != nil {
				lines = append(lines, fmt.Sprintf("❮ERRONEOUS ASSISTANT MESSAGE for conversation with user with id '%d'❯ %s", r.UserID, r.Content))
				continue
			}
			if len(payload.Thoughts) > 0 {
				lines = append(lines, fmt.Sprintf("❮ASSISTANT MONOLOGUE for conversation with user with id '%d'❯ %s", r.UserID, strings.Join(payload.Thoughts, " ")))
			}
			if payload.FunctionCall != nil {
				fc, _ := json.Marshal(payload.FunctionCall)
				lines = append(lines, fmt.Sprintf("❮TOOL CALL for conversation with user with id '%d'❯ %s", r.UserID, string(fc)))
			}
		}
	}
	return strings.Join(lines, "\n\n")
}

// Budget is the subset of pkg/config.Budget the summarizer needs.
type Budget struct {
	TruncationFrac float64
	WarnFrac       float64
	LastNMessages  int
	WordLimit      int
}

// Result reports what the summarizer did, for logging/tests.
type Result struct {
	PoppedCount int
	HiddenCount int // x in "prior messages (x of y)"
	TotalCount  int // y in "prior messages (x of y)"
	SummaryText string
}

// Run performs one summarization pass over mem's current FIFO queue and
// replaces it in place. Returns a zero Result and a nil error, leaving
// the queue untouched, if the queue is already at or below
// LastNMessages (a no-op per spec.md §8 edge case
// "flush threshold reached but FIFO length ≤ LAST_N").
func Run(ctx context.Context, mem *memory.Memory, host llmhost.Host, model string, contextWindow int, instructions string, budget Budget) (Result, error) {
	fifo := mem.FIFO()
	totalNo, _ := mem.Counters()

	remaining := make([]memory.Record, len(fifo))
	copy(remaining, fifo)
	var toSummarize []memory.Record

	truncationBudget := int(budget.TruncationFrac * float64(contextWindow))
	warnBudget := int(budget.WarnFrac * float64(contextWindow))

	for {
		tokens, err := mem.CountTokensForFIFO(ctx, instructions, remaining)
		if err != nil {
			return Result{}, fmt.Errorf("summarizer: count tokens: %w", err)
		}
		if !(tokens > truncationBudget && len(remaining) > budget.LastNMessages) {
			break
		}
		toSummarize = append(toSummarize, remaining[0])
		remaining = remaining[1:]
	}

	if len(toSummarize) == 0 {
		return Result{}, nil
	}

	for {
		tokens, err := mem.CountTokensForFIFO(ctx, instructions, remaining)
		if err != nil {
			return Result{}, fmt.Errorf("summarizer: count tokens: %w", err)
		}
		if len(remaining) > 0 && remaining[0].Kind == memory.KindUser {
			break
		}
		if tokens >= warnBudget {
			break
		}
		if len(toSummarize) == 0 {
			break
		}
		last := toSummarize[len(toSummarize)-1]
		toSummarize = toSummarize[:len(toSummarize)-1]
		remaining = append([]memory.Record{last}, remaining...)
	}

	if len(toSummarize) == 0 {
		return Result{}, nil
	}

	transcript := buildTranscript(toSummarize)
	wordLimit := budget.WordLimit
	if wordLimit == 0 {
		wordLimit = DefaultWordLimit
	}

	resp, err := host.Chat(ctx, llmhost.Request{
		Model: model,
		Messages: []llmhost.Message{
			{Role: llmhost.RoleSystem, Content: systemPrompt(wordLimit)},
			{Role: llmhost.RoleUser, Content: transcript},
		},
		Mode:          llmhost.ModeFree,
		ContextWindow: contextWindow,
	})
	if err != nil {
		return Result{}, fmt.Errorf("summarizer: host chat: %w", err)
	}

	hidden := totalNo - len(remaining)
	summaryRecord := memory.Record{
		Kind: memory.KindSystem,
		Role: "user",
		Content: fmt.Sprintf(
			"Note: prior messages (%d of %d) have been hidden from view due to conversation memory constraints.\nThe following is a summary of the previous %d messages:\n%s",
			hidden, totalNo, len(toSummarize), resp.Content,
		),
	}

	newFIFO := append([]memory.Record{summaryRecord}, remaining...)
	if err := mem.ReplaceFIFO(newFIFO); err != nil {
		return Result{}, fmt.Errorf("summarizer: replace fifo: %w", err)
	}

	return Result{
		PoppedCount: len(toSummarize),
		HiddenCount: hidden,
		TotalCount:  totalNo,
		SummaryText: resp.Content,
	}, nil
}
