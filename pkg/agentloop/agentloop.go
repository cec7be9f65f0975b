// Package agentloop implements the Agent Step Loop (spec.md §4.7): the
// twelve-step cycle that renders the prompt, calls the configured LLM
// host, validates the strict-JSON response, dispatches the requested
// function, and manages memory-pressure warnings and forced
// conscious-memory writes. Grounded on llm_os/agent.py's Agent.step and
// the surrounding property-setter state it mutates, with the teacher's
// pkg/agent/toolloop.go lending the Go shape of a bounded
// call-then-loop-on-heartbeat cycle.
package agentloop

import (
	"context"
	"fmt"

	"llmos/pkg/agentloop/strictjson"
	"llmos/pkg/config"
	"llmos/pkg/functions"
	"llmos/pkg/llmhost"
	"llmos/pkg/memory"
	"llmos/pkg/summarizer"
	"llmos/pkg/tokenregistry"
	"llmos/pkg/toolcall"
)

// HumanTracker is the subset of *workingcontext.WorkingContext's API
// Step needs for step 1: recording which human block was rendered.
type HumanTracker interface {
	SubmitUsedHumanID(id int) error
}

// Emotion is one validated (label, intensity) pair surfaced to the UI.
type Emotion struct {
	Label     string
	Intensity float64
}

// StepResult is everything one call to Step produced, for the
// Conversation Runtime to relay and for the HTTP layer to render.
type StepResult struct {
	Records         []memory.Record
	Emotions        []Emotion
	Thoughts        []string
	Heartbeat       bool
	FunctionFailed  bool
	SummarizedNow   bool
	SummarizedAgain bool
}

// Config bundles Agent's construction-time collaborators.
type Config struct {
	Dir           string
	Memory        *memory.Memory
	WorkingCtx    HumanTracker
	Host          llmhost.Host
	Provider      *functions.Provider
	Model         string
	ContextWindow int
	Instructions  string
	Budget        config.Budget
}

// Agent runs the step loop for one conversation. One Agent exists per
// conv_id, owned by the Conversation Runtime.
type Agent struct {
	mem           *memory.Memory
	wc            HumanTracker
	host          llmhost.Host
	provider      *functions.Provider
	model         string
	contextWindow int
	instructions  string
	budget        config.Budget
	misc          *miscInfoStore
}

// New constructs an Agent, loading any previously persisted misc info
// from cfg.Dir.
func New(cfg Config) (*Agent, error) {
	misc, err := newMiscInfoStore(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("agentloop: %w", err)
	}
	return &Agent{
		mem:           cfg.Memory,
		wc:            cfg.WorkingCtx,
		host:          cfg.Host,
		provider:      cfg.Provider,
		model:         cfg.Model,
		contextWindow: cfg.ContextWindow,
		instructions:  cfg.Instructions,
		budget:        cfg.Budget,
		misc:          misc,
	}, nil
}

func (a *Agent) flushBudget() int {
	return int(a.budget.FlushFrac * float64(a.contextWindow))
}

func (a *Agent) warnBudget() int {
	return int(a.budget.WarnFrac * float64(a.contextWindow))
}

func (a *Agent) summarizerBudget() summarizer.Budget {
	return summarizer.Budget{
		TruncationFrac: a.budget.TruncationFrac,
		WarnFrac:       a.budget.WarnFrac,
		LastNMessages:  a.budget.LastNMessages,
	}
}

// Step runs one full cycle of the Agent Step Loop for userID. The
// Conversation Runtime is responsible for calling Step again while
// StepResult.Heartbeat is true.
func (a *Agent) Step(ctx context.Context, userID int, isFirstMessage bool) (StepResult, error) {
	var pending []memory.Record
	appendPending := func(r memory.Record) { pending = append(pending, r) }

	result := StepResult{}

	// Step 1: submit_used_human_id
	if err := a.wc.SubmitUsedHumanID(userID); err != nil {
		return StepResult{}, fmt.Errorf("agentloop: submit used human id: %w", err)
	}
	functions.SetBoundUserID(userID)

	// Step 2: pre-call flush check
	preTokens, err := a.mem.MainCtxMessageSeqNoTokens(ctx, a.instructions)
	if err != nil {
		return StepResult{}, fmt.Errorf("agentloop: count tokens: %w", err)
	}
	if preTokens > a.flushBudget() {
		if _, err := summarizer.Run(ctx, a.mem, a.host, a.model, a.contextWindow, a.instructions, a.summarizerBudget()); err != nil {
			return StepResult{}, fmt.Errorf("agentloop: pre-call summarize: %w", err)
		}
		if err := a.misc.setWarningGiven(false); err != nil {
			return StepResult{}, fmt.Errorf("agentloop: %w", err)
		}
		result.SummarizedNow = true
	}

	// Step 3: call the LLM host.
	messages := a.mem.MainCtxMessageSeq(ctx, a.instructions)
	req := llmhost.Request{
		Model:         a.model,
		Messages:      toHostMessages(messages),
		Mode:          llmhost.ModeStructured,
		Schema:        structuredOutputSchema(),
		ContextWindow: a.contextWindow,
	}
	resp, err := a.host.Chat(ctx, req)
	if err != nil {
		return StepResult{}, fmt.Errorf("agentloop: host chat: %w", err)
	}

	assistantRecord := memory.Record{Kind: memory.KindAssistant, UserID: userID, Role: "assistant", Content: resp.Content}
	appendPending(assistantRecord)

	finalize := func(heartbeat, functionFailed bool) (StepResult, error) {
		for _, r := range pending {
			if err := a.mem.Append(r); err != nil {
				return StepResult{}, fmt.Errorf("agentloop: append record: %w", err)
			}
		}
		result.Records = pending
		result.Heartbeat = heartbeat
		result.FunctionFailed = functionFailed
		return result, nil
	}

	regenerate := func(reason string) (StepResult, error) {
		appendPending(memory.Record{
			Kind: memory.KindSystem, UserID: userID, Role: "user",
			Content: fmt.Sprintf("Error: %s Please regenerate your response.", reason),
		})
		return finalize(true, false)
	}

	// Step 4: strict JSON parse.
	parsed, err := strictjson.Decode(resp.Content)
	if err != nil {
		return regenerate(err.Error())
	}

	// Step 5: top-level key validation.
	if err := validateTopLevelKeys(parsed); err != nil {
		return regenerate(err.Error())
	}

	// Step 6: emotions.
	emotions, err := validateEmotions(parsed["emotions"])
	if err != nil {
		return regenerate(err.Error())
	}
	for _, e := range emotions {
		result.Emotions = append(result.Emotions, Emotion(e))
	}

	// Step 7: thoughts.
	thoughts, err := validateThoughts(parsed["thoughts"])
	if err != nil {
		return regenerate(err.Error())
	}
	result.Thoughts = thoughts

	// Step 8: function dispatch.
	misc := a.misc.snapshot()
	messagesSinceLastWrite := misc.MessagesSinceLastConsciousMemoryWrite
	dispatchResult := toolcall.Dispatch(ctx, a.provider, parsed["function_call"], toolcall.State{
		IsFirstMessage:             isFirstMessage,
		ConsciousMemoryWriteForced: misc.MemoryWriteFunctionForced,
		WriteForcedReason:          misc.MemoryWriteForcedReason,
		MessagesSinceLastWrite:     &messagesSinceLastWrite,
		ForcedFlagsClear:           a.misc.clearForcedFlags,
	})
	if messagesSinceLastWrite != misc.MessagesSinceLastConsciousMemoryWrite {
		if err := a.misc.setMessagesSinceLastWrite(messagesSinceLastWrite); err != nil {
			return StepResult{}, fmt.Errorf("agentloop: %w", err)
		}
	}
	appendPending(memory.Record{Kind: memory.KindTool, UserID: userID, Role: "user", Content: dispatchResult.ResponseText})
	heartbeat := dispatchResult.Heartbeat

	// Step 9: increment messages_since_last_conscious_memory_write. A
	// successful memory-editing dispatch already reset it to -1 inside
	// toolcall.Dispatch (reflected above), so this increment runs on
	// top of that reset exactly like the original's unconditional
	// `self.messages_since_last_conscious_memory_write += 1` after
	// __call_function returns.
	if err := a.misc.incrementMessagesSinceLastWrite(); err != nil {
		return StepResult{}, fmt.Errorf("agentloop: %w", err)
	}

	// Step 10: second pressure check (only for non-first messages).
	if !isFirstMessage {
		candidateFIFO := append(append([]memory.Record{}, a.mem.FIFO()...), pending...)
		tokens, err := a.mem.CountTokensForFIFO(ctx, a.instructions, candidateFIFO)
		if err != nil {
			return StepResult{}, fmt.Errorf("agentloop: count tokens: %w", err)
		}

		misc = a.misc.snapshot()
		switch {
		case !misc.MemoryPressureWarningAlreadyGiven && tokens > a.warnBudget():
			appendPending(memory.Record{
				Kind: memory.KindSystem, UserID: userID, Role: "user",
				Content: "Warning: Memory pressure is high. Use a core_memory or archival_memory function to consolidate what you need to remember before it is lost.",
			})
			if err := a.misc.setWarningGiven(true); err != nil {
				return StepResult{}, fmt.Errorf("agentloop: %w", err)
			}
			if err := a.misc.setWriteForced(true); err != nil {
				return StepResult{}, fmt.Errorf("agentloop: %w", err)
			}
			if err := a.misc.setWriteForcedReason("a memory pressure warning"); err != nil {
				return StepResult{}, fmt.Errorf("agentloop: %w", err)
			}
			heartbeat = true
		case tokens > a.flushBudget():
			if _, err := summarizer.Run(ctx, a.mem, a.host, a.model, a.contextWindow, a.instructions, a.summarizerBudget()); err != nil {
				return StepResult{}, fmt.Errorf("agentloop: post-call summarize: %w", err)
			}
			if err := a.misc.setWarningGiven(false); err != nil {
				return StepResult{}, fmt.Errorf("agentloop: %w", err)
			}
			result.SummarizedAgain = true
		}

		misc = a.misc.snapshot()
		if !misc.ConsciousMemoryWriteAlreadyForced && misc.MessagesSinceLastConsciousMemoryWrite >= a.budget.ForceWriteEvery {
			appendPending(memory.Record{
				Kind: memory.KindSystem, UserID: userID, Role: "user",
				Content: fmt.Sprintf("Warning: It has been %d messages since you last wrote to your memory. Use a core_memory or archival_memory function to record anything important before it is lost.", a.budget.ForceWriteEvery),
			})
			if err := a.misc.setConsciousWriteAlreadyForced(true); err != nil {
				return StepResult{}, fmt.Errorf("agentloop: %w", err)
			}
			if err := a.misc.setWriteForced(true); err != nil {
				return StepResult{}, fmt.Errorf("agentloop: %w", err)
			}
			if err := a.misc.setWriteForcedReason("too many agent steps without memory editing"); err != nil {
				return StepResult{}, fmt.Errorf("agentloop: %w", err)
			}
			heartbeat = true
		}
	}

	// First-message turns force heartbeat unless the model successfully
	// used send_message (spec.md §4.7's closing heartbeat-semantics
	// paragraph). toolcall.Dispatch only rejects a first-message call that
	// sets request_heartbeat to false explicitly; this backstop forces the
	// heartbeat for every successful first-message call other than
	// send_message, including calls that omit request_heartbeat.
	if isFirstMessage && !dispatchResult.Failed {
		if call, ok := parsed["function_call"].(map[string]any); ok {
			if name, _ := call["name"].(string); name != "send_message" {
				heartbeat = true
			}
		}
	}

	return finalize(heartbeat, dispatchResult.Failed)
}

// toHostMessages adapts the rendered prompt (system message + collapsed
// FIFO turns) to llmhost's wire shape.
func toHostMessages(seq []tokenregistry.ChatMessage) []llmhost.Message {
	out := make([]llmhost.Message, len(seq))
	for i, m := range seq {
		out[i] = llmhost.Message{Role: llmhost.Role(m.Role), Content: m.Content}
	}
	return out
}

// structuredOutputSchema is the fixed schema spec.md §4.7 step 3(c)
// names for ModeStructured: {emotions: [[string, number 1..10]…],
// thoughts: [string…], function_call: {name: string, arguments: {…}}}.
func structuredOutputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"emotions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "array",
					"items":    []any{map[string]any{"type": "string"}, map[string]any{"type": "number"}},
					"minItems": 2,
					"maxItems": 2,
				},
			},
			"thoughts": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"function_call": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":      map[string]any{"type": "string"},
					"arguments": map[string]any{"type": "object"},
				},
				"required": []string{"name", "arguments"},
			},
		},
		"required": []string{"emotions", "thoughts", "function_call"},
	}
}
