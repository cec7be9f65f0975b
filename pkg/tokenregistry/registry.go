// Package tokenregistry implements the Tokenizer/Context-Window registry:
// given a model identifier, it supplies token-counting functions for a
// string and for a message sequence, plus the model's context-window
// size. Grounded on the teacher's pkg/utils/tiktoken.go, generalized
// from a single hardcoded GPT-4 codec to a per-model-family registry so
// the "mistral folds a leading system message into the next user
// message before counting" rule (spec.md §4.1) has somewhere to live.
package tokenregistry

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// ChatMessage is the minimal shape this package needs to count a
// message sequence; it intentionally does not import pkg/memory.Record
// to avoid a cycle (pkg/memory depends on pkg/tokenregistry, not the
// other way around).
type ChatMessage struct {
	Role    string
	Content string
}

// Family groups models that share tokenization/chat-template behavior.
type Family string

const (
	FamilyOpenAI  Family = "openai"
	FamilyClaude  Family = "claude"
	FamilyMistral Family = "mistral"
	FamilyGeneric Family = "generic"
)

// ModelInfo is what's registered per model identifier.
type ModelInfo struct {
	Family       Family
	ContextWindow int
}

// ErrUnsupportedModel is returned for unregistered model identifiers,
// which must fail immediately per spec.md §4.1 ("unsupported
// identifiers fail immediately").
var ErrUnsupportedModel = fmt.Errorf("unsupported model identifier")

// Registry maps model identifiers to their ModelInfo and a cached
// tiktoken codec.
type Registry struct {
	mu     sync.Mutex
	models map[string]ModelInfo
	codecs map[Family]tokenizer.Codec
}

// New returns a Registry pre-populated with this package's built-in
// model table (defaultModels). Callers needing a different
// table (tests) can use NewWithModels.
func New() *Registry {
	return NewWithModels(defaultModels())
}

// NewWithModels builds a registry from an explicit model table.
func NewWithModels(models map[string]ModelInfo) *Registry {
	return &Registry{models: models, codecs: make(map[Family]tokenizer.Codec)}
}

func defaultModels() map[string]ModelInfo {
	return map[string]ModelInfo{
		"llama3.1":       {Family: FamilyGeneric, ContextWindow: 128000},
		"llama3.1:70b":   {Family: FamilyGeneric, ContextWindow: 128000},
		"mistral":        {Family: FamilyMistral, ContextWindow: 32000},
		"mistral-nemo":   {Family: FamilyMistral, ContextWindow: 128000},
		"gpt-4o":         {Family: FamilyOpenAI, ContextWindow: 128000},
		"gpt-4":          {Family: FamilyOpenAI, ContextWindow: 8192},
		"claude-sonnet":  {Family: FamilyClaude, ContextWindow: 200000},
		"nomic-embed-text": {Family: FamilyGeneric, ContextWindow: 8192},
	}
}

// Register adds or overrides a model's info.
func (r *Registry) Register(model string, info ModelInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model] = info
}

// ContextWindow returns the model's context-window size in tokens.
func (r *Registry) ContextWindow(model string) (int, error) {
	info, ok := r.lookup(model)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedModel, model)
	}
	return info.ContextWindow, nil
}

func (r *Registry) lookup(model string) (ModelInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.models[model]
	return info, ok
}

func (r *Registry) codecFor(family Family) (tokenizer.Codec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.codecs[family]; ok {
		return c, nil
	}
	c, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("build tokenizer codec: %w", err)
	}
	r.codecs[family] = c
	return c, nil
}

// CountString returns the token count of s under model's chat template.
func (r *Registry) CountString(model, s string) (int, error) {
	info, ok := r.lookup(model)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedModel, model)
	}
	codec, err := r.codecFor(info.Family)
	if err != nil {
		return 0, err
	}
	n, err := codec.Count(s)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return n, nil
}

// CountMessageSeq returns the token count of a message sequence as the
// model's chat template would render it. Mistral-family models fold a
// leading system message into the message that follows before
// counting, matching how the host itself folds it at inference time —
// callers never special-case this; it happens once, here.
func (r *Registry) CountMessageSeq(model string, msgs []ChatMessage) (int, error) {
	info, ok := r.lookup(model)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedModel, model)
	}
	if info.Family == FamilyMistral {
		msgs = foldLeadingSystemMessage(msgs)
	}
	total := 0
	for _, m := range msgs {
		n, err := r.CountString(model, m.Role+": "+m.Content)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func foldLeadingSystemMessage(msgs []ChatMessage) []ChatMessage {
	if len(msgs) < 2 || msgs[0].Role != "system" {
		return msgs
	}
	folded := make([]ChatMessage, 0, len(msgs)-1)
	folded = append(folded, ChatMessage{Role: msgs[1].Role, Content: msgs[0].Content + "\n" + msgs[1].Content})
	folded = append(folded, msgs[2:]...)
	return folded
}
