// Package llmhost is the pluggable LLM backend contract the Agent Step
// Loop calls through: one Host per conversation's configured model,
// chosen from Ollama (primary, local), Anthropic, OpenAI, or Gemini.
// Grounded on pkg/agent/llm/api.go's LLMClient shape, generalized with
// an explicit inference-strictness Mode (spec.md §4.7's three modes)
// since the teacher's contract never needed JSON-mode/structured
// output.
package llmhost

import "context"

// Role is the message author in a chat-style request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in the prompt sent to the host.
type Message struct {
	Role    Role
	Content string
}

// Mode selects one of spec.md §4.7's three inference-strictness levels.
type Mode int

const (
	ModeFree Mode = iota
	ModeJSON
	ModeStructured
)

// Request is one chat completion call.
type Request struct {
	Model         string
	Messages      []Message
	Mode          Mode
	Schema        map[string]any // used only when Mode == ModeStructured
	ContextWindow int
	Temperature   float32
	MaxTokens     int
}

// Response is the host's reply; only raw textual content is captured
// per spec.md §4.7 — the Agent Step Loop itself parses/validates it,
// the host never interprets tool calls.
type Response struct {
	Content string
}

// Host is the contract every backend implements.
type Host interface {
	Chat(ctx context.Context, req Request) (Response, error)
}

// Embedder is implemented by hosts that can also serve embeddings; the
// Archival Store always routes embedding through the Ollama-backed host
// regardless of which backend serves chat (spec.md §4.4 Open Question).
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
