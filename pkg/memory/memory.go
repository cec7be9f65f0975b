// Package memory composes the Working Context, Recall Log, Archival
// Store, and Function Registry; owns the FIFO message queue; and
// renders the model prompt. Grounded on llm_os/memory/memory.py for the
// prompt-assembly algorithm and on the teacher's pkg/contextmgr.go for
// the Go idiom of an owning struct that persists on every mutation.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"llmos/pkg/archival"
	"llmos/pkg/functions"
	"llmos/pkg/recall"
	"llmos/pkg/tokenregistry"
)

// Kind is the record's place in the system: who/what produced it.
type Kind string

const (
	KindUser      Kind = "user"
	KindSystem    Kind = "system"
	KindTool      Kind = "tool"
	KindAssistant Kind = "assistant"
)

// Record is one FIFO entry (spec.md §3).
type Record struct {
	Kind      Kind   `json:"kind"`
	UserID    int    `json:"user_id"`
	Role      string `json:"role"` // "user" | "assistant" as presented to the model
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func (r Record) recallKind() recall.Kind {
	switch r.Kind {
	case KindSystem:
		return recall.KindSystem
	case KindTool:
		return recall.KindTool
	case KindAssistant:
		return recall.KindAssistant
	default:
		return recall.KindUser
	}
}

// sentinel prefixes used when collapsing non-assistant records into a
// user-role turn, verbatim from llm_os/memory/memory.py.
func sentinel(k Kind, userID int) string {
	switch k {
	case KindSystem:
		return "❮SYSTEM MESSAGE❯"
	case KindTool:
		return fmt.Sprintf("❮TOOL MESSAGE for conversation with user with id '%d'❯", userID)
	default:
		return fmt.Sprintf("❮USER MESSAGE for conversation with user with id '%d'❯", userID)
	}
}

// recallAdapter lets *recall.Log satisfy functions.RecallSearcher, whose
// result type (functions.SearchRecord) is declared independently to keep
// pkg/functions free of a pkg/recall import.
type recallAdapter struct{ log *recall.Log }

func (a recallAdapter) TextSearch(query string, forUserID, count, offset int) ([]functions.SearchRecord, int) {
	recs, total := a.log.TextSearch(query, forUserID, count, offset)
	return convertRecallRecords(recs), total
}

func (a recallAdapter) DateSearch(start, end string, forUserID, count, offset int) ([]functions.SearchRecord, int) {
	recs, total := a.log.DateSearch(start, end, forUserID, count, offset)
	return convertRecallRecords(recs), total
}

func convertRecallRecords(recs []recall.Record) []functions.SearchRecord {
	out := make([]functions.SearchRecord, len(recs))
	for i, r := range recs {
		out[i] = functions.SearchRecord{Timestamp: r.Timestamp, Role: r.Role, Content: r.Content}
	}
	return out
}

// archivalAdapter lets *archival.Store satisfy functions.ArchivalSearcher.
type archivalAdapter struct{ store *archival.Store }

func (a archivalAdapter) Insert(ctx context.Context, userID int, content string) error {
	return a.store.Insert(ctx, userID, content)
}

func (a archivalAdapter) Search(ctx context.Context, query string, userID, count, offset int) ([]functions.ArchivalRecord, int) {
	recs, total := a.store.Search(ctx, query, userID, count, offset)
	out := make([]functions.ArchivalRecord, len(recs))
	for i, r := range recs {
		out[i] = functions.ArchivalRecord{Timestamp: r.Timestamp, Content: r.Content}
	}
	return out, total
}

// WorkingContext is the subset of *workingcontext.WorkingContext's API
// Memory needs for rendering.
type WorkingContext interface {
	Render() string
}

// fifoState is the on-disk shape (fifo_queue.json).
type fifoState struct {
	FIFOQueue         []Record `json:"fifo_queue"`
	TotalNoMessages   int      `json:"total_no_messages"`
	NoMessagesInQueue int      `json:"no_messages_in_queue"`
}

// Memory owns the FIFO queue for one conversation and wires the
// Function Registry's Deps to this conversation's Recall/Archival.
type Memory struct {
	mu        sync.Mutex
	path      string
	model     string
	tokens    *tokenregistry.Registry
	recall    *recall.Log
	archival  *archival.Store
	wc        WorkingContext
	inCtxDefs func() string // renders in-context function schemas as text
	st        fifoState
}

// Config bundles construction parameters.
type Config struct {
	Dir              string
	Model            string
	Tokens           *tokenregistry.Registry
	Recall           *recall.Log
	Archival         *archival.Store
	WorkingContext   WorkingContext
	InContextSchemas func() string
}

// New loads fifo_queue.json from cfg.Dir if present, else starts empty.
func New(cfg Config) (*Memory, error) {
	m := &Memory{
		path:      filepath.Join(cfg.Dir, "fifo_queue.json"),
		model:     cfg.Model,
		tokens:    cfg.Tokens,
		recall:    cfg.Recall,
		archival:  cfg.Archival,
		wc:        cfg.WorkingContext,
		inCtxDefs: cfg.InContextSchemas,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// FunctionDeps returns the functions.Deps wiring this conversation's
// Recall/Archival into the Function Registry's tool implementations.
// WorkingContext and Outbound are filled in by the caller (pkg/runtime),
// which owns those collaborators; it leaves WebSearch and CodeExecutor
// unset.
func (m *Memory) FunctionDeps() (recallSearcher functions.RecallSearcher, archivalSearcher functions.ArchivalSearcher) {
	return recallAdapter{m.recall}, archivalAdapter{m.archival}
}

func (m *Memory) load() error {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read fifo queue: %w", err)
	}
	return json.Unmarshal(data, &m.st)
}

func (m *Memory) persist() error {
	data, err := json.MarshalIndent(m.st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fifo queue: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create conversation dir: %w", err)
	}
	return os.WriteFile(m.path, data, 0o644)
}

// Append pushes r to the FIFO, appends it to Recall, bumps the
// counters, and persists the FIFO (spec.md §4.6).
func (m *Memory) Append(r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.Timestamp == "" {
		r.Timestamp = time.Now().UTC().Format("2006-01-02")
	}
	if err := m.recall.Insert(recall.Record{
		Kind: r.recallKind(), UserID: r.UserID, Role: r.Role, Content: r.Content, Timestamp: r.Timestamp,
	}); err != nil {
		return fmt.Errorf("append to recall: %w", err)
	}
	m.st.FIFOQueue = append(m.st.FIFOQueue, r)
	m.st.TotalNoMessages++
	m.st.NoMessagesInQueue++
	return m.persist()
}

// FIFO returns a copy of the current FIFO queue.
func (m *Memory) FIFO() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.st.FIFOQueue))
	copy(out, m.st.FIFOQueue)
	return out
}

// Counters returns (total_no_messages, no_messages_in_queue).
func (m *Memory) Counters() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.TotalNoMessages, m.st.NoMessagesInQueue
}

// ReplaceFIFO swaps the FIFO contents wholesale (used by the
// Summarizer after it pops/pushes-back/prepends) and sets
// no_messages_in_queue to len(newQueue). total_no_messages is never
// altered by summarization — it only ever counts appends.
func (m *Memory) ReplaceFIFO(newQueue []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.FIFOQueue = newQueue
	m.st.NoMessagesInQueue = len(newQueue)
	return m.persist()
}

// SystemMessage renders the leading system message: instructions +
// in-context function schemas + recall/archival counts + Working
// Context render. It is NEVER itself pushed into the FIFO and is never
// popped by the Summarizer (spec.md §4.9 invariant).
func (m *Memory) SystemMessage(ctx context.Context, instructions string) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n")
	if m.inCtxDefs != nil {
		b.WriteString(m.inCtxDefs())
		b.WriteString("\n\n")
	}
	recallCount := m.recall.Count()
	archivalCount := 0
	if m.archival != nil {
		if n, err := m.archival.Count(ctx); err == nil {
			archivalCount = n
		}
	}
	fmt.Fprintf(&b, "You have %d prior messages and %d stored memories; use functions to access them.\n\n",
		recallCount, archivalCount)
	b.WriteString(m.wc.Render())
	return b.String()
}

// CurrentTokenCount returns the token count of the full prompt
// MainCtxMessageSeq would send right now, for the HTTP layer's
// ctx_info.current_ctx_token_count (spec.md §6).
func (m *Memory) CurrentTokenCount(ctx context.Context, instructions string) (int, error) {
	seq := m.MainCtxMessageSeq(ctx, instructions)
	n, err := m.tokens.CountMessageSeq(m.model, seq)
	if err != nil {
		return 0, fmt.Errorf("memory: count tokens: %w", err)
	}
	return n, nil
}

// MainCtxMessageSeq assembles the full prompt: the leading system
// message followed by the FIFO rewritten so consecutive non-assistant
// records collapse into a single sentinel-prefixed user turn, and
// assistant records pass through unchanged (spec.md §4.6).
func (m *Memory) MainCtxMessageSeq(ctx context.Context, instructions string) []tokenregistry.ChatMessage {
	m.mu.Lock()
	fifo := make([]Record, len(m.st.FIFOQueue))
	copy(fifo, m.st.FIFOQueue)
	m.mu.Unlock()

	seq := []tokenregistry.ChatMessage{{Role: "system", Content: m.SystemMessage(ctx, instructions)}}
	seq = append(seq, collapseFIFO(fifo)...)
	return seq
}

// collapseFIFO implements the buffer-then-flush rewrite described in
// spec.md §4.6 / llm_os/memory/memory.py's main_ctx_message_seq.
func collapseFIFO(fifo []Record) []tokenregistry.ChatMessage {
	var out []tokenregistry.ChatMessage
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, tokenregistry.ChatMessage{Role: "user", Content: buf.String()})
			buf.Reset()
		}
	}
	for _, r := range fifo {
		if r.Kind == KindAssistant {
			flush()
			out = append(out, tokenregistry.ChatMessage{Role: "assistant", Content: r.Content})
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(sentinel(r.Kind, r.UserID))
		buf.WriteString(" ")
		buf.WriteString(r.Content)
	}
	flush()
	return out
}

// MainCtxMessageSeqNoTokens returns the token count of the assembled
// prompt under the model's chat-template counter (spec.md §4.6).
func (m *Memory) MainCtxMessageSeqNoTokens(ctx context.Context, instructions string) (int, error) {
	seq := m.MainCtxMessageSeq(ctx, instructions)
	return m.tokens.CountMessageSeq(m.model, seq)
}

// CountTokensForFIFO counts tokens for a candidate FIFO slice that may
// not yet (or may never) be the persisted queue, used by pkg/summarizer
// to evaluate its pop/push-back boundary loop without mutating state.
func (m *Memory) CountTokensForFIFO(ctx context.Context, instructions string, fifo []Record) (int, error) {
	seq := []tokenregistry.ChatMessage{{Role: "system", Content: m.SystemMessage(ctx, instructions)}}
	seq = append(seq, collapseFIFO(fifo)...)
	return m.tokens.CountMessageSeq(m.model, seq)
}
