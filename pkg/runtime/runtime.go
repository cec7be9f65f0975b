// Package runtime implements the Conversation Runtime (spec.md §4.10):
// a process-local conv_id → Agent cache behind a single global
// semaphore, lazily building an Agent from disk state on first access
// and tearing down its directory on delete. Grounded on the teacher's
// pkg/dispatch.Dispatcher for the registry+lifecycle shape and
// internal/factory for lazy construction; server.py's init_agent
// supplies the conv_id naming scheme and persona-seeding order this
// port's CreateConversation follows.
package runtime

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"llmos/pkg/agentloop"
	"llmos/pkg/archival"
	"llmos/pkg/config"
	"llmos/pkg/functions"
	"llmos/pkg/llmhost"
	"llmos/pkg/memory"
	"llmos/pkg/persistence"
	"llmos/pkg/personas"
	"llmos/pkg/recall"
	"llmos/pkg/tokenregistry"
	"llmos/pkg/workingcontext"
)

// DefaultArchivalDimension is the embedding vector size used when no
// Qdrant collection yet exists, matching the dimension of this
// project's default Ollama embedding model (nomic-embed-text).
const DefaultArchivalDimension = 768

// outboundSink captures send_message calls made during a Step so the
// caller (pkg/httpapi) can relay them as assistant_message
// server_message_stack entries, per spec.md §6.
type outboundSink struct {
	mu       sync.Mutex
	messages []string
}

func (s *outboundSink) AssistantMessage(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, text)
}

// Drain returns and clears every message accumulated so far.
func (s *outboundSink) Drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.messages
	s.messages = nil
	return out
}

// conversation bundles one conv_id's live collaborators.
type conversation struct {
	agent    *agentloop.Agent
	wc       *workingcontext.WorkingContext
	mem      *memory.Memory
	outbound *outboundSink
}

// Config bundles the Runtime's process-wide collaborators.
type Config struct {
	DataDir      string // root of persistent_storage/<conv>/
	Personas     *personas.Store
	Instructions string
	Tokens       *tokenregistry.Registry
	Budget       config.Budget
	Model        config.Model
	Host         llmhost.Host // shared across conversations; pkg/llmhost backends are safe for concurrent Chat calls
	SkipArchival bool         // true when no Qdrant endpoint is configured (tests, minimal deployments)
	QdrantAddr   string
	Embedder     archival.Embedder
	Registry     *persistence.Registry // optional SQLite metadata mirror; nil disables the fast path and falls back to disk scans
}

// Runtime caches conv_id → Agent in a process-local map and serializes
// step execution with a single global semaphore (spec.md §5: "a single
// semaphore suffices because the LLM host is the bottleneck and
// per-conversation mutations would otherwise race on disk").
type Runtime struct {
	cfg Config
	sem chan struct{}

	mu            sync.Mutex
	conversations map[string]*conversation
}

// New constructs a Runtime. cfg.Host must already be wired (pkg/llmhost
// Provider-switch factory); Runtime never constructs its own Host.
// Ensures the Function Registry carries every function set this
// runtime ships, regardless of whether the caller already registered
// some of them (functions.RegisterAll is idempotent per set).
func New(cfg Config) *Runtime {
	functions.RegisterAll()
	return &Runtime{cfg: cfg, sem: make(chan struct{}, 1), conversations: make(map[string]*conversation)}
}

func (r *Runtime) convDir(convName string) string { return filepath.Join(r.cfg.DataDir, convName) }

// CreateConversation allocates a new conversation directory seeded from
// the named agent/human personas and returns its conv_id (spec.md §6
// "POST /agent").
func (r *Runtime) CreateConversation(agentPersonaName, humanPersonaName string) (string, error) {
	agentText, err := r.cfg.Personas.ReadAgent(agentPersonaName)
	if err != nil {
		return "", err
	}
	humanText, err := r.cfg.Personas.ReadHuman(humanPersonaName)
	if err != nil {
		return "", err
	}

	convName, err := r.allocateConvName(agentPersonaName, humanPersonaName)
	if err != nil {
		return "", err
	}
	dir := r.convDir(convName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("runtime: create conversation dir: %w", err)
	}

	wc, err := workingcontext.New(workingcontext.Config{
		Dir: dir, Model: r.cfg.Model.Name, Counter: r.cfg.Tokens,
		PersonaMaxTokens: r.cfg.Budget.PersonaMaxTokens, HumanMaxTokens: r.cfg.Budget.HumanMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("runtime: %w", err)
	}
	if err := wc.EditPersona(agentText); err != nil {
		return "", fmt.Errorf("runtime: seed persona: %w", err)
	}
	if err := wc.AddNewHumanPersona(1, humanText); err != nil {
		return "", fmt.Errorf("runtime: seed human: %w", err)
	}

	if _, err := recall.New(dir); err != nil {
		return "", fmt.Errorf("runtime: %w", err)
	}

	if r.cfg.Registry != nil {
		if err := r.cfg.Registry.CreateConversation(convName, agentPersonaName, humanPersonaName); err != nil {
			return "", fmt.Errorf("runtime: %w", err)
		}
	}

	return convName, nil
}

func (r *Runtime) allocateConvName(agentPersonaName, humanPersonaName string) (string, error) {
	base := fmt.Sprintf("%s--%s", trimExt(agentPersonaName), trimExt(humanPersonaName))
	for {
		suffix, err := randomHex(8)
		if err != nil {
			return "", err
		}
		name := fmt.Sprintf("%s@%s", base, suffix)
		if _, err := os.Stat(r.convDir(name)); os.IsNotExist(err) {
			return name, nil
		}
	}
}

func trimExt(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("runtime: generate random suffix: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ListConversations returns every conv_id, sorted (spec.md §6 "GET
// /conversation-ids"). When a Registry is configured this is answered
// from SQLite without opening every conversation directory; otherwise
// it falls back to scanning the data directory.
func (r *Runtime) ListConversations() ([]string, error) {
	if r.cfg.Registry != nil {
		names, err := r.cfg.Registry.ListConversations()
		if err != nil {
			return nil, fmt.Errorf("runtime: %w", err)
		}
		return names, nil
	}

	entries, err := os.ReadDir(r.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("runtime: list conversations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && e.Name()[0] != '.' {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// DeleteConversation removes a conversation's directory and evicts its
// cached Agent (spec.md §6 "DELETE /agent").
func (r *Runtime) DeleteConversation(convName string) error {
	r.mu.Lock()
	delete(r.conversations, convName)
	r.mu.Unlock()
	if err := os.RemoveAll(r.convDir(convName)); err != nil {
		return fmt.Errorf("runtime: delete conversation: %w", err)
	}
	if r.cfg.Registry != nil {
		if err := r.cfg.Registry.DeleteConversation(convName); err != nil {
			return fmt.Errorf("runtime: %w", err)
		}
	}
	return nil
}

// HumanIDs returns the registered human ids for convName (spec.md §6
// "GET /agent/humans"). When the conversation isn't already cached and
// a Registry is configured, this is answered from SQLite without
// opening the conversation's working_context.json.
func (r *Runtime) HumanIDs(ctx context.Context, convName string) ([]int, error) {
	r.mu.Lock()
	c, loaded := r.conversations[convName]
	r.mu.Unlock()
	if !loaded && r.cfg.Registry != nil {
		ids, err := r.cfg.Registry.HumanIDs(convName)
		if err == nil {
			return ids, nil
		}
	}

	c, err := r.getOrLoad(ctx, convName)
	if err != nil {
		return nil, err
	}
	return c.wc.HumanIDs(), nil
}

// AddHuman registers a new human persona under the next available id
// (max existing id + 1, matching server.py's create_human) and returns
// it (spec.md §6 "POST /agent/humans").
func (r *Runtime) AddHuman(ctx context.Context, convName, humanPersonaName string) (int, error) {
	c, err := r.getOrLoad(ctx, convName)
	if err != nil {
		return 0, err
	}
	humanText, err := r.cfg.Personas.ReadHuman(humanPersonaName)
	if err != nil {
		return 0, err
	}

	newID := 1
	for _, id := range c.wc.HumanIDs() {
		if id >= newID {
			newID = id + 1
		}
	}
	if err := c.wc.AddNewHumanPersona(newID, humanText); err != nil {
		return 0, fmt.Errorf("runtime: %w", err)
	}
	if r.cfg.Registry != nil {
		if err := r.cfg.Registry.AddHuman(convName, newID); err != nil {
			return 0, fmt.Errorf("runtime: %w", err)
		}
	}
	return newID, nil
}

// Step is the Conversation Runtime's serialized entry point: it
// appends message (when non-empty) to the conversation, then drives the
// Agent Step Loop, looping while heartbeat is set and
// runHeartbeatChain is true, returning every StepResult produced.
// spec.md §6's three /messages/send variants differ only in
// isFirstMessage and runHeartbeatChain.
func (r *Runtime) Step(ctx context.Context, convName string, userID int, message string, isFirstMessage, runHeartbeatChain bool) ([]agentloop.StepResult, error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-r.sem }()

	c, err := r.getOrLoad(ctx, convName)
	if err != nil {
		return nil, err
	}

	if message != "" {
		if err := c.mem.Append(memory.Record{Kind: memory.KindUser, UserID: userID, Role: "user", Content: message}); err != nil {
			return nil, fmt.Errorf("runtime: append user message: %w", err)
		}
	}

	var results []agentloop.StepResult
	first := isFirstMessage
	for {
		res, err := c.agent.Step(ctx, userID, first)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		first = false
		if !runHeartbeatChain || !res.Heartbeat {
			break
		}
	}
	return results, nil
}

// DrainOutbound returns and clears convName's pending assistant-message
// sink. Must be called after Step, while the conversation is still
// cached (which it always is once Step has run once).
func (r *Runtime) DrainOutbound(convName string) ([]string, error) {
	r.mu.Lock()
	c, ok := r.conversations[convName]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("runtime: conversation %q not loaded", convName)
	}
	return c.outbound.Drain(), nil
}

func (r *Runtime) getOrLoad(ctx context.Context, convName string) (*conversation, error) {
	r.mu.Lock()
	if c, ok := r.conversations[convName]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	dir := r.convDir(convName)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("runtime: conversation %q not found", convName)
	}

	wc, err := workingcontext.New(workingcontext.Config{
		Dir: dir, Model: r.cfg.Model.Name, Counter: r.cfg.Tokens,
		PersonaMaxTokens: r.cfg.Budget.PersonaMaxTokens, HumanMaxTokens: r.cfg.Budget.HumanMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: load working context: %w", err)
	}
	recallLog, err := recall.New(dir)
	if err != nil {
		return nil, fmt.Errorf("runtime: load recall log: %w", err)
	}

	var archivalStore *archival.Store
	if !r.cfg.SkipArchival {
		archivalStore, err = r.newArchivalStore(ctx, convName)
		if err != nil {
			return nil, fmt.Errorf("runtime: %w", err)
		}
	}

	mem, err := memory.New(memory.Config{
		Dir: dir, Model: r.cfg.Model.Name, Tokens: r.cfg.Tokens,
		Recall: recallLog, Archival: archivalStore, WorkingContext: wc,
		InContextSchemas: functions.RenderInContextSchemas,
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: load memory: %w", err)
	}

	outbound := &outboundSink{}
	recallSearcher, archivalSearcher := mem.FunctionDeps()
	provider := functions.NewProvider(&functions.Deps{
		WorkingContext: wc, Recall: recallSearcher, Archival: archivalSearcher, Outbound: outbound,
	})

	agent, err := agentloop.New(agentloop.Config{
		Dir: dir, Memory: mem, WorkingCtx: wc, Host: r.cfg.Host, Provider: provider,
		Model: r.cfg.Model.Name, ContextWindow: r.cfg.Model.ContextWindow,
		Instructions: r.cfg.Instructions, Budget: r.cfg.Budget,
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: build agent: %w", err)
	}

	c := &conversation{agent: agent, wc: wc, mem: mem, outbound: outbound}

	r.mu.Lock()
	if existing, ok := r.conversations[convName]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.conversations[convName] = c
	r.mu.Unlock()
	return c, nil
}

// ContextUsage returns convName's current prompt token count and
// configured context window, for the HTTP layer's ctx_info (spec.md
// §6). Must be called after the conversation has been loaded at least
// once (e.g. following a Step call).
func (r *Runtime) ContextUsage(ctx context.Context, convName string) (current, window int, err error) {
	c, err := r.getOrLoad(ctx, convName)
	if err != nil {
		return 0, 0, err
	}
	current, err = c.mem.CurrentTokenCount(ctx, r.cfg.Instructions)
	if err != nil {
		return 0, 0, err
	}
	return current, r.cfg.Model.ContextWindow, nil
}

func (r *Runtime) newArchivalStore(ctx context.Context, convName string) (*archival.Store, error) {
	host, portStr, err := net.SplitHostPort(r.cfg.QdrantAddr)
	if err != nil {
		return nil, fmt.Errorf("archival: invalid qdrant address %q: %w", r.cfg.QdrantAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("archival: invalid qdrant port %q: %w", portStr, err)
	}
	return archival.New(ctx, archival.Config{
		Host: host, Port: port, Collection: convName, Dimension: DefaultArchivalDimension,
		Model: r.cfg.Model.Name, Counter: r.cfg.Tokens, Embedder: r.cfg.Embedder,
	})
}
