package functions

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the process-wide catalogue of function definitions. It is
// built up by explicit RegisterBase/RegisterWeb/RegisterInterpreter
// calls (through RegisterAll, mirroring the teacher's pkg/tools global
// registry), then Sealed once by NewProvider, after which
// registration panics — this matches the spec's "duplicate function
// names at load time is a fatal configuration error" invariant by
// making duplicates and post-seal drift both immediate panics rather
// than silent overwrites.
type Registry struct {
	mu      sync.RWMutex
	sealed  bool
	entries map[string]Entry
}

var global = &Registry{entries: make(map[string]Entry)} //nolint:gochecknoglobals // load-time catalogue, mirrors teacher's tools registry

// Register adds a function definition to the global registry.
// expectedArgs is the full set of argument names the tool's Exec
// actually reads; Register checks it against the declared schema so a
// drifted InputSchema is caught at startup rather than at dispatch time.
func Register(set SetName, inContext bool, meta Definition, expectedArgs []string, factory Factory) {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.sealed {
		panic(fmt.Sprintf("function registry sealed: cannot register %q", meta.Name))
	}
	if _, exists := global.entries[meta.Name]; exists {
		panic(fmt.Sprintf("duplicate function name %q", meta.Name))
	}
	if err := validateSchema(meta, expectedArgs); err != nil {
		panic(fmt.Sprintf("function %q schema/implementation mismatch: %v", meta.Name, err))
	}

	global.entries[meta.Name] = Entry{Meta: meta, Factory: factory, Set: set, InContext: inContext}
}

// validateSchema checks that the declared schema's property names are
// exactly the tool's expected argument names (request_heartbeat is
// implicit in every schema and is added to the rendered schema by
// RenderInContextSchemas, not declared).
func validateSchema(meta Definition, expectedArgs []string) error {
	declared := make(map[string]struct{}, len(meta.InputSchema.Properties))
	for name := range meta.InputSchema.Properties {
		declared[name] = struct{}{}
	}
	expected := make(map[string]struct{}, len(expectedArgs))
	for _, name := range expectedArgs {
		expected[name] = struct{}{}
	}
	for name := range declared {
		if _, ok := expected[name]; !ok {
			return fmt.Errorf("schema declares %q which Exec does not read", name)
		}
	}
	for name := range expected {
		if _, ok := declared[name]; !ok {
			return fmt.Errorf("Exec reads %q which the schema does not declare", name)
		}
	}
	for _, req := range meta.InputSchema.Required {
		if _, ok := declared[req]; !ok {
			return fmt.Errorf("required argument %q is not a declared property", req)
		}
	}
	return nil
}

// Seal prevents further registration. Idempotent.
func Seal() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.sealed = true
}

// Reset clears the registry, including every function set's
// once-guard, so RegisterBase/RegisterWeb/RegisterInterpreter register
// fresh afterward. Test-only: production code never calls it.
func Reset() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.sealed = false
	global.entries = make(map[string]Entry)
	initBaseOnce = false
	initWebOnce = false
	initInterpreterOnce = false
}

// InContextDefinitions returns the definitions of every in-context
// function, sorted by name for deterministic prompt rendering.
func InContextDefinitions() []Definition {
	global.mu.RLock()
	defer global.mu.RUnlock()
	out := make([]Definition, 0, len(global.entries))
	for _, e := range global.entries {
		if e.InContext {
			out = append(out, e.Meta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// OutOfContextDefinitions returns every out-of-context function's
// definition, sorted by name.
func OutOfContextDefinitions() []Definition {
	global.mu.RLock()
	defer global.mu.RUnlock()
	out := make([]Definition, 0, len(global.entries))
	for _, e := range global.entries {
		if !e.InContext {
			out = append(out, e.Meta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the entry for name, if any exists in in-context ∪
// out-of-context (the union dispatch validates against).
func Lookup(name string) (Entry, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	e, ok := global.entries[name]
	return e, ok
}

// Provider builds and caches live Tool instances scoped to one agent's
// Deps. One Provider exists per conversation's Agent.
type Provider struct {
	deps  *Deps
	mu    sync.Mutex
	cache map[string]Tool
}

// NewProvider seals the global registry (if not already sealed) and
// returns a Provider bound to deps.
func NewProvider(deps *Deps) *Provider {
	Seal()
	return &Provider{deps: deps, cache: make(map[string]Tool)}
}

// Get returns a cached or newly-constructed Tool instance for name.
func (p *Provider) Get(name string) (Tool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.cache[name]; ok {
		return t, nil
	}
	entry, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("function %q not registered", name)
	}
	t, err := entry.Factory(p.deps)
	if err != nil {
		return nil, fmt.Errorf("construct function %q: %w", name, err)
	}
	p.cache[name] = t
	return t, nil
}
