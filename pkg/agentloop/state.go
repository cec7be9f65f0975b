package agentloop

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// miscInfo is the persisted agent-level state the step loop reads and
// mutates on (almost) every step. Field names are kept verbatim from
// llm_os/agent.py's Agent properties, which persist to misc_info.json
// on every setter call — replicated here as a small owning struct that
// writes itself to disk on every mutating method, the same
// persist-on-every-setter idiom pkg/memory and pkg/workingcontext use.
type miscInfo struct {
	MemoryPressureWarningAlreadyGiven     bool `json:"memory_pressure_warning_alr_given"`
	ConsciousMemoryWriteAlreadyForced     bool `json:"conscious_memory_write_alr_forced"`
	MessagesSinceLastConsciousMemoryWrite int  `json:"messages_since_last_conscious_memory_write"`
	MemoryWriteFunctionForced             bool   `json:"memory_write_function_forced"`
	MemoryWriteForcedReason               string `json:"memory_write_forced_reason"`
}

type miscInfoStore struct {
	mu   sync.Mutex
	path string
	st   miscInfo
}

func newMiscInfoStore(dir string) (*miscInfoStore, error) {
	s := &miscInfoStore{path: filepath.Join(dir, "misc_info.json")}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *miscInfoStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read misc info: %w", err)
	}
	return json.Unmarshal(data, &s.st)
}

func (s *miscInfoStore) persist() error {
	data, err := json.MarshalIndent(s.st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal misc info: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create conversation dir: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

func (s *miscInfoStore) snapshot() miscInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *miscInfoStore) setWarningGiven(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.MemoryPressureWarningAlreadyGiven = v
	return s.persist()
}

func (s *miscInfoStore) setWriteForced(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.MemoryWriteFunctionForced = v
	return s.persist()
}

// setWriteForcedReason records why the memory-write gate was forced, for
// the human-readable reason toolcall.Dispatch surfaces in its rejection
// message (spec.md §7's "conscious-memory-write reason surfacing").
func (s *miscInfoStore) setWriteForcedReason(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.MemoryWriteForcedReason = reason
	return s.persist()
}

func (s *miscInfoStore) setConsciousWriteAlreadyForced(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.ConsciousMemoryWriteAlreadyForced = v
	return s.persist()
}

func (s *miscInfoStore) setMessagesSinceLastWrite(v int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.MessagesSinceLastConsciousMemoryWrite = v
	return s.persist()
}

func (s *miscInfoStore) incrementMessagesSinceLastWrite() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.MessagesSinceLastConsciousMemoryWrite++
	return s.persist()
}

// clearForcedFlags resets both forced-write flags after a successful
// memory-editing call, mirroring toolcall.State.ForcedFlagsClear's
// contract (spec.md §4.8's "on success, clear both forced flags").
func (s *miscInfoStore) clearForcedFlags() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.ConsciousMemoryWriteAlreadyForced = false
	s.st.MemoryWriteFunctionForced = false
	s.st.MemoryWriteForcedReason = ""
	_ = s.persist()
}
