// Package personas lists and reads the plain-text agent/human persona
// files the Conversation Runtime seeds a new conversation's Working
// Context from. Grounded on server.py's init_agent/get_agent_personas/
// get_human_personas: personas are just UTF-8 text files under
// <dir>/agents/<name> and <dir>/humans/<name>, no frontmatter or
// metadata — unlike pkg/specs' YAML-frontmatter markdown specs, which
// is a different document shape the original persona files never use.
package personas

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store lists and reads persona text files rooted at Dir, which
// contains "agents/" and "humans/" subdirectories.
type Store struct {
	dir string
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// ListAgents returns the agent persona file names, sorted.
func (s *Store) ListAgents() ([]string, error) {
	return listNames(filepath.Join(s.dir, "agents"))
}

// ListHumans returns the human persona file names, sorted.
func (s *Store) ListHumans() ([]string, error) {
	return listNames(filepath.Join(s.dir, "humans"))
}

// ReadAgent returns the full text of the named agent persona file.
func (s *Store) ReadAgent(name string) (string, error) {
	return readNamed(filepath.Join(s.dir, "agents"), name)
}

// ReadHuman returns the full text of the named human persona file.
func (s *Store) ReadHuman(name string) (string, error) {
	return readNamed(filepath.Join(s.dir, "humans"), name)
}

// ErrNotFound is returned when a named persona file does not exist.
var ErrNotFound = fmt.Errorf("persona not found")

func listNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("personas: list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func readNamed(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("personas: invalid persona name %q", name)
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("personas: %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("personas: read %s: %w", path, err)
	}
	return string(data), nil
}

// LoadInstructions reads the fixed system-instructions text file used
// to seed every conversation's leading system message (spec.md §4.6 /
// §8's "system instructions" text memory.SystemMessage prepends),
// grounded on llm_os/prompts/gpt_system.py's get_system_text.
func LoadInstructions(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("personas: load instructions %s: %w", path, err)
	}
	return string(data), nil
}
