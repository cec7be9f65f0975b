package personas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "agents"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "humans"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents", "sam.txt"), []byte("I am Sam, an assistant."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents", "ava.txt"), []byte("I am Ava."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "humans", "alex.txt"), []byte("Alex likes hiking."), 0o644))
	return New(dir)
}

func TestListAgentsSorted(t *testing.T) {
	s := newTestStore(t)
	names, err := s.ListAgents()
	require.NoError(t, err)
	assert.Equal(t, []string{"ava.txt", "sam.txt"}, names)
}

func TestListHumans(t *testing.T) {
	s := newTestStore(t)
	names, err := s.ListHumans()
	require.NoError(t, err)
	assert.Equal(t, []string{"alex.txt"}, names)
}

func TestReadAgent(t *testing.T) {
	s := newTestStore(t)
	text, err := s.ReadAgent("sam.txt")
	require.NoError(t, err)
	assert.Equal(t, "I am Sam, an assistant.", text)
}

func TestReadHuman(t *testing.T) {
	s := newTestStore(t)
	text, err := s.ReadHuman("alex.txt")
	require.NoError(t, err)
	assert.Equal(t, "Alex likes hiking.", text)
}

func TestReadAgent_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ReadAgent("nope.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadAgent_RejectsPathTraversal(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ReadAgent("../humans/alex.txt")
	require.Error(t, err)
}

func TestLoadInstructions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instructions.txt")
	require.NoError(t, os.WriteFile(path, []byte("Be a helpful assistant."), 0o644))

	text, err := LoadInstructions(path)
	require.NoError(t, err)
	assert.Equal(t, "Be a helpful assistant.", text)
}

func TestLoadInstructions_MissingFile(t *testing.T) {
	_, err := LoadInstructions(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
