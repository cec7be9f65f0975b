package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenRead(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Write("notes/todo.txt", []byte("buy milk")))

	data, err := s.Read("notes/todo.txt")
	require.NoError(t, err)
	assert.Equal(t, "buy milk", string(data))
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Read("missing.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Write("a.txt", []byte("a")))
	require.NoError(t, s.Write("sub/b.txt", []byte("b")))

	names, err := s.List(".")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "sub/b.txt"}, names)
}

func TestDelete(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Write("a.txt", []byte("a")))
	require.NoError(t, s.Delete("a.txt"))

	_, err := s.Read("a.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMissingIsNotAnError(t *testing.T) {
	s := New(t.TempDir())
	assert.NoError(t, s.Delete("missing.txt"))
}

func TestRejectsPathTraversal(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Read("../escape.txt")
	assert.Error(t, err)
}
