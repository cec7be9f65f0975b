package archival

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCounter struct{}

func (fakeCounter) CountString(model, s string) (int, error) { return len(s), nil }

func TestChunkBelowLimitReturnsWholeText(t *testing.T) {
	s := &Store{model: "test", counter: fakeCounter{}}
	chunks, err := s.chunk("short text")
	require.NoError(t, err)
	require.Equal(t, []string{"short text"}, chunks)
}

func TestChunkAboveLimitSplits(t *testing.T) {
	s := &Store{model: "test", counter: fakeCounter{}}
	long := ""
	for i := 0; i < MaxChunkTokens+100; i++ {
		long += "a"
	}
	chunks, err := s.chunk(long)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	joined := ""
	for _, c := range chunks {
		joined += c
	}
	require.Equal(t, long, joined)
}

func TestChunkIDDeterministic(t *testing.T) {
	require.Equal(t, chunkID("same content"), chunkID("same content"))
	require.NotEqual(t, chunkID("a"), chunkID("b"))
}

func TestChunkEmptyReturnsNil(t *testing.T) {
	s := &Store{model: "test", counter: fakeCounter{}}
	chunks, err := s.chunk("")
	require.NoError(t, err)
	require.Nil(t, chunks)
}
