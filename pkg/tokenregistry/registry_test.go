package tokenregistry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextWindowUnsupportedModel(t *testing.T) {
	r := New()
	_, err := r.ContextWindow("nonexistent-model")
	require.ErrorIs(t, err, ErrUnsupportedModel)
}

func TestCountStringNonZero(t *testing.T) {
	r := New()
	n, err := r.CountString("gpt-4o", "hello world")
	require.NoError(t, err)
	require.Greater(t, n, 0)
}

func TestFoldLeadingSystemMessageForMistral(t *testing.T) {
	msgs := []ChatMessage{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	folded := foldLeadingSystemMessage(msgs)
	require.Len(t, folded, 2)
	require.Equal(t, "user", folded[0].Role)
	require.Contains(t, folded[0].Content, "be helpful")
	require.Contains(t, folded[0].Content, "hi")
}

func TestCountMessageSeqFoldsForMistralFamily(t *testing.T) {
	r := New()
	msgs := []ChatMessage{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
	}
	n, err := r.CountMessageSeq("mistral", msgs)
	require.NoError(t, err)
	require.Greater(t, n, 0)
}
