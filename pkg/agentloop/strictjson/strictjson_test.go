package strictjson

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeParsesWellFormedObject(t *testing.T) {
	v, err := Decode(`{"emotions": [["curious", 7]], "thoughts": ["hi"], "function_call": {"name": "send_message", "arguments": {"message": "hi"}}}`)
	require.NoError(t, err)
	require.Contains(t, v, "emotions")
	require.Contains(t, v, "function_call")
}

func TestDecodeRejectsTopLevelDuplicateKey(t *testing.T) {
	_, err := Decode(`{"a": 1, "a": 2}`)
	require.Error(t, err)
	var dup *ErrDuplicateKey
	require.True(t, errors.As(err, &dup))
	require.Equal(t, "a", dup.Key)
}

func TestDecodeRejectsNestedDuplicateKey(t *testing.T) {
	_, err := Decode(`{"function_call": {"name": "x", "name": "y"}}`)
	require.Error(t, err)
	var dup *ErrDuplicateKey
	require.True(t, errors.As(err, &dup))
	require.Equal(t, "name", dup.Key)
}

func TestDecodeRejectsNonObjectTopLevel(t *testing.T) {
	_, err := Decode(`"sure thing!"`)
	require.ErrorIs(t, err, ErrNotObject)
}

func TestDecodeRejectsArrayTopLevel(t *testing.T) {
	_, err := Decode(`[1, 2, 3]`)
	require.ErrorIs(t, err, ErrNotObject)
}

func TestDecodePreservesArraysOfTuples(t *testing.T) {
	v, err := Decode(`{"emotions": [["curious", 7.5], ["calm", 3]]}`)
	require.NoError(t, err)
	emotions, ok := v["emotions"].([]any)
	require.True(t, ok)
	require.Len(t, emotions, 2)
	first, ok := emotions[0].([]any)
	require.True(t, ok)
	require.Equal(t, "curious", first[0])
	require.Equal(t, 7.5, first[1])
}
