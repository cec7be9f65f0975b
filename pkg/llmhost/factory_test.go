package llmhost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHost_Ollama(t *testing.T) {
	h, err := NewHost(ProviderOllama, "llama3", Credentials{})
	require.NoError(t, err)
	_, ok := h.(*OllamaHost)
	assert.True(t, ok)
}

func TestNewHost_Anthropic(t *testing.T) {
	h, err := NewHost(ProviderAnthropic, "claude-3", Credentials{APIKey: "key"})
	require.NoError(t, err)
	_, ok := h.(*AnthropicHost)
	assert.True(t, ok)
}

func TestNewHost_OpenAI(t *testing.T) {
	h, err := NewHost(ProviderOpenAI, "gpt-4o", Credentials{APIKey: "key"})
	require.NoError(t, err)
	_, ok := h.(*OpenAIHost)
	assert.True(t, ok)
}

func TestNewHost_Google(t *testing.T) {
	h, err := NewHost(ProviderGoogle, "gemini-2.0-flash", Credentials{APIKey: "key"})
	require.NoError(t, err)
	_, ok := h.(*GoogleHost)
	assert.True(t, ok)
}

func TestNewHost_UnknownProvider(t *testing.T) {
	_, err := NewHost(Provider("bogus"), "model", Credentials{})
	require.Error(t, err)
}
