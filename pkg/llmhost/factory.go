package llmhost

import "fmt"

// Provider names a supported backend. Grounded on pkg/agent/factory.go's
// provider switch, narrowed to the four backends this runtime wires.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
)

// Credentials carries whatever a backend constructor needs. Ollama uses
// HostURL only; the rest use APIKey and ignore HostURL.
type Credentials struct {
	APIKey  string
	HostURL string
}

// NewHost builds the Host for one conversation's configured provider and
// model, mirroring pkg/agent/factory.go's createClientWithMiddleware
// provider switch.
func NewHost(provider Provider, model string, creds Credentials) (Host, error) {
	switch provider {
	case ProviderOllama:
		hostURL := creds.HostURL
		if hostURL == "" {
			hostURL = "http://localhost:11434"
		}
		return NewOllamaHost(hostURL)
	case ProviderAnthropic:
		return NewAnthropicHost(creds.APIKey), nil
	case ProviderOpenAI:
		return NewOpenAIHost(creds.APIKey), nil
	case ProviderGoogle:
		return NewGoogleHost(creds.APIKey, model), nil
	default:
		return nil, fmt.Errorf("llmhost: unsupported provider %q", provider)
	}
}
