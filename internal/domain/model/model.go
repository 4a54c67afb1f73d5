// Package model holds provider and model configuration value objects.
package model

// DefaultScope is the reserved command scope applying to every command
// without a specific entry.
const DefaultScope = "default"

// ProviderConfig identifies one configured language-model provider.
// Immutable after load.
type ProviderConfig struct {
	Key     string // stable short tag, e.g. "openai"
	Label   string // human display name
	APIKey  string
	BaseURL string
}

// Params are the provider-call parameters of a model entry.
// Opaque to resolution beyond presence validation.
type Params struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// ModelConfig is one configured model entry for a command scope.
type ModelConfig struct {
	Command  string // command name, or DefaultScope
	Provider string // provider key this entry belongs to
	Name     string // model identifier sent to the provider
	Params   Params
}

// Valid reports whether the entry carries the required fields.
func (m ModelConfig) Valid() bool {
	return m.Command != "" && m.Provider != "" && m.Name != ""
}
