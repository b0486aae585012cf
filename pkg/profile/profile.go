// Package profile stores LLM provider credentials and model configuration.
// Keys are obfuscated at rest as a deterrent against shoulder-surfing and
// accidental log exposure; this is not encryption and is documented as such.
package profile

import (
	"errors"
	"time"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the profile id matches nothing.
	ErrNotFound = errors.New("profile not found")

	// ErrNoActiveProfile indicates no profile is marked active.
	ErrNoActiveProfile = errors.New("no active profile")
)

// Profile is one provider configuration. Key holds the obfuscated form;
// PlainKey recovers the original for outbound requests.
type Profile struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Provider  string         `json:"provider"`
	Endpoint  string         `json:"endpoint"`
	Model     string         `json:"model"`
	Key       string         `json:"-"`
	Settings  map[string]any `json:"settings,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Version   int            `json:"version"`
}

// PlainKey returns the deobfuscated provider key.
func (p *Profile) PlainKey() string {
	return Deobfuscate(p.Key)
}

// HasKey reports whether the profile carries a credential.
func (p *Profile) HasKey() bool {
	return p.Key != ""
}

// providerDefault carries the fallback endpoint and model per provider.
type providerDefault struct {
	Endpoint string
	Model    string
}

var providerDefaults = map[string]providerDefault{
	"openai": {
		Endpoint: "https://api.openai.com/v1/chat/completions",
		Model:    "gpt-4o",
	},
	"openrouter": {
		Endpoint: "https://openrouter.ai/api/v1/chat/completions",
		Model:    "openai/gpt-4o",
	},
	"ollama": {
		Endpoint: "http://localhost:11434/v1/chat/completions",
		Model:    "llama3.1",
	},
}

// ApplyDefaults fills endpoint and model from the provider table when the
// profile leaves them blank. Unknown providers keep whatever was given.
func (p *Profile) ApplyDefaults() {
	def, ok := providerDefaults[p.Provider]
	if !ok {
		return
	}
	if p.Endpoint == "" {
		p.Endpoint = def.Endpoint
	}
	if p.Model == "" {
		p.Model = def.Model
	}
}

// Providers returns the known provider names.
func Providers() []string {
	return []string{"openai", "openrouter", "ollama"}
}
