package profile

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObfuscationRoundTrip(t *testing.T) {
	key := "sk-test-1234567890"
	stored := Obfuscate(key)

	assert.True(t, strings.HasPrefix(stored, "v1:"))
	assert.NotContains(t, stored, "1234", "plaintext must not leak through")
	assert.Equal(t, key, Deobfuscate(stored))

	// Double application is harmless.
	assert.Equal(t, stored, Obfuscate(stored))

	// Legacy plaintext rows pass through.
	assert.Equal(t, "legacy-key", Deobfuscate("legacy-key"))
	assert.Empty(t, Obfuscate(""))
}

func TestStoreAppliesProviderDefaults(t *testing.T) {
	s := NewMemoryStore()
	p, err := s.Store(context.Background(), Profile{
		Name:     "Work",
		Provider: "openai",
		Key:      "sk-abc",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", p.Endpoint)
	assert.Equal(t, "gpt-4o", p.Model)
	assert.True(t, strings.HasPrefix(p.Key, "v1:"), "key obfuscated at rest")
	assert.Equal(t, "sk-abc", p.PlainKey())
}

func TestFirstProfileBecomesActive(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetActive(ctx)
	require.ErrorIs(t, err, ErrNoActiveProfile)

	first, err := s.Store(ctx, Profile{Name: "First", Provider: "openai"})
	require.NoError(t, err)
	second, err := s.Store(ctx, Profile{Name: "Second", Provider: "ollama"})
	require.NoError(t, err)

	active, err := s.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	require.NoError(t, s.SetActive(ctx, second.ID))
	active, err = s.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	assert.ErrorIs(t, s.SetActive(ctx, "missing"), ErrNotFound)
}

func TestDeleteClearsActivePointer(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p, err := s.Store(ctx, Profile{Name: "Only", Provider: "openai"})
	require.NoError(t, err)

	has, err := s.Has(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.Delete(ctx, p.ID))
	_, err = s.GetActive(ctx)
	assert.ErrorIs(t, err, ErrNoActiveProfile)

	has, err = s.Has(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	assert.ErrorIs(t, s.Delete(ctx, p.ID), ErrNotFound)
}

func TestListProfilesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, err := s.Store(ctx, Profile{Name: "A", Provider: "openai"})
	require.NoError(t, err)
	_, err = s.Store(ctx, Profile{Name: "B", Provider: "ollama"})
	require.NoError(t, err)

	// Updating A bumps it back to the front.
	a.Name = "A2"
	_, err = s.Store(ctx, a)
	require.NoError(t, err)

	list, err := s.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A2", list[0].Name)
}

func TestUnknownProviderKeepsGivenEndpoint(t *testing.T) {
	p := Profile{Provider: "custom", Endpoint: "https://llm.internal/v1/chat"}
	p.ApplyDefaults()
	assert.Equal(t, "https://llm.internal/v1/chat", p.Endpoint)
	assert.Empty(t, p.Model)
}
