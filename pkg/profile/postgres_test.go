package profile

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newPostgresStore connects to CI_DATABASE_URL when set, otherwise spins up
// a disposable container. Skipped in short mode and when Docker is absent.
func newPostgresStore(t *testing.T) *PostgresStore {
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("bridge_test"),
			postgres.WithUsername("bridge"),
			postgres.WithPassword("bridge"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			t.Skipf("Docker unavailable: %v", err)
		}
		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	store, err := NewPostgresStore(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgresStoreLifecycle(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	has, err := s.Has(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	first, err := s.Store(ctx, Profile{
		Name:     "Work",
		Provider: "openai",
		Key:      "sk-secret",
		Settings: map[string]any{"temperature": 0.2},
	})
	require.NoError(t, err)

	// First profile in becomes active; the key round-trips obfuscated.
	active, err := s.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)
	assert.Equal(t, "sk-secret", active.PlainKey())
	assert.NotEqual(t, "sk-secret", active.Key)
	assert.Equal(t, 0.2, active.Settings["temperature"])

	second, err := s.Store(ctx, Profile{Name: "Local", Provider: "ollama"})
	require.NoError(t, err)

	list, err := s.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, s.SetActive(ctx, second.ID))
	active, err = s.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	assert.ErrorIs(t, s.SetActive(ctx, "missing"), ErrNotFound)

	require.NoError(t, s.Delete(ctx, second.ID))
	_, err = s.GetActive(ctx)
	assert.ErrorIs(t, err, ErrNoActiveProfile)

	assert.ErrorIs(t, s.Delete(ctx, second.ID), ErrNotFound)
}

func TestPostgresStoreUpdateKeepsCreatedAt(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	p, err := s.Store(ctx, Profile{Name: "Work", Provider: "openai"})
	require.NoError(t, err)

	p.Name = "Work v2"
	updated, err := s.Store(ctx, p)
	require.NoError(t, err)

	list, err := s.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Work v2", list[0].Name)
	assert.Equal(t, updated.ID, list[0].ID)
	assert.WithinDuration(t, p.CreatedAt, list[0].CreatedAt, time.Second)
}
