package profile

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence surface for profiles. Exactly one profile may be
// active at a time; the first stored profile becomes active automatically.
type Store interface {
	// Store inserts or replaces a profile and returns the stored form.
	Store(ctx context.Context, p Profile) (Profile, error)

	// ListProfiles returns all profiles, most recently updated first.
	ListProfiles(ctx context.Context) ([]Profile, error)

	// GetActive returns the active profile or ErrNoActiveProfile.
	GetActive(ctx context.Context) (*Profile, error)

	// SetActive moves the active pointer. ErrNotFound when the id is unknown.
	SetActive(ctx context.Context, id string) error

	// Delete removes a profile; deleting the active one clears the pointer.
	Delete(ctx context.Context, id string) error

	// Has reports whether any profile exists.
	Has(ctx context.Context) (bool, error)
}

// MemoryStore keeps profiles in process memory. The default when no
// DATABASE_URL is configured; state does not survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]Profile
	activeID string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]Profile)}
}

// Store implements Store.
func (s *MemoryStore) Store(ctx context.Context, p Profile) (Profile, error) {
	normalize(&p)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	}
	s.profiles[p.ID] = p
	if s.activeID == "" {
		s.activeID = p.ID
	}
	return p, nil
}

// ListProfiles implements Store.
func (s *MemoryStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sortByUpdated(out)
	return out, nil
}

// GetActive implements Store.
func (s *MemoryStore) GetActive(ctx context.Context) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID == "" {
		return nil, ErrNoActiveProfile
	}
	p, ok := s.profiles[s.activeID]
	if !ok {
		return nil, ErrNoActiveProfile
	}
	cp := p
	return &cp, nil
}

// SetActive implements Store.
func (s *MemoryStore) SetActive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return ErrNotFound
	}
	s.activeID = id
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return ErrNotFound
	}
	delete(s.profiles, id)
	if s.activeID == id {
		s.activeID = ""
	}
	return nil
}

// Has implements Store.
func (s *MemoryStore) Has(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles) > 0, nil
}

// normalize fills ids, timestamps, defaults, and obfuscates the key before
// the profile hits any backend.
func normalize(p *Profile) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Version == 0 {
		p.Version = 1
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.ApplyDefaults()
	p.Key = Obfuscate(p.Key)
}

func sortByUpdated(profiles []Profile) {
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].UpdatedAt.After(profiles[j].UpdatedAt)
	})
}
