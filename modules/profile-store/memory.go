package profilestore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps profiles in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	now      func() time.Time
}

// NewMemoryStore returns a store seeded with profiles.
func NewMemoryStore(profiles ...Profile) *MemoryStore {
	s := &MemoryStore{
		profiles: make(map[string]Profile, len(profiles)),
		now:      time.Now,
	}
	for _, p := range profiles {
		_ = s.Put(context.Background(), p)
	}
	return s
}

// Read implements Store.
func (s *MemoryStore) Read(ctx context.Context, subjectID string) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[subjectID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, subjectID string, u Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[subjectID]
	if !ok {
		return ErrNotFound
	}
	p = u.Apply(p)
	p.UpdatedAt = s.now().UTC()
	s.profiles[subjectID] = p
	return nil
}

// Put implements Seeder.
func (s *MemoryStore) Put(ctx context.Context, p Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := normalize(p, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.SubjectID] = p
	return nil
}
