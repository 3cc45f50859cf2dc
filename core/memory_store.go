package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryIdentityStore is an in-process IdentityStore used for development
// and tests. Save checks uniqueness across both usernames and emails and
// inserts under one lock.
type MemoryIdentityStore struct {
	mu         sync.RWMutex
	byUsername map[string]*Identity
	byEmail    map[string]*Identity
}

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		byUsername: map[string]*Identity{},
		byEmail:    map[string]*Identity{},
	}
}

func (s *MemoryIdentityStore) FindByUsername(_ context.Context, username string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byUsername[username]; ok {
		clone := *id
		return &clone, nil
	}
	return nil, nil
}

func (s *MemoryIdentityStore) FindByEmail(_ context.Context, email string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byEmail[email]; ok {
		clone := *id
		return &clone, nil
	}
	return nil, nil
}

func (s *MemoryIdentityStore) Save(_ context.Context, id *Identity) (*Identity, error) {
	if id == nil {
		return nil, errors.New("identity is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taken(id.Username) {
		return nil, &DuplicateCredentialsError{Field: "username"}
	}
	if s.taken(id.Email) {
		return nil, &DuplicateCredentialsError{Field: "email"}
	}
	clone := *id
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.byUsername[clone.Username] = &clone
	s.byEmail[clone.Email] = &clone
	out := clone
	return &out, nil
}

// taken reports whether v is in use as any identity's username or email.
// Callers hold s.mu.
func (s *MemoryIdentityStore) taken(v string) bool {
	_, u := s.byUsername[v]
	_, e := s.byEmail[v]
	return u || e
}

func (s *MemoryIdentityStore) HasAdmin(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.byUsername {
		if id.Role == RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryIdentityStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byUsername), nil
}

func (s *MemoryIdentityStore) List(_ context.Context, page, perPage int) ([]IdentityListItem, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	s.mu.RLock()
	all := make([]Identity, 0, len(s.byUsername))
	for _, id := range s.byUsername {
		all = append(all, *id)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	start := (page - 1) * perPage
	if start > len(all) {
		start = len(all)
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	items := make([]IdentityListItem, 0, end-start)
	for _, id := range all[start:end] {
		items = append(items, IdentityListItem{
			ID:        id.ID,
			Username:  id.Username,
			Email:     id.Email,
			Role:      id.Role,
			CreatedAt: id.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return items, len(all), nil
}
