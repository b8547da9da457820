// Package memory provides a process-local ProfileStore used for local
// development and as the backing store in service tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/lendgrid/export-profiles/internal/domain"
)

// ProfileStore keeps profiles in a map keyed by id. Returned values are deep
// copies, so callers can never mutate stored state.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*domain.MappingProfile
}

// NewProfileStore creates an empty store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]*domain.MappingProfile)}
}

func (s *ProfileStore) CreateProfile(_ context.Context, p *domain.MappingProfile) (*domain.MappingProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[p.ID]; exists {
		return nil, &domain.ErrStorage{Op: "create", Err: errDuplicateID(p.ID)}
	}
	s.profiles[p.ID] = p.Clone()
	return p.Clone(), nil
}

func (s *ProfileStore) ListProfiles(_ context.Context, orgID string, filter domain.ProfileFilter) ([]domain.MappingProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.MappingProfile, 0)
	for _, p := range s.profiles {
		if p.OrgID != orgID || !filter.Matches(p) {
			continue
		}
		out = append(out, *p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *ProfileStore) GetProfile(_ context.Context, orgID, id string) (*domain.MappingProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok || p.OrgID != orgID {
		return nil, &domain.ErrNotFound{Resource: "mapping_profile", ID: id}
	}
	return p.Clone(), nil
}

func (s *ProfileStore) UpdateProfile(_ context.Context, p *domain.MappingProfile) (*domain.MappingProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.profiles[p.ID]
	if !ok || existing.OrgID != p.OrgID {
		return nil, &domain.ErrNotFound{Resource: "mapping_profile", ID: p.ID}
	}

	updated := p.Clone()
	updated.CreatedAt = existing.CreatedAt
	updated.CreatedBy = existing.CreatedBy
	s.profiles[p.ID] = updated
	return updated.Clone(), nil
}

func (s *ProfileStore) DeleteProfile(_ context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok || p.OrgID != orgID {
		return &domain.ErrNotFound{Resource: "mapping_profile", ID: id}
	}
	delete(s.profiles, id)
	return nil
}

// Ping always succeeds.
func (s *ProfileStore) Ping(context.Context) error {
	return nil
}

type errDuplicateID string

func (e errDuplicateID) Error() string {
	return "duplicate profile id " + string(e)
}
