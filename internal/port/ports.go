// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/lendgrid/export-profiles/internal/domain"
)

// ProfileStore persists mapping profiles. Every call is scoped to one org and
// is a single-aggregate operation; implementations provide no transactions
// spanning several profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *domain.MappingProfile) (*domain.MappingProfile, error)
	ListProfiles(ctx context.Context, orgID string, filter domain.ProfileFilter) ([]domain.MappingProfile, error)
	GetProfile(ctx context.Context, orgID, id string) (*domain.MappingProfile, error)
	// UpdateProfile replaces the mutable columns of an existing profile.
	UpdateProfile(ctx context.Context, p *domain.MappingProfile) (*domain.MappingProfile, error)
	DeleteProfile(ctx context.Context, orgID, id string) error
}

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, value T)
	Delete(ctx context.Context, keys ...string)
}
