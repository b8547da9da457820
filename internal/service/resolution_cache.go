package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/lendgrid/export-profiles/internal/domain"
	"github.com/lendgrid/export-profiles/internal/port"
)

func defaultResolutionKey(orgID string) string {
	return fmt.Sprintf("resolved:%s:default", orgID)
}

func resolutionKey(orgID, id string) string {
	return fmt.Sprintf("resolved:%s:id:%s", orgID, id)
}

// ResolutionCache is the resolved-profile cache shared by ProfileService and
// Resolver. Each org carries a generation that every invalidation bumps; a
// load started under an older generation is not written back.
type ResolutionCache struct {
	cache port.Cache[*domain.ResolvedProfile]

	mu   sync.Mutex
	gens map[string]uint64
}

// NewResolutionCache wraps c. A nil c disables caching.
func NewResolutionCache(c port.Cache[*domain.ResolvedProfile]) *ResolutionCache {
	return &ResolutionCache{cache: c, gens: make(map[string]uint64)}
}

func (rc *ResolutionCache) enabled() bool {
	return rc != nil && rc.cache != nil
}

// generation returns the current generation of the org.
func (rc *ResolutionCache) generation(orgID string) uint64 {
	if rc == nil {
		return 0
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.gens[orgID]
}

func (rc *ResolutionCache) get(ctx context.Context, key string) (*domain.ResolvedProfile, bool) {
	if !rc.enabled() {
		return nil, false
	}
	v, ok := rc.cache.Get(ctx, key)
	return v, ok && v != nil
}

// setIfCurrent stores v unless the org was invalidated after gen was read.
// The check and the write happen under the same lock as the bump.
func (rc *ResolutionCache) setIfCurrent(ctx context.Context, orgID string, gen uint64, key string, v *domain.ResolvedProfile) bool {
	if !rc.enabled() {
		return false
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.gens[orgID] != gen {
		return false
	}
	rc.cache.Set(ctx, key, v)
	return true
}

// invalidate bumps the org generation and drops the org default entry and
// the entry of id.
func (rc *ResolutionCache) invalidate(ctx context.Context, orgID, id string) {
	if rc == nil {
		return
	}
	rc.mu.Lock()
	rc.gens[orgID]++
	rc.mu.Unlock()

	if rc.cache != nil {
		rc.cache.Delete(ctx, defaultResolutionKey(orgID), resolutionKey(orgID, id))
	}
}
