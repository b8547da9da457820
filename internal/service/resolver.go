package service

import (
	"context"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lendgrid/export-profiles/internal/domain"
	"github.com/lendgrid/export-profiles/internal/infra/observability"
	"github.com/lendgrid/export-profiles/internal/mapping"
	"github.com/lendgrid/export-profiles/internal/port"
)

const resolutionCache = "resolution"

// Resolver hands the export orchestrator a profile merged with its catalog
// defaults. Results are cached per org until a write of that org invalidates
// them; concurrent misses for the same key share one store round-trip.
type Resolver struct {
	store   port.ProfileStore
	cache   *ResolutionCache
	metrics *observability.Metrics
	logger  *zap.Logger
	group   singleflight.Group
}

// NewResolver creates a resolver. cache must be the instance the
// ProfileService invalidates.
func NewResolver(store port.ProfileStore, cache *ResolutionCache, metrics *observability.Metrics, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, cache: cache, metrics: metrics, logger: logger}
}

// Resolve returns the profile with the given id, which must be active. With an
// empty id it returns the org's single active default, failing with
// ErrNoDefaultProfile or ErrAmbiguousDefault when there is none or several.
func (r *Resolver) Resolve(ctx context.Context, orgID, profileID string) (*domain.ResolvedProfile, error) {
	ctx, span := tracer.Start(ctx, "Resolver.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("profile.id", profileID))

	if err := requireOrg(orgID); err != nil {
		return nil, err
	}
	profileID = strings.TrimSpace(profileID)

	key := defaultResolutionKey(orgID)
	if profileID != "" {
		key = resolutionKey(orgID, profileID)
	}

	gen := r.cache.generation(orgID)
	if r.cache.enabled() {
		if cached, ok := r.cache.get(ctx, key); ok {
			r.incrCache(true)
			return cloneResolved(cached), nil
		}
		r.incrCache(false)
	}

	// Callers arriving after an invalidation start a new flight.
	flight := key + "@" + strconv.FormatUint(gen, 10)
	v, err, shared := r.group.Do(flight, func() (any, error) {
		resolved, err := r.load(ctx, orgID, profileID)
		if err != nil {
			return nil, err
		}
		if r.cache.enabled() && !r.cache.setIfCurrent(ctx, orgID, gen, key, resolved) {
			r.logger.Debug("resolution not cached, org changed during load",
				zap.String("org_id", orgID),
				zap.String("profile_id", profileID),
			)
		}
		return resolved, nil
	})
	if err != nil {
		r.logger.Warn("profile resolution failed",
			zap.String("org_id", orgID),
			zap.String("profile_id", profileID),
			zap.Error(err),
		)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("singleflight.shared", shared))
	return cloneResolved(v.(*domain.ResolvedProfile)), nil
}

func (r *Resolver) load(ctx context.Context, orgID, profileID string) (*domain.ResolvedProfile, error) {
	if profileID != "" {
		p, err := r.store.GetProfile(ctx, orgID, profileID)
		if err != nil {
			return nil, err
		}
		if !p.IsActive {
			return nil, &domain.ErrInactiveProfile{ID: p.ID}
		}
		return mapping.Resolve(p)
	}

	yes := true
	defaults, err := r.store.ListProfiles(ctx, orgID, domain.ProfileFilter{IsDefault: &yes, IsActive: &yes})
	if err != nil {
		return nil, err
	}
	switch len(defaults) {
	case 0:
		return nil, &domain.ErrNoDefaultProfile{OrgID: orgID}
	case 1:
		return mapping.Resolve(&defaults[0])
	default:
		return nil, &domain.ErrAmbiguousDefault{OrgID: orgID, Count: len(defaults)}
	}
}

func (r *Resolver) incrCache(hit bool) {
	if r.metrics == nil {
		return
	}
	if hit {
		r.metrics.IncrCacheHit(resolutionCache)
	} else {
		r.metrics.IncrCacheMiss(resolutionCache)
	}
}

func cloneResolved(rp *domain.ResolvedProfile) *domain.ResolvedProfile {
	cp := *rp
	cp.CoreFields = rp.CoreFields.Clone()
	cp.ExtensionFields = rp.ExtensionFields.Clone()
	cp.QualifiedExtensionFields = rp.QualifiedExtensionFields.Clone()
	cp.RequiredCoreFields = append([]string(nil), rp.RequiredCoreFields...)
	return &cp
}
