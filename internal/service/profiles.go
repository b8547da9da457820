// Package service implements the profile lifecycle and resolution use cases
// on top of the store and cache ports.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lendgrid/export-profiles/internal/domain"
	"github.com/lendgrid/export-profiles/internal/infra/observability"
	"github.com/lendgrid/export-profiles/internal/mapping"
	"github.com/lendgrid/export-profiles/internal/port"
)

var tracer = otel.Tracer("service/profiles")

const unsetDefaultsConcurrency = 4

// DefaultPolicy decides what Create and Update do when a profile is flagged
// as the org default.
type DefaultPolicy string

const (
	// DefaultPolicyLenient stores the flag as given. Several profiles of an
	// org may carry it; the resolver reports that as ambiguous.
	DefaultPolicyLenient DefaultPolicy = "lenient"
	// DefaultPolicyExclusive unsets every other default of the org first.
	DefaultPolicyExclusive DefaultPolicy = "exclusive"
)

// ParseDefaultPolicy maps a config value onto a policy. Blank means lenient.
func ParseDefaultPolicy(s string) (DefaultPolicy, error) {
	switch DefaultPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DefaultPolicyLenient:
		return DefaultPolicyLenient, nil
	case DefaultPolicyExclusive:
		return DefaultPolicyExclusive, nil
	default:
		return "", fmt.Errorf("unknown default policy %q", s)
	}
}

// ProfileService owns the lifecycle of mapping profiles. Every call is scoped
// by an explicit orgID.
type ProfileService struct {
	store   port.ProfileStore
	cache   *ResolutionCache
	metrics *observability.Metrics
	policy  DefaultPolicy
	backend string
	logger  *zap.Logger
	now     func() time.Time
}

// NewProfileService creates the profile service. backend labels store error
// metrics (memory, supabase, postgres).
func NewProfileService(
	store port.ProfileStore,
	cache *ResolutionCache,
	metrics *observability.Metrics,
	policy DefaultPolicy,
	backend string,
	logger *zap.Logger,
) *ProfileService {
	if policy == "" {
		policy = DefaultPolicyLenient
	}
	return &ProfileService{
		store:   store,
		cache:   cache,
		metrics: metrics,
		policy:  policy,
		backend: backend,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Policy returns the configured default policy.
func (s *ProfileService) Policy() DefaultPolicy { return s.policy }

// ============================================================
// Create: POST /v1/profiles
// ============================================================

// Create builds a profile from the platform defaults overlaid with the
// request's overrides. Only overrides of the catalog defaults are stored.
func (s *ProfileService) Create(ctx context.Context, orgID, createdBy string, req *domain.CreateProfileRequest) (p *domain.MappingProfile, err error) {
	ctx, span := tracer.Start(ctx, "ProfileService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("platform", req.Platform))
	defer s.observe("create", time.Now(), &err)

	if err := requireOrg(orgID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.ProfileName)
	if name == "" {
		return nil, &domain.ErrValidation{Field: "profile_name", Message: "required"}
	}
	ns, err := mapping.NormalizeNamespace(req.ExtensionNamespace)
	if err != nil {
		return nil, err
	}

	draft, err := mapping.NewDraft(req.Platform)
	if err != nil {
		return nil, err
	}
	draft.Apply(req.Overrides)
	core, ext := draft.Overrides()

	schemaVersion := strings.TrimSpace(req.SchemaVersion)
	if schemaVersion == "" {
		schemaVersion = domain.DefaultSchemaVersion
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	if req.IsDefault && s.policy == DefaultPolicyExclusive {
		if err := s.unsetDefaults(ctx, orgID, ""); err != nil {
			return nil, err
		}
	}

	now := s.now()
	profile := &domain.MappingProfile{
		ID:                    uuid.NewString(),
		OrgID:                 orgID,
		ProfileName:           name,
		Platform:              draft.Platform,
		SchemaVersion:         schemaVersion,
		ExtensionNamespace:    ns,
		IsActive:              active,
		IsDefault:             req.IsDefault,
		CoreFieldMapping:      core,
		ExtensionFieldMapping: ext,
		ValidationRules:       draft.ValidationRules,
		CreatedAt:             now,
		UpdatedAt:             now,
		CreatedBy:             createdBy,
	}

	created, err := s.store.CreateProfile(ctx, profile)
	if err != nil {
		s.logger.Error("create profile failed", zap.String("org_id", orgID), zap.Error(err))
		return nil, err
	}
	s.invalidate(ctx, orgID, created.ID)

	s.logger.Info("profile created",
		zap.String("org_id", orgID),
		zap.String("profile_id", created.ID),
		zap.String("platform", created.Platform),
		zap.Bool("is_default", created.IsDefault),
	)
	return created, nil
}

// ============================================================
// Reads
// ============================================================

// List returns every profile of the org matching filter. Inactive profiles
// are included unless the filter says otherwise.
func (s *ProfileService) List(ctx context.Context, orgID string, filter domain.ProfileFilter) (profiles []domain.MappingProfile, err error) {
	ctx, span := tracer.Start(ctx, "ProfileService.List")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID))
	defer s.observe("list", time.Now(), &err)

	if err := requireOrg(orgID); err != nil {
		return nil, err
	}
	return s.store.ListProfiles(ctx, orgID, filter)
}

func (s *ProfileService) Get(ctx context.Context, orgID, id string) (p *domain.MappingProfile, err error) {
	ctx, span := tracer.Start(ctx, "ProfileService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("profile.id", id))
	defer s.observe("get", time.Now(), &err)

	if err := requireOrg(orgID); err != nil {
		return nil, err
	}
	return s.store.GetProfile(ctx, orgID, id)
}

// ============================================================
// Update: PATCH /v1/profiles/{id}
// ============================================================

// Update merges the given fields into the stored profile. Mapping tables
// replace the stored table and are compacted against the platform defaults.
// A platform change keeps the stored overrides; untouched fields follow the
// new platform's defaults.
func (s *ProfileService) Update(ctx context.Context, orgID, id string, upd *domain.ProfileUpdate) (p *domain.MappingProfile, err error) {
	ctx, span := tracer.Start(ctx, "ProfileService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("profile.id", id))
	defer s.observe("update", time.Now(), &err)

	if err := requireOrg(orgID); err != nil {
		return nil, err
	}
	existing, err := s.store.GetProfile(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := applyUpdate(existing, upd); err != nil {
		return nil, err
	}

	if upd.IsDefault != nil && *upd.IsDefault && s.policy == DefaultPolicyExclusive {
		if err := s.unsetDefaults(ctx, orgID, id); err != nil {
			return nil, err
		}
	}

	return s.save(ctx, existing)
}

func applyUpdate(p *domain.MappingProfile, upd *domain.ProfileUpdate) error {
	if upd == nil {
		return nil
	}
	if upd.ProfileName != nil {
		name := strings.TrimSpace(*upd.ProfileName)
		if name == "" {
			return &domain.ErrValidation{Field: "profile_name", Message: "must not be blank"}
		}
		p.ProfileName = name
	}
	if upd.Platform != nil {
		if !mapping.IsKnownPlatform(*upd.Platform) {
			return &domain.ErrValidation{Field: "platform", Message: "unknown platform '" + *upd.Platform + "'"}
		}
		p.Platform = *upd.Platform
	}
	if upd.SchemaVersion != nil {
		p.SchemaVersion = strings.TrimSpace(*upd.SchemaVersion)
		if p.SchemaVersion == "" {
			p.SchemaVersion = domain.DefaultSchemaVersion
		}
	}
	if upd.ExtensionNamespace != nil {
		ns, err := mapping.NormalizeNamespace(*upd.ExtensionNamespace)
		if err != nil {
			return err
		}
		p.ExtensionNamespace = ns
	}
	if upd.IsActive != nil {
		p.IsActive = *upd.IsActive
	}
	if upd.IsDefault != nil {
		p.IsDefault = *upd.IsDefault
	}
	if upd.ValidationRules != nil {
		p.ValidationRules = *upd.ValidationRules
	}

	if upd.CoreFieldMapping != nil || upd.ExtensionFieldMapping != nil {
		defaults, err := mapping.GenerateDefaultMapping(p.Platform)
		if err != nil {
			return err
		}
		if upd.CoreFieldMapping != nil {
			p.CoreFieldMapping = mapping.Compact(upd.CoreFieldMapping, defaults.CoreFieldMapping)
		}
		if upd.ExtensionFieldMapping != nil {
			p.ExtensionFieldMapping = mapping.Compact(upd.ExtensionFieldMapping, defaults.ExtensionFieldMapping)
		}
	}
	return nil
}

// ============================================================
// Duplicate: POST /v1/profiles/{id}/duplicate
// ============================================================

// Duplicate deep-copies a profile under a fresh id. The copy is never the
// default and is named "{original} (Copy)".
func (s *ProfileService) Duplicate(ctx context.Context, orgID, id, createdBy string) (p *domain.MappingProfile, err error) {
	ctx, span := tracer.Start(ctx, "ProfileService.Duplicate")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("profile.id", id))
	defer s.observe("duplicate", time.Now(), &err)

	if err := requireOrg(orgID); err != nil {
		return nil, err
	}
	src, err := s.store.GetProfile(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cp := src.Clone()
	cp.ID = uuid.NewString()
	cp.ProfileName = src.ProfileName + " (Copy)"
	cp.IsDefault = false
	cp.CreatedAt = now
	cp.UpdatedAt = now
	cp.CreatedBy = createdBy

	created, err := s.store.CreateProfile(ctx, cp)
	if err != nil {
		return nil, err
	}
	s.logger.Info("profile duplicated",
		zap.String("org_id", orgID),
		zap.String("source_id", id),
		zap.String("profile_id", created.ID),
	)
	return created, nil
}

// ============================================================
// Delete: DELETE /v1/profiles/{id}
// ============================================================

// Delete removes a profile. No other profile is promoted when the default is
// deleted; the result tells the caller whether the org still has one.
func (s *ProfileService) Delete(ctx context.Context, orgID, id string) (res *domain.DeleteResult, err error) {
	ctx, span := tracer.Start(ctx, "ProfileService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("profile.id", id))
	defer s.observe("delete", time.Now(), &err)

	if err := requireOrg(orgID); err != nil {
		return nil, err
	}
	existing, err := s.store.GetProfile(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteProfile(ctx, orgID, id); err != nil {
		return nil, err
	}
	s.invalidate(ctx, orgID, id)

	res = &domain.DeleteResult{ID: id, DefaultRemoved: existing.IsDefault}

	isDefault := true
	remaining, lookupErr := s.store.ListProfiles(ctx, orgID, domain.ProfileFilter{IsDefault: &isDefault})
	switch {
	case lookupErr != nil:
		res.DefaultUnknown = true
		s.logger.Warn("profile deleted, default lookup failed",
			zap.String("org_id", orgID),
			zap.String("profile_id", id),
			zap.Error(lookupErr),
		)
	default:
		res.OrgHasDefault = len(remaining) > 0
		if res.DefaultRemoved && !res.OrgHasDefault {
			s.logger.Warn("org left without a default profile",
				zap.String("org_id", orgID),
				zap.String("profile_id", id),
			)
		}
	}
	s.logger.Info("profile deleted", zap.String("org_id", orgID), zap.String("profile_id", id))
	return res, nil
}

// ============================================================
// Activation and default selection
// ============================================================

func (s *ProfileService) SetActive(ctx context.Context, orgID, id string, active bool) (p *domain.MappingProfile, err error) {
	ctx, span := tracer.Start(ctx, "ProfileService.SetActive")
	defer span.End()
	span.SetAttributes(attribute.String("profile.id", id), attribute.Bool("active", active))
	defer s.observe("set_active", time.Now(), &err)

	if err := requireOrg(orgID); err != nil {
		return nil, err
	}
	existing, err := s.store.GetProfile(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	existing.IsActive = active
	return s.save(ctx, existing)
}

// SetDefault makes id the org default: every other default is unset first,
// then id is flagged. Each write stands alone, so a failure part-way leaves
// the org with no default.
func (s *ProfileService) SetDefault(ctx context.Context, orgID, id string) (p *domain.MappingProfile, err error) {
	ctx, span := tracer.Start(ctx, "ProfileService.SetDefault")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("profile.id", id))
	defer s.observe("set_default", time.Now(), &err)

	if err := requireOrg(orgID); err != nil {
		return nil, err
	}
	target, err := s.store.GetProfile(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := s.unsetDefaults(ctx, orgID, id); err != nil {
		return nil, err
	}
	target.IsDefault = true
	return s.save(ctx, target)
}

func (s *ProfileService) ClearDefault(ctx context.Context, orgID, id string) (p *domain.MappingProfile, err error) {
	ctx, span := tracer.Start(ctx, "ProfileService.ClearDefault")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("profile.id", id))
	defer s.observe("clear_default", time.Now(), &err)

	if err := requireOrg(orgID); err != nil {
		return nil, err
	}
	existing, err := s.store.GetProfile(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	existing.IsDefault = false
	return s.save(ctx, existing)
}

// ============================================================
// Mapping documents: GET/PUT /v1/profiles/{id}/mapping
// ============================================================

// ExportDocument renders the profile's full mapping document.
func (s *ProfileService) ExportDocument(ctx context.Context, orgID, id string) (doc *mapping.Document, err error) {
	ctx, span := tracer.Start(ctx, "ProfileService.ExportDocument")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("profile.id", id))
	defer s.observe("export_document", time.Now(), &err)

	if err := requireOrg(orgID); err != nil {
		return nil, err
	}
	p, err := s.store.GetProfile(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	return mapping.ExportDocument(p)
}

// ImportDocument replaces the profile's mapping tables and rule set with the
// document's. Entries equal to the platform defaults are not stored.
func (s *ProfileService) ImportDocument(ctx context.Context, orgID, id string, doc *mapping.Document) (p *domain.MappingProfile, err error) {
	ctx, span := tracer.Start(ctx, "ProfileService.ImportDocument")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("profile.id", id))
	defer s.observe("import_document", time.Now(), &err)

	if err := requireOrg(orgID); err != nil {
		return nil, err
	}
	existing, err := s.store.GetProfile(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	imported, err := mapping.ImportDocument(existing.Platform, doc)
	if err != nil {
		return nil, err
	}
	existing.CoreFieldMapping = imported.CoreFieldMapping
	existing.ExtensionFieldMapping = imported.ExtensionFieldMapping
	existing.ValidationRules = imported.ValidationRules
	return s.save(ctx, existing)
}

// ============================================================
// Internal helpers
// ============================================================

func (s *ProfileService) save(ctx context.Context, p *domain.MappingProfile) (*domain.MappingProfile, error) {
	p.UpdatedAt = s.now()
	updated, err := s.store.UpdateProfile(ctx, p)
	if err != nil {
		s.logger.Error("update profile failed",
			zap.String("org_id", p.OrgID),
			zap.String("profile_id", p.ID),
			zap.Error(err),
		)
		return nil, err
	}
	s.invalidate(ctx, p.OrgID, p.ID)
	s.logger.Info("profile updated",
		zap.String("org_id", p.OrgID),
		zap.String("profile_id", p.ID),
		zap.Bool("is_default", updated.IsDefault),
		zap.Bool("is_active", updated.IsActive),
	)
	return updated, nil
}

// unsetDefaults clears the default flag on every profile of the org except
// keep. Writes are independent and run concurrently; completed writes stay
// in place when another one fails.
func (s *ProfileService) unsetDefaults(ctx context.Context, orgID, keep string) error {
	isDefault := true
	defaults, err := s.store.ListProfiles(ctx, orgID, domain.ProfileFilter{IsDefault: &isDefault})
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(unsetDefaultsConcurrency)
	for i := range defaults {
		p := &defaults[i]
		if p.ID == keep {
			continue
		}
		p.IsDefault = false
		g.Go(func() error {
			_, err := s.save(gCtx, p)
			return err
		})
	}
	return g.Wait()
}

func (s *ProfileService) invalidate(ctx context.Context, orgID, id string) {
	s.cache.invalidate(ctx, orgID, id)
}

func (s *ProfileService) observe(op string, start time.Time, errp *error) {
	if s.metrics == nil {
		return
	}
	err := *errp
	s.metrics.RecordOperation(op, time.Since(start), err)
	if isStoreFailure(err) {
		s.metrics.IncrStoreError(s.backend)
	}
}

func isStoreFailure(err error) bool {
	var storageErr *domain.ErrStorage
	var circuitErr *domain.ErrCircuitOpen
	return errors.As(err, &storageErr) || errors.As(err, &circuitErr)
}

func requireOrg(orgID string) error {
	if strings.TrimSpace(orgID) == "" {
		return &domain.ErrValidation{Field: "org_id", Message: "required"}
	}
	return nil
}
