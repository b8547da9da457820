package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lendgrid/export-profiles/internal/domain"
	"github.com/lendgrid/export-profiles/internal/infra/cache"
	"github.com/lendgrid/export-profiles/internal/infra/memory"
	"github.com/lendgrid/export-profiles/internal/infra/observability"
	"github.com/lendgrid/export-profiles/internal/mapping"
	"github.com/lendgrid/export-profiles/internal/port"
	"github.com/lendgrid/export-profiles/internal/service"
)

const org = "org-1"

// --- Fixtures ---

type fixture struct {
	store    port.ProfileStore
	cache    *cache.InMemory[*domain.ResolvedProfile]
	metrics  *observability.Metrics
	profiles *service.ProfileService
	resolver *service.Resolver
}

func newFixture(t *testing.T, policy service.DefaultPolicy) *fixture {
	t.Helper()
	return newFixtureWithStore(t, policy, memory.NewProfileStore())
}

func newFixtureWithStore(t *testing.T, policy service.DefaultPolicy, store port.ProfileStore) *fixture {
	t.Helper()
	c := cache.New[*domain.ResolvedProfile](time.Minute)
	t.Cleanup(c.Close)
	rc := service.NewResolutionCache(c)
	m := observability.NewMetrics()
	logger := zap.NewNop()
	return &fixture{
		store:    store,
		cache:    c,
		metrics:  m,
		profiles: service.NewProfileService(store, rc, m, policy, "memory", logger),
		resolver: service.NewResolver(store, rc, m, logger),
	}
}

func (f *fixture) create(t *testing.T, name, platform string, isDefault bool) *domain.MappingProfile {
	t.Helper()
	p, err := f.profiles.Create(context.Background(), org, "user-1", &domain.CreateProfileRequest{
		ProfileName: name,
		Platform:    platform,
		IsDefault:   isDefault,
	})
	require.NoError(t, err)
	return p
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
func defaultsFilter() domain.ProfileFilter {
	return domain.ProfileFilter{IsDefault: boolPtr(true)}
}

// flakyStore fails writes on demand.
type flakyStore struct {
	port.ProfileStore
	failUpdatesFor map[string]bool
}

func (s *flakyStore) UpdateProfile(ctx context.Context, p *domain.MappingProfile) (*domain.MappingProfile, error) {
	if s.failUpdatesFor[p.ID] {
		return nil, &domain.ErrStorage{Op: "update", Err: errors.New("connection reset")}
	}
	return s.ProfileStore.UpdateProfile(ctx, p)
}

// --- Create ---

func TestCreate_MISMODefaults(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyLenient)

	p := f.create(t, "Default Export", mapping.PlatformMISMO34, false)

	assert.True(t, p.ValidationRules.RequireAllBorrowers)
	assert.True(t, p.ValidationRules.AllowPartialData)
	assert.True(t, p.IsActive)
	assert.Equal(t, domain.DefaultExtensionNamespace, p.ExtensionNamespace)
	assert.Equal(t, domain.DefaultSchemaVersion, p.SchemaVersion)
	assert.Equal(t, org, p.OrgID)
	assert.Equal(t, "user-1", p.CreatedBy)
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())
	assert.Empty(t, p.CoreFieldMapping, "defaults are not stored")
}

func TestCreate_RequiresNameAndOrg(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyLenient)
	ctx := context.Background()

	_, err := f.profiles.Create(ctx, org, "", &domain.CreateProfileRequest{ProfileName: "  ", Platform: "Arive"})
	var v *domain.ErrValidation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "profile_name", v.Field)

	_, err = f.profiles.Create(ctx, "", "", &domain.CreateProfileRequest{ProfileName: "x", Platform: "Arive"})
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "org_id", v.Field)
}

func TestCreate_UnknownPlatform(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyLenient)

	_, err := f.profiles.Create(context.Background(), org, "", &domain.CreateProfileRequest{ProfileName: "x", Platform: "encompass"})
	var v *domain.ErrValidation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "platform", v.Field)
}

func TestCreate_NamespaceRoundTrip(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyLenient)
	ctx := context.Background()

	for _, ns := range []string{"XYZ", "xyz", "Ab12345678"} {
		p, err := f.profiles.Create(ctx, org, "", &domain.CreateProfileRequest{
			ProfileName:        "ns " + ns,
			Platform:           "Custom",
			ExtensionNamespace: ns,
		})
		require.NoError(t, err)

		got, err := f.profiles.Get(ctx, org, p.ID)
		require.NoError(t, err)
		assert.Equal(t, ns, got.ExtensionNamespace)
	}

	_, err := f.profiles.Create(ctx, org, "", &domain.CreateProfileRequest{
		ProfileName: "bad", Platform: "Custom", ExtensionNamespace: "LG-EXT",
	})
	var v *domain.ErrValidation
	assert.True(t, errors.As(err, &v))
}

func TestCreate_OverridesAreStoredSparse(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyLenient)

	p, err := f.profiles.Create(context.Background(), org, "", &domain.CreateProfileRequest{
		ProfileName: "Encompass",
		Platform:    mapping.PlatformEncompass,
		IsActive:    boolPtr(false),
		Overrides: &domain.MappingOverrides{
			CoreFields: domain.FieldMapping{
				"BaseLoanAmount": "deal.requested_amount",
				"LoanIdentifier": "deal.deal_number",
			},
			ValidationRules: &domain.ValidationRulesPatch{RequireSignatures: boolPtr(true), AllowPartialData: boolPtr(true)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.FieldMapping{"BaseLoanAmount": "deal.requested_amount"}, p.CoreFieldMapping)
	assert.True(t, p.ValidationRules.RequireSignatures)
	assert.True(t, p.ValidationRules.AllowPartialData)
	assert.False(t, p.IsActive)
}

// --- Default policy ---

func TestCreate_LenientAllowsTwoDefaults(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyLenient)

	f.create(t, "A", "Arive", true)
	f.create(t, "B", "Encompass", true)

	defaults, err := f.profiles.List(context.Background(), org, defaultsFilter())
	require.NoError(t, err)
	assert.Len(t, defaults, 2)
	for _, p := range defaults {
		assert.True(t, p.IsDefault)
	}
}

func TestCreate_ExclusiveUnsetsPreviousDefault(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyExclusive)

	first := f.create(t, "A", "Arive", true)
	second := f.create(t, "B", "Encompass", true)

	defaults, err := f.profiles.List(context.Background(), org, defaultsFilter())
	require.NoError(t, err)
	require.Len(t, defaults, 1)
	assert.Equal(t, second.ID, defaults[0].ID)

	got, err := f.profiles.Get(context.Background(), org, first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDefault)
}

func TestUpdate_ExclusiveUnsetsOthers(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyExclusive)
	ctx := context.Background()

	a := f.create(t, "A", "Arive", true)
	b := f.create(t, "B", "Arive", false)

	_, err := f.profiles.Update(ctx, org, b.ID, &domain.ProfileUpdate{IsDefault: boolPtr(true)})
	require.NoError(t, err)

	got, err := f.profiles.Get(ctx, org, a.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDefault)
}

func TestParseDefaultPolicy(t *testing.T) {
	p, err := service.ParseDefaultPolicy("")
	require.NoError(t, err)
	assert.Equal(t, service.DefaultPolicyLenient, p)

	p, err = service.ParseDefaultPolicy("Exclusive")
	require.NoError(t, err)
	assert.Equal(t, service.DefaultPolicyExclusive, p)

	_, err = service.ParseDefaultPolicy("strict")
	assert.Error(t, err)
}

// --- List / Get ---

func TestList_IncludesInactiveAndIsOrgScoped(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyLenient)
	ctx := context.Background()

	p := f.create(t, "A", "Arive", false)
	_, err := f.profiles.SetActive(ctx, org, p.ID, false)
	require.NoError(t, err)
	f.create(t, "B", "Arive", false)

	_, err = f.profiles.Create(ctx, "org-2", "", &domain.CreateProfileRequest{ProfileName: "other", Platform: "Arive"})
	require.NoError(t, err)

	all, err := f.profiles.List(ctx, org, domain.ProfileFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	inactive, err := f.profiles.List(ctx, org, domain.ProfileFilter{IsActive: boolPtr(false)})
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, p.ID, inactive[0].ID)

	_, err = f.profiles.Get(ctx, "org-2", p.ID)
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

// --- Update ---

func TestUpdate_ImmutableFields(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyLenient)
	ctx := context.Background()

	p := f.create(t, "A", "Arive", false)
	time.Sleep(2 * time.Millisecond)

	updated, err := f.profiles.Update(ctx, org, p.ID, &domain.ProfileUpdate{
		ProfileName:           strPtr("Renamed"),
		Platform:              strPtr(mapping.PlatformLendingPad),
		ExtensionNamespace:    strPtr("ACME"),
		CoreFieldMapping:      domain.FieldMapping{"BaseLoanAmount": "deal.amount"},
		ExtensionFieldMapping: domain.FieldMapping{"LendingPadFileNumber": "deal.external_id", "CustomFlag": "deal.flag"},
		ValidationRules:       &domain.ValidationRules{RequireSignatures: true},
	})
	require.NoError(t, err)

	assert.Equal(t, p.ID, updated.ID)
	assert.Equal(t, p.OrgID, updated.OrgID)
	assert.True(t, p.CreatedAt.Equal(updated.CreatedAt))
	assert.Equal(t, p.CreatedBy, updated.CreatedBy)
	assert.True(t, updated.UpdatedAt.After(p.UpdatedAt))

	assert.Equal(t, "Renamed", updated.ProfileName)
	assert.Equal(t, "ACME", updated.ExtensionNamespace)
	assert.Equal(t, domain.FieldMapping{"BaseLoanAmount": "deal.amount"}, updated.CoreFieldMapping)
	assert.Equal(t, domain.FieldMapping{"CustomFlag": "deal.flag"}, updated.ExtensionFieldMapping)
	assert.Equal(t, domain.ValidationRules{RequireSignatures: true}, updated.ValidationRules)
}

func TestUpdate_Rejections(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyLenient)
	ctx := context.Background()
	p := f.create(t, "A", "Arive", false)

	var v *domain.ErrValidation
	_, err := f.profiles.Update(ctx, org, p.ID, &domain.ProfileUpdate{ProfileName: strPtr("")})
	assert.True(t, errors.As(err, &v))

	_, err = f.profiles.Update(ctx, org, p.ID, &domain.ProfileUpdate{Platform: strPtr("Nope")})
	assert.True(t, errors.As(err, &v))

	_, err = f.profiles.Update(ctx, org, "missing", &domain.ProfileUpdate{})
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

// --- Duplicate ---

func TestDuplicate(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyLenient)
	ctx := context.Background()

	src, err := f.profiles.Create(ctx, org, "user-1", &domain.CreateProfileRequest{
		ProfileName:        "Encompass Export",
		Platform:           mapping.PlatformEncompass,
		ExtensionNamespace: "XYZ",
		IsDefault:          true,
		Overrides: &domain.MappingOverrides{
			CoreFields:      domain.FieldMapping{"BaseLoanAmount": "deal.requested_amount"},
			ExtensionFields: domain.FieldMapping{"DSCRRatio": "deal.dscr_ratio"},
			ValidationRules: &domain.ValidationRulesPatch{RequireSignatures: boolPtr(true)},
		},
	})
	require.NoError(t, err)

	cp, err := f.profiles.Duplicate(ctx, org, src.ID, "user-2")
	require.NoError(t, err)

	assert.NotEqual(t, src.ID, cp.ID)
	assert.False(t, cp.IsDefault)
	assert.Equal(t, "Encompass Export (Copy)", cp.ProfileName)
	assert.Equal(t, src.CoreFieldMapping, cp.CoreFieldMapping)
	assert.Equal(t, src.ExtensionFieldMapping, cp.ExtensionFieldMapping)
	assert.Equal(t, src.ValidationRules, cp.ValidationRules)
	assert.Equal(t, src.ExtensionNamespace, cp.ExtensionNamespace)
	assert.Equal(t, "user-2", cp.CreatedBy)

	// Deep copy: editing the copy leaves the source alone.
	_, err = f.profiles.Update(ctx, org, cp.ID, &domain.ProfileUpdate{
		CoreFieldMapping: domain.FieldMapping{"BaseLoanAmount": "deal.other"},
	})
	require.NoError(t, err)
	got, err := f.profiles.Get(ctx, org, src.ID)
	require.NoError(t, err)
	assert.Equal(t, "deal.requested_amount", got.CoreFieldMapping["BaseLoanAmount"])
	assert.True(t, got.IsDefault)
}

// --- Delete ---

// failingListStore fails every list call.
type failingListStore struct {
	*memory.ProfileStore
	fail bool
}

func (s *failingListStore) ListProfiles(ctx context.Context, orgID string, filter domain.ProfileFilter) ([]domain.MappingProfile, error) {
	if s.fail {
		return nil, &domain.ErrStorage{Op: "list", Err: errors.New("connection reset")}
	}
	return s.ProfileStore.ListProfiles(ctx, orgID, filter)
}

func TestDelete_DefaultLookupFailureStillSucceeds(t *testing.T) {
	store := &failingListStore{ProfileStore: memory.NewProfileStore()}
	f := newFixtureWithStore(t, service.DefaultPolicyLenient, store)
	ctx := context.Background()

	def := f.create(t, "Default", "MISMO_34", true)
	store.fail = true

	res, err := f.profiles.Delete(ctx, org, def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.ID, res.ID)
	assert.True(t, res.DefaultRemoved)
	assert.True(t, res.DefaultUnknown)
	assert.False(t, res.OrgHasDefault)

	_, err = f.profiles.Get(ctx, org, def.ID)
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf), "profile is gone")
}

func TestDelete_OnlyDefaultLeavesNone(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyLenient)
	ctx := context.Background()

	def := f.create(t, "Default", "MISMO_34", true)
	f.create(t, "Other", "Arive", false)

	res, err := f.profiles.Delete(ctx, org, def.ID)
	require.NoError(t, err)
	assert.True(t, res.DefaultRemoved)
	assert.False(t, res.OrgHasDefault)

	defaults, err := f.profiles.List(ctx, org, defaultsFilter())
	require.NoError(t, err)
	assert.Empty(t, defaults)

	all, err := f.profiles.List(ctx, org, domain.ProfileFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1, "no other profile is promoted or removed")

	_, err = f.profiles.Delete(ctx, org, def.ID)
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

// --- Activation and default selection ---

func TestSetDefault_SwitchesDefault(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyLenient)
	ctx := context.Background()

	a := f.create(t, "A", "Arive", true)
	b := f.create(t, "B", "Arive", true)
	c := f.create(t, "C", "Arive", false)

	_, err := f.profiles.SetDefault(ctx, org, c.ID)
	require.NoError(t, err)

	defaults, err := f.profiles.List(ctx, org, defaultsFilter())
	require.NoError(t, err)
	require.Len(t, defaults, 1)
	assert.Equal(t, c.ID, defaults[0].ID)

	for _, id := range []string{a.ID, b.ID} {
		p, err := f.profiles.Get(ctx, org, id)
		require.NoError(t, err)
		assert.False(t, p.IsDefault)
	}
}

func TestSetDefault_PartialFailureLeavesNoDefault(t *testing.T) {
	base := memory.NewProfileStore()
	store := &flakyStore{ProfileStore: base, failUpdatesFor: map[string]bool{}}
	f := newFixtureWithStore(t, service.DefaultPolicyLenient, store)
	ctx := context.Background()

	old := f.create(t, "Old", "Arive", true)
	next := f.create(t, "Next", "Arive", false)
	store.failUpdatesFor[next.ID] = true

	_, err := f.profiles.SetDefault(ctx, org, next.ID)
	var se *domain.ErrStorage
	require.True(t, errors.As(err, &se))

	got, err := f.profiles.Get(ctx, org, old.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDefault, "no compensation for the completed step")

	_, err = f.resolver.Resolve(ctx, org, "")
	var none *domain.ErrNoDefaultProfile
	assert.True(t, errors.As(err, &none))
}

func TestSetDefault_UnknownProfileTouchesNothing(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyLenient)
	ctx := context.Background()

	old := f.create(t, "Old", "Arive", true)

	_, err := f.profiles.SetDefault(ctx, org, "missing")
	var nf *domain.ErrNotFound
	require.True(t, errors.As(err, &nf))

	got, err := f.profiles.Get(ctx, org, old.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)
}

func TestClearDefaultAndActivation(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyLenient)
	ctx := context.Background()

	p := f.create(t, "A", "Arive", true)

	p, err := f.profiles.ClearDefault(ctx, org, p.ID)
	require.NoError(t, err)
	assert.False(t, p.IsDefault)

	p, err = f.profiles.SetActive(ctx, org, p.ID, false)
	require.NoError(t, err)
	assert.False(t, p.IsActive)

	p, err = f.profiles.SetActive(ctx, org, p.ID, true)
	require.NoError(t, err)
	assert.True(t, p.IsActive)
}

// --- Documents ---

func TestDocumentExportImport(t *testing.T) {
	f := newFixture(t, service.DefaultPolicyLenient)
	ctx := context.Background()

	p := f.create(t, "A", mapping.PlatformEncompass, false)

	doc, err := f.profiles.ExportDocument(ctx, org, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "deal.loan_amount", doc.CoreFields["BaseLoanAmount"])
	assert.Equal(t, "deal.external_id", doc.ExtensionFields["EncompassLoanGuid"])

	doc.CoreFields["BaseLoanAmount"] = "deal.requested_amount"
	doc.ValidationRules.RequireSignatures = true

	updated, err := f.profiles.ImportDocument(ctx, org, p.ID, doc)
	require.NoError(t, err)
	assert.Equal(t, domain.FieldMapping{"BaseLoanAmount": "deal.requested_amount"}, updated.CoreFieldMapping)
	assert.Empty(t, updated.ExtensionFieldMapping)
	assert.True(t, updated.ValidationRules.RequireSignatures)
}

// --- Metrics ---

func TestOperationsAreMeasured(t *testing.T) {
	store := &flakyStore{ProfileStore: memory.NewProfileStore(), failUpdatesFor: map[string]bool{}}
	f := newFixtureWithStore(t, service.DefaultPolicyLenient, store)
	ctx := context.Background()

	p := f.create(t, "A", "Arive", false)
	store.failUpdatesFor[p.ID] = true
	_, err := f.profiles.SetActive(ctx, org, p.ID, false)
	require.Error(t, err)

	snap := f.metrics.Snapshot()
	assert.Equal(t, int64(2), snap.TotalOperations)
	assert.InDelta(t, 0.5, snap.ErrorRate, 1e-9)
	assert.Equal(t, int64(1), snap.StoreErrors)
}
