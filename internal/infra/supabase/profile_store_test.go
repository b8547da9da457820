package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lendgrid/export-profiles/internal/domain"
	"github.com/lendgrid/export-profiles/internal/infra/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakePostgREST understands the handful of eq. filters the store sends.
type fakePostgREST struct {
	mu       sync.Mutex
	rows     []map[string]any
	gets     int
	failGets int
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("apikey") == "" || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	match := func(row map[string]any) bool {
		for _, col := range []string{"id", "org_id", "is_default", "is_active"} {
			v := r.URL.Query().Get(col)
			if v == "" {
				continue
			}
			want := strings.TrimPrefix(v, "eq.")
			got, _ := json.Marshal(row[col])
			if strings.Trim(string(got), `"`) != want {
				return false
			}
		}
		return true
	}

	var out []map[string]any
	switch r.Method {
	case http.MethodGet:
		f.gets++
		if f.gets <= f.failGets {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		for _, row := range f.rows {
			if match(row) {
				out = append(out, row)
			}
		}
	case http.MethodPost:
		var row map[string]any
		_ = json.NewDecoder(r.Body).Decode(&row)
		f.rows = append(f.rows, row)
		out = append(out, row)
	case http.MethodPatch:
		var patch map[string]any
		_ = json.NewDecoder(r.Body).Decode(&patch)
		for _, row := range f.rows {
			if match(row) {
				for k, v := range patch {
					row[k] = v
				}
				out = append(out, row)
			}
		}
	case http.MethodDelete:
		kept := f.rows[:0]
		for _, row := range f.rows {
			if match(row) {
				out = append(out, row)
				continue
			}
			kept = append(kept, row)
		}
		f.rows = kept
	}
	if out == nil {
		out = []map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func newTestClient(t *testing.T, fake *fakePostgREST) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 4}
	cb := resilience.NewCircuitBreaker("supabase-test", IsBreakerSuccess)
	return NewClient(srv.Client(), srv.URL, "anon", "service", "", cb, cfg, zap.NewNop())
}

func testProfile(id, org string, isDefault bool) *domain.MappingProfile {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &domain.MappingProfile{
		ID:                    id,
		OrgID:                 org,
		ProfileName:           "Encompass Export",
		Platform:              "Encompass",
		SchemaVersion:         "3.4",
		ExtensionNamespace:    "LG",
		IsActive:              true,
		IsDefault:             isDefault,
		CoreFieldMapping:      domain.FieldMapping{"BaseLoanAmount": "deal.requested_amount"},
		ExtensionFieldMapping: domain.FieldMapping{},
		ValidationRules:       domain.ValidationRules{RequireAllBorrowers: true},
		CreatedAt:             now,
		UpdatedAt:             now,
		CreatedBy:             "user-1",
	}
}

func TestSupabaseStore_CreateGetList(t *testing.T) {
	client := newTestClient(t, &fakePostgREST{})
	ctx := context.Background()

	created, err := client.CreateProfile(ctx, testProfile("p1", "org-1", true))
	require.NoError(t, err)
	assert.Equal(t, "deal.requested_amount", created.CoreFieldMapping["BaseLoanAmount"])

	_, err = client.CreateProfile(ctx, testProfile("p2", "org-1", false))
	require.NoError(t, err)
	_, err = client.CreateProfile(ctx, testProfile("p3", "org-2", true))
	require.NoError(t, err)

	got, err := client.GetProfile(ctx, "org-1", "p1")
	require.NoError(t, err)
	assert.True(t, got.ValidationRules.RequireAllBorrowers)
	assert.Equal(t, "user-1", got.CreatedBy)

	all, err := client.ListProfiles(ctx, "org-1", domain.ProfileFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	yes := true
	defaults, err := client.ListProfiles(ctx, "org-1", domain.ProfileFilter{IsDefault: &yes})
	require.NoError(t, err)
	require.Len(t, defaults, 1)
	assert.Equal(t, "p1", defaults[0].ID)
}

func TestSupabaseStore_GetOtherOrgIsNotFound(t *testing.T) {
	client := newTestClient(t, &fakePostgREST{})
	ctx := context.Background()

	_, err := client.CreateProfile(ctx, testProfile("p1", "org-1", false))
	require.NoError(t, err)

	_, err = client.GetProfile(ctx, "org-2", "p1")
	var notFound *domain.ErrNotFound
	require.True(t, errors.As(err, &notFound))
}

func TestSupabaseStore_UpdateAndDelete(t *testing.T) {
	client := newTestClient(t, &fakePostgREST{})
	ctx := context.Background()

	p := testProfile("p1", "org-1", false)
	_, err := client.CreateProfile(ctx, p)
	require.NoError(t, err)

	p.ProfileName = "Renamed"
	p.IsDefault = true
	updated, err := client.UpdateProfile(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.ProfileName)
	assert.True(t, updated.IsDefault)

	require.NoError(t, client.DeleteProfile(ctx, "org-1", "p1"))

	err = client.DeleteProfile(ctx, "org-1", "p1")
	var notFound *domain.ErrNotFound
	assert.True(t, errors.As(err, &notFound))

	_, err = client.UpdateProfile(ctx, p)
	assert.True(t, errors.As(err, &notFound))
}

func TestSupabaseStore_ReadsAreRetried(t *testing.T) {
	fake := &fakePostgREST{failGets: 2}
	client := newTestClient(t, fake)

	profiles, err := client.ListProfiles(context.Background(), "org-1", domain.ProfileFilter{})
	require.NoError(t, err)
	assert.Empty(t, profiles)
	assert.Equal(t, 3, fake.gets)
}

func TestSupabaseStore_FailuresAreStorageErrors(t *testing.T) {
	fake := &fakePostgREST{failGets: 100}
	client := newTestClient(t, fake)

	_, err := client.ListProfiles(context.Background(), "org-1", domain.ProfileFilter{})
	var storageErr *domain.ErrStorage
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "supabase/list", storageErr.Op)
}
