package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lendgrid/export-profiles/internal/domain"
	"github.com/lendgrid/export-profiles/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Mapping profiles store: implements port.ProfileStore
// ============================================================

// profileRow maps PostgREST columns to the domain profile. The mapping
// tables and the rule set are jsonb columns.
type profileRow struct {
	ID                    string                 `json:"id"`
	OrgID                 string                 `json:"org_id"`
	ProfileName           string                 `json:"profile_name"`
	Platform              string                 `json:"platform"`
	SchemaVersion         string                 `json:"schema_version"`
	ExtensionNamespace    string                 `json:"extension_namespace"`
	IsActive              bool                   `json:"is_active"`
	IsDefault             bool                   `json:"is_default"`
	CoreFieldMapping      domain.FieldMapping    `json:"core_field_mapping"`
	ExtensionFieldMapping domain.FieldMapping    `json:"extension_field_mapping"`
	ValidationRules       domain.ValidationRules `json:"validation_rules"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
	CreatedBy             string                 `json:"created_by"`
}

func (r profileRow) toDomain() domain.MappingProfile {
	core := r.CoreFieldMapping
	if core == nil {
		core = domain.FieldMapping{}
	}
	ext := r.ExtensionFieldMapping
	if ext == nil {
		ext = domain.FieldMapping{}
	}
	return domain.MappingProfile{
		ID:                    r.ID,
		OrgID:                 r.OrgID,
		ProfileName:           r.ProfileName,
		Platform:              r.Platform,
		SchemaVersion:         r.SchemaVersion,
		ExtensionNamespace:    r.ExtensionNamespace,
		IsActive:              r.IsActive,
		IsDefault:             r.IsDefault,
		CoreFieldMapping:      core,
		ExtensionFieldMapping: ext,
		ValidationRules:       r.ValidationRules,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
		CreatedBy:             r.CreatedBy,
	}
}

// mutableColumns are the columns an update may touch.
func mutableColumns(p *domain.MappingProfile) map[string]any {
	return map[string]any{
		"profile_name":            p.ProfileName,
		"platform":                p.Platform,
		"schema_version":          p.SchemaVersion,
		"extension_namespace":     p.ExtensionNamespace,
		"is_active":               p.IsActive,
		"is_default":              p.IsDefault,
		"core_field_mapping":      p.CoreFieldMapping,
		"extension_field_mapping": p.ExtensionFieldMapping,
		"validation_rules":        p.ValidationRules,
		"updated_at":              p.UpdatedAt,
	}
}

func decodeRows(body []byte) ([]domain.MappingProfile, error) {
	if len(body) == 0 {
		return []domain.MappingProfile{}, nil
	}
	var rows []profileRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", DefaultTable, err)
	}
	out := make([]domain.MappingProfile, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func eq(v string) string {
	return "eq." + url.QueryEscape(v)
}

func (c *Client) byID(orgID, id string) string {
	return fmt.Sprintf("%s?id=%s&org_id=%s", c.table, eq(id), eq(orgID))
}

func (c *Client) CreateProfile(ctx context.Context, p *domain.MappingProfile) (*domain.MappingProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateProfile")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", p.OrgID), attribute.String("profile.id", p.ID))

	data := mutableColumns(p)
	data["id"] = p.ID
	data["org_id"] = p.OrgID
	data["created_at"] = p.CreatedAt
	data["created_by"] = p.CreatedBy

	res, err := c.cb.Execute(func() (any, error) {
		body, err := c.doRequest(ctx, http.MethodPost, c.table, data)
		if err != nil {
			return nil, err
		}
		return decodeRows(body)
	})
	if err != nil {
		return nil, storeError("create", err)
	}

	rows := res.([]domain.MappingProfile)
	if len(rows) == 0 {
		return p.Clone(), nil
	}
	c.logger.Debug("supabase: profile created", zap.String("profile_id", p.ID))
	return &rows[0], nil
}

func (c *Client) ListProfiles(ctx context.Context, orgID string, filter domain.ProfileFilter) ([]domain.MappingProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListProfiles")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID))

	path := fmt.Sprintf("%s?org_id=%s", c.table, eq(orgID))
	if filter.IsDefault != nil {
		path += "&is_default=eq." + strconv.FormatBool(*filter.IsDefault)
	}
	if filter.IsActive != nil {
		path += "&is_active=eq." + strconv.FormatBool(*filter.IsActive)
	}
	path += "&order=created_at.asc"

	var profiles []domain.MappingProfile
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.doRequest(ctx, http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			rows, err := decodeRows(body)
			if err != nil {
				return resilience.Permanent(err)
			}
			profiles = rows
			return nil
		})
	})
	if err != nil {
		return nil, storeError("list", err)
	}
	return profiles, nil
}

func (c *Client) GetProfile(ctx context.Context, orgID, id string) (*domain.MappingProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetProfile")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("profile.id", id))

	path := c.byID(orgID, id) + "&limit=1"

	var profile *domain.MappingProfile
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.doRequest(ctx, http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			rows, err := decodeRows(body)
			if err != nil {
				return resilience.Permanent(err)
			}
			if len(rows) == 0 {
				return resilience.Permanent(&domain.ErrNotFound{Resource: "mapping_profile", ID: id})
			}
			profile = &rows[0]
			return nil
		})
	})
	if err != nil {
		return nil, storeError("get", err)
	}
	return profile, nil
}

func (c *Client) UpdateProfile(ctx context.Context, p *domain.MappingProfile) (*domain.MappingProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateProfile")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", p.OrgID), attribute.String("profile.id", p.ID))

	res, err := c.cb.Execute(func() (any, error) {
		body, err := c.doRequest(ctx, http.MethodPatch, c.byID(p.OrgID, p.ID), mutableColumns(p))
		if err != nil {
			return nil, err
		}
		rows, err := decodeRows(body)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, &domain.ErrNotFound{Resource: "mapping_profile", ID: p.ID}
		}
		return &rows[0], nil
	})
	if err != nil {
		return nil, storeError("update", err)
	}
	return res.(*domain.MappingProfile), nil
}

func (c *Client) DeleteProfile(ctx context.Context, orgID, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteProfile")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("profile.id", id))

	_, err := c.cb.Execute(func() (any, error) {
		body, err := c.doRequest(ctx, http.MethodDelete, c.byID(orgID, id), nil)
		if err != nil {
			return nil, err
		}
		rows, err := decodeRows(body)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, &domain.ErrNotFound{Resource: "mapping_profile", ID: id}
		}
		return nil, nil
	})
	return storeError("delete", err)
}

// Ping checks that PostgREST answers for the profiles table.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, c.table+"?select=id&limit=1", nil)
	return err
}
