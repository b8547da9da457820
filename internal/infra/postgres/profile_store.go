package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/lendgrid/export-profiles/internal/domain"
)

var tracer = otel.Tracer("postgres")

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const profileColumns = `id, org_id, profile_name, platform, schema_version, extension_namespace,
	is_active, is_default, core_field_mapping, extension_field_mapping, validation_rules,
	created_at, updated_at, created_by`

// ProfileStore implements port.ProfileStore on a Postgres table.
type ProfileStore struct {
	db     DB
	logger *zap.Logger
}

// NewProfileStore returns a Postgres-backed profile store.
func NewProfileStore(db DB, logger *zap.Logger) *ProfileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileStore{db: db, logger: logger}
}

func (s *ProfileStore) CreateProfile(ctx context.Context, p *domain.MappingProfile) (*domain.MappingProfile, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateProfile")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", p.OrgID), attribute.String("profile.id", p.ID))

	core, ext, rules, err := marshalTables(p)
	if err != nil {
		return nil, storeError("create", err)
	}

	const query = `
	INSERT INTO mismo_mapping_profiles (` + profileColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	RETURNING ` + profileColumns

	row := s.db.QueryRow(ctx, query,
		p.ID,
		p.OrgID,
		p.ProfileName,
		p.Platform,
		p.SchemaVersion,
		p.ExtensionNamespace,
		p.IsActive,
		p.IsDefault,
		core,
		ext,
		rules,
		p.CreatedAt,
		p.UpdatedAt,
		p.CreatedBy,
	)
	created, err := scanProfile(row)
	if err != nil {
		return nil, storeError("create", err)
	}
	return created, nil
}

func (s *ProfileStore) ListProfiles(ctx context.Context, orgID string, filter domain.ProfileFilter) ([]domain.MappingProfile, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListProfiles")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID))

	const query = `
	SELECT ` + profileColumns + `
	FROM mismo_mapping_profiles
	WHERE org_id = $1
	  AND ($2::boolean IS NULL OR is_default = $2)
	  AND ($3::boolean IS NULL OR is_active = $3)
	ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.Query(ctx, query, orgID, filter.IsDefault, filter.IsActive)
	if err != nil {
		return nil, storeError("list", err)
	}
	defer rows.Close()

	profiles := make([]domain.MappingProfile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, storeError("list", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list", err)
	}
	return profiles, nil
}

func (s *ProfileStore) GetProfile(ctx context.Context, orgID, id string) (*domain.MappingProfile, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetProfile")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("profile.id", id))

	const query = `
	SELECT ` + profileColumns + `
	FROM mismo_mapping_profiles
	WHERE id = $1 AND org_id = $2
	`
	p, err := scanProfile(s.db.QueryRow(ctx, query, id, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "mapping_profile", ID: id}
	}
	if err != nil {
		return nil, storeError("get", err)
	}
	return p, nil
}

func (s *ProfileStore) UpdateProfile(ctx context.Context, p *domain.MappingProfile) (*domain.MappingProfile, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateProfile")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", p.OrgID), attribute.String("profile.id", p.ID))

	core, ext, rules, err := marshalTables(p)
	if err != nil {
		return nil, storeError("update", err)
	}

	const query = `
	UPDATE mismo_mapping_profiles
	SET profile_name = $3,
		platform = $4,
		schema_version = $5,
		extension_namespace = $6,
		is_active = $7,
		is_default = $8,
		core_field_mapping = $9,
		extension_field_mapping = $10,
		validation_rules = $11,
		updated_at = $12
	WHERE id = $1 AND org_id = $2
	RETURNING ` + profileColumns

	updated, err := scanProfile(s.db.QueryRow(ctx, query,
		p.ID,
		p.OrgID,
		p.ProfileName,
		p.Platform,
		p.SchemaVersion,
		p.ExtensionNamespace,
		p.IsActive,
		p.IsDefault,
		core,
		ext,
		rules,
		p.UpdatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "mapping_profile", ID: p.ID}
	}
	if err != nil {
		return nil, storeError("update", err)
	}
	return updated, nil
}

func (s *ProfileStore) DeleteProfile(ctx context.Context, orgID, id string) error {
	ctx, span := tracer.Start(ctx, "Postgres.DeleteProfile")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("profile.id", id))

	const query = `DELETE FROM mismo_mapping_profiles WHERE id = $1 AND org_id = $2`
	tag, err := s.db.Exec(ctx, query, id, orgID)
	if err != nil {
		return storeError("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "mapping_profile", ID: id}
	}
	return nil
}

func (s *ProfileStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func storeError(op string, err error) error {
	return &domain.ErrStorage{Op: "postgres/" + op, Err: err}
}

func marshalTables(p *domain.MappingProfile) (core, ext, rules []byte, err error) {
	if core, err = marshalMapping(p.CoreFieldMapping); err != nil {
		return nil, nil, nil, err
	}
	if ext, err = marshalMapping(p.ExtensionFieldMapping); err != nil {
		return nil, nil, nil, err
	}
	if rules, err = json.Marshal(p.ValidationRules); err != nil {
		return nil, nil, nil, err
	}
	return core, ext, rules, nil
}

func marshalMapping(m domain.FieldMapping) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func scanProfile(row interface {
	Scan(dest ...any) error
}) (*domain.MappingProfile, error) {
	var (
		p                domain.MappingProfile
		core, ext, rules []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.OrgID,
		&p.ProfileName,
		&p.Platform,
		&p.SchemaVersion,
		&p.ExtensionNamespace,
		&p.IsActive,
		&p.IsDefault,
		&core,
		&ext,
		&rules,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.CreatedBy,
	); err != nil {
		return nil, err
	}

	p.CoreFieldMapping = domain.FieldMapping{}
	p.ExtensionFieldMapping = domain.FieldMapping{}
	if len(core) > 0 {
		if err := json.Unmarshal(core, &p.CoreFieldMapping); err != nil {
			return nil, err
		}
	}
	if len(ext) > 0 {
		if err := json.Unmarshal(ext, &p.ExtensionFieldMapping); err != nil {
			return nil, err
		}
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &p.ValidationRules); err != nil {
			return nil, err
		}
	}
	return &p, nil
}
