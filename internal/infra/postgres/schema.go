package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS mismo_mapping_profiles (
	id                      TEXT PRIMARY KEY,
	org_id                  TEXT NOT NULL,
	profile_name            TEXT NOT NULL,
	platform                TEXT NOT NULL,
	schema_version          TEXT NOT NULL DEFAULT '3.4',
	extension_namespace     TEXT NOT NULL DEFAULT 'LG',
	is_active               BOOLEAN NOT NULL DEFAULT TRUE,
	is_default              BOOLEAN NOT NULL DEFAULT FALSE,
	core_field_mapping      JSONB NOT NULL DEFAULT '{}'::jsonb,
	extension_field_mapping JSONB NOT NULL DEFAULT '{}'::jsonb,
	validation_rules        JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_by              TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS mismo_mapping_profiles_org_idx
	ON mismo_mapping_profiles (org_id, created_at);
`

// EnsureSchema creates the profiles table when it does not exist yet.
// Several defaults per org are representable; the resolver reports them.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
