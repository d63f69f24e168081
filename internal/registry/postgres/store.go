// Package postgres implements the tenant registry on PostgreSQL, using an
// optimistic-lock generation column as the compare-and-swap primitive.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"tenantd/internal/registry"
)

const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id         TEXT PRIMARY KEY,
	record     JSONB NOT NULL,
	state      TEXT NOT NULL,
	generation BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

type store struct {
	db *sqlx.DB
}

// Open connects to PostgreSQL, ensures the schema exists, and returns a
// Registry backed by it.
func Open(ctx context.Context, dsn string) (registry.Registry, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to registry database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure registry schema: %w", err)
	}
	return &store{db: db}, nil
}

// New wraps an existing database handle. Used by tests that manage the
// connection themselves.
func New(db *sqlx.DB) registry.Registry {
	return &store{db: db}
}

func (s *store) Create(ctx context.Context, tenant registry.Tenant) (registry.Tenant, error) {
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = nowUTC()
	}
	tenant.LastTransitionAt = nowUTC()
	tenant.Generation = 1

	payload, err := json.Marshal(tenant)
	if err != nil {
		return registry.Tenant{}, fmt.Errorf("failed to encode tenant record: %w", err)
	}

	query := `
		INSERT INTO tenants (id, record, state, generation, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query, tenant.ID, payload, string(tenant.State), tenant.Generation, tenant.CreatedAt)
	if err != nil {
		return registry.Tenant{}, fmt.Errorf("failed to insert tenant %s: %w", tenant.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return registry.Tenant{}, fmt.Errorf("failed to read insert result for tenant %s: %w", tenant.ID, err)
	}
	if rows == 0 {
		return registry.Tenant{}, registry.ErrAlreadyExists
	}
	return tenant, nil
}

func (s *store) Get(ctx context.Context, id string) (registry.Tenant, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload, `SELECT record FROM tenants WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return registry.Tenant{}, registry.ErrNotFound
		}
		return registry.Tenant{}, fmt.Errorf("failed to get tenant %s: %w", id, err)
	}
	return decode(payload)
}

func (s *store) List(ctx context.Context) ([]registry.Tenant, error) {
	var payloads [][]byte
	err := s.db.SelectContext(ctx, &payloads, `SELECT record FROM tenants ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	tenants := make([]registry.Tenant, 0, len(payloads))
	for _, payload := range payloads {
		tenant, err := decode(payload)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, nil
}

func (s *store) CompareAndSwap(ctx context.Context, id string, expectedGeneration int64, mutate registry.Mutation) (registry.Tenant, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return registry.Tenant{}, err
	}
	if current.Generation != expectedGeneration {
		return registry.Tenant{}, registry.ErrStaleGeneration
	}

	updated := current.Clone()
	mutate(&updated)
	updated.Generation = expectedGeneration + 1
	updated.LastTransitionAt = nowUTC()

	payload, err := json.Marshal(updated)
	if err != nil {
		return registry.Tenant{}, fmt.Errorf("failed to encode tenant record: %w", err)
	}

	// The WHERE clause on generation is the actual swap; the read above only
	// produced the candidate record.
	query := `
		UPDATE tenants
		SET record = $3, state = $4, generation = $5
		WHERE id = $1 AND generation = $2`

	res, err := s.db.ExecContext(ctx, query, id, expectedGeneration, payload, string(updated.State), updated.Generation)
	if err != nil {
		return registry.Tenant{}, fmt.Errorf("failed to update tenant %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return registry.Tenant{}, fmt.Errorf("failed to read update result for tenant %s: %w", id, err)
	}
	if rows == 0 {
		return registry.Tenant{}, registry.ErrStaleGeneration
	}
	return updated, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func decode(payload []byte) (registry.Tenant, error) {
	var tenant registry.Tenant
	if err := json.Unmarshal(payload, &tenant); err != nil {
		return registry.Tenant{}, fmt.Errorf("failed to decode tenant record: %w", err)
	}
	return tenant, nil
}
