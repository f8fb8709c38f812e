package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
)

// Schema creates the instantiation table.
const Schema = `CREATE TABLE IF NOT EXISTS template_instantiations (
	id UUID PRIMARY KEY,
	template_id TEXT NOT NULL,
	template_version TEXT NOT NULL,
	user_id TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	resources JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS template_instantiations_user_idx
	ON template_instantiations (user_id, created_at DESC);`

const selectColumns = "SELECT id, template_id, template_version, user_id, workspace_id, resources, created_at FROM template_instantiations"

// PostgresInstantiationStore is a PostgreSQL implementation of the InstantiationStore interface.
type PostgresInstantiationStore struct {
	db *pgxpool.Pool
}

// NewPostgresInstantiationStore creates a new PostgresInstantiationStore.
func NewPostgresInstantiationStore(db *pgxpool.Pool) *PostgresInstantiationStore {
	return &PostgresInstantiationStore{db: db}
}

// Migrate creates the table when it does not exist.
func (s *PostgresInstantiationStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate instantiation schema: %w", err)
	}
	return nil
}

// Save saves an instantiation record.
func (s *PostgresInstantiationStore) Save(ctx context.Context, inst *models.Instantiation) error {
	resources, err := json.Marshal(inst.Resources)
	if err != nil {
		return fmt.Errorf("failed to marshal resources: %w", err)
	}
	_, err = s.db.Exec(ctx,
		"INSERT INTO template_instantiations (id, template_id, template_version, user_id, workspace_id, resources, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		inst.ID, inst.TemplateID, inst.TemplateVersion, inst.UserID, inst.WorkspaceID, resources, inst.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save instantiation %s: %w", inst.ID, err)
	}
	return nil
}

// Get retrieves an instantiation by its ID.
func (s *PostgresInstantiationStore) Get(ctx context.Context, id string) (*models.Instantiation, error) {
	inst, err := scanInstantiation(s.db.QueryRow(ctx, selectColumns+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return inst, err
}

// ListByUser returns the user's instantiations, newest first.
func (s *PostgresInstantiationStore) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Instantiation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, selectColumns+" WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2", userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list instantiations: %w", err)
	}
	defer rows.Close()

	var out []*models.Instantiation
	for rows.Next() {
		inst, err := scanInstantiation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// Ping checks the connection.
func (s *PostgresInstantiationStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanInstantiation(row pgx.Row) (*models.Instantiation, error) {
	var (
		inst      models.Instantiation
		resources []byte
	)
	if err := row.Scan(&inst.ID, &inst.TemplateID, &inst.TemplateVersion, &inst.UserID,
		&inst.WorkspaceID, &resources, &inst.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resources, &inst.Resources); err != nil {
		return nil, fmt.Errorf("failed to decode resources of %s: %w", inst.ID, err)
	}
	return &inst, nil
}
