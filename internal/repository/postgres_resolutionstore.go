package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"comfydeps/pkg/models"
)

// Schema creates the tables used by PostgresResolutionStore.
const Schema = `
CREATE TABLE IF NOT EXISTS resolutions (
	id UUID PRIMARY KEY,
	workflow_name TEXT NOT NULL DEFAULT '',
	format TEXT NOT NULL,
	graph JSONB NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS resolutions_created_at_idx ON resolutions (created_at DESC);
CREATE TABLE IF NOT EXISTS file_references (
	category TEXT NOT NULL,
	name TEXT NOT NULL,
	hash TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (category, name)
);`

// PostgresResolutionStore is a PostgreSQL implementation of the ResolutionStore interface.
type PostgresResolutionStore struct {
	db *pgxpool.Pool
}

// NewPostgresResolutionStore creates a new PostgresResolutionStore.
func NewPostgresResolutionStore(db *pgxpool.Pool) *PostgresResolutionStore {
	return &PostgresResolutionStore{db: db}
}

// Migrate creates the schema if it does not exist yet.
func (s *PostgresResolutionStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *PostgresResolutionStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// SaveResolution stores a resolution and upserts every hashed file it
// references in one transaction.
func (s *PostgresResolutionStore) SaveResolution(ctx context.Context, r *models.Resolution) error {
	graph, err := json.Marshal(r.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "INSERT INTO resolutions (id, workflow_name, format, graph, created_by, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		r.ID, r.WorkflowName, string(r.Format), graph, r.CreatedBy, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert resolution: %w", err)
	}

	batch := &pgx.Batch{}
	for _, refs := range []map[string][]models.FileReference{r.Graph.Models, r.Graph.Files} {
		for category, files := range refs {
			for _, f := range files {
				if f.Hash == "" {
					continue
				}
				batch.Queue(`INSERT INTO file_references (category, name, hash, url, updated_at) VALUES ($1, $2, $3, $4, now())
					ON CONFLICT (category, name) DO UPDATE SET hash = EXCLUDED.hash, url = EXCLUDED.url, updated_at = now()`,
					category, f.Name, f.Hash, f.URL)
			}
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert file references: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetResolution retrieves a resolution by its ID.
func (s *PostgresResolutionStore) GetResolution(ctx context.Context, id string) (*models.Resolution, error) {
	row := s.db.QueryRow(ctx, "SELECT id::text, workflow_name, format, graph, created_by, created_at FROM resolutions WHERE id = $1", id)
	r, err := scanResolution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListResolutions returns the most recent resolutions, newest first.
func (s *PostgresResolutionStore) ListResolutions(ctx context.Context, limit int) ([]*models.Resolution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, "SELECT id::text, workflow_name, format, graph, created_by, created_at FROM resolutions ORDER BY created_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resolutions := []*models.Resolution{}
	for rows.Next() {
		r, err := scanResolution(rows)
		if err != nil {
			return nil, err
		}
		resolutions = append(resolutions, r)
	}
	return resolutions, rows.Err()
}

// FileReferences returns every known file reference grouped by category.
func (s *PostgresResolutionStore) FileReferences(ctx context.Context) (map[string][]models.FileReference, error) {
	rows, err := s.db.Query(ctx, "SELECT category, name, hash, url FROM file_references ORDER BY category, name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]models.FileReference)
	for rows.Next() {
		var category string
		var f models.FileReference
		if err := rows.Scan(&category, &f.Name, &f.Hash, &f.URL); err != nil {
			return nil, err
		}
		out[category] = append(out[category], f)
	}
	return out, rows.Err()
}

func scanResolution(row pgx.Row) (*models.Resolution, error) {
	var r models.Resolution
	var format string
	var graph []byte
	if err := row.Scan(&r.ID, &r.WorkflowName, &format, &graph, &r.CreatedBy, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Format = models.WorkflowFormat(format)
	if err := json.Unmarshal(graph, &r.Graph); err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}
	return &r, nil
}
