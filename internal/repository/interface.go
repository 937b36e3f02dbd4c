package repository

import (
	"context"
	"errors"

	"comfydeps/pkg/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ResolutionStore persists resolution records and the file reference table
// consulted to avoid re-uploading unchanged files.
type ResolutionStore interface {
	// SaveResolution stores a resolution and upserts its file references.
	SaveResolution(ctx context.Context, resolution *models.Resolution) error
	// GetResolution retrieves a resolution by its ID.
	GetResolution(ctx context.Context, id string) (*models.Resolution, error)
	// ListResolutions returns the most recent resolutions, newest first.
	ListResolutions(ctx context.Context, limit int) ([]*models.Resolution, error)
	// FileReferences returns every known file reference grouped by category.
	FileReferences(ctx context.Context) (map[string][]models.FileReference, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
