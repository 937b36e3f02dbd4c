package services

import (
	"context"

	"comfydeps/internal/loaders"
	"comfydeps/internal/nodes"
	"comfydeps/internal/registry"
	"comfydeps/pkg/models"
)

// Logger is the logging interface used by the services.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NodeResolver attributes workflow nodes to custom-node packages.
type NodeResolver interface {
	Resolve(ctx context.Context, workflowNodes []models.WorkflowNode, reg *registry.Registry, opts nodes.Options) (*nodes.Result, error)
}

// FileExtractor collects the files referenced by loader nodes.
type FileExtractor interface {
	Extract(ctx context.Context, workflowNodes []models.WorkflowNode, table loaders.Table, existing map[string][]models.FileReference) (map[string][]models.FileReference, error)
}
