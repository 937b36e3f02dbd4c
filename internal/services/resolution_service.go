package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"comfydeps/internal/graph"
	"comfydeps/internal/loaders"
	"comfydeps/internal/nodes"
	"comfydeps/internal/observability"
	"comfydeps/internal/registry"
	"comfydeps/internal/repository"
	"comfydeps/internal/workflow"
	"comfydeps/pkg/models"
)

// ErrNoStore is returned when persistence is requested without a store.
var ErrNoStore = errors.New("no resolution store configured")

// ResolveOptions tunes one resolution.
type ResolveOptions struct {
	Snapshot                *models.Snapshot
	PullLatestHashIfMissing bool
	IncludeNodeList         bool
	// ManualRepos is merged over the service-wide overrides.
	ManualRepos map[string]string
	// ExistingFiles replaces the store's file table for upload dedup.
	ExistingFiles map[string][]models.FileReference
	WorkflowName  string
	CreatedBy     string
	Persist       bool
}

// ResolutionService runs a workflow through normalization, file extraction,
// custom-node resolution and assembly.
type ResolutionService struct {
	registry    registry.Source
	nodes       NodeResolver
	files       FileExtractor
	modelTable  loaders.Table
	inputTable  loaders.Table
	layouts     workflow.Layouts
	manualRepos map[string]string
	store       repository.ResolutionStore
	metrics     *observability.Metrics
	logger      Logger
	timeout     time.Duration
}

// Option configures a ResolutionService.
type Option func(*ResolutionService)

// WithTables replaces the builtin loader tables.
func WithTables(modelTable, inputTable loaders.Table) Option {
	return func(s *ResolutionService) {
		s.modelTable = modelTable
		s.inputTable = inputTable
	}
}

// WithStore enables persistence and store-backed upload dedup.
func WithStore(store repository.ResolutionStore) Option {
	return func(s *ResolutionService) { s.store = store }
}

// WithMetrics records every run on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *ResolutionService) { s.metrics = m }
}

// WithTimeout bounds every resolution.
func WithTimeout(d time.Duration) Option {
	return func(s *ResolutionService) { s.timeout = d }
}

// WithManualRepos sets service-wide node type to source URL overrides.
func WithManualRepos(repos map[string]string) Option {
	return func(s *ResolutionService) { s.manualRepos = repos }
}

// NewResolutionService creates a new ResolutionService.
func NewResolutionService(source registry.Source, resolver NodeResolver, extractor FileExtractor, logger Logger, opts ...Option) *ResolutionService {
	s := &ResolutionService{
		registry:   source,
		nodes:      resolver,
		files:      extractor,
		modelTable: loaders.Models,
		inputTable: loaders.Inputs,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.layouts = s.modelTable.Layouts().Merge(s.inputTable.Layouts(), nodes.SamplerLayouts)
	return s
}

// Resolve derives the dependency graph of a serialized workflow in either
// shape. A malformed document wraps workflow.ErrMalformed and an unreachable
// registry wraps registry.ErrUnavailable.
func (s *ResolutionService) Resolve(ctx context.Context, data []byte, opts ResolveOptions) (res *models.Resolution, err error) {
	start := time.Now()
	format := "unknown"
	recordCtx := context.WithoutCancel(ctx)
	defer func() {
		s.metrics.RecordResolution(recordCtx, format, time.Since(start).Seconds(), err)
	}()

	if opts.Persist && s.store == nil {
		return nil, ErrNoStore
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	wf, err := workflow.Parse(data, s.layouts)
	if err != nil {
		return nil, err
	}
	format = string(wf.Format)

	reg, err := s.registry.Load(ctx)
	if err != nil {
		return nil, err
	}

	existing := opts.ExistingFiles
	if existing == nil && s.store != nil {
		if existing, err = s.store.FileReferences(ctx); err != nil {
			return nil, fmt.Errorf("failed to load file references: %w", err)
		}
	}

	var (
		modelFiles map[string][]models.FileReference
		inputFiles map[string][]models.FileReference
		nodeResult *nodes.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		modelFiles, err = s.files.Extract(gctx, wf.Nodes, s.modelTable, existing)
		return err
	})
	g.Go(func() error {
		var err error
		inputFiles, err = s.files.Extract(gctx, wf.Nodes, s.inputTable, existing)
		return err
	})
	g.Go(func() error {
		var err error
		nodeResult, err = s.nodes.Resolve(gctx, wf.Nodes, reg, nodes.Options{
			Snapshot:                opts.Snapshot,
			PullLatestHashIfMissing: opts.PullLatestHashIfMissing,
			IncludeNodeList:         opts.IncludeNodeList,
			ManualRepos:             mergeRepos(s.manualRepos, opts.ManualRepos),
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.metrics.RecordNodeOutcome(ctx, len(nodeResult.Conflicts), len(nodeResult.MissingNodes))
	if len(nodeResult.MissingNodes) > 0 {
		s.logger.Warn("workflow uses node types no package provides", "missing", nodeResult.MissingNodes)
	}

	res = &models.Resolution{
		ID:           uuid.New().String(),
		WorkflowName: opts.WorkflowName,
		Format:       wf.Format,
		Graph:        graph.Assemble(nodeResult, inputFiles, modelFiles, opts.Snapshot),
		CreatedBy:    opts.CreatedBy,
		CreatedAt:    time.Now().UTC(),
	}

	if opts.Persist {
		if err := s.store.SaveResolution(ctx, res); err != nil {
			return nil, fmt.Errorf("failed to save resolution: %w", err)
		}
	}

	s.logger.Info("workflow resolved",
		"id", res.ID,
		"format", res.Format,
		"custom_nodes", res.Graph.CustomNodes.Len(),
		"missing", len(res.Graph.MissingNodes),
		"duration", time.Since(start))
	return res, nil
}

// GetResolution returns a persisted resolution.
func (s *ResolutionService) GetResolution(ctx context.Context, id string) (*models.Resolution, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.GetResolution(ctx, id)
}

// ListResolutions returns the most recent persisted resolutions.
func (s *ResolutionService) ListResolutions(ctx context.Context, limit int) ([]*models.Resolution, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.ListResolutions(ctx, limit)
}

// Checks reports the state of the service's dependencies for health output.
func (s *ResolutionService) Checks(ctx context.Context) map[string]string {
	checks := map[string]string{}
	if s.store == nil {
		checks["database"] = "disabled"
	} else if err := s.store.Ping(ctx); err != nil {
		checks["database"] = "error: " + err.Error()
	} else {
		checks["database"] = "ok"
	}
	return checks
}

func mergeRepos(base, override map[string]string) map[string]string {
	if len(override) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
