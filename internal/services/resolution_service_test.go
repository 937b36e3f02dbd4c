package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"comfydeps/internal/files"
	"comfydeps/internal/logging"
	"comfydeps/internal/nodes"
	"comfydeps/internal/registry"
	"comfydeps/internal/repository"
	"comfydeps/internal/workflow"
	"comfydeps/pkg/models"
)

// MockResolutionStore satisfies repository.ResolutionStore
type MockResolutionStore struct {
	mock.Mock
}

func (m *MockResolutionStore) SaveResolution(ctx context.Context, r *models.Resolution) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockResolutionStore) GetResolution(ctx context.Context, id string) (*models.Resolution, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*models.Resolution)
	return r, args.Error(1)
}

func (m *MockResolutionStore) ListResolutions(ctx context.Context, limit int) ([]*models.Resolution, error) {
	args := m.Called(ctx, limit)
	r, _ := args.Get(0).([]*models.Resolution)
	return r, args.Error(1)
}

func (m *MockResolutionStore) FileReferences(ctx context.Context) (map[string][]models.FileReference, error) {
	args := m.Called(ctx)
	r, _ := args.Get(0).(map[string][]models.FileReference)
	return r, args.Error(1)
}

func (m *MockResolutionStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type failingSource struct{}

func (failingSource) Load(context.Context) (*registry.Registry, error) {
	return nil, &registry.UnavailableError{Document: "extension map", URL: "http://registry", Err: errors.New("connection refused")}
}

func testRegistry() *registry.Registry {
	return registry.New([]models.ExtensionMapEntry{
		{SourceURL: models.RuntimeURL, ClassNames: []string{"CheckpointLoaderSimple", "KSampler", "LoadImage"}, Metadata: models.ExtensionMetadata{TitleAux: "ComfyUI"}},
		{SourceURL: "https://github.com/org/pack", ClassNames: []string{"PackNode"}, Metadata: models.ExtensionMetadata{TitleAux: "Org Pack"}},
	}, nil)
}

const executionWorkflow = `{
  "4": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "model.safetensors"}},
  "5": {"class_type": "LoadImage", "inputs": {"image": "cat.png"}},
  "6": {"class_type": "PackNode", "inputs": {"model": ["4", 0]}},
  "7": {"class_type": "DualCLIPLoaderGGUF", "inputs": {}}
}`

const graphWorkflow = `{
  "nodes": [
    {"id": 4, "type": "CheckpointLoaderSimple", "mode": 0, "widgets_values": ["model.safetensors"]},
    {"id": 6, "type": "PackNode", "mode": 4, "inputs": [{"name": "model", "link": 1}], "widgets_values": []}
  ],
  "links": [[1, 4, 0, 6, 0, "MODEL"]]
}`

func hashByPath(ctx context.Context, path string) (models.Hash, error) {
	return "hash:" + path, nil
}

func newService(t *testing.T, opts ...Option) *ResolutionService {
	t.Helper()
	logger := logging.NewDiscardLogger()
	return NewResolutionService(
		registry.Static(testRegistry()),
		nodes.NewResolver(nil, logger, 2),
		files.NewExtractor(hashByPath, nil, 2),
		logger,
		opts...,
	)
}

func TestResolveExecutionWorkflow(t *testing.T) {
	snap := &models.Snapshot{RuntimeVersion: "runtime123"}
	res, err := newService(t).Resolve(context.Background(), []byte(executionWorkflow), ResolveOptions{Snapshot: snap, WorkflowName: "wf.json", CreatedBy: "dev@example.com"})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, models.WorkflowFormatExecution, res.Format)
	assert.Equal(t, "wf.json", res.WorkflowName)
	assert.Equal(t, "dev@example.com", res.CreatedBy)
	assert.Equal(t, "runtime123", res.Graph.RuntimeRevision)
	assert.Equal(t, []string{"https://github.com/org/pack"}, res.Graph.CustomNodes.Keys(), "runtime is never a custom node")
	assert.Equal(t, []string{"DualCLIPLoaderGGUF"}, res.Graph.MissingNodes)
	assert.Equal(t, []models.FileReference{{Name: "model.safetensors", Hash: "hash:models/checkpoints/model.safetensors"}}, res.Graph.Models[models.CategoryCheckpoints])
	assert.Equal(t, []models.FileReference{{Name: "cat.png", Hash: "hash:input/cat.png"}}, res.Graph.Files[models.CategoryImages])
}

func TestResolveGraphWorkflow(t *testing.T) {
	res, err := newService(t).Resolve(context.Background(), []byte(graphWorkflow), ResolveOptions{IncludeNodeList: true})
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowFormatGraph, res.Format)
	dep, ok := res.Graph.CustomNodes.Get("https://github.com/org/pack")
	require.True(t, ok)
	require.Len(t, dep.Nodes, 1)
	assert.Equal(t, models.NodeModeBypassed, dep.Nodes[0].Mode)
	assert.Equal(t, []interface{}{"4", int64(0)}, dep.Nodes[0].Inputs["model"])
	assert.Len(t, res.Graph.Models[models.CategoryCheckpoints], 1)
}

func TestResolveManualRepos(t *testing.T) {
	svc := newService(t, WithManualRepos(map[string]string{"DualCLIPLoaderGGUF": "https://github.com/city96/ComfyUI-GGUF"}))
	res, err := svc.Resolve(context.Background(), []byte(executionWorkflow), ResolveOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Graph.MissingNodes)
	_, ok := res.Graph.CustomNodes.Get("https://github.com/city96/ComfyUI-GGUF")
	assert.True(t, ok)
}

func TestResolveMalformed(t *testing.T) {
	_, err := newService(t).Resolve(context.Background(), []byte(`not json`), ResolveOptions{})
	assert.ErrorIs(t, err, workflow.ErrMalformed)
}

func TestResolveRegistryUnavailable(t *testing.T) {
	logger := logging.NewDiscardLogger()
	svc := NewResolutionService(failingSource{}, nodes.NewResolver(nil, logger, 1), files.NewExtractor(nil, nil, 1), logger)
	_, err := svc.Resolve(context.Background(), []byte(executionWorkflow), ResolveOptions{})
	assert.ErrorIs(t, err, registry.ErrUnavailable)
}

func TestResolvePersists(t *testing.T) {
	store := new(MockResolutionStore)
	known := map[string][]models.FileReference{
		models.CategoryCheckpoints: {{Name: "model.safetensors", Hash: "hash:models/checkpoints/model.safetensors", URL: "https://files.example.com/model"}},
	}
	store.On("FileReferences", mock.Anything).Return(known, nil).Once()
	store.On("SaveResolution", mock.Anything, mock.MatchedBy(func(r *models.Resolution) bool {
		return r.CreatedBy == "dev@example.com"
	})).Return(nil).Once()

	res, err := newService(t, WithStore(store)).Resolve(context.Background(), []byte(executionWorkflow), ResolveOptions{Persist: true, CreatedBy: "dev@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/model", res.Graph.Models[models.CategoryCheckpoints][0].URL, "known url reused")
	store.AssertExpectations(t)
}

func TestResolveExplicitExistingFilesSkipStore(t *testing.T) {
	store := new(MockResolutionStore)
	_, err := newService(t, WithStore(store)).Resolve(context.Background(), []byte(executionWorkflow), ResolveOptions{
		ExistingFiles: map[string][]models.FileReference{},
	})
	require.NoError(t, err)
	store.AssertNotCalled(t, "FileReferences", mock.Anything)
	store.AssertNotCalled(t, "SaveResolution", mock.Anything, mock.Anything)
}

func TestResolvePersistWithoutStore(t *testing.T) {
	_, err := newService(t).Resolve(context.Background(), []byte(executionWorkflow), ResolveOptions{Persist: true})
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestResolveSurfacesFileErrors(t *testing.T) {
	logger := logging.NewDiscardLogger()
	failing := func(ctx context.Context, path string) (models.Hash, error) {
		return "", errors.New("permission denied")
	}
	svc := NewResolutionService(registry.Static(testRegistry()), nodes.NewResolver(nil, logger, 1), files.NewExtractor(failing, nil, 1), logger)
	_, err := svc.Resolve(context.Background(), []byte(executionWorkflow), ResolveOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestResolveTimeout(t *testing.T) {
	logger := logging.NewDiscardLogger()
	slow := func(ctx context.Context, path string) (models.Hash, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	svc := NewResolutionService(registry.Static(testRegistry()), nodes.NewResolver(nil, logger, 1), files.NewExtractor(slow, nil, 1), logger, WithTimeout(20*time.Millisecond))
	_, err := svc.Resolve(context.Background(), []byte(executionWorkflow), ResolveOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStoreAccessors(t *testing.T) {
	_, err := newService(t).GetResolution(context.Background(), "id")
	assert.ErrorIs(t, err, ErrNoStore)
	_, err = newService(t).ListResolutions(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNoStore)
	assert.Equal(t, map[string]string{"database": "disabled"}, newService(t).Checks(context.Background()))

	store := new(MockResolutionStore)
	store.On("GetResolution", mock.Anything, "missing").Return(nil, repository.ErrNotFound)
	store.On("ListResolutions", mock.Anything, 5).Return([]*models.Resolution{{ID: "a"}}, nil)
	store.On("Ping", mock.Anything).Return(errors.New("down"))

	svc := newService(t, WithStore(store))
	_, err = svc.GetResolution(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	list, err := svc.ListResolutions(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, "error: down", svc.Checks(context.Background())["database"])
}
