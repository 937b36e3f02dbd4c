package revision

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"comfydeps/internal/logging"
	"comfydeps/pkg/models"
)

// MockRepositoryClient satisfies RepositoryClient
type MockRepositoryClient struct {
	mock.Mock
}

func (m *MockRepositoryClient) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	args := m.Called(ctx, owner, repo)
	return args.String(0), args.Error(1)
}

func (m *MockRepositoryClient) BranchHead(ctx context.Context, owner, repo, branch string) (string, error) {
	args := m.Called(ctx, owner, repo, branch)
	return args.String(0), args.Error(1)
}

func snapshot() *models.Snapshot {
	return &models.Snapshot{
		RuntimeVersion: "runtime123",
		PinnedNodes: map[string]models.PinnedNode{
			"https://github.com/org/pack":     {Hash: "abc123"},
			"https://github.com/org/other.git": {Hash: "def456"},
			"bare-repo":                        {Hash: "fff000"},
		},
	}
}

func TestResolveSnapshotExact(t *testing.T) {
	client := new(MockRepositoryClient)
	r := NewResolver(client, logging.NewDiscardLogger())

	hash, warning := r.Resolve(context.Background(), "https://github.com/org/pack", snapshot(), true)
	assert.Equal(t, "abc123", hash)
	assert.Empty(t, warning)

	hash, warning = r.Resolve(context.Background(), "https://github.com/org/pack", snapshot(), true)
	assert.Equal(t, "abc123", hash, "resolution is idempotent")
	assert.Empty(t, warning)

	client.AssertNotCalled(t, "DefaultBranch", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveRuntimeUsesDedicatedField(t *testing.T) {
	r := NewResolver(nil, logging.NewDiscardLogger())
	hash, warning := r.Resolve(context.Background(), models.RuntimeURL, snapshot(), true)
	assert.Equal(t, "runtime123", hash)
	assert.Empty(t, warning)
}

func TestResolveAlternateForms(t *testing.T) {
	r := NewResolver(nil, logging.NewDiscardLogger())

	hash, _ := r.Resolve(context.Background(), "https://github.com/org/other", snapshot(), false)
	assert.Equal(t, "def456", hash, "missing .git suffix is appended")

	hash, _ = r.Resolve(context.Background(), "https://github.com/someone/bare-repo.git", snapshot(), false)
	assert.Equal(t, "fff000", hash, ".git url falls back to the bare repository name")
}

func TestResolveLiveLookup(t *testing.T) {
	client := new(MockRepositoryClient)
	client.On("DefaultBranch", mock.Anything, "org", "fresh").Return("main", nil)
	client.On("BranchHead", mock.Anything, "org", "fresh", "main").Return("0123abcd", nil)

	var lookups int
	r := NewResolver(client, logging.NewDiscardLogger())
	r.OnLiveLookup(func(err error) { lookups++ })

	hash, warning := r.Resolve(context.Background(), "https://github.com/org/fresh.git", snapshot(), true)
	assert.Equal(t, "0123abcd", hash)
	assert.Equal(t, LatestCommitWarning, warning)
	assert.Equal(t, 1, lookups)
	client.AssertExpectations(t)
}

func TestResolveLiveLookupFailure(t *testing.T) {
	client := new(MockRepositoryClient)
	client.On("DefaultBranch", mock.Anything, "org", "limited").Return("", errors.New("status code 403"))

	r := NewResolver(client, logging.NewDiscardLogger())
	hash, warning := r.Resolve(context.Background(), "https://github.com/org/limited", nil, true)
	assert.Empty(t, hash)
	assert.Empty(t, warning)
	client.AssertNotCalled(t, "BranchHead", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveLiveDisabled(t *testing.T) {
	client := new(MockRepositoryClient)
	r := NewResolver(client, logging.NewDiscardLogger())

	hash, warning := r.Resolve(context.Background(), "https://github.com/org/fresh", nil, false)
	assert.Empty(t, hash)
	assert.Empty(t, warning)
	client.AssertNotCalled(t, "DefaultBranch", mock.Anything, mock.Anything, mock.Anything)
}

func TestParseRepository(t *testing.T) {
	tests := []struct {
		url, owner, repo string
		wantErr          bool
	}{
		{"https://github.com/org/pack", "org", "pack", false},
		{"https://github.com/org/pack.git", "org", "pack", false},
		{"https://github.com/org/pack/tree/main", "org", "pack", false},
		{"https://github.com/org", "", "", true},
		{"::", "", "", true},
	}
	for _, tt := range tests {
		owner, repo, err := ParseRepository(tt.url)
		if tt.wantErr {
			assert.Error(t, err, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.owner, owner)
		assert.Equal(t, tt.repo, repo)
	}
}

func TestGitHubClient(t *testing.T) {
	var auth string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org/pack", func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"default_branch": "master"}`))
	})
	mux.HandleFunc("/repos/org/pack/branches/master", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": "master", "commit": {"sha": "cafebabe"}}`))
	})
	mux.HandleFunc("/repos/org/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewGitHubClient(srv.URL, "secret-token", time.Second)
	branch, err := c.DefaultBranch(context.Background(), "org", "pack")
	require.NoError(t, err)
	assert.Equal(t, "master", branch)
	assert.Equal(t, "Bearer secret-token", auth)

	sha, err := c.BranchHead(context.Background(), "org", "pack", branch)
	require.NoError(t, err)
	assert.Equal(t, "cafebabe", sha)

	_, err = c.DefaultBranch(context.Background(), "org", "gone")
	assert.Error(t, err)

	r := NewResolver(c, logging.NewDiscardLogger())
	hash, warning := r.Resolve(context.Background(), "https://github.com/org/pack", nil, true)
	assert.Equal(t, "cafebabe", hash)
	assert.Equal(t, LatestCommitWarning, warning)
}
