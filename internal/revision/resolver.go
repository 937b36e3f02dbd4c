// Package revision pins a source URL to a commit hash, preferring snapshot
// state and falling back to a live query of the hosting API.
package revision

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"comfydeps/pkg/models"
)

// LatestCommitWarning is attached to hashes that came from a live lookup.
const LatestCommitWarning = "No hash found in snapshot, using latest commit hash"

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// RepositoryClient queries the hosting API for the current state of a
// repository.
type RepositoryClient interface {
	DefaultBranch(ctx context.Context, owner, repo string) (string, error)
	BranchHead(ctx context.Context, owner, repo, branch string) (string, error)
}

// Resolver resolves revisions through the snapshot → URL variant → live
// lookup chain.
type Resolver struct {
	client RepositoryClient
	logger Logger
	onLive func(err error)
}

// NewResolver creates a Resolver. client may be nil, in which case live
// lookups always come back empty.
func NewResolver(client RepositoryClient, logger Logger) *Resolver {
	return &Resolver{client: client, logger: logger}
}

// OnLiveLookup registers a callback run after every live lookup.
func (r *Resolver) OnLiveLookup(hook func(err error)) {
	r.onLive = hook
}

// Resolve returns the pinned hash for sourceURL and an optional warning. An
// empty hash means the dependency stays unpinned; that is not an error.
func (r *Resolver) Resolve(ctx context.Context, sourceURL string, snapshot *models.Snapshot, allowLive bool) (models.Hash, string) {
	if hash, ok := SnapshotHash(sourceURL, snapshot); ok {
		return hash, ""
	}
	if !allowLive || r.client == nil {
		return "", ""
	}

	hash, err := r.latestCommit(ctx, sourceURL)
	if r.onLive != nil {
		r.onLive(err)
	}
	if err != nil {
		r.logger.Warn("live revision lookup failed", "url", sourceURL, "error", err)
		return "", ""
	}
	return hash, LatestCommitWarning
}

// SnapshotHash runs the snapshot half of the chain: exact URL (or the
// runtime's dedicated field), then the alternate URL form.
func SnapshotHash(sourceURL string, snapshot *models.Snapshot) (models.Hash, bool) {
	if snapshot == nil {
		return "", false
	}
	if sourceURL == models.RuntimeURL && snapshot.RuntimeVersion != "" {
		return snapshot.RuntimeVersion, true
	}
	if hash, ok := snapshot.Pin(sourceURL); ok {
		return hash, true
	}
	return snapshot.Pin(alternateKey(sourceURL))
}

// alternateKey derives the second lookup key: a URL ending in .git maps to
// its bare repository name, any other URL gains the .git suffix.
func alternateKey(sourceURL string) string {
	if strings.HasSuffix(sourceURL, ".git") {
		trimmed := strings.TrimSuffix(sourceURL, ".git")
		return trimmed[strings.LastIndex(trimmed, "/")+1:]
	}
	return sourceURL + ".git"
}

func (r *Resolver) latestCommit(ctx context.Context, sourceURL string) (string, error) {
	owner, repo, err := ParseRepository(sourceURL)
	if err != nil {
		return "", err
	}
	branch, err := r.client.DefaultBranch(ctx, owner, repo)
	if err != nil {
		return "", err
	}
	sha, err := r.client.BranchHead(ctx, owner, repo, branch)
	if err != nil {
		return "", err
	}
	r.logger.Debug("resolved latest commit", "url", sourceURL, "branch", branch, "sha", sha)
	return sha, nil
}

// ParseRepository extracts owner and repository name from a repository URL.
func ParseRepository(sourceURL string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil {
		return "", "", fmt.Errorf("invalid repository url %q: %w", sourceURL, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository url %q: expected /owner/repo", sourceURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}
