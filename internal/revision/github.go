package revision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// GitHubClient is an HTTP implementation of RepositoryClient for the GitHub
// REST API.
type GitHubClient struct {
	baseURL string
	client  *http.Client
}

// NewGitHubClient creates a client for the API at baseURL. A non-empty token
// authenticates every request, which lifts the anonymous rate limit.
func NewGitHubClient(baseURL, token string, timeout time.Duration) *GitHubClient {
	client := &http.Client{Timeout: timeout}
	if token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
		client.Timeout = timeout
	}
	return &GitHubClient{baseURL: baseURL, client: client}
}

// DefaultBranch returns the repository's default branch name.
func (c *GitHubClient) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	var body struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo)), &body); err != nil {
		return "", err
	}
	if body.DefaultBranch == "" {
		return "", fmt.Errorf("repository %s/%s has no default branch", owner, repo)
	}
	return body.DefaultBranch, nil
}

// BranchHead returns the SHA of the latest commit on branch.
func (c *GitHubClient) BranchHead(ctx context.Context, owner, repo, branch string) (string, error) {
	var body struct {
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	path := fmt.Sprintf("/repos/%s/%s/branches/%s", url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(branch))
	if err := c.get(ctx, path, &body); err != nil {
		return "", err
	}
	if body.Commit.SHA == "" {
		return "", fmt.Errorf("branch %s of %s/%s has no commit", branch, owner, repo)
	}
	return body.Commit.SHA, nil
}

func (c *GitHubClient) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github %s: status code %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
