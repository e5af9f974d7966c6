// Package source retrieves student work products from hosted repositories
// through the GitHub Contents API. The repository map is built once at
// process start and injected, so the client is trivially fakeable.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/portalkids/portal-api/src/portal/config"
	"github.com/portalkids/portal-api/src/webclient"
)

const userAgent = "PortalKidsVerifier/1.0"

// Fetcher is the capability the evaluators depend on.
type Fetcher interface {
	// Fetch returns the raw contents of path in the repository bound to key,
	// at branch (or the repository default when branch is empty).
	Fetch(ctx context.Context, key, branch, path string) ([]byte, error)
	// Has reports whether a repository is bound to key.
	Has(key string) bool
	// Label describes the repository and branch for student-facing feedback.
	Label(key, branch string) string
}

type Client struct {
	repos map[string]config.Repository
	httpc *http.Client
}

func New(repos map[string]config.Repository, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{repos: repos, httpc: webclient.NewDefault(timeout)}
}

func (c *Client) Has(key string) bool {
	_, ok := c.repos[normalizeKey(key)]
	return ok
}

func (c *Client) resolve(key string) (config.Repository, error) {
	key = normalizeKey(key)
	if repo, ok := c.repos[key]; ok {
		return repo, nil
	}
	// A deployment with a single binding serves it for "default" requests.
	if key == "default" && len(c.repos) == 1 {
		for _, repo := range c.repos {
			return repo, nil
		}
	}
	return config.Repository{}, fmt.Errorf("%w: %q", ErrRepoNotConfigured, key)
}

func (c *Client) Label(key, branch string) string {
	repo, err := c.resolve(key)
	if err != nil {
		return key
	}
	if branch == "" {
		branch = repo.Branch
	}
	return fmt.Sprintf("%s (rama %s)", repo.Repository, branch)
}

func (c *Client) Fetch(ctx context.Context, key, branch, path string) ([]byte, error) {
	repo, err := c.resolve(key)
	if err != nil {
		return nil, err
	}

	clean, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	if clean == "" {
		return nil, fmt.Errorf("source: empty path requested from %s", repo.Repository)
	}

	if branch == "" {
		branch = repo.Branch
	}

	endpoint := fmt.Sprintf("%s/repos/%s/contents/%s",
		strings.TrimRight(repo.APIBase, "/"), repo.Repository, escapePath(clean))
	if branch != "" {
		endpoint += "?ref=" + url.QueryEscape(branch)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &TransportError{Repository: repo.Repository, Path: clean, Err: err}
	}
	req.Header.Set("Accept", "application/vnd.github.v3.raw")
	req.Header.Set("User-Agent", userAgent)
	if repo.Token != "" {
		req.Header.Set("Authorization", "Bearer "+repo.Token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &TransportError{Repository: repo.Repository, Path: clean, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Repository: repo.Repository, Path: clean, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{Repository: repo.Repository, Path: clean, Ref: branch}
	case resp.StatusCode >= 400:
		return nil, &TransportError{
			Repository: repo.Repository,
			Path:       clean,
			Err:        fmt.Errorf("status %d: %s", resp.StatusCode, apiMessage(body)),
		}
	}
	return body, nil
}

// CleanPath normalizes a repository-relative path, dropping empty and "."
// segments and rejecting any ".." segment before a request is issued.
func CleanPath(path string) (string, error) {
	parts := strings.Split(strings.ReplaceAll(path, "\\", "/"), "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p {
		case "", ".":
		case "..":
			return "", ErrTraversal
		default:
			out = append(out, p)
		}
	}
	return strings.Join(out, "/"), nil
}

func escapePath(clean string) string {
	segs := strings.Split(clean, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func apiMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "default"
	}
	return key
}
