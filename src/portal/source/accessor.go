package source

import (
	"context"
	"strings"
)

// ResolveBasePath substitutes the student slug into a base_path template and
// trims surrounding slashes.
func ResolveBasePath(template, slug string) string {
	return strings.Trim(strings.ReplaceAll(template, "{slug}", slug), "/")
}

// Accessor reads files relative to one student's submission root for the
// duration of a single verification attempt. Successful reads are cached so
// evidence rules and script dependencies touching the same file fetch once.
type Accessor struct {
	fetcher  Fetcher
	key      string
	branch   string
	basePath string
	cache    map[string][]byte
}

func NewAccessor(fetcher Fetcher, key, branch, basePath string) *Accessor {
	return &Accessor{
		fetcher:  fetcher,
		key:      key,
		branch:   branch,
		basePath: strings.Trim(basePath, "/"),
		cache:    map[string][]byte{},
	}
}

// RemotePath joins the student base path with a contract-relative path.
func (a *Accessor) RemotePath(rel string) string {
	rel = strings.Trim(rel, "/")
	switch {
	case a.basePath != "" && rel != "":
		return a.basePath + "/" + rel
	case a.basePath != "":
		return a.basePath
	default:
		return rel
	}
}

func (a *Accessor) ReadBytes(ctx context.Context, rel string) ([]byte, error) {
	remote := a.RemotePath(rel)
	if data, ok := a.cache[remote]; ok {
		return data, nil
	}
	data, err := a.fetcher.Fetch(ctx, a.key, a.branch, remote)
	if err != nil {
		return nil, err
	}
	a.cache[remote] = data
	return data, nil
}

// Exists reports whether rel resolves to a readable file. A transport error
// is returned as-is; callers must not report it as a missing file.
func (a *Accessor) Exists(ctx context.Context, rel string) (bool, error) {
	_, err := a.ReadBytes(ctx, rel)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Describe names the repository, branch and remote path for feedback text.
func (a *Accessor) Describe(rel string) string {
	base := a.fetcher.Label(a.key, a.branch)
	remote := a.RemotePath(rel)
	if remote == "" {
		return base
	}
	return base + " en " + remote
}
