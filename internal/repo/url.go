package repo

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidURL is returned for git URLs that fit neither the SSH nor the
// HTTP(S) form.
var ErrInvalidURL = errors.New("invalid git URL")

// parsedURL is the normalized decomposition of a git remote URL.
type parsedURL struct {
	Host string
	// Path is the repository path below the host, without a leading slash
	// and without a .git suffix ("org/sub/repo").
	Path string
	// Scheme is "ssh" for scp-like URLs, otherwise the URL scheme.
	Scheme string
}

// parseGitURL handles both scp-like SSH URLs (git@host:org/repo.git) and
// regular URLs (https://host/org/repo). The .git suffix is stripped either
// way so equivalent URLs normalize identically.
func parseGitURL(raw string) (parsedURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return parsedURL{}, fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	if strings.HasPrefix(raw, "git@") {
		rest := strings.TrimPrefix(raw, "git@")
		host, repoPath, ok := strings.Cut(rest, ":")
		if !ok || host == "" || repoPath == "" {
			return parsedURL{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
		}
		return parsedURL{
			Host:   host,
			Path:   normalizeRepoPath(repoPath),
			Scheme: "ssh",
		}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return parsedURL{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	if u.Host == "" || u.Path == "" || u.Path == "/" {
		return parsedURL{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	return parsedURL{
		Host:   u.Hostname(),
		Path:   normalizeRepoPath(u.Path),
		Scheme: u.Scheme,
	}, nil
}

func normalizeRepoPath(p string) string {
	p = strings.Trim(p, "/")
	p = strings.TrimSuffix(p, ".git")
	return p
}

// BarePath returns the deterministic cache location for a remote URL:
// {reposRoot}/{host}/{org...}/{repo}.git. SSH and HTTPS forms of the same
// repository map to the same path.
func BarePath(reposRoot, gitURL string) (string, error) {
	p, err := parseGitURL(gitURL)
	if err != nil {
		return "", err
	}
	parts := append([]string{reposRoot, p.Host}, strings.Split(p.Path, "/")...)
	bare := filepath.Join(parts...)
	return bare + ".git", nil
}

// RepoName returns the final path element of a git URL ("repo" for
// https://host/org/repo.git). Used to name worktree directories.
func RepoName(gitURL string) (string, error) {
	p, err := parseGitURL(gitURL)
	if err != nil {
		return "", err
	}
	return path.Base(p.Path), nil
}
