package worktree

import (
	"context"
	"strings"
)

// Info describes one entry from `git worktree list --porcelain`.
type Info struct {
	Path       string
	Branch     string
	Commit     string
	IsBare     bool
	IsDetached bool
}

// List returns every worktree registered against a bare repository,
// including the bare entry itself.
func (m *Manager) List(ctx context.Context, barePath string) ([]Info, error) {
	res, err := m.runner.Run(ctx, barePath, m.cfg.QueryTimeout(),
		"worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parsePorcelain(res.Stdout), nil
}

// parsePorcelain parses the porcelain listing: blank-line-separated blocks
// of "key value" lines plus bare "bare"/"detached" markers.
func parsePorcelain(out string) []Info {
	var infos []Info
	var cur *Info

	flush := func() {
		if cur != nil && cur.Path != "" {
			infos = append(infos, *cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			flush()
			continue
		}
		if cur == nil {
			cur = &Info{}
		}
		switch {
		case strings.HasPrefix(line, "worktree "):
			cur.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			cur.Commit = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case line == "bare":
			cur.IsBare = true
		case line == "detached":
			cur.IsDetached = true
		}
	}
	flush()
	return infos
}
