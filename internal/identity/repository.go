package identity

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
)

// RepositoryID derives a stable identifier for the repository rooted at
// root: the first configured remote URL normalized to "host/owner/name" if
// one exists, else a stable hash of the canonical absolute root (spec.md
// §4.1). Using go-git to read .git/config directly avoids shelling out to
// the git binary, so indexing never depends on it being on PATH.
func RepositoryID(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("abs repo root: %w", err)
	}

	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err == nil {
		if remoteURL, ok := firstRemoteURL(repo); ok {
			if normalized, ok := normalizeRemote(remoteURL); ok {
				return normalized, nil
			}
		}
	}

	return StableRootHash(abs), nil
}

func firstRemoteURL(repo *git.Repository) (string, bool) {
	remotes, err := repo.Remotes()
	if err != nil || len(remotes) == 0 {
		return "", false
	}
	// Prefer "origin" when present; otherwise take the first remote in a
	// deterministic (name-sorted) order.
	var best *git.Remote
	for _, r := range remotes {
		if r.Config().Name == "origin" {
			best = r
			break
		}
		if best == nil || r.Config().Name < best.Config().Name {
			best = r
		}
	}
	if best == nil || len(best.Config().URLs) == 0 {
		return "", false
	}
	return best.Config().URLs[0], true
}

var (
	scpLikeRe = regexp.MustCompile(`^(?:[\w.\-]+@)?([\w.\-]+):(.+?)(?:\.git)?/?$`)
)

// normalizeRemote turns a git remote URL (ssh, scp-like, https, git://)
// into "host/owner/name".
func normalizeRemote(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		path := strings.TrimSuffix(strings.TrimPrefix(u.Path, "/"), ".git")
		if path == "" {
			return "", false
		}
		return u.Host + "/" + path, true
	}

	if m := scpLikeRe.FindStringSubmatch(raw); m != nil {
		host, path := m[1], strings.Trim(m[2], "/")
		path = strings.TrimSuffix(path, ".git")
		if host == "" || path == "" {
			return "", false
		}
		return host + "/" + path, true
	}

	return "", false
}
