// Package giturl parses and canonicalizes the repository URL forms a scan
// target is allowed to name: github.com and gitlab.com only, HTTPS or SSH,
// with or without a trailing .git.
package giturl

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/quietridge/secscan/pkg/scanerr"
)

// Platform identifies the accepted Git hosting provider.
type Platform string

const (
	GitHub Platform = "github"
	GitLab Platform = "gitlab"
)

var hostPlatform = map[string]Platform{
	"github.com":     GitHub,
	"www.github.com": GitHub,
	"gitlab.com":     GitLab,
	"www.gitlab.com": GitLab,
}

// Repository is a parsed, canonicalized repository reference.
type Repository struct {
	Platform Platform
	Owner    string
	Repo     string
	// CloneURL is the canonical HTTPS clone URL, always ending in ".git".
	CloneURL string
}

// Parse accepts a URL in one of the forms spec'd for repository targets and
// returns its canonical form. Any other form fails with
// scanerr.UnsupportedURL.
//
// Accepted forms (host github.com or gitlab.com only):
//   - https://host/owner/repo[.git][/]  (optional "www." prefix)
//   - git@host:owner/repo[.git]
func Parse(raw string) (Repository, error) {
	trimmed := strings.TrimSpace(raw)

	if owner, repo, platform, ok := parseSSH(trimmed); ok {
		return canonicalize(platform, owner, repo)
	}
	if owner, repo, platform, ok := parseHTTPS(trimmed); ok {
		return canonicalize(platform, owner, repo)
	}

	return Repository{}, scanerr.New(scanerr.UnsupportedURL,
		"unsupported repository URL", map[string]any{
			"input": raw,
			"accepted-forms": []string{
				"https://github.com/owner/repo[.git]",
				"https://gitlab.com/owner/repo[.git]",
				"git@github.com:owner/repo.git",
				"git@gitlab.com:owner/repo.git",
			},
		})
}

func canonicalize(platform Platform, owner, repo string) (Repository, error) {
	if owner == "" || repo == "" {
		return Repository{}, errors.Errorf("missing owner or repo name")
	}
	host := "github.com"
	if platform == GitLab {
		host = "gitlab.com"
	}
	return Repository{
		Platform: platform,
		Owner:    owner,
		Repo:     repo,
		CloneURL: "https://" + host + "/" + owner + "/" + repo + ".git",
	}, nil
}

// parseSSH matches "git@host:owner/repo[.git]".
func parseSSH(s string) (owner, repo string, platform Platform, ok bool) {
	const prefix = "git@"
	if !strings.HasPrefix(s, prefix) {
		return "", "", "", false
	}
	rest := s[len(prefix):]
	hostPath := strings.SplitN(rest, ":", 2)
	if len(hostPath) != 2 {
		return "", "", "", false
	}
	platform, known := hostPlatform[strings.ToLower(hostPath[0])]
	if !known {
		return "", "", "", false
	}
	owner, repo, ok = splitOwnerRepo(hostPath[1])
	return owner, repo, platform, ok
}

// parseHTTPS matches "https://host/owner/repo[.git][/]" (host may carry a
// "www." prefix).
func parseHTTPS(s string) (owner, repo string, platform Platform, ok bool) {
	const prefix = "https://"
	if !strings.HasPrefix(strings.ToLower(s), prefix) {
		return "", "", "", false
	}
	rest := s[len(prefix):]
	slash := strings.Index(rest, "/")
	if slash == -1 {
		return "", "", "", false
	}
	host := rest[:slash]
	platform, known := hostPlatform[strings.ToLower(host)]
	if !known {
		return "", "", "", false
	}
	path := strings.TrimSuffix(rest[slash+1:], "/")
	owner, repo, ok = splitOwnerRepo(path)
	return owner, repo, platform, ok
}

func splitOwnerRepo(path string) (owner, repo string, ok bool) {
	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
