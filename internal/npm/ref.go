package npm

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/package-url/packageurl-go"

	perrors "package-health/internal/errors"
)

// Scopes are lowercase. Unscoped legacy names such as JSONStream may carry upper case.
var namePattern = regexp.MustCompile(`^(@[a-z0-9][a-z0-9._~-]*/)?[A-Za-z0-9][A-Za-z0-9._~-]*$`)

// ParsePackageRef resolves a plain npm package name or an npm package URL
// (pkg:npm/%40scope/name@1.0.0) to a registry name. Versions are ignored.
// Plain names keep their case, since registry names are case-sensitive; package
// URL names come back lowercased, as the package URL format normalizes them.
func ParsePackageRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", &perrors.ErrInvalidPackageRef{Ref: ref, Reason: "empty"}
	}

	if strings.HasPrefix(ref, "pkg:") {
		p, err := packageurl.FromString(ref)
		if err != nil {
			return "", &perrors.ErrInvalidPackageRef{Ref: ref, Reason: err.Error()}
		}
		if p.Type != packageurl.TypeNPM {
			return "", &perrors.ErrInvalidPackageRef{Ref: ref, Reason: "only npm package URLs are supported, got " + p.Type}
		}
		name := p.Name
		if p.Namespace != "" {
			name = p.Namespace + "/" + p.Name
		}
		ref = name
	}

	if !namePattern.MatchString(ref) {
		return "", &perrors.ErrInvalidPackageRef{Ref: ref, Reason: "not a valid npm package name"}
	}
	return ref, nil
}

// ExtractRepositoryURL returns the repository URL of a package manifest entry,
// which is either a string or an object with a url field.
func ExtractRepositoryURL(repo any) string {
	switch r := repo.(type) {
	case string:
		return normalizeGitURL(r)
	case map[string]any:
		if u, ok := r["url"].(string); ok {
			return normalizeGitURL(u)
		}
	}
	return ""
}

func normalizeGitURL(u string) string {
	u = strings.TrimSpace(u)
	u = strings.TrimPrefix(u, "git+")
	u = strings.TrimSuffix(u, ".git")

	switch {
	case strings.HasPrefix(u, "git://"):
		u = "https://" + strings.TrimPrefix(u, "git://")
	case strings.HasPrefix(u, "ssh://git@"):
		u = "https://" + strings.TrimPrefix(u, "ssh://git@")
	case strings.HasPrefix(u, "git@"):
		u = "https://" + strings.Replace(strings.TrimPrefix(u, "git@"), ":", "/", 1)
	case strings.HasPrefix(u, "github:"):
		u = "https://github.com/" + strings.TrimPrefix(u, "github:")
	case strings.Count(u, "/") == 1 && !strings.Contains(u, ":"):
		// shorthand "owner/repo"
		u = "https://github.com/" + u
	}
	return u
}

// ExtractGitHubRepo returns the owner and name of a GitHub repository URL.
// ok is false for URLs that do not point at github.com.
func ExtractGitHubRepo(repoURL string) (owner, repo string, ok bool) {
	if repoURL == "" {
		return "", "", false
	}
	u, err := url.Parse(normalizeGitURL(repoURL))
	if err != nil {
		return "", "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if host != "github.com" {
		return "", "", false
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), true
}
