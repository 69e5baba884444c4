// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrPackageNotFound is returned when the registry has no package under the requested name.
	ErrPackageNotFound = errors.New("package not found")
	// ErrPackageData is returned when registry metadata is missing the latest version or its details.
	ErrPackageData = errors.New("incomplete package metadata")
	// ErrRepositoryNotFound is returned when the source host has no such repository or profile.
	ErrRepositoryNotFound = errors.New("repository not found")
	// ErrRateLimited is returned when an upstream API keeps rate limiting after retries.
	ErrRateLimited = errors.New("rate limited by upstream")
	// ErrUpstream is returned for upstream failures that are neither not-found nor rate limits.
	ErrUpstream = errors.New("upstream unavailable")
)

// ErrInvalidRepoFormat is returned when a repository string is not in 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}

// ErrInvalidPackageRef is returned when a package reference is neither an npm name nor an npm package URL.
type ErrInvalidPackageRef struct {
	Ref    string
	Reason string
}

func (e *ErrInvalidPackageRef) Error() string {
	return fmt.Sprintf("invalid package reference %q: %s", e.Ref, e.Reason)
}
