// Package report assembles the comprehensive health report of a package from the
// registry and its source repository, and rates it.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	perrors "package-health/internal/errors"
	"package-health/internal/model"
	"package-health/internal/npm"
	"package-health/internal/rating"
)

// Registry is the package registry the report reads release data from.
type Registry interface {
	FetchMetadata(ctx context.Context, name string) (*model.RegistryMetadata, error)
	FetchDownloads(ctx context.Context, name string) (*model.DownloadStats, error)
}

// SourceHost is the repository host the report reads activity data from.
type SourceHost interface {
	GetRepository(ctx context.Context, owner, name string) (*model.RepoMetadata, error)
	GetCommunityHealth(ctx context.Context, owner, name string) (*model.RepoHealth, error)
	GetActivity(ctx context.Context, owner, name string) (*model.RepoActivity, error)
}

// GitHubData groups the repository sources. Each one is nil when it could not be fetched.
type GitHubData struct {
	Repo     *model.RepoMetadata `json:"repo"`
	Health   *model.RepoHealth   `json:"health"`
	Activity *model.RepoActivity `json:"activity"`
}

// Report is the comprehensive health report of one package.
type Report struct {
	PackageName   string                  `json:"package_name"`
	RetrievedAt   time.Time               `json:"retrieved_at"`
	NpmData       *model.RegistryMetadata `json:"npm_data"`
	DownloadsData *model.DownloadStats    `json:"downloads_data"`
	GitHubData    GitHubData              `json:"github_data"`
	HealthRatings rating.Ratings          `json:"health_ratings"`
	Categories    rating.Categories       `json:"categories"`
	Success       bool                    `json:"success"`
	Errors        []string                `json:"errors"`
}

// Service builds reports.
type Service struct {
	registry Registry
	host     SourceHost
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service.
func NewService(registry Registry, host SourceHost, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		host:     host,
		logger:   logger,
		now:      time.Now,
	}
}

// Build fetches every source for packageRef and rates the package.
// packageRef is an npm name or an npm package URL. Only a missing package or an
// invalid reference fails the build; every other failure is recorded in Report.Errors.
func (s *Service) Build(ctx context.Context, packageRef string) (*Report, error) {
	name, err := npm.ParsePackageRef(packageRef)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("package", name)
	logger.Info("Building health report")

	r := &Report{
		PackageName: name,
		RetrievedAt: s.now().UTC(),
		Errors:      []string{},
	}

	var state model.RequestState
	var metaErr, downloadsErr error

	// Batch 1: registry metadata and downloads.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.NpmData, metaErr = s.registry.FetchMetadata(gctx, name)
		if errors.Is(metaErr, perrors.ErrPackageNotFound) {
			return metaErr
		}
		return nil
	})
	g.Go(func() error {
		r.DownloadsData, downloadsErr = s.registry.FetchDownloads(gctx, name)
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Warn("Package not found")
		return nil, err
	}

	if metaErr != nil {
		logger.Error("Failed to fetch registry metadata", "error", metaErr)
		r.Errors = append(r.Errors, fmt.Sprintf("npm_metadata_error: %v", metaErr))
		state.Error = metaErr.Error()
	}
	if downloadsErr != nil {
		logger.Error("Failed to fetch download stats", "error", downloadsErr)
		r.Errors = append(r.Errors, fmt.Sprintf("npm_downloads_error: %v", downloadsErr))
	}

	// Batch 2: repository sources, only when the registry names a GitHub repository.
	var owner, repo string
	var ok bool
	if r.NpmData != nil {
		owner, repo, ok = npm.ExtractGitHubRepo(r.NpmData.Repository)
	}
	if ok {
		r.Errors = append(r.Errors, s.fetchGitHub(ctx, logger, owner, repo, &r.GitHubData)...)
	} else {
		logger.Info("No GitHub repository found")
		r.Errors = append(r.Errors, "no_github_repository")
	}

	r.Categories = rating.Evaluate(rating.Inputs{
		Registry:  r.NpmData,
		Downloads: r.DownloadsData,
		Repo:      r.GitHubData.Repo,
		Health:    r.GitHubData.Health,
		Activity:  r.GitHubData.Activity,
		State:     state,
	}, s.now())
	r.HealthRatings = r.Categories.Ratings()
	r.Success = r.NpmData != nil

	logger.Info("Health report completed", "success", r.Success, "errors", len(r.Errors))
	return r, nil
}

// fetchGitHub fetches the three repository sources in parallel. A failed source
// stays nil and is reported in the returned error list, in a fixed order.
func (s *Service) fetchGitHub(ctx context.Context, logger *slog.Logger, owner, repo string, data *GitHubData) []string {
	logger = logger.With("owner", owner, "repo", repo)

	var repoErr, healthErr, activityErr error
	var g errgroup.Group
	g.Go(func() error {
		data.Repo, repoErr = s.host.GetRepository(ctx, owner, repo)
		return nil
	})
	g.Go(func() error {
		data.Health, healthErr = s.host.GetCommunityHealth(ctx, owner, repo)
		return nil
	})
	g.Go(func() error {
		data.Activity, activityErr = s.host.GetActivity(ctx, owner, repo)
		return nil
	})
	_ = g.Wait()

	var errs []string
	for _, source := range []struct {
		kind string
		err  error
	}{
		{"repo", repoErr},
		{"health", healthErr},
		{"activity", activityErr},
	} {
		if source.err == nil {
			continue
		}
		logger.Warn("GitHub source failed", "kind", source.kind, "error", source.err)
		errs = append(errs, fmt.Sprintf("github_%s_error: %v", source.kind, source.err))
	}

	// Failed sources stay absent even if the client returned partial data.
	if repoErr != nil {
		data.Repo = nil
	}
	if healthErr != nil {
		data.Health = nil
	}
	if activityErr != nil {
		data.Activity = nil
	}
	return errs
}
