// internal/github/client.go
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenk/backoff"
	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	perrors "package-health/internal/errors"
	"package-health/internal/format"
	"package-health/internal/model"
)

const (
	// maxRetries is the number of attempts made for a request that fails with a 5xx or a rate limit.
	maxRetries = 3
	// maxRateLimitWait bounds how long a request waits for a rate limit window to reset.
	maxRateLimitWait = time.Minute
	maintainedWithin = 365 * 24 * time.Hour
)

// retryBaseDelay is the first backoff interval after a server error. Tests shorten it.
var retryBaseDelay = 500 * time.Millisecond

// Client is a wrapper around the go-github client.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewClient creates and configures a new Client instance.
// A non-empty token authenticates requests through oauth2; apiURL overrides the
// public API endpoint and is left empty for api.github.com.
func NewClient(token, apiURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	httpClient := &http.Client{Timeout: timeout}
	if token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		httpClient = oauth2.NewClient(ctx, ts)
		httpClient.Timeout = timeout
	}

	gh := github.NewClient(httpClient)
	gh.UserAgent = "package-health/1.0"
	if apiURL != "" {
		base, err := url.Parse(strings.TrimSuffix(apiURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing GitHub API URL: %w", err)
		}
		gh.BaseURL = base
	}

	return &Client{
		gh:     gh,
		logger: logger,
		now:    time.Now,
	}, nil
}

// GetRepository fetches repository details and translates them to our internal model.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*model.RepoMetadata, error) {
	var repo *github.Repository
	err := c.withRetry(ctx, "repository", owner, name, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		repo, resp, err = c.gh.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return c.toRepoMetadata(repo), nil
}

// GetCommunityHealth fetches the community profile: health percentage and which
// standard files the repository carries.
func (c *Client) GetCommunityHealth(ctx context.Context, owner, name string) (*model.RepoHealth, error) {
	var metrics *github.CommunityHealthMetrics
	err := c.withRetry(ctx, "community profile", owner, name, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		metrics, resp, err = c.gh.Repositories.GetCommunityHealthMetrics(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return toRepoHealth(metrics), nil
}

// GetActivity gathers issue counts and the most recently merged pull request.
// The three searches run in parallel; the pull request detail is fetched last.
func (c *Client) GetActivity(ctx context.Context, owner, name string) (*model.RepoActivity, error) {
	var open, closed int
	var lastMerged *github.Issue

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := c.countIssues(gctx, owner, name, "open")
		open = n
		return err
	})
	g.Go(func() error {
		n, err := c.countIssues(gctx, owner, name, "closed")
		closed = n
		return err
	})
	g.Go(func() error {
		issue, err := c.lastMergedPR(gctx, owner, name)
		lastMerged = issue
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	activity := &model.RepoActivity{
		OpenIssuesCount:   model.Int(open),
		ClosedIssuesCount: model.Int(closed),
		TotalIssuesCount:  model.Int(open + closed),
	}
	if lastMerged == nil {
		return activity, nil
	}

	activity.LastPRURL = lastMerged.GetHTMLURL()
	var pr *github.PullRequest
	err := c.withRetry(ctx, "pull request", owner, name, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		pr, resp, err = c.gh.PullRequests.Get(ctx, owner, name, lastMerged.GetNumber())
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	if pr.CreatedAt != nil && pr.MergedAt != nil {
		mergeTime := format.FormatMergeDuration(pr.GetCreatedAt().Time, pr.GetMergedAt().Time)
		activity.LastPRMergedAt = pr.GetMergedAt().Time.UTC().Format(time.RFC3339)
		activity.LastPRMergeTime = &mergeTime
		activity.LastPRInfo = fmt.Sprintf("created %s before merge", mergeTime.HumanReadable)
	}
	return activity, nil
}

func (c *Client) countIssues(ctx context.Context, owner, name, state string) (int, error) {
	query := fmt.Sprintf("repo:%s/%s is:issue is:%s", owner, name, state)
	opts := &github.SearchOptions{ListOptions: github.ListOptions{PerPage: 1}}

	var result *github.IssuesSearchResult
	err := c.withRetry(ctx, state+" issues", owner, name, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		result, resp, err = c.gh.Search.Issues(ctx, query, opts)
		return resp, err
	})
	if err != nil {
		return 0, err
	}
	return result.GetTotal(), nil
}

func (c *Client) lastMergedPR(ctx context.Context, owner, name string) (*github.Issue, error) {
	query := fmt.Sprintf("repo:%s/%s is:pr is:merged", owner, name)
	opts := &github.SearchOptions{
		Sort:        "updated",
		Order:       "desc",
		ListOptions: github.ListOptions{PerPage: 1},
	}

	var result *github.IssuesSearchResult
	err := c.withRetry(ctx, "merged pull requests", owner, name, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		result, resp, err = c.gh.Search.Issues(ctx, query, opts)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	if len(result.Issues) == 0 {
		return nil, nil
	}
	return result.Issues[0], nil
}

// withRetry runs call up to maxRetries times. Primary and secondary rate limits
// wait for the window GitHub reports; server errors back off exponentially.
func (c *Client) withRetry(ctx context.Context, what, owner, name string, call func() (*github.Response, error)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryBaseDelay
	b.MaxElapsedTime = 0
	b.Reset()

	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		var resp *github.Response
		resp, err = call()
		if err == nil {
			return nil
		}

		wait, retryable := c.retryDelay(err, resp, b)
		if !retryable {
			return mapError(what, owner, name, err)
		}
		if attempt == maxRetries {
			break
		}

		c.logger.Warn("Retrying GitHub request", "what", what, "owner", owner, "repo", name,
			"attempt", attempt, "wait", wait, "error", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return mapError(what, owner, name, err)
}

func (c *Client) retryDelay(err error, resp *github.Response, b backoff.BackOff) (time.Duration, bool) {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError

	switch {
	case errors.As(err, &rateErr):
		wait := rateErr.Rate.Reset.Time.Sub(c.now()) + 100*time.Millisecond
		if wait > maxRateLimitWait {
			return 0, false
		}
		if wait < 0 {
			wait = 0
		}
		return wait, true
	case errors.As(err, &abuseErr):
		wait := abuseErr.GetRetryAfter()
		if wait > maxRateLimitWait {
			return 0, false
		}
		return wait, true
	case resp != nil && (resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests):
		return b.NextBackOff(), true
	default:
		return 0, false
	}
}

func mapError(what, owner, name string, err error) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var respErr *github.ErrorResponse

	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		return fmt.Errorf("github %s for %s/%s: %w: %v", what, owner, name, perrors.ErrRateLimited, err)
	case errors.As(err, &respErr) && respErr.Response != nil:
		switch code := respErr.Response.StatusCode; {
		case code == http.StatusNotFound:
			return fmt.Errorf("github %s for %s/%s: %w", what, owner, name, perrors.ErrRepositoryNotFound)
		case code == http.StatusTooManyRequests:
			return fmt.Errorf("github %s for %s/%s: %w: %w", what, owner, name, perrors.ErrRateLimited, err)
		case code >= 500:
			return fmt.Errorf("github %s for %s/%s: %w: %w", what, owner, name, perrors.ErrUpstream, err)
		}
	}
	return fmt.Errorf("github %s for %s/%s: %w", what, owner, name, err)
}

// toRepoMetadata translates a github.Repository object to our internal model.
func (c *Client) toRepoMetadata(r *github.Repository) *model.RepoMetadata {
	meta := &model.RepoMetadata{
		Stars:      model.Int(r.GetStargazersCount()),
		Forks:      model.Int(r.GetForksCount()),
		IsArchived: model.Bool(r.GetArchived()),
	}

	pushed := r.GetPushedAt().Time
	recentlyPushed := false
	if !pushed.IsZero() {
		meta.LastCodePush = pushed.UTC().Format(time.RFC3339)
		recentlyPushed = c.now().Sub(pushed) <= maintainedWithin
	}
	meta.IsMaintained = model.Bool(!r.GetArchived() && recentlyPushed)
	return meta
}

func toRepoHealth(m *github.CommunityHealthMetrics) *model.RepoHealth {
	files := m.GetFiles()
	health := &model.RepoHealth{
		HasReadme:        files.GetReadme() != nil,
		HasLicense:       files.GetLicense() != nil,
		HasContributing:  files.GetContributing() != nil,
		HasCodeOfConduct: files.GetCodeOfConduct() != nil,
	}
	if m.HealthPercentage != nil {
		health.HealthPercentage = model.Int(m.GetHealthPercentage())
	}
	return health
}
