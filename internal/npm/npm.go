// Package npm fetches package metadata, download statistics, and search results from the npm registry.
package npm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/github/go-spdx/v2/spdxexp"

	perrors "package-health/internal/errors"
	"package-health/internal/fetch"
	"package-health/internal/format"
	"package-health/internal/model"
)

const (
	DefaultRegistryURL  = "https://registry.npmjs.org"
	DefaultDownloadsURL = "https://api.npmjs.org"

	trendWeeks    = 20
	monthWeeks    = 4
	maxSearchSize = 50
)

// Getter is the subset of fetch.Client the registry client needs.
type Getter interface {
	GetJSON(ctx context.Context, rawURL string, v any) error
}

// Client talks to the npm registry and download APIs.
type Client struct {
	registryURL  string
	downloadsURL string
	http         Getter
	logger       *slog.Logger
	now          func() time.Time
}

// NewClient creates a Client. Empty URLs fall back to the public npm endpoints.
func NewClient(registryURL, downloadsURL string, http Getter, logger *slog.Logger) *Client {
	if registryURL == "" {
		registryURL = DefaultRegistryURL
	}
	if downloadsURL == "" {
		downloadsURL = DefaultDownloadsURL
	}
	return &Client{
		registryURL:  strings.TrimSuffix(registryURL, "/"),
		downloadsURL: strings.TrimSuffix(downloadsURL, "/"),
		http:         http,
		logger:       logger,
		now:          time.Now,
	}
}

type packageDocument struct {
	Name        string                 `json:"name"`
	DistTags    map[string]string      `json:"dist-tags"`
	Versions    map[string]versionInfo `json:"versions"`
	Time        map[string]string      `json:"time"`
	Maintainers []maintainer           `json:"maintainers"`
}

type versionInfo struct {
	Description  string            `json:"description"`
	License      any               `json:"license"`
	Homepage     any               `json:"homepage"`
	Repository   any               `json:"repository"`
	Dependencies map[string]string `json:"dependencies"`
	Dist         struct {
		UnpackedSize int64 `json:"unpackedSize"`
	} `json:"dist"`
}

type maintainer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// FetchMetadata fetches the registry document of a package and reduces it to the latest release.
func (c *Client) FetchMetadata(ctx context.Context, name string) (*model.RegistryMetadata, error) {
	var doc packageDocument
	if err := c.http.GetJSON(ctx, c.registryURL+"/"+escapeName(name), &doc); err != nil {
		return nil, c.wrap(name, "metadata", err)
	}

	latest := doc.DistTags["latest"]
	if latest == "" {
		return nil, fmt.Errorf("%w: could not determine latest version for %s", perrors.ErrPackageData, name)
	}
	info, ok := doc.Versions[latest]
	if !ok {
		return nil, fmt.Errorf("%w: could not retrieve version info for %s@%s", perrors.ErrPackageData, name, latest)
	}

	now := c.now()
	license := extractLicense(info.License)
	lastRelease := doc.Time[latest]

	meta := &model.RegistryMetadata{
		Name:              name,
		LatestVersion:     latest,
		Description:       info.Description,
		License:           license,
		LicenseIsSPDX:     isSPDX(license),
		Homepage:          extractString(info.Homepage),
		BundleSize:        format.FormatBundleSize(info.Dist.UnpackedSize),
		DependenciesCount: model.Int(len(info.Dependencies)),
		Repository:        ExtractRepositoryURL(info.Repository),
		NpmURL:            "https://www.npmjs.com/package/" + name,
		LastRelease:       lastRelease,
		ReleasesLastYear:  model.Int(countReleasesSince(doc.Time, now.AddDate(0, 0, -365))),
		MaintainersCount:  model.Int(len(doc.Maintainers)),
	}
	if t, ok := format.ParseTimestamp(lastRelease); ok {
		meta.DaysSinceLastRelease = model.Int(int(now.Sub(t).Hours() / 24))
	}

	c.logger.Debug("Fetched npm metadata", "package", name, "version", latest)
	return meta, nil
}

type rangeResponse struct {
	Package   string       `json:"package"`
	Downloads []dailyPoint `json:"downloads"`
}

type dailyPoint struct {
	Day       string `json:"day"`
	Downloads int64  `json:"downloads"`
}

// FetchDownloads fetches daily downloads for the last 20 weeks and buckets them into
// complete weeks counted back from the most recent day.
func (c *Client) FetchDownloads(ctx context.Context, name string) (*model.DownloadStats, error) {
	end := c.now().UTC()
	start := end.AddDate(0, 0, -7*trendWeeks)
	rangeURL := fmt.Sprintf("%s/downloads/range/%s:%s/%s",
		c.downloadsURL, start.Format(time.DateOnly), end.Format(time.DateOnly), escapeName(name))

	var resp rangeResponse
	if err := c.http.GetJSON(ctx, rangeURL, &resp); err != nil {
		return nil, c.wrap(name, "downloads", err)
	}

	weeks := bucketWeeks(resp.Downloads, trendWeeks)
	stats := &model.DownloadStats{WeeklyTrend: weeks}
	if len(weeks) >= monthWeeks {
		for _, w := range weeks[len(weeks)-monthWeeks:] {
			stats.MonthlyDownloads += w.Downloads
		}
	}
	return stats, nil
}

// bucketWeeks groups daily points into at most maxWeeks complete 7-day weeks, working
// backwards from the latest day, and returns them oldest first. Leftover days at the
// start of the range are dropped.
func bucketWeeks(days []dailyPoint, maxWeeks int) []model.WeeklyDownloads {
	sorted := make([]dailyPoint, len(days))
	copy(sorted, days)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Day < sorted[j].Day })

	n := len(sorted) / 7
	if n > maxWeeks {
		n = maxWeeks
	}

	weeks := make([]model.WeeklyDownloads, n)
	for i := 0; i < n; i++ {
		hi := len(sorted) - i*7
		chunk := sorted[hi-7 : hi]
		var total int64
		for _, d := range chunk {
			total += d.Downloads
		}
		weeks[n-1-i] = model.WeeklyDownloads{
			Start:     chunk[0].Day,
			End:       chunk[len(chunk)-1].Day,
			Downloads: total,
		}
	}
	return weeks
}

type searchResponse struct {
	Objects []struct {
		Package struct {
			Name        string   `json:"name"`
			Version     string   `json:"version"`
			Description string   `json:"description"`
			Keywords    []string `json:"keywords"`
			Date        string   `json:"date"`
			Links       struct {
				NPM        string `json:"npm"`
				Repository string `json:"repository"`
			} `json:"links"`
			Publisher struct {
				Username string `json:"username"`
			} `json:"publisher"`
		} `json:"package"`
		Score struct {
			Final float64 `json:"final"`
		} `json:"score"`
	} `json:"objects"`
}

// Search queries the registry search endpoint. Queries shorter than two characters
// return no results without contacting the registry.
func (c *Client) Search(ctx context.Context, query string, size int) ([]model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return []model.SearchResult{}, nil
	}
	if size <= 0 {
		size = 10
	}
	if size > maxSearchSize {
		size = maxSearchSize
	}

	q := url.Values{}
	q.Set("text", query)
	q.Set("size", fmt.Sprint(size))

	var resp searchResponse
	if err := c.http.GetJSON(ctx, c.registryURL+"/-/v1/search?"+q.Encode(), &resp); err != nil {
		return nil, c.wrap(query, "search", err)
	}

	results := make([]model.SearchResult, 0, len(resp.Objects))
	for _, o := range resp.Objects {
		results = append(results, model.SearchResult{
			Name:        o.Package.Name,
			Version:     o.Package.Version,
			Description: o.Package.Description,
			Keywords:    o.Package.Keywords,
			Date:        o.Package.Date,
			NpmURL:      o.Package.Links.NPM,
			Repository:  o.Package.Links.Repository,
			Publisher:   o.Package.Publisher.Username,
			Score:       o.Score.Final,
		})
	}
	return results, nil
}

func (c *Client) wrap(name, what string, err error) error {
	switch {
	case errors.Is(err, fetch.ErrNotFound):
		return fmt.Errorf("%w: %s", perrors.ErrPackageNotFound, name)
	case errors.Is(err, fetch.ErrRateLimited):
		return fmt.Errorf("npm %s for %s: %w", what, name, perrors.ErrRateLimited)
	case errors.Is(err, fetch.ErrUpstreamDown):
		return fmt.Errorf("npm %s for %s: %w: %v", what, name, perrors.ErrUpstream, err)
	default:
		return fmt.Errorf("npm %s for %s: %w", what, name, err)
	}
}

// escapeName keeps the scope separator of scoped packages the way the registry expects (@scope%2fname).
func escapeName(name string) string {
	return url.PathEscape(name)
}

func countReleasesSince(times map[string]string, since time.Time) int {
	count := 0
	for version, ts := range times {
		if version == "created" || version == "modified" {
			continue
		}
		t, ok := format.ParseTimestamp(ts)
		if ok && !t.Before(since) {
			count++
		}
	}
	return count
}

func extractString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []any:
		if len(s) > 0 {
			if str, ok := s[0].(string); ok {
				return str
			}
		}
	}
	return ""
}

func extractLicense(v any) string {
	switch l := v.(type) {
	case string:
		return l
	case map[string]any:
		if t, ok := l["type"].(string); ok {
			return t
		}
	case []any:
		var licenses []string
		for _, item := range l {
			switch li := item.(type) {
			case string:
				licenses = append(licenses, li)
			case map[string]any:
				if t, ok := li["type"].(string); ok {
					licenses = append(licenses, t)
				}
			}
		}
		return strings.Join(licenses, " OR ")
	}
	return ""
}

func isSPDX(license string) bool {
	if license == "" {
		return false
	}
	valid, _ := spdxexp.ValidateLicenses([]string{license})
	return valid
}
