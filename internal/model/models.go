// internal/model/models.go
package model

// RegistryMetadata is the subset of npm registry metadata used to rate a package.
// Timestamps are kept as the registry publishes them (ISO-8601 strings).
type RegistryMetadata struct {
	Name                 string `json:"name"`
	LatestVersion        string `json:"latest_version"`
	Description          string `json:"description"`
	License              string `json:"license"`
	LicenseIsSPDX        bool   `json:"license_is_spdx"`
	Homepage             string `json:"homepage"`
	BundleSize           string `json:"bundle_size"`
	DependenciesCount    *int   `json:"dependencies_count,omitempty"`
	Repository           string `json:"repository"`
	NpmURL               string `json:"npm_url"`
	LastRelease          string `json:"last_release,omitempty"`
	DaysSinceLastRelease *int   `json:"days_since_last_release,omitempty"`
	ReleasesLastYear     *int   `json:"releases_last_year,omitempty"`
	MaintainersCount     *int   `json:"maintainers_count,omitempty"`
}

// WeeklyDownloads is one 7-day bucket of the download trend.
type WeeklyDownloads struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Downloads int64  `json:"downloads"`
}

// DownloadStats holds the monthly download count and the weekly trend it was derived from.
type DownloadStats struct {
	MonthlyDownloads int64             `json:"monthly_downloads"`
	WeeklyTrend      []WeeklyDownloads `json:"weekly_trend"`
}

// RepoMetadata is the repository-level data from the source host.
type RepoMetadata struct {
	Stars        *int   `json:"stars,omitempty"`
	Forks        *int   `json:"forks,omitempty"`
	LastCodePush string `json:"last_code_push,omitempty"`
	IsArchived   *bool  `json:"is_archived,omitempty"`
	IsMaintained *bool  `json:"is_maintained,omitempty"`
}

// RepoHealth is the community profile of a repository.
type RepoHealth struct {
	HealthPercentage *int `json:"health_percentage,omitempty"`
	HasReadme        bool `json:"has_readme"`
	HasLicense       bool `json:"has_license"`
	HasContributing  bool `json:"has_contributing"`
	HasCodeOfConduct bool `json:"has_code_of_conduct"`
}

// MergeTime describes how long the last merged pull request stayed open.
type MergeTime struct {
	Days          float64 `json:"days"`
	HumanReadable string  `json:"human_readable"`
}

// RepoActivity holds issue counts and information about the most recently merged pull request.
type RepoActivity struct {
	OpenIssuesCount   *int       `json:"open_issues_count,omitempty"`
	ClosedIssuesCount *int       `json:"closed_issues_count,omitempty"`
	TotalIssuesCount  *int       `json:"total_issues_count,omitempty"`
	LastPRMergedAt    string     `json:"last_pr_merged_at,omitempty"`
	LastPRMergeTime   *MergeTime `json:"last_pr_merge_time,omitempty"`
	LastPRInfo        string     `json:"last_pr_info,omitempty"`
	LastPRURL         string     `json:"last_pr_url,omitempty"`
}

// RequestState reports whether the data behind a rating is still loading or failed to load.
// An empty Error means no error.
type RequestState struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// SearchResult is one package returned by a registry search.
type SearchResult struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords,omitempty"`
	Date        string   `json:"date,omitempty"`
	NpmURL      string   `json:"npm_url,omitempty"`
	Repository  string   `json:"repository,omitempty"`
	Publisher   string   `json:"publisher,omitempty"`
	Score       float64  `json:"score"`
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
