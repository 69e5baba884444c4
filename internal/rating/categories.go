package rating

import (
	"fmt"
	"strconv"
	"time"

	"package-health/internal/format"
	"package-health/internal/model"
)

// Inputs is everything known about a package at one moment.
// Any source may be nil when it was not fetched or failed.
type Inputs struct {
	Registry  *model.RegistryMetadata
	Downloads *model.DownloadStats
	Repo      *model.RepoMetadata
	Health    *model.RepoHealth
	Activity  *model.RepoActivity
	State     model.RequestState
}

// Metric is one display value shown under a category.
type Metric struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
	URL   string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Category is the rating of one health category with its supporting values.
type Category struct {
	Name    string   `json:"name" yaml:"name"`
	Rating  Label    `json:"rating" yaml:"rating"`
	Tier    Tier     `json:"tier" yaml:"tier"`
	Metrics []Metric `json:"metrics" yaml:"metrics"`
}

// Categories holds every rated category in display order.
type Categories struct {
	CommunityAdoption         Category `json:"community_adoption" yaml:"community_adoption"`
	ReleaseManagement         Category `json:"release_management" yaml:"release_management"`
	ImplementationFootprint   Category `json:"implementation_footprint" yaml:"implementation_footprint"`
	DocumentationCompleteness Category `json:"documentation_completeness" yaml:"documentation_completeness"`
	MaintenanceFrequency      Category `json:"maintenance_frequency" yaml:"maintenance_frequency"`
	Responsiveness            Category `json:"responsiveness" yaml:"responsiveness"`
}

// List returns the categories in display order.
func (c Categories) List() []Category {
	return []Category{
		c.CommunityAdoption,
		c.ReleaseManagement,
		c.ImplementationFootprint,
		c.DocumentationCompleteness,
		c.MaintenanceFrequency,
		c.Responsiveness,
	}
}

// Ratings is the label of each category keyed the way the API reports them.
type Ratings struct {
	CommunityAdoption         Label `json:"community_adoption" yaml:"community_adoption"`
	ReleaseManagement         Label `json:"release_management" yaml:"release_management"`
	ImplementationFootprint   Label `json:"implementation_footprint" yaml:"implementation_footprint"`
	DocumentationCompleteness Label `json:"documentation_completeness" yaml:"documentation_completeness"`
	MaintenanceFrequency      Label `json:"maintenance_frequency" yaml:"maintenance_frequency"`
	Responsiveness            Label `json:"responsiveness" yaml:"responsiveness"`
}

// Ratings extracts the labels of every category.
func (c Categories) Ratings() Ratings {
	return Ratings{
		CommunityAdoption:         c.CommunityAdoption.Rating,
		ReleaseManagement:         c.ReleaseManagement.Rating,
		ImplementationFootprint:   c.ImplementationFootprint.Rating,
		DocumentationCompleteness: c.DocumentationCompleteness.Rating,
		MaintenanceFrequency:      c.MaintenanceFrequency.Rating,
		Responsiveness:            c.Responsiveness.Rating,
	}
}

// Evaluate rates every category and assembles its display values.
func Evaluate(in Inputs, now time.Time) Categories {
	reg, dl, repo, health, act := in.Registry, in.Downloads, in.Repo, in.Health, in.Activity
	if reg == nil {
		reg = &model.RegistryMetadata{}
	}
	if dl == nil {
		dl = &model.DownloadStats{}
	}
	if repo == nil {
		repo = &model.RepoMetadata{}
	}
	if act == nil {
		act = &model.RepoActivity{}
	}

	return Categories{
		CommunityAdoption: newCategory("Community Adoption",
			ClassifyAdoption(in.Downloads, in.Repo, in.State),
			Metric{Key: "monthly_downloads", Label: "Monthly downloads", Value: format.FormatDownloads(dl.MonthlyDownloads)},
			Metric{Key: "stars", Label: "Stars", Value: format.FormatIntPtr(repo.Stars)},
			Metric{Key: "forks", Label: "Forks", Value: format.FormatIntPtr(repo.Forks)},
		),
		ReleaseManagement: newCategory("Release Management",
			ClassifyReleaseManagement(in.Registry, in.Repo, in.State),
			Metric{Key: "days_since_last_release", Label: "Days since last release", Value: intOrNA(reg.DaysSinceLastRelease)},
			Metric{Key: "releases_last_year", Label: "Releases in the last year", Value: intOrNA(reg.ReleasesLastYear)},
			Metric{Key: "is_archived", Label: "Archived", Value: format.FormatFlag(repo.IsArchived)},
			Metric{Key: "maintainers_count", Label: "Maintainers", Value: intOrNA(reg.MaintainersCount)},
		),
		ImplementationFootprint: newCategory("Implementation Footprint",
			ClassifyFootprint(in.Registry, in.State),
			Metric{Key: "bundle_size", Label: "Unpacked size", Value: stringOrNA(reg.BundleSize)},
			Metric{Key: "dependencies_count", Label: "Dependencies", Value: intOrNA(reg.DependenciesCount)},
		),
		DocumentationCompleteness: newCategory("Documentation Completeness",
			ClassifyDocumentation(in.Health, in.State),
			documentationMetrics(health)...,
		),
		MaintenanceFrequency: newCategory("Maintenance Frequency",
			ClassifyMaintenance(in.Repo, in.Activity, in.State, now),
			Metric{Key: "is_maintained", Label: "Maintained", Value: format.FormatFlag(repo.IsMaintained)},
			Metric{Key: "last_code_push", Label: "Last code push", Value: format.FormatRelativeDate(repo.LastCodePush, now)},
			Metric{Key: "issues", Label: "Issues", Value: format.FormatIssuesCombined(int64Of(act.OpenIssuesCount), int64Of(act.ClosedIssuesCount))},
			Metric{Key: "last_pr_merged", Label: "Last PR merged", Value: format.FormatCombinedPrInfo(act.LastPRMergedAt, act.LastPRInfo, now), URL: act.LastPRURL},
		),
		Responsiveness: newCategory("Responsiveness",
			ClassifyResponsiveness(in.Activity, in.State, now),
			Metric{Key: "open_issue_ratio", Label: "Open issues", Value: openRatio(act)},
			Metric{Key: "last_pr_merged_at", Label: "Last PR merged", Value: format.FormatRelativeCalendarDate(act.LastPRMergedAt, now)},
		),
	}
}

func newCategory(name string, l Label, metrics ...Metric) Category {
	return Category{Name: name, Rating: l, Tier: TierOf(l), Metrics: metrics}
}

func documentationMetrics(h *model.RepoHealth) []Metric {
	if h == nil {
		return []Metric{
			{Key: "health_percentage", Label: "Health score", Value: format.NA},
			{Key: "has_readme", Label: "README", Value: format.NA},
			{Key: "has_license", Label: "License", Value: format.NA},
			{Key: "has_contributing", Label: "Contributing guide", Value: format.NA},
			{Key: "has_code_of_conduct", Label: "Code of conduct", Value: format.NA},
		}
	}
	pct := format.NA
	if h.HealthPercentage != nil && *h.HealthPercentage > 0 {
		pct = fmt.Sprintf("%d%%", *h.HealthPercentage)
	}
	return []Metric{
		{Key: "health_percentage", Label: "Health score", Value: pct},
		{Key: "has_readme", Label: "README", Value: format.FormatFlag(&h.HasReadme)},
		{Key: "has_license", Label: "License", Value: format.FormatFlag(&h.HasLicense)},
		{Key: "has_contributing", Label: "Contributing guide", Value: format.FormatFlag(&h.HasContributing)},
		{Key: "has_code_of_conduct", Label: "Code of conduct", Value: format.FormatFlag(&h.HasCodeOfConduct)},
	}
}

func openRatio(a *model.RepoActivity) string {
	if a.TotalIssuesCount == nil || *a.TotalIssuesCount == 0 {
		return format.NA
	}
	return fmt.Sprintf("%.0f%%", 100*float64(int64Of(a.OpenIssuesCount))/float64(*a.TotalIssuesCount))
}

func intOrNA(n *int) string {
	if n == nil {
		return format.NA
	}
	return strconv.Itoa(*n)
}

func stringOrNA(s string) string {
	if s == "" {
		return format.NA
	}
	return s
}

func int64Of(n *int) int64 {
	if n == nil {
		return 0
	}
	return int64(*n)
}
