package rating

import (
	"math"
	"regexp"
	"strconv"
	"time"

	"package-health/internal/format"
	"package-health/internal/model"
)

const (
	strongMonthlyDownloads   = 1_000_000
	strongStars              = 10_000
	moderateMonthlyDownloads = 100_000
	moderateStars            = 1_000
)

// sentinel applies the Loading/Error priority shared by every category.
func sentinel(state model.RequestState) (Label, bool) {
	if state.Loading {
		return Loading, true
	}
	if state.Error != "" {
		return Error, true
	}
	return "", false
}

// ClassifyAdoption rates community adoption from monthly downloads and stars.
// Either signal alone can lift the rating.
func ClassifyAdoption(downloads *model.DownloadStats, repo *model.RepoMetadata, state model.RequestState) Label {
	if l, ok := sentinel(state); ok {
		return l
	}

	var monthly int64
	if downloads != nil {
		monthly = downloads.MonthlyDownloads
	}
	stars := 0
	if repo != nil && repo.Stars != nil {
		stars = *repo.Stars
	}

	switch {
	case monthly >= strongMonthlyDownloads || stars >= strongStars:
		return Strong
	case monthly >= moderateMonthlyDownloads || stars >= moderateStars:
		return Moderate
	default:
		return Limited
	}
}

// ClassifyReleaseManagement rates release cadence from the registry's release history.
// An archived repository is always Infrequent.
func ClassifyReleaseManagement(registry *model.RegistryMetadata, repo *model.RepoMetadata, state model.RequestState) Label {
	if l, ok := sentinel(state); ok {
		return l
	}
	if registry == nil {
		return Infrequent
	}
	if isArchived(repo) {
		return Infrequent
	}

	days, releases := registry.DaysSinceLastRelease, registry.ReleasesLastYear
	if days == nil || releases == nil {
		return Infrequent
	}

	switch {
	case *days <= 30 && *releases >= 12:
		return Regular
	case *days <= 90 && *releases >= 4:
		return Occasional
	default:
		return Infrequent
	}
}

// ClassifyFootprint rates install footprint from bundle size and dependency count.
// Both bounds are strict: 100 KB and 5 dependencies are not Lightweight.
func ClassifyFootprint(registry *model.RegistryMetadata, state model.RequestState) Label {
	if l, ok := sentinel(state); ok {
		return l
	}
	if registry == nil {
		return Heavy
	}

	sizeKB := ParseBundleSizeKB(registry.BundleSize)
	deps := 0
	if registry.DependenciesCount != nil {
		deps = *registry.DependenciesCount
	}

	switch {
	case sizeKB < 100 && deps < 5:
		return Lightweight
	case sizeKB < 500 && deps < 15:
		return Moderate
	default:
		return Heavy
	}
}

var leadingNumber = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)`)

// ParseBundleSizeKB reads the leading number of a bundle size such as "42.2 KB" as kilobytes.
// The unit suffix is ignored. Unparsable input is 0.
func ParseBundleSizeKB(s string) float64 {
	m := leadingNumber.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}

// ClassifyDocumentation rates documentation from the repository's community profile.
// Thorough needs README and license plus a contributing guide or code of conduct.
func ClassifyDocumentation(health *model.RepoHealth, state model.RequestState) Label {
	if l, ok := sentinel(state); ok {
		return l
	}
	if health == nil {
		return Unavailable
	}

	pct := -1
	if health.HealthPercentage != nil {
		pct = *health.HealthPercentage
	}
	basic := health.HasReadme && health.HasLicense
	advanced := health.HasContributing || health.HasCodeOfConduct

	switch {
	case pct >= 80 && basic && advanced:
		return Thorough
	case pct >= 50 && basic:
		return Adequate
	default:
		return Sparse
	}
}

// ClassifyMaintenance rates how often the repository sees code pushes and merged pull requests.
func ClassifyMaintenance(repo *model.RepoMetadata, activity *model.RepoActivity, state model.RequestState, now time.Time) Label {
	if l, ok := sentinel(state); ok {
		return l
	}
	if repo == nil && activity == nil {
		return Unavailable
	}
	if isArchived(repo) {
		return Infrequent
	}

	var pushDays, prDays int
	var hasPush, hasPR bool
	if repo != nil {
		pushDays, hasPush = DaysSince(repo.LastCodePush, now)
	}
	if activity != nil {
		prDays, hasPR = DaysSince(activity.LastPRMergedAt, now)
	}
	maintained := repo != nil && repo.IsMaintained != nil && *repo.IsMaintained

	switch {
	case maintained && ((hasPush && pushDays <= 30) || (hasPR && prDays <= 14)):
		return Regular
	case (hasPush && pushDays <= 90) || (hasPR && prDays <= 30):
		return Occasional
	default:
		return Infrequent
	}
}

// ClassifyResponsiveness rates how quickly the project turns around issues and pull requests,
// from the last merge date and the share of issues still open.
func ClassifyResponsiveness(activity *model.RepoActivity, state model.RequestState, now time.Time) Label {
	if l, ok := sentinel(state); ok {
		return l
	}
	if activity == nil {
		return Backlogged
	}

	ratio := 0.0
	if activity.TotalIssuesCount != nil && *activity.TotalIssuesCount > 0 {
		open := 0
		if activity.OpenIssuesCount != nil {
			open = *activity.OpenIssuesCount
		}
		ratio = float64(open) / float64(*activity.TotalIssuesCount)
	}

	prDays, hasPR := DaysSince(activity.LastPRMergedAt, now)
	switch {
	case hasPR && prDays <= 14 && ratio <= 0.2:
		return Responsive
	case hasPR && prDays <= 30 && ratio <= 0.5:
		return Moderate
	default:
		return Backlogged
	}
}

// DaysSince returns the whole days elapsed from ts to now, rounded down.
// ok is false when ts is missing or unparsable.
func DaysSince(ts string, now time.Time) (days int, ok bool) {
	t, ok := format.ParseTimestamp(ts)
	if !ok {
		return 0, false
	}
	return int(math.Floor(float64(now.Sub(t)) / float64(24*time.Hour))), true
}

func isArchived(repo *model.RepoMetadata) bool {
	return repo != nil && repo.IsArchived != nil && *repo.IsArchived
}
