// Package rating classifies package and repository metrics into qualitative health labels.
//
// Every classifier is a pure, total function: it never fails, and missing or malformed
// input routes to the category's fallback label instead of being read as zero.
// All classifiers apply the same priority: Loading, then Error, then the category rule.
package rating

// Label is a qualitative rating emitted for one health category.
type Label string

const (
	Strong      Label = "Strong"
	Moderate    Label = "Moderate"
	Limited     Label = "Limited"
	Regular     Label = "Regular"
	Occasional  Label = "Occasional"
	Infrequent  Label = "Infrequent"
	Lightweight Label = "Lightweight"
	Heavy       Label = "Heavy"
	Thorough    Label = "Thorough"
	Adequate    Label = "Adequate"
	Sparse      Label = "Sparse"
	Responsive  Label = "Responsive"
	Backlogged  Label = "Backlogged"
	Unavailable Label = "Unavailable"
	Loading     Label = "Loading"
	Error       Label = "Error"
)

// Tier is the visual weight a display layer gives a label.
type Tier string

const (
	TierPositive       Tier = "positive"
	TierNeutralCaution Tier = "neutral-caution"
	TierNegative       Tier = "negative"
	TierNeutral        Tier = "neutral"
	TierCaution        Tier = "caution"
)

// TierOf maps a label to its display tier. Labels outside the known set are neutral.
func TierOf(l Label) Tier {
	switch l {
	case Strong, Regular, Thorough, Responsive, Lightweight:
		return TierPositive
	case Moderate, Occasional, Adequate:
		return TierNeutralCaution
	case Limited, Infrequent, Sparse, Backlogged, Heavy:
		return TierNegative
	case Error:
		return TierCaution
	default:
		return TierNeutral
	}
}

// Rank orders labels from worst (0) to best (2) within a category.
// Sentinels (Loading, Error, Unavailable) and unknown labels rank -1.
func Rank(l Label) int {
	switch l {
	case Limited, Infrequent, Heavy, Sparse, Backlogged:
		return 0
	case Moderate, Occasional, Adequate:
		return 1
	case Strong, Regular, Lightweight, Thorough, Responsive:
		return 2
	default:
		return -1
	}
}
