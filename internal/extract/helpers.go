package extract

import (
	"regexp"

	"github.com/oversift/trustwatch/internal/trust"
)

// weakeningPair fires when the old snippet matches strong and the new
// snippet matches weak.
type weakeningPair struct {
	strong *regexp.Regexp
	weak   *regexp.Regexp
}

var weakeningPairs = []weakeningPair{
	{
		strong: regexp.MustCompile(`(?i)\b(do\s+not|don'?t|never)\b`),
		weak:   regexp.MustCompile(`(?i)\b(may|might|could)\b`),
	},
	{
		strong: regexp.MustCompile(`(?i)\balways\b`),
		weak:   regexp.MustCompile(`(?i)\b(typically|usually|generally)\b`),
	},
	{
		strong: regexp.MustCompile(`(?i)\ball\b`),
		weak:   regexp.MustCompile(`(?i)\b(most|some)\b`),
	},
	{
		strong: regexp.MustCompile(`(?i)\bguarantee[sd]?\b`),
		weak:   regexp.MustCompile(`(?i)\b(strive|aim|endeavor)\b`),
	},
}

// DetectWeakening reports whether the new snippet hedges a commitment the
// old snippet stated firmly.
func DetectWeakening(oldSnippet, newSnippet string) bool {
	for _, p := range weakeningPairs {
		if p.strong.MatchString(oldSnippet) && p.weak.MatchString(newSnippet) {
			return true
		}
	}
	return false
}

// DetectNumericChange compares the numeric metadata of two versions. Both
// results are false when either side lacks a number.
func DetectNumericChange(oldMeta, newMeta *trust.Numeric) (changed, decreased bool) {
	if oldMeta == nil || newMeta == nil {
		return false, false
	}
	if oldMeta.Value == newMeta.Value {
		return false, false
	}
	return true, newMeta.Value < oldMeta.Value
}
