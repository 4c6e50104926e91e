// Package worker implements the crawl and evidence job pipelines.
package worker

import (
	"github.com/oversift/trustwatch/internal/extract"
	"github.com/oversift/trustwatch/internal/trust"
)

// SeverityFor maps (event type, claim type, numeric-decrease) to a severity.
// It is a pure function; the full matrix is fixed.
func SeverityFor(eventType trust.EventType, claimType trust.ClaimType, decreased bool) trust.Severity {
	switch eventType {
	case trust.EventWeakened, trust.EventReversed:
		return trust.SeverityCritical
	case trust.EventRemoved:
		if claimType == trust.ClaimCompliance {
			return trust.SeverityCritical
		}
		return trust.SeverityMedium
	case trust.EventNumberChanged:
		if decreased {
			return trust.SeverityMedium
		}
		return trust.SeverityInfo
	default:
		return trust.SeverityInfo
	}
}

// Classify compares two consecutive versions of a claim and returns the
// event to emit. Weakening wins over a numeric change, which wins over a
// polarity reversal; a changed text with none of those signals falls back
// to ADDED, preserving legacy semantics.
func Classify(oldV, newV trust.ClaimVersion, claimType trust.ClaimType) (trust.EventType, trust.Severity) {
	if extract.DetectWeakening(oldV.Snippet, newV.Snippet) {
		return trust.EventWeakened, SeverityFor(trust.EventWeakened, claimType, false)
	}
	if changed, decreased := extract.DetectNumericChange(oldV.Meta, newV.Meta); changed {
		return trust.EventNumberChanged, SeverityFor(trust.EventNumberChanged, claimType, decreased)
	}
	if polarityFlipped(oldV.Polarity, newV.Polarity) {
		return trust.EventReversed, SeverityFor(trust.EventReversed, claimType, false)
	}
	return trust.EventAdded, SeverityFor(trust.EventAdded, claimType, false)
}

// polarityFlipped is true only for a positive/negative swap; drifting into
// or out of neutral is not a reversal.
func polarityFlipped(oldP, newP trust.Polarity) bool {
	return oldP != newP && oldP != trust.PolarityNeutral && newP != trust.PolarityNeutral
}

// RiskDelta returns the additive risk contribution of one event.
func RiskDelta(eventType trust.EventType, severity trust.Severity) int {
	switch {
	case eventType == trust.EventRemoved && severity == trust.SeverityCritical:
		return 40
	case eventType == trust.EventWeakened && severity == trust.SeverityCritical:
		return 40
	case eventType == trust.EventNumberChanged && severity == trust.SeverityMedium:
		return 10
	case eventType == trust.EventReversed:
		return 30
	default:
		return 0
	}
}
