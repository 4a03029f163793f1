package clarify

import (
	"regexp"
	"strings"

	"github.com/carelens-ai/platform/pkg/intent"
)

const DefaultConfidenceThreshold = 0.75

var comparisonWordPattern = regexp.MustCompile(`(?i)\b(compare|between|versus|vs|which|better|best|correlation|relationship between)\b`)

// Gate decides whether the pipeline must stop and ask before running an
// analysis. Total over both intent outcome variants; it never errors.
type Gate struct {
	clarifier *Clarifier
	threshold float64
	offline   bool
}

func NewGate(clarifier *Clarifier, threshold float64, offline bool) *Gate {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultConfidenceThreshold
	}
	return &Gate{clarifier: clarifier, threshold: threshold, offline: offline}
}

// IsTrulyAmbiguous reports whether the query must be clarified before the
// pipeline continues. Offline there is no model to clarify with, so the
// gate never blocks.
func (g *Gate) IsTrulyAmbiguous(outcome intent.Outcome) bool {
	if g.offline {
		return false
	}

	q, ok := outcome.Intent()
	if !ok {
		return true
	}

	if q.AnalysisType == intent.AnalysisUnknown && q.TargetField == "unknown" {
		return true
	}

	// A comparative question with no resolved target and no second metric
	// cannot be answered no matter how confident the classifier was.
	if comparisonWordPattern.MatchString(q.RawQuery) &&
		len(q.AdditionalFields) == 0 && !targetResolved(q.TargetField) {
		return true
	}

	if needs, _ := g.clarifier.SpecificClarification(outcome, q.RawQuery); needs {
		return true
	}

	return intent.Confidence(q, q.RawQuery) < g.threshold
}

func targetResolved(field string) bool {
	if strings.TrimSpace(field) == "" || field == "unknown" {
		return false
	}
	return intent.IsCanonicalField(field)
}
