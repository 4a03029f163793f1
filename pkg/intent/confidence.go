package intent

import "strings"

// Penalty weights for the clarification gate. Deliberately a linear
// heuristic, not a model; the only consumer compares the score against a
// threshold.
const (
	penaltyUnknownAnalysis   = 0.6
	penaltyNonCanonicalField = 0.2
	penaltyGenericTarget     = 0.15
	penaltyAmbiguousWording  = 0.15
	penaltyUnboundedTemporal = 0.15
)

var ambiguousWords = []string{
	"something", "anything", "stuff", "things", "info", "information",
	"data", "details", "it", "that thing",
}

// genericFields answer nothing on their own without a disambiguating
// filter, group_by or companion metric.
var genericFields = map[string]struct{}{
	"score_value": {},
	"patient_id":  {},
	"date":        {},
}

var temporalAnalyses = map[string]struct{}{
	AnalysisComparison:    {},
	AnalysisChange:        {},
	AnalysisTrend:         {},
	AnalysisPercentChange: {},
	AnalysisAverageChange: {},
}

// Confidence scores how unambiguous an intent is on [0,1]. Every ambiguity
// signal subtracts a fixed penalty from 1.0.
func Confidence(q QueryIntent, rawQuery string) float64 {
	score := 1.0

	if !IsKnownAnalysisType(q.AnalysisType) {
		score -= penaltyUnknownAnalysis
	}
	if !IsCanonicalField(q.TargetField) {
		score -= penaltyNonCanonicalField
	}
	if _, generic := genericFields[q.TargetField]; generic {
		if len(q.Filters) == 0 && len(q.GroupBy) == 0 && len(q.AdditionalFields) == 0 {
			score -= penaltyGenericTarget
		}
	}

	lowered := strings.ToLower(rawQuery)
	for _, word := range ambiguousWords {
		if containsWord(lowered, word) {
			score -= penaltyAmbiguousWording
			break
		}
	}

	if _, temporal := temporalAnalyses[q.AnalysisType]; temporal {
		if len(q.Filters) == 0 && len(q.Conditions) == 0 && q.TimeRange == nil {
			score -= penaltyUnboundedTemporal
		}
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func containsWord(text, word string) bool {
	idx := strings.Index(text, word)
	for idx >= 0 {
		before := idx == 0 || !isWordChar(text[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(text) || !isWordChar(text[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(text[idx+1:], word)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
