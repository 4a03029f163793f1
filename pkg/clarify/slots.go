package clarify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/carelens-ai/platform/pkg/conditions"
	"github.com/carelens-ai/platform/pkg/intent"
)

type SlotType string

const (
	SlotTimeRange         SlotType = "time_range"
	SlotMetric            SlotType = "metric"
	SlotDemographicFilter SlotType = "demographic_filter"
	SlotComparisonGroup   SlotType = "comparison_group"
	SlotAnalysisSpecific  SlotType = "analysis_specific"
	SlotIntentUnclear     SlotType = "intent_unclear"
	SlotConditionUnclear  SlotType = "condition_unclear"
)

// MissingSlot describes one piece of information a query is missing before
// it can be answered unambiguously.
type MissingSlot struct {
	Type        SlotType `json:"type"`
	Description string   `json:"description"`
	FieldHint   string   `json:"field_hint,omitempty"`
	Question    string   `json:"question"`
}

var timeSensitiveAnalyses = map[string]struct{}{
	intent.AnalysisTrend:         {},
	intent.AnalysisChange:        {},
	intent.AnalysisComparison:    {},
	intent.AnalysisPercentChange: {},
	intent.AnalysisAverageChange: {},
}

var comparisonAnalyses = map[string]struct{}{
	intent.AnalysisComparison:    {},
	intent.AnalysisChange:        {},
	intent.AnalysisPercentChange: {},
	intent.AnalysisTopN:          {},
}

// coreClinicalMetrics default to active patients only unless the user says
// otherwise.
var coreClinicalMetrics = map[string]struct{}{
	"weight": {}, "bmi": {}, "sbp": {}, "dbp": {}, "score_value": {},
}

var timeCuePattern = regexp.MustCompile(`(?i)\b(trend|over time|change|changed|changing)\b`)

// Clarifier inspects parsed intents for missing slots. TestMode suppresses
// the active-status default check so batch fixtures do not have to carry an
// active filter everywhere.
type Clarifier struct {
	mapper   *conditions.Mapper
	testMode bool
}

type Option func(*Clarifier)

func WithTestMode() Option {
	return func(c *Clarifier) { c.testMode = true }
}

func NewClarifier(mapper *conditions.Mapper, opts ...Option) *Clarifier {
	c := &Clarifier{mapper: mapper}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// IdentifySlots returns every missing slot for a query, in check order. A
// failed parse or a fallback intent short-circuits to a single
// intent-unclear slot; nothing else is worth asking about at that point.
func (c *Clarifier) IdentifySlots(outcome intent.Outcome, rawQuery string) []MissingSlot {
	q, ok := outcome.Intent()
	if !ok || q.IsFallback() {
		return []MissingSlot{{
			Type:        SlotIntentUnclear,
			Description: "the question could not be understood",
			Question:    "I wasn't able to work out what you're asking. Could you rephrase the question, naming the metric and the kind of analysis you want?",
		}}
	}

	var slots []MissingSlot

	if _, temporal := timeSensitiveAnalyses[q.AnalysisType]; temporal && !q.HasDateFilter() {
		slots = append(slots, MissingSlot{
			Type:        SlotTimeRange,
			Description: fmt.Sprintf("%s analysis has no time window", q.AnalysisType),
			FieldHint:   "date",
			Question:    "What time period should I look at (for example \"the last 6 months\" or \"January to June 2025\")?",
		})
	}

	if !intent.IsCanonicalField(q.TargetField) {
		slots = append(slots, MissingSlot{
			Type:        SlotMetric,
			Description: fmt.Sprintf("target field %q is not a known metric", q.TargetField),
			Question:    "Which metric do you mean — weight, BMI, blood pressure, or a clinical score?",
		})
	} else if q.TargetField == "score_value" && len(q.Filters) == 0 {
		slots = append(slots, MissingSlot{
			Type:        SlotMetric,
			Description: "score_value without a score_type filter is ambiguous",
			FieldHint:   "score_type",
			Question:    "Which score do you mean (for example PHQ-9, GAD-7 or A1C)?",
		})
	}

	if _, comparative := comparisonAnalyses[q.AnalysisType]; comparative {
		if len(q.GroupBy) == 0 && !q.HasDemographicFilter() {
			slots = append(slots, MissingSlot{
				Type:        SlotDemographicFilter,
				Description: fmt.Sprintf("%s analysis has no comparison group", q.AnalysisType),
				Question:    "Which groups should I compare (for example by gender, age band or ethnicity)?",
			})
		}
	}

	if !c.testMode {
		if _, core := coreClinicalMetrics[q.TargetField]; core && !q.HasFilterOn("active") {
			slots = append(slots, MissingSlot{
				Type:        SlotDemographicFilter,
				Description: "no active-status filter on a core clinical metric",
				FieldHint:   "active",
				Question:    "Should I include only active patients, or everyone?",
			})
		}
	}

	if q.AnalysisType == intent.AnalysisCorrelation && len(q.AdditionalFields) == 0 {
		slots = append(slots, MissingSlot{
			Type:        SlotAnalysisSpecific,
			Description: "correlation needs a second metric",
			Question:    "What should I correlate " + displayField(q.TargetField) + " with?",
		})
	}

	if q.AnalysisType == intent.AnalysisTopN && !hasPositiveN(q.Parameters) {
		slots = append(slots, MissingSlot{
			Type:        SlotAnalysisSpecific,
			Description: "top_n has no n",
			FieldHint:   "n",
			Question:    "How many top results would you like?",
		})
	}

	slots = append(slots, c.conditionSlots(q, rawQuery)...)

	return slots
}

func (c *Clarifier) conditionSlots(q intent.QueryIntent, rawQuery string) []MissingSlot {
	mentionsCondition := q.TargetField == "condition" ||
		strings.Contains(strings.ToLower(rawQuery), "condition")
	if !mentionsCondition {
		return nil
	}

	var slots []MissingSlot
	sawConditionFilter := false
	for _, f := range q.Filters {
		if f.Field != "condition" {
			continue
		}
		sawConditionFilter = true
		term, ok := f.Value.(string)
		if !ok || c.mapper == nil {
			continue
		}
		if c.mapper.ShouldAskClarifyingQuestion(term) {
			slots = append(slots, MissingSlot{
				Type:        SlotConditionUnclear,
				Description: fmt.Sprintf("condition %q is not in the catalog", term),
				FieldHint:   "condition",
				Question:    fmt.Sprintf("I don't recognize the condition %q. Could you give its full name or the diagnosis code?", term),
			})
		}
	}

	if !sawConditionFilter && q.AnalysisType == intent.AnalysisCount {
		slots = append(slots, MissingSlot{
			Type:        SlotConditionUnclear,
			Description: "count query mentions a condition but names none",
			FieldHint:   "condition",
			Question:    "Which condition should I count patients for?",
		})
	}

	return slots
}

// SpecificClarification filters the raw slot list down to the slots that
// truly block an answer and returns the questions to surface. Active-status
// slots are resolved by defaulting to active patients rather than asking;
// time-range slots are only surfaced when the query itself talks about
// time.
func (c *Clarifier) SpecificClarification(outcome intent.Outcome, rawQuery string) (bool, []string) {
	slots := c.IdentifySlots(outcome, rawQuery)
	var questions []string
	for _, slot := range slots {
		switch {
		case slot.Type == SlotDemographicFilter && slot.FieldHint == "active":
			// Default assumption applied downstream: active patients only.
			continue
		case slot.Type == SlotTimeRange && !timeCuePattern.MatchString(rawQuery):
			continue
		}
		questions = append(questions, slot.Question)
	}
	return len(questions) > 0, questions
}

func hasPositiveN(params map[string]interface{}) bool {
	for _, key := range []string{"n", "N"} {
		if v, ok := params[key]; ok {
			switch n := v.(type) {
			case int:
				if n > 0 {
					return true
				}
			case float64:
				if n > 0 {
					return true
				}
			case string:
				if strings.TrimSpace(n) != "" && n != "0" {
					return true
				}
			}
		}
	}
	return false
}

func displayField(field string) string {
	switch field {
	case "sbp":
		return "systolic blood pressure"
	case "dbp":
		return "diastolic blood pressure"
	case "bmi":
		return "BMI"
	default:
		return strings.ReplaceAll(field, "_", " ")
	}
}
