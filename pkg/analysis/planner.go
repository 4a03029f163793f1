package analysis

import (
	"strings"

	"github.com/carelens-ai/platform/pkg/intent"
)

// BuildPlan routes a validated intent to its plan variant. It never fails:
// analysis types with no template become a fallback plan keyed off the raw
// query text, which still produces a uniform result.
func BuildPlan(q intent.QueryIntent) Plan {
	base := Plan{
		TargetField: q.TargetField,
		Filters:     append([]intent.Filter(nil), q.Filters...),
		Conditions:  append([]intent.Condition(nil), q.Conditions...),
		GroupBy:     append([]string(nil), q.GroupBy...),
		TimeRange:   q.TimeRange,
		RawQuery:    q.RawQuery,
	}

	switch q.AnalysisType {
	case intent.AnalysisCount:
		base.Kind = PlanAggregate
		base.Aggregate = &AggregateOptions{SQLFunc: "COUNT"}
	case intent.AnalysisSum:
		base.Kind = PlanAggregate
		base.Aggregate = &AggregateOptions{SQLFunc: "SUM"}
	case intent.AnalysisAverage:
		base.Kind = PlanAggregate
		base.Aggregate = &AggregateOptions{SQLFunc: "AVG"}
	case intent.AnalysisMin:
		base.Kind = PlanAggregate
		base.Aggregate = &AggregateOptions{SQLFunc: "MIN"}
	case intent.AnalysisMax:
		base.Kind = PlanAggregate
		base.Aggregate = &AggregateOptions{SQLFunc: "MAX"}
	case intent.AnalysisMedian:
		base.Kind = PlanAggregate
		base.Aggregate = &AggregateOptions{Derived: "median"}
	case intent.AnalysisVariance:
		base.Kind = PlanAggregate
		base.Aggregate = &AggregateOptions{Derived: "variance"}
	case intent.AnalysisStdDev:
		base.Kind = PlanAggregate
		base.Aggregate = &AggregateOptions{Derived: "std_dev"}

	case intent.AnalysisTrend:
		base.Kind = PlanTrend
		base.Trend = &TrendOptions{Period: stringParam(q.Parameters, "period", "month")}

	case intent.AnalysisTopN:
		base.Kind = PlanTopN
		base.TopN = &TopNOptions{N: intParam(q.Parameters, DefaultTopN, "n", "N")}

	case intent.AnalysisHistogram, intent.AnalysisDistribution:
		base.Kind = PlanHistogram
		base.Histogram = &HistogramOptions{Bins: intParam(q.Parameters, DefaultHistogramBins, "bins")}

	case intent.AnalysisComparison:
		base.Kind = PlanComparison

	case intent.AnalysisChange, intent.AnalysisAverageChange:
		base.Kind = PlanChange
		base.Change = &ChangeOptions{Windows: relativeWindows(q.Parameters)}

	case intent.AnalysisPercentChange:
		base.Kind = PlanChange
		base.Change = &ChangeOptions{Percent: true, Windows: relativeWindows(q.Parameters)}

	case intent.AnalysisCorrelation:
		second := ""
		if len(q.AdditionalFields) > 0 {
			second = q.AdditionalFields[0]
		}
		kind := "simple"
		if len(q.GroupBy) > 0 {
			kind = "conditional"
		} else if stringParam(q.Parameters, "period", "") != "" {
			kind = "time_series"
		}
		base.Kind = PlanCorrelation
		base.Correlation = &CorrelationOptions{
			Method:      stringParam(q.Parameters, "method", "pearson"),
			SecondField: second,
			Kind:        kind,
			Period:      stringParam(q.Parameters, "period", ""),
		}

	default:
		return buildFallbackPlan(q)
	}

	return base
}

// buildFallbackPlan is the last resort for unrecognized analysis types: a
// best-effort plan scraped out of the raw query text. It always yields a
// result the renderer can display.
func buildFallbackPlan(q intent.QueryIntent) Plan {
	lowered := strings.ToLower(q.RawQuery)

	target := q.TargetField
	if !intent.IsCanonicalField(target) {
		target = "patient_id"
		for _, metric := range []string{"weight", "bmi", "sbp", "dbp", "score_value"} {
			if strings.Contains(lowered, strings.ReplaceAll(metric, "_", " ")) || strings.Contains(lowered, metric) {
				target = metric
				break
			}
		}
	}

	plan := Plan{
		Kind:        PlanFallback,
		TargetField: target,
		Filters:     append([]intent.Filter(nil), q.Filters...),
		Conditions:  append([]intent.Condition(nil), q.Conditions...),
		TimeRange:   q.TimeRange,
		RawQuery:    q.RawQuery,
	}

	if target != "patient_id" && (strings.Contains(lowered, "average") || strings.Contains(lowered, "mean") || strings.Contains(lowered, "typical")) {
		plan.Aggregate = &AggregateOptions{SQLFunc: "AVG"}
	} else {
		plan.Aggregate = &AggregateOptions{SQLFunc: "COUNT"}
		if target == "" {
			plan.TargetField = "patient_id"
		}
	}
	return plan
}

func stringParam(params map[string]interface{}, key, fallback string) string {
	if params == nil {
		return fallback
	}
	if v, ok := params[key]; ok {
		if s, isString := v.(string); isString && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return fallback
}

func intParam(params map[string]interface{}, fallback int, keys ...string) int {
	if params == nil {
		return fallback
	}
	for _, key := range keys {
		if v, ok := params[key]; ok {
			switch n := v.(type) {
			case int:
				if n > 0 {
					return n
				}
			case float64:
				if n > 0 {
					return int(n)
				}
			}
		}
	}
	return fallback
}

func relativeWindows(params map[string]interface{}) *RelativeWindows {
	if params == nil {
		return nil
	}
	raw, ok := params["relative_date_filters"].(map[string]interface{})
	if !ok {
		return nil
	}
	baseline, okB := windowFromParam(raw["baseline"])
	followUp, okF := windowFromParam(raw["follow_up"])
	if !okB || !okF {
		return nil
	}
	return &RelativeWindows{Baseline: baseline, FollowUp: followUp}
}

func windowFromParam(v interface{}) (intent.DateRange, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return intent.DateRange{}, false
	}
	start, okS := m["start_date"].(string)
	end, okE := m["end_date"].(string)
	if !okS || !okE {
		return intent.DateRange{}, false
	}
	dr, err := intent.ParseDateRange(start, end)
	if err != nil {
		return intent.DateRange{}, false
	}
	return dr, true
}
