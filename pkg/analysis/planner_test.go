package analysis

import (
	"testing"

	"github.com/carelens-ai/platform/pkg/intent"
)

func TestBuildPlanAggregates(t *testing.T) {
	cases := []struct {
		analysis string
		sqlFunc  string
		derived  string
	}{
		{intent.AnalysisCount, "COUNT", ""},
		{intent.AnalysisSum, "SUM", ""},
		{intent.AnalysisAverage, "AVG", ""},
		{intent.AnalysisMin, "MIN", ""},
		{intent.AnalysisMax, "MAX", ""},
		{intent.AnalysisMedian, "", "median"},
		{intent.AnalysisVariance, "", "variance"},
		{intent.AnalysisStdDev, "", "std_dev"},
	}
	for _, tc := range cases {
		plan := BuildPlan(intent.QueryIntent{AnalysisType: tc.analysis, TargetField: "bmi"})
		if plan.Kind != PlanAggregate {
			t.Fatalf("%s: expected aggregate plan, got %s", tc.analysis, plan.Kind)
		}
		if plan.Aggregate == nil {
			t.Fatalf("%s: missing aggregate options", tc.analysis)
		}
		if plan.Aggregate.SQLFunc != tc.sqlFunc || plan.Aggregate.Derived != tc.derived {
			t.Fatalf("%s: got options %+v", tc.analysis, plan.Aggregate)
		}
	}
}

func TestBuildPlanCarriesConstraints(t *testing.T) {
	tr, err := intent.ParseDateRange("2025-01-01", "2025-06-30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := intent.QueryIntent{
		AnalysisType: intent.AnalysisAverage,
		TargetField:  "weight",
		Filters:      []intent.Filter{intent.NewValueFilter("gender", "F")},
		Conditions:   []intent.Condition{{Field: "age", Operator: ">=", Value: 65}},
		GroupBy:      []string{"ethnicity"},
		TimeRange:    &tr,
	}
	plan := BuildPlan(q)
	if len(plan.Filters) != 1 || len(plan.Conditions) != 1 || len(plan.GroupBy) != 1 {
		t.Fatalf("constraints not carried: %+v", plan)
	}
	if plan.TimeRange == nil || !plan.TimeRange.StartDate.Equal(tr.StartDate) {
		t.Fatalf("time range not carried: %+v", plan.TimeRange)
	}
}

func TestBuildPlanParameterDefaults(t *testing.T) {
	plan := BuildPlan(intent.QueryIntent{AnalysisType: intent.AnalysisTopN, TargetField: "bmi"})
	if plan.Kind != PlanTopN || plan.TopN.N != DefaultTopN {
		t.Fatalf("expected default top-n, got %+v", plan.TopN)
	}

	plan = BuildPlan(intent.QueryIntent{
		AnalysisType: intent.AnalysisTopN,
		TargetField:  "bmi",
		Parameters:   map[string]interface{}{"n": float64(5)},
	})
	if plan.TopN.N != 5 {
		t.Fatalf("expected n=5 from JSON number, got %d", plan.TopN.N)
	}

	plan = BuildPlan(intent.QueryIntent{
		AnalysisType: intent.AnalysisTrend,
		TargetField:  "weight",
		Parameters:   map[string]interface{}{"period": "week"},
	})
	if plan.Kind != PlanTrend || plan.Trend.Period != "week" {
		t.Fatalf("expected weekly trend, got %+v", plan.Trend)
	}

	plan = BuildPlan(intent.QueryIntent{AnalysisType: intent.AnalysisDistribution, TargetField: "bmi"})
	if plan.Kind != PlanHistogram || plan.Histogram.Bins != DefaultHistogramBins {
		t.Fatalf("expected histogram plan with default bins, got %+v", plan)
	}
}

func TestBuildPlanCorrelationKinds(t *testing.T) {
	base := intent.QueryIntent{
		AnalysisType:     intent.AnalysisCorrelation,
		TargetField:      "weight",
		AdditionalFields: []string{"bmi"},
	}

	plan := BuildPlan(base)
	if plan.Correlation.Kind != "simple" || plan.Correlation.SecondField != "bmi" || plan.Correlation.Method != "pearson" {
		t.Fatalf("unexpected simple correlation options: %+v", plan.Correlation)
	}

	grouped := base
	grouped.GroupBy = []string{"gender"}
	if plan = BuildPlan(grouped); plan.Correlation.Kind != "conditional" {
		t.Fatalf("expected conditional correlation with group_by, got %q", plan.Correlation.Kind)
	}

	periodic := base
	periodic.Parameters = map[string]interface{}{"period": "month", "method": "spearman"}
	plan = BuildPlan(periodic)
	if plan.Correlation.Kind != "time_series" || plan.Correlation.Method != "spearman" {
		t.Fatalf("expected spearman time-series correlation, got %+v", plan.Correlation)
	}
}

func TestBuildPlanChangeWindows(t *testing.T) {
	q := intent.QueryIntent{
		AnalysisType: intent.AnalysisPercentChange,
		TargetField:  "weight",
		Parameters: map[string]interface{}{
			"relative_date_filters": map[string]interface{}{
				"baseline":  map[string]interface{}{"start_date": "2025-01-01", "end_date": "2025-01-31"},
				"follow_up": map[string]interface{}{"start_date": "2025-06-01", "end_date": "2025-06-30"},
			},
		},
	}
	plan := BuildPlan(q)
	if plan.Kind != PlanChange || !plan.Change.Percent {
		t.Fatalf("expected percent change plan, got %+v", plan)
	}
	if plan.Change.Windows == nil {
		t.Fatal("expected baseline/follow-up windows")
	}
	if got := plan.Change.Windows.Baseline.EndDate.Format("2006-01-02"); got != "2025-01-31" {
		t.Fatalf("unexpected baseline window end: %s", got)
	}
}

func TestBuildPlanFallback(t *testing.T) {
	plan := BuildPlan(intent.QueryIntent{
		AnalysisType: intent.AnalysisUnknown,
		TargetField:  "unknown",
		RawQuery:     "what is the typical bmi here",
	})
	if plan.Kind != PlanFallback {
		t.Fatalf("expected fallback plan, got %s", plan.Kind)
	}
	if plan.TargetField != "bmi" {
		t.Fatalf("expected target scraped from text, got %q", plan.TargetField)
	}
	if plan.Aggregate == nil || plan.Aggregate.SQLFunc != "AVG" {
		t.Fatalf("expected AVG fallback for 'typical', got %+v", plan.Aggregate)
	}

	plan = BuildPlan(intent.QueryIntent{
		AnalysisType: "made_up",
		TargetField:  "unknown",
		RawQuery:     "tell me about the clinic",
	})
	if plan.TargetField != "patient_id" || plan.Aggregate.SQLFunc != "COUNT" {
		t.Fatalf("expected patient count fallback, got %+v", plan)
	}
}
