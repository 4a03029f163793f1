package analysis

import "github.com/carelens-ai/platform/pkg/intent"

// PlanKind tags the analysis plan variant. Exactly one options struct is
// populated per kind; the executor switches on the tag.
type PlanKind string

const (
	PlanAggregate   PlanKind = "aggregate"
	PlanTrend       PlanKind = "trend"
	PlanTopN        PlanKind = "top_n"
	PlanHistogram   PlanKind = "histogram"
	PlanComparison  PlanKind = "comparison"
	PlanChange      PlanKind = "change"
	PlanCorrelation PlanKind = "correlation"
	PlanFallback    PlanKind = "fallback"
)

// Plan is the executable representation of a query intent: which rows to
// read, how to constrain them, and how to post-process them. Plans are
// interpreted directly against the store; nothing is ever eval'd.
type Plan struct {
	Kind        PlanKind           `json:"kind"`
	TargetField string             `json:"target_field"`
	Filters     []intent.Filter    `json:"filters,omitempty"`
	Conditions  []intent.Condition `json:"conditions,omitempty"`
	GroupBy     []string           `json:"group_by,omitempty"`
	TimeRange   *intent.DateRange  `json:"time_range,omitempty"`
	RawQuery    string             `json:"-"`

	Aggregate   *AggregateOptions   `json:"aggregate,omitempty"`
	Trend       *TrendOptions       `json:"trend,omitempty"`
	TopN        *TopNOptions        `json:"top_n_options,omitempty"`
	Histogram   *HistogramOptions   `json:"histogram,omitempty"`
	Change      *ChangeOptions      `json:"change,omitempty"`
	Correlation *CorrelationOptions `json:"correlation,omitempty"`
}

// AggregateOptions covers the single-number analyses. SQLFunc is set for
// aggregates the database computes; Derived for ones computed from the raw
// values (median, variance, standard deviation).
type AggregateOptions struct {
	SQLFunc string `json:"sql_func,omitempty"` // COUNT, AVG, SUM, MIN, MAX
	Derived string `json:"derived,omitempty"`  // median, variance, std_dev
}

type TrendOptions struct {
	Period string `json:"period"` // month, week
}

type TopNOptions struct {
	N int `json:"n"`
}

type HistogramOptions struct {
	Bins int `json:"bins"`
}

// RelativeWindows are the baseline/follow-up windows for windowed change
// analyses; the first observation inside each window is used per patient.
type RelativeWindows struct {
	Baseline intent.DateRange `json:"baseline"`
	FollowUp intent.DateRange `json:"follow_up"`
}

type ChangeOptions struct {
	Percent bool             `json:"percent"`
	Windows *RelativeWindows `json:"windows,omitempty"`
}

type CorrelationOptions struct {
	Method      string `json:"method"` // pearson, spearman, kendall
	SecondField string `json:"second_field"`
	Kind        string `json:"kind"`             // simple, conditional, time_series
	Period      string `json:"period,omitempty"` // for time_series
}

const DefaultTopN = 10

const DefaultHistogramBins = 10
