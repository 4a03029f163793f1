package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Analysis types the planner knows how to dispatch.
const (
	AnalysisCount         = "count"
	AnalysisAverage       = "average"
	AnalysisMedian        = "median"
	AnalysisDistribution  = "distribution"
	AnalysisComparison    = "comparison"
	AnalysisTrend         = "trend"
	AnalysisChange        = "change"
	AnalysisSum           = "sum"
	AnalysisMin           = "min"
	AnalysisMax           = "max"
	AnalysisAverageChange = "average_change"
	AnalysisRate          = "rate"
	AnalysisVariance      = "variance"
	AnalysisStdDev        = "std_dev"
	AnalysisPercentChange = "percent_change"
	AnalysisTopN          = "top_n"
	AnalysisCorrelation   = "correlation"
	AnalysisHistogram     = "histogram"
	AnalysisUnknown       = "unknown"
)

var knownAnalysisTypes = map[string]struct{}{
	AnalysisCount: {}, AnalysisAverage: {}, AnalysisMedian: {},
	AnalysisDistribution: {}, AnalysisComparison: {}, AnalysisTrend: {},
	AnalysisChange: {}, AnalysisSum: {}, AnalysisMin: {}, AnalysisMax: {},
	AnalysisAverageChange: {}, AnalysisRate: {}, AnalysisVariance: {},
	AnalysisStdDev: {}, AnalysisPercentChange: {}, AnalysisTopN: {},
	AnalysisCorrelation: {}, AnalysisHistogram: {},
}

func IsKnownAnalysisType(t string) bool {
	_, ok := knownAnalysisTypes[t]
	return ok
}

// Canonical warehouse columns the assistant can answer questions about.
var canonicalFields = map[string]struct{}{
	"patient_id": {}, "date": {}, "score_type": {}, "score_value": {},
	"gender": {}, "age": {}, "ethnicity": {}, "bmi": {}, "weight": {},
	"sbp": {}, "dbp": {}, "height": {}, "active": {}, "condition": {},
}

func IsCanonicalField(field string) bool {
	_, ok := canonicalFields[field]
	return ok
}

var dateFields = map[string]struct{}{
	"date": {}, "program_start_date": {}, "program_end_date": {},
}

var demographicFields = map[string]struct{}{
	"gender": {}, "age": {}, "ethnicity": {}, "active": {},
}

func IsDemographicField(field string) bool {
	_, ok := demographicFields[field]
	return ok
}

var validOperators = map[string]struct{}{
	">": {}, "<": {}, ">=": {}, "<=": {}, "==": {}, "!=": {},
	"in": {}, "within": {}, "between": {},
}

const dateLayout = "2006-01-02"

// SchemaError marks input that decoded as JSON but violates the intent
// schema. Callers use IsSchemaError to tell it apart from malformed JSON.
type SchemaError struct {
	reason error
}

func (e SchemaError) Error() string { return e.reason.Error() }

func (e SchemaError) Unwrap() error { return e.reason }

func IsSchemaError(err error) bool {
	var se SchemaError
	return errors.As(err, &se)
}

func schemaErrorf(format string, args ...interface{}) error {
	return SchemaError{reason: fmt.Errorf(format, args...)}
}

// DateRange is a closed calendar interval, start <= end.
type DateRange struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

func NewDateRange(start, end time.Time) (DateRange, error) {
	start = truncateDate(start)
	end = truncateDate(end)
	if start.After(end) {
		return DateRange{}, schemaErrorf("date range start %s after end %s",
			start.Format(dateLayout), end.Format(dateLayout))
	}
	return DateRange{StartDate: start, EndDate: end}, nil
}

// ParseDateRange builds a DateRange from two "YYYY-MM-DD" strings.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := parseDate(start)
	if err != nil {
		return DateRange{}, schemaErrorf("invalid start date %q: %v", start, err)
	}
	e, err := parseDate(end)
	if err != nil {
		return DateRange{}, schemaErrorf("invalid end date %q: %v", end, err)
	}
	return NewDateRange(s, e)
}

func (d DateRange) Contains(t time.Time) bool {
	t = truncateDate(t)
	return !t.Before(d.StartDate) && !t.After(d.EndDate)
}

func (d *DateRange) UnmarshalJSON(data []byte) error {
	var raw struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := parseDate(raw.StartDate)
	if err != nil {
		return schemaErrorf("invalid start_date %q: %v", raw.StartDate, err)
	}
	end, err := parseDate(raw.EndDate)
	if err != nil {
		return schemaErrorf("invalid end_date %q: %v", raw.EndDate, err)
	}
	parsed, err := NewDateRange(start, end)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}{
		StartDate: d.StartDate.Format(dateLayout),
		EndDate:   d.EndDate.Format(dateLayout),
	})
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ValueRange is a numeric closed interval used by range filters.
type ValueRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Filter constrains a single column. Exactly one of Value, Range or
// DateRange must be set; Validate enforces the invariant and construction
// helpers below keep call sites honest.
type Filter struct {
	Field     string      `json:"field"`
	Value     interface{} `json:"value,omitempty"`
	Range     *ValueRange `json:"range,omitempty"`
	DateRange *DateRange  `json:"date_range,omitempty"`
}

func NewValueFilter(field string, value interface{}) Filter {
	return Filter{Field: field, Value: value}
}

func NewRangeFilter(field string, start, end float64) Filter {
	return Filter{Field: field, Range: &ValueRange{Start: start, End: end}}
}

func NewDateRangeFilter(field string, dr DateRange) Filter {
	return Filter{Field: field, DateRange: &dr}
}

func (f Filter) Validate() error {
	if strings.TrimSpace(f.Field) == "" {
		return schemaErrorf("filter missing field")
	}
	set := 0
	if f.Value != nil {
		set++
	}
	if f.Range != nil {
		set++
	}
	if f.DateRange != nil {
		set++
	}
	if set != 1 {
		return schemaErrorf("filter on %q must carry exactly one of value, range or date_range (got %d)", f.Field, set)
	}
	return nil
}

// Condition is an operator constraint, e.g. {age, >=, 65}.
type Condition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

func (c Condition) Validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return schemaErrorf("condition missing field")
	}
	if _, ok := validOperators[c.Operator]; !ok {
		return schemaErrorf("condition on %q has unsupported operator %q", c.Field, c.Operator)
	}
	return nil
}

// QueryIntent is the validated representation of what the user asked for.
// It is built once per query by the parser and consumed read-only by the
// clarifier, the ambiguity gate and the analysis planner.
type QueryIntent struct {
	AnalysisType     string                 `json:"analysis_type"`
	TargetField      string                 `json:"target_field"`
	Filters          []Filter               `json:"filters"`
	Conditions       []Condition            `json:"conditions"`
	Parameters       map[string]interface{} `json:"parameters"`
	AdditionalFields []string               `json:"additional_fields"`
	GroupBy          []string               `json:"group_by"`
	TimeRange        *DateRange             `json:"time_range"`
	RawQuery         string                 `json:"-"`
}

func (q QueryIntent) Validate() error {
	if strings.TrimSpace(q.AnalysisType) == "" {
		return schemaErrorf("analysis_type is required")
	}
	if strings.TrimSpace(q.TargetField) == "" {
		return schemaErrorf("target_field is required")
	}
	for _, f := range q.Filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	for _, c := range q.Conditions {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	if q.AnalysisType == AnalysisComparison && len(q.Filters) == 0 && len(q.GroupBy) == 0 {
		return schemaErrorf("comparison analysis requires at least one filter or a group_by")
	}
	return nil
}

// ParseIntentJSON decodes and validates an intent document. A JSON decode
// failure comes back as the raw decoding error; a well-formed document that
// breaks the schema comes back as a SchemaError.
func ParseIntentJSON(raw string) (QueryIntent, error) {
	var qi QueryIntent
	decoder := json.NewDecoder(strings.NewReader(raw))
	if err := decoder.Decode(&qi); err != nil {
		if IsSchemaError(err) {
			return QueryIntent{}, err
		}
		return QueryIntent{}, fmt.Errorf("malformed intent JSON: %w", err)
	}
	if qi.Parameters == nil {
		qi.Parameters = make(map[string]interface{})
	}
	if err := qi.Validate(); err != nil {
		return QueryIntent{}, err
	}
	return qi, nil
}

// HasDateFilter reports whether any date constraint is present, either the
// global time range or a per-filter range on a date column.
func (q QueryIntent) HasDateFilter() bool {
	if q.TimeRange != nil {
		return true
	}
	for _, f := range q.Filters {
		if f.DateRange != nil {
			return true
		}
		if _, ok := dateFields[f.Field]; ok && (f.Range != nil || f.Value != nil) {
			return true
		}
	}
	return false
}

func (q QueryIntent) HasFilterOn(field string) bool {
	for _, f := range q.Filters {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (q QueryIntent) HasDemographicFilter() bool {
	for _, f := range q.Filters {
		if IsDemographicField(f.Field) {
			return true
		}
	}
	return false
}

// IsFallback reports whether the intent was produced by the degraded
// keyword path rather than a successful classification.
func (q QueryIntent) IsFallback() bool {
	v, ok := q.Parameters["is_fallback"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Clone returns a deep copy; the transformation pipeline never mutates its
// input.
func (q QueryIntent) Clone() QueryIntent {
	out := q
	out.Filters = append([]Filter(nil), q.Filters...)
	for i, f := range out.Filters {
		if f.Range != nil {
			r := *f.Range
			out.Filters[i].Range = &r
		}
		if f.DateRange != nil {
			dr := *f.DateRange
			out.Filters[i].DateRange = &dr
		}
	}
	out.Conditions = append([]Condition(nil), q.Conditions...)
	out.AdditionalFields = append([]string(nil), q.AdditionalFields...)
	out.GroupBy = append([]string(nil), q.GroupBy...)
	if q.TimeRange != nil {
		tr := *q.TimeRange
		out.TimeRange = &tr
	}
	out.Parameters = make(map[string]interface{}, len(q.Parameters))
	for k, v := range q.Parameters {
		out.Parameters[k] = v
	}
	return out
}
