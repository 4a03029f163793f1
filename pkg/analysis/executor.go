package analysis

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/carelens-ai/platform/pkg/common/logger"
	"github.com/carelens-ai/platform/pkg/intent"
)

// Result is the uniform envelope every plan execution produces. Exactly one
// of Value/Rows carries the payload on success; Error is set on failure but
// the envelope itself is never nil.
type Result struct {
	Kind        PlanKind                 `json:"kind"`
	TargetField string                   `json:"target_field"`
	Value       *float64                 `json:"value,omitempty"`
	Count       int                      `json:"count,omitempty"`
	Rows        []map[string]interface{} `json:"rows,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

func (r *Result) Failed() bool { return r.Error != "" }

func errResult(p Plan, format string, args ...interface{}) *Result {
	return &Result{Kind: p.Kind, TargetField: p.TargetField, Error: fmt.Sprintf(format, args...)}
}

// Executor interprets plans against the warehouse. It holds no per-query
// state and is safe for concurrent use.
type Executor struct {
	db *gorm.DB
}

func NewExecutor(db *gorm.DB) *Executor {
	return &Executor{db: db}
}

func (e *Executor) dialect() string {
	return e.db.Dialector.Name()
}

// Execute runs a plan and always returns a non-nil result. Malformed plans
// and database failures come back inside the envelope, never as a panic or
// a nil.
func (e *Executor) Execute(ctx context.Context, p Plan) *Result {
	var result *Result
	switch p.Kind {
	case PlanAggregate, PlanFallback:
		result = e.executeAggregate(ctx, p)
	case PlanTrend:
		result = e.executeTrend(ctx, p)
	case PlanTopN:
		result = e.executeTopN(ctx, p)
	case PlanHistogram:
		result = e.executeHistogram(ctx, p)
	case PlanComparison:
		result = e.executeComparison(ctx, p)
	case PlanChange:
		result = e.executeChange(ctx, p)
	case PlanCorrelation:
		result = e.executeCorrelation(ctx, p)
	default:
		result = errResult(p, "no interpreter for plan kind %q", p.Kind)
	}
	if result.Failed() {
		logger.WithFields(logrus.Fields{
			"plan_kind": string(p.Kind),
			"target":    p.TargetField,
			"error":     result.Error,
		}).Warn("analysis plan failed")
	}
	return result
}

func (e *Executor) executeAggregate(ctx context.Context, p Plan) *Result {
	opts := p.Aggregate
	if opts == nil {
		return errResult(p, "aggregate plan missing options")
	}

	if opts.Derived != "" {
		values, err := e.fetchValues(ctx, p)
		if err != nil {
			return errResult(p, "query failed: %v", err)
		}
		var v float64
		var ok bool
		switch opts.Derived {
		case "median":
			v, ok = medianOf(values)
		case "variance":
			v, ok = varianceOf(values)
		case "std_dev":
			v, ok = stdDevOf(values)
		default:
			return errResult(p, "unknown derived aggregate %q", opts.Derived)
		}
		if !ok {
			return errResult(p, "not enough %s observations for %s", p.TargetField, opts.Derived)
		}
		return &Result{Kind: p.Kind, TargetField: p.TargetField, Value: &v, Count: len(values)}
	}

	b := buildConstrained(p, e.dialect())
	expr := aggregateExpr(opts.SQLFunc, b, p.TargetField)

	if len(p.GroupBy) > 0 {
		groupCols := make([]string, len(p.GroupBy))
		for i, g := range p.GroupBy {
			groupCols[i] = b.col(g)
		}
		q := fmt.Sprintf("SELECT %s, %s, COUNT(*) FROM %s%s GROUP BY %s ORDER BY %s",
			strings.Join(groupCols, ", "), expr, b.fromClause(), b.whereClause(),
			strings.Join(groupCols, ", "), strings.Join(groupCols, ", "))
		return e.scanGroups(ctx, p, q, b.args, p.GroupBy)
	}

	q := fmt.Sprintf("SELECT %s FROM %s%s", expr, b.fromClause(), b.whereClause())
	e.logSQL(p, q)
	var v sql.NullFloat64
	if err := e.db.WithContext(ctx).Raw(q, b.args...).Row().Scan(&v); err != nil {
		return errResult(p, "query failed: %v", err)
	}
	if !v.Valid {
		return errResult(p, "no %s data matched the query", p.TargetField)
	}
	return &Result{Kind: p.Kind, TargetField: p.TargetField, Value: &v.Float64}
}

func (e *Executor) executeTrend(ctx context.Context, p Plan) *Result {
	period := "month"
	if p.Trend != nil && p.Trend.Period != "" {
		period = p.Trend.Period
	}

	b := buildConstrained(p, e.dialect())
	dateCol := b.dateRef()
	valueExpr := aggregateExpr("AVG", b, p.TargetField)
	if p.TargetField == "patient_id" || p.TargetField == "" {
		valueExpr = aggregateExpr("COUNT", b, p.TargetField)
	}
	b.where = append(b.where, dateCol+" IS NOT NULL")

	q := fmt.Sprintf("SELECT %s, %s FROM %s%s GROUP BY 1 ORDER BY 1",
		b.periodExpr(period, dateCol), valueExpr, b.fromClause(), b.whereClause())
	e.logSQL(p, q)

	rows, err := e.db.WithContext(ctx).Raw(q, b.args...).Rows()
	if err != nil {
		return errResult(p, "query failed: %v", err)
	}
	defer rows.Close()

	out := make([]map[string]interface{}, 0, 16)
	for rows.Next() {
		var bucket string
		var v sql.NullFloat64
		if err := rows.Scan(&bucket, &v); err != nil {
			return errResult(p, "scan failed: %v", err)
		}
		if !v.Valid {
			continue
		}
		out = append(out, map[string]interface{}{"period": bucket, "value": v.Float64})
	}
	if err := rows.Err(); err != nil {
		return errResult(p, "query failed: %v", err)
	}
	if len(out) == 0 {
		return errResult(p, "no %s data matched the query", p.TargetField)
	}
	return &Result{Kind: p.Kind, TargetField: p.TargetField, Rows: out, Count: len(out)}
}

func (e *Executor) executeTopN(ctx context.Context, p Plan) *Result {
	n := DefaultTopN
	if p.TopN != nil && p.TopN.N > 0 {
		n = p.TopN.N
	}

	b := buildConstrained(p, e.dialect())
	groupField := "patient_id"
	if len(p.GroupBy) > 0 {
		groupField = p.GroupBy[0]
	}
	groupCol := b.col(groupField)

	valueExpr := aggregateExpr("AVG", b, p.TargetField)
	if p.TargetField == "patient_id" || p.TargetField == "" {
		valueExpr = "COUNT(*)"
	}

	q := fmt.Sprintf("SELECT %s, %s AS metric FROM %s%s GROUP BY %s ORDER BY metric DESC LIMIT %d",
		groupCol, valueExpr, b.fromClause(), b.whereClause(), groupCol, n)
	e.logSQL(p, q)

	rows, err := e.db.WithContext(ctx).Raw(q, b.args...).Rows()
	if err != nil {
		return errResult(p, "query failed: %v", err)
	}
	defer rows.Close()

	out := make([]map[string]interface{}, 0, n)
	for rows.Next() {
		var key sql.NullString
		var v sql.NullFloat64
		if err := rows.Scan(&key, &v); err != nil {
			return errResult(p, "scan failed: %v", err)
		}
		if !key.Valid || !v.Valid {
			continue
		}
		out = append(out, map[string]interface{}{groupField: key.String, "value": v.Float64})
	}
	if err := rows.Err(); err != nil {
		return errResult(p, "query failed: %v", err)
	}
	if len(out) == 0 {
		return errResult(p, "no %s data matched the query", p.TargetField)
	}
	return &Result{Kind: p.Kind, TargetField: p.TargetField, Rows: out, Count: len(out)}
}

func (e *Executor) executeHistogram(ctx context.Context, p Plan) *Result {
	bins := DefaultHistogramBins
	if p.Histogram != nil && p.Histogram.Bins > 0 {
		bins = p.Histogram.Bins
	}
	values, err := e.fetchValues(ctx, p)
	if err != nil {
		return errResult(p, "query failed: %v", err)
	}
	buckets := histogramOf(values, bins)
	if len(buckets) == 0 {
		return errResult(p, "no %s data matched the query", p.TargetField)
	}
	out := make([]map[string]interface{}, len(buckets))
	for i, bucket := range buckets {
		out[i] = map[string]interface{}{
			"start": bucket.Start,
			"end":   bucket.End,
			"count": bucket.Count,
		}
	}
	return &Result{Kind: p.Kind, TargetField: p.TargetField, Rows: out, Count: len(values)}
}

func (e *Executor) executeComparison(ctx context.Context, p Plan) *Result {
	if len(p.GroupBy) > 0 {
		return e.comparisonByGroup(ctx, p, p.GroupBy[0], p.Filters)
	}

	// A condition filter with no group_by means "with X versus without X".
	for i, f := range p.Filters {
		if f.Field == "condition" {
			rest := append(append([]intent.Filter(nil), p.Filters[:i]...), p.Filters[i+1:]...)
			term, _ := f.Value.(string)
			return e.comparisonByCondition(ctx, p, term, rest)
		}
	}

	// A demographic equality filter becomes the comparison axis.
	for i, f := range p.Filters {
		if intent.IsDemographicField(f.Field) && f.Value != nil {
			rest := append(append([]intent.Filter(nil), p.Filters[:i]...), p.Filters[i+1:]...)
			return e.comparisonByGroup(ctx, p, f.Field, rest)
		}
	}

	return errResult(p, "comparison needs a group_by or a cohort filter to compare across")
}

func (e *Executor) comparisonByGroup(ctx context.Context, p Plan, groupField string, filters []intent.Filter) *Result {
	scoped := p
	scoped.Filters = filters
	b := buildConstrained(scoped, e.dialect())
	groupCol := b.col(groupField)
	valueExpr := aggregateExpr("AVG", b, p.TargetField)
	if p.TargetField == "patient_id" || p.TargetField == "" {
		valueExpr = aggregateExpr("COUNT", b, p.TargetField)
	}
	b.where = append(b.where, groupCol+" IS NOT NULL")

	q := fmt.Sprintf("SELECT %s, %s, COUNT(*) FROM %s%s GROUP BY %s ORDER BY %s",
		groupCol, valueExpr, b.fromClause(), b.whereClause(), groupCol, groupCol)
	return e.scanGroups(ctx, p, q, b.args, []string{groupField})
}

func (e *Executor) comparisonByCondition(ctx context.Context, p Plan, term string, filters []intent.Filter) *Result {
	out := make([]map[string]interface{}, 0, 2)
	for _, branch := range []struct {
		label  string
		negate bool
	}{
		{label: "with " + term, negate: false},
		{label: "without " + term, negate: true},
	} {
		scoped := p
		scoped.Filters = filters
		b := buildConstrained(scoped, e.dialect())
		valueExpr := aggregateExpr("AVG", b, p.TargetField)
		if p.TargetField == "patient_id" || p.TargetField == "" {
			valueExpr = aggregateExpr("COUNT", b, p.TargetField)
		}
		prefix := "EXISTS"
		if branch.negate {
			prefix = "NOT EXISTS"
		}
		b.where = append(b.where, fmt.Sprintf(
			"%s (SELECT 1 FROM pmh m WHERE m.patient_id = %s AND LOWER(m.condition) = LOWER(?))",
			prefix, b.patientRef()))
		b.args = append(b.args, strings.TrimSpace(term))

		q := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s%s", valueExpr, b.fromClause(), b.whereClause())
		e.logSQL(p, q)
		var v sql.NullFloat64
		var count int
		if err := e.db.WithContext(ctx).Raw(q, b.args...).Row().Scan(&v, &count); err != nil {
			return errResult(p, "query failed: %v", err)
		}
		if !v.Valid {
			continue
		}
		out = append(out, map[string]interface{}{
			"group": branch.label,
			"value": v.Float64,
			"count": count,
		})
	}
	if len(out) == 0 {
		return errResult(p, "no %s data matched the query", p.TargetField)
	}
	return &Result{Kind: p.Kind, TargetField: p.TargetField, Rows: out, Count: len(out)}
}

type observation struct {
	date  time.Time
	value float64
}

func (e *Executor) executeChange(ctx context.Context, p Plan) *Result {
	series, err := e.fetchSeries(ctx, p)
	if err != nil {
		return errResult(p, "query failed: %v", err)
	}

	percent := p.Change != nil && p.Change.Percent
	var windows *RelativeWindows
	if p.Change != nil {
		windows = p.Change.Windows
	}

	changes := make([]float64, 0, len(series.order))
	out := make([]map[string]interface{}, 0, len(series.order))
	for _, patientID := range series.order {
		obs := series.byPatient[patientID]
		first, last, ok := changeEndpoints(obs, windows)
		if !ok {
			continue
		}
		delta := last - first
		if percent {
			if first == 0 {
				continue
			}
			delta = 100 * (last - first) / abs(first)
		}
		changes = append(changes, delta)
		out = append(out, map[string]interface{}{
			"patient_id": patientID,
			"first":      first,
			"last":       last,
			"change":     delta,
		})
	}
	if len(changes) == 0 {
		return errResult(p, "no patients had enough %s observations to measure change", p.TargetField)
	}
	avg := mean(changes)
	return &Result{Kind: p.Kind, TargetField: p.TargetField, Value: &avg, Count: len(changes), Rows: out}
}

// changeEndpoints picks the two observations a change is measured between:
// first-versus-last by default, or the first observation inside each window
// when baseline/follow-up windows are present.
func changeEndpoints(obs []observation, windows *RelativeWindows) (first, last float64, ok bool) {
	if windows == nil {
		if len(obs) < 2 {
			return 0, 0, false
		}
		return obs[0].value, obs[len(obs)-1].value, true
	}
	foundFirst, foundLast := false, false
	for _, o := range obs {
		if !foundFirst && windows.Baseline.Contains(o.date) {
			first = o.value
			foundFirst = true
		}
		if !foundLast && windows.FollowUp.Contains(o.date) {
			last = o.value
			foundLast = true
		}
	}
	return first, last, foundFirst && foundLast
}

func (e *Executor) executeCorrelation(ctx context.Context, p Plan) *Result {
	opts := p.Correlation
	if opts == nil || strings.TrimSpace(opts.SecondField) == "" {
		return errResult(p, "correlation needs a second field")
	}
	method := opts.Method
	if method == "" {
		method = "pearson"
	}

	switch opts.Kind {
	case "conditional":
		return e.conditionalCorrelation(ctx, p, method)
	case "time_series":
		return e.timeSeriesCorrelation(ctx, p, method)
	}

	xs, ys, err := e.fetchPairs(ctx, p)
	if err != nil {
		return errResult(p, "query failed: %v", err)
	}
	r, ok := correlate(method, xs, ys)
	if !ok {
		return errResult(p, "not enough paired %s/%s observations to correlate", p.TargetField, opts.SecondField)
	}
	pValue := correlationPValue(method, r, len(xs))
	return &Result{
		Kind:        p.Kind,
		TargetField: p.TargetField,
		Value:       &r,
		Count:       len(xs),
		Rows: []map[string]interface{}{{
			"method":       method,
			"second_field": opts.SecondField,
			"coefficient":  r,
			"p_value":      pValue,
			"pairs":        len(xs),
		}},
	}
}

func (e *Executor) conditionalCorrelation(ctx context.Context, p Plan, method string) *Result {
	if len(p.GroupBy) == 0 {
		return errResult(p, "conditional correlation needs a group_by")
	}
	groups, err := e.fetchGroupedPairs(ctx, p, p.GroupBy[0])
	if err != nil {
		return errResult(p, "query failed: %v", err)
	}
	out := make([]map[string]interface{}, 0, len(groups.order))
	for _, key := range groups.order {
		pair := groups.byKey[key]
		r, ok := correlate(method, pair.xs, pair.ys)
		if !ok {
			continue
		}
		out = append(out, map[string]interface{}{
			"group":       key,
			"method":      method,
			"coefficient": r,
			"p_value":     correlationPValue(method, r, len(pair.xs)),
			"pairs":       len(pair.xs),
		})
	}
	if len(out) == 0 {
		return errResult(p, "not enough paired observations in any group to correlate")
	}
	return &Result{Kind: p.Kind, TargetField: p.TargetField, Rows: out, Count: len(out)}
}

func (e *Executor) timeSeriesCorrelation(ctx context.Context, p Plan, method string) *Result {
	period := "month"
	if p.Correlation != nil && p.Correlation.Period != "" {
		period = p.Correlation.Period
	}
	groups, err := e.fetchPeriodPairs(ctx, p, period)
	if err != nil {
		return errResult(p, "query failed: %v", err)
	}
	out := make([]map[string]interface{}, 0, len(groups.order))
	for _, key := range groups.order {
		pair := groups.byKey[key]
		r, ok := correlate(method, pair.xs, pair.ys)
		if !ok {
			continue
		}
		out = append(out, map[string]interface{}{
			"period":      key,
			"method":      method,
			"coefficient": r,
			"p_value":     correlationPValue(method, r, len(pair.xs)),
			"pairs":       len(pair.xs),
		})
	}
	if len(out) == 0 {
		return errResult(p, "not enough paired observations in any period to correlate")
	}
	return &Result{Kind: p.Kind, TargetField: p.TargetField, Rows: out, Count: len(out)}
}

// fetchValues reads the non-null target column for all rows the plan's
// constraints admit.
func (e *Executor) fetchValues(ctx context.Context, p Plan) ([]float64, error) {
	b := buildConstrained(p, e.dialect())
	col := b.col(p.TargetField)
	b.where = append(b.where, col+" IS NOT NULL")

	q := fmt.Sprintf("SELECT %s FROM %s%s", col, b.fromClause(), b.whereClause())
	e.logSQL(p, q)

	rows, err := e.db.WithContext(ctx).Raw(q, b.args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]float64, 0, 64)
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type patientSeries struct {
	order     []string
	byPatient map[string][]observation
}

// fetchSeries reads the target per patient ordered by date.
func (e *Executor) fetchSeries(ctx context.Context, p Plan) (*patientSeries, error) {
	b := buildConstrained(p, e.dialect())
	col := b.col(p.TargetField)
	dateCol := b.dateRef()
	pid := b.patientRef()
	b.where = append(b.where, col+" IS NOT NULL", dateCol+" IS NOT NULL")

	q := fmt.Sprintf("SELECT %s, %s, %s FROM %s%s ORDER BY %s, %s",
		pid, dateCol, col, b.fromClause(), b.whereClause(), pid, dateCol)
	e.logSQL(p, q)

	rows, err := e.db.WithContext(ctx).Raw(q, b.args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	series := &patientSeries{byPatient: make(map[string][]observation)}
	for rows.Next() {
		var patientID string
		var date time.Time
		var value float64
		if err := rows.Scan(&patientID, &date, &value); err != nil {
			return nil, err
		}
		if _, seen := series.byPatient[patientID]; !seen {
			series.order = append(series.order, patientID)
		}
		series.byPatient[patientID] = append(series.byPatient[patientID], observation{date: date, value: value})
	}
	return series, rows.Err()
}

// fetchPairs returns aligned samples of the target and second field. Fields
// from the same table pair row by row; fields from different tables pair by
// per-patient averages.
func (e *Executor) fetchPairs(ctx context.Context, p Plan) ([]float64, []float64, error) {
	second := p.Correlation.SecondField
	if fieldTables[p.TargetField] == fieldTables[second] {
		b := buildConstrained(p, e.dialect())
		xCol, yCol := b.col(p.TargetField), b.col(second)
		b.where = append(b.where, xCol+" IS NOT NULL", yCol+" IS NOT NULL")

		q := fmt.Sprintf("SELECT %s, %s FROM %s%s", xCol, yCol, b.fromClause(), b.whereClause())
		e.logSQL(p, q)

		rows, err := e.db.WithContext(ctx).Raw(q, b.args...).Rows()
		if err != nil {
			return nil, nil, err
		}
		defer rows.Close()

		var xs, ys []float64
		for rows.Next() {
			var x, y float64
			if err := rows.Scan(&x, &y); err != nil {
				return nil, nil, err
			}
			xs = append(xs, x)
			ys = append(ys, y)
		}
		return xs, ys, rows.Err()
	}

	xByPatient, err := e.fetchPatientMeans(ctx, p, p.TargetField)
	if err != nil {
		return nil, nil, err
	}
	yByPatient, err := e.fetchPatientMeans(ctx, p, second)
	if err != nil {
		return nil, nil, err
	}
	var xs, ys []float64
	for patientID, x := range xByPatient {
		if y, ok := yByPatient[patientID]; ok {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	return xs, ys, nil
}

func (e *Executor) fetchPatientMeans(ctx context.Context, p Plan, field string) (map[string]float64, error) {
	scoped := p
	scoped.TargetField = field
	b := buildConstrained(scoped, e.dialect())
	col := b.col(field)
	pid := b.patientRef()
	b.where = append(b.where, col+" IS NOT NULL")

	q := fmt.Sprintf("SELECT %s, AVG(%s) FROM %s%s GROUP BY %s",
		pid, col, b.fromClause(), b.whereClause(), pid)
	e.logSQL(p, q)

	rows, err := e.db.WithContext(ctx).Raw(q, b.args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var patientID string
		var v float64
		if err := rows.Scan(&patientID, &v); err != nil {
			return nil, err
		}
		out[patientID] = v
	}
	return out, rows.Err()
}

type pairSamples struct {
	xs, ys []float64
}

type keyedPairs struct {
	order []string
	byKey map[string]*pairSamples
}

func (k *keyedPairs) add(key string, x, y float64) {
	pair, ok := k.byKey[key]
	if !ok {
		pair = &pairSamples{}
		k.byKey[key] = pair
		k.order = append(k.order, key)
	}
	pair.xs = append(pair.xs, x)
	pair.ys = append(pair.ys, y)
}

func (e *Executor) fetchGroupedPairs(ctx context.Context, p Plan, groupField string) (*keyedPairs, error) {
	b := buildConstrained(p, e.dialect())
	groupCol := b.col(groupField)
	xCol, yCol := b.col(p.TargetField), b.col(p.Correlation.SecondField)
	b.where = append(b.where, groupCol+" IS NOT NULL", xCol+" IS NOT NULL", yCol+" IS NOT NULL")

	q := fmt.Sprintf("SELECT %s, %s, %s FROM %s%s ORDER BY %s",
		groupCol, xCol, yCol, b.fromClause(), b.whereClause(), groupCol)
	e.logSQL(p, q)

	return e.scanKeyedPairs(ctx, q, b.args)
}

func (e *Executor) fetchPeriodPairs(ctx context.Context, p Plan, period string) (*keyedPairs, error) {
	b := buildConstrained(p, e.dialect())
	dateCol := b.dateRef()
	xCol, yCol := b.col(p.TargetField), b.col(p.Correlation.SecondField)
	b.where = append(b.where, dateCol+" IS NOT NULL", xCol+" IS NOT NULL", yCol+" IS NOT NULL")

	q := fmt.Sprintf("SELECT %s, %s, %s FROM %s%s ORDER BY 1",
		b.periodExpr(period, dateCol), xCol, yCol, b.fromClause(), b.whereClause())
	e.logSQL(p, q)

	return e.scanKeyedPairs(ctx, q, b.args)
}

func (e *Executor) scanKeyedPairs(ctx context.Context, q string, args []interface{}) (*keyedPairs, error) {
	rows, err := e.db.WithContext(ctx).Raw(q, args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := &keyedPairs{byKey: make(map[string]*pairSamples)}
	for rows.Next() {
		var key string
		var x, y float64
		if err := rows.Scan(&key, &x, &y); err != nil {
			return nil, err
		}
		out.add(key, x, y)
	}
	return out, rows.Err()
}

// scanGroups reads (group columns..., value, count) rows into the result
// envelope.
func (e *Executor) scanGroups(ctx context.Context, p Plan, q string, args []interface{}, groupFields []string) *Result {
	e.logSQL(p, q)
	rows, err := e.db.WithContext(ctx).Raw(q, args...).Rows()
	if err != nil {
		return errResult(p, "query failed: %v", err)
	}
	defer rows.Close()

	out := make([]map[string]interface{}, 0, 8)
	for rows.Next() {
		keys := make([]sql.NullString, len(groupFields))
		dest := make([]interface{}, 0, len(groupFields)+2)
		for i := range keys {
			dest = append(dest, &keys[i])
		}
		var v sql.NullFloat64
		var count int
		dest = append(dest, &v, &count)
		if err := rows.Scan(dest...); err != nil {
			return errResult(p, "scan failed: %v", err)
		}
		if !v.Valid {
			continue
		}
		row := map[string]interface{}{"value": v.Float64, "count": count}
		for i, field := range groupFields {
			row[field] = keys[i].String
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return errResult(p, "query failed: %v", err)
	}
	if len(out) == 0 {
		return errResult(p, "no %s data matched the query", p.TargetField)
	}
	return &Result{Kind: p.Kind, TargetField: p.TargetField, Rows: out, Count: len(out)}
}

func (e *Executor) logSQL(p Plan, q string) {
	logger.WithFields(logrus.Fields{
		"plan_kind": string(p.Kind),
		"sql":       q,
	}).Debug("executing analysis query")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
