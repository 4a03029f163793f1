package analysis

import (
	"fmt"
	"strings"

	"github.com/carelens-ai/platform/pkg/intent"
)

// Table aliases used in generated SQL: patients p, vitals v, scores s,
// lab_results l; pmh is only ever reached through an EXISTS subquery.
var fieldTables = map[string]string{
	"patient_id":         "p",
	"gender":             "p",
	"age":                "p",
	"ethnicity":          "p",
	"active":             "p",
	"program_start_date": "p",
	"program_end_date":   "p",
	"weight":             "v",
	"bmi":                "v",
	"sbp":                "v",
	"dbp":                "v",
	"height":             "v",
	"date":               "v",
	"score_type":         "s",
	"score_value":        "s",
}

var aliasTables = map[string]string{
	"p": "patients",
	"v": "vitals",
	"s": "scores",
}

// queryBuilder accumulates the FROM/JOIN/WHERE pieces for one plan. The
// base table follows the target field; other tables are joined on demand.
type queryBuilder struct {
	base    string
	joins   []string
	joined  map[string]bool
	where   []string
	args    []interface{}
	dialect string
}

func newQueryBuilder(targetField, dialect string) *queryBuilder {
	base := fieldTables[targetField]
	if base == "" {
		base = "v"
	}
	return &queryBuilder{base: base, joined: map[string]bool{base: true}, dialect: dialect}
}

// col returns the qualified column reference for a field, adding the join
// it needs.
func (b *queryBuilder) col(field string) string {
	alias := fieldTables[field]
	if alias == "" || field == "condition" {
		// Condition filters never reach here; unknown columns default to
		// the base table so the database reports them instead of us.
		return b.base + "." + field
	}
	b.ensureJoined(alias)
	column := field
	if field == "patient_id" && alias == "p" {
		column = "id"
	}
	if alias != b.base && (field == "patient_id" || field == "date") {
		// patient_id and date exist on every measurement table; prefer the
		// base table's copy over a join.
		if b.base != "p" {
			return b.base + "." + field
		}
	}
	return alias + "." + column
}

func (b *queryBuilder) ensureJoined(alias string) {
	if b.joined[alias] {
		return
	}
	b.joined[alias] = true
	switch {
	case alias == "p":
		b.joins = append(b.joins, fmt.Sprintf("JOIN patients p ON p.id = %s.patient_id", b.base))
	case b.base == "p":
		b.joins = append(b.joins, fmt.Sprintf("JOIN %s %s ON %s.patient_id = p.id", aliasTables[alias], alias, alias))
	default:
		b.joins = append(b.joins, fmt.Sprintf("JOIN %s %s ON %s.patient_id = %s.patient_id", aliasTables[alias], alias, alias, b.base))
	}
}

func (b *queryBuilder) patientRef() string {
	if b.base == "p" {
		return "p.id"
	}
	return b.base + ".patient_id"
}

func (b *queryBuilder) dateRef() string {
	if b.base == "p" {
		b.ensureJoined("v")
		return "v.date"
	}
	return b.base + ".date"
}

func (b *queryBuilder) applyFilters(filters []intent.Filter) {
	for _, f := range filters {
		switch {
		case f.Field == "condition":
			value, _ := f.Value.(string)
			b.where = append(b.where, fmt.Sprintf(
				"EXISTS (SELECT 1 FROM pmh m WHERE m.patient_id = %s AND LOWER(m.condition) = LOWER(?))",
				b.patientRef()))
			b.args = append(b.args, strings.TrimSpace(value))
		case f.Value != nil:
			b.where = append(b.where, b.col(f.Field)+" = ?")
			b.args = append(b.args, f.Value)
		case f.Range != nil:
			b.where = append(b.where, b.col(f.Field)+" BETWEEN ? AND ?")
			b.args = append(b.args, f.Range.Start, f.Range.End)
		case f.DateRange != nil:
			b.where = append(b.where, b.col(f.Field)+" BETWEEN ? AND ?")
			b.args = append(b.args, f.DateRange.StartDate, f.DateRange.EndDate)
		}
	}
}

func (b *queryBuilder) applyConditions(conditions []intent.Condition) {
	for _, c := range conditions {
		op := c.Operator
		switch op {
		case "==":
			op = "="
		case "!=":
			op = "<>"
		case "in":
			values, ok := c.Value.([]interface{})
			if !ok || len(values) == 0 {
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
			b.where = append(b.where, fmt.Sprintf("%s IN (%s)", b.col(c.Field), placeholders))
			b.args = append(b.args, values...)
			continue
		case "between", "within":
			bounds, ok := c.Value.([]interface{})
			if !ok || len(bounds) != 2 {
				continue
			}
			b.where = append(b.where, b.col(c.Field)+" BETWEEN ? AND ?")
			b.args = append(b.args, bounds[0], bounds[1])
			continue
		}
		b.where = append(b.where, fmt.Sprintf("%s %s ?", b.col(c.Field), op))
		b.args = append(b.args, c.Value)
	}
}

func (b *queryBuilder) applyTimeRange(tr *intent.DateRange) {
	if tr == nil {
		return
	}
	b.where = append(b.where, b.dateRef()+" BETWEEN ? AND ?")
	b.args = append(b.args, tr.StartDate, tr.EndDate)
}

func (b *queryBuilder) fromClause() string {
	out := aliasTables[b.base] + " " + b.base
	if len(b.joins) > 0 {
		out += " " + strings.Join(b.joins, " ")
	}
	return out
}

func (b *queryBuilder) whereClause() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

// periodExpr buckets a date column by calendar period in the dialect at
// hand.
func (b *queryBuilder) periodExpr(period, column string) string {
	format := "%Y-%m"
	pgFormat := "YYYY-MM"
	if period == "week" {
		format = "%Y-%W"
		pgFormat = "IYYY-IW"
	}
	if b.dialect == "postgres" {
		return fmt.Sprintf("to_char(%s, '%s')", column, pgFormat)
	}
	return fmt.Sprintf("strftime('%s', %s)", format, column)
}

func aggregateExpr(fn string, b *queryBuilder, targetField string) string {
	if fn == "COUNT" {
		if targetField == "patient_id" || targetField == "" {
			return fmt.Sprintf("COUNT(DISTINCT %s)", b.patientRef())
		}
		return fmt.Sprintf("COUNT(%s)", b.col(targetField))
	}
	return fmt.Sprintf("%s(%s)", fn, b.col(targetField))
}

// buildConstrained assembles the shared FROM/WHERE skeleton for a plan.
func buildConstrained(p Plan, dialect string) *queryBuilder {
	b := newQueryBuilder(p.TargetField, dialect)
	b.applyFilters(p.Filters)
	b.applyConditions(p.Conditions)
	b.applyTimeRange(p.TimeRange)
	return b
}
