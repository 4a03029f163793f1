package validation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/carelens-ai/platform/pkg/common/models"
)

// Plausible BMI bounds used to suppress double-counted weight errors: an
// implausible weight and an implausible BMI on the same row are one data
// entry mistake, not two.
const (
	bmiPlausibleMin = 12.0
	bmiPlausibleMax = 70.0
)

func newResult(rule ValidationRule, patientID, message string, now time.Time) ValidationResult {
	return ValidationResult{
		PatientID: patientID,
		RuleID:    rule.RuleID,
		Field:     rule.Field,
		Message:   message,
		Severity:  rule.Severity,
		Status:    StatusOpen,
		CreatedAt: now,
	}
}

func vitalValue(v models.Vital, field string) *float64 {
	switch field {
	case "weight":
		return v.Weight
	case "bmi":
		return v.BMI
	case "sbp":
		return v.SBP
	case "dbp":
		return v.DBP
	case "height":
		return v.Height
	}
	return nil
}

func isVitalField(field string) bool {
	switch field {
	case "weight", "bmi", "sbp", "dbp", "height":
		return true
	}
	return false
}

func patientValue(p *models.Patient, field string) (interface{}, bool) {
	switch field {
	case "gender":
		if p.Gender != nil {
			return *p.Gender, true
		}
	case "age":
		if p.Age != nil {
			return float64(*p.Age), true
		}
	case "ethnicity":
		if p.Ethnicity != nil {
			return *p.Ethnicity, true
		}
	case "active":
		if p.Active != nil {
			return *p.Active, true
		}
	case "program_start_date":
		if p.ProgramStartDate != nil {
			return *p.ProgramStartDate, true
		}
	case "program_end_date":
		if p.ProgramEndDate != nil {
			return *p.ProgramEndDate, true
		}
	}
	return nil, false
}

// fieldValues collects every non-null value of a field, demographics row
// first, then vitals rows.
func fieldValues(p *models.Patient, vitals []models.Vital, field string) []interface{} {
	var out []interface{}
	if v, ok := patientValue(p, field); ok {
		out = append(out, v)
	}
	for _, row := range vitals {
		if v := vitalValue(row, field); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func firstFieldValue(p *models.Patient, vitals []models.Vital, field string) (interface{}, bool) {
	if v, ok := patientValue(p, field); ok {
		return v, true
	}
	for _, row := range vitals {
		if v := vitalValue(row, field); v != nil {
			return *v, true
		}
	}
	return nil, false
}

type dated struct {
	date  time.Time
	value float64
}

// evalDateDiff flags measurement gaps. Weight is exempt: BMI is derived
// from weight and already carries the frequency rule, so checking both
// would double-count the same missing visit.
func evalDateDiff(rule ValidationRule, p *models.Patient, vitals []models.Vital, now time.Time) ([]ValidationResult, error) {
	if rule.Field == "weight" {
		return nil, nil
	}
	var opts DateDiffOptions
	if err := decodeOptions(rule, &opts); err != nil {
		return nil, err
	}
	if opts.MaxDaysBetween <= 0 {
		return nil, fmt.Errorf("rule %s: max_days_between must be positive", rule.RuleID)
	}

	var measurements []dated
	for _, row := range vitals {
		v := vitalValue(row, rule.Field)
		if v == nil || row.Date == nil {
			continue
		}
		measurements = append(measurements, dated{date: *row.Date, value: *v})
	}
	if len(measurements) == 0 {
		return []ValidationResult{newResult(rule, p.ID,
			fmt.Sprintf("no %s measurements found", rule.Field), now)}, nil
	}
	sort.Slice(measurements, func(i, j int) bool {
		return measurements[i].date.Before(measurements[j].date)
	})

	var out []ValidationResult
	for i := 1; i < len(measurements); i++ {
		gap := daysBetween(measurements[i-1].date, measurements[i].date)
		if gap > opts.MaxDaysBetween {
			out = append(out, newResult(rule, p.ID, fmt.Sprintf(
				"%d day gap in %s measurements between %s and %s exceeds %d days",
				gap, rule.Field,
				measurements[i-1].date.Format("2006-01-02"),
				measurements[i].date.Format("2006-01-02"),
				opts.MaxDaysBetween), now))
		}
	}
	latest := measurements[len(measurements)-1].date
	if since := daysBetween(latest, now); since > opts.MaxDaysBetween {
		out = append(out, newResult(rule, p.ID, fmt.Sprintf(
			"no %s measurement in %d days", rule.Field, since), now))
	}
	return out, nil
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func evalRange(rule ValidationRule, p *models.Patient, vitals []models.Vital, now time.Time) ([]ValidationResult, error) {
	var opts RangeOptions
	if err := decodeOptions(rule, &opts); err != nil {
		return nil, err
	}
	if opts.MinValue == nil && opts.MaxValue == nil {
		return nil, fmt.Errorf("rule %s: range_check needs min_value or max_value", rule.RuleID)
	}

	check := func(value float64) []ValidationResult {
		var out []ValidationResult
		if opts.MinValue != nil && value < *opts.MinValue {
			out = append(out, newResult(rule, p.ID, fmt.Sprintf(
				"%s value %.1f below minimum %.1f", rule.Field, value, *opts.MinValue), now))
		}
		if opts.MaxValue != nil && value > *opts.MaxValue {
			out = append(out, newResult(rule, p.ID, fmt.Sprintf(
				"%s value %.1f above maximum %.1f", rule.Field, value, *opts.MaxValue), now))
		}
		return out
	}

	var out []ValidationResult
	if isVitalField(rule.Field) {
		for _, row := range vitals {
			v := vitalValue(row, rule.Field)
			if v == nil {
				continue
			}
			if rule.Field == "weight" && row.BMI != nil &&
				(*row.BMI < bmiPlausibleMin || *row.BMI > bmiPlausibleMax) {
				// Same-row implausible BMI: the weight error is already
				// reported through the BMI rule.
				continue
			}
			out = append(out, check(*v)...)
		}
		return out, nil
	}

	if raw, ok := patientValue(p, rule.Field); ok {
		if value, numeric := toFloat(raw); numeric {
			out = append(out, check(value)...)
		}
	}
	return out, nil
}

func evalNotNull(rule ValidationRule, p *models.Patient, vitals []models.Vital, now time.Time) ([]ValidationResult, error) {
	if len(fieldValues(p, vitals, rule.Field)) == 0 {
		return []ValidationResult{newResult(rule, p.ID,
			fmt.Sprintf("%s is missing", rule.Field), now)}, nil
	}
	return nil, nil
}

func evalAllowedValues(rule ValidationRule, p *models.Patient, vitals []models.Vital, now time.Time) ([]ValidationResult, error) {
	var opts AllowedValuesOptions
	if err := decodeOptions(rule, &opts); err != nil {
		return nil, err
	}
	if len(opts.AllowedValues) == 0 {
		return nil, fmt.Errorf("rule %s: allowed_values_check needs allowed_values", rule.RuleID)
	}

	allowed := make(map[string]struct{}, len(opts.AllowedValues))
	for _, v := range opts.AllowedValues {
		allowed[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}

	var out []ValidationResult
	seen := make(map[string]struct{})
	for _, raw := range fieldValues(p, vitals, rule.Field) {
		value := fmt.Sprint(raw)
		key := strings.ToLower(strings.TrimSpace(value))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := allowed[key]; !ok {
			out = append(out, newResult(rule, p.ID, fmt.Sprintf(
				"%s value %q is not an allowed value", rule.Field, value), now))
		}
	}

	if opts.NotNull {
		missing, err := evalNotNull(rule, p, vitals, now)
		if err != nil {
			return nil, err
		}
		out = append(out, missing...)
	}
	return out, nil
}

// evalConditionalNotNull requires the target field once any of the rule's
// conditions holds; with no conditions it degrades to a plain not-null
// check.
func evalConditionalNotNull(rule ValidationRule, p *models.Patient, vitals []models.Vital, now time.Time) ([]ValidationResult, error) {
	var opts ConditionalOptions
	if err := decodeOptions(rule, &opts); err != nil {
		return nil, err
	}
	if len(opts.Conditions) == 0 {
		return evalNotNull(rule, p, vitals, now)
	}
	for _, cond := range opts.Conditions {
		actual, ok := firstFieldValue(p, vitals, cond.Field)
		if !ok {
			continue
		}
		if conditionHolds(actual, cond.Operator, cond.Value) {
			return evalNotNull(rule, p, vitals, now)
		}
	}
	return nil, nil
}

func conditionHolds(actual interface{}, operator string, expected interface{}) bool {
	if a, aok := toFloat(actual); aok {
		if e, eok := toFloat(expected); eok {
			switch operator {
			case ">":
				return a > e
			case ">=":
				return a >= e
			case "<":
				return a < e
			case "<=":
				return a <= e
			case "==":
				return a == e
			case "!=":
				return a != e
			}
			return false
		}
	}
	as := strings.ToLower(strings.TrimSpace(fmt.Sprint(actual)))
	es := strings.ToLower(strings.TrimSpace(fmt.Sprint(expected)))
	switch operator {
	case "==":
		return as == es
	case "!=":
		return as != es
	case "in":
		list, ok := expected.([]interface{})
		if !ok {
			return false
		}
		for _, item := range list {
			if as == strings.ToLower(strings.TrimSpace(fmt.Sprint(item))) {
				return true
			}
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
