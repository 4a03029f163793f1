package validation

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/carelens-ai/platform/pkg/common/models"
)

func testRule(t *testing.T, field, logic string, params map[string]interface{}) ValidationRule {
	t.Helper()
	rule := ValidationRule{
		RuleID:          "test-" + field + "-" + logic,
		Field:           field,
		ValidationLogic: logic,
		Severity:        SeverityWarning,
		Active:          true,
	}
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("encoding parameters: %v", err)
		}
		rule.Parameters = encoded
	}
	return rule
}

func vitalRow(day int, weight, bmi *float64) models.Vital {
	d := time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC)
	return models.Vital{PatientID: "p1", Date: &d, Weight: weight, BMI: bmi}
}

func f(v float64) *float64 { return &v }

var testNow = time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

func TestDateDiffFlagsGaps(t *testing.T) {
	rule := testRule(t, "bmi", LogicDateDiff, map[string]interface{}{"max_days_between": 60})
	patient := &models.Patient{ID: "p1"}
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	apr := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	vitals := []models.Vital{
		{PatientID: "p1", Date: &jan, BMI: f(30)},
		{PatientID: "p1", Date: &apr, BMI: f(29)},
	}

	results, err := evalDateDiff(rule, patient, vitals, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one gap result, got %d: %+v", len(results), results)
	}
	if !strings.Contains(results[0].Message, "90 day gap in bmi measurements") {
		t.Fatalf("unexpected message: %q", results[0].Message)
	}
}

func TestDateDiffWeightIsExempt(t *testing.T) {
	rule := testRule(t, "weight", LogicDateDiff, map[string]interface{}{"max_days_between": 30})
	results, err := evalDateDiff(rule, &models.Patient{ID: "p1"}, nil, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil {
		t.Fatalf("weight frequency must not be checked, got %+v", results)
	}
}

func TestDateDiffNoMeasurements(t *testing.T) {
	rule := testRule(t, "bmi", LogicDateDiff, map[string]interface{}{"max_days_between": 60})
	results, err := evalDateDiff(rule, &models.Patient{ID: "p1"}, nil, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Message != "no bmi measurements found" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestDateDiffStaleLatestMeasurement(t *testing.T) {
	rule := testRule(t, "bmi", LogicDateDiff, map[string]interface{}{"max_days_between": 60})
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	vitals := []models.Vital{{PatientID: "p1", Date: &jan, BMI: f(30)}}

	results, err := evalDateDiff(rule, &models.Patient{ID: "p1"}, vitals, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || !strings.Contains(results[0].Message, "no bmi measurement in 99 days") {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestRangeFlagsOutOfBoundsVitals(t *testing.T) {
	rule := testRule(t, "bmi", LogicRange, map[string]interface{}{"min_value": 12.0, "max_value": 70.0})
	vitals := []models.Vital{vitalRow(1, f(600), f(85)), vitalRow(2, f(90), f(31))}

	results, err := evalRange(rule, &models.Patient{ID: "p1"}, vitals, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || !strings.Contains(results[0].Message, "bmi value 85.0 above maximum 70.0") {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestRangeWeightSuppressedWhenSameRowBMIImplausible(t *testing.T) {
	rule := testRule(t, "weight", LogicRange, map[string]interface{}{"min_value": 25.0, "max_value": 500.0})
	// Row 1: the implausible weight produced an implausible BMI; one data
	// entry mistake, reported through the BMI rule only.
	// Row 2: implausible weight with a plausible BMI is still a weight error.
	vitals := []models.Vital{vitalRow(1, f(600), f(85)), vitalRow(2, f(600), f(30))}

	results, err := evalRange(rule, &models.Patient{ID: "p1"}, vitals, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one weight result, got %+v", results)
	}
	if !strings.Contains(results[0].Message, "weight value 600.0 above maximum 500.0") {
		t.Fatalf("unexpected message: %q", results[0].Message)
	}
}

func TestRangeChecksDemographics(t *testing.T) {
	rule := testRule(t, "age", LogicRange, map[string]interface{}{"min_value": 0.0, "max_value": 120.0})
	age := 130
	results, err := evalRange(rule, &models.Patient{ID: "p1", Age: &age}, nil, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || !strings.Contains(results[0].Message, "age value 130.0 above maximum 120.0") {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestNotNull(t *testing.T) {
	rule := testRule(t, "gender", LogicNotNull, nil)
	results, err := evalNotNull(rule, &models.Patient{ID: "p1"}, nil, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Message != "gender is missing" {
		t.Fatalf("unexpected results: %+v", results)
	}

	gender := "F"
	results, err = evalNotNull(rule, &models.Patient{ID: "p1", Gender: &gender}, nil, testNow)
	if err != nil || len(results) != 0 {
		t.Fatalf("expected no result for recorded gender, got %+v err=%v", results, err)
	}
}

func TestAllowedValues(t *testing.T) {
	rule := testRule(t, "gender", LogicAllowedValues, map[string]interface{}{
		"allowed_values": []string{"M", "F", "other", "unknown"},
	})

	gender := "m"
	results, err := evalAllowedValues(rule, &models.Patient{ID: "p1", Gender: &gender}, nil, testNow)
	if err != nil || len(results) != 0 {
		t.Fatalf("expected case-insensitive match, got %+v err=%v", results, err)
	}

	gender = "X"
	results, err = evalAllowedValues(rule, &models.Patient{ID: "p1", Gender: &gender}, nil, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || !strings.Contains(results[0].Message, `gender value "X" is not an allowed value`) {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestAllowedValuesWithNotNull(t *testing.T) {
	rule := testRule(t, "gender", LogicAllowedValues, map[string]interface{}{
		"allowed_values": []string{"M", "F"},
		"not_null":       true,
	})
	results, err := evalAllowedValues(rule, &models.Patient{ID: "p1"}, nil, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Message != "gender is missing" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestConditionalNotNull(t *testing.T) {
	rule := testRule(t, "height", LogicConditionalNotNull, map[string]interface{}{
		"conditions": []map[string]interface{}{
			{"field": "age", "operator": ">=", "value": 18},
		},
	})

	adult := 40
	results, err := evalConditionalNotNull(rule, &models.Patient{ID: "p1", Age: &adult}, nil, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Message != "height is missing" {
		t.Fatalf("expected missing height for an adult, got %+v", results)
	}

	child := 10
	results, err = evalConditionalNotNull(rule, &models.Patient{ID: "p1", Age: &child}, nil, testNow)
	if err != nil || len(results) != 0 {
		t.Fatalf("expected no check for a child, got %+v err=%v", results, err)
	}

	withHeight := []models.Vital{vitalRow(1, nil, nil)}
	withHeight[0].Height = f(172)
	results, err = evalConditionalNotNull(rule, &models.Patient{ID: "p1", Age: &adult}, withHeight, testNow)
	if err != nil || len(results) != 0 {
		t.Fatalf("expected no result when height recorded, got %+v err=%v", results, err)
	}
}

func TestConditionalWithoutConditionsDegradesToNotNull(t *testing.T) {
	rule := testRule(t, "ethnicity", LogicConditionalNotNull, nil)
	results, err := evalConditionalNotNull(rule, &models.Patient{ID: "p1"}, nil, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Message != "ethnicity is missing" {
		t.Fatalf("unexpected results: %+v", results)
	}
}
