package validation

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Result lifecycle. The engine only ever creates rows in StatusOpen;
// the review workflow moves them to the other states.
const (
	StatusOpen      = "open"
	StatusReviewed  = "reviewed"
	StatusCorrected = "corrected"
	StatusIgnored   = "ignored"
	StatusVerified  = "verified"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Evaluator identifiers, one per rule logic.
const (
	LogicDateDiff           = "date_diff_check"
	LogicRange              = "range_check"
	LogicNotNull            = "not_null_check"
	LogicAllowedValues      = "allowed_values_check"
	LogicConditionalNotNull = "conditional_not_null_check"
)

// ValidationRule is one declarative data-quality check. Parameters is the
// stored JSON form; evaluators decode it into the typed option structs
// below, so an unknown or malformed blob disables only that rule.
type ValidationRule struct {
	ID              int64          `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	RuleID          string         `gorm:"column:rule_id;uniqueIndex" json:"rule_id"`
	Description     string         `gorm:"column:description" json:"description"`
	RuleType        string         `gorm:"column:rule_type" json:"rule_type"`
	Field           string         `gorm:"column:field" json:"field"`
	ValidationLogic string         `gorm:"column:validation_logic" json:"validation_logic"`
	Parameters      datatypes.JSON `gorm:"column:parameters" json:"parameters,omitempty"`
	Severity        string         `gorm:"column:severity" json:"severity"`
	Active          bool           `gorm:"column:active" json:"active"`
}

func (ValidationRule) TableName() string { return "validation_rules" }

type ValidationResult struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	PatientID string    `gorm:"column:patient_id;index" json:"patient_id"`
	RuleID    string    `gorm:"column:rule_id" json:"rule_id"`
	Field     string    `gorm:"column:field" json:"field"`
	Message   string    `gorm:"column:message" json:"message"`
	Severity  string    `gorm:"column:severity" json:"severity"`
	Status    string    `gorm:"column:status" json:"status"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (ValidationResult) TableName() string { return "validation_results" }

// DateDiffOptions configures the measurement-frequency check.
type DateDiffOptions struct {
	MaxDaysBetween int `json:"max_days_between"`
}

// RangeOptions bounds a numeric field; either side may be open.
type RangeOptions struct {
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`
}

type AllowedValuesOptions struct {
	AllowedValues []string `json:"allowed_values"`
	NotNull       bool     `json:"not_null,omitempty"`
}

// RuleCondition is one {field, operator, value} predicate of a conditional
// rule, evaluated against the patient's other fields.
type RuleCondition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

type ConditionalOptions struct {
	Conditions []RuleCondition `json:"conditions"`
}

func decodeOptions(rule ValidationRule, out interface{}) error {
	if len(rule.Parameters) == 0 {
		return nil
	}
	if err := json.Unmarshal(rule.Parameters, out); err != nil {
		return fmt.Errorf("rule %s has malformed parameters: %w", rule.RuleID, err)
	}
	return nil
}
