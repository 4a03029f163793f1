package validation

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/carelens-ai/platform/pkg/common/logger"
)

// RuleSpec is the authored form of a rule. Parameters is nested YAML in
// the file and flattens to a JSON blob in the relational row.
type RuleSpec struct {
	RuleID          string                 `yaml:"rule_id"`
	Description     string                 `yaml:"description"`
	RuleType        string                 `yaml:"rule_type"`
	Field           string                 `yaml:"field"`
	ValidationLogic string                 `yaml:"validation_logic"`
	Parameters      map[string]interface{} `yaml:"parameters"`
	Severity        string                 `yaml:"severity"`
	Active          *bool                  `yaml:"active"`
}

type ruleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// LoadRuleSpecs reads rule definitions from a YAML file, falling back to
// the built-in set when no path is configured or the file is unreadable.
func LoadRuleSpecs(path string) []RuleSpec {
	if path == "" {
		return DefaultRuleSpecs()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.WithField("path", path).WithError(err).Warn("rule file not readable, using built-in rules")
		return DefaultRuleSpecs()
	}
	var parsed ruleFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		logger.WithField("path", path).WithError(err).Warn("rule file not parseable, using built-in rules")
		return DefaultRuleSpecs()
	}
	if len(parsed.Rules) == 0 {
		logger.WithField("path", path).Warn("rule file is empty, using built-in rules")
		return DefaultRuleSpecs()
	}
	return parsed.Rules
}

// SeedRules upserts rule specs into validation_rules keyed by rule_id.
// Seeding is idempotent: re-running with the same file changes nothing.
func SeedRules(db *gorm.DB, specs []RuleSpec) (int, error) {
	seeded := 0
	for _, spec := range specs {
		if spec.RuleID == "" || spec.ValidationLogic == "" {
			return seeded, fmt.Errorf("rule %q missing rule_id or validation_logic", spec.RuleID)
		}
		params, err := json.Marshal(spec.Parameters)
		if err != nil {
			return seeded, fmt.Errorf("rule %s: encoding parameters: %w", spec.RuleID, err)
		}
		active := true
		if spec.Active != nil {
			active = *spec.Active
		}
		rule := ValidationRule{
			RuleID:          spec.RuleID,
			Description:     spec.Description,
			RuleType:        spec.RuleType,
			Field:           spec.Field,
			ValidationLogic: spec.ValidationLogic,
			Parameters:      params,
			Severity:        spec.Severity,
			Active:          active,
		}
		err = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "rule_id"}},
			UpdateAll: true,
		}).Create(&rule).Error
		if err != nil {
			return seeded, fmt.Errorf("rule %s: %w", spec.RuleID, err)
		}
		seeded++
	}
	return seeded, nil
}

// DefaultRuleSpecs is the built-in rule set covering the core vitals and
// demographics of the warehouse.
func DefaultRuleSpecs() []RuleSpec {
	return []RuleSpec{
		{
			RuleID:          "vitals-bmi-frequency",
			Description:     "BMI should be measured at least every 60 days",
			RuleType:        "frequency",
			Field:           "bmi",
			ValidationLogic: LogicDateDiff,
			Parameters:      map[string]interface{}{"max_days_between": 60},
			Severity:        SeverityWarning,
		},
		{
			RuleID:          "vitals-bp-frequency",
			Description:     "Systolic blood pressure should be measured at least every 90 days",
			RuleType:        "frequency",
			Field:           "sbp",
			ValidationLogic: LogicDateDiff,
			Parameters:      map[string]interface{}{"max_days_between": 90},
			Severity:        SeverityWarning,
		},
		{
			RuleID:          "vitals-weight-range",
			Description:     "Weight should fall in a plausible range",
			RuleType:        "range",
			Field:           "weight",
			ValidationLogic: LogicRange,
			Parameters:      map[string]interface{}{"min_value": 25.0, "max_value": 500.0},
			Severity:        SeverityCritical,
		},
		{
			RuleID:          "vitals-bmi-range",
			Description:     "BMI should fall in a plausible range",
			RuleType:        "range",
			Field:           "bmi",
			ValidationLogic: LogicRange,
			Parameters:      map[string]interface{}{"min_value": 12.0, "max_value": 70.0},
			Severity:        SeverityCritical,
		},
		{
			RuleID:          "vitals-sbp-range",
			Description:     "Systolic blood pressure should fall in a plausible range",
			RuleType:        "range",
			Field:           "sbp",
			ValidationLogic: LogicRange,
			Parameters:      map[string]interface{}{"min_value": 60.0, "max_value": 260.0},
			Severity:        SeverityCritical,
		},
		{
			RuleID:          "vitals-dbp-range",
			Description:     "Diastolic blood pressure should fall in a plausible range",
			RuleType:        "range",
			Field:           "dbp",
			ValidationLogic: LogicRange,
			Parameters:      map[string]interface{}{"min_value": 30.0, "max_value": 160.0},
			Severity:        SeverityCritical,
		},
		{
			RuleID:          "demographics-age-range",
			Description:     "Age should fall between 0 and 120",
			RuleType:        "range",
			Field:           "age",
			ValidationLogic: LogicRange,
			Parameters:      map[string]interface{}{"min_value": 0.0, "max_value": 120.0},
			Severity:        SeverityWarning,
		},
		{
			RuleID:          "demographics-gender-present",
			Description:     "Gender must be recorded",
			RuleType:        "completeness",
			Field:           "gender",
			ValidationLogic: LogicNotNull,
			Severity:        SeverityWarning,
		},
		{
			RuleID:          "demographics-gender-values",
			Description:     "Gender must be one of the recorded categories",
			RuleType:        "categorical",
			Field:           "gender",
			ValidationLogic: LogicAllowedValues,
			Parameters:      map[string]interface{}{"allowed_values": []string{"M", "F", "other", "unknown"}},
			Severity:        SeverityWarning,
		},
		{
			RuleID:          "vitals-height-when-adult",
			Description:     "Height must be recorded for adult patients",
			RuleType:        "conditional",
			Field:           "height",
			ValidationLogic: LogicConditionalNotNull,
			Parameters: map[string]interface{}{
				"conditions": []map[string]interface{}{
					{"field": "age", "operator": ">=", "value": 18},
				},
			},
			Severity: SeverityInfo,
		},
	}
}
