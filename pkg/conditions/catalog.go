package conditions

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mapping is one canonical clinical condition with its diagnosis codes and
// the free-text spellings that resolve to it.
type Mapping struct {
	Canonical   string   `yaml:"canonical" json:"canonical"`
	Codes       []string `yaml:"codes" json:"codes"`
	Description string   `yaml:"description" json:"description"`
	Synonyms    []string `yaml:"synonyms" json:"synonyms"`
}

type Catalog struct {
	Conditions map[string]Mapping `yaml:"conditions" json:"conditions"`
}

// LoadCatalog reads a condition catalog from a YAML file, falling back to
// the built-in catalog when no path is configured.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, err
	}
	if len(cat.Conditions) == 0 {
		return Catalog{}, fmt.Errorf("condition catalog empty")
	}
	for key, mapping := range cat.Conditions {
		if mapping.Canonical == "" {
			mapping.Canonical = strings.ToLower(key)
			cat.Conditions[key] = mapping
		}
	}
	return cat, nil
}

func (c Catalog) Lookup(key string) (Mapping, bool) {
	if c.Conditions == nil {
		return Mapping{}, false
	}
	mapping, ok := c.Conditions[strings.ToLower(key)]
	return mapping, ok
}

func DefaultCatalog() Catalog {
	return Catalog{Conditions: map[string]Mapping{
		"diabetes": {
			Canonical:   "diabetes",
			Codes:       []string{"E11.9", "E11.65"},
			Description: "Type 2 diabetes mellitus",
			Synonyms:    []string{"t2dm", "type 2 diabetes", "diabetic", "dm2", "sugar diabetes"},
		},
		"prediabetes": {
			Canonical:   "prediabetes",
			Codes:       []string{"R73.03"},
			Description: "Prediabetes",
			Synonyms:    []string{"pre-diabetes", "pre diabetes", "borderline diabetes"},
		},
		"hypertension": {
			Canonical:   "hypertension",
			Codes:       []string{"I10"},
			Description: "Essential hypertension",
			Synonyms:    []string{"htn", "high blood pressure", "elevated blood pressure", "hypertensive"},
		},
		"obesity": {
			Canonical:   "obesity",
			Codes:       []string{"E66.9", "E66.01"},
			Description: "Obesity, unspecified",
			Synonyms:    []string{"obese"},
		},
		"morbid_obesity": {
			Canonical:   "morbid_obesity",
			Codes:       []string{"E66.01", "Z68.41"},
			Description: "Morbid (severe) obesity",
			Synonyms:    []string{"morbid obesity", "severe obesity", "class 3 obesity", "class iii obesity"},
		},
		"overweight": {
			Canonical:   "overweight",
			Codes:       []string{"E66.3"},
			Description: "Overweight",
			Synonyms:    []string{"over weight", "elevated bmi"},
		},
		"depression": {
			Canonical:   "depression",
			Codes:       []string{"F32.9", "F33.9"},
			Description: "Major depressive disorder",
			Synonyms:    []string{"mdd", "depressed", "depressive disorder", "major depression"},
		},
		"anxiety": {
			Canonical:   "anxiety",
			Codes:       []string{"F41.1", "F41.9"},
			Description: "Generalized anxiety disorder",
			Synonyms:    []string{"gad", "anxious", "anxiety disorder"},
		},
		"hyperlipidemia": {
			Canonical:   "hyperlipidemia",
			Codes:       []string{"E78.5"},
			Description: "Hyperlipidemia, unspecified",
			Synonyms:    []string{"high cholesterol", "dyslipidemia", "elevated cholesterol"},
		},
		"heart_failure": {
			Canonical:   "heart_failure",
			Codes:       []string{"I50.9"},
			Description: "Heart failure, unspecified",
			Synonyms:    []string{"heart failure", "chf", "congestive heart failure"},
		},
		"copd": {
			Canonical:   "copd",
			Codes:       []string{"J44.9"},
			Description: "Chronic obstructive pulmonary disease",
			Synonyms:    []string{"chronic obstructive pulmonary disease", "emphysema"},
		},
		"asthma": {
			Canonical:   "asthma",
			Codes:       []string{"J45.909"},
			Description: "Asthma, unspecified",
			Synonyms:    []string{"asthmatic"},
		},
		"ckd": {
			Canonical:   "ckd",
			Codes:       []string{"N18.9"},
			Description: "Chronic kidney disease",
			Synonyms:    []string{"chronic kidney disease", "kidney disease", "renal disease"},
		},
		"sleep_apnea": {
			Canonical:   "sleep_apnea",
			Codes:       []string{"G47.33"},
			Description: "Obstructive sleep apnea",
			Synonyms:    []string{"sleep apnea", "osa", "apnea"},
		},
		"hypothyroidism": {
			Canonical:   "hypothyroidism",
			Codes:       []string{"E03.9"},
			Description: "Hypothyroidism, unspecified",
			Synonyms:    []string{"low thyroid", "underactive thyroid"},
		},
	}}
}
