package intent

import "strings"

// fieldSynonyms maps free-text metric names the model (or the user) produces
// onto canonical warehouse columns. Keys are matched case-insensitively,
// exact first, then as substrings in either direction.
var fieldSynonyms = map[string]string{
	"patients":                 "patient_id",
	"patient":                  "patient_id",
	"bp":                       "sbp",
	"blood pressure":           "sbp",
	"systolic":                 "sbp",
	"systolic blood pressure":  "sbp",
	"diastolic":                "dbp",
	"diastolic blood pressure": "dbp",
	"a1c":                      "score_value",
	"hba1c":                    "score_value",
	"phq9":                     "score_value",
	"phq-9":                    "score_value",
	"gad7":                     "score_value",
	"gad-7":                    "score_value",
	"score":                    "score_value",
	"body mass index":          "bmi",
	"wt":                       "weight",
	"body weight":              "weight",
	"sex":                      "gender",
	"race":                     "ethnicity",
	"diagnosis":                "condition",
	"enrolled":                 "active",
}

// CanonicalFieldName resolves a single field name to its canonical column,
// returning the input unchanged when nothing matches.
func CanonicalFieldName(field string) string {
	key := strings.ToLower(strings.TrimSpace(field))
	if key == "" {
		return field
	}
	if IsCanonicalField(key) {
		return key
	}
	if canonical, ok := fieldSynonyms[key]; ok {
		return canonical
	}
	for syn, canonical := range fieldSynonyms {
		if len(syn) >= 3 && (strings.Contains(key, syn) || strings.Contains(syn, key)) {
			return canonical
		}
	}
	return key
}

// NormalizeFields returns a copy of the intent with every recognized field
// synonym replaced by its canonical column name.
func NormalizeFields(q QueryIntent) QueryIntent {
	out := q.Clone()
	out.TargetField = CanonicalFieldName(out.TargetField)
	for i := range out.Filters {
		out.Filters[i].Field = CanonicalFieldName(out.Filters[i].Field)
	}
	for i := range out.Conditions {
		out.Conditions[i].Field = CanonicalFieldName(out.Conditions[i].Field)
	}
	for i := range out.AdditionalFields {
		out.AdditionalFields[i] = CanonicalFieldName(out.AdditionalFields[i])
	}
	for i := range out.GroupBy {
		out.GroupBy[i] = CanonicalFieldName(out.GroupBy[i])
	}
	return out
}
