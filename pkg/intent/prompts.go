package intent

const classificationPrompt = `You classify questions about a patient-health dataset into a structured analysis intent.

The dataset tables: patients(id, first_name, last_name, gender, age, ethnicity, active, program_start_date, program_end_date), vitals(patient_id, date, weight, bmi, sbp, dbp, height), lab_results(patient_id, date, test_name, value, unit), scores(patient_id, date, score_type, score_value), pmh(patient_id, condition, code).

Respond with a JSON object with exactly these keys:
  "analysis_type": one of count, average, median, distribution, comparison, trend, change, sum, min, max, average_change, rate, variance, std_dev, percent_change, top_n, correlation, histogram
  "target_field": the primary column of interest
  "filters": list of {"field": ..., and exactly one of "value", "range" {"start","end"}, "date_range" {"start_date","end_date"}}
  "conditions": list of {"field", "operator", "value"} with operator one of >, <, >=, <=, ==, !=, in, within, between
  "parameters": object with analysis-specific settings (e.g. "n" for top_n, "method" for correlation)
  "additional_fields": list of extra metric columns
  "group_by": list of columns to aggregate by
  "time_range": {"start_date": "YYYY-MM-DD", "end_date": "YYYY-MM-DD"} or null

All dates must be "YYYY-MM-DD" strings. Do not wrap the JSON in markdown fences.`

const strictJSONSuffix = `

Respond with ONLY the JSON object. No prose, no markdown, no explanation.`
