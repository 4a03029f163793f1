package intent

import (
	"context"
	"os"
	"testing"

	"github.com/carelens-ai/platform/pkg/common/logger"
	"github.com/carelens-ai/platform/pkg/conditions"
	"github.com/carelens-ai/platform/pkg/llm"
)

func TestMain(m *testing.M) {
	logger.Init("intent-test")
	os.Exit(m.Run())
}

// fakeLLM replays canned responses; each Ask consumes one.
type fakeLLM struct {
	online    bool
	responses []string
	errs      []error
	calls     int
}

func (f *fakeLLM) Online() bool { return f.online }

func (f *fakeLLM) Ask(_ context.Context, _, _ string) (string, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var resp string
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return resp, err
}

func testMapper(t *testing.T) *conditions.Mapper {
	t.Helper()
	return conditions.NewMapper(conditions.DefaultCatalog())
}

func TestParseOfflineFallsBackToKeywords(t *testing.T) {
	p := NewParser(&fakeLLM{online: false}, testMapper(t))

	q := p.Parse(context.Background(), "show me the weight trend")
	if q.AnalysisType != AnalysisTrend || q.TargetField != "weight" {
		t.Fatalf("unexpected intent: %+v", q)
	}
	if q.Parameters["is_fallback"] != true {
		t.Fatal("offline intents must be tagged as fallbacks")
	}

	q = p.Parse(context.Background(), "weights from january 2025 to march 2025")
	if q.AnalysisType != AnalysisTrend || q.TimeRange == nil {
		t.Fatalf("expected bounded trend, got %+v", q)
	}
	if got := q.TimeRange.StartDate.Format("2006-01-02"); got != "2025-01-01" {
		t.Fatalf("unexpected start: %s", got)
	}
	if got := q.TimeRange.EndDate.Format("2006-01-02"); got != "2025-03-31" {
		t.Fatalf("unexpected end: %s", got)
	}

	q = p.Parse(context.Background(), "tell me something")
	if q.AnalysisType != AnalysisCount || q.TargetField != "unknown" {
		t.Fatalf("expected count/unknown fallback, got %+v", q)
	}
}

func TestParseOnlineDecodesModelJSON(t *testing.T) {
	client := &fakeLLM{online: true, responses: []string{
		"```json\n{\"analysis_type\": \"average\", \"target_field\": \"bmi\"}\n```",
	}}
	p := NewParser(client, testMapper(t))

	q := p.Parse(context.Background(), "what is the average bmi")
	if q.AnalysisType != AnalysisAverage || q.TargetField != "bmi" {
		t.Fatalf("unexpected intent: %+v", q)
	}
	if q.RawQuery != "what is the average bmi" {
		t.Fatalf("raw query not preserved: %q", q.RawQuery)
	}
	if client.calls != 1 {
		t.Fatalf("expected a single round, got %d", client.calls)
	}
}

func TestParseRetriesOnceOnInvalidJSON(t *testing.T) {
	client := &fakeLLM{online: true, responses: []string{
		"sorry, I cannot do that",
		`{"analysis_type": "count", "target_field": "patient_id"}`,
	}}
	p := NewParser(client, testMapper(t))

	q := p.Parse(context.Background(), "how many patients are there")
	if q.AnalysisType != AnalysisCount || q.TargetField != "patient_id" {
		t.Fatalf("unexpected intent: %+v", q)
	}
	if client.calls != 2 {
		t.Fatalf("expected two rounds, got %d", client.calls)
	}
}

func TestParseDegradesAfterTwoFailedRounds(t *testing.T) {
	client := &fakeLLM{online: true, responses: []string{"nope", "still nope"}}
	p := NewParser(client, testMapper(t))

	q := p.Parse(context.Background(), "anything")
	if q.AnalysisType != AnalysisUnknown || q.TargetField != "unknown" {
		t.Fatalf("expected degraded intent, got %+v", q)
	}
	if _, ok := q.Parameters["error"]; !ok {
		t.Fatal("degraded intent must carry the failure reason")
	}
}

func TestParseOfflineErrorMidFlightFallsBack(t *testing.T) {
	client := &fakeLLM{online: true, errs: []error{llm.ErrOffline}}
	p := NewParser(client, testMapper(t))

	q := p.Parse(context.Background(), "weight trend please")
	if q.Parameters["is_fallback"] != true {
		t.Fatalf("expected keyword fallback, got %+v", q)
	}
}

func TestParseHeuristics(t *testing.T) {
	mapper := testMapper(t)

	parse := func(raw, query string) QueryIntent {
		t.Helper()
		p := NewParser(&fakeLLM{online: true, responses: []string{raw, raw}}, mapper)
		return p.Parse(context.Background(), query)
	}

	q := parse(`{"analysis_type": "count", "target_field": "patient_id"}`,
		"how many active patients do we have")
	if !q.HasFilterOn("active") {
		t.Fatalf("expected injected active filter: %+v", q.Filters)
	}

	q = parse(`{"analysis_type": "average", "target_field": "patient_id"}`,
		"total number of patients")
	if q.AnalysisType != AnalysisCount {
		t.Fatalf("'total' must force a count, got %v", q.AnalysisType)
	}

	q = parse(`{"analysis_type": "average", "target_field": "weight"}`,
		"how much weight loss did patients see")
	if q.AnalysisType != AnalysisChange {
		t.Fatalf("weight-loss wording must force a change analysis, got %v", q.AnalysisType)
	}

	q = parse(`{"analysis_type": "count", "target_field": "patient_id"}`,
		"how many visits in march 2025")
	if q.TimeRange == nil || q.TimeRange.StartDate.Format("2006-01-02") != "2025-03-01" {
		t.Fatalf("expected march window, got %+v", q.TimeRange)
	}
	if q.TimeRange.EndDate.Format("2006-01-02") != "2025-03-31" {
		t.Fatalf("expected end of march, got %+v", q.TimeRange)
	}
}

func TestParseInjectsConditionFilters(t *testing.T) {
	client := &fakeLLM{online: true, responses: []string{
		`{"analysis_type": "average", "target_field": "bmi"}`,
	}}
	p := NewParser(client, testMapper(t))

	q := p.Parse(context.Background(), "average bmi for patients with t2dm")
	found := false
	for _, f := range q.Filters {
		if f.Field == "condition" && f.Value == "diabetes" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected injected diabetes filter, got %+v", q.Filters)
	}
}

func TestParseStripsRedundantFilters(t *testing.T) {
	client := &fakeLLM{online: true, responses: []string{
		`{"analysis_type": "count", "target_field": "patient_id",
		  "filters": [
			{"field": "condition", "value": "hypertension"},
			{"field": "diagnosis", "value": "htn"}
		  ]}`,
	}}
	p := NewParser(client, testMapper(t))

	q := p.Parse(context.Background(), "how many patients have hypertension")
	for _, f := range q.Filters {
		if f.Field == "diagnosis" {
			t.Fatalf("redundant diagnosis filter survived: %+v", q.Filters)
		}
	}
	conditionFilters := 0
	for _, f := range q.Filters {
		if f.Field == "condition" {
			conditionFilters++
		}
	}
	if conditionFilters != 1 {
		t.Fatalf("expected exactly one condition filter, got %+v", q.Filters)
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"{\"a\": 1}", `{"a": 1}`},
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"  \n```json\n{\"a\": 1}\n```\n  ", `{"a": 1}`},
	}
	for _, tc := range cases {
		if got := stripCodeFences(tc.in); got != tc.want {
			t.Fatalf("stripCodeFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
