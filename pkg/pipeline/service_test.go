package pipeline

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/carelens-ai/platform/pkg/analysis"
	"github.com/carelens-ai/platform/pkg/clarify"
	"github.com/carelens-ai/platform/pkg/common/database"
	"github.com/carelens-ai/platform/pkg/common/logger"
	"github.com/carelens-ai/platform/pkg/common/models"
	"github.com/carelens-ai/platform/pkg/conditions"
	"github.com/carelens-ai/platform/pkg/intent"
	"github.com/carelens-ai/platform/pkg/redact"
)

func TestMain(m *testing.M) {
	logger.Init("pipeline-test")
	os.Exit(m.Run())
}

// fakeLLM answers every classification with the same canned JSON and
// remembers the last user text it was shown.
type fakeLLM struct {
	online   bool
	response string
	lastSeen string
}

func (f *fakeLLM) Online() bool { return f.online }

func (f *fakeLLM) Ask(_ context.Context, _, userQuery string) (string, error) {
	f.lastSeen = userQuery
	return f.response, nil
}

type fakePublisher struct {
	events []string
}

func (f *fakePublisher) PublishEvent(_ context.Context, eventType, _ string, _ map[string]interface{}) error {
	f.events = append(f.events, eventType)
	return nil
}

func seedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLiteMemory()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Patient{}, &models.Vital{}, &models.Score{}, &models.PMHEntry{}))

	active := true
	require.NoError(t, db.Create(&[]models.Patient{{ID: "p1", Active: &active}, {ID: "p2", Active: &active}}).Error)

	w1, w2, w3 := 100.0, 95.0, 80.0
	jan := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&[]models.Vital{
		{PatientID: "p1", Date: &jan, Weight: &w1},
		{PatientID: "p1", Date: &feb, Weight: &w2},
		{PatientID: "p2", Date: &jan, Weight: &w3},
	}).Error)
	return db
}

func newService(t *testing.T, client *fakeLLM, offline bool, opts ...Option) *Service {
	t.Helper()
	mapper := conditions.NewMapper(conditions.DefaultCatalog())
	clarifier := clarify.NewClarifier(mapper, clarify.WithTestMode())
	gate := clarify.NewGate(clarifier, clarify.DefaultConfidenceThreshold, offline)
	parser := intent.NewParser(client, mapper)
	executor := analysis.NewExecutor(seedDB(t))
	return NewService(parser, clarifier, gate, executor, opts...)
}

func TestHandleQueryEmpty(t *testing.T) {
	svc := newService(t, &fakeLLM{online: false}, true)
	resp := svc.HandleQuery(context.Background(), "   ")
	require.NotNil(t, resp)
	require.Equal(t, "query is empty", resp.Error)
}

func TestHandleQueryOfflineAnswersWithoutBlocking(t *testing.T) {
	svc := newService(t, &fakeLLM{online: false}, true)

	resp := svc.HandleQuery(context.Background(), "show me the weight trend")
	require.NotNil(t, resp)
	require.False(t, resp.NeedsClarification, "offline queries are answered, never gated")
	require.NotNil(t, resp.Result)
	require.Contains(t, resp.Summary, "Trend of weight")
}

func TestHandleQueryAsksWhenAmbiguous(t *testing.T) {
	client := &fakeLLM{online: true, response: `{"analysis_type": "correlation", "target_field": "weight"}`}
	svc := newService(t, client, false)

	resp := svc.HandleQuery(context.Background(), "correlate weight for our patients")
	require.True(t, resp.NeedsClarification)
	require.NotEmpty(t, resp.Questions)
	require.Nil(t, resp.Result)
}

func TestHandleQueryScrubsIdentifiersBeforeParsing(t *testing.T) {
	scrubber, err := redact.NewScrubber(redact.DefaultRules())
	require.NoError(t, err)

	client := &fakeLLM{online: true, response: `{"analysis_type": "average", "target_field": "weight"}`}
	svc := newService(t, client, false, WithScrubber(scrubber))

	resp := svc.HandleQuery(context.Background(), "average weight for the patient with ssn 123-45-6789")
	require.NotContains(t, client.lastSeen, "123-45-6789", "identifiers must not reach the model")
	require.Contains(t, client.lastSeen, "[SSN]")
	require.NotContains(t, resp.Query, "123-45-6789")
}

func TestHandleQueryRunsPlanAndPublishes(t *testing.T) {
	client := &fakeLLM{online: true, response: `{"analysis_type": "average", "target_field": "weight"}`}
	publisher := &fakePublisher{}
	svc := newService(t, client, false, WithPublisher(publisher))

	resp := svc.HandleQuery(context.Background(), "what is the average weight")
	require.False(t, resp.NeedsClarification)
	result, ok := resp.Result.(*analysis.Result)
	require.True(t, ok)
	require.False(t, result.Failed(), result.Error)
	require.NotNil(t, result.Value)
	require.InDelta(t, 91.666666, *result.Value, 1e-4)
	require.True(t, strings.HasPrefix(resp.Summary, "The average weight is"))
	require.Equal(t, []string{"query.completed"}, publisher.events)
}

func TestHandleQueryNarratesFailures(t *testing.T) {
	client := &fakeLLM{online: true, response: `{"analysis_type": "comparison", "target_field": "weight", "group_by": ["gender"], "time_range": {"start_date": "2030-01-01", "end_date": "2030-06-30"}}`}
	svc := newService(t, client, false)

	resp := svc.HandleQuery(context.Background(), "compare weight change by gender for 2030")
	result, ok := resp.Result.(*analysis.Result)
	require.True(t, ok)
	if result.Failed() {
		require.Contains(t, resp.Summary, "I couldn't answer that")
		require.NotEmpty(t, resp.Error)
	}
}
