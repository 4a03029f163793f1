package analysis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/carelens-ai/platform/pkg/common/database"
	"github.com/carelens-ai/platform/pkg/common/logger"
	"github.com/carelens-ai/platform/pkg/common/models"
	"github.com/carelens-ai/platform/pkg/intent"
)

func TestMain(m *testing.M) {
	logger.Init("analysis-test")
	os.Exit(m.Run())
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func fp(v float64) *float64 { return &v }

func sp(v string) *string { return &v }

func ip(v int) *int { return &v }

func bp(v bool) *bool { return &v }

func seedWarehouse(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLiteMemory()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Patient{}, &models.Vital{}, &models.Score{}, &models.PMHEntry{},
	))

	patients := []models.Patient{
		{ID: "p1", FirstName: "Ana", LastName: "Reyes", Gender: sp("F"), Age: ip(34), Active: bp(true)},
		{ID: "p2", FirstName: "Ben", LastName: "Okafor", Gender: sp("M"), Age: ip(70), Active: bp(true)},
		{ID: "p3", FirstName: "Cara", LastName: "Lindt", Gender: sp("F"), Age: ip(55), Active: bp(false)},
	}
	require.NoError(t, db.Create(&patients).Error)

	vitals := []models.Vital{
		{PatientID: "p1", Date: date(2025, 1, 5), Weight: fp(100), BMI: fp(34)},
		{PatientID: "p1", Date: date(2025, 2, 10), Weight: fp(95), BMI: fp(32.4)},
		{PatientID: "p1", Date: date(2025, 3, 12), Weight: fp(90), BMI: fp(30.7)},
		{PatientID: "p2", Date: date(2025, 1, 8), Weight: fp(80), BMI: fp(26)},
		{PatientID: "p2", Date: date(2025, 3, 15), Weight: fp(82), BMI: fp(26.6)},
		{PatientID: "p3", Date: date(2025, 2, 1), Weight: fp(70), BMI: fp(25)},
	}
	require.NoError(t, db.Create(&vitals).Error)

	require.NoError(t, db.Create(&models.PMHEntry{PatientID: "p1", Condition: "diabetes", Code: "E11.9"}).Error)
	return db
}

func TestExecuteAverageWithDemographicFilter(t *testing.T) {
	exec := NewExecutor(seedWarehouse(t))
	plan := Plan{
		Kind:        PlanAggregate,
		TargetField: "bmi",
		Aggregate:   &AggregateOptions{SQLFunc: "AVG"},
		Filters:     []intent.Filter{intent.NewValueFilter("gender", "F")},
	}
	result := exec.Execute(context.Background(), plan)
	require.NotNil(t, result)
	require.False(t, result.Failed(), result.Error)
	require.NotNil(t, result.Value)
	require.InDelta(t, 30.525, *result.Value, 1e-9)
}

func TestExecuteCountDistinctPatientsByCondition(t *testing.T) {
	exec := NewExecutor(seedWarehouse(t))
	plan := Plan{
		Kind:        PlanAggregate,
		TargetField: "patient_id",
		Aggregate:   &AggregateOptions{SQLFunc: "COUNT"},
		Filters:     []intent.Filter{intent.NewValueFilter("condition", "Diabetes")},
	}
	result := exec.Execute(context.Background(), plan)
	require.False(t, result.Failed(), result.Error)
	require.NotNil(t, result.Value)
	require.Equal(t, 1.0, *result.Value)
}

func TestExecuteDerivedMedian(t *testing.T) {
	exec := NewExecutor(seedWarehouse(t))
	plan := Plan{
		Kind:        PlanAggregate,
		TargetField: "weight",
		Aggregate:   &AggregateOptions{Derived: "median"},
	}
	result := exec.Execute(context.Background(), plan)
	require.False(t, result.Failed(), result.Error)
	require.NotNil(t, result.Value)
	require.InDelta(t, 86, *result.Value, 1e-9)
	require.Equal(t, 6, result.Count)
}

func TestExecuteMonthlyTrend(t *testing.T) {
	exec := NewExecutor(seedWarehouse(t))
	plan := Plan{
		Kind:        PlanTrend,
		TargetField: "weight",
		Trend:       &TrendOptions{Period: "month"},
	}
	result := exec.Execute(context.Background(), plan)
	require.False(t, result.Failed(), result.Error)
	require.Equal(t, 3, result.Count)
	require.Equal(t, "2025-01", result.Rows[0]["period"])
	require.InDelta(t, 90, result.Rows[0]["value"].(float64), 1e-9)
	require.Equal(t, "2025-03", result.Rows[2]["period"])
}

func TestExecuteComparisonByGroup(t *testing.T) {
	exec := NewExecutor(seedWarehouse(t))
	plan := Plan{
		Kind:        PlanComparison,
		TargetField: "bmi",
		GroupBy:     []string{"gender"},
	}
	result := exec.Execute(context.Background(), plan)
	require.False(t, result.Failed(), result.Error)
	require.Equal(t, 2, result.Count)
	require.Equal(t, "F", result.Rows[0]["gender"])
	require.Equal(t, "M", result.Rows[1]["gender"])
}

func TestExecuteComparisonByCondition(t *testing.T) {
	exec := NewExecutor(seedWarehouse(t))
	plan := Plan{
		Kind:        PlanComparison,
		TargetField: "weight",
		Filters:     []intent.Filter{intent.NewValueFilter("condition", "diabetes")},
	}
	result := exec.Execute(context.Background(), plan)
	require.False(t, result.Failed(), result.Error)
	require.Len(t, result.Rows, 2)
	require.Equal(t, "with diabetes", result.Rows[0]["group"])
	require.InDelta(t, 95, result.Rows[0]["value"].(float64), 1e-9)
	require.Equal(t, "without diabetes", result.Rows[1]["group"])
	require.InDelta(t, 77.333333, result.Rows[1]["value"].(float64), 1e-4)
}

func TestExecuteComparisonNeedsAxis(t *testing.T) {
	exec := NewExecutor(seedWarehouse(t))
	result := exec.Execute(context.Background(), Plan{Kind: PlanComparison, TargetField: "weight"})
	require.NotNil(t, result)
	require.True(t, result.Failed())
}

func TestExecuteChangeFirstVersusLast(t *testing.T) {
	exec := NewExecutor(seedWarehouse(t))
	plan := Plan{Kind: PlanChange, TargetField: "weight", Change: &ChangeOptions{}}
	result := exec.Execute(context.Background(), plan)
	require.False(t, result.Failed(), result.Error)
	// p1: 90-100 = -10, p2: 82-80 = +2, p3 has a single observation.
	require.Equal(t, 2, result.Count)
	require.NotNil(t, result.Value)
	require.InDelta(t, -4, *result.Value, 1e-9)
}

func TestExecutePercentChange(t *testing.T) {
	exec := NewExecutor(seedWarehouse(t))
	plan := Plan{Kind: PlanChange, TargetField: "weight", Change: &ChangeOptions{Percent: true}}
	result := exec.Execute(context.Background(), plan)
	require.False(t, result.Failed(), result.Error)
	require.Equal(t, 2, result.Count)
	require.InDelta(t, -3.75, *result.Value, 1e-9)
}

func TestExecuteCorrelationSameTable(t *testing.T) {
	exec := NewExecutor(seedWarehouse(t))
	plan := Plan{
		Kind:        PlanCorrelation,
		TargetField: "weight",
		Correlation: &CorrelationOptions{Method: "pearson", SecondField: "bmi", Kind: "simple"},
	}
	result := exec.Execute(context.Background(), plan)
	require.False(t, result.Failed(), result.Error)
	require.Equal(t, 6, result.Count)
	require.NotNil(t, result.Value)
	require.Greater(t, *result.Value, 0.9)
	require.Len(t, result.Rows, 1)
	require.Equal(t, "pearson", result.Rows[0]["method"])
}

func TestExecuteCorrelationWithoutPairsFails(t *testing.T) {
	exec := NewExecutor(seedWarehouse(t))
	plan := Plan{
		Kind:        PlanCorrelation,
		TargetField: "weight",
		Correlation: &CorrelationOptions{SecondField: "score_value", Kind: "simple"},
	}
	result := exec.Execute(context.Background(), plan)
	require.NotNil(t, result)
	require.True(t, result.Failed())
}

func TestExecuteTopNPatientsByWeight(t *testing.T) {
	exec := NewExecutor(seedWarehouse(t))
	plan := Plan{Kind: PlanTopN, TargetField: "weight", TopN: &TopNOptions{N: 2}}
	result := exec.Execute(context.Background(), plan)
	require.False(t, result.Failed(), result.Error)
	require.Equal(t, 2, result.Count)
	require.Equal(t, "p1", result.Rows[0]["patient_id"])
	require.InDelta(t, 95, result.Rows[0]["value"].(float64), 1e-9)
}

func TestExecuteHistogram(t *testing.T) {
	exec := NewExecutor(seedWarehouse(t))
	plan := Plan{Kind: PlanHistogram, TargetField: "bmi", Histogram: &HistogramOptions{Bins: 3}}
	result := exec.Execute(context.Background(), plan)
	require.False(t, result.Failed(), result.Error)
	require.Equal(t, 6, result.Count)
	require.Len(t, result.Rows, 3)
}

func TestExecuteUnknownKindReturnsErrorEnvelope(t *testing.T) {
	exec := NewExecutor(seedWarehouse(t))
	result := exec.Execute(context.Background(), Plan{Kind: PlanKind("bogus"), TargetField: "bmi"})
	require.NotNil(t, result)
	require.True(t, result.Failed())
}
