package validation

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
)

func TestMain(m *testing.M) {
	logger.Init("validation-test")
	os.Exit(m.Run())
}

type capturedEvent struct {
	eventType string
	data      map[string]interface{}
}

type fakePublisher struct {
	events []capturedEvent
}

func (f *fakePublisher) PublishEvent(_ context.Context, eventType, _ string, data map[string]interface{}) error {
	f.events = append(f.events, capturedEvent{eventType: eventType, data: data})
	return nil
}

func openSeededDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLiteMemory()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Patient{}, &models.Vital{},
		&ValidationRule{}, &ValidationResult{},
	))
	_, err = SeedRules(db, DefaultRuleSpecs())
	require.NoError(t, err)
	return db
}

func engineClock() time.Time {
	return time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
}

func seedPatient(t *testing.T, db *gorm.DB, patient models.Patient, vitals []models.Vital) {
	t.Helper()
	require.NoError(t, db.Create(&patient).Error)
	if len(vitals) > 0 {
		require.NoError(t, db.Create(&vitals).Error)
	}
}

func TestValidatePatientImplausibleRowReportedOnce(t *testing.T) {
	db := openSeededDB(t)
	gender := "F"
	age := 40
	d := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	seedPatient(t, db, models.Patient{ID: "p1", Gender: &gender, Age: &age}, []models.Vital{
		{PatientID: "p1", Date: &d, Weight: f(600), BMI: f(85), SBP: f(120), DBP: f(80), Height: f(165)},
	})

	engine := NewEngine(NewRepository(db), WithClock(engineClock))
	results, err := engine.ValidatePatient(context.Background(), "p1")
	require.NoError(t, err)

	byRule := make(map[string]int)
	for _, res := range results {
		byRule[res.RuleID]++
	}
	require.Equal(t, 1, byRule["vitals-bmi-range"], "implausible BMI must be flagged")
	require.Zero(t, byRule["vitals-weight-range"], "weight error is subsumed by the BMI error")
}

func TestValidatePatientIsIdempotent(t *testing.T) {
	db := openSeededDB(t)
	seedPatient(t, db, models.Patient{ID: "p1"}, nil)

	engine := NewEngine(NewRepository(db), WithClock(engineClock))
	first, err := engine.ValidatePatient(context.Background(), "p1")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := engine.ValidatePatient(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, second, len(first))

	var stored int64
	require.NoError(t, db.Model(&ValidationResult{}).Where("patient_id = ?", "p1").Count(&stored).Error)
	require.EqualValues(t, len(first), stored)
}

func TestValidatePatientClearsResolvedIssues(t *testing.T) {
	db := openSeededDB(t)
	seedPatient(t, db, models.Patient{ID: "p1"}, nil)
	repo := NewRepository(db)
	engine := NewEngine(repo, WithClock(engineClock))

	results, err := engine.ValidatePatient(context.Background(), "p1")
	require.NoError(t, err)
	missingGender := false
	for _, res := range results {
		if res.RuleID == "demographics-gender-present" {
			missingGender = true
		}
	}
	require.True(t, missingGender)

	gender := "F"
	require.NoError(t, db.Model(&models.Patient{}).Where("id = ?", "p1").Update("gender", &gender).Error)

	results, err = engine.ValidatePatient(context.Background(), "p1")
	require.NoError(t, err)
	for _, res := range results {
		require.NotEqual(t, "demographics-gender-present", res.RuleID, "fixed issue must not persist")
	}
}

func TestValidatePatientSkipsConfiguredFields(t *testing.T) {
	db := openSeededDB(t)
	seedPatient(t, db, models.Patient{ID: "p1"}, nil)

	engine := NewEngine(NewRepository(db), WithClock(engineClock), WithSkippedFields("gender"))
	results, err := engine.ValidatePatient(context.Background(), "p1")
	require.NoError(t, err)
	for _, res := range results {
		require.NotEqual(t, "gender", res.Field)
	}
}

func TestValidatePatientPublishesEvent(t *testing.T) {
	db := openSeededDB(t)
	seedPatient(t, db, models.Patient{ID: "p1"}, nil)

	publisher := &fakePublisher{}
	engine := NewEngine(NewRepository(db), WithClock(engineClock), WithPublisher(publisher))
	results, err := engine.ValidatePatient(context.Background(), "p1")
	require.NoError(t, err)

	require.Len(t, publisher.events, 1)
	require.Equal(t, "validation.completed", publisher.events[0].eventType)
	require.Equal(t, "p1", publisher.events[0].data["patient_id"])
	require.Equal(t, len(results), publisher.events[0].data["result_count"])
}

func TestValidateAllPatientsSummary(t *testing.T) {
	db := openSeededDB(t)
	gender := "M"
	age := 50
	d := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	// p1 is fully clean, p2 is missing everything.
	seedPatient(t, db, models.Patient{ID: "p1", Gender: &gender, Age: &age}, []models.Vital{
		{PatientID: "p1", Date: &d, Weight: f(90), BMI: f(28), SBP: f(125), DBP: f(82), Height: f(180)},
	})
	seedPatient(t, db, models.Patient{ID: "p2"}, nil)

	engine := NewEngine(NewRepository(db), WithClock(engineClock))
	summary, err := engine.ValidateAllPatients(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, summary.PatientCount, "only flagged patients count")
	require.NotZero(t, summary.ResultCount)
	require.NotEmpty(t, summary.BySeverity)
}
