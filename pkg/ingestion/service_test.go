package ingestion

import (
	"context"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/carelens-ai/platform/pkg/common/database"
	"github.com/carelens-ai/platform/pkg/common/logger"
	"github.com/carelens-ai/platform/pkg/common/models"
)

func TestMain(m *testing.M) {
	logger.Init("ingestion-test")
	os.Exit(m.Run())
}

type capturedEvent struct {
	eventType string
	source    string
	data      map[string]interface{}
}

type fakePublisher struct {
	events []capturedEvent
}

func (f *fakePublisher) PublishEvent(_ context.Context, eventType, source string, data map[string]interface{}) error {
	f.events = append(f.events, capturedEvent{eventType: eventType, source: source, data: data})
	return nil
}

func openIngestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLiteMemory()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Vital{}, &Batch{}))
	return db
}

func TestProcessStoresBatchAndNotifies(t *testing.T) {
	db := openIngestDB(t)
	publisher := &fakePublisher{}
	var revalidated []string

	svc := NewService(NewValidator([]string{"ehr"}), NewRepository(db), time.Hour,
		WithPublisher(publisher),
		WithRevalidation(func(_ context.Context, patientID string) error {
			revalidated = append(revalidated, patientID)
			return nil
		}),
	)

	upload := VitalsUpload{
		Source: "ehr",
		Records: []VitalRecord{
			{PatientID: "p1", Date: "2025-03-01", Weight: fp(220), WeightUnit: "lb", Height: fp(70), HeightUnit: "in"},
			{PatientID: "p1", Date: "2025-03-15", Weight: fp(216), WeightUnit: "lb"},
			{PatientID: "p2", Date: "2025-03-02", SBP: fp(130), DBP: fp(85)},
		},
	}

	batch, err := svc.Process(context.Background(), upload)
	require.NoError(t, err)
	require.Equal(t, StatusStored, batch.Status)
	require.Equal(t, 3, batch.RecordCount)
	require.Equal(t, 2, batch.PatientCount)

	var stored []models.Vital
	require.NoError(t, db.Where("patient_id = ?", "p1").Order("date").Find(&stored).Error)
	require.Len(t, stored, 2)
	require.Equal(t, 99.8, *stored[0].Weight, "pounds must be stored as kilograms")
	require.NotNil(t, stored[0].BMI, "BMI must be derived when weight and height are present")

	require.Len(t, publisher.events, 1)
	require.Equal(t, "vitals.ingested", publisher.events[0].eventType)
	require.Equal(t, "ehr", publisher.events[0].source)
	require.Equal(t, batch.ID, publisher.events[0].data["batch_id"])

	sort.Strings(revalidated)
	require.Equal(t, []string{"p1", "p2"}, revalidated)
}

func TestProcessRejectsInvalidBatchWithoutSideEffects(t *testing.T) {
	db := openIngestDB(t)
	publisher := &fakePublisher{}
	svc := NewService(NewValidator([]string{"ehr"}), NewRepository(db), time.Hour, WithPublisher(publisher))

	_, err := svc.Process(context.Background(), VitalsUpload{Source: "ehr"})
	require.Error(t, err)
	require.True(t, IsValidationError(err))

	var batches int64
	require.NoError(t, db.Model(&Batch{}).Count(&batches).Error)
	require.Zero(t, batches, "rejected uploads must not leave batch rows")
	require.Empty(t, publisher.events)
}

func TestProcessSurvivesRevalidationFailure(t *testing.T) {
	db := openIngestDB(t)
	svc := NewService(NewValidator([]string{"ehr"}), NewRepository(db), time.Hour,
		WithRevalidation(func(_ context.Context, _ string) error {
			return context.DeadlineExceeded
		}),
	)

	batch, err := svc.Process(context.Background(), validUpload())
	require.NoError(t, err, "validation failures are logged, not fatal")
	require.Equal(t, StatusStored, batch.Status)
}

func TestStatusRoundTrip(t *testing.T) {
	db := openIngestDB(t)
	svc := NewService(NewValidator([]string{"ehr"}), NewRepository(db), time.Hour)

	batch, err := svc.Process(context.Background(), validUpload())
	require.NoError(t, err)

	got, err := svc.Status(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Equal(t, StatusStored, got.Status)

	_, err = svc.Status(context.Background(), "no-such-batch")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCleanupDropsExpiredBatches(t *testing.T) {
	db := openIngestDB(t)
	repo := NewRepository(db)
	svc := NewService(NewValidator([]string{"ehr"}), repo, time.Hour)

	batch, err := svc.Process(context.Background(), validUpload())
	require.NoError(t, err)

	stale := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, db.Model(&Batch{}).Where("id = ?", batch.ID).Update("created_at", stale).Error)

	require.NoError(t, svc.Cleanup(context.Background()))
	_, err = svc.Status(context.Background(), batch.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
