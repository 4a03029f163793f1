package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/carelens-ai/platform/pkg/common/logger"
	"github.com/carelens-ai/platform/pkg/common/models"
)

type eventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Service accepts vitals uploads, normalizes units, stores the rows, and
// re-validates every patient the batch touched.
type Service struct {
	validator  *Validator
	repo       *Repository
	publisher  eventPublisher
	revalidate func(ctx context.Context, patientID string) error
	statusTTL  time.Duration
}

type ServiceOption func(*Service)

func WithPublisher(p eventPublisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

// WithRevalidation runs the given hook for each distinct patient after a
// batch is stored, typically wired to the validation engine.
func WithRevalidation(fn func(ctx context.Context, patientID string) error) ServiceOption {
	return func(s *Service) { s.revalidate = fn }
}

func NewService(validator *Validator, repo *Repository, ttl time.Duration, opts ...ServiceOption) *Service {
	s := &Service{validator: validator, repo: repo, statusTTL: ttl}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process handles one upload end to end. The batch row is created up front
// so a failed storage attempt still leaves a queryable failure record.
func (s *Service) Process(ctx context.Context, upload VitalsUpload) (*Batch, error) {
	if err := s.validator.Validate(upload); err != nil {
		return nil, err
	}

	vitals := make([]models.Vital, 0, len(upload.Records))
	patients := make(map[string]struct{})
	for _, rec := range upload.Records {
		vital := rec.toVital()
		vitals = append(vitals, vital)
		patients[vital.PatientID] = struct{}{}
	}

	batch := &Batch{
		ID:           uuid.New().String(),
		Source:       upload.Source,
		RecordCount:  len(vitals),
		PatientCount: len(patients),
		Status:       StatusAccepted,
	}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("persisting ingestion batch: %w", err)
	}

	if err := s.repo.InsertVitals(ctx, vitals); err != nil {
		logger.Log.WithError(err).Error("failed to store vitals batch")
		_ = s.repo.UpdateStatus(ctx, batch.ID, StatusFailed, err.Error())
		return nil, fmt.Errorf("storing vitals: %w", err)
	}
	_ = s.repo.UpdateStatus(ctx, batch.ID, StatusStored, "")
	batch.Status = StatusStored

	if s.publisher != nil {
		if err := s.publisher.PublishEvent(ctx, "vitals.ingested", upload.Source, map[string]interface{}{
			"batch_id":      batch.ID,
			"record_count":  batch.RecordCount,
			"patient_count": batch.PatientCount,
		}); err != nil {
			logger.Log.WithError(err).Warn("ingestion event not published")
		}
	}

	if s.revalidate != nil {
		for id := range patients {
			if err := s.revalidate(ctx, id); err != nil {
				logger.WithFields(logrus.Fields{
					"batch_id":   batch.ID,
					"patient_id": id,
				}).WithError(err).Warn("post-ingest validation failed")
			}
		}
	}
	return batch, nil
}

func (s *Service) Status(ctx context.Context, id string) (*Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

func (s *Service) Cleanup(ctx context.Context) error {
	return s.repo.CleanupExpired(ctx, s.statusTTL)
}
