package validation

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/carelens-ai/platform/pkg/common/models"
)

var (
	ErrResultNotFound = errors.New("validation result not found")
	ErrInvalidStatus  = errors.New("invalid validation result status")
)

var resultStatuses = map[string]struct{}{
	StatusOpen: {}, StatusReviewed: {}, StatusCorrected: {},
	StatusIgnored: {}, StatusVerified: {},
}

// Repository is the engine's view of the warehouse. Rules come back sorted
// by rule_id so evaluation order is reproducible across backends.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ActiveRules(ctx context.Context) ([]ValidationRule, error) {
	var rules []ValidationRule
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("rule_id").
		Find(&rules).Error
	return rules, err
}

func (r *Repository) Patient(ctx context.Context, patientID string) (*models.Patient, error) {
	var patient models.Patient
	err := r.db.WithContext(ctx).Where("id = ?", patientID).First(&patient).Error
	if err != nil {
		return nil, err
	}
	return &patient, nil
}

func (r *Repository) Vitals(ctx context.Context, patientID string) ([]models.Vital, error) {
	var vitals []models.Vital
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("date").
		Find(&vitals).Error
	return vitals, err
}

func (r *Repository) PatientIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Patient{}).
		Where("id IS NOT NULL AND id <> ''").
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// ReplaceResults purges the patient's previous results and inserts the new
// set in one transaction. Re-validation is destructive: a fixed issue
// leaves no stale row behind.
func (r *Repository) ReplaceResults(ctx context.Context, patientID string, results []ValidationResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("patient_id = ?", patientID).Delete(&ValidationResult{}).Error; err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}
		return tx.Create(&results).Error
	})
}

// UpdateResultStatus moves one finding through the review workflow. The
// finding itself is immutable; only its status changes.
func (r *Repository) UpdateResultStatus(ctx context.Context, id int64, status string) error {
	if _, ok := resultStatuses[status]; !ok {
		return ErrInvalidStatus
	}
	res := r.db.WithContext(ctx).
		Model(&ValidationResult{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrResultNotFound
	}
	return nil
}

func (r *Repository) ResultsForPatient(ctx context.Context, patientID string) ([]ValidationResult, error) {
	var results []ValidationResult
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("rule_id, message").
		Find(&results).Error
	return results, err
}
