package validation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carelens-ai/platform/pkg/common/logger"
	"github.com/carelens-ai/platform/pkg/common/models"
)

type eventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Engine runs every active rule against patient records. Re-validating a
// patient replaces that patient's previous results, so concurrent runs for
// the same patient are serialized through a per-patient mutex.
type Engine struct {
	repo      *Repository
	publisher eventPublisher
	now       func() time.Time

	skipFields map[string]struct{}

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	rules []ValidationRule
}

type EngineOption func(*Engine)

// WithClock fixes the engine's notion of "now" for gap recency checks.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithPublisher attaches an event bus; runs then emit validation.completed
// events per patient.
func WithPublisher(p eventPublisher) EngineOption {
	return func(e *Engine) { e.publisher = p }
}

// WithSkippedFields disables every rule targeting the given fields.
func WithSkippedFields(fields ...string) EngineOption {
	return func(e *Engine) {
		for _, f := range fields {
			e.skipFields[f] = struct{}{}
		}
	}
}

func NewEngine(repo *Repository, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:       repo,
		now:        time.Now,
		skipFields: make(map[string]struct{}),
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadRules fetches and caches the active rule set. ValidatePatient loads
// lazily when this was never called; an explicit call at startup surfaces
// storage problems early.
func (e *Engine) LoadRules(ctx context.Context) error {
	rules, err := e.repo.ActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("loading validation rules: %w", err)
	}
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
	return nil
}

func (e *Engine) activeRules(ctx context.Context) ([]ValidationRule, error) {
	e.mu.Lock()
	cached := e.rules
	e.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	if err := e.LoadRules(ctx); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules, nil
}

func (e *Engine) patientLock(patientID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[patientID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[patientID] = lock
	}
	return lock
}

// ValidatePatient recomputes all results for one patient: purge previous
// rows, evaluate every active rule, insert the fresh set. A rule that
// errors is logged and skipped; it never aborts the run.
func (e *Engine) ValidatePatient(ctx context.Context, patientID string) ([]ValidationResult, error) {
	lock := e.patientLock(patientID)
	lock.Lock()
	defer lock.Unlock()

	rules, err := e.activeRules(ctx)
	if err != nil {
		return nil, err
	}
	patient, err := e.repo.Patient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("loading patient %s: %w", patientID, err)
	}
	vitals, err := e.repo.Vitals(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("loading vitals for %s: %w", patientID, err)
	}

	now := e.now()
	results := make([]ValidationResult, 0, len(rules))
	for _, rule := range rules {
		if _, skip := e.skipFields[rule.Field]; skip {
			continue
		}
		ruleResults, err := e.evaluate(rule, patient, vitals, now)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"rule_id":    rule.RuleID,
				"patient_id": patientID,
				"error":      err.Error(),
			}).Error("rule evaluation failed")
			continue
		}
		results = append(results, ruleResults...)
	}

	if err := e.repo.ReplaceResults(ctx, patientID, results); err != nil {
		return nil, fmt.Errorf("storing results for %s: %w", patientID, err)
	}

	if e.publisher != nil {
		if err := e.publisher.PublishEvent(ctx, "validation.completed", "validation-service", map[string]interface{}{
			"patient_id":   patientID,
			"result_count": len(results),
		}); err != nil {
			logger.WithField("patient_id", patientID).WithError(err).Warn("validation event not published")
		}
	}
	return results, nil
}

func (e *Engine) evaluate(rule ValidationRule, patient *models.Patient, vitals []models.Vital, now time.Time) ([]ValidationResult, error) {
	switch rule.ValidationLogic {
	case LogicDateDiff:
		return evalDateDiff(rule, patient, vitals, now)
	case LogicRange:
		return evalRange(rule, patient, vitals, now)
	case LogicNotNull:
		return evalNotNull(rule, patient, vitals, now)
	case LogicAllowedValues:
		return evalAllowedValues(rule, patient, vitals, now)
	case LogicConditionalNotNull:
		return evalConditionalNotNull(rule, patient, vitals, now)
	}
	return nil, fmt.Errorf("rule %s has unknown validation logic %q", rule.RuleID, rule.ValidationLogic)
}

// ValidateAllPatients validates every patient independently. A patient
// whose run fails is logged and skipped; the summary only counts patients
// that produced at least one result.
func (e *Engine) ValidateAllPatients(ctx context.Context) (*models.ValidationRunSummary, error) {
	ids, err := e.repo.PatientIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing patients: %w", err)
	}

	summary := &models.ValidationRunSummary{
		StartedAt:  e.now(),
		BySeverity: make(map[string]int),
	}
	for _, id := range ids {
		results, err := e.ValidatePatient(ctx, id)
		if err != nil {
			logger.WithField("patient_id", id).WithError(err).Error("patient validation failed")
			continue
		}
		if len(results) == 0 {
			continue
		}
		summary.PatientCount++
		summary.ResultCount += len(results)
		for _, res := range results {
			summary.BySeverity[res.Severity]++
		}
	}
	summary.CompletedAt = e.now()
	logger.WithFields(logrus.Fields{
		"patients_flagged": summary.PatientCount,
		"result_count":     summary.ResultCount,
	}).Info("validation run completed")
	return summary, nil
}
