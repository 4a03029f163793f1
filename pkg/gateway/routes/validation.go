package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/carelens-ai/platform/pkg/common/logger"
	"github.com/carelens-ai/platform/pkg/validation"
)

type ValidationHandler struct {
	engine *validation.Engine
	repo   *validation.Repository
}

func NewValidationHandler(engine *validation.Engine, repo *validation.Repository) *ValidationHandler {
	return &ValidationHandler{engine: engine, repo: repo}
}

func (h *ValidationHandler) Register(r *mux.Router) {
	r.HandleFunc("/validation/run", h.handleRunAll).Methods(http.MethodPost)
	r.HandleFunc("/validation/patients/{patientID}/run", h.handleRunPatient).Methods(http.MethodPost)
	r.HandleFunc("/validation/patients/{patientID}/results", h.handleResults).Methods(http.MethodGet)
	r.HandleFunc("/validation/results/{id}/status", h.handleStatusUpdate).Methods(http.MethodPost)
}

func (h *ValidationHandler) handleRunAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.ValidateAllPatients(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("validation run failed")
		http.Error(w, "validation run failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, summary)
}

func (h *ValidationHandler) handleRunPatient(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["patientID"]
	results, err := h.engine.ValidatePatient(r.Context(), patientID)
	if err != nil {
		logger.Log.WithError(err).WithField("patient_id", patientID).Error("patient validation failed")
		http.Error(w, "patient validation failed", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{
		"patient_id": patientID,
		"results":    results,
	})
}

func (h *ValidationHandler) handleStatusUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid result id", http.StatusBadRequest)
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	switch err := h.repo.UpdateResultStatus(r.Context(), id, body.Status); {
	case errors.Is(err, validation.ErrInvalidStatus):
		http.Error(w, "invalid status", http.StatusBadRequest)
	case errors.Is(err, validation.ErrResultNotFound):
		http.Error(w, "result not found", http.StatusNotFound)
	case err != nil:
		logger.Log.WithError(err).Error("failed to update validation result status")
		http.Error(w, "failed to update status", http.StatusInternalServerError)
	default:
		writeJSON(w, map[string]interface{}{"id": id, "status": body.Status})
	}
}

func (h *ValidationHandler) handleResults(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["patientID"]
	results, err := h.repo.ResultsForPatient(r.Context(), patientID)
	if err != nil {
		logger.Log.WithError(err).WithField("patient_id", patientID).Error("failed to load validation results")
		http.Error(w, "failed to load validation results", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{
		"patient_id": patientID,
		"results":    results,
	})
}
