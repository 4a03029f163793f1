package routes

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/carelens-ai/platform/pkg/common/logger"
)

type OverviewHandler struct {
	db *gorm.DB
}

type OverviewMetrics struct {
	PatientCount          int            `json:"patientCount"`
	ActivePatientCount    int            `json:"activePatientCount"`
	VitalsRecordCount     int            `json:"vitalsRecordCount"`
	OpenValidationResults int            `json:"openValidationResults"`
	ResultsBySeverity     map[string]int `json:"resultsBySeverity"`
}

func NewOverviewHandler(db *gorm.DB) *OverviewHandler {
	return &OverviewHandler{db: db}
}

func (h *OverviewHandler) Register(r *mux.Router) {
	r.HandleFunc("/metrics/overview", h.handleOverview).Methods(http.MethodGet)
}

func (h *OverviewHandler) handleOverview(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.collectMetrics(r)
	if err != nil {
		logger.Log.WithError(err).Error("failed to collect metrics")
		http.Error(w, "failed to collect metrics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, metrics)
}

func (h *OverviewHandler) collectMetrics(r *http.Request) (OverviewMetrics, error) {
	metrics := OverviewMetrics{ResultsBySeverity: map[string]int{}}
	db := h.db.WithContext(r.Context())

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM patients", &metrics.PatientCount},
		{"SELECT COUNT(*) FROM patients WHERE active = ?", &metrics.ActivePatientCount},
		{"SELECT COUNT(*) FROM vitals", &metrics.VitalsRecordCount},
		{"SELECT COUNT(*) FROM validation_results WHERE status = 'open'", &metrics.OpenValidationResults},
	}
	for _, c := range counts {
		var n sql.NullInt64
		args := []interface{}{}
		if c.dest == &metrics.ActivePatientCount {
			args = append(args, true)
		}
		if err := db.Raw(c.query, args...).Scan(&n).Error; err != nil {
			return metrics, err
		}
		if n.Valid {
			*c.dest = int(n.Int64)
		}
	}

	rows, err := db.Raw(`
		SELECT severity, COUNT(*)
		FROM validation_results
		WHERE status = 'open'
		GROUP BY severity
	`).Rows()
	if err != nil {
		return metrics, err
	}
	defer rows.Close()
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return metrics, err
		}
		metrics.ResultsBySeverity[severity] = count
	}
	return metrics, rows.Err()
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.WithError(err).Error("failed to write json response")
	}
}
