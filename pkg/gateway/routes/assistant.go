package routes

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/carelens-ai/platform/pkg/common/models"
	"github.com/carelens-ai/platform/pkg/pipeline"
)

type AssistantHandler struct {
	service *pipeline.Service
}

func NewAssistantHandler(service *pipeline.Service) *AssistantHandler {
	return &AssistantHandler{service: service}
}

func (h *AssistantHandler) Register(r *mux.Router) {
	r.HandleFunc("/assistant/query", h.handleQuery).Methods(http.MethodPost)
}

func (h *AssistantHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid query payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	// The pipeline never errors: failures come back inside the response
	// as clarifying questions or an error block.
	writeJSON(w, h.service.HandleQuery(r.Context(), req.Query))
}
