package handlers

import (
	"net/http"

	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
)

// AssigneeHandler serves the assignee directory used to populate filter
// dropdowns.
type AssigneeHandler struct {
	svc    SearchService
	limit  int
	logger logging.Logger
}

// NewAssigneeHandler returns an AssigneeHandler. A limit <= 0 falls back to
// patent.DefaultAssigneeLimit.
func NewAssigneeHandler(svc SearchService, limit int, logger logging.Logger) *AssigneeHandler {
	if limit <= 0 {
		limit = patent.DefaultAssigneeLimit
	}
	return &AssigneeHandler{svc: svc, limit: limit, logger: logger}
}

// AssigneesResponse lists the distinct assignee names in ascending order.
type AssigneesResponse struct {
	Assignees []string `json:"assignees"`
	Count     int      `json:"count"`
}

// List handles GET /api/v1/assignees.
func (h *AssigneeHandler) List(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.Assignees(r.Context(), h.limit)
	if err != nil {
		h.logger.Error("assignee directory request failed", logging.Err(err))
		writeAppError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeData(w, http.StatusOK, AssigneesResponse{Assignees: names, Count: len(names)})
}
