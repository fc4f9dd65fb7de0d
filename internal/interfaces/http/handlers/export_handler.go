package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/turtacn/KeyIP-Explorer/internal/application/export"
	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
)

// ExportRunner executes a full export within the request. *export.Runner
// implements it.
type ExportRunner interface {
	Run(ctx context.Context, f patent.Filter) (export.Job, error)
}

// PageExporter renders already-fetched rows as CSV. *export.Engine
// implements it.
type PageExporter interface {
	ExportRows(records []patent.Record) string
}

// ExportHandler serves CSV exports: full exports run inline or handed to the
// background worker, and single-page downloads of the rows a client is
// currently looking at.
type ExportHandler struct {
	runner ExportRunner
	pages  PageExporter
	search SearchService
	events export.EventPublisher
	async  bool
	logger logging.Logger
}

// NewExportHandler wires an ExportHandler. async selects the default mode
// for requests that do not pick one; events may be nil when no broker is
// configured, which disables background exports.
func NewExportHandler(
	runner ExportRunner,
	pages PageExporter,
	search SearchService,
	events export.EventPublisher,
	async bool,
	logger logging.Logger,
) *ExportHandler {
	return &ExportHandler{
		runner: runner,
		pages:  pages,
		search: search,
		events: events,
		async:  async,
		logger: logger,
	}
}

// ExportRequest is the body of POST /api/v1/exports. Async overrides the
// server's default export mode when present.
type ExportRequest struct {
	Keyword  string `json:"keyword"`
	Assignee string `json:"assignee"`
	From     string `json:"from"`
	To       string `json:"to"`
	Async    *bool  `json:"async,omitempty"`
}

// ExportCreatedResponse describes a finished inline export.
type ExportCreatedResponse struct {
	ExportID  string `json:"export_id"`
	ObjectKey string `json:"object_key"`
	URL       string `json:"url"`
	RowCount  int    `json:"row_count"`
}

// ExportAcceptedResponse acknowledges an export queued for the worker.
type ExportAcceptedResponse struct {
	ExportID string `json:"export_id"`
	Status   string `json:"status"`
}

// Create handles POST /api/v1/exports. Inline exports answer 201 with the
// artifact location; queued exports answer 202 once the request event is on
// the broker. A second inline export while one runs answers 409.
func (h *ExportHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, errors.InvalidParam("invalid request body"))
		return
	}
	f, err := buildFilter(req.Keyword, req.Assignee, req.From, req.To)
	if err != nil {
		writeAppError(w, err)
		return
	}

	async := h.async
	if req.Async != nil {
		async = *req.Async
	}
	if async {
		h.enqueue(w, r, f)
		return
	}

	job, err := h.runner.Run(r.Context(), f)
	if err != nil {
		h.logger.Error("inline export failed", logging.Err(err))
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusCreated, ExportCreatedResponse{
		ExportID:  job.ID,
		ObjectKey: job.ObjectKey(),
		URL:       job.Location,
		RowCount:  job.Rows,
	})
}

// enqueue announces a pending job on the broker instead of running it. The
// worker picks it up from the requested topic.
func (h *ExportHandler) enqueue(w http.ResponseWriter, r *http.Request, f patent.Filter) {
	if h.events == nil {
		writeAppError(w, errors.InvalidParam("background exports are not enabled"))
		return
	}
	job := export.NewJob(f)
	if err := h.events.ExportRequested(r.Context(), job); err != nil {
		h.logger.Error("export enqueue failed",
			logging.String("job_id", job.ID),
			logging.Err(err))
		writeAppError(w, err)
		return
	}
	h.logger.Info("export queued", logging.String("job_id", job.ID))
	writeData(w, http.StatusAccepted, ExportAcceptedResponse{
		ExportID: job.ID,
		Status:   job.Status,
	})
}

// Page handles GET /api/v1/exports/page: it refetches the requested page and
// streams exactly those rows as a CSV attachment.
func (h *ExportHandler) Page(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	res, err := h.search.Search(r.Context(), f, page)
	if err != nil {
		h.logger.Error("page export failed",
			logging.Int("page", page),
			logging.Err(err))
		writeAppError(w, err)
		return
	}

	csv := h.pages.ExportRows(res.Rows)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="patents-page-%d.csv"`, res.Page))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, csv)
}
