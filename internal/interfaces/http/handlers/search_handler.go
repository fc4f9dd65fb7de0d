package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/turtacn/KeyIP-Explorer/internal/application/search"
	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
	"github.com/turtacn/KeyIP-Explorer/pkg/types/common"
)

// SearchService is the slice of the search application service the API
// consumes. *search.Service implements it.
type SearchService interface {
	Search(ctx context.Context, f patent.Filter, page int) (search.ResultPage, error)
	Assignees(ctx context.Context, limit int) ([]string, error)
}

// SearchHandler serves paged patent searches.
type SearchHandler struct {
	svc    SearchService
	logger logging.Logger
}

// NewSearchHandler returns a SearchHandler over the given service.
func NewSearchHandler(svc SearchService, logger logging.Logger) *SearchHandler {
	return &SearchHandler{svc: svc, logger: logger}
}

// SearchResponse is one result page as the API presents it.
type SearchResponse struct {
	Records    []patent.Record `json:"records"`
	TotalCount int64           `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// Search handles GET /api/v1/patents/search. An empty filter answers with an
// empty page; the service never queries the store for it.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
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

	res, err := h.svc.Search(r.Context(), f, page)
	if err != nil {
		h.logger.Error("search request failed",
			logging.String("keyword", f.Keyword),
			logging.Int("page", page),
			logging.Err(err))
		writeAppError(w, err)
		return
	}

	writeData(w, http.StatusOK, searchResponseFor(res))
}

func searchResponseFor(res search.ResultPage) SearchResponse {
	rows := res.Rows
	if rows == nil {
		rows = []patent.Record{}
	}
	return SearchResponse{
		Records:    rows,
		TotalCount: res.Total,
		Page:       res.Page,
		PageSize:   search.PageSize,
		TotalPages: search.PageCount(res.Total),
	}
}

// filterFromQuery builds a Filter from the keyword/assignee/from/to query
// parameters shared by the search and export endpoints.
func filterFromQuery(r *http.Request) (patent.Filter, error) {
	q := r.URL.Query()
	return buildFilter(q.Get("keyword"), q.Get("assignee"), q.Get("from"), q.Get("to"))
}

func buildFilter(keyword, assignee, from, to string) (patent.Filter, error) {
	f := patent.Filter{Keyword: keyword, Assignee: assignee}
	var err error
	if f.FilingFrom, err = parseDateParam("from", from); err != nil {
		return patent.Filter{}, err
	}
	if f.FilingTo, err = parseDateParam("to", to); err != nil {
		return patent.Filter{}, err
	}
	return f, nil
}

func parseDateParam(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := common.ParseDate(value)
	if err != nil {
		return nil, errors.Newf(errors.CodeInvalidParam,
			"invalid %q date %q, expected %s", name, value, common.DateLayout)
	}
	return &t, nil
}
