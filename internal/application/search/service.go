package search

import (
	"context"
	"time"

	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
)

// ResultPage is one fetched page of search results.  It is replaced
// wholesale on every successful search and never merged with a previous
// page; Rows never exceeds PageSize.
type ResultPage struct {
	Rows  []patent.Record `json:"rows"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
}

// EmptyPage returns the page shown for an empty filter or a cleared session.
func EmptyPage() ResultPage {
	return ResultPage{Rows: []patent.Record{}, Total: 0, Page: 1}
}

// Service executes one-shot searches against a patent store.  It is
// stateless and safe for concurrent use; the HTTP layer calls it directly,
// while interactive clients wrap it in a Session.
type Service struct {
	store  patent.Store
	logger logging.Logger
}

// NewService returns a Service over the given store.
func NewService(store patent.Store, logger logging.Logger) *Service {
	return &Service{store: store, logger: logger.Named("search")}
}

// Search fetches the given 1-based page of results for a filter snapshot.
//
// An empty filter resolves to an empty page without touching the store; this
// is the normal outcome of submitting a blank form, not an error.  Failures
// come back as CodeQueryFailed.
func (s *Service) Search(ctx context.Context, f patent.Filter, page int) (ResultPage, error) {
	if f.IsEmpty() {
		return EmptyPage(), nil
	}
	if page < 1 {
		page = 1
	}

	q := patent.Build(f).WithCount().WithRange(RangeFor(page))

	start := time.Now()
	rows, total, err := s.store.Execute(ctx, q)
	if err != nil {
		s.logger.Error("search query failed",
			logging.String("query", q.String()),
			logging.Int("page", page),
			logging.Err(err))
		return ResultPage{}, errors.Wrap(err, errors.CodeQueryFailed, "search query failed")
	}
	if total < 0 {
		total = int64(len(rows))
	}
	if rows == nil {
		rows = []patent.Record{}
	}

	s.logger.Debug("search query completed",
		logging.String("query", q.String()),
		logging.Int("rows", len(rows)),
		logging.Int64("total", total),
		logging.Duration("elapsed", time.Since(start)))

	return ResultPage{Rows: rows, Total: total, Page: page}, nil
}

// Assignees returns the deduplicated ascending assignee directory, capped at
// limit (patent.DefaultAssigneeLimit when limit <= 0).
func (s *Service) Assignees(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = patent.DefaultAssigneeLimit
	}
	names, err := s.store.Assignees(ctx, limit)
	if err != nil {
		s.logger.Error("assignee directory load failed", logging.Err(err))
		return nil, errors.Wrap(err, errors.CodeAssigneeLoadFailed, "assignee directory load failed")
	}
	return names, nil
}
