package search

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
)

// State is the session lifecycle state.
type State string

const (
	// StateIdle is the state before the first submit and after Reset.
	StateIdle State = "idle"
	// StateLoading means a fetch is in flight.
	StateLoading State = "loading"
	// StateReady means the result page reflects the last successful fetch.
	StateReady State = "ready"
	// StateFailed means the last fetch failed; the result page is cleared
	// and Err carries the failure.
	StateFailed State = "failed"
)

// Session drives one interactive search: it holds the last submitted filter
// snapshot, the pager, the current result page and the lifecycle state, and
// serialises all transitions.  Ready and Failed are re-entrant; the next
// Submit or GoToPage moves back through Loading.
//
// Fetch outcomes are applied last-issued-wins: every Submit, GoToPage and
// Reset takes a new sequence number, and an outcome is only installed if no
// newer operation was issued while it was in flight.  Callers still receive
// their own fetch result either way.
type Session struct {
	svc    *Service
	logger logging.Logger

	closed atomic.Bool

	mu         sync.Mutex
	state      State
	lastFilter patent.Filter
	pager      *Pager
	result     ResultPage
	lastErr    error
	seq        uint64
	assignees  []string
}

// NewSession returns a Session in StateIdle and starts the one-time
// background load of the assignee directory.  The ctx bounds that load;
// Close discards its result if it resolves after teardown.
func NewSession(ctx context.Context, svc *Service, logger logging.Logger) *Session {
	s := &Session{
		svc:    svc,
		logger: logger.Named("session"),
		state:  StateIdle,
		pager:  NewPager(),
		result: EmptyPage(),
	}
	go s.loadAssignees(ctx)
	return s
}

func (s *Session) loadAssignees(ctx context.Context) {
	names, err := s.svc.Assignees(ctx, patent.DefaultAssigneeLimit)
	if s.closed.Load() {
		// Torn down while loading; the result must not be applied.
		return
	}
	if err != nil {
		s.logger.Warn("assignee directory unavailable", logging.Err(err))
		return
	}
	s.mu.Lock()
	s.assignees = names
	s.mu.Unlock()
}

// Submit runs a fresh search for page 1 of the given filter.  An empty
// filter resolves directly to Ready with an empty page and issues no fetch.
func (s *Session) Submit(ctx context.Context, f patent.Filter) (ResultPage, error) {
	snapshot := f.Clone()

	s.mu.Lock()
	s.seq++
	s.lastFilter = snapshot
	if snapshot.IsEmpty() {
		s.state = StateReady
		s.result = EmptyPage()
		s.lastErr = nil
		s.pager.Reset()
		res := s.result
		s.mu.Unlock()
		return res, nil
	}
	seq := s.seq
	s.state = StateLoading
	s.mu.Unlock()

	res, err := s.svc.Search(ctx, snapshot, 1)
	return s.apply(seq, 1, res, err)
}

// GoToPage re-runs the last submitted filter for page n.  A target outside
// [1, TotalPages] is a no-op returning the current page; n equal to the
// current page acts as a refresh.
func (s *Session) GoToPage(ctx context.Context, n int) (ResultPage, error) {
	s.mu.Lock()
	if n < 1 || n > s.pager.TotalPages() {
		res := s.result
		s.mu.Unlock()
		return res, nil
	}
	s.seq++
	seq := s.seq
	s.state = StateLoading
	snapshot := s.lastFilter.Clone()
	s.mu.Unlock()

	res, err := s.svc.Search(ctx, snapshot, n)
	return s.apply(seq, n, res, err)
}

// apply installs a fetch outcome unless a newer operation superseded it.
// The caller's own result is returned regardless.
func (s *Session) apply(seq uint64, page int, res ResultPage, err error) (ResultPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		return res, err
	}
	if err != nil {
		s.state = StateFailed
		s.lastErr = err
		cleared := EmptyPage()
		cleared.Page = s.pager.Page()
		s.result = cleared
		s.pager.ClearTotal()
		return res, err
	}
	s.state = StateReady
	s.lastErr = nil
	s.result = res
	s.pager.Apply(page, res.Total)
	return res, nil
}

// Reset clears the filter, result page, error and pager without issuing a
// fetch.  Any in-flight fetch is superseded and will not be applied.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.state = StateIdle
	s.lastFilter = patent.Filter{}
	s.result = EmptyPage()
	s.lastErr = nil
	s.pager.Reset()
}

// Close marks the session as torn down.  An assignee load still in flight
// discards its result instead of applying it.
func (s *Session) Close() {
	s.closed.Store(true)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the current result page.
func (s *Session) Result() ResultPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Err returns the failure behind StateFailed, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Filter returns a copy of the last submitted filter snapshot.
func (s *Session) Filter() patent.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFilter.Clone()
}

// Page returns the current 1-based page number.
func (s *Session) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pager.Page()
}

// TotalPages returns the page count for the last successful fetch.
func (s *Session) TotalPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pager.TotalPages()
}

// CanGoPrev reports whether a previous page exists.
func (s *Session) CanGoPrev() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pager.CanGoPrev()
}

// CanGoNext reports whether a next page exists.
func (s *Session) CanGoNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pager.CanGoNext()
}

// Assignees returns the loaded assignee directory, or nil while the
// background load has not completed.
func (s *Session) Assignees() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assignees == nil {
		return nil
	}
	out := make([]string, len(s.assignees))
	copy(out, s.assignees)
	return out
}
