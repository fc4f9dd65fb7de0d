package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/pkg/types/common"
)

// StubStore is an in-memory patent.Store for unit tests.  Its default
// behaviour mirrors the store contract faithfully: it filters seeded records
// by the query constraints, orders them in query order, honours count probes
// and row ranges, and serves a deduplicated ascending assignee directory.
// Failures are injected per capability, and every executed query is captured
// for assertions.
type StubStore struct {
	mu            sync.Mutex
	records       []patent.Record
	assignees     []string
	execErr       error
	assigneesErr  error
	onExecute     func(ctx context.Context, q patent.Query) ([]patent.Record, int64, error)
	onAssignees   func(ctx context.Context, limit int) ([]string, error)
	queries       []patent.Query
	assigneeCalls int
}

// NewStubStore returns a StubStore seeded with the given records.
func NewStubStore(records ...patent.Record) *StubStore {
	return &StubStore{records: records}
}

// SetRecords replaces the seeded records.
func (s *StubStore) SetRecords(records []patent.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
}

// SetAssignees replaces the assignee directory contents.  When unset, the
// directory is derived from the seeded records.
func (s *StubStore) SetAssignees(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignees = names
}

// FailExecuteWith makes every subsequent Execute call return err.  Pass nil
// to restore normal behaviour.
func (s *StubStore) FailExecuteWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execErr = err
}

// FailAssigneesWith makes every subsequent Assignees call return err.
func (s *StubStore) FailAssigneesWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assigneesErr = err
}

// OnExecute installs a hook that fully replaces the default Execute
// behaviour.  Pass nil to remove it.
func (s *StubStore) OnExecute(fn func(ctx context.Context, q patent.Query) ([]patent.Record, int64, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExecute = fn
}

// OnAssignees installs a hook that fully replaces the default Assignees
// behaviour.  Pass nil to remove it.
func (s *StubStore) OnAssignees(fn func(ctx context.Context, limit int) ([]string, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAssignees = fn
}

// Queries returns a copy of every query executed so far, in call order.
func (s *StubStore) Queries() []patent.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]patent.Query, len(s.queries))
	copy(out, s.queries)
	return out
}

// ExecuteCalls returns how many times Execute has been called.
func (s *StubStore) ExecuteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

// AssigneeCalls returns how many times Assignees has been called.
func (s *StubStore) AssigneeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assigneeCalls
}

// Execute implements patent.Executor over the seeded records.
func (s *StubStore) Execute(ctx context.Context, q patent.Query) ([]patent.Record, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.Lock()
	s.queries = append(s.queries, q)
	hook := s.onExecute
	execErr := s.execErr
	seeded := make([]patent.Record, len(s.records))
	copy(seeded, s.records)
	s.mu.Unlock()

	if hook != nil {
		return hook(ctx, q)
	}
	if execErr != nil {
		return nil, 0, execErr
	}

	matched := make([]patent.Record, 0, len(seeded))
	for _, r := range seeded {
		if matches(r, q) {
			matched = append(matched, r)
		}
	}
	patent.OrderRecords(matched)

	total := patent.TotalUncounted
	if q.Counted {
		total = int64(len(matched))
	}

	// Counted with no range is a count-only probe.
	if q.Range == nil {
		if q.Counted {
			return nil, total, nil
		}
		return matched, total, nil
	}

	if q.Range.From >= len(matched) {
		return []patent.Record{}, total, nil
	}
	to := q.Range.To
	if to >= len(matched) {
		to = len(matched) - 1
	}
	out := make([]patent.Record, to-q.Range.From+1)
	copy(out, matched[q.Range.From:to+1])
	return out, total, nil
}

// Assignees implements patent.AssigneeDirectory.
func (s *StubStore) Assignees(ctx context.Context, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.assigneeCalls++
	hook := s.onAssignees
	err := s.assigneesErr
	names := s.assignees
	if names == nil {
		for _, r := range s.records {
			if r.Assignee != "" {
				names = append(names, r.Assignee)
			}
		}
	} else {
		names = append([]string(nil), names...)
	}
	s.mu.Unlock()

	if hook != nil {
		return hook(ctx, limit)
	}
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = patent.DefaultAssigneeLimit
	}

	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// matches applies the query constraints to one record the way the real
// stores do: keyword as a case-insensitive substring of title, abstract or
// assignee; assignee as equality; filing dates as inclusive calendar bounds
// that undated records never satisfy.
func matches(r patent.Record, q patent.Query) bool {
	if q.Keyword != "" {
		kw := strings.ToLower(q.Keyword)
		if !strings.Contains(strings.ToLower(r.Title), kw) &&
			!strings.Contains(strings.ToLower(r.Abstract), kw) &&
			!strings.Contains(strings.ToLower(r.Assignee), kw) {
			return false
		}
	}
	if q.Assignee != "" && r.Assignee != q.Assignee {
		return false
	}
	if q.FilingFrom != nil || q.FilingTo != nil {
		if r.FilingDate == nil {
			return false
		}
		d := common.DateOf(*r.FilingDate)
		if q.FilingFrom != nil && d.Before(*q.FilingFrom) {
			return false
		}
		if q.FilingTo != nil && d.After(*q.FilingTo) {
			return false
		}
	}
	return true
}
