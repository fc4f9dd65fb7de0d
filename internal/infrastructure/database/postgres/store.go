package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
)

const backendName = "postgres"

// selectColumns lists the record projection shared by every fetch.
const selectColumns = "id, patent_number, title, abstract, assignee, filing_date"

// orderClause fixes the result ordering: newest filings first, undated rows
// last, descending id as the tiebreak so pagination is stable.
const orderClause = " ORDER BY filing_date DESC NULLS LAST, id DESC"

// Store executes patent record queries against PostgreSQL.
type Store struct {
	pool    *pgxpool.Pool
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

var _ patent.Store = (*Store)(nil)

// NewStore wires a record store over an open pool; metrics may be nil.
func NewStore(pool *pgxpool.Pool, metrics *prometheus.AppMetrics, logger logging.Logger) *Store {
	return &Store{
		pool:    pool,
		metrics: metrics,
		logger:  logger.Named("store.postgres"),
	}
}

// Execute runs q and returns rows in query order plus the total match count
// when q.Counted is set.  A counted query without a row range is a count
// probe and returns no rows.
func (s *Store) Execute(ctx context.Context, q patent.Query) ([]patent.Record, int64, error) {
	total := patent.TotalUncounted
	if q.Counted {
		n, err := s.count(ctx, q)
		if err != nil {
			return nil, 0, err
		}
		total = n
		if q.Range == nil {
			return nil, total, nil
		}
	}

	rows, err := s.fetch(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Assignees returns the distinct non-empty assignee names in ascending order,
// capped at limit.
func (s *Store) Assignees(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = patent.DefaultAssigneeLimit
	}

	start := time.Now()
	rows, err := s.pool.Query(ctx,
		"SELECT DISTINCT assignee FROM patent_records WHERE assignee <> '' ORDER BY assignee ASC LIMIT $1",
		limit)
	s.metrics.RecordStoreQuery(backendName, "assignees", time.Since(start), err)
	if err != nil {
		s.logger.Error("assignee query failed", logging.Err(err))
		return nil, errors.Wrap(err, errors.CodeStoreUnavailable, "assignee query failed")
	}
	defer rows.Close()

	out := make([]string, 0, limit)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, errors.CodeStoreUnavailable, "assignee scan failed")
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreUnavailable, "assignee query failed")
	}
	return out, nil
}

func (s *Store) count(ctx context.Context, q patent.Query) (int64, error) {
	sqlStr, args := countSQL(q)

	start := time.Now()
	var total int64
	err := s.pool.QueryRow(ctx, sqlStr, args...).Scan(&total)
	s.metrics.RecordStoreQuery(backendName, "count", time.Since(start), err)
	if err != nil {
		s.logger.Error("record count failed", logging.Err(err), logging.String("query", q.String()))
		return 0, errors.Wrap(err, errors.CodeStoreUnavailable, "record count failed")
	}
	return total, nil
}

func (s *Store) fetch(ctx context.Context, q patent.Query) ([]patent.Record, error) {
	sqlStr, args := searchSQL(q)

	start := time.Now()
	rows, err := s.pool.Query(ctx, sqlStr, args...)
	s.metrics.RecordStoreQuery(backendName, "search", time.Since(start), err)
	if err != nil {
		s.logger.Error("record query failed", logging.Err(err), logging.String("query", q.String()))
		return nil, errors.Wrap(err, errors.CodeStoreUnavailable, "record query failed")
	}
	defer rows.Close()

	out := []patent.Record{}
	for rows.Next() {
		var (
			rec   patent.Record
			filed *time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.PatentNumber, &rec.Title, &rec.Abstract, &rec.Assignee, &filed); err != nil {
			return nil, errors.Wrap(err, errors.CodeStoreUnavailable, "record scan failed")
		}
		rec.FilingDate = filed
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreUnavailable, "record query failed")
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SQL assembly
// ─────────────────────────────────────────────────────────────────────────────

// whereClause renders q's constraints as a WHERE fragment with positional
// args.  The keyword matches title, abstract, and assignee case-insensitively
// through a single shared placeholder.
func whereClause(q patent.Query) (string, []interface{}) {
	var (
		conditions []string
		args       []interface{}
	)
	nextArg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Keyword != "" {
		ph := nextArg("%" + escapeLike(q.Keyword) + "%")
		conditions = append(conditions,
			fmt.Sprintf("(title ILIKE %[1]s OR abstract ILIKE %[1]s OR assignee ILIKE %[1]s)", ph))
	}
	if q.Assignee != "" {
		ph := nextArg(q.Assignee)
		conditions = append(conditions, fmt.Sprintf("assignee = %s", ph))
	}
	if q.FilingFrom != nil {
		ph := nextArg(q.FilingFrom.String())
		conditions = append(conditions, fmt.Sprintf("filing_date >= %s", ph))
	}
	if q.FilingTo != nil {
		ph := nextArg(q.FilingTo.String())
		conditions = append(conditions, fmt.Sprintf("filing_date <= %s", ph))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// searchSQL renders the row fetch for q, including ordering and the optional
// row range as LIMIT/OFFSET.
func searchSQL(q patent.Query) (string, []interface{}) {
	where, args := whereClause(q)
	sqlStr := "SELECT " + selectColumns + " FROM patent_records" + where + orderClause
	if q.Range != nil {
		args = append(args, q.Range.Size())
		sqlStr += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, q.Range.From)
		sqlStr += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return sqlStr, args
}

// countSQL renders the match count for q's constraints.
func countSQL(q patent.Query) (string, []interface{}) {
	where, args := whereClause(q)
	return "SELECT COUNT(*) FROM patent_records" + where, args
}

// escapeLike neutralises LIKE pattern characters in user input.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
