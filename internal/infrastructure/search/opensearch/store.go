package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v3/opensearchapi"

	"github.com/turtacn/KeyIP-Explorer/internal/config"
	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
	"github.com/turtacn/KeyIP-Explorer/pkg/types/common"
)

const backendName = "opensearch"

// maxResultWindow bounds from+size on the patents index; uncapped fetches use
// it as their size.
const maxResultWindow = 100000

// IndexName returns the patents index name under the configured prefix.
func IndexName(prefix string) string {
	return prefix + "patents"
}

// document is the indexed form of a patent record.  The filing date is kept
// as a plain yyyy-MM-dd string so date math never crosses timezones.
type document struct {
	ID           string `json:"id"`
	PatentNumber string `json:"patent_number"`
	Title        string `json:"title"`
	Abstract     string `json:"abstract"`
	Assignee     string `json:"assignee"`
	FilingDate   string `json:"filing_date,omitempty"`
}

func documentFromRecord(rec patent.Record) document {
	return document{
		ID:           rec.ID,
		PatentNumber: rec.PatentNumber,
		Title:        rec.Title,
		Abstract:     rec.Abstract,
		Assignee:     rec.Assignee,
		FilingDate:   rec.FilingDateString(),
	}
}

func (d document) record() (patent.Record, error) {
	rec := patent.Record{
		ID:           d.ID,
		PatentNumber: d.PatentNumber,
		Title:        d.Title,
		Abstract:     d.Abstract,
		Assignee:     d.Assignee,
	}
	if d.FilingDate != "" {
		t, err := common.ParseDate(d.FilingDate)
		if err != nil {
			return patent.Record{}, err
		}
		rec.FilingDate = &t
	}
	return rec, nil
}

// Store executes patent record queries against an OpenSearch index.
type Store struct {
	client  *opensearchapi.Client
	index   string
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

var _ patent.Store = (*Store)(nil)

// NewStore wires a record store over an established client; metrics may be
// nil.
func NewStore(client *opensearchapi.Client, cfg config.OpenSearchConfig, metrics *prometheus.AppMetrics, logger logging.Logger) *Store {
	return &Store{
		client:  client,
		index:   IndexName(cfg.IndexPrefix),
		metrics: metrics,
		logger:  logger.Named("store.opensearch"),
	}
}

// EnsureIndex creates the patents index with its mapping if it does not
// exist yet.
func (s *Store) EnsureIndex(ctx context.Context) error {
	body, err := json.Marshal(indexSettings())
	if err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "index settings marshal failed")
	}

	_, err = s.client.Indices.Create(ctx, opensearchapi.IndicesCreateReq{
		Index: s.index,
		Body:  bytes.NewReader(body),
	})
	if err != nil {
		if indexExistsError(err) {
			return nil
		}
		return errors.Wrap(err, errors.CodeStoreUnavailable, "index create failed")
	}

	s.logger.Info("index created", logging.String("index", s.index))
	return nil
}

// IndexRecords bulk-indexes recs, waiting for the refresh so they are
// searchable when it returns.
func (s *Store) IndexRecords(ctx context.Context, recs []patent.Record) error {
	if len(recs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, rec := range recs {
		meta, err := json.Marshal(map[string]interface{}{
			"index": map[string]interface{}{"_id": rec.ID},
		})
		if err != nil {
			return errors.Wrap(err, errors.CodeSerialization, "bulk action marshal failed")
		}
		doc, err := json.Marshal(documentFromRecord(rec))
		if err != nil {
			return errors.Wrap(err, errors.CodeSerialization, "document marshal failed")
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	start := time.Now()
	resp, err := s.client.Bulk(ctx, opensearchapi.BulkReq{
		Index:  s.index,
		Body:   bytes.NewReader(buf.Bytes()),
		Params: opensearchapi.BulkParams{Refresh: "wait_for"},
	})
	s.metrics.RecordStoreQuery(backendName, "bulk", time.Since(start), err)
	if err != nil {
		s.logger.Error("bulk index failed", logging.Err(err), logging.Int("records", len(recs)))
		return errors.Wrap(err, errors.CodeStoreUnavailable, "bulk index failed")
	}
	if resp.Errors {
		return errors.New(errors.CodeStoreUnavailable, "bulk index reported item failures")
	}
	return nil
}

// Execute runs q and returns rows in query order plus the total match count
// when q.Counted is set.  A counted query without a row range is a count
// probe and returns no rows.
func (s *Store) Execute(ctx context.Context, q patent.Query) ([]patent.Record, int64, error) {
	operation := "search"
	if q.Counted && q.Range == nil {
		operation = "count"
	}

	body, err := json.Marshal(searchBody(q))
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.CodeSerialization, "query marshal failed")
	}

	start := time.Now()
	resp, err := s.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{s.index},
		Body:    bytes.NewReader(body),
	})
	s.metrics.RecordStoreQuery(backendName, operation, time.Since(start), err)
	if err != nil {
		s.logger.Error("record query failed", logging.Err(err), logging.String("query", q.String()))
		return nil, 0, errors.Wrap(err, errors.CodeStoreUnavailable, "record query failed")
	}

	total := patent.TotalUncounted
	if q.Counted {
		total = int64(resp.Hits.Total.Value)
		if q.Range == nil {
			return nil, total, nil
		}
	}

	out := []patent.Record{}
	for _, hit := range resp.Hits.Hits {
		var doc document
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return nil, 0, errors.Wrap(err, errors.CodeSerialization, "record decode failed")
		}
		rec, err := doc.record()
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.CodeSerialization, "record decode failed")
		}
		out = append(out, rec)
	}
	return out, total, nil
}

// Assignees returns the distinct non-empty assignee names in ascending order,
// capped at limit.
func (s *Store) Assignees(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = patent.DefaultAssigneeLimit
	}

	body, err := json.Marshal(assigneesBody(limit))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "assignee query marshal failed")
	}

	start := time.Now()
	resp, err := s.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{s.index},
		Body:    bytes.NewReader(body),
	})
	s.metrics.RecordStoreQuery(backendName, "assignees", time.Since(start), err)
	if err != nil {
		s.logger.Error("assignee query failed", logging.Err(err))
		return nil, errors.Wrap(err, errors.CodeStoreUnavailable, "assignee query failed")
	}

	if len(resp.Aggregations) == 0 {
		return []string{}, nil
	}
	var aggs struct {
		Assignees struct {
			Buckets []struct {
				Key string `json:"key"`
			} `json:"buckets"`
		} `json:"assignees"`
	}
	if err := json.Unmarshal(resp.Aggregations, &aggs); err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "assignee aggregation decode failed")
	}

	out := make([]string, 0, len(aggs.Assignees.Buckets))
	for _, b := range aggs.Assignees.Buckets {
		out = append(out, b.Key)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// DSL assembly
// ─────────────────────────────────────────────────────────────────────────────

// searchBody renders q as a complete _search body.  Counted queries track the
// exact total; a counted query with no range fetches nothing but the count.
func searchBody(q patent.Query) map[string]interface{} {
	body := map[string]interface{}{
		"query":            buildQuery(q),
		"track_total_hits": q.Counted,
	}
	if q.Counted && q.Range == nil {
		body["size"] = 0
		return body
	}

	body["sort"] = sortClause()
	if q.Range != nil {
		body["from"] = q.Range.From
		body["size"] = q.Range.Size()
	} else {
		body["size"] = maxResultWindow
	}
	return body
}

// buildQuery renders q's constraints.  The keyword runs as wildcards over the
// keyword subfields rather than the analyzed text, so the substring may span
// token boundaries exactly as ILIKE does on the SQL backend.
func buildQuery(q patent.Query) map[string]interface{} {
	var filters, should []map[string]interface{}

	if q.Keyword != "" {
		pattern := "*" + escapeWildcard(q.Keyword) + "*"
		for _, field := range []string{"title.keyword", "abstract.keyword", "assignee.keyword"} {
			should = append(should, map[string]interface{}{
				"wildcard": map[string]interface{}{
					field: map[string]interface{}{
						"value":            pattern,
						"case_insensitive": true,
					},
				},
			})
		}
	}
	if q.Assignee != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"assignee.keyword": q.Assignee},
		})
	}
	if q.FilingFrom != nil || q.FilingTo != nil {
		bounds := map[string]interface{}{}
		if q.FilingFrom != nil {
			bounds["gte"] = q.FilingFrom.String()
		}
		if q.FilingTo != nil {
			bounds["lte"] = q.FilingTo.String()
		}
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{"filing_date": bounds},
		})
	}

	if len(filters) == 0 && len(should) == 0 {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}

	boolQuery := map[string]interface{}{}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(should) > 0 {
		boolQuery["should"] = should
		boolQuery["minimum_should_match"] = 1
	}
	return map[string]interface{}{"bool": boolQuery}
}

// sortClause fixes the result ordering: newest filings first, undated rows
// last, descending id as the tiebreak so pagination is stable.
func sortClause() []map[string]interface{} {
	return []map[string]interface{}{
		{"filing_date": map[string]interface{}{"order": "desc", "missing": "_last"}},
		{"id": map[string]interface{}{"order": "desc"}},
	}
}

func assigneesBody(limit int) map[string]interface{} {
	return map[string]interface{}{
		"size": 0,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must_not": []map[string]interface{}{
					{"term": map[string]interface{}{"assignee.keyword": ""}},
				},
			},
		},
		"aggs": map[string]interface{}{
			"assignees": map[string]interface{}{
				"terms": map[string]interface{}{
					"field": "assignee.keyword",
					"size":  limit,
					"order": map[string]interface{}{"_key": "asc"},
				},
			},
		},
	}
}

func indexSettings() map[string]interface{} {
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"index": map[string]interface{}{
				"max_result_window": maxResultWindow,
			},
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"id":            map[string]interface{}{"type": "keyword"},
				"patent_number": map[string]interface{}{"type": "keyword"},
				"title": map[string]interface{}{
					"type": "text",
					"fields": map[string]interface{}{
						"keyword": map[string]interface{}{"type": "keyword", "ignore_above": 512},
					},
				},
				"abstract": map[string]interface{}{
					"type": "text",
					"fields": map[string]interface{}{
						"keyword": map[string]interface{}{"type": "keyword", "ignore_above": 8191},
					},
				},
				"assignee": map[string]interface{}{
					"type": "text",
					"fields": map[string]interface{}{
						"keyword": map[string]interface{}{"type": "keyword", "ignore_above": 512},
					},
				},
				"filing_date": map[string]interface{}{"type": "date", "format": "yyyy-MM-dd"},
			},
		},
	}
}

// escapeWildcard neutralises wildcard pattern characters in user input.
func escapeWildcard(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`).Replace(s)
}

// indexExistsError matches the create-conflict answer on either the exception
// type or its reason text, whichever the client surfaced.
func indexExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "resource_already_exists_exception") ||
		strings.Contains(msg, "already exists")
}
