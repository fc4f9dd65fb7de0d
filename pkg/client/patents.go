package client

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// Patent is one patent row as the API returns it.
type Patent struct {
	ID           string     `json:"id"`
	PatentNumber string     `json:"patent_number"`
	Title        string     `json:"title"`
	Abstract     string     `json:"abstract,omitempty"`
	Assignee     string     `json:"assignee,omitempty"`
	FilingDate   *time.Time `json:"filing_date,omitempty"`
}

// SearchRequest narrows a patent search. Zero-value fields are omitted
// from the query; dates use YYYY-MM-DD. Page 0 means the server default,
// page one.
type SearchRequest struct {
	Keyword  string
	Assignee string
	From     string
	To       string
	Page     int
}

// SearchResult is one page of search results, newest filing first.
type SearchResult struct {
	Records    []Patent `json:"records"`
	TotalCount int64    `json:"total_count"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}

// query renders the request as URL query parameters, validating the dates
// before any bytes leave the machine.
func (r *SearchRequest) query() (url.Values, error) {
	if err := validateDates(r.From, r.To); err != nil {
		return nil, err
	}
	if r.Page < 0 {
		return nil, invalidArg("page must not be negative, got %d", r.Page)
	}

	v := url.Values{}
	if r.Keyword != "" {
		v.Set("keyword", r.Keyword)
	}
	if r.Assignee != "" {
		v.Set("assignee", r.Assignee)
	}
	if r.From != "" {
		v.Set("from", r.From)
	}
	if r.To != "" {
		v.Set("to", r.To)
	}
	if r.Page > 0 {
		v.Set("page", strconv.Itoa(r.Page))
	}
	return v, nil
}

// validateDates checks YYYY-MM-DD syntax and ordering.
func validateDates(from, to string) error {
	var f, t time.Time
	var err error
	if from != "" {
		if f, err = time.Parse("2006-01-02", from); err != nil {
			return invalidArg("from must be YYYY-MM-DD, got %q", from)
		}
	}
	if to != "" {
		if t, err = time.Parse("2006-01-02", to); err != nil {
			return invalidArg("to must be YYYY-MM-DD, got %q", to)
		}
	}
	if from != "" && to != "" && f.After(t) {
		return invalidArg("from %s is after to %s", from, to)
	}
	return nil
}

// SearchPatents fetches one page of search results.
// GET /api/v1/patents/search
func (c *Client) SearchPatents(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, invalidArg("request is required")
	}
	v, err := req.query()
	if err != nil {
		return nil, err
	}

	path := "/api/v1/patents/search"
	if enc := v.Encode(); enc != "" {
		path += "?" + enc
	}

	var resp APIResponse[SearchResult]
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

type assigneesPayload struct {
	Assignees []string `json:"assignees"`
	Count     int      `json:"count"`
}

// Assignees fetches the assignee directory, most patents first.
// GET /api/v1/assignees
func (c *Client) Assignees(ctx context.Context) ([]string, error) {
	var resp APIResponse[assigneesPayload]
	if err := c.get(ctx, "/api/v1/assignees", &resp); err != nil {
		return nil, err
	}
	return resp.Data.Assignees, nil
}
