package client

import (
	"context"
	"mime"
	"net/http"
)

// ExportRequest starts a full CSV export for a filter. Async nil follows
// the server default; true queues the export for the background worker,
// false forces an inline run.
type ExportRequest struct {
	Keyword  string `json:"keyword,omitempty"`
	Assignee string `json:"assignee,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Async    *bool  `json:"async,omitempty"`
}

// Export is the server's view of an export job. An inline export carries
// the artifact location and row count; a queued one only its ID and
// status.
type Export struct {
	ExportID  string `json:"export_id"`
	Status    string `json:"status,omitempty"`
	ObjectKey string `json:"object_key,omitempty"`
	URL       string `json:"url,omitempty"`
	RowCount  int    `json:"row_count,omitempty"`
}

// Queued reports whether the export was accepted for background
// processing rather than run inline.
func (e *Export) Queued() bool {
	return e.Status == "pending"
}

// StartExport runs or queues a full CSV export.
// POST /api/v1/exports
func (c *Client) StartExport(ctx context.Context, req *ExportRequest) (*Export, error) {
	if req == nil {
		return nil, invalidArg("request is required")
	}
	if err := validateDates(req.From, req.To); err != nil {
		return nil, err
	}

	var resp APIResponse[Export]
	if err := c.post(ctx, "/api/v1/exports", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ExportPage downloads one result page as CSV, the same rows SearchPatents
// returns for the request. The returned filename comes from the attachment
// header and is empty if the server did not send one.
// GET /api/v1/exports/page
func (c *Client) ExportPage(ctx context.Context, req *SearchRequest) ([]byte, string, error) {
	if req == nil {
		return nil, "", invalidArg("request is required")
	}
	v, err := req.query()
	if err != nil {
		return nil, "", err
	}

	path := "/api/v1/exports/page"
	if enc := v.Encode(); enc != "" {
		path += "?" + enc
	}

	body, header, err := c.roundTrip(ctx, http.MethodGet, path, nil, "text/csv")
	if err != nil {
		return nil, "", err
	}

	filename := ""
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil {
		filename = params["filename"]
	}
	return body, filename, nil
}
