package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartExport_Inline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/exports", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body ExportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "battery", body.Keyword)
		assert.Equal(t, "ACME Corp", body.Assignee)
		require.NotNil(t, body.Async)
		assert.False(t, *body.Async)

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"data":{"export_id":"exp-1","object_key":"exp-1.csv","url":"minio://exports/exp-1.csv","row_count":12}}`)
	}))
	defer srv.Close()

	sync := false
	c := newTestClient(t, srv.URL)
	exp, err := c.StartExport(context.Background(), &ExportRequest{
		Keyword:  "battery",
		Assignee: "ACME Corp",
		Async:    &sync,
	})

	require.NoError(t, err)
	assert.Equal(t, "exp-1", exp.ExportID)
	assert.Equal(t, "exp-1.csv", exp.ObjectKey)
	assert.Equal(t, "minio://exports/exp-1.csv", exp.URL)
	assert.Equal(t, 12, exp.RowCount)
	assert.False(t, exp.Queued())
}

func TestStartExport_Queued(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"data":{"export_id":"exp-2","status":"pending"}}`)
	}))
	defer srv.Close()

	async := true
	c := newTestClient(t, srv.URL)
	exp, err := c.StartExport(context.Background(), &ExportRequest{Keyword: "battery", Async: &async})

	require.NoError(t, err)
	assert.Equal(t, "exp-2", exp.ExportID)
	assert.True(t, exp.Queued())
	assert.Empty(t, exp.ObjectKey)
	assert.Empty(t, exp.URL)
}

func TestStartExport_ConflictDoesNotRetry(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"code":"EXPORT_002","message":"an export is already in progress"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.StartExport(context.Background(), &ExportRequest{})

	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsConflict())
	assert.Equal(t, "EXPORT_002", apiErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestStartExport_Validation(t *testing.T) {
	c, err := NewClient("http://localhost")
	require.NoError(t, err)

	_, err = c.StartExport(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request is required")

	_, err = c.StartExport(context.Background(), &ExportRequest{From: "not-a-date"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `from must be YYYY-MM-DD, got "not-a-date"`)
}

func TestExportPage_DownloadsCSV(t *testing.T) {
	csv := "id,patentNumber,title,assignee,filingDate\np-01,US101,Battery cell design 1,ACME Corp,2024-01-01\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/exports/page", r.URL.Path)
		assert.Equal(t, "text/csv", r.Header.Get("Accept"))
		assert.Equal(t, "battery", r.URL.Query().Get("keyword"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="patents-page-2.csv"`)
		fmt.Fprint(w, csv)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	body, filename, err := c.ExportPage(context.Background(), &SearchRequest{Keyword: "battery", Page: 2})

	require.NoError(t, err)
	assert.Equal(t, csv, string(body))
	assert.Equal(t, "patents-page-2.csv", filename)
}

func TestExportPage_NoDispositionHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprint(w, "id,patentNumber,title,assignee,filingDate\n")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	body, filename, err := c.ExportPage(context.Background(), &SearchRequest{})

	require.NoError(t, err)
	assert.NotEmpty(t, body)
	assert.Empty(t, filename)
}

func TestExportPage_Validation(t *testing.T) {
	c, err := NewClient("http://localhost")
	require.NoError(t, err)

	_, _, err = c.ExportPage(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request is required")

	_, _, err = c.ExportPage(context.Background(), &SearchRequest{To: "2024-13-99"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `to must be YYYY-MM-DD, got "2024-13-99"`)
}
