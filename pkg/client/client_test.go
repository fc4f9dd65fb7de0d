package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetry keeps retry waits out of the test runtime.
func fastRetry() Option {
	return WithRetryWait(time.Millisecond, 2*time.Millisecond)
}

func newTestClient(t *testing.T, srvURL string, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(srvURL, append([]Option{fastRetry()}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr string
	}{
		{name: "empty url", baseURL: "", wantErr: "baseURL is required"},
		{name: "bad scheme", baseURL: "ftp://api.example.com", wantErr: "scheme must be http or https"},
		{name: "unparseable", baseURL: "://missing-scheme", wantErr: "invalid baseURL"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(tc.baseURL)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"data":{"assignees":[],"count":0}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/")
	_, err := c.Assignees(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "/api/v1/assignees", gotPath)
}

func TestClient_SetsRequestHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		fmt.Fprint(w, `{"data":{"assignees":[],"count":0}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Assignees(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "kipx-go-sdk/"+Version, got.Get("User-Agent"))
	assert.Equal(t, "application/json", got.Get("Accept"))

	_, err = uuid.Parse(got.Get("X-Request-ID"))
	assert.NoError(t, err, "X-Request-ID must be a uuid")
}

func TestClient_FreshRequestIDPerCall(t *testing.T) {
	var ids []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, r.Header.Get("X-Request-ID"))
		fmt.Fprint(w, `{"data":{"assignees":[],"count":0}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Assignees(context.Background())
	require.NoError(t, err)
	_, err = c.Assignees(context.Background())
	require.NoError(t, err)

	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"code":"SEARCH_001","message":"search query failed"}`)
			return
		}
		fmt.Fprint(w, `{"data":{"assignees":["ACME Corp"],"count":1}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	names, err := c.Assignees(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"ACME Corp"}, names)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":"COMMON_002","message":"page must be a positive integer"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Assignees(context.Background())

	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsBadRequest())
	assert.Equal(t, "COMMON_002", apiErr.Code)
	assert.Equal(t, "page must be a positive integer", apiErr.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestClient_HonorsRetryAfter(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data":{"assignees":[],"count":0}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Assignees(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestClient_BacksOffRateLimitWithoutHeader(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"code":"COMMON_429","message":"slow down"}`)
			return
		}
		fmt.Fprint(w, `{"data":{"assignees":[],"count":0}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Assignees(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestClient_ExhaustedRetriesReturnLastError(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"code":"COMMON_001","message":"internal server error"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithRetryMax(2))
	_, err := c.Assignees(context.Background())

	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestClient_ContextCancelsBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithRetryWait(200*time.Millisecond, time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Assignees(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_NonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream exploded")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithRetryMax(0))
	_, err := c.Assignees(context.Background())

	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream exploded", apiErr.Message)
	assert.Empty(t, apiErr.Code)
}

func TestAPIError_Predicates(t *testing.T) {
	tests := []struct {
		status      int
		badRequest  bool
		notFound    bool
		conflict    bool
		rateLimited bool
		serverError bool
	}{
		{status: http.StatusBadRequest, badRequest: true},
		{status: http.StatusNotFound, notFound: true},
		{status: http.StatusConflict, conflict: true},
		{status: http.StatusTooManyRequests, rateLimited: true},
		{status: http.StatusBadGateway, serverError: true},
		{status: http.StatusInternalServerError, serverError: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(fmt.Sprintf("status %d", tc.status), func(t *testing.T) {
			e := &APIError{StatusCode: tc.status}
			assert.Equal(t, tc.badRequest, e.IsBadRequest())
			assert.Equal(t, tc.notFound, e.IsNotFound())
			assert.Equal(t, tc.conflict, e.IsConflict())
			assert.Equal(t, tc.rateLimited, e.IsRateLimited())
			assert.Equal(t, tc.serverError, e.IsServerError())
		})
	}
}

func TestAPIError_ErrorString(t *testing.T) {
	e := &APIError{StatusCode: 409, Code: "EXPORT_002", Message: "an export is already in progress", RequestID: "req-1"}

	assert.Equal(t, "kipx: EXPORT_002 (HTTP 409): an export is already in progress [request_id=req-1]", e.Error())
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	c, err := NewClient("http://localhost", WithRetryWait(100*time.Millisecond, 300*time.Millisecond))
	require.NoError(t, err)

	first := c.backoff(1)
	assert.GreaterOrEqual(t, first, 100*time.Millisecond)
	assert.Less(t, first, 130*time.Millisecond)

	// Attempt 10 would be 100ms << 9 uncapped; the cap plus 25% jitter
	// bounds it.
	capped := c.backoff(10)
	assert.GreaterOrEqual(t, capped, 300*time.Millisecond)
	assert.Less(t, capped, 380*time.Millisecond)
}
