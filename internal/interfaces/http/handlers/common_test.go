package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Explorer/internal/application/search"
	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
)

// fakeSearchService answers with canned results and records what it was
// asked for.
type fakeSearchService struct {
	searchFunc    func(ctx context.Context, f patent.Filter, page int) (search.ResultPage, error)
	assigneesFunc func(ctx context.Context, limit int) ([]string, error)
	searchCalls   int
}

func (s *fakeSearchService) Search(ctx context.Context, f patent.Filter, page int) (search.ResultPage, error) {
	s.searchCalls++
	if s.searchFunc != nil {
		return s.searchFunc(ctx, f, page)
	}
	return search.EmptyPage(), nil
}

func (s *fakeSearchService) Assignees(ctx context.Context, limit int) ([]string, error) {
	if s.assigneesFunc != nil {
		return s.assigneesFunc(ctx, limit)
	}
	return nil, nil
}

// decodeData unmarshals the data envelope of a successful response.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, into))
}

// decodeError unmarshals an error response body.
func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	return er
}

func TestWriteAppError_StatusAndMessage(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "invalid param keeps its message",
			err:        errors.InvalidParam("page must be a positive integer"),
			wantStatus: 400,
			wantCode:   "COMMON_002",
			wantMsg:    "page must be a positive integer",
		},
		{
			name:       "export conflict keeps its message",
			err:        errors.New(errors.CodeExportInProgress, "an export is already running"),
			wantStatus: 409,
			wantCode:   "EXPORT_002",
			wantMsg:    "an export is already running",
		},
		{
			name:       "query failure masks the detail",
			err:        errors.Wrap(assert.AnError, errors.CodeQueryFailed, "select blew up on shard 7"),
			wantStatus: 502,
			wantCode:   "SEARCH_001",
			wantMsg:    "search query failed",
		},
		{
			name:       "broker failure masks the detail",
			err:        errors.Wrap(assert.AnError, errors.CodeMessagingError, "broker unreachable at kafka-0"),
			wantStatus: 500,
			wantCode:   "MSG_001",
			wantMsg:    "message broker error",
		},
		{
			name:       "plain error maps to 500",
			err:        assert.AnError,
			wantStatus: 500,
			wantCode:   "UNKNOWN",
			wantMsg:    "unknown error",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeAppError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			body := decodeError(t, rec)
			assert.Equal(t, tc.wantCode, body.Code)
			assert.Equal(t, tc.wantMsg, body.Message)
		})
	}
}

func TestParsePage(t *testing.T) {
	cases := []struct {
		name    string
		query   string
		want    int
		wantErr bool
	}{
		{name: "absent defaults to one", query: "", want: 1},
		{name: "explicit page", query: "page=7", want: 7},
		{name: "zero rejected", query: "page=0", wantErr: true},
		{name: "negative rejected", query: "page=-3", wantErr: true},
		{name: "garbage rejected", query: "page=abc", wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/patents/search?"+tc.query, nil)
			page, err := parsePage(req)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, page)
		})
	}
}
