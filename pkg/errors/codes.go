package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Sentinel codes returned by GetCode.
const (
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Common error codes.
const (
	CodeInternal      ErrorCode = "COMMON_001"
	CodeInvalidParam  ErrorCode = "COMMON_002"
	CodeNotFound      ErrorCode = "COMMON_003"
	CodeConflict      ErrorCode = "COMMON_004"
	CodeUnavailable   ErrorCode = "COMMON_005"
	CodeTimeout       ErrorCode = "COMMON_006"
	CodeSerialization ErrorCode = "COMMON_007"
)

// Search module error codes.
const (
	// CodeQueryFailed marks a failed remote fetch.  The session recovers by
	// clearing the result page; the page number is left where it was.
	CodeQueryFailed ErrorCode = "SEARCH_001"

	// CodeAssigneeLoadFailed marks a failed assignee-directory load.  The
	// session keeps an empty list; searching is unaffected.
	CodeAssigneeLoadFailed ErrorCode = "SEARCH_002"
)

// Export module error codes.
const (
	// CodeExportFailed marks a failed count probe or chunk fetch during a
	// bulk export.  No file is produced.
	CodeExportFailed ErrorCode = "EXPORT_001"

	// CodeExportInProgress is returned when an export is requested while a
	// previous one is still running.
	CodeExportInProgress ErrorCode = "EXPORT_002"

	// CodeExportUploadFailed marks a failed artifact upload after a
	// successful encode.
	CodeExportUploadFailed ErrorCode = "EXPORT_003"
)

// Infrastructure error codes.
const (
	CodeStoreUnavailable ErrorCode = "STORE_001"
	CodeCacheError       ErrorCode = "CACHE_001"
	CodeStorageError     ErrorCode = "OBJ_001"
	CodeMessagingError   ErrorCode = "MSG_001"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	CodeInternal:      http.StatusInternalServerError,
	CodeInvalidParam:  http.StatusBadRequest,
	CodeNotFound:      http.StatusNotFound,
	CodeConflict:      http.StatusConflict,
	CodeUnavailable:   http.StatusServiceUnavailable,
	CodeTimeout:       http.StatusGatewayTimeout,
	CodeSerialization: http.StatusInternalServerError,

	CodeQueryFailed:        http.StatusBadGateway,
	CodeAssigneeLoadFailed: http.StatusBadGateway,

	CodeExportFailed:       http.StatusBadGateway,
	CodeExportInProgress:   http.StatusConflict,
	CodeExportUploadFailed: http.StatusInternalServerError,

	CodeStoreUnavailable: http.StatusServiceUnavailable,
	CodeCacheError:       http.StatusInternalServerError,
	CodeStorageError:     http.StatusInternalServerError,
	CodeMessagingError:   http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	CodeInternal:      "internal server error",
	CodeInvalidParam:  "invalid parameter",
	CodeNotFound:      "resource not found",
	CodeConflict:      "resource conflict",
	CodeUnavailable:   "service unavailable",
	CodeTimeout:       "request timeout",
	CodeSerialization: "serialization failed",

	CodeQueryFailed:        "search query failed",
	CodeAssigneeLoadFailed: "assignee directory load failed",

	CodeExportFailed:       "export failed",
	CodeExportInProgress:   "an export is already in progress",
	CodeExportUploadFailed: "export artifact upload failed",

	CodeStoreUnavailable: "record store unavailable",
	CodeCacheError:       "cache error",
	CodeStorageError:     "object storage error",
	CodeMessagingError:   "message broker error",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError reports whether the ErrorCode maps to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError reports whether the ErrorCode maps to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode ("SEARCH",
// "EXPORT", ...), used as a metric label.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
