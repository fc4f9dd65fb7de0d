package middleware

import "net/http"

// MaxBodySize caps how many request body bytes a handler may read. A read
// past the limit fails with http.MaxBytesError, which surfaces as a 400 from
// the JSON decoder. A limit of zero disables the cap.
func MaxBodySize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
