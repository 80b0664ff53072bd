// Package middleware holds the HTTP middleware of the local order server.
package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"redshift-orders/internal/domain"
)

// HeaderRequestID carries the invocation id in and out of the server.
const HeaderRequestID = "X-Request-ID"

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// RequestID assigns every request an invocation id. A well-formed incoming
// X-Request-ID is reused; anything else is replaced with a new UUID so
// untrusted input never reaches the logs. The id is echoed on the response
// and stored with domain.WithInvocationID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if !validRequestID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(domain.WithInvocationID(r.Context(), id)))
	})
}
