/*
middleware.go - Request instrumentation and actor identity

PURPOSE:
  Hosts the prometheus request middleware and the helpers that read
  the upstream-injected identity headers. Authentication itself lives
  at the gateway; this service trusts X-Actor-ID and X-Actor-Role.

SEE ALSO:
  - pkg/metrics: counter and histogram definitions
  - server.go: middleware ordering
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/mentorbook/pkg/metrics"
)

const (
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"

	RoleUser   = "user"
	RoleMentor = "mentor"
	RoleAdmin  = "admin"
)

// actorID returns the caller's id from the gateway headers.
func actorID(r *http.Request) string { return r.Header.Get(headerActorID) }

// actorRole returns the caller's role, defaulting to user.
func actorRole(r *http.Request) string {
	if role := r.Header.Get(headerActorRole); role != "" {
		return role
	}
	return RoleUser
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// Instrument records request counts and latencies per route pattern,
// so /api/bookings/{id} is one series rather than one per booking.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.RecordHTTPRequest(r.Method, pattern, strconv.Itoa(rec.status), time.Since(start))
	})
}
