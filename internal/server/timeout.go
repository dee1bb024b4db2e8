package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware cancels the request context after d. Cancellation is
// cooperative: handlers must watch ctx.Done(). Applied to the admin mount
// only; the agent SSE stream must stay outside any timeout.
func TimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
