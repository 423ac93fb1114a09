package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// requestIDContextKey is the context key the request-ID middleware stores
// its generated id under.
type requestIDContextKey struct{}

// requestIDHeader is the response header the originating codebase's
// clients use to correlate a response back to a server-side log line.
const requestIDHeader = "X-Request-Id"

// requestIDMiddleware stamps every request with a google/uuid-generated
// correlation id, replacing chi's built-in incrementing request-id
// generator with a process-independent identifier suitable for
// correlating logs across multiple server instances.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDContextKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
