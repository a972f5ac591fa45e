package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

type contextKey string

// CallerIDKey is the context key the resolved caller identifier is stored
// under. There is no tenancy concept in this system: the reverse proxy in
// front of the Image Delivery Service is responsible for authenticating the
// caller and forwarding a stable identifier, which this middleware trusts
// and uses only to key the rate limiter and enrich log lines.
const CallerIDKey contextKey = "caller_id"

// CallerIDHeader is the header the reverse proxy is expected to set.
const CallerIDHeader = "X-Caller-ID"

// CallerID extracts the caller identifier from CallerIDHeader and attaches
// it to the request context. A missing header falls back to the remote
// address rather than rejecting the request: rate limiting still works
// (per-IP instead of per-authenticated-caller), and this middleware does
// not perform authentication — that decision belongs to the proxy in front
// of it.
func CallerID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callerID := r.Header.Get(CallerIDHeader)
		if callerID == "" {
			callerID = r.RemoteAddr
			log.Debug().Str("remote_addr", r.RemoteAddr).Msg("missing caller identity header, falling back to remote address")
		}

		ctx := context.WithValue(r.Context(), CallerIDKey, callerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCallerID extracts the caller identifier from context.
func GetCallerID(ctx context.Context) (string, bool) {
	callerID, ok := ctx.Value(CallerIDKey).(string)
	return callerID, ok
}
