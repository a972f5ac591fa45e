package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Logging logs one line per request (info level, warn for 4xx, error for
// 5xx responses): method, path, status,
// duration, and the caller identity CallerID already attached to the
// request context, if any. It wraps chi's response-writer wrapper to
// observe the status code and byte count without buffering the body.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		event := log.Info()
		if ww.Status() >= 500 {
			event = log.Error()
		} else if ww.Status() >= 400 {
			event = log.Warn()
		}

		callerID, _ := GetCallerID(r.Context())
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("caller_id", callerID).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
