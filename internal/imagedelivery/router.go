package imagedelivery

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noctis-health/pacs-core/internal/errs"
	"github.com/noctis-health/pacs-core/internal/middleware"
)

// Router builds the chi router that serves the Image Delivery Service's
// routes under basePath, with caller-identity extraction and a Redis-backed
// rate limit applied ahead of every handler.
func Router(h *Handler, rateLimiter *RateLimiter, basePath string) http.Handler {
	r := chi.NewRouter()

	r.Route(basePath, func(r chi.Router) {
		r.Use(middleware.CallerID)
		r.Use(rateLimitMiddleware(rateLimiter))

		r.Get("/studies/{studyUid}/series", h.ListSeries)
		r.Get("/series/{seriesUid}/images", h.ListImages)
		r.Get("/images/{instanceUid}", h.GetImage)
		r.Get("/images/{instanceUid}/thumbnail", h.GetThumbnail)
		r.Get("/presets", h.GetPresets)
	})

	return r
}

// rateLimitMiddleware enforces the per-caller request budget before a
// request reaches any handler, so an over-limit caller never touches the
// Metadata Index or Object Store.
func rateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callerID, _ := middleware.GetCallerID(r.Context())

			allowed, retryAfter, err := rl.Allow(r.Context(), callerID)
			if err != nil {
				writeError(w, errs.Wrap(errs.KindUnavailable, "rate limiter unavailable", err))
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
				writeError(w, errs.New(errs.KindRateLimited, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
