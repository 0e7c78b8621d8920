package adminapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ircservices/saslbroker/internal/adminapi/auth"
	adminmw "github.com/ircservices/saslbroker/internal/adminapi/middleware"
	"github.com/ircservices/saslbroker/internal/mechanism"
	"github.com/ircservices/saslbroker/internal/session"
)

// NewRouter builds the admin API's chi router: an unauthenticated health
// probe plus a JWT-and-admin-gated /api/v1 surface for session and
// mechanism diagnostics, grounded on the control plane's router
// middleware stack and route-group shape.
func NewRouter(sessions *session.Store, mechanisms *mechanism.Registry, jwtSvc *auth.JWTService, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	h := NewHandlers(sessions, mechanisms)

	r.Get("/health", h.Liveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(adminmw.JWTAuth(jwtSvc))
		r.Use(adminmw.RequireAdmin())

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Get("/{uid}", h.GetSession)
			r.Delete("/{uid}", h.DestroySession)
		})

		r.Get("/mechanisms", h.ListMechanisms)
	})

	return r
}

// requestLogger logs each request's method, path, status and duration,
// at DEBUG for the unauthenticated health probe and INFO otherwise.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := chimw.GetReqID(r.Context())

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			args := []any{
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
			}

			if r.URL.Path == "/health" {
				log.Debug("admin api request", args...)
			} else {
				log.Info("admin api request", args...)
			}
		})
	}
}
