// Package httpapi exposes the admin audit API over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"arteng.org/internal/audit"
	"arteng.org/internal/auth"
	"arteng.org/internal/obs"
	"arteng.org/internal/ratelimit"
	"arteng.org/internal/stream"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks downstream dependencies for readiness.
type ReadyProbe struct {
	Checks map[string]Pinger
}

func (p ReadyProbe) Check(ctx context.Context) map[string]string {
	out := make(map[string]string, len(p.Checks))
	for name, c := range p.Checks {
		if c == nil {
			continue
		}
		if err := c.Ping(ctx); err != nil {
			out[name] = err.Error()
		}
	}
	return out
}

// Deps are the collaborators the API is built from.
type Deps struct {
	Trail *audit.Trail
	Gate  *auth.Gate
	Hub   *stream.Hub
	Ready ReadyProbe

	APILimiter   ratelimit.Limiter
	AdminLimiter ratelimit.Limiter

	Production   bool
	Version      string
	CORSOrigins  []string
	MaxBodyBytes int64
	// TrustedProxies may set X-Forwarded-For; everyone else is keyed by
	// the transport peer.
	TrustedProxies auth.TrustedProxies
}

type API struct {
	router       chi.Router
	trail        *audit.Trail
	gate         *auth.Gate
	hub          *stream.Hub
	ready        ReadyProbe
	production   bool
	version      string
	apiLimiter   ratelimit.Limiter
	adminLimiter ratelimit.Limiter
}

func New(d Deps) *API {
	a := &API{
		router:       chi.NewRouter(),
		trail:        d.Trail,
		gate:         d.Gate,
		hub:          d.Hub,
		ready:        d.Ready,
		production:   d.Production,
		version:      d.Version,
		apiLimiter:   d.APILimiter,
		adminLimiter: d.AdminLimiter,
	}
	a.routes(d)
	return a
}

func (a *API) Handler() http.Handler { return a.router }

func (a *API) routes(d Deps) {
	r := a.router
	r.Use(RequestID)
	r.Use(ClientAddr(d.TrustedProxies))
	r.Use(LoggingJSON)
	r.Use(obs.Instrument)
	r.Use(a.Recover)
	r.Use(SecurityHeaders)
	r.Use(CORS(d.CORSOrigins, d.Production))
	r.Use(MaxBodyBytes(d.MaxBodyBytes))

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(a.RateLimit(a.apiLimiter))
		r.Route("/admin", func(r chi.Router) {
			r.Use(a.RateLimit(a.adminLimiter))
			r.Get("/", a.Info)

			r.Route("/audit-logs", func(r chi.Router) {
				r.Get("/", a.listAuditLogs())
				r.Get("/paginated", a.paginatedAuditLogs())
				r.Get("/user/{userId}", a.userAuditLogs())
				r.Get("/search", a.searchAuditLogs())
				r.Get("/date-range", a.dateRangeAuditLogs())
				r.Get("/action-type", a.actionTypeAuditLogs())
				r.Get("/recent", a.recentAuditLogs())
				r.Get("/statistics", a.auditStatistics())
				r.Delete("/cleanup", a.cleanupAuditLogs())
				r.Get("/stream", a.Stream)
			})

			r.Route("/auth", func(r chi.Router) {
				r.Post("/verify", a.verifySession())
				r.Get("/session", a.sessionStatus())
				r.Post("/logout", a.logout())
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, &apiError{status: http.StatusNotFound, code: CodeNotFound, message: "Route not found"})
	})
}

// Healthz = liveness
func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Ready = readiness
func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if failed := a.ready.Check(ctx); len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// Info describes the admin tier. It is public and leaves a System audit record.
func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	_, _ = a.trail.LogSystemEvent(r.Context(), fmt.Sprintf("Admin API info accessed from %s", auth.ClientIP(r)))
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Admin API",
		Data: map[string]any{
			"version": a.version,
			"endpoints": []string{
				"GET /api/admin/audit-logs",
				"GET /api/admin/audit-logs/paginated",
				"GET /api/admin/audit-logs/user/{userId}",
				"GET /api/admin/audit-logs/search",
				"GET /api/admin/audit-logs/date-range",
				"GET /api/admin/audit-logs/action-type",
				"GET /api/admin/audit-logs/recent",
				"GET /api/admin/audit-logs/statistics",
				"DELETE /api/admin/audit-logs/cleanup",
				"GET /api/admin/audit-logs/stream",
				"POST /api/admin/auth/verify",
				"GET /api/admin/auth/session",
				"POST /api/admin/auth/logout",
			},
		},
	})
}
