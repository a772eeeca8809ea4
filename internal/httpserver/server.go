package httpserver

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/nexusgate/gateway/internal/auth"
	"github.com/nexusgate/gateway/internal/config"
	"github.com/nexusgate/gateway/internal/version"
)

// Server holds the HTTP server dependencies. V1Router carries the
// OpenAI-compatible proxy surface (no admin auth — see pkg/ingress);
// AdminRouter carries provider/credential/mapping CRUD behind session/API-key
// auth; any authenticated identity is accepted, with no role check.
type Server struct {
	Router      *chi.Mux
	V1Router    chi.Router
	AdminRouter chi.Router
	Logger      *slog.Logger
	DB          *pgxpool.Pool
	Redis       *redis.Client
	Metrics     *prometheus.Registry
	startedAt   time.Time
}

// NewServer creates an HTTP server with middleware and health/metrics
// endpoints, and establishes the /v1 and /admin mount points. Domain
// handlers are mounted onto V1Router/AdminRouter after calling NewServer.
// loginHandler is mounted under /admin/auth/* ahead of the session/API-key
// auth middleware, since a caller without a session must be able to reach it.
func NewServer(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, sessionMgr *auth.SessionManager, loginHandler *auth.LoginHandler) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		Redis:     rdb,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	// OpenAI-compatible proxy surface. Auth here is an opaque bearer token
	// extraction, not an admin login — see pkg/ingress's own middleware.
	s.Router.Route("/v1", func(r chi.Router) {
		s.V1Router = r
	})

	// Admin CRUD surface: provider/credential/model-mapping management plus
	// health/circuit-breaker/rate-limit diagnostics. /admin/auth/* is public
	// (it's how a caller obtains the session); everything else under /admin
	// requires an authenticated session.
	s.Router.Route("/admin", func(r chi.Router) {
		r.Post("/auth/login", loginHandler.HandleLogin)
		r.Get("/auth/me", loginHandler.HandleMe)
		r.Post("/auth/logout", loginHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(sessionMgr, db, logger))
			r.Use(auth.RequireAuth)
			s.AdminRouter = r
		})
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := []struct {
		name string
		err  error
	}{
		{"database", s.DB.Ping(ctx)},
		{"redis", s.Redis.Ping(ctx).Err()},
	}

	for _, c := range checks {
		if c.err != nil {
			s.Logger.Error("readiness check failed", "check", c.name, "error", c.err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", c.name+" not ready")
			return
		}
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusResponse is the JSON shape returned by HandleStatus.
type statusResponse struct {
	Status          string  `json:"status"`
	Version         string  `json:"version"`
	CommitSHA       string  `json:"commit_sha"`
	Uptime          string  `json:"uptime"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
	Database        string  `json:"database"`
	DatabaseLatency float64 `json:"database_latency_ms"`
	Redis           string  `json:"redis"`
	RedisLatency    float64 `json:"redis_latency_ms"`
}

// HandleStatus returns system health information including DB/Redis
// connectivity and uptime.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uptime := time.Since(s.startedAt)

	resp := statusResponse{
		Version:       version.Version,
		CommitSHA:     version.Commit,
		Uptime:        uptime.Truncate(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
	}

	dbStart := time.Now()
	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("status check: database ping failed", "error", err)
		resp.Database = "error"
	} else {
		resp.Database = "ok"
	}
	resp.DatabaseLatency = math.Round(float64(time.Since(dbStart).Microseconds())/10) / 100

	redisStart := time.Now()
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Logger.Error("status check: redis ping failed", "error", err)
		resp.Redis = "error"
	} else {
		resp.Redis = "ok"
	}
	resp.RedisLatency = math.Round(float64(time.Since(redisStart).Microseconds())/10) / 100

	if resp.Database == "ok" && resp.Redis == "ok" {
		resp.Status = "ok"
	} else {
		resp.Status = "degraded"
	}

	Respond(w, http.StatusOK, resp)
}
