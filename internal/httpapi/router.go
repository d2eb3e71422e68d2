// Package httpapi is the HTTP surface of the LINE bot service: service
// info, health, the LINE webhook and read-only knowledge, product and
// attendance endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jiujiugas/gasops/internal/gasdb"
)

// RequestTimeout bounds every request except the webhook, which answers
// before its events are processed.
const RequestTimeout = 30 * time.Second

// Database is what the endpoints read. *gasdb.DB implements it.
type Database interface {
	Ping(ctx context.Context) error
	SearchKnowledge(ctx context.Context, q string, limit int) ([]gasdb.KnowledgeEntry, error)
	Products(ctx context.Context) ([]gasdb.Product, error)
	AttendanceSince(ctx context.Context, since time.Time) ([]gasdb.Attendance, error)
}

// Config wires the router.
type Config struct {
	Version string
	// Webhook serves POST /api/webhook/line.
	Webhook http.Handler
	// DB may be nil; health then reports the database as not configured,
	// knowledge search uses the built-in entries and products come from
	// the static price list.
	DB     Database
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type api struct {
	version string
	db      Database
	log     *slog.Logger
	now     func() time.Time
}

// NewRouter returns the service's HTTP handler.
func NewRouter(cfg Config) http.Handler {
	a := &api{version: cfg.Version, db: cfg.DB, log: cfg.Logger, now: cfg.Now}
	if a.log == nil {
		a.log = slog.Default().With("component", "httpapi")
	}
	if a.now == nil {
		a.now = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.log))
	r.Use(middleware.Recoverer)

	r.Get("/", a.handleRoot)
	if cfg.Webhook != nil {
		r.Method(http.MethodPost, "/api/webhook/line", cfg.Webhook)
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(RequestTimeout))
		r.Get("/health", a.handleHealth)
		r.Get("/api/knowledge/search", a.handleKnowledgeSearch)
		r.Get("/api/products", a.handleProducts)
		r.Route("/api/attendance", func(r chi.Router) {
			r.Get("/today", a.handleAttendanceToday)
			r.Get("/week", a.handleAttendanceWeek)
			r.Get("/all", a.handleAttendanceAll)
		})
	})
	return r
}

// requestLogger logs one line per request with its id, status and latency.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			level := slog.LevelInfo
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			log.Log(r.Context(), level, "request",
				"id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		})
	}
}

func (a *api) timestamp() string {
	return a.now().Format(time.RFC3339)
}

func (a *api) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "九九瓦斯行 LINE Bot",
		"version":     a.version,
		"status":      "running",
		"language":    "Go",
		"timestamp":   a.timestamp(),
		"description": "九九瓦斯行 LINE Bot - Go 語言版本",
	})
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "healthy",
		"message":   "Go LINE Bot is running",
		"timestamp": a.timestamp(),
		"database":  "not configured",
	}
	code := http.StatusOK
	if a.db != nil {
		if err := a.db.Ping(r.Context()); err != nil {
			a.log.Warn("health check database ping failed", "error", err)
			resp["status"] = "unhealthy"
			resp["database"] = "disconnected"
			code = http.StatusServiceUnavailable
		} else {
			resp["database"] = "connected"
		}
	}
	writeJSON(w, code, resp)
}

func (a *api) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}

	var (
		results []gasdb.KnowledgeEntry
		err     error
	)
	if a.db != nil {
		results, err = a.db.SearchKnowledge(r.Context(), q, gasdb.DefaultSearchLimit)
		if err != nil {
			a.log.Error("knowledge search failed", "query", q, "error", err)
			writeError(w, http.StatusInternalServerError, "Knowledge search failed")
			return
		}
	} else {
		results = gasdb.SearchBuiltin(q, gasdb.DefaultSearchLimit)
	}
	if results == nil {
		results = []gasdb.KnowledgeEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"query":     q,
		"results":   results,
		"count":     len(results),
		"timestamp": a.timestamp(),
	})
}

func (a *api) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, source := gasdb.StaticProducts(), "static"
	if a.db != nil {
		fromDB, err := a.db.Products(r.Context())
		switch {
		case err != nil:
			a.log.Warn("product query failed, serving static list", "error", err)
		case len(fromDB) > 0:
			products, source = fromDB, "database"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"source":    source,
		"products":  products,
		"count":     len(products),
		"timestamp": a.timestamp(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"status": "error", "error": msg})
}
