package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/soochol/chatflow/internal/auth"
	"github.com/soochol/chatflow/internal/runtime"
	"github.com/soochol/chatflow/internal/services"
	"github.com/soochol/chatflow/internal/storage"
)

type Server struct {
	flowSvc     *services.FlowService
	executor    *runtime.Executor
	tokens      *auth.Tokens
	storage     storage.Store
	metrics     http.Handler
	limiter     *runtime.Limiter
	corsOrigins []string
}

func NewServer(flowSvc *services.FlowService, executor *runtime.Executor, tokens *auth.Tokens) *Server {
	return &Server{
		flowSvc:     flowSvc,
		executor:    executor,
		tokens:      tokens,
		corsOrigins: []string{"*"},
	}
}

// SetStorage configures the avatar blob store.
func (s *Server) SetStorage(store storage.Store) {
	s.storage = store
}

// SetMetricsHandler mounts h at /metrics.
func (s *Server) SetMetricsHandler(h http.Handler) {
	s.metrics = h
}

// SetLimiter exposes runtime concurrency stats on /api/runtime/stats.
func (s *Server) SetLimiter(l *runtime.Limiter) {
	s.limiter = l
}

// SetCORSOrigins restricts the allowed browser origins.
func (s *Server) SetCORSOrigins(origins []string) {
	if len(origins) > 0 {
		s.corsOrigins = origins
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.tokens.Middleware)
		r.Route("/flows", func(r chi.Router) {
			r.Post("/", s.createFlow)
			r.Get("/", s.listFlows)
			r.Get("/{id}", s.getFlow)
			r.Patch("/{id}", s.updateFlowMeta)
			r.Put("/{id}", s.replaceGraph)
			r.Delete("/{id}", s.deleteFlow)
			r.Post("/{id}/nodes", s.addNode)
			r.Patch("/{id}/nodes/{nodeId}", s.updateNode)
			r.Delete("/{id}/nodes/{nodeId}", s.removeNode)
			r.Post("/{id}/edges", s.connect)
			r.Delete("/{id}/edges/{edgeId}", s.disconnect)
			r.Post("/{id}/validate", s.validateFlow)
			r.Post("/{id}/publish", s.publishFlow)
			r.Post("/{id}/unpublish", s.unpublishFlow)
		})
		r.Get("/node-types", s.listNodeTypes)
		r.Get("/suggestions", s.suggestions)
		r.Route("/runtime", func(r chi.Router) {
			r.Post("/messages", s.postMessage)
			r.Get("/conversations/{contactId}", s.getConversation)
			r.Get("/stats", s.runtimeStats)
		})
		r.Route("/avatars", func(r chi.Router) {
			r.Post("/", s.uploadAvatar)
			r.Get("/{key}", s.serveAvatar)
			r.Delete("/{key}", s.deleteAvatar)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// tenant returns the tenant of the authenticated caller. The auth
// middleware guarantees one is present under /api.
func tenant(r *http.Request) string {
	id, _ := auth.FromContext(r.Context())
	return id.TenantID
}
