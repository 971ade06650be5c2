package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inferd/internal/config"
	"inferd/pkg/types"
)

// Service defines the methods required by the HTTP API layer. The manager
// implements it.
type Service interface {
	Models() []config.ModelSpec
	Acquire(ctx context.Context, model string) (string, error)
	Release(model string)
	ReportBackendError(model string)
	Status() types.StatusResponse
	Reset(model string) error
	Ready() bool
}

// NewMux builds the proxy's router: the OpenAI-compatible surface, status
// and health endpoints, metrics, and the admin reset route.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	created := time.Now().Unix()

	// ListModels godoc
	// @Summary  List registered models
	// @Produce  json
	// @Success  200 {object} types.ModelList
	// @Router   /v1/models [get]
	r.Get("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		list := types.ModelList{Object: "list"}
		for _, m := range svc.Models() {
			list.Data = append(list.Data, types.ModelObject{
				ID:      m.Name,
				Object:  "model",
				Created: created,
				OwnedBy: "inferd",
			})
		}
		writeJSON(w, http.StatusOK, list)
	})

	// Both completion surfaces share the forwarding path; only the body
	// shape differs, and the proxy does not interpret it.
	r.Post("/v1/chat/completions", proxyHandler(svc))
	r.Post("/v1/completions", proxyHandler(svc))

	// Status godoc
	// @Summary  Instance and GPU status
	// @Produce  json
	// @Success  200 {object} types.StatusResponse
	// @Router   /status [get]
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Post("/admin/models/{model}/reset", func(w http.ResponseWriter, r *http.Request) {
		model := chi.URLParam(r, "model")
		if err := svc.Reset(model); err != nil {
			writeServiceError(w, r, model, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"model": model, "reset": true})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("shutting down"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
