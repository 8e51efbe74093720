// Package httpapi is the client-facing HTTP surface of the gateway.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmgate/internal/gateway"
	"llmgate/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels(ctx context.Context, forceRefresh bool) ([]types.ModelDescriptor, error)
	OpenChat(ctx context.Context, id string, req types.ChatRequest) (ChatStream, error)
	Abort(id string) bool
	StartServer(ctx context.Context) (types.StartResponse, error)
	Status() types.StatusResponse
	Ready() bool
}

// ChatStream is an opened chat: a meta event, then Relay emits the rest.
type ChatStream interface {
	Meta() types.StreamEvent
	Relay(emit func(types.StreamEvent) error) error
	Close()
}

// gatewayService adapts *gateway.Gateway to Service.
type gatewayService struct{ *gateway.Gateway }

func (s gatewayService) OpenChat(ctx context.Context, id string, req types.ChatRequest) (ChatStream, error) {
	c, err := s.Gateway.OpenChat(ctx, id, req)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// MaxContextBytes reports the live prompt budget so uploads can be cut early.
func (s gatewayService) MaxContextBytes() int { return s.Assembler().MaxBytes() }

// FromGateway exposes a Gateway as a Service.
func FromGateway(g *gateway.Gateway) Service { return gatewayService{g} }

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}
	// Compression applies to JSON only; NDJSON and SSE stay unbuffered.
	r.Use(middleware.Compress(5, "application/json"))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		models, err := svc.ListModels(r.Context(), wantsRefresh(r))
		if err != nil {
			status := writeError(w, err)
			log := requestLogger(middleware.GetReqID(r.Context()))
			log.Warn().Int("status", status).Err(err).Msg("list models failed")
			return
		}
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
	})

	r.Post("/chat", chatHandler(svc, decodeChatBody))
	r.Get("/chat", chatHandler(svc, decodeChatQuery))
	r.Post("/chat/{id}/abort", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !svc.Abort(id) {
			writeJSONError(w, http.StatusNotFound, "no active chat "+strconv.Quote(id))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "aborted", "request_id": id})
	})
	r.Post("/attachments", attachmentsHandler)

	r.Post("/server/start", func(w http.ResponseWriter, r *http.Request) {
		if !startLimiter.Load().Allow() {
			IncrementBackpressure("start_rate_limit")
			writeJSONErrorKind(w, http.StatusTooManyRequests, "model server start requested too often", "rate_limited")
			return
		}
		resp, err := svc.StartServer(r.Context())
		if err != nil {
			status := writeError(w, err)
			log := requestLogger(middleware.GetReqID(r.Context()))
			log.Warn().Int("status", status).Err(err).Msg("model server start failed")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("model server not ready"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if swaggerEnabled.Load() {
		MountSwagger(r)
	}
	return r
}

func wantsRefresh(r *http.Request) bool {
	v := strings.TrimSpace(r.URL.Query().Get("refresh"))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn().Err(err).Msg("encode response")
	}
}
