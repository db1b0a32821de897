// Package web exposes the mapped entities over HTTP. Routes are derived
// from the registered schema: every entity gets CRUD endpoints for the
// operations it enables, authenticable entities additionally get a session
// endpoint. Stateless design, the bearer token is the only session state.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/victorteokw/docmap/adapters/metrics"
	"github.com/victorteokw/docmap/adapters/session"
	"github.com/victorteokw/docmap/core/engine"
	"github.com/victorteokw/docmap/core/fault"
	"github.com/victorteokw/docmap/core/registry"
	"github.com/victorteokw/docmap/core/schema"
	"github.com/victorteokw/docmap/ports"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the entity API.
type Handler struct {
	engine   *engine.Engine
	registry *registry.Registry
	tokens   *session.TokenService
	uploads  ports.Uploader
	uploadFS http.Handler
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

// Deps contains dependencies for the API handler.
type Deps struct {
	Engine    *engine.Engine
	Registry  *registry.Registry
	Tokens    *session.TokenService
	Uploads   ports.Uploader
	UploadDir string
	Metrics   *metrics.Collector
	Logger    zerolog.Logger
}

// NewHandler creates the API handler.
func NewHandler(deps Deps) *Handler {
	h := &Handler{
		engine:   deps.Engine,
		registry: deps.Registry,
		tokens:   deps.Tokens,
		uploads:  deps.Uploads,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With().Str("component", "web").Logger(),
	}
	if deps.UploadDir != "" {
		h.uploadFS = http.StripPrefix("/uploads/", http.FileServer(http.Dir(deps.UploadDir)))
	}
	return h
}

// Router builds the route tree from the registered schema.
func (h *Handler) Router(metricsPath string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)
	r.Use(h.authenticate)

	for _, ent := range h.registry.All() {
		h.mount(r, ent)
	}

	if h.uploads != nil {
		r.Post("/uploads", h.handleUpload)
		if h.uploadFS != nil {
			r.Get("/uploads/*", h.uploadFS.ServeHTTP)
		}
	}

	if h.metrics != nil && metricsPath != "" {
		r.Method(http.MethodGet, metricsPath, promhttp.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	return r
}

// mount registers one entity's routes under its plural collection path.
func (h *Handler) mount(r chi.Router, ent *schema.Entity) {
	base := "/" + ent.Collection

	if ent.Allows(schema.OpCreate) {
		r.Post(base, h.handleCreate(ent))
	}
	if ent.Allows(schema.OpRead) {
		r.Get(base, h.handleList(ent))
		r.Get(base+"/{id}", h.handleGet(ent))
		for _, f := range ent.Fields {
			if f.Type == schema.TypeInverse {
				r.Get(base+"/{id}/"+f.Name, h.handleRelated(ent, f.Name))
			}
		}
	}
	if ent.Allows(schema.OpUpdate) {
		r.Patch(base+"/{id}", h.handleUpdate(ent))
	}
	if ent.Allows(schema.OpDelete) {
		r.Delete(base+"/{id}", h.handleDelete(ent))
	}

	// Entities with identity and secret fields can open sessions.
	if _, ok := ent.SecretField(); ok && len(ent.AuthIdentityFields()) > 0 {
		r.Post(base+"/session", h.handleSession(ent))
	}
}

type ctxKey int

const callerKey ctxKey = 0

// authenticate resolves the bearer token into a caller identity. Requests
// without a token proceed unauthenticated; policy decides what they may do.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")
		if raw == header {
			h.writeFaults(w, nil, fault.List{fault.New(fault.KindAuthMismatch, "", "malformed authorization header")})
			return
		}
		ident, err := h.tokens.Verify(raw)
		if err != nil {
			if h.metrics != nil {
				h.metrics.AuthFailures.WithLabelValues("bad_token").Inc()
			}
			h.writeFaults(w, nil, fault.List{fault.New(fault.KindAuthMismatch, "", "invalid or expired token")})
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), ident)))
	})
}

// logRequests emits one structured line per request and feeds HTTP metrics.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		h.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", elapsed).
			Msg("request")

		if h.metrics != nil {
			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = r.URL.Path
			}
			h.metrics.RequestsTotal.WithLabelValues(r.Method, pattern, statusText(ww.Status())).Inc()
			h.metrics.RequestDuration.WithLabelValues(r.Method, pattern).Observe(elapsed.Seconds())
		}
	})
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

func decodeBody(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeFaults renders an error response. caller is used to pick between
// 401 and 403 for denied operations.
func (h *Handler) writeFaults(w http.ResponseWriter, caller *schema.Identity, faults fault.List) {
	writeJSON(w, statusFor(caller, faults), map[string]any{
		"error": map[string]any{"faults": faults},
	})
}

// writeError renders any engine error.
func (h *Handler) writeError(w http.ResponseWriter, caller *schema.Identity, err error) {
	var list fault.List
	if errors.As(err, &list) {
		h.writeFaults(w, caller, list)
		return
	}
	var f fault.Fault
	if errors.As(err, &f) {
		h.writeFaults(w, caller, fault.List{f})
		return
	}
	h.logger.Error().Err(err).Msg("unhandled error")
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error": map[string]any{"faults": fault.AsList(err)},
	})
}

func statusFor(caller *schema.Identity, faults fault.List) int {
	if len(faults) == 0 {
		return http.StatusInternalServerError
	}
	first := faults[0]
	switch first.Kind {
	case fault.KindAuthDenied:
		if caller == nil {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case fault.KindAuthMismatch:
		return http.StatusUnauthorized
	case fault.KindDuplicateValue:
		return http.StatusConflict
	case fault.KindBrokenReference:
		// Record-level absence is 404; a bad foreign key in the body is a
		// client error like any other field fault.
		if first.Field == "" {
			return http.StatusNotFound
		}
		return http.StatusUnprocessableEntity
	case fault.KindStoreTimeout, fault.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}
