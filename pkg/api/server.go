package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Mindburn-Labs/cryptoconditions/pkg/rpc"
)

const requestIDHeader = "X-Request-ID"

// Options configure the HTTP handler.
type Options struct {
	// Limiter is consulted once per request. Nil disables rate limiting.
	Limiter LimiterStore
	// MaxBodyBytes caps request bodies. Zero means 1 MiB.
	MaxBodyBytes int64
	Logger       *slog.Logger
}

type handler struct {
	rpc     *rpc.Server
	maxBody int64
	logger  *slog.Logger
}

// NewHandler exposes srv over HTTP:
//
//	POST /rpc            {"method": ..., "params": {...}}
//	POST /rpc/{method}   params object as the body
//	GET  /methods        method table
//	GET  /healthz        liveness
func NewHandler(srv *rpc.Server, opts Options) http.Handler {
	h := &handler{rpc: srv, maxBody: opts.MaxBodyBytes, logger: opts.Logger}
	if h.maxBody <= 0 {
		h.maxBody = 1 << 20
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "api")

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(h.accessLog)
	if opts.Limiter != nil {
		r.Use(rateLimit(opts.Limiter, h.logger))
	}
	r.NotFound(WriteNotFound)
	r.MethodNotAllowed(WriteMethodNotAllowed)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"status": "ok"})
	})
	r.Get("/methods", h.methods)
	r.Post("/rpc", h.envelope)
	r.Post("/rpc/{method}", h.method)
	return r
}

func (h *handler) envelope(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.rpc.Handle(r.Context(), body))
}

func (h *handler) method(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var params map[string]any
	if err := json.Unmarshal(body, &params); err != nil || params == nil {
		WriteBadRequest(w, r, "params is not an object")
		return
	}
	out, err := h.rpc.Call(r.Context(), chi.URLParam(r, "method"), params)
	if err != nil {
		writeJSON(w, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, out)
}

func (h *handler) methods(w http.ResponseWriter, r *http.Request) {
	out, err := h.rpc.Call(r.Context(), "listMethods", map[string]any{})
	if err != nil {
		WriteInternal(w, r, err)
		return
	}
	writeJSON(w, out)
}

func (h *handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WritePayloadTooLarge(w, r, h.maxBody)
			return nil, false
		}
		WriteBadRequest(w, r, "Unable to read request body")
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

// requestID propagates the caller's X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", w.Header().Get(requestIDHeader),
		)
	})
}

// rateLimit admits requests per client IP. Limiter failures let the
// request through.
func rateLimit(store LimiterStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := store.Allow(r.Context(), clientIP(r), 1)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable", "error", err)
			} else if !allowed {
				WriteTooManyRequests(w, r, 1)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = strings.TrimSuffix(strings.TrimPrefix(r.RemoteAddr, "["), "]")
	}
	return ip
}
