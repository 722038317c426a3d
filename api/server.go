// Package api exposes the dispatch backend over HTTP: session lifecycle,
// work order operations and the alerting surface. Handlers return errors;
// a shared boundary maps error classes onto HTTP status codes so individual
// handlers never touch status-code logic.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/christianmcgivern/tech-app/errors"
	"github.com/christianmcgivern/tech-app/notify"
	"github.com/christianmcgivern/tech-app/realtime"
	"github.com/christianmcgivern/tech-app/session"
	"github.com/christianmcgivern/tech-app/workorder"
)

const maxRequestSize = 1 << 20 // 1MB

// Server bundles the domain registries behind the REST surface.
type Server struct {
	sessions *session.Registry
	orders   *workorder.Registry
	alerts   *notify.Manager
	notifier *notify.Service
	rtConfig realtime.Config
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates the API server. rtConfig is the realtime configuration
// new sessions are created with.
func NewServer(
	sessions *session.Registry,
	orders *workorder.Registry,
	alerts *notify.Manager,
	notifier *notify.Service,
	rtConfig realtime.Config,
	opts ...Option,
) *Server {
	s := &Server{
		sessions: sessions,
		orders:   orders,
		alerts:   alerts,
		notifier: notifier,
		rtConfig: rtConfig,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes mounts the API on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", s.handle(s.createSession))
	mux.HandleFunc("GET /api/sessions/{id}", s.handle(s.getSession))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handle(s.deleteSession))

	mux.HandleFunc("POST /api/work-orders", s.handle(s.createOrder))
	mux.HandleFunc("GET /api/work-orders/{id}", s.handle(s.getOrder))
	mux.HandleFunc("POST /api/work-orders/{id}/assign", s.handle(s.assignOrder))
	mux.HandleFunc("POST /api/work-orders/{id}/start", s.handle(s.startOrder))
	mux.HandleFunc("POST /api/work-orders/{id}/complete", s.handle(s.completeOrder))
	mux.HandleFunc("POST /api/work-orders/{id}/cancel", s.handle(s.cancelOrder))
	mux.HandleFunc("POST /api/work-orders/{id}/hold", s.handle(s.holdOrder))
	mux.HandleFunc("POST /api/work-orders/{id}/resume", s.handle(s.resumeOrder))
	mux.HandleFunc("PUT /api/work-orders/{id}/location", s.handle(s.updateLocation))
	mux.HandleFunc("GET /api/queue", s.handle(s.getQueue))

	mux.HandleFunc("POST /api/alerts/equipment", s.handle(s.equipmentAlert))
	mux.HandleFunc("POST /api/alerts/inventory", s.handle(s.inventoryAlert))
	mux.HandleFunc("GET /api/alerts", s.handle(s.listAlerts))
	mux.HandleFunc("POST /api/alerts/{id}/acknowledge", s.handle(s.acknowledgeAlert))

	mux.HandleFunc("GET /api/notifications/unread", s.handle(s.unreadCount))
	mux.HandleFunc("POST /api/notifications/{id}/read", s.handle(s.markRead))
}

// handlerFunc is an HTTP handler that reports failure as an error instead of
// writing status codes itself.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle is the error boundary: it tags each request with an id, runs the
// handler and maps any returned error onto an HTTP status.
func (s *Server) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
		defer r.Body.Close()

		if err := fn(w, r); err != nil {
			status := errorStatus(err)
			if status >= http.StatusInternalServerError {
				s.logger.Error("request failed",
					"method", r.Method, "path", r.URL.Path,
					"request_id", requestID, "error", err)
			} else {
				s.logger.Warn("request rejected",
					"method", r.Method, "path", r.URL.Path,
					"request_id", requestID, "error", err)
			}
			writeError(w, status, err)
		}
	}
}

// errorStatus maps error classes onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, errors.ErrOrderNotFound),
		errors.Is(err, errors.ErrSessionGone):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrDuplicateOrder):
		return http.StatusConflict
	case errors.Is(err, errors.ErrInvalidStatus):
		return http.StatusConflict
	case errors.Is(err, errors.ErrSessionLimit),
		errors.Is(err, errors.ErrPoolExhausted):
		return http.StatusTooManyRequests
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	case errors.IsTransient(err):
		if strings.Contains(err.Error(), "timeout") {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":  sanitizeError(status, err),
		"status": status,
	})
}

// sanitizeError keeps client-caused errors verbatim and hides internals.
func sanitizeError(status int, err error) string {
	if status >= http.StatusInternalServerError {
		return "internal server error"
	}
	if status == http.StatusServiceUnavailable {
		return "service temporarily unavailable"
	}
	if status == http.StatusGatewayTimeout {
		return "request timeout"
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

func decodeBody(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return errors.WrapInvalid(err, "api", "decodeBody", "parse request body")
	}
	return nil
}
