package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/core/service"
	"github.com/yndnr/authmesh-go/internal/telemetry/logger"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

// Handler serves the AuthMesh API.
type Handler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

// New creates a Handler. A nil logger uses slog.Default().
func New(auth *service.AuthService, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		auth:   auth,
		logger: l.With("component", "http_handler"),
	}
}

// Routes returns the API routes keyed by ServeMux pattern. The router
// wraps each one with its middleware.
func (h *Handler) Routes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"POST /auth/login":                     h.handleLogin,
		"POST /auth/logout":                    h.handleLogout,
		"POST /auth/mfa/verify":                h.handleMfaVerify,
		"POST /auth/mfa/setup":                 h.handleMfaSetup,
		"POST /auth/mfa/disable":               h.handleMfaDisable,
		"POST /auth/mfa/reset-recovery":        h.handleMfaResetRecovery,
		"GET /auth/sessions":                   h.handleListSessions,
		"POST /auth/session/renew":             h.handleRenewSession,
		"POST /auth/session/invalidate":        h.handleInvalidateSession,
		"POST /auth/session/invalidate-others": h.handleInvalidateOthers,
		"POST /auth/session/validate":          h.handleValidateSession,
	}
}

// HealthRoutes returns the probe routes.
func (h *Handler) HealthRoutes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"GET /health": h.handleHealth,
		"GET /ready":  h.handleReady,
	}
}

// writeJSON writes a success envelope.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message, details string) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewErrorResponse(requestID, code, message, details)); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}

// handleServiceError converts service errors to HTTP responses. Server
// errors are logged with their cause and answered with a bare
// AM-SYS-5000; nothing about the storage failure reaches the client.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if !errors.As(err, &de) || errorCodeToHTTPStatus(de.Code) >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"request_id", logger.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		status := http.StatusInternalServerError
		code := domain.ErrInternalServer.Code
		message := domain.ErrInternalServer.Message
		if de != nil && de.Code == domain.ErrServiceUnavailable.Code {
			status, code, message = http.StatusServiceUnavailable, de.Code, de.Message
		}
		h.writeError(w, r, status, code, message, "")
		return
	}

	details := de.Details
	switch domain.KindOf(de) {
	case domain.KindInvalidAuthentication, domain.KindSessionInvalid, domain.KindMfaInvalid:
		// Authentication outcomes carry no detail.
		details = ""
	}
	h.writeError(w, r, errorCodeToHTTPStatus(de.Code), de.Code, de.Message, details)
}

// decode reads a JSON body into dst. It writes the 400 itself and reports
// whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, http.StatusRequestEntityTooLarge, domain.ErrBadRequest.Code, "request body too large", "")
			return false
		}
		h.writeError(w, r, http.StatusBadRequest, domain.ErrBadRequest.Code, "invalid request body", "")
		return false
	}
	return true
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4030"):
		return http.StatusForbidden
	case strings.HasSuffix(code, "-4010"), strings.HasSuffix(code, "-4011"):
		return http.StatusUnauthorized
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4090"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	case strings.Contains(code, "-400"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// clientIP returns the caller's address as resolved by the router
// middleware, falling back to the connection's remote address.
func clientIP(r *http.Request) string {
	if ip := logger.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// orDefault returns v unless it is empty.
func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
