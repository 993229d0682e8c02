package handler

import (
	"net/http"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/core/service"
)

// SessionTokenHeader optionally names the caller's own session on
// GET /auth/sessions so it can be flagged as current.
const SessionTokenHeader = "X-Session-Token"

// handleListSessions handles GET /auth/sessions?user_id=.
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrMissingArgument.Code, domain.ErrMissingArgument.Message, "user_id is required")
		return
	}

	sessions, err := h.auth.ListSessions(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	var currentHash string
	if tok := r.Header.Get(SessionTokenHeader); tok != "" {
		currentHash = domain.HashToken(tok)
	}

	items := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, sessionToResponse(s, currentHash))
	}
	h.writeJSON(w, r, http.StatusOK, items)
}

// handleRenewSession handles POST /auth/session/renew.
func (h *Handler) handleRenewSession(w http.ResponseWriter, r *http.Request) {
	var req RenewSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.auth.RenewSession(r.Context(), &service.RenewSessionRequest{
		Token:     req.SessionToken,
		UserID:    req.UserID,
		IPAddress: orDefault(req.IPAddress, clientIP(r)),
		UserAgent: orDefault(req.UserAgent, r.UserAgent()),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, TokenResponse{SessionToken: resp.Token})
}

// handleInvalidateSession handles POST /auth/session/invalidate.
func (h *Handler) handleInvalidateSession(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.auth.InvalidateSession(r.Context(), req.SessionToken); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, nil)
}

// handleInvalidateOthers handles POST /auth/session/invalidate-others.
func (h *Handler) handleInvalidateOthers(w http.ResponseWriter, r *http.Request) {
	var req InvalidateOthersRequest
	if !h.decode(w, r, &req) {
		return
	}

	n, err := h.auth.InvalidateOtherSessions(r.Context(), req.SessionToken, req.UserID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, InvalidateOthersResponse{Invalidated: n})
}

// handleValidateSession handles POST /auth/session/validate.
func (h *Handler) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	var req ValidateSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.auth.ValidateSession(r.Context(), &service.ValidateSessionRequest{
		Token:           req.SessionToken,
		UserID:          req.UserID,
		AllowRestricted: req.AllowRestricted,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, ValidateSessionResponse{
		UserID:     session.UserID,
		Restricted: session.Restricted,
		ExpiresAt:  optionalTime(session.ExpiresAt),
	})
}
