package handler

import (
	"net/http"

	"github.com/yndnr/authmesh-go/internal/core/service"
)

// handleLogin handles POST /auth/login.
//
// Empty fields are not rejected here: they go through the service so an
// empty password fails exactly like a wrong one.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.auth.Login(r.Context(), &service.LoginRequest{
		Login:     req.Login,
		Password:  req.Password,
		IPAddress: orDefault(req.IPAddress, clientIP(r)),
		UserAgent: orDefault(req.UserAgent, r.UserAgent()),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, LoginResponse{
		SessionToken: resp.Token,
		NeedsMfa:     resp.NeedsMfa,
	})
}

// handleLogout handles POST /auth/logout.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.auth.Logout(r.Context(), req.SessionToken); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, nil)
}
