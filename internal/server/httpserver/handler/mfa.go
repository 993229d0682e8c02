package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/core/service"
)

// handleMfaVerify handles POST /auth/mfa/verify.
func (h *Handler) handleMfaVerify(w http.ResponseWriter, r *http.Request) {
	var req MfaVerifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.auth.MfaVerify(r.Context(), &service.MfaVerifyRequest{
		Token:     req.SessionToken,
		Code:      req.TotpOrCode,
		IPAddress: orDefault(req.IPAddress, clientIP(r)),
		UserAgent: orDefault(req.UserAgent, r.UserAgent()),
	})
	if err != nil {
		var locked *domain.LockedError
		if errors.As(err, &locked) {
			w.Header().Set("Retry-After", retryAfterSeconds(locked.RetryAfter))
		}
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, TokenResponse{SessionToken: resp.Token})
}

// handleMfaSetup handles POST /auth/mfa/setup.
func (h *Handler) handleMfaSetup(w http.ResponseWriter, r *http.Request) {
	var req MfaSetupRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.User.IsZero() {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrMissingArgument.Code, domain.ErrMissingArgument.Message, "user.id or user.login is required")
		return
	}

	resp, err := h.auth.MfaSetup(r.Context(), req.User)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, MfaSetupResponse{
		Secret:        resp.Secret,
		OTPAuthURL:    resp.OTPAuthURL,
		RecoveryCodes: resp.RecoveryCodes,
	})
}

// handleMfaDisable handles POST /auth/mfa/disable.
func (h *Handler) handleMfaDisable(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.auth.MfaDisable(r.Context(), req.SessionToken); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, nil)
}

// handleMfaResetRecovery handles POST /auth/mfa/reset-recovery.
func (h *Handler) handleMfaResetRecovery(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	codes, err := h.auth.MfaResetRecovery(r.Context(), req.SessionToken)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, RecoveryCodesResponse{RecoveryCodes: codes})
}

// retryAfterSeconds rounds d up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	return strconv.FormatInt(max(secs, 1), 10)
}
