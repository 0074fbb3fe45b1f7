package identity

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	acctentity "github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/pkg/utilities"
)

// Handler exposes HTTP endpoints for identity operations (signup / login).
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// SignupRequest request body for signup endpoint.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.logger.Debugw("invalid signup payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	var role acctentity.Role
	if req.Role != "" {
		var ok bool
		if role, ok = acctentity.ParseRole(req.Role); !ok {
			utilities.WriteError(w, http.StatusBadRequest, "unknown role")
			return
		}
	}
	sess, err := h.svc.Signup(r.Context(), req.Email, req.Password, role)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrWeakPassword):
			utilities.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrRoleNotAllowed):
			utilities.WriteError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, ErrEmailTaken):
			utilities.WriteError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Warnw("signup failed", "err", err)
			utilities.WriteError(w, http.StatusInternalServerError, "signup failed")
		}
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, sess)
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	sess, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Debugw("login failed", "err", err)
		switch {
		case errors.Is(err, ErrBadCredentials):
			utilities.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, ErrLocked):
			utilities.WriteError(w, http.StatusForbidden, "account locked")
		case errors.Is(err, ErrDisabled):
			utilities.WriteError(w, http.StatusForbidden, "account disabled")
		default:
			utilities.WriteError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}
	utilities.WriteJSON(w, http.StatusOK, sess)
}
