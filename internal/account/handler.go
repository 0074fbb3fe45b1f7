package account

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/identity"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/pkg/utilities"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Me returns the caller's own record, unlock set included.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	sub, _ := identity.SubjectFromContext(r.Context())
	a, err := h.svc.Get(r.Context(), sub)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, a)
}

// Update handles PATCH /accounts/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	sub, _ := identity.SubjectFromContext(r.Context())
	var req ProfileUpdate
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.logger.Debugw("invalid profile payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	a, err := h.svc.UpdateProfile(r.Context(), sub, r.PathValue("id"), req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		utilities.WriteError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, ErrForbidden):
		utilities.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidPatch):
		utilities.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, repo.ErrStoreUnavailable):
		h.logger.Warnw("store unavailable", "err", err)
		utilities.WriteError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		h.logger.Errorw("account request failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
