package unlock

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

// Request is the POST /unlock body. ViewerID is optional and, when given,
// must match the authenticated subject.
type Request struct {
	ViewerID string `json:"viewer_id,omitempty"`
	TargetID string `json:"target_id"`
}

type Response struct {
	Status   Status `json:"status"`
	TargetID string `json:"target_id"`
}

func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	sub, _ := identity.SubjectFromContext(r.Context())
	var req Request
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.logger.Debugw("invalid unlock payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.ViewerID != "" && req.ViewerID != sub {
		utilities.WriteError(w, http.StatusForbidden, "viewer does not match credential")
		return
	}
	st, err := h.svc.Unlock(r.Context(), sub, req.TargetID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, Response{Status: st, TargetID: req.TargetID})
}

// Check handles GET /unlock/{targetId}.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	sub, _ := identity.SubjectFromContext(r.Context())
	target := r.PathValue("targetId")
	ok, err := h.svc.IsUnlocked(r.Context(), sub, target)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, map[string]any{"target_id": target, "is_unlocked": ok})
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidViewer):
		utilities.WriteErrorReason(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_VIEWER")
	case errors.Is(err, ErrInvalidTarget):
		utilities.WriteErrorReason(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_TARGET")
	case errors.Is(err, repo.ErrNotFound):
		utilities.WriteErrorReason(w, http.StatusNotFound, "account not found", "NOT_FOUND")
	case errors.Is(err, repo.ErrStoreUnavailable):
		h.logger.Warnw("store unavailable", "err", err)
		utilities.WriteErrorReason(w, http.StatusServiceUnavailable, "store unavailable, retry", "STORE_UNAVAILABLE")
	default:
		h.logger.Errorw("unlock failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
