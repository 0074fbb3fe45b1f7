package maintenance

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/pkg/utilities"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// SweepRequest is the POST /maintenance/sweep body. PreserveEmails extend
// the configured policy for this run only.
type SweepRequest struct {
	Mode           string   `json:"mode"`
	PreserveEmails []string `json:"preserve_emails,omitempty"`
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.logger.Debugw("invalid sweep payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	mode, err := ParseMode(req.Mode)
	if err != nil {
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.SweepWithPolicy(r.Context(), mode, h.svc.Policy().WithEmails(req.PreserveEmails...))
	if err != nil {
		h.logger.Warnw("sweep aborted", "mode", mode, "err", err)
		utilities.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "sweep aborted", "results": res})
		return
	}
	utilities.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "results": res})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Stats(r.Context())
	if err != nil {
		h.logger.Warnw("stats aborted", "err", err)
		utilities.WriteError(w, http.StatusServiceUnavailable, "stats unavailable")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, rep)
}

func (h *Handler) Details(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.AccountDetails(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.DeleteAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		utilities.WriteError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, repo.ErrStoreUnavailable):
		h.logger.Warnw("store unavailable", "err", err)
		utilities.WriteError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		h.logger.Errorw("maintenance request failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
