package directory

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

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

// viewerID returns the verified subject. A viewerId query parameter is only
// accepted as a cross-check of the credential; without one the caller is
// anonymous whatever the query says.
func viewerID(r *http.Request) (string, bool) {
	sub, authed := identity.SubjectFromContext(r.Context())
	if !authed {
		return "", true
	}
	if q := r.URL.Query().Get("viewerId"); q != "" && q != sub {
		return "", false
	}
	return sub, true
}

// List streams the listing as a JSON array without buffering it.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerID(r)
	if !ok {
		utilities.WriteError(w, http.StatusForbidden, "viewerId does not match credential")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	_, _ = w.Write([]byte("["))
	n := 0
	for p := range h.svc.ListTargets(r.Context(), viewer) {
		if n > 0 {
			_, _ = w.Write([]byte(","))
		}
		if err := enc.Encode(p); err != nil {
			h.logger.Debugw("listing write aborted", "err", err)
			return
		}
		n++
	}
	_, _ = w.Write([]byte("]\n"))
	h.logger.Debugw("listing served", "viewer", viewer, "count", n)
}

// Get handles GET /profiles/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerID(r)
	if !ok {
		utilities.WriteError(w, http.StatusForbidden, "viewerId does not match credential")
		return
	}
	p, err := h.svc.Profile(r.Context(), viewer, r.PathValue("id"))
	if err != nil {
		if IsNotFound(err) {
			utilities.WriteError(w, http.StatusNotFound, "profile not found")
			return
		}
		h.logger.Warnw("profile lookup failed", "err", err)
		utilities.WriteError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, p)
}
