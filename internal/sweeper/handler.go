package sweeper

import (
	"log/slog"
	"net/http"

	"payrouter/internal/common/api"
)

// Handler exposes a manual sweep trigger. The scheduled trigger carries no
// payload; this endpoint takes none either.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates the sweep trigger endpoint.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// ServeHTTP runs one sweep. A completed sweep is always 200 even if
// individual payments failed; 500 means the sweep itself could not run.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteError(w, http.StatusMethodNotAllowed, api.ErrCodeBadRequest, "POST required")
		return
	}

	summary, err := h.service.Run(r.Context())
	if err != nil {
		h.logger.Error("manual retry sweep failed", "error", err)
		api.InternalError(w, err.Error())
		return
	}

	api.WriteData(w, http.StatusOK, summary)
}
