package handler

import (
	"errors"
	"net/http"

	"app/internal/middleware"
	"app/internal/repository"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// ReplayHandler handles session-replay recording deletion.
type ReplayHandler struct {
	replayService service.ReplayService
	siteRepo      repository.SiteRepository
	logger        zerolog.Logger
}

// NewReplayHandler creates a new ReplayHandler.
func NewReplayHandler(replayService service.ReplayService, siteRepo repository.SiteRepository, logger zerolog.Logger) *ReplayHandler {
	return &ReplayHandler{replayService: replayService, siteRepo: siteRepo, logger: logger}
}

// RegisterRoutes mounts the replay endpoints.
func (h *ReplayHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("DELETE /sites/{siteID}/replays/{recordingID}", authMw(http.HandlerFunc(h.deleteRecording)))
}

// deleteRecording godoc
// @Summary Delete a session-replay recording
// @Tags replays
// @Param siteID path string true "Site ID"
// @Param recordingID path string true "Recording ID"
// @Success 204 {string} string "No Content"
// @Failure 404 {object} dto.ErrorResponse "Recording not found"
// @Router /sites/{siteID}/replays/{recordingID} [delete]
func (h *ReplayHandler) deleteRecording(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "user not found in context", nil)
		return
	}
	siteID := r.PathValue("siteID")
	site, err := h.siteRepo.GetByID(r.Context(), siteID)
	if err != nil {
		h.logger.Error().Err(err).Str("site_id", siteID).Msg("Failed to resolve site")
		writeError(w, http.StatusInternalServerError, "internal", "failed to resolve site", nil)
		return
	}
	if site == nil {
		writeError(w, http.StatusNotFound, "not_found", "site not found", nil)
		return
	}
	ok, err := h.siteRepo.HasAdminAccess(r.Context(), userID, siteID)
	if err != nil {
		h.logger.Error().Err(err).Str("site_id", siteID).Msg("Failed to check site access")
		writeError(w, http.StatusInternalServerError, "internal", "failed to check site access", nil)
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden", "admin access to this site is required", nil)
		return
	}

	if err := h.replayService.DeleteRecording(r.Context(), siteID, r.PathValue("recordingID")); err != nil {
		if errors.Is(err, repository.ErrRecordingNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "recording not found", nil)
			return
		}
		h.logger.Error().Err(err).Str("site_id", siteID).Msg("Failed to delete recording")
		writeError(w, http.StatusInternalServerError, "internal", "failed to delete recording", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
