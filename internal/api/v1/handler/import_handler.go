package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ImportHandler handles the import lifecycle endpoints for a site.
type ImportHandler struct {
	importService service.ImportService
	siteRepo      repository.SiteRepository
	validate      *validator.Validate
	maxBatchRows  int
	logger        zerolog.Logger
}

// NewImportHandler creates a new ImportHandler. maxBatchRows caps the event
// count a single batch request may carry.
func NewImportHandler(importService service.ImportService, siteRepo repository.SiteRepository, validate *validator.Validate, maxBatchRows int, logger zerolog.Logger) *ImportHandler {
	return &ImportHandler{
		importService: importService,
		siteRepo:      siteRepo,
		validate:      validate,
		maxBatchRows:  maxBatchRows,
		logger:        logger,
	}
}

// RegisterRoutes mounts the import endpoints.
func (h *ImportHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("POST /sites/{siteID}/imports", authMw(http.HandlerFunc(h.createImport)))
	mux.Handle("GET /sites/{siteID}/imports", authMw(http.HandlerFunc(h.listImports)))
	mux.Handle("POST /sites/{siteID}/imports/{importID}/batches", authMw(http.HandlerFunc(h.submitBatch)))
	mux.Handle("POST /sites/{siteID}/imports/{importID}/complete", authMw(http.HandlerFunc(h.completeImport)))
	mux.Handle("DELETE /sites/{siteID}/imports/{importID}", authMw(http.HandlerFunc(h.deleteImport)))
}

// authorizeSite resolves the site from the path and verifies the
// authenticated user has admin access to it. It writes the error response
// itself and returns nil when the request must not proceed.
func (h *ImportHandler) authorizeSite(w http.ResponseWriter, r *http.Request) *model.Site {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "user not found in context", nil)
		return nil
	}
	siteID := r.PathValue("siteID")
	site, err := h.siteRepo.GetByID(r.Context(), siteID)
	if err != nil {
		h.logger.Error().Err(err).Str("site_id", siteID).Msg("Failed to resolve site")
		writeError(w, http.StatusInternalServerError, "internal", "failed to resolve site", nil)
		return nil
	}
	if site == nil {
		writeError(w, http.StatusNotFound, "not_found", "site not found", nil)
		return nil
	}
	ok, err := h.siteRepo.HasAdminAccess(r.Context(), userID, siteID)
	if err != nil {
		h.logger.Error().Err(err).Str("site_id", siteID).Msg("Failed to check site access")
		writeError(w, http.StatusInternalServerError, "internal", "failed to check site access", nil)
		return nil
	}
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden", "admin access to this site is required", nil)
		return nil
	}
	return site
}

// createImport godoc
// @Summary Create an import
// @Description Creates a new import for the site, gated by the organization's concurrency limit, and returns the allowed date range.
// @Tags imports
// @Accept json
// @Produce json
// @Param siteID path string true "Site ID"
// @Param import body dto.CreateImportRequest true "Import creation request"
// @Success 201 {object} dto.CreateImportResponse
// @Failure 429 {object} dto.ErrorResponse "Too many concurrent imports"
// @Router /sites/{siteID}/imports [post]
func (h *ImportHandler) createImport(w http.ResponseWriter, r *http.Request) {
	site := h.authorizeSite(w, r)
	if site == nil {
		return
	}
	var req dto.CreateImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid request payload", nil)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error(), nil)
		return
	}

	result, err := h.importService.CreateImport(r.Context(), site, req.Platform, req.FileName)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.CreateImportResponse{
		ImportID:               result.Record.ID,
		EarliestAllowedDate:    result.EarliestAllowedDate,
		LatestAllowedDate:      result.LatestAllowedDate,
		HistoricalWindowMonths: result.HistoricalWindowMonths,
	})
}

// listImports godoc
// @Summary List imports for a site
// @Tags imports
// @Produce json
// @Param siteID path string true "Site ID"
// @Success 200 {array} dto.ImportResponseDTO
// @Router /sites/{siteID}/imports [get]
func (h *ImportHandler) listImports(w http.ResponseWriter, r *http.Request) {
	site := h.authorizeSite(w, r)
	if site == nil {
		return
	}
	imports, err := h.importService.ListImports(r.Context(), site.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	resp := make([]dto.ImportResponseDTO, 0, len(imports))
	for i := range imports {
		resp = append(resp, dto.NewImportResponseDTO(&imports[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// submitBatch godoc
// @Summary Submit one batch of raw events
// @Description Re-validates quota and import state, transforms the surviving rows and writes them to the event store.
// @Tags imports
// @Accept json
// @Produce json
// @Param siteID path string true "Site ID"
// @Param importID path string true "Import ID"
// @Param batch body dto.SubmitBatchRequest true "Event batch"
// @Success 200 {object} dto.SubmitBatchResponse
// @Failure 409 {object} dto.ErrorResponse "Import already terminal"
// @Failure 422 {object} dto.ErrorResponse "Batch fully rejected by quota"
// @Router /sites/{siteID}/imports/{importID}/batches [post]
func (h *ImportHandler) submitBatch(w http.ResponseWriter, r *http.Request) {
	site := h.authorizeSite(w, r)
	if site == nil {
		return
	}
	var req dto.SubmitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid request payload", nil)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error(), nil)
		return
	}
	if h.maxBatchRows > 0 && len(req.Events) > h.maxBatchRows {
		writeError(w, http.StatusBadRequest, "validation",
			fmt.Sprintf("batch exceeds the %d-event limit", h.maxBatchRows), nil)
		return
	}

	result, err := h.importService.IngestBatch(r.Context(), site, r.PathValue("importID"), req.BatchIndex, req.TotalBatches, req.Events)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SubmitBatchResponse{
		Success:        true,
		ImportedCount:  result.ImportedCount,
		DroppedByQuota: result.DroppedByQuota,
		Message:        result.Message,
	})
}

// completeImport godoc
// @Summary Mark an import as completed
// @Description Called by the client after all batches have been accepted.
// @Tags imports
// @Produce json
// @Param siteID path string true "Site ID"
// @Param importID path string true "Import ID"
// @Success 200 {object} dto.ImportResponseDTO
// @Router /sites/{siteID}/imports/{importID}/complete [post]
func (h *ImportHandler) completeImport(w http.ResponseWriter, r *http.Request) {
	site := h.authorizeSite(w, r)
	if site == nil {
		return
	}
	rec, err := h.importService.CompleteImport(r.Context(), site, r.PathValue("importID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewImportResponseDTO(rec))
}

// deleteImport godoc
// @Summary Delete an import and its imported events
// @Tags imports
// @Param siteID path string true "Site ID"
// @Param importID path string true "Import ID"
// @Success 204 {string} string "No Content"
// @Failure 404 {object} dto.ErrorResponse "Import not found"
// @Router /sites/{siteID}/imports/{importID} [delete]
func (h *ImportHandler) deleteImport(w http.ResponseWriter, r *http.Request) {
	site := h.authorizeSite(w, r)
	if site == nil {
		return
	}
	if err := h.importService.DeleteImport(r.Context(), site, r.PathValue("importID")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps service-layer errors onto the uniform error
// payload so every rejection carries a machine-distinguishable code.
func (h *ImportHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var quotaErr *service.QuotaExceededError
	switch {
	case errors.Is(err, repository.ErrTooManyActiveImports):
		writeError(w, http.StatusTooManyRequests, "concurrency_limit",
			"too many concurrent imports for this organization, wait for one to finish", nil)
	case errors.Is(err, repository.ErrImportNotFound):
		writeError(w, http.StatusNotFound, "not_found", "import not found", nil)
	case errors.Is(err, service.ErrImportTerminal):
		writeError(w, http.StatusConflict, "import_terminal", "import already finished", nil)
	case errors.Is(err, repository.ErrStatusConflict):
		writeError(w, http.StatusConflict, "status_conflict", "import is not in the expected state", nil)
	case errors.As(err, &quotaErr):
		summary := quotaErr.Summary
		writeError(w, http.StatusUnprocessableEntity, "quota_exceeded", quotaErr.Detail, &summary)
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Unhandled service error")
		writeError(w, http.StatusInternalServerError, "internal", "internal server error", nil)
	}
}
