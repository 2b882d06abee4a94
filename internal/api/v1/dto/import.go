package dto

import (
	"time"

	"app/internal/model"
	"app/internal/platform"
	"app/internal/quota"
)

// CreateImportRequest starts a new import for a site.
type CreateImportRequest struct {
	Platform string `json:"platform" validate:"omitempty,oneof=umami"`
	FileName string `json:"fileName" validate:"required,max=255"`
}

// CreateImportResponse returns the new import's ID and the quota-derived
// date range the client parser should pre-filter against.
type CreateImportResponse struct {
	ImportID               string    `json:"importId"`
	EarliestAllowedDate    time.Time `json:"earliestAllowedDate"`
	LatestAllowedDate      time.Time `json:"latestAllowedDate"`
	HistoricalWindowMonths int       `json:"historicalWindowMonths"`
}

// SubmitBatchRequest carries one bounded batch of raw events. Batch indices
// are idempotency/diagnostic hints, not sequencing guarantees. TotalBatches
// is 0 while the client is still streaming the file and only carries the
// true total on the final batch.
type SubmitBatchRequest struct {
	BatchIndex   int                 `json:"batchIndex" validate:"min=0"`
	TotalBatches int                 `json:"totalBatches" validate:"min=0"`
	Events       []platform.RawEvent `json:"events" validate:"required,min=1"`
}

// SubmitBatchResponse reports the per-batch outcome.
type SubmitBatchResponse struct {
	Success        bool   `json:"success"`
	ImportedCount  int64  `json:"importedCount"`
	DroppedByQuota int    `json:"droppedByQuota,omitempty"`
	Message        string `json:"message,omitempty"`
}

// ImportResponseDTO is one import summary in list/complete responses.
type ImportResponseDTO struct {
	ImportID       string    `json:"importId"`
	SiteID         string    `json:"siteId"`
	Platform       string    `json:"platform,omitempty"`
	Status         string    `json:"status"`
	ImportedEvents int64     `json:"importedEvents"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	FileName       string    `json:"fileName"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewImportResponseDTO maps an import record into its API shape.
func NewImportResponseDTO(rec *model.ImportRecord) ImportResponseDTO {
	return ImportResponseDTO{
		ImportID:       rec.ID,
		SiteID:         rec.SiteID,
		Platform:       rec.Platform,
		Status:         string(rec.Status),
		ImportedEvents: rec.ImportedEvents,
		ErrorMessage:   rec.ErrorMessage,
		FileName:       rec.FileName,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

// ErrorResponse is the uniform error payload: a machine-distinguishable
// code plus a human-readable message. Quota failures attach the window
// summary explaining why.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Quota   *quota.Summary `json:"quota,omitempty"`
}
