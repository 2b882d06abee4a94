package model

import "time"

// ImportStatus is the lifecycle state of an import. Transitions only move
// forward: pending -> processing -> completed|failed.
type ImportStatus string

const (
	ImportPending    ImportStatus = "pending"
	ImportProcessing ImportStatus = "processing"
	ImportCompleted  ImportStatus = "completed"
	ImportFailed     ImportStatus = "failed"
)

// Valid reports whether s is a known status value.
func (s ImportStatus) Valid() bool {
	switch s {
	case ImportPending, ImportProcessing, ImportCompleted, ImportFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions may leave s.
func (s ImportStatus) Terminal() bool {
	return s == ImportCompleted || s == ImportFailed
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition. Terminal states reject everything.
func (s ImportStatus) CanTransitionTo(next ImportStatus) bool {
	switch s {
	case ImportPending:
		return next == ImportProcessing || next == ImportFailed
	case ImportProcessing:
		return next == ImportCompleted || next == ImportFailed
	default:
		return false
	}
}

// ImportRecord is the durable record of one import attempt. The repository
// is the single writer of Status, Platform and ImportedEvents.
type ImportRecord struct {
	ID             string       `db:"id" json:"importId"`
	SiteID         string       `db:"site_id" json:"siteId"`
	OrganizationID string       `db:"organization_id" json:"organizationId"`
	Platform       string       `db:"platform" json:"platform,omitempty"`
	Status         ImportStatus `db:"status" json:"status"`
	ImportedEvents int64        `db:"imported_events" json:"importedEvents"`
	ErrorMessage   string       `db:"error_message" json:"errorMessage,omitempty"`
	FileName       string       `db:"file_name" json:"fileName"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updatedAt"`
}
