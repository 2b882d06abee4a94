package model

import "time"

// Site is a tracked website owned by an organization.
type Site struct {
	ID             string    `db:"id" json:"siteId"`
	OrganizationID string    `db:"organization_id" json:"organizationId"`
	Domain         string    `db:"domain" json:"domain"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// Organization groups sites under one subscription plan. PlanID selects the
// quota tier (historical window and monthly event cap).
type Organization struct {
	ID        string    `db:"id" json:"organizationId"`
	Name      string    `db:"name" json:"name"`
	PlanID    string    `db:"plan_id" json:"planId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ReplayRecording is a stored session-replay recording. Only deletion is in
// scope here; capture and playback live elsewhere.
type ReplayRecording struct {
	ID        string    `db:"id" json:"recordingId"`
	SiteID    string    `db:"site_id" json:"siteId"`
	SessionID string    `db:"session_id" json:"sessionId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
