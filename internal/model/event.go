package model

import "time"

// Event types accepted by the event store.
const (
	EventTypePageview    = "pageview"
	EventTypeCustomEvent = "custom_event"
)

// ImportedEvent is the canonical event-store record produced by a platform
// mapper. Events are written once and never mutated; SiteID and ImportID tag
// each row back to the import that produced it.
type ImportedEvent struct {
	ID          string    `db:"id" json:"id"`
	SiteID      string    `db:"site_id" json:"siteId"`
	ImportID    string    `db:"import_id" json:"importId"`
	SessionID   string    `db:"session_id" json:"sessionId"`
	UserID      string    `db:"user_id" json:"userId"`
	Hostname    string    `db:"hostname" json:"hostname"`
	Browser     string    `db:"browser" json:"browser"`
	OS          string    `db:"operating_system" json:"os"`
	Device      string    `db:"device" json:"device"`
	Country     string    `db:"country" json:"country"`
	Region      string    `db:"region" json:"region"`
	City        string    `db:"city" json:"city"`
	Pathname    string    `db:"pathname" json:"pathname"`
	QueryString string    `db:"query_string" json:"queryString"`
	PageTitle   string    `db:"page_title" json:"pageTitle"`
	Referrer    string    `db:"referrer" json:"referrer"`
	Type        string    `db:"event_type" json:"type"`
	EventName   string    `db:"event_name" json:"eventName,omitempty"`
	Timestamp   time.Time `db:"timestamp" json:"timestamp"`
}
