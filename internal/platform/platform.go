package platform

import (
	"fmt"
	"time"

	"app/internal/model"
)

// TimestampLayout is the fixed textual timestamp format carried by raw
// events on the wire. Timestamps are interpreted as UTC.
const TimestampLayout = "2006-01-02 15:04:05"

// RawEvent is one source row after column mapping and before
// transformation: a fixed set of string fields in canonical naming. It is
// ephemeral, existing only between the client parser and the server-side
// transformer.
type RawEvent struct {
	SessionID   string `json:"session_id"`
	DistinctID  string `json:"distinct_id"`
	Hostname    string `json:"hostname"`
	Browser     string `json:"browser"`
	OS          string `json:"os"`
	Device      string `json:"device"`
	Country     string `json:"country"`
	Region      string `json:"region"`
	City        string `json:"city"`
	Pathname    string `json:"url_path"`
	QueryString string `json:"url_query"`
	PageTitle   string `json:"page_title"`
	Referrer    string `json:"referrer"`
	EventType   string `json:"event_type"`
	EventName   string `json:"event_name"`
	CreatedAt   string `json:"created_at"`
}

// ParseTimestamp parses a raw event timestamp. The empty string is reported
// distinctly so callers can count missing timestamps as skips rather than
// errors.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, ErrMissingTimestamp
	}
	t, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// ErrMissingTimestamp marks a row that carries no creation timestamp.
var ErrMissingTimestamp = errMissingTimestamp{}

type errMissingTimestamp struct{}

func (errMissingTimestamp) Error() string { return "missing timestamp" }

// Mapping converts one source platform's export rows into canonical events.
type Mapping interface {
	// Name is the platform identifier persisted on the import record.
	Name() string
	// Columns lists the source columns the mapping consumes; the client
	// parser drops everything else before upload.
	Columns() []string
	// MapRow builds a RawEvent from a source row keyed by column name.
	MapRow(row map[string]string) RawEvent
	// Transform converts a raw event into the event-store schema, tagged
	// with the site and import that produced it.
	Transform(raw RawEvent, siteID, importID, eventID string, ts time.Time) model.ImportedEvent
}

var mappings = map[string]Mapping{
	PlatformUmami: umamiMapping{},
}

// ForName returns the mapping for a platform name.
func ForName(name string) (Mapping, error) {
	m, ok := mappings[name]
	if !ok {
		return nil, fmt.Errorf("unsupported platform %q", name)
	}
	return m, nil
}

// Detect picks the platform for an import whose platform is still unset.
// With a single supported source this is deterministic; future mappings
// would inspect the declared platform or the row shape.
func Detect(declared string) string {
	if _, ok := mappings[declared]; ok {
		return declared
	}
	return PlatformUmami
}
