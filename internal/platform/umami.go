package platform

import (
	"strings"
	"time"

	"app/internal/model"
)

// PlatformUmami identifies Umami CSV exports.
const PlatformUmami = "umami"

// umamiMapping maps Umami's website-event export columns onto the canonical
// raw shape. Umami encodes event type numerically: 1 = pageview, 2 = custom
// event.
type umamiMapping struct{}

func (umamiMapping) Name() string { return PlatformUmami }

func (umamiMapping) Columns() []string {
	return []string{
		"session_id", "distinct_id", "hostname", "browser", "os", "device",
		"country", "subdivision1", "city",
		"url_path", "url_query", "page_title",
		"referrer_domain", "referrer_path",
		"event_type", "event_name", "created_at",
	}
}

func (umamiMapping) MapRow(row map[string]string) RawEvent {
	referrer := row["referrer_domain"]
	if path := row["referrer_path"]; path != "" {
		referrer += path
	}
	return RawEvent{
		SessionID:   row["session_id"],
		DistinctID:  row["distinct_id"],
		Hostname:    row["hostname"],
		Browser:     row["browser"],
		OS:          row["os"],
		Device:      row["device"],
		Country:     row["country"],
		Region:      row["subdivision1"],
		City:        row["city"],
		Pathname:    row["url_path"],
		QueryString: strings.TrimPrefix(row["url_query"], "?"),
		PageTitle:   row["page_title"],
		Referrer:    referrer,
		EventType:   row["event_type"],
		EventName:   row["event_name"],
		CreatedAt:   row["created_at"],
	}
}

func (umamiMapping) Transform(raw RawEvent, siteID, importID, eventID string, ts time.Time) model.ImportedEvent {
	eventType := model.EventTypePageview
	if raw.EventType == "2" || raw.EventName != "" {
		eventType = model.EventTypeCustomEvent
	}
	return model.ImportedEvent{
		ID:          eventID,
		SiteID:      siteID,
		ImportID:    importID,
		SessionID:   raw.SessionID,
		UserID:      raw.DistinctID,
		Hostname:    raw.Hostname,
		Browser:     raw.Browser,
		OS:          raw.OS,
		Device:      raw.Device,
		Country:     raw.Country,
		Region:      raw.Region,
		City:        raw.City,
		Pathname:    raw.Pathname,
		QueryString: raw.QueryString,
		PageTitle:   raw.PageTitle,
		Referrer:    raw.Referrer,
		Type:        eventType,
		EventName:   raw.EventName,
		Timestamp:   ts.UTC(),
	}
}
