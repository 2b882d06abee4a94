package platform

import (
	"testing"
	"time"

	"app/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2025-03-15 12:30:45")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.March, 15, 12, 30, 45, 0, time.UTC), ts)

	_, err = ParseTimestamp("")
	assert.ErrorIs(t, err, ErrMissingTimestamp)

	_, err = ParseTimestamp("15/03/2025")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingTimestamp)
}

func TestUmamiMapRow(t *testing.T) {
	m, err := ForName(PlatformUmami)
	require.NoError(t, err)

	raw := m.MapRow(map[string]string{
		"session_id":      "sess-1",
		"distinct_id":     "user-1",
		"hostname":        "example.com",
		"browser":         "firefox",
		"os":              "Linux",
		"device":          "desktop",
		"country":         "DE",
		"subdivision1":    "BE",
		"city":            "Berlin",
		"url_path":        "/pricing",
		"url_query":       "?ref=newsletter",
		"page_title":      "Pricing",
		"referrer_domain": "news.ycombinator.com",
		"referrer_path":   "/item",
		"event_type":      "1",
		"created_at":      "2025-03-15 12:30:45",
	})

	assert.Equal(t, "sess-1", raw.SessionID)
	assert.Equal(t, "user-1", raw.DistinctID)
	assert.Equal(t, "BE", raw.Region)
	assert.Equal(t, "/pricing", raw.Pathname)
	assert.Equal(t, "ref=newsletter", raw.QueryString, "leading ? is stripped")
	assert.Equal(t, "news.ycombinator.com/item", raw.Referrer)
	assert.Equal(t, "2025-03-15 12:30:45", raw.CreatedAt)
}

func TestUmamiMapRowMissingColumns(t *testing.T) {
	m, err := ForName(PlatformUmami)
	require.NoError(t, err)

	raw := m.MapRow(map[string]string{"url_path": "/"})
	assert.Equal(t, "/", raw.Pathname)
	assert.Empty(t, raw.Referrer)
	assert.Empty(t, raw.CreatedAt)
}

func TestUmamiTransform(t *testing.T) {
	m, err := ForName(PlatformUmami)
	require.NoError(t, err)
	ts := time.Date(2025, time.March, 15, 12, 30, 45, 0, time.UTC)

	pageview := m.Transform(RawEvent{EventType: "1", Pathname: "/"}, "site-1", "imp-1", "evt-1", ts)
	assert.Equal(t, model.EventTypePageview, pageview.Type)
	assert.Equal(t, "site-1", pageview.SiteID)
	assert.Equal(t, "imp-1", pageview.ImportID)
	assert.Equal(t, "evt-1", pageview.ID)
	assert.Equal(t, ts, pageview.Timestamp)

	custom := m.Transform(RawEvent{EventType: "2", EventName: "signup"}, "site-1", "imp-1", "evt-2", ts)
	assert.Equal(t, model.EventTypeCustomEvent, custom.Type)
	assert.Equal(t, "signup", custom.EventName)

	// A named event is custom even when the numeric type says pageview.
	named := m.Transform(RawEvent{EventType: "1", EventName: "checkout"}, "site-1", "imp-1", "evt-3", ts)
	assert.Equal(t, model.EventTypeCustomEvent, named.Type)
}

func TestForNameUnknown(t *testing.T) {
	_, err := ForName("plausible")
	assert.Error(t, err)
}

func TestDetect(t *testing.T) {
	assert.Equal(t, PlatformUmami, Detect(PlatformUmami))
	assert.Equal(t, PlatformUmami, Detect(""))
	assert.Equal(t, PlatformUmami, Detect("something-else"))
}
