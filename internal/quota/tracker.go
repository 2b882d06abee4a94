package quota

import (
	"fmt"
	"strings"
	"time"
)

// MonthKey formats t's calendar month as the key used for per-month counts
// ("2006-01", UTC). The event repository groups its counts the same way.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Tracker answers whether individual event timestamps are importable under
// an organization's plan. It is built from the counts persisted at
// construction time and consumes capacity as events are admitted, so it must
// be rebuilt for every gating decision (import creation, every batch) rather
// than reused across requests.
type Tracker struct {
	plan      Plan
	earliest  time.Time
	latest    time.Time
	remaining map[string]int64
}

// WindowStart returns the first instant of the oldest calendar month the
// plan's historical window reaches, counting back from now.
func WindowStart(plan Plan, now time.Time) time.Time {
	return startOfMonth(now.UTC()).AddDate(0, -(plan.HistoricalWindowMonths - 1), 0)
}

// NewTracker builds a tracker from the plan and the organization's existing
// per-month event counts, keyed by MonthKey. The allowed window is the
// plan's historical window of calendar months ending at now.
func NewTracker(plan Plan, monthlyCounts map[string]int64, now time.Time) *Tracker {
	now = now.UTC()
	windowStart := WindowStart(plan, now)

	remaining := make(map[string]int64, plan.HistoricalWindowMonths)
	for m := windowStart; !m.After(now); m = m.AddDate(0, 1, 0) {
		key := MonthKey(m)
		left := plan.MonthlyEventLimit - monthlyCounts[key]
		if left < 0 {
			left = 0
		}
		remaining[key] = left
	}

	return &Tracker{
		plan:      plan,
		earliest:  windowStart,
		latest:    now,
		remaining: remaining,
	}
}

// EarliestAllowedDate is the start of the oldest importable month.
func (t *Tracker) EarliestAllowedDate() time.Time { return t.earliest }

// LatestAllowedDate is the newest importable timestamp (tracker creation
// time; future events are never importable).
func (t *Tracker) LatestAllowedDate() time.Time { return t.latest }

// CanImportEvent reports whether an event at ts fits the allowed window and
// its month still has remaining capacity. Admitting an event consumes one
// unit of that month's capacity, so capacity never goes negative even within
// a single batch.
func (t *Tracker) CanImportEvent(ts time.Time) bool {
	ts = ts.UTC()
	if ts.Before(t.earliest) || ts.After(t.latest) {
		return false
	}
	key := MonthKey(ts)
	left, ok := t.remaining[key]
	if !ok || left <= 0 {
		return false
	}
	t.remaining[key] = left - 1
	return true
}

// Summary describes the tracker's window for client hints and error messages.
type Summary struct {
	OldestAllowedMonth  time.Time `json:"oldestAllowedMonth"`
	TotalMonthsInWindow int       `json:"totalMonthsInWindow"`
	MonthsAtCapacity    int       `json:"monthsAtCapacity"`
}

// Summary returns the current window summary. MonthsAtCapacity reflects
// capacity already consumed through this tracker as well as persisted usage.
func (t *Tracker) Summary() Summary {
	atCapacity := 0
	for _, left := range t.remaining {
		if left <= 0 {
			atCapacity++
		}
	}
	return Summary{
		OldestAllowedMonth:  t.earliest,
		TotalMonthsInWindow: len(t.remaining),
		MonthsAtCapacity:    atCapacity,
	}
}

// Describe renders a month-by-month explanation of why events were rejected,
// suitable for surfacing directly to the user.
func (t *Tracker) Describe() string {
	var full []string
	for m := t.earliest; !m.After(t.latest); m = m.AddDate(0, 1, 0) {
		if t.remaining[MonthKey(m)] <= 0 {
			full = append(full, m.Format("Jan 2006"))
		}
	}
	window := fmt.Sprintf("your plan allows importing events from %s onward (%d months of history)",
		t.earliest.Format("Jan 2, 2006"), t.plan.HistoricalWindowMonths)
	if len(full) == 0 {
		return window
	}
	return fmt.Sprintf("%s; months already at their %d-event capacity: %s",
		window, t.plan.MonthlyEventLimit, strings.Join(full, ", "))
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
