package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMonthKey(t *testing.T) {
	assert.Equal(t, "2025-03", MonthKey(date(2025, time.March, 15)))
	// Keys are derived in UTC regardless of the timestamp's zone.
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, "2025-04", MonthKey(time.Date(2025, time.March, 31, 23, 0, 0, 0, est)))
}

func TestWindowStart(t *testing.T) {
	plan := PlanByID("free") // 6 months
	// From mid-March 2025 a 6-month window reaches back to October 2024.
	assert.Equal(t, date(2024, time.October, 1), WindowStart(plan, date(2025, time.March, 15)))
	// A December 31 boundary still counts December as the newest month.
	assert.Equal(t, date(2024, time.July, 1), WindowStart(plan, time.Date(2024, time.December, 31, 23, 59, 59, 0, time.UTC)))
}

func TestTrackerWindowBounds(t *testing.T) {
	now := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(PlanByID("free"), nil, now)

	assert.Equal(t, date(2024, time.October, 1), tr.EarliestAllowedDate())
	assert.Equal(t, now, tr.LatestAllowedDate())

	// Just inside the window on both ends.
	assert.True(t, tr.CanImportEvent(date(2024, time.October, 1)))
	assert.True(t, tr.CanImportEvent(now))

	// Outside: one second too old, one second in the future.
	assert.False(t, tr.CanImportEvent(time.Date(2024, time.September, 30, 23, 59, 59, 0, time.UTC)))
	assert.False(t, tr.CanImportEvent(now.Add(time.Second)))
}

func TestTrackerConsumesCapacity(t *testing.T) {
	plan := Plan{ID: "tiny", HistoricalWindowMonths: 2, MonthlyEventLimit: 3}
	now := date(2025, time.February, 10)
	tr := NewTracker(plan, map[string]int64{"2025-01": 2}, now)

	jan := date(2025, time.January, 5)
	assert.True(t, tr.CanImportEvent(jan), "one unit of January capacity left")
	assert.False(t, tr.CanImportEvent(jan), "January exhausted within the same tracker")
	assert.False(t, tr.CanImportEvent(jan), "capacity never goes negative")

	// February is untouched by January's exhaustion.
	for i := 0; i < 3; i++ {
		assert.True(t, tr.CanImportEvent(date(2025, time.February, 1)))
	}
	assert.False(t, tr.CanImportEvent(date(2025, time.February, 1)))
}

func TestTrackerOverCountedMonth(t *testing.T) {
	plan := Plan{ID: "tiny", HistoricalWindowMonths: 1, MonthlyEventLimit: 10}
	now := date(2025, time.June, 20)
	// Persisted usage already beyond the limit clamps to zero remaining.
	tr := NewTracker(plan, map[string]int64{"2025-06": 25}, now)
	assert.False(t, tr.CanImportEvent(date(2025, time.June, 1)))
}

func TestTrackerSummary(t *testing.T) {
	plan := Plan{ID: "tiny", HistoricalWindowMonths: 3, MonthlyEventLimit: 1}
	now := date(2025, time.March, 15)
	tr := NewTracker(plan, map[string]int64{"2025-01": 1}, now)

	s := tr.Summary()
	assert.Equal(t, date(2025, time.January, 1), s.OldestAllowedMonth)
	assert.Equal(t, 3, s.TotalMonthsInWindow)
	assert.Equal(t, 1, s.MonthsAtCapacity)

	// Consuming February's single unit moves it to capacity too.
	require.True(t, tr.CanImportEvent(date(2025, time.February, 2)))
	assert.Equal(t, 2, tr.Summary().MonthsAtCapacity)
}

func TestTrackerDescribe(t *testing.T) {
	plan := Plan{ID: "tiny", HistoricalWindowMonths: 3, MonthlyEventLimit: 100}
	now := date(2025, time.March, 15)

	tr := NewTracker(plan, nil, now)
	assert.Contains(t, tr.Describe(), "Jan 1, 2025")
	assert.NotContains(t, tr.Describe(), "capacity")

	full := NewTracker(plan, map[string]int64{"2025-02": 100}, now)
	desc := full.Describe()
	assert.Contains(t, desc, "Feb 2025")
	assert.Contains(t, desc, "100-event capacity")
}

func TestPlanByIDFallback(t *testing.T) {
	assert.Equal(t, "pro", PlanByID("pro").ID)
	assert.Equal(t, "free", PlanByID("no-such-plan").ID)
	assert.Equal(t, "free", PlanByID("").ID)
}
