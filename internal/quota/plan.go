package quota

// Plan is a subscription tier's import allowance: how many calendar months
// of history may be backfilled and how many events each month may hold.
type Plan struct {
	ID                     string
	HistoricalWindowMonths int
	MonthlyEventLimit      int64
}

var plans = map[string]Plan{
	"free":       {ID: "free", HistoricalWindowMonths: 6, MonthlyEventLimit: 100_000},
	"pro":        {ID: "pro", HistoricalWindowMonths: 24, MonthlyEventLimit: 1_000_000},
	"enterprise": {ID: "enterprise", HistoricalWindowMonths: 60, MonthlyEventLimit: 10_000_000},
}

// PlanByID returns the plan for the given ID. Unknown IDs fall back to the
// free tier so a misconfigured organization is bounded, not unbounded.
func PlanByID(id string) Plan {
	if p, ok := plans[id]; ok {
		return p
	}
	return plans["free"]
}
