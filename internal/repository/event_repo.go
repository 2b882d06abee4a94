package repository

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository is the event-store interface the import pipeline writes
// to and reads usage counts from.
type EventRepository interface {
	// BulkInsert writes a batch of canonical events in one operation and
	// returns the number of rows written.
	BulkInsert(ctx context.Context, events []model.ImportedEvent) (int64, error)
	// MonthlyEventCounts returns the organization's persisted event counts
	// per calendar month (keyed "YYYY-MM", UTC) from the given time onward.
	MonthlyEventCounts(ctx context.Context, organizationID string, from time.Time) (map[string]int64, error)
	// DeleteByImport removes all events a given import wrote.
	DeleteByImport(ctx context.Context, importID string) (int64, error)
}

type eventRepo struct {
	pool *pgxpool.Pool
}

// NewEventRepo creates a new EventRepository.
func NewEventRepo(pool *pgxpool.Pool) EventRepository {
	return &eventRepo{pool: pool}
}

var eventColumns = []string{
	"id", "site_id", "import_id", "session_id", "user_id",
	"hostname", "browser", "operating_system", "device",
	"country", "region", "city",
	"pathname", "query_string", "page_title", "referrer",
	"event_type", "event_name", "timestamp",
}

func (r *eventRepo) BulkInsert(ctx context.Context, events []model.ImportedEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	n, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"events"},
		eventColumns,
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			e := events[i]
			return []any{
				e.ID, e.SiteID, e.ImportID, e.SessionID, e.UserID,
				e.Hostname, e.Browser, e.OS, e.Device,
				e.Country, e.Region, e.City,
				e.Pathname, e.QueryString, e.PageTitle, e.Referrer,
				e.Type, e.EventName, e.Timestamp,
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("bulk inserting %d events: %w", len(events), err)
	}
	return n, nil
}

func (r *eventRepo) MonthlyEventCounts(ctx context.Context, organizationID string, from time.Time) (map[string]int64, error) {
	const q = `
		SELECT to_char(date_trunc('month', e.timestamp AT TIME ZONE 'UTC'), 'YYYY-MM') AS month, COUNT(*)
		FROM events e
		JOIN sites s ON s.id = e.site_id
		WHERE s.organization_id = $1
		  AND e.timestamp >= $2
		GROUP BY month
	`
	rows, err := r.pool.Query(ctx, q, organizationID, from)
	if err != nil {
		return nil, fmt.Errorf("counting monthly events for organization %s: %w", organizationID, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var month string
		var count int64
		if err := rows.Scan(&month, &count); err != nil {
			return nil, fmt.Errorf("scanning monthly count row: %w", err)
		}
		counts[month] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating monthly count rows: %w", err)
	}
	return counts, nil
}

func (r *eventRepo) DeleteByImport(ctx context.Context, importID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE import_id = $1`, importID)
	if err != nil {
		return 0, fmt.Errorf("deleting events of import %s: %w", importID, err)
	}
	return tag.RowsAffected(), nil
}
