package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRecordingNotFound is returned when a session-replay recording does not
// exist for the given site.
var ErrRecordingNotFound = errors.New("recording_not_found")

// ReplayRepository stores session-replay recording metadata. Only lookup and
// deletion are needed by the import surface.
type ReplayRepository interface {
	GetByID(ctx context.Context, siteID, recordingID string) (*model.ReplayRecording, error)
	Delete(ctx context.Context, siteID, recordingID string) error
}

type replayRepo struct {
	pool *pgxpool.Pool
}

// NewReplayRepo creates a new ReplayRepository.
func NewReplayRepo(pool *pgxpool.Pool) ReplayRepository {
	return &replayRepo{pool: pool}
}

func (r *replayRepo) GetByID(ctx context.Context, siteID, recordingID string) (*model.ReplayRecording, error) {
	const q = `SELECT id, site_id, session_id, created_at FROM replay_recordings WHERE id = $1 AND site_id = $2`
	var rec model.ReplayRecording
	err := r.pool.QueryRow(ctx, q, recordingID, siteID).Scan(&rec.ID, &rec.SiteID, &rec.SessionID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching recording %s: %w", recordingID, err)
	}
	return &rec, nil
}

func (r *replayRepo) Delete(ctx context.Context, siteID, recordingID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM replay_recordings WHERE id = $1 AND site_id = $2`, recordingID, siteID)
	if err != nil {
		return fmt.Errorf("deleting recording %s: %w", recordingID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recording %s: %w", recordingID, ErrRecordingNotFound)
	}
	return nil
}
