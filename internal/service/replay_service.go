package service

import (
	"context"

	"app/internal/repository"

	"github.com/rs/zerolog"
)

// ReplayService exposes the session-replay lifecycle bookend the import
// surface needs: authorized deletion of a recording.
type ReplayService interface {
	DeleteRecording(ctx context.Context, siteID, recordingID string) error
}

type replayService struct {
	replayRepo repository.ReplayRepository
	logger     zerolog.Logger
}

// NewReplayService creates a new ReplayService.
func NewReplayService(replayRepo repository.ReplayRepository, logger zerolog.Logger) ReplayService {
	return &replayService{
		replayRepo: replayRepo,
		logger:     logger.With().Str("service", "ReplayService").Logger(),
	}
}

func (s *replayService) DeleteRecording(ctx context.Context, siteID, recordingID string) error {
	rec, err := s.replayRepo.GetByID(ctx, siteID, recordingID)
	if err != nil {
		return err
	}
	if rec == nil {
		return repository.ErrRecordingNotFound
	}
	if err := s.replayRepo.Delete(ctx, siteID, recordingID); err != nil {
		return err
	}
	s.logger.Info().Str("site_id", siteID).Str("recording_id", recordingID).Msg("Replay recording deleted")
	return nil
}
