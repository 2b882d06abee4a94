package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/quota"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// ErrOrganizationNotFound is returned when quota state is requested for an
// unknown organization.
var ErrOrganizationNotFound = errors.New("organization_not_found")

// QuotaService derives a fresh quota tracker for an organization. Capacity
// depends on counts that change under concurrent imports and live traffic,
// so a tracker is rebuilt for every gating decision and never cached.
type QuotaService interface {
	TrackerFor(ctx context.Context, organizationID string) (*quota.Tracker, error)
}

type quotaService struct {
	siteRepo  repository.SiteRepository
	eventRepo repository.EventRepository
	now       func() time.Time
	logger    zerolog.Logger
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(siteRepo repository.SiteRepository, eventRepo repository.EventRepository, logger zerolog.Logger) QuotaService {
	return &quotaService{
		siteRepo:  siteRepo,
		eventRepo: eventRepo,
		now:       time.Now,
		logger:    logger.With().Str("service", "QuotaService").Logger(),
	}
}

func (s *quotaService) TrackerFor(ctx context.Context, organizationID string) (*quota.Tracker, error) {
	org, err := s.siteRepo.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("resolving organization for quota check: %w", err)
	}
	if org == nil {
		return nil, fmt.Errorf("organization %s: %w", organizationID, ErrOrganizationNotFound)
	}

	plan := quota.PlanByID(org.PlanID)
	now := s.now()
	counts, err := s.eventRepo.MonthlyEventCounts(ctx, organizationID, quota.WindowStart(plan, now))
	if err != nil {
		return nil, fmt.Errorf("loading monthly event counts: %w", err)
	}

	tracker := quota.NewTracker(plan, counts, now)
	s.logger.Debug().
		Str("organization_id", organizationID).
		Str("plan", plan.ID).
		Int("months_in_window", tracker.Summary().TotalMonthsInWindow).
		Msg("Quota tracker derived")
	return tracker, nil
}
