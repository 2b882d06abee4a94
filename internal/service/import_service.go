package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/model"
	"app/internal/platform"
	"app/internal/quota"
	"app/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrImportTerminal is returned when a batch or completion signal targets an
// import that already finished. Clients must not retry into terminal imports.
var ErrImportTerminal = errors.New("import_terminal")

// QuotaExceededError reports that every row of a first (or only) batch was
// rejected by quota, failing the import as a whole. It carries the
// month-by-month capacity summary for the user-visible message.
type QuotaExceededError struct {
	Summary quota.Summary
	Detail  string
}

func (e *QuotaExceededError) Error() string { return e.Detail }

// CreateImportResult is the outcome of a successful import creation,
// including the quota-derived date range communicated to the client so its
// parser can pre-filter rows.
type CreateImportResult struct {
	Record                 *model.ImportRecord
	EarliestAllowedDate    time.Time
	LatestAllowedDate      time.Time
	HistoricalWindowMonths int
}

// BatchResult is the per-batch ingestion outcome.
type BatchResult struct {
	ImportedCount  int64
	DroppedByQuota int
	Message        string
}

// ImportService owns the import lifecycle: concurrency-gated creation,
// batch ingestion, completion and deletion. Site authorization happens in
// the handlers; every method here assumes the caller already holds admin
// access to the site.
type ImportService interface {
	CreateImport(ctx context.Context, site *model.Site, platformName, fileName string) (*CreateImportResult, error)
	ListImports(ctx context.Context, siteID string) ([]model.ImportRecord, error)
	IngestBatch(ctx context.Context, site *model.Site, importID string, batchIndex, totalBatches int, events []platform.RawEvent) (*BatchResult, error)
	CompleteImport(ctx context.Context, site *model.Site, importID string) (*model.ImportRecord, error)
	DeleteImport(ctx context.Context, site *model.Site, importID string) error
}

// ImportServiceConfig bounds the pipeline's behavior.
type ImportServiceConfig struct {
	// MaxConcurrentImports caps pending+processing imports per organization.
	MaxConcurrentImports int
	// FailOnFirstBatch fails the whole import when its first (or only)
	// batch is entirely rejected by quota. The presumption is that a fully
	// out-of-range first batch means a misaligned file; turn it off to let
	// later batches try anyway.
	FailOnFirstBatch bool
}

type importService struct {
	importRepo repository.ImportRepository
	eventRepo  repository.EventRepository
	quotaSvc   QuotaService
	cfg        ImportServiceConfig
	logger     zerolog.Logger
}

// NewImportService creates a new ImportService.
func NewImportService(
	importRepo repository.ImportRepository,
	eventRepo repository.EventRepository,
	quotaSvc QuotaService,
	cfg ImportServiceConfig,
	logger zerolog.Logger,
) ImportService {
	return &importService{
		importRepo: importRepo,
		eventRepo:  eventRepo,
		quotaSvc:   quotaSvc,
		cfg:        cfg,
		logger:     logger.With().Str("service", "ImportService").Logger(),
	}
}

func (s *importService) CreateImport(ctx context.Context, site *model.Site, platformName, fileName string) (*CreateImportResult, error) {
	tracker, err := s.quotaSvc.TrackerFor(ctx, site.OrganizationID)
	if err != nil {
		return nil, err
	}

	rec := &model.ImportRecord{
		ID:             uuid.NewString(),
		SiteID:         site.ID,
		OrganizationID: site.OrganizationID,
		Platform:       platformName,
		FileName:       fileName,
	}
	if err := s.importRepo.CreateWithActiveLimit(ctx, rec, s.cfg.MaxConcurrentImports); err != nil {
		if errors.Is(err, repository.ErrTooManyActiveImports) {
			return nil, err
		}
		return nil, fmt.Errorf("creating import: %w", err)
	}

	s.logger.Info().
		Str("import_id", rec.ID).
		Str("site_id", site.ID).
		Str("file_name", fileName).
		Msg("Import created")

	return &CreateImportResult{
		Record:                 rec,
		EarliestAllowedDate:    tracker.EarliestAllowedDate(),
		LatestAllowedDate:      tracker.LatestAllowedDate(),
		HistoricalWindowMonths: tracker.Summary().TotalMonthsInWindow,
	}, nil
}

func (s *importService) ListImports(ctx context.Context, siteID string) ([]model.ImportRecord, error) {
	return s.importRepo.ListBySite(ctx, siteID)
}

func (s *importService) IngestBatch(ctx context.Context, site *model.Site, importID string, batchIndex, totalBatches int, events []platform.RawEvent) (*BatchResult, error) {
	rec, err := s.importRepo.GetByID(ctx, importID)
	if err != nil {
		return nil, err
	}
	// A cross-site import ID is indistinguishable from an unknown one.
	if rec == nil || rec.SiteID != site.ID {
		return nil, fmt.Errorf("import %s: %w", importID, repository.ErrImportNotFound)
	}
	if rec.Status.Terminal() {
		return nil, fmt.Errorf("import %s is %s: %w", importID, rec.Status, ErrImportTerminal)
	}

	if rec.Status == model.ImportPending {
		err := s.importRepo.UpdateStatus(ctx, importID, model.ImportPending, model.ImportProcessing)
		switch {
		case err == nil:
			s.logger.Info().Str("import_id", importID).Msg("Import processing started")
		case errors.Is(err, repository.ErrStatusConflict):
			// A concurrent batch advanced the import first.
		default:
			return nil, err
		}
		rec.Status = model.ImportProcessing
	}

	if rec.Platform == "" {
		rec.Platform = platform.Detect(rec.Platform)
		if err := s.importRepo.SetPlatform(ctx, importID, rec.Platform); err != nil {
			return nil, err
		}
		s.logger.Info().Str("import_id", importID).Str("platform", rec.Platform).Msg("Import platform detected")
	}
	mapping, err := platform.ForName(rec.Platform)
	if err != nil {
		return nil, err
	}

	// The client's pre-filter is an optimization, never a security boundary:
	// re-derive quota state from current counts and re-filter every row.
	tracker, err := s.quotaSvc.TrackerFor(ctx, site.OrganizationID)
	if err != nil {
		return nil, err
	}

	type admitted struct {
		raw platform.RawEvent
		ts  time.Time
	}
	var keep []admitted
	droppedQuota := 0
	droppedInvalid := 0
	for _, raw := range events {
		ts, err := platform.ParseTimestamp(raw.CreatedAt)
		if err != nil {
			droppedInvalid++
			continue
		}
		if !tracker.CanImportEvent(ts) {
			droppedQuota++
			continue
		}
		keep = append(keep, admitted{raw: raw, ts: ts})
	}

	if len(keep) == 0 && droppedQuota > 0 {
		firstOrOnly := batchIndex == 0 || totalBatches == 1
		if firstOrOnly && s.cfg.FailOnFirstBatch {
			detail := "no events in this batch fit the import quota: " + tracker.Describe()
			if err := s.importRepo.MarkFailed(ctx, importID, detail); err != nil {
				return nil, err
			}
			s.logger.Warn().
				Str("import_id", importID).
				Int("batch_index", batchIndex).
				Int("dropped_by_quota", droppedQuota).
				Msg("Import failed: first batch fully rejected by quota")
			return nil, &QuotaExceededError{Summary: tracker.Summary(), Detail: detail}
		}
		// A later batch may still fit; report a no-op success.
		return &BatchResult{
			ImportedCount:  0,
			DroppedByQuota: droppedQuota,
			Message:        "no importable events in batch",
		}, nil
	}

	canonical := make([]model.ImportedEvent, 0, len(keep))
	for _, a := range keep {
		canonical = append(canonical, mapping.Transform(a.raw, site.ID, rec.ID, uuid.NewString(), a.ts))
	}

	written, err := s.eventRepo.BulkInsert(ctx, canonical)
	if err != nil {
		// A failed write is a batch-level failure: the import stays
		// processing and the caller decides whether to resubmit.
		s.logger.Error().Err(err).
			Str("import_id", importID).
			Int("batch_index", batchIndex).
			Msg("Batch write failed")
		return nil, fmt.Errorf("writing batch %d of import %s: %w", batchIndex, importID, err)
	}
	if written > 0 {
		if err := s.importRepo.IncrementImportedEvents(ctx, importID, written); err != nil {
			return nil, err
		}
	}

	s.logger.Info().
		Str("import_id", importID).
		Int("batch_index", batchIndex).
		Int("batch_rows", len(events)).
		Int64("written", written).
		Int("dropped_by_quota", droppedQuota).
		Int("dropped_invalid", droppedInvalid).
		Msg("Batch ingested")

	return &BatchResult{
		ImportedCount:  written,
		DroppedByQuota: droppedQuota,
		Message:        fmt.Sprintf("imported %d of %d events", written, len(events)),
	}, nil
}

func (s *importService) CompleteImport(ctx context.Context, site *model.Site, importID string) (*model.ImportRecord, error) {
	rec, err := s.importRepo.GetByID(ctx, importID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.SiteID != site.ID {
		return nil, fmt.Errorf("import %s: %w", importID, repository.ErrImportNotFound)
	}
	if rec.Status.Terminal() {
		return nil, fmt.Errorf("import %s is %s: %w", importID, rec.Status, ErrImportTerminal)
	}
	if err := s.importRepo.UpdateStatus(ctx, importID, model.ImportProcessing, model.ImportCompleted); err != nil {
		return nil, err
	}
	rec.Status = model.ImportCompleted
	s.logger.Info().
		Str("import_id", importID).
		Int64("imported_events", rec.ImportedEvents).
		Msg("Import completed")
	return rec, nil
}

func (s *importService) DeleteImport(ctx context.Context, site *model.Site, importID string) error {
	rec, err := s.importRepo.GetByID(ctx, importID)
	if err != nil {
		return err
	}
	if rec == nil || rec.SiteID != site.ID {
		return fmt.Errorf("import %s: %w", importID, repository.ErrImportNotFound)
	}
	deleted, err := s.eventRepo.DeleteByImport(ctx, importID)
	if err != nil {
		return err
	}
	if err := s.importRepo.Delete(ctx, importID); err != nil {
		return err
	}
	s.logger.Info().
		Str("import_id", importID).
		Int64("events_deleted", deleted).
		Msg("Import deleted")
	return nil
}
