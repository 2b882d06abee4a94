package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Default retry settings for batch submission.
const (
	DefaultMaxRetries     = 5
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
)

// UploaderOptions tune batch submission retries.
type UploaderOptions struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (o *UploaderOptions) applyDefaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = DefaultInitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
}

// UploadResult aggregates the server's responses across all batches,
// combined with the parser's own summary.
type UploadResult struct {
	BatchesSent    int
	ImportedCount  int64
	DroppedByQuota int
	ParseSummary   Summary
}

// Uploader drains a parser's message stream and submits each chunk to the
// import API. It holds back one chunk so that the final submission can carry
// the true batch total; earlier submissions send 0, meaning the stream is
// still open.
type Uploader struct {
	client   *Client
	siteID   string
	importID string
	opts     UploaderOptions
	logger   zerolog.Logger
}

// NewUploader creates an uploader for a single import.
func NewUploader(client *Client, siteID, importID string, opts UploaderOptions, logger zerolog.Logger) *Uploader {
	opts.applyDefaults()
	return &Uploader{
		client:   client,
		siteID:   siteID,
		importID: importID,
		opts:     opts,
		logger:   logger.With().Str("import_id", importID).Logger(),
	}
}

// Run consumes messages until the parser completes or errors. It returns the
// aggregated result, or the first unrecoverable error. Progress messages are
// logged as they arrive.
func (u *Uploader) Run(ctx context.Context, messages <-chan Message) (*UploadResult, error) {
	result := &UploadResult{}
	var pending *Chunk

	submit := func(chunk *Chunk, totalBatches int) error {
		resp, err := u.submitWithRetry(ctx, chunk, totalBatches)
		if err != nil {
			return err
		}
		result.BatchesSent++
		result.ImportedCount += resp.ImportedCount
		result.DroppedByQuota += resp.DroppedByQuota
		u.logger.Info().
			Int("batch_index", chunk.Index).
			Int("events", len(chunk.Events)).
			Int64("imported", resp.ImportedCount).
			Int("dropped_by_quota", resp.DroppedByQuota).
			Msg("batch accepted")
		return nil
	}

	for msg := range messages {
		switch msg.Type {
		case MessageProgress:
			u.logger.Info().
				Int("parsed", msg.Progress.Parsed).
				Int("skipped", msg.Progress.Skipped).
				Int("errors", msg.Progress.Errors).
				Msg("parsing progress")
		case MessageChunk:
			if pending != nil {
				if err := submit(pending, 0); err != nil {
					return result, err
				}
			}
			pending = msg.Chunk
		case MessageComplete:
			if msg.Summary != nil {
				result.ParseSummary = *msg.Summary
			}
			if pending != nil {
				// Last chunk: the total is now known.
				if err := submit(pending, pending.Index+1); err != nil {
					return result, err
				}
				pending = nil
			}
		case MessageError:
			return result, fmt.Errorf("parsing failed: %w", msg.Err)
		}
	}
	return result, nil
}

func (u *Uploader) submitWithRetry(ctx context.Context, chunk *Chunk, totalBatches int) (resp *SubmitBatchResult, err error) {
	backoff := u.opts.InitialBackoff
	for attempt := 1; ; attempt++ {
		r, err := u.client.SubmitBatch(ctx, u.siteID, u.importID, chunk.Index, totalBatches, chunk.Events)
		if err == nil {
			return &SubmitBatchResult{ImportedCount: r.ImportedCount, DroppedByQuota: r.DroppedByQuota}, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return nil, err
		}
		if attempt >= u.opts.MaxRetries {
			return nil, fmt.Errorf("batch %d failed after %d attempts: %w", chunk.Index, attempt, err)
		}

		u.logger.Warn().
			Err(err).
			Int("batch_index", chunk.Index).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("batch submission failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > u.opts.MaxBackoff {
			backoff = u.opts.MaxBackoff
		}
	}
}

// SubmitBatchResult is the per-batch outcome the uploader aggregates.
type SubmitBatchResult struct {
	ImportedCount  int64
	DroppedByQuota int
}
