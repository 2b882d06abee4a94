package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"app/internal/platform"
)

// Parser defaults; BatchSize keeps request payloads reasonable and
// ProgressInterval keeps progress messages at a fixed row cadence instead of
// per row.
const (
	DefaultBatchSize        = 5000
	DefaultProgressInterval = 10000
	DefaultChunkBuffer      = 2

	// maxErrorDetails caps the per-row error samples carried in the final
	// summary so a pathological file cannot grow memory without bound.
	maxErrorDetails = 100

	// contextCheckInterval is how often (in rows) cancellation is checked
	// outside of channel sends.
	contextCheckInterval = 100
)

// MessageType discriminates the parser's outbound messages.
type MessageType string

const (
	MessageProgress MessageType = "progress"
	MessageChunk    MessageType = "chunk-ready"
	MessageComplete MessageType = "complete"
	MessageError    MessageType = "error"
)

// Progress is the cumulative counter snapshot emitted while parsing.
type Progress struct {
	Parsed  int
	Skipped int
	Errors  int
}

// Chunk is one emitted batch of mapped rows.
type Chunk struct {
	Index  int
	Events []platform.RawEvent
}

// Summary is the final parse accounting. ErrorDetails holds at most
// maxErrorDetails row-level samples.
type Summary struct {
	TotalParsed  int
	TotalSkipped int
	TotalErrors  int
	ErrorDetails []string
}

// Message is one outbound parser event. Exactly one payload field is set,
// selected by Type.
type Message struct {
	Type     MessageType
	Progress Progress
	Chunk    *Chunk
	Summary  *Summary
	Err      error
}

// Options configures one parse run. Earliest/Latest are the quota-derived
// bounds from import creation; UserStart/UserEnd optionally narrow them.
type Options struct {
	Platform         string
	Earliest         time.Time
	Latest           time.Time
	UserStart        *time.Time
	UserEnd          *time.Time
	BatchSize        int
	ProgressInterval int
	ChunkBuffer      int
}

// Parser streams one source file into fixed-size batches of mapped rows,
// pre-filtering by the effective date range. All counters are owned by the
// instance; construct a fresh Parser per file and communicate with it only
// through its message channel.
type Parser struct {
	opts     Options
	mapping  platform.Mapping
	earliest time.Time
	latest   time.Time
	messages chan Message

	parsed       int
	skipped      int
	errs         int
	errorDetails []string
}

// NewParser validates the options and prepares a parser. The outbound
// channel is buffered with ChunkBuffer slots: once that many unconsumed
// messages accumulate, parsing blocks, which is the backpressure bounding
// parsed-but-unsent batches.
func NewParser(opts Options) (*Parser, error) {
	mapping, err := platform.ForName(platform.Detect(opts.Platform))
	if err != nil {
		return nil, err
	}
	if opts.Earliest.IsZero() || opts.Latest.IsZero() {
		return nil, errors.New("quota date range is required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.ChunkBuffer <= 0 {
		opts.ChunkBuffer = DefaultChunkBuffer
	}

	// Effective range is the intersection of the quota range and the
	// user-chosen range.
	earliest, latest := opts.Earliest, opts.Latest
	if opts.UserStart != nil && opts.UserStart.After(earliest) {
		earliest = *opts.UserStart
	}
	if opts.UserEnd != nil && opts.UserEnd.Before(latest) {
		latest = *opts.UserEnd
	}

	return &Parser{
		opts:     opts,
		mapping:  mapping,
		earliest: earliest,
		latest:   latest,
		messages: make(chan Message, opts.ChunkBuffer),
	}, nil
}

// Messages is the parser's single outbound channel. It is closed when the
// run ends, whether by completion, cancellation or fatal error.
func (p *Parser) Messages() <-chan Message {
	return p.messages
}

// Run parses src to completion or cancellation, closing src and the message
// channel on the way out. Run is meant to be started on its own goroutine.
func (p *Parser) Run(ctx context.Context, src io.ReadCloser) {
	defer close(p.messages)
	defer src.Close()

	reader := csv.NewReader(newBOMSkippingReader(src))
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		p.send(ctx, Message{Type: MessageError, Err: fmt.Errorf("reading header row: %w", err)})
		return
	}
	colIndex := p.headerIndex(header)

	batch := make([]platform.RawEvent, 0, p.opts.BatchSize)
	chunkIndex := 0
	row := 1

	for {
		if row%contextCheckInterval == 0 && ctx.Err() != nil {
			return
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		switch {
		case errors.As(err, &parseErr):
			p.recordError(fmt.Sprintf("line %d: %v", parseErr.Line, parseErr.Err))
			row++
		case err != nil:
			// The underlying reader failed; nothing further can be parsed.
			p.send(ctx, Message{Type: MessageError, Err: fmt.Errorf("reading row %d: %w", row, err)})
			return
		default:
			row++
			raw := p.mapping.MapRow(p.rowMap(colIndex, record))
			ts, err := platform.ParseTimestamp(raw.CreatedAt)
			switch {
			case errors.Is(err, platform.ErrMissingTimestamp):
				p.skipped++
			case err != nil:
				p.recordError(fmt.Sprintf("line %d: %v", row, err))
			case ts.Before(p.earliest) || ts.After(p.latest):
				p.skipped++
			default:
				p.parsed++
				batch = append(batch, raw)
				if len(batch) >= p.opts.BatchSize {
					if !p.emitChunk(ctx, &chunkIndex, &batch) {
						return
					}
				}
			}
		}

		// Every counted row, malformed ones included, reaches this check so
		// progress keeps flowing through runs of bad input.
		if (p.parsed+p.skipped+p.errs)%p.opts.ProgressInterval == 0 {
			if !p.send(ctx, Message{Type: MessageProgress, Progress: p.progress()}) {
				return
			}
		}
	}

	if len(batch) > 0 {
		if !p.emitChunk(ctx, &chunkIndex, &batch) {
			return
		}
	}

	p.send(ctx, Message{Type: MessageComplete, Summary: &Summary{
		TotalParsed:  p.parsed,
		TotalSkipped: p.skipped,
		TotalErrors:  p.errs,
		ErrorDetails: p.errorDetails,
	}})
}

func (p *Parser) progress() Progress {
	return Progress{Parsed: p.parsed, Skipped: p.skipped, Errors: p.errs}
}

func (p *Parser) recordError(detail string) {
	p.errs++
	if len(p.errorDetails) < maxErrorDetails {
		p.errorDetails = append(p.errorDetails, detail)
	}
}

// emitChunk hands the accumulated batch off and starts a fresh one. Returns
// false when the run was cancelled mid-send.
func (p *Parser) emitChunk(ctx context.Context, chunkIndex *int, batch *[]platform.RawEvent) bool {
	events := make([]platform.RawEvent, len(*batch))
	copy(events, *batch)
	ok := p.send(ctx, Message{Type: MessageChunk, Chunk: &Chunk{Index: *chunkIndex, Events: events}})
	*chunkIndex++
	*batch = (*batch)[:0]
	return ok
}

func (p *Parser) send(ctx context.Context, msg Message) bool {
	select {
	case p.messages <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// headerIndex maps the column positions of the source columns the platform
// mapping consumes; all other columns are dropped here to shrink payloads.
func (p *Parser) headerIndex(header []string) map[string]int {
	wanted := make(map[string]bool, len(p.mapping.Columns()))
	for _, col := range p.mapping.Columns() {
		wanted[col] = true
	}
	index := make(map[string]int, len(wanted))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if wanted[name] {
			index[name] = i
		}
	}
	return index
}

func (p *Parser) rowMap(colIndex map[string]int, record []string) map[string]string {
	row := make(map[string]string, len(colIndex))
	for name, i := range colIndex {
		if i < len(record) {
			row[name] = record[i]
		}
	}
	return row
}
