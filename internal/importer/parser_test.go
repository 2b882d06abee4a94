package importer

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"app/internal/platform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	rangeStart = time.Date(2024, time.October, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd   = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
)

func testOptions() Options {
	return Options{
		Platform:         platform.PlatformUmami,
		Earliest:         rangeStart,
		Latest:           rangeEnd,
		BatchSize:        100,
		ProgressInterval: 1_000_000,
		ChunkBuffer:      10,
	}
}

// runParser parses the CSV to completion and separates the message stream.
func runParser(t *testing.T, opts Options, csvData string) (chunks []Chunk, summary *Summary, fatal error) {
	t.Helper()
	p, err := NewParser(opts)
	require.NoError(t, err)

	go p.Run(context.Background(), io.NopCloser(strings.NewReader(csvData)))

	for msg := range p.Messages() {
		switch msg.Type {
		case MessageChunk:
			chunks = append(chunks, *msg.Chunk)
		case MessageComplete:
			summary = msg.Summary
		case MessageError:
			fatal = msg.Err
		}
	}
	return chunks, summary, fatal
}

func TestParserBatching(t *testing.T) {
	opts := testOptions()
	opts.BatchSize = 2

	csvData := "url_path,event_type,created_at\n" +
		"/a,1,2025-03-01 10:00:00\n" +
		"/b,1,2025-03-02 10:00:00\n" +
		"/c,1,2025-03-03 10:00:00\n" +
		"/d,1,2025-03-04 10:00:00\n" +
		"/e,1,2025-03-05 10:00:00\n"

	chunks, summary, fatal := runParser(t, opts, csvData)
	require.NoError(t, fatal)
	require.NotNil(t, summary)

	require.Len(t, chunks, 3)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
	assert.Equal(t, 2, chunks[2].Index)
	assert.Len(t, chunks[0].Events, 2)
	assert.Len(t, chunks[1].Events, 2)
	assert.Len(t, chunks[2].Events, 1)
	assert.Equal(t, "/a", chunks[0].Events[0].Pathname)
	assert.Equal(t, "/e", chunks[2].Events[0].Pathname)

	assert.Equal(t, 5, summary.TotalParsed)
	assert.Zero(t, summary.TotalSkipped)
	assert.Zero(t, summary.TotalErrors)
}

func TestParserSkipsAndErrors(t *testing.T) {
	csvData := "url_path,event_type,created_at\n" +
		"/in-range,1,2025-03-01 10:00:00\n" +
		"/no-timestamp,1,\n" +
		"/too-old,1,2023-01-01 10:00:00\n" +
		"/future,1,2026-01-01 10:00:00\n" +
		"/bad-timestamp,1,01.03.2025\n"

	chunks, summary, fatal := runParser(t, testOptions(), csvData)
	require.NoError(t, fatal)
	require.NotNil(t, summary)

	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0].Events, 1)
	assert.Equal(t, "/in-range", chunks[0].Events[0].Pathname)

	assert.Equal(t, 1, summary.TotalParsed)
	assert.Equal(t, 3, summary.TotalSkipped, "missing timestamp and out-of-range rows are skips")
	assert.Equal(t, 1, summary.TotalErrors)
	require.Len(t, summary.ErrorDetails, 1)
	assert.Contains(t, summary.ErrorDetails[0], "01.03.2025")
}

func TestParserMalformedCSVRowContinues(t *testing.T) {
	csvData := "url_path,event_type,created_at\n" +
		"/a,1,2025-03-01 10:00:00\n" +
		"\"broken\"row,1,2025-03-02 10:00:00\n" +
		"/b,1,2025-03-03 10:00:00\n"

	chunks, summary, fatal := runParser(t, testOptions(), csvData)
	require.NoError(t, fatal)
	require.NotNil(t, summary)

	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0].Events, 2)
	assert.Equal(t, 2, summary.TotalParsed)
	assert.Equal(t, 1, summary.TotalErrors)
}

func TestParserProgressContinuesThroughMalformedRows(t *testing.T) {
	opts := testOptions()
	opts.ProgressInterval = 2

	var sb strings.Builder
	sb.WriteString("url_path,event_type,created_at\n")
	for i := 0; i < 6; i++ {
		sb.WriteString("\"broken\"row,1,2025-03-01 10:00:00\n")
	}

	p, err := NewParser(opts)
	require.NoError(t, err)
	go p.Run(context.Background(), io.NopCloser(strings.NewReader(sb.String())))

	progressSeen := 0
	var last Progress
	for msg := range p.Messages() {
		if msg.Type == MessageProgress {
			progressSeen++
			last = msg.Progress
		}
	}
	assert.GreaterOrEqual(t, progressSeen, 2, "error-only input must still emit progress")
	assert.Equal(t, 6, last.Errors)
	assert.Zero(t, last.Parsed)
}

func TestParserDropsUnmappedColumns(t *testing.T) {
	csvData := "internal_id,url_path,event_type,created_at,notes\n" +
		"42,/a,1,2025-03-01 10:00:00,hello\n"

	chunks, summary, fatal := runParser(t, testOptions(), csvData)
	require.NoError(t, fatal)
	require.NotNil(t, summary)
	require.Len(t, chunks, 1)

	ev := chunks[0].Events[0]
	assert.Equal(t, "/a", ev.Pathname)
	assert.Empty(t, ev.SessionID)
	assert.Empty(t, ev.EventName)
}

func TestParserBOMAndHeaderCase(t *testing.T) {
	csvData := "\xEF\xBB\xBFURL_Path,Event_Type,Created_At\n" +
		"/a,1,2025-03-01 10:00:00\n"

	chunks, summary, fatal := runParser(t, testOptions(), csvData)
	require.NoError(t, fatal)
	require.NotNil(t, summary)
	require.Len(t, chunks, 1)
	assert.Equal(t, "/a", chunks[0].Events[0].Pathname)
}

func TestParserUserRangeIntersection(t *testing.T) {
	opts := testOptions()
	userStart := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	userEnd := time.Date(2025, time.February, 28, 23, 59, 59, 0, time.UTC)
	opts.UserStart = &userStart
	opts.UserEnd = &userEnd

	csvData := "url_path,event_type,created_at\n" +
		"/before,1,2025-01-15 10:00:00\n" +
		"/inside,1,2025-02-15 10:00:00\n" +
		"/after,1,2025-03-01 10:00:00\n"

	chunks, summary, fatal := runParser(t, opts, csvData)
	require.NoError(t, fatal)
	require.NotNil(t, summary)

	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].Events, 1)
	assert.Equal(t, "/inside", chunks[0].Events[0].Pathname)
	assert.Equal(t, 2, summary.TotalSkipped)
}

func TestParserUserRangeCannotWidenQuotaRange(t *testing.T) {
	opts := testOptions()
	// A user range older than the quota window must not admit older events.
	userStart := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	opts.UserStart = &userStart

	csvData := "url_path,event_type,created_at\n" +
		"/ancient,1,2021-06-01 10:00:00\n" +
		"/recent,1,2025-03-01 10:00:00\n"

	chunks, summary, fatal := runParser(t, opts, csvData)
	require.NoError(t, fatal)
	require.NotNil(t, summary)
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].Events, 1)
	assert.Equal(t, "/recent", chunks[0].Events[0].Pathname)
}

func TestParserEmptyInput(t *testing.T) {
	_, summary, fatal := runParser(t, testOptions(), "")
	assert.Nil(t, summary)
	assert.Error(t, fatal)
}

func TestParserHeaderOnly(t *testing.T) {
	chunks, summary, fatal := runParser(t, testOptions(), "url_path,event_type,created_at\n")
	require.NoError(t, fatal)
	require.NotNil(t, summary)
	assert.Empty(t, chunks)
	assert.Zero(t, summary.TotalParsed)
}

func TestParserCancellation(t *testing.T) {
	opts := testOptions()
	opts.BatchSize = 1
	opts.ChunkBuffer = 1

	var sb strings.Builder
	sb.WriteString("url_path,event_type,created_at\n")
	for i := 0; i < 1000; i++ {
		sb.WriteString("/a,1,2025-03-01 10:00:00\n")
	}

	p, err := NewParser(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, io.NopCloser(strings.NewReader(sb.String())))
		close(done)
	}()

	// Take one chunk, then cancel while the parser is blocked on its full
	// channel.
	<-p.Messages()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("parser did not stop after cancellation")
	}

	sawComplete := false
	for msg := range p.Messages() {
		if msg.Type == MessageComplete {
			sawComplete = true
		}
	}
	assert.False(t, sawComplete, "a cancelled run must not report completion")
}

func TestParserRequiresDateRange(t *testing.T) {
	_, err := NewParser(Options{Platform: platform.PlatformUmami})
	assert.Error(t, err)
}
