package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"app/internal/api/v1/dto"
	"app/internal/platform"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedBatch struct {
	BatchIndex   int
	TotalBatches int
	Events       int
}

type batchServer struct {
	mu       sync.Mutex
	batches  []recordedBatch
	failFor  map[int]int // batchIndex -> remaining 500 responses
	rejectAs int         // non-zero: respond with this status for every batch
}

func (s *batchServer) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sites/{siteID}/imports/{importID}/batches", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req dto.SubmitBatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.rejectAs != 0 {
			w.WriteHeader(s.rejectAs)
			json.NewEncoder(w).Encode(dto.ErrorResponse{Error: "nope", Code: "quota_exceeded", Message: "nope"})
			return
		}
		if s.failFor[req.BatchIndex] > 0 {
			s.failFor[req.BatchIndex]--
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(dto.ErrorResponse{Error: "boom", Code: "internal", Message: "boom"})
			return
		}
		s.batches = append(s.batches, recordedBatch{
			BatchIndex:   req.BatchIndex,
			TotalBatches: req.TotalBatches,
			Events:       len(req.Events),
		})
		json.NewEncoder(w).Encode(dto.SubmitBatchResponse{Success: true, ImportedCount: int64(len(req.Events))})
	})
	return mux
}

func fastOptions() UploaderOptions {
	return UploaderOptions{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func chunkMessages(sizes ...int) chan Message {
	ch := make(chan Message, len(sizes)+1)
	total := 0
	for i, n := range sizes {
		events := make([]platform.RawEvent, n)
		ch <- Message{Type: MessageChunk, Chunk: &Chunk{Index: i, Events: events}}
		total += n
	}
	ch <- Message{Type: MessageComplete, Summary: &Summary{TotalParsed: total}}
	close(ch)
	return ch
}

func TestUploaderLookaheadBatchTotals(t *testing.T) {
	srv := &batchServer{}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	client := NewClient(ts.URL, "test-token")
	u := NewUploader(client, "site-1", "imp-1", fastOptions(), zerolog.Nop())

	result, err := u.Run(context.Background(), chunkMessages(5, 5, 2))
	require.NoError(t, err)

	assert.Equal(t, 3, result.BatchesSent)
	assert.Equal(t, int64(12), result.ImportedCount)
	assert.Equal(t, 12, result.ParseSummary.TotalParsed)

	// Every batch but the last reports an open stream; the last carries the
	// true total.
	require.Len(t, srv.batches, 3)
	assert.Equal(t, recordedBatch{BatchIndex: 0, TotalBatches: 0, Events: 5}, srv.batches[0])
	assert.Equal(t, recordedBatch{BatchIndex: 1, TotalBatches: 0, Events: 5}, srv.batches[1])
	assert.Equal(t, recordedBatch{BatchIndex: 2, TotalBatches: 3, Events: 2}, srv.batches[2])
}

func TestUploaderSingleBatchCarriesTotal(t *testing.T) {
	srv := &batchServer{}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	u := NewUploader(NewClient(ts.URL, "test-token"), "site-1", "imp-1", fastOptions(), zerolog.Nop())
	_, err := u.Run(context.Background(), chunkMessages(4))
	require.NoError(t, err)

	require.Len(t, srv.batches, 1)
	assert.Equal(t, recordedBatch{BatchIndex: 0, TotalBatches: 1, Events: 4}, srv.batches[0])
}

func TestUploaderNoChunksSendsNothing(t *testing.T) {
	srv := &batchServer{}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	// A file whose every row was pre-filtered yields only a completion
	// summary; the uploader must report zero batches so the caller can
	// dispose of the never-started import.
	u := NewUploader(NewClient(ts.URL, "test-token"), "site-1", "imp-1", fastOptions(), zerolog.Nop())
	result, err := u.Run(context.Background(), chunkMessages())
	require.NoError(t, err)

	assert.Zero(t, result.BatchesSent)
	assert.Zero(t, result.ImportedCount)
	assert.Empty(t, srv.batches)
}

func TestUploaderRetriesServerErrors(t *testing.T) {
	srv := &batchServer{failFor: map[int]int{0: 2}}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	u := NewUploader(NewClient(ts.URL, "test-token"), "site-1", "imp-1", fastOptions(), zerolog.Nop())
	result, err := u.Run(context.Background(), chunkMessages(3))
	require.NoError(t, err)
	assert.Equal(t, 1, result.BatchesSent)
	require.Len(t, srv.batches, 1)
}

func TestUploaderGivesUpAfterMaxRetries(t *testing.T) {
	srv := &batchServer{failFor: map[int]int{0: 100}}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	u := NewUploader(NewClient(ts.URL, "test-token"), "site-1", "imp-1", fastOptions(), zerolog.Nop())
	_, err := u.Run(context.Background(), chunkMessages(3))
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestUploaderDoesNotRetryClientErrors(t *testing.T) {
	srv := &batchServer{rejectAs: http.StatusUnprocessableEntity}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	u := NewUploader(NewClient(ts.URL, "test-token"), "site-1", "imp-1", fastOptions(), zerolog.Nop())
	_, err := u.Run(context.Background(), chunkMessages(3))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "quota_exceeded", apiErr.Code)
	assert.False(t, apiErr.Retryable())
}

func TestUploaderPropagatesParseFailure(t *testing.T) {
	ch := make(chan Message, 2)
	ch <- Message{Type: MessageChunk, Chunk: &Chunk{Index: 0, Events: make([]platform.RawEvent, 1)}}
	ch <- Message{Type: MessageError, Err: errors.New("corrupt file")}
	close(ch)

	srv := &batchServer{}
	ts := httptest.NewServer(srv.handler(t))
	defer ts.Close()

	u := NewUploader(NewClient(ts.URL, "test-token"), "site-1", "imp-1", fastOptions(), zerolog.Nop())
	_, err := u.Run(context.Background(), ch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt file")

	// The buffered chunk is never flushed after a parse failure.
	assert.Empty(t, srv.batches)
}

func TestClientDeleteImport(t *testing.T) {
	var deleted string
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /v1/sites/{siteID}/imports/{importID}", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		deleted = r.PathValue("importID")
		w.WriteHeader(http.StatusNoContent)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := NewClient(ts.URL, "test-token")
	require.NoError(t, client.DeleteImport(context.Background(), "site-1", "imp-1"))
	assert.Equal(t, "imp-1", deleted)
}

func TestClientErrorDecoding(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"not found","code":"not_found","message":"import not found"}`)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-token")
	_, err := client.CompleteImport(context.Background(), "site-1", "imp-1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.Equal(t, "import not found", apiErr.Message)
}
