package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"app/internal/api/v1/dto"
	"app/internal/platform"
)

// Client talks to the import API on behalf of the uploader.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an API client for the given server base URL and bearer
// token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// APIError is a non-2xx response from the import API, carrying the server's
// machine-readable error code.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Retryable reports whether resubmitting the same request may succeed.
// Client-side errors (including quota and state conflicts) never do.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500
}

// CreateImport creates an import and returns its ID plus the allowed date
// range for pre-filtering.
func (c *Client) CreateImport(ctx context.Context, siteID, platformName, fileName string) (*dto.CreateImportResponse, error) {
	body := dto.CreateImportRequest{Platform: platformName, FileName: fileName}
	var resp dto.CreateImportResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/sites/%s/imports", siteID), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitBatch submits one batch of raw events.
func (c *Client) SubmitBatch(ctx context.Context, siteID, importID string, batchIndex, totalBatches int, events []platform.RawEvent) (*dto.SubmitBatchResponse, error) {
	body := dto.SubmitBatchRequest{BatchIndex: batchIndex, TotalBatches: totalBatches, Events: events}
	var resp dto.SubmitBatchResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/sites/%s/imports/%s/batches", siteID, importID), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CompleteImport signals that every batch has been sent.
func (c *Client) CompleteImport(ctx context.Context, siteID, importID string) (*dto.ImportResponseDTO, error) {
	var resp dto.ImportResponseDTO
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/sites/%s/imports/%s/complete", siteID, importID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteImport removes an import and everything it wrote, freeing its
// concurrency slot.
func (c *Client) DeleteImport(ctx context.Context, siteID, importID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/sites/%s/imports/%s", siteID, importID), nil, nil)
}

// ListImports fetches the site's import summaries, used for terminal-state
// polling.
func (c *Client) ListImports(ctx context.Context, siteID string) ([]dto.ImportResponseDTO, error) {
	var resp []dto.ImportResponseDTO
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/sites/%s/imports", siteID), nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr dto.ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "unknown"
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Message}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response body: %w", err)
		}
	}
	return nil
}
