package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/mattcarabine/wedding-website/pkg/types"
)

// TransportError is a typed failure from a single network exchange.
// The scheduler decides whether to retry; the transport never retries
// on its own.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transient reports whether a retry could plausibly succeed: network
// failures, 5xx and 429 are transient; other client errors are not.
func (e *TransportError) Transient() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// ChunkSender sends one chunk's bytes to the chunk endpoint. Re-sending
// the same (uploadID, index) pair overwrites server-side, so retries are
// idempotent by position.
type ChunkSender interface {
	SendChunk(ctx context.Context, uploadID string, index, totalChunks int, data []byte) error
}

// UploadAPI is the client view of the server-side upload endpoints the
// orchestrator calls around the chunk phase.
type UploadAPI interface {
	Init(ctx context.Context, req types.UploadInitRequest) error
	Complete(ctx context.Context, req types.UploadCompleteRequest) (*types.UploadCompleteResponse, error)
	Cleanup(ctx context.Context, uploadID string) error
}

// Client implements ChunkSender and UploadAPI over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an upload API client for the given server base URL
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// SendChunk posts one chunk as a multipart form to the chunk endpoint
func (c *Client) SendChunk(ctx context.Context, uploadID string, index, totalChunks int, data []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"uploadId":    uploadID,
		"chunkIndex":  strconv.Itoa(index),
		"totalChunks": strconv.Itoa(totalChunks),
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return &TransportError{Op: "send chunk", Err: err}
		}
	}

	part, err := writer.CreateFormFile("chunk", fmt.Sprintf("chunk-%d", index))
	if err != nil {
		return &TransportError{Op: "send chunk", Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return &TransportError{Op: "send chunk", Err: err}
	}
	if err := writer.Close(); err != nil {
		return &TransportError{Op: "send chunk", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/upload/chunk", &body)
	if err != nil {
		return &TransportError{Op: "send chunk", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: "send chunk", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{Op: "send chunk", StatusCode: resp.StatusCode, Err: readAPIError(resp.Body)}
	}

	var ack types.ChunkResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return &TransportError{Op: "send chunk", Err: fmt.Errorf("malformed response body: %w", err)}
	}
	if ack.ChunkIndex != index {
		return &TransportError{Op: "send chunk", Err: fmt.Errorf("server acknowledged chunk %d, sent %d", ack.ChunkIndex, index)}
	}

	return nil
}

// Init calls the init endpoint with the file metadata
func (c *Client) Init(ctx context.Context, req types.UploadInitRequest) error {
	var resp types.UploadInitResponse
	if err := c.postJSON(ctx, "init", "/api/v1/upload/init", req, &resp); err != nil {
		return err
	}
	return nil
}

// Complete calls the completion endpoint, which reassembles the stored
// chunks into the final media item
func (c *Client) Complete(ctx context.Context, req types.UploadCompleteRequest) (*types.UploadCompleteResponse, error) {
	var resp types.UploadCompleteResponse
	if err := c.postJSON(ctx, "complete", "/api/v1/upload/complete", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cleanup asks the server to delete all chunk objects for the upload id
func (c *Client) Cleanup(ctx context.Context, uploadID string) error {
	var resp types.CleanupResponse
	return c.postJSON(ctx, "cleanup", "/api/v1/upload/cleanup", types.CleanupRequest{UploadID: uploadID}, &resp)
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: readAPIError(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("malformed response body: %w", err)}
	}

	return nil
}

// readAPIError extracts the server's error message from a non-2xx body
func readAPIError(r io.Reader) error {
	var apiErr types.ErrorResponse
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return fmt.Errorf("no error details")
	}
	if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Error == "" {
		return fmt.Errorf("%s", string(data))
	}
	return fmt.Errorf("%s", apiErr.Error)
}
