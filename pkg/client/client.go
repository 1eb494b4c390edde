// Package client is a small HTTP client for the fable API, used by the
// CLI task commands and usable as a library.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/taleweave/fable/pkg/types"
)

const (
	// callTimeout bounds every plain request.
	callTimeout = 10 * time.Second
	// submitTimeout bounds task submission, which may stream large
	// audio bodies.
	submitTimeout = 5 * time.Minute
)

// APIError is a non-2xx answer from the service, carrying the detail
// string from the error envelope.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Detail)
}

// TaskAck acknowledges a lifecycle action.
type TaskAck struct {
	TaskID  string           `json:"task_id"`
	Status  types.TaskStatus `json:"status"`
	Message string           `json:"message"`
}

// TaskStatus is the service's view of a task record.
type TaskStatus struct {
	TaskID         string           `json:"task_id"`
	Status         types.TaskStatus `json:"status"`
	Progress       float64          `json:"progress"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	AssignedWorker string           `json:"assigned_worker,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	RetryCount     int              `json:"retry_count"`
}

// Health mirrors the aggregate health body.
type Health struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	Version          string    `json:"version"`
	MemoryUsage      float64   `json:"memory_usage"`
	StoreConnected   bool      `json:"store_connected"`
	StorageAvailable bool      `json:"storage_available"`
}

// FileUpload is one file part of a submission.
type FileUpload struct {
	Name    string
	Content io.Reader
}

// SubmitOptions carries a task submission. Zero-value language fields
// fall back to the server defaults.
type SubmitOptions struct {
	SourceLanguage  string
	TargetLanguages []string
	StoryName       string
	Files           []FileUpload
}

// Client talks to one fable API endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the API at baseURL, for example
// "http://localhost:8000".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
	}
}

// SubmitTask uploads the given files and creates a translation task.
func (c *Client) SubmitTask(opts SubmitOptions) (*TaskAck, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if opts.SourceLanguage != "" {
		if err := w.WriteField("source_language", opts.SourceLanguage); err != nil {
			return nil, fmt.Errorf("failed to build form: %w", err)
		}
	}
	for _, lang := range opts.TargetLanguages {
		if err := w.WriteField("target_languages", lang); err != nil {
			return nil, fmt.Errorf("failed to build form: %w", err)
		}
	}
	if opts.StoryName != "" {
		if err := w.WriteField("story_name", opts.StoryName); err != nil {
			return nil, fmt.Errorf("failed to build form: %w", err)
		}
	}
	for _, f := range opts.Files {
		part, err := w.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to build form: %w", err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	var ack TaskAck
	if err := c.call(ctx, http.MethodPost, "/api/v1/tasks", &buf, w.FormDataContentType(), &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Task fetches the status record for one task.
func (c *Client) Task(taskID string) (*TaskStatus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	var status TaskStatus
	if err := c.call(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(taskID), nil, "", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Results fetches the packed results of a completed task.
func (c *Client) Results(taskID string) (types.PackedResults, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	var packed types.PackedResults
	path := fmt.Sprintf("/api/v1/tasks/%s/results", url.PathEscape(taskID))
	if err := c.call(ctx, http.MethodGet, path, nil, "", &packed); err != nil {
		return nil, err
	}
	return packed, nil
}

// Cancel requests cooperative cancellation of a task.
func (c *Client) Cancel(taskID string) (*TaskAck, error) {
	return c.action(taskID, "cancel")
}

// Retry requeues a failed task.
func (c *Client) Retry(taskID string) (*TaskAck, error) {
	return c.action(taskID, "retry")
}

func (c *Client) action(taskID, verb string) (*TaskAck, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	var ack TaskAck
	path := fmt.Sprintf("/api/v1/tasks/%s/%s", url.PathEscape(taskID), verb)
	if err := c.call(ctx, http.MethodPost, path, nil, "", &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Tasks lists task records, optionally filtered by status. A zero
// limit keeps the server default.
func (c *Client) Tasks(status string, limit int) ([]TaskStatus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var tasks []TaskStatus
	if err := c.call(ctx, http.MethodGet, path, nil, "", &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Statistics fetches the per-status task counts.
func (c *Client) Statistics() (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	var stats map[string]int64
	if err := c.call(ctx, http.MethodGet, "/api/v1/tasks/statistics/summary", nil, "", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// StoryText resolves one piece of story content.
func (c *Client) StoryText(name, lang, textID, source string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	q := url.Values{"lang": {lang}, "text_id": {textID}, "source": {source}}
	path := fmt.Sprintf("/api/v1/story/%s/text?%s", url.PathEscape(name), q.Encode())

	var body struct {
		Content string `json:"content"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, "", &body); err != nil {
		return "", err
	}
	return body.Content, nil
}

// Health fetches the aggregate service health.
func (c *Client) Health() (*Health, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	var h Health
	if err := c.call(ctx, http.MethodGet, "/api/v1/health", nil, "", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Workers lists the live worker records.
func (c *Client) Workers() ([]types.WorkerInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	var workers []types.WorkerInfo
	if err := c.call(ctx, http.MethodGet, "/api/v1/health/workers", nil, "", &workers); err != nil {
		return nil, err
	}
	return workers, nil
}

// call performs one request and decodes the JSON answer into out.
// Non-2xx answers become *APIError with the envelope's detail string.
func (c *Client) call(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Detail == "" {
			envelope.Detail = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Detail: envelope.Detail}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
