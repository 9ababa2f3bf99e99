package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the pipeline control API.
type Client struct {
	baseURL string
	client  *http.Client
}

// PollerStatus mirrors the /api/v1/poller/status response.
type PollerStatus struct {
	Running           bool          `json:"running"`
	Enabled           bool          `json:"enabled"`
	Paused            bool          `json:"paused"`
	State             string        `json:"state"`
	QueueURL          string        `json:"queue_url"`
	Interval          time.Duration `json:"interval"`
	MaxBatchSize      int           `json:"max_batch_size"`
	MessagesProcessed int64         `json:"messages_processed"`
	ErrorsCount       int64         `json:"errors_count"`
	CyclesCompleted   int64         `json:"cycles_completed"`
	LastPoll          time.Time     `json:"last_poll"`
	StartedAt         time.Time     `json:"started_at"`
}

// DrainResult mirrors the /api/v1/dlq/drain response.
type DrainResult struct {
	TotalProcessed int `json:"total_processed"`
	Successful     int `json:"successful"`
	Errors         int `json:"errors"`
	Deleted        int `json:"deleted"`
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) doRequest(method, path string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBytes, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return respBytes, nil
}

func (c *Client) PollerStatus() (*PollerStatus, error) {
	respBytes, err := c.doRequest(http.MethodGet, "/api/v1/poller/status", nil)
	if err != nil {
		return nil, err
	}
	var status PollerStatus
	if err := json.Unmarshal(respBytes, &status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}

func (c *Client) PollerPause() error {
	_, err := c.doRequest(http.MethodPost, "/api/v1/poller/pause", nil)
	return err
}

func (c *Client) PollerResume() error {
	_, err := c.doRequest(http.MethodPost, "/api/v1/poller/resume", nil)
	return err
}

// PollerForceCycle returns the cycle outcome status string, e.g.
// "completed" or "completed_with_errors".
func (c *Client) PollerForceCycle() (string, string, error) {
	respBytes, err := c.doRequest(http.MethodPost, "/api/v1/poller/force-cycle", nil)
	if err != nil {
		return "", "", err
	}
	var result struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return "", "", fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Status, result.Error, nil
}

func (c *Client) DLQDrain(batchSize int, deleteAfter bool, maxBatches int) (*DrainResult, error) {
	body := map[string]interface{}{
		"batch_size":   batchSize,
		"delete_after": deleteAfter,
		"max_batches":  maxBatches,
	}
	respBytes, err := c.doRequest(http.MethodPost, "/api/v1/dlq/drain", body)
	if err != nil {
		return nil, err
	}
	var result DrainResult
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to decode drain result: %w", err)
	}
	return &result, nil
}

func (c *Client) DLQDelete(receiptHandles []string) (int, error) {
	body := map[string]interface{}{"receipt_handles": receiptHandles}
	respBytes, err := c.doRequest(http.MethodPost, "/api/v1/dlq/delete", body)
	if err != nil {
		return 0, err
	}
	var result struct {
		Deleted int `json:"deleted"`
	}
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return 0, fmt.Errorf("failed to decode delete result: %w", err)
	}
	return result.Deleted, nil
}
