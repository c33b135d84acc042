package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/printforge/dispatch/internal/config"
	"github.com/printforge/dispatch/internal/metrics"
)

// RetrySink receives requests whose dispatch failed, for later replay.
type RetrySink interface {
	Enqueue(req *PrintJobRequest)
}

// Client delivers print-job payloads to the printer backends. Expected
// failures come back as a DispatchResult; the only errors it raises are
// programming mistakes.
type Client struct {
	selector   *Selector
	apiKey     string
	httpClient *http.Client
	retry      RetrySink
}

func NewClient(cfg config.DispatchConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultDispatchTimeout
	}
	return &Client{
		selector: NewSelector(cfg.Endpoints),
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetRetrySink wires the retry queue in after construction; the queue
// itself needs the client to replay entries.
func (c *Client) SetRetrySink(s RetrySink) {
	c.retry = s
}

// SetTransport swaps the underlying RoundTripper, for tests.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.httpClient.Transport = rt
}

func (c *Client) Selector() *Selector {
	return c.selector
}

// backendResponse is the printer backend's reply shape. Only a body that
// decodes with success strictly true counts as delivered.
type backendResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	JobID          string `json:"jobId"`
	DeliveryNumber string `json:"deliveryNumber"`
	Error          string `json:"error"`
}

// Send attempts delivery and, on any retryable failure, hands the request
// to the retry sink. Requests with no files at all are rejected outright
// and never enqueued: replaying them cannot succeed.
func (c *Client) Send(ctx context.Context, req *PrintJobRequest) DispatchResult {
	res, retryable := c.attempt(ctx, req)
	if !res.Success && retryable && c.retry != nil {
		c.retry.Enqueue(req)
	}
	return res
}

// Attempt is Send without the retry-sink side effect. The retry queue
// uses it during drains so re-enqueueing stays under its control.
func (c *Client) Attempt(ctx context.Context, req *PrintJobRequest) DispatchResult {
	res, _ := c.attempt(ctx, req)
	return res
}

func (c *Client) attempt(ctx context.Context, req *PrintJobRequest) (DispatchResult, bool) {
	attemptID := uuid.NewString()

	endpoint := c.selector.Resolve(req.PrinterIndex)
	if endpoint == "" {
		metrics.DispatchAttempts.WithLabelValues(metrics.OutcomeConfig).Inc()
		log.Printf("[dispatch] %s: no endpoint for printer index %d: %v", attemptID, req.PrinterIndex, ErrNoEndpoints)
		return DispatchResult{Error: ErrNoEndpoints.Error()}, true
	}

	payload, err := buildPayload(req)
	if err != nil {
		metrics.DispatchAttempts.WithLabelValues(metrics.OutcomeInvalid).Inc()
		log.Printf("[dispatch] %s: invalid request for order %q: %v", attemptID, req.OrderID, err)
		return DispatchResult{Error: err.Error()}, false
	}

	body, err := json.Marshal(payload)
	if err != nil {
		metrics.DispatchAttempts.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return DispatchResult{Error: fmt.Sprintf("failed to encode payload: %v", err)}, false
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/api/print", bytes.NewReader(body))
	if err != nil {
		metrics.DispatchAttempts.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return DispatchResult{Error: fmt.Sprintf("failed to create request: %v", err)}, false
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.DispatchAttempts.WithLabelValues(metrics.OutcomeTransport).Inc()
		log.Printf("[dispatch] %s: transport error for %s: %v", attemptID, endpoint, err)
		return DispatchResult{Error: fmt.Sprintf("dispatch to %s failed: %v", endpoint, err)}, true
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.DispatchAttempts.WithLabelValues(metrics.OutcomeTransport).Inc()
		return DispatchResult{Error: fmt.Sprintf("failed to read response from %s: %v", endpoint, err)}, true
	}

	var parsed backendResponse
	decodeErr := json.Unmarshal(respBody, &parsed)

	if decodeErr == nil && parsed.Success {
		metrics.DispatchAttempts.WithLabelValues(metrics.OutcomeSuccess).Inc()
		log.Printf("[dispatch] %s: order %q accepted by %s (jobId=%s deliveryNumber=%s)",
			attemptID, req.OrderID, endpoint, parsed.JobID, parsed.DeliveryNumber)
		return DispatchResult{
			Success:        true,
			JobID:          parsed.JobID,
			DeliveryNumber: parsed.DeliveryNumber,
		}, false
	}

	// Transport succeeded but the backend did not accept the job, or the
	// body was not a parseable success envelope.
	errMsg := dispatchErrorMessage(resp, &parsed, decodeErr)
	metrics.DispatchAttempts.WithLabelValues(metrics.OutcomeRejected).Inc()
	log.Printf("[dispatch] %s: %s rejected order %q: %s", attemptID, endpoint, req.OrderID, errMsg)
	return DispatchResult{Error: errMsg}, true
}

func dispatchErrorMessage(resp *http.Response, parsed *backendResponse, decodeErr error) string {
	if decodeErr == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return fmt.Sprintf("printer backend returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

// buildPayload prepares the wire body. The array form wins when present;
// missing names and types there get stable zero-indexed placeholders. The
// legacy single-file form goes out verbatim.
func buildPayload(req *PrintJobRequest) (*PrintJobRequest, error) {
	if req.HasArrayFiles() {
		out := *req
		if len(out.FileNames) < len(out.FileURLs) {
			names := make([]string, len(out.FileURLs))
			copy(names, out.FileNames)
			for i := len(out.FileNames); i < len(out.FileURLs); i++ {
				names[i] = fmt.Sprintf("file-%d", i)
			}
			out.FileNames = names
		}
		if len(out.FileTypes) < len(out.FileURLs) {
			types := make([]string, len(out.FileURLs))
			copy(types, out.FileTypes)
			for i := len(out.FileTypes); i < len(out.FileURLs); i++ {
				types[i] = "pdf"
			}
			out.FileTypes = types
		}
		out.FileURL, out.FileName, out.FileType = "", "", ""
		return &out, nil
	}

	if req.HasLegacyFile() {
		out := *req
		out.FileURLs, out.FileNames, out.FileTypes = nil, nil, nil
		return &out, nil
	}

	return nil, ErrNoFiles
}

// HealthStatus is the outcome of an on-demand backend probe. Probes are
// diagnostics only; dispatch never consults them first.
type HealthStatus struct {
	Endpoint   string `json:"endpoint"`
	Healthy    bool   `json:"healthy"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (c *Client) Health(ctx context.Context, printerIndex int) (*HealthStatus, error) {
	endpoint := c.selector.Resolve(printerIndex)
	if endpoint == "" {
		return nil, ErrNoEndpoints
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create health request: %w", err)
	}
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &HealthStatus{Endpoint: endpoint, Error: err.Error()}, nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return &HealthStatus{
		Endpoint:   endpoint,
		Healthy:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
	}, nil
}
