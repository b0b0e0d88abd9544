// Package analysis is the outbound client for the external analysis and
// simulation service. Failures are returned to the caller; the telemetry
// service decides how to degrade (empty snapshot, normal severity).
package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"enginewatch/sensor"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxResponseBytes = 4 << 20

// Client calls GET /simulate and POST /analyze on a base URL.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// Options configures a Client.
type Options struct {
	BaseURL string
	// Timeout bounds each call when positive. Zero leaves calls unbounded
	// except by the caller's context.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient validates opts and returns a Client.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("analysis: base URL is empty")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{baseURL: base, timeout: opts.Timeout, http: hc}, nil
}

// Simulate fetches one synthetic batch of readings. The response must be an
// object; its "sensors" field is mapped leniently like an ingestion body.
func (c *Client) Simulate(ctx context.Context) (sensor.Snapshot, error) {
	body, err := c.do(ctx, http.MethodGet, "/simulate", nil)
	if err != nil {
		return nil, fmt.Errorf("analysis: simulate: %w", err)
	}
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("analysis: simulate: decode body: %w", err)
	}
	return sensor.DecodeReadings(envelope["sensors"]), nil
}

// Analyze asks the collaborator to classify one reading.
func (c *Client) Analyze(ctx context.Context, r sensor.Reading) (sensor.Severity, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return sensor.SeverityUnknown, fmt.Errorf("analysis: analyze: encode reading: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, "/analyze", payload)
	if err != nil {
		return sensor.SeverityUnknown, fmt.Errorf("analysis: analyze: %w", err)
	}
	var resp struct {
		Risk        string   `json:"risk"`
		Probability *float64 `json:"probability"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return sensor.SeverityUnknown, fmt.Errorf("analysis: analyze: decode body: %w", err)
	}
	sev, ok := sensor.ParseSeverity(resp.Risk)
	if !ok {
		return sensor.SeverityUnknown, fmt.Errorf("analysis: analyze: unknown risk %q", resp.Risk)
	}
	return sev, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("fetch failed: status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
