// Package cloud implements the client for the upstream IoT device API.
//
// One request fetches the latest sample of one metric for the configured
// device. Responses are normalized into telemetry readings; transport
// failures and malformed payloads are reported as distinct error kinds so
// the fetcher can log them apart without ever treating either as fatal.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/skyking-delivery/skytrack/internal/config"
	"github.com/skyking-delivery/skytrack/internal/telemetry"
)

// Normalized upstream errors.
var (
	// ErrUnavailable covers network failures, timeouts and non-2xx replies.
	ErrUnavailable = errors.New("UPSTREAM_UNAVAILABLE")
	// ErrMalformed covers non-JSON bodies, missing fields and unparseable
	// timestamps.
	ErrMalformed = errors.New("UPSTREAM_MALFORMED")
)

// maxBodyBytes bounds how much of an upstream reply is read.
const maxBodyBytes = 1 << 20

// Client queries device telemetry from the cloud IoT API.
type Client struct {
	cfg        *config.CloudConfig
	httpClient *http.Client
}

// NewClient creates a client with a bounded per-request timeout.
func NewClient(cfg *config.CloudConfig) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout(),
		},
	}
}

// FetchMetric requests the latest sample for one metric and normalizes it
// into a Reading with a timezone-aware UTC timestamp.
func (c *Client) FetchMetric(ctx context.Context, metric string) (telemetry.Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.telemetryURL(metric), nil)
	if err != nil {
		return telemetry.Reading{}, fmt.Errorf("%w: building request for %s: %v", ErrUnavailable, metric, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.cfg.AuthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return telemetry.Reading{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return telemetry.Reading{}, fmt.Errorf("%w: reading response for %s: %v", ErrUnavailable, metric, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return telemetry.Reading{}, fmt.Errorf("%w: %s returned HTTP %d", ErrUnavailable, metric, resp.StatusCode)
	}

	return normalize(metric, body)
}

// telemetryURL builds the per-metric request URL:
// {base}/api/devices/{device}/telemetry/{metric}?api-version={v}
func (c *Client) telemetryURL(metric string) string {
	return fmt.Sprintf("%s/api/devices/%s/telemetry/%s?api-version=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"),
		url.PathEscape(c.cfg.DeviceID),
		url.PathEscape(metric),
		url.QueryEscape(c.cfg.APIVersion))
}

// normalize validates the upstream payload shape and parses its timestamp.
func normalize(metric string, body []byte) (telemetry.Reading, error) {
	var payload struct {
		Value     *json.RawMessage `json:"value"`
		Timestamp *string          `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return telemetry.Reading{}, fmt.Errorf("%w: %s response is not valid JSON: %v", ErrMalformed, metric, err)
	}
	if payload.Value == nil || payload.Timestamp == nil {
		return telemetry.Reading{}, fmt.Errorf("%w: %s response is missing value or timestamp", ErrMalformed, metric)
	}

	var value interface{}
	if err := json.Unmarshal(*payload.Value, &value); err != nil {
		return telemetry.Reading{}, fmt.Errorf("%w: %s value field is not a JSON scalar: %v", ErrMalformed, metric, err)
	}

	ts, err := telemetry.ParseTimestamp(*payload.Timestamp)
	if err != nil {
		return telemetry.Reading{}, fmt.Errorf("%w: %s: %v", ErrMalformed, metric, err)
	}

	return telemetry.Reading{
		Metric:    metric,
		Value:     value,
		Timestamp: ts,
	}, nil
}
