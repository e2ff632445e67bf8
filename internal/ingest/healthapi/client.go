// Package healthapi fetches recorded samples from an upstream health-data
// service over REST.
package healthapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sleepstage-service/internal/nights"

	"github.com/go-resty/resty/v2"
)

const samplesPath = "/v1/nights/{night_id}/samples"

// Client talks to the upstream health API.
type Client struct {
	http *resty.Client
	log  *slog.Logger
}

var _ nights.SampleSource = (*Client)(nil)

// NewClient returns a Client for baseURL. token, when non-empty, is sent as a
// bearer token. timeout <= 0 selects 30s.
func NewClient(baseURL, token string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json")
	if token != "" {
		http.SetAuthToken(token)
	}
	return &Client{http: http, log: log}
}

// FetchSamples implements nights.SampleSource. It requests every sample and
// annotation recorded for the night in [from, to).
func (c *Client) FetchSamples(ctx context.Context, id nights.NightID, from, to time.Time) (nights.SampleBatch, error) {
	var batch nights.SampleBatch
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("night_id", string(id)).
		SetQueryParams(map[string]string{
			"from": from.UTC().Format(time.RFC3339),
			"to":   to.UTC().Format(time.RFC3339),
		}).
		SetResult(&batch).
		Get(samplesPath)
	if err != nil {
		return nights.SampleBatch{}, fmt.Errorf("call health api: %w", err)
	}
	if resp.IsError() {
		c.log.Warn("health api returned error",
			slog.String("night_id", string(id)),
			slog.Int("status", resp.StatusCode()))
		return nights.SampleBatch{}, fmt.Errorf("health api status %d", resp.StatusCode())
	}

	c.log.Debug("health api samples fetched",
		slog.String("night_id", string(id)),
		slog.Int("records", batch.Size()),
		slog.Duration("elapsed", resp.Time()))
	return batch, nil
}
