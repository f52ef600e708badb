package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultMetricsBaseURL serves the per-group leaderboard timeseries.
	DefaultMetricsBaseURL = "https://mashboard-api.despreadlabs.io/storyteller-leaderboard"

	// entries requested per window
	leaderboardLimit = 50
	// upper bound on a single window payload
	maxPayloadBytes = 16 << 20
)

// WindowFetcher retrieves the leaderboard payload of one entity for one lookback window.
// It reports false, never an error, when no usable payload could be obtained.
type WindowFetcher interface {
	Fetch(ctx context.Context, groupID string, window LookbackWindow, logger *logrus.Entry) (json.RawMessage, bool)
}

// MetricsClient fetches windows from the metrics HTTP API. Requests are never retried.
type MetricsClient struct {
	baseURL string
	client  *http.Client
}

var _ WindowFetcher = &MetricsClient{}

// NewMetricsClient creates a client against baseURL, bounding each request by timeout.
func NewMetricsClient(baseURL string, timeout time.Duration) *MetricsClient {
	if baseURL == "" {
		baseURL = DefaultMetricsBaseURL
	}
	return &MetricsClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (m *MetricsClient) windowURL(groupID string, window LookbackWindow) string {
	query := url.Values{
		"limit":     []string{strconv.Itoa(leaderboardLimit)},
		"lookbacks": []string{window.Key()},
	}
	return fmt.Sprintf("%s/%s/timeseries-group?%s", m.baseURL, url.PathEscape(groupID), query.Encode())
}

func (m *MetricsClient) Fetch(ctx context.Context, groupID string, window LookbackWindow, logger *logrus.Entry) (json.RawMessage, bool) {
	payload, err := m.fetch(ctx, groupID, window)
	if err != nil {
		windowFetches.WithLabelValues(window.Key(), resultFailure).Inc()
		logger.WithError(err).Warn("Failed to fetch leaderboard window.")
		return nil, false
	}
	windowFetches.WithLabelValues(window.Key(), resultSuccess).Inc()
	return payload, true
}

func (m *MetricsClient) fetch(ctx context.Context, groupID string, window LookbackWindow) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.windowURL(groupID, window), nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("metrics API returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("could not read response: %w", err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
