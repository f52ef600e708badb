// Package notion is a narrow client for the parts of the Notion API the collector reads:
// database metadata, data source queries and the legacy database query.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public Notion API endpoint.
	DefaultBaseURL = "https://api.notion.com/v1"
	// APIVersion is the Notion-Version header value; data sources only exist from this version on.
	APIVersion = "2025-09-03"

	// Notion caps page_size at 100.
	pageSize = 100
	// Notion allows an average of three requests per second per integration.
	defaultRateLimit = 3
)

// Config configures a Client.
type Config struct {
	Token   string
	BaseURL string
	// RateLimit is the sustained number of requests per second; 0 means the Notion default.
	RateLimit float64
	Timeout   time.Duration
	// Transport allows tests to stub the network.
	Transport http.RoundTripper
}

// Client talks to the Notion REST API.
type Client struct {
	token   string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient builds a Client from the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		token:   cfg.Token,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
	}
}

// APIError is returned for any non-2xx answer from Notion.
type APIError struct {
	StatusCode int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notion returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("notion returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// DataSourceRef is one entry of a database's data_sources list.
type DataSourceRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Database holds the database metadata fields we care about.
type Database struct {
	ID          string          `json:"id"`
	DataSources []DataSourceRef `json:"data_sources"`
}

// Database fetches the metadata of the database, including its data sources.
func (c *Client) Database(ctx context.Context, databaseID string) (*Database, error) {
	var db Database
	if err := c.do(ctx, http.MethodGet, "/databases/"+databaseID, nil, &db); err != nil {
		return nil, fmt.Errorf("could not fetch metadata for database %s: %w", databaseID, err)
	}
	return &db, nil
}

// QueryDataSource returns every page of the data source, following pagination.
func (c *Client) QueryDataSource(ctx context.Context, dataSourceID string, logger *logrus.Entry) ([]Page, error) {
	pages, err := c.queryAll(ctx, "/data_sources/"+dataSourceID+"/query", logger)
	if err != nil {
		return nil, fmt.Errorf("could not query data source %s: %w", dataSourceID, err)
	}
	return pages, nil
}

// QueryDatabase is the pre-data-source query form, used when a database exposes no data sources.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, logger *logrus.Entry) ([]Page, error) {
	pages, err := c.queryAll(ctx, "/databases/"+databaseID+"/query", logger)
	if err != nil {
		return nil, fmt.Errorf("could not query database %s: %w", databaseID, err)
	}
	return pages, nil
}

type queryRequest struct {
	StartCursor string `json:"start_cursor,omitempty"`
	PageSize    int    `json:"page_size"`
}

type queryResponse struct {
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

func (c *Client) queryAll(ctx context.Context, path string, logger *logrus.Entry) ([]Page, error) {
	var pages []Page
	request := queryRequest{PageSize: pageSize}
	for {
		var response queryResponse
		if err := c.do(ctx, http.MethodPost, path, request, &response); err != nil {
			return nil, err
		}
		pages = append(pages, response.Results...)
		if !response.HasMore || response.NextCursor == "" {
			break
		}
		logger.WithField("cursor", response.NextCursor).Debug("Fetching next page of results.")
		request.StartCursor = response.NextCursor
	}
	return pages, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, into interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", APIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{}
		raw, _ := io.ReadAll(resp.Body)
		// Notion error bodies are JSON, but proxies in between may not be
		_ = json.Unmarshal(raw, apiErr)
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}
