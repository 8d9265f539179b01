package firms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/firms-detection-etl/internal/domain"
	"github.com/couchcryptid/firms-detection-etl/internal/observability"
)

// ErrMissingMapKey is returned when an operation needs a MAP_KEY and none is configured.
var ErrMissingMapKey = errors.New("FIRMS_MAP_KEY is not configured")

const (
	endpointCSV    = "csv"
	endpointStatus = "status"

	// errorBodyLimit caps how much of an error response is quoted in errors.
	errorBodyLimit = 512
)

// Client talks to the NASA FIRMS API. It implements pipeline.Fetcher for CSV
// URLs and pipeline.SourceResolver for country queries.
type Client struct {
	mapKey     string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a FIRMS client.
func NewClient(baseURL, mapKey string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		mapKey: mapKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// CSVURL builds the country CSV URL for a query.
func (c *Client) CSVURL(product, country string, days int) (string, error) {
	q, err := Query{Product: product, Country: country, Days: days}.Normalize()
	if err != nil {
		return "", err
	}
	if c.mapKey == "" {
		return "", ErrMissingMapKey
	}
	return fmt.Sprintf("%s/api/country/csv/%s/%s/%s/%d",
		c.baseURL, url.PathEscape(c.mapKey), q.Product, q.Country, q.Days), nil
}

// Fetch downloads and decodes the CSV behind source. Every failure wraps
// domain.ErrDataFetch.
func (c *Client) Fetch(ctx context.Context, source string) (domain.RawBatch, error) {
	start := time.Now()
	batch, err := c.fetch(ctx, source)
	c.observe(endpointCSV, start, err)
	if err != nil {
		if !errors.Is(err, domain.ErrDataFetch) {
			err = fmt.Errorf("%w: %w", domain.ErrDataFetch, err)
		}
		return domain.RawBatch{}, err
	}

	c.logger.Debug("firms csv fetched", "rows", batch.Len(), "columns", len(batch.Columns), "duration", time.Since(start))
	return batch, nil
}

func (c *Client) fetch(ctx context.Context, source string) (domain.RawBatch, error) {
	resp, err := c.get(ctx, source)
	if err != nil {
		return domain.RawBatch{}, err
	}
	defer resp.Body.Close()

	batch, err := domain.DecodeCSV(resp.Body)
	if err != nil {
		return domain.RawBatch{}, err
	}

	// FIRMS reports a bad MAP_KEY or area as a 200 with a one-line message.
	if batch.Len() == 0 && len(batch.Columns) == 1 && !batch.HasColumn(domain.ColumnLatitude) {
		return domain.RawBatch{}, fmt.Errorf("firms: %s", c.redact(batch.Columns[0]))
	}
	return batch, nil
}

// AccountStatus reports MAP_KEY usage in the current transaction interval and
// records the transaction count as a gauge.
func (c *Client) AccountStatus(ctx context.Context) (AccountStatus, error) {
	if c.mapKey == "" {
		return AccountStatus{}, ErrMissingMapKey
	}

	start := time.Now()
	status, err := c.accountStatus(ctx)
	c.observe(endpointStatus, start, err)
	if err != nil {
		return AccountStatus{}, fmt.Errorf("%w: %w", domain.ErrDataFetch, err)
	}

	c.metrics.FIRMSTransactions.Set(float64(status.CurrentTransactions))
	return status, nil
}

func (c *Client) accountStatus(ctx context.Context) (AccountStatus, error) {
	u := c.baseURL + "/mapserver/mapkey_status/?" + url.Values{"MAP_KEY": {c.mapKey}}.Encode()

	resp, err := c.get(ctx, u)
	if err != nil {
		return AccountStatus{}, err
	}
	defer resp.Body.Close()

	var status AccountStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return AccountStatus{}, fmt.Errorf("decode account status: %w", err)
	}
	return status, nil
}

// get issues a GET and returns the response when the status is 200. The
// caller closes the body.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %s", c.redact(err.Error()))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = c.redact(urlErr.URL)
		}
		return nil, fmt.Errorf("firms request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, fmt.Errorf("firms API error: status %d: %s", resp.StatusCode, c.redact(strings.TrimSpace(string(body))))
	}
	return resp, nil
}

func (c *Client) observe(endpoint string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.metrics.FIRMSRequests.WithLabelValues(endpoint, outcome).Inc()
	c.metrics.FIRMSDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// redact hides the MAP_KEY in text that may reach logs or API responses.
func (c *Client) redact(s string) string {
	if c.mapKey == "" {
		return s
	}
	return strings.ReplaceAll(s, c.mapKey, "[REDACTED]")
}

// AccountStatus is the FIRMS MAP_KEY usage report.
type AccountStatus struct {
	TransactionLimit    int    `json:"transaction_limit"`
	CurrentTransactions int    `json:"current_transactions"`
	TransactionInterval string `json:"transaction_interval"`
}

// Remaining returns the transactions left in the current interval.
func (s AccountStatus) Remaining() int {
	return max(s.TransactionLimit-s.CurrentTransactions, 0)
}
