package etl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/orchard9/campaign-warehouse/internal/config"
	"github.com/orchard9/campaign-warehouse/internal/metrics"
	"github.com/orchard9/campaign-warehouse/internal/models"
)

// TrackerClient fetches campaign metadata and hourly counters from the
// upstream tracker API.
type TrackerClient interface {
	FetchCampaigns(ctx context.Context) ([]models.Campaign, error)
	FetchHourly(ctx context.Context, start, end time.Time) ([]models.HourlyRow, error)
}

// HTTPTrackerClient is the production TrackerClient. Failed calls retry with
// exponential backoff.
type HTTPTrackerClient struct {
	cfg     config.UpstreamConfig
	httpc   *http.Client
	metrics *metrics.Metrics

	// APICalls counts requests made since the last Reset, for sync run
	// bookkeeping.
	apiCalls int
}

func NewHTTPTrackerClient(cfg config.UpstreamConfig, m *metrics.Metrics) *HTTPTrackerClient {
	return &HTTPTrackerClient{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		metrics: m,
	}
}

// trackerCampaign is the upstream wire format for a campaign.
type trackerCampaign struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Status string  `json:"status"`
	Cost   float64 `json:"cost"`
}

type campaignsResponse struct {
	Campaigns []trackerCampaign `json:"campaigns"`
}

type hourlyResponse struct {
	Rows []models.HourlyRow `json:"rows"`
}

func (c *HTTPTrackerClient) FetchCampaigns(ctx context.Context) ([]models.Campaign, error) {
	var resp campaignsResponse
	if err := c.getJSON(ctx, "/api/campaigns", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch campaigns: %w", err)
	}

	out := make([]models.Campaign, 0, len(resp.Campaigns))
	for _, tc := range resp.Campaigns {
		status := models.CampaignStatus(tc.Status)
		switch status {
		case models.CampaignStatusActive, models.CampaignStatusPaused, models.CampaignStatusDeleted:
		default:
			status = models.CampaignStatusUnknown
		}
		costStatus := models.CostStatusAPISourced
		if tc.Cost == 0 {
			costStatus = models.CostStatusEstimated
		}
		out = append(out, models.Campaign{
			ID:         tc.ID,
			Name:       tc.Name,
			Status:     status,
			Cost:       tc.Cost,
			CostStatus: costStatus,
		})
	}
	return out, nil
}

func (c *HTTPTrackerClient) FetchHourly(ctx context.Context, start, end time.Time) ([]models.HourlyRow, error) {
	params := url.Values{}
	params.Set("start_hour", fmt.Sprintf("%d", start.Unix()/3600))
	params.Set("end_hour", fmt.Sprintf("%d", end.Unix()/3600))

	var resp hourlyResponse
	if err := c.getJSON(ctx, "/api/metrics/hourly", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch hourly metrics: %w", err)
	}
	return resp.Rows, nil
}

// APICalls returns the number of upstream requests since the last Reset.
func (c *HTTPTrackerClient) APICalls() int {
	return c.apiCalls
}

// Reset zeroes the per-run API call counter.
func (c *HTTPTrackerClient) Reset() {
	c.apiCalls = 0
}

func (c *HTTPTrackerClient) getJSON(ctx context.Context, path string, params url.Values, v interface{}) error {
	if c.cfg.BaseURL == "" {
		return errors.New("upstream base URL is not configured")
	}

	endpoint := c.cfg.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<(attempt-1)) * c.cfg.RetryBase
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = c.doOnce(ctx, path, endpoint, v)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (c *HTTPTrackerClient) doOnce(ctx context.Context, path, endpoint string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	started := time.Now()
	c.apiCalls++
	resp, err := c.httpc.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordUpstreamCall(path, "error", time.Since(started))
		}
		return err
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordUpstreamCall(path, fmt.Sprintf("%d", resp.StatusCode), time.Since(started))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("non-2xx from %s: %d body=%s", path, resp.StatusCode, string(b))
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
