package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/edvin/metering/internal/model"
	"github.com/edvin/metering/internal/timeseries"
)

// Client fetches utilization samples from the monitoring store's history API.
// Raw values arrive in backend units (bytes for memory/storage) and are
// normalized here.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

type historySample struct {
	ResourceID string  `json:"resource_id"`
	Clock      int64   `json:"clock"`
	Value      float64 `json:"value"`
}

func (c *Client) FetchSamples(ctx context.Context, resourceIDs []string, item string, from, to int64) ([]model.UsageSample, error) {
	if !model.ValidItem(item) {
		return nil, fmt.Errorf("fetch samples: unknown item %q", item)
	}

	q := url.Values{}
	q.Set("item", item)
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("to", strconv.FormatInt(to, 10))
	for _, id := range resourceIDs {
		q.Add("resource_id", id)
	}

	reqURL := fmt.Sprintf("%s/api/history?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch samples request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch samples: %w: %w", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch samples: %w: status %d: %s", ErrBackendUnavailable, resp.StatusCode, string(body))
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch samples: status %d: %s", resp.StatusCode, string(body))
	}

	var raw []historySample
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode samples: %w", err)
	}

	samples := make([]model.UsageSample, 0, len(raw))
	for _, r := range raw {
		samples = append(samples, model.UsageSample{
			ResourceID: r.ResourceID,
			Item:       item,
			Timestamp:  r.Clock,
			Value:      normalize(item, r.Value),
		})
	}
	return samples, nil
}

func normalize(item string, value float64) float64 {
	switch item {
	case model.ItemCPU:
		return timeseries.ClampPercent(value)
	case model.ItemMemory, model.ItemStorage:
		return timeseries.BytesToMiB(value)
	}
	return value
}
