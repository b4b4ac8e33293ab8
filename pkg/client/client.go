// Package client talks to a top talkers server over its REST API: the
// query endpoints the network view is built from, and sample ingestion.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nicktill/toptalkers/pkg/aggregate"
	"github.com/nicktill/toptalkers/pkg/api"
	"github.com/nicktill/toptalkers/pkg/httpx"
	"github.com/nicktill/toptalkers/pkg/ingest"
	"github.com/nicktill/toptalkers/pkg/resample"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

// Client is an HTTP client for one server.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}, nil
}

// Times returns the span of data the server holds.
func (c *Client) Times(ctx context.Context) (start, end time.Time, err error) {
	var resp api.TimesResponse
	if err := c.get(ctx, "/times", nil, &resp); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start, err = api.ParseTime(resp.Start); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad start in /times: %w", err)
	}
	if end, err = api.ParseTime(resp.End); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad end in /times: %w", err)
	}
	return start, end, nil
}

// TimeSeries returns points evenly spaced byte-rate samples over [start, end).
func (c *Client) TimeSeries(ctx context.Context, start, end time.Time, points int) ([]resample.Point, error) {
	params := rangeParams(start, end)
	params.Set("points", strconv.Itoa(points))

	var raw []api.SeriesPoint
	if err := c.get(ctx, "/timeseries", params, &raw); err != nil {
		return nil, err
	}

	out := make([]resample.Point, 0, len(raw))
	for _, p := range raw {
		t, err := api.ParseTime(p.Time)
		if err != nil {
			return nil, fmt.Errorf("bad time in /timeseries: %w", err)
		}
		out = append(out, resample.Point{Time: t, Y: p.Y})
	}
	return out, nil
}

// Conversations returns the top conversations over [start, end).
func (c *Client) Conversations(ctx context.Context, start, end time.Time, limit aggregate.Limit) ([]aggregate.Conversation, error) {
	var out []aggregate.Conversation
	if err := c.get(ctx, "/conversations", rankedParams(start, end, limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Protocols returns the top applications over [start, end).
func (c *Client) Protocols(ctx context.Context, start, end time.Time, limit aggregate.Limit) ([]aggregate.Protocol, error) {
	var out []aggregate.Protocol
	if err := c.get(ctx, "/protocols", rankedParams(start, end, limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ingest posts a batch of 5-second samples.
func (c *Client) Ingest(ctx context.Context, req ingest.IngestRequest) (*ingest.IngestResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal samples: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/ingest", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp ingest.IngestResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func rangeParams(start, end time.Time) url.Values {
	params := url.Values{}
	params.Set("start", api.FormatTime(start))
	params.Set("end", api.FormatTime(end))
	return params
}

func rankedParams(start, end time.Time, limit aggregate.Limit) url.Values {
	params := rangeParams(start, end)
	if limit.Ranked() {
		params.Set("count", strconv.Itoa(limit.N()))
	}
	return params
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body httpx.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&body) == nil {
			apiErr.Message = body.Message
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
