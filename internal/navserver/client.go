package navserver

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/banshee-data/navfusion/internal/httputil"
)

// Client talks to a running API.
type Client struct {
	base string
	http httputil.Doer
}

// NewClient returns a client for the API at base, e.g. http://localhost:8080.
// A nil doer uses http.DefaultClient.
func NewClient(base string, doer httputil.Doer) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(base, "/"), http: doer}
}

// State fetches the current navigation state. Empty units use the server
// defaults.
func (c *Client) State(ctx context.Context, speedUnits, distanceUnits string) (StateResponse, error) {
	q := url.Values{}
	if speedUnits != "" {
		q.Set("speed_units", speedUnits)
	}
	if distanceUnits != "" {
		q.Set("distance_units", distanceUnits)
	}
	u := c.base + "/api/nav/state"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var resp StateResponse
	err := httputil.DoJSON(ctx, c.http, http.MethodGet, u, nil, &resp)
	return resp, err
}

// Health fetches the health summary. A navigator that is not serving still
// returns its summary.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := httputil.DoJSON(ctx, c.http, http.MethodGet, c.base+"/api/nav/health", nil, &resp, http.StatusServiceUnavailable)
	return resp, err
}

// Reset requests a navigator reset.
func (c *Client) Reset(ctx context.Context) error {
	return httputil.DoJSON(ctx, c.http, http.MethodPost, c.base+"/api/nav/reset", nil, nil)
}

// SetRanging switches the runtime ranging gate and returns its new state.
func (c *Client) SetRanging(ctx context.Context, on bool) (bool, error) {
	var resp struct {
		Enabled bool `json:"enabled"`
	}
	err := httputil.DoJSON(ctx, c.http, http.MethodPost, c.base+"/api/nav/ranging", rangingBody{Enabled: &on}, &resp)
	return resp.Enabled, err
}
