// internal/api/client.go
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c3i/globe/pkg/core"
)

// Client reads the hub's REST endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the hub is reachable.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/healthcheck")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// ListWaypoints fetches the hub's current collection.
func (c *Client) ListWaypoints() ([]core.Waypoint, error) {
	resp, err := c.get("/api/waypoints", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wps []core.Waypoint
	if err := json.NewDecoder(resp.Body).Decode(&wps); err != nil {
		return nil, fmt.Errorf("failed to decode waypoints: %w", err)
	}
	return wps, nil
}

// ExportGeoJSON streams the collection as GeoJSON to w. crs is "4326"
// (default when empty) or "3857".
func (c *Client) ExportGeoJSON(w io.Writer, crs string) error {
	q := url.Values{}
	if crs != "" {
		q.Set("crs", crs)
	}
	resp, err := c.get("/api/waypoints.geojson", q)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to copy export: %w", err)
	}
	return nil
}

func (c *Client) get(path string, q url.Values) (*http.Response, error) {
	if q == nil {
		q = url.Values{}
	}
	if c.apiKey != "" {
		q.Set("secret", c.apiKey)
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	resp, err := c.httpClient.Get(u)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}
