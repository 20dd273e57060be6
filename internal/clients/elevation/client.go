package elevation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
)

// HTTPDoer is the subset of *http.Client the client needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client provides access to the Google Elevation API. It implements routing.ElevationProvider.
type Client struct {
	apiKey    string
	baseURL   string
	batchSize int
	http      HTTPDoer
}

// NewClient creates a new Elevation API client
func NewClient(apiKey string) *Client {
	return NewClientWithHTTPDoer(apiKey, "https://maps.googleapis.com", &http.Client{
		Timeout: 15 * time.Second,
	})
}

// NewClientWithHTTPDoer creates a client that sends requests through httpDoer
func NewClientWithHTTPDoer(apiKey, baseURL string, httpDoer HTTPDoer) *Client {
	return &Client{
		apiKey:    apiKey,
		baseURL:   baseURL,
		batchSize: 64,
		http:      httpDoer,
	}
}

// Sample returns exactly one elevation in metres per point, or nil when any lookup fails.
// Long paths are split into requests of at most batchSize locations. Callers treat a nil
// result as flat terrain.
func (c *Client) Sample(ctx context.Context, points []geo.Point) []float64 {
	if len(points) == 0 {
		return nil
	}

	elevations := make([]float64, 0, len(points))
	for start := 0; start < len(points); start += c.batchSize {
		end := min(start+c.batchSize, len(points))
		batch, err := c.lookup(ctx, points[start:end])
		if err != nil {
			logging.Warnw(logging.EnsureLogger(ctx), "Elevation lookup failed, treating route as flat",
				"points", len(points), "batch_start", start, "error", err)
			return nil
		}
		elevations = append(elevations, batch...)
	}
	return elevations
}

func (c *Client) lookup(ctx context.Context, points []geo.Point) ([]float64, error) {
	params := url.Values{}
	params.Set("locations", "enc:"+geo.EncodePolyline(points))
	params.Set("key", c.apiKey)

	requestURL := fmt.Sprintf("%s/maps/api/elevation/json?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var response Response
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Status != "OK" {
		return nil, fmt.Errorf("elevation status %s: %s", response.Status, response.ErrorMessage)
	}
	if len(response.Results) != len(points) {
		return nil, fmt.Errorf("expected %d elevations, got %d", len(points), len(response.Results))
	}

	elevations := make([]float64, len(response.Results))
	for i, r := range response.Results {
		elevations[i] = r.Elevation
	}
	return elevations, nil
}

// Response represents the Elevation API response structure
type Response struct {
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Results      []Result `json:"results"`
}

// Result is the elevation at one requested location
type Result struct {
	Elevation  float64 `json:"elevation"`
	Resolution float64 `json:"resolution"`
	Location   struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}
