package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/errs"
)

// HTTPDoer is the subset of *http.Client the client needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client provides access to the Google Maps Platform web services used for walking navigation:
// Directions, Places (find place from text) and Geocoding.
type Client struct {
	apiKey  string
	baseURL string
	region   string
	language string
	http     HTTPDoer
}

// NewClient creates a Google Maps client with a 15 second request timeout
func NewClient(apiKey string) *Client {
	return NewClientWithHTTPDoer(apiKey, "https://maps.googleapis.com", &http.Client{
		Timeout: 15 * time.Second,
	})
}

// NewClientWithHTTPDoer creates a client that sends requests through httpDoer
func NewClientWithHTTPDoer(apiKey, baseURL string, httpDoer HTTPDoer) *Client {
	return &Client{
		apiKey:   apiKey,
		baseURL:  baseURL,
		region:   "hk",
		language: "zh-TW",
		http:     httpDoer,
	}
}

// WithRegion sets the ccTLD region bias for geocoding
func (c *Client) WithRegion(region string) *Client {
	if region != "" {
		c.region = region
	}
	return c
}

// WithLanguage sets the result language for place search and geocoding
func (c *Client) WithLanguage(language string) *Client {
	if language != "" {
		c.language = language
	}
	return c
}

// statusResponse carries the envelope shared by every Maps web service response
type statusResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// getJSON issues a GET against path with params and decodes the body into out. Transport
// failures become connectivity errors; HTTP error codes become routing errors.
func (c *Client) getJSON(ctx context.Context, op, path string, params url.Values, out interface{}) error {
	params.Set("key", c.apiKey)
	requestURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.NewConnectivityError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return httpError(resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return errs.NewConnectivityError(op, ctx.Err())
		}
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// httpError maps HTTP failures from the Maps endpoints onto routing errors
func httpError(code int, body string) error {
	switch {
	case code == http.StatusTooManyRequests:
		return errs.NewRoutingError(errs.RateLimit, "rate limit exceeded")
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.NewRoutingError(errs.Auth, "request denied (HTTP %d)", code)
	case code == http.StatusBadRequest:
		return errs.NewRoutingError(errs.BadRequest, "invalid request: %s", body)
	case code >= 500:
		return errs.NewConnectivityError("maps api", fmt.Errorf("API error %d: %s", code, body))
	default:
		return fmt.Errorf("API error %d: %s", code, body)
	}
}

// statusError maps a non-OK status from the response body onto a routing error
func statusError(status, message string) error {
	detail := status
	if message != "" {
		detail = status + ": " + message
	}
	switch status {
	case "OK":
		return nil
	case "ZERO_RESULTS", "NOT_FOUND":
		return errs.NewRoutingError(errs.NoRoute, "%s", detail)
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return errs.NewRoutingError(errs.RateLimit, "%s", detail)
	case "REQUEST_DENIED":
		return errs.NewRoutingError(errs.Auth, "%s", detail)
	case "INVALID_REQUEST", "MAX_WAYPOINTS_EXCEEDED", "MAX_ROUTE_LENGTH_EXCEEDED":
		return errs.NewRoutingError(errs.BadRequest, "%s", detail)
	default:
		return errs.NewConnectivityError("maps api", fmt.Errorf("unexpected status %s", detail))
	}
}
