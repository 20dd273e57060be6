package google

import (
	"context"
	"errors"
	"net/url"

	"github.com/dpup/prefab/logging"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/errs"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
)

const searchSuffix = ", Hong Kong"

// Resolve turns a free-text destination into coordinates. Places "find place from text" is tried
// first; the Geocoding API is the fallback when Places finds nothing.
func (c *Client) Resolve(ctx context.Context, query string) (geo.Point, error) {
	if point, ok := geo.ParseCoordinates(query); ok {
		return point, nil
	}

	point, err := c.FindPlace(ctx, query)
	if err == nil {
		return point, nil
	}
	if !isNoRoute(err) {
		return geo.Point{}, err
	}

	logging.Debugw(logging.EnsureLogger(ctx), "Place search found nothing, falling back to geocoding", "query", query)
	return c.Geocode(ctx, query)
}

// FindPlace searches Places for query, biased to Hong Kong
func (c *Client) FindPlace(ctx context.Context, query string) (geo.Point, error) {
	params := url.Values{}
	params.Set("input", query+searchSuffix)
	params.Set("inputtype", "textquery")
	params.Set("fields", "formatted_address,name,geometry")
	params.Set("language", c.language)

	var response FindPlaceResponse
	if err := c.getJSON(ctx, "find place", "/maps/api/place/findplacefromtext/json", params, &response); err != nil {
		return geo.Point{}, err
	}
	if err := statusError(response.Status, response.ErrorMessage); err != nil {
		return geo.Point{}, err
	}
	if len(response.Candidates) == 0 {
		return geo.Point{}, errs.NewRoutingError(errs.NoRoute, "place not found: %s", query)
	}
	return response.Candidates[0].Geometry.Location.point(), nil
}

// Geocode resolves an address with the Geocoding API using the client's region bias
func (c *Client) Geocode(ctx context.Context, query string) (geo.Point, error) {
	params := url.Values{}
	params.Set("address", query+searchSuffix)
	params.Set("region", c.region)
	params.Set("language", c.language)

	var response GeocodeResponse
	if err := c.getJSON(ctx, "geocode", "/maps/api/geocode/json", params, &response); err != nil {
		return geo.Point{}, err
	}
	if err := statusError(response.Status, response.ErrorMessage); err != nil {
		return geo.Point{}, err
	}
	if len(response.Results) == 0 {
		return geo.Point{}, errs.NewRoutingError(errs.NoRoute, "location not found: %s", query)
	}
	return response.Results[0].Geometry.Location.point(), nil
}

func isNoRoute(err error) bool {
	var routeErr *errs.RoutingError
	return errors.As(err, &routeErr) && routeErr.Kind == errs.NoRoute
}

// FindPlaceResponse represents the Places find-place-from-text response
type FindPlaceResponse struct {
	statusResponse
	Candidates []Place `json:"candidates"`
}

// GeocodeResponse represents the Geocoding API response
type GeocodeResponse struct {
	statusResponse
	Results []Place `json:"results"`
}

// Place is a Places candidate or geocoding result
type Place struct {
	Name             string `json:"name,omitempty"`
	FormattedAddress string `json:"formatted_address"`
	Geometry         struct {
		Location LatLng `json:"location"`
	} `json:"geometry"`
}
