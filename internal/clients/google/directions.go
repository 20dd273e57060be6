package google

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/dpup/prefab/logging"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/errs"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/routing"
)

var (
	divOpenPattern = regexp.MustCompile(`(?i)<div[^>]*>`)
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// GetRoutes requests walking directions with alternatives between origin and destination
func (c *Client) GetRoutes(ctx context.Context, origin, destination geo.Point, language string) ([]routing.RouteCandidate, error) {
	params := url.Values{}
	params.Set("origin", formatLatLng(origin))
	params.Set("destination", formatLatLng(destination))
	params.Set("mode", "walking")
	params.Set("alternatives", "true")
	params.Set("departure_time", "now")
	if language != "" {
		params.Set("language", language)
	}

	var response DirectionsResponse
	if err := c.getJSON(ctx, "directions", "/maps/api/directions/json", params, &response); err != nil {
		return nil, err
	}
	if err := statusError(response.Status, response.ErrorMessage); err != nil {
		return nil, err
	}
	if len(response.Routes) == 0 {
		return nil, errs.NewRoutingError(errs.NoRoute, "no routes found in response")
	}

	candidates := make([]routing.RouteCandidate, 0, len(response.Routes))
	for _, route := range response.Routes {
		candidates = append(candidates, convertRoute(route))
	}

	logging.Debugw(logging.EnsureLogger(ctx), "Fetched walking directions",
		"origin", formatLatLng(origin), "destination", formatLatLng(destination), "candidates", len(candidates))
	return candidates, nil
}

func convertRoute(route DirectionsRoute) routing.RouteCandidate {
	candidate := routing.RouteCandidate{
		Summary:          route.Summary,
		OverviewPolyline: geo.Polyline{EncodedPolyline: route.OverviewPolyline.Points},
	}
	for _, leg := range route.Legs {
		candidate.TotalDistanceM += leg.Distance.Value
		candidate.TotalDurationS += leg.Duration.Value
		for _, step := range leg.Steps {
			candidate.Steps = append(candidate.Steps, convertStep(step))
		}
	}
	return candidate
}

func convertStep(step DirectionsStep) routing.RouteStep {
	out := routing.RouteStep{
		Instruction: CleanInstruction(step.HTMLInstructions),
		DistanceM:   step.Distance.Value,
		DurationS:   step.Duration.Value,
		Start:       step.StartLocation.point(),
		End:         step.EndLocation.point(),
		Polyline:    geo.Polyline{EncodedPolyline: step.Polyline.Points},
		Maneuver:    step.Maneuver,
	}
	for _, sub := range step.Steps {
		out.SubSteps = append(out.SubSteps, convertStep(sub))
	}
	return out
}

// CleanInstruction reduces an html_instructions value to speakable plain text. Bold markers are
// dropped and each <div> block becomes a ", " separated clause.
func CleanInstruction(instruction string) string {
	s := divOpenPattern.ReplaceAllString(instruction, ", ")
	s = tagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = spacePattern.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, " ,", ",")
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), ","))
}

func formatLatLng(p geo.Point) string {
	return fmt.Sprintf("%.7f,%.7f", p.Latitude, p.Longitude)
}

// DirectionsResponse represents the Directions API response structure
type DirectionsResponse struct {
	statusResponse
	Routes []DirectionsRoute `json:"routes"`
}

// DirectionsRoute represents one route alternative
type DirectionsRoute struct {
	Summary          string             `json:"summary"`
	Legs             []DirectionsLeg    `json:"legs"`
	OverviewPolyline DirectionsPolyline `json:"overview_polyline"`
}

// DirectionsLeg is the journey between two waypoints; walking requests have exactly one
type DirectionsLeg struct {
	Distance TextValue        `json:"distance"`
	Duration TextValue        `json:"duration"`
	Steps    []DirectionsStep `json:"steps"`
}

// DirectionsStep is one instruction, possibly with nested sub-steps
type DirectionsStep struct {
	HTMLInstructions string             `json:"html_instructions"`
	Distance         TextValue          `json:"distance"`
	Duration         TextValue          `json:"duration"`
	StartLocation    LatLng             `json:"start_location"`
	EndLocation      LatLng             `json:"end_location"`
	Polyline         DirectionsPolyline `json:"polyline"`
	Maneuver         string             `json:"maneuver,omitempty"`
	TravelMode       string             `json:"travel_mode"`
	Steps            []DirectionsStep   `json:"steps,omitempty"`
}

// DirectionsPolyline holds an encoded polyline
type DirectionsPolyline struct {
	Points string `json:"points"`
}

// TextValue is a localized text plus its numeric value (metres or seconds)
type TextValue struct {
	Text  string  `json:"text"`
	Value float64 `json:"value"`
}

// LatLng is the Maps API coordinate object
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l LatLng) point() geo.Point {
	return geo.Point{Latitude: l.Lat, Longitude: l.Lng}
}
