package routing

import (
	"context"
	"time"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
)

// RouteStep is one instruction of a walking route. Its position within the parent route is its index.
type RouteStep struct {
	Instruction string       `json:"instruction"`
	DistanceM   float64      `json:"distance_m"`
	DurationS   float64      `json:"duration_s"`
	Start       geo.Point    `json:"start"`
	End         geo.Point    `json:"end"`
	Polyline    geo.Polyline `json:"polyline"`
	Maneuver    string       `json:"maneuver,omitempty"` // e.g. "turn-left", "straight"
	SubSteps    []RouteStep  `json:"sub_steps,omitempty"`
}

// SlopeMetrics summarizes the elevation profile along a route
type SlopeMetrics struct {
	AvgSlopePct  float64 `json:"avg_slope_pct"`
	MaxSlopePct  float64 `json:"max_slope_pct"`
	TotalAscentM float64 `json:"total_ascent_m"`
	Factor       float64 `json:"factor"` // difficulty in [0,1]
	Sampled      bool    `json:"sampled"`
}

// RouteCandidate is one route returned by the routing provider. Steps are immutable once fetched.
type RouteCandidate struct {
	Summary          string       `json:"summary,omitempty"`
	Steps            []RouteStep  `json:"steps"`
	OverviewPolyline geo.Polyline `json:"overview_polyline"`
	TotalDistanceM   float64      `json:"total_distance_m"`
	TotalDurationS   float64      `json:"total_duration_s"`
	Slope            SlopeMetrics `json:"slope"`
}

// FinalDestination returns the end of the last step, falling back to the last overview point
func (r *RouteCandidate) FinalDestination() (geo.Point, bool) {
	if n := len(r.Steps); n > 0 {
		return r.Steps[n-1].End, true
	}
	if pts := r.OverviewPolyline.Decoded(); len(pts) > 0 {
		return pts[len(pts)-1], true
	}
	return geo.Point{}, false
}

// Geometry returns the overview polyline points, or the concatenated step polylines when the
// overview is missing or malformed.
func (r *RouteCandidate) Geometry() []geo.Point {
	if pts := r.OverviewPolyline.Decoded(); len(pts) > 0 {
		return pts
	}
	var pts []geo.Point
	for _, step := range r.Steps {
		pts = append(pts, step.Polyline.Decoded()...)
	}
	return pts
}

// Provider fetches walking route candidates between two points
type Provider interface {
	// Returns at least one candidate or an *errs.RoutingError / *errs.ConnectivityError
	GetRoutes(ctx context.Context, origin, destination geo.Point, language string) ([]RouteCandidate, error)
}

// ElevationProvider samples terrain elevation. Sample returns one elevation per point, or an
// empty slice on any failure.
type ElevationProvider interface {
	Sample(ctx context.Context, points []geo.Point) []float64
}

// DistanceMethod records which geometry produced an off-route distance
type DistanceMethod string

const (
	MethodOverview  DistanceMethod = "overview"
	MethodSteps     DistanceMethod = "steps"
	MethodEndpoints DistanceMethod = "endpoints"
	MethodNone      DistanceMethod = "none"
)

// Progress is the user's position expressed relative to the active route
type Progress struct {
	StepProgress       float64   `json:"step_progress"`
	RouteProgress      float64   `json:"route_progress"`
	DistanceToStepEndM float64   `json:"distance_to_next_step_m"`
	ETA                time.Time `json:"eta"`
}

// RouteMatcher evaluates positions against an active route
type RouteMatcher interface {
	// Distance from pos to the route geometry around stepIndex, and the method that produced it
	DistanceFromRoute(pos geo.Point, route *RouteCandidate, stepIndex int) (float64, DistanceMethod)

	// Whether pos is further than the off-route threshold, with the distance and its method
	IsOffRoute(pos geo.Point, route *RouteCandidate, stepIndex int) (bool, float64, DistanceMethod)

	// Whether pos is within the waypoint threshold of target
	WithinWaypoint(pos, target geo.Point) bool

	// Step and route progress, and the ETA at now
	Progress(pos geo.Point, route *RouteCandidate, stepIndex int, now time.Time) Progress
}
