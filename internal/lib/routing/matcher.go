package routing

import (
	"math"
	"time"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
)

// routeMatcher implements the RouteMatcher interface
type routeMatcher struct {
	offRouteThreshold float64 // meters from geometry before the user counts as off-route
	waypointThreshold float64 // meters from a step endpoint that counts as reaching it
}

// NewRouteMatcher creates a RouteMatcher with the given thresholds in meters
func NewRouteMatcher(offRouteThreshold, waypointThreshold float64) RouteMatcher {
	return &routeMatcher{
		offRouteThreshold: offRouteThreshold,
		waypointThreshold: waypointThreshold,
	}
}

// DistanceFromRoute tries, in order, the overview polyline, the previous+current+next step
// polylines, then the straight-line distance to those steps' endpoints.
func (r *routeMatcher) DistanceFromRoute(pos geo.Point, route *RouteCandidate, stepIndex int) (float64, DistanceMethod) {
	if route == nil {
		return math.Inf(1), MethodNone
	}

	if pts := route.OverviewPolyline.Decoded(); len(pts) > 0 {
		return geo.DistanceToPolyline(pos, pts), MethodOverview
	}

	neighbours := nearbySteps(route.Steps, stepIndex)

	var pts []geo.Point
	for _, step := range neighbours {
		pts = append(pts, step.Polyline.Decoded()...)
	}
	if len(pts) > 0 {
		return geo.DistanceToPolyline(pos, pts), MethodSteps
	}

	if len(neighbours) == 0 {
		return math.Inf(1), MethodNone
	}

	minDistance := math.Inf(1)
	for _, step := range neighbours {
		minDistance = math.Min(minDistance, geo.GreatCircleDistance(pos, step.Start))
		minDistance = math.Min(minDistance, geo.GreatCircleDistance(pos, step.End))
	}
	return minDistance, MethodEndpoints
}

// nearbySteps returns the previous, current and next steps around index
func nearbySteps(steps []RouteStep, index int) []RouteStep {
	if len(steps) == 0 {
		return nil
	}
	index = clampIndex(index, len(steps))
	lo := index - 1
	if lo < 0 {
		lo = 0
	}
	hi := index + 2
	if hi > len(steps) {
		hi = len(steps)
	}
	return steps[lo:hi]
}

// IsOffRoute reports whether pos is further than the off-route threshold from the route. Without
// usable geometry (MethodNone) it never reports off-route.
func (r *routeMatcher) IsOffRoute(pos geo.Point, route *RouteCandidate, stepIndex int) (bool, float64, DistanceMethod) {
	distance, method := r.DistanceFromRoute(pos, route, stepIndex)
	if method == MethodNone {
		return false, distance, method
	}
	return distance > r.offRouteThreshold, distance, method
}

// WithinWaypoint reports whether pos has reached target
func (r *routeMatcher) WithinWaypoint(pos, target geo.Point) bool {
	return geo.GreatCircleDistance(pos, target) <= r.waypointThreshold
}

// Progress computes step and route progress and the ETA
func (r *routeMatcher) Progress(pos geo.Point, route *RouteCandidate, stepIndex int, now time.Time) Progress {
	if route == nil || len(route.Steps) == 0 {
		return Progress{ETA: now}
	}
	stepIndex = clampIndex(stepIndex, len(route.Steps))
	step := route.Steps[stepIndex]

	toEnd := geo.GreatCircleDistance(pos, step.End)
	stepProgress := 1.0
	if step.DistanceM > 0 {
		stepProgress = clamp01(1 - toEnd/step.DistanceM)
	}

	total := route.TotalDistanceM
	if total <= 0 {
		for _, s := range route.Steps {
			total += s.DistanceM
		}
	}

	completed := 0.0
	for _, s := range route.Steps[:stepIndex] {
		completed += s.DistanceM
	}

	routeProgress := 1.0
	if total > 0 {
		routeProgress = clamp01((completed + stepProgress*step.DistanceM) / total)
	}

	remaining := time.Duration(route.TotalDurationS * (1 - routeProgress) * float64(time.Second))

	return Progress{
		StepProgress:       stepProgress,
		RouteProgress:      routeProgress,
		DistanceToStepEndM: toEnd,
		ETA:                now.Add(remaining),
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
