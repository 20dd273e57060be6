// Package export renders navigation routes for debugging and sharing.
package export

import (
	"fmt"
	"image/color"
	"io"

	"github.com/twpayne/go-kml"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/routing"
)

const (
	routeStyleID    = "route"
	stepStyleID     = "step"
	positionStyleID = "position"
)

// RouteKML builds a KML document holding the route line, a placemark per step and, when known,
// the walker's current position.
func RouteKML(name string, route *routing.RouteCandidate, position *geo.Point) *kml.CompoundElement {
	children := []kml.Element{
		kml.Name(name),
		kml.SharedStyle(routeStyleID,
			kml.LineStyle(kml.Color(color.RGBA{R: 0, G: 120, B: 255, A: 220}), kml.Width(4)),
		),
		kml.SharedStyle(stepStyleID,
			kml.IconStyle(kml.Scale(0.8)),
		),
		kml.SharedStyle(positionStyleID,
			kml.IconStyle(kml.Color(color.RGBA{R: 255, G: 60, B: 0, A: 255}), kml.Scale(1.2)),
		),
	}

	if route != nil {
		if line := route.Geometry(); len(line) > 1 {
			children = append(children, kml.Placemark(
				kml.Name(routeTitle(route)),
				kml.Description(fmt.Sprintf("%.0f m, %.0f s", route.TotalDistanceM, route.TotalDurationS)),
				kml.StyleURL("#"+routeStyleID),
				kml.LineString(kml.Tessellate(true), kml.Coordinates(coordinates(line)...)),
			))
		}
		for i, step := range route.Steps {
			children = append(children, kml.Placemark(
				kml.Name(fmt.Sprintf("%d. %s", i+1, step.Instruction)),
				kml.Description(fmt.Sprintf("%.0f m", step.DistanceM)),
				kml.StyleURL("#"+stepStyleID),
				kml.Point(kml.Coordinates(coordinate(step.Start))),
			))
		}
	}

	if position != nil {
		children = append(children, kml.Placemark(
			kml.Name("Current position"),
			kml.StyleURL("#"+positionStyleID),
			kml.Point(kml.Coordinates(coordinate(*position))),
		))
	}

	return kml.KML(kml.Document(children...))
}

// WriteRouteKML writes the indented KML document for route to w
func WriteRouteKML(w io.Writer, name string, route *routing.RouteCandidate, position *geo.Point) error {
	if err := RouteKML(name, route, position).WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write kml: %w", err)
	}
	return nil
}

func routeTitle(route *routing.RouteCandidate) string {
	if route.Summary != "" {
		return route.Summary
	}
	return "Route"
}

func coordinate(p geo.Point) kml.Coordinate {
	return kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
}

func coordinates(points []geo.Point) []kml.Coordinate {
	coords := make([]kml.Coordinate, len(points))
	for i, p := range points {
		coords[i] = coordinate(p)
	}
	return coords
}
