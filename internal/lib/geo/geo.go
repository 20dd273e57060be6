package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/simplify"
	"github.com/twpayne/go-polyline"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/errs"
)

// metersPerDegree converts degree-scaled planar distances to meters on the same sphere
// orb uses for great-circle math, so planar and spherical results agree at short range.
const metersPerDegree = math.Pi / 180 * orb.EarthRadius

// GreatCircleDistance calculates the great-circle distance between two points in meters
func GreatCircleDistance(p1, p2 Point) float64 {
	if p1 == p2 {
		return 0
	}
	return orbgeo.DistanceHaversine(p1.orbPoint(), p2.orbPoint())
}

// GreatCircleBearing returns the initial bearing from p1 to p2 in degrees, normalized to [0, 360)
func GreatCircleBearing(p1, p2 Point) float64 {
	return NormalizeDegrees(orbgeo.Bearing(p1.orbPoint(), p2.orbPoint()))
}

// NormalizeDegrees wraps an angle into [0, 360)
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// AngleDifference returns the signed smallest difference to-from in degrees, in (-180, 180]
func AngleDifference(from, to float64) float64 {
	d := NormalizeDegrees(to - from)
	if d > 180 {
		d -= 360
	}
	return d
}

// Offset moves a point by the given north/east displacement in meters using the local
// planar approximation. Valid for displacements much smaller than the Earth's radius.
func Offset(p Point, northMeters, eastMeters float64) Point {
	dLat := northMeters / metersPerDegree
	cosLat := math.Cos(p.Latitude * math.Pi / 180)
	if math.Abs(cosLat) < 1e-12 {
		cosLat = 1e-12
	}
	dLng := eastMeters / (metersPerDegree * cosLat)
	return Point{Latitude: p.Latitude + dLat, Longitude: p.Longitude + dLng}
}

// ProjectOntoSegment projects point onto segment a-b in a local equirectangular frame.
// It returns the distance in meters to the closest point on the segment and the
// projection parameter t clamped to [0, 1]. A degenerate segment falls back to the
// great-circle distance to a.
func ProjectOntoSegment(point, a, b Point) (distance float64, t float64) {
	if a == b {
		return GreatCircleDistance(point, a), 0
	}

	cosLat := math.Cos((a.Latitude + b.Latitude) / 2 * math.Pi / 180)

	ax, ay := a.Longitude*cosLat, a.Latitude
	bx, by := b.Longitude*cosLat, b.Latitude
	px, py := point.Longitude*cosLat, point.Latitude

	dx := bx - ax
	dy := by - ay
	lenSq := dx*dx + dy*dy
	if lenSq > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}

	ex := px - (ax + t*dx)
	ey := py - (ay + t*dy)
	return math.Sqrt(ex*ex+ey*ey) * metersPerDegree, t
}

// DistanceToSegment calculates the distance in meters from point to segment a-b
func DistanceToSegment(point, a, b Point) float64 {
	d, _ := ProjectOntoSegment(point, a, b)
	return d
}

// DistanceToPolyline calculates the minimum distance from point to any segment of the polyline.
// An empty polyline is infinitely far away; a single vertex degenerates to point distance.
func DistanceToPolyline(point Point, points []Point) float64 {
	switch len(points) {
	case 0:
		return math.Inf(1)
	case 1:
		return GreatCircleDistance(point, points[0])
	}

	minDistance := math.Inf(1)
	for i := 0; i < len(points)-1; i++ {
		if d := DistanceToSegment(point, points[i], points[i+1]); d < minDistance {
			minDistance = d
		}
	}
	return minDistance
}

// DecodePolyline decodes a Google polyline string to a point sequence.
// Malformed input yields an empty sequence; callers treat that as "no geometry".
func DecodePolyline(encoded string) []Point {
	points, err := DecodePolylineStrict(encoded)
	if err != nil {
		return []Point{}
	}
	return points
}

// DecodePolylineStrict decodes a Google polyline string, reporting malformed input as a GeometryError
func DecodePolylineStrict(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, &errs.GeometryError{Input: encoded, Err: errors.New("encoded polyline string is empty")}
	}

	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, &errs.GeometryError{Input: encoded, Err: err}
	}
	if len(rest) > 0 {
		return nil, &errs.GeometryError{Input: encoded, Err: errors.New("trailing bytes after polyline")}
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{Latitude: coord[0], Longitude: coord[1]}
	}
	return points, nil
}

// EncodePolyline encodes points with the standard 1e5 Google polyline encoding
func EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

// Simplify thins a polyline with Douglas-Peucker, keeping vertices that deviate more than
// toleranceMeters from the simplified line. Endpoints are always kept.
func Simplify(points []Point, toleranceMeters float64) []Point {
	if len(points) < 3 {
		return append([]Point(nil), points...)
	}

	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = p.orbPoint()
	}

	simplified, ok := simplify.DouglasPeucker(toleranceMeters / metersPerDegree).Simplify(ls).(orb.LineString)
	if !ok {
		return append([]Point(nil), points...)
	}

	result := make([]Point, len(simplified))
	for i, p := range simplified {
		result[i] = fromOrb(p)
	}
	return result
}

// SamplePoints reduces a polyline to at most maxPoints vertices, first by simplification and
// then by uniform subsampling. First and last vertices are preserved.
func SamplePoints(points []Point, maxPoints int) []Point {
	if maxPoints < 2 || len(points) <= maxPoints {
		return append([]Point(nil), points...)
	}

	reduced := Simplify(points, 2.0)
	if len(reduced) <= maxPoints {
		return reduced
	}

	sampled := make([]Point, maxPoints)
	step := float64(len(reduced)-1) / float64(maxPoints-1)
	for i := 0; i < maxPoints; i++ {
		sampled[i] = reduced[int(math.Round(float64(i)*step))]
	}
	return sampled
}

// Coordinate Conversion Utilities

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !IsValid(point) {
		return Point{}, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}
	return point, nil
}

// ParseCoordinates recognizes a "lat,lng" string such as "22.2832728, 114.1331896"
func ParseCoordinates(input string) (Point, bool) {
	parts := strings.Split(strings.TrimSpace(input), ",")
	if len(parts) != 2 {
		return Point{}, false
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, false
	}

	point, err := NewPoint(lat, lng)
	if err != nil {
		return Point{}, false
	}
	return point, true
}

// IsValid validates latitude and longitude values
func IsValid(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}
