package geo

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/errs"
)

// HKU main building and Central, the walk the app was first tested on
var (
	hku     = Point{Latitude: 22.2832728, Longitude: 114.1331896}
	central = Point{Latitude: 22.2828941, Longitude: 114.1378027}
)

func TestGreatCircleDistance(t *testing.T) {
	distance := GreatCircleDistance(hku, central)
	assert.InDelta(t, 476, distance, 10, "HKU to Central should be roughly 0.48km")

	assert.Equal(t, 0.0, GreatCircleDistance(hku, hku))

	// One degree of latitude is ~111km
	assert.InDelta(t, 111_320, GreatCircleDistance(Point{0, 0}, Point{1, 0}), 500)
}

func TestGreatCircleBearing(t *testing.T) {
	origin := Point{Latitude: 22.28, Longitude: 114.15}

	assert.InDelta(t, 0, GreatCircleBearing(origin, Point{Latitude: 22.29, Longitude: 114.15}), 0.01)
	assert.InDelta(t, 90, GreatCircleBearing(origin, Point{Latitude: 22.28, Longitude: 114.16}), 0.1)
	assert.InDelta(t, 180, GreatCircleBearing(origin, Point{Latitude: 22.27, Longitude: 114.15}), 0.01)
	assert.InDelta(t, 270, GreatCircleBearing(origin, Point{Latitude: 22.28, Longitude: 114.14}), 0.1)
}

func TestAngleDifference(t *testing.T) {
	assert.InDelta(t, 20, AngleDifference(350, 10), 1e-9)
	assert.InDelta(t, -20, AngleDifference(10, 350), 1e-9)
	assert.InDelta(t, 180, AngleDifference(0, 180), 1e-9)
	assert.InDelta(t, 0, AngleDifference(720, 0), 1e-9)
	assert.InDelta(t, 270, NormalizeDegrees(-90), 1e-9)
}

func TestDistanceToSegment_Degenerate(t *testing.T) {
	points := []Point{
		{Latitude: 22.2840, Longitude: 114.1340},
		{Latitude: 0.0005, Longitude: 0.5},
		{Latitude: -33.86, Longitude: 151.21},
	}

	for _, p := range points {
		assert.Equal(t, GreatCircleDistance(p, hku), DistanceToSegment(p, hku, hku))
	}
}

func TestProjectOntoSegment_Midpoint(t *testing.T) {
	a := Point{Latitude: 0, Longitude: 0}
	b := Point{Latitude: 0, Longitude: 1}
	p := Point{Latitude: 0.0005, Longitude: 0.5}

	distance, ratio := ProjectOntoSegment(p, a, b)
	assert.InDelta(t, 0.5, ratio, 1e-6)

	expected := GreatCircleDistance(p, Point{Latitude: 0, Longitude: 0.5})
	assert.InDelta(t, expected, distance, 0.1)
	assert.InDelta(t, 55.6, distance, 0.5)
}

func TestProjectOntoSegment_Clamps(t *testing.T) {
	a := Point{Latitude: 0, Longitude: 0}
	b := Point{Latitude: 0, Longitude: 0.001}

	distance, ratio := ProjectOntoSegment(Point{Latitude: 0, Longitude: -0.001}, a, b)
	assert.Equal(t, 0.0, ratio)
	assert.InDelta(t, GreatCircleDistance(a, Point{Latitude: 0, Longitude: -0.001}), distance, 0.5)

	_, ratio = ProjectOntoSegment(Point{Latitude: 0, Longitude: 0.005}, a, b)
	assert.Equal(t, 1.0, ratio)
}

func TestDistanceToPolyline(t *testing.T) {
	assert.True(t, math.IsInf(DistanceToPolyline(hku, nil), 1), "empty polyline is infinitely far")
	assert.Equal(t, GreatCircleDistance(hku, central), DistanceToPolyline(hku, []Point{central}))

	route := []Point{
		{Latitude: 22.2800, Longitude: 114.1500},
		{Latitude: 22.2810, Longitude: 114.1500},
		{Latitude: 22.2810, Longitude: 114.1520},
	}

	onRoute := Point{Latitude: 22.2805, Longitude: 114.1500}
	assert.Less(t, DistanceToPolyline(onRoute, route), 0.5)

	// ~100m east of the first leg, but closest to the second leg's start
	offRoute := Point{Latitude: 22.2805, Longitude: 114.15097}
	d := DistanceToPolyline(offRoute, route)
	assert.InDelta(t, 55, d, 5)
}

func TestDecodePolyline(t *testing.T) {
	// Reference example from Google's encoded polyline documentation
	points := DecodePolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.Len(t, points, 3)
	assert.InDelta(t, 38.5, points[0].Latitude, 1e-5)
	assert.InDelta(t, -120.2, points[0].Longitude, 1e-5)
	assert.InDelta(t, 40.7, points[1].Latitude, 1e-5)
	assert.InDelta(t, -120.95, points[1].Longitude, 1e-5)
	assert.InDelta(t, 43.252, points[2].Latitude, 1e-5)
	assert.InDelta(t, -126.453, points[2].Longitude, 1e-5)
}

func TestDecodePolyline_Malformed(t *testing.T) {
	for _, input := range []string{"", "!!!", "_p~iF~ps|U_"} {
		points := DecodePolyline(input)
		assert.NotNil(t, points)
		assert.Empty(t, points, "malformed input %q should decode to no geometry", input)

		_, err := DecodePolylineStrict(input)
		var geomErr *errs.GeometryError
		assert.True(t, errors.As(err, &geomErr), "expected GeometryError for %q", input)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(40)
		original := make([]Point, n)
		for i := range original {
			original[i] = Point{
				Latitude:  rng.Float64()*170 - 85,
				Longitude: rng.Float64()*358 - 179,
			}
		}

		decoded := DecodePolyline(EncodePolyline(original))
		require.Len(t, decoded, n)
		for i := range original {
			assert.InDelta(t, original[i].Latitude, decoded[i].Latitude, 1e-5)
			assert.InDelta(t, original[i].Longitude, decoded[i].Longitude, 1e-5)
		}
	}
}

func TestEncodeDecode_OutOfRangeCoordinates(t *testing.T) {
	original := []Point{
		{Latitude: 120.5, Longitude: -250.25},
		{Latitude: -95, Longitude: 400},
		{Latitude: 0, Longitude: 0},
	}

	decoded, err := DecodePolylineStrict(EncodePolyline(original))
	require.NoError(t, err, "the codec does not range-check coordinates")
	require.Len(t, decoded, len(original))
	for i := range original {
		assert.InDelta(t, original[i].Latitude, decoded[i].Latitude, 1e-5)
		assert.InDelta(t, original[i].Longitude, decoded[i].Longitude, 1e-5)
	}
}

func TestPolyline_Decoded(t *testing.T) {
	withPoints := Polyline{Points: []Point{hku, central}, EncodedPolyline: "!!!"}
	assert.Equal(t, []Point{hku, central}, withPoints.Decoded())

	encodedOnly := Polyline{EncodedPolyline: EncodePolyline([]Point{hku, central})}
	assert.Len(t, encodedOnly.Decoded(), 2)

	assert.True(t, Polyline{}.IsEmpty())
	assert.Empty(t, Polyline{}.Decoded())
}

func TestOffset(t *testing.T) {
	moved := Offset(hku, 100, 0)
	assert.InDelta(t, 100, GreatCircleDistance(hku, moved), 0.5)
	assert.InDelta(t, 0, GreatCircleBearing(hku, moved), 0.01)

	moved = Offset(hku, 0, 50)
	assert.InDelta(t, 50, GreatCircleDistance(hku, moved), 0.5)
	assert.InDelta(t, 90, GreatCircleBearing(hku, moved), 0.1)
}

func TestSamplePoints(t *testing.T) {
	var line []Point
	for i := 0; i < 200; i++ {
		// A gentle zig-zag so Douglas-Peucker cannot collapse everything
		line = append(line, Offset(hku, float64(i)*10, float64(i%2)*15))
	}

	sampled := SamplePoints(line, 32)
	assert.LessOrEqual(t, len(sampled), 32)
	assert.GreaterOrEqual(t, len(sampled), 2)
	assert.Equal(t, line[0], sampled[0])
	assert.InDelta(t, line[len(line)-1].Latitude, sampled[len(sampled)-1].Latitude, 1e-9)

	short := []Point{hku, central}
	assert.Equal(t, short, SamplePoints(short, 32))
}

func TestParseCoordinates(t *testing.T) {
	point, ok := ParseCoordinates("22.2832728, 114.1331896")
	require.True(t, ok)
	assert.Equal(t, hku, point)

	for _, input := range []string{"Central", "22.28", "91,114", "22.28,181", "a,b", "1,2,3"} {
		_, ok := ParseCoordinates(input)
		assert.False(t, ok, "input %q should not parse", input)
	}
}

func TestNewPoint(t *testing.T) {
	_, err := NewPoint(200, -300)
	assert.Error(t, err)

	p, err := NewPoint(22.28, 114.15)
	require.NoError(t, err)
	assert.True(t, IsValid(p))
}
