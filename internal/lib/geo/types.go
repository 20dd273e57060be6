package geo

import "github.com/paulmach/orb"

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat" yaml:"lat"`
	Longitude float64 `json:"lng" yaml:"lng"`
}

// Polyline represents an encoded polyline with optional decoded points
type Polyline struct {
	EncodedPolyline string  `json:"encoded_polyline,omitempty"`
	Points          []Point `json:"points,omitempty"`
}

// Decoded returns the polyline's points, decoding EncodedPolyline when no points were supplied.
// Malformed encodings yield an empty slice.
func (p Polyline) Decoded() []Point {
	if len(p.Points) > 0 {
		return p.Points
	}
	return DecodePolyline(p.EncodedPolyline)
}

// IsEmpty reports whether the polyline carries no geometry at all
func (p Polyline) IsEmpty() bool {
	return len(p.Points) == 0 && p.EncodedPolyline == ""
}

// orbPoint converts to orb's [lng, lat] ordering
func (p Point) orbPoint() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

func fromOrb(p orb.Point) Point {
	return Point{Latitude: p.Lat(), Longitude: p.Lon()}
}
