package fusion

import (
	"math"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
)

// HeadingFilter turns raw magnetometer readings into a smoothed, calibrated heading
type HeadingFilter struct {
	alpha       float64
	stableDelta float64

	offset      float64
	heading     float64
	lastRaw     float64
	stable      bool
	initialized bool
}

// NewHeadingFilter creates a filter with the configured smoothing factor
func NewHeadingFilter(cfg Config) *HeadingFilter {
	return &HeadingFilter{
		alpha:       cfg.HeadingAlpha,
		stableDelta: cfg.HeadingStableDelta,
	}
}

// Update applies one magnetometer sample and returns the filtered heading in degrees
func (h *HeadingFilter) Update(sample Sample) float64 {
	raw := geo.NormalizeDegrees(math.Atan2(sample.Y, sample.X) * 180 / math.Pi)
	h.lastRaw = raw
	corrected := geo.NormalizeDegrees(raw + h.offset)

	if !h.initialized {
		h.heading = corrected
		h.initialized = true
		h.stable = false
		return h.heading
	}

	previous := h.heading
	h.heading = geo.NormalizeDegrees(previous + h.alpha*geo.AngleDifference(previous, corrected))
	h.stable = math.Abs(geo.AngleDifference(previous, h.heading)) < h.stableDelta
	return h.heading
}

// Calibrate aligns the magnetic heading with a GPS course over ground
func (h *HeadingFilter) Calibrate(courseDeg float64) {
	course := geo.NormalizeDegrees(courseDeg)
	h.offset = geo.AngleDifference(h.lastRaw, course)
	h.heading = course
	h.initialized = true
	h.stable = true
}

func (h *HeadingFilter) Heading() float64 { return h.heading }
func (h *HeadingFilter) Offset() float64  { return h.offset }
func (h *HeadingFilter) Stable() bool     { return h.stable }
func (h *HeadingFilter) Ready() bool      { return h.initialized }
