package fusion

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// StepDetector finds walking steps in the accelerometer magnitude signal using a latched
// peak detector over a rolling window.
type StepDetector struct {
	cfg      Config
	window   []float64
	next     int
	filled   int
	latched  bool
	lastStep time.Time
}

// NewStepDetector creates a detector with an empty window
func NewStepDetector(cfg Config) *StepDetector {
	size := cfg.WindowSize
	if size <= 0 {
		size = 10
	}
	return &StepDetector{
		cfg:    cfg,
		window: make([]float64, size),
	}
}

// Update feeds one accelerometer sample and reports whether it confirmed a step
func (d *StepDetector) Update(sample Sample) bool {
	magnitude := math.Sqrt(sample.X*sample.X + sample.Y*sample.Y + sample.Z*sample.Z)

	average := 0.0
	if d.filled > 0 {
		average = stat.Mean(d.window[:d.filled], nil)
	}

	d.window[d.next] = magnitude
	d.next = (d.next + 1) % len(d.window)
	if d.filled < len(d.window) {
		d.filled++
	}

	if d.latched {
		if magnitude < d.cfg.StepThreshold-d.cfg.StepHysteresis {
			d.latched = false
		}
		return false
	}

	if magnitude <= d.cfg.StepThreshold || magnitude <= d.cfg.StepRatio*average {
		return false
	}

	d.latched = true
	if !d.lastStep.IsZero() && sample.Timestamp.Sub(d.lastStep) < d.cfg.StepDebounce {
		return false
	}
	d.lastStep = sample.Timestamp
	return true
}

// Average returns the current rolling mean of the magnitude window
func (d *StepDetector) Average() float64 {
	if d.filled == 0 {
		return 0
	}
	return stat.Mean(d.window[:d.filled], nil)
}
