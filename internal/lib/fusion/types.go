package fusion

import (
	"context"
	"time"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
)

// Source identifies where a Position estimate came from
type Source string

const (
	SourceGPS   Source = "gps"
	SourcePDR   Source = "pdr"
	SourceFused Source = "fused"
)

// Position is a single location estimate
type Position struct {
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lng"`
	AccuracyM  float64   `json:"accuracy_m"`
	HeadingDeg float64   `json:"heading_deg"`
	SpeedMps   float64   `json:"speed_mps"`
	Timestamp  time.Time `json:"timestamp"`
	Source     Source    `json:"source"`
}

// Point returns the position's coordinate
func (p Position) Point() geo.Point {
	return geo.Point{Latitude: p.Latitude, Longitude: p.Longitude}
}

// Sample is one three-axis inertial reading. Accelerometer samples are in m/s²,
// magnetometer samples in µT.
type Sample struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	Timestamp time.Time `json:"timestamp"`
}

// PdrState is the pedestrian dead reckoning state owned by the engine
type PdrState struct {
	StepCount        int       `json:"step_count"`
	HeadingDeg       float64   `json:"heading_deg"`
	HeadingOffsetDeg float64   `json:"heading_offset_deg"`
	HeadingStable    bool      `json:"heading_stable"`
	Confidence       float64   `json:"confidence"`
	DriftFactor      float64   `json:"drift_factor"`
	StepLengthM      float64   `json:"step_length_m"`
	LastGPSFix       *Position `json:"last_gps_fix,omitempty"`
	StepsSinceFix    int       `json:"steps_since_fix"`
}

// LocationProvider delivers GPS fixes
type LocationProvider interface {
	// Stream of fixes until ctx is cancelled
	Positions(ctx context.Context) (<-chan Position, error)

	// One-shot current fix
	CurrentPosition(ctx context.Context) (Position, error)
}

// InertialProvider delivers raw accelerometer and magnetometer streams
type InertialProvider interface {
	Accelerometer(ctx context.Context) (<-chan Sample, error)
	Magnetometer(ctx context.Context) (<-chan Sample, error)
}

// Config holds the dead reckoning and fusion tuning constants
type Config struct {
	StepThreshold      float64       `yaml:"step_threshold"`       // absolute magnitude, m/s²
	StepRatio          float64       `yaml:"step_ratio"`           // multiple of the window average
	StepHysteresis     float64       `yaml:"step_hysteresis"`      // unlatch below threshold minus this
	WindowSize         int           `yaml:"window_size"`
	StepDebounce       time.Duration `yaml:"step_debounce"`
	DefaultStepLength  float64       `yaml:"default_step_length"`
	MinStepLength      float64       `yaml:"min_step_length"`
	MaxStepLength      float64       `yaml:"max_step_length"`
	DriftIncrement     float64       `yaml:"drift_increment"`
	MaxDrift           float64       `yaml:"max_drift"`
	HeadingAlpha       float64       `yaml:"heading_alpha"`
	HeadingStableDelta float64       `yaml:"heading_stable_delta"`
	CalibrationSpeed   float64       `yaml:"calibration_speed"`
	GoodFixAccuracy    float64       `yaml:"good_fix_accuracy"`
	FreshFixAge        time.Duration `yaml:"fresh_fix_age"`
	PDRConfidence      float64       `yaml:"pdr_confidence"` // PDR wins above this
	FixConfidence      float64       `yaml:"fix_confidence"` // confidence after a good fix
}

// DefaultConfig returns the tuning used for walking pedestrians
func DefaultConfig() Config {
	return Config{
		StepThreshold:      11.5,
		StepRatio:          1.2,
		StepHysteresis:     1.0,
		WindowSize:         10,
		StepDebounce:       250 * time.Millisecond,
		DefaultStepLength:  0.7,
		MinStepLength:      0.5,
		MaxStepLength:      1.2,
		DriftIncrement:     0.01,
		MaxDrift:           0.95,
		HeadingAlpha:       0.3,
		HeadingStableDelta: 10,
		CalibrationSpeed:   0.5,
		GoodFixAccuracy:    20,
		FreshFixAge:        5 * time.Second,
		PDRConfidence:      0.7,
		FixConfidence:      0.9,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
