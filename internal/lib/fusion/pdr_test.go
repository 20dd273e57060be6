package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
)

var (
	t0     = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	campus = geo.Point{Latitude: 22.2832728, Longitude: 114.1331896}
)

func gravity(at time.Time) Sample { return Sample{Z: 9.8, Timestamp: at} }
func spike(at time.Time, g float64) Sample {
	return Sample{Z: g, Timestamp: at}
}

func TestStepDetector_LatchAndDebounce(t *testing.T) {
	d := NewStepDetector(DefaultConfig())
	ms := func(n int) time.Time { return t0.Add(time.Duration(n) * time.Millisecond) }

	for i := 0; i < 10; i++ {
		assert.False(t, d.Update(gravity(ms(i*50))), "resting samples are not steps")
	}
	assert.InDelta(t, 9.8, d.Average(), 1e-9)

	assert.True(t, d.Update(spike(ms(500), 13)), "peak above threshold and ratio is a step")
	assert.False(t, d.Update(spike(ms(550), 12)), "still latched above threshold-hysteresis")
	assert.False(t, d.Update(gravity(ms(600))), "unlatching sample is not a step")
	assert.False(t, d.Update(spike(ms(650), 13)), "peak 150ms after the last step is debounced")
	assert.False(t, d.Update(gravity(ms(700))))
	assert.True(t, d.Update(spike(ms(800), 13)), "peak 300ms after the last step counts")
}

func TestStepDetector_RatioGate(t *testing.T) {
	d := NewStepDetector(DefaultConfig())
	for i := 0; i < 10; i++ {
		assert.False(t, d.Update(spike(t0.Add(time.Duration(i)*time.Second), 10.4)))
	}
	// Above the absolute threshold but within 1.2x of a high average
	assert.False(t, d.Update(spike(t0.Add(20*time.Second), 12)))
	assert.True(t, d.Update(spike(t0.Add(21*time.Second), 14)))
}

func TestHeadingFilter(t *testing.T) {
	h := NewHeadingFilter(DefaultConfig())
	east := Sample{X: 0, Y: 1}
	north := Sample{X: 1, Y: 0}

	assert.InDelta(t, 0, h.Update(north), 1e-9)
	assert.False(t, h.Stable(), "first sample is never stable")

	assert.InDelta(t, 27, h.Update(east), 1e-9, "low-pass moves 30% of the way")
	assert.False(t, h.Stable())

	h.Update(east)
	h.Update(east)
	h.Update(east)
	h.Update(east)
	assert.True(t, h.Stable(), "converging heading becomes stable")

	h.Calibrate(180)
	assert.InDelta(t, 90, h.Offset(), 1e-9)
	assert.InDelta(t, 180, h.Heading(), 1e-9)
	assert.True(t, h.Stable())

	assert.InDelta(t, 180, h.Update(east), 1e-9, "offset applies to later samples")
}

func TestPDR_NoPositionBeforeFix(t *testing.T) {
	p := NewPDR(DefaultConfig())
	p.onStep(t0)
	_, ok := p.Position()
	assert.False(t, ok)
	assert.Equal(t, 1, p.State().StepCount)
}

func TestPDR_ConfidenceResetsOnGoodFix(t *testing.T) {
	cfg := DefaultConfig()
	p := NewPDR(cfg)

	snapped := p.OnGPSFix(Position{Latitude: campus.Latitude, Longitude: campus.Longitude, AccuracyM: 8, Timestamp: t0})
	require.True(t, snapped)
	assert.Equal(t, 0.9, p.State().Confidence)

	for i := 1; i <= 30; i++ {
		p.onStep(t0.Add(time.Duration(i) * 500 * time.Millisecond))
	}
	state := p.State()
	assert.NotEqual(t, 0.9, state.Confidence)
	assert.InDelta(t, 0.30, state.DriftFactor, 1e-9)
	assert.Equal(t, 30, state.StepsSinceFix)

	p.state.Confidence = 0.12
	p.OnGPSFix(Position{Latitude: campus.Latitude, Longitude: campus.Longitude, AccuracyM: 19.9, Timestamp: t0.Add(time.Minute)})
	state = p.State()
	assert.Equal(t, 0.9, state.Confidence)
	assert.Zero(t, state.DriftFactor)
	assert.Zero(t, state.StepsSinceFix)
}

func TestPDR_PoorFixDoesNotSnap(t *testing.T) {
	p := NewPDR(DefaultConfig())
	assert.False(t, p.OnGPSFix(Position{Latitude: 22.28, Longitude: 114.13, AccuracyM: 20, Timestamp: t0}))
	_, ok := p.Position()
	assert.False(t, ok)
	assert.Nil(t, p.State().LastGPSFix)
}

func TestPDR_DriftCapped(t *testing.T) {
	p := NewPDR(DefaultConfig())
	for i := 0; i < 200; i++ {
		p.onStep(t0.Add(time.Duration(i) * time.Second))
	}
	assert.InDelta(t, 0.95, p.State().DriftFactor, 1e-9)
	assert.GreaterOrEqual(t, p.State().Confidence, 0.0)
	assert.LessOrEqual(t, p.State().Confidence, 1.0)
}

func TestPDR_StepLengthRelearned(t *testing.T) {
	tests := []struct {
		name     string
		walked   float64
		expected float64
	}{
		{"normal gait", 8, 0.8},
		{"clamped high", 30, 1.2},
		{"clamped low", 1, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPDR(DefaultConfig())
			p.OnGPSFix(Position{Latitude: campus.Latitude, Longitude: campus.Longitude, AccuracyM: 5, Timestamp: t0})
			for i := 1; i <= 10; i++ {
				p.onStep(t0.Add(time.Duration(i) * 600 * time.Millisecond))
			}
			next := geo.Offset(campus, tt.walked, 0)
			p.OnGPSFix(Position{Latitude: next.Latitude, Longitude: next.Longitude, AccuracyM: 5, Timestamp: t0.Add(10 * time.Second)})
			assert.InDelta(t, tt.expected, p.State().StepLengthM, 0.01)
		})
	}
}

func TestPDR_StepsAdvanceAlongHeading(t *testing.T) {
	p := NewPDR(DefaultConfig())
	// Moving fix calibrates heading to due east
	p.OnGPSFix(Position{Latitude: campus.Latitude, Longitude: campus.Longitude, AccuracyM: 5, HeadingDeg: 90, SpeedMps: 1.3, Timestamp: t0})
	assert.True(t, p.State().HeadingStable)

	for i := 1; i <= 10; i++ {
		p.onStep(t0.Add(time.Duration(i) * 500 * time.Millisecond))
	}

	pos, ok := p.Position()
	require.True(t, ok)
	assert.Equal(t, SourcePDR, pos.Source)
	assert.InDelta(t, 7.0, geo.GreatCircleDistance(campus, pos.Point()), 0.05)
	assert.InDelta(t, 90, geo.GreatCircleBearing(campus, pos.Point()), 0.5)
	assert.InDelta(t, 1.4, pos.SpeedMps, 1e-9, "0.7m every 500ms")
	assert.Greater(t, pos.AccuracyM, 5.0, "accuracy degrades with drift")
}
