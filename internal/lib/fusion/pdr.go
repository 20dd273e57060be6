package fusion

import (
	"math"
	"time"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
)

// PDR integrates detected steps along the filtered heading, anchored and recalibrated by GPS fixes.
// It is not safe for concurrent use; the Engine serializes access.
type PDR struct {
	cfg      Config
	detector *StepDetector
	heading  *HeadingFilter

	state    PdrState
	position *geo.Point

	lastStep time.Time
	prevStep time.Time
}

// NewPDR creates a dead reckoner with no anchor position
func NewPDR(cfg Config) *PDR {
	return &PDR{
		cfg:      cfg,
		detector: NewStepDetector(cfg),
		heading:  NewHeadingFilter(cfg),
		state: PdrState{
			StepLengthM: cfg.DefaultStepLength,
		},
	}
}

// OnAccelerometer feeds an accelerometer sample and reports whether a step was taken
func (p *PDR) OnAccelerometer(sample Sample) bool {
	if !p.detector.Update(sample) {
		return false
	}
	p.onStep(sample.Timestamp)
	return true
}

// OnMagnetometer feeds a magnetometer sample into the heading filter
func (p *PDR) OnMagnetometer(sample Sample) {
	p.heading.Update(sample)
	p.syncHeading()
}

func (p *PDR) onStep(at time.Time) {
	p.state.StepCount++
	p.state.StepsSinceFix++
	p.prevStep, p.lastStep = p.lastStep, at

	if p.position != nil {
		rad := p.state.HeadingDeg * math.Pi / 180
		length := p.state.StepLengthM
		moved := geo.Offset(*p.position, length*math.Cos(rad), length*math.Sin(rad))
		p.position = &moved
	}

	p.state.DriftFactor = math.Min(p.state.DriftFactor+p.cfg.DriftIncrement, p.cfg.MaxDrift)
	p.updateConfidence()
}

// updateConfidence decays confidence toward 1-drift, boosted while the heading is stable
func (p *PDR) updateConfidence() {
	factor := 0.9
	if p.heading.Stable() {
		factor = 1.2
	}
	target := (1 - p.state.DriftFactor) * factor
	p.state.Confidence = clamp(0.8*p.state.Confidence+0.2*target, 0, 1)
}

// OnGPSFix reconciles dead reckoning with a GPS fix. In-motion fixes recalibrate the
// heading; fixes better than GoodFixAccuracy snap the position, relearn step length from
// the distance walked since the previous good fix, and reset drift.
func (p *PDR) OnGPSFix(fix Position) bool {
	if fix.SpeedMps > p.cfg.CalibrationSpeed && fix.HeadingDeg >= 0 && !math.IsNaN(fix.HeadingDeg) {
		p.heading.Calibrate(fix.HeadingDeg)
		p.syncHeading()
	}

	if fix.AccuracyM >= p.cfg.GoodFixAccuracy {
		return false
	}

	if p.state.LastGPSFix != nil && p.state.StepsSinceFix > 0 {
		walked := geo.GreatCircleDistance(p.state.LastGPSFix.Point(), fix.Point())
		p.state.StepLengthM = clamp(walked/float64(p.state.StepsSinceFix), p.cfg.MinStepLength, p.cfg.MaxStepLength)
	}

	anchor := fix.Point()
	p.position = &anchor
	last := fix
	p.state.LastGPSFix = &last
	p.state.StepsSinceFix = 0
	p.state.DriftFactor = 0
	p.state.Confidence = p.cfg.FixConfidence
	return true
}

func (p *PDR) syncHeading() {
	p.state.HeadingDeg = p.heading.Heading()
	p.state.HeadingOffsetDeg = p.heading.Offset()
	p.state.HeadingStable = p.heading.Stable()
}

// Position returns the dead-reckoned position, if the PDR has been anchored
func (p *PDR) Position() (Position, bool) {
	if p.position == nil {
		return Position{}, false
	}

	accuracy := 0.0
	timestamp := p.lastStep
	if fix := p.state.LastGPSFix; fix != nil {
		accuracy = fix.AccuracyM
		if fix.Timestamp.After(timestamp) {
			timestamp = fix.Timestamp
		}
	}
	accuracy += float64(p.state.StepsSinceFix) * p.state.StepLengthM * p.state.DriftFactor

	speed := 0.0
	if !p.prevStep.IsZero() {
		if interval := p.lastStep.Sub(p.prevStep); interval > 0 && interval < 2*time.Second {
			speed = p.state.StepLengthM / interval.Seconds()
		}
	}

	return Position{
		Latitude:   p.position.Latitude,
		Longitude:  p.position.Longitude,
		AccuracyM:  accuracy,
		HeadingDeg: p.state.HeadingDeg,
		SpeedMps:   speed,
		Timestamp:  timestamp,
		Source:     SourcePDR,
	}, true
}

// State returns a copy of the PDR state
func (p *PDR) State() PdrState {
	s := p.state
	if s.LastGPSFix != nil {
		fix := *s.LastGPSFix
		s.LastGPSFix = &fix
	}
	return s
}
