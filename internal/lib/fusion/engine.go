package fusion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/errs"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
)

// Engine produces a best-estimate position from GPS fixes and pedestrian dead reckoning.
// Sensor handlers do O(window) work under a short lock and never block on consumers.
type Engine struct {
	cfg Config
	now func() time.Time

	mu          sync.Mutex
	pdr         *PDR
	lastGPS     *Position
	initialized bool

	subsMu      sync.Mutex
	subscribers map[int]chan Position
	nextSubID   int

	logCtx context.Context // guarded by mu
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the engine's time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine that has not yet subscribed to any sensors
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:         cfg,
		now:         time.Now,
		pdr:         NewPDR(cfg),
		subscribers: make(map[int]chan Position),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start subscribes to the providers and pumps their streams into the engine until ctx is
// cancelled or Stop is called. A failed inertial subscription leaves the engine uninitialized
// and running GPS-only; the returned SensorError is informational.
func (e *Engine) Start(ctx context.Context, inertial InertialProvider, location LocationProvider) error {
	ctx, cancel := context.WithCancel(logging.EnsureLogger(ctx))
	e.cancel = cancel

	e.mu.Lock()
	e.logCtx = ctx
	e.mu.Unlock()

	var sensorErr error

	if inertial != nil {
		accel, accelErr := inertial.Accelerometer(ctx)
		mag, magErr := inertial.Magnetometer(ctx)
		switch {
		case accelErr != nil:
			sensorErr = &errs.SensorError{Sensor: "accelerometer", Err: accelErr}
		case magErr != nil:
			sensorErr = &errs.SensorError{Sensor: "magnetometer", Err: magErr}
		default:
			e.mu.Lock()
			e.initialized = true
			e.mu.Unlock()
			e.pump(ctx, func() {
				for s := range accel {
					e.HandleAccelerometer(s)
				}
			})
			e.pump(ctx, func() {
				for s := range mag {
					e.HandleMagnetometer(s)
				}
			})
		}
		if sensorErr != nil {
			logging.Warnw(ctx, "Inertial sensors unavailable, continuing GPS-only", "error", sensorErr)
		}
	}

	if location != nil {
		seedCtx, seedCancel := context.WithTimeout(ctx, 2*time.Second)
		if fix, err := location.CurrentPosition(seedCtx); err == nil {
			e.HandleLocation(fix)
		} else {
			logging.Debugw(ctx, "No initial position available", "error", err)
		}
		seedCancel()

		fixes, err := location.Positions(ctx)
		if err != nil {
			locErr := &errs.SensorError{Sensor: "location", Err: err}
			logging.Warnw(ctx, "Location stream unavailable", "error", locErr)
			if sensorErr == nil {
				sensorErr = locErr
			}
		} else {
			e.pump(ctx, func() {
				for fix := range fixes {
					e.HandleLocation(fix)
				}
			})
		}
	}

	return sensorErr
}

// pump runs a stream consumer that exits when its channel closes or ctx ends
func (e *Engine) pump(ctx context.Context, consume func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		done := make(chan struct{})
		go func() {
			defer close(done)
			consume()
		}()
		select {
		case <-ctx.Done():
		case <-done:
		}
	}()
}

// logContext is the context passed to Start, or a fresh logger-carrying one before Start
func (e *Engine) logContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.logCtx == nil {
		e.logCtx = logging.EnsureLogger(context.Background())
	}
	return e.logCtx
}

// Stop cancels sensor subscriptions and closes subscriber channels
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for id, ch := range e.subscribers {
		close(ch)
		delete(e.subscribers, id)
	}
}

// HandleAccelerometer processes one accelerometer sample
func (e *Engine) HandleAccelerometer(sample Sample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = e.now()
	}

	e.mu.Lock()
	stepped := e.pdr.OnAccelerometer(sample)
	var fused Position
	var ok bool
	if stepped {
		fused, ok = e.fuseLocked(e.now())
	}
	e.mu.Unlock()

	if ok {
		e.publish(fused)
	}
}

// HandleMagnetometer processes one magnetometer sample
func (e *Engine) HandleMagnetometer(sample Sample) {
	e.mu.Lock()
	e.pdr.OnMagnetometer(sample)
	e.mu.Unlock()
}

// HandleLocation processes one GPS fix
func (e *Engine) HandleLocation(fix Position) {
	if !geo.IsValid(fix.Point()) || fix.AccuracyM < 0 {
		logging.Warnw(e.logContext(), "Discarding invalid location fix",
			"lat", fix.Latitude, "lng", fix.Longitude, "accuracy_m", fix.AccuracyM)
		return
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = e.now()
	}
	fix.Source = SourceGPS

	e.mu.Lock()
	e.lastGPS = &fix
	e.pdr.OnGPSFix(fix)
	fused, ok := e.fuseLocked(e.now())
	e.mu.Unlock()

	if ok {
		e.publish(fused)
	}
}

// FusedPosition evaluates the fusion policy at the current time
func (e *Engine) FusedPosition() (Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fuseLocked(e.now())
}

// fuseLocked applies, in order: fresh accurate GPS verbatim; confident PDR; a weighted
// blend of both; whichever single estimate exists.
func (e *Engine) fuseLocked(now time.Time) (Position, bool) {
	gps := e.lastGPS
	pdrPos, havePDR := e.pdr.Position()
	state := e.pdr.state

	if gps != nil && now.Sub(gps.Timestamp) < e.cfg.FreshFixAge && gps.AccuracyM < e.cfg.GoodFixAccuracy {
		return *gps, true
	}

	if havePDR && state.Confidence > e.cfg.PDRConfidence {
		return pdrPos, true
	}

	if gps != nil && havePDR {
		wGPS := clamp(1-gps.AccuracyM/100, 0.1, 0.9)
		wPDR := clamp(state.Confidence, 0.1, 0.9)
		total := wGPS + wPDR
		wGPS, wPDR = wGPS/total, wPDR/total

		heading := gps.HeadingDeg
		if state.HeadingStable {
			heading = pdrPos.HeadingDeg
		}

		return Position{
			Latitude:   wGPS*gps.Latitude + wPDR*pdrPos.Latitude,
			Longitude:  wGPS*gps.Longitude + wPDR*pdrPos.Longitude,
			AccuracyM:  wGPS*gps.AccuracyM + wPDR*pdrPos.AccuracyM,
			HeadingDeg: heading,
			SpeedMps:   gps.SpeedMps,
			Timestamp:  now,
			Source:     SourceFused,
		}, true
	}

	if gps != nil {
		return *gps, true
	}
	if havePDR {
		return pdrPos, true
	}
	return Position{}, false
}

// PdrState returns a snapshot of the dead reckoning state
func (e *Engine) PdrState() PdrState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pdr.State()
}

// Initialized reports whether inertial sensors were subscribed successfully
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// Subscribe returns a channel of fused position updates. Slow subscribers miss updates
// rather than stall sensor delivery. The returned func unsubscribes.
func (e *Engine) Subscribe(buffer int) (<-chan Position, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Position, buffer)

	e.subsMu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = ch
	e.subsMu.Unlock()

	return ch, func() {
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		if sub, ok := e.subscribers[id]; ok {
			close(sub)
			delete(e.subscribers, id)
		}
	}
}

func (e *Engine) publish(p Position) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- p:
		default:
		}
	}
}

// String summarizes the engine state for logs
func (e *Engine) String() string {
	state := e.PdrState()
	return fmt.Sprintf("fusion(steps=%d conf=%.2f drift=%.2f stable=%t)",
		state.StepCount, state.Confidence, state.DriftFactor, state.HeadingStable)
}
