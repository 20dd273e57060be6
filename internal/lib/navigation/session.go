package navigation

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/errs"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/fusion"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/routing"
)

// Session owns one user's navigation state. Explicit calls, timer ticks and fetch completions
// are all applied by a single goroutine reading one mailbox, so no two mutations interleave.
type Session struct {
	id   string
	cfg  Config
	deps Dependencies
	now  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	events     chan func()
	closed     chan struct{}
	finished   chan struct{}
	closeOnce  sync.Once
	lastActive atomic.Int64

	states        *broadcaster[NavigationState]
	notifications *broadcaster[Notification]

	snapMu   sync.RWMutex
	snapshot NavigationState

	// Everything below is owned by the run goroutine
	state          NavigationState
	selection      *routing.Selection
	generation     uint64
	pending        []func(error)
	startTime      time.Time
	progressFloor  float64
	geometryWarned bool
	routeTicker    *time.Ticker
	distanceTicker *time.Ticker
	autoEnd        *time.Timer
	autoEndToken   uint64
}

// Option configures a Session
type Option func(*Session)

// WithClock overrides the time source used for grace periods, progress and ETA
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession starts an idle session. ctx bounds the session's lifetime and carries its logger.
func NewSession(ctx context.Context, id string, cfg Config, deps Dependencies, opts ...Option) *Session {
	if deps.Matcher == nil {
		deps.Matcher = routing.NewRouteMatcher(cfg.OffRouteThresholdM, cfg.WaypointThresholdM)
	}
	if deps.Evaluator == nil {
		deps.Evaluator = routing.NewEvaluator(routing.DefaultEvaluatorConfig(), nil)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}

	s := &Session{
		id:            id,
		cfg:           cfg,
		deps:          deps,
		now:           time.Now,
		events:        make(chan func(), 64),
		closed:        make(chan struct{}),
		finished:      make(chan struct{}),
		states:        newBroadcaster[NavigationState](),
		notifications: newBroadcaster[Notification](),
		state:         NavigationState{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(logging.EnsureLogger(ctx))
	s.snapshot = s.state
	s.touch()

	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.finished)
	defer s.stopAllTimers()
	defer func() {
		// Recover from any panics in the session loop
		if r := recover(); r != nil {
			err, _ := errors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(s.ctx, "Navigation session: recovered from panic",
				"session", s.id, "error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
			s.markClosed()
		}
	}()

	for {
		var routeTick, distanceTick <-chan time.Time
		if s.routeTicker != nil {
			routeTick = s.routeTicker.C
		}
		if s.distanceTicker != nil {
			distanceTick = s.distanceTicker.C
		}

		select {
		case <-s.closed:
			return
		case fn := <-s.events:
			fn()
		case <-routeTick:
			s.checkRoute()
		case <-distanceTick:
			s.updateDistance()
		}
	}
}

// post enqueues fn for the session goroutine, dropping it if the session is closed
func (s *Session) post(fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.closed:
		return false
	}
}

// do runs fn on the session goroutine and waits until fn, or a fetch it started, calls done
func (s *Session) do(ctx context.Context, fn func(done func(error))) error {
	s.touch()

	result := make(chan error, 1)
	var once sync.Once
	done := func(err error) {
		once.Do(func() { result <- err })
	}

	select {
	case s.events <- func() { fn(done) }:
	case <-s.closed:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-s.closed:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// LastActivity returns when a caller last interacted with the session
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// State returns the latest committed navigation state
func (s *Session) State() NavigationState {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snapshot
}

// Subscribe streams committed states. Slow subscribers miss intermediate states.
func (s *Session) Subscribe(buffer int) (<-chan NavigationState, func()) {
	return s.states.subscribe(buffer)
}

// Notifications streams discrete navigation events
func (s *Session) Notifications(buffer int) (<-chan Notification, func()) {
	return s.notifications.subscribe(buffer)
}

// Close stops the session goroutine, abandons in-flight fetches and closes all subscriptions
func (s *Session) Close() {
	s.cancel()
	s.markClosed()
	<-s.finished
	s.states.close()
	s.notifications.close()
}

func (s *Session) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// StartNavigation resolves destination, fetches and scores candidates and enters Active.
// destination is either "lat,lng" or free text for the geocoder. Any failure returns the
// session to Idle with the error recorded in the state.
func (s *Session) StartNavigation(ctx context.Context, destination string) error {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return errs.NewRoutingError(errs.BadRequest, "destination is required")
	}

	return s.do(ctx, func(done func(error)) {
		s.supersede()
		s.stopTimers()
		s.cancelAutoEnd()
		s.selection = nil

		s.state = NavigationState{
			Phase:       PhaseLoading,
			Destination: destination,
			IsLoading:   true,
		}
		s.commit()

		s.pending = append(s.pending, done)
		s.fetch(s.generation, s.origin(), destination, nil, s.applyStart)
	})
}

func (s *Session) applyStart(res fetchResult) {
	if res.err != nil {
		logging.Warnw(s.ctx, "Failed to start navigation",
			"session", s.id, "destination", s.state.Destination, "error", res.err)
		s.state = NavigationState{Phase: PhaseIdle, Destination: s.state.Destination}
		s.fail(res.err)
		return
	}

	dest := res.destination
	s.state.DestinationPoint = &dest
	s.activate(res.selection, res.selection.SelectedIndex, true)
	logging.Infow(s.ctx, "Navigation started",
		"session", s.id, "destination", s.state.Destination,
		"candidates", len(res.selection.Candidates), "selected", res.selection.SelectedIndex)
	s.resolvePending(nil)
}

// RecalculateRoute refetches from the current fused position to the same destination.
// On failure the current route is kept and the error recorded.
func (s *Session) RecalculateRoute(ctx context.Context) error {
	return s.do(ctx, func(done func(error)) {
		if !s.navigating() {
			done(ErrNotNavigating)
			return
		}
		s.refetch(done, func(sel *routing.Selection) int { return sel.SelectedIndex })
	})
}

// UseAlternativeRoute switches to the next candidate of the current set, refetching only when
// the set is stale or gone.
func (s *Session) UseAlternativeRoute(ctx context.Context) error {
	return s.do(ctx, func(done func(error)) {
		if !s.navigating() {
			done(ErrNotNavigating)
			return
		}

		previous := s.state.RouteIndex
		if sel, ok := s.cachedSelection(); ok {
			s.supersede()
			s.activate(sel, sel.NextIndex(previous), false)
			done(nil)
			return
		}

		logging.Infow(s.ctx, "Candidate set stale, refetching for alternative route", "session", s.id)
		s.refetch(done, func(sel *routing.Selection) int { return sel.NextIndex(previous) })
	})
}

// refetch re-runs routing from the current position while keeping the active route
func (s *Session) refetch(done func(error), pick func(*routing.Selection) int) {
	s.supersede()
	s.state.IsLoading = true
	s.commit()

	s.pending = append(s.pending, done)
	s.fetch(s.generation, s.origin(), s.state.Destination, s.state.DestinationPoint, func(res fetchResult) {
		s.state.IsLoading = false
		if res.err != nil {
			logging.Warnw(s.ctx, "Failed to recalculate route, keeping current route",
				"session", s.id, "error", res.err)
			s.fail(res.err)
			return
		}
		s.activate(res.selection, pick(res.selection), true)
		s.resolvePending(nil)
	})
}

func (s *Session) cachedSelection() (*routing.Selection, bool) {
	if s.deps.Candidates != nil {
		return s.deps.Candidates.Get(s.id)
	}
	return s.selection, s.selection != nil
}

// NextStep moves to the following step, clamped to the last step
func (s *Session) NextStep(ctx context.Context) error {
	return s.do(ctx, func(done func(error)) { done(s.moveStep(1)) })
}

// PreviousStep moves back one step, clamped to the first step. Route progress may decrease.
func (s *Session) PreviousStep(ctx context.Context) error {
	return s.do(ctx, func(done func(error)) { done(s.moveStep(-1)) })
}

func (s *Session) moveStep(delta int) error {
	if !s.navigating() || s.state.Route == nil || len(s.state.Route.Steps) == 0 {
		return ErrNotNavigating
	}

	last := len(s.state.Route.Steps) - 1
	index := s.state.CurrentStepIndex + delta
	if index < 0 {
		index = 0
	}
	if index > last {
		index = last
	}
	if index == s.state.CurrentStepIndex {
		return nil
	}

	if delta < 0 {
		s.progressFloor = 0
		if s.state.Phase == PhaseArrived {
			s.cancelAutoEnd()
			s.state.AutoEndAt = nil
			s.state.Phase = PhaseActive
			s.startTimers()
		}
	}
	s.advanceTo(index)
	return nil
}

// EndNavigation stops navigation and discards any in-flight fetch
func (s *Session) EndNavigation(ctx context.Context) error {
	return s.do(ctx, func(done func(error)) {
		s.end("navigation ended")
		done(nil)
	})
}

func (s *Session) end(reason string) {
	wasActive := s.state.Phase != PhaseIdle

	s.supersede()
	s.stopTimers()
	s.cancelAutoEnd()
	s.selection = nil
	if s.deps.Candidates != nil {
		s.deps.Candidates.Delete(s.id)
	}

	s.state = NavigationState{Phase: PhaseIdle}
	if wasActive {
		s.notify(Notification{Kind: NotifyEnded, Message: reason})
		logging.Infow(s.ctx, "Navigation ended", "session", s.id, "reason", reason)
	}
	s.commit()
}

// CancelAutoEnd keeps an arrived session open. It reports whether an auto-end was pending.
func (s *Session) CancelAutoEnd(ctx context.Context) (bool, error) {
	var cancelled bool
	err := s.do(ctx, func(done func(error)) {
		cancelled = s.cancelAutoEnd()
		if cancelled {
			s.state.AutoEndAt = nil
			s.commit()
		}
		done(nil)
	})
	return cancelled, err
}

// CheckRoute runs one route-check tick through the mailbox
func (s *Session) CheckRoute(ctx context.Context) error {
	return s.do(ctx, func(done func(error)) {
		s.checkRoute()
		done(nil)
	})
}

// UpdateDistance runs one distance-update tick through the mailbox
func (s *Session) UpdateDistance(ctx context.Context) error {
	return s.do(ctx, func(done func(error)) {
		s.updateDistance()
		done(nil)
	})
}

// activate makes candidate index of sel the active route and restarts tracking
func (s *Session) activate(sel *routing.Selection, index int, store bool) {
	s.cancelAutoEnd()
	s.selection = sel
	if store && s.deps.Candidates != nil {
		if err := s.deps.Candidates.Put(s.id, sel); err != nil {
			logging.Warnw(s.ctx, "Failed to cache route candidates", "session", s.id, "error", err)
		}
	}

	now := s.now()
	route := &sel.Candidates[index]

	s.state.Phase = PhaseActive
	s.state.Route = route
	s.state.RouteIndex = index
	s.state.CandidateCount = len(sel.Candidates)
	s.state.CurrentStepIndex = 0
	s.state.IsNavigating = true
	s.state.IsOffRoute = false
	s.state.IsLoading = false
	s.state.RouteProgress = 0
	s.state.StepProgress = 0
	s.state.DistanceToNextStepM = 0
	s.state.StartedAt = &now
	s.state.AutoEndAt = nil
	s.clearError()

	s.startTime = now
	s.progressFloor = 0
	s.geometryWarned = false
	s.startTimers()

	s.updateProgress()
	step, _ := s.state.CurrentStep()
	s.notify(Notification{
		Kind:        NotifyRouteReady,
		Instruction: step.Instruction,
		DistanceM:   route.TotalDistanceM,
	})
	s.commit()
}

func (s *Session) navigating() bool {
	return s.state.Phase == PhaseActive || s.state.Phase == PhaseArrived
}

// position returns the current fused position, if any
func (s *Session) position() (fusion.Position, bool) {
	if s.deps.Positions == nil {
		return fusion.Position{}, false
	}
	return s.deps.Positions.FusedPosition()
}

// supersede invalidates in-flight fetches; their callers are released with ErrSuperseded
func (s *Session) supersede() {
	s.generation++
	s.resolvePending(ErrSuperseded)
}

func (s *Session) resolvePending(err error) {
	for _, done := range s.pending {
		done(err)
	}
	s.pending = nil
}

// fail records err in the state, notifies and releases waiting callers
func (s *Session) fail(err error) {
	s.state.IsLoading = false
	s.state.Err = err
	s.state.Error = err.Error()
	s.state.Retryable = errs.IsRetryable(err)
	s.notify(Notification{Kind: NotifyError, Message: err.Error()})
	s.commit()
	s.resolvePending(err)
}

func (s *Session) clearError() {
	s.state.Err = nil
	s.state.Error = ""
	s.state.Retryable = false
}

func (s *Session) notify(n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = s.now()
	}
	if n.Kind != NotifyEnded {
		n.StepIndex = s.state.CurrentStepIndex
	}
	s.notifications.publish(n)
}

// commit publishes the current state to readers and subscribers
func (s *Session) commit() {
	snapshot := s.state
	s.snapMu.Lock()
	s.snapshot = snapshot
	s.snapMu.Unlock()
	s.states.publish(snapshot)
}
