package navigation

import (
	"math"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/routing"
)

// checkRoute handles arrival, auto-advance and off-route detection, in that order
func (s *Session) checkRoute() {
	if s.state.Phase != PhaseActive || s.state.Route == nil {
		return
	}
	pos, ok := s.position()
	if !ok {
		return
	}
	point := pos.Point()
	route := s.state.Route

	if final, ok := route.FinalDestination(); ok && s.deps.Matcher.WithinWaypoint(point, final) {
		s.arrive()
		return
	}

	index := s.state.CurrentStepIndex
	if s.cfg.AutoAdvance && index < len(route.Steps)-1 && s.deps.Matcher.WithinWaypoint(point, route.Steps[index].End) {
		s.advanceTo(index + 1)
		return
	}

	s.evaluateOffRoute(point, route)
}

// advanceTo makes index the current step and resets step progress
func (s *Session) advanceTo(index int) {
	s.state.CurrentStepIndex = index
	s.state.StepProgress = 0
	if step, ok := s.state.CurrentStep(); ok {
		s.state.DistanceToNextStepM = step.DistanceM
		s.notify(Notification{Kind: NotifyStepChanged, Instruction: step.Instruction, DistanceM: step.DistanceM})
	}
	s.commit()
}

// evaluateOffRoute flips is_off_route once the grace period has passed. Notifications fire on
// flips only.
func (s *Session) evaluateOffRoute(point geo.Point, route *routing.RouteCandidate) {
	if s.now().Sub(s.startTime) < s.cfg.GracePeriod {
		return
	}

	offRoute, distance, method := s.deps.Matcher.IsOffRoute(point, route, s.state.CurrentStepIndex)
	s.warnGeometry(route, method)
	if method == routing.MethodNone || offRoute == s.state.IsOffRoute {
		return
	}
	s.state.IsOffRoute = offRoute

	kind := NotifyBackOnRoute
	if offRoute {
		kind = NotifyOffRoute
	}
	logging.Infow(s.ctx, "Off-route status changed",
		"session", s.id, "off_route", offRoute, "distance_m", distance, "method", method)
	s.notify(Notification{Kind: kind, DistanceM: distance})
	s.commit()
}

// warnGeometry logs once per route when the overview polyline could not be used
func (s *Session) warnGeometry(route *routing.RouteCandidate, method routing.DistanceMethod) {
	if s.geometryWarned || method == routing.MethodOverview || route.OverviewPolyline.EncodedPolyline == "" {
		return
	}
	s.geometryWarned = true
	_, err := geo.DecodePolylineStrict(route.OverviewPolyline.EncodedPolyline)
	logging.Warnw(s.ctx, "Route overview geometry unusable, using fallback distance",
		"session", s.id, "method", method, "error", err)
}

func (s *Session) arrive() {
	route := s.state.Route
	now := s.now()

	s.state.Phase = PhaseArrived
	if n := len(route.Steps); n > 0 {
		s.state.CurrentStepIndex = n - 1
	}
	s.state.IsOffRoute = false
	s.state.RouteProgress = 1
	s.state.StepProgress = 1
	s.state.DistanceToNextStepM = 0
	s.state.ETA = &now
	s.progressFloor = 1
	s.stopTimers()
	s.scheduleAutoEnd()

	logging.Infow(s.ctx, "Arrived at destination", "session", s.id, "destination", s.state.Destination)
	s.notify(Notification{Kind: NotifyArrived, Message: s.state.Destination})
	s.commit()
}

func (s *Session) scheduleAutoEnd() {
	s.cancelAutoEnd()
	s.autoEndToken++
	token := s.autoEndToken

	at := s.now().Add(s.cfg.AutoEndDelay)
	s.state.AutoEndAt = &at

	s.autoEnd = time.AfterFunc(s.cfg.AutoEndDelay, func() {
		s.post(func() {
			if token != s.autoEndToken || s.state.Phase != PhaseArrived {
				return
			}
			s.autoEnd = nil
			s.end("arrived at destination")
		})
	})
}

// cancelAutoEnd stops a pending auto-end and reports whether one was pending
func (s *Session) cancelAutoEnd() bool {
	if s.autoEnd == nil {
		return false
	}
	s.autoEnd.Stop()
	s.autoEnd = nil
	s.autoEndToken++
	return true
}

// updateDistance refreshes progress and ETA on each distance tick
func (s *Session) updateDistance() {
	if s.state.Phase != PhaseActive || s.state.Route == nil {
		return
	}
	if s.updateProgress() {
		s.commit()
	}
}

// updateProgress recomputes progress from the fused position. Route progress never decreases
// between ticks; explicit step regressions reset the floor.
func (s *Session) updateProgress() bool {
	pos, ok := s.position()
	if !ok || s.state.Route == nil {
		return false
	}
	route := s.state.Route
	now := s.now()

	progress := s.deps.Matcher.Progress(pos.Point(), route, s.state.CurrentStepIndex, now)
	routeProgress := math.Max(progress.RouteProgress, s.progressFloor)
	s.progressFloor = routeProgress

	eta := now.Add(time.Duration(route.TotalDurationS * (1 - routeProgress) * float64(time.Second)))
	s.state.RouteProgress = routeProgress
	s.state.StepProgress = progress.StepProgress
	s.state.DistanceToNextStepM = progress.DistanceToStepEndM
	s.state.ETA = &eta
	return true
}

func (s *Session) startTimers() {
	s.stopTimers()
	if s.cfg.RouteCheckInterval > 0 {
		s.routeTicker = time.NewTicker(s.cfg.RouteCheckInterval)
	}
	if s.cfg.DistanceUpdateInterval > 0 {
		s.distanceTicker = time.NewTicker(s.cfg.DistanceUpdateInterval)
	}
}

func (s *Session) stopTimers() {
	if s.routeTicker != nil {
		s.routeTicker.Stop()
		s.routeTicker = nil
	}
	if s.distanceTicker != nil {
		s.distanceTicker.Stop()
		s.distanceTicker = nil
	}
}

func (s *Session) stopAllTimers() {
	s.stopTimers()
	s.cancelAutoEnd()
}
