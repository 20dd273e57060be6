package navigation

import (
	"context"
	"errors"
	"fmt"

	"github.com/dpup/prefab/logging"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/errs"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/routing"
)

type fetchResult struct {
	generation  uint64
	destination geo.Point
	selection   *routing.Selection
	err         error
}

// fetch resolves and scores routes off the session goroutine, then posts apply back onto it.
// Results from a superseded generation are dropped on arrival.
func (s *Session) fetch(generation uint64, origin geo.Point, query string, destination *geo.Point, apply func(fetchResult)) {
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.FetchTimeout)
		defer cancel()

		res := fetchResult{generation: generation}
		res.destination, res.selection, res.err = s.fetchRoutes(ctx, origin, query, destination)

		s.post(func() {
			if res.generation != s.generation {
				logging.Debugw(s.ctx, "Discarding superseded route fetch",
					"session", s.id, "generation", res.generation, "current", s.generation)
				return
			}
			apply(res)
		})
	}()
}

func (s *Session) fetchRoutes(ctx context.Context, origin geo.Point, query string, destination *geo.Point) (geo.Point, *routing.Selection, error) {
	var target geo.Point
	if destination != nil {
		target = *destination
	} else {
		resolved, err := s.resolveDestination(ctx, query)
		if err != nil {
			return geo.Point{}, nil, err
		}
		target = resolved
	}

	if s.deps.Routes == nil {
		return target, nil, errs.NewRoutingError(errs.BadRequest, "no routing provider configured")
	}

	candidates, err := s.deps.Routes.GetRoutes(ctx, origin, target, s.cfg.Language)
	if err != nil {
		return target, nil, asConnectivity("get routes", err)
	}

	selection, err := s.deps.Evaluator.Evaluate(ctx, candidates)
	if err != nil {
		return target, nil, fmt.Errorf("failed to evaluate route candidates: %w", err)
	}
	return target, selection, nil
}

// resolveDestination accepts "lat,lng" directly and geocodes anything else
func (s *Session) resolveDestination(ctx context.Context, query string) (geo.Point, error) {
	if point, ok := geo.ParseCoordinates(query); ok {
		return point, nil
	}
	if s.deps.Geocoder == nil {
		return geo.Point{}, errs.NewRoutingError(errs.NoRoute, "cannot resolve destination %q", query)
	}

	point, err := s.deps.Geocoder.Resolve(ctx, query)
	if err != nil {
		return geo.Point{}, asConnectivity("resolve destination", err)
	}
	return point, nil
}

// asConnectivity reports bare context timeouts as retryable connectivity failures
func asConnectivity(op string, err error) error {
	var connErr *errs.ConnectivityError
	var routeErr *errs.RoutingError
	if errors.As(err, &connErr) || errors.As(err, &routeErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.NewConnectivityError(op, err)
	}
	return err
}

// origin is the fused position, or the configured fallback when none is known yet
func (s *Session) origin() geo.Point {
	if pos, ok := s.position(); ok {
		return pos.Point()
	}
	logging.Infow(s.ctx, "No position available, routing from fallback origin",
		"session", s.id, "lat", s.cfg.FallbackOrigin.Latitude, "lng", s.cfg.FallbackOrigin.Longitude)
	return s.cfg.FallbackOrigin
}
