package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/cache"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/config"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/routing"
)

var hku = geo.Point{Latitude: 22.2832728, Longitude: 114.1331896}

// stubRoutes serves one straight walk north from whatever origin it is given
type stubRoutes struct {
	mu      sync.Mutex
	err     error
	origins []geo.Point
}

func (s *stubRoutes) GetRoutes(ctx context.Context, origin, destination geo.Point, language string) ([]routing.RouteCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.origins = append(s.origins, origin)
	if s.err != nil {
		return nil, s.err
	}

	bounds := []float64{0, 100, 250, 400}
	var steps []routing.RouteStep
	points := []geo.Point{origin}
	for i := 0; i < 3; i++ {
		start, end := geo.Offset(origin, bounds[i], 0), geo.Offset(origin, bounds[i+1], 0)
		steps = append(steps, routing.RouteStep{
			Instruction: "Walk north",
			DistanceM:   bounds[i+1] - bounds[i],
			DurationS:   bounds[i+1] - bounds[i],
			Start:       start,
			End:         end,
		})
		points = append(points, end)
	}
	return []routing.RouteCandidate{{
		Summary:          "Pok Fu Lam Rd",
		Steps:            steps,
		OverviewPolyline: geo.Polyline{EncodedPolyline: geo.EncodePolyline(points)},
		TotalDistanceM:   400,
		TotalDurationS:   400,
	}}, nil
}

func (s *stubRoutes) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Navigation.RouteCheckInterval = 0
	cfg.Navigation.DistanceUpdateInterval = 0
	cfg.Navigation.FetchTimeout = 2 * time.Second
	return cfg
}

func newTestManager(t *testing.T) (*SessionManager, *stubRoutes) {
	t.Helper()
	routes := &stubRoutes{}
	cfg := testConfig()
	manager := NewSessionManager(context.Background(), cfg, Providers{
		Routes:     routes,
		Candidates: cache.NewCandidateStore(cache.NewCache(), cfg.Google.CandidateTTL),
	})
	t.Cleanup(manager.CloseAll)
	return manager, routes
}

func requireEventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
