package routing

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/errs"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
)

// makeSteps builds n steps, the first turns of which are turns
func makeSteps(n, turns int) []RouteStep {
	steps := make([]RouteStep, n)
	for i := range steps {
		steps[i] = RouteStep{Instruction: fmt.Sprintf("Walk straight %d", i), DistanceM: 50, DurationS: 40}
		if i < turns {
			steps[i].Instruction = fmt.Sprintf("Turn left onto Street %d", i)
		}
	}
	return steps
}

type fakeElevation struct {
	mu     sync.Mutex
	calls  int
	values func(points []geo.Point) []float64
}

func (f *fakeElevation) Sample(ctx context.Context, points []geo.Point) []float64 {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.values(points)
}

func TestEvaluator_ScoreScenario(t *testing.T) {
	evaluator := NewEvaluator(DefaultEvaluatorConfig(), nil)

	// A: 600s, 2 turns, 5 steps; B: 500s, 6 turns, 5 steps; both slope 0.1
	a := evaluator.scoreTerms(600, 2, 5, 0.1)
	b := evaluator.scoreTerms(500, 6, 5, 0.1)

	assert.InDelta(t, 10, a.Time, 1e-9)
	assert.InDelta(t, 2, a.Turn, 1e-9)
	assert.InDelta(t, 2, a.Step, 1e-9)
	assert.InDelta(t, 2, a.Slope, 1e-9)
	assert.InDelta(t, 16, a.Total, 1e-9)
	assert.Less(t, a.Total, b.Total)

	for _, turnWeight := range []float64{0.5, 1.5} {
		cfg := DefaultEvaluatorConfig()
		cfg.Weights.Turn = turnWeight
		e := NewEvaluator(cfg, nil)
		assert.Less(t, e.scoreTerms(600, 2, 5, 0.1).Total, e.scoreTerms(500, 6, 5, 0.1).Total,
			"turn weight %.1f", turnWeight)
	}
}

func TestEvaluator_PrefersFewerTurns(t *testing.T) {
	a := RouteCandidate{Summary: "A", Steps: makeSteps(5, 2), TotalDurationS: 600, Slope: SlopeMetrics{Factor: 0.1}}
	b := RouteCandidate{Summary: "B", Steps: makeSteps(4, 4), TotalDurationS: 500, Slope: SlopeMetrics{Factor: 0.1}}
	// Nested sub-steps are scored once flattened; the maneuver marks a turn in any language
	b.Steps[3].SubSteps = []RouteStep{
		{Instruction: "Turn right", DistanceM: 20},
		{Instruction: "向左轉", Maneuver: "turn-left", DistanceM: 30},
	}

	selection, err := NewEvaluator(DefaultEvaluatorConfig(), nil).Evaluate(context.Background(), []RouteCandidate{a, b})
	require.NoError(t, err)

	assert.Equal(t, 0, selection.SelectedIndex)
	assert.Equal(t, "A", selection.Selected().Summary)
	assert.Equal(t, 2, selection.Scores[0].TurnCount)
	assert.Equal(t, 5, selection.Scores[1].TurnCount)
	assert.Equal(t, 5, selection.Scores[1].StepCount)
	assert.Len(t, selection.Candidates[1].Steps, 5)
	assert.Less(t, selection.Scores[0].Total, selection.Scores[1].Total)
}

func TestEvaluator_TieKeepsFirst(t *testing.T) {
	a := RouteCandidate{Summary: "first", Steps: makeSteps(3, 1), TotalDurationS: 300}
	b := RouteCandidate{Summary: "second", Steps: makeSteps(3, 1), TotalDurationS: 300}

	selection, err := NewEvaluator(DefaultEvaluatorConfig(), nil).Evaluate(context.Background(), []RouteCandidate{a, b})
	require.NoError(t, err)
	assert.Equal(t, 0, selection.SelectedIndex)
	assert.Equal(t, selection.Scores[0].Total, selection.Scores[1].Total)
}

func TestEvaluator_NoCandidates(t *testing.T) {
	_, err := NewEvaluator(DefaultEvaluatorConfig(), nil).Evaluate(context.Background(), nil)
	var routingErr *errs.RoutingError
	require.ErrorAs(t, err, &routingErr)
	assert.Equal(t, errs.NoRoute, routingErr.Kind)
}

func TestEvaluator_SlopeFromElevation(t *testing.T) {
	start := geo.Point{Latitude: 22.2832728, Longitude: 114.1331896}
	flatPath := []geo.Point{start, geo.Offset(start, 100, 0), geo.Offset(start, 200, 0)}
	hillPath := []geo.Point{start, geo.Offset(start, 0, 100), geo.Offset(start, 0, 200)}

	flat := RouteCandidate{Summary: "flat", Steps: makeSteps(3, 1), TotalDurationS: 400,
		OverviewPolyline: geo.Polyline{Points: flatPath}}
	hill := RouteCandidate{Summary: "hill", Steps: makeSteps(3, 1), TotalDurationS: 360,
		OverviewPolyline: geo.Polyline{Points: hillPath}}

	elevation := &fakeElevation{values: func(points []geo.Point) []float64 {
		out := make([]float64, len(points))
		for i, p := range points {
			if p.Longitude != start.Longitude {
				// 15% grade eastward
				out[i] = 0.15 * geo.GreatCircleDistance(start, p)
			}
		}
		return out
	}}

	selection, err := NewEvaluator(DefaultEvaluatorConfig(), elevation).Evaluate(context.Background(), []RouteCandidate{flat, hill})
	require.NoError(t, err)
	assert.Equal(t, 2, elevation.calls)

	assert.True(t, selection.Candidates[0].Slope.Sampled)
	assert.Zero(t, selection.Candidates[0].Slope.Factor)

	hillSlope := selection.Candidates[1].Slope
	assert.InDelta(t, 15, hillSlope.AvgSlopePct, 0.1)
	assert.InDelta(t, 15, hillSlope.MaxSlopePct, 0.1)
	assert.InDelta(t, 30, hillSlope.TotalAscentM, 0.1)
	// 0.3*1.5 + 0.3*0.75 + 0.4*0.3 = 0.795
	assert.InDelta(t, 0.795, hillSlope.Factor, 0.01)

	assert.Equal(t, "flat", selection.Selected().Summary, "a slightly faster steep route loses")
}

func TestEvaluator_ElevationFailureIsFlat(t *testing.T) {
	start := geo.Point{Latitude: 22.28, Longitude: 114.13}
	route := RouteCandidate{Steps: makeSteps(2, 0), TotalDurationS: 120,
		OverviewPolyline: geo.Polyline{Points: []geo.Point{start, geo.Offset(start, 50, 50)}}}

	elevation := &fakeElevation{values: func([]geo.Point) []float64 { return []float64{} }}
	selection, err := NewEvaluator(DefaultEvaluatorConfig(), elevation).Evaluate(context.Background(), []RouteCandidate{route})
	require.NoError(t, err)
	assert.False(t, selection.Candidates[0].Slope.Sampled)
	assert.Zero(t, selection.Scores[0].Slope)
}

func TestFlattenSteps(t *testing.T) {
	steps := []RouteStep{
		{Instruction: "a"},
		{Instruction: "parent", SubSteps: []RouteStep{
			{Instruction: "b"},
			{Instruction: "nested", SubSteps: []RouteStep{{Instruction: "c"}, {Instruction: "d"}}},
			{Instruction: "e"},
		}},
		{Instruction: "f"},
	}

	flat := FlattenSteps(steps)
	var got []string
	for _, s := range flat {
		got = append(got, s.Instruction)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, got)
}

func TestCountTurns(t *testing.T) {
	steps := []RouteStep{
		{Instruction: "Turn left onto Pokfulam Road"},
		{Instruction: "Slight RIGHT turn"},
		{Instruction: "Continue straight"},
		{Instruction: "右轉", Maneuver: "turn-right"},
		{Instruction: "Keep left", Maneuver: "keep-left"},
	}
	assert.Equal(t, 3, CountTurns(steps))
}

func TestSelection_NextIndex(t *testing.T) {
	s := &Selection{Candidates: make([]RouteCandidate, 3)}
	assert.Equal(t, 1, s.NextIndex(0))
	assert.Equal(t, 2, s.NextIndex(1))
	assert.Equal(t, 0, s.NextIndex(2))
}

func TestSlopeFactor_Clamped(t *testing.T) {
	assert.Equal(t, 1.0, SlopeFactor(30, 40, 500))
	assert.Equal(t, 0.0, SlopeFactor(0, 0, 0))
	assert.InDelta(t, 0.3+0.15+0.2, SlopeFactor(10, 10, 50), 1e-9)
}

func TestComputeSlope_MismatchedInput(t *testing.T) {
	pts := []geo.Point{{Latitude: 0, Longitude: 0}, {Latitude: 0.001, Longitude: 0}}
	assert.Equal(t, SlopeMetrics{}, ComputeSlope(pts, []float64{1}))
	assert.Equal(t, SlopeMetrics{}, ComputeSlope(pts[:1], []float64{1}))
}
