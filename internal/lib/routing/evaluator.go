package routing

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dpup/prefab/logging"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/errs"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
)

// Weights are the per-term multipliers of a candidate's score
type Weights struct {
	Time  float64 `yaml:"time"`
	Turn  float64 `yaml:"turn"`
	Step  float64 `yaml:"step"`
	Slope float64 `yaml:"slope"`
}

// EvaluatorConfig tunes candidate scoring. Duration is scored in units of TimeUnitS seconds and
// the [0,1] slope factor is multiplied by SlopeScale, so that with unit weights one minute of
// walking, one turn, and a tenth of the slope range cost the same.
type EvaluatorConfig struct {
	Weights              Weights `yaml:"weights"`
	TimeUnitS            float64 `yaml:"time_unit_s"`
	SlopeScale           float64 `yaml:"slope_scale"`
	MaxElevationSamples  int     `yaml:"max_elevation_samples"`
	ElevationConcurrency int     `yaml:"elevation_concurrency"`
}

// DefaultEvaluatorConfig returns the default weights and scales
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		Weights: Weights{
			Time:  1.0,
			Turn:  1.0,
			Step:  0.4,
			Slope: 2.0,
		},
		TimeUnitS:            60,
		SlopeScale:           10,
		MaxElevationSamples:  64,
		ElevationConcurrency: 3,
	}
}

// Score is a candidate's total score (lower is better) and its terms
type Score struct {
	Total     float64 `json:"total"`
	Time      float64 `json:"time"`
	Turn      float64 `json:"turn"`
	Step      float64 `json:"step"`
	Slope     float64 `json:"slope"`
	TurnCount int     `json:"turn_count"`
	StepCount int     `json:"step_count"`
}

// Selection is the outcome of evaluating one origin/destination candidate set
type Selection struct {
	Candidates    []RouteCandidate `json:"candidates"`
	Scores        []Score          `json:"scores"`
	SelectedIndex int              `json:"selected_index"`
}

// Selected returns the chosen candidate
func (s *Selection) Selected() *RouteCandidate {
	return &s.Candidates[s.SelectedIndex]
}

// NextIndex returns the alternative after current, cycling through the candidate set
func (s *Selection) NextIndex(current int) int {
	if len(s.Candidates) == 0 {
		return 0
	}
	return (current + 1) % len(s.Candidates)
}

// Evaluator scores route candidates and picks the easiest to walk
type Evaluator struct {
	cfg       EvaluatorConfig
	elevation ElevationProvider
}

// NewEvaluator creates an evaluator. A nil elevation provider scores every route as flat.
func NewEvaluator(cfg EvaluatorConfig, elevation ElevationProvider) *Evaluator {
	if cfg.TimeUnitS <= 0 {
		cfg.TimeUnitS = 1
	}
	if cfg.ElevationConcurrency <= 0 {
		cfg.ElevationConcurrency = 1
	}
	return &Evaluator{cfg: cfg, elevation: elevation}
}

// Evaluate flattens each candidate's steps, samples slope, scores every candidate and selects
// the lowest score. Ties keep the first candidate seen.
func (e *Evaluator) Evaluate(ctx context.Context, candidates []RouteCandidate) (*Selection, error) {
	if len(candidates) == 0 {
		return nil, errs.NewRoutingError(errs.NoRoute, "no route candidates to evaluate")
	}
	ctx = logging.EnsureLogger(ctx)

	flattened := make([]RouteCandidate, len(candidates))
	for i, c := range candidates {
		c.Steps = FlattenSteps(c.Steps)
		flattened[i] = c
	}

	e.sampleSlopes(ctx, flattened)

	selection := &Selection{
		Candidates: flattened,
		Scores:     make([]Score, len(flattened)),
	}
	for i := range flattened {
		selection.Scores[i] = e.Score(&flattened[i])
		if selection.Scores[i].Total < selection.Scores[selection.SelectedIndex].Total {
			selection.SelectedIndex = i
		}
	}

	logging.Debugw(ctx, "Evaluated route candidates",
		"candidates", len(flattened),
		"selected", selection.SelectedIndex,
		"score", selection.Scores[selection.SelectedIndex].Total)

	return selection, nil
}

// sampleSlopes fills in slope metrics concurrently. Elevation failures leave a route flat.
func (e *Evaluator) sampleSlopes(ctx context.Context, candidates []RouteCandidate) {
	if e.elevation == nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ElevationConcurrency)

	for i := range candidates {
		candidate := &candidates[i]
		g.Go(func() error {
			points := geo.SamplePoints(candidate.Geometry(), e.cfg.MaxElevationSamples)
			if len(points) < 2 {
				return nil
			}
			elevations := e.elevation.Sample(gctx, points)
			if len(elevations) != len(points) {
				logging.Warnw(gctx, "Elevation unavailable, treating route as flat",
					"summary", candidate.Summary, "points", len(points), "elevations", len(elevations))
				return nil
			}
			candidate.Slope = ComputeSlope(points, elevations)
			return nil
		})
	}

	_ = g.Wait() // goroutines never fail
}

// Score computes a candidate's score from its already-flattened steps
func (e *Evaluator) Score(c *RouteCandidate) Score {
	return e.scoreTerms(c.TotalDurationS, CountTurns(c.Steps), len(c.Steps), c.Slope.Factor)
}

func (e *Evaluator) scoreTerms(durationS float64, turns, steps int, slopeFactor float64) Score {
	w := e.cfg.Weights
	s := Score{
		Time:      w.Time * durationS / e.cfg.TimeUnitS,
		Turn:      w.Turn * float64(turns),
		Step:      w.Step * float64(steps),
		Slope:     w.Slope * slopeFactor * e.cfg.SlopeScale,
		TurnCount: turns,
		StepCount: steps,
	}
	s.Total = s.Time + s.Turn + s.Step + s.Slope
	return s
}

// FlattenSteps replaces every step that has sub-steps with its leaf sub-steps, depth-first
func FlattenSteps(steps []RouteStep) []RouteStep {
	flat := make([]RouteStep, 0, len(steps))
	var walk func([]RouteStep)
	walk = func(steps []RouteStep) {
		for _, step := range steps {
			if len(step.SubSteps) > 0 {
				walk(step.SubSteps)
				continue
			}
			flat = append(flat, step)
		}
	}
	walk(steps)
	return flat
}

// CountTurns counts steps whose instruction mentions a turn or whose maneuver is a turn
func CountTurns(steps []RouteStep) int {
	turns := 0
	for _, step := range steps {
		if strings.Contains(strings.ToLower(step.Instruction), "turn") || strings.HasPrefix(step.Maneuver, "turn-") {
			turns++
		}
	}
	return turns
}
