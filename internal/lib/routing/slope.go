package routing

import (
	"math"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
)

// Segments shorter than this are skipped when computing grade; elevation noise dominates.
const minSlopeSegmentM = 1.0

// ComputeSlope derives slope metrics from elevations sampled at points. Mismatched or
// missing elevation data yields zero metrics with Sampled=false.
func ComputeSlope(points []geo.Point, elevations []float64) SlopeMetrics {
	if len(points) < 2 || len(elevations) != len(points) {
		return SlopeMetrics{}
	}

	var sum, maxSlope, ascent float64
	segments := 0
	for i := 1; i < len(points); i++ {
		rise := elevations[i] - elevations[i-1]
		if rise > 0 {
			ascent += rise
		}

		run := geo.GreatCircleDistance(points[i-1], points[i])
		if run < minSlopeSegmentM {
			continue
		}
		grade := math.Abs(rise) / run * 100
		sum += grade
		maxSlope = math.Max(maxSlope, grade)
		segments++
	}

	avg := 0.0
	if segments > 0 {
		avg = sum / float64(segments)
	}

	return SlopeMetrics{
		AvgSlopePct:  avg,
		MaxSlopePct:  maxSlope,
		TotalAscentM: ascent,
		Factor:       SlopeFactor(avg, maxSlope, ascent),
		Sampled:      true,
	}
}

// SlopeFactor scores steepness in [0,1]. Terms are normalized against 10% average grade,
// 20% peak grade and 100 m of climbing, weighted 0.3/0.3/0.4, and only the sum is clamped.
func SlopeFactor(avgSlopePct, maxSlopePct, totalAscentM float64) float64 {
	return clamp01(0.3*avgSlopePct/10 + 0.3*maxSlopePct/20 + 0.4*totalAscentM/100)
}
