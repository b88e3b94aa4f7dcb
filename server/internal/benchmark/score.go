package benchmark

import (
	"math"

	"github.com/flowbench/flowbench/pkg/types"
)

// Grades, highest first.
const (
	GradeAPlus = "A+"
	GradeA     = "A"
	GradeBPlus = "B+"
	GradeB     = "B"
	GradeCPlus = "C+"
	GradeC     = "C"
	GradeD     = "D"
	GradeF     = "F"
)

// Performance levels, highest first.
const (
	LevelExcellent    = "excellent"
	LevelGood         = "good"
	LevelAverage      = "average"
	LevelBelowAverage = "below_average"
	LevelPoor         = "poor"
)

// step is one rung of a threshold ladder: values on the passing side of
// bound earn score.
type step struct {
	bound float64
	score float64
}

// floorScore is awarded when no rung of a ladder matches.
const floorScore = 20

// Ladders where lower raw values are better (value ≤ bound).
var (
	executionTimeLadder = []step{{1000, 100}, {3000, 90}, {5000, 75}, {10000, 60}, {20000, 40}}
	errorRateLadder     = []step{{1, 100}, {3, 90}, {5, 75}, {10, 60}, {20, 40}}
	variationLadder     = []step{{0.1, 100}, {0.2, 90}, {0.3, 75}, {0.5, 60}, {0.7, 40}}
)

// Ladders where higher raw values are better (value ≥ bound).
var (
	successRateLadder = []step{{99, 100}, {95, 90}, {90, 75}, {80, 60}, {70, 40}}
	throughputLadder  = []step{{10, 100}, {5, 90}, {2, 75}, {1, 60}, {0.5, 40}}
	utilizationLadder = []step{{95, 100}, {85, 90}, {75, 75}, {60, 60}, {40, 40}}
)

// Bottleneck penalties and scalability caps.
const (
	highBottleneckPenalty   = 30
	mediumBottleneckPenalty = 15
	scalabilityVolumeCap    = 50
	scalabilityRateCap      = 50
	scalabilityVolumeScale  = 1000 // executions for the full volume contribution
	scalabilityRateScale    = 10   // points per item/s
)

func atMost(v float64, ladder []step) float64 {
	for _, s := range ladder {
		if v <= s.bound {
			return s.score
		}
	}
	return floorScore
}

func atLeast(v float64, ladder []step) float64 {
	for _, s := range ladder {
		if v >= s.bound {
			return s.score
		}
	}
	return floorScore
}

// ExecutionTimeScore scores the mean execution time in milliseconds.
func ExecutionTimeScore(avgMs float64) float64 { return atMost(avgMs, executionTimeLadder) }

// SuccessRateScore scores a success percentage.
func SuccessRateScore(pct float64) float64 { return atLeast(pct, successRateLadder) }

// ThroughputScore scores items processed per second.
func ThroughputScore(itemsPerSec float64) float64 { return atLeast(itemsPerSec, throughputLadder) }

// ReliabilityScore scores an error-rate percentage; fewer errors score higher.
func ReliabilityScore(errorRatePct float64) float64 { return atMost(errorRatePct, errorRateLadder) }

// UtilizationScore scores the successful share of execution time.
func UtilizationScore(pct float64) float64 { return atLeast(pct, utilizationLadder) }

// ConsistencyScore scores the coefficient of variation of daily execution
// times; steadier workflows score higher.
func ConsistencyScore(cv float64) float64 { return atMost(cv, variationLadder) }

// ScalabilityScore blends volume and rate, each capped at 50 points.
func ScalabilityScore(executions int, itemsPerSec float64) float64 {
	volume := math.Min(scalabilityVolumeCap, float64(executions)/scalabilityVolumeScale*scalabilityVolumeCap)
	rate := math.Min(scalabilityRateCap, itemsPerSec*scalabilityRateScale)
	return volume + rate
}

// BottleneckImpactScore deducts per high and medium bottleneck, floored at 0.
func BottleneckImpactScore(high, medium int) float64 {
	return math.Max(0, 100-highBottleneckPenalty*float64(high)-mediumBottleneckPenalty*float64(medium))
}

// EfficiencyScore is the mean of the execution-time and success-rate scores.
func EfficiencyScore(executionTime, successRate float64) float64 {
	return (executionTime + successRate) / 2
}

// ComputeScores maps raw measurements onto the nine scores.
func ComputeScores(raw types.RawMetrics) types.Scores {
	et := ExecutionTimeScore(raw.AvgExecutionTimeMs)
	sr := SuccessRateScore(raw.SuccessRate)
	return types.Scores{
		ExecutionTime:    et,
		SuccessRate:      sr,
		Throughput:       ThroughputScore(raw.ItemsPerSecond),
		Efficiency:       EfficiencyScore(et, sr),
		Reliability:      ReliabilityScore(raw.ErrorRate),
		Utilization:      UtilizationScore(raw.UtilizationPct),
		Scalability:      ScalabilityScore(raw.TotalExecutions, raw.ItemsPerSecond),
		Consistency:      ConsistencyScore(raw.CoefficientOfVar),
		BottleneckImpact: BottleneckImpactScore(raw.HighBottlenecks, raw.MediumBottlenecks),
	}
}

// GradeFor maps an overall score to a letter grade.
func GradeFor(score float64) string {
	switch {
	case score >= 95:
		return GradeAPlus
	case score >= 90:
		return GradeA
	case score >= 85:
		return GradeBPlus
	case score >= 80:
		return GradeB
	case score >= 75:
		return GradeCPlus
	case score >= 70:
		return GradeC
	case score >= 60:
		return GradeD
	default:
		return GradeF
	}
}

// LevelFor maps an overall score to a performance level.
func LevelFor(score float64) string {
	switch {
	case score >= 90:
		return LevelExcellent
	case score >= 80:
		return LevelGood
	case score >= 70:
		return LevelAverage
	case score >= 60:
		return LevelBelowAverage
	default:
		return LevelPoor
	}
}
