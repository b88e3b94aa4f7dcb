package benchmark

import "github.com/flowbench/flowbench/pkg/types"

// Significance levels.
const (
	SignificanceLow    = "low"
	SignificanceMedium = "medium"
	SignificanceHigh   = "high"
)

// Sample sizes for the significance heuristic.
const (
	significanceHighMin   = 1000
	significanceMediumMin = 500
)

// SignificanceFor grades how much weight a report deserves from its sample
// size alone. It is a heuristic, not a hypothesis test.
func SignificanceFor(executions int) types.Significance {
	s := types.Significance{SampleSize: executions, Level: SignificanceLow}
	switch {
	case executions >= significanceHighMin:
		s.Level = SignificanceHigh
	case executions >= significanceMediumMin:
		s.Level = SignificanceMedium
	}
	s.Significant = executions >= significanceMediumMin
	return s
}
