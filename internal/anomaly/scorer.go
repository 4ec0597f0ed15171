package anomaly

import (
	"math"

	"github.com/eigerco/blocksim/internal/block"
)

// DefaultMagnitudeThreshold is the combined |accel_x|+|accel_y| above which an
// entry counts as anomalous.
const DefaultMagnitudeThreshold = 15.0

// Scorer rates a log in [0, 1]; higher means more anomalous.
type Scorer interface {
	Score(payload block.LogPayload) float64
}

// ScoreFunc adapts a function to Scorer. Results are clamped to [0, 1].
type ScoreFunc func(payload block.LogPayload) float64

func (f ScoreFunc) Score(payload block.LogPayload) float64 {
	return clamp(f(payload))
}

// Heuristic scores a log by the fraction of entries whose horizontal
// acceleration magnitude exceeds Threshold.
type Heuristic struct {
	Threshold float64
}

func NewHeuristic(threshold float64) Heuristic {
	return Heuristic{Threshold: threshold}
}

func (h Heuristic) Score(payload block.LogPayload) float64 {
	if len(payload.Entries) == 0 {
		return 0
	}
	high := 0
	for _, e := range payload.Entries {
		if math.Abs(e.AccelX)+math.Abs(e.AccelY) > h.Threshold {
			high++
		}
	}
	return float64(high) / float64(len(payload.Entries))
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
