package viewport

import (
	"math"
	"time"
)

// Zoom limits applied to every request.
const (
	DefaultMinZoom     = 3.0
	DefaultMaxZoom     = 19.0
	DefaultInitialZoom = 5.6
)

// StagedMovePolicy splits large zoom jumps into two moves so the renderer
// does not request every tile of the target level at once. A jump is staged
// when it changes the zoom by more than Threshold and ends above MinTarget.
// The first move goes to ZoomInStage or ZoomOutStage and the final move
// follows after Delay.
type StagedMovePolicy struct {
	Threshold    float64
	MinTarget    float64
	ZoomInStage  float64
	ZoomOutStage float64
	Delay        time.Duration
	Disabled     bool
}

// DefaultStagedMovePolicy is the policy used when none is configured.
var DefaultStagedMovePolicy = StagedMovePolicy{
	Threshold:    4.5,
	MinTarget:    11.5,
	ZoomInStage:  12.0,
	ZoomOutStage: 10.0,
	Delay:        250 * time.Millisecond,
}

// Stage returns the intermediate zoom for a move from current to target,
// and whether the move should be staged at all.
func (p StagedMovePolicy) Stage(current, target float64) (float64, bool) {
	if p.Disabled {
		return 0, false
	}
	if math.Abs(target-current) <= p.Threshold || target <= p.MinTarget {
		return 0, false
	}
	if target > current {
		return p.ZoomInStage, true
	}
	return p.ZoomOutStage, true
}

func (p StagedMovePolicy) withDefaults() StagedMovePolicy {
	d := DefaultStagedMovePolicy
	if p.Threshold == 0 {
		p.Threshold = d.Threshold
	}
	if p.MinTarget == 0 {
		p.MinTarget = d.MinTarget
	}
	if p.ZoomInStage == 0 {
		p.ZoomInStage = d.ZoomInStage
	}
	if p.ZoomOutStage == 0 {
		p.ZoomOutStage = d.ZoomOutStage
	}
	if p.Delay <= 0 {
		p.Delay = d.Delay
	}
	return p
}

// ReassertPolicy re-issues every direct move once after Delay. Some
// renderers drop the tile refresh for a camera change made while a
// previous change is still settling; the second identical move recovers it.
type ReassertPolicy struct {
	Delay    time.Duration
	Disabled bool
}

// DefaultReassertPolicy is the policy used when none is configured.
var DefaultReassertPolicy = ReassertPolicy{Delay: 220 * time.Millisecond}

func (p ReassertPolicy) withDefaults() ReassertPolicy {
	if p.Delay <= 0 {
		p.Delay = DefaultReassertPolicy.Delay
	}
	return p
}

func clamp(z, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, z))
}
