package depot

import "math"

// Tick is a point in world time, used for change detection. Ticks wrap.
type Tick uint32

const (
	// CheckTickThreshold is how far the world tick may advance before stored ticks get rebased.
	CheckTickThreshold Tick = 518_400_000

	// MaxChangeAge is the oldest distance a stored tick may have from the current tick.
	// Anything older is clamped so comparisons across wraparound stay unambiguous.
	MaxChangeAge Tick = math.MaxUint32 - (2*CheckTickThreshold - 1)
)

// relativeTo returns the wrapping distance from other to t.
func (t Tick) relativeTo(other Tick) Tick {
	return t - other
}

// IsNewerThan reports whether t happened after lastRun as seen from thisRun.
func (t Tick) IsNewerThan(lastRun, thisRun Tick) bool {
	sinceInsert := min(thisRun.relativeTo(t), MaxChangeAge)
	sinceSystem := min(thisRun.relativeTo(lastRun), MaxChangeAge)
	return sinceSystem > sinceInsert
}

// rebase clamps t so it is never older than MaxChangeAge relative to now.
// It reports whether the tick was modified.
func (t *Tick) rebase(now Tick) bool {
	if now.relativeTo(*t) > MaxChangeAge {
		*t = now - MaxChangeAge
		return true
	}
	return false
}

// ComponentTicks records when a component value was added and last changed.
type ComponentTicks struct {
	Added   Tick
	Changed Tick
}

// IsAdded reports whether the value was added after lastRun.
func (c ComponentTicks) IsAdded(lastRun, thisRun Tick) bool {
	return c.Added.IsNewerThan(lastRun, thisRun)
}

// IsChanged reports whether the value changed after lastRun.
func (c ComponentTicks) IsChanged(lastRun, thisRun Tick) bool {
	return c.Changed.IsNewerThan(lastRun, thisRun)
}
