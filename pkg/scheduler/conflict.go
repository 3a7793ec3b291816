// pkg/scheduler/conflict.go
package scheduler

import (
	"math"

	"github.com/opd-ai/go-lakefleet/pkg/geom"
	"github.com/opd-ai/go-lakefleet/pkg/vessel"
)

const (
	// signTolerance is the relative magnitude under which a vector component
	// counts as zero when comparing travel and approach directions.
	signTolerance = 1e-9

	// TieTolerance is the margin difference under which two agents are
	// considered equally urgent. The later-spawned agent yields on a tie.
	TieTolerance = 1e-9
)

// Crossings holds the intersection points between the edges of two agents,
// indexed [edge of the first agent][edge of the second agent] with
// vessel.Left and vessel.Right.
type Crossings struct {
	Points [2][2]geom.Vector2D
	Found  [2][2]bool
}

// Any reports whether at least one pair of edges intersects
func (c Crossings) Any() bool {
	return c.Found[0][0] || c.Found[0][1] || c.Found[1][0] || c.Found[1][1]
}

// IntersectionPoints intersects both edges of a with both edges of b, using
// a's edge as the first segment. It returns false when no pair intersects.
func IntersectionPoints(a, b *vessel.Agent) (Crossings, bool) {
	var c Crossings
	for _, sa := range [2]int{vessel.Left, vessel.Right} {
		for _, sb := range [2]int{vessel.Left, vessel.Right} {
			c.Points[sa][sb], c.Found[sa][sb] = geom.Intersect(a.Edge(sa), b.Edge(sb))
		}
	}
	return c, c.Any()
}

// Interval is the time window, in seconds from now, during which an agent's
// footprint overlaps a conflict zone. Negative times lie in the past.
type Interval struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// emptyInterval is returned when there is nothing to measure. Its Max is
// negative, so it never conflicts.
var emptyInterval = Interval{Min: math.Inf(1), Max: math.Inf(-1)}

// Empty reports whether the interval holds no time at all
func (i Interval) Empty() bool {
	return i.Min > i.Max
}

// Straddles reports whether now lies strictly inside the interval
func (i Interval) Straddles() bool {
	return i.Min < 0 && i.Max > 0
}

// OccupancyInterval computes when a enters and leaves the zone bounded by the
// crossings on its own edges. Entry is the earliest arrival of a front corner
// at a crossing on the same side; exit is the latest arrival of a back corner.
// Both are measured from a's current position and divided by its speed.
// Missing crossings are skipped.
func OccupancyInterval(a *vessel.Agent, c Crossings) Interval {
	if !c.Any() {
		return emptyInterval
	}

	way := a.Direction()
	entry, exit := math.Inf(1), math.Inf(-1)
	for _, side := range [2]int{vessel.Left, vessel.Right} {
		front := a.CornerPosition(vessel.Front, side)
		back := a.CornerPosition(vessel.Back, side)
		for other := range c.Points[side] {
			if !c.Found[side][other] {
				continue
			}
			point := c.Points[side][other]
			entry = math.Min(entry, signedDistance(way, front, point))
			exit = math.Max(exit, signedDistance(way, back, point))
		}
	}

	return Interval{Min: entry / a.Speed, Max: exit / a.Speed}
}

// signedDistance returns the distance from corner to point, negative unless
// the vector towards point has the same sign as way on both axes.
func signedDistance(way, corner, point geom.Vector2D) float64 {
	toPoint := point.Sub(corner)
	distance := toPoint.Length()
	if sign(way.X, way) != sign(toPoint.X, toPoint) || sign(way.Y, way) != sign(toPoint.Y, toPoint) {
		return -distance
	}
	return distance
}

// sign returns -1, 0 or 1. Components that are tiny relative to the vector
// they belong to count as zero.
func sign(component float64, of geom.Vector2D) int {
	if math.Abs(component) <= signTolerance*math.Max(1, of.Length()) {
		return 0
	}
	if component < 0 {
		return -1
	}
	return 1
}

// Assessment is the outcome of testing one ordered pair of agents
type Assessment struct {
	// Current is the first agent's occupancy interval, Other the second's.
	Current  Interval
	Other    Interval
	Conflict bool
}

// Assess tests whether current and other would occupy their shared zone at
// overlapping times. The crossings are recomputed from each agent's side
// since they differ per direction.
func Assess(current, other *vessel.Agent) Assessment {
	cc, ok := IntersectionPoints(current, other)
	if !ok {
		return Assessment{Current: emptyInterval, Other: emptyInterval}
	}
	co, _ := IntersectionPoints(other, current)

	a := Assessment{
		Current: OccupancyInterval(current, cc),
		Other:   OccupancyInterval(other, co),
	}
	a.Conflict = !(a.Current.Min > a.Other.Max ||
		a.Other.Min > a.Current.Max ||
		a.Current.Max < 0 ||
		a.Other.Max < 0)
	return a
}

// PairConflicts reports whether two agents' occupancy windows overlap. The
// result is symmetric.
func PairConflicts(a, b *vessel.Agent) bool {
	return Assess(a, b).Conflict
}

// ShouldYield reports whether current must pause for other. It is meaningful
// only when the pair conflicts.
func ShouldYield(current, other *vessel.Agent) bool {
	return yields(current, other, Assess(current, other))
}

// yields applies the priority rule to an already computed assessment.
//
// current is less urgent when other would clear the zone sooner relative to
// current's entry than current would relative to other's entry. A stopped
// other only counts as an obstacle while it still sits inside the zone.
func yields(current, other *vessel.Agent, a Assessment) bool {
	currentMargin := a.Other.Max - a.Current.Min
	otherMargin := a.Current.Max - a.Other.Min

	var r1 bool
	if math.Abs(currentMargin-otherMargin) <= TieTolerance {
		r1 = current.ID() > other.ID()
	} else {
		r1 = currentMargin < otherMargin
	}

	r2 := other.IsMoving() || a.Other.Straddles()
	return r1 && r2
}
