// pkg/scheduler/zone.go
package scheduler

import (
	polyclip "github.com/akavel/polyclip-go"

	"github.com/opd-ai/go-lakefleet/pkg/geom"
	"github.com/opd-ai/go-lakefleet/pkg/vessel"
)

// Conflict describes one conflicting pair for diagnostics. It plays no part
// in motion decisions.
type Conflict struct {
	A        uint64       `json:"a"`
	B        uint64       `json:"b"`
	AWindow  Interval     `json:"aWindow"`
	BWindow  Interval     `json:"bWindow"`
	Zone     geom.Polygon `json:"zone"`
	Area     float64      `json:"area"`
	Yielding uint64       `json:"yielding,omitempty"`
}

// ConflictZone clips the two swept footprints against each other and returns
// the overlap polygon, or nil when they do not overlap.
func ConflictZone(a, b *vessel.Agent) geom.Polygon {
	if !a.SweptBounds().Overlaps(b.SweptBounds()) {
		return nil
	}

	subject := polyclip.Polygon{toContour(a.Footprint())}
	clipping := polyclip.Polygon{toContour(b.Footprint())}

	result := subject.Construct(polyclip.INTERSECTION, clipping)
	if len(result) == 0 || len(result[0]) < 3 {
		return nil
	}

	zone := make(geom.Polygon, len(result[0]))
	for i, p := range result[0] {
		zone[i] = geom.Vector2D{X: p.X, Y: p.Y}
	}
	return zone
}

func toContour(p geom.Polygon) polyclip.Contour {
	contour := make(polyclip.Contour, len(p))
	for i, v := range p {
		contour[i] = polyclip.Point{X: v.X, Y: v.Y}
	}
	return contour
}

// Conflicts lists every unordered pair of live agents that currently
// conflicts, with its zone and the agent the priority rule would pause.
func (s *Scheduler) Conflicts() []Conflict {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Conflict
	for i, a := range s.order {
		for _, b := range s.order[i+1:] {
			assessment := Assess(a, b)
			if !assessment.Conflict {
				continue
			}
			c := Conflict{
				A:       a.ID(),
				B:       b.ID(),
				AWindow: assessment.Current,
				BWindow: assessment.Other,
				Zone:    ConflictZone(a, b),
			}
			c.Area = c.Zone.Area()
			switch {
			case yields(a, b, assessment):
				c.Yielding = a.ID()
			case ShouldYield(b, a):
				c.Yielding = b.ID()
			}
			out = append(out, c)
		}
	}
	return out
}
