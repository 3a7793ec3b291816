// Package region supplies the shoreline that vessel trajectories start and
// end on.
package region

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/opd-ai/go-lakefleet/pkg/geom"
)

var (
	// ErrDegenerateBoundary is returned for boundaries with fewer than three
	// vertices or a zero perimeter.
	ErrDegenerateBoundary = errors.New("boundary polygon is degenerate")
	// ErrInvalidRange is returned by RandomInt when min > max.
	ErrInvalidRange = errors.New("incorrect range")
	// ErrNoTrajectory is returned when no long enough trajectory was drawn.
	ErrNoTrajectory = errors.New("could not draw a trajectory")
)

// Provider supplies random points on the boundary of a closed region.
// Each call is independent of the previous one.
type Provider interface {
	RandomBoundaryPoint() geom.Vector2D
}

// lakeAreas holds one sampling box per lake vertex, in ring order.
var lakeAreas = [4][2]geom.Vector2D{
	{{X: -6, Y: -3}, {X: -4.5, Y: 3}},
	{{X: -4.5, Y: 3}, {X: 4.5, Y: 4.5}},
	{{X: 4.5, Y: -3}, {X: 6, Y: 3}},
	{{X: -4.5, Y: -4.5}, {X: 4.5, Y: -3}},
}

// Lake is a closed polygonal region sampled uniformly along its perimeter
type Lake struct {
	boundary  geom.Polygon
	perimeter float64
	rng       *rand.Rand
}

// NewLake creates a lake from its boundary vertices
func NewLake(vertices []geom.Vector2D, rng *rand.Rand) (*Lake, error) {
	if len(vertices) < 3 {
		return nil, fmt.Errorf("%w: %d vertices", ErrDegenerateBoundary, len(vertices))
	}
	boundary := make(geom.Polygon, len(vertices))
	copy(boundary, vertices)

	perimeter := boundary.Perimeter()
	if !(perimeter > 0) {
		return nil, fmt.Errorf("%w: zero perimeter", ErrDegenerateBoundary)
	}

	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Lake{
		boundary:  boundary,
		perimeter: perimeter,
		rng:       rng,
	}, nil
}

// RandomLake generates a four-vertex lake, one vertex drawn inside each of the
// left, top, right and bottom sampling boxes.
func RandomLake(rng *rand.Rand) *Lake {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	vertices := make([]geom.Vector2D, len(lakeAreas))
	for i, area := range lakeAreas {
		lo, hi := area[0], area[1]
		vertices[i] = geom.Vector2D{
			X: lo.X + rng.Float64()*(hi.X-lo.X),
			Y: lo.Y + rng.Float64()*(hi.Y-lo.Y),
		}
	}

	// Each box spans a non-zero area, so the ring can never collapse.
	lake, _ := NewLake(vertices, rng)
	return lake
}

// Boundary returns a copy of the boundary ring
func (l *Lake) Boundary() geom.Polygon {
	out := make(geom.Polygon, len(l.boundary))
	copy(out, l.boundary)
	return out
}

// Perimeter returns the boundary length
func (l *Lake) Perimeter() float64 {
	return l.perimeter
}

// RandomBoundaryPoint implements Provider
func (l *Lake) RandomBoundaryPoint() geom.Vector2D {
	return l.boundary.PointAt(l.perimeter * l.rng.Float64())
}

// RandomInt returns a random integer in [min, max). It fails when min > max
// and returns min when the range is empty.
func RandomInt(rng *rand.Rand, min, max int) (int, error) {
	if min > max {
		return 0, fmt.Errorf("%w: min %d > max %d", ErrInvalidRange, min, max)
	}
	if min == max {
		return min, nil
	}
	return min + rng.IntN(max-min), nil
}

// Trajectory draws start and end points with two independent calls,
// retrying up to attempts times while the path is shorter than minLength.
func Trajectory(p Provider, minLength float64, attempts int) (geom.Vector2D, geom.Vector2D, error) {
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		start := p.RandomBoundaryPoint()
		end := p.RandomBoundaryPoint()
		if start.Distance(end) >= minLength {
			return start, end, nil
		}
	}
	return geom.Vector2D{}, geom.Vector2D{}, fmt.Errorf("%w: %d attempts shorter than %v", ErrNoTrajectory, attempts, minLength)
}
