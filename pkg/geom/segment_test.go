// pkg/geom/segment_test.go
package geom

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntersect_Cases(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Segment
		wantOK    bool
		wantPoint Vector2D
	}{
		{
			name:      "interior_crossing",
			a:         NewSegment(Vector2D{X: 0, Y: 0}, Vector2D{X: 4, Y: 4}),
			b:         NewSegment(Vector2D{X: 0, Y: 4}, Vector2D{X: 4, Y: 0}),
			wantOK:    true,
			wantPoint: Vector2D{X: 2, Y: 2},
		},
		{
			name:      "perpendicular_axis_aligned",
			a:         NewSegment(Vector2D{X: -10, Y: 0.5}, Vector2D{X: 10, Y: 0.5}),
			b:         NewSegment(Vector2D{X: -0.5, Y: -10}, Vector2D{X: -0.5, Y: 10}),
			wantOK:    true,
			wantPoint: Vector2D{X: -0.5, Y: 0.5},
		},
		{
			name:      "touching_at_endpoint",
			a:         NewSegment(Vector2D{X: 0, Y: 0}, Vector2D{X: 2, Y: 0}),
			b:         NewSegment(Vector2D{X: 2, Y: -1}, Vector2D{X: 2, Y: 1}),
			wantOK:    true,
			wantPoint: Vector2D{X: 2, Y: 0},
		},
		{
			name:   "lines_cross_outside_segments",
			a:      NewSegment(Vector2D{X: 0, Y: 0}, Vector2D{X: 1, Y: 1}),
			b:      NewSegment(Vector2D{X: 0, Y: 4}, Vector2D{X: 1, Y: 3}),
			wantOK: false,
		},
		{
			name:   "well_separated",
			a:      NewSegment(Vector2D{X: -5, Y: -5}, Vector2D{X: -4, Y: -3}),
			b:      NewSegment(Vector2D{X: 5, Y: 5}, Vector2D{X: 7, Y: 4}),
			wantOK: false,
		},
		{
			name:   "collinear_overlap_reported_as_miss",
			a:      NewSegment(Vector2D{X: 0, Y: 0}, Vector2D{X: 4, Y: 0}),
			b:      NewSegment(Vector2D{X: 2, Y: 0}, Vector2D{X: 6, Y: 0}),
			wantOK: false,
		},
		{
			name:   "zero_length_segment",
			a:      NewSegment(Vector2D{X: 1, Y: 1}, Vector2D{X: 1, Y: 1}),
			b:      NewSegment(Vector2D{X: 0, Y: 0}, Vector2D{X: 2, Y: 2}),
			wantOK: false,
		},
		{
			name:   "tiny_segments_below_parallel_epsilon",
			a:      NewSegment(Vector2D{X: 0, Y: 0}, Vector2D{X: 0.001, Y: 0}),
			b:      NewSegment(Vector2D{X: 0.0005, Y: -0.0005}, Vector2D{X: 0.0005, Y: 0.0005}),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			point, ok := Intersect(tt.a, tt.b)
			require.Equal(t, tt.wantOK, ok, "point %v", point)
			if ok {
				assert.InDelta(t, 0, point.Distance(tt.wantPoint), 1e-9, "Intersect() point = %v", point)
			}
		})
	}
}

func TestIntersect_ParallelNeverIntersect(t *testing.T) {
	base := NewSegment(Vector2D{X: -3, Y: 1}, Vector2D{X: 7, Y: 4})
	normal := base.Direction().Perpendicular().Normalize()

	for _, gap := range []float64{1e-6, 0.01, 0.5, 1, 10, 1e4} {
		other := base.Offset(normal.Scale(gap))
		_, ok := Intersect(base, other)
		assert.False(t, ok, "gap %v", gap)
		_, ok = Intersect(other, base)
		assert.False(t, ok, "gap %v, swapped", gap)
	}
}

func TestIntersect_RandomCrossings(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 500; i++ {
		center := Vector2D{X: rng.Float64()*20 - 10, Y: rng.Float64()*20 - 10}
		angleA := rng.Float64() * math.Pi
		angleB := angleA + 0.2 + rng.Float64()*(math.Pi-0.4)
		lengthA := 1 + rng.Float64()*5
		lengthB := 1 + rng.Float64()*5

		dirA := Vector2D{X: math.Cos(angleA), Y: math.Sin(angleA)}
		dirB := Vector2D{X: math.Cos(angleB), Y: math.Sin(angleB)}

		a := NewSegment(center.Sub(dirA.Scale(lengthA*rng.Float64())), center.Add(dirA.Scale(lengthA)))
		b := NewSegment(center.Sub(dirB.Scale(lengthB)), center.Add(dirB.Scale(lengthB*rng.Float64())))

		point, ok := Intersect(a, b)
		require.True(t, ok, "case %d: expected crossing near %v for %v and %v", i, center, a, b)
		require.InDelta(t, 0, point.Distance(center), 1e-6, "case %d", i)
		require.True(t, a.Bounds().Expand(1e-9).Contains(point), "case %d: outside first box", i)
		require.True(t, b.Bounds().Expand(1e-9).Contains(point), "case %d: outside second box", i)
	}
}

func TestSegment_Angle(t *testing.T) {
	tests := []struct {
		name     string
		end      Vector2D
		expected float64
	}{
		{"towards_positive_x", Vector2D{X: 5, Y: 0}, 270},
		{"towards_negative_x", Vector2D{X: -5, Y: 0}, 90},
		{"towards_positive_y", Vector2D{X: 0, Y: 5}, 0},
		{"towards_negative_y", Vector2D{X: 0, Y: -5}, 180},
		{"diagonal_up_right", Vector2D{X: 1, Y: 1}, 315},
		{"diagonal_up_left", Vector2D{X: -1, Y: 1}, 45},
		{"nearly_positive_y_from_the_left", Vector2D{X: -1e-9, Y: 5}, 0},
		{"zero_length", Vector2D{X: 0, Y: 0}, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, NewSegment(Vector2D{}, tt.end).Angle(), 1e-6)
		})
	}
}

func TestSegment_OffsetKeepsDirection(t *testing.T) {
	s := NewSegment(Vector2D{X: 1, Y: 2}, Vector2D{X: 4, Y: 6})
	moved := s.Offset(Vector2D{X: -1, Y: 1})

	assert.Equal(t, s.Direction(), moved.Direction())
	assert.Equal(t, Vector2D{X: 0, Y: 3}, moved.Start)
}
