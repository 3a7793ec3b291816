// pkg/geom/segment.go
package geom

import "math"

const (
	// ParallelEpsilon is the squared cross-product magnitude below which two
	// segments are treated as parallel and never intersect.
	ParallelEpsilon = 1e-4

	// boundsTolerance absorbs float64 rounding when an intersection point is
	// checked against an axis-aligned segment's degenerate bounding box.
	boundsTolerance = 1e-9
)

// Segment is a directed line segment. It is a value type and never mutated
// after construction.
type Segment struct {
	Start Vector2D `json:"start"`
	End   Vector2D `json:"end"`
}

// NewSegment creates a segment from start to end
func NewSegment(start, end Vector2D) Segment {
	return Segment{Start: start, End: end}
}

// Direction returns the (non-normalized) vector from Start to End
func (s Segment) Direction() Vector2D {
	return s.End.Sub(s.Start)
}

// Length returns the distance between the endpoints
func (s Segment) Length() float64 {
	return s.Direction().Length()
}

// Offset returns the segment translated by delta
func (s Segment) Offset(delta Vector2D) Segment {
	return Segment{Start: s.Start.Add(delta), End: s.End.Add(delta)}
}

// Angle returns the heading of the segment in degrees, measured
// counter-clockwise from the +y axis:
//
//	90 + degrees(atan(dy/dx)) + (180 if (start-end).x < 0)
//
// A vertical segment (dx == 0) heads 0 when travelling +y and 180 when
// travelling -y. A zero-length segment returns 90.
func (s Segment) Angle() float64 {
	d := s.Direction()
	if d.X == 0 {
		switch {
		case d.Y > 0:
			return 0
		case d.Y < 0:
			return 180
		default:
			return 90
		}
	}

	angle := 90 + math.Atan(d.Y/d.X)*180/math.Pi
	if s.Start.X-s.End.X < 0 {
		angle += 180
	}
	return angle
}

// Bounds returns the axis-aligned bounding box of the segment
func (s Segment) Bounds() Bounds {
	return BoundsOf(s.Start, s.End)
}

// Intersect tests two segments for intersection. It returns the intersection
// point and true when the segments are not parallel and the crossing of their
// supporting lines lies inside both segments' bounding boxes (inclusive).
//
// Collinear overlapping segments have a zero cross product and are reported
// as not intersecting.
func Intersect(a, b Segment) (Vector2D, bool) {
	d1 := a.Direction()
	d2 := b.Direction()
	d3 := b.Start.Sub(a.Start)

	c12 := d1.Cross(d2)
	if c12*c12 <= ParallelEpsilon {
		return Vector2D{}, false
	}
	c32 := d3.Cross(d2)

	// In the plane both cross products are parallel to z, so the projection
	// c32·c12/|c12|² reduces to the scalar ratio.
	s := c32 * c12 / (c12 * c12)
	point := a.Start.Add(d1.Scale(s))
	if !point.IsFinite() {
		return Vector2D{}, false
	}

	if !a.Bounds().Expand(boundsTolerance).Contains(point) ||
		!b.Bounds().Expand(boundsTolerance).Contains(point) {
		return Vector2D{}, false
	}
	return point, true
}
