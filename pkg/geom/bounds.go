// pkg/geom/bounds.go
package geom

import "math"

// Bounds represents an axis-aligned rectangular area
type Bounds struct {
	Min Vector2D `json:"min"`
	Max Vector2D `json:"max"`
}

// BoundsOf returns the smallest box containing every point.
// With no points it returns the zero box.
func BoundsOf(points ...Vector2D) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}
	b := Bounds{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		b.Min.X = math.Min(b.Min.X, p.X)
		b.Min.Y = math.Min(b.Min.Y, p.Y)
		b.Max.X = math.Max(b.Max.X, p.X)
		b.Max.Y = math.Max(b.Max.Y, p.Y)
	}
	return b
}

// Width returns the extent along x
func (b Bounds) Width() float64 {
	return b.Max.X - b.Min.X
}

// Height returns the extent along y
func (b Bounds) Height() float64 {
	return b.Max.Y - b.Min.Y
}

// Contains reports whether the point lies inside the box, edges included
func (b Bounds) Contains(point Vector2D) bool {
	return !(point.X > b.Max.X) && !(point.X < b.Min.X) &&
		!(point.Y > b.Max.Y) && !(point.Y < b.Min.Y)
}

// Overlaps reports whether two boxes share at least one point
func (b Bounds) Overlaps(other Bounds) bool {
	return !(other.Min.X > b.Max.X || other.Max.X < b.Min.X ||
		other.Min.Y > b.Max.Y || other.Max.Y < b.Min.Y)
}

// Union returns the smallest box containing both boxes
func (b Bounds) Union(other Bounds) Bounds {
	return BoundsOf(b.Min, b.Max, other.Min, other.Max)
}

// Expand grows the box by margin on every side
func (b Bounds) Expand(margin float64) Bounds {
	return Bounds{
		Min: Vector2D{X: b.Min.X - margin, Y: b.Min.Y - margin},
		Max: Vector2D{X: b.Max.X + margin, Y: b.Max.Y + margin},
	}
}
