// pkg/geom/polygon.go
package geom

import "math"

// Polygon is a closed ring of vertices. The last vertex connects back to the
// first one.
type Polygon []Vector2D

// Edge returns the i-th edge of the ring
func (p Polygon) Edge(i int) Segment {
	n := len(p)
	return Segment{Start: p[i%n], End: p[(i+1)%n]}
}

// Perimeter returns the total length of the closed ring
func (p Polygon) Perimeter() float64 {
	if len(p) < 2 {
		return 0
	}
	total := 0.0
	for i := range p {
		total += p.Edge(i).Length()
	}
	return total
}

// PointAt walks the ring from the first vertex and returns the point lying
// distance units along it. Distances wrap around the perimeter.
func (p Polygon) PointAt(distance float64) Vector2D {
	switch len(p) {
	case 0:
		return Vector2D{}
	case 1:
		return p[0]
	}

	perimeter := p.Perimeter()
	if perimeter == 0 {
		return p[0]
	}
	distance = math.Mod(distance, perimeter)
	if distance < 0 {
		distance += perimeter
	}

	for i := range p {
		edge := p.Edge(i)
		length := edge.Length()
		if distance <= length {
			if length == 0 {
				return edge.Start
			}
			return edge.Start.Add(edge.Direction().Scale(distance / length))
		}
		distance -= length
	}
	return p[0]
}

// Area returns the unsigned area enclosed by the ring (shoelace formula)
func (p Polygon) Area() float64 {
	if len(p) < 3 {
		return 0
	}
	sum := 0.0
	for i := range p {
		a, b := p[i], p[(i+1)%len(p)]
		sum += a.Cross(b)
	}
	return math.Abs(sum) / 2
}

// Bounds returns the bounding box of all vertices
func (p Polygon) Bounds() Bounds {
	return BoundsOf(p...)
}
