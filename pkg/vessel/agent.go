// Package vessel models the agents that cross the lake: a straight trajectory,
// a rectangular footprint swept along it, and a motion flag owned by the
// scheduler.
package vessel

import (
	"errors"
	"fmt"

	"github.com/EngoEngine/ecs"
	petname "github.com/dustinkirkland/golang-petname"

	"github.com/opd-ai/go-lakefleet/pkg/geom"
)

// Corner indices into Agent.Corners
const (
	Front = 0
	Back  = 1
	Left  = 0
	Right = 1
)

var (
	// ErrInvalidSpeed is returned when an agent is created with speed <= 0
	ErrInvalidSpeed = errors.New("vessel speed must be positive")
	// ErrInvalidWidth is returned when an agent is created with width <= 0
	ErrInvalidWidth = errors.New("vessel width must be positive")
)

// Agent is a vessel travelling a fixed straight path
type Agent struct {
	ecs.BasicEntity

	Name string

	// Trajectory is the centerline from spawn point to destination.
	Trajectory geom.Segment
	// LeftEdge and RightEdge are the long sides of the swept rectangle.
	LeftEdge  geom.Segment
	RightEdge geom.Segment
	// Corners holds offsets from Position, indexed [Front|Back][Left|Right].
	// They are fixed at creation since the heading never changes.
	Corners [2][2]geom.Vector2D

	Speed    float64
	Width    float64
	Position geom.Vector2D
	Heading  float64 // degrees, counter-clockwise from +y

	moving  bool
	arrived bool
}

// New creates an agent travelling from start to end. The agent starts
// stopped; the scheduler decides when it may move.
func New(start, end geom.Vector2D, speed, width float64) (*Agent, error) {
	if !(speed > 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidSpeed, speed)
	}
	if !(width > 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidWidth, width)
	}

	a := &Agent{
		BasicEntity: ecs.NewBasic(),
		Name:        petname.Generate(2, "-"),
		Speed:       speed,
		Width:       width,
	}
	a.initGeometry(start, end)
	return a, nil
}

// initGeometry derives trajectory, edges, corner offsets and heading.
func (a *Agent) initGeometry(start, end geom.Vector2D) {
	a.Trajectory = geom.NewSegment(start, end)

	dir := a.Trajectory.Direction().Normalize()
	rightOffset := dir.Perpendicular().Scale(a.Width / 2)
	a.LeftEdge = a.Trajectory.Offset(rightOffset.Neg())
	a.RightEdge = a.Trajectory.Offset(rightOffset)

	// The footprint length uses the full width, matching the vessel sprite's
	// proportions.
	frontOffset := dir.Scale(a.Width)
	a.Corners[Front][Left] = frontOffset.Sub(rightOffset)
	a.Corners[Front][Right] = frontOffset.Add(rightOffset)
	a.Corners[Back][Left] = frontOffset.Neg().Sub(rightOffset)
	a.Corners[Back][Right] = frontOffset.Neg().Add(rightOffset)

	a.Position = start
	a.Heading = a.Trajectory.Angle()
	a.moving = false
}

// IsMoving reports whether the agent is currently allowed to move
func (a *Agent) IsMoving() bool {
	return a.moving
}

// SetMoving updates the motion state. It returns true when the state changed.
func (a *Agent) SetMoving(moving bool) bool {
	if a.arrived {
		return false
	}
	changed := a.moving != moving
	a.moving = moving
	return changed
}

// Arrived reports whether the agent has reached its destination
func (a *Agent) Arrived() bool {
	return a.arrived
}

// Direction returns the non-normalized travel vector of the trajectory
func (a *Agent) Direction() geom.Vector2D {
	return a.Trajectory.Direction()
}

// Edge returns the left or right edge
func (a *Agent) Edge(side int) geom.Segment {
	if side == Right {
		return a.RightEdge
	}
	return a.LeftEdge
}

// CornerPosition returns the current world position of a footprint corner
func (a *Agent) CornerPosition(end, side int) geom.Vector2D {
	return a.Position.Add(a.Corners[end][side])
}

// Footprint returns the swept rectangle as a closed polygon
func (a *Agent) Footprint() geom.Polygon {
	return geom.Polygon{
		a.LeftEdge.Start,
		a.LeftEdge.End,
		a.RightEdge.End,
		a.RightEdge.Start,
	}
}

// SweptBounds returns the bounding box of the swept rectangle
func (a *Agent) SweptBounds() geom.Bounds {
	return a.LeftEdge.Bounds().Union(a.RightEdge.Bounds())
}

// Advance moves the agent towards its destination by speed*deltaTime. It
// returns true on the tick the agent reaches the end point exactly.
func (a *Agent) Advance(deltaTime float64) bool {
	if !a.moving || a.arrived {
		return false
	}

	a.Position = a.Position.MoveTowards(a.Trajectory.End, a.Speed*deltaTime)
	if a.Position.Equal(a.Trajectory.End) {
		a.arrived = true
		a.moving = false
		return true
	}
	return false
}

// String implements fmt.Stringer
func (a *Agent) String() string {
	return fmt.Sprintf("%s#%d", a.Name, a.ID())
}
