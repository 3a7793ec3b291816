// pkg/engine/snapshot.go
package engine

import (
	"github.com/opd-ai/go-lakefleet/pkg/geom"
	"github.com/opd-ai/go-lakefleet/pkg/scheduler"
	"github.com/opd-ai/go-lakefleet/pkg/vessel"
)

// AgentState is the externally visible state of one vessel
type AgentState struct {
	ID      uint64        `json:"id"`
	Name    string        `json:"name"`
	X       float64       `json:"x"`
	Y       float64       `json:"y"`
	Heading float64       `json:"heading"`
	Speed   float64       `json:"speed"`
	Width   float64       `json:"width"`
	Moving  bool          `json:"moving"`
	Start   geom.Vector2D `json:"start"`
	End     geom.Vector2D `json:"end"`
}

// ConflictState is one conflicting pair in a snapshot
type ConflictState struct {
	A        uint64  `json:"a"`
	B        uint64  `json:"b"`
	Yielding uint64  `json:"yielding,omitempty"`
	Area     float64 `json:"area"`
}

// Snapshot is a point-in-time copy of the fleet
type Snapshot struct {
	RunID     string          `json:"runId"`
	Tick      uint64          `json:"tick"`
	Time      float64         `json:"time"`
	Status    string          `json:"status"`
	Boundary  geom.Polygon    `json:"boundary,omitempty"`
	Agents    []AgentState    `json:"agents"`
	Conflicts []ConflictState `json:"conflicts,omitempty"`
	Stats     scheduler.Stats `json:"stats"`
}

type boundedRegion interface {
	Boundary() geom.Polygon
}

// Snapshot copies the current fleet state. Agents are listed in spawn order.
func (f *Fleet) Snapshot() *Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := &Snapshot{
		RunID:  f.RunID,
		Tick:   f.currentTick,
		Time:   f.simTime,
		Status: f.status.String(),
		Stats:  f.Scheduler.Stats(),
	}
	if b, ok := f.Region.(boundedRegion); ok {
		snap.Boundary = b.Boundary()
	}

	f.Scheduler.View(func(agents []*vessel.Agent) {
		snap.Agents = make([]AgentState, len(agents))
		for i, a := range agents {
			snap.Agents[i] = stateOf(a)
		}
	})

	for _, c := range f.Scheduler.Conflicts() {
		snap.Conflicts = append(snap.Conflicts, ConflictState{
			A:        c.A,
			B:        c.B,
			Yielding: c.Yielding,
			Area:     c.Area,
		})
	}
	return snap
}

func stateOf(a *vessel.Agent) AgentState {
	return AgentState{
		ID:      a.ID(),
		Name:    a.Name,
		X:       a.Position.X,
		Y:       a.Position.Y,
		Heading: a.Heading,
		Speed:   a.Speed,
		Width:   a.Width,
		Moving:  a.IsMoving(),
		Start:   a.Trajectory.Start,
		End:     a.Trajectory.End,
	}
}
