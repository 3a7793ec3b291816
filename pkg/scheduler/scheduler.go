// Package scheduler decides, every tick, which vessels may keep moving.
//
// Each pair of live agents is tested for intersecting swept footprints. When
// they cross, both agents' occupancy intervals over the shared zone are
// compared and a priority rule picks the agent that pauses. Newly spawned
// agents only start moving when they conflict with nobody.
//
// The pairwise pass is O(n²) per tick in the worst case. An r-tree over the
// swept footprints prunes pairs whose boxes are disjoint.
package scheduler

import (
	"context"
	"sync"

	"github.com/EngoEngine/ecs"

	"github.com/opd-ai/go-lakefleet/pkg/geom"
	"github.com/opd-ai/go-lakefleet/pkg/logging"
	"github.com/opd-ai/go-lakefleet/pkg/vessel"
)

// Options configures a Scheduler
type Options struct {
	// BroadPhase enables the r-tree pre-filter. Decisions are identical
	// either way.
	BroadPhase bool
	Logger     *logging.Logger
}

// DefaultOptions returns options with the broad phase enabled
func DefaultOptions() Options {
	return Options{BroadPhase: true}
}

// Decision is the motion state assigned to one agent during a tick
type Decision struct {
	ID      uint64 `json:"id"`
	Moving  bool   `json:"moving"`
	Changed bool   `json:"changed"`
	// BlockedBy is the first agent current yielded to, 0 when moving.
	BlockedBy uint64 `json:"blockedBy,omitempty"`
}

// Stats are cumulative counters since the scheduler was created
type Stats struct {
	Ticks          uint64 `json:"ticks"`
	Live           int    `json:"live"`
	Spawned        uint64 `json:"spawned"`
	Arrived        uint64 `json:"arrived"`
	PairsEvaluated uint64 `json:"pairsEvaluated"`
	PairsPruned    uint64 `json:"pairsPruned"`
	Conflicts      uint64 `json:"conflicts"`
	Yields         uint64 `json:"yields"`
	BlockedSpawns  uint64 `json:"blockedSpawns"`
}

// ArrivalHandler is called once for every agent that reached its destination
type ArrivalHandler func(a *vessel.Agent)

// DecisionHandler is called with every per-tick decision
type DecisionHandler func(d Decision)

// Scheduler owns the live agent set and its motion decisions
type Scheduler struct {
	mu sync.RWMutex

	agents map[uint64]*vessel.Agent
	order  []*vessel.Agent
	index  *broadPhase

	opts   Options
	logger *logging.Logger
	stats  Stats

	onArrived  ArrivalHandler
	onDecision DecisionHandler
}

// New creates an empty scheduler
func New(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Scheduler{
		agents: make(map[uint64]*vessel.Agent),
		opts:   opts,
		logger: logger.With("component", "scheduler"),
	}
	if opts.BroadPhase {
		s.index = newBroadPhase()
	}
	return s
}

// OnAgentArrived registers the arrival hook. It runs after the tick's lock is
// released, so it may call Spawn.
func (s *Scheduler) OnAgentArrived(fn ArrivalHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onArrived = fn
}

// OnDecision registers the per-tick decision hook. Like OnAgentArrived it runs
// outside the lock.
func (s *Scheduler) OnDecision(fn DecisionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDecision = fn
}

// Spawn creates an agent and registers it. See Add.
func (s *Scheduler) Spawn(start, end geom.Vector2D, speed, width float64) (*vessel.Agent, error) {
	a, err := vessel.New(start, end, speed, width)
	if err != nil {
		return nil, logging.WrapError(err, "spawn vessel")
	}
	s.Add(a)
	return a, nil
}

// Add registers a pre-built agent. The agent may start moving only when it
// conflicts with no live agent; the priority rule is not consulted, so an
// incumbent always keeps its right of way.
func (s *Scheduler) Add(a *vessel.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[a.ID()]; exists {
		return
	}

	var blockedBy uint64
	for _, other := range s.candidates(a) {
		if PairConflicts(a, other) {
			blockedBy = other.ID()
			break
		}
	}
	a.SetMoving(blockedBy == 0)

	s.agents[a.ID()] = a
	s.order = append(s.order, a)
	if s.index != nil {
		s.index.insert(a)
	}

	s.stats.Spawned++
	if blockedBy != 0 {
		s.stats.BlockedSpawns++
	}
	s.logger.Debug(context.Background(), "agent added",
		"agent", a.String(),
		"moving", a.IsMoving(),
		"blocked_by", blockedBy,
	)
}

// Tick re-evaluates every agent against every other in spawn order, advances
// moving agents by dt seconds and removes those that arrived. Each decision is
// applied as soon as it is made, so agents later in the pass see the motion
// state already chosen for earlier ones. It returns the IDs of arrived agents.
func (s *Scheduler) Tick(dt float64) []uint64 {
	s.mu.Lock()

	live := make([]*vessel.Agent, len(s.order))
	copy(live, s.order)

	decisions := make([]Decision, len(live))
	for i, a := range live {
		decisions[i] = s.decide(a)
		decisions[i].Changed = a.SetMoving(decisions[i].Moving)
	}

	var arrived []*vessel.Agent
	for _, a := range live {
		if a.Advance(dt) {
			arrived = append(arrived, a)
		}
	}
	ids := make([]uint64, 0, len(arrived))
	for _, a := range arrived {
		s.removeLocked(a.ID())
		ids = append(ids, a.ID())
	}

	s.stats.Ticks++
	s.stats.Arrived += uint64(len(arrived))
	onArrived, onDecision := s.onArrived, s.onDecision
	s.mu.Unlock()

	if onDecision != nil {
		for _, d := range decisions {
			onDecision(d)
		}
	}
	for _, a := range arrived {
		s.logger.Debug(context.Background(), "agent arrived", "agent", a.String())
		if onArrived != nil {
			onArrived(a)
		}
	}
	return ids
}

// decide computes whether a may move this tick. Every other agent is checked
// even after a is already blocked, so the counters cover all pairs.
func (s *Scheduler) decide(a *vessel.Agent) Decision {
	d := Decision{ID: a.ID(), Moving: true}

	candidates := s.candidates(a)
	s.stats.PairsPruned += uint64(len(s.order) - 1 - len(candidates))

	for _, other := range candidates {
		s.stats.PairsEvaluated++
		assessment := Assess(a, other)
		if !assessment.Conflict {
			continue
		}
		s.stats.Conflicts++
		if yields(a, other, assessment) {
			s.stats.Yields++
			if d.Moving {
				d.Moving = false
				d.BlockedBy = other.ID()
			}
		}
	}
	return d
}

// candidates lists live agents other than a that may conflict with it, in
// insertion order. Callers must hold the lock.
func (s *Scheduler) candidates(a *vessel.Agent) []*vessel.Agent {
	out := make([]*vessel.Agent, 0, len(s.order))
	if s.index == nil {
		for _, other := range s.order {
			if other.ID() != a.ID() {
				out = append(out, other)
			}
		}
		return out
	}

	near := s.index.neighbours(a)
	for _, other := range s.order {
		if other.ID() == a.ID() {
			continue
		}
		if _, ok := near[other.ID()]; ok {
			out = append(out, other)
		}
	}
	return out
}

// Despawn removes an agent by ID. It reports whether the agent was live.
func (s *Scheduler) Despawn(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Scheduler) removeLocked(id uint64) bool {
	if _, ok := s.agents[id]; !ok {
		return false
	}
	delete(s.agents, id)
	for i, a := range s.order {
		if a.ID() == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.index != nil {
		s.index.remove(id)
	}
	return true
}

// Get returns a live agent
func (s *Scheduler) Get(id uint64) (*vessel.Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	return a, ok
}

// Len returns the number of live agents
func (s *Scheduler) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Agents returns the live agents in insertion order. The slice is a copy; the
// agents are shared and must only be read.
func (s *Scheduler) Agents() []*vessel.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*vessel.Agent, len(s.order))
	copy(out, s.order)
	return out
}

// View runs fn with a consistent view of the live agents. fn must not call
// back into the scheduler.
func (s *Scheduler) View(fn func(agents []*vessel.Agent)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.order)
}

// Stats returns a copy of the counters
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.stats
	st.Live = len(s.order)
	return st
}

// Update implements ecs.System
func (s *Scheduler) Update(dt float32) {
	s.Tick(float64(dt))
}

// Remove implements ecs.System
func (s *Scheduler) Remove(e ecs.BasicEntity) {
	s.Despawn(e.ID())
}
