// pkg/engine/fleet.go
package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/EngoEngine/ecs"

	"github.com/opd-ai/go-lakefleet/pkg/config"
	"github.com/opd-ai/go-lakefleet/pkg/event"
	"github.com/opd-ai/go-lakefleet/pkg/logging"
	"github.com/opd-ai/go-lakefleet/pkg/region"
	"github.com/opd-ai/go-lakefleet/pkg/scheduler"
	"github.com/opd-ai/go-lakefleet/pkg/vessel"
)

// ErrAlreadyRunning is returned by Run when the fleet loop is already active
var ErrAlreadyRunning = errors.New("fleet is already running")

// FleetStatus is the lifecycle state of a Fleet
type FleetStatus int

const (
	FleetStatusIdle FleetStatus = iota
	FleetStatusRunning
	FleetStatusStopped
)

// String returns the lower-case status name
func (s FleetStatus) String() string {
	switch s {
	case FleetStatusRunning:
		return "running"
	case FleetStatusStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Fleet drives the simulation: it keeps the lake populated, ticks the
// scheduler through an ecs world and publishes what happens on the event bus.
type Fleet struct {
	Config    *config.Config
	RunID     string
	EventBus  *event.Bus
	Scheduler *scheduler.Scheduler
	Region    region.Provider

	world  *ecs.World
	rng    *rand.Rand
	logger *logging.Logger

	mu          sync.Mutex
	status      FleetStatus
	currentTick uint64
	simTime     float64 // simulated seconds
	lastTick    time.Time

	// pending holds the simulated due times of queued spawns, ascending.
	pending   []float64
	refilling bool
	// missedRefill is set when agents arrived while a refill was queued.
	missedRefill bool
	arrivals     int
	outbox       []event.Event
	tickHooks    []TickHook
}

// TickHook is called after every completed tick, outside the fleet lock
type TickHook func(tick uint64)

// NewFleet creates a fleet from a validated configuration. The lake comes
// from the configured vertices or, when there are none, is drawn at random
// from the seed.
func NewFleet(cfg *config.Config, logger *logging.Logger) (*Fleet, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, logging.WrapError(err, "invalid fleet configuration")
	}
	if logger == nil {
		logger = logging.Discard()
	}

	seed := cfg.Region.Seed
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	var provider region.Provider
	if len(cfg.Region.Vertices) > 0 {
		lake, err := region.NewLake(cfg.Region.Vertices, rng)
		if err != nil {
			return nil, logging.WrapError(err, "build lake")
		}
		provider = lake
	} else {
		provider = region.RandomLake(rng)
	}

	runID := logging.GenerateCorrelationID()
	logger = logger.With("run_id", runID)

	f := &Fleet{
		Config:   cfg,
		RunID:    runID,
		EventBus: event.NewEventBus(),
		Region:   provider,
		world:    &ecs.World{},
		rng:      rng,
		logger:   logger,
	}

	f.Scheduler = scheduler.New(scheduler.Options{
		BroadPhase: cfg.Scheduler.BroadPhase,
		Logger:     logger,
	})
	f.Scheduler.OnDecision(f.handleDecision)
	f.Scheduler.OnAgentArrived(f.handleArrival)
	f.world.AddSystem(f.Scheduler)

	return f, nil
}

// Start marks the fleet running and queues the initial spawns
func (f *Fleet) Start() {
	f.mu.Lock()
	if f.status == FleetStatusRunning {
		f.mu.Unlock()
		return
	}
	f.status = FleetStatusRunning
	f.lastTick = time.Now()
	f.refill()
	f.outbox = append(f.outbox, event.NewSimulationEvent(event.SimulationStarted, f, f.RunID, f.currentTick))
	events := f.drainOutbox()
	f.mu.Unlock()

	f.logger.Info(context.Background(), "fleet started",
		"min_agents", f.Config.Fleet.MinAgents,
		"max_agents", f.Config.Fleet.MaxAgents,
		"broad_phase", f.Config.Scheduler.BroadPhase,
	)
	f.publish(events)
}

// Stop halts the fleet. Live agents stay where they are.
func (f *Fleet) Stop() {
	f.mu.Lock()
	if f.status != FleetStatusRunning {
		f.mu.Unlock()
		return
	}
	f.status = FleetStatusStopped
	tick := f.currentTick
	f.mu.Unlock()

	f.logger.Info(context.Background(), "fleet stopped", "tick", tick)
	f.EventBus.Publish(event.NewSimulationEvent(event.SimulationStopped, f, f.RunID, tick))
}

// Running reports whether the fleet is running
func (f *Fleet) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status == FleetStatusRunning
}

// Status returns the lifecycle state
func (f *Fleet) Status() FleetStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// CurrentTick returns the number of completed ticks
func (f *Fleet) CurrentTick() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentTick
}

// LastTick returns the wall-clock time of the last completed tick
func (f *Fleet) LastTick() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTick
}

// PendingSpawns returns the number of queued spawns
func (f *Fleet) PendingSpawns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// AfterTick registers a hook that runs after every Update
func (f *Fleet) AfterTick(fn TickHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickHooks = append(f.tickHooks, fn)
}

// Update advances the simulation clock by deltaTime seconds, releases due
// spawns and runs the ecs world for one tick. Events raised during the tick
// are published after the fleet lock is released.
func (f *Fleet) Update(deltaTime float64) {
	f.mu.Lock()

	f.simTime += deltaTime
	f.releaseDueSpawns()

	// Drives scheduler.Tick through ecs.System.
	f.world.Update(float32(deltaTime))

	if f.arrivals > 0 {
		f.arrivals = 0
		f.replenish()
	}

	f.currentTick++
	f.lastTick = time.Now()
	tick := f.currentTick
	hooks := f.tickHooks
	events := f.drainOutbox()
	f.mu.Unlock()

	f.publish(events)
	for _, fn := range hooks {
		fn(tick)
	}
}

// Run starts the fleet and ticks it every interval with the configured fixed
// time step until ctx is cancelled or Config.Simulation.MaxTicks is reached.
func (f *Fleet) Run(ctx context.Context, interval time.Duration) error {
	if f.Running() {
		return ErrAlreadyRunning
	}
	f.Start()
	defer f.Stop()

	step := f.Config.TimeStep()
	maxTicks := f.Config.Simulation.MaxTicks

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.Update(step)
			if maxTicks > 0 && f.CurrentTick() >= maxTicks {
				return nil
			}
		}
	}
}

// Despawn removes an agent through the ecs world, publishes an
// AgentDespawned event and replaces the agent the same way an arrival is.
func (f *Fleet) Despawn(id uint64) bool {
	f.mu.Lock()

	a, ok := f.Scheduler.Get(id)
	if !ok {
		f.mu.Unlock()
		return false
	}
	f.world.RemoveEntity(a.BasicEntity)
	f.outbox = append(f.outbox, event.NewAgentEvent(event.AgentDespawned, f, a.ID(), a.Name, false))
	f.replenish()
	events := f.drainOutbox()
	f.mu.Unlock()

	f.publish(events)
	return true
}

// replenish starts a refill, or marks one as owed when a refill is already
// queued. Callers must hold f.mu.
func (f *Fleet) replenish() {
	if f.refilling {
		f.missedRefill = true
		return
	}
	f.refill()
}

// refill queues enough spawns to reach a random target count. Each spawn is
// delayed from the previous one by a random interval of simulated time.
// Callers must hold f.mu.
func (f *Fleet) refill() {
	if f.refilling {
		return
	}

	fc := f.Config.Fleet
	target, err := region.RandomInt(f.rng, fc.MinAgents, fc.MaxAgents)
	if err != nil {
		f.logger.Error(context.Background(), "refill target", err)
		return
	}

	missing := target - f.Scheduler.Len()
	if missing <= 0 {
		return
	}

	f.refilling = true
	due := f.simTime
	for i := 0; i < missing; i++ {
		due += f.spawnDelay().Seconds()
		f.pending = append(f.pending, due)
	}
	f.logger.Debug(context.Background(), "refill queued", "target", target, "queued", missing)
}

// spawnDelay draws a delay in [SpawnDelayMin, SpawnDelayMax)
func (f *Fleet) spawnDelay() time.Duration {
	lo, hi := f.Config.Fleet.SpawnDelayMin.Std(), f.Config.Fleet.SpawnDelayMax.Std()
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(f.rng.Int64N(int64(hi-lo)))
}

// releaseDueSpawns spawns every queued agent whose due time has passed.
// Callers must hold f.mu.
func (f *Fleet) releaseDueSpawns() {
	n := 0
	for n < len(f.pending) && f.pending[n] <= f.simTime {
		n++
	}
	if n == 0 {
		return
	}
	f.pending = f.pending[n:]

	for i := 0; i < n; i++ {
		f.spawnOne()
	}

	if len(f.pending) == 0 {
		f.refilling = false
		if f.missedRefill {
			f.missedRefill = false
			f.refill()
		}
	}
}

// spawnOne draws a trajectory and speed and hands the agent to the scheduler.
// Callers must hold f.mu.
func (f *Fleet) spawnOne() {
	fc := f.Config.Fleet

	start, end, err := region.Trajectory(f.Region, fc.MinTrajectoryLength, fc.TrajectoryAttempts)
	if err != nil {
		f.logger.Warn(context.Background(), "spawn skipped", "error", err.Error())
		return
	}

	speed := fc.SpeedMin + f.rng.Float64()*(fc.SpeedMax-fc.SpeedMin)
	a, err := f.Scheduler.Spawn(start, end, speed, fc.AgentWidth)
	if err != nil {
		f.logger.Error(context.Background(), "spawn failed", err)
		return
	}

	f.outbox = append(f.outbox, event.NewAgentEvent(event.AgentSpawned, f, a.ID(), a.Name, a.IsMoving()))
}

// handleDecision runs inside Update with f.mu held.
func (f *Fleet) handleDecision(d scheduler.Decision) {
	if !d.Changed {
		return
	}
	f.outbox = append(f.outbox, event.NewMotionEvent(f, d.ID, d.BlockedBy, f.currentTick, d.Moving))
}

// handleArrival runs inside Update with f.mu held.
func (f *Fleet) handleArrival(a *vessel.Agent) {
	f.arrivals++
	f.outbox = append(f.outbox, event.NewAgentEvent(event.AgentArrived, f, a.ID(), a.Name, false))
}

func (f *Fleet) drainOutbox() []event.Event {
	events := f.outbox
	f.outbox = nil
	return events
}

func (f *Fleet) publish(events []event.Event) {
	for _, e := range events {
		f.EventBus.Publish(e)
	}
}
