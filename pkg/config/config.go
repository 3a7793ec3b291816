// pkg/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opd-ai/go-lakefleet/pkg/geom"
)

// Config contains the configuration of a lakefleet run
type Config struct {
	Fleet          FleetConfig          `json:"fleet"`
	Region         RegionConfig         `json:"region"`
	Scheduler      SchedulerConfig      `json:"scheduler"`
	Simulation     SimulationConfig     `json:"simulation"`
	Server         ServerConfig         `json:"server"`
	CircuitBreaker CircuitBreakerConfig `json:"circuitBreaker"`
}

// FleetConfig controls how many vessels sail and what they look like
type FleetConfig struct {
	MinAgents           int      `json:"minAgents"`
	MaxAgents           int      `json:"maxAgents"`
	SpeedMin            float64  `json:"speedMin"`
	SpeedMax            float64  `json:"speedMax"`
	AgentWidth          float64  `json:"agentWidth"`
	SpawnDelayMin       Duration `json:"spawnDelayMin"`
	SpawnDelayMax       Duration `json:"spawnDelayMax"`
	MinTrajectoryLength float64  `json:"minTrajectoryLength"`
	TrajectoryAttempts  int      `json:"trajectoryAttempts"`
}

// RegionConfig describes the lake. With no vertices a random lake is drawn.
type RegionConfig struct {
	Vertices []geom.Vector2D `json:"vertices,omitempty"`
	Seed     uint64          `json:"seed"`
}

// SchedulerConfig tunes the collision scheduler
type SchedulerConfig struct {
	BroadPhase bool `json:"broadPhase"`
}

// SimulationConfig controls the simulation clock
type SimulationConfig struct {
	TickRate int    `json:"tickRate"` // ticks per second
	MaxTicks uint64 `json:"maxTicks"` // 0 runs until stopped
}

// ServerConfig contains HTTP and feed settings
type ServerConfig struct {
	ListenAddr     string   `json:"listenAddr"`
	FeedEvery      int      `json:"feedEvery"` // ticks between feed frames
	ReadTimeout    Duration `json:"readTimeout"`
	WriteTimeout   Duration `json:"writeTimeout"`
	StallThreshold Duration `json:"stallThreshold"`
	MaxMemoryMB    int      `json:"maxMemoryMB"`
	RateLimit      int      `json:"rateLimit"` // requests per client per minute; 0 disables
}

// CircuitBreakerConfig configures the per-client feed breaker
type CircuitBreakerConfig struct {
	MaxRequests         uint32   `json:"maxRequests"`
	Interval            Duration `json:"interval"`
	Timeout             Duration `json:"timeout"`
	MaxConsecutiveFails uint32   `json:"maxConsecutiveFails"`
}

// Duration is a time.Duration that reads and writes as a string like "250ms"
type Duration time.Duration

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// TimeStep returns the simulated seconds per tick
func (c *Config) TimeStep() float64 {
	if c.Simulation.TickRate <= 0 {
		return 0
	}
	return 1 / float64(c.Simulation.TickRate)
}

// LoadConfig loads a configuration from a file. Fields missing from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves a configuration to a file
func SaveConfig(config *Config, path string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Fleet: FleetConfig{
			MinAgents:           3,
			MaxAgents:           8,
			SpeedMin:            0.8,
			SpeedMax:            1.6,
			AgentWidth:          0.3,
			SpawnDelayMin:       Duration(100 * time.Millisecond),
			SpawnDelayMax:       Duration(500 * time.Millisecond),
			MinTrajectoryLength: 2,
			TrajectoryAttempts:  16,
		},
		Region: RegionConfig{
			Seed: 1,
		},
		Scheduler: SchedulerConfig{
			BroadPhase: true,
		},
		Simulation: SimulationConfig{
			TickRate: 60,
		},
		Server: ServerConfig{
			ListenAddr:     "localhost:8080",
			FeedEvery:      6,
			ReadTimeout:    Duration(10 * time.Second),
			WriteTimeout:   Duration(10 * time.Second),
			StallThreshold: Duration(5 * time.Second),
			MaxMemoryMB:    512,
			RateLimit:      600,
		},
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:         1,
			Interval:            Duration(30 * time.Second),
			Timeout:             Duration(10 * time.Second),
			MaxConsecutiveFails: 3,
		},
	}
}

// ValidationError reports an invalid configuration field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate checks the configuration and returns the first invalid field
func (c *Config) Validate() error {
	f := c.Fleet
	switch {
	case f.MinAgents < 0:
		return &ValidationError{"MinAgents", "must not be negative"}
	case f.MaxAgents < f.MinAgents:
		return &ValidationError{"MaxAgents", "must be at least MinAgents"}
	case !(f.SpeedMin > 0):
		return &ValidationError{"SpeedMin", "must be positive"}
	case f.SpeedMax < f.SpeedMin:
		return &ValidationError{"SpeedMax", "must be at least SpeedMin"}
	case !(f.AgentWidth > 0):
		return &ValidationError{"AgentWidth", "must be positive"}
	case f.SpawnDelayMin < 0:
		return &ValidationError{"SpawnDelayMin", "must not be negative"}
	case f.SpawnDelayMax < f.SpawnDelayMin:
		return &ValidationError{"SpawnDelayMax", "must be at least SpawnDelayMin"}
	case f.MinTrajectoryLength < 0:
		return &ValidationError{"MinTrajectoryLength", "must not be negative"}
	case f.TrajectoryAttempts < 1:
		return &ValidationError{"TrajectoryAttempts", "must be at least 1"}
	}

	if n := len(c.Region.Vertices); n > 0 && n < 3 {
		return &ValidationError{"Vertices", "a lake needs at least 3 vertices"}
	}

	if c.Simulation.TickRate < 1 || c.Simulation.TickRate > 1000 {
		return &ValidationError{"TickRate", "must be between 1 and 1000"}
	}

	s := c.Server
	switch {
	case s.ListenAddr == "":
		return &ValidationError{"ListenAddr", "cannot be empty"}
	case s.FeedEvery < 1:
		return &ValidationError{"FeedEvery", "must be at least 1"}
	case s.ReadTimeout <= 0:
		return &ValidationError{"ReadTimeout", "must be positive"}
	case s.WriteTimeout <= 0:
		return &ValidationError{"WriteTimeout", "must be positive"}
	case s.StallThreshold <= 0:
		return &ValidationError{"StallThreshold", "must be positive"}
	case s.MaxMemoryMB < 1:
		return &ValidationError{"MaxMemoryMB", "must be at least 1"}
	case s.RateLimit < 0:
		return &ValidationError{"RateLimit", "cannot be negative"}
	}

	cb := c.CircuitBreaker
	switch {
	case cb.MaxRequests < 1:
		return &ValidationError{"CircuitBreakerMaxRequests", "must be at least 1"}
	case cb.Interval <= 0:
		return &ValidationError{"CircuitBreakerInterval", "must be positive"}
	case cb.Timeout <= 0:
		return &ValidationError{"CircuitBreakerTimeout", "must be positive"}
	case cb.MaxConsecutiveFails < 1:
		return &ValidationError{"CircuitBreakerMaxConsecutiveFails", "must be at least 1"}
	}

	return nil
}

// Environment variables read by ApplyEnvironmentOverrides
const (
	EnvMinAgents  = "LAKEFLEET_MIN_AGENTS"
	EnvMaxAgents  = "LAKEFLEET_MAX_AGENTS"
	EnvSpeedMin   = "LAKEFLEET_SPEED_MIN"
	EnvSpeedMax   = "LAKEFLEET_SPEED_MAX"
	EnvAgentWidth = "LAKEFLEET_AGENT_WIDTH"
	EnvSeed       = "LAKEFLEET_SEED"
	EnvTickRate   = "LAKEFLEET_TICK_RATE"
	EnvBroadPhase = "LAKEFLEET_BROAD_PHASE"
	EnvListenAddr = "LAKEFLEET_LISTEN_ADDR"
	EnvFeedEvery  = "LAKEFLEET_FEED_EVERY"
)

// ApplyEnvironmentOverrides replaces fields with the LAKEFLEET_* variables
// that are set. A malformed value is reported with the variable name.
func (c *Config) ApplyEnvironmentOverrides() error {
	var err error
	set := func(apply func() error) {
		if err == nil {
			err = apply()
		}
	}

	set(func() error { return envInt(EnvMinAgents, &c.Fleet.MinAgents) })
	set(func() error { return envInt(EnvMaxAgents, &c.Fleet.MaxAgents) })
	set(func() error { return envFloat(EnvSpeedMin, &c.Fleet.SpeedMin) })
	set(func() error { return envFloat(EnvSpeedMax, &c.Fleet.SpeedMax) })
	set(func() error { return envFloat(EnvAgentWidth, &c.Fleet.AgentWidth) })
	set(func() error { return envUint(EnvSeed, &c.Region.Seed) })
	set(func() error { return envInt(EnvTickRate, &c.Simulation.TickRate) })
	set(func() error { return envBool(EnvBroadPhase, &c.Scheduler.BroadPhase) })
	set(func() error { return envInt(EnvFeedEvery, &c.Server.FeedEvery) })
	if v, ok := lookup(EnvListenAddr); ok {
		c.Server.ListenAddr = v
	}
	return err
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func envInt(key string, dst *int) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envUint(key string, dst *uint64) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}
