// cmd/lakefleet/main.go
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/opd-ai/go-lakefleet/pkg/config"
	"github.com/opd-ai/go-lakefleet/pkg/engine"
	"github.com/opd-ai/go-lakefleet/pkg/event"
	"github.com/opd-ai/go-lakefleet/pkg/feed"
	"github.com/opd-ai/go-lakefleet/pkg/health"
	"github.com/opd-ai/go-lakefleet/pkg/logging"
)

const shutdownTimeout = 5 * time.Second

func main() {
	app := makeApp()
	if err := app.Run(os.Args); err != nil {
		logging.NewLogger().Error(context.Background(), "lakefleet failed", err)
		os.Exit(1)
	}
}

func makeApp() *cli.App {
	app := cli.NewApp()
	app.Name = "lakefleet"
	app.Usage = "collision-free vessel traffic on a lake"

	configFlag := cli.StringFlag{Name: "config", Value: "config.json", Usage: "Path to the configuration file"}

	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "Run the fleet and serve health, snapshots and the live feed",
			Flags: []cli.Flag{
				configFlag,
				cli.IntFlag{Name: "ticks", Value: 0, Usage: "Stop after this many ticks; 0 runs until interrupted"},
			},
			Action: func(c *cli.Context) error {
				return runAction(c.String("config"), c.Int("ticks"))
			},
		},
		{
			Name:  "init-config",
			Usage: "Write the default configuration file",
			Flags: []cli.Flag{configFlag},
			Action: func(c *cli.Context) error {
				return initConfigAction(c.String("config"))
			},
		},
		{
			Name:  "simulate",
			Usage: "Run the fleet headless for a number of ticks and log a summary",
			Flags: []cli.Flag{
				configFlag,
				cli.IntFlag{Name: "ticks", Value: 3600, Usage: "Number of ticks to simulate"},
			},
			Action: func(c *cli.Context) error {
				return simulateAction(c.String("config"), c.Int("ticks"))
			},
		},
	}

	return app
}

// loadConfig reads the configuration file, falling back to the defaults when
// it does not exist, then applies environment overrides and validates.
func loadConfig(ctx context.Context, logger *logging.Logger, path string) (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info(ctx, "Configuration file not found, using default configuration",
			"config_path", path,
		)
		cfg = config.DefaultConfig()
	} else {
		cfg, err = config.LoadConfig(path)
		if err != nil {
			return nil, logging.WrapError(err, "load configuration %s", path)
		}
	}

	if err := cfg.ApplyEnvironmentOverrides(); err != nil {
		return nil, logging.WrapError(err, "apply environment configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initConfigAction(path string) error {
	logger := logging.NewLogger()
	if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
		return err
	}
	logger.Info(context.Background(), "Created default configuration file", "config_path", path)
	return nil
}

func simulateAction(path string, ticks int) error {
	logger := logging.NewLogger()
	ctx := logging.WithCorrelationID(context.Background(), logging.GenerateCorrelationID())

	cfg, err := loadConfig(ctx, logger, path)
	if err != nil {
		return err
	}

	fleet, err := engine.NewFleet(cfg, logger)
	if err != nil {
		return err
	}
	logEvents(fleet.EventBus, logger)

	step := cfg.TimeStep()
	started := time.Now()
	fleet.Start()
	for i := 0; i < ticks; i++ {
		fleet.Update(step)
	}
	fleet.Stop()

	stats := fleet.Scheduler.Stats()
	logger.Info(ctx, "Simulation finished",
		"run_id", fleet.RunID,
		"ticks", stats.Ticks,
		"simulated_seconds", float64(ticks)*step,
		"wall_time", time.Since(started).String(),
		"spawned", stats.Spawned,
		"arrived", stats.Arrived,
		"live", stats.Live,
		"conflicts", stats.Conflicts,
		"yields", stats.Yields,
		"blocked_spawns", stats.BlockedSpawns,
		"pairs_evaluated", stats.PairsEvaluated,
		"pairs_pruned", stats.PairsPruned,
	)
	return nil
}

func runAction(path string, ticks int) error {
	logger := logging.NewLogger()
	ctx := logging.WithCorrelationID(context.Background(), logging.GenerateCorrelationID())

	cfg, err := loadConfig(ctx, logger, path)
	if err != nil {
		return err
	}
	if ticks > 0 {
		cfg.Simulation.MaxTicks = uint64(ticks)
	}

	fleet, err := engine.NewFleet(cfg, logger)
	if err != nil {
		return err
	}
	logEvents(fleet.EventBus, logger)

	hub := feed.NewHub(cfg.CircuitBreaker, cfg.Server.WriteTimeout.Std(), logger)
	feedEvery := uint64(cfg.Server.FeedEvery)
	fleet.AfterTick(func(tick uint64) {
		if tick%feedEvery == 0 && hub.ClientCount() > 0 {
			hub.Broadcast(fleet.Snapshot())
		}
	})

	listener, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		return logging.WrapError(err, "listen on %s", cfg.Server.ListenAddr)
	}
	listenerAddr := listener.Addr().String()

	checker := health.NewHealthChecker()
	checker.AddCheck(health.NewSimulationHealthCheck(fleet.Running))
	checker.AddCheck(health.NewTickProgressHealthCheck(fleet.LastTick, cfg.Server.StallThreshold.Std()))
	checker.AddCheck(health.NewMemoryHealthCheck(int64(cfg.Server.MaxMemoryMB), nil))
	checker.AddCheck(health.NewListenerHealthCheck(func() string { return listenerAddr }))

	var limiter *feed.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = feed.NewLimiter(cfg.Server.RateLimit, time.Minute)
		defer limiter.Close()
	}

	server := &http.Server{
		Handler:      newRouter(fleet, hub, checker, limiter),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	go func() {
		logger.Info(ctx, "Starting HTTP server", "address", listenerAddr)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "HTTP server failed", err)
		}
	}()

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := time.Second / time.Duration(cfg.Simulation.TickRate)
	err = fleet.Run(runCtx, interval)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	logger.Info(ctx, "Shutting down", "tick", fleet.CurrentTick())
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error(ctx, "HTTP server shutdown failed", shutdownErr)
	}

	return err
}

// logEvents writes fleet events to the debug log, and lifecycle events at info.
func logEvents(bus *event.Bus, logger *logging.Logger) {
	ctx := context.Background()

	lifecycle := func(e event.Event) {
		if se, ok := e.(*event.SimulationEvent); ok {
			logger.Info(ctx, "Simulation event", "type", string(se.GetType()), "tick", se.Tick)
		}
	}
	bus.Subscribe(event.SimulationStarted, lifecycle)
	bus.Subscribe(event.SimulationStopped, lifecycle)

	agent := func(e event.Event) {
		switch ev := e.(type) {
		case *event.AgentEvent:
			logger.Debug(ctx, "Agent event", "type", string(ev.GetType()), "agent", ev.Name, "id", ev.AgentID, "moving", ev.Moving)
		case *event.MotionEvent:
			logger.Debug(ctx, "Motion event", "type", string(ev.GetType()), "id", ev.AgentID, "blocked_by", ev.BlockedBy, "tick", ev.Tick)
		}
	}
	for _, t := range []event.Type{event.AgentSpawned, event.AgentArrived, event.AgentDespawned, event.AgentStopped, event.AgentResumed} {
		bus.Subscribe(t, agent)
	}
}
