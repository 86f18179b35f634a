// ============================================================================
// Taskengine CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides a user-friendly command line interface based on the
// Cobra framework for driving a taskengine pool as a standalone program.
//
// Command Structure:
//   taskenginectl                  # Root command
//   ├── run                        # Run a demo fan-out/fan-in workload
//   │   └── --config, -c          # Specify config file
//   ├── bench                      # Submit/wait throughput benchmark
//   │   └── --config, -c          # Specify config file
//   │   └── --units               # Work units per submitted task
//   ├── --version                  # Display version information
//   └── --help                     # Display help information
//
// Configuration Management:
//   Uses YAML format config file (default: configs/default.yaml):
//   - pool: worker count (integer, or "auto" for runtime.NumCPU())
//   - workload: demo fan-out width and units per task
//   - metrics: Prometheus monitoring configuration
//
// run Command:
//   1. Load config file
//   2. Create a pool sized per config
//   3. Start the metrics HTTP server (if enabled)
//   4. Submit a small fan-out/fan-in workload and wait for it
//   5. Stop waiting early on SIGINT/SIGTERM; either way, destroy the pool
//      and exit once the workload has finished or the signal arrived
//
// bench Command:
//   Submits a configurable number of tasks (one unit each unless --units
//   says otherwise) back to back via
//   SubmitAndWait and reports throughput, without starting a metrics
//   server or waiting for a shutdown signal.
//
// ============================================================================

package cli

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ChuLiYu/taskengine"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config is the CLI's own config file shape: pool sizing, the demo
// workload's fan-out width, and the metrics listen address.
type Config struct {
	Pool struct {
		Size string `yaml:"size"` // integer or "auto"
	} `yaml:"pool"`

	Workload struct {
		FanOutWidth int `yaml:"fan_out_width"`
		UnitsEach   int `yaml:"units_each"`
	} `yaml:"workload"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`
}

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "taskenginectl",
		Short: "taskenginectl: drive a taskengine pool as a standalone program",
		Long: `taskenginectl is a small demo/benchmark harness for taskengine:
- fixed-size worker pool with task-DAG dependencies
- lock-free ready queue, cooperative waiting
- Prometheus metrics`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildBenchCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a pool, run a demo fan-out/fan-in workload, and serve metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo()
		},
	}
	return cmd
}

func poolSizeFromConfig(s string) (int, error) {
	if s == "" || s == "auto" {
		return taskengine.Auto, nil
	}
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, fmt.Errorf("invalid pool.size %q: %w", s, err)
	}
	return v, nil
}

func startMetricsServer(p *taskengine.Pool, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.MetricsHandler())
	return http.ListenAndServe(addr, mux)
}

func runDemo() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	size, err := poolSizeFromConfig(cfg.Pool.Size)
	if err != nil {
		return err
	}

	p := taskengine.PoolCreate(size)
	defer taskengine.PoolDestroy(p)

	log.Printf("pool started: size=%d fan_out=%d units_each=%d\n", taskengine.PoolSize(p), cfg.Workload.FanOutWidth, cfg.Workload.UnitsEach)

	if cfg.Metrics.Enabled {
		go func() {
			log.Printf("metrics server listening on %s\n", cfg.Metrics.Addr)
			if err := startMetricsServer(p, cfg.Metrics.Addr); err != nil {
				log.Printf("metrics server error: %v\n", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- runFanOutFanIn(p, cfg.Workload.FanOutWidth, cfg.Workload.UnitsEach) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("demo workload failed: %w", err)
		}
		log.Println("demo workload completed successfully")
	case <-sigChan:
		log.Println("received shutdown signal before workload finished")
	}

	stats := p.Stats()
	log.Printf("final stats: submitted=%d completed=%d failed=%d queue_depth=%d\n",
		stats.Submitted, stats.Completed, stats.Failed, stats.QueueDepth)
	return nil
}

// runFanOutFanIn submits width independent tasks that each add one per unit
// to a shared counter, then one task depending on all of them that checks the
// total — the same S4 shape the test suite exercises, used here as a
// demo workload that actually drives the pool.
func runFanOutFanIn(p *taskengine.Pool, width, unitsEach int) error {
	if width < 1 {
		width = 1
	}
	if unitsEach < 1 {
		unitsEach = 1
	}

	var total int64
	parents := make([]*taskengine.Handle, width)
	for i := 0; i < width; i++ {
		parents[i] = taskengine.Submit(p, unitsEach, func(int, interface{}) error {
			atomic.AddInt64(&total, 1)
			return nil
		}, nil, nil, nil, true)
	}

	join := taskengine.Submit(p, 1, func(int, interface{}) error {
		got := atomic.LoadInt64(&total)
		want := int64(width * unitsEach)
		if got != want {
			return fmt.Errorf("fan-in mismatch: got %d want %d", got, want)
		}
		return nil
	}, nil, nil, parents, true)

	err := join.WaitAndRelease()
	for _, parent := range parents {
		parent.Release()
	}
	return err
}

func buildBenchCommand() *cobra.Command {
	var units int
	var count int

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure submit/wait throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(units, count)
		},
	}
	cmd.Flags().IntVar(&units, "units", 1, "work units per submitted task")
	cmd.Flags().IntVar(&count, "count", 1000, "number of tasks to submit")
	return cmd
}

func runBench(units, count int) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	size, err := poolSizeFromConfig(cfg.Pool.Size)
	if err != nil {
		return err
	}

	p := taskengine.PoolCreate(size)
	defer taskengine.PoolDestroy(p)

	start := time.Now()
	for i := 0; i < count; i++ {
		if err := taskengine.SubmitAndWait(p, units, func(int, interface{}) error { return nil }, nil); err != nil {
			return fmt.Errorf("task %d failed: %w", i, err)
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("submitted %d tasks (%d units each) in %v (%.1f tasks/s)\n",
		count, units, elapsed, float64(count)/elapsed.Seconds())
	return nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return &cfg, nil
}
