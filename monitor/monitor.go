package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/praxisworks/runkit/logging"
	"github.com/praxisworks/runkit/registry"
	"github.com/praxisworks/runkit/runs"
)

// Common errors.
var (
	ErrAlreadyStarted = errors.New("monitor already started")
	ErrNotStarted     = errors.New("monitor not started")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Config configures a Monitor.
type Config struct {
	// Client fetches run statuses from the remote service.
	Client runs.Client

	// Registry supplies the set of active runs to check.
	Registry registry.Registry

	// Logger for sweep diagnostics. Defaults to a no-op logger.
	Logger *logging.Logger

	// Interval between sweeps.
	// Default: 10 seconds
	Interval time.Duration

	// FetchTimeout bounds each per-run status fetch within a sweep.
	// Default: 5 seconds
	FetchTimeout time.Duration
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Client == nil {
		return ErrInvalidConfig
	}
	if c.Registry == nil {
		return ErrInvalidConfig
	}
	return nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     10 * time.Second,
		FetchTimeout: 5 * time.Second,
	}
}

// Monitor periodically checks every active run against the remote
// service and reports the ones that reached a terminal status. It is
// the safety net behind the orchestrator's per-task watchers: if a
// watcher is lost (crash, missed update), the monitor still notices
// the run finishing, at its own cadence.
//
// The monitor only observes. It never marks runs completed in the
// registry and never mutates tasks; reacting to a terminal run is the
// callback's job.
type Monitor struct {
	client       runs.Client
	reg          registry.Registry
	logger       *logging.Logger
	interval     time.Duration
	fetchTimeout time.Duration

	mu        sync.RWMutex
	callbacks []func(*runs.RunInfo)
	reported  map[int64]bool // terminal runs already handed to callbacks

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a monitor from the configuration.
func New(cfg Config) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultConfig().FetchTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &Monitor{
		client:       cfg.Client,
		reg:          cfg.Registry,
		logger:       logger.WithComponent("monitor"),
		interval:     interval,
		fetchTimeout: fetchTimeout,
		reported:     make(map[int64]bool),
	}, nil
}

// OnTerminal registers a callback invoked once per run when the run is
// first seen in a terminal status. Callbacks run on the monitor
// goroutine, so they should hand off heavy work.
func (m *Monitor) OnTerminal(callback func(info *runs.RunInfo)) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, callback)
	m.mu.Unlock()
}

// Start begins sweeping at the configured interval.
// Returns ErrAlreadyStarted if already running.
func (m *Monitor) Start() error {
	if m.running.Swap(true) {
		return ErrAlreadyStarted
	}

	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.run()
	return nil
}

// Stop stops sweeping and waits for the current sweep to finish.
// Returns ErrNotStarted if not running.
func (m *Monitor) Stop() error {
	if !m.running.Swap(false) {
		return ErrNotStarted
	}

	close(m.stopCh)
	<-m.doneCh
	return nil
}

// run drives the sweep ticker.
func (m *Monitor) run() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep fetches the status of every active run. One run failing to
// fetch does not stop the sweep.
func (m *Monitor) sweep() {
	active, err := m.reg.Active()
	if err != nil {
		m.logger.WithError(err).Warn("could not list active runs")
		return
	}

	m.pruneReported(active)

	var terminal []*runs.RunInfo
	for _, id := range active {
		info, err := m.fetch(id)
		if err != nil {
			m.logger.WithError(err).WithRun(id).Warn("status check failed")
			continue
		}

		if !info.Status.IsTerminal() {
			continue
		}

		m.mu.Lock()
		seen := m.reported[id]
		if !seen {
			m.reported[id] = true
		}
		m.mu.Unlock()

		if !seen {
			m.logger.WithRun(id).WithField("status", info.Status.String()).Info("run reached terminal status")
			terminal = append(terminal, info)
		}
	}

	if len(terminal) == 0 {
		return
	}

	m.mu.RLock()
	callbacks := make([]func(*runs.RunInfo), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.RUnlock()

	for _, info := range terminal {
		for _, cb := range callbacks {
			cb(info)
		}
	}
}

// fetch gets one run's status under the per-fetch timeout.
func (m *Monitor) fetch(id int64) (*runs.RunInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.fetchTimeout)
	defer cancel()
	return m.client.GetRun(ctx, id)
}

// pruneReported drops report bookkeeping for runs that left the active
// set, so the map does not grow with completed runs.
func (m *Monitor) pruneReported(active []int64) {
	current := make(map[int64]bool, len(active))
	for _, id := range active {
		current[id] = true
	}

	m.mu.Lock()
	for id := range m.reported {
		if !current[id] {
			delete(m.reported, id)
		}
	}
	m.mu.Unlock()
}
