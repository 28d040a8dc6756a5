package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/praxisworks/runkit/bus"
	kiterrors "github.com/praxisworks/runkit/errors"
	"github.com/praxisworks/runkit/logging"
	"github.com/praxisworks/runkit/registry"
	"github.com/praxisworks/runkit/runs"
	"github.com/praxisworks/runkit/tasks"
)

// Common errors.
var (
	ErrAlreadyStarted = errors.New("orchestrator already started")
	ErrNotStarted     = errors.New("orchestrator not started")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// TaskSpec describes a task to create.
type TaskSpec struct {
	// Prompt is the instruction the remote run is created from.
	Prompt string

	// Metadata is stored on the task record verbatim.
	Metadata map[string]string

	// OrchestratorRunID names the parent run that delegated this
	// task. Zero means no parent and no completion notification.
	OrchestratorRunID int64
}

// Config configures an Orchestrator.
type Config struct {
	// Client talks to the remote agent run service.
	Client runs.Client

	// Store persists task records.
	Store tasks.Store

	// Registry tracks parent/child run relationships.
	Registry registry.Registry

	// Bus carries terminal-task events from the completion funnel to
	// the notification consumer.
	Bus bus.MessageBus

	// Logger for orchestrator diagnostics. Defaults to a no-op logger.
	Logger *logging.Logger

	// Workers is the number of goroutines executing and watching
	// tasks.
	// Default: 4
	Workers int

	// QueueSize bounds the backlog of tasks waiting for a worker.
	// Default: 64
	QueueSize int

	// PollInterval is how often a worker polls the run it watches.
	// Default: 3 seconds
	PollInterval time.Duration

	// NotifyTimeout bounds one parent notification attempt.
	// Default: 30 seconds
	NotifyTimeout time.Duration
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Client == nil {
		return ErrInvalidConfig
	}
	if c.Store == nil {
		return ErrInvalidConfig
	}
	if c.Registry == nil {
		return ErrInvalidConfig
	}
	if c.Bus == nil {
		return ErrInvalidConfig
	}
	return nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:       4,
		QueueSize:     64,
		PollInterval:  3 * time.Second,
		NotifyTimeout: 30 * time.Second,
	}
}

// Orchestrator tracks tasks through their remote runs. It owns the
// worker pool that creates and watches runs, the completion funnel
// that settles tasks exactly once, and the consumer that notifies
// parent runs of delegated outcomes.
//
// The orchestrator does not own its collaborators: the store,
// registry, bus, and client are closed by whoever constructed them.
type Orchestrator struct {
	client runs.Client
	store  tasks.Store
	reg    registry.Registry
	bus    bus.MessageBus
	logger *logging.Logger

	workers       int
	queueSize     int
	pollInterval  time.Duration
	notifyTimeout time.Duration

	// mu guards the load-mutate-persist sections and the run index.
	mu       sync.Mutex
	runIndex map[int64]string // remote run id -> task id

	queue  chan string
	sub    bus.Subscription
	ctx    context.Context
	cancel context.CancelFunc

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates an orchestrator from the configuration.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	def := DefaultConfig()
	workers := cfg.Workers
	if workers <= 0 {
		workers = def.Workers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = def.QueueSize
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = def.PollInterval
	}
	notifyTimeout := cfg.NotifyTimeout
	if notifyTimeout <= 0 {
		notifyTimeout = def.NotifyTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &Orchestrator{
		client:        cfg.Client,
		store:         cfg.Store,
		reg:           cfg.Registry,
		bus:           cfg.Bus,
		logger:        logger.WithComponent("orchestrator"),
		workers:       workers,
		queueSize:     queueSize,
		pollInterval:  pollInterval,
		notifyTimeout: notifyTimeout,
		runIndex:      make(map[int64]string),
	}, nil
}

// Start launches the worker pool and the notification consumer, then
// recovers persisted tasks: pending tasks are re-enqueued and running
// tasks with a remote run are watched again.
// Returns ErrAlreadyStarted if already running.
func (o *Orchestrator) Start() error {
	if o.running.Swap(true) {
		return ErrAlreadyStarted
	}

	// Subscribe before anything can publish so no terminal event is
	// missed.
	sub, err := o.bus.Subscribe(tasks.SubjectTerminal)
	if err != nil {
		o.running.Store(false)
		return kiterrors.Wrap(err, "subscribe to terminal events")
	}
	o.sub = sub

	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.stopCh = make(chan struct{})
	o.queue = make(chan string, o.queueSize)

	if err := o.recover(); err != nil {
		o.sub.Unsubscribe()
		o.cancel()
		o.running.Store(false)
		return err
	}

	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	o.wg.Add(1)
	go o.consume()

	o.logger.WithField("workers", o.workers).Info("orchestrator started")
	return nil
}

// Close stops accepting work, stops the workers and the consumer, and
// waits for them to exit. Runs in flight on the remote service keep
// running; they are picked up again on the next Start.
// Returns ErrNotStarted if not running.
func (o *Orchestrator) Close() error {
	if !o.running.Swap(false) {
		return ErrNotStarted
	}

	close(o.stopCh)
	o.cancel()
	if err := o.sub.Unsubscribe(); err != nil {
		o.logger.WithError(err).Warn("unsubscribe failed")
	}
	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
	return nil
}

// recover reloads persisted tasks after a restart. The remote-run
// index is rebuilt for every task that has a run, so late terminal
// reports still find their task.
func (o *Orchestrator) recover() error {
	all, err := o.store.List(0)
	if err != nil {
		return kiterrors.Wrap(err, "load tasks for recovery")
	}

	for _, task := range all {
		if task.RemoteRunID != 0 {
			o.runIndex[task.RemoteRunID] = task.ID
		}

		switch {
		case task.Status == tasks.StatusPending:
			if err := o.enqueueNew(task.ID); err != nil {
				o.logger.WithError(err).WithTask(task.ID).Warn("pending task dropped during recovery")
			}
		case task.Status == tasks.StatusRunning && task.RemoteRunID == 0:
			// The crash window hides whether the remote run was ever
			// created; fail rather than risk starting a duplicate.
			if _, err := o.settle(task.ID, tasks.StatusFailed, "", "orchestrator restarted before the remote run was confirmed", ""); err != nil {
				o.logger.WithError(err).WithTask(task.ID).Warn("could not fail orphaned task")
			}
		case task.Status == tasks.StatusRunning:
			o.enqueueWatch(task.ID)
		}
	}
	return nil
}

// enqueueNew hands a fresh task to the worker pool without blocking. A
// full queue fails the task and returns a capacity error: the caller
// learns immediately instead of waiting on an unbounded backlog.
func (o *Orchestrator) enqueueNew(taskID string) error {
	select {
	case o.queue <- taskID:
		return nil
	default:
	}

	if _, err := o.settle(taskID, tasks.StatusFailed, "", "worker queue full", ""); err != nil {
		o.logger.WithError(err).WithTask(taskID).Warn("could not fail task after queue overflow")
	}
	return kiterrors.Capacity("worker queue full", kiterrors.WithTaskID(taskID))
}

// enqueueWatch re-queues a task whose remote run already exists. On a
// full queue the task keeps its state and the background monitor
// covers the run.
func (o *Orchestrator) enqueueWatch(taskID string) {
	select {
	case o.queue <- taskID:
	default:
		o.logger.WithTask(taskID).Warn("watch queue full, run left to the background monitor")
	}
}

// worker pulls task ids off the queue until shutdown.
func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.stopCh:
			return
		case taskID := <-o.queue:
			o.process(taskID)
		}
	}
}

// process drives one task: create its remote run if it has none yet,
// then watch the run until it is terminal.
func (o *Orchestrator) process(taskID string) {
	defer func() {
		if r := recover(); r != nil {
			err := kiterrors.RecoverPanic(r)
			o.logger.WithError(err).WithTask(taskID).Error("worker panic")
			if _, serr := o.settle(taskID, tasks.StatusFailed, "", err.Error(), ""); serr != nil {
				o.logger.WithError(serr).WithTask(taskID).Warn("could not fail task after panic")
			}
		}
	}()

	task, err := o.store.Load(taskID)
	if err != nil {
		o.logger.WithError(err).WithTask(taskID).Warn("queued task not loadable")
		return
	}
	if task.Status.IsTerminal() {
		// Settled between enqueue and pickup (e.g. cancelled).
		return
	}

	runID := task.RemoteRunID
	if runID == 0 {
		runID = o.startRun(task)
		if runID == 0 {
			return
		}
	}

	o.watch(taskID, runID)
}

// startRun transitions the task to running, creates the remote run,
// and records the assignment. Returns the run id, or zero when the
// task could not be started.
func (o *Orchestrator) startRun(task *tasks.Task) int64 {
	log := o.logger.WithTask(task.ID)

	if _, err := o.store.UpdateStatus(task.ID, tasks.StatusRunning, "", ""); err != nil {
		log.WithError(err).Warn("could not mark task running")
		return 0
	}

	info, err := o.client.CreateRun(o.ctx, runs.PromptSpec{Prompt: task.Prompt, Metadata: task.Metadata})
	if err != nil {
		if o.ctx.Err() != nil {
			// Shutting down; restart recovery settles the task.
			log.Debug("run creation interrupted by shutdown")
			return 0
		}
		if _, serr := o.settle(task.ID, tasks.StatusFailed, "", fmt.Sprintf("remote run creation failed: %v", err), ""); serr != nil {
			log.WithError(serr).Warn("could not fail task")
		}
		return 0
	}

	o.mu.Lock()
	o.runIndex[info.ID] = task.ID
	fresh, err := o.store.Load(task.ID)
	if err == nil {
		if err = fresh.AssignRemoteRun(info.ID, info.WebURL); err == nil {
			fresh.RemoteStatus = info.Status
			err = o.store.Save(fresh)
		}
	}
	o.mu.Unlock()
	if err != nil {
		// The run exists; keep watching it even though the record is
		// stale.
		log.WithError(err).WithRun(info.ID).Warn("could not record remote run")
	}

	if task.Delegated() {
		if err := o.reg.Register(task.OrchestratorRunID, info.ID); err != nil {
			log.WithError(err).WithRun(info.ID).Warn("could not register delegation")
		}
	}

	log.WithRun(info.ID).Info("remote run created")
	return info.ID
}

// watch polls the remote run until it settles, the task settles, or
// the orchestrator shuts down. Transient poll failures are retried on
// the next tick; permanent ones fail the task.
func (o *Orchestrator) watch(taskID string, runID int64) {
	log := o.logger.WithTask(taskID).WithRun(runID)

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
		}

		if task, err := o.store.Load(taskID); err == nil && task.Status.IsTerminal() {
			return
		}

		info, err := o.client.GetRun(o.ctx, runID)
		if err != nil {
			if o.ctx.Err() != nil {
				return
			}
			if kiterrors.IsRetryable(err) {
				log.WithError(err).Debug("status poll failed, will retry")
				continue
			}
			log.WithError(err).Warn("status poll failed permanently")
			if _, serr := o.settle(taskID, tasks.StatusFailed, "", fmt.Sprintf("run status unavailable: %v", err), ""); serr != nil {
				log.WithError(serr).Warn("could not fail task")
			}
			return
		}

		if info.Status.IsTerminal() {
			o.CompleteRun(info)
			return
		}

		o.observe(taskID, info.Status)
	}
}

// observe records a changed non-terminal remote status, so resume
// eligibility can be decided without a remote call.
func (o *Orchestrator) observe(taskID string, status tasks.RemoteStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()

	task, err := o.store.Load(taskID)
	if err != nil || task.Status.IsTerminal() || task.RemoteStatus == status {
		return
	}
	task.RemoteStatus = status
	if err := o.store.Save(task); err != nil {
		o.logger.WithError(err).WithTask(taskID).Warn("could not record remote status")
	}
}
