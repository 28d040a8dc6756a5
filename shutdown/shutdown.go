package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrAlreadyShutdown indicates shutdown was already initiated.
	ErrAlreadyShutdown = errors.New("shutdown already initiated")

	// ErrTimeout indicates shutdown did not complete within the timeout.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed indicates one or more handlers failed.
	ErrHandlerFailed = errors.New("one or more shutdown handlers failed")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Handler is implemented by components that release resources on
// shutdown. The context is cancelled when the shutdown timeout is
// reached; implementations should stop accepting work, finish what
// they can, and return.
type Handler interface {
	OnShutdown(ctx context.Context) error
}

// Func adapts a plain function to the Handler interface.
type Func func(ctx context.Context) error

// OnShutdown implements Handler.
func (f Func) OnShutdown(ctx context.Context) error { return f(ctx) }

// HandlerResult reports one handler's shutdown outcome.
type HandlerResult struct {
	// Name the handler was registered under.
	Name string

	// Phase the handler ran in.
	Phase int

	// Duration is how long the handler took.
	Duration time.Duration

	// Err is the handler's return value.
	Err error
}

// Config configures the coordinator.
type Config struct {
	// DefaultTimeout bounds signal-driven shutdown and
	// ShutdownWithTimeout(0). Default: 30 seconds.
	DefaultTimeout time.Duration

	// DefaultPhase is assigned by Register. Default: 100.
	DefaultPhase int

	// ContinueOnError keeps later phases running after a handler
	// fails.
	ContinueOnError bool

	// OnProgress, when set, is called as each handler finishes.
	OnProgress func(HandlerResult)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DefaultTimeout < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:  30 * time.Second,
		DefaultPhase:    100,
		ContinueOnError: true,
	}
}

// registration holds a registered handler with its metadata.
type registration struct {
	name    string
	handler Handler
	phase   int
}

// Coordinator runs registered handlers in phase order on shutdown.
// Lower phases run first; handlers sharing a phase run concurrently.
type Coordinator struct {
	config Config

	mu       sync.Mutex
	handlers []registration

	once    sync.Once
	err     error
	done    chan struct{}
	signals chan os.Signal
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	def := DefaultConfig()
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.DefaultPhase == 0 {
		cfg.DefaultPhase = def.DefaultPhase
	}

	return &Coordinator{
		config:  cfg,
		done:    make(chan struct{}),
		signals: make(chan os.Signal, 1),
	}
}

// Register adds a handler at the default phase.
func (c *Coordinator) Register(name string, h Handler) {
	c.RegisterWithPhase(name, h, c.config.DefaultPhase)
}

// RegisterWithPhase adds a handler at a specific phase.
func (c *Coordinator) RegisterWithPhase(name string, h Handler, phase int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, handler: h, phase: phase})
}

// RegisterFunc adds a plain function at the default phase.
func (c *Coordinator) RegisterFunc(name string, fn func(ctx context.Context) error) {
	c.Register(name, Func(fn))
}

// RegisterFuncWithPhase adds a plain function at a specific phase.
func (c *Coordinator) RegisterFuncWithPhase(name string, fn func(ctx context.Context) error, phase int) {
	c.RegisterWithPhase(name, Func(fn), phase)
}

// Shutdown runs all registered handlers in phase order. Only the first
// call runs them; a call arriving while shutdown is in progress
// returns ErrAlreadyShutdown, and calls after completion return the
// recorded outcome.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.err = c.run(ctx)
		close(c.done)
	})

	select {
	case <-c.done:
		return c.err
	default:
		return ErrAlreadyShutdown
	}
}

// ShutdownWithTimeout runs Shutdown bounded by the given timeout, or
// the configured default when zero.
func (c *Coordinator) ShutdownWithTimeout(timeout time.Duration) error {
	if timeout == 0 {
		timeout = c.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals triggers shutdown on SIGTERM or SIGINT. Must be called
// before the signals are expected.
func (c *Coordinator) HandleSignals() {
	signal.Notify(c.signals, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-c.signals
		_ = c.ShutdownWithTimeout(c.config.DefaultTimeout)
	}()
}

// Trigger injects a synthetic signal, as if SIGTERM had arrived.
func (c *Coordinator) Trigger() {
	select {
	case c.signals <- syscall.SIGTERM:
	default:
	}
}

// Done returns a channel closed once shutdown has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err reports the shutdown outcome. Nil until Done is closed.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) error {
	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	var failed bool
	for _, group := range groupByPhase(handlers) {
		select {
		case <-ctx.Done():
			return ErrTimeout
		default:
		}

		for _, hr := range c.runPhase(ctx, group) {
			if hr.Err != nil {
				failed = true
			}
		}
		if failed && !c.config.ContinueOnError {
			return ErrHandlerFailed
		}
	}

	if failed {
		return ErrHandlerFailed
	}
	return nil
}

// runPhase runs one phase's handlers concurrently and waits for all
// of them.
func (c *Coordinator) runPhase(ctx context.Context, group []registration) []HandlerResult {
	results := make([]HandlerResult, len(group))
	var wg sync.WaitGroup

	for i, reg := range group {
		i, reg := i, reg
		wg.Add(1)
		go func() {
			defer wg.Done()

			start := time.Now()
			err := reg.handler.OnShutdown(ctx)

			hr := HandlerResult{
				Name:     reg.name,
				Phase:    reg.phase,
				Duration: time.Since(start),
				Err:      err,
			}
			results[i] = hr

			if c.config.OnProgress != nil {
				c.config.OnProgress(hr)
			}
		}()
	}

	wg.Wait()
	return results
}

// groupByPhase splits the phase-sorted slice into runs of equal phase.
func groupByPhase(handlers []registration) [][]registration {
	var groups [][]registration
	for _, h := range handlers {
		if n := len(groups); n > 0 && groups[n-1][0].phase == h.phase {
			groups[n-1] = append(groups[n-1], h)
			continue
		}
		groups = append(groups, []registration{h})
	}
	return groups
}
