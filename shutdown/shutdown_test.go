package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestShutdown_SingleHandler(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	called := false
	coord.RegisterFunc("store", func(ctx context.Context) error {
		called = true
		return nil
	})

	if err := coord.ShutdownWithTimeout(5 * time.Second); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected handler to be called")
	}

	select {
	case <-coord.Done():
	default:
		t.Fatal("expected Done channel to be closed")
	}
	if coord.Err() != nil {
		t.Fatalf("expected nil Err, got %v", coord.Err())
	}
}

func TestShutdown_PhaseOrder(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	var mu sync.Mutex
	var order []int
	record := func(phase int) {
		mu.Lock()
		order = append(order, phase)
		mu.Unlock()
	}

	// Registered out of order; phases decide execution order.
	coord.RegisterFuncWithPhase("store", func(ctx context.Context) error {
		record(30)
		return nil
	}, 30)
	coord.RegisterFuncWithPhase("monitor", func(ctx context.Context) error {
		record(10)
		return nil
	}, 10)
	coord.RegisterFuncWithPhase("orchestrator", func(ctx context.Context) error {
		record(20)
		return nil
	}, 20)

	if err := coord.ShutdownWithTimeout(5 * time.Second); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(order) != 3 || order[0] != 10 || order[1] != 20 || order[2] != 30 {
		t.Fatalf("expected order [10 20 30], got %v", order)
	}
}

func TestShutdown_ConcurrentWithinPhase(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	// Both handlers block until the other has started. Sequential
	// execution would deadlock until the timeout.
	var rendezvous sync.WaitGroup
	rendezvous.Add(2)
	handler := func(ctx context.Context) error {
		rendezvous.Done()
		rendezvous.Wait()
		return nil
	}
	coord.RegisterFuncWithPhase("a", handler, 10)
	coord.RegisterFuncWithPhase("b", handler, 10)

	if err := coord.ShutdownWithTimeout(2 * time.Second); err != nil {
		t.Fatalf("expected concurrent handlers to finish, got %v", err)
	}
}

func TestShutdown_Timeout(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	var ctxCancelled bool
	coord.RegisterFunc("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			ctxCancelled = true
			return ctx.Err()
		case <-time.After(10 * time.Second):
			return nil
		}
	})

	start := time.Now()
	err := coord.ShutdownWithTimeout(100 * time.Millisecond)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("shutdown took too long: %v", elapsed)
	}
	if !ctxCancelled {
		t.Fatal("expected handler context to be cancelled")
	}
	if !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("expected ErrHandlerFailed, got %v", err)
	}
}

func TestShutdown_PreCancelledContext(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	var called bool
	coord.RegisterFunc("never", func(ctx context.Context) error {
		called = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := coord.Shutdown(ctx); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if called {
		t.Fatal("expected no handler call with a cancelled context")
	}
}

func TestShutdown_ContinueOnError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ContinueOnError = true
	coord := NewCoordinator(cfg)

	var laterCalled bool
	coord.RegisterFuncWithPhase("failing", func(ctx context.Context) error {
		return errors.New("release failed")
	}, 10)
	coord.RegisterFuncWithPhase("later", func(ctx context.Context) error {
		laterCalled = true
		return nil
	}, 20)

	err := coord.ShutdownWithTimeout(5 * time.Second)
	if !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("expected ErrHandlerFailed, got %v", err)
	}
	if !laterCalled {
		t.Fatal("expected later phase to run despite the failure")
	}
}

func TestShutdown_StopOnError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ContinueOnError = false
	coord := NewCoordinator(cfg)

	var laterCalled bool
	coord.RegisterFuncWithPhase("failing", func(ctx context.Context) error {
		return errors.New("release failed")
	}, 10)
	coord.RegisterFuncWithPhase("later", func(ctx context.Context) error {
		laterCalled = true
		return nil
	}, 20)

	err := coord.ShutdownWithTimeout(5 * time.Second)
	if !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("expected ErrHandlerFailed, got %v", err)
	}
	if laterCalled {
		t.Fatal("expected later phase to be skipped after the failure")
	}
}

func TestShutdown_Twice(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	var calls int32
	coord.RegisterFunc("once", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	if err := coord.ShutdownWithTimeout(5 * time.Second); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := coord.ShutdownWithTimeout(5 * time.Second); err != nil {
		t.Fatalf("second shutdown should report the recorded outcome, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected handler called once, got %d", n)
	}
}

func TestShutdown_TwiceWithError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ContinueOnError = false
	coord := NewCoordinator(cfg)

	coord.RegisterFunc("failing", func(ctx context.Context) error {
		return errors.New("failure")
	})

	if err := coord.ShutdownWithTimeout(5 * time.Second); !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("expected ErrHandlerFailed, got %v", err)
	}
	if err := coord.ShutdownWithTimeout(5 * time.Second); !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("expected the recorded error again, got %v", err)
	}
}

func TestSignalTrigger(t *testing.T) {
	coord := NewCoordinator(Config{DefaultTimeout: time.Second})

	var called bool
	coord.RegisterFunc("store", func(ctx context.Context) error {
		called = true
		return nil
	})

	coord.HandleSignals()
	coord.Trigger()

	select {
	case <-coord.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete after trigger")
	}
	if !called {
		t.Fatal("expected handler to be called")
	}
	if coord.Err() != nil {
		t.Fatalf("expected no error, got %v", coord.Err())
	}
}

func TestOnProgress(t *testing.T) {
	var mu sync.Mutex
	var results []HandlerResult

	cfg := DefaultConfig()
	cfg.OnProgress = func(hr HandlerResult) {
		mu.Lock()
		results = append(results, hr)
		mu.Unlock()
	}
	coord := NewCoordinator(cfg)

	coord.RegisterFuncWithPhase("monitor", func(ctx context.Context) error { return nil }, 10)
	coord.RegisterFuncWithPhase("store", func(ctx context.Context) error {
		return errors.New("close failed")
	}, 20)

	if err := coord.ShutdownWithTimeout(5 * time.Second); !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("expected ErrHandlerFailed, got %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 progress reports, got %d", len(results))
	}
	byName := map[string]HandlerResult{}
	for _, hr := range results {
		byName[hr.Name] = hr
	}
	if hr := byName["monitor"]; hr.Phase != 10 || hr.Err != nil {
		t.Errorf("unexpected monitor result: %+v", hr)
	}
	if hr := byName["store"]; hr.Phase != 20 || hr.Err == nil {
		t.Errorf("unexpected store result: %+v", hr)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{DefaultTimeout: -time.Second}
	if err := cfg.Validate(); err != ErrInvalidConfig {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	cfg = DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRegister_DefaultPhase(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	// Register uses the default phase (100); an explicit lower phase
	// runs before it.
	coord.Register("default", Func(func(ctx context.Context) error {
		record("default")
		return nil
	}))
	coord.RegisterFuncWithPhase("early", func(ctx context.Context) error {
		record("early")
		return nil
	}, 10)

	if err := coord.ShutdownWithTimeout(5 * time.Second); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(order) != 2 || order[0] != "early" || order[1] != "default" {
		t.Fatalf("expected [early default], got %v", order)
	}
}

func TestShutdown_NoHandlers(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())
	if err := coord.ShutdownWithTimeout(time.Second); err != nil {
		t.Fatalf("expected no error with no handlers, got %v", err)
	}
}
