package runs

import (
	"context"
	"fmt"
	"sync"

	kiterrors "github.com/praxisworks/runkit/errors"
	"github.com/praxisworks/runkit/tasks"
)

// --- Mock Client for Testing ---

// ResumeCall records one ResumeRun invocation.
type ResumeCall struct {
	ID     int64
	Prompt string
}

// MockClient is an in-memory Client for testing. Runs get sequential
// IDs, status sequences can be scripted per run, and every call is
// recorded. Safe for concurrent use.
type MockClient struct {
	mu      sync.Mutex
	nextID  int64
	runs    map[int64]*RunInfo
	scripts map[int64][]tasks.RemoteStatus
	logs    map[int64][]LogEntry

	createErr error
	getErr    error
	resumeErr error
	cancelErr error
	logsErr   error

	createCalls []PromptSpec
	getCalls    []int64
	resumeCalls []ResumeCall
	cancelCalls []int64
	logsCalls   []int64

	// These can be overridden for custom behavior.
	CreateRunFunc func(ctx context.Context, spec PromptSpec) (*RunInfo, error)
	GetRunFunc    func(ctx context.Context, id int64) (*RunInfo, error)
	ResumeRunFunc func(ctx context.Context, id int64, prompt string) (*RunInfo, error)
	CancelRunFunc func(ctx context.Context, id int64) (*RunInfo, error)
}

var _ Client = (*MockClient)(nil)

// NewMockClient creates a new mock run client.
func NewMockClient() *MockClient {
	return &MockClient{
		runs:    make(map[int64]*RunInfo),
		scripts: make(map[int64][]tasks.RemoteStatus),
		logs:    make(map[int64][]LogEntry),
	}
}

// SetRun seeds a run directly, without going through CreateRun.
func (m *MockClient) SetRun(info *RunInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *info
	m.runs[info.ID] = &cp
	if info.ID > m.nextID {
		m.nextID = info.ID
	}
}

// ScriptStatuses sets the sequence of statuses successive GetRun calls
// report for a run. The last status repeats once the script runs out.
func (m *MockClient) ScriptStatuses(id int64, statuses ...tasks.RemoteStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[id] = append([]tasks.RemoteStatus(nil), statuses...)
}

// CompleteRun marks a run complete with the given result.
func (m *MockClient) CompleteRun(id int64, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run, ok := m.runs[id]; ok {
		run.Status = tasks.RemoteComplete
		run.RawStatus = string(tasks.RemoteComplete)
		run.Result = result
		run.Error = ""
	}
	delete(m.scripts, id)
}

// FailRun marks a run failed with the given error message.
func (m *MockClient) FailRun(id int64, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run, ok := m.runs[id]; ok {
		run.Status = tasks.RemoteError
		run.RawStatus = string(tasks.RemoteError)
		run.Error = message
	}
	delete(m.scripts, id)
}

// SetLogs seeds the log entries Logs returns for a run.
func (m *MockClient) SetLogs(id int64, entries []LogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[id] = append([]LogEntry(nil), entries...)
}

// SetCreateError makes CreateRun fail with err.
func (m *MockClient) SetCreateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

// SetGetError makes GetRun fail with err.
func (m *MockClient) SetGetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

// SetResumeError makes ResumeRun fail with err.
func (m *MockClient) SetResumeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeErr = err
}

// SetCancelError makes CancelRun fail with err.
func (m *MockClient) SetCancelError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelErr = err
}

// SetLogsError makes Logs fail with err.
func (m *MockClient) SetLogsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logsErr = err
}

// CreateCalls returns the recorded CreateRun invocations.
func (m *MockClient) CreateCalls() []PromptSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PromptSpec(nil), m.createCalls...)
}

// GetCalls returns the run IDs passed to GetRun.
func (m *MockClient) GetCalls() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.getCalls...)
}

// ResumeCalls returns the recorded ResumeRun invocations.
func (m *MockClient) ResumeCalls() []ResumeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ResumeCall(nil), m.resumeCalls...)
}

// CancelCalls returns the run IDs passed to CancelRun.
func (m *MockClient) CancelCalls() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.cancelCalls...)
}

// LogsCalls returns the run IDs passed to Logs.
func (m *MockClient) LogsCalls() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.logsCalls...)
}

// Reset clears the recorded calls.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls = nil
	m.getCalls = nil
	m.resumeCalls = nil
	m.cancelCalls = nil
	m.logsCalls = nil
}

// CreateRun implements the Client interface.
func (m *MockClient) CreateRun(ctx context.Context, spec PromptSpec) (*RunInfo, error) {
	m.mu.Lock()
	m.createCalls = append(m.createCalls, spec)
	if fn := m.CreateRunFunc; fn != nil {
		m.mu.Unlock()
		return fn(ctx, spec)
	}
	if m.createErr != nil {
		err := m.createErr
		m.mu.Unlock()
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		m.mu.Unlock()
		return nil, err
	}

	m.nextID++
	id := m.nextID
	info := &RunInfo{
		ID:        id,
		Status:    tasks.RemoteActive,
		RawStatus: string(tasks.RemoteActive),
		WebURL:    fmt.Sprintf("https://runs.example.com/runs/%d", id),
	}
	m.runs[id] = info
	out := *info
	m.mu.Unlock()
	return &out, nil
}

// GetRun implements the Client interface.
func (m *MockClient) GetRun(ctx context.Context, id int64) (*RunInfo, error) {
	m.mu.Lock()
	m.getCalls = append(m.getCalls, id)
	if fn := m.GetRunFunc; fn != nil {
		m.mu.Unlock()
		return fn(ctx, id)
	}
	if m.getErr != nil {
		err := m.getErr
		m.mu.Unlock()
		return nil, err
	}

	run, ok := m.runs[id]
	if !ok {
		m.mu.Unlock()
		return nil, kiterrors.NotFound("run not found", kiterrors.WithRunID(id))
	}
	out := *run

	if script := m.scripts[id]; len(script) > 0 {
		out.Status = script[0]
		out.RawStatus = string(script[0])
		if len(script) > 1 {
			m.scripts[id] = script[1:]
		}
	}
	m.mu.Unlock()
	return &out, nil
}

// ResumeRun implements the Client interface.
func (m *MockClient) ResumeRun(ctx context.Context, id int64, prompt string) (*RunInfo, error) {
	m.mu.Lock()
	m.resumeCalls = append(m.resumeCalls, ResumeCall{ID: id, Prompt: prompt})
	if fn := m.ResumeRunFunc; fn != nil {
		m.mu.Unlock()
		return fn(ctx, id, prompt)
	}
	if m.resumeErr != nil {
		err := m.resumeErr
		m.mu.Unlock()
		return nil, err
	}

	run, ok := m.runs[id]
	if !ok {
		m.mu.Unlock()
		return nil, kiterrors.NotFound("run not found", kiterrors.WithRunID(id))
	}
	run.Status = tasks.RemoteActive
	run.RawStatus = string(tasks.RemoteActive)
	run.Error = ""
	delete(m.scripts, id)
	out := *run
	m.mu.Unlock()
	return &out, nil
}

// CancelRun implements the Client interface.
func (m *MockClient) CancelRun(ctx context.Context, id int64) (*RunInfo, error) {
	m.mu.Lock()
	m.cancelCalls = append(m.cancelCalls, id)
	if fn := m.CancelRunFunc; fn != nil {
		m.mu.Unlock()
		return fn(ctx, id)
	}
	if m.cancelErr != nil {
		err := m.cancelErr
		m.mu.Unlock()
		return nil, err
	}

	run, ok := m.runs[id]
	if !ok {
		m.mu.Unlock()
		return nil, kiterrors.NotFound("run not found", kiterrors.WithRunID(id))
	}
	run.Status = tasks.RemoteCancelled
	run.RawStatus = string(tasks.RemoteCancelled)
	delete(m.scripts, id)
	out := *run
	m.mu.Unlock()
	return &out, nil
}

// Logs implements the Client interface.
func (m *MockClient) Logs(ctx context.Context, id int64, skip, limit int) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logsCalls = append(m.logsCalls, id)
	if m.logsErr != nil {
		return nil, m.logsErr
	}

	if _, ok := m.runs[id]; !ok {
		return nil, kiterrors.NotFound("run not found", kiterrors.WithRunID(id))
	}

	entries := m.logs[id]
	if skip < 0 {
		skip = 0
	}
	if skip >= len(entries) {
		return nil, nil
	}
	entries = entries[skip:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return append([]LogEntry(nil), entries...), nil
}

// Close implements the Client interface.
func (m *MockClient) Close() error {
	return nil
}
