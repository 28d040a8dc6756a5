package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	kiterrors "github.com/praxisworks/runkit/errors"
	"github.com/praxisworks/runkit/runs"
	"github.com/praxisworks/runkit/tasks"
)

// CreateTask validates the spec, persists a pending task record, and
// hands it to the worker pool. The pending record is returned
// immediately; the remote run is created asynchronously. A full worker
// queue fails the task and returns a capacity error.
func (o *Orchestrator) CreateTask(ctx context.Context, spec TaskSpec) (*tasks.Task, error) {
	if !o.running.Load() {
		return nil, kiterrors.Orchestration("orchestrator is not running")
	}
	if strings.TrimSpace(spec.Prompt) == "" {
		return nil, kiterrors.Validation("prompt is required")
	}

	created, err := o.store.Create(&tasks.Task{
		Prompt:            spec.Prompt,
		Metadata:          spec.Metadata,
		OrchestratorRunID: spec.OrchestratorRunID,
	})
	if err != nil {
		return nil, storeError(err, "")
	}

	if err := o.enqueueNew(created.ID); err != nil {
		return nil, err
	}

	o.logger.WithTask(created.ID).Debug("task created")
	return created, nil
}

// GetTaskStatus returns the current task record.
func (o *Orchestrator) GetTaskStatus(id string) (*tasks.Task, error) {
	task, err := o.store.Load(id)
	if err != nil {
		return nil, storeError(err, id)
	}
	return task, nil
}

// ListTasks returns up to limit task records, most recently updated
// first. limit <= 0 means all.
func (o *Orchestrator) ListTasks(limit int) ([]*tasks.Task, error) {
	list, err := o.store.List(limit)
	if err != nil {
		return nil, storeError(err, "")
	}
	return list, nil
}

// TaskLogs returns a page of the task's remote run log.
func (o *Orchestrator) TaskLogs(ctx context.Context, id string, skip, limit int) ([]runs.LogEntry, error) {
	task, err := o.store.Load(id)
	if err != nil {
		return nil, storeError(err, id)
	}
	if task.RemoteRunID == 0 {
		return nil, kiterrors.Orchestration("task has no remote run yet", kiterrors.WithTaskID(id))
	}
	return o.client.Logs(ctx, task.RemoteRunID, skip, limit)
}

// WaitForCompletion blocks until the task settles, polling the remote
// run. A terminal observation is applied through the same completion
// funnel the workers use, so waiting never races them into a double
// settle. On timeout the current record is returned unchanged together
// with a timeout error.
func (o *Orchestrator) WaitForCompletion(ctx context.Context, id string, timeout, pollInterval time.Duration) (*tasks.Task, error) {
	if pollInterval <= 0 {
		pollInterval = o.pollInterval
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		task, err := o.store.Load(id)
		if err != nil {
			return nil, storeError(err, id)
		}
		if task.Status.IsTerminal() {
			return task, nil
		}

		if task.RemoteRunID != 0 {
			info, err := o.client.GetRun(ctx, task.RemoteRunID)
			switch {
			case err == nil && info.Status.IsTerminal():
				o.CompleteRun(info)
				continue // reload the settled record
			case err != nil && ctx.Err() == nil && !kiterrors.IsRetryable(err):
				return task, kiterrors.Wrap(err, "wait for completion")
			}
		}

		select {
		case <-ctx.Done():
			if current, lerr := o.store.Load(id); lerr == nil {
				task = current
			}
			return task, kiterrors.Wrap(ctx.Err(), "wait for completion", kiterrors.WithTaskID(id))
		case <-ticker.C:
		}
	}
}

// ResumeTask continues a finished task with a follow-up prompt. Only a
// task whose last-known remote status is the resumable one is
// eligible; anything else is rejected before any remote call. An
// eligible task is reopened to running as a new lifecycle segment:
// completion time and error are cleared, the prior result stays until
// the new segment produces its own.
func (o *Orchestrator) ResumeTask(ctx context.Context, id, prompt string) (*tasks.Task, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, kiterrors.Validation("resume prompt is required", kiterrors.WithTaskID(id))
	}

	task, err := o.store.Load(id)
	if err != nil {
		return nil, storeError(err, id)
	}
	if !task.RemoteStatus.Resumable() {
		return nil, kiterrors.Orchestration(
			fmt.Sprintf("task is not resumable from remote status %q", task.RemoteStatus),
			kiterrors.WithTaskID(id),
		)
	}

	info, err := o.client.ResumeRun(ctx, task.RemoteRunID, prompt)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	updated, err := o.reopen(id, info.Status)
	o.mu.Unlock()
	if err != nil {
		return nil, storeError(err, id)
	}

	// The run stays completed in the registry: delegation bookkeeping
	// is one-way and the new segment is watched by the worker pool.
	o.enqueueWatch(id)

	o.logger.WithTask(id).WithRun(task.RemoteRunID).Info("task resumed")
	return updated, nil
}

// reopen rewrites the record for a new lifecycle segment. Caller holds
// the mutex.
func (o *Orchestrator) reopen(id string, remote tasks.RemoteStatus) (*tasks.Task, error) {
	task, err := o.store.Load(id)
	if err != nil {
		return nil, err
	}
	task.Status = tasks.StatusRunning
	task.RemoteStatus = remote
	task.CompletedAt = nil
	task.Error = ""
	if err := o.store.Save(task); err != nil {
		return nil, err
	}
	return o.store.Load(id)
}

// CancelTask stops a task. Already-terminal tasks are returned
// unchanged with no remote call. A task without a remote run settles
// locally; otherwise the remote run is cancelled first and the task
// settles as failed with the cancellation marker.
func (o *Orchestrator) CancelTask(ctx context.Context, id string) (*tasks.Task, error) {
	task, err := o.store.Load(id)
	if err != nil {
		return nil, storeError(err, id)
	}
	if task.Status.IsTerminal() {
		return task, nil
	}

	if task.RemoteRunID == 0 {
		return o.settle(id, tasks.StatusFailed, "", tasks.CancellationMarker, "")
	}

	info, err := o.client.CancelRun(ctx, task.RemoteRunID)
	if err != nil {
		return nil, err
	}

	o.logger.WithTask(id).WithRun(task.RemoteRunID).Info("task cancelled")
	return o.settle(id, tasks.StatusFailed, info.Result, tasks.CancellationMarker, tasks.RemoteCancelled)
}

// CompleteRun is the completion funnel's entry point for terminal run
// reports, shared by the workers, the waiters, and the background
// monitor. Reports for unknown runs or non-terminal statuses are
// ignored.
func (o *Orchestrator) CompleteRun(info *runs.RunInfo) {
	if info == nil || info.ID == 0 || !info.Status.IsTerminal() {
		return
	}

	o.mu.Lock()
	taskID, ok := o.runIndex[info.ID]
	o.mu.Unlock()
	if !ok {
		o.logger.WithRun(info.ID).Debug("terminal report for unknown run")
		return
	}

	result, errMsg := terminalOutcome(info)
	if _, err := o.settle(taskID, info.Status.TaskStatus(), result, errMsg, info.Status); err != nil {
		o.logger.WithError(err).WithTask(taskID).WithRun(info.ID).Warn("could not settle task")
	}
}

// terminalOutcome extracts the result and error text to persist for a
// terminal run report.
func terminalOutcome(info *runs.RunInfo) (result, errMsg string) {
	switch info.Status {
	case tasks.RemoteComplete:
		return info.Result, ""
	case tasks.RemoteCancelled:
		return info.Result, tasks.CancellationMarker
	default:
		msg := info.Error
		if msg == "" {
			msg = "remote run failed"
		}
		return info.Result, msg
	}
}

// settle applies a terminal transition exactly once: load, skip when
// already terminal, persist, then publish the terminal event. The
// store write always happens before the event is published. A repeat
// settle returns the existing record and, for delegated tasks, makes
// sure the registry is closed out (covers terminal reports that arrive
// after a restart, when the original event is gone).
func (o *Orchestrator) settle(taskID string, status tasks.Status, result, errMsg string, remote tasks.RemoteStatus) (*tasks.Task, error) {
	o.mu.Lock()
	task, err := o.store.Load(taskID)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}

	if task.Status.IsTerminal() {
		o.mu.Unlock()
		if task.Delegated() && task.RemoteRunID != 0 {
			if err := o.reg.MarkCompleted(task.RemoteRunID); err != nil {
				o.logger.WithError(err).WithRun(task.RemoteRunID).Warn("could not mark run completed")
			}
		}
		return task, nil
	}

	if remote != "" && task.RemoteStatus != remote {
		task.RemoteStatus = remote
		if err := o.store.Save(task); err != nil {
			o.mu.Unlock()
			return nil, err
		}
	}

	updated, err := o.store.UpdateStatus(taskID, status, result, errMsg)
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}

	o.logger.WithTask(taskID).WithField("status", status.String()).Info("task settled")
	o.publishTerminal(updated)
	return updated, nil
}

// publishTerminal emits the task's terminal event on the bus. Failures
// are logged, never propagated: the state change is already durable.
func (o *Orchestrator) publishTerminal(task *tasks.Task) {
	ev := tasks.NewTaskEvent(task)
	data, err := ev.Marshal()
	if err != nil {
		o.logger.WithError(err).WithTask(task.ID).Warn("could not encode terminal event")
		return
	}
	if err := o.bus.Publish(tasks.SubjectTerminal, data); err != nil {
		o.logger.WithError(err).WithTask(task.ID).Warn("could not publish terminal event")
	}
}

// storeError folds store sentinels into the error taxonomy for the
// public surface.
func storeError(err error, taskID string) error {
	if err == nil {
		return nil
	}

	opts := []kiterrors.Option{kiterrors.WithCause(err)}
	if taskID != "" {
		opts = append(opts, kiterrors.WithTaskID(taskID))
	}

	switch {
	case errors.Is(err, tasks.ErrTaskNotFound):
		return kiterrors.NotFound("task not found", opts...)
	case errors.Is(err, tasks.ErrTaskTerminal), errors.Is(err, tasks.ErrBadTransition), errors.Is(err, tasks.ErrRunIDAssigned):
		return kiterrors.Orchestration(err.Error(), opts...)
	case errors.Is(err, tasks.ErrInvalidTask), errors.Is(err, tasks.ErrTaskExists):
		return kiterrors.Validation(err.Error(), opts...)
	default:
		return kiterrors.Wrap(err, "task store", kiterrors.WithTaskID(taskID))
	}
}
