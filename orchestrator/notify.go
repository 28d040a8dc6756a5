package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/praxisworks/runkit/tasks"
)

// consume drains terminal-task events from the bus until the
// subscription closes. Malformed events are skipped; everything else
// goes through the notification protocol.
func (o *Orchestrator) consume() {
	defer o.wg.Done()

	for msg := range o.sub.Messages() {
		ev, err := tasks.UnmarshalTaskEvent(msg.Data)
		if err != nil {
			o.logger.WithError(err).Warn("skipping malformed task event")
			continue
		}
		o.handleTerminal(ev)
	}
}

// handleTerminal runs the parent-notification protocol for one
// terminal event, then closes out the delegation in the registry. The
// registry update is deliberately last: the child counts as watched
// until its outcome has been reported.
func (o *Orchestrator) handleTerminal(ev *tasks.TaskEvent) {
	if ev.OrchestratorRunID == 0 {
		return
	}

	o.notifyParent(ev)

	if ev.RemoteRunID != 0 {
		if err := o.reg.MarkCompleted(ev.RemoteRunID); err != nil {
			o.logger.WithError(err).WithRun(ev.RemoteRunID).Warn("could not mark run completed")
		}
	}
}

// notifyParent reports a delegated task's outcome to the run that
// delegated it, by resuming that run with a continuation prompt. An
// actively attended parent is not resumed: it sees the outcome on its
// own, and resuming would collide with the live session. Failures are
// logged and swallowed; the child's terminal state is already durable
// and never depends on notification succeeding.
func (o *Orchestrator) notifyParent(ev *tasks.TaskEvent) {
	log := o.logger.WithTask(ev.TaskID).WithRun(ev.OrchestratorRunID)

	ctx, cancel := context.WithTimeout(context.Background(), o.notifyTimeout)
	defer cancel()

	parent, err := o.client.GetRun(ctx, ev.OrchestratorRunID)
	if err != nil {
		log.WithError(err).Warn("could not check parent run before notification")
		return
	}

	if parent.Status.IsActive() {
		// TODO: push the outcome into the active run once the service
		// exposes an interrupt/inject endpoint, instead of relying on
		// the parent noticing on its own.
		log.Debug("parent run active, notification skipped")
		return
	}

	if _, err := o.client.ResumeRun(ctx, ev.OrchestratorRunID, continuationPrompt(ev)); err != nil {
		log.WithError(err).Warn("parent notification failed")
		return
	}

	log.Info("parent run notified")
}

// continuationPrompt synthesizes the prompt that reports a delegated
// task's outcome to its parent run.
func continuationPrompt(ev *tasks.TaskEvent) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Delegated task %s (remote run %d) finished with status %s.\n", ev.TaskID, ev.RemoteRunID, ev.Status)
	if ev.Result != "" {
		b.WriteString("Result:\n")
		b.WriteString(ev.Result)
		if !strings.HasSuffix(ev.Result, "\n") {
			b.WriteString("\n")
		}
	}
	if ev.Error != "" {
		b.WriteString("Error:\n")
		b.WriteString(ev.Error)
		if !strings.HasSuffix(ev.Error, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("Continue your work taking this outcome into account.")

	return b.String()
}
