// Package orchestrator tracks tasks through remote agent runs.
//
// A task is created locally, executed remotely. CreateTask persists a
// pending record and returns; a bounded worker pool picks the task up,
// creates the remote run, and polls it until it settles. Every state
// change is persisted before anything reacts to it.
//
//	orc, err := orchestrator.New(orchestrator.Config{
//	    Client:   client,
//	    Store:    store,
//	    Registry: reg,
//	    Bus:      eventBus,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := orc.Start(); err != nil {
//	    return err
//	}
//	defer orc.Close()
//
//	task, err := orc.CreateTask(ctx, orchestrator.TaskSpec{
//	    Prompt:            "analyze the logs from last night",
//	    OrchestratorRunID: 42, // delegated by run 42
//	})
//
// # Completion funnel
//
// A run's terminal status can be noticed by the watching worker, by a
// WaitForCompletion caller, or by the background monitor, in any
// order, more than once. All of them feed the same funnel: the first
// report wins, settles the task under the orchestrator's mutex, and
// publishes a terminal event on the bus; every later report is a
// no-op. The event, not a callback, carries the outcome to the
// notification consumer, so no remote calls ever run under the task
// mutex.
//
// # Parent notification
//
// A delegated task names the remote run that created it
// (OrchestratorRunID). When such a task settles, the consumer checks
// the parent run: an active parent is left alone; an inactive one is
// resumed with a continuation prompt carrying the child's task id, run
// id, and result or error. Only after the notification attempt is the
// child's run marked completed in the registry.
//
// # Restart recovery
//
// Start reloads the store: pending tasks are re-enqueued, running
// tasks with a remote run are watched again, and running tasks whose
// run was never confirmed are failed (re-creating the run could
// duplicate work). The remote-run index is rebuilt for every task, so
// a terminal report arriving after the restart still finds its task.
package orchestrator
