// Package monitor watches active remote runs in the background.
//
// The orchestrator follows each run it starts with a dedicated
// watcher. That watcher can be lost: the process restarts, a poll
// returns garbage, a run finishes while nothing is looking. The
// monitor closes that gap by periodically asking the registry for
// every active run, fetching each run's status from the remote
// service, and invoking the registered callbacks the first time a run
// is seen in a terminal status.
//
//	m, err := monitor.New(monitor.Config{
//	    Client:   client,
//	    Registry: reg,
//	    Interval: 10 * time.Second,
//	})
//	if err != nil {
//	    return err
//	}
//	m.OnTerminal(orc.CompleteRun)
//	m.Start()
//	defer m.Stop()
//
// The monitor reports; it does not act. Marking the run completed in
// the registry and settling the task are the callback's
// responsibility, which keeps a single code path (the orchestrator's
// completion funnel) in charge of those transitions no matter who
// noticed the run finishing first.
package monitor
