// Package shutdown coordinates ordered teardown of runkit components.
//
// Components register handlers at numbered phases; lower phases run
// first and handlers sharing a phase run concurrently. A typical
// wiring stops the observers before the workers and the workers
// before the storage they write to:
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	coord.RegisterFuncWithPhase("monitor", func(context.Context) error { return mon.Stop() }, 10)
//	coord.RegisterFuncWithPhase("orchestrator", func(context.Context) error { return orc.Close() }, 20)
//	coord.RegisterFuncWithPhase("store", func(context.Context) error { return store.Close() }, 30)
//	coord.HandleSignals()
//
//	<-coord.Done()
//
// Handlers receive a context bounded by the shutdown timeout and
// should return once their component has stopped. Per-handler
// outcomes are observable through Config.OnProgress, which examples
// wire to the structured logger.
package shutdown
