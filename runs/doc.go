// Package runs is the client for the remote agent run service.
//
// A run is one remote agent session: it is created from a prompt,
// executes on the service, and ends in a terminal status with a result
// or an error. Runs that finished successfully can be resumed with a
// follow-up prompt, which reopens the same session with its context
// intact. The orchestrator builds task delegation on top of exactly
// these operations.
//
// Client is the interface the rest of the module programs against.
// HTTPClient implements it over the service's JSON API with bearer
// auth; it paces requests through a rate limiter, retries transient
// failures with backoff, and serves repeat GETs from a short-lived
// response cache so status polling does not burn quota:
//
//	client, err := runs.NewHTTPClient(runs.HTTPConfig{
//	    BaseURL: "https://runs.example.com",
//	    APIKey:  os.Getenv("RUNKIT_API_KEY"),
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	info, err := client.CreateRun(ctx, runs.PromptSpec{Prompt: "summarize the report"})
//
// Statuses from the service are normalized through
// tasks.ParseRemoteStatus; the raw service string is preserved in
// RunInfo.RawStatus for logging.
//
// MockClient is an in-memory implementation for tests.
package runs
