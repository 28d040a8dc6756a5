// Package ratelimit paces calls to the remote run service.
//
// The remote API enforces a request quota; exceeding it costs more than
// pacing does, since 429 responses still burn a request. The Limiter
// keeps clients under the quota proactively, and Do retries the
// failures that slip through.
//
// # Sliding Window
//
// The Limiter uses a sliding window log: it remembers the timestamp of
// each admitted request and admits a new one only when fewer than the
// configured maximum fall inside the window.
//
//	limiter, _ := ratelimit.NewLimiter(ratelimit.Config{
//	    Requests: 30,
//	    Window:   time.Minute,
//	})
//
//	// Block until the request fits (or ctx ends)
//	if err := limiter.Acquire(ctx); err != nil {
//	    return err
//	}
//
// With a limit of N, N acquisitions pass immediately; the next one
// waits until the oldest admitted request slides out of the window.
//
// # Retry
//
// Do retries transient failures with exponential backoff, consulting
// the error taxonomy to decide: timeouts, unavailable remotes, and
// rate limits are retried; validation, auth, and not-found errors
// propagate immediately.
//
//	err := ratelimit.Do(ctx, ratelimit.DefaultRetryConfig(), func() error {
//	    return client.call()
//	})
package ratelimit
