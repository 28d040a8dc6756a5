// Package errors provides the structured error taxonomy for runkit. It
// classifies every failure the orchestrator can surface (remote service
// trouble, rejected input, rate limiting, coordination faults) with a code
// and a category that drive retry decisions.
//
// # Error Categories
//
// Errors are classified into four categories:
//
//   - Transient: Temporary failures where retry may succeed (timeouts, remote unavailability)
//   - Permanent: Failures where retry will not help (validation, not found, auth)
//   - Resource: Exhaustion issues (rate limits, queue capacity)
//   - Internal: Unexpected errors indicating bugs or corrupted state
//
// # Error Codes
//
// Each error has a specific code identifying the failure:
//
//   - VALIDATION: Malformed or invalid input
//   - REMOTE_UNAVAILABLE: Remote run service unreachable or returning 5xx
//   - REMOTE_AUTH: Remote service rejected credentials
//   - NOT_FOUND: Task or run does not exist
//   - RATE_LIMITED: Remote rate limit exceeded
//   - ORCHESTRATION: Invalid local transition or coordination failure
//   - And more...
//
// # Usage
//
// Create a new error:
//
//	err := errors.Validation("prompt must not be empty")
//
// Wrap an existing error with context:
//
//	wrapped := errors.WrapWithCode(err, errors.ErrCodeRemoteUnavailable,
//		"creating remote run", errors.WithTaskID(task.ID))
//
// Decide whether to retry:
//
//	if errors.IsRetryable(err) {
//		// back off and try again
//	}
//
// # JSON Serialization
//
// Errors round-trip through JSON so they can travel in bus events and
// persisted records:
//
//	data, _ := json.Marshal(taskErr)
//	var restored errors.Error
//	json.Unmarshal(data, &restored)
package errors
