// Package retry retries short operations with exponential backoff.
//
// It is used for writes to the backing stores where a transient failure
// (a busy SQLite file, a dropped connection) should not lose an execution
// record:
//
//	err := retry.DoWithRetryable(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
//	    return tracker.UpdateExecution(ctx, id, outcome)
//	}, isTransient)
//
// Wrap an error with Permanent to stop retrying immediately.
package retry
