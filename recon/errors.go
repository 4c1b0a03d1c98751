/*
errors.go - Centralized error types for the reconciliation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The scorer error taxonomy is the load-bearing part: the anomaly chain
  decides between retrying and degrading based on it.

ERROR CATEGORIES:
  1. Payload errors - Invalid reconciliation requests (client errors)
  2. Scorer errors - Remote anomaly scoring failures, split into
     transient (retryable) and permanent (degrade immediately)
  3. Store errors - Rate schedule lookup failures (server errors)

USAGE:
  A scoring collaborator wraps the sentinels so the chain can classify:

    return fmt.Errorf("scoring endpoint: %w", recon.ErrScorerThrottled)

  and the retry loop branches on recon.IsRetryableScore(err).

SEE ALSO:
  - anomaly.go: Retry/degrade decisions
  - scoring/: HTTP collaborator mapping status codes onto these sentinels
*/
package recon

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEmptyPayload is returned when a reconciliation request carries no
	// labor lines. Reconciliation does not proceed.
	ErrEmptyPayload = errors.New("empty reconciliation payload")

	// ErrScorerThrottled indicates the remote scorer rejected the call due
	// to rate limiting. Transient; the chain retries with backoff.
	ErrScorerThrottled = errors.New("scorer throttled")

	// ErrScorerUnavailable indicates the remote scorer could not be
	// reached or returned a server fault. Transient; retried.
	ErrScorerUnavailable = errors.New("scorer unavailable")

	// ErrScorerModel indicates the remote model itself faulted on the
	// batch. Permanent; the chain degrades immediately.
	ErrScorerModel = errors.New("scorer model fault")

	// ErrScorerInvalidInput indicates the scorer rejected the feature
	// payload. Permanent; retrying the same batch cannot succeed.
	ErrScorerInvalidInput = errors.New("scorer rejected input")

	// ErrRateStore indicates the rate schedule store failed or returned
	// malformed data. Surfaced to the caller as a server error.
	ErrRateStore = errors.New("rate store failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ScoreAttemptError records the final state of an exhausted scoring attempt
// sequence.
type ScoreAttemptError struct {
	Attempts int
	Last     error
}

func (e *ScoreAttemptError) Error() string {
	return fmt.Sprintf("remote scoring failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ScoreAttemptError) Unwrap() error { return e.Last }

// RateStoreError wraps a store failure with the lookup that triggered it.
type RateStoreError struct {
	RateID string
	Err    error
}

func (e *RateStoreError) Error() string {
	return fmt.Sprintf("rate store lookup %q: %v", e.RateID, e.Err)
}

// Unwrap exposes the underlying store failure to errors.Is/As.
func (e *RateStoreError) Unwrap() error { return e.Err }

// Is classifies any wrapped store failure under the ErrRateStore sentinel.
func (e *RateStoreError) Is(target error) bool { return target == ErrRateStore }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryableScore returns true if the scoring error might succeed on retry.
func IsRetryableScore(err error) bool {
	return errors.Is(err, ErrScorerThrottled) ||
		errors.Is(err, ErrScorerUnavailable)
}

// IsPermanentScore returns true if retrying the same scoring call is futile.
func IsPermanentScore(err error) bool {
	return errors.Is(err, ErrScorerModel) ||
		errors.Is(err, ErrScorerInvalidInput)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyPayload)
}
