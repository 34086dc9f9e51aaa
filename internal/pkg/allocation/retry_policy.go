package allocation

import (
	"time"

	"github.com/ManuelReschke/CreditLedger/app/models"
)

// MaxRetries is the number of automatic attempts before a failed allocation
// is given up on.
const MaxRetries = 5

// RetryDelay is the backoff after the retryCount-th failure: 1h, 2h, 4h, 8h,
// 16h. A fresh failure (retryCount 0) waits one hour.
func RetryDelay(retryCount int) time.Duration {
	if retryCount <= 1 {
		return time.Hour
	}
	if retryCount > 16 {
		retryCount = 16
	}
	return time.Duration(1<<(retryCount-1)) * time.Hour
}

// RetryOutcome is the result of one attempt on a queued allocation.
type RetryOutcome string

const (
	RetrySucceeded RetryOutcome = "succeeded"
	RetryErrored   RetryOutcome = "errored"
	// RetryPermanent is a failure that no further attempt can fix, e.g. the
	// subscription no longer exists.
	RetryPermanent RetryOutcome = "permanent"
)

// RetryState is the mutable part of a FailedAllocation.
type RetryState struct {
	Status      models.FailedAllocationStatus
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
}

// StateOf extracts the retry state of a queue row.
func StateOf(f *models.FailedAllocation) RetryState {
	return RetryState{
		Status:      f.Status,
		RetryCount:  f.RetryCount,
		MaxRetries:  f.MaxRetries,
		NextRetryAt: f.NextRetryAt,
	}
}

// NextRetryState applies one attempt outcome.
//
//	pending_retry --succeeded--> resolved
//	pending_retry --errored----> pending_retry (count+1, backoff) | failed (count reached max)
//	pending_retry --permanent--> failed
//
// resolved is terminal. failed only changes through a manual retry: success
// resolves it, another error keeps it failed with the count bumped.
func NextRetryState(cur RetryState, outcome RetryOutcome, now time.Time) RetryState {
	if cur.Status == models.FailedAllocationResolved {
		return cur
	}
	limit := cur.MaxRetries
	if limit <= 0 {
		limit = MaxRetries
	}
	next := cur
	next.MaxRetries = limit

	switch outcome {
	case RetrySucceeded:
		next.Status = models.FailedAllocationResolved
		next.NextRetryAt = nil
	case RetryPermanent:
		next.Status = models.FailedAllocationFailed
		next.NextRetryAt = nil
	default:
		next.RetryCount++
		if cur.Status == models.FailedAllocationFailed || next.RetryCount >= limit {
			next.Status = models.FailedAllocationFailed
			next.NextRetryAt = nil
			break
		}
		at := now.Add(RetryDelay(next.RetryCount))
		next.Status = models.FailedAllocationPendingRetry
		next.NextRetryAt = &at
	}
	return next
}
