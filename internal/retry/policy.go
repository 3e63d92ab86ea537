package retry

import (
	"time"

	"github.com/postpilothq/postpilot/internal/publish"
)

// Decision is what the dispatcher applies after a classified failure.
// Terminal means the post stays failed; otherwise it returns to the
// scheduled state at NextAttempt with the incremented RetryCount.
type Decision struct {
	Terminal    bool
	RetryCount  int
	NextAttempt time.Time
}

// Policy bounds automatic retries with exponential backoff. Manual retries
// run through the same Decide call, so repeated manual attempts also
// converge on the ceiling.
type Policy struct {
	Ceiling     int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func NewPolicy(ceiling int, base, cap time.Duration) *Policy {
	return &Policy{Ceiling: ceiling, BackoffBase: base, BackoffCap: cap}
}

// Decide maps a failure onto the next transition. Exceeding the ceiling is
// terminal regardless of the error kind's retryability.
func (p *Policy) Decide(code publish.ErrorCode, retryCount int, now time.Time) Decision {
	if !code.Retryable() || retryCount >= p.Ceiling {
		return Decision{Terminal: true, RetryCount: retryCount}
	}

	next := retryCount + 1
	return Decision{
		Terminal:    false,
		RetryCount:  next,
		NextAttempt: now.Add(p.Backoff(next)),
	}
}

// Backoff returns base * 2^(attempt-1), capped.
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.BackoffCap {
			return p.BackoffCap
		}
	}
	if d > p.BackoffCap {
		return p.BackoffCap
	}
	return d
}
