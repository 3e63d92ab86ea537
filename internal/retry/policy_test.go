package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/postpilothq/postpilot/internal/publish"
)

func TestDecide(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := NewPolicy(5, 30*time.Second, 10*time.Minute)

	tests := []struct {
		name       string
		code       publish.ErrorCode
		retryCount int
		terminal   bool
		nextCount  int
		backoff    time.Duration
	}{
		{"non-retryable is terminal", publish.ErrTokenExpired, 0, true, 0, 0},
		{"policy violation is terminal", publish.ErrContentPolicyViolation, 2, true, 2, 0},
		{"first retry", publish.ErrRateLimited, 0, false, 1, 30 * time.Second},
		{"second retry doubles", publish.ErrPlatformError, 1, false, 2, time.Minute},
		{"fourth retry", publish.ErrMediaUploadFailed, 3, false, 4, 4 * time.Minute},
		{"backoff is capped", publish.ErrUnknown, 4, false, 5, 8 * time.Minute},
		{"ceiling reached even when retryable", publish.ErrRateLimited, 5, true, 5, 0},
		{"beyond ceiling", publish.ErrPlatformError, 7, true, 7, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Decide(tt.code, tt.retryCount, now)
			assert.Equal(t, tt.terminal, d.Terminal)
			assert.Equal(t, tt.nextCount, d.RetryCount)
			if !tt.terminal {
				assert.Equal(t, now.Add(tt.backoff), d.NextAttempt)
			}
		})
	}
}

func TestBackoffCap(t *testing.T) {
	p := NewPolicy(10, time.Minute, 5*time.Minute)

	assert.Equal(t, time.Minute, p.Backoff(1))
	assert.Equal(t, 2*time.Minute, p.Backoff(2))
	assert.Equal(t, 4*time.Minute, p.Backoff(3))
	assert.Equal(t, 5*time.Minute, p.Backoff(4))
	assert.Equal(t, 5*time.Minute, p.Backoff(20))
	assert.Equal(t, time.Minute, p.Backoff(0))
}
