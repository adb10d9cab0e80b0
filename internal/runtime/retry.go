package runtime

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/chatflow/ports"
)

// RetryPolicy configures delivery retries.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy retries transient transport failures three times.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetrySender wraps a Sender with retry and exponential backoff for
// transient errors.
type RetrySender struct {
	next   ports.Sender
	policy RetryPolicy
}

func NewRetrySender(next ports.Sender, policy RetryPolicy) *RetrySender {
	return &RetrySender{next: next, policy: policy}
}

func (r *RetrySender) Send(ctx context.Context, msg chatflow.Outbound) error {
	var err error
	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		err = r.next.Send(ctx, msg)
		if err == nil || !isRetryable(err) || attempt == r.policy.MaxRetries {
			return err
		}
		if !sleepWithBackoff(ctx, r.policy, attempt) {
			return ctx.Err()
		}
	}
	return err
}

// sleepWithBackoff waits for the backoff duration. It returns false when
// ctx is cancelled first.
func sleepWithBackoff(ctx context.Context, policy RetryPolicy, attempt int) bool {
	delay := calculateBackoff(policy, attempt)
	slog.Debug("retry: backing off", "attempt", attempt+1, "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// calculateBackoff computes the delay for a given attempt using exponential
// backoff.
func calculateBackoff(policy RetryPolicy, attempt int) time.Duration {
	delay := float64(policy.InitialDelay) * math.Pow(policy.BackoffFactor, float64(attempt))
	if time.Duration(delay) > policy.MaxDelay {
		return policy.MaxDelay
	}
	return time.Duration(delay)
}

func isRetryable(err error) bool {
	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"timeout", "rate limit", "too many requests",
		"429", "502", "503", "504",
		"connection reset", "connection refused", "eof",
	} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
