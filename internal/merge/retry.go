package merge

import (
	"context"
	"time"
)

const (
	defaultMaximumAttemptsConstant   = 5
	defaultRetryDelayConstant        = 5 * time.Second
	defaultTransientExitCodeConstant = 128
)

// RetryPolicy bounds retries of network stages. Only TransientExitCode is retried.
type RetryPolicy struct {
	MaximumAttempts   int
	Delay             time.Duration
	TransientExitCode int
}

// DefaultRetryPolicy allows five attempts five seconds apart for git exit status 128.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaximumAttempts:   defaultMaximumAttemptsConstant,
		Delay:             defaultRetryDelayConstant,
		TransientExitCode: defaultTransientExitCodeConstant,
	}
}

func (policy RetryPolicy) normalized() RetryPolicy {
	defaults := DefaultRetryPolicy()
	if policy.MaximumAttempts <= 0 {
		policy.MaximumAttempts = defaults.MaximumAttempts
	}
	if policy.Delay < 0 {
		policy.Delay = defaults.Delay
	}
	if policy.TransientExitCode == 0 {
		policy.TransientExitCode = defaults.TransientExitCode
	}
	return policy
}

// Sleeper waits between retry attempts.
type Sleeper interface {
	Sleep(executionContext context.Context, duration time.Duration) error
}

// TimerSleeper waits on a real timer and stops early when the context ends.
type TimerSleeper struct{}

// Sleep blocks for duration or until the context is done.
func (TimerSleeper) Sleep(executionContext context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-timer.C:
		return nil
	}
}
