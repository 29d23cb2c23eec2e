package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func throttleErr() error {
	return &smithy.GenericAPIError{Code: "SlowDown", Message: "slow down"}
}

func TestDelayBounds(t *testing.T) {
	p := &Policy{
		MaxAttempts:    5,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		JitterFraction: 0.25,
	}

	for attempt := 0; attempt < 20; attempt++ {
		for i := 0; i < 50; i++ {
			d := p.Delay(attempt)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, p.MaxPossibleDelay())
		}
	}
}

func TestDelayGrowsWithAttempt(t *testing.T) {
	// Without jitter the sequence is exactly min(base*2^n, max).
	p := &Policy{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  2 * time.Second,
	}

	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 400*time.Millisecond, p.Delay(2))
	assert.Equal(t, 800*time.Millisecond, p.Delay(3))
	assert.Equal(t, 1600*time.Millisecond, p.Delay(4))
	assert.Equal(t, 2*time.Second, p.Delay(5))
	assert.Equal(t, 2*time.Second, p.Delay(10))
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	p := &Policy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	calls := 0
	err := Do(context.Background(), nil, "test", p, func(context.Context) error {
		calls++
		if calls < 3 {
			return throttleErr()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoNonRetryablePropagatesUnchanged(t *testing.T) {
	p := &Policy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	permanent := errors.New("access denied")
	calls := 0
	err := Do(context.Background(), nil, "test", p, func(context.Context) error {
		calls++
		return permanent
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, permanent, err)
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := &Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	calls := 0
	last := throttleErr()
	err := Do(context.Background(), nil, "test", p, func(context.Context) error {
		calls++
		return last
	})

	assert.Equal(t, 3, calls)
	assert.Same(t, last, err)
}

func TestDoHonorsContextDuringBackoff(t *testing.T) {
	p := &Policy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, nil, "test", p, func(context.Context) error {
		return throttleErr()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoCustomClassifier(t *testing.T) {
	special := errors.New("special")
	p := &Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, special) },
	}

	calls := 0
	err := Do(context.Background(), nil, "test", p, func(context.Context) error {
		calls++
		return special
	})
	assert.Equal(t, 3, calls)
	assert.Same(t, special, err)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"throttling code", &smithy.GenericAPIError{Code: "ThrottlingException"}, true},
		{"slow down code", &smithy.GenericAPIError{Code: "SlowDown"}, true},
		{"internal error code", &smithy.GenericAPIError{Code: "InternalError"}, true},
		{"access denied code", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"no such key code", &smithy.GenericAPIError{Code: "NoSuchKey"}, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"connection reset text", errors.New("read tcp: connection reset by peer"), true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
