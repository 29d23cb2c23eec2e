// Package retry wraps fallible remote calls with classified, backed-off
// retries. The backoff shape is exponential with bounded jitter; error
// classification distinguishes transient store failures from permanent
// ones so that permanent errors surface immediately and unchanged.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// Policy is an immutable retry configuration value. Policies are shared
// by reference across all calls of an operation category and never
// mutated after construction.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the backoff base applied at attempt zero.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff before jitter.
	MaxDelay time.Duration

	// JitterFraction randomizes each delay uniformly by +/- this
	// fraction. Values outside [0, 1] are clamped.
	JitterFraction float64

	// Retryable overrides the default transient-error classifier when
	// non-nil.
	Retryable func(error) bool
}

// DefaultPolicy returns the engine's baseline retry policy.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:    4,
		BaseDelay:      200 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		JitterFraction: 0.25,
	}
}

// Delay computes the backoff for the given zero-based attempt index:
// min(base * 2^attempt, maxDelay), jittered by +/- JitterFraction and
// floored at zero.
func (p *Policy) Delay(attempt int) time.Duration {
	base := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if capped := float64(p.MaxDelay); base > capped {
		base = capped
	}

	jf := p.JitterFraction
	if jf < 0 {
		jf = 0
	} else if jf > 1 {
		jf = 1
	}
	if jf > 0 {
		// Uniform in [-jf, +jf] of the capped delay.
		base += base * jf * (2*rand.Float64() - 1)
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

// MaxPossibleDelay is the upper bound on any delay this policy can
// produce: maxDelay * (1 + jitterFraction).
func (p *Policy) MaxPossibleDelay() time.Duration {
	jf := p.JitterFraction
	if jf < 0 {
		jf = 0
	} else if jf > 1 {
		jf = 1
	}
	return time.Duration(float64(p.MaxDelay) * (1 + jf))
}

// retryable resolves the classifier for this policy.
func (p *Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsTransient(err)
}

// Do executes fn under the policy, sleeping between attempts. The last
// error propagates unchanged; Do never wraps it. Each retry logs the
// attempt index, the error, and the computed delay before sleeping.
func Do(ctx context.Context, logger *slog.Logger, op string, p *Policy, fn func(context.Context) error) error {
	if p == nil {
		p = DefaultPolicy()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !p.retryable(lastErr) || attempt == attempts-1 {
			return lastErr
		}

		delay := p.Delay(attempt)
		if logger != nil {
			logger.Debug("retrying operation",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// transientCodes are store error codes that indicate throttling or
// temporary service failure.
var transientCodes = map[string]struct{}{
	"Throttling":               {},
	"ThrottlingException":      {},
	"RequestLimitExceeded":     {},
	"TooManyRequestsException": {},
	"SlowDown":                 {},
	"RequestTimeout":           {},
	"RequestTimeoutException":  {},
	"InternalError":            {},
	"ServiceUnavailable":       {},
}

// transientStatuses are HTTP statuses worth retrying.
var transientStatuses = map[int]struct{}{
	408: {},
	429: {},
	500: {},
	502: {},
	503: {},
	504: {},
}

// IsTransient is the default classifier: true for throttling, timeout,
// 5xx, and connection-level failures; false for everything else,
// including context cancellation.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := transientCodes[apiErr.ErrorCode()]; ok {
			return true
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		if _, ok := transientStatuses[respErr.HTTPStatusCode()]; ok {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection resets surface as wrapped syscall errors with no
	// structured code.
	msg := err.Error()
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe") {
		return true
	}

	return false
}
