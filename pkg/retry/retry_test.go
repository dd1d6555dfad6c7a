package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:   attempts,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestTransientErrorRetriedExactly(t *testing.T) {
	calls := 0
	policy := NewPolicy(fastConfig(3), nil)

	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("connection timeout")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "always-failing transient op must run exactly MaxAttempts times")
	assert.Contains(t, err.Error(), "timeout")
}

func TestPermanentErrorShortCircuits(t *testing.T) {
	calls := 0
	policy := NewPolicy(fastConfig(3), nil)

	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errors.New("schema validation failed"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors must not consume retry budget")

	var permErr *PermanentError
	assert.True(t, errors.As(err, &permErr))
}

func TestSuccessAfterRetry(t *testing.T) {
	calls := 0
	policy := NewPolicy(fastConfig(5), nil)

	result, err := DoValue(context.Background(), policy, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("service temporarily unavailable")
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 3, calls)
}

func TestOnRetryObservesDelays(t *testing.T) {
	var attempts []int
	var delays []time.Duration

	policy := NewPolicy(Config{
		MaxAttempts:   4,
		BaseDelay:     time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}, nil)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
		delays = append(delays, delay)
	}

	_ = policy.Do(context.Background(), func(context.Context) error {
		return errors.New("network error")
	})

	require.Equal(t, []int{2, 3, 4}, attempts)
	// Exponential growth without jitter: base, base*2, base*4.
	assert.Equal(t, time.Millisecond, delays[0])
	assert.Equal(t, 2*time.Millisecond, delays[1])
	assert.Equal(t, 4*time.Millisecond, delays[2])
}

func TestDelayCappedAtMax(t *testing.T) {
	policy := NewPolicy(Config{
		MaxAttempts:   10,
		BaseDelay:     time.Second,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 10.0,
	}, nil)

	assert.Equal(t, time.Duration(0), policy.CalculateDelay(1))
	assert.Equal(t, time.Second, policy.CalculateDelay(2))
	assert.Equal(t, 2*time.Second, policy.CalculateDelay(3))
	assert.Equal(t, 2*time.Second, policy.CalculateDelay(8))
}

func TestContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	policy := NewPolicy(Config{
		MaxAttempts:   5,
		BaseDelay:     time.Hour, // never actually waited
		MaxDelay:      time.Hour,
		BackoffFactor: 2.0,
	}, nil)

	err := policy.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShouldRetryClassification(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
	}{
		{nil, false},
		{errors.New("request timeout"), true},
		{errors.New("connection refused"), true},
		{errors.New("network unreachable"), true},
		{errors.New("429 too many requests"), true},
		{errors.New("503 service unavailable"), true},
		{errors.New("invalid argument"), false},
		{Permanent(errors.New("timeout")), false},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
	}

	for _, tc := range cases {
		name := "nil"
		if tc.err != nil {
			name = tc.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.retryable, ShouldRetry(tc.err))
		})
	}
}

func TestDoTaggedWrapsErrorWithName(t *testing.T) {
	err := DoTagged(context.Background(), "backlog-generator", func(context.Context) error {
		return Permanent(fmt.Errorf("bad document"))
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "backlog-generator")
	assert.Contains(t, err.Error(), "bad document")
}

func TestJitterStaysWithinBand(t *testing.T) {
	policy := NewPolicy(Config{
		MaxAttempts:   3,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}, nil)

	base := 100 * time.Millisecond
	low, high := false, false
	for i := 0; i < 200; i++ {
		d := policy.CalculateDelay(2)
		assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.9))
		assert.LessOrEqual(t, d, time.Duration(float64(base)*1.1))
		if d < base {
			low = true
		}
		if d > base {
			high = true
		}
	}
	assert.True(t, low, "jitter never reduced the delay")
	assert.True(t, high, "jitter never increased the delay")
}
