package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxRetries int) *Policy {
	return &Policy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     8 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestBackoffRetryer_SucceedsFirstAttempt(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(3), nil)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_RetriesUntilSuccess(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(3), nil)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackoffRetryer_ExhaustsBudget(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(2), nil)

	calls := 0
	wantErr := errors.New("permanent")
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls, "one attempt plus two retries")
}

func TestBackoffRetryer_ZeroRetriesSingleAttempt(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(0), nil)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("nope")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	policy := fastPolicy(2)
	var attempts []int
	var delays []time.Duration
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
		delays = append(delays, delay)
	}
	r := NewBackoffRetryer(policy, nil)

	_ = r.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("always")
	})

	assert.Equal(t, []int{1, 2}, attempts)
	require.Len(t, delays, 2)
	assert.Equal(t, time.Millisecond, delays[0])
	assert.Equal(t, 2*time.Millisecond, delays[1])
}

func TestBackoffRetryer_DelayDoublingAndCap(t *testing.T) {
	r := NewBackoffRetryer(&Policy{
		MaxRetries:   10,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     350 * time.Millisecond,
		Multiplier:   2.0,
	}, nil).(*backoffRetryer)

	assert.Equal(t, 100*time.Millisecond, r.delay(1))
	assert.Equal(t, 200*time.Millisecond, r.delay(2))
	assert.Equal(t, 350*time.Millisecond, r.delay(3), "delay caps at MaxDelay")
	assert.Equal(t, 350*time.Millisecond, r.delay(8))
}

func TestBackoffRetryer_JitterStaysInBand(t *testing.T) {
	r := NewBackoffRetryer(&Policy{
		MaxRetries:   1,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}, nil).(*backoffRetryer)

	for i := 0; i < 100; i++ {
		d := r.delay(1)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestBackoffRetryer_CancelledContextStopsRetrying(t *testing.T) {
	r := NewBackoffRetryer(&Policy{
		MaxRetries:   5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("failing while cancelled")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "no further attempts once the context is cancelled")
}

func TestBackoffRetryer_NilPolicyUsesDefaults(t *testing.T) {
	r := NewBackoffRetryer(nil, nil).(*backoffRetryer)
	assert.Equal(t, 2, r.policy.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, r.policy.InitialDelay)
	assert.Equal(t, 30*time.Second, r.policy.MaxDelay)
}

func TestBackoffRetryer_ClampsInvalidPolicy(t *testing.T) {
	r := NewBackoffRetryer(&Policy{
		MaxRetries:   -3,
		InitialDelay: -time.Second,
		Multiplier:   0.1,
	}, nil).(*backoffRetryer)

	assert.Equal(t, 0, r.policy.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, r.policy.InitialDelay)
	assert.Equal(t, 2.0, r.policy.Multiplier)
}
