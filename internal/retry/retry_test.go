package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fast(attempts uint) Policy {
	return Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	retries := 0
	got, err := Do(context.Background(), fast(5), "flaky", func(ctx context.Context, attempt int) (string, error) {
		if attempt < 3 {
			return "", errFlaky
		}
		return "ok", nil
	}, OnRetry(func(int, error, time.Duration) { retries++ }))

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, retries)
}

func TestDo_Exhausted(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fast(3), "always", func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, errFlaky
	})

	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestDo_Permanent(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fast(5), "fatal", func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, Permanent(errFlaky)
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestDo_AfterHint(t *testing.T) {
	var waits []time.Duration
	start := time.Now()
	_, err := Do(context.Background(), fast(3), "poll", func(ctx context.Context, attempt int) (bool, error) {
		if attempt == 1 {
			return false, After(30*time.Millisecond, errFlaky)
		}
		return true, nil
	}, OnRetry(func(_ int, _ error, next time.Duration) { waits = append(waits, next) }))

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{30 * time.Millisecond}, waits)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{InitialInterval: time.Hour, Constant: true}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, p, "slow", func(ctx context.Context, attempt int) (int, error) {
		return 0, errFlaky
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, fast(3).Validate())
	assert.Error(t, Policy{Multiplier: 0.5}.Validate())
	assert.Error(t, Policy{InitialInterval: time.Second, MaxInterval: time.Millisecond}.Validate())
	assert.Error(t, Policy{MaxElapsed: -time.Second}.Validate())
}
