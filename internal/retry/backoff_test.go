package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff(attempts int) *Backoff {
	return &Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   1.5,
		MaxAttempts:  attempts,
	}
}

func TestBackoff_SuccessAfterRetries(t *testing.T) {
	calls := 0
	err := fastBackoff(10).Do(context.Background(), func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackoff_PermanentError(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := fastBackoff(10).Do(context.Background(), func(int) error {
		calls++
		return Permanent(fatal)
	})

	assert.Same(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestBackoff_MaxAttempts(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	err := fastBackoff(3).Do(context.Background(), func(int) error {
		calls++
		return transient
	})

	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)
}

func TestBackoff_ContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	b := WorkerDial()
	start := time.Now()
	err := b.Do(ctx, func(int) error { return errors.New("not yet") })

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("x")))
	assert.True(t, IsPermanent(Permanent(errors.New("x"))))
}

func TestJitterStaysWithinBounds(t *testing.T) {
	d := 100 * time.Millisecond
	for range 100 {
		j := addJitter(d)
		assert.GreaterOrEqual(t, j, 75*time.Millisecond)
		assert.LessOrEqual(t, j, 125*time.Millisecond)
	}
}
