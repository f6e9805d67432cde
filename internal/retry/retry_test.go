package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, message string) {
	n.messages = append(n.messages, message)
}

func newTestController(notifier Notifier) (*Controller, *[]time.Duration) {
	var delays []time.Duration
	c := NewController(zap.NewNop(), notifier).WithSleep(func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	})
	return c, &delays
}

func TestHardRetryBound(t *testing.T) {
	c, delays := newTestController(nil)
	calls := 0
	boom := errors.New("boom")

	_, err := c.Hard(context.Background(), "form fill", func(context.Context) error {
		calls++
		return boom
	}, 3, 100*time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls, "the operation must run exactly maxAttempts times")
	// Two sleeps between three attempts, non-decreasing.
	require.Len(t, *delays, 2)
	assert.LessOrEqual(t, (*delays)[0], (*delays)[1])
}

func TestHardRetrySucceedsMidway(t *testing.T) {
	c, _ := newTestController(nil)
	calls := 0

	outcome, err := c.Hard(context.Background(), "publish", func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}, 3, time.Millisecond)

	require.NoError(t, err)
	assert.True(t, outcome.Succeeded)
	assert.Equal(t, 2, outcome.Attempts)
}

func TestBackoffCappedAt5000ms(t *testing.T) {
	d := 4 * time.Second
	for i := 0; i < 10; i++ {
		next := nextDelay(d)
		assert.GreaterOrEqual(t, next, d, "backoff must be non-decreasing")
		assert.LessOrEqual(t, next, 5000*time.Millisecond)
		d = next
	}
	assert.Equal(t, 5000*time.Millisecond, d)
}

func TestSoftRetryContainment(t *testing.T) {
	notifier := &recordingNotifier{}
	c, _ := newTestController(notifier)
	calls := 0

	outcome := c.Soft(context.Background(), "select category", func(context.Context) error {
		calls++
		return errors.New("always failing")
	}, 3, time.Millisecond)

	assert.Equal(t, 3, calls)
	assert.True(t, outcome.Skipped)
	assert.False(t, outcome.Succeeded)
	assert.Error(t, outcome.LastErr)
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "manual attention")
}

func TestSoftRetrySuccessDoesNotNotify(t *testing.T) {
	notifier := &recordingNotifier{}
	c, _ := newTestController(notifier)

	outcome := c.Soft(context.Background(), "upload images", func(context.Context) error {
		return nil
	}, 3, time.Millisecond)

	assert.True(t, outcome.Succeeded)
	assert.False(t, outcome.Skipped)
	assert.Empty(t, notifier.messages)
}

func TestContextCancellationAborts(t *testing.T) {
	c, _ := newTestController(nil)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := c.Hard(ctx, "next", func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail then cancel")
	}, 5, time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, 1, calls, "no further attempts after cancellation")
}
