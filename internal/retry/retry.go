// Package retry wraps step operations in hard or soft retry policies with
// capped exponential backoff. Hard exhaustion propagates the last error and
// halts the workflow; soft exhaustion degrades to a warning plus an in-page
// notification and lets the workflow continue.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	backoffFactor = 1.5
	maxDelay      = 5000 * time.Millisecond
)

// Notifier surfaces a transient, user-visible notification. The in-page
// toast implementation lives in the report package; tests use fakes.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string) {}

// Outcome describes one retried step invocation. It is ephemeral: produced
// per invocation and consumed immediately by the orchestrator to decide
// propagate-vs-continue.
type Outcome struct {
	Attempts  int
	LastErr   error
	Succeeded bool
	// Skipped is set when a soft policy exhausted its attempts and the step
	// was abandoned without failing the workflow.
	Skipped bool
}

// Controller executes operations under the two policies.
type Controller struct {
	log      *zap.Logger
	notifier Notifier
	// sleep is swappable in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController creates a controller. A nil notifier disables notifications.
func NewController(log *zap.Logger, notifier Notifier) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Controller{
		log:      log.Named("retry"),
		notifier: notifier,
		sleep:    sleepCtx,
	}
}

// WithSleep overrides the backoff sleeper. Tests only.
func (c *Controller) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Controller {
	c.sleep = sleep
	return c
}

// Hard retries the operation up to maxAttempts with capped exponential
// backoff, returning the last error on exhaustion. Used for steps whose
// failure must halt the whole workflow (screen transitions, publish).
func (c *Controller) Hard(ctx context.Context, stepName string, op func(context.Context) error, maxAttempts int, initialDelay time.Duration) (Outcome, error) {
	outcome := c.attemptLoop(ctx, stepName, op, maxAttempts, initialDelay)
	if outcome.Succeeded {
		return outcome, nil
	}
	if outcome.LastErr == nil {
		outcome.LastErr = ctx.Err()
	}
	return outcome, fmt.Errorf("step %q failed after %d attempts: %w", stepName, outcome.Attempts, outcome.LastErr)
}

// Soft runs the identical attempt/backoff loop, but exhaustion logs a
// warning, surfaces a transient notification, and returns a skipped outcome
// instead of an error. The target UI sometimes requires these fields,
// sometimes auto-fills them; treating them as fatal would abort
// otherwise-successful runs.
func (c *Controller) Soft(ctx context.Context, stepName string, op func(context.Context) error, maxAttempts int, initialDelay time.Duration) Outcome {
	outcome := c.attemptLoop(ctx, stepName, op, maxAttempts, initialDelay)
	if outcome.Succeeded {
		return outcome
	}
	outcome.Skipped = true
	c.log.Warn("Soft step exhausted retries; continuing without it.",
		zap.String("step", stepName),
		zap.Int("attempts", outcome.Attempts),
		zap.Error(outcome.LastErr))
	c.notifier.Notify(ctx, fmt.Sprintf("Step %q was skipped and may need manual attention.", stepName))
	return outcome
}

func (c *Controller) attemptLoop(ctx context.Context, stepName string, op func(context.Context) error, maxAttempts int, initialDelay time.Duration) Outcome {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := initialDelay
	var outcome Outcome

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			outcome.LastErr = err
			return outcome
		}
		outcome.Attempts = attempt

		err := op(ctx)
		if err == nil {
			outcome.Succeeded = true
			return outcome
		}
		outcome.LastErr = err
		c.log.Debug("Step attempt failed.",
			zap.String("step", stepName),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == maxAttempts {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			outcome.LastErr = err
			return outcome
		}
		delay = nextDelay(delay)
	}
	return outcome
}

// nextDelay grows the backoff by 1.5x, capped at 5000ms.
func nextDelay(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * backoffFactor)
	if next > maxDelay {
		return maxDelay
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
