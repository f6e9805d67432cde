package dom

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// anyPollInterval is the fixed polling cadence of WaitForAny, used where
// mutation observation is impractical (waiting for one of several alternate
// screens after a navigation).
const anyPollInterval = 500 * time.Millisecond

// Waiter blocks until a locator query succeeds or a budgeted timeout elapses.
// It subscribes to document mutations instead of polling, re-resolving the
// target on every mutation signal, and bounds total wait time by splitting
// the budget across a fixed number of attempts.
type Waiter struct {
	log *zap.Logger
	loc *Locator
}

// NewWaiter creates a waiter over the given locator.
func NewWaiter(log *zap.Logger, loc *Locator) *Waiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Waiter{log: log.Named("waiter"), loc: loc}
}

// Wait resolves the target against the live page, retrying across mutation
// signals until totalTimeout elapses. The timeout is split evenly across
// attempts; each attempt checks immediately, then blocks on mutations for
// its sub-window. Fails with ErrElementNotFound only after every attempt is
// exhausted.
func (w *Waiter) Wait(ctx context.Context, page Page, target Target, totalTimeout time.Duration, attempts int) (*Element, error) {
	if attempts < 1 {
		attempts = 1
	}
	window := totalTimeout / time.Duration(attempts)
	if window <= 0 {
		window = time.Millisecond
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		el, err := w.resolveOnce(ctx, page, target)
		if err == nil {
			return el, nil
		}

		el, err = w.waitWindow(ctx, page, target, window)
		if err == nil {
			return el, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		w.log.Debug("Wait window elapsed without a match.",
			zap.String("target", target.Name),
			zap.Int("attempt", attempt),
			zap.Duration("window", window))
	}

	return nil, &NotFoundError{Target: target.Name, Attempts: attempts, Budget: totalTimeout}
}

// waitWindow blocks on mutation signals for one sub-window, re-resolving the
// target on each signal. The subscription is released when the window ends.
func (w *Waiter) waitWindow(ctx context.Context, page Page, target Target, window time.Duration) (*Element, error) {
	mutations, cancel, err := page.SubscribeMutations(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, &NotFoundError{Target: target.Name, Attempts: 1, Budget: window}
		case _, ok := <-mutations:
			if !ok {
				return nil, &NotFoundError{Target: target.Name, Attempts: 1, Budget: window}
			}
			if el, err := w.resolveOnce(ctx, page, target); err == nil {
				return el, nil
			}
		}
	}
}

func (w *Waiter) resolveOnce(ctx context.Context, page Page, target Target) (*Element, error) {
	doc, err := page.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return w.loc.Resolve(doc, target, nil)
}

// WaitForAny polls a visibility check across an ordered set of targets every
// 500ms until the timeout, returning the index and element of the first
// target that resolves. Targets earlier in the slice win when several match
// in the same poll.
func (w *Waiter) WaitForAny(ctx context.Context, page Page, targets []Target, timeout time.Duration) (int, *Element, error) {
	ticker := time.NewTicker(anyPollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		doc, err := page.Snapshot(ctx)
		if err != nil {
			return -1, nil, err
		}
		for i, target := range targets {
			if el, err := w.loc.Resolve(doc, target, nil); err == nil {
				return i, el, nil
			}
		}
		select {
		case <-ctx.Done():
			return -1, nil, ctx.Err()
		case <-deadline.C:
			return -1, nil, &NotFoundError{Target: "any-of screens", Attempts: 1, Budget: timeout}
		case <-ticker.C:
		}
	}
}
