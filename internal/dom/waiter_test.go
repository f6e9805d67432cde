package dom_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslister/postflow/internal/dom"
	"github.com/crosslister/postflow/internal/dom/domtest"
)

func TestWaitResolvesImmediately(t *testing.T) {
	page := domtest.MustNew(`<html><body><input aria-label="Title"></body></html>`)
	loc := dom.NewLocator(nil)
	waiter := dom.NewWaiter(nil, loc)

	el, err := waiter.Wait(context.Background(), page, dom.NewTarget("title", dom.ByAttr("aria-label", "Title")), time.Second, 3)
	require.NoError(t, err)
	assert.Equal(t, "input", el.Node.Data)
}

func TestWaitResolvesOnMutation(t *testing.T) {
	page := domtest.MustNew(`<html><body><div id="app"></div></body></html>`)
	loc := dom.NewLocator(nil)
	waiter := dom.NewWaiter(nil, loc)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = page.SetHTML(`<html><body><div id="app"><input aria-label="Title"></div></body></html>`)
	}()

	start := time.Now()
	el, err := waiter.Wait(context.Background(), page, dom.NewTarget("title", dom.ByAttr("aria-label", "Title")), 2*time.Second, 2)
	require.NoError(t, err)
	assert.Equal(t, "input", el.Node.Data)
	assert.Less(t, time.Since(start), time.Second, "mutation signal must resolve well before the budget")
}

func TestWaitExhaustsBudget(t *testing.T) {
	page := domtest.MustNew(`<html><body></body></html>`)
	waiter := dom.NewWaiter(nil, dom.NewLocator(nil))

	_, err := waiter.Wait(context.Background(), page, dom.NewTarget("ghost", dom.ByAttr("aria-label", "Ghost")), 60*time.Millisecond, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, dom.ErrElementNotFound)

	var nf *dom.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 3, nf.Attempts)
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	page := domtest.MustNew(`<html><body></body></html>`)
	waiter := dom.NewWaiter(nil, dom.NewLocator(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := waiter.Wait(ctx, page, dom.NewTarget("ghost", dom.ByAttr("aria-label", "Ghost")), time.Minute, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForAnyReturnsFirstMatchingIndex(t *testing.T) {
	page := domtest.MustNew(`<html><body><button id="publish">Publish</button></body></html>`)
	waiter := dom.NewWaiter(nil, dom.NewLocator(nil))

	targets := []dom.Target{
		dom.NewTarget("next screen", dom.ByText("Next")),
		dom.NewTarget("publish screen", dom.ByText("Publish")),
	}
	idx, el, err := waiter.WaitForAny(context.Background(), page, targets, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "publish", el.Attr("id"))
}

func TestWaitForAnyTimesOut(t *testing.T) {
	page := domtest.MustNew(`<html><body></body></html>`)
	waiter := dom.NewWaiter(nil, dom.NewLocator(nil))

	_, _, err := waiter.WaitForAny(context.Background(), page, []dom.Target{
		dom.NewTarget("ghost", dom.ByText("Ghost")),
	}, 10*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, dom.ErrElementNotFound)
}
