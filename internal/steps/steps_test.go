package steps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/crosslister/postflow/api/schemas"
	"github.com/crosslister/postflow/internal/config"
	"github.com/crosslister/postflow/internal/dom"
	"github.com/crosslister/postflow/internal/dom/domtest"
	"github.com/crosslister/postflow/internal/humanoid"
)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		HardMaxAttempts:  2,
		SoftMaxAttempts:  2,
		InitialRetryWait: time.Millisecond,
		WaitTimeout:      100 * time.Millisecond,
		WaitAttempts:     2,
		ImageConcurrency: 2,
		ImageRatePerSec:  100,
		ImageTimeout:     5 * time.Second,
	}
}

func newRuntime(page *domtest.Page, payload schemas.ListingPayload) *Runtime {
	loc := dom.NewLocator(nil)
	return &Runtime{
		Page:     page,
		Loc:      loc,
		Wait:     dom.NewWaiter(nil, loc),
		Typist:   humanoid.NewTypist(nil, humanoid.Instant()),
		Fetcher:  NewFetcher(nil, nil, 100, 2),
		Log:      zap.NewNop(),
		Platform: Marketplace(),
		Payload:  payload,
		Flags:    schemas.NewCompletionFlags(),
		Engine:   testEngineConfig(),
		Sleep:    func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}

const basicsFixture = `<html><body>
	<input id="title" aria-label="Title">
	<input id="price" aria-label="Price">
	<textarea id="desc" aria-label="Description"></textarea>
</body></html>`

func TestFillBasics(t *testing.T) {
	page := domtest.MustNew(basicsFixture)
	rt := newRuntime(page, schemas.ListingPayload{
		Title: "Couch", Price: "150", Description: "Comfy",
	})

	require.NoError(t, fillBasics(context.Background(), rt))

	assert.True(t, rt.Flags.Bool(FlagTitleFilled))
	assert.True(t, rt.Flags.Bool(FlagPriceFilled))
	assert.True(t, rt.Flags.Bool(FlagDescriptionFilled))
}

func TestFillBasicsSkipsEmptyDescription(t *testing.T) {
	page := domtest.MustNew(basicsFixture)
	rt := newRuntime(page, schemas.ListingPayload{Title: "Couch", Price: "150"})

	require.NoError(t, fillBasics(context.Background(), rt))
	assert.False(t, rt.Flags.Bool(FlagDescriptionFilled))
}

func TestFillBasicsFailsWhenRequiredFieldMissing(t *testing.T) {
	page := domtest.MustNew(`<html><body><input aria-label="Price"></body></html>`)
	rt := newRuntime(page, schemas.ListingPayload{Title: "Couch", Price: "150"})

	err := fillBasics(context.Background(), rt)
	require.Error(t, err)
	assert.ErrorIs(t, err, dom.ErrElementNotFound)
}

const categoryFixture = `<html><body>
	<div id="opener" aria-label="Category" role="button">Category</div>
	<div role="listbox">
		<div role="option">Electronics</div>
		<div role="option">Cell Phones &amp; Accessories</div>
		<div role="option">Furniture</div>
	</div>
</body></html>`

func TestSelectCategoryInfersFromTitle(t *testing.T) {
	page := domtest.MustNew(categoryFixture)
	var clicked []string
	page.OnClick = func(_ *domtest.Page, el *html.Node) {
		clicked = append(clicked, htmlquery.InnerText(el))
	}
	rt := newRuntime(page, schemas.ListingPayload{
		Title: "iPhone 14 Pro charger cable", Price: "20",
	})

	require.NoError(t, selectCategory(context.Background(), rt))
	assert.True(t, rt.Flags.Bool(FlagCategorySelected))
	require.Len(t, clicked, 2, "opener then option")
	assert.Equal(t, "Cell Phones & Accessories", clicked[1])
}

func TestSelectCategoryExplicitMatch(t *testing.T) {
	page := domtest.MustNew(categoryFixture)
	var clicked []string
	page.OnClick = func(_ *domtest.Page, el *html.Node) {
		clicked = append(clicked, htmlquery.InnerText(el))
	}
	rt := newRuntime(page, schemas.ListingPayload{
		Title: "thing", Price: "1", Category: "furniture",
	})

	require.NoError(t, selectCategory(context.Background(), rt))
	assert.Equal(t, "Furniture", clicked[1])
}

func TestSelectConditionSkippedWhenUnspecified(t *testing.T) {
	page := domtest.MustNew(`<html><body></body></html>`)
	rt := newRuntime(page, schemas.ListingPayload{Title: "x", Price: "1"})

	require.NoError(t, selectCondition(context.Background(), rt))
	assert.False(t, rt.Flags.Bool(FlagConditionSelected))
	assert.Empty(t, page.Events())
}

const uploadFixture = `<html><body>
	<button>Add Photos</button>
	<input id="file" type="file" style="display:none">
</body></html>`

func TestUploadImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	page := domtest.MustNew(uploadFixture)
	rt := newRuntime(page, schemas.ListingPayload{
		Title: "x", Price: "1",
		ImageURLs: []string{srv.URL + "/a.jpg", srv.URL + "/a.jpg", srv.URL + "/b.jpg"},
	})

	require.NoError(t, uploadImages(context.Background(), rt))

	assert.True(t, rt.Flags.Bool(FlagImagesUploaded))
	assert.Equal(t, 2, rt.Flags.Count(FlagImagesAttached), "duplicate URL must be deduplicated")

	doc, err := page.Snapshot(context.Background())
	require.NoError(t, err)
	input, err := rt.Loc.Resolve(doc, dom.NewTarget("file", dom.ByXPath(`//input[@type='file']`)), dom.Present)
	require.NoError(t, err)
	assert.Len(t, page.Files(input.XPath), 2)
	assert.Equal(t, []string{"files", "change", "input"}, page.EventsFor(input.XPath))
}

func TestUploadImagesFailsWhenNothingFetched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	page := domtest.MustNew(uploadFixture)
	rt := newRuntime(page, schemas.ListingPayload{
		Title: "x", Price: "1", ImageURLs: []string{srv.URL + "/gone.jpg"},
	})

	err := uploadImages(context.Background(), rt)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageFetch)
}

func TestUploadImagesNoURLsIsANoOp(t *testing.T) {
	page := domtest.MustNew(uploadFixture)
	rt := newRuntime(page, schemas.ListingPayload{Title: "x", Price: "1"})

	require.NoError(t, uploadImages(context.Background(), rt))
	assert.False(t, rt.Flags.Bool(FlagImagesUploaded))
	assert.Empty(t, page.Events())
}

func TestClickNextDisabledShortCircuits(t *testing.T) {
	page := domtest.MustNew(`<html><body>
		<input aria-invalid="true" aria-label="Price">
		<button aria-disabled="true">Next</button>
	</body></html>`)
	rt := newRuntime(page, schemas.ListingPayload{Title: "x", Price: "1"})

	err := makeClickNext(FlagNext1Clicked)(context.Background(), rt)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStepDisabled)
	assert.Contains(t, err.Error(), "Price")
	assert.Empty(t, page.Events(), "a disabled control must never be clicked")
	assert.False(t, rt.Flags.Bool(FlagNext1Clicked))
}

func TestClickNextClicksEnabledButton(t *testing.T) {
	page := domtest.MustNew(`<html><body><button id="next">Next</button></body></html>`)
	rt := newRuntime(page, schemas.ListingPayload{Title: "x", Price: "1"})

	require.NoError(t, makeClickNext(FlagNext1Clicked)(context.Background(), rt))
	assert.True(t, rt.Flags.Bool(FlagNext1Clicked))

	events := page.Events()
	require.Len(t, events, 1)
	assert.Contains(t, events[0], "click:")
}

func TestClickNextConfirmsScreenByAnchor(t *testing.T) {
	// The node count never changes in a static fixture, so the anchor of the
	// destination screen is what confirms the transition.
	page := domtest.MustNew(`<html><body>
		<button id="next">Next</button>
		<input aria-label="Location">
	</body></html>`)
	rt := newRuntime(page, schemas.ListingPayload{Title: "x", Price: "1"})

	require.NoError(t, makeClickNext(FlagNext1Clicked, TargetLocation)(context.Background(), rt))
	assert.True(t, rt.Flags.Bool(FlagNext1Clicked))
	assert.True(t, rt.Flags.Bool(FlagNavigationConfirmed))
}

func TestLocationDelivery(t *testing.T) {
	page := domtest.MustNew(`<html><body>
		<input id="loc" aria-label="Location">
		<div role="button" id="pickup">Local pickup</div>
	</body></html>`)
	rt := newRuntime(page, schemas.ListingPayload{
		Title: "x", Price: "1", Location: "Springfield", DeliveryMethod: "Local pickup",
	})

	require.NoError(t, locationDelivery(context.Background(), rt))
	assert.True(t, rt.Flags.Bool(FlagLocationFilled))
	assert.True(t, rt.Flags.Bool(FlagDeliverySelected))
}

func TestVisibilityOptionsLimitsGroups(t *testing.T) {
	page := domtest.MustNew(`<html><body>
		<div role="checkbox">Group A</div>
		<div role="checkbox">Group B</div>
		<div role="checkbox">Group C</div>
	</body></html>`)
	rt := newRuntime(page, schemas.ListingPayload{Title: "x", Price: "1", MaxGroups: 2})

	require.NoError(t, visibilityOptions(context.Background(), rt))
	assert.Equal(t, 2, rt.Flags.Count(FlagGroupsSelected))
	assert.Len(t, page.Events(), 2)
}

func TestVisibilityOptionsHonorsSkipGroups(t *testing.T) {
	page := domtest.MustNew(`<html><body><div role="checkbox">Group A</div></body></html>`)
	rt := newRuntime(page, schemas.ListingPayload{Title: "x", Price: "1", SkipGroups: true})

	require.NoError(t, visibilityOptions(context.Background(), rt))
	assert.Equal(t, 0, rt.Flags.Count(FlagGroupsSelected))
	assert.Empty(t, page.Events())
}

func TestPublishConfirmedByPhrase(t *testing.T) {
	page := domtest.MustNew(`<html><body><button id="pub">Publish</button></body></html>`)
	page.OnClick = func(p *domtest.Page, _ *html.Node) {
		_ = p.SetHTML(`<html><body><p>Your listing is now published.</p></body></html>`)
	}
	rt := newRuntime(page, schemas.ListingPayload{Title: "x", Price: "1"})

	require.NoError(t, publish(context.Background(), rt))
	assert.True(t, rt.Flags.Bool(FlagPublishClicked))
	assert.True(t, rt.Flags.Bool(FlagPublishConfirmed))
	assert.False(t, rt.Flags.Bool(FlagPublishUnconfirmed))
}

func TestPublishConfirmedByURL(t *testing.T) {
	page := domtest.MustNew(`<html><body><button>Publish</button></body></html>`)
	page.OnClick = func(p *domtest.Page, _ *html.Node) {
		p.SetURL("https://marketplace.example/marketplace/you/selling")
	}
	rt := newRuntime(page, schemas.ListingPayload{Title: "x", Price: "1"})

	require.NoError(t, publish(context.Background(), rt))
	assert.True(t, rt.Flags.Bool(FlagPublishConfirmed))
}

func TestPublishUnconfirmedIsRecordedNotFatal(t *testing.T) {
	page := domtest.MustNew(`<html><body><button>Publish</button></body></html>`)
	rt := newRuntime(page, schemas.ListingPayload{Title: "x", Price: "1"})

	require.NoError(t, publish(context.Background(), rt))
	assert.True(t, rt.Flags.Bool(FlagPublishClicked))
	assert.False(t, rt.Flags.Bool(FlagPublishConfirmed))
	assert.True(t, rt.Flags.Bool(FlagPublishUnconfirmed))
}

func TestDetectLogin(t *testing.T) {
	page := domtest.MustNew(`<html><body></body></html>`)
	page.SetURL("https://marketplace.example/login?next=%2Fcreate")

	url, login, err := DetectLogin(context.Background(), page, Marketplace())
	require.NoError(t, err)
	assert.True(t, login)
	assert.Contains(t, url, "/login")

	page.SetURL("https://marketplace.example/create/listing")
	_, login, err = DetectLogin(context.Background(), page, Marketplace())
	require.NoError(t, err)
	assert.False(t, login)
}
