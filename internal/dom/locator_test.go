package dom_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/crosslister/postflow/internal/dom"
)

func parse(t *testing.T, source string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(source))
	require.NoError(t, err)
	return doc
}

func TestResolveStrategyOrderWins(t *testing.T) {
	doc := parse(t, `<html><body>
		<input id="by-attr" aria-label="Title">
		<input id="by-placeholder" placeholder="Add a title">
	</body></html>`)
	loc := dom.NewLocator(nil)

	target := dom.NewTarget("title field",
		dom.ByAttr("aria-label", "Title"),
		dom.ByPlaceholder("title"),
	)
	el, err := loc.Resolve(doc, target, nil)
	require.NoError(t, err)
	assert.Equal(t, "by-attr", el.Attr("id"), "earlier strategy must win even when both match")
}

func TestResolveFallsBackThroughChain(t *testing.T) {
	doc := parse(t, `<html><body>
		<input id="target" placeholder="Enter a Title here">
	</body></html>`)
	loc := dom.NewLocator(nil)

	target := dom.NewTarget("title field",
		dom.ByAttr("aria-label", "Title"),
		dom.ByPlaceholder("title"),
	)
	el, err := loc.Resolve(doc, target, nil)
	require.NoError(t, err)
	assert.Equal(t, "target", el.Attr("id"))
}

func TestResolveSkipsInvisibleMatches(t *testing.T) {
	doc := parse(t, `<html><body>
		<div style="display: none"><input id="hidden-one" aria-label="Price"></div>
		<input id="visible-one" aria-label="Price">
	</body></html>`)
	loc := dom.NewLocator(nil)

	el, err := loc.Resolve(doc, dom.NewTarget("price", dom.ByAttr("aria-label", "Price")), nil)
	require.NoError(t, err)
	assert.Equal(t, "visible-one", el.Attr("id"))
}

func TestResolveNotFound(t *testing.T) {
	doc := parse(t, `<html><body><p>nothing interactive</p></body></html>`)
	loc := dom.NewLocator(nil)

	_, err := loc.Resolve(doc, dom.NewTarget("missing", dom.ByAttr("aria-label", "Nope")), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, dom.ErrElementNotFound)
}

func TestByLabelForAttribute(t *testing.T) {
	doc := parse(t, `<html><body>
		<label for="price-input">Price</label>
		<input id="price-input">
	</body></html>`)
	loc := dom.NewLocator(nil)

	el, err := loc.Resolve(doc, dom.NewTarget("price", dom.ByLabel("Price")), nil)
	require.NoError(t, err)
	assert.Equal(t, "price-input", el.Attr("id"))
}

func TestByLabelNestedControl(t *testing.T) {
	doc := parse(t, `<html><body>
		<label>Description <textarea id="desc"></textarea></label>
	</body></html>`)
	loc := dom.NewLocator(nil)

	el, err := loc.Resolve(doc, dom.NewTarget("description", dom.ByLabel("Description")), nil)
	require.NoError(t, err)
	assert.Equal(t, "desc", el.Attr("id"))
}

func TestByTextMatchesInteractiveRolesOnly(t *testing.T) {
	doc := parse(t, `<html><body>
		<p>Next steps are documented here</p>
		<button id="next-btn">Next</button>
	</body></html>`)
	loc := dom.NewLocator(nil)

	el, err := loc.Resolve(doc, dom.NewTarget("next", dom.ByText("Next")), nil)
	require.NoError(t, err)
	assert.Equal(t, "next-btn", el.Attr("id"))
}

func TestPresentPredicateFindsHiddenFileInput(t *testing.T) {
	doc := parse(t, `<html><body>
		<input id="file" type="file" style="display:none">
	</body></html>`)
	loc := dom.NewLocator(nil)
	target := dom.NewTarget("file input", dom.ByXPath(`//input[@type='file']`))

	_, err := loc.Resolve(doc, target, nil)
	assert.Error(t, err, "default predicate must reject the styled-out input")

	el, err := loc.Resolve(doc, target, dom.Present)
	require.NoError(t, err)
	assert.Equal(t, "file", el.Attr("id"))
}

func TestResolveAllDeduplicatesAcrossStrategies(t *testing.T) {
	doc := parse(t, `<html><body>
		<div role="option" aria-label="Electronics">Electronics</div>
		<div role="option">Furniture</div>
	</body></html>`)
	loc := dom.NewLocator(nil)

	target := dom.NewTarget("options",
		dom.ByXPath(`//*[@role='option']`),
		dom.ByAttr("aria-label", "Electronics"),
	)
	all := loc.ResolveAll(doc, target, nil)
	require.Len(t, all, 2)
	assert.Equal(t, "Electronics", all[0].Text())
	assert.Equal(t, "Furniture", all[1].Text())
}

func TestUniqueXPathRoundTrips(t *testing.T) {
	doc := parse(t, `<html><body>
		<div><span></span><input aria-label="Title"></div>
	</body></html>`)
	loc := dom.NewLocator(nil)

	el, err := loc.Resolve(doc, dom.NewTarget("title", dom.ByAttr("aria-label", "Title")), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, el.XPath)
	assert.Contains(t, el.XPath, "input")
}
