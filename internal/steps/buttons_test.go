package steps

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

func TestFindButtonByAccessibleName(t *testing.T) {
	doc := parse(t, `<html><body>
		<div aria-label="Next" role="button" id="acc">go</div>
		<button id="txt">Next</button>
	</body></html>`)

	el, ok := FindButton(dom.NewLocator(nil), doc, []string{"Next"})
	require.True(t, ok)
	assert.Equal(t, "acc", el.Attr("id"), "accessible-name tier must win over text tier")
}

func TestFindButtonByExactVisibleText(t *testing.T) {
	doc := parse(t, `<html><body>
		<button id="next-btn"> Next </button>
		<button id="other">Next step</button>
	</body></html>`)

	el, ok := FindButton(dom.NewLocator(nil), doc, []string{"Next"})
	require.True(t, ok)
	assert.Equal(t, "next-btn", el.Attr("id"))
}

func TestFindButtonPointerCursorFallback(t *testing.T) {
	doc := parse(t, `<html><body>
		<div onclick="submit()" id="clickable">
			<div style="cursor: pointer" id="leaf"><span>Publish</span></div>
		</div>
	</body></html>`)

	el, ok := FindButton(dom.NewLocator(nil), doc, []string{"Publish"})
	require.True(t, ok)
	// The leaf carries the text but is not itself clickable; the walk must
	// land on the onclick ancestor.
	assert.Equal(t, "clickable", el.Attr("id"))
}

func TestFindButtonTriesLabelsInOrder(t *testing.T) {
	doc := parse(t, `<html><body><button id="cont">Continue</button></body></html>`)

	el, ok := FindButton(dom.NewLocator(nil), doc, []string{"Next", "Continue"})
	require.True(t, ok)
	assert.Equal(t, "cont", el.Attr("id"))
}

func TestFindButtonNotFound(t *testing.T) {
	doc := parse(t, `<html><body><p>no buttons here</p></body></html>`)
	_, ok := FindButton(dom.NewLocator(nil), doc, []string{"Next"})
	assert.False(t, ok)
}

func TestIsDisabled(t *testing.T) {
	disabledClasses := []string{"disabled", "btn-disabled"}
	cases := []struct {
		name   string
		source string
		want   bool
	}{
		{"disabled attribute", `<button id="b" disabled>Next</button>`, true},
		{"aria-disabled", `<button id="b" aria-disabled="true">Next</button>`, true},
		{"disabled class", `<button id="b" class="x btn-disabled y">Next</button>`, true},
		{"enabled", `<button id="b">Next</button>`, false},
		{"aria-disabled false", `<button id="b" aria-disabled="false">Next</button>`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := parse(t, `<html><body>`+tc.source+`</body></html>`)
			el, err := dom.NewLocator(nil).Resolve(doc, dom.NewTarget("b", dom.ByXPath(`//button`)), nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, IsDisabled(el, disabledClasses))
		})
	}
}

func TestInvalidSectionsEnumeratesNamedFields(t *testing.T) {
	doc := parse(t, `<html><body>
		<input aria-invalid="true" aria-label="Price">
		<input aria-invalid="true" name="title">
		<input aria-invalid="true" name="title">
		<input aria-invalid="false" name="fine">
	</body></html>`)

	sections := InvalidSections(doc)
	assert.Equal(t, []string{"Price", "title"}, sections)
}
