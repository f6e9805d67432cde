// Package dom resolves logical targets ("the title field", "the Next button")
// to concrete elements on a page the engine does not own, and waits for
// asynchronously rendered screens without busy-polling. All element access
// goes through the Page capability interface so the step library runs
// unchanged against a real browser or a test fixture.
package dom

import (
	"context"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// FilePayload is an in-memory file handed to a file input.
type FilePayload struct {
	Name string
	MIME string
	Data []byte
}

// Page is the minimal capability surface the engine needs from the underlying
// page. Selectors are unique XPath expressions produced by this package.
// Implementations: internal/browser (chromedp) and dom/domtest (fixture).
type Page interface {
	// Snapshot returns the current document parsed into an html.Node tree.
	Snapshot(ctx context.Context) (*html.Node, error)
	// URL returns the current page URL.
	URL(ctx context.Context) (string, error)
	// BodyText returns the rendered text of the document body.
	BodyText(ctx context.Context) (string, error)
	// NodeCount returns the number of element nodes in the document, used as
	// a weak post-navigation change signal.
	NodeCount(ctx context.Context) (int, error)

	Click(ctx context.Context, xpath string) error
	Focus(ctx context.Context, xpath string) error
	Blur(ctx context.Context, xpath string) error
	Value(ctx context.Context, xpath string) (string, error)
	SetValue(ctx context.Context, xpath, value string) error
	DispatchInput(ctx context.Context, xpath string) error
	DispatchChange(ctx context.Context, xpath string) error
	SetFiles(ctx context.Context, xpath string, files []FilePayload) error

	// SubscribeMutations returns a channel that receives a signal whenever
	// the document subtree mutates, plus a cancel function that must be
	// called to release the subscription.
	SubscribeMutations(ctx context.Context) (<-chan struct{}, func(), error)

	// ShowToast renders a dismissible transient notification in the page.
	ShowToast(ctx context.Context, message string) error
}

// Element is a resolved target: the snapshot node plus the unique XPath used
// to address it in subsequent Page actions.
type Element struct {
	Node  *html.Node
	XPath string
}

// Attr returns the value of an attribute on the resolved node.
func (e *Element) Attr(name string) string {
	if e == nil || e.Node == nil {
		return ""
	}
	return htmlquery.SelectAttr(e.Node, name)
}

// Text returns the trimmed inner text of the resolved node.
func (e *Element) Text() string {
	if e == nil || e.Node == nil {
		return ""
	}
	return strings.TrimSpace(htmlquery.InnerText(e.Node))
}

// attributeMap collects the attributes of a node into a map.
func attributeMap(n *html.Node) map[string]string {
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[a.Key] = a.Val
	}
	return attrs
}

// VisibilityPredicate decides whether a node counts as rendered and laid out,
// not merely present in the document.
type VisibilityPredicate func(n *html.Node) bool

// IsVisible is the default visibility predicate. It rejects nodes (or
// ancestors) carrying the hidden attribute, aria-hidden, hidden input types,
// or inline styles that remove the element from layout.
func IsVisible(n *html.Node) bool {
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		attrs := attributeMap(cur)
		if _, hidden := attrs["hidden"]; hidden {
			return false
		}
		if strings.EqualFold(attrs["aria-hidden"], "true") {
			return false
		}
		if cur == n && strings.EqualFold(attrs["type"], "hidden") {
			return false
		}
		if style, ok := attrs["style"]; ok && styleHides(style) {
			return false
		}
	}
	return true
}

func styleHides(style string) bool {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	return strings.Contains(s, "display:none") ||
		strings.Contains(s, "visibility:hidden") ||
		strings.Contains(s, "width:0") && strings.Contains(s, "height:0")
}
