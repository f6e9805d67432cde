package steps

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/crosslister/postflow/internal/dom"
)

// FindButton locates a navigation/publish control by its labels using three
// tiers: accessible-name attributes, exact visible text over interactive
// roles, and finally pointer-cursor leaf nodes with a clickable-ancestor
// walk. The tiers exist because the target site's class names are generated
// and unstable; only the accessible names and text survive redesigns.
func FindButton(loc *dom.Locator, doc *html.Node, labels []string) (*dom.Element, bool) {
	for _, label := range labels {
		target := dom.NewTarget("button "+label,
			dom.ByAttr("aria-label", label),
			dom.ByAttr("value", label),
			dom.ByText(label),
		)
		if el, err := loc.Resolve(doc, target, nil); err == nil {
			return el, true
		}
	}
	for _, label := range labels {
		if el := pointerCursorMatch(doc, label); el != nil {
			return el, true
		}
	}
	return nil, false
}

// pointerCursorMatch scans nodes with at most two element children and
// pointer-cursor styling for the label text, then walks up to a clickable
// ancestor when the text node itself is not the clickable target.
func pointerCursorMatch(doc *html.Node, label string) *dom.Element {
	want := strings.ToLower(strings.TrimSpace(label))
	for _, n := range htmlquery.Find(doc, `//*[contains(@style,'pointer')]`) {
		if !dom.IsVisible(n) || childElementCount(n) > 2 {
			continue
		}
		if strings.ToLower(strings.TrimSpace(htmlquery.InnerText(n))) != want {
			continue
		}
		node := n
		if !isClickable(node) {
			if anc := clickableAncestor(node); anc != nil {
				node = anc
			}
		}
		return &dom.Element{Node: node, XPath: dom.UniqueXPath(node)}
	}
	return nil
}

func childElementCount(n *html.Node) int {
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			count++
		}
	}
	return count
}

func isClickable(n *html.Node) bool {
	switch strings.ToLower(n.Data) {
	case "a", "button":
		return true
	}
	switch strings.ToLower(htmlquery.SelectAttr(n, "role")) {
	case "button", "link", "menuitem":
		return true
	}
	if htmlquery.SelectAttr(n, "onclick") != "" {
		return true
	}
	return htmlquery.SelectAttr(n, "tabindex") != ""
}

func clickableAncestor(n *html.Node) *html.Node {
	for cur := n.Parent; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if isClickable(cur) {
			return cur
		}
	}
	return nil
}

// IsDisabled reports whether a resolved control is inactive: the disabled
// attribute, aria-disabled, or any platform disabled-class fragment.
func IsDisabled(el *dom.Element, disabledClasses []string) bool {
	if el == nil || el.Node == nil {
		return false
	}
	for _, attr := range el.Node.Attr {
		switch strings.ToLower(attr.Key) {
		case "disabled":
			return true
		case "aria-disabled":
			if strings.EqualFold(attr.Val, "true") {
				return true
			}
		case "class":
			classes := strings.ToLower(attr.Val)
			for _, frag := range disabledClasses {
				if strings.Contains(classes, strings.ToLower(frag)) {
					return true
				}
			}
		}
	}
	return false
}

// InvalidSections enumerates the labelled sections currently flagged with
// aria-invalid, so a disabled-button error can name the likely causes
// instead of stalling silently.
func InvalidSections(doc *html.Node) []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range htmlquery.Find(doc, `//*[@aria-invalid='true']`) {
		name := sectionName(n)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func sectionName(n *html.Node) string {
	for _, attr := range []string{"aria-label", "name", "placeholder", "id"} {
		if v := htmlquery.SelectAttr(n, attr); v != "" {
			return v
		}
	}
	// Nearest enclosing label text.
	for cur := n.Parent; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if strings.EqualFold(cur.Data, "label") {
			if text := strings.TrimSpace(htmlquery.InnerText(cur)); text != "" {
				return text
			}
		}
	}
	return "unnamed field"
}
