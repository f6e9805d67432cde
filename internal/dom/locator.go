package dom

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// interactiveXPath matches the elements a user could plausibly activate.
// Broad on purpose; refinement happens in Go.
const interactiveXPath = `//a[@href] | //button | //input | //textarea | //select | //summary |
	//*[@role='button' or @role='link' or @role='tab' or @role='menuitem' or
	    @role='option' or @role='radio' or @role='checkbox']`

// Strategy is one way of finding candidate nodes for a logical target.
// Strategies are tried in priority order; the first visible match wins.
type Strategy interface {
	Find(doc *html.Node) []*html.Node
	String() string
}

type strategy struct {
	desc string
	find func(doc *html.Node) []*html.Node
}

func (s *strategy) Find(doc *html.Node) []*html.Node { return s.find(doc) }
func (s *strategy) String() string                   { return s.desc }

// ByXPath matches nodes with an exact XPath (or CSS-translated) expression.
func ByXPath(expr string) Strategy {
	return &strategy{
		desc: "xpath:" + expr,
		find: func(doc *html.Node) []*html.Node {
			nodes, err := htmlquery.QueryAll(doc, expr)
			if err != nil {
				return nil
			}
			return nodes
		},
	}
}

// ByAttr matches elements whose attribute equals the given value.
func ByAttr(attr, value string) Strategy {
	return &strategy{
		desc: fmt.Sprintf("attr:%s=%s", attr, value),
		find: func(doc *html.Node) []*html.Node {
			nodes, err := htmlquery.QueryAll(doc, fmt.Sprintf(`//*[@%s=%s]`, attr, xpathLiteral(value)))
			if err != nil {
				return nil
			}
			return nodes
		},
	}
}

// ByPlaceholder matches inputs and textareas whose placeholder contains the
// given substring, case-insensitively.
func ByPlaceholder(substr string) Strategy {
	want := strings.ToLower(substr)
	return &strategy{
		desc: "placeholder:" + substr,
		find: func(doc *html.Node) []*html.Node {
			candidates, err := htmlquery.QueryAll(doc, `//input[@placeholder] | //textarea[@placeholder] | //*[@contenteditable and @aria-placeholder]`)
			if err != nil {
				return nil
			}
			var out []*html.Node
			for _, n := range candidates {
				ph := htmlquery.SelectAttr(n, "placeholder")
				if ph == "" {
					ph = htmlquery.SelectAttr(n, "aria-placeholder")
				}
				if strings.Contains(strings.ToLower(ph), want) {
					out = append(out, n)
				}
			}
			return out
		},
	}
}

// ByLabel matches the input controlled by a label whose text contains the
// given string: first via the label's for attribute, then an input nested in
// the label, then the first input among the label's following siblings.
func ByLabel(text string) Strategy {
	want := strings.ToLower(text)
	return &strategy{
		desc: "label:" + text,
		find: func(doc *html.Node) []*html.Node {
			labels, err := htmlquery.QueryAll(doc, `//label | //*[@role='label'] | //span[text()] | //div[text()]`)
			if err != nil {
				return nil
			}
			var out []*html.Node
			for _, label := range labels {
				if !strings.Contains(strings.ToLower(strings.TrimSpace(htmlquery.InnerText(label))), want) {
					continue
				}
				if forID := htmlquery.SelectAttr(label, "for"); forID != "" {
					if n := htmlquery.FindOne(doc, fmt.Sprintf(`//*[@id=%s]`, xpathLiteral(forID))); n != nil {
						out = append(out, n)
						continue
					}
				}
				if n := firstControl(label); n != nil {
					out = append(out, n)
					continue
				}
				// Following siblings of the label or its parent container.
				for sib := label.NextSibling; sib != nil; sib = sib.NextSibling {
					if n := firstControl(sib); n != nil {
						out = append(out, n)
						break
					}
				}
			}
			return out
		},
	}
}

// ByText matches interactive elements whose visible text equals the given
// string, case-insensitively.
func ByText(text string) Strategy {
	want := strings.ToLower(strings.TrimSpace(text))
	return &strategy{
		desc: "text:" + text,
		find: func(doc *html.Node) []*html.Node {
			candidates := htmlquery.Find(doc, interactiveXPath)
			var out []*html.Node
			for _, n := range candidates {
				if strings.ToLower(strings.TrimSpace(htmlquery.InnerText(n))) == want {
					out = append(out, n)
				}
			}
			return out
		},
	}
}

// firstControl returns the first form control within the subtree rooted at n.
func firstControl(n *html.Node) *html.Node {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	switch strings.ToLower(n.Data) {
	case "input", "textarea", "select":
		return n
	}
	if strings.EqualFold(htmlquery.SelectAttr(n, "contenteditable"), "true") {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := firstControl(child); found != nil {
			return found
		}
	}
	return nil
}

// xpathLiteral quotes a string for embedding in an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `',"'",'`) + "')"
}

// Target is a logical element description: a name for diagnostics plus an
// ordered fallback chain of query strategies.
type Target struct {
	Name       string
	Strategies []Strategy
}

// NewTarget builds a target from strategies in priority order.
func NewTarget(name string, strategies ...Strategy) Target {
	return Target{Name: name, Strategies: strategies}
}

// Locator resolves targets against document snapshots. Pure read: resolving
// has no side effects on the page.
type Locator struct {
	log *zap.Logger
}

// NewLocator creates a locator. A nil logger is replaced with a no-op.
func NewLocator(log *zap.Logger) *Locator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Locator{log: log.Named("locator")}
}

// Resolve returns the first element matching any strategy, in strategy order,
// that also satisfies the visibility predicate. There is no scoring across
// strategies; the chain order is the priority.
func (l *Locator) Resolve(doc *html.Node, target Target, visible VisibilityPredicate) (*Element, error) {
	if visible == nil {
		visible = IsVisible
	}
	for _, strat := range target.Strategies {
		for _, n := range strat.Find(doc) {
			if n.Type != html.ElementNode || !visible(n) {
				continue
			}
			l.log.Debug("Resolved target.",
				zap.String("target", target.Name),
				zap.String("strategy", strat.String()))
			return &Element{Node: n, XPath: UniqueXPath(n)}, nil
		}
	}
	return nil, &NotFoundError{Target: target.Name, Attempts: 1}
}

// ResolveAll returns every visible match across all strategies, de-duplicated
// by node, preserving strategy then document order. Used to enumerate option
// lists (categories, conditions, groups).
func (l *Locator) ResolveAll(doc *html.Node, target Target, visible VisibilityPredicate) []*Element {
	if visible == nil {
		visible = IsVisible
	}
	seen := make(map[*html.Node]bool)
	var out []*Element
	for _, strat := range target.Strategies {
		for _, n := range strat.Find(doc) {
			if n.Type != html.ElementNode || seen[n] || !visible(n) {
				continue
			}
			seen[n] = true
			out = append(out, &Element{Node: n, XPath: UniqueXPath(n)})
		}
	}
	return out
}

// Present is a visibility predicate that accepts any element in the
// document. Used for controls that are deliberately styled out of layout,
// such as file inputs behind a styled upload button.
func Present(*html.Node) bool { return true }
