// Package domtest provides a fixture-backed implementation of dom.Page so the
// step library and orchestrator can be exercised without a browser. The page
// holds a mutable HTML document; behavior hooks let tests script screen
// transitions and form reformatting in response to engine actions.
package domtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/crosslister/postflow/internal/dom"
)

// Page is an in-memory dom.Page. All methods are safe for concurrent use.
type Page struct {
	mu          sync.Mutex
	doc         *html.Node
	url         string
	values      map[string]string
	files       map[string][]dom.FilePayload
	events      []string
	toasts      []string
	subscribers map[int]chan struct{}
	nextSub     int

	// OnClick runs after a click is recorded, outside the page lock, so it
	// may mutate the page (replace HTML, set attributes) like a real app
	// reacting to user input.
	OnClick func(p *Page, el *html.Node)
	// OnChange runs after a change event is dispatched, outside the lock.
	// Tests use it to emulate input reformatting such as currency masking.
	OnChange func(p *Page, xpath string)
}

// New parses the HTML source into a fixture page.
func New(source string) (*Page, error) {
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("parse fixture html: %w", err)
	}
	return &Page{
		doc:         doc,
		url:         "https://marketplace.example/create/listing",
		values:      make(map[string]string),
		files:       make(map[string][]dom.FilePayload),
		subscribers: make(map[int]chan struct{}),
	}, nil
}

// MustNew is New for test setup; it panics on a malformed fixture.
func MustNew(source string) *Page {
	p, err := New(source)
	if err != nil {
		panic(err)
	}
	return p
}

// SetHTML replaces the document and notifies mutation subscribers, emulating
// a client-side screen transition.
func (p *Page) SetHTML(source string) error {
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return fmt.Errorf("parse fixture html: %w", err)
	}
	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
	p.notify()
	return nil
}

// SetURL sets the reported page URL, emulating a navigation.
func (p *Page) SetURL(u string) {
	p.mu.Lock()
	p.url = u
	p.mu.Unlock()
}

// Events returns the recorded action log in dispatch order.
func (p *Page) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	copy(out, p.events)
	return out
}

// EventsFor filters the action log to one element's xpath.
func (p *Page) EventsFor(xpath string) []string {
	var out []string
	for _, ev := range p.Events() {
		if strings.HasSuffix(ev, ":"+xpath) {
			out = append(out, strings.SplitN(ev, ":", 2)[0])
		}
	}
	return out
}

// Toasts returns the rendered notifications.
func (p *Page) Toasts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.toasts))
	copy(out, p.toasts)
	return out
}

// Files returns the payloads assigned to a file input.
func (p *Page) Files(xpath string) []dom.FilePayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.files[xpath]
}

// SetValueDirect overwrites a stored value without recording an event, for
// hooks that emulate the application rewriting its own fields.
func (p *Page) SetValueDirect(xpath, value string) {
	p.mu.Lock()
	p.values[xpath] = value
	p.mu.Unlock()
}

func (p *Page) record(kind, xpath string) {
	p.mu.Lock()
	p.events = append(p.events, kind+":"+xpath)
	p.mu.Unlock()
}

func (p *Page) find(xpath string) (*html.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := htmlquery.Query(p.doc, xpath)
	if err != nil {
		return nil, fmt.Errorf("fixture query %q: %w", xpath, err)
	}
	if n == nil {
		return nil, fmt.Errorf("fixture: no node for %q: %w", xpath, dom.ErrElementNotFound)
	}
	return n, nil
}

func (p *Page) notify() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// -- dom.Page implementation --

func (p *Page) Snapshot(context.Context) (*html.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc, nil
}

func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) BodyText(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	body := htmlquery.FindOne(p.doc, "//body")
	if body == nil {
		return "", nil
	}
	return htmlquery.InnerText(body), nil
}

func (p *Page) NodeCount(context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(htmlquery.Find(p.doc, "//*")), nil
}

func (p *Page) Click(_ context.Context, xpath string) error {
	n, err := p.find(xpath)
	if err != nil {
		return err
	}
	p.record("click", xpath)
	if p.OnClick != nil {
		p.OnClick(p, n)
	}
	return nil
}

func (p *Page) Focus(_ context.Context, xpath string) error {
	if _, err := p.find(xpath); err != nil {
		return err
	}
	p.record("focus", xpath)
	return nil
}

func (p *Page) Blur(_ context.Context, xpath string) error {
	if _, err := p.find(xpath); err != nil {
		return err
	}
	p.record("blur", xpath)
	return nil
}

func (p *Page) Value(_ context.Context, xpath string) (string, error) {
	n, err := p.find(xpath)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.values[xpath]; ok {
		return v, nil
	}
	return htmlquery.SelectAttr(n, "value"), nil
}

func (p *Page) SetValue(_ context.Context, xpath, value string) error {
	if _, err := p.find(xpath); err != nil {
		return err
	}
	p.mu.Lock()
	p.values[xpath] = value
	p.mu.Unlock()
	return nil
}

func (p *Page) DispatchInput(_ context.Context, xpath string) error {
	if _, err := p.find(xpath); err != nil {
		return err
	}
	p.record("input", xpath)
	return nil
}

func (p *Page) DispatchChange(_ context.Context, xpath string) error {
	if _, err := p.find(xpath); err != nil {
		return err
	}
	p.record("change", xpath)
	if p.OnChange != nil {
		p.OnChange(p, xpath)
	}
	return nil
}

func (p *Page) SetFiles(_ context.Context, xpath string, files []dom.FilePayload) error {
	if _, err := p.find(xpath); err != nil {
		return err
	}
	p.mu.Lock()
	p.files[xpath] = append([]dom.FilePayload(nil), files...)
	p.mu.Unlock()
	p.record("files", xpath)
	return nil
}

func (p *Page) SubscribeMutations(context.Context) (<-chan struct{}, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	ch := make(chan struct{}, 16)
	p.subscribers[id] = ch
	cancel := func() {
		p.mu.Lock()
		delete(p.subscribers, id)
		p.mu.Unlock()
	}
	return ch, cancel, nil
}

func (p *Page) ShowToast(_ context.Context, message string) error {
	p.mu.Lock()
	p.toasts = append(p.toasts, message)
	p.mu.Unlock()
	return nil
}
