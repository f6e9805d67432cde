// Package browser implements the dom.Page capability surface against a real
// Chrome tab via chromedp. Element actions address nodes by the unique XPath
// the dom package generated from the last snapshot; value assignment and
// event dispatch run as JavaScript so client-side frameworks observe them
// the same way they would observe a user.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/crosslister/postflow/internal/dom"
)

// Page drives one Chrome tab. The embedded chromedp context is the tab's
// lifetime; per-call contexts only bound individual operations.
type Page struct {
	tab context.Context
	log *zap.Logger

	mu      sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
	tmpDirs []string
}

// New attaches to an existing chromedp tab context, enabling DOM events so
// mutation subscriptions receive signals.
func New(tab context.Context, log *zap.Logger) (*Page, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Page{
		tab:  tab,
		log:  log.Named("browser"),
		subs: make(map[int]chan struct{}),
	}

	if err := chromedp.Run(tab,
		cdpdom.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Mutation events only flow after the document is requested.
			_, err := cdpdom.GetDocument().Do(ctx)
			return err
		}),
	); err != nil {
		return nil, fmt.Errorf("enable dom events: %w", err)
	}

	chromedp.ListenTarget(tab, func(ev any) {
		switch ev.(type) {
		case *cdpdom.EventChildNodeInserted,
			*cdpdom.EventChildNodeRemoved,
			*cdpdom.EventChildNodeCountUpdated,
			*cdpdom.EventAttributeModified,
			*cdpdom.EventCharacterDataModified,
			*cdpdom.EventDocumentUpdated:
			p.broadcast()
		}
	})
	return p, nil
}

// Navigate loads a URL and waits for the body to be ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Close removes temporary upload files. The tab itself is owned by the
// caller's allocator.
func (p *Page) Close() {
	p.mu.Lock()
	dirs := p.tmpDirs
	p.tmpDirs = nil
	p.mu.Unlock()
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			p.log.Warn("Could not remove upload scratch dir.", zap.String("dir", dir), zap.Error(err))
		}
	}
}

// run executes chromedp actions on the tab, bounded by the caller's context.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(p.tab, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Page) broadcast() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// -- dom.Page implementation --

func (p *Page) Snapshot(ctx context.Context) (*html.Node, error) {
	var source string
	if err := p.run(ctx, chromedp.OuterHTML("html", &source, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("capture document: %w", err)
	}
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (p *Page) BodyText(ctx context.Context) (string, error) {
	var text string
	if err := p.run(ctx, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return text, nil
}

func (p *Page) NodeCount(ctx context.Context) (int, error) {
	var count int
	if err := p.run(ctx, chromedp.Evaluate(`document.querySelectorAll('*').length`, &count)); err != nil {
		return 0, err
	}
	return count, nil
}

// withElement wraps a JS statement body so it runs against the element the
// xpath resolves to; el is in scope for the body.
const withElement = `(() => {
	const res = document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
	const el = res.singleNodeValue;
	if (!el) return false;
	%s
	return true;
})()`

func (p *Page) do(ctx context.Context, xpath, body string) error {
	var ok bool
	script := fmt.Sprintf(withElement, xpath, body)
	if err := p.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no node for %s: %w", xpath, dom.ErrElementNotFound)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, xpath string) error {
	return p.do(ctx, xpath, `el.scrollIntoView({block: 'center'}); el.click();`)
}

func (p *Page) Focus(ctx context.Context, xpath string) error {
	return p.do(ctx, xpath, `el.focus();`)
}

func (p *Page) Blur(ctx context.Context, xpath string) error {
	return p.do(ctx, xpath, `el.blur();`)
}

func (p *Page) Value(ctx context.Context, xpath string) (string, error) {
	script := fmt.Sprintf(`(() => {
		const res = document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
		const el = res.singleNodeValue;
		if (!el) return null;
		return el.value !== undefined ? String(el.value) : el.textContent;
	})()`, xpath)
	var value *string
	if err := p.run(ctx, chromedp.Evaluate(script, &value)); err != nil {
		return "", err
	}
	if value == nil {
		return "", fmt.Errorf("no node for %s: %w", xpath, dom.ErrElementNotFound)
	}
	return *value, nil
}

func (p *Page) SetValue(ctx context.Context, xpath, value string) error {
	// Assign through the prototype setter: frameworks that track the value
	// property directly would otherwise never see the change.
	body := fmt.Sprintf(`
		const proto = el.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
		const desc = Object.getOwnPropertyDescriptor(proto, 'value');
		if (desc && desc.set && (el.tagName === 'INPUT' || el.tagName === 'TEXTAREA')) {
			desc.set.call(el, %q);
		} else if (el.isContentEditable) {
			el.textContent = %q;
		} else {
			el.value = %q;
		}`, value, value, value)
	return p.do(ctx, xpath, body)
}

func (p *Page) DispatchInput(ctx context.Context, xpath string) error {
	return p.do(ctx, xpath, `el.dispatchEvent(new InputEvent('input', {bubbles: true, cancelable: true}));`)
}

func (p *Page) DispatchChange(ctx context.Context, xpath string) error {
	return p.do(ctx, xpath, `el.dispatchEvent(new Event('change', {bubbles: true, cancelable: true}));`)
}

// SetFiles materializes the payloads as temp files and assigns them to the
// file input through CDP, the only channel that can populate a file input.
func (p *Page) SetFiles(ctx context.Context, xpath string, files []dom.FilePayload) error {
	if len(files) == 0 {
		return nil
	}
	dir, err := os.MkdirTemp("", "postflow-upload-*")
	if err != nil {
		return fmt.Errorf("upload scratch dir: %w", err)
	}
	p.mu.Lock()
	p.tmpDirs = append(p.tmpDirs, dir)
	p.mu.Unlock()

	paths := make([]string, 0, len(files))
	for i, f := range files {
		name := f.Name
		if name == "" {
			name = fmt.Sprintf("photo-%d", i)
		}
		path := filepath.Join(dir, fmt.Sprintf("%d-%s", i, filepath.Base(name)))
		if err := os.WriteFile(path, f.Data, 0o600); err != nil {
			return fmt.Errorf("write upload file: %w", err)
		}
		paths = append(paths, path)
	}
	return p.run(ctx, chromedp.SetUploadFiles(xpath, paths, chromedp.BySearch))
}

func (p *Page) SubscribeMutations(context.Context) (<-chan struct{}, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	ch := make(chan struct{}, 16)
	p.subs[id] = ch
	cancel := func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
	return ch, cancel, nil
}

// ShowToast injects a dismissible transient notification into the page.
func (p *Page) ShowToast(ctx context.Context, message string) error {
	script := fmt.Sprintf(`(() => {
		const toast = document.createElement('div');
		toast.textContent = %q;
		toast.style.cssText = 'position:fixed;bottom:24px;right:24px;z-index:2147483647;' +
			'background:#1c1e21;color:#fff;padding:12px 16px;border-radius:8px;' +
			'font:14px/1.4 sans-serif;box-shadow:0 2px 12px rgba(0,0,0,.35);cursor:pointer;';
		toast.addEventListener('click', () => toast.remove());
		setTimeout(() => toast.remove(), 8000);
		document.body.appendChild(toast);
		return true;
	})()`, message)
	var ok bool
	return p.run(ctx, chromedp.Evaluate(script, &ok))
}
