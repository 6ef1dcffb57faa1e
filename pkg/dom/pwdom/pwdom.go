// Package pwdom adapts a live Playwright page to dom.Document.
//
// Element operations run as small in-page scripts, not Playwright's
// auto-waiting helpers; an operation on a detached node fails fast.
package pwdom

import (
	"context"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/issuebridge/pkg/dom"
)

const bindingName = "__issuebridgeMutated"

const observerScript = `(() => {
  if (window.__issuebridgeObserver) return;
  let pending = false;
  window.__issuebridgeObserver = new MutationObserver(() => {
    if (pending) return;
    pending = true;
    queueMicrotask(() => {
      pending = false;
      try { window.` + bindingName + `(); } catch (e) {}
    });
  });
  window.__issuebridgeObserver.observe(document, { childList: true, subtree: true });
})()`

const (
	jsClick       = `el => el.click()`
	jsFocus       = `el => el.focus()`
	jsValue       = `el => (el.value === undefined || el.value === null) ? '' : String(el.value)`
	jsClosest     = `(el, sel) => el.closest(sel)`
	jsParent      = `el => el.parentElement`
	jsAttribute   = `(el, name) => el.hasAttribute(name) ? el.getAttribute(name) : null`
	jsTextContent = `el => el.textContent || ''`
	jsDescribe    = `el => {
  let s = el.tagName.toLowerCase();
  if (el.id) s += '#' + el.id;
  for (const c of el.classList) s += '.' + c;
  const tid = el.getAttribute('data-testid');
  if (tid) s += '[data-testid="' + tid + '"]';
  return s;
}`
	jsSetValue = `(el, value) => {
  el.focus();
  const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
  const desc = Object.getOwnPropertyDescriptor(proto, 'value');
  if (desc && desc.set) { desc.set.call(el, value); } else { el.value = value; }
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
}`
)

// Document wraps a Playwright page.
type Document struct {
	page playwright.Page

	installOnce sync.Once
	installErr  error

	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

var _ dom.Document = (*Document)(nil)

// New wraps page. The mutation observer is installed on first Observe.
func New(page playwright.Page) *Document {
	return &Document{page: page, subs: make(map[int]chan struct{})}
}

// Page returns the wrapped page.
func (d *Document) Page() playwright.Page {
	return d.page
}

func (d *Document) URL() string {
	return d.page.URL()
}

func (d *Document) QuerySelector(ctx context.Context, selector string) (dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := d.page.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return wrap(h), nil
}

func (d *Document) QuerySelectorAll(ctx context.Context, selector string) ([]dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hs, err := d.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("query all %q: %w", selector, err)
	}
	return wrapAll(hs), nil
}

func (d *Document) ElementByID(ctx context.Context, id string) (dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	h, err := d.page.EvaluateHandle(`id => document.getElementById(id)`, id)
	if err != nil {
		return nil, fmt.Errorf("get element by id %q: %w", id, err)
	}
	return wrap(h.AsElement()), nil
}

// Observe installs the page-side MutationObserver once, then registers a
// subscriber. The observer survives navigations through an init script.
func (d *Document) Observe(ctx context.Context) (<-chan struct{}, func(), error) {
	d.installOnce.Do(func() {
		d.installErr = d.install()
	})
	if d.installErr != nil {
		return nil, nil, d.installErr
	}

	ch := make(chan struct{}, 1)
	d.mu.Lock()
	id := d.next
	d.next++
	d.subs[id] = ch
	d.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

func (d *Document) install() error {
	err := d.page.ExposeFunction(bindingName, func(args ...interface{}) interface{} {
		d.broadcast()
		return nil
	})
	if err != nil {
		return fmt.Errorf("expose mutation binding: %w", err)
	}

	script := observerScript
	if err := d.page.AddInitScript(playwright.Script{Content: &script}); err != nil {
		return fmt.Errorf("add observer init script: %w", err)
	}
	if _, err := d.page.Evaluate(observerScript); err != nil {
		return fmt.Errorf("install mutation observer: %w", err)
	}
	return nil
}

func (d *Document) broadcast() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Element wraps a Playwright element handle.
type Element struct {
	h playwright.ElementHandle
}

var _ dom.Element = (*Element)(nil)

func wrap(h playwright.ElementHandle) dom.Element {
	if h == nil {
		return nil
	}
	return &Element{h: h}
}

func wrapAll(hs []playwright.ElementHandle) []dom.Element {
	out := make([]dom.Element, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			out = append(out, &Element{h: h})
		}
	}
	return out
}

func (e *Element) QuerySelector(ctx context.Context, selector string) (dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := e.h.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return wrap(h), nil
}

func (e *Element) QuerySelectorAll(ctx context.Context, selector string) ([]dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hs, err := e.h.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("query all %q: %w", selector, err)
	}
	return wrapAll(hs), nil
}

func (e *Element) TextContent(ctx context.Context) (string, error) {
	return e.evalString(ctx, jsTextContent)
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, err := e.h.Evaluate(jsAttribute, name)
	if err != nil {
		return "", false, fmt.Errorf("read attribute %q: %w", name, err)
	}
	s, ok := v.(string)
	return s, ok, nil
}

func (e *Element) Closest(ctx context.Context, selector string) (dom.Element, error) {
	return e.evalElement(ctx, jsClosest, selector)
}

func (e *Element) Parent(ctx context.Context) (dom.Element, error) {
	return e.evalElement(ctx, jsParent)
}

func (e *Element) Click(ctx context.Context) error {
	return e.run(ctx, "click", jsClick)
}

func (e *Element) Focus(ctx context.Context) error {
	return e.run(ctx, "focus", jsFocus)
}

func (e *Element) SetValue(ctx context.Context, value string) error {
	return e.run(ctx, "set value", jsSetValue, value)
}

func (e *Element) Value(ctx context.Context) (string, error) {
	return e.evalString(ctx, jsValue)
}

func (e *Element) Describe(ctx context.Context) string {
	s, err := e.evalString(ctx, jsDescribe)
	if err != nil {
		return "<detached>"
	}
	return s
}

func (e *Element) run(ctx context.Context, what, script string, args ...interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := e.h.Evaluate(script, args...); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func (e *Element) evalString(ctx context.Context, script string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := e.h.Evaluate(script)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func (e *Element) evalElement(ctx context.Context, script string, args ...interface{}) (dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := e.h.EvaluateHandle(script, args...)
	if err != nil {
		return nil, err
	}
	return wrap(h.AsElement()), nil
}
