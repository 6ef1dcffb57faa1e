// Package htmldom is an offline dom.Document built on golang.org/x/net/html
// with CSS selectors from cascadia.
//
// Besides the read side used by the automation it exposes a small host API
// (SetInnerHTML, Remove, OnClick, AddEventListener) so a caller can play the
// part of the page: render markup in reaction to clicks, re-render a form
// after a selection and watch which events an input receives.
package htmldom

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/entrhq/issuebridge/pkg/dom"
)

// Event is delivered to listeners registered with AddEventListener.
type Event struct {
	Type   string
	Target *Element
}

// Listener handles an Event.
type Listener func(Event)

type clickHandler struct {
	selector cascadia.SelectorGroup
	fn       func(*Element)
}

// Document is a mutable HTML document safe for concurrent use.
type Document struct {
	mu        sync.Mutex
	root      *html.Node
	url       string
	focused   *html.Node
	listeners map[*html.Node]map[string][]Listener
	clicks    []clickHandler
	observers map[int]chan struct{}
	nextObs   int
}

var _ dom.Document = (*Document)(nil)

// Parse reads an HTML document. pageURL is what URL() reports.
func Parse(pageURL string, r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{
		root:      root,
		url:       pageURL,
		listeners: make(map[*html.Node]map[string][]Listener),
		observers: make(map[int]chan struct{}),
	}, nil
}

// ParseString is Parse over a string.
func ParseString(pageURL, markup string) (*Document, error) {
	return Parse(pageURL, strings.NewReader(markup))
}

// URL returns the page URL given at parse time or via SetURL.
func (d *Document) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

// SetURL changes the reported page URL, as a client-side navigation would.
func (d *Document) SetURL(u string) {
	d.mu.Lock()
	d.url = u
	d.mu.Unlock()
}

func (d *Document) QuerySelector(ctx context.Context, selector string) (dom.Element, error) {
	return d.wrapFirst(d.root, selector)
}

func (d *Document) QuerySelectorAll(ctx context.Context, selector string) ([]dom.Element, error) {
	return d.wrapAll(d.root, selector)
}

func (d *Document) ElementByID(ctx context.Context, id string) (dom.Element, error) {
	if id == "" {
		return nil, nil
	}
	d.mu.Lock()
	n := findNode(d.root, func(n *html.Node) bool {
		v, ok := attr(n, "id")
		return ok && v == id
	})
	d.mu.Unlock()
	if n == nil {
		return nil, nil
	}
	return d.wrap(n), nil
}

// Observe subscribes to child-list mutations made through the host API.
func (d *Document) Observe(ctx context.Context) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)

	d.mu.Lock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = ch
	d.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.observers, id)
			d.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// Mutate runs fn with exclusive access to the tree and then notifies
// observers.
func (d *Document) Mutate(fn func(root *html.Node)) {
	d.mu.Lock()
	fn(d.root)
	d.notifyLocked()
	d.mu.Unlock()
}

// SetInnerHTML replaces the children of every element matching selector with
// the parsed markup. It returns the number of elements updated.
func (d *Document) SetInnerHTML(selector, markup string) (int, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return 0, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	targets := cascadia.QueryAll(d.root, sel)
	for _, target := range targets {
		nodes, err := html.ParseFragment(strings.NewReader(markup), target)
		if err != nil {
			return 0, fmt.Errorf("failed to parse fragment: %w", err)
		}
		for c := target.FirstChild; c != nil; {
			next := c.NextSibling
			target.RemoveChild(c)
			c = next
		}
		for _, n := range nodes {
			target.AppendChild(n)
		}
	}
	if len(targets) > 0 {
		d.notifyLocked()
	}
	return len(targets), nil
}

// Remove detaches every element matching selector.
func (d *Document) Remove(selector string) (int, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return 0, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	targets := cascadia.QueryAll(d.root, sel)
	removed := 0
	for _, n := range targets {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
			removed++
		}
	}
	if removed > 0 {
		d.notifyLocked()
	}
	return removed, nil
}

// OnClick registers fn for clicks on, or inside, elements matching selector.
// fn receives the matching element and runs without the document lock held.
func (d *Document) OnClick(selector string, fn func(*Element)) error {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	d.mu.Lock()
	d.clicks = append(d.clicks, clickHandler{selector: sel, fn: fn})
	d.mu.Unlock()
	return nil
}

// AddEventListener registers fn for events of type typ reaching el. A nil el
// listens on the document, which every bubbling event reaches.
func (d *Document) AddEventListener(el *Element, typ string, fn Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := d.root
	if el != nil {
		n = el.node
	}
	if d.listeners[n] == nil {
		d.listeners[n] = make(map[string][]Listener)
	}
	d.listeners[n][typ] = append(d.listeners[n][typ], fn)
}

// Focused returns the element that last received focus, or nil.
func (d *Document) Focused() *Element {
	d.mu.Lock()
	n := d.focused
	d.mu.Unlock()
	if n == nil {
		return nil
	}
	return d.wrap(n)
}

// Render serialises the current tree.
func (d *Document) Render() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder
	if err := html.Render(&b, d.root); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return b.String(), nil
}

func (d *Document) notifyLocked() {
	for _, ch := range d.observers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// dispatch delivers an event to target and, when bubbles is set, to each
// ancestor up to the document.
func (d *Document) dispatch(target *html.Node, typ string, bubbles bool) {
	d.mu.Lock()
	var fns []Listener
	for n := target; n != nil; n = n.Parent {
		fns = append(fns, d.listeners[n][typ]...)
		if !bubbles {
			break
		}
	}
	d.mu.Unlock()

	ev := Event{Type: typ, Target: d.wrap(target)}
	for _, fn := range fns {
		fn(ev)
	}
}

func (d *Document) click(target *html.Node) {
	d.mu.Lock()
	type call struct {
		fn func(*Element)
		n  *html.Node
	}
	var calls []call
	for _, h := range d.clicks {
		for n := target; n != nil; n = n.Parent {
			if n.Type == html.ElementNode && h.selector.Match(n) {
				calls = append(calls, call{fn: h.fn, n: n})
				break
			}
		}
	}
	d.mu.Unlock()

	d.dispatch(target, "click", true)
	for _, c := range calls {
		c.fn(d.wrap(c.n))
	}
}

func (d *Document) wrap(n *html.Node) *Element {
	return &Element{doc: d, node: n}
}

func (d *Document) wrapFirst(scope *html.Node, selector string) (dom.Element, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	d.mu.Lock()
	n := cascadia.Query(scope, sel)
	d.mu.Unlock()
	if n == nil {
		return nil, nil
	}
	return d.wrap(n), nil
}

func (d *Document) wrapAll(scope *html.Node, selector string) ([]dom.Element, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	d.mu.Lock()
	nodes := cascadia.QueryAll(scope, sel)
	d.mu.Unlock()

	out := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, d.wrap(n))
	}
	return out, nil
}

func findNode(n *html.Node, pred func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && pred(c) {
			return c
		}
		if found := findNode(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}
