package htmldom

import (
	"context"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/entrhq/issuebridge/pkg/dom"
)

// Element is a node of a Document. It keeps working after the node is
// detached, like a stale handle in a browser.
type Element struct {
	doc  *Document
	node *html.Node
}

var _ dom.Element = (*Element)(nil)

// Node returns the underlying node. Callers must not mutate it outside
// Document.Mutate.
func (e *Element) Node() *html.Node {
	return e.node
}

func (e *Element) QuerySelector(ctx context.Context, selector string) (dom.Element, error) {
	return e.doc.wrapFirst(e.node, selector)
}

func (e *Element) QuerySelectorAll(ctx context.Context, selector string) ([]dom.Element, error) {
	return e.doc.wrapAll(e.node, selector)
}

func (e *Element) TextContent(ctx context.Context) (string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	var b strings.Builder
	writeText(e.node, &b)
	return b.String(), nil
}

func writeText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(c, b)
	}
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	v, ok := attr(e.node, name)
	return v, ok, nil
}

func (e *Element) Closest(ctx context.Context, selector string) (dom.Element, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	e.doc.mu.Lock()
	var found *html.Node
	for n := e.node; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && sel.Match(n) {
			found = n
			break
		}
	}
	e.doc.mu.Unlock()

	if found == nil {
		return nil, nil
	}
	return e.doc.wrap(found), nil
}

func (e *Element) Parent(ctx context.Context) (dom.Element, error) {
	e.doc.mu.Lock()
	p := e.node.Parent
	e.doc.mu.Unlock()

	if p == nil || p.Type != html.ElementNode {
		return nil, nil
	}
	return e.doc.wrap(p), nil
}

// Click dispatches a bubbling click event and runs matching OnClick handlers.
func (e *Element) Click(ctx context.Context) error {
	e.doc.click(e.node)
	return nil
}

func (e *Element) Focus(ctx context.Context) error {
	e.doc.mu.Lock()
	e.doc.focused = e.node
	e.doc.mu.Unlock()

	e.doc.dispatch(e.node, "focus", false)
	return nil
}

// SetValue stores the value in the value attribute, then dispatches input
// and change.
func (e *Element) SetValue(ctx context.Context, value string) error {
	if err := e.Focus(ctx); err != nil {
		return err
	}

	e.doc.mu.Lock()
	setAttr(e.node, "value", value)
	e.doc.mu.Unlock()

	e.doc.dispatch(e.node, "input", true)
	e.doc.dispatch(e.node, "change", true)
	return nil
}

func (e *Element) Value(ctx context.Context) (string, error) {
	v, _, err := e.Attribute(ctx, "value")
	return v, err
}

func (e *Element) Describe(ctx context.Context) string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return describe(e.node)
}

func describe(n *html.Node) string {
	if n.Type != html.ElementNode {
		return "#node"
	}
	var b strings.Builder
	b.WriteString(n.Data)
	if id, ok := attr(n, "id"); ok && id != "" {
		b.WriteString("#" + id)
	}
	if class, ok := attr(n, "class"); ok {
		for _, c := range strings.Fields(class) {
			b.WriteString("." + c)
		}
	}
	if tid, ok := attr(n, "data-testid"); ok && tid != "" {
		fmt.Fprintf(&b, "[data-testid=%q]", tid)
	}
	return b.String()
}
