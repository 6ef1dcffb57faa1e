// Package dom defines the document surface the form automation runs against.
//
// Two implementations exist: pwdom drives a live Playwright page and htmldom
// holds an offline document parsed with golang.org/x/net/html. Lookups that find
// nothing return a nil Element and a nil error; an error always means the
// document could not be queried.
package dom

import "context"

// Element is a handle to one node. Handles can go stale when the host page
// re-renders, so callers re-query after every wait instead of holding them.
type Element interface {
	QuerySelector(ctx context.Context, selector string) (Element, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)

	// TextContent returns the concatenated text of the node and its descendants.
	TextContent(ctx context.Context) (string, error)
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	// Closest returns the nearest inclusive ancestor matching selector.
	Closest(ctx context.Context, selector string) (Element, error)
	Parent(ctx context.Context) (Element, error)

	Click(ctx context.Context) error
	Focus(ctx context.Context) error
	// SetValue focuses the input, assigns value through the native value
	// setter and dispatches one bubbling input event and one bubbling change
	// event, so framework-managed inputs observe the change.
	SetValue(ctx context.Context, value string) error
	Value(ctx context.Context) (string, error)

	// Describe returns a short tag#id.class rendering for logs.
	Describe(ctx context.Context) string
}

// Document is a page the automation can query and observe.
type Document interface {
	QuerySelector(ctx context.Context, selector string) (Element, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
	ElementByID(ctx context.Context, id string) (Element, error)

	// Observe subscribes to structural mutations of the document (child
	// additions and removals anywhere in the tree). The channel receives at
	// least one value after each burst of mutations; sends never block the
	// host. cancel releases the subscription.
	Observe(ctx context.Context) (changes <-chan struct{}, cancel func(), err error)

	URL() string
}

// QueryFirst runs selectors in order against doc and returns the first match
// with the selector that produced it.
func QueryFirst(ctx context.Context, doc Document, selectors ...string) (Element, string, error) {
	for _, sel := range selectors {
		el, err := doc.QuerySelector(ctx, sel)
		if err != nil {
			return nil, sel, err
		}
		if el != nil {
			return el, sel, nil
		}
	}
	return nil, "", nil
}
