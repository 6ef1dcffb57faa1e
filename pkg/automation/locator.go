package automation

import (
	"context"
	"strings"

	"github.com/entrhq/issuebridge/pkg/dom"
	"github.com/entrhq/issuebridge/pkg/logging"
)

// Selectors for the Tracker's create flow. The create-trigger list is tried in
// order; earlier entries are the most specific.
var (
	CreateTriggerSelectors = []string{
		`button[data-testid="atlassian-navigation--create-button"]`,
		`button[data-testid="createGlobalItem"]`,
		`button[data-testid="navigation-apps-sidebar-global-create.ui.create-button--button"]`,
		`button[data-testid="global-create-button"]`,
		`a[data-testid="createGlobalItem"]`,
		`button[aria-label="Create"]`,
		`button[aria-label="Create issue"]`,
	}

	// NavigationSelectors mark the mounted application shell.
	NavigationSelectors = []string{
		`[data-testid="atlassian-navigation"]`,
		`nav[aria-label="Primary"]`,
		`#jira-frontend`,
		`[data-testid="global-navigation"]`,
	}

	// navRegionSelectors scope the text fallback for the create trigger.
	navRegionSelectors = []string{
		`[data-testid="atlassian-navigation"]`,
		`nav[aria-label="Primary"]`,
		`nav`,
		`body`,
	}
)

const (
	SummarySelector       = `input[name="summary"]`
	ProjectPickerSelector = `input[id^="project-"]`
	TypePickerSelector    = `input[id^="type-picker-"]`
	OptionSelector        = `[role="option"]`

	createTriggerText = "Create"
)

// Match is a located element and the strategy that found it. A zero Match
// means nothing was found.
type Match struct {
	Element  dom.Element
	Strategy string
}

// Found reports whether the match holds an element.
func (m Match) Found() bool {
	return m.Element != nil
}

// Locator finds the Tracker's form elements through ordered strategy chains.
// Every call queries the live document; nothing is cached.
type Locator struct {
	log *logging.Logger
}

// NewLocator creates a locator. DOM errors are logged to log and treated as
// "this strategy did not match".
func NewLocator(log *logging.Logger) *Locator {
	return &Locator{log: log}
}

type strategy struct {
	name string
	find func(ctx context.Context, doc dom.Document) (dom.Element, error)
}

func bySelector(sel string) strategy {
	return strategy{
		name: sel,
		find: func(ctx context.Context, doc dom.Document) (dom.Element, error) {
			return doc.QuerySelector(ctx, sel)
		},
	}
}

func (l *Locator) first(ctx context.Context, doc dom.Document, what string, chain []strategy) Match {
	for _, s := range chain {
		if ctx.Err() != nil {
			return Match{}
		}
		el, err := s.find(ctx, doc)
		if err != nil {
			l.log.Warnf("%s: strategy %s failed: %v", what, s.name, err)
			continue
		}
		if el != nil {
			return Match{Element: el, Strategy: s.name}
		}
	}
	return Match{}
}

// CreateTrigger finds the global "create issue" control.
func (l *Locator) CreateTrigger(ctx context.Context, doc dom.Document) Match {
	chain := make([]strategy, 0, len(CreateTriggerSelectors)+1)
	for _, sel := range CreateTriggerSelectors {
		chain = append(chain, bySelector(sel))
	}
	chain = append(chain, strategy{name: "text=" + createTriggerText, find: l.createByText})
	return l.first(ctx, doc, "create trigger", chain)
}

func (l *Locator) createByText(ctx context.Context, doc dom.Document) (dom.Element, error) {
	region, _, err := dom.QueryFirst(ctx, doc, navRegionSelectors...)
	if err != nil || region == nil {
		return nil, err
	}

	buttons, err := region.QuerySelectorAll(ctx, "button")
	if err != nil {
		return nil, err
	}
	for _, b := range buttons {
		text, err := b.TextContent(ctx)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) == createTriggerText {
			return b, nil
		}
	}
	return nil, nil
}

// ShellPresent reports whether any navigation landmark is mounted and which.
func (l *Locator) ShellPresent(ctx context.Context, doc dom.Document) (string, bool) {
	chain := make([]strategy, 0, len(NavigationSelectors))
	for _, sel := range NavigationSelectors {
		chain = append(chain, bySelector(sel))
	}
	m := l.first(ctx, doc, "navigation", chain)
	return m.Strategy, m.Found()
}

// SummaryInput finds the summary field. Its presence means the form is open.
func (l *Locator) SummaryInput(ctx context.Context, doc dom.Document) Match {
	return l.first(ctx, doc, "summary", []strategy{bySelector(SummarySelector)})
}

// ProjectPicker finds the project picker input.
func (l *Locator) ProjectPicker(ctx context.Context, doc dom.Document) Match {
	return l.first(ctx, doc, "project picker", []strategy{bySelector(ProjectPickerSelector)})
}

// TypePicker finds the issue-type picker input.
func (l *Locator) TypePicker(ctx context.Context, doc dom.Document) Match {
	return l.first(ctx, doc, "type picker", []strategy{bySelector(TypePickerSelector)})
}

// Option finds a dropdown option, preferring one whose text contains want
// (case-insensitive) and otherwise taking the first rendered option.
func (l *Locator) Option(ctx context.Context, doc dom.Document, want string) Match {
	want = strings.ToLower(strings.TrimSpace(want))
	return l.first(ctx, doc, "option", []strategy{
		{
			name: "option text contains " + want,
			find: func(ctx context.Context, doc dom.Document) (dom.Element, error) {
				if want == "" {
					return nil, nil
				}
				opts, err := doc.QuerySelectorAll(ctx, OptionSelector)
				if err != nil {
					return nil, err
				}
				for _, o := range opts {
					text, err := o.TextContent(ctx)
					if err != nil {
						continue
					}
					if strings.Contains(strings.ToLower(text), want) {
						return o, nil
					}
				}
				return nil, nil
			},
		},
		bySelector(OptionSelector),
	})
}

// ExternalURLField finds the external cross-reference input: first through a
// label mentioning both "external" and "url", then through an input whose
// name or data-testid contains "url".
func (l *Locator) ExternalURLField(ctx context.Context, doc dom.Document) Match {
	m := l.first(ctx, doc, "external url", []strategy{
		{name: "label", find: l.externalURLByLabel},
		bySelector(`input[name*="url" i]`),
		bySelector(`input[data-testid*="url" i]`),
	})
	if !m.Found() {
		l.logLabels(ctx, doc)
	}
	return m
}

func (l *Locator) externalURLByLabel(ctx context.Context, doc dom.Document) (dom.Element, error) {
	labels, err := doc.QuerySelectorAll(ctx, "label")
	if err != nil {
		return nil, err
	}
	for _, label := range labels {
		text, err := label.TextContent(ctx)
		if err != nil {
			continue
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if !strings.Contains(text, "external") || !strings.Contains(text, "url") {
			continue
		}

		if id, ok, err := label.Attribute(ctx, "for"); err == nil && ok && id != "" {
			input, err := doc.ElementByID(ctx, id)
			if err == nil && input != nil {
				l.log.Debugf("external url: resolved via label for=%q", id)
				return input, nil
			}
		}

		container, err := label.Closest(ctx, "[data-testid]")
		if err != nil || container == nil {
			container, err = label.Parent(ctx)
		}
		if err != nil || container == nil {
			continue
		}
		input, err := container.QuerySelector(ctx, "input")
		if err == nil && input != nil {
			l.log.Debugf("external url: resolved via input near label")
			return input, nil
		}
	}
	return nil, nil
}

// logLabels lists short labels on the page to help adjust the strategies.
func (l *Locator) logLabels(ctx context.Context, doc dom.Document) {
	labels, err := doc.QuerySelectorAll(ctx, "label")
	if err != nil {
		return
	}
	l.log.Infof("External URL field not found. Labels on page:")
	for _, label := range labels {
		text, err := label.TextContent(ctx)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" || len(text) >= 50 {
			continue
		}
		forAttr, _, _ := label.Attribute(ctx, "for")
		l.log.Infof("  label: %q for=%q", text, forAttr)
	}
}
