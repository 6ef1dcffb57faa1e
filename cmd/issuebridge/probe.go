package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/entrhq/issuebridge/pkg/automation"
	"github.com/entrhq/issuebridge/pkg/browser"
	"github.com/entrhq/issuebridge/pkg/dom"
	"github.com/entrhq/issuebridge/pkg/dom/htmldom"
	"github.com/entrhq/issuebridge/pkg/logging"
)

// probeResult is what one locator lookup found.
type probeResult struct {
	What     string
	Found    bool
	Strategy string
	Element  string
}

func runProbe(ctx context.Context, args []string) error {
	fs, _ := newFlagSet("probe", "<file.html | - | url>")
	live := fs.Bool("live", false, "Load the argument as a URL in a browser and probe the rendered page")
	profile := fs.String("profile", defaultProfileDir(), "Browser profile directory for -live")
	option := fs.String("option", "", "Option text to look for in an open dropdown")
	verbose := fs.Bool("v", false, "Print locator diagnostics")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected one page argument")
	}
	target := fs.Arg(0)

	var logOut io.Writer
	if *verbose {
		logOut = os.Stderr
	}
	locator := automation.NewLocator(logging.NewWriterLogger("probe", logOut))

	var (
		doc dom.Document
		err error
	)
	if *live {
		doc, err = liveDocument(target, *profile)
	} else {
		doc, err = fileDocument(target)
	}
	if err != nil {
		return err
	}

	section(os.Stdout, "Probe "+doc.URL())
	for _, r := range probeDocument(ctx, locator, doc, *option) {
		value := mark(r.Found)
		if r.Found {
			value += " " + r.Element + " " + mutedStyle.Render("via "+r.Strategy)
		}
		row(os.Stdout, r.What, value)
	}
	return nil
}

func fileDocument(path string) (dom.Document, error) {
	if path == "-" {
		return htmldom.Parse("stdin", os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return htmldom.Parse("file://"+path, f)
}

// liveDocument renders url in a browser and snapshots the result, so the
// browser can be closed before probing.
func liveDocument(url, profile string) (dom.Document, error) {
	sessions := browser.NewSessionManager()
	sessions.SetDriverOutput(os.Stderr)
	if err := sessions.Initialize(); err != nil {
		return nil, err
	}
	defer sessions.Shutdown()

	session, err := sessions.StartSession("probe", browser.SessionOptions{
		Headless:    true,
		UserDataDir: profile,
	})
	if err != nil {
		return nil, err
	}
	if err := session.Navigate(url, browser.NavigateOptions{WaitUntil: "networkidle"}); err != nil {
		return nil, err
	}
	markup, err := session.Content()
	if err != nil {
		return nil, err
	}
	return htmldom.Parse(session.CurrentURL(), strings.NewReader(markup))
}

// probeDocument runs every locator lookup the fill sequence uses against doc.
func probeDocument(ctx context.Context, l *automation.Locator, doc dom.Document, option string) []probeResult {
	out := make([]probeResult, 0, 7)
	add := func(what string, m automation.Match) {
		r := probeResult{What: what, Found: m.Found(), Strategy: m.Strategy}
		if m.Found() {
			r.Element = m.Element.Describe(ctx)
		}
		out = append(out, r)
	}

	if sel, ok := l.ShellPresent(ctx, doc); ok {
		out = append(out, probeResult{What: "app shell", Found: true, Strategy: sel, Element: sel})
	} else {
		out = append(out, probeResult{What: "app shell"})
	}
	add("create trigger", l.CreateTrigger(ctx, doc))
	add("summary", l.SummaryInput(ctx, doc))
	add("project picker", l.ProjectPicker(ctx, doc))
	add("issue type picker", l.TypePicker(ctx, doc))
	add("option", l.Option(ctx, doc, option))
	add("external url", l.ExternalURLField(ctx, doc))
	return out
}
