package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atotto/clipboard"

	"github.com/entrhq/issuebridge/pkg/automation"
	"github.com/entrhq/issuebridge/pkg/browser"
	"github.com/entrhq/issuebridge/pkg/dom"
	"github.com/entrhq/issuebridge/pkg/intent"
	"github.com/entrhq/issuebridge/pkg/producer"
)

const trackerSession = "tracker"

// systemClipboard adapts the OS clipboard to automation.Clipboard.
type systemClipboard struct{}

func (systemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

func defaultProfileDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".issuebridge", "profile")
}

func runWatch(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("watch", "")
	headless := fs.Bool("headless", false, "Run the browser without a window (overrides settings)")
	profile := fs.String("profile", defaultProfileDir(), "Browser profile directory; keeps the Tracker login between runs")
	once := fs.Bool("once", false, "Process the pending intent once and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(*configPath, "watch", nil)
	if err != nil {
		return err
	}
	defer a.close()

	trackerURL, err := a.settings.TrackerURL()
	if err != nil {
		return err
	}
	if trackerURL == "" {
		return producer.ErrBaseURLMissing
	}
	matcher, err := a.settings.URLMatcher()
	if err != nil {
		return err
	}

	store, err := a.intentStore()
	if err != nil {
		return err
	}
	slot := intent.NewSlot(store)

	opts := automation.ConsumerOptions{
		Timings: a.timings,
		Matcher: matcher,
		Log:     a.log.With("consumer"),
		OnTransition: func(s automation.State) {
			fmt.Println(mutedStyle.Render("  → " + string(s)))
		},
	}
	if a.settings.ShouldCopyURLFallback() {
		opts.Clipboard = systemClipboard{}
	}
	consumer := automation.NewConsumer(slot, opts)

	sessions := browser.NewSessionManager()
	sessions.SetDriverOutput(os.Stderr)
	if err := sessions.Initialize(); err != nil {
		return err
	}
	defer func() {
		if err := sessions.Shutdown(); err != nil {
			a.log.Warnf("browser shutdown: %v", err)
		}
	}()

	session, err := sessions.StartSession(trackerSession, browser.SessionOptions{
		Headless:    *headless || a.settings.IsHeadless(),
		UserDataDir: *profile,
	})
	if err != nil {
		return err
	}
	doc := session.Document()

	w := &watcher{
		app:        a,
		consumer:   consumer,
		session:    session,
		trackerURL: trackerURL,
		wake:       make(chan string, 1),
		navigate:   make(chan struct{}, 1),
	}

	session.OnLoad(func(url string) {
		a.log.Debugf("page loaded: %s", url)
		notify(w.wake, url)
	})

	pending, err := slot.Prime(ctx)
	if err != nil {
		return err
	}
	unsubscribe := slot.OnChange(func(rec *intent.Record) {
		// the loop handles the navigation after any run in progress
		if consumer.Busy() {
			a.log.Infof("New intent %s arrived during a run, opening the Tracker once it ends", rec.ID)
		} else {
			a.log.Infof("New intent %s: %s", rec.ID, rec.Summary)
		}
		notify(w.navigate, struct{}{})
	})
	defer unsubscribe()

	fmt.Println(sectionStyle.Render("issuebridge watch"))
	row(os.Stdout, "tracker", trackerURL)
	row(os.Stdout, "store", a.storeLocation())
	row(os.Stdout, "profile", orNone(*profile))
	row(os.Stdout, "log", orNone(a.log.LogPath()))
	if pending != nil {
		row(os.Stdout, "pending", pending.Summary)
	}
	fmt.Println()

	if err := session.Navigate(trackerURL, browser.NavigateOptions{}); err != nil {
		return err
	}
	if *once {
		return w.process(ctx, doc)
	}

	go slot.Watch(ctx, a.timings.StorePollInterval, func(err error) {
		a.log.Warnf("intent store poll failed: %v", err)
	})

	return w.loop(ctx, doc)
}

type watcher struct {
	app        *app
	consumer   *automation.Consumer
	session    *browser.Session
	trackerURL string

	wake     chan string
	navigate chan struct{}
}

// notify queues v on ch unless a value is already queued.
func notify[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func (w *watcher) loop(ctx context.Context, doc dom.Document) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.navigate:
			w.app.log.Infof("Opening %s", w.trackerURL)
			if err := w.session.Navigate(w.trackerURL, browser.NavigateOptions{}); err != nil {
				w.app.log.Errorf("navigation failed: %v", err)
				fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
			}
		case <-w.wake:
			if err := w.process(ctx, doc); err != nil && ctx.Err() == nil {
				fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
			}
		}
	}
}

func (w *watcher) process(ctx context.Context, doc dom.Document) error {
	res, err := w.consumer.ProcessPending(ctx, doc)
	switch res.Outcome {
	case automation.OutcomeExpired:
		fmt.Println(warningStyle.Render("Pending intent expired: ") + res.Record.Summary)
	case automation.OutcomeWrongPage:
		fmt.Println(mutedStyle.Render("Not a Tracker page, intent left pending: " + doc.URL()))
	case automation.OutcomeProcessed:
		renderReport(os.Stdout, res.Report)
		fmt.Println()
	}
	return err
}
