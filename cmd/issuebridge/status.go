package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/entrhq/issuebridge/pkg/config"
)

func runStatus(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("status", "")
	clearSlot := fs.Bool("clear", false, "Remove the pending intent")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(*configPath, "status", nil)
	if err != nil {
		return err
	}
	defer a.close()

	if *clearSlot {
		store, err := a.intentStore()
		if err != nil {
			return err
		}
		if err := store.Clear(ctx); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("✓ Pending intent cleared"))
		return nil
	}

	renderSettings(os.Stdout, a)
	fmt.Println()
	return renderPending(ctx, os.Stdout, a, time.Now())
}

func renderSettings(w io.Writer, a *app) {
	s := a.settings
	section(w, "Settings")
	row(w, "config", a.configLocation())
	row(w, "enabled", mark(s.IsEnabled()))

	tracker, err := s.TrackerURL()
	switch {
	case err != nil:
		row(w, "tracker", errorStyle.Render(err.Error()))
	case tracker == "":
		row(w, "tracker", warningStyle.Render("not configured"))
	default:
		row(w, "tracker", infoStyle.Render(tracker))
	}

	if m, err := s.URLMatcher(); err == nil {
		row(w, "tracker pages", orNone(strings.Join(m.Patterns(), ", ")))
	}
	row(w, "store", a.storeLocation())
	row(w, "headless", fmt.Sprint(s.IsHeadless()))
	row(w, "copy url fallback", fmt.Sprint(s.ShouldCopyURLFallback()))
	row(w, "timings", orNone(s.GetTimingsFile()))

	fmt.Fprintln(w)
	section(w, "Project mappings")
	data := s.Data()
	text, _ := data["project_mappings"].(string)
	mappings := config.ParseMappings(text)
	if len(mappings) == 0 {
		fmt.Fprintln(w, "  "+mutedStyle.Render("(none)"))
	}
	for _, m := range mappings {
		row(w, m.SourceID, infoStyle.Render(m.ProjectKey))
	}
}

func renderPending(ctx context.Context, w io.Writer, a *app, now time.Time) error {
	section(w, "Pending intent")
	store, err := a.intentStore()
	if err != nil {
		return err
	}
	rec, err := store.Get(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintln(w, "  "+mutedStyle.Render("(none)"))
		return nil
	}

	age := rec.Age(now).Round(time.Second)
	ageText := age.String()
	if rec.IsStale(now, a.timings.StalenessWindow) {
		ageText = warningStyle.Render(ageText + " (stale, will be discarded)")
	}

	row(w, "id", rec.ID)
	row(w, "summary", rec.Summary)
	row(w, "source", orNone(rec.SourceURL))
	row(w, "board project", orNone(rec.SourceContextName))
	row(w, "tracker project", orNone(rec.TargetProjectKey))
	row(w, "issue type", orNone(rec.IssueType))
	row(w, "age", ageText)
	return nil
}
