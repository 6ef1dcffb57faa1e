package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/issuebridge/pkg/automation"
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)

	keyStyle = lipgloss.NewStyle().Width(22)
)

func section(w io.Writer, title string) {
	fmt.Fprintln(w, sectionStyle.Render(title))
}

func row(w io.Writer, key, value string) {
	fmt.Fprintf(w, "  %s%s\n", keyStyle.Render(key), value)
}

func mark(ok bool) string {
	if ok {
		return successStyle.Render("✓")
	}
	return errorStyle.Render("✗")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return mutedStyle.Render("(none)")
	}
	return s
}

func renderReport(w io.Writer, rep *automation.Report) {
	section(w, "Fill report "+rep.RecordID)

	states := make([]string, len(rep.States))
	for i, s := range rep.States {
		states[i] = string(s)
	}
	row(w, "states", strings.Join(states, " → "))

	switch {
	case rep.Ready.TimedOut:
		row(w, "readiness", warningStyle.Render("timed out, proceeded"))
	case rep.Ready.Ready:
		row(w, "readiness", infoStyle.Render(rep.Ready.Signal))
	}

	switch {
	case rep.FormAlreadyOpen:
		row(w, "create form", "already open")
	case rep.FormOpened:
		row(w, "create form", fmt.Sprintf("opened (%d click(s))", rep.TriggerClicks))
	case rep.FormTimedOut:
		row(w, "create form", warningStyle.Render(fmt.Sprintf("not detected after %d click(s)", rep.TriggerClicks)))
	}
	row(w, "pre-summary delay", rep.PreSummaryDelay.Round(time.Millisecond).String())

	for _, f := range []automation.Field{
		automation.FieldProject, automation.FieldIssueType,
		automation.FieldSummary, automation.FieldExternalURL,
	} {
		out, ok := rep.Fields[f]
		if !ok {
			continue
		}
		var status string
		switch {
		case out.Skipped:
			status = mutedStyle.Render("skipped: " + out.Note)
		case out.Filled:
			status = mark(true) + " " + mutedStyle.Render(out.Strategy)
			if out.Option != "" {
				status += " " + infoStyle.Render(out.Option)
			}
		default:
			status = mark(false) + " " + out.Note
		}
		row(w, string(f), status)
	}

	if rep.Err != nil {
		row(w, "error", errorStyle.Render(rep.Err.Error()))
	}
	if rep.Superseded {
		row(w, "slot cleared", infoStyle.Render("kept newer intent"))
	} else {
		row(w, "slot cleared", mark(rep.Cleared))
	}
}
