package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/entrhq/issuebridge/pkg/producer"
)

func runCreate(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("create", "")
	summary := fs.String("summary", "", "Issue summary, usually the Board item title (required)")
	sourceURL := fs.String("url", "", "Board item URL; its /projects/<id> segment selects the Tracker project")
	contextName := fs.String("context", "", "Board project name, for display")
	issueType := fs.String("type", "", "Issue type to preselect, e.g. Bug")
	stripKey := fs.Bool("strip-key", false, "Remove a leading ticket key such as \"ABC-123:\" from the summary")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *summary == "" && fs.NArg() > 0 {
		*summary = fs.Arg(0)
	}

	a, err := openApp(*configPath, "producer", nil)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.intentStore()
	if err != nil {
		return err
	}
	p := producer.New(a.settings, store, producer.Options{
		StripTicketKey: *stripKey,
		Log:            a.log,
	})
	res, err := p.Create(ctx, producer.SourceItem{
		Summary:     *summary,
		URL:         *sourceURL,
		ContextName: *contextName,
		IssueType:   *issueType,
	})
	if err != nil {
		return err
	}

	rec := res.Record
	fmt.Println(successStyle.Render("✓ Pending intent stored"))
	row(os.Stdout, "id", rec.ID)
	row(os.Stdout, "summary", rec.Summary)
	row(os.Stdout, "source", orNone(rec.SourceURL))
	row(os.Stdout, "project", orNone(rec.TargetProjectKey))
	row(os.Stdout, "issue type", orNone(rec.IssueType))
	row(os.Stdout, "expires", rec.CreatedAt.Add(a.timings.StalenessWindow).Format(time.Kitchen))
	fmt.Println()
	fmt.Println("Open " + infoStyle.Render(res.TrackerURL) + " in the watched browser to fill the form.")
	return nil
}
