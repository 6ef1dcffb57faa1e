// Package producer records issue-creation intents on behalf of a Board item.
package producer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/entrhq/issuebridge/pkg/intent"
	"github.com/entrhq/issuebridge/pkg/logging"
)

var (
	// ErrBaseURLMissing means the Tracker base URL is not configured. No
	// intent is written.
	ErrBaseURLMissing = errors.New("tracker base url is not configured")

	// ErrDisabled means the bridge is switched off in settings.
	ErrDisabled = errors.New("bridge is disabled")
)

var projectIDPattern = regexp.MustCompile(`/projects/(\d+)`)

// Settings is the configuration the producer reads.
// *config.SettingsSection implements it.
type Settings interface {
	IsEnabled() bool
	TrackerURL() (string, error)
	ResolveProjectKey(sourceProjectID string) (string, bool)
}

// SourceItem is the Board item an issue is being created for.
type SourceItem struct {
	Summary     string
	URL         string
	ContextName string
	IssueType   string
}

// Result is a written intent and the Tracker page that will consume it.
type Result struct {
	Record     *intent.Record
	TrackerURL string
}

// Options configures a Producer.
type Options struct {
	// StripTicketKey removes a leading "ABC-123:" style key from summaries.
	StripTicketKey bool
	Log            *logging.Logger
	Now            func() time.Time
}

// Producer writes intents into the shared slot.
type Producer struct {
	settings Settings
	store    intent.Store
	opts     Options
	log      *logging.Logger
}

// New creates a producer.
func New(settings Settings, store intent.Store, opts Options) *Producer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Log
	if log == nil {
		log = logging.NewWriterLogger("producer", nil)
	}
	return &Producer{settings: settings, store: store, opts: opts, log: log}
}

// SourceProjectID extracts the numeric Board project id from an item URL.
func SourceProjectID(sourceURL string) (string, bool) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", false
	}
	m := projectIDPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Create resolves the target project, writes the intent (replacing any
// pending one) and returns the Tracker URL to open.
func (p *Producer) Create(ctx context.Context, item SourceItem) (*Result, error) {
	if !p.settings.IsEnabled() {
		return nil, ErrDisabled
	}

	trackerURL, err := p.settings.TrackerURL()
	if err != nil {
		return nil, fmt.Errorf("invalid tracker base url: %w", err)
	}
	if trackerURL == "" {
		return nil, ErrBaseURLMissing
	}

	summary := intent.NormalizeSummary(item.Summary)
	if p.opts.StripTicketKey {
		summary = intent.StripTicketKey(summary)
	}

	rec, err := intent.New(summary, item.URL, p.opts.Now())
	if err != nil {
		return nil, err
	}
	rec.SourceContextName = strings.TrimSpace(item.ContextName)
	rec.IssueType = strings.TrimSpace(item.IssueType)

	if id, ok := SourceProjectID(rec.SourceURL); ok {
		if key, ok := p.settings.ResolveProjectKey(id); ok {
			rec.TargetProjectKey = key
			p.log.Infof("Board project %s maps to %s", id, key)
		} else {
			p.log.Infof("No mapping for Board project %s, project will not be preselected", id)
		}
	}

	if err := p.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store pending intent: %w", err)
	}
	p.log.Infof("Pending intent %s stored: %s", rec.ID, rec.Summary)

	return &Result{Record: rec, TrackerURL: trackerURL}, nil
}
