package intent

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// SlotKey is the fixed name of the single pending-intent slot.
const SlotKey = "pendingIssue"

// DefaultStalenessWindow is the maximum age of a record that may still be acted upon.
const DefaultStalenessWindow = 5 * time.Minute

// ErrInvalidRecord is returned when a record is missing a required field.
var ErrInvalidRecord = errors.New("intent: invalid record")

// Record describes an issue to be created in the Tracker on behalf of a Board item.
type Record struct {
	ID                string    `json:"id"`
	Summary           string    `json:"summary"`
	SourceURL         string    `json:"source_url"`
	SourceContextName string    `json:"source_context_name,omitempty"`
	TargetProjectKey  string    `json:"target_project_key,omitempty"`
	IssueType         string    `json:"issue_type,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// New builds a record with a fresh id, a normalised summary and createdAt set to now.
func New(summary, sourceURL string, now time.Time) (*Record, error) {
	rec := &Record{
		ID:        NewID(now),
		Summary:   NormalizeSummary(summary),
		SourceURL: strings.TrimSpace(sourceURL),
		CreatedAt: now,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// NewID returns a ULID whose timestamp component is now.
func NewID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

// Validate checks the required fields.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if r.Summary == "" {
		return fmt.Errorf("%w: summary is required", ErrInvalidRecord)
	}
	u, err := url.Parse(r.SourceURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: source url must be absolute, got %q", ErrInvalidRecord, r.SourceURL)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("%w: created_at is required", ErrInvalidRecord)
	}
	return nil
}

// HasProject reports whether project auto-selection should run.
func (r *Record) HasProject() bool {
	return strings.TrimSpace(r.TargetProjectKey) != ""
}

// HasIssueType reports whether issue-type auto-selection should run.
func (r *Record) HasIssueType() bool {
	return strings.TrimSpace(r.IssueType) != ""
}

// Age returns how long ago the record was created.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// IsStale reports whether the record is older than window at now.
func (r *Record) IsStale(now time.Time, window time.Duration) bool {
	if window <= 0 {
		window = DefaultStalenessWindow
	}
	return r.Age(now) > window
}

// NormalizeSummary trims the text and collapses runs of whitespace to one space.
func NormalizeSummary(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var ticketKeyPrefix = regexp.MustCompile(`^\[?[A-Z][A-Z0-9]*-\d+\]?\s*[:\-–]?\s*`)

// StripTicketKey removes a leading "ABC-123:" or "[ABC-123]" prefix from a summary.
// A summary consisting only of a key is returned unchanged.
func StripTicketKey(s string) string {
	stripped := ticketKeyPrefix.ReplaceAllString(s, "")
	if strings.TrimSpace(stripped) == "" {
		return s
	}
	return stripped
}
