package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Timings is the single table of delays used by the automation. The Tracker
// gives no completion signal for "selection applied and form re-rendered", so
// fixed windows stand in for one; keeping them here lets them be tuned without
// touching sequencing code.
type Timings struct {
	// StalenessWindow is the maximum age of a pending intent that is still acted on.
	StalenessWindow time.Duration `yaml:"staleness_window"`

	// ReadySettle is waited after the Tracker shell is detected.
	ReadySettle time.Duration `yaml:"ready_settle"`
	// ReadyTimeout bounds the readiness wait; expiry is not an error.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
	// ReadyPollInterval re-evaluates readiness when no mutation arrives.
	ReadyPollInterval time.Duration `yaml:"ready_poll_interval"`

	// FormPollInterval is the poll period while waiting for the create form.
	FormPollInterval time.Duration `yaml:"form_poll_interval"`
	// FormOpenTimeout bounds the create-form wait; expiry is not an error.
	FormOpenTimeout time.Duration `yaml:"form_open_timeout"`
	// FormRetryAfter is when the single retry click happens.
	FormRetryAfter time.Duration `yaml:"form_retry_after"`
	// FormAlreadyOpenSettle is waited when the form was open before we clicked.
	FormAlreadyOpenSettle time.Duration `yaml:"form_already_open_settle"`
	// FormDetectedSettle is waited after the form appears.
	FormDetectedSettle time.Duration `yaml:"form_detected_settle"`

	// OptionRenderDelay is waited between typing into a picker and clicking an option.
	OptionRenderDelay time.Duration `yaml:"option_render_delay"`
	// PickerStepDelay is the whole window a picker step occupies, covering the
	// re-render its selection may trigger.
	PickerStepDelay time.Duration `yaml:"picker_step_delay"`
	// URLAfterSummary separates the summary fill from the external-link fill.
	URLAfterSummary time.Duration `yaml:"url_after_summary"`

	// StorePollInterval is how often the watcher re-reads the intent store.
	StorePollInterval time.Duration `yaml:"store_poll_interval"`
}

// DefaultTimings returns the production delay table.
func DefaultTimings() Timings {
	return Timings{
		StalenessWindow:       5 * time.Minute,
		ReadySettle:           1500 * time.Millisecond,
		ReadyTimeout:          15 * time.Second,
		ReadyPollInterval:     500 * time.Millisecond,
		FormPollInterval:      500 * time.Millisecond,
		FormOpenTimeout:       15 * time.Second,
		FormRetryAfter:        3 * time.Second,
		FormAlreadyOpenSettle: 500 * time.Millisecond,
		FormDetectedSettle:    1500 * time.Millisecond,
		OptionRenderDelay:     1 * time.Second,
		PickerStepDelay:       2 * time.Second,
		URLAfterSummary:       500 * time.Millisecond,
		StorePollInterval:     1 * time.Second,
	}
}

// LoadTimings reads YAML overrides from path on top of the defaults. An empty
// path or a missing file yields the defaults.
func LoadTimings(path string) (Timings, error) {
	t := DefaultTimings()
	if path == "" {
		return t, nil
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return t, fmt.Errorf("failed to read timings file: %w", err)
	}
	if err := yaml.Unmarshal(b, &t); err != nil {
		return t, fmt.Errorf("failed to parse timings file %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("invalid timings in %s: %w", path, err)
	}
	return t, nil
}

// Validate checks the table for values the sequencer cannot honour.
func (t Timings) Validate() error {
	fields := map[string]time.Duration{
		"staleness_window":         t.StalenessWindow,
		"ready_settle":             t.ReadySettle,
		"ready_timeout":            t.ReadyTimeout,
		"ready_poll_interval":      t.ReadyPollInterval,
		"form_poll_interval":       t.FormPollInterval,
		"form_open_timeout":        t.FormOpenTimeout,
		"form_retry_after":         t.FormRetryAfter,
		"form_already_open_settle": t.FormAlreadyOpenSettle,
		"form_detected_settle":     t.FormDetectedSettle,
		"option_render_delay":      t.OptionRenderDelay,
		"picker_step_delay":        t.PickerStepDelay,
		"url_after_summary":        t.URLAfterSummary,
		"store_poll_interval":      t.StorePollInterval,
	}
	for name, d := range fields {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}
	if t.ReadyPollInterval == 0 || t.FormPollInterval == 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if t.OptionRenderDelay > t.PickerStepDelay {
		return fmt.Errorf("option_render_delay (%v) cannot exceed picker_step_delay (%v)", t.OptionRenderDelay, t.PickerStepDelay)
	}
	if t.FormRetryAfter >= t.FormOpenTimeout {
		return fmt.Errorf("form_retry_after (%v) must be below form_open_timeout (%v)", t.FormRetryAfter, t.FormOpenTimeout)
	}
	return nil
}

// Scaled returns a copy with every delay multiplied by factor, except the
// staleness window which is a wall-clock age and stays as is.
func (t Timings) Scaled(factor float64) Timings {
	scale := func(d time.Duration) time.Duration {
		return time.Duration(float64(d) * factor)
	}
	out := t
	out.ReadySettle = scale(t.ReadySettle)
	out.ReadyTimeout = scale(t.ReadyTimeout)
	out.ReadyPollInterval = scale(t.ReadyPollInterval)
	out.FormPollInterval = scale(t.FormPollInterval)
	out.FormOpenTimeout = scale(t.FormOpenTimeout)
	out.FormRetryAfter = scale(t.FormRetryAfter)
	out.FormAlreadyOpenSettle = scale(t.FormAlreadyOpenSettle)
	out.FormDetectedSettle = scale(t.FormDetectedSettle)
	out.OptionRenderDelay = scale(t.OptionRenderDelay)
	out.PickerStepDelay = scale(t.PickerStepDelay)
	out.URLAfterSummary = scale(t.URLAfterSummary)
	out.StorePollInterval = scale(t.StorePollInterval)
	return out
}
