package browser

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/issuebridge/pkg/dom/pwdom"
)

// UpdateLastUsed updates the last-used timestamp to the current time.
func (s *Session) UpdateLastUsed() {
	s.mu.Lock()
	s.lastUsedAt = time.Now()
	s.mu.Unlock()
}

// LastUsedAt returns when the session was last used.
func (s *Session) LastUsedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsedAt
}

// CurrentURL returns the page URL as of the last navigation.
func (s *Session) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentURL
}

// Info returns a snapshot of the session's metadata.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		Name:       s.Name,
		CurrentURL: s.currentURL,
		Headless:   s.Headless,
		CreatedAt:  s.CreatedAt,
		LastUsedAt: s.lastUsedAt,
	}
}

// Navigate navigates the session's page to the specified URL.
func (s *Session) Navigate(url string, opts NavigateOptions) error {
	s.UpdateLastUsed()

	playwrightOpts := playwright.PageGotoOptions{}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		playwrightOpts.WaitUntil = &waitUntil
	}
	if opts.Timeout > 0 {
		playwrightOpts.Timeout = &opts.Timeout
	}

	if _, err := s.Page.Goto(url, playwrightOpts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	s.mu.Lock()
	s.currentURL = s.Page.URL()
	s.mu.Unlock()
	return nil
}

// Document returns the page as a dom.Document. The same instance is returned
// on every call so its mutation observer is installed once.
func (s *Session) Document() *pwdom.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsedAt = time.Now()
	if s.document == nil {
		s.document = pwdom.New(s.Page)
	}
	return s.document
}

// OnLoad registers fn to run after every page load of the session's page.
func (s *Session) OnLoad(fn func(url string)) {
	s.Page.OnLoad(func(p playwright.Page) {
		url := p.URL()
		s.mu.Lock()
		s.currentURL = url
		s.lastUsedAt = time.Now()
		s.mu.Unlock()
		fn(url)
	})
}

// Content returns the serialised HTML of the current page.
func (s *Session) Content() (string, error) {
	s.UpdateLastUsed()
	html, err := s.Page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return html, nil
}

func (s *Session) close() error {
	return closeAll(s.Page, s.Context, s.Browser)
}
