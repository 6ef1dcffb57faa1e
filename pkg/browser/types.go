package browser

import (
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/issuebridge/pkg/dom/pwdom"
)

// Session represents an active browser session with its associated resources.
type Session struct {
	// Name is the unique identifier for this session
	Name string

	// Browser is the Playwright browser instance. It is nil for sessions
	// launched on a persistent profile, which own only a context.
	Browser playwright.Browser

	// Context is the browser context (isolated session or persistent profile)
	Context playwright.BrowserContext

	// Page is the current active page
	Page playwright.Page

	// Headless indicates if the browser is running in headless mode
	Headless bool

	// CreatedAt is the timestamp when the session was created
	CreatedAt time.Time

	mu         sync.Mutex
	lastUsedAt time.Time
	currentURL string
	document   *pwdom.Document
}

// SessionOptions configures a new browser session.
type SessionOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// UserDataDir, when set, launches Chromium on a persistent profile so
	// cookies and logins survive restarts
	UserDataDir string

	// Viewport sets the initial viewport size
	Viewport *Viewport

	// Timeout sets the default timeout for operations (in milliseconds)
	Timeout float64
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// NavigateOptions configures page navigation behavior.
type NavigateOptions struct {
	// WaitUntil specifies when to consider navigation successful
	// Valid values: "load", "domcontentloaded", "networkidle", "commit"
	WaitUntil string

	// Timeout in milliseconds (0 means default)
	Timeout float64
}

// SessionInfo contains metadata about a browser session.
type SessionInfo struct {
	Name       string
	CurrentURL string
	Headless   bool
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Default values for sessions
const (
	DefaultTimeout        = 30000.0 // 30 seconds in milliseconds
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 800
	DefaultMaxSessions    = 2
	DefaultIdleTimeout    = 0 // seconds; 0 disables idle cleanup
)
