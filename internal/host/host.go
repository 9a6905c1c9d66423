package host

import (
	"strings"
	"time"
)

// WindowIDNone is reported when OS focus leaves the browser entirely.
const WindowIDNone = -1

// Window state strings as reported by the browser.
const (
	WindowStateNormal    = "normal"
	WindowStateMaximized = "maximized"
	WindowStateMinimized = "minimized"
)

type Window struct {
	ID     int    `json:"id"`
	State  string `json:"state"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type Tab struct {
	ID          int    `json:"id"`
	WindowID    int    `json:"window_id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	OpenerTabID int    `json:"opener_tab_id"`
	Active      bool   `json:"active"`
}

type Screen struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NavigationCommit is a top-level navigation notification with the
// browser's transition classification.
type NavigationCommit struct {
	TabID          int
	FrameID        int
	URL            string
	TransitionType string
	Time           time.Time
}

// DownloadItem is the initial notification for a new download. The
// filename may not be final yet.
type DownloadItem struct {
	ID        int
	Filename  string
	URL       string
	MIME      string
	StartTime time.Time
}

// DownloadDelta carries only the fields that changed.
type DownloadDelta struct {
	ID       int
	Filename *string
	State    *string
	Error    *string
}

// Download terminal states.
const (
	DownloadComplete    = "complete"
	DownloadInterrupted = "interrupted"
)

// Host is the capability surface the recording engine consumes from the
// browser. Every call may fail or never complete; callers treat failures
// as degradation, not aborts.
type Host interface {
	CurrentWindow() (Window, error)
	GetWindow(id int) (Window, error)
	ScreenSize() (Screen, error)

	ActiveTab() (Tab, error)
	ActiveTabInWindow(windowID int) (Tab, error)
	GetTab(id int) (Tab, error)
	AllTabs() ([]Tab, error)

	// InjectDialogHook installs the native-dialog interception function
	// into the page's execution context so alert/confirm/prompt choices
	// are observed at the point of invocation.
	InjectDialogHook(tabID int) error

	// SendRecordingState is fire-and-forget: a surface that is gone,
	// restricted, or not yet loaded simply never acknowledges.
	SendRecordingState(tabID int, recording, paused bool) error

	CreateFindElementMenu() error
	RemoveFindElementMenu()

	// RequestFindElement asks a tab's capture surface to re-resolve and
	// log its cached right-clicked element.
	RequestFindElement(tabID int) error
}

// IsRestrictedURL reports whether injection/messaging failures for the
// URL are expected and should be suppressed rather than warned about.
func IsRestrictedURL(url string) bool {
	if strings.HasPrefix(url, "about:blank") {
		return false
	}
	return strings.HasPrefix(url, "chrome://") ||
		strings.HasPrefix(url, "chrome-extension://") ||
		strings.HasPrefix(url, "about:")
}
