package tracker

import (
	"log"
	"strings"
	"sync"

	"webrecorder/backend/internal/event"
	"webrecorder/backend/internal/host"
	"webrecorder/backend/internal/locator"
	"webrecorder/backend/internal/session"
)

// FramePathSeparator joins nested-document names, outermost to innermost.
// The serializer emits the joined path verbatim.
const FramePathSeparator = "=>"

// Tracker is the focus state machine. It owns the currently focused
// window/tab and the active frame chain, and emits synthetic
// context-switch events into the session when focus crosses a frame or
// window boundary. Window shape changes are edge-triggered: repeated
// observations of the same shape emit nothing.
type Tracker struct {
	mu   sync.Mutex
	sess *session.Session
	host host.Host

	currentWindowID int
	activeTabID     int
	windowState     string
	frameChain      []string
}

func New(sess *session.Session, h host.Host) *Tracker {
	return &Tracker{
		sess:            sess,
		host:            h,
		currentWindowID: host.WindowIDNone,
		activeTabID:     -1,
	}
}

// Reset seeds the tracker with the initiating context of a new session.
func (t *Tracker) Reset(info session.StartInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentWindowID = info.WindowID
	t.activeTabID = info.TabID
	t.windowState = info.WindowState
	t.frameChain = nil
}

// WindowFocusChanged handles a browser window focus notification. Focus
// moving to no window at all is ignored until focus returns.
func (t *Tracker) WindowFocusChanged(windowID int) {
	if !t.sess.Effective() {
		return
	}
	if windowID == host.WindowIDNone {
		return
	}

	t.mu.Lock()
	previousWindowID := t.currentWindowID
	changed := windowID != t.currentWindowID
	if changed {
		t.currentWindowID = windowID
	}
	t.mu.Unlock()

	if changed {
		tab, err := t.host.ActiveTabInWindow(windowID)
		if err != nil {
			log.Printf("[Tracker] Could not get active tab for newly focused window %d: %v", windowID, err)
		} else {
			t.mu.Lock()
			t.activeTabID = tab.ID
			t.mu.Unlock()
			t.sess.SetActiveTab(tab.ID)

			details := event.TabSwitch{
				URL:      tab.URL,
				Title:    tabTitle(tab),
				WindowID: windowID,
				TabID:    tab.ID,
			}

			if windowID == t.sess.InitialWindowID() {
				t.sess.Append(event.KindSwitchToParentWindow, details, tab.ID)
			} else {
				details.PreviousWindowID = previousWindowID
				t.sess.Append(event.KindTabSwitch, details, tab.ID)
			}

			if err := t.host.SendRecordingState(tab.ID, true, false); err != nil {
				log.Printf("[Tracker] Could not notify tab %d on focus change: %v", tab.ID, err)
			}
		}
	}

	t.checkWindowShape(windowID)
}

// TabActivated handles tab activation inside the currently focused
// window; window switches are handled by WindowFocusChanged.
func (t *Tracker) TabActivated(tabID, windowID int) {
	if !t.sess.Effective() {
		return
	}

	t.mu.Lock()
	if windowID != t.currentWindowID || tabID == t.activeTabID {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	tab, err := t.host.GetTab(tabID)
	if err != nil {
		log.Printf("[Tracker] Error getting tab info on activation: %v", err)
		return
	}

	t.sess.Append(event.KindTabSwitch, event.TabSwitch{
		URL:      tab.URL,
		Title:    tabTitle(tab),
		WindowID: windowID,
		TabID:    tabID,
	}, tabID)

	t.mu.Lock()
	t.activeTabID = tabID
	t.mu.Unlock()
	t.sess.SetActiveTab(tabID)

	if err := t.host.SendRecordingState(tabID, true, false); err != nil {
		log.Printf("[Tracker] Could not notify activated tab %d: %v", tabID, err)
	}
}

// WindowBoundsChanged handles a geometry notification for a window. Only
// the home window's shape is tracked.
func (t *Tracker) WindowBoundsChanged(windowID int) {
	if !t.sess.Effective() {
		return
	}
	if windowID != t.sess.InitialWindowID() {
		return
	}
	t.checkWindowShape(windowID)
}

// checkWindowShape emits at most one typed event per shape transition.
// The reported state string is authoritative; the dimension comparison
// against the screen is consulted only when the state string did not
// change (a window resized to cover the screen counts as maximized).
func (t *Tracker) checkWindowShape(windowID int) {
	win, err := t.host.GetWindow(windowID)
	if err != nil {
		log.Printf("[Tracker] Could not get window details for window %d: %v", windowID, err)
		return
	}

	t.mu.Lock()
	previous := t.windowState
	newState := win.State

	if newState == previous {
		if previous != host.WindowStateMaximized && t.coversScreen(win) {
			newState = host.WindowStateMaximized
		} else {
			t.mu.Unlock()
			return
		}
	}
	t.windowState = newState
	t.mu.Unlock()

	kind := event.KindWindowState
	switch newState {
	case host.WindowStateMaximized:
		kind = event.KindWindowMaximize
	case host.WindowStateMinimized:
		kind = event.KindWindowMinimize
	case host.WindowStateNormal:
		kind = event.KindWindowRestore
	}

	t.sess.Append(kind, event.WindowState{State: newState, PreviousState: previous}, 0)
}

func (t *Tracker) coversScreen(win host.Window) bool {
	screen, err := t.host.ScreenSize()
	if err != nil || screen.Width == 0 || screen.Height == 0 {
		return false
	}
	return win.Width >= screen.Width && win.Height >= screen.Height
}

// EnterFrame records focus moving into a nested document. The switch
// event is emitted before any event sourced from inside that document.
func (t *Tracker) EnterFrame(tabID int, path []string, src string, locs locator.Set) {
	if !t.sess.Effective() || len(path) == 0 {
		return
	}

	joined := strings.Join(path, FramePathSeparator)

	t.mu.Lock()
	if strings.Join(t.frameChain, FramePathSeparator) == joined {
		t.mu.Unlock()
		return
	}
	t.frameChain = append([]string(nil), path...)
	t.mu.Unlock()

	t.sess.Append(event.KindSwitchToFrame, event.FrameSwitch{
		Name:     joined,
		Src:      src,
		Locators: locs,
	}, tabID)
}

// ExitFrame records focus returning to the top-level document.
func (t *Tracker) ExitFrame(tabID int, src string, locs locator.Set) {
	if !t.sess.Effective() {
		return
	}

	t.mu.Lock()
	hadFrame := len(t.frameChain) > 0
	t.frameChain = nil
	t.mu.Unlock()

	if !hadFrame {
		return
	}

	t.sess.Append(event.KindSwitchToParentFrame, event.ParentFrameSwitch{
		IframeSrc:      src,
		IframeLocators: locs,
	}, tabID)
}

// ActiveFrameChain returns a copy of the current nested-document path.
func (t *Tracker) ActiveFrameChain() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.frameChain...)
}

func tabTitle(tab host.Tab) string {
	if tab.Title != "" {
		return tab.Title
	}
	if tab.URL != "" {
		return tab.URL
	}
	return "Untitled Tab"
}
