package session

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"webrecorder/backend/internal/event"
	"webrecorder/backend/internal/host"
)

// Control errors returned synchronously to callers. They never alter
// session state.
var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrAlreadyPaused    = errors.New("recording already paused")
	ErrNotPaused        = errors.New("recording not paused")
)

const (
	// clickMarkerWindow bounds how long after a click a newly created tab
	// is still attributed to it.
	clickMarkerWindow = 2 * time.Second

	// Title backfill scans at most this many events / this far back.
	backfillMaxEvents = 15
	backfillMaxAge    = 12 * time.Second
	backfillMatchAge  = 10 * time.Second

	untitledTab = "Untitled Tab"
)

type clickMarker struct {
	tabID int
	at    time.Time
}

// StartInfo is the initiating context captured by Start, handed to the
// context tracker so both sides agree on the home window.
type StartInfo struct {
	WindowID    int
	TabID       int
	WindowState string
}

// Session is the single in-memory timeline authority. All capture
// surfaces reach it through message passing; it serializes every
// append/control operation behind one lock, giving a total order over
// appended events consistent with arrival order.
type Session struct {
	mu   sync.Mutex
	host host.Host
	now  func() time.Time

	recording bool
	paused    bool
	events    []event.Record

	initialWindowID int
	activeTabID     int
	windowState     string
	lastClick       *clickMarker
	markerWindow    time.Duration
}

func New(h host.Host) *Session {
	return &Session{
		host:            h,
		now:             time.Now,
		initialWindowID: host.WindowIDNone,
		activeTabID:     -1,
		markerWindow:    clickMarkerWindow,
	}
}

// SetClickMarkerWindow overrides how long a click can claim a tab it
// opened.
func (s *Session) SetClickMarkerWindow(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markerWindow = d
}

// Start resets the event sequence, captures the current window/tab as the
// initiating context, records the initial window state, and broadcasts
// the new effective-recording state to all capture surfaces. Host query
// failures degrade the start rather than aborting it.
func (s *Session) Start() (StartInfo, error) {
	s.mu.Lock()
	if s.recording && !s.paused {
		s.mu.Unlock()
		return StartInfo{}, ErrAlreadyRecording
	}

	s.paused = false
	s.recording = true
	s.events = nil
	s.lastClick = nil
	s.initialWindowID = host.WindowIDNone
	s.activeTabID = -1
	s.windowState = ""

	now := s.now()

	win, err := s.host.CurrentWindow()
	if err != nil {
		log.Printf("[Session] Failed to query current window on start: %v", err)
	} else {
		s.initialWindowID = win.ID
		s.windowState = win.State
		s.appendLocked(event.Record{
			Kind:    event.KindWindowState,
			Time:    now,
			TabID:   s.activeTabID,
			Details: event.WindowState{State: win.State},
		})
	}

	tab, err := s.host.ActiveTab()
	if err != nil {
		log.Printf("[Session] Failed to query active tab on start: %v", err)
	} else {
		s.activeTabID = tab.ID
		if host.IsRestrictedURL(tab.URL) {
			log.Printf("[Session] Starting recording on a restricted URL: %s. Capture injection may fail.", tab.URL)
		}
		s.appendLocked(event.Record{
			Kind:    event.KindNavigation,
			Time:    now,
			TabID:   tab.ID,
			Details: event.Navigation{URL: tab.URL, Title: tab.Title},
		})
	}

	info := StartInfo{WindowID: s.initialWindowID, TabID: s.activeTabID, WindowState: s.windowState}
	s.mu.Unlock()

	if err := s.host.CreateFindElementMenu(); err != nil {
		log.Printf("[Session] Failed to create find-element menu: %v", err)
	}
	s.broadcastState(true, false, true)

	return info, nil
}

// Stop clears the paused/initiating-context state and broadcasts the
// change. The event sequence stays retrievable until the next Start.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return ErrNotRecording
	}
	s.recording = false
	s.paused = false
	s.initialWindowID = host.WindowIDNone
	s.lastClick = nil
	s.mu.Unlock()

	s.host.RemoveFindElementMenu()
	s.broadcastState(false, false, false)
	return nil
}

func (s *Session) Pause() error {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return ErrNotRecording
	}
	if s.paused {
		s.mu.Unlock()
		return ErrAlreadyPaused
	}
	s.paused = true
	s.appendLocked(event.Record{Kind: event.KindPause, Time: s.now(), TabID: s.activeTabID, Details: event.Marker{}})
	s.mu.Unlock()

	s.broadcastState(true, true, false)
	return nil
}

func (s *Session) Resume() error {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return ErrNotRecording
	}
	if !s.paused {
		s.mu.Unlock()
		return ErrNotPaused
	}
	s.paused = false
	s.appendLocked(event.Record{Kind: event.KindResume, Time: s.now(), TabID: s.activeTabID, Details: event.Marker{}})
	s.mu.Unlock()

	s.broadcastState(true, false, false)
	return nil
}

// Append accepts an event only while effectively recording. It never
// fails the caller: internal problems are logged and the single event is
// dropped.
func (s *Session) Append(kind event.Kind, details event.Details, originTab int) {
	s.AppendAt(kind, details, originTab, time.Time{})
}

// AppendAt is Append with an explicit observation time; a zero time means
// "now". Downloads use it to log at their original start time.
func (s *Session) AppendAt(kind event.Kind, details event.Details, originTab int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recording || s.paused {
		return
	}

	now := at
	if now.IsZero() {
		now = s.now()
	}
	tabID := originTab
	if tabID <= 0 {
		tabID = s.activeTabID
	}
	if tabID == 0 {
		tabID = -1
	}

	if kind == event.KindClick && originTab > 0 {
		s.lastClick = &clickMarker{tabID: originTab, at: now}
	}

	if details == nil {
		details = event.Marker{}
	}
	s.appendLocked(event.Record{Kind: kind, Time: now, TabID: tabID, Details: details})
}

func (s *Session) appendLocked(rec event.Record) {
	s.events = append(s.events, rec)
	log.Printf("[Session] Event logged in tab %d: %s", rec.TabID, rec.Kind)
}

// Snapshot returns a copy of the current event sequence, at any time,
// including while idle (the last completed session's data).
func (s *Session) Snapshot() []event.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Record(nil), s.events...)
}

func (s *Session) CheckState() (recording, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording, s.paused
}

// Effective reports the single predicate gating all event capture.
func (s *Session) Effective() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording && !s.paused
}

func (s *Session) InitialWindowID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialWindowID
}

// SetActiveTab is called by the context tracker when focus moves.
func (s *Session) SetActiveTab(tabID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeTabID = tabID
}

func (s *Session) ActiveTab() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTabID
}

// TabCreated correlates a newly opened tab with the short-lived
// last-click marker of its opener. The marker is consumed on match.
func (s *Session) TabCreated(tab host.Tab) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recording || s.paused || s.lastClick == nil {
		return
	}
	if tab.OpenerTabID == 0 || tab.OpenerTabID != s.lastClick.tabID {
		return
	}
	if s.now().Sub(s.lastClick.at) >= s.markerWindow {
		return
	}

	title := tab.Title
	if title == "" {
		title = tab.URL
	}
	s.appendLocked(event.Record{
		Kind:  event.KindNewTabOpenedByClick,
		Time:  s.now(),
		TabID: tab.OpenerTabID,
		Details: event.NewTab{
			Title:       title,
			URL:         tab.URL,
			NewTabID:    tab.ID,
			OpenerTabID: tab.OpenerTabID,
		},
	})
	s.lastClick = nil
}

// BackfillTitle corrects the title of a recent tab/window-switch event
// once the page's real title becomes available. Applied only if the
// logged title was a placeholder (the URL or "Untitled Tab") and the new
// title is materially different and not itself degrading to the URL.
func (s *Session) BackfillTitle(tabID int, newTitle, tabURL string) {
	if strings.TrimSpace(newTitle) == "" || strings.HasPrefix(tabURL, "chrome://") {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recording || s.paused {
		return
	}

	now := s.now()
	for i := len(s.events) - 1; i >= 0; i-- {
		rec := s.events[i]
		age := now.Sub(rec.Time)

		if len(s.events)-1-i >= backfillMaxEvents || age > backfillMaxAge {
			break
		}

		if rec.Kind != event.KindTabSwitch && rec.Kind != event.KindSwitchToParentWindow {
			continue
		}
		sw, ok := rec.Details.(event.TabSwitch)
		if !ok || sw.TabID != tabID || age >= backfillMatchAge {
			continue
		}

		oldTitle := sw.Title
		if oldTitle != newTitle &&
			(oldTitle == sw.URL || oldTitle == untitledTab || newTitle != sw.URL) {
			// Don't overwrite a good title with the URL.
			if !(newTitle == sw.URL && oldTitle != "" && oldTitle != untitledTab && oldTitle != sw.URL) {
				log.Printf("[Session] Updating title for %q event. TabId: %d. Old: %q, New: %q", rec.Kind, tabID, oldTitle, newTitle)
				sw.Title = newTitle
				s.events[i].Details = sw
			}
		}
		// Most recent relevant switch event found; stop either way.
		break
	}
}

// broadcastState notifies every capture surface of the new effective
// state, fire-and-forget. Unreachable surfaces are ignored, not retried.
func (s *Session) broadcastState(recording, paused, injectHooks bool) {
	tabs, err := s.host.AllTabs()
	if err != nil {
		log.Printf("[Session] Failed to enumerate tabs for state broadcast: %v", err)
		return
	}

	go func() {
		for _, tab := range tabs {
			if injectHooks {
				if err := s.host.InjectDialogHook(tab.ID); err != nil && !host.IsRestrictedURL(tab.URL) {
					log.Printf("[Session] Failed to inject dialog hook into tab %d: %v. Tab URL: %s", tab.ID, err, tab.URL)
				}
			}
			if err := s.host.SendRecordingState(tab.ID, recording, paused); err != nil && !host.IsRestrictedURL(tab.URL) {
				log.Printf("[Session] Failed to send recording state to tab %d: %v. Tab URL: %s", tab.ID, err, tab.URL)
			}
		}
	}()
}
