package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"webrecorder/backend/internal/event"
	"webrecorder/backend/internal/host"
)

type fakeHost struct {
	mu     sync.Mutex
	window host.Window
	tab    host.Tab
	tabs   []host.Tab

	windowErr   error
	tabErr      error
	menuCreated bool
	menuRemoved bool
}

func newFakeHost() *fakeHost {
	win := host.Window{ID: 1, State: host.WindowStateNormal, Width: 1280, Height: 800}
	tab := host.Tab{ID: 10, WindowID: 1, URL: "https://example.com", Title: "Example"}
	return &fakeHost{window: win, tab: tab, tabs: []host.Tab{tab}}
}

func (f *fakeHost) CurrentWindow() (host.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.window, f.windowErr
}
func (f *fakeHost) GetWindow(int) (host.Window, error) { return f.CurrentWindow() }
func (f *fakeHost) ScreenSize() (host.Screen, error) {
	return host.Screen{Width: 1920, Height: 1080}, nil
}
func (f *fakeHost) ActiveTab() (host.Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tab, f.tabErr
}
func (f *fakeHost) ActiveTabInWindow(int) (host.Tab, error) { return f.ActiveTab() }
func (f *fakeHost) GetTab(id int) (host.Tab, error) {
	t, err := f.ActiveTab()
	t.ID = id
	return t, err
}
func (f *fakeHost) AllTabs() ([]host.Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]host.Tab(nil), f.tabs...), nil
}
func (f *fakeHost) InjectDialogHook(int) error               { return nil }
func (f *fakeHost) SendRecordingState(int, bool, bool) error { return nil }
func (f *fakeHost) CreateFindElementMenu() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menuCreated = true
	return nil
}
func (f *fakeHost) RemoveFindElementMenu() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menuRemoved = true
}
func (f *fakeHost) RequestFindElement(int) error { return nil }

func kinds(recs []event.Record) []event.Kind {
	out := make([]event.Kind, len(recs))
	for i, r := range recs {
		out[i] = r.Kind
	}
	return out
}

func TestStartSeedsTimeline(t *testing.T) {
	h := newFakeHost()
	s := New(h)

	info, err := s.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if info.WindowID != 1 || info.TabID != 10 || info.WindowState != host.WindowStateNormal {
		t.Errorf("StartInfo = %+v", info)
	}

	got := kinds(s.Snapshot())
	want := []event.Kind{event.KindWindowState, event.KindNavigation}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("initial events = %v, want %v", got, want)
	}
	if !s.Effective() {
		t.Error("session should be effectively recording after Start")
	}
}

func TestStartWhileRecordingFails(t *testing.T) {
	s := New(newFakeHost())
	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := s.Start(); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second Start err = %v, want ErrAlreadyRecording", err)
	}
}

func TestStartWhilePausedRestarts(t *testing.T) {
	s := New(newFakeHost())
	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Append(event.KindClick, event.Click{}, 10)
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	// A paused session may be restarted; the timeline resets.
	if _, err := s.Start(); err != nil {
		t.Fatalf("restart from paused: %v", err)
	}
	for _, k := range kinds(s.Snapshot()) {
		if k == event.KindClick || k == event.KindPause {
			t.Errorf("old event %q survived restart", k)
		}
	}
}

func TestStartDegradesOnHostFailure(t *testing.T) {
	h := newFakeHost()
	h.windowErr = errors.New("no window")
	h.tabErr = errors.New("no tab")
	s := New(h)

	info, err := s.Start()
	if err != nil {
		t.Fatalf("Start should degrade, not fail: %v", err)
	}
	if info.WindowID != host.WindowIDNone {
		t.Errorf("WindowID = %d, want none", info.WindowID)
	}
	if n := len(s.Snapshot()); n != 0 {
		t.Errorf("events = %d, want 0 when both host queries fail", n)
	}
	if !s.Effective() {
		t.Error("recording should still be active")
	}
}

func TestStopKeepsEvents(t *testing.T) {
	s := New(newFakeHost())
	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Append(event.KindClick, event.Click{}, 10)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Effective() {
		t.Error("session still effective after Stop")
	}
	if n := len(s.Snapshot()); n != 3 {
		t.Errorf("events after stop = %d, want 3 (retrievable until next start)", n)
	}
	if err := s.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("second Stop err = %v, want ErrNotRecording", err)
	}
}

func TestPauseResumeStateMachine(t *testing.T) {
	s := New(newFakeHost())

	if err := s.Pause(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Pause while idle = %v, want ErrNotRecording", err)
	}
	if err := s.Resume(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Resume while idle = %v, want ErrNotRecording", err)
	}

	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Resume(); !errors.Is(err, ErrNotPaused) {
		t.Errorf("Resume while running = %v, want ErrNotPaused", err)
	}

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := s.Pause(); !errors.Is(err, ErrAlreadyPaused) {
		t.Errorf("double Pause = %v, want ErrAlreadyPaused", err)
	}
	if s.Effective() {
		t.Error("paused session reported effective")
	}

	s.Append(event.KindClick, event.Click{}, 10)

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !s.Effective() {
		t.Error("resumed session not effective")
	}

	got := kinds(s.Snapshot())
	var sawPause, sawResume, sawClick bool
	for _, k := range got {
		switch k {
		case event.KindPause:
			sawPause = true
		case event.KindResume:
			sawResume = true
		case event.KindClick:
			sawClick = true
		}
	}
	if !sawPause || !sawResume {
		t.Errorf("pause/resume markers missing: %v", got)
	}
	if sawClick {
		t.Errorf("click appended while paused: %v", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New(newFakeHost())
	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := s.Snapshot()
	if len(snap) == 0 {
		t.Fatal("expected seeded events")
	}
	snap[0].Kind = "mutated"

	if s.Snapshot()[0].Kind == "mutated" {
		t.Error("snapshot shares backing array with the session")
	}
}

func TestTabCreatedAttribution(t *testing.T) {
	s := New(newFakeHost())
	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Click in tab 10, then a tab opened by it within the window.
	s.Append(event.KindClick, event.Click{}, 10)
	s.TabCreated(host.Tab{ID: 20, OpenerTabID: 10, URL: "https://example.com/new"})

	var newTabs int
	for _, rec := range s.Snapshot() {
		if rec.Kind == event.KindNewTabOpenedByClick {
			newTabs++
			nt := rec.Details.(event.NewTab)
			if nt.NewTabID != 20 || nt.OpenerTabID != 10 {
				t.Errorf("NewTab details = %+v", nt)
			}
			if nt.Title != "https://example.com/new" {
				t.Errorf("missing URL fallback title: %q", nt.Title)
			}
		}
	}
	if newTabs != 1 {
		t.Fatalf("newTab events = %d, want 1", newTabs)
	}

	// Marker consumed: a second tab from the same click logs nothing.
	s.TabCreated(host.Tab{ID: 21, OpenerTabID: 10})
	for _, rec := range s.Snapshot() {
		if rec.Kind == event.KindNewTabOpenedByClick {
			if rec.Details.(event.NewTab).NewTabID == 21 {
				t.Error("consumed click marker matched a second tab")
			}
		}
	}
}

func TestTabCreatedExpiredMarker(t *testing.T) {
	s := New(newFakeHost())
	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	current := time.Now()
	s.now = func() time.Time { return current }

	s.Append(event.KindClick, event.Click{}, 10)
	current = current.Add(3 * time.Second)
	s.TabCreated(host.Tab{ID: 20, OpenerTabID: 10})

	for _, rec := range s.Snapshot() {
		if rec.Kind == event.KindNewTabOpenedByClick {
			t.Error("expired click marker still attributed a tab")
		}
	}
}

func TestClickMarkerWindowTunable(t *testing.T) {
	s := New(newFakeHost())
	s.SetClickMarkerWindow(100 * time.Millisecond)
	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	current := time.Now()
	s.now = func() time.Time { return current }

	// 500ms is inside the 2s default but past the configured window.
	s.Append(event.KindClick, event.Click{}, 10)
	current = current.Add(500 * time.Millisecond)
	s.TabCreated(host.Tab{ID: 20, OpenerTabID: 10})

	for _, rec := range s.Snapshot() {
		if rec.Kind == event.KindNewTabOpenedByClick {
			t.Error("tab attributed to a click outside the configured marker window")
		}
	}
}

func TestTabCreatedWrongOpener(t *testing.T) {
	s := New(newFakeHost())
	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Append(event.KindClick, event.Click{}, 10)
	s.TabCreated(host.Tab{ID: 20, OpenerTabID: 99})

	for _, rec := range s.Snapshot() {
		if rec.Kind == event.KindNewTabOpenedByClick {
			t.Error("tab from unrelated opener attributed to the click")
		}
	}
}

func TestBackfillTitleReplacesPlaceholder(t *testing.T) {
	s := New(newFakeHost())
	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Append(event.KindTabSwitch, event.TabSwitch{
		URL:      "https://example.com/page",
		Title:    "https://example.com/page", // placeholder: title degraded to URL
		WindowID: 1,
		TabID:    10,
	}, 10)

	s.BackfillTitle(10, "Real Page Title", "https://example.com/page")

	found := false
	for _, rec := range s.Snapshot() {
		if rec.Kind == event.KindTabSwitch {
			found = true
			if got := rec.Details.(event.TabSwitch).Title; got != "Real Page Title" {
				t.Errorf("title = %q, want backfilled", got)
			}
		}
	}
	if !found {
		t.Fatal("tabswitch event missing")
	}
}

func TestBackfillTitleKeepsGoodTitle(t *testing.T) {
	s := New(newFakeHost())
	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Append(event.KindTabSwitch, event.TabSwitch{
		URL:      "https://example.com/page",
		Title:    "Already Good",
		WindowID: 1,
		TabID:    10,
	}, 10)

	// A late update degrading to the URL must not overwrite a real title.
	s.BackfillTitle(10, "https://example.com/page", "https://example.com/page")

	for _, rec := range s.Snapshot() {
		if rec.Kind == event.KindTabSwitch {
			if got := rec.Details.(event.TabSwitch).Title; got != "Already Good" {
				t.Errorf("title = %q, want untouched", got)
			}
		}
	}
}

func TestBackfillTitleScanWindowBounded(t *testing.T) {
	s := New(newFakeHost())
	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Append(event.KindTabSwitch, event.TabSwitch{
		URL:   "https://example.com/a",
		Title: "Untitled Tab",
		TabID: 10,
	}, 10)
	for i := 0; i < 20; i++ {
		s.Append(event.KindClick, event.Click{}, 10)
	}

	// The switch event is now buried past the scan window.
	s.BackfillTitle(10, "Late Title", "https://example.com/a")

	for _, rec := range s.Snapshot() {
		if rec.Kind == event.KindTabSwitch {
			if got := rec.Details.(event.TabSwitch).Title; got != "Untitled Tab" {
				t.Errorf("title = %q, want unchanged past scan window", got)
			}
		}
	}
}

func TestAppendAtUsesExplicitTime(t *testing.T) {
	s := New(newFakeHost())
	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	at := time.Now().Add(-time.Minute)
	s.AppendAt(event.KindDownload, event.Download{Filename: "f"}, 0, at)

	snap := s.Snapshot()
	last := snap[len(snap)-1]
	if !last.Time.Equal(at) {
		t.Errorf("event time = %v, want %v", last.Time, at)
	}
}

func TestMenuLifecycle(t *testing.T) {
	h := newFakeHost()
	s := New(h)
	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.menuCreated || !h.menuRemoved {
		t.Errorf("menu lifecycle: created=%t removed=%t", h.menuCreated, h.menuRemoved)
	}
}
