package capture

import (
	"testing"
	"time"

	"webrecorder/backend/internal/event"
	"webrecorder/backend/internal/host"
	"webrecorder/backend/internal/locator"
	"webrecorder/backend/internal/session"
	"webrecorder/backend/internal/tracker"
)

type fakeHost struct{}

func (fakeHost) CurrentWindow() (host.Window, error) {
	return host.Window{ID: 1, State: host.WindowStateNormal, Width: 1280, Height: 800}, nil
}
func (fakeHost) GetWindow(id int) (host.Window, error) {
	return host.Window{ID: id, State: host.WindowStateNormal, Width: 1280, Height: 800}, nil
}
func (fakeHost) ScreenSize() (host.Screen, error) { return host.Screen{Width: 1920, Height: 1080}, nil }
func (fakeHost) ActiveTab() (host.Tab, error) {
	return host.Tab{ID: 10, WindowID: 1, URL: "https://example.com", Title: "Example"}, nil
}
func (f fakeHost) ActiveTabInWindow(int) (host.Tab, error) { return f.ActiveTab() }
func (f fakeHost) GetTab(id int) (host.Tab, error) {
	t, _ := f.ActiveTab()
	t.ID = id
	return t, nil
}
func (f fakeHost) AllTabs() ([]host.Tab, error) {
	t, _ := f.ActiveTab()
	return []host.Tab{t}, nil
}
func (fakeHost) InjectDialogHook(int) error            { return nil }
func (fakeHost) SendRecordingState(int, bool, bool) error { return nil }
func (fakeHost) CreateFindElementMenu() error          { return nil }
func (fakeHost) RemoveFindElementMenu()                {}
func (fakeHost) RequestFindElement(int) error          { return nil }

func newTestSurface(t *testing.T) (*Surface, *session.Session) {
	t.Helper()
	sess := session.New(fakeHost{})
	if _, err := sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	trk := tracker.New(sess, fakeHost{})
	return NewSurface(sess, trk, 10), sess
}

// eventsOfKind filters the snapshot down to one kind, skipping the
// start-of-session bookkeeping events.
func eventsOfKind(sess *session.Session, kind event.Kind) []event.Record {
	var out []event.Record
	for _, rec := range sess.Snapshot() {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

func TestInputBlurCommitRules(t *testing.T) {
	s, sess := newTestSurface(t)
	el := ElementInfo{
		Element: locator.Element{TagName: "INPUT", ID: "email"},
		Key:     "k1",
		Type:    "text",
	}

	el.Value = ""
	s.InputBlur(el) // empty: dropped

	el.Value = "a@b.com"
	s.InputBlur(el) // new value: logged
	s.InputBlur(el) // unchanged: dropped

	el.Value = "c@d.com"
	s.InputBlur(el) // changed again: logged

	got := eventsOfKind(sess, event.KindInput)
	if len(got) != 2 {
		t.Fatalf("input events = %d, want 2", len(got))
	}
	first := got[0].Details.(event.Input)
	if first.Value != "a@b.com" || first.EnterKey {
		t.Errorf("first input = %+v", first)
	}
}

func TestInputEnterCommitsUnchangedValue(t *testing.T) {
	s, sess := newTestSurface(t)
	el := ElementInfo{
		Element: locator.Element{TagName: "INPUT", ID: "q"},
		Key:     "k1",
		Type:    "text",
		Value:   "search term",
	}

	s.InputBlur(el)
	s.InputEnter(el) // same value, but Enter always commits non-empty

	got := eventsOfKind(sess, event.KindInput)
	if len(got) != 2 {
		t.Fatalf("input events = %d, want 2", len(got))
	}
	if !got[1].Details.(event.Input).EnterKey {
		t.Error("second commit should carry the enter flag")
	}

	el.Value = ""
	s.InputEnter(el)
	if n := len(eventsOfKind(sess, event.KindInput)); n != 2 {
		t.Errorf("empty enter commit logged; events = %d", n)
	}
}

func TestPasswordValueMasked(t *testing.T) {
	s, sess := newTestSurface(t)
	s.InputBlur(ElementInfo{
		Element: locator.Element{TagName: "INPUT", ID: "pw"},
		Key:     "k1",
		Type:    "password",
		Value:   "hunter2",
	})

	got := eventsOfKind(sess, event.KindInput)
	if len(got) != 1 {
		t.Fatalf("input events = %d, want 1", len(got))
	}
	if v := got[0].Details.(event.Input).Value; v != PasswordMask {
		t.Errorf("password value = %q, want mask", v)
	}
}

func TestPasswordNeverStoredInSideTable(t *testing.T) {
	s, sess := newTestSurface(t)
	el := ElementInfo{
		Element: locator.Element{TagName: "INPUT", ID: "pw"},
		Key:     "k1",
		Type:    "password",
		Value:   "hunter2",
	}
	s.InputBlur(el)

	s.mu.Lock()
	stored := s.lastInputValue["k1"]
	s.mu.Unlock()
	if stored != PasswordMask {
		t.Errorf("side table holds %q, want the mask", stored)
	}

	// A second password with a different raw value is indistinguishable
	// after masking and must not commit again on blur.
	el.Value = "hunter3"
	s.InputBlur(el)
	if n := len(eventsOfKind(sess, event.KindInput)); n != 1 {
		t.Errorf("input events = %d, want 1", n)
	}
}

func TestKeyDownAllowList(t *testing.T) {
	s, sess := newTestSurface(t)
	el := ElementInfo{Element: locator.Element{TagName: "INPUT", ID: "q"}, Key: "k1"}

	for _, key := range []string{"Enter", " ", "ArrowDown", "a", "Shift", "F5"} {
		s.KeyDown(el, key)
	}

	got := eventsOfKind(sess, event.KindSendKeys)
	if len(got) != 3 {
		t.Fatalf("sendkeys events = %d, want 3", len(got))
	}
	want := []string{"ENTER", "SPACE", "ARROW_DOWN"}
	for i, rec := range got {
		if k := rec.Details.(event.SendKeys).Key; k != want[i] {
			t.Errorf("key[%d] = %q, want %q", i, k, want[i])
		}
	}
}

func TestDropPairsSourceAndTarget(t *testing.T) {
	s, sess := newTestSurface(t)

	s.DragStart(ElementInfo{Element: locator.Element{TagName: "DIV", ID: "card-1"}, Key: "src"})
	s.Drop(ElementInfo{Element: locator.Element{TagName: "UL", ID: "done"}, Key: "dst"}, 100, 200)

	got := eventsOfKind(sess, event.KindDrop)
	if len(got) != 1 {
		t.Fatalf("drop events = %d, want 1", len(got))
	}
	d := got[0].Details.(event.Drop)
	if d.SourceLocators.ID != "card-1" || d.TargetLocators.ID != "done" {
		t.Errorf("drop locators = %+v", d)
	}

	// Drag state is consumed: a second drop without a dragstart is a no-op.
	s.Drop(ElementInfo{Element: locator.Element{TagName: "UL", ID: "done"}}, 0, 0)
	if n := len(eventsOfKind(sess, event.KindDrop)); n != 1 {
		t.Errorf("orphan drop logged; events = %d", n)
	}
}

func TestDragEndWithoutDropIsCancelled(t *testing.T) {
	s, sess := newTestSurface(t)

	s.DragStart(ElementInfo{Element: locator.Element{TagName: "DIV", ID: "card-1"}, Key: "src"})
	s.DragEnd(50, 60)

	got := eventsOfKind(sess, event.KindDragEnd)
	if len(got) != 1 {
		t.Fatalf("dragend events = %d, want 1", len(got))
	}
	if !got[0].Details.(event.DragEnd).Cancelled {
		t.Error("dragend should be marked cancelled")
	}
}

func TestIframeClickBracketsFrameSwitch(t *testing.T) {
	s, sess := newTestSurface(t)

	s.IframeClick(
		ElementInfo{Element: locator.Element{TagName: "BUTTON", ID: "ok"}},
		[]string{"checkout"},
		"https://pay.example.com/frame",
		ElementInfo{Element: locator.Element{TagName: "IFRAME", ID: "pay"}},
		5, 5,
	)

	var kinds []event.Kind
	for _, rec := range sess.Snapshot() {
		switch rec.Kind {
		case event.KindSwitchToFrame, event.KindIframeClick, event.KindSwitchToParentFrame:
			kinds = append(kinds, rec.Kind)
		}
	}
	want := []event.Kind{event.KindSwitchToFrame, event.KindIframeClick, event.KindSwitchToParentFrame}
	if len(kinds) != len(want) {
		t.Fatalf("bracketed kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("bracketed kinds = %v, want %v", kinds, want)
		}
	}
}

func TestCaptureIgnoredWhilePaused(t *testing.T) {
	s, sess := newTestSurface(t)
	if err := sess.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	s.Click(ElementInfo{Element: locator.Element{TagName: "BUTTON", ID: "b"}}, 0, 0, 0, 0)
	s.InputBlur(ElementInfo{Element: locator.Element{TagName: "INPUT", ID: "i"}, Key: "k", Value: "x"})

	if n := len(eventsOfKind(sess, event.KindClick)); n != 0 {
		t.Errorf("click logged while paused; events = %d", n)
	}
	if n := len(eventsOfKind(sess, event.KindInput)); n != 0 {
		t.Errorf("input logged while paused; events = %d", n)
	}
}

func TestScrollDebounceCollapsesBurst(t *testing.T) {
	s, sess := newTestSurface(t)
	s.scrolls.SetTuning(20*time.Millisecond, 0)

	el := ElementInfo{Element: locator.Element{TagName: "DIV", ID: "list"}, Key: "k1"}
	for top := 0; top <= 500; top += 100 {
		s.Scroll(el, top, 2000, 500, false, "")
	}

	time.Sleep(100 * time.Millisecond)

	got := eventsOfKind(sess, event.KindScroll)
	if len(got) != 1 {
		t.Fatalf("scroll events = %d, want 1", len(got))
	}
	sc := got[0].Details.(event.Scroll)
	if sc.ScrollTop != 500 {
		t.Errorf("scrollTop = %d, want final sample 500", sc.ScrollTop)
	}
	// 500 / (2000-500) * 100, rounded.
	if sc.ScrollPercentage != 33 {
		t.Errorf("percentage = %d, want 33", sc.ScrollPercentage)
	}
}

func TestScrollFirstGestureBelowThresholdSuppressed(t *testing.T) {
	s, sess := newTestSurface(t)
	s.scrolls.SetTuning(20*time.Millisecond, 10)

	// A 3-unit wiggle on a freshly instrumented element settles without
	// clearing the threshold and must not be logged.
	el := ElementInfo{Element: locator.Element{TagName: "DIV", ID: "list"}, Key: "k1"}
	s.Scroll(el, 3, 2000, 500, false, "")
	time.Sleep(60 * time.Millisecond)

	if n := len(eventsOfKind(sess, event.KindScroll)); n != 0 {
		t.Fatalf("scroll events = %d, want 0 for sub-threshold gesture", n)
	}

	// A later gesture past the threshold still logs against the same
	// untouched baseline.
	s.Scroll(el, 40, 2000, 500, false, "")
	time.Sleep(60 * time.Millisecond)

	if n := len(eventsOfKind(sess, event.KindScroll)); n != 1 {
		t.Fatalf("scroll events = %d, want 1", n)
	}
}

func TestScrollBelowThresholdSuppressed(t *testing.T) {
	s, sess := newTestSurface(t)
	s.scrolls.SetTuning(20*time.Millisecond, 0)

	el := ElementInfo{Element: locator.Element{TagName: "DIV", ID: "list"}, Key: "k1"}
	s.Scroll(el, 100, 2000, 500, false, "")
	time.Sleep(60 * time.Millisecond)

	s.Scroll(el, 105, 2000, 500, false, "") // within threshold of last logged
	time.Sleep(60 * time.Millisecond)

	if n := len(eventsOfKind(sess, event.KindScroll)); n != 1 {
		t.Errorf("scroll events = %d, want 1", n)
	}
}

func TestScrollOfWindowHasNoLocators(t *testing.T) {
	s, sess := newTestSurface(t)
	s.scrolls.SetTuning(20*time.Millisecond, 0)

	s.Scroll(ElementInfo{Key: "window"}, 400, 3000, 1000, true, "")
	time.Sleep(60 * time.Millisecond)

	got := eventsOfKind(sess, event.KindScroll)
	if len(got) != 1 {
		t.Fatalf("scroll events = %d, want 1", len(got))
	}
	sc := got[0].Details.(event.Scroll)
	if !sc.IsWindow || sc.ElementType != "window" {
		t.Errorf("window scroll = %+v", sc)
	}
	if sc.Locators != (locator.Set{}) {
		t.Errorf("window scroll carries locators: %+v", sc.Locators)
	}
}

func TestDownloadLoggedAtStartTime(t *testing.T) {
	_, sess := newTestSurface(t)
	dl := NewDownloads(sess)

	start := time.Now().Add(-5 * time.Second)
	dl.Created(host.DownloadItem{ID: 7, Filename: "/tmp/partial", URL: "https://example.com/report.pdf", StartTime: start})

	final := "/home/user/Downloads/report.pdf"
	state := host.DownloadComplete
	dl.Changed(host.DownloadDelta{ID: 7, Filename: &final})
	dl.Changed(host.DownloadDelta{ID: 7, State: &state})

	got := eventsOfKind(sess, event.KindDownload)
	if len(got) != 1 {
		t.Fatalf("download events = %d, want 1", len(got))
	}
	d := got[0].Details.(event.Download)
	if d.Filename != "report.pdf" {
		t.Errorf("filename = %q, want base name of final path", d.Filename)
	}
	if !got[0].Time.Equal(start) {
		t.Errorf("event time = %v, want download start %v", got[0].Time, start)
	}
	if dl.Tracked() != 0 {
		t.Errorf("tracked = %d after terminal state, want 0", dl.Tracked())
	}
}

func TestDownloadPruneStale(t *testing.T) {
	_, sess := newTestSurface(t)
	dl := NewDownloads(sess)

	dl.Created(host.DownloadItem{ID: 1, StartTime: time.Now().Add(-2 * time.Hour)})
	dl.Created(host.DownloadItem{ID: 2, StartTime: time.Now()})

	if removed := dl.PruneStale(time.Hour); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if dl.Tracked() != 1 {
		t.Errorf("tracked = %d, want 1", dl.Tracked())
	}
}

func TestNavigationClassification(t *testing.T) {
	_, sess := newTestSurface(t)
	nav := NewNavigations(sess)

	nav.Committed(host.NavigationCommit{TabID: 10, FrameID: 0, URL: "https://example.com/a", TransitionType: "link"}, "A")
	nav.Committed(host.NavigationCommit{TabID: 10, FrameID: 0, URL: "https://example.com/a", TransitionType: "reload"}, "A")
	nav.Committed(host.NavigationCommit{TabID: 10, FrameID: 3, URL: "https://ads.example.com", TransitionType: "link"}, "")
	nav.Committed(host.NavigationCommit{TabID: 10, FrameID: 0, URL: "https://example.com/b", TransitionType: "client_redirect"}, "B")

	if n := len(eventsOfKind(sess, event.KindRefreshPage)); n != 1 {
		t.Errorf("refresh events = %d, want 1", n)
	}
	// One from Start plus the single committed link navigation.
	if n := len(eventsOfKind(sess, event.KindNavigation)); n != 2 {
		t.Errorf("navigation events = %d, want 2", n)
	}
}
