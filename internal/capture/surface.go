package capture

import (
	"fmt"
	"log"
	"sync"
	"time"

	"webrecorder/backend/internal/event"
	"webrecorder/backend/internal/locator"
	"webrecorder/backend/internal/session"
	"webrecorder/backend/internal/tracker"
)

// PasswordMask replaces the real value of password-type fields in every
// logged event. The real value never reaches the timeline.
const PasswordMask = "********"

// sendKeyMap is the fixed allow-list of named keys, mapped to canonical
// tokens. Default browser behavior is never suppressed.
var sendKeyMap = map[string]string{
	"ArrowUp":    "ARROW_UP",
	"ArrowDown":  "ARROW_DOWN",
	"ArrowLeft":  "ARROW_LEFT",
	"ArrowRight": "ARROW_RIGHT",
	"Enter":      "ENTER",
	"Backspace":  "BACK_SPACE",
	"Tab":        "TAB",
	"Escape":     "ESCAPE",
	"Delete":     "DELETE",
	"Insert":     "INSERT",
	" ":          "SPACE",
}

// ElementInfo is the element snapshot a raw signal carries. Key is a
// stable per-element identity assigned by the capture script, used for
// the input/scroll side tables.
type ElementInfo struct {
	locator.Element
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (e ElementInfo) target() event.Target {
	return event.Target{
		TagName:   e.TagName,
		ClassName: e.ClassAttr,
		ID:        e.ID,
		Text:      truncate(e.Text, 50),
		Value:     e.Value,
		Type:      e.Type,
		Name:      e.Name,
	}
}

// Surface normalizes the raw UI signals of one tab into timeline events.
// Each handler runs behind a local failure boundary: a failure drops that
// single event, never the surface.
type Surface struct {
	sess    *session.Session
	tracker *tracker.Tracker
	tabID   int

	mu               sync.Mutex
	lastInputValue   map[string]string
	lastRightClicked *ElementInfo
	dragSource       *ElementInfo
	dragLocators     locator.Set

	scrolls *Debouncer
}

func NewSurface(sess *session.Session, trk *tracker.Tracker, tabID int) *Surface {
	s := &Surface{
		sess:           sess,
		tracker:        trk,
		tabID:          tabID,
		lastInputValue: make(map[string]string),
	}
	s.scrolls = NewDebouncer(sess, tabID)
	return s
}

// TuneScroll adjusts the scroll debouncer from configuration.
func (s *Surface) TuneScroll(delay time.Duration, threshold int) {
	s.scrolls.SetTuning(delay, threshold)
}

// guard is the per-handler failure boundary.
func guard(name string) {
	if r := recover(); r != nil {
		log.Printf("[Capture] Error during %s event processing: %v", name, r)
	}
}

// UpdateRecordingState re-synchronizes the surface after a state-change
// broadcast. The input side table is cleared only when recording fully
// stops, not on pause.
func (s *Surface) UpdateRecordingState(recording, paused bool) {
	if !recording {
		s.mu.Lock()
		s.lastInputValue = make(map[string]string)
		s.dragSource = nil
		s.mu.Unlock()
	}
	if !recording || paused {
		s.scrolls.CancelPending()
	}
}

// Click is captured in the capture phase so no page handler can hide it.
func (s *Surface) Click(el ElementInfo, offsetX, offsetY, pageX, pageY int) {
	defer guard("click")
	if !s.sess.Effective() {
		return
	}

	s.sess.Append(event.KindClick, event.Click{
		Target:   el.target(),
		OffsetX:  offsetX,
		OffsetY:  offsetY,
		PageX:    pageX,
		PageY:    pageY,
		Locators: locator.Resolve(el.Element),
	}, s.tabID)
}

// IframeClick brackets a click inside an accessible nested document:
// frame switch in, the click, then the switch back to the parent frame
// immediately after. This per-click discipline is applied on every
// capture path.
func (s *Surface) IframeClick(el ElementInfo, framePath []string, iframeSrc string, iframeEl ElementInfo, offsetX, offsetY int) {
	defer guard("iframe click")
	if !s.sess.Effective() {
		return
	}

	frameLocs := locator.Resolve(iframeEl.Element)
	s.tracker.EnterFrame(s.tabID, framePath, iframeSrc, frameLocs)

	s.sess.Append(event.KindIframeClick, event.IframeClick{
		IframeSrc: iframeSrc,
		Target:    el.target(),
		OffsetX:   offsetX,
		OffsetY:   offsetY,
		Locators:  locator.Resolve(el.Element),
	}, s.tabID)

	s.tracker.ExitFrame(s.tabID, iframeSrc, frameLocs)
}

// ContextMenu caches the element regardless of recording state (the
// find-element command may follow) but only logs while effectively
// recording.
func (s *Surface) ContextMenu(el ElementInfo) {
	defer guard("contextmenu")

	s.mu.Lock()
	s.lastRightClicked = &el
	s.mu.Unlock()

	if !s.sess.Effective() {
		return
	}
	s.sess.Append(event.KindRightClick, event.RightClick{
		Locators: locator.Resolve(el.Element),
		TagName:  el.TagName,
	}, s.tabID)
}

// FindElement re-resolves and logs the cached right-clicked element in
// response to the native context-menu action.
func (s *Surface) FindElement() error {
	s.mu.Lock()
	el := s.lastRightClicked
	s.mu.Unlock()

	if el == nil || !s.sess.Effective() {
		return fmt.Errorf("no element or not recording")
	}

	s.sess.Append(event.KindFindElement, event.FindElement{
		Locators: locator.Resolve(el.Element),
		TagName:  el.TagName,
	}, s.tabID)
	return nil
}

// SaveAs logs a context-menu save action against the cached
// right-clicked element. The cached element is consumed so later
// unrelated downloads do not replay it.
func (s *Surface) SaveAs(url, filename string) {
	defer guard("save as")

	s.mu.Lock()
	el := s.lastRightClicked
	s.lastRightClicked = nil
	s.mu.Unlock()

	if el == nil || !s.sess.Effective() {
		return
	}

	s.sess.Append(event.KindRightClick, event.RightClick{
		ContextAction: "saveAs",
		URL:           url,
		Filename:      filename,
		Locators:      locator.Resolve(el.Element),
		TagName:       el.TagName,
	}, s.tabID)
}

// InputBlur commits a text field when it loses focus with a new
// non-empty value.
func (s *Surface) InputBlur(el ElementInfo) {
	defer guard("input")
	s.commitInput(el, false)
}

// InputEnter commits a text field on Enter with a non-empty value.
func (s *Surface) InputEnter(el ElementInfo) {
	defer guard("input")
	s.commitInput(el, true)
}

func (s *Surface) commitInput(el ElementInfo, enterKey bool) {
	if !s.sess.Effective() {
		return
	}

	// Password values are already masked in the capture script; mask
	// here too so neither the timeline nor the side table ever holds a
	// real password, whatever the signal path.
	value := el.Value
	if el.Type == "password" && value != "" {
		value = PasswordMask
	}

	s.mu.Lock()
	prev := s.lastInputValue[el.Key]
	s.mu.Unlock()

	shouldLog := value != ""
	if !enterKey {
		shouldLog = value != "" && value != prev
	}
	if !shouldLog {
		return
	}

	s.sess.Append(event.KindInput, event.Input{
		Value:     value,
		InputType: el.Type,
		EnterKey:  enterKey,
		Locators:  locator.Resolve(el.Element),
	}, s.tabID)

	s.mu.Lock()
	s.lastInputValue[el.Key] = value
	s.mu.Unlock()
}

// SelectChange is a distinct event kind from free-text input.
func (s *Surface) SelectChange(el ElementInfo) {
	defer guard("select change")
	if !s.sess.Effective() {
		return
	}
	s.sess.Append(event.KindSelectChange, event.SelectChange{
		Value:    el.Value,
		Locators: locator.Resolve(el.Element),
	}, s.tabID)
}

func (s *Surface) FileChange(el ElementInfo, filenames []string) {
	defer guard("file change")
	if !s.sess.Effective() || len(filenames) == 0 {
		return
	}
	s.sess.Append(event.KindFileUpload, event.FileUpload{
		Filenames: filenames,
		FileCount: len(filenames),
		Locators:  locator.Resolve(el.Element),
	}, s.tabID)
}

// KeyDown logs allow-listed named keys with the focused element's
// locators.
func (s *Surface) KeyDown(el ElementInfo, key string) {
	defer guard("keydown")
	if !s.sess.Effective() {
		return
	}

	mapped, ok := sendKeyMap[key]
	if !ok {
		return
	}

	s.sess.Append(event.KindSendKeys, event.SendKeys{
		Key:         mapped,
		OriginalKey: key,
		Locators:    locator.Resolve(el.Element),
	}, s.tabID)
}

func (s *Surface) DragStart(el ElementInfo) {
	defer guard("dragstart")
	if !s.sess.Effective() {
		return
	}
	s.mu.Lock()
	s.dragSource = &el
	s.dragLocators = locator.Resolve(el.Element)
	s.mu.Unlock()
}

// Drop logs paired source/target locator sets and resets the drag state.
func (s *Surface) Drop(target ElementInfo, pageX, pageY int) {
	defer guard("drop")
	if !s.sess.Effective() {
		return
	}

	s.mu.Lock()
	source := s.dragSource
	sourceLocs := s.dragLocators
	s.dragSource = nil
	s.dragLocators = locator.Set{}
	s.mu.Unlock()

	if source == nil {
		return
	}

	s.sess.Append(event.KindDrop, event.Drop{
		SourceLocators: sourceLocs,
		TargetLocators: locator.Resolve(target.Element),
		DraggedTagName: source.TagName,
		DraggedID:      source.ID,
		DropTagName:    target.TagName,
		DropID:         target.ID,
		PageX:          pageX,
		PageY:          pageY,
	}, s.tabID)
}

// DragEnd logs a cancelled drag when the drag finished without a drop.
func (s *Surface) DragEnd(pageX, pageY int) {
	defer guard("dragend")
	if !s.sess.Effective() {
		return
	}

	s.mu.Lock()
	source := s.dragSource
	sourceLocs := s.dragLocators
	s.dragSource = nil
	s.dragLocators = locator.Set{}
	s.mu.Unlock()

	if source == nil {
		return
	}

	s.sess.Append(event.KindDragEnd, event.DragEnd{
		Locators:  sourceLocs,
		TagName:   source.TagName,
		Cancelled: true,
		PageX:     pageX,
		PageY:     pageY,
	}, s.tabID)
}

// Dialog records a native dialog interaction captured at the point of
// invocation; value is non-nil only for an accepted prompt.
func (s *Surface) Dialog(kind, message, action string, value *string) {
	defer guard("dialog")
	if !s.sess.Effective() {
		return
	}
	s.sess.Append(event.KindDialog, event.Dialog{
		DialogKind: kind,
		Message:    message,
		Action:     action,
		Value:      value,
	}, s.tabID)
}

// PageLoad is logged when a surface attaches to an already-recording
// session.
func (s *Surface) PageLoad(url, title string) {
	defer guard("pageload")
	if !s.sess.Effective() {
		return
	}
	s.sess.Append(event.KindPageLoad, event.PageLoad{URL: url, Title: title}, s.tabID)
}

// IframeDiscovered logs a best-effort marker for every observed nested
// document. Cross-origin documents get only this marker; no further
// instrumentation is attempted.
func (s *Surface) IframeDiscovered(iframeEl ElementInfo, src, name string, accessible bool) {
	defer guard("iframe discovery")
	if !s.sess.Effective() {
		return
	}
	s.sess.Append(event.KindIframeLoaded, event.IframeMarker{
		Src:        src,
		Name:       name,
		Locators:   locator.Resolve(iframeEl.Element),
		Accessible: accessible,
	}, s.tabID)
}

func (s *Surface) IframeError(iframeEl ElementInfo, src, name string) {
	defer guard("iframe error")
	if !s.sess.Effective() {
		return
	}
	s.sess.Append(event.KindIframeError, event.IframeMarker{
		Src:      src,
		Name:     name,
		Locators: locator.Resolve(iframeEl.Element),
	}, s.tabID)
}

// IframeRemoved cleans up per-element state for a detached nested
// document and returns focus to the parent if it was active.
func (s *Surface) IframeRemoved(iframeEl ElementInfo, src string) {
	defer guard("iframe removal")
	s.scrolls.Forget(iframeEl.Key)
	s.tracker.ExitFrame(s.tabID, src, locator.Resolve(iframeEl.Element))
}

// FrameFocusIn reports focus entering a nested document; the tracker
// decides whether a switch event is due.
func (s *Surface) FrameFocusIn(framePath []string, src string, iframeEl ElementInfo) {
	defer guard("frame focus")
	if !s.sess.Effective() {
		return
	}
	s.tracker.EnterFrame(s.tabID, framePath, src, locator.Resolve(iframeEl.Element))
}

// FrameFocusTop reports focus returning to the top-level document.
func (s *Surface) FrameFocusTop(src string, iframeEl ElementInfo) {
	defer guard("frame focus")
	if !s.sess.Effective() {
		return
	}
	s.tracker.ExitFrame(s.tabID, src, locator.Resolve(iframeEl.Element))
}

// ElementRemoved drops the side-table state of a removed element,
// reported by the structural-mutation watcher.
func (s *Surface) ElementRemoved(key string) {
	s.mu.Lock()
	delete(s.lastInputValue, key)
	s.mu.Unlock()
	s.scrolls.Forget(key)
}

// Scroll feeds one raw scroll sample into the per-element debouncer.
func (s *Surface) Scroll(el ElementInfo, scrollTop, scrollHeight, clientHeight int, isWindow bool, iframeSrc string) {
	defer guard("scroll")
	if !s.sess.Effective() {
		return
	}
	s.scrolls.Observe(sample{
		key:          el.Key,
		element:      el,
		scrollTop:    scrollTop,
		scrollHeight: scrollHeight,
		clientHeight: clientHeight,
		isWindow:     isWindow,
		iframeSrc:    iframeSrc,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
