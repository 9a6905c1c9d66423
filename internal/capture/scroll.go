package capture

import (
	"math"
	"sync"
	"time"

	"webrecorder/backend/internal/event"
	"webrecorder/backend/internal/locator"
	"webrecorder/backend/internal/session"
)

const (
	// ScrollDebounce is the quiet period after the last raw scroll sample
	// before one event is logged for the whole gesture.
	ScrollDebounce = 300 * time.Millisecond

	// ScrollThreshold is the minimum change in scroll position, in either
	// direction, for a settled gesture to be logged at all.
	ScrollThreshold = 10
)

type sample struct {
	key          string
	element      ElementInfo
	scrollTop    int
	scrollHeight int
	clientHeight int
	isWindow     bool
	iframeSrc    string
}

type scrollState struct {
	timer   *time.Timer
	pending sample
	// lastTop is the baseline displacement is measured against: the
	// position at instrumentation (zero for a freshly loaded surface),
	// then the position of the last logged gesture.
	lastTop int
}

// Debouncer collapses a burst of raw scroll samples per scrolled element
// (the window counts as one element) into a single settled event.
type Debouncer struct {
	sess  *session.Session
	tabID int

	mu        sync.Mutex
	delay     time.Duration
	threshold int
	states    map[string]*scrollState
}

func NewDebouncer(sess *session.Session, tabID int) *Debouncer {
	return &Debouncer{
		sess:      sess,
		tabID:     tabID,
		delay:     ScrollDebounce,
		threshold: ScrollThreshold,
		states:    make(map[string]*scrollState),
	}
}

// SetTuning overrides the default settle delay and movement threshold.
func (d *Debouncer) SetTuning(delay time.Duration, threshold int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if delay > 0 {
		d.delay = delay
	}
	if threshold > 0 {
		d.threshold = threshold
	}
}

// Observe records the latest sample for the element and restarts its
// settle timer. Only the final sample of a burst is ever logged.
func (d *Debouncer) Observe(s sample) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.states[s.key]
	if !ok {
		st = &scrollState{}
		d.states[s.key] = st
	}
	st.pending = s

	if st.timer != nil {
		st.timer.Stop()
	}
	key := s.key
	st.timer = time.AfterFunc(d.delay, func() { d.settle(key) })
}

func (d *Debouncer) settle(key string) {
	d.mu.Lock()
	st, ok := d.states[key]
	if !ok {
		d.mu.Unlock()
		return
	}
	s := st.pending
	st.timer = nil

	// The threshold applies to every settled gesture, including the
	// first; sub-threshold wiggles accumulate against the baseline
	// until one gesture clears it.
	delta := s.scrollTop - st.lastTop
	if abs(delta) <= d.threshold {
		d.mu.Unlock()
		return
	}
	st.lastTop = s.scrollTop
	d.mu.Unlock()

	// State may have flipped while the timer was pending.
	if !d.sess.Effective() {
		return
	}

	percentage := 0
	if s.scrollHeight > s.clientHeight {
		denom := s.scrollHeight - s.clientHeight
		if denom < 1 {
			denom = 1
		}
		percentage = int(math.Round(float64(s.scrollTop) / float64(denom) * 100))
	}

	elementType := s.element.TagName
	var locs locator.Set
	if s.isWindow {
		elementType = "window"
	} else {
		locs = locator.Resolve(s.element.Element)
	}

	d.sess.Append(event.KindScroll, event.Scroll{
		ScrollTop:        s.scrollTop,
		ScrollPercentage: percentage,
		ElementType:      elementType,
		IsWindow:         s.isWindow,
		Locators:         locs,
		IframeSrc:        s.iframeSrc,
	}, d.tabID)
}

// Forget drops all debounce state for an element, cancelling any pending
// timer.
func (d *Debouncer) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.states[key]; ok {
		if st.timer != nil {
			st.timer.Stop()
		}
		delete(d.states, key)
	}
}

// CancelPending stops every in-flight timer without logging. Baselines
// are kept so a resumed session still suppresses no-op gestures.
func (d *Debouncer) CancelPending() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, st := range d.states {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
