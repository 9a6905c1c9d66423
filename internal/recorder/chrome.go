package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/gorilla/websocket"

	"webrecorder/backend/internal/capture"
	"webrecorder/backend/internal/config"
	"webrecorder/backend/internal/event"
	"webrecorder/backend/internal/host"
	"webrecorder/backend/internal/serializer"
	"webrecorder/backend/internal/session"
	"webrecorder/backend/internal/tracker"
	"webrecorder/backend/pkg/chrome"
)

// rawSignal is the wire form of one observation drained from a page's
// capture buffer. Field presence depends on the kind.
type rawSignal struct {
	Kind string `json:"kind"`
	Time int64  `json:"time"`

	Element       capture.ElementInfo `json:"element"`
	IframeElement capture.ElementInfo `json:"iframe_element"`
	FramePath     []string            `json:"frame_path"`
	IframeSrc     string              `json:"iframe_src"`

	Value     string   `json:"value"`
	Filenames []string `json:"filenames"`

	OffsetX int `json:"offset_x"`
	OffsetY int `json:"offset_y"`
	PageX   int `json:"page_x"`
	PageY   int `json:"page_y"`

	ScrollTop    int  `json:"scroll_top"`
	ScrollHeight int  `json:"scroll_height"`
	ClientHeight int  `json:"client_height"`
	IsWindow     bool `json:"is_window"`

	DialogKind  string  `json:"dialog_kind"`
	Message     string  `json:"message"`
	Action      string  `json:"action"`
	DialogValue *string `json:"dialog_value"`

	URL        string `json:"url"`
	Title      string `json:"title"`
	Accessible bool   `json:"accessible"`
	Cancelled  bool   `json:"cancelled"`
}

// Recorder drives one Chrome instance, polls the injected capture
// buffers and feeds the normalization pipeline. One Recorder owns one
// session timeline.
type Recorder struct {
	sessionID string
	cfg       config.RecorderConfig
	chrome    config.ChromeConfig

	ctx    context.Context
	cancel context.CancelFunc

	reg  *targetRegistry
	host *browserHost

	sess      *session.Session
	tracker   *tracker.Tracker
	downloads *capture.Downloads
	navs      *capture.Navigations

	mu        sync.Mutex
	surfaces  map[int]*capture.Surface
	lastURL   map[int]string
	lastTitle map[int]string
	dlIDs     map[string]int
	nextDLID  int
	running   bool
	stoppedAt time.Time
	wsConn    *websocket.Conn
	wsSent    int
}

func NewRecorder(sessionID string, cfg config.RecorderConfig, chromeCfg config.ChromeConfig) *Recorder {
	reg := newTargetRegistry()
	h := newBrowserHost(reg)
	sess := session.New(h)
	sess.SetClickMarkerWindow(time.Duration(cfg.ClickMarkerMS) * time.Millisecond)
	r := &Recorder{
		sessionID: sessionID,
		cfg:       cfg,
		chrome:    chromeCfg,
		reg:       reg,
		host:      h,
		sess:      sess,
		tracker:   tracker.New(sess, h),
		downloads: capture.NewDownloads(sess),
		navs:      capture.NewNavigations(sess),
		surfaces:  make(map[int]*capture.Surface),
		lastURL:   make(map[int]string),
		lastTitle: make(map[int]string),
		dlIDs:     make(map[string]int),
		nextDLID:  1,
	}
	h.findElement = func(tabID int) error {
		surface, ok := r.surfaceFor(tabID)
		if !ok {
			return fmt.Errorf("no capture surface for tab %d", tabID)
		}
		return surface.FindElement()
	}
	return r
}

func (r *Recorder) StartRecording(targetURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return session.ErrAlreadyRecording
	}

	chromePath := chrome.GetChromePath()
	if chromePath == "" {
		chromePath = chrome.GetFlatpakChromePath()
		if chromePath == "" {
			return fmt.Errorf("Chrome browser not found. Please install Google Chrome or Chromium")
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(chromePath),
		chromedp.Flag("headless", r.chrome.HeadlessMode),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-component-update", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("no-pings", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, ctxCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Printf))
	r.ctx = ctx
	r.cancel = func() {
		r.closeBrowser()
		ctxCancel()
		allocCancel()
	}

	r.host.bind(ctx)
	r.listenForDownloads(ctx)

	err := chromedp.Run(ctx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorDefault).WithEventsEnabled(true),
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(captureScript, nil),
		chromedp.Evaluate(dialogHookScript, nil),
	)
	if err != nil {
		r.cancel()
		r.ctx = nil
		return fmt.Errorf("failed to start recording browser: %w", err)
	}

	info, err := r.sess.Start()
	if err != nil {
		r.cancel()
		r.ctx = nil
		return err
	}
	r.reg.setActive(info.TabID)
	r.tracker.Reset(info)
	r.running = true
	r.lastURL[info.TabID] = targetURL

	go r.pollLoop(ctx)

	log.Printf("[Recorder] Session %s recording %s", r.sessionID, targetURL)
	return nil
}

func (r *Recorder) StopRecording() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return session.ErrNotRecording
	}
	r.running = false
	r.stoppedAt = time.Now()
	cancel := r.cancel
	r.mu.Unlock()

	err := r.sess.Stop()
	r.syncSurfaces()
	if cancel != nil {
		cancel()
	}
	return err
}

func (r *Recorder) Pause() error {
	if err := r.sess.Pause(); err != nil {
		return err
	}
	r.syncSurfaces()
	return nil
}

func (r *Recorder) Resume() error {
	if err := r.sess.Resume(); err != nil {
		return err
	}
	r.syncSurfaces()
	return nil
}

// syncSurfaces pushes the current session state into every capture
// surface so pending debounce timers and side tables follow it.
func (r *Recorder) syncSurfaces() {
	recording, paused := r.sess.CheckState()
	r.mu.Lock()
	surfaces := make([]*capture.Surface, 0, len(r.surfaces))
	for _, s := range r.surfaces {
		surfaces = append(surfaces, s)
	}
	r.mu.Unlock()
	for _, s := range surfaces {
		s.UpdateRecordingState(recording, paused)
	}
}

// FindElement logs the locators of the last right-clicked element on
// the given tab. A tab id of 0 targets the active tab.
func (r *Recorder) FindElement(tabID int) error {
	if tabID == 0 {
		tab, err := r.host.ActiveTab()
		if err != nil {
			return err
		}
		tabID = tab.ID
	}
	return r.host.RequestFindElement(tabID)
}

// Status reports the session state machine plus the number of events
// captured so far.
func (r *Recorder) Status() (recording, paused bool, events int) {
	recording, paused = r.sess.CheckState()
	return recording, paused, len(r.sess.Snapshot())
}

// FrameContext reports the nested-document path focus currently sits
// in, outermost to innermost, empty at the top-level document.
func (r *Recorder) FrameContext() string {
	return strings.Join(r.tracker.ActiveFrameChain(), tracker.FramePathSeparator)
}

// Events returns the current timeline snapshot.
func (r *Recorder) Events() []event.Record {
	return r.sess.Snapshot()
}

// ExportXML renders the current timeline as a test-case document.
func (r *Recorder) ExportXML() string {
	return serializer.Document(r.sess.Snapshot())
}

// StoppedAt reports when recording stopped; zero while running.
func (r *Recorder) StoppedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return time.Time{}
	}
	return r.stoppedAt
}

// PruneDownloads drops stale pending downloads; used by the janitor.
func (r *Recorder) PruneDownloads(maxAge time.Duration) int {
	return r.downloads.PruneStale(maxAge)
}

func (r *Recorder) SetWebSocketConnection(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wsConn = conn
	r.wsSent = 0
}

func (r *Recorder) surfaceFor(tabID int) (*capture.Surface, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.surfaces[tabID]
	return s, ok
}

// ensureSurface creates the capture surface for a newly seen tab and
// correlates it with any pending click marker.
func (r *Recorder) ensureSurface(tab host.Tab) *capture.Surface {
	r.mu.Lock()
	s, ok := r.surfaces[tab.ID]
	if !ok {
		s = capture.NewSurface(r.sess, r.tracker, tab.ID)
		s.TuneScroll(
			time.Duration(r.cfg.ScrollDebounceMS)*time.Millisecond,
			r.cfg.ScrollThreshold,
		)
		r.surfaces[tab.ID] = s
	}
	r.mu.Unlock()

	if !ok {
		r.sess.TabCreated(tab)
	}
	return s
}

func (r *Recorder) pollLoop(ctx context.Context) {
	interval := r.cfg.PollInterval()
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Window shape is polled on a slower cadence than signals.
	shapeEvery := time.Second / interval
	if shapeEvery < 1 {
		shapeEvery = 1
	}
	var tick int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			running := r.running
			r.mu.Unlock()
			if !running {
				return
			}

			r.pollOnce(ctx)
			tick++
			if tick%int64(shapeEvery) == 0 {
				r.tracker.WindowBoundsChanged(r.sess.InitialWindowID())
			}
			r.pushNewEvents()
		}
	}
}

func (r *Recorder) pollOnce(ctx context.Context) {
	tabs, err := r.host.AllTabs()
	if err != nil {
		log.Printf("[Recorder] Failed to enumerate tabs: %v", err)
		return
	}

	for _, tab := range tabs {
		surface := r.ensureSurface(tab)

		tabCtx, err := r.host.tabCtx(tab.ID)
		if err != nil {
			continue
		}

		// The capture script unloads with every navigation; the guard at
		// its top makes re-injection a no-op on instrumented pages.
		var signals []rawSignal
		err = chromedp.Run(tabCtx,
			chromedp.Evaluate(captureScript, nil),
			chromedp.Evaluate(dialogHookScript, nil),
			chromedp.Evaluate(`window.__webRecorder ? window.__webRecorder.drain() : []`, &signals),
		)
		if err != nil {
			if !host.IsRestrictedURL(tab.URL) {
				log.Printf("[Recorder] Failed to drain tab %d: %v", tab.ID, err)
			}
			r.host.dropTabCtx(tab.ID)
			continue
		}

		for _, sig := range signals {
			r.dispatch(tab, surface, sig)
		}

		r.backfillTitleIfChanged(tab)
	}
}

func (r *Recorder) dispatch(tab host.Tab, surface *capture.Surface, sig rawSignal) {
	switch sig.Kind {
	case "click":
		surface.Click(sig.Element, sig.OffsetX, sig.OffsetY, sig.PageX, sig.PageY)
	case "iframe_click":
		surface.IframeClick(sig.Element, sig.FramePath, sig.IframeSrc, sig.IframeElement, sig.OffsetX, sig.OffsetY)
	case "contextmenu":
		surface.ContextMenu(sig.Element)
	case "input_blur":
		surface.InputBlur(sig.Element)
	case "input_enter":
		surface.InputEnter(sig.Element)
	case "keydown":
		surface.KeyDown(sig.Element, sig.Value)
	case "select_change":
		surface.SelectChange(sig.Element)
	case "file_change":
		surface.FileChange(sig.Element, sig.Filenames)
	case "dragstart":
		surface.DragStart(sig.Element)
	case "drop":
		surface.Drop(sig.Element, sig.PageX, sig.PageY)
	case "dragend":
		if sig.Cancelled {
			surface.DragEnd(sig.PageX, sig.PageY)
		}
	case "scroll":
		surface.Scroll(sig.Element, sig.ScrollTop, sig.ScrollHeight, sig.ClientHeight, sig.IsWindow, sig.IframeSrc)
	case "dialog":
		surface.Dialog(sig.DialogKind, sig.Message, sig.Action, sig.DialogValue)
	case "frame_focus":
		surface.FrameFocusIn(sig.FramePath, sig.IframeSrc, sig.IframeElement)
	case "frame_focus_top":
		surface.FrameFocusTop(sig.IframeSrc, sig.IframeElement)
	case "element_removed":
		surface.ElementRemoved(sig.Value)
	case "iframe_loaded":
		surface.IframeDiscovered(sig.Element, sig.IframeSrc, sig.Value, sig.Accessible)
	case "iframe_error":
		surface.IframeError(sig.Element, sig.IframeSrc, sig.Value)
	case "iframe_removed":
		surface.IframeRemoved(sig.Element, sig.IframeSrc)
	case "window_focus":
		r.reg.setActive(tab.ID)
		r.tracker.TabActivated(tab.ID, tab.WindowID)
	case "pageload":
		r.handlePageLoad(tab, surface, sig)
	default:
		log.Printf("[Recorder] Unknown signal kind %q from tab %d", sig.Kind, tab.ID)
	}
}

// handlePageLoad distinguishes reloads from real navigations and from
// the initial instrumentation of a page the timeline already knows.
func (r *Recorder) handlePageLoad(tab host.Tab, surface *capture.Surface, sig rawSignal) {
	r.mu.Lock()
	prev, seen := r.lastURL[tab.ID]
	r.lastURL[tab.ID] = sig.URL
	r.mu.Unlock()

	at := time.UnixMilli(sig.Time)
	switch {
	case sig.Value == "reload":
		r.navs.Committed(host.NavigationCommit{
			TabID: tab.ID, FrameID: 0, URL: sig.URL,
			TransitionType: "reload", Time: at,
		}, sig.Title)
	case seen && prev != sig.URL:
		r.navs.Committed(host.NavigationCommit{
			TabID: tab.ID, FrameID: 0, URL: sig.URL,
			TransitionType: "link", Time: at,
		}, sig.Title)
	case !seen:
		surface.PageLoad(sig.URL, sig.Title)
	}
}

// backfillTitleIfChanged feeds late-arriving titles to the session so
// placeholder titles on recent switch events get corrected.
func (r *Recorder) backfillTitleIfChanged(tab host.Tab) {
	r.mu.Lock()
	prev := r.lastTitle[tab.ID]
	if tab.Title != "" {
		r.lastTitle[tab.ID] = tab.Title
	}
	r.mu.Unlock()

	if tab.Title != "" && tab.Title != prev {
		r.sess.BackfillTitle(tab.ID, tab.Title, tab.URL)
	}
}

// listenForDownloads subscribes to browser-level download lifecycle
// events and feeds them to the download correlator.
func (r *Recorder) listenForDownloads(ctx context.Context) {
	chromedp.ListenBrowser(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *browser.EventDownloadWillBegin:
			r.downloads.Created(host.DownloadItem{
				ID:        r.downloadID(e.GUID),
				Filename:  e.SuggestedFilename,
				URL:       e.URL,
				StartTime: time.Now(),
			})
			// A download right after a right click is a context-menu save.
			if tab, err := r.host.ActiveTab(); err == nil {
				if surface, ok := r.surfaceFor(tab.ID); ok {
					surface.SaveAs(e.URL, e.SuggestedFilename)
				}
			}
		case *browser.EventDownloadProgress:
			var state string
			switch e.State {
			case browser.DownloadProgressStateCompleted:
				state = host.DownloadComplete
			case browser.DownloadProgressStateCanceled:
				state = host.DownloadInterrupted
			default:
				return
			}
			r.downloads.Changed(host.DownloadDelta{
				ID:    r.downloadID(e.GUID),
				State: &state,
			})
		}
	})
}

func (r *Recorder) downloadID(guid string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.dlIDs[guid]; ok {
		return id
	}
	id := r.nextDLID
	r.nextDLID++
	r.dlIDs[guid] = id
	return id
}

// pushNewEvents streams newly appended events over the websocket, if one
// is attached. Send failures detach the connection.
func (r *Recorder) pushNewEvents() {
	r.mu.Lock()
	conn := r.wsConn
	sent := r.wsSent
	r.mu.Unlock()
	if conn == nil {
		return
	}

	events := r.sess.Snapshot()
	if len(events) <= sent {
		return
	}

	for _, rec := range events[sent:] {
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[Recorder] WebSocket push failed, detaching: %v", err)
			r.mu.Lock()
			if r.wsConn == conn {
				r.wsConn = nil
			}
			r.mu.Unlock()
			return
		}
	}

	r.mu.Lock()
	if r.wsConn == conn {
		r.wsSent = len(events)
	}
	r.mu.Unlock()
}

// closeBrowser asks Chrome to shut down cleanly before the contexts are
// cancelled.
func (r *Recorder) closeBrowser() {
	if r.ctx == nil {
		return
	}
	closeCtx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
	defer cancel()
	if err := chromedp.Run(closeCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return browser.Close().Do(ctx)
	})); err != nil {
		log.Printf("[Recorder] Browser close failed (context will be cancelled): %v", err)
	}
}
