package recorder

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"webrecorder/backend/internal/host"
)

// targetRegistry maps CDP page targets to small stable tab ids for the
// lifetime of one recording browser.
type targetRegistry struct {
	mu      sync.Mutex
	ids     map[target.ID]int
	targets map[int]target.ID
	next    int
	active  int
}

func newTargetRegistry() *targetRegistry {
	return &targetRegistry{
		ids:     make(map[target.ID]int),
		targets: make(map[int]target.ID),
		next:    1,
		active:  -1,
	}
}

// idFor returns the tab id for a target, registering it on first sight.
func (tr *targetRegistry) idFor(tid target.ID) (int, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if id, ok := tr.ids[tid]; ok {
		return id, false
	}
	id := tr.next
	tr.next++
	tr.ids[tid] = id
	tr.targets[id] = tid
	return id, true
}

func (tr *targetRegistry) targetFor(tabID int) (target.ID, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tid, ok := tr.targets[tabID]
	return tid, ok
}

func (tr *targetRegistry) setActive(tabID int) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.active = tabID
}

func (tr *targetRegistry) activeTab() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.active
}

func (tr *targetRegistry) drop(tid target.ID) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if id, ok := tr.ids[tid]; ok {
		delete(tr.ids, tid)
		delete(tr.targets, id)
	}
}

// browserHost adapts one driven Chrome instance to the capability
// surface the recording engine consumes. The engine never sees chromedp
// types.
type browserHost struct {
	mu  sync.Mutex
	ctx context.Context
	reg *targetRegistry

	// tabCtxs caches per-target chromedp contexts so repeated evaluations
	// reuse the same CDP session.
	tabCtxs map[int]context.Context

	// findElement is installed by the recorder; the host only routes.
	findElement func(tabID int) error

	menuShown bool
}

func newBrowserHost(reg *targetRegistry) *browserHost {
	return &browserHost{
		reg:     reg,
		tabCtxs: make(map[int]context.Context),
	}
}

func (h *browserHost) bind(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctx = ctx
}

func (h *browserHost) browserCtx() (context.Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx == nil {
		return nil, fmt.Errorf("recording browser not running")
	}
	return h.ctx, nil
}

// tabCtx returns a chromedp context attached to the given tab's target.
func (h *browserHost) tabCtx(tabID int) (context.Context, error) {
	h.mu.Lock()
	if ctx, ok := h.tabCtxs[tabID]; ok {
		h.mu.Unlock()
		return ctx, nil
	}
	parent := h.ctx
	h.mu.Unlock()

	if parent == nil {
		return nil, fmt.Errorf("recording browser not running")
	}
	tid, ok := h.reg.targetFor(tabID)
	if !ok {
		return nil, fmt.Errorf("unknown tab %d", tabID)
	}

	ctx, _ := chromedp.NewContext(parent, chromedp.WithTargetID(tid))

	h.mu.Lock()
	h.tabCtxs[tabID] = ctx
	h.mu.Unlock()
	return ctx, nil
}

func (h *browserHost) dropTabCtx(tabID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.tabCtxs, tabID)
}

func (h *browserHost) CurrentWindow() (host.Window, error) {
	ctx, err := h.browserCtx()
	if err != nil {
		return host.Window{}, err
	}

	var win host.Window
	err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		windowID, bounds, err := browser.GetWindowForTarget().Do(ctx)
		if err != nil {
			return err
		}
		win = host.Window{
			ID:     int(windowID),
			State:  windowStateString(bounds.WindowState),
			Width:  int(bounds.Width),
			Height: int(bounds.Height),
		}
		return nil
	}))
	return win, err
}

func (h *browserHost) GetWindow(id int) (host.Window, error) {
	// One driven browser has one window; the id is echoed back.
	win, err := h.CurrentWindow()
	if err != nil {
		return host.Window{}, err
	}
	win.ID = id
	return win, nil
}

func (h *browserHost) ScreenSize() (host.Screen, error) {
	tab, err := h.ActiveTab()
	if err != nil {
		return host.Screen{}, err
	}
	ctx, err := h.tabCtx(tab.ID)
	if err != nil {
		return host.Screen{}, err
	}

	var size [2]int
	if err := chromedp.Run(ctx, chromedp.Evaluate(`[screen.width, screen.height]`, &size)); err != nil {
		return host.Screen{}, err
	}
	return host.Screen{Width: size[0], Height: size[1]}, nil
}

func (h *browserHost) ActiveTab() (host.Tab, error) {
	tabs, err := h.AllTabs()
	if err != nil {
		return host.Tab{}, err
	}
	if len(tabs) == 0 {
		return host.Tab{}, fmt.Errorf("no page targets")
	}

	active := h.reg.activeTab()
	for _, tab := range tabs {
		if tab.ID == active {
			return tab, nil
		}
	}
	return tabs[0], nil
}

func (h *browserHost) ActiveTabInWindow(int) (host.Tab, error) {
	return h.ActiveTab()
}

func (h *browserHost) GetTab(id int) (host.Tab, error) {
	tabs, err := h.AllTabs()
	if err != nil {
		return host.Tab{}, err
	}
	for _, tab := range tabs {
		if tab.ID == id {
			return tab, nil
		}
	}
	return host.Tab{}, fmt.Errorf("unknown tab %d", id)
}

func (h *browserHost) AllTabs() ([]host.Tab, error) {
	ctx, err := h.browserCtx()
	if err != nil {
		return nil, err
	}

	infos, err := chromedp.Targets(ctx)
	if err != nil {
		return nil, err
	}

	var tabs []host.Tab
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		id, _ := h.reg.idFor(info.TargetID)
		opener := 0
		if info.OpenerID != "" {
			opener, _ = h.reg.idFor(info.OpenerID)
		}
		tabs = append(tabs, host.Tab{
			ID:          id,
			WindowID:    1,
			URL:         info.URL,
			Title:       info.Title,
			OpenerTabID: opener,
			Active:      id == h.reg.activeTab(),
		})
	}
	return tabs, nil
}

func (h *browserHost) InjectDialogHook(tabID int) error {
	ctx, err := h.tabCtx(tabID)
	if err != nil {
		return err
	}
	return chromedp.Run(ctx, chromedp.Evaluate(dialogHookScript, nil))
}

func (h *browserHost) SendRecordingState(tabID int, recording, paused bool) error {
	ctx, err := h.tabCtx(tabID)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(`window.__webRecorder && window.__webRecorder.setState(%t, %t)`, recording, paused)
	return chromedp.Run(ctx, chromedp.Evaluate(script, nil))
}

// CreateFindElementMenu marks the find-element command available. The
// driven browser has no native extension menu, so availability is only
// tracked; the command itself arrives through the control API.
func (h *browserHost) CreateFindElementMenu() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.menuShown = true
	return nil
}

func (h *browserHost) RemoveFindElementMenu() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.menuShown = false
}

func (h *browserHost) RequestFindElement(tabID int) error {
	h.mu.Lock()
	fn := h.findElement
	shown := h.menuShown
	h.mu.Unlock()

	if !shown {
		return fmt.Errorf("find-element command not available")
	}
	if fn == nil {
		return fmt.Errorf("no recorder attached")
	}
	if err := fn(tabID); err != nil {
		log.Printf("[Recorder] Find-element request for tab %d failed: %v", tabID, err)
		return err
	}
	return nil
}

func windowStateString(s browser.WindowState) string {
	switch s {
	case browser.WindowStateMaximized:
		return host.WindowStateMaximized
	case browser.WindowStateMinimized:
		return host.WindowStateMinimized
	case browser.WindowStateFullscreen:
		return host.WindowStateMaximized
	default:
		return host.WindowStateNormal
	}
}
