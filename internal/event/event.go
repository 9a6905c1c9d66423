package event

import (
	"time"

	"webrecorder/backend/internal/locator"
)

// Kind identifies one normalized event type in the session timeline.
// The set is closed: the serializer matches exhaustively over it and
// drops anything it does not map to an output directive.
type Kind string

const (
	KindNavigation   Kind = "navigation"
	KindPageLoad     Kind = "pageload"
	KindRefreshPage  Kind = "RefreshCurrentPage"
	KindClick        Kind = "click"
	KindIframeClick  Kind = "iframeClick"
	KindRightClick   Kind = "rightclick"
	KindFindElement  Kind = "findElement"
	KindInput        Kind = "input"
	KindSelectChange Kind = "selectChange"
	KindFileUpload   Kind = "uploadfile"
	KindSendKeys     Kind = "sendkeys"
	KindScroll       Kind = "scroll"
	KindDrop         Kind = "drop"
	KindDragEnd      Kind = "dragend"
	KindDialog       Kind = "dialog"
	KindDownload     Kind = "download"

	KindTabSwitch            Kind = "tabswitch"
	KindSwitchToParentWindow Kind = "switchToParentWindow"
	KindNewTabOpenedByClick  Kind = "newTabOpenedByClick"

	KindWindowState    Kind = "windowState"
	KindWindowMaximize Kind = "windowMaximize"
	KindWindowMinimize Kind = "windowMinimize"
	KindWindowRestore  Kind = "windowRestore"

	KindSwitchToFrame       Kind = "switchToFrame"
	KindSwitchToParentFrame Kind = "switchToParentFrame"
	KindIframeLoaded        Kind = "iframeLoaded"
	KindIframeError         Kind = "iframeError"

	KindPause  Kind = "pause"
	KindResume Kind = "resume"
)

// Record is one entry in the session timeline. Append-only once written;
// Time is assigned at observation and only the title-backfill correction
// in the session may touch Details afterwards.
type Record struct {
	Kind    Kind      `json:"type"`
	Time    time.Time `json:"time"`
	TabID   int       `json:"tab_id"`
	Details Details   `json:"details"`
}

// Details is the per-kind payload. Each variant carries only the fields
// relevant to its kind.
type Details interface {
	isDetails()
}

// Target describes the element a pointer event landed on, captured at
// observation time because element references are not durable.
type Target struct {
	TagName   string `json:"tag_name"`
	ClassName string `json:"class_name"`
	ID        string `json:"id"`
	Text      string `json:"text,omitempty"`
	Value     string `json:"value,omitempty"`
	Type      string `json:"type,omitempty"`
	Name      string `json:"name,omitempty"`
}

type Navigation struct {
	URL            string `json:"url"`
	Title          string `json:"title,omitempty"`
	TransitionType string `json:"transition_type,omitempty"`
}

type PageLoad struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type Refresh struct {
	URL string `json:"url"`
}

type Click struct {
	Target    Target      `json:"target"`
	OffsetX   int         `json:"offset_x"`
	OffsetY   int         `json:"offset_y"`
	PageX     int         `json:"page_x"`
	PageY     int         `json:"page_y"`
	Locators  locator.Set `json:"locators"`
	IframeSrc string      `json:"iframe_src,omitempty"`
}

type IframeClick struct {
	IframeSrc string      `json:"iframe_src"`
	Target    Target      `json:"target"`
	OffsetX   int         `json:"offset_x"`
	OffsetY   int         `json:"offset_y"`
	Locators  locator.Set `json:"locators"`
}

type RightClick struct {
	Locators locator.Set `json:"locators"`
	TagName  string      `json:"tag_name"`
	// SaveAs fields are set only when the right click drove a
	// context-menu save action.
	ContextAction string `json:"context_action,omitempty"`
	URL           string `json:"url,omitempty"`
	Filename      string `json:"filename,omitempty"`
	IframeSrc     string `json:"iframe_src,omitempty"`
}

type FindElement struct {
	Locators locator.Set `json:"locators"`
	TagName  string      `json:"tag_name"`
}

type Input struct {
	Value     string      `json:"value"`
	InputType string      `json:"input_type"`
	EnterKey  bool        `json:"enter_key,omitempty"`
	Locators  locator.Set `json:"locators"`
	IframeSrc string      `json:"iframe_src,omitempty"`
}

type SelectChange struct {
	Value     string      `json:"value"`
	Locators  locator.Set `json:"locators"`
	IframeSrc string      `json:"iframe_src,omitempty"`
}

type FileUpload struct {
	Filenames []string    `json:"filenames"`
	FileCount int         `json:"file_count"`
	Locators  locator.Set `json:"locators"`
	IframeSrc string      `json:"iframe_src,omitempty"`
}

type SendKeys struct {
	Key         string      `json:"key"`
	OriginalKey string      `json:"original_key"`
	Locators    locator.Set `json:"locators"`
}

type Scroll struct {
	ScrollTop        int         `json:"scroll_top"`
	ScrollPercentage int         `json:"scroll_percentage"`
	ElementType      string      `json:"element_type"`
	IsWindow         bool        `json:"is_window"`
	Locators         locator.Set `json:"locators"`
	IframeSrc        string      `json:"iframe_src,omitempty"`
}

type Drop struct {
	SourceLocators  locator.Set `json:"source_locators"`
	TargetLocators  locator.Set `json:"target_locators"`
	SourceIframe    string      `json:"source_iframe,omitempty"`
	TargetIframe    string      `json:"target_iframe,omitempty"`
	DraggedTagName  string      `json:"dragged_tag_name"`
	DraggedID       string      `json:"dragged_id,omitempty"`
	DropTagName     string      `json:"drop_tag_name"`
	DropID          string      `json:"drop_id,omitempty"`
	PageX           int         `json:"page_x"`
	PageY           int         `json:"page_y"`
}

type DragEnd struct {
	Locators  locator.Set `json:"locators"`
	TagName   string      `json:"tag_name"`
	Cancelled bool        `json:"cancelled"`
	PageX     int         `json:"page_x"`
	PageY     int         `json:"page_y"`
}

// Dialog records the user's interaction with a native alert/confirm/prompt,
// captured at the point of invocation. Value is nil except for an accepted
// prompt.
type Dialog struct {
	DialogKind string  `json:"dialog_kind"`
	Message    string  `json:"message"`
	Action     string  `json:"action"`
	Value      *string `json:"value,omitempty"`
}

type Download struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	MIME     string `json:"mime"`
	State    string `json:"state,omitempty"`
	Error    string `json:"error,omitempty"`
}

type TabSwitch struct {
	URL              string `json:"url"`
	Title            string `json:"title"`
	WindowID         int    `json:"window_id"`
	TabID            int    `json:"tab_id"`
	PreviousWindowID int    `json:"previous_window_id,omitempty"`
}

type NewTab struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	NewTabID    int    `json:"new_tab_id"`
	OpenerTabID int    `json:"opener_tab_id"`
}

type WindowState struct {
	State         string `json:"state"`
	PreviousState string `json:"previous_state,omitempty"`
}

// FrameSwitch carries the full nested-document path, outermost to
// innermost, already joined with the frame path separator.
type FrameSwitch struct {
	Name     string      `json:"name"`
	Src      string      `json:"src,omitempty"`
	Locators locator.Set `json:"locators"`
}

type ParentFrameSwitch struct {
	IframeSrc      string      `json:"iframe_src,omitempty"`
	IframeLocators locator.Set `json:"iframe_locators"`
}

type IframeMarker struct {
	Src        string      `json:"src"`
	Name       string      `json:"name,omitempty"`
	Locators   locator.Set `json:"locators"`
	Accessible bool        `json:"accessible"`
}

// Marker is the payload for pause/resume entries.
type Marker struct{}

func (Navigation) isDetails()        {}
func (PageLoad) isDetails()          {}
func (Refresh) isDetails()           {}
func (Click) isDetails()             {}
func (IframeClick) isDetails()       {}
func (RightClick) isDetails()        {}
func (FindElement) isDetails()       {}
func (Input) isDetails()             {}
func (SelectChange) isDetails()      {}
func (FileUpload) isDetails()        {}
func (SendKeys) isDetails()          {}
func (Scroll) isDetails()            {}
func (Drop) isDetails()              {}
func (DragEnd) isDetails()           {}
func (Dialog) isDetails()            {}
func (Download) isDetails()          {}
func (TabSwitch) isDetails()         {}
func (NewTab) isDetails()            {}
func (WindowState) isDetails()       {}
func (FrameSwitch) isDetails()       {}
func (ParentFrameSwitch) isDetails() {}
func (IframeMarker) isDetails()      {}
func (Marker) isDetails()            {}
