package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// recordEnvelope is the wire form of a Record; Details is deferred so it
// can be decoded into the kind's payload type.
type recordEnvelope struct {
	Kind    Kind            `json:"type"`
	Time    time.Time       `json:"time"`
	TabID   int             `json:"tab_id"`
	Details json.RawMessage `json:"details"`
}

// UnmarshalJSON decodes a record by dispatching the details payload on
// the kind. Unknown kinds decode with an empty marker payload so stored
// sequences from newer versions still load.
func (r *Record) UnmarshalJSON(data []byte) error {
	var env recordEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	r.Kind = env.Kind
	r.Time = env.Time
	r.TabID = env.TabID

	details := detailsFor(env.Kind)
	if len(env.Details) > 0 && string(env.Details) != "null" {
		if err := json.Unmarshal(env.Details, details); err != nil {
			return fmt.Errorf("decode %s details: %w", env.Kind, err)
		}
	}
	r.Details = deref(details)
	return nil
}

func detailsFor(kind Kind) interface{} {
	switch kind {
	case KindNavigation:
		return &Navigation{}
	case KindPageLoad:
		return &PageLoad{}
	case KindRefreshPage:
		return &Refresh{}
	case KindClick:
		return &Click{}
	case KindIframeClick:
		return &IframeClick{}
	case KindRightClick:
		return &RightClick{}
	case KindFindElement:
		return &FindElement{}
	case KindInput:
		return &Input{}
	case KindSelectChange:
		return &SelectChange{}
	case KindFileUpload:
		return &FileUpload{}
	case KindSendKeys:
		return &SendKeys{}
	case KindScroll:
		return &Scroll{}
	case KindDrop:
		return &Drop{}
	case KindDragEnd:
		return &DragEnd{}
	case KindDialog:
		return &Dialog{}
	case KindDownload:
		return &Download{}
	case KindTabSwitch, KindSwitchToParentWindow:
		return &TabSwitch{}
	case KindNewTabOpenedByClick:
		return &NewTab{}
	case KindWindowState, KindWindowMaximize, KindWindowMinimize, KindWindowRestore:
		return &WindowState{}
	case KindSwitchToFrame:
		return &FrameSwitch{}
	case KindSwitchToParentFrame:
		return &ParentFrameSwitch{}
	case KindIframeLoaded, KindIframeError:
		return &IframeMarker{}
	default:
		return &Marker{}
	}
}

func deref(p interface{}) Details {
	switch v := p.(type) {
	case *Navigation:
		return *v
	case *PageLoad:
		return *v
	case *Refresh:
		return *v
	case *Click:
		return *v
	case *IframeClick:
		return *v
	case *RightClick:
		return *v
	case *FindElement:
		return *v
	case *Input:
		return *v
	case *SelectChange:
		return *v
	case *FileUpload:
		return *v
	case *SendKeys:
		return *v
	case *Scroll:
		return *v
	case *Drop:
		return *v
	case *DragEnd:
		return *v
	case *Dialog:
		return *v
	case *Download:
		return *v
	case *TabSwitch:
		return *v
	case *NewTab:
		return *v
	case *WindowState:
		return *v
	case *FrameSwitch:
		return *v
	case *ParentFrameSwitch:
		return *v
	case *IframeMarker:
		return *v
	default:
		return Marker{}
	}
}
