package capture

import (
	"webrecorder/backend/internal/event"
	"webrecorder/backend/internal/host"
	"webrecorder/backend/internal/session"
)

// navigationTransitions maps browser transition classifications to a
// logged navigation. Anything absent (e.g. client redirects, subframe
// loads) is ignored.
var navigationTransitions = map[string]bool{
	"link":          true,
	"typed":         true,
	"form_submit":   true,
	"auto_bookmark": true,
	"start_page":    true,
	"generated":     true,
}

// Navigations turns committed top-level navigations into timeline
// events: reloads become refresh events, address-bar and link
// navigations become navigation events.
type Navigations struct {
	sess *session.Session
}

func NewNavigations(sess *session.Session) *Navigations {
	return &Navigations{sess: sess}
}

// Committed handles one navigation-commit notification. Only the
// top-level frame is considered.
func (n *Navigations) Committed(c host.NavigationCommit, title string) {
	if c.FrameID != 0 || !n.sess.Effective() {
		return
	}

	switch {
	case c.TransitionType == "reload":
		n.sess.AppendAt(event.KindRefreshPage, event.Refresh{URL: c.URL}, c.TabID, c.Time)
	case navigationTransitions[c.TransitionType]:
		n.sess.AppendAt(event.KindNavigation, event.Navigation{
			URL:            c.URL,
			Title:          title,
			TransitionType: c.TransitionType,
		}, c.TabID, c.Time)
	}
}
