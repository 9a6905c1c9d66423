// Package serializer renders a recorded event sequence as a test-case
// XML document. It is a pure function of its input: no clock, no
// browser, no session state.
package serializer

import (
	"fmt"
	"strings"

	"webrecorder/backend/internal/event"
	"webrecorder/backend/internal/locator"
)

const (
	xmlHeader = "<?xml version=\"1.0\" encoding=\"UTF-8\" standalone=\"no\" ?>\n"

	testCaseOpen = "<TestCase xmlns=\"https://www.steepgraph.com\" xmlns:xsi=\"http://www.w3.org/2001/XMLSchema-instance\"\n" +
		"xsi:schemaLocation=\"https://www.steepgraph.com ../../../resources/xsd/TestAutomationFramework.xsd\">\n \n"

	loginTag = "    <Login username=\"$csv{username}\" password=\"$csv{password}\" />\n \n"

	passwordMask = "********"

	// Fixed settle wait emitted after every scroll directive.
	scrollWaitMS = 500
)

// EscapeXML escapes the five XML special characters for use in attribute
// values and text.
func EscapeXML(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		case '\'':
			b.WriteString("&apos;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// attr is one already-escaped attribute, rendered on its own line.
type attr struct {
	key   string
	value string
}

// pair is one locator alternative carried into the document.
type pair struct {
	typ  string
	expr string
}

// pairsFor flattens a locator set into ordered alternatives. The id pair
// is always present, even when empty, so every element-directed
// directive carries at least one locator attribute. XPath and CSS appear
// only when non-empty. Expressions are escaped here, once.
func pairsFor(set locator.Set) []pair {
	pairs := []pair{{typ: "id", expr: EscapeXML(strings.TrimSpace(set.ID))}}
	if strings.TrimSpace(set.XPath) != "" {
		pairs = append(pairs, pair{typ: "xpath", expr: EscapeXML(set.XPath)})
	}
	if strings.TrimSpace(set.CSS) != "" {
		pairs = append(pairs, pair{typ: "cssSelector", expr: EscapeXML(set.CSS)})
	}
	return pairs
}

// renderPairs picks one active locator line and comments out the other
// non-empty alternatives. Priority for the active pair: non-empty XPath,
// then non-empty id, then non-empty CSS; with nothing non-empty the
// (always present) id pair is used as-is. A prefix of "source"/"target"
// yields sourceLocatorType etc.
func renderPairs(pairs []pair, prefix string) (active string, comments []string) {
	attrPrefix := "l"
	if prefix != "" {
		attrPrefix = prefix + "L"
	}

	if len(pairs) == 0 {
		return fmt.Sprintf("        %socatorType=\"id\" %socatorExpression=\"\"\n", attrPrefix, attrPrefix), nil
	}

	find := func(typ string) *pair {
		for i := range pairs {
			if pairs[i].typ == typ {
				return &pairs[i]
			}
		}
		return nil
	}
	idPair, xpathPair, cssPair := find("id"), find("xpath"), find("cssSelector")

	var chosen *pair
	switch {
	case xpathPair != nil && xpathPair.expr != "":
		chosen = xpathPair
	case idPair != nil && idPair.expr != "":
		chosen = idPair
	case cssPair != nil && cssPair.expr != "":
		chosen = cssPair
	case xpathPair != nil:
		chosen = xpathPair
	case idPair != nil:
		chosen = idPair
	default:
		chosen = cssPair
	}

	if chosen != nil {
		active = fmt.Sprintf("        %socatorType=\"%s\" %socatorExpression=\"%s\"\n", attrPrefix, chosen.typ, attrPrefix, chosen.expr)
	} else {
		active = fmt.Sprintf("        %socatorType=\"xpath\" %socatorExpression=\"\"\n", attrPrefix, attrPrefix)
	}

	comment := func(p *pair) {
		if p != nil && p.expr != "" && p != chosen {
			comments = append(comments, fmt.Sprintf("    <!-- %socatorType=\"%s\" %socatorExpression=\"%s\" -->\n", attrPrefix, p.typ, attrPrefix, p.expr))
		}
	}
	comment(idPair)
	comment(xpathPair)
	comment(cssPair)
	return active, comments
}

// directive is one rendered output tag. Attribute layout is fixed: plain
// attributes first, then the active locator line(s), then the timestamp.
// Commented locator alternatives follow the closed tag.
type directive struct {
	tag       string
	attrs     []attr
	locators  []string // pre-rendered active locator lines
	timestamp string   // "" means the tag carries no timestamp
	comments  []string
	preLines  []string // comment lines emitted before the tag
	postLines []string // extra tags emitted after (scroll wait)
}

func (d directive) render(b *strings.Builder) {
	for _, line := range d.preLines {
		b.WriteString(line)
	}

	var block strings.Builder
	for _, a := range d.attrs {
		fmt.Fprintf(&block, "        %s=\"%s\"\n", a.key, a.value)
	}
	for _, line := range d.locators {
		block.WriteString(line)
	}
	if d.timestamp != "" {
		fmt.Fprintf(&block, "        timestamp=\"%s\"\n", d.timestamp)
	}

	if strings.TrimSpace(block.String()) != "" {
		fmt.Fprintf(b, "    <%s\n", d.tag)
		b.WriteString(block.String())
		b.WriteString("    />\n \n")
	} else {
		fmt.Fprintf(b, "    <%s/>\n \n", d.tag)
	}

	for _, line := range d.comments {
		b.WriteString(line)
	}
	for _, line := range d.postLines {
		b.WriteString(line)
	}
}

// Document renders the full test-case document. Events whose kind has no
// output directive (navigations, window-state markers, pause/resume,
// dialogs, informational iframe markers) are dropped; everything else
// appears in input order with timestamps relative to the first event,
// in milliseconds.
func Document(events []event.Record) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(testCaseOpen)
	b.WriteString(loginTag)

	if len(events) == 0 {
		b.WriteString("</TestCase>\n")
		return b.String()
	}

	first := events[0].Time
	for _, rec := range events {
		ts := fmt.Sprintf("%d", rec.Time.Sub(first).Milliseconds())
		if d, ok := directiveFor(rec, ts); ok {
			d.render(&b)
		}
	}

	b.WriteString("    <Logout/>\n \n")
	b.WriteString("</TestCase>\n \n")
	return b.String()
}

func directiveFor(rec event.Record, ts string) (directive, bool) {
	switch rec.Kind {

	case event.KindClick:
		e, ok := rec.Details.(event.Click)
		if !ok {
			return directive{}, false
		}
		d := directive{tag: "ClickElement", timestamp: ts}
		if e.IframeSrc != "" {
			d.attrs = append(d.attrs, attr{"iframe", EscapeXML(e.IframeSrc)})
		}
		addLocators(&d, e.Locators, "")
		return d, true

	case event.KindIframeClick:
		e, ok := rec.Details.(event.IframeClick)
		if !ok {
			return directive{}, false
		}
		d := directive{tag: "ClickElement", timestamp: ts}
		if e.IframeSrc != "" {
			d.attrs = append(d.attrs, attr{"iframe", EscapeXML(e.IframeSrc)})
		}
		addLocators(&d, e.Locators, "")
		return d, true

	case event.KindInput:
		e, ok := rec.Details.(event.Input)
		if !ok {
			return directive{}, false
		}
		var d directive
		if e.InputType == "password" {
			d = directive{tag: "Password", timestamp: ts, attrs: []attr{{"value", passwordMask}}}
		} else {
			d = directive{tag: "InputText", timestamp: ts, attrs: []attr{{"value", EscapeXML(e.Value)}}}
			if e.Locators.ID != "" {
				d.attrs = append(d.attrs, attr{"id", EscapeXML(e.Locators.ID)})
			}
		}
		if e.IframeSrc != "" {
			d.attrs = append(d.attrs, attr{"iframe", EscapeXML(e.IframeSrc)})
		}
		addLocators(&d, e.Locators, "")
		return d, true

	case event.KindSelectChange:
		e, ok := rec.Details.(event.SelectChange)
		if !ok {
			return directive{}, false
		}
		d := directive{tag: "selectelement", timestamp: ts, attrs: []attr{{"value", EscapeXML(e.Value)}}}
		if e.IframeSrc != "" {
			d.attrs = append(d.attrs, attr{"iframe", EscapeXML(e.IframeSrc)})
		}
		addLocators(&d, e.Locators, "")
		return d, true

	case event.KindTabSwitch:
		e, ok := rec.Details.(event.TabSwitch)
		if !ok {
			return directive{}, false
		}
		return directive{tag: "SwitchToWindow", attrs: []attr{{"title", EscapeXML(e.Title)}}}, true

	case event.KindWindowMaximize:
		return directive{tag: "MaximiseWindow"}, true

	case event.KindWindowMinimize:
		return directive{tag: "MinimizeWindow"}, true

	case event.KindRightClick:
		e, ok := rec.Details.(event.RightClick)
		if !ok {
			return directive{}, false
		}
		var d directive
		if e.ContextAction == "saveAs" {
			d = directive{tag: "SaveAsElement", timestamp: ts, attrs: []attr{
				{"url", EscapeXML(e.URL)},
				{"filename", EscapeXML(e.Filename)},
			}}
		} else {
			d = directive{tag: "RightClickElement", timestamp: ts}
		}
		if e.IframeSrc != "" {
			d.attrs = append(d.attrs, attr{"iframe", EscapeXML(e.IframeSrc)})
		}
		addLocators(&d, e.Locators, "")
		return d, true

	case event.KindDownload:
		e, ok := rec.Details.(event.Download)
		if !ok {
			return directive{}, false
		}
		d := directive{tag: "SaveAS", timestamp: ts, attrs: []attr{{"filename", EscapeXML(e.Filename)}}}
		addLocators(&d, locator.Set{}, "")
		return d, true

	case event.KindScroll:
		e, ok := rec.Details.(event.Scroll)
		if !ok {
			return directive{}, false
		}
		subject := e.ElementType
		if e.IsWindow {
			subject = "page"
		}
		d := directive{
			tag:       "ScrollToElement",
			timestamp: ts,
			preLines:  []string{fmt.Sprintf("    <!-- Scrolled to %d%% of %s -->\n", e.ScrollPercentage, subject)},
			postLines: []string{fmt.Sprintf("    <wait time=\"%d\"/>\n \n", scrollWaitMS)},
		}
		if !e.IsWindow && (e.Locators.ID != "" || e.Locators.CSS != "" || e.Locators.XPath != "") {
			addLocators(&d, e.Locators, "")
		} else {
			// Window scrolls and locatorless element scrolls target the page.
			d.attrs = append(d.attrs,
				attr{"locatorType", "cssSelector"},
				attr{"locatorExpression", "html"},
			)
		}
		return d, true

	case event.KindSwitchToFrame:
		e, ok := rec.Details.(event.FrameSwitch)
		if !ok {
			return directive{}, false
		}
		// The frame path separator is emitted verbatim, unescaped.
		return directive{tag: "SwitchToFrame", attrs: []attr{{"name", e.Name}}}, true

	case event.KindSwitchToParentFrame:
		return directive{tag: "SwitchToParentFrame", timestamp: ts}, true

	case event.KindSwitchToParentWindow:
		return directive{tag: "SwitchToParentWindow"}, true

	case event.KindFindElement:
		e, ok := rec.Details.(event.FindElement)
		if !ok {
			return directive{}, false
		}
		d := directive{tag: "findelement", timestamp: ts}
		addLocators(&d, e.Locators, "")
		return d, true

	case event.KindDrop:
		e, ok := rec.Details.(event.Drop)
		if !ok {
			return directive{}, false
		}
		d := directive{tag: "DragAndDrop", timestamp: ts, attrs: []attr{
			{"sourceIframe", EscapeXML(e.SourceIframe)},
			{"targetIframe", EscapeXML(e.TargetIframe)},
		}}
		addLocators(&d, e.SourceLocators, "source")
		addLocators(&d, e.TargetLocators, "target")
		return d, true

	case event.KindDragEnd:
		e, ok := rec.Details.(event.DragEnd)
		if !ok {
			return directive{}, false
		}
		d := directive{tag: "DragEnd", timestamp: ts, attrs: []attr{
			{"cancelled", fmt.Sprintf("%t", e.Cancelled)},
		}}
		addLocators(&d, e.Locators, "")
		return d, true

	case event.KindRefreshPage:
		return directive{tag: "RefreshCurrentPage"}, true

	case event.KindFileUpload:
		e, ok := rec.Details.(event.FileUpload)
		if !ok {
			return directive{}, false
		}
		d := directive{tag: "FileUpload", timestamp: ts, attrs: []attr{
			{"files", EscapeXML(strings.Join(e.Filenames, ", "))},
		}}
		if e.IframeSrc != "" {
			d.attrs = append(d.attrs, attr{"iframe", EscapeXML(e.IframeSrc)})
		}
		addLocators(&d, e.Locators, "")
		return d, true

	case event.KindSendKeys:
		e, ok := rec.Details.(event.SendKeys)
		if !ok {
			return directive{}, false
		}
		return directive{tag: "SendKeys", attrs: []attr{{"key", EscapeXML(e.Key)}}}, true

	default:
		return directive{}, false
	}
}

func addLocators(d *directive, set locator.Set, prefix string) {
	active, comments := renderPairs(pairsFor(set), prefix)
	d.locators = append(d.locators, active)
	d.comments = append(d.comments, comments...)
}
