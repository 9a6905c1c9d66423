package serializer

import (
	"strings"
	"testing"
	"time"

	"webrecorder/backend/internal/event"
	"webrecorder/backend/internal/locator"
)

var base = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func rec(kind event.Kind, details event.Details, offset time.Duration) event.Record {
	return event.Record{Kind: kind, Time: base.Add(offset), TabID: 1, Details: details}
}

func TestDocumentEnvelope(t *testing.T) {
	doc := Document(nil)

	for _, want := range []string{
		"<?xml version=\"1.0\" encoding=\"UTF-8\" standalone=\"no\" ?>\n",
		"xmlns=\"https://www.steepgraph.com\"",
		"<Login username=\"$csv{username}\" password=\"$csv{password}\" />",
		"</TestCase>\n",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q", want)
		}
	}
	if strings.Contains(doc, "<Logout/>") {
		t.Error("empty document should not carry a Logout step")
	}
}

func TestDocumentEndsWithLogout(t *testing.T) {
	doc := Document([]event.Record{
		rec(event.KindClick, event.Click{Locators: locator.Set{ID: "a"}}, 0),
	})
	if !strings.HasSuffix(doc, "    <Logout/>\n \n</TestCase>\n \n") {
		t.Errorf("document tail = %q", doc[len(doc)-60:])
	}
}

func TestRelativeTimestamps(t *testing.T) {
	doc := Document([]event.Record{
		rec(event.KindClick, event.Click{Locators: locator.Set{ID: "first"}}, 0),
		rec(event.KindClick, event.Click{Locators: locator.Set{ID: "second"}}, 1500*time.Millisecond),
	})

	if !strings.Contains(doc, "timestamp=\"0\"") {
		t.Error("first event should be at relative time 0")
	}
	if !strings.Contains(doc, "timestamp=\"1500\"") {
		t.Error("second event should be 1500ms after the first")
	}
}

func TestLocatorPriorityXPathWins(t *testing.T) {
	doc := Document([]event.Record{
		rec(event.KindClick, event.Click{Locators: locator.Set{
			ID:    "btn",
			CSS:   "button.primary",
			XPath: "//button[@id='btn']",
		}}, 0),
	})

	if !strings.Contains(doc, "locatorType=\"xpath\" locatorExpression=\"//button[@id=&apos;btn&apos;]\"") {
		t.Errorf("active locator is not the xpath:\n%s", doc)
	}
	if !strings.Contains(doc, "<!-- locatorType=\"id\" locatorExpression=\"btn\" -->") {
		t.Error("id alternative should be commented out")
	}
	if !strings.Contains(doc, "<!-- locatorType=\"cssSelector\" locatorExpression=\"button.primary\" -->") {
		t.Error("css alternative should be commented out")
	}
}

func TestLocatorFallbackChain(t *testing.T) {
	tests := []struct {
		name string
		set  locator.Set
		want string
	}{
		{
			name: "id when no xpath",
			set:  locator.Set{ID: "go", CSS: "a.go"},
			want: "locatorType=\"id\" locatorExpression=\"go\"",
		},
		{
			name: "css when nothing else",
			set:  locator.Set{CSS: "a.go"},
			want: "locatorType=\"cssSelector\" locatorExpression=\"a.go\"",
		},
		{
			name: "empty id when no locator at all",
			set:  locator.Set{},
			want: "locatorType=\"id\" locatorExpression=\"\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Document([]event.Record{rec(event.KindClick, event.Click{Locators: tt.set}, 0)})
			if !strings.Contains(doc, tt.want) {
				t.Errorf("missing %q in:\n%s", tt.want, doc)
			}
		})
	}
}

func TestInputAndPasswordDirectives(t *testing.T) {
	doc := Document([]event.Record{
		rec(event.KindInput, event.Input{
			Value:     "hello & <world>",
			InputType: "text",
			Locators:  locator.Set{ID: "msg"},
		}, 0),
		rec(event.KindInput, event.Input{
			Value:     "********",
			InputType: "password",
			Locators:  locator.Set{ID: "pw"},
		}, time.Second),
	})

	if !strings.Contains(doc, "<InputText\n") {
		t.Error("missing InputText directive")
	}
	if !strings.Contains(doc, "value=\"hello &amp; &lt;world&gt;\"") {
		t.Error("input value is not XML-escaped")
	}
	if !strings.Contains(doc, "id=\"msg\"") {
		t.Error("InputText should carry the element id attribute")
	}
	if !strings.Contains(doc, "<Password\n") || !strings.Contains(doc, "value=\"********\"") {
		t.Error("password input should render a masked Password directive")
	}
	if strings.Contains(doc, "hunter") {
		t.Error("real password leaked into document")
	}
}

func TestScrollDirective(t *testing.T) {
	doc := Document([]event.Record{
		rec(event.KindScroll, event.Scroll{
			ScrollTop:        600,
			ScrollPercentage: 40,
			ElementType:      "DIV",
			Locators:         locator.Set{ID: "list"},
		}, 0),
		rec(event.KindScroll, event.Scroll{
			ScrollPercentage: 80,
			IsWindow:         true,
			ElementType:      "window",
		}, time.Second),
	})

	if !strings.Contains(doc, "<!-- Scrolled to 40% of DIV -->") {
		t.Error("missing element scroll comment")
	}
	if !strings.Contains(doc, "<!-- Scrolled to 80% of page -->") {
		t.Error("window scroll comment should name the page")
	}
	if !strings.Contains(doc, "locatorType=\"cssSelector\"\n        locatorExpression=\"html\"") {
		t.Errorf("window scroll should target html:\n%s", doc)
	}
	if n := strings.Count(doc, "<wait time=\"500\"/>"); n != 2 {
		t.Errorf("wait tags = %d, want one per scroll", n)
	}
}

func TestWindowAndFrameDirectives(t *testing.T) {
	doc := Document([]event.Record{
		rec(event.KindTabSwitch, event.TabSwitch{Title: "Dash <board>", URL: "https://x", WindowID: 2, TabID: 5}, 0),
		rec(event.KindWindowMaximize, event.WindowState{State: "maximized"}, time.Second),
		rec(event.KindWindowMinimize, event.WindowState{State: "minimized"}, 2*time.Second),
		rec(event.KindSwitchToFrame, event.FrameSwitch{Name: "outer=>inner"}, 3*time.Second),
		rec(event.KindSwitchToParentFrame, event.ParentFrameSwitch{}, 4*time.Second),
		rec(event.KindSwitchToParentWindow, event.TabSwitch{Title: "Home"}, 5*time.Second),
	})

	if !strings.Contains(doc, "title=\"Dash &lt;board&gt;\"") {
		t.Error("SwitchToWindow title not escaped")
	}
	if !strings.Contains(doc, "<MaximiseWindow/>") || !strings.Contains(doc, "<MinimizeWindow/>") {
		t.Error("window shape directives missing or carrying attributes")
	}
	// The frame path separator must survive verbatim.
	if !strings.Contains(doc, "name=\"outer=>inner\"") {
		t.Errorf("frame path was escaped or lost:\n%s", doc)
	}
	if !strings.Contains(doc, "<SwitchToParentFrame\n        timestamp=\"4000\"") {
		t.Error("SwitchToParentFrame should carry only a timestamp")
	}
	if !strings.Contains(doc, "<SwitchToParentWindow/>") {
		t.Error("SwitchToParentWindow should carry no attributes")
	}
}

func TestDropDirectiveUsesPrefixedPairs(t *testing.T) {
	doc := Document([]event.Record{
		rec(event.KindDrop, event.Drop{
			SourceLocators: locator.Set{ID: "card-1", XPath: "//div[@id='card-1']"},
			TargetLocators: locator.Set{CSS: "ul.done"},
		}, 0),
	})

	if !strings.Contains(doc, "<DragAndDrop\n") {
		t.Fatal("missing DragAndDrop directive")
	}
	if !strings.Contains(doc, "sourceLocatorType=\"xpath\"") {
		t.Error("source should pick its xpath")
	}
	if !strings.Contains(doc, "targetLocatorType=\"cssSelector\" targetLocatorExpression=\"ul.done\"") {
		t.Error("target should fall back to css")
	}
	if !strings.Contains(doc, "sourceIframe=\"\"") || !strings.Contains(doc, "targetIframe=\"\"") {
		t.Error("iframe attributes should be present even when empty")
	}
	if !strings.Contains(doc, "<!-- sourceLocatorType=\"id\" sourceLocatorExpression=\"card-1\" -->") {
		t.Error("source id alternative should be commented with its prefix")
	}
}

func TestBookkeepingEventsDropped(t *testing.T) {
	v := "ok"
	doc := Document([]event.Record{
		rec(event.KindNavigation, event.Navigation{URL: "https://x"}, 0),
		rec(event.KindPageLoad, event.PageLoad{URL: "https://x"}, time.Second),
		rec(event.KindWindowState, event.WindowState{State: "normal"}, 2*time.Second),
		rec(event.KindWindowRestore, event.WindowState{State: "normal"}, 3*time.Second),
		rec(event.KindPause, event.Marker{}, 4*time.Second),
		rec(event.KindResume, event.Marker{}, 5*time.Second),
		rec(event.KindNewTabOpenedByClick, event.NewTab{Title: "t"}, 6*time.Second),
		rec(event.KindIframeLoaded, event.IframeMarker{Src: "https://f"}, 7*time.Second),
		rec(event.KindDialog, event.Dialog{DialogKind: "prompt", Message: "name?", Action: "accept", Value: &v}, 8*time.Second),
		rec(event.KindClick, event.Click{Locators: locator.Set{ID: "only"}}, 9*time.Second),
	})

	if n := strings.Count(doc, "timestamp="); n != 1 {
		t.Errorf("timestamped directives = %d, want only the click", n)
	}
	if !strings.Contains(doc, "locatorExpression=\"only\"") {
		t.Error("the click directive itself is missing")
	}
}

func TestMiscDirectives(t *testing.T) {
	doc := Document([]event.Record{
		rec(event.KindRefreshPage, event.Refresh{URL: "https://x"}, 0),
		rec(event.KindSendKeys, event.SendKeys{Key: "ARROW_DOWN"}, time.Second),
		rec(event.KindFileUpload, event.FileUpload{
			Filenames: []string{"a.csv", "b.csv"},
			Locators:  locator.Set{ID: "upload"},
		}, 2*time.Second),
		rec(event.KindDownload, event.Download{Filename: "report.pdf"}, 3*time.Second),
		rec(event.KindDragEnd, event.DragEnd{Cancelled: true, Locators: locator.Set{ID: "card"}}, 4*time.Second),
		rec(event.KindRightClick, event.RightClick{
			ContextAction: "saveAs",
			URL:           "https://x/img.png",
			Filename:      "img.png",
			Locators:      locator.Set{ID: "img"},
		}, 5*time.Second),
	})

	for _, want := range []string{
		"<RefreshCurrentPage/>",
		"key=\"ARROW_DOWN\"",
		"files=\"a.csv, b.csv\"",
		"<SaveAS\n        filename=\"report.pdf\"",
		"cancelled=\"true\"",
		"<SaveAsElement\n        url=\"https://x/img.png\"",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q", want)
		}
	}
	// Downloads carry no DOM locators; the empty id pair stands in.
	if !strings.Contains(doc, "<SaveAS\n        filename=\"report.pdf\"\n        locatorType=\"id\" locatorExpression=\"\"") {
		t.Errorf("download locator placeholder missing:\n%s", doc)
	}
}

func TestEscapeXML(t *testing.T) {
	got := EscapeXML(`a<b>&'c"`)
	want := "a&lt;b&gt;&amp;&apos;c&quot;"
	if got != want {
		t.Errorf("EscapeXML = %q, want %q", got, want)
	}
}
