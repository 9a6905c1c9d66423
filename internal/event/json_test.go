package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webrecorder/backend/internal/locator"
)

func TestRecordRoundTrip(t *testing.T) {
	in := []Record{
		{
			Kind:  KindClick,
			Time:  time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
			TabID: 10,
			Details: Click{
				Target:   Target{TagName: "BUTTON", ID: "go"},
				OffsetX:  3,
				Locators: locator.Set{ID: "go", CSS: "button", XPath: "//button[@id='go']"},
			},
		},
		{
			Kind:    KindTabSwitch,
			Time:    time.Date(2025, 6, 1, 10, 0, 5, 0, time.UTC),
			TabID:   11,
			Details: TabSwitch{URL: "https://x", Title: "X", WindowID: 2, TabID: 11},
		},
		{
			Kind:    KindPause,
			Time:    time.Date(2025, 6, 1, 10, 0, 9, 0, time.UTC),
			TabID:   11,
			Details: Marker{},
		},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out []Record
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, len(in))

	click, ok := out[0].Details.(Click)
	require.True(t, ok, "details type = %T", out[0].Details)
	assert.Equal(t, "go", click.Locators.ID)
	assert.Equal(t, "//button[@id='go']", click.Locators.XPath)

	sw, ok := out[1].Details.(TabSwitch)
	require.True(t, ok)
	assert.Equal(t, "X", sw.Title)

	_, ok = out[2].Details.(Marker)
	assert.True(t, ok)
	assert.Equal(t, in[0].Time, out[0].Time)
}

func TestUnmarshalUnknownKind(t *testing.T) {
	var rec Record
	err := json.Unmarshal([]byte(`{"type":"somethingNew","time":"2025-06-01T10:00:00Z","tab_id":1,"details":{"x":1}}`), &rec)
	require.NoError(t, err)
	assert.Equal(t, Kind("somethingNew"), rec.Kind)
	_, ok := rec.Details.(Marker)
	assert.True(t, ok, "unknown kinds fall back to a marker payload")
}

func TestParentWindowSwitchSharesPayload(t *testing.T) {
	var rec Record
	err := json.Unmarshal([]byte(`{"type":"switchToParentWindow","time":"2025-06-01T10:00:00Z","tab_id":1,"details":{"url":"https://h","title":"Home","window_id":1,"tab_id":10}}`), &rec)
	require.NoError(t, err)
	sw, ok := rec.Details.(TabSwitch)
	require.True(t, ok)
	assert.Equal(t, "Home", sw.Title)
}
