package capture

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"webrecorder/backend/internal/event"
	"webrecorder/backend/internal/host"
	"webrecorder/backend/internal/session"
)

// Downloads correlates download-created notifications with their later
// state changes and logs one timeline event per finished download, at
// the download's original start time so the timeline stays chronological.
type Downloads struct {
	sess *session.Session

	mu      sync.Mutex
	pending map[int]host.DownloadItem
}

func NewDownloads(sess *session.Session) *Downloads {
	return &Downloads{
		sess:    sess,
		pending: make(map[int]host.DownloadItem),
	}
}

// Created tracks a new download while effectively recording. Nothing is
// logged yet; the filename is often not final at this point.
func (d *Downloads) Created(item host.DownloadItem) {
	if !d.sess.Effective() {
		return
	}
	if item.StartTime.IsZero() {
		item.StartTime = time.Now()
	}

	d.mu.Lock()
	d.pending[item.ID] = item
	d.mu.Unlock()
}

// Changed applies a delta to a tracked download. Terminal states emit the
// timeline event and drop the tracking entry.
func (d *Downloads) Changed(delta host.DownloadDelta) {
	d.mu.Lock()
	item, ok := d.pending[delta.ID]
	if !ok {
		d.mu.Unlock()
		return
	}

	if delta.Filename != nil && *delta.Filename != "" {
		item.Filename = *delta.Filename
		d.pending[delta.ID] = item
	}

	var state, errReason string
	if delta.State != nil {
		state = *delta.State
	}
	if delta.Error != nil {
		errReason = *delta.Error
	}
	terminal := state == host.DownloadComplete || state == host.DownloadInterrupted
	if terminal {
		delete(d.pending, delta.ID)
	}
	d.mu.Unlock()

	if !terminal {
		return
	}
	if !d.sess.Effective() {
		return
	}

	if state == host.DownloadInterrupted {
		log.Printf("[Downloads] Download %d interrupted: %s (%s)", delta.ID, item.Filename, errReason)
	}

	d.sess.AppendAt(event.KindDownload, event.Download{
		Filename: filepath.Base(item.Filename),
		URL:      item.URL,
		MIME:     item.MIME,
		State:    state,
		Error:    errReason,
	}, 0, item.StartTime)
}

// PruneStale drops tracking entries older than maxAge, plus everything
// when recording has stopped. Run periodically by the janitor.
func (d *Downloads) PruneStale(maxAge time.Duration) int {
	effective := d.sess.Effective()
	cutoff := time.Now().Add(-maxAge)

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for id, item := range d.pending {
		if !effective || item.StartTime.Before(cutoff) {
			delete(d.pending, id)
			removed++
		}
	}
	return removed
}

// Tracked reports how many downloads are awaiting a terminal state.
func (d *Downloads) Tracked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
