package recorder

import (
	"fmt"
	"sync"
	"time"

	"webrecorder/backend/internal/config"
)

// RecorderManager tracks live and recently stopped recorders by session
// id. Stopped recorders stay until saved or swept by the janitor.
type RecorderManager struct {
	mu        sync.RWMutex
	cfg       config.RecorderConfig
	chrome    config.ChromeConfig
	recorders map[string]*Recorder
}

var Manager = &RecorderManager{
	recorders: make(map[string]*Recorder),
}

// Configure installs the recorder tunables; call once at startup.
func (rm *RecorderManager) Configure(cfg config.RecorderConfig, chromeCfg config.ChromeConfig) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.cfg = cfg
	rm.chrome = chromeCfg
}

func (rm *RecorderManager) StartRecording(sessionID, targetURL string) error {
	rm.mu.Lock()
	if _, exists := rm.recorders[sessionID]; exists {
		rm.mu.Unlock()
		return fmt.Errorf("recording session %s already exists", sessionID)
	}
	if rm.chrome.MaxInstances > 0 && len(rm.recorders) >= rm.chrome.MaxInstances {
		rm.mu.Unlock()
		return fmt.Errorf("maximum number of concurrent recording sessions reached")
	}
	r := NewRecorder(sessionID, rm.cfg, rm.chrome)
	rm.recorders[sessionID] = r
	rm.mu.Unlock()

	if err := r.StartRecording(targetURL); err != nil {
		rm.mu.Lock()
		delete(rm.recorders, sessionID)
		rm.mu.Unlock()
		return err
	}
	return nil
}

func (rm *RecorderManager) StopRecording(sessionID string) error {
	r, ok := rm.Get(sessionID)
	if !ok {
		return fmt.Errorf("recording session %s not found", sessionID)
	}
	// The recorder stays registered so the timeline can still be saved
	// and exported; CleanupRecording removes it.
	return r.StopRecording()
}

func (rm *RecorderManager) Get(sessionID string) (*Recorder, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	r, ok := rm.recorders[sessionID]
	return r, ok
}

func (rm *RecorderManager) CleanupRecording(sessionID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.recorders, sessionID)
}

// Sweep drops recorders that stopped before the cutoff and prunes stale
// pending downloads on the live ones. Returns the number of recorders
// removed.
func (rm *RecorderManager) Sweep(stoppedBefore time.Time, downloadMaxAge time.Duration) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	removed := 0
	for id, r := range rm.recorders {
		if at := r.StoppedAt(); !at.IsZero() && at.Before(stoppedBefore) {
			delete(rm.recorders, id)
			removed++
			continue
		}
		r.PruneDownloads(downloadMaxAge)
	}
	return removed
}

// Sessions lists the known session ids.
func (rm *RecorderManager) Sessions() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]string, 0, len(rm.recorders))
	for id := range rm.recorders {
		out = append(out, id)
	}
	return out
}
