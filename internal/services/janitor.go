package services

import (
	"log"
	"time"

	"webrecorder/backend/internal/config"
	"webrecorder/backend/internal/recorder"

	"github.com/robfig/cron/v3"
)

// JanitorService periodically disposes of stopped recording sessions
// that were never saved and prunes stale download bookkeeping.
type JanitorService struct {
	cron *cron.Cron
	cfg  config.RecorderConfig
}

var GlobalJanitor *JanitorService

const staleSessionAge = 30 * time.Minute

func InitJanitor(cfg config.RecorderConfig) error {
	GlobalJanitor = &JanitorService{
		cron: cron.New(),
		cfg:  cfg,
	}

	_, err := GlobalJanitor.cron.AddFunc("@every 5m", GlobalJanitor.sweep)
	if err != nil {
		return err
	}

	GlobalJanitor.cron.Start()
	log.Println("Janitor service initialized")
	return nil
}

func (j *JanitorService) sweep() {
	downloadMaxAge := time.Duration(j.cfg.DownloadMaxAgeMin) * time.Minute
	removed := recorder.Manager.Sweep(time.Now().Add(-staleSessionAge), downloadMaxAge)
	if removed > 0 {
		log.Printf("[Janitor] Removed %d abandoned recording sessions", removed)
	}
}

func (j *JanitorService) Stop() {
	if j.cron != nil {
		j.cron.Stop()
	}
}
