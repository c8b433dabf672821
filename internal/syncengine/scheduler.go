package syncengine

import (
	"context"
	"log"
	"time"

	"github.com/agrivo/farmcore/internal/config"
	"github.com/robfig/cron/v3"
)

// Scheduler periodically drains the outbox on a cron schedule. Snapshot
// pulls stay on-demand because they are scoped to one caller's farm and
// role; replay needs no caller, every item carries its own identity.
type Scheduler struct {
	cron   *cron.Cron
	engine *Engine
	cfg    config.SyncConfig
}

// NewScheduler creates a replay scheduler from sync configuration
func NewScheduler(engine *Engine, cfg config.SyncConfig) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		engine: engine,
		cfg:    cfg,
	}
}

// Start registers the cron entry and begins scheduling
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.run); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("⏰ Sync scheduler started (%s)", s.cfg.Schedule)
	return nil
}

// Stop halts scheduling; a running replay finishes its batch
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("🛑 Sync scheduler stopped")
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	summary, err := s.engine.Replay(ctx, s.cfg.ReplayLimit)
	if err != nil {
		log.Printf("⚠️ Scheduled replay failed: %v", err)
		return
	}
	if summary.Attempted > 0 {
		log.Printf("✅ Scheduled replay: %d attempted, %d succeeded, %d failed",
			summary.Attempted, summary.Succeeded, summary.Failed)
	}
}
