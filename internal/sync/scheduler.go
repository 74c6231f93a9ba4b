package sync

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"nps-sync-service/internal/config"
	"nps-sync-service/internal/logger"
)

type Scheduler struct {
	cfg     config.SchedulerConfig
	manager *Manager
	cron    *cron.Cron
	entryID cron.EntryID
	active  atomic.Bool

	// ctx is handed to every scheduled run and cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(cfg config.SchedulerConfig, manager *Manager) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:     cfg,
		manager: manager,
		cron:    cron.New(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return nil
	}

	logger.Log.Info("Starting scheduler", zap.String("interval", s.cfg.Interval))

	id, err := s.cron.AddFunc(s.cfg.Interval, func() {
		s.triggerSync()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sync %q: %w", s.cfg.Interval, err)
	}

	s.entryID = id
	s.cron.Start()
	return nil
}

// Stop halts the cron, cancels a run in progress and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	logger.Log.Info("Stopped scheduler")
}

func (s *Scheduler) triggerSync() {
	if !s.active.CompareAndSwap(false, true) {
		logger.Log.Info("Scheduled sync still running, skipping this run")
		return
	}
	defer s.active.Store(false)

	if s.ctx.Err() != nil {
		return
	}
	logger.Log.Info("Triggering scheduled sync")
	if err := s.manager.SyncAll(s.ctx); err != nil {
		logger.Log.Error("Scheduled sync finished with errors", zap.Error(err))
	}
}
