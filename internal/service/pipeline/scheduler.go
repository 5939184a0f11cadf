package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"raillake/internal/domain"
)

// Scheduler triggers full pipeline runs on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	svc    *PipelineService
	logger *slog.Logger

	mu    sync.Mutex
	spec  string
	entry cron.EntryID
	armed bool
}

// NewScheduler creates a scheduler that triggers one scheduled run per tick
// of the cron spec. Nothing is armed until Start.
func NewScheduler(svc *PipelineService, spec string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		svc:    svc,
		logger: logger,
		spec:   spec,
	}
}

// Start arms the schedule and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.arm(s.spec); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("pipeline scheduler started", "schedule", s.spec)
	return nil
}

// Stop stops the cron loop. A run already in flight keeps going.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("pipeline scheduler stopped")
}

// Reload swaps the schedule for a new cron spec. An invalid spec leaves the
// current schedule in place.
func (s *Scheduler) Reload(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.arm(spec); err != nil {
		return err
	}
	s.spec = spec
	s.logger.Info("pipeline schedule reloaded", "schedule", spec)
	return nil
}

// arm replaces the current cron entry with one for spec.
func (s *Scheduler) arm(spec string) error {
	entry, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return domain.ErrValidation("invalid cron schedule %q: %v", spec, err)
	}
	if s.armed {
		s.cron.Remove(s.entry)
	}
	s.entry = entry
	s.armed = true
	return nil
}

func (s *Scheduler) tick() {
	run, err := s.svc.TriggerRun(context.Background(), domain.TriggerTypeScheduled)
	if err != nil {
		s.logger.Warn("scheduled trigger failed", "error", err)
		return
	}
	s.logger.Info("scheduled run triggered", "run_id", run.ID)
}
