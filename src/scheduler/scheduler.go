package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/username/ahorrito/src/logger"
	"github.com/username/ahorrito/src/services"
)

// Scheduler runs the pending-transaction sweep on a cron schedule. The
// sweep may overlap live ingestion; the service's status guards make
// that safe.
type Scheduler struct {
	c       *cron.Cron
	service services.TransactionService
	spec    string
}

func New(service services.TransactionService, spec string) *Scheduler {
	return &Scheduler{
		c:       cron.New(),
		service: service,
		spec:    spec,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.c.AddFunc(s.spec, s.runSweep); err != nil {
		return err
	}
	s.c.Start()
	logger.L.Info("Pending sweep scheduled", "spec", s.spec)
	return nil
}

func (s *Scheduler) Stop() {
	s.c.Stop()
	logger.L.Info("Pending sweep scheduler stopped")
}

func (s *Scheduler) runSweep() {
	report, err := s.service.ProcessAllPending()
	if err != nil {
		logger.L.Error("Scheduled pending sweep failed", "error", err)
		return
	}
	if report.Scanned > 0 {
		logger.L.Info("Scheduled pending sweep completed",
			"scanned", report.Scanned,
			"completed", len(report.Completed),
			"failed", len(report.Failed))
	}
}
