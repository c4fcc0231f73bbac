// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs the periodic maintenance jobs: asset garbage
// collection sweeps, purging of expired soft-deleted drafts, and
// re-queueing of webhook deliveries left pending by a restart.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/verso-cms/verso/internal/assetgc"
	"github.com/verso-cms/verso/internal/webhook"
)

// requeueBatch caps how many stuck deliveries a single requeue pass loads.
const requeueBatch = 50

// Scheduler drives the background maintenance jobs on cron schedules.
type Scheduler struct {
	cron      *cron.Cron
	collector *assetgc.Collector
	webhooks  *webhook.Dispatcher
	retention time.Duration
	logger    *slog.Logger
}

// New creates a scheduler wired to the garbage collector and webhook
// dispatcher. The webhook dispatcher may be nil when webhooks are disabled.
func New(collector *assetgc.Collector, webhooks *webhook.Dispatcher, retention time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		collector: collector,
		webhooks:  webhooks,
		retention: retention,
		logger:    logger,
	}
}

// Start registers the jobs and begins the cron loop. gcSchedule and
// purgeSchedule use cron syntax, including @every and @daily descriptors.
func (s *Scheduler) Start(gcSchedule, purgeSchedule string) error {
	if _, err := s.cron.AddFunc(gcSchedule, s.runSweep); err != nil {
		return fmt.Errorf("registering gc sweep job: %w", err)
	}
	if _, err := s.cron.AddFunc(purgeSchedule, s.runPurge); err != nil {
		return fmt.Errorf("registering draft purge job: %w", err)
	}
	if s.webhooks != nil {
		if _, err := s.cron.AddFunc(gcSchedule, s.runRequeue); err != nil {
			return fmt.Errorf("registering webhook requeue job: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
	return nil
}

// Stop stops the cron loop and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runSweep() {
	s.logger.Debug("running asset gc sweep")
	s.collector.Sweep(context.Background())
}

func (s *Scheduler) runPurge() {
	s.logger.Debug("running draft purge", "retention", s.retention)
	s.collector.PurgeDrafts(context.Background(), s.retention)
}

func (s *Scheduler) runRequeue() {
	s.webhooks.Requeue(context.Background(), requeueBatch)
}
