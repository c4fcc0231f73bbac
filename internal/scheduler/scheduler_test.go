// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"testing"
	"time"

	"github.com/verso-cms/verso/internal/testutil"
)

func TestNew(t *testing.T) {
	logger := testutil.TestLoggerSilent()

	s := New(nil, nil, 30*24*time.Hour, logger)
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.cron == nil {
		t.Error("New() scheduler has nil cron")
	}
	if s.logger != logger {
		t.Error("New() scheduler has wrong logger")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(nil, nil, time.Hour, testutil.TestLoggerSilent())

	if err := s.Start("@every 15m", "@daily"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := len(s.cron.Entries()); got != 2 {
		t.Errorf("Start() registered %d jobs, want 2", got)
	}

	s.Stop()
}

func TestScheduler_RejectsBadSchedule(t *testing.T) {
	s := New(nil, nil, time.Hour, testutil.TestLoggerSilent())

	if err := s.Start("not a schedule", "@daily"); err == nil {
		t.Error("Start() accepted an invalid gc schedule")
	}

	s = New(nil, nil, time.Hour, testutil.TestLoggerSilent())
	if err := s.Start("@every 15m", "nope"); err == nil {
		t.Error("Start() accepted an invalid purge schedule")
	}
}
