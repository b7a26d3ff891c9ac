/*
Copyright © 2025 the AERIS authors.
This file is part of AERIS.

AERIS is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

AERIS is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with AERIS.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package sched runs the hourly beat: each task fires once per hour at
// its fixed minute, in UTC. Ingestion runs at :00, scoring at :15,
// exposure at :20, and alerting at :25 so each stage sees the previous
// stage's output.
package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aerisnav/aeris/internal/metrics"
)

// Task is one hourly job.
type Task struct {
	Name    string
	Minute  int
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler drives the beat loop.
type Scheduler struct {
	Tasks []Task
	Log   logrus.FieldLogger

	// now is swapped in tests.
	now func() time.Time
}

func (s *Scheduler) logger() logrus.FieldLogger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

func (s *Scheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// nextRun is the first instant at or after now landing on the task's
// minute.
func nextRun(now time.Time, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(time.Hour)
	}
	return next
}

// Run blocks until ctx is canceled, firing each task at its minute. A
// task failure or panic is logged and the loop keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.Tasks) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		now := s.clock()
		var soonest time.Time
		for _, t := range s.Tasks {
			n := nextRun(now, t.Minute)
			if soonest.IsZero() || n.Before(soonest) {
				soonest = n
			}
		}
		timer := time.NewTimer(soonest.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		for _, t := range s.Tasks {
			if nextRun(now, t.Minute).Equal(soonest) {
				s.runTask(ctx, t)
			}
		}
	}
}

// runTask executes one task under its timeout, absorbing errors and
// panics.
func (s *Scheduler) runTask(ctx context.Context, t Task) {
	log := s.logger().WithField("task", t.Name)
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return t.Run(tctx)
	}()
	if err != nil {
		metrics.TaskRuns.WithLabelValues(t.Name, "error").Inc()
		log.WithError(err).WithField("elapsed", time.Since(start).Round(time.Millisecond)).
			Error("task failed")
		return
	}
	metrics.TaskRuns.WithLabelValues(t.Name, "ok").Inc()
	log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("task complete")
}
