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

package sched

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNextRun(t *testing.T) {
	base := time.Date(2025, 6, 3, 14, 10, 30, 0, time.UTC)
	tests := []struct {
		minute int
		want   time.Time
	}{
		{15, time.Date(2025, 6, 3, 14, 15, 0, 0, time.UTC)},
		{10, time.Date(2025, 6, 3, 15, 10, 0, 0, time.UTC)}, // :10 already passed
		{0, time.Date(2025, 6, 3, 15, 0, 0, 0, time.UTC)},
		{25, time.Date(2025, 6, 3, 14, 25, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := nextRun(base, tt.minute); !got.Equal(tt.want) {
			t.Errorf("nextRun(%v, %d) = %v, want %v", base, tt.minute, got, tt.want)
		}
	}

	// Exactly on the minute rolls to the next hour.
	exact := time.Date(2025, 6, 3, 14, 15, 0, 0, time.UTC)
	if got := nextRun(exact, 15); !got.Equal(exact.Add(time.Hour)) {
		t.Errorf("nextRun on the minute = %v, want %v", got, exact.Add(time.Hour))
	}
}

func TestRunTaskAbsorbsPanic(t *testing.T) {
	s := &Scheduler{}
	s.runTask(context.Background(), Task{
		Name: "explodes",
		Run:  func(context.Context) error { panic("boom") },
	})
	// Reaching here is the assertion.
}

func TestRunTaskAbsorbsError(t *testing.T) {
	s := &Scheduler{}
	ran := false
	s.runTask(context.Background(), Task{
		Name: "fails",
		Run: func(context.Context) error {
			ran = true
			return errors.New("nope")
		},
	})
	if !ran {
		t.Fatal("task did not run")
	}
}

func TestRunTaskAppliesTimeout(t *testing.T) {
	s := &Scheduler{}
	var deadline time.Time
	s.runTask(context.Background(), Task{
		Name:    "checks deadline",
		Timeout: time.Minute,
		Run: func(ctx context.Context) error {
			deadline, _ = ctx.Deadline()
			return nil
		},
	})
	if remaining := time.Until(deadline); remaining <= 0 || remaining > time.Minute {
		t.Errorf("deadline %v not within the task timeout", remaining)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Scheduler{Tasks: []Task{{Name: "noop", Minute: 0, Run: func(context.Context) error { return nil }}}}
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}
