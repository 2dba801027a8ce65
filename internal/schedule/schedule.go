// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package schedule implements a single-slot daily scheduler.
//
// A scheduler owns at most one entry: a time of day and a job to run at that
// time, every day. Arming the scheduler replaces the entry as a whole, so the
// polling loop always observes either the old entry or the new one, never a
// mix.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.astrophena.name/tgdigest/internal/logger"
	"go.astrophena.name/tgdigest/internal/util/syncx"
)

// Job is the work an armed entry runs when it fires.
type Job func(context.Context)

// TimeOfDay is a wall-clock time of day with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a time of day in HH:MM form.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

type entry struct {
	at  TimeOfDay
	job Job
}

type state struct {
	entry     *entry
	lastFired time.Time // truncated to the minute
	started   bool
}

// Scheduler owns a single daily entry and fires it when the wall clock
// matches its time of day. Methods are safe for concurrent use.
type Scheduler struct {
	logf  logger.Logf
	now   func() time.Time
	state *syncx.Protected[*state]
}

// New returns a scheduler. If logf is nil, log.Printf is used. now reports
// the current time and defaults to [time.Now]; tests override it.
func New(logf logger.Logf, now func() time.Time) *Scheduler {
	if logf == nil {
		logf = log.Printf
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		logf:  logf,
		now:   now,
		state: syncx.Protect(&state{}),
	}
}

// Arm sets the schedule entry, replacing any existing one. The previous job
// is discarded and never fires again, even if it was already due.
func (s *Scheduler) Arm(at TimeOfDay, job Job) {
	s.state.Access(func(st *state) {
		st.entry = &entry{at: at, job: job}
	})
	s.logf("Scheduled daily digest at %s.", at)
}

// Disarm clears the schedule entry, if any.
func (s *Scheduler) Disarm() {
	var had bool
	s.state.Access(func(st *state) {
		had = st.entry != nil
		st.entry = nil
	})
	if had {
		s.logf("Schedule cleared.")
	}
}

// Armed reports whether an entry is set and, if so, its time of day.
func (s *Scheduler) Armed() (at TimeOfDay, armed bool) {
	s.state.RAccess(func(st *state) {
		if st.entry != nil {
			at, armed = st.entry.at, true
		}
	})
	return
}

var errAlreadyStarted = errors.New("scheduler already started")

// Start runs the polling loop until ctx is canceled. The loop checks the
// entry once per second. Start returns an error if the scheduler was already
// started; the loop runs at most once per process.
func (s *Scheduler) Start(ctx context.Context) error {
	var already bool
	s.state.Access(func(st *state) {
		already = st.started
		st.started = true
	})
	if already {
		return errAlreadyStarted
	}

	s.logf("Scheduler started.")

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick fires the armed entry if now matches its time of day. The entry fires
// at most once per matching minute and stays armed afterwards, giving daily
// recurrence. A panicking job is logged and never takes down the loop.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	var job Job
	minute := now.Truncate(time.Minute)

	s.state.Access(func(st *state) {
		if st.entry == nil {
			return
		}
		if now.Hour() != st.entry.at.Hour || now.Minute() != st.entry.at.Minute {
			return
		}
		if st.lastFired.Equal(minute) {
			return
		}
		st.lastFired = minute
		job = st.entry.job
	})

	if job == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logf("Scheduler job panicked: %v", r)
		}
	}()
	s.logf("Scheduler triggered")
	job(ctx)
}
