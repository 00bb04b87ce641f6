// Package scheduler fires pipeline runs at the configured Eastern wall
// clock times on NYSE trading days.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/signalyard/metaengine/internal/calendar"
	"github.com/signalyard/metaengine/internal/models"
)

// RunFunc is invoked once per scheduled session.
type RunFunc func(ctx context.Context, session models.Session) error

// Scheduler sleeps until the next scheduled session on a trading day
// and invokes the run function.
type Scheduler struct {
	loc    *time.Location
	times  []fireTime
	run    RunFunc
	logger *logrus.Logger
	now    func() time.Time
}

type fireTime struct {
	hour, minute int
	session      models.Session
}

// New creates a scheduler. Times are "HH:MM" in the given location; the
// session for each is derived from the hour.
func New(loc *time.Location, times []string, run RunFunc, logger *logrus.Logger) (*Scheduler, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("no schedule times configured")
	}
	s := &Scheduler{loc: loc, run: run, logger: logger, now: time.Now}
	for _, raw := range times {
		var h, m int
		if _, err := fmt.Sscanf(raw, "%d:%d", &h, &m); err != nil || h < 0 || h > 23 || m < 0 || m > 59 {
			return nil, fmt.Errorf("invalid schedule time %q", raw)
		}
		probe := time.Date(2026, 1, 2, h, m, 0, 0, loc)
		s.times = append(s.times, fireTime{hour: h, minute: m, session: models.SessionFor(probe)})
	}
	sort.Slice(s.times, func(i, j int) bool {
		if s.times[i].hour != s.times[j].hour {
			return s.times[i].hour < s.times[j].hour
		}
		return s.times[i].minute < s.times[j].minute
	})
	return s, nil
}

// Run blocks until the context is cancelled, firing the run function at
// each scheduled session. A failed run logs and the loop continues.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.WithField("sessions", len(s.times)).Info("Scheduler started")
	for {
		next, session := s.Next(s.now())
		s.logger.WithFields(logrus.Fields{
			"next":    next.Format(time.RFC3339),
			"session": session,
		}).Info("Waiting for next session")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if err := s.run(ctx, session); err != nil {
			s.logger.WithField("session", session).WithError(err).Error("Scheduled run failed")
		}
	}
}

// Next returns the next fire instant strictly after now, skipping
// non-trading days.
func (s *Scheduler) Next(now time.Time) (time.Time, models.Session) {
	now = now.In(s.loc)
	day := now
	for i := 0; i < 366; i++ {
		if calendar.IsTradingDay(day) {
			for _, ft := range s.times {
				at := time.Date(day.Year(), day.Month(), day.Day(), ft.hour, ft.minute, 0, 0, s.loc)
				if at.After(now) {
					return at, ft.session
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	// Unreachable with a sane calendar.
	return now.AddDate(1, 0, 0), models.SessionAM
}
