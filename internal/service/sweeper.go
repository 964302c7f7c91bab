package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SessionExpirer drops interactive sessions idle since before the cutoff.
type SessionExpirer interface {
	Expire(now time.Time) int
}

// Sweeper runs the periodic housekeeping jobs.
type Sweeper struct {
	cron     *cron.Cron
	bonus    *BonusScheduler
	sessions SessionExpirer
	schedule string
	log      logrus.FieldLogger
}

func NewSweeper(bonus *BonusScheduler, sessions SessionExpirer, schedule string, log logrus.FieldLogger) *Sweeper {
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(log))))
	return &Sweeper{cron: c, bonus: bonus, sessions: sessions, schedule: schedule, log: log}
}

// Start runs one sweep immediately, so bonuses owed from before a restart are
// re-armed, then registers the periodic job.
func (s *Sweeper) Start() error {
	s.Sweep()
	if _, err := s.cron.AddFunc(s.schedule, s.Sweep); err != nil {
		return err
	}
	s.log.WithField("schedule", s.schedule).Info("scheduled sweep job")
	s.cron.Start()
	return nil
}

func (s *Sweeper) Sweep() {
	armed := 0
	if s.bonus != nil {
		armed = s.bonus.Recover()
	}
	expired := 0
	if s.sessions != nil {
		expired = s.sessions.Expire(time.Now())
	}
	if armed > 0 || expired > 0 {
		s.log.WithFields(logrus.Fields{"bonuses_armed": armed, "sessions_expired": expired}).Info("sweep finished")
	}
}

// Stop stops the scheduler; the returned context is done once a running sweep completes.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}
