// Package scheduler runs the daily refresh of all active EPG sources and
// catches up a run that was missed while the process was down.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/metrics"
	"github.com/voyagen/guidevault/internal/models"
)

// Refresher refreshes every active source. *service.Engine satisfies it.
type Refresher interface {
	RefreshAll(ctx context.Context) ([]models.RefreshOutcome, error)
}

// Settings persists the schedule row. store.Store satisfies it.
type Settings interface {
	GetSchedule(ctx context.Context) (*models.ScheduleSetting, error)
	SaveSchedule(ctx context.Context, s models.ScheduleSetting) (*models.ScheduleSetting, error)
	MarkScheduledRefresh(ctx context.Context, at time.Time) error
}

// Clock abstracts time for missed-run detection.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Options configures a Service.
type Options struct {
	Refresher    Refresher
	Settings     Settings
	Clock        Clock
	Location     *time.Location
	StartupDelay time.Duration
	Log          *logrus.Entry
}

// Service owns the schedule setting and the cron entry derived from it.
type Service struct {
	refresher Refresher
	settings  Settings
	clock     Clock
	loc       *time.Location
	delay     time.Duration
	log       *logrus.Entry

	cron *cron.Cron

	mu      sync.Mutex // serializes schedule updates and cron entry changes
	entry   cron.EntryID
	runMu   sync.Mutex // one refresh-all run at a time
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns a stopped Service.
func New(opts Options) *Service {
	s := &Service{
		refresher: opts.Refresher,
		settings:  opts.Settings,
		clock:     opts.Clock,
		loc:       opts.Location,
		delay:     opts.StartupDelay,
		log:       opts.Log,
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	s.log = s.log.WithField("component", "scheduler")
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cron.PrintfLogger(s.log))),
	)
	return s
}

// Start installs the daily entry from the stored setting, starts the cron
// runner and arms the missed-run check after the startup delay.
func (s *Service) Start(ctx context.Context) error {
	s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	setting, err := s.settings.GetSchedule(ctx)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	s.mu.Lock()
	err = s.install(*setting)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.cron.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.baseCtx.Done():
			return
		case <-s.clock.After(s.delay):
		}
		if _, err := s.CheckMissed(s.baseCtx); err != nil {
			s.log.WithError(err).Error("missed-refresh check failed")
		}
	}()
	s.log.WithFields(logrus.Fields{
		"hour": setting.Hour, "minute": setting.Minute, "enabled": setting.Enabled, "startup_delay": s.delay.String(),
	}).Info("scheduler started")
	return nil
}

// Stop cancels pending work and waits for a running refresh to finish or
// for ctx to expire.
func (s *Service) Stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		<-s.cron.Stop().Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

// install replaces the cron entry. Callers hold s.mu.
func (s *Service) install(setting models.ScheduleSetting) error {
	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}
	if !setting.Enabled {
		return nil
	}
	id, err := s.cron.AddFunc(fmt.Sprintf("%d %d * * *", setting.Minute, setting.Hour), func() {
		s.run(s.context(), "tick")
	})
	if err != nil {
		return fmt.Errorf("schedule daily refresh: %w", err)
	}
	s.entry = id
	return nil
}

func (s *Service) context() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// Next returns the next time the daily entry fires, or the zero time when
// the schedule is disabled or the runner has not started.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Schedule implements get_epg_schedule.
func (s *Service) Schedule(ctx context.Context) (*models.ScheduleSetting, error) {
	return s.settings.GetSchedule(ctx)
}

// SetSchedule implements set_epg_schedule and reinstalls the daily entry.
func (s *Service) SetSchedule(ctx context.Context, hour, minute int, enabled bool) (*models.ScheduleSetting, error) {
	if hour < 0 || hour > 23 {
		return nil, apperr.Validation("hour must be between 0 and 23")
	}
	if minute < 0 || minute > 59 {
		return nil, apperr.Validation("minute must be between 0 and 59")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	saved, err := s.settings.SaveSchedule(ctx, models.ScheduleSetting{Hour: hour, Minute: minute, Enabled: enabled})
	if err != nil {
		return nil, err
	}
	if err := s.install(*saved); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"hour": hour, "minute": minute, "enabled": enabled}).Info("schedule updated")
	return saved, nil
}

// MostRecentOccurrence returns the latest hour:minute in loc strictly
// before now.
func MostRecentOccurrence(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	t := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !t.Before(now) {
		t = time.Date(local.Year(), local.Month(), local.Day()-1, hour, minute, 0, 0, loc)
	}
	return t
}

// IsMissed reports whether the run due before now has not happened.
func IsMissed(setting models.ScheduleSetting, now time.Time, loc *time.Location) bool {
	due := MostRecentOccurrence(now, setting.Hour, setting.Minute, loc)
	return setting.LastScheduledRefresh == nil || setting.LastScheduledRefresh.Before(due)
}

// CheckMissed runs a refresh-all when the most recent scheduled time passed
// without a recorded run. It reports whether a run happened. A disabled
// schedule never catches up.
func (s *Service) CheckMissed(ctx context.Context) (bool, error) {
	if _, missed, err := s.missed(ctx); err != nil || !missed {
		return false, err
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	// A daily run may have finished while we waited for runMu.
	due, missed, err := s.missed(ctx)
	if err != nil || !missed {
		return false, err
	}
	s.log.WithField("due", due.Format(time.RFC3339)).Info("missed scheduled refresh, catching up")
	s.refreshAll(ctx, "catchup")
	return true, nil
}

// missed loads the schedule and reports the due time and whether it was
// skipped.
func (s *Service) missed(ctx context.Context) (time.Time, bool, error) {
	setting, err := s.settings.GetSchedule(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	if !setting.Enabled {
		return time.Time{}, false, nil
	}
	now := s.clock.Now()
	if !IsMissed(*setting, now, s.loc) {
		s.log.Debug("no missed refresh")
		return time.Time{}, false, nil
	}
	return MostRecentOccurrence(now, setting.Hour, setting.Minute, s.loc), true, nil
}

func (s *Service) run(ctx context.Context, trigger string) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.refreshAll(ctx, trigger)
}

// refreshAll refreshes all sources and then records the run, whatever the
// per-source outcome, so a dead source cannot cause a retry loop. Callers
// hold s.runMu.
func (s *Service) refreshAll(ctx context.Context, trigger string) {
	metrics.ScheduledRuns.WithLabelValues(trigger).Inc()
	log := s.log.WithField("trigger", trigger)

	outcomes, err := s.refresher.RefreshAll(ctx)
	if err != nil {
		log.WithError(err).Error("scheduled refresh failed")
	} else {
		failed := 0
		for _, o := range outcomes {
			if o.Error != "" {
				failed++
			}
		}
		log.WithFields(logrus.Fields{"sources": len(outcomes), "failed": failed}).Info("scheduled refresh done")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.settings.MarkScheduledRefresh(context.WithoutCancel(ctx), s.clock.Now().UTC()); err != nil {
		log.WithError(err).Error("record scheduled refresh")
	}
}
