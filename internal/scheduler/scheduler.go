package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"fund-manager/internal/config"
)

// Scheduler runs the background jobs of the service on cron expressions
type Scheduler struct {
	cron   *cron.Cron
	logger *logrus.Entry
	jobs   map[string]cron.EntryID
}

// NewScheduler creates a scheduler in the configured time zone. Jobs that are
// still running when their next tick fires are skipped, and panics are
// recovered.
func NewScheduler(cfg config.SchedulerConfig, logger *logrus.Entry) (*Scheduler, error) {
	location := time.UTC
	if cfg.TimeZone != "" {
		loc, err := time.LoadLocation(cfg.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.TimeZone, err)
		}
		location = loc
	}

	log := logger.WithField("component", "scheduler")
	adapter := cronLogger{entry: log}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger: log,
		jobs:   make(map[string]cron.EntryID),
	}, nil
}

// Add registers job under name. spec accepts the standard five field syntax
// and descriptors such as "@every 30s".
func (s *Scheduler) Add(name, spec string, job func()) error {
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	s.jobs[name] = id
	s.logger.WithFields(logrus.Fields{"job": name, "spec": spec}).Info("Job scheduled")
	return nil
}

// Next returns when the named job runs next
func (s *Scheduler) Next(name string) (time.Time, bool) {
	id, ok := s.jobs[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Infof("Scheduler started with %d jobs", len(s.jobs))
}

// Stop stops scheduling and waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// cronLogger routes cron's logs through logrus
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	out := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
