package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/igreja/tesouraria/internal/auth"
	"github.com/igreja/tesouraria/internal/config"
)

const jobTimeout = 2 * time.Minute

// BackupRunner writes an auto-backup for the signed-in owner.
type BackupRunner interface {
	AutoBackup(ctx context.Context) (string, error)
}

// BirthdayNotifier sends the daily birthday notifications.
type BirthdayNotifier interface {
	NotifyUpcoming(ctx context.Context) (int, error)
}

// Scheduler runs the recurring jobs of the process. Start and Stop are
// idempotent, so one set of jobs exists however often they are called.
type Scheduler struct {
	cron      *cron.Cron
	session   auth.Source
	backups   BackupRunner
	birthdays BirthdayNotifier
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler registers the backup and birthday jobs on the schedules
// of cfg, evaluated in loc.
func NewScheduler(cfg config.ScheduleConfig, loc *time.Location, session auth.Source, backups BackupRunner, birthdays BirthdayNotifier, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}

	cronLogger := zapCronLogger{logger.Sugar()}
	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger), cron.WithChain(cron.SkipIfStillRunning(cronLogger))),
		session:   session,
		backups:   backups,
		birthdays: birthdays,
		logger:    logger,
	}

	if _, err := s.cron.AddFunc(cfg.BackupCron, s.runBackup); err != nil {
		return nil, fmt.Errorf("schedule backup %q: %w", cfg.BackupCron, err)
	}
	if _, err := s.cron.AddFunc(cfg.BirthdayCron, s.runBirthdays); err != nil {
		return nil, fmt.Errorf("schedule birthday check %q: %w", cfg.BirthdayCron, err)
	}
	return s, nil
}

// Start starts the scheduler unless it is already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.logger.Info("starting scheduler", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
	s.running = true
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
	s.running = false
}

// Running reports whether the jobs are scheduled.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runBackup() {
	if s.session.CurrentUser() == nil {
		s.logger.Debug("skipping auto-backup, nobody signed in")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	name, err := s.backups.AutoBackup(ctx)
	if err != nil {
		s.logger.Error("auto-backup failed", zap.Error(err))
		return
	}
	s.logger.Info("auto-backup completed", zap.String("file", name))
}

func (s *Scheduler) runBirthdays() {
	if s.session.CurrentUser() == nil {
		s.logger.Debug("skipping birthday check, nobody signed in")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	sent, err := s.birthdays.NotifyUpcoming(ctx)
	if err != nil {
		s.logger.Error("birthday check failed", zap.Error(err))
		return
	}
	s.logger.Info("birthday check completed", zap.Int("notified", sent))
}

// zapCronLogger adapts zap to cron's logger.
type zapCronLogger struct {
	sugar *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
