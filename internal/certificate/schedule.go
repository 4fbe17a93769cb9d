package certificate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// Schedule says when the check runs. Cron takes precedence over Interval.
type Schedule struct {
	Cron       string
	Interval   time.Duration
	RunOnStart bool
}

// Scheduler handles periodic certificate checks.
type Scheduler struct {
	ctx       context.Context
	service   *Service
	scheduler gocron.Scheduler
}

// NewScheduler creates a new scheduler driven by clock. The context is handed
// to each check and stops the scheduler when cancelled.
func NewScheduler(ctx context.Context, service *Service, schedule Schedule, clock clockwork.Clock) (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, err
	}

	var def gocron.JobDefinition
	switch {
	case schedule.Cron != "":
		def = gocron.CronJob(schedule.Cron, false)
	case schedule.Interval > 0:
		def = gocron.DurationJob(schedule.Interval)
	default:
		_ = s.Shutdown()
		return nil, errors.New("schedule needs a cron expression or a positive interval")
	}

	scheduler := &Scheduler{
		ctx:       ctx,
		service:   service,
		scheduler: s,
	}

	jobOpts := []gocron.JobOption{
		gocron.WithName("certificate-check"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if schedule.RunOnStart {
		jobOpts = append(jobOpts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	_, err = s.NewJob(def, gocron.NewTask(scheduler.checkCertificate), jobOpts...)
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}

	return scheduler, nil
}

// Start begins scheduling and stops once the context is cancelled.
func (s *Scheduler) Start() {
	slog.Info("starting certificate scheduler")
	s.scheduler.Start()
	<-s.ctx.Done()
	s.Stop()
}

// Stop halts the scheduler, waiting for a running check to finish.
func (s *Scheduler) Stop() {
	slog.Info("stopping certificate scheduler")
	if err := s.scheduler.Shutdown(); err != nil {
		slog.Error("error shutting down scheduler", "err", err)
	}
}

// checkCertificate is the task that runs periodically.
func (s *Scheduler) checkCertificate() {
	isActive, err := s.service.SchedulerActive()
	if err != nil {
		slog.Error("error checking scheduler status", "err", err)
		return
	}

	if !isActive {
		slog.Info("scheduler is disabled via kill switch, skipping certificate check")
		return
	}

	_, err = s.service.RunCheck(s.ctx)
	if errors.Is(err, context.Canceled) {
		slog.Info("certificate check interrupted by shutdown")
		return
	}
	if err != nil {
		slog.Error("certificate check run failed", "err", err)
	}
}
