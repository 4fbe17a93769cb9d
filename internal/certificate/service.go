package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Db defines the interface for state store operations.
type Db interface {
	Init() error
	Close() error
	GetConfigValue(key string) (string, error)
	SetConfigValue(key, value string) error
	GetConfigValues() (map[string]string, error)
	GetCredential(key string) (string, error)
	SetCredential(key, value string) error
	GetSchedulerStatus() (bool, error)
	SetSchedulerStatus(isActive bool) error
	RecordKillSwitchAttempt(attemptType string) error
	GetRecentKillSwitchAttempts(attemptType string, duration time.Duration) (int, error)
	CleanupOldKillSwitchAttempts(olderThan time.Duration) error
}

// Checker evaluates a single domain.
type Checker interface {
	Evaluate(ctx context.Context, domain string) Result
}

// Notifier delivers a result to a recipient and reports which notification was used.
type Notifier interface {
	Notify(ctx context.Context, to string, res Result) (string, error)
}

// Reporter receives check and notification outcomes, e.g. for metrics.
type Reporter interface {
	ObserveCheck(res Result, at time.Time)
	ObserveNotification(kind string, err error)
}

type noopReporter struct{}

func (noopReporter) ObserveCheck(Result, time.Time)     {}
func (noopReporter) ObserveNotification(string, error) {}

var (
	ErrNoDomain    = errors.New("no domain configured")
	ErrNoRecipient = errors.New("no notification recipient configured")
)

// CheckRecord is the outcome of the most recent check. It is kept in memory only.
type CheckRecord struct {
	Result       Result    `json:"result"`
	CheckedAt    time.Time `json:"checked_at"`
	Notification string    `json:"notification"`
	NotifyError  string    `json:"notify_error,omitempty"`
}

// Service runs checks and hands their results to the notifier.
type Service struct {
	db       Db
	checker  Checker
	notifier Notifier
	reporter Reporter
	clock    clockwork.Clock
	timeout  time.Duration

	mu   sync.RWMutex
	last *CheckRecord
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithReporter attaches a Reporter.
func WithReporter(r Reporter) ServiceOption {
	return func(s *Service) { s.reporter = r }
}

// WithCheckTimeout bounds each check. Zero leaves the check unbounded.
func WithCheckTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.timeout = d }
}

// WithServiceClock sets the clock used to timestamp checks.
func WithServiceClock(c clockwork.Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

// NewService creates a new certificate service.
func NewService(db Db, checker Checker, notifier Notifier, opts ...ServiceOption) *Service {
	s := &Service{
		db:       db,
		checker:  checker,
		notifier: notifier,
		reporter: noopReporter{},
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetConfigValue retrieves a configuration value.
func (s *Service) GetConfigValue(key string) (string, error) {
	return s.db.GetConfigValue(key)
}

// GetConfigValues retrieves all configuration values.
func (s *Service) GetConfigValues() (map[string]string, error) {
	return s.db.GetConfigValues()
}

// SetTarget stores the domain to check and the recipient to notify.
func (s *Service) SetTarget(domain, to string) error {
	if domain != "" {
		if err := s.db.SetConfigValue(ConfigCheckDomain, domain); err != nil {
			return err
		}
	}
	if to != "" {
		if err := s.db.SetConfigValue(ConfigCheckToEmail, to); err != nil {
			return err
		}
	}
	return nil
}

// SchedulerActive reports whether scheduled checks are enabled.
func (s *Service) SchedulerActive() (bool, error) {
	return s.db.GetSchedulerStatus()
}

// LastCheck returns the most recent check, if any has run.
func (s *Service) LastCheck() (CheckRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return CheckRecord{}, false
	}
	return *s.last, true
}

// RunCheck checks the configured domain and notifies the configured
// recipient. A failed check is not an error; the returned error covers
// missing configuration and notification failures.
func (s *Service) RunCheck(ctx context.Context) (Result, error) {
	domain, err := s.db.GetConfigValue(ConfigCheckDomain)
	if err != nil {
		return Result{}, err
	}
	if domain == "" {
		return Result{}, ErrNoDomain
	}
	to, err := s.db.GetConfigValue(ConfigCheckToEmail)
	if err != nil {
		return Result{}, err
	}
	if to == "" {
		return Result{}, ErrNoRecipient
	}

	return s.Check(ctx, domain, to)
}

// Check evaluates domain and notifies to, regardless of stored configuration.
// When ctx is cancelled during the check nothing is notified or recorded.
func (s *Service) Check(ctx context.Context, domain, to string) (Result, error) {
	slog.Info("checking certificate", "domain", domain)

	checkCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res := s.checker.Evaluate(checkCtx, domain)
	if err := ctx.Err(); err != nil {
		// the caller went away mid-check; the result only reflects that
		return res, fmt.Errorf("checking %s: %w", domain, err)
	}
	checkedAt := s.clock.Now()
	logResult(res, checkedAt)
	s.reporter.ObserveCheck(res, checkedAt)

	record := CheckRecord{Result: res, CheckedAt: checkedAt}

	kind, notifyErr := s.notifier.Notify(ctx, to, res)
	s.reporter.ObserveNotification(kind, notifyErr)
	record.Notification = kind
	if notifyErr != nil {
		record.NotifyError = notifyErr.Error()
	}

	s.mu.Lock()
	s.last = &record
	s.mu.Unlock()

	if notifyErr != nil {
		return res, fmt.Errorf("notifying %s: %w", to, notifyErr)
	}
	return res, nil
}

func logResult(res Result, at time.Time) {
	res.Match(func(c Certificate) {
		slog.Info("certificate checked",
			"domain", c.Domain,
			"subject", c.Subject["CN"],
			"issuer", c.Issuer["CN"],
			"valid_to", c.ValidTo,
			"days", c.DaysToExpireAt(at),
			"expired", c.HasExpiredAt(at),
		)
	}, func(e ErrorResult) {
		slog.Warn("certificate check failed",
			"domain", e.Domain,
			"type", e.ErrorType,
			"code", e.ErrorCode,
			"msg", e.Msg,
		)
	})
}
