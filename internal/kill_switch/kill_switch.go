package kill_switch

import (
	"fmt"
	"log/slog"
	"time"
)

// Store persists attempts so that the threshold survives restarts.
type Store interface {
	RecordKillSwitchAttempt(attemptType string) error
	GetRecentKillSwitchAttempts(attemptType string, duration time.Duration) (int, error)
	CleanupOldKillSwitchAttempts(olderThan time.Duration) error
}

// Config holds the kill switch configuration.
type Config struct {
	Threshold int           // Attempts within Window needed to trigger
	Window    time.Duration // How far back attempts count
	Retention time.Duration // Attempts older than this are removed
}

// DefaultConfig requires three attempts within one minute.
var DefaultConfig = Config{
	Threshold: 3,
	Window:    time.Minute,
	Retention: 5 * time.Minute,
}

// Outcome reports the state of the guard after an attempt.
type Outcome struct {
	Attempts  int
	Remaining int
	Triggered bool
}

// Guard only lets an action through once enough attempts have been made.
type Guard struct {
	cfg   Config
	store Store
}

// New creates a new Guard with the given config.
func New(cfg Config, store Store) *Guard {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	return &Guard{cfg: cfg, store: store}
}

// Attempt records an attempt of the given type and reports whether the
// threshold has been reached.
func (g *Guard) Attempt(attemptType string) (Outcome, error) {
	if err := g.store.RecordKillSwitchAttempt(attemptType); err != nil {
		slog.Error("error recording kill switch attempt", "type", attemptType, "err", err)
	}

	if err := g.store.CleanupOldKillSwitchAttempts(g.cfg.Retention); err != nil {
		slog.Error("error cleaning up old kill switch attempts", "err", err)
	}

	count, err := g.store.GetRecentKillSwitchAttempts(attemptType, g.cfg.Window)
	if err != nil {
		return Outcome{}, fmt.Errorf("checking recent %s attempts: %w", attemptType, err)
	}

	out := Outcome{Attempts: count, Remaining: g.cfg.Threshold - count}
	if out.Remaining <= 0 {
		out.Remaining = 0
		out.Triggered = true
	}
	return out, nil
}

// Window returns the period attempts are counted over.
func (g *Guard) Window() time.Duration {
	return g.cfg.Window
}
