package metrics

import (
	"context"
	"log/slog"
)

// StatusSource reports whether scheduled checks are enabled.
type StatusSource interface {
	SchedulerActive() (bool, error)
}

// Updater refreshes state-derived gauges whenever it is triggered.
type Updater struct {
	source   StatusSource
	reporter *PrometheusReporter
	trigger  chan struct{}
}

func NewUpdater(source StatusSource, reporter *PrometheusReporter) *Updater {
	return &Updater{
		source:   source,
		reporter: reporter,
		// buffered channel to avoid blocking and all we need to know is that "something"
		// has happened whilst we were busy
		trigger: make(chan struct{}, 1),
	}
}

func (u *Updater) Start(ctx context.Context) {
	u.UpdateMetrics()
	go func() {
		for {
			select {
			case <-u.trigger:
				u.UpdateMetrics()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (u *Updater) Trigger() {
	select {
	case u.trigger <- struct{}{}:
	default:
		// channel is full, so we don't need to do anything
	}
}

func (u *Updater) UpdateMetrics() {
	active, err := u.source.SchedulerActive()
	if err != nil {
		slog.Error("failed to read scheduler status for metrics", "err", err)
		return
	}
	u.reporter.SetSchedulerActive(active)
}
