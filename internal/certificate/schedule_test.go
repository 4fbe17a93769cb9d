package certificate

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduledService(t *testing.T) (*Service, *SqliteStore, *fakeChecker, *fakeNotifier) {
	t.Helper()
	store := newTestStore(t)
	checker := &fakeChecker{res: CertificateResult(Certificate{Domain: "example.com", ValidTo: referenceTime.AddDate(1, 0, 0)})}
	notifier := &fakeNotifier{kind: "ok"}
	svc := NewService(store, checker, notifier)
	require.NoError(t, svc.SetTarget("example.com", "ops@example.com"))
	return svc, store, checker, notifier
}

// runScheduler starts s and returns a func that cancels it and waits for Start to return.
func runScheduler(t *testing.T, s *Scheduler, cancel context.CancelFunc) func() {
	t.Helper()
	done := make(chan struct{})
	go func() {
		s.Start()
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("scheduler did not stop after cancellation")
		}
	}
}

func waitForTimer(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
}

func Test_NewSchedulerRejectsEmptySchedule(t *testing.T) {
	svc, _, _, _ := newScheduledService(t)
	clock := clockwork.NewFakeClockAt(referenceTime)

	_, err := NewScheduler(context.Background(), svc, Schedule{}, clock)
	assert.Error(t, err)

	_, err = NewScheduler(context.Background(), svc, Schedule{Cron: "not a cron"}, clock)
	assert.Error(t, err)

	s, err := NewScheduler(context.Background(), svc, Schedule{Cron: "0 8 * * *"}, clock)
	require.NoError(t, err)
	s.Stop()
}

func Test_SchedulerRunsOnStart(t *testing.T) {
	svc, _, checker, notifier := newScheduledService(t)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewScheduler(ctx, svc, Schedule{Interval: time.Hour, RunOnStart: true}, clockwork.NewRealClock())
	require.NoError(t, err)
	stop := runScheduler(t, s, cancel)

	require.Eventually(t, func() bool { return checker.calls() == 1 }, 5*time.Second, 10*time.Millisecond)
	stop()

	assert.Equal(t, 1, checker.calls())
	assert.Len(t, notifier.sent, 1)
	_, ok := svc.LastCheck()
	assert.True(t, ok)
}

func Test_SchedulerRunsEveryInterval(t *testing.T) {
	svc, _, checker, notifier := newScheduledService(t)
	clock := clockwork.NewFakeClockAt(referenceTime)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewScheduler(ctx, svc, Schedule{Interval: time.Hour}, clock)
	require.NoError(t, err)
	stop := runScheduler(t, s, cancel)

	waitForTimer(t, clock)
	assert.Zero(t, checker.calls())

	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return checker.calls() == 1 }, 5*time.Second, 10*time.Millisecond)

	waitForTimer(t, clock)
	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return checker.calls() == 2 }, 5*time.Second, 10*time.Millisecond)

	stop()
	assert.Equal(t, 2, checker.calls())
	assert.Len(t, notifier.sent, 2)
}

func Test_SchedulerFollowsCron(t *testing.T) {
	svc, _, checker, _ := newScheduledService(t)
	// referenceTime sits on a quarter hour in every time zone
	clock := clockwork.NewFakeClockAt(referenceTime)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewScheduler(ctx, svc, Schedule{Cron: "*/15 * * * *", Interval: time.Minute}, clock)
	require.NoError(t, err)
	stop := runScheduler(t, s, cancel)

	waitForTimer(t, clock)
	clock.Advance(10 * time.Minute)
	waitForTimer(t, clock)
	assert.Zero(t, checker.calls(), "cron takes precedence over the interval")

	clock.Advance(5 * time.Minute)
	require.Eventually(t, func() bool { return checker.calls() == 1 }, 5*time.Second, 10*time.Millisecond)

	stop()
	assert.Equal(t, 1, checker.calls())
}

func Test_SchedulerSkipsWhenPaused(t *testing.T) {
	svc, store, checker, _ := newScheduledService(t)
	s, err := NewScheduler(context.Background(), svc, Schedule{Interval: time.Hour}, clockwork.NewFakeClockAt(referenceTime))
	require.NoError(t, err)
	defer s.Stop()

	require.NoError(t, store.SetSchedulerStatus(false))
	s.checkCertificate()
	assert.Zero(t, checker.calls())

	require.NoError(t, store.SetSchedulerStatus(true))
	s.checkCertificate()
	assert.Equal(t, 1, checker.calls())
}
