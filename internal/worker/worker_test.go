package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tour-inventory/internal/clock"
	"tour-inventory/internal/models"
	"tour-inventory/internal/service"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSweeper struct {
	mu    sync.Mutex
	calls []time.Time
	count int
	err   error
}

func (s *stubSweeper) Sweep(_ context.Context, now time.Time) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, now)
	return make([]models.Reservation, s.count), s.err
}

func (s *stubSweeper) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubLocker struct {
	mu         sync.Mutex
	held       bool
	released   int
	extensions int
	lost       bool
	err        error
}

func (l *stubLocker) AcquireLock(_ context.Context, _ string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if l.held {
		return "", false, nil
	}
	l.held = true
	return "token", true, nil
}

func (l *stubLocker) ReleaseLock(_ context.Context, _, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if token == "token" {
		l.held = false
		l.released++
	}
	return nil
}

func (l *stubLocker) ExtendLock(_ context.Context, _, token string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lost || token != "token" {
		return false, nil
	}
	l.extensions++
	return true, nil
}

func (l *stubLocker) extendCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.extensions
}

// waitingSweeper blocks until until returns true or ctx is cancelled.
type waitingSweeper struct {
	until     func() bool
	cancelled bool
}

func (s *waitingSweeper) Sweep(ctx context.Context, _ time.Time) ([]models.Reservation, error) {
	deadline := time.After(time.Second)
	for !s.until() {
		select {
		case <-ctx.Done():
			s.cancelled = true
			return nil, ctx.Err()
		case <-deadline:
			return nil, errors.New("gave up waiting")
		case <-time.After(time.Millisecond):
		}
	}
	return nil, nil
}

func TestSweepWorkerRunOnce(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	sweeper := &stubSweeper{count: 3}
	locker := &stubLocker{}
	w := NewSweepWorker(sweeper, locker, clock.NewManual(now), nil)

	expired, ran := w.RunOnce(context.Background())
	assert.True(t, ran)
	assert.Equal(t, 3, expired)
	assert.Equal(t, []time.Time{now}, sweeper.calls)
	assert.Equal(t, 1, locker.released)

	stats := w.GetStats()
	assert.Equal(t, int64(1), stats.Runs)
	assert.Equal(t, int64(3), stats.TotalExpired)
	assert.Equal(t, 3, stats.LastExpiredCount)
	assert.Empty(t, stats.LastError)
}

func TestSweepWorkerSkipsWithoutLock(t *testing.T) {
	sweeper := &stubSweeper{}
	locker := &stubLocker{held: true}
	w := NewSweepWorker(sweeper, locker, clock.NewSystem(), nil)

	_, ran := w.RunOnce(context.Background())
	assert.False(t, ran)
	assert.Equal(t, 0, sweeper.callCount())

	locker.held = false
	locker.err = errors.New("redis down")
	_, ran = w.RunOnce(context.Background())
	assert.False(t, ran)
	assert.Equal(t, int64(2), w.GetStats().SkippedRuns)
}

func TestSweepWorkerRecordsErrors(t *testing.T) {
	sweeper := &stubSweeper{count: 1, err: errors.New("list failed")}
	w := NewSweepWorker(sweeper, nil, clock.NewSystem(), nil)

	expired, ran := w.RunOnce(context.Background())
	assert.True(t, ran)
	assert.Equal(t, 1, expired)
	assert.Equal(t, "list failed", w.GetStats().LastError)
}

func TestSweepWorkerStartStop(t *testing.T) {
	sweeper := &stubSweeper{}
	w := NewSweepWorker(sweeper, nil, clock.NewSystem(), &SweepWorkerConfig{Interval: 10 * time.Millisecond, LockTTL: time.Second})

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))

	assert.Eventually(t, func() bool { return sweeper.callCount() >= 2 }, time.Second, 5*time.Millisecond)

	w.Stop()
	assert.False(t, w.GetStats().IsRunning)
	calls := sweeper.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, sweeper.callCount())
}

func TestSweepWorkerDefaultsNonPositiveDurations(t *testing.T) {
	w := NewSweepWorker(&stubSweeper{}, nil, clock.NewSystem(), &SweepWorkerConfig{Interval: 0, LockTTL: -time.Second})

	defaults := DefaultSweepWorkerConfig()
	assert.Equal(t, defaults.Interval, w.config.Interval)
	assert.Equal(t, defaults.LockTTL, w.config.LockTTL)
	assert.Equal(t, defaults.LockTTL/3, w.config.HeartbeatInterval)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()
	w.Stop()
}

func TestSweepWorkerExtendsLockDuringLongSweep(t *testing.T) {
	locker := &stubLocker{}
	sweeper := &waitingSweeper{}
	sweeper.until = func() bool { return locker.extendCount() >= 2 }
	w := NewSweepWorker(sweeper, locker, clock.NewSystem(), &SweepWorkerConfig{
		Interval:          time.Minute,
		LockTTL:           time.Second,
		HeartbeatInterval: 5 * time.Millisecond,
	})

	_, ran := w.RunOnce(context.Background())
	assert.True(t, ran)
	assert.False(t, sweeper.cancelled)
	assert.GreaterOrEqual(t, locker.extendCount(), 2)
	assert.Empty(t, w.GetStats().LastError)
	assert.Equal(t, 1, locker.released)
}

func TestSweepWorkerCancelsSweepWhenLockLost(t *testing.T) {
	locker := &stubLocker{lost: true}
	sweeper := &waitingSweeper{until: func() bool { return false }}
	w := NewSweepWorker(sweeper, locker, clock.NewSystem(), &SweepWorkerConfig{
		Interval:          time.Minute,
		LockTTL:           time.Second,
		HeartbeatInterval: 5 * time.Millisecond,
	})

	_, ran := w.RunOnce(context.Background())
	assert.True(t, ran)
	assert.True(t, sweeper.cancelled)
	assert.Equal(t, context.Canceled.Error(), w.GetStats().LastError)
}

type memoryEvents struct {
	processed map[string]string
}

func (m *memoryEvents) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	_, ok := m.processed[eventID]
	return ok, nil
}

func (m *memoryEvents) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	m.processed[eventID] = eventType
	return nil
}

type recordingLifecycle struct {
	confirmed []string
	released  []string
}

func (r *recordingLifecycle) Confirm(_ context.Context, id string) (*models.Reservation, error) {
	r.confirmed = append(r.confirmed, id)
	return &models.Reservation{ID: id, State: models.ReservationStateConfirmed}, nil
}

func (r *recordingLifecycle) Release(_ context.Context, id, reason string) (*models.Reservation, error) {
	r.released = append(r.released, id+":"+reason)
	return &models.Reservation{ID: id, State: models.ReservationStateCancelled}, nil
}

func TestPaymentRouter(t *testing.T) {
	events := &memoryEvents{processed: map[string]string{}}
	lifecycle := &recordingLifecycle{}
	router := NewPaymentRouter(service.NewPaymentEventHandler(events, lifecycle))
	ctx := context.Background()

	success := kafka.Message{Value: []byte(`{"event_id":"e1","event_type":"PAYMENT_SUCCESS","reservation_id":"r1"}`)}
	require.NoError(t, router.HandleMessage(ctx, success))
	require.NoError(t, router.HandleMessage(ctx, success))

	failed := kafka.Message{Value: []byte(`{"event_id":"e2","event_type":"PAYMENT_FAILED","reservation_id":"r2","reason":"declined"}`)}
	require.NoError(t, router.HandleMessage(ctx, failed))

	assert.Equal(t, []string{"r1"}, lifecycle.confirmed)
	assert.Equal(t, []string{"r2:payment failed: declined"}, lifecycle.released)
	assert.Len(t, events.processed, 2)
}
