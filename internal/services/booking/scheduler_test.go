package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

type fakeCanceller struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
}

func (f *fakeCanceller) CancelForTimeout(_ context.Context, bookingID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, bookingID)

	return f.err
}

func (f *fakeCanceller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.calls)
}

func (f *fakeCanceller) lastCall() uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[len(f.calls)-1]
}

// waitForCalls polls until the canceller has seen n calls. Timer callbacks
// run on their own goroutine even with a mock clock, so assertions after
// clock.Add need a grace period.
func waitForCalls(t *testing.T, f *fakeCanceller, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.callCount() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %d cancel calls, got %d", n, f.callCount())
}

func TestScheduler_FiresAfterWindow(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	canceller := &fakeCanceller{}
	sched := newCancellationScheduler(canceller, 15*time.Minute, mock)
	defer sched.Stop()

	id := uuid.New()
	sched.Arm(id)

	if got := sched.Pending(); got != 1 {
		t.Fatalf("pending after arm: want 1, got %d", got)
	}

	mock.Add(14 * time.Minute)
	if canceller.callCount() != 0 {
		t.Fatal("cancel fired before the window elapsed")
	}

	mock.Add(time.Minute)
	waitForCalls(t, canceller, 1)

	if got := canceller.lastCall(); got != id {
		t.Fatalf("cancelled wrong booking: want %s, got %s", id, got)
	}
}

func TestScheduler_DisarmPreventsFire(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	canceller := &fakeCanceller{}
	sched := newCancellationScheduler(canceller, 15*time.Minute, mock)
	defer sched.Stop()

	id := uuid.New()
	sched.Arm(id)
	sched.Disarm(id)

	if got := sched.Pending(); got != 0 {
		t.Fatalf("pending after disarm: want 0, got %d", got)
	}

	mock.Add(time.Hour)

	if got := canceller.callCount(); got != 0 {
		t.Fatalf("disarmed timer fired %d times", got)
	}
}

func TestScheduler_ReArmReplacesTimer(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	canceller := &fakeCanceller{}
	sched := newCancellationScheduler(canceller, 15*time.Minute, mock)
	defer sched.Stop()

	id := uuid.New()
	sched.Arm(id)

	mock.Add(10 * time.Minute)

	// Re-arm resets the countdown; the original deadline must not fire.
	sched.Arm(id)

	mock.Add(10 * time.Minute)
	if got := canceller.callCount(); got != 0 {
		t.Fatalf("replaced timer fired %d times", got)
	}
	if got := sched.Pending(); got != 1 {
		t.Fatalf("pending: want 1, got %d", got)
	}

	mock.Add(5 * time.Minute)
	waitForCalls(t, canceller, 1)
}

func TestScheduler_ArmAfterShortensWindow(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	canceller := &fakeCanceller{}
	sched := newCancellationScheduler(canceller, 15*time.Minute, mock)
	defer sched.Stop()

	id := uuid.New()
	sched.ArmAfter(id, 3*time.Minute)

	mock.Add(3 * time.Minute)
	waitForCalls(t, canceller, 1)
}

func TestScheduler_EntryRemovedAfterFailedCancel(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	canceller := &fakeCanceller{err: errors.New("db down")}
	sched := newCancellationScheduler(canceller, time.Minute, mock)
	defer sched.Stop()

	id := uuid.New()
	sched.Arm(id)

	mock.Add(time.Minute)
	waitForCalls(t, canceller, 1)

	// Even a failed cancel must release the registration so a later re-arm
	// is possible.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sched.Pending() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("registration not released after failed cancel, pending=%d", sched.Pending())
}

// blockingCanceller holds its cancel open until released, so a test can
// interleave other scheduler calls with an in-flight fire.
type blockingCanceller struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingCanceller) CancelForTimeout(context.Context, uuid.UUID) error {
	b.started <- struct{}{}
	<-b.release

	return nil
}

func TestScheduler_ReArmDuringFireKeepsRegistration(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	canceller := &blockingCanceller{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	sched := newCancellationScheduler(canceller, time.Minute, mock)
	defer sched.Stop()

	id := uuid.New()
	sched.Arm(id)

	mock.Add(time.Minute)
	<-canceller.started // fire is now in flight

	// Re-arm for the same booking while the old fire still runs, then let
	// the fire finish its cleanup.
	sched.Arm(id)
	close(canceller.release)

	time.Sleep(50 * time.Millisecond)

	// The finished fire must not have removed the newer registration.
	if got := sched.Pending(); got != 1 {
		t.Fatalf("re-armed registration lost: pending=%d", got)
	}

	// And the new timer is still under the scheduler's control.
	sched.Disarm(id)
	if got := sched.Pending(); got != 0 {
		t.Fatalf("pending after disarm: %d", got)
	}

	mock.Add(time.Hour)

	select {
	case <-canceller.started:
		t.Fatal("disarmed timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScheduler_StopDropsAllTimers(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	canceller := &fakeCanceller{}
	sched := newCancellationScheduler(canceller, 15*time.Minute, mock)

	for i := 0; i < 5; i++ {
		sched.Arm(uuid.New())
	}
	if got := sched.Pending(); got != 5 {
		t.Fatalf("pending: want 5, got %d", got)
	}

	sched.Stop()

	if got := sched.Pending(); got != 0 {
		t.Fatalf("pending after stop: want 0, got %d", got)
	}

	mock.Add(time.Hour)
	if got := canceller.callCount(); got != 0 {
		t.Fatalf("stopped timers fired %d times", got)
	}
}
