package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func runAsync(s *Scheduler, ctx context.Context, poll PollFunc) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, poll) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
		return nil
	}
}

func TestNewPanicsOnNonPositiveInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero interval")
		}
	}()
	New(Options{}, zerolog.Nop())
}

func TestRunPollsOnIntervalUntilCancelled(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond, PollOnStart: true}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var commits atomic.Int32
	reached := make(chan struct{})
	poll := func(ctx context.Context, at time.Time) (CommitFunc, error) {
		return func(ctx context.Context) error {
			if commits.Add(1) == 3 {
				close(reached)
			}
			return nil
		}, nil
	}

	done := runAsync(s, ctx, poll)
	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		t.Fatal("expected three cycles")
	}
	cancel()

	if err := waitDone(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", s.State())
	}
}

func TestPollFailureSkipsCommitAndContinues(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond, PollOnStart: true}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var polls, commits atomic.Int32
	recovered := make(chan struct{})
	poll := func(ctx context.Context, at time.Time) (CommitFunc, error) {
		n := polls.Add(1)
		if n <= 2 {
			return nil, errors.New("upstream unavailable")
		}
		return func(ctx context.Context) error {
			if commits.Add(1) == 1 {
				close(recovered)
			}
			return nil
		}, nil
	}

	done := runAsync(s, ctx, poll)
	select {
	case <-recovered:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler should keep polling after failures")
	}
	cancel()
	waitDone(t, done)

	if commits.Load() < 1 || polls.Load() < 3 {
		t.Fatalf("polls=%d commits=%d", polls.Load(), commits.Load())
	}
}

func TestShutdownWhileIdleBeforeFirstTick(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var polls atomic.Int32
	done := runAsync(s, ctx, func(ctx context.Context, at time.Time) (CommitFunc, error) {
		polls.Add(1)
		return nil, nil
	})

	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := waitDone(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if polls.Load() != 0 {
		t.Fatalf("no cycle should run, got %d polls", polls.Load())
	}
}

func TestAlreadyCancelledContextRunsNoCycle(t *testing.T) {
	s := New(Options{Interval: time.Millisecond, PollOnStart: true}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var polls atomic.Int32
	err := s.Run(ctx, func(ctx context.Context, at time.Time) (CommitFunc, error) {
		polls.Add(1)
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if polls.Load() != 0 {
		t.Fatalf("shutdown must win over an immediate tick, got %d polls", polls.Load())
	}
}

// A shutdown that arrives after the tick fired but before the commit finished
// must not abort the cycle: the commit still lands, then the loop exits.
func TestShutdownDuringCycleIsNotPreemptive(t *testing.T) {
	s := New(Options{Interval: time.Hour, PollOnStart: true}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	polling := make(chan struct{})
	release := make(chan struct{})
	var committed atomic.Bool
	var pollCtxErr, commitCtxErr atomic.Value
	var pollState, commitState atomic.Int32

	poll := func(pctx context.Context, at time.Time) (CommitFunc, error) {
		pollState.Store(int32(s.State()))
		close(polling)
		<-release
		if err := pctx.Err(); err != nil {
			pollCtxErr.Store(err)
		}
		return func(cctx context.Context) error {
			commitState.Store(int32(s.State()))
			if err := cctx.Err(); err != nil {
				commitCtxErr.Store(err)
			}
			committed.Store(true)
			return nil
		}, nil
	}

	done := runAsync(s, ctx, poll)
	<-polling
	cancel()

	select {
	case <-done:
		t.Fatal("scheduler stopped mid-cycle")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	if err := waitDone(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if !committed.Load() {
		t.Fatal("in-flight cycle should have committed before stopping")
	}
	if v := pollCtxErr.Load(); v != nil {
		t.Fatalf("poll context was cancelled: %v", v)
	}
	if v := commitCtxErr.Load(); v != nil {
		t.Fatalf("commit context was cancelled: %v", v)
	}
	if State(pollState.Load()) != StatePolling {
		t.Fatalf("state during poll = %s", State(pollState.Load()))
	}
	if State(commitState.Load()) != StateUpdating {
		t.Fatalf("state during commit = %s", State(commitState.Load()))
	}
}

func TestNextTickAlignment(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2025, 1, 1, 10, 2, 30, 0, time.UTC)
	if got, want := s.nextTick(now), time.Date(2025, 1, 1, 10, 5, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("nextTick = %s, want %s", got, want)
	}

	s = New(Options{Interval: 5 * time.Minute}, zerolog.Nop())
	if got, want := s.nextTick(now), now.Add(5*time.Minute); !got.Equal(want) {
		t.Fatalf("nextTick = %s, want %s", got, want)
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateIdle: "idle", StatePolling: "polling", StateUpdating: "updating", StateStopped: "stopped", State(9): "unknown",
	} {
		if state.String() != want {
			t.Fatalf("%d.String() = %s", state, state.String())
		}
	}
}
