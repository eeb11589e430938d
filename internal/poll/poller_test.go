package poll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition never became true")
}

func TestPoller_RunsOnlyWhileObserved(t *testing.T) {
	var polls int64
	p := New("test", 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt64(&polls, 1)
		return nil
	}, nil)

	if p.IsRunning() {
		t.Fatal("Poller running with no observers")
	}

	p.AddObserver()
	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&polls) >= 2 })

	p.RemoveObserver()
	if p.IsRunning() {
		t.Fatal("Poller still running after last observer left")
	}

	settled := atomic.LoadInt64(&polls)
	time.Sleep(50 * time.Millisecond)
	if after := atomic.LoadInt64(&polls); after != settled {
		t.Errorf("Poller kept polling after stop: %d -> %d", settled, after)
	}
}

func TestPoller_GateBlocksPoll(t *testing.T) {
	var polls int64
	var gateOpen atomic.Bool

	p := New("test", 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt64(&polls, 1)
		return nil
	}, func() bool { return gateOpen.Load() })

	p.AddObserver()
	defer p.Stop()

	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt64(&polls); n != 0 {
		t.Fatalf("Expected no polls with closed gate, got %d", n)
	}

	gateOpen.Store(true)
	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&polls) >= 1 })
}

func TestPoller_Kick(t *testing.T) {
	var polls int64
	p := New("test", time.Hour, func(ctx context.Context) error {
		atomic.AddInt64(&polls, 1)
		return nil
	}, nil)

	p.AddObserver()
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&polls) == 1 })

	p.Kick()
	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&polls) == 2 })
}

func TestPoller_MultipleObservers(t *testing.T) {
	p := New("test", time.Hour, func(ctx context.Context) error { return nil }, nil)

	p.AddObserver()
	p.AddObserver()
	p.RemoveObserver()

	if !p.IsRunning() {
		t.Fatal("Poller stopped while an observer remains")
	}

	p.RemoveObserver()
	if p.IsRunning() {
		t.Fatal("Poller running with no observers")
	}
}
