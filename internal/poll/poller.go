// Package poll runs a domain refresh function on a fixed interval, but only
// while something is observing the result and the backing radio or adapter
// is available.
package poll

import (
	"context"
	"log"
	"sync"
	"time"
)

// Func performs one poll. Implementations parse external command output and
// replace their snapshot store; they must tolerate malformed records by
// dropping them rather than failing the whole poll.
type Func func(ctx context.Context) error

// Gate reports whether polling is currently worthwhile (adapter present,
// radio powered). A nil gate is always open.
type Gate func() bool

// Poller re-runs a Func on a fixed interval while observed and gated open.
type Poller struct {
	name     string
	interval time.Duration
	fn       Func
	gate     Gate

	mu        sync.Mutex
	observers int
	running   bool
	cancel    context.CancelFunc
	kick      chan struct{}
}

// New creates a poller. name is used only for log tags.
func New(name string, interval time.Duration, fn Func, gate Gate) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Poller{
		name:     name,
		interval: interval,
		fn:       fn,
		gate:     gate,
		kick:     make(chan struct{}, 1),
	}
}

// AddObserver registers interest in the polled data. The first observer
// starts the loop.
func (p *Poller) AddObserver() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.observers++
	if p.observers == 1 && !p.running {
		p.startLocked()
	}
}

// RemoveObserver drops one registration. The last observer stops the loop;
// no polling happens when nothing consumes the result.
func (p *Poller) RemoveObserver() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.observers > 0 {
		p.observers--
	}
	if p.observers == 0 && p.running {
		p.stopLocked()
	}
}

// Observers returns the current observer count.
func (p *Poller) Observers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.observers
}

// IsRunning returns whether the loop is active.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Kick forces an immediate out-of-cycle poll, used when a change notification
// arrives between ticks. Dropped silently if one is already pending.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// PollNow runs one poll synchronously on the caller's goroutine, honoring
// the gate. Used for on-demand queries when no observer keeps the loop alive.
func (p *Poller) PollNow(ctx context.Context) error {
	if p.gate != nil && !p.gate() {
		return nil
	}
	return p.fn(ctx)
}

// Stop halts the loop regardless of observer count.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		p.stopLocked()
	}
}

func (p *Poller) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true

	go p.run(ctx)

	log.Printf("[POLL] %s poller started (interval %v)", p.name, p.interval)
}

func (p *Poller) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.running = false

	log.Printf("[POLL] %s poller stopped", p.name)
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		case <-p.kick:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[POLL] Recovered from panic in %s poll: %v", p.name, r)
		}
	}()

	if p.gate != nil && !p.gate() {
		return
	}

	if err := p.fn(ctx); err != nil {
		log.Printf("[POLL] %s poll failed: %v", p.name, err)
	}
}
