// Package session drives multi-step external operations (trust -> pair ->
// connect and friends) against a single in-flight target, with per-step and
// whole-sequence deadlines. All state lives behind one event loop goroutine;
// completions, requests and deadline expiry are serialized onto it, so steps
// of a sequence always observe their callbacks in issue order.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/runner"
)

// State is the coordinator's externally visible condition.
type State int

const (
	StateIdle State = iota
	StateTrusting
	StatePairing
	StateConnecting
	StateDisconnecting
	StateFailed
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTrusting:
		return "trusting"
	case StatePairing:
		return "pairing"
	case StateConnecting:
		return "connecting"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON puts the state name on the wire instead of the raw value.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, st := range []State{StateIdle, StateTrusting, StatePairing, StateConnecting, StateDisconnecting, StateFailed} {
		if st.String() == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", name)
}

// BusyPolicy decides what happens to a request that arrives while another
// target is in flight.
type BusyPolicy int

const (
	// PolicyReject refuses the new request with ErrBusy.
	PolicyReject BusyPolicy = iota
	// PolicySupersede abandons the in-flight sequence's remaining steps and
	// starts the new one. An already-spawned process is left to finish; its
	// result is discarded.
	PolicySupersede
)

// ParseBusyPolicy converts a config string into a BusyPolicy.
func ParseBusyPolicy(s string) (BusyPolicy, error) {
	switch s {
	case "", "reject":
		return PolicyReject, nil
	case "supersede":
		return PolicySupersede, nil
	default:
		return PolicyReject, fmt.Errorf("unknown busy policy: %q (must be reject or supersede)", s)
	}
}

// ErrBusy is returned by Request under PolicyReject while a sequence is in
// flight.
var ErrBusy = errors.New("another operation is in flight")

// Step is one external command within a sequence, and the state the
// coordinator shows while it runs.
type Step struct {
	State   State
	Argv    []string
	Timeout time.Duration
}

// Sequence is an ordered run of steps against one target.
type Sequence struct {
	Target string
	Op     string
	Steps  []Step
}

// Status is the observable coordinator condition: Idle, Busy with a target,
// or Failed with a reason.
type Status struct {
	State  State  `json:"state"`
	Target string `json:"target,omitempty"`
	Op     string `json:"op,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Listener receives every status transition, including the transient Failed
// before the return to Idle.
type Listener func(Status)

// Config carries the coordinator's timing and policy knobs.
type Config struct {
	// StepTimeout applies to steps that do not set their own.
	StepTimeout time.Duration
	// GlobalDeadline bounds the whole sequence regardless of step progress.
	GlobalDeadline time.Duration
	Policy         BusyPolicy
}

// Coordinator sequences external commands for one domain. At most one target
// is in flight at any instant.
type Coordinator struct {
	name   string
	runner runner.Runner
	cfg    Config

	events chan event
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	status      Status
	lastFailure *Status
	listeners   map[int]Listener
	nextID      int
}

type eventKind int

const (
	eventRequest eventKind = iota
	eventStepOK
	eventStepFail
	eventDeadline
)

// String returns the string representation of eventKind.
func (k eventKind) String() string {
	switch k {
	case eventRequest:
		return "request"
	case eventStepOK:
		return "step-ok"
	case eventStepFail:
		return "step-fail"
	case eventDeadline:
		return "deadline"
	default:
		return "unknown"
	}
}

type event struct {
	kind  eventKind
	gen   uint64
	seq   Sequence
	err   error
	reply chan error
}

// machine is the event loop's private state. Only the run goroutine touches it.
type machine struct {
	c        *Coordinator
	gen      uint64
	seq      Sequence
	stepIdx  int
	deadline *time.Timer
}

type transitionKey struct {
	state State
	event eventKind
}

type transitionFunc func(m *machine, ev event)

// transitions is the (state, event) -> action table. Busy states share
// reactions; only Idle accepts a fresh request unconditionally.
var transitions = map[transitionKey]transitionFunc{}

var busyStates = []State{StateTrusting, StatePairing, StateConnecting, StateDisconnecting}

func init() {
	transitions[transitionKey{StateIdle, eventRequest}] = startSequence
	for _, s := range busyStates {
		transitions[transitionKey{s, eventRequest}] = requestWhileBusy
		transitions[transitionKey{s, eventStepOK}] = advanceSequence
		transitions[transitionKey{s, eventStepFail}] = failSequence
		transitions[transitionKey{s, eventDeadline}] = expireSequence
	}
}

// New creates a coordinator and starts its event loop. name is used for log
// tags and event attribution.
func New(name string, r runner.Runner, cfg Config) *Coordinator {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 10 * time.Second
	}
	if cfg.GlobalDeadline <= 0 {
		cfg.GlobalDeadline = 20 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		name:      name,
		runner:    r,
		cfg:       cfg,
		events:    make(chan event, 16),
		ctx:       ctx,
		cancel:    cancel,
		status:    Status{State: StateIdle},
		listeners: make(map[int]Listener),
	}

	go c.run()

	return c
}

// Request submits a sequence. Under PolicyReject it returns ErrBusy if
// another target is in flight; under PolicySupersede it always wins and the
// previous sequence's pending callbacks are discarded.
func (c *Coordinator) Request(seq Sequence) error {
	if len(seq.Steps) == 0 {
		return fmt.Errorf("empty sequence for target %q", seq.Target)
	}

	reply := make(chan error, 1)
	select {
	case c.events <- event{kind: eventRequest, seq: seq, reply: reply}:
	case <-c.ctx.Done():
		return fmt.Errorf("coordinator %s is closed", c.name)
	}

	select {
	case err := <-reply:
		return err
	case <-c.ctx.Done():
		return fmt.Errorf("coordinator %s is closed", c.name)
	}
}

// Status returns the current observable status.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// LastFailure returns the most recent Failed status, if any since the last
// accepted request.
func (c *Coordinator) LastFailure() (Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastFailure == nil {
		return Status{}, false
	}
	return *c.lastFailure, true
}

// Subscribe registers a listener for status transitions. The returned
// function cancels the subscription.
func (c *Coordinator) Subscribe(l Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close stops the event loop. In-flight OS processes are not killed; their
// completions are discarded.
func (c *Coordinator) Close() {
	c.cancel()
}

func (c *Coordinator) run() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[COORDINATOR] Recovered from panic in %s loop: %v", c.name, r)
		}
	}()

	m := &machine{c: c}

	for {
		select {
		case <-c.ctx.Done():
			m.stopDeadline()
			return
		case ev := <-c.events:
			m.dispatch(ev)
		}
	}
}

func (m *machine) dispatch(ev event) {
	// Completions and deadlines from a superseded or finished sequence carry
	// a stale generation and are dropped here.
	if ev.kind != eventRequest && ev.gen != m.gen {
		log.Printf("[COORDINATOR] %s: discarding stale %v event (gen %d, current %d)",
			m.c.name, ev.kind, ev.gen, m.gen)
		return
	}

	state := m.c.Status().State
	fn, ok := transitions[transitionKey{state, ev.kind}]
	if !ok {
		// Idle has no step or deadline reactions; late events land here.
		if ev.reply != nil {
			ev.reply <- fmt.Errorf("no transition from %v", state)
		}
		return
	}

	fn(m, ev)
}

// startSequence accepts a request from Idle and issues its first step.
func startSequence(m *machine, ev event) {
	m.begin(ev.seq)
	ev.reply <- nil
}

// requestWhileBusy applies the busy policy to a request that arrived while a
// sequence is in flight.
func requestWhileBusy(m *machine, ev event) {
	if m.c.cfg.Policy == PolicyReject {
		log.Printf("[COORDINATOR] %s: rejecting %s(%s), busy with %s(%s)",
			m.c.name, ev.seq.Op, ev.seq.Target, m.seq.Op, m.seq.Target)
		ev.reply <- ErrBusy
		return
	}

	log.Printf("[COORDINATOR] %s: superseding %s(%s) with %s(%s)",
		m.c.name, m.seq.Op, m.seq.Target, ev.seq.Op, ev.seq.Target)
	m.stopDeadline()
	m.begin(ev.seq)
	ev.reply <- nil
}

// advanceSequence issues the next step, or finishes the sequence.
func advanceSequence(m *machine, ev event) {
	m.stepIdx++
	if m.stepIdx < len(m.seq.Steps) {
		m.issueStep()
		return
	}

	log.Printf("[COORDINATOR] %s: %s(%s) completed", m.c.name, m.seq.Op, m.seq.Target)
	m.finish()
}

// failSequence surfaces a step failure and returns to Idle. No automatic
// retry; that is the user's call.
func failSequence(m *machine, ev event) {
	reason := "command failed"
	if ev.err != nil {
		reason = ev.err.Error()
	}
	m.fail(reason)
}

// expireSequence handles the global deadline firing mid-sequence.
func expireSequence(m *machine, ev event) {
	m.fail(fmt.Sprintf("deadline exceeded after %v", m.c.cfg.GlobalDeadline))
}

func (m *machine) begin(seq Sequence) {
	m.gen++
	m.seq = seq
	m.stepIdx = 0

	m.c.clearFailure()

	gen := m.gen
	m.deadline = time.AfterFunc(m.c.cfg.GlobalDeadline, func() {
		select {
		case m.c.events <- event{kind: eventDeadline, gen: gen}:
		case <-m.c.ctx.Done():
		}
	})

	log.Printf("[COORDINATOR] %s: starting %s(%s), %d step(s)",
		m.c.name, seq.Op, seq.Target, len(seq.Steps))

	m.issueStep()
}

func (m *machine) issueStep() {
	step := m.seq.Steps[m.stepIdx]
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = m.c.cfg.StepTimeout
	}

	m.c.setStatus(Status{State: step.State, Target: m.seq.Target, Op: m.seq.Op})

	gen := m.gen
	m.c.runner.RunAsync(m.c.ctx, step.Argv, timeout, func(res *runner.Result, err error) {
		ev := event{kind: eventStepOK, gen: gen}
		if err != nil {
			ev = event{kind: eventStepFail, gen: gen, err: err}
		}
		select {
		case m.c.events <- ev:
		case <-m.c.ctx.Done():
		}
	})
}

func (m *machine) finish() {
	m.stopDeadline()
	// Bump the generation so anything still in flight for this sequence is
	// recognized as stale when it lands.
	m.gen++
	m.c.setStatus(Status{State: StateIdle})
}

func (m *machine) fail(reason string) {
	log.Printf("[COORDINATOR] %s: %s(%s) failed: %s", m.c.name, m.seq.Op, m.seq.Target, reason)

	m.stopDeadline()
	m.gen++

	failed := Status{State: StateFailed, Target: m.seq.Target, Op: m.seq.Op, Reason: reason}
	m.c.recordFailure(failed)

	// Failed is transient: publish it once, then settle back to Idle so the
	// coordinator is never left dangling.
	m.c.setStatus(failed)
	m.c.setStatus(Status{State: StateIdle})
}

func (m *machine) stopDeadline() {
	if m.deadline != nil {
		m.deadline.Stop()
		m.deadline = nil
	}
}

func (c *Coordinator) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	toNotify := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		toNotify = append(toNotify, l)
	}
	c.mu.Unlock()

	for _, l := range toNotify {
		notifyListener(l, s)
	}
}

func (c *Coordinator) recordFailure(s Status) {
	c.mu.Lock()
	c.lastFailure = &s
	c.mu.Unlock()
}

func (c *Coordinator) clearFailure() {
	c.mu.Lock()
	c.lastFailure = nil
	c.mu.Unlock()
}

func notifyListener(l Listener, s Status) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[COORDINATOR] Recovered from panic in listener: %v", r)
		}
	}()
	l(s)
}
