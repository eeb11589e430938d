package runner

import (
	"context"
	"strings"
	"sync"
	"time"
)

// FakeResponse scripts the outcome of one command in a FakeRunner.
type FakeResponse struct {
	Stdout   string
	Err      error
	Delay    time.Duration
	ExitCode int
}

// FakeRunner is a scriptable Runner for tests. Responses are keyed by the
// joined argv string; unmatched commands fall back to Default.
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string]FakeResponse
	Default   FakeResponse
	calls     []string
}

// NewFakeRunner creates an empty FakeRunner that succeeds with empty output
// for any command.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		responses: make(map[string]FakeResponse),
	}
}

// Script registers the response for an exact argv.
func (f *FakeRunner) Script(argv []string, resp FakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[strings.Join(argv, " ")] = resp
}

// Calls returns the commands run so far, in order.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FakeRunner) lookup(argv []string) FakeResponse {
	key := strings.Join(argv, " ")

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, key)
	if resp, ok := f.responses[key]; ok {
		return resp
	}
	return f.Default
}

// Run returns the scripted outcome for argv.
func (f *FakeRunner) Run(ctx context.Context, argv []string, timeout time.Duration) (*Result, error) {
	resp := f.lookup(argv)

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return nil, &TimeoutError{Argv: argv, Timeout: timeout}
		}
	}

	if resp.Err != nil {
		return nil, resp.Err
	}

	return &Result{Stdout: resp.Stdout, ExitCode: resp.ExitCode}, nil
}

// RunAsync delivers the scripted outcome on a background goroutine.
func (f *FakeRunner) RunAsync(ctx context.Context, argv []string, timeout time.Duration, done func(*Result, error)) {
	go func() {
		result, err := f.Run(ctx, argv, timeout)
		if done != nil {
			done(result, err)
		}
	}()
}
