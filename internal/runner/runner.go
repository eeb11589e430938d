package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"
)

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// SpawnError means the executable could not be started at all
// (missing binary, permission denied). The call never produced output.
type SpawnError struct {
	Argv []string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %q: %v", strings.Join(e.Argv, " "), e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ExitError means the command ran and exited non-zero.
type ExitError struct {
	Argv     []string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%q exited with code %d", strings.Join(e.Argv, " "), e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// TimeoutError means the per-call deadline expired and the process was killed.
type TimeoutError struct {
	Argv    []string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%q timed out after %v", strings.Join(e.Argv, " "), e.Timeout)
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Runner executes external commands. Implementations must deliver exactly one
// completion per call and must never block the caller in RunAsync.
type Runner interface {
	// Run executes argv and waits for completion or timeout.
	Run(ctx context.Context, argv []string, timeout time.Duration) (*Result, error)

	// RunAsync executes argv on a background goroutine and invokes done
	// exactly once with the outcome.
	RunAsync(ctx context.Context, argv []string, timeout time.Duration, done func(*Result, error))
}

// ExecRunner runs commands with os/exec. One OS process per call, no reuse;
// concurrent calls share no state.
type ExecRunner struct{}

// NewExecRunner creates an ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes argv, capturing stdout and stderr. On timeout the process is
// killed and a TimeoutError is returned.
func (r *ExecRunner) Run(ctx context.Context, argv []string, timeout time.Duration) (*Result, error) {
	if len(argv) == 0 {
		return nil, &SpawnError{Argv: argv, Err: fmt.Errorf("empty argv")}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		log.Printf("[RUNNER] Killed %q after %v", strings.Join(argv, " "), timeout)
		return nil, &TimeoutError{Argv: argv, Timeout: timeout}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{
				Argv:     argv,
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
			}
		}
		return nil, &SpawnError{Argv: argv, Err: err}
	}

	return &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
		Duration: elapsed,
	}, nil
}

// RunAsync executes argv on its own goroutine and reports the outcome through
// done. The callback fires exactly once.
func (r *ExecRunner) RunAsync(ctx context.Context, argv []string, timeout time.Duration, done func(*Result, error)) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[RUNNER] Recovered from panic running %q: %v", strings.Join(argv, " "), rec)
			}
		}()

		result, err := r.Run(ctx, argv, timeout)
		if done != nil {
			done(result, err)
		}
	}()
}
