package runner

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecRunner_Run(t *testing.T) {
	r := NewExecRunner()

	result, err := r.Run(context.Background(), []string{"echo", "hello"}, 5*time.Second)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Stdout != "hello\n" {
		t.Errorf("Expected stdout 'hello\\n', got %q", result.Stdout)
	}

	if result.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", result.ExitCode)
	}
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	r := NewExecRunner()

	_, err := r.Run(context.Background(), []string{"sh", "-c", "echo oops >&2; exit 3"}, 5*time.Second)
	if err == nil {
		t.Fatal("Expected error for non-zero exit")
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Expected ExitError, got %T: %v", err, err)
	}

	if exitErr.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", exitErr.ExitCode)
	}

	if exitErr.Stderr == "" {
		t.Error("Expected captured stderr")
	}
}

func TestExecRunner_SpawnError(t *testing.T) {
	r := NewExecRunner()

	_, err := r.Run(context.Background(), []string{"/nonexistent/definitely-not-here"}, time.Second)
	if err == nil {
		t.Fatal("Expected error for missing executable")
	}

	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("Expected SpawnError, got %T: %v", err, err)
	}
}

func TestExecRunner_EmptyArgv(t *testing.T) {
	r := NewExecRunner()

	_, err := r.Run(context.Background(), nil, time.Second)
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("Expected SpawnError for empty argv, got %T", err)
	}
}

func TestExecRunner_Timeout(t *testing.T) {
	r := NewExecRunner()

	start := time.Now()
	_, err := r.Run(context.Background(), []string{"sleep", "10"}, 100*time.Millisecond)
	elapsed := time.Since(start)

	if !IsTimeout(err) {
		t.Fatalf("Expected TimeoutError, got %T: %v", err, err)
	}

	if elapsed > 2*time.Second {
		t.Errorf("Timeout took too long: %v", elapsed)
	}
}

func TestExecRunner_RunAsync(t *testing.T) {
	r := NewExecRunner()

	done := make(chan struct{})
	var result *Result
	var runErr error

	r.RunAsync(context.Background(), []string{"echo", "async"}, 5*time.Second, func(res *Result, err error) {
		result = res
		runErr = err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunAsync callback never fired")
	}

	if runErr != nil {
		t.Fatalf("RunAsync failed: %v", runErr)
	}

	if result.Stdout != "async\n" {
		t.Errorf("Expected stdout 'async\\n', got %q", result.Stdout)
	}
}

func TestFakeRunner_Script(t *testing.T) {
	f := NewFakeRunner()
	f.Script([]string{"bluetoothctl", "devices"}, FakeResponse{Stdout: "Device AA:BB Name\n"})

	result, err := f.Run(context.Background(), []string{"bluetoothctl", "devices"}, time.Second)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Stdout != "Device AA:BB Name\n" {
		t.Errorf("Unexpected stdout: %q", result.Stdout)
	}

	calls := f.Calls()
	if len(calls) != 1 || calls[0] != "bluetoothctl devices" {
		t.Errorf("Unexpected call log: %v", calls)
	}
}
