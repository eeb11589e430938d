package network

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/config"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/runner"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/session"
)

func newTestService(t *testing.T, fake *runner.FakeRunner) *Service {
	t.Helper()
	s, err := NewService(fake, config.NetworkConfig{
		PollInterval:   3600,
		StepTimeout:    5,
		GlobalDeadline: 10,
		BusyPolicy:     "reject",
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func scriptScan(fake *runner.FakeRunner, radio, list, saved string) {
	fake.Script([]string{"nmcli", "radio", "wifi"}, runner.FakeResponse{Stdout: radio})
	fake.Script([]string{"nmcli", "-t", "-f", "IN-USE,SSID,SIGNAL,SECURITY", "device", "wifi", "list"},
		runner.FakeResponse{Stdout: list})
	fake.Script([]string{"nmcli", "-t", "-f", "NAME", "connection", "show"},
		runner.FakeResponse{Stdout: saved})
}

func TestService_PollPopulatesSnapshot(t *testing.T) {
	fake := runner.NewFakeRunner()
	scriptScan(fake, "enabled\n", "*:HomeNet:87:WPA2\n:Office:71:WPA2\n", "HomeNet\n")

	s := newTestService(t, fake)

	if err := s.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce failed: %v", err)
	}

	snap := s.Store().Current()
	if len(snap.Items) != 2 {
		t.Fatalf("Expected 2 networks, got %v", snap.Items)
	}
	if !snap.Items[0].Saved {
		t.Errorf("Expected HomeNet marked saved: %+v", snap.Items[0])
	}
	if snap.Items[1].Saved {
		t.Errorf("Expected Office not saved: %+v", snap.Items[1])
	}
	if !s.RadioEnabled() {
		t.Error("Expected radio reported enabled")
	}
}

func TestService_RadioOffClearsSnapshot(t *testing.T) {
	fake := runner.NewFakeRunner()
	scriptScan(fake, "enabled\n", "*:HomeNet:87:WPA2\n", "")

	s := newTestService(t, fake)
	if err := s.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce failed: %v", err)
	}
	if s.Store().Len() != 1 {
		t.Fatalf("Expected populated snapshot, got %d", s.Store().Len())
	}

	fake.Script([]string{"nmcli", "radio", "wifi"}, runner.FakeResponse{Stdout: "disabled\n"})
	if err := s.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce failed: %v", err)
	}

	if s.Store().Len() != 0 {
		t.Errorf("Expected cleared snapshot with radio off, got %d items", s.Store().Len())
	}
	if s.RadioEnabled() {
		t.Error("Expected radio reported disabled")
	}

	// No scan may run while the radio is off.
	calls := fake.Calls()
	scanCalls := 0
	for _, c := range calls {
		if strings.Contains(c, "wifi list") {
			scanCalls++
		}
	}
	if scanCalls != 1 {
		t.Errorf("Expected exactly 1 scan (before radio off), got %d", scanCalls)
	}
}

func TestService_ConnectSavedUsesProfile(t *testing.T) {
	fake := runner.NewFakeRunner()
	scriptScan(fake, "enabled\n", ":HomeNet:87:WPA2\n", "HomeNet\n")

	s := newTestService(t, fake)
	if err := s.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce failed: %v", err)
	}

	if err := s.Connect("HomeNet", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitForIdleState(t, s)

	found := false
	for _, c := range fake.Calls() {
		if c == "nmcli connection up id HomeNet" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected saved-profile activation, calls: %v", fake.Calls())
	}
}

func TestService_ConnectNewWithPassword(t *testing.T) {
	fake := runner.NewFakeRunner()
	s := newTestService(t, fake)

	if err := s.Connect("CoffeeShop", "hunter2"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitForIdleState(t, s)

	found := false
	for _, c := range fake.Calls() {
		if c == "nmcli device wifi connect CoffeeShop password hunter2" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected fresh connect with password, calls: %v", fake.Calls())
	}
}

func TestService_ConnectRequiresSSID(t *testing.T) {
	s := newTestService(t, runner.NewFakeRunner())
	if err := s.Connect("", ""); err == nil {
		t.Fatal("Expected error for empty SSID")
	}
}

func waitForIdleState(t *testing.T, s *Service) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.Coordinator().Status().State == session.StateIdle {
			if _, failed := s.Coordinator().LastFailure(); failed {
				t.Fatalf("Operation failed: %v", failedReason(s))
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Coordinator never returned to idle")
}

func failedReason(s *Service) string {
	st, _ := s.Coordinator().LastFailure()
	return st.Reason
}
