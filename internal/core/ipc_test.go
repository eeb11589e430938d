package core

import (
	"encoding/json"
	"net"
	"path/filepath"
	"testing"

	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/bluetooth"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/config"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/network"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/runner"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/session"
)

func newTestApp(t *testing.T, fake *runner.FakeRunner) (*App, *config.Config) {
	t.Helper()

	cfg := config.DefaultConfig
	cfg.SocketPath = filepath.Join(t.TempDir(), "voidline.sock")

	btSvc, err := bluetooth.NewService(fake, cfg.Bluetooth)
	if err != nil {
		t.Fatalf("bluetooth service: %v", err)
	}
	nwSvc, err := network.NewService(fake, cfg.Network)
	if err != nil {
		t.Fatalf("network service: %v", err)
	}

	app := &App{
		config:       &cfg,
		bluetoothSvc: btSvc,
		networkSvc:   nwSvc,
	}
	app.ipc = NewIPCServer(app, &cfg)
	if err := app.ipc.Start(); err != nil {
		t.Fatalf("ipc start: %v", err)
	}

	t.Cleanup(func() {
		app.Stop()
	})

	return app, &cfg
}

func scriptBluetooth(fake *runner.FakeRunner) {
	fake.Script([]string{"bluetoothctl", "show"}, runner.FakeResponse{
		Stdout: "Controller 00:11:22:33:44:55 host\n\tPowered: yes\n",
	})
	fake.Script([]string{"bluetoothctl", "devices"}, runner.FakeResponse{
		Stdout: "Device AA:BB:CC:DD:EE:FF Keyboard K380\n",
	})
	fake.Script([]string{"bluetoothctl", "info", "AA:BB:CC:DD:EE:FF"}, runner.FakeResponse{
		Stdout: "Device AA:BB:CC:DD:EE:FF\n\tPaired: yes\n\tConnected: no\n\tTrusted: yes\n",
	})
}

func scriptNetwork(fake *runner.FakeRunner) {
	fake.Script([]string{"nmcli", "radio", "wifi"}, runner.FakeResponse{Stdout: "enabled\n"})
	fake.Script([]string{"nmcli", "-t", "-f", "IN-USE,SSID,SIGNAL,SECURITY", "device", "wifi", "list"},
		runner.FakeResponse{Stdout: "*:HomeBase:87:WPA2\n:CoffeeShack:54:\n"})
	fake.Script([]string{"nmcli", "-t", "-f", "NAME", "connection", "show"},
		runner.FakeResponse{Stdout: "HomeBase\n"})
}

func roundTrip(t *testing.T, socketPath string, req Request) Response {
	t.Helper()

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		t.Fatalf("encode request: %v", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestIPCDevicesRoundTrip(t *testing.T) {
	fake := runner.NewFakeRunner()
	scriptBluetooth(fake)

	_, cfg := newTestApp(t, fake)

	resp := roundTrip(t, cfg.SocketPath, Request{Command: "devices"})
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if len(resp.Devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(resp.Devices))
	}
	if resp.Devices[0].MAC != "AA:BB:CC:DD:EE:FF" || !resp.Devices[0].Paired {
		t.Errorf("unexpected device: %+v", resp.Devices[0])
	}
}

func TestIPCNetworksRoundTrip(t *testing.T) {
	fake := runner.NewFakeRunner()
	scriptNetwork(fake)

	_, cfg := newTestApp(t, fake)

	resp := roundTrip(t, cfg.SocketPath, Request{Command: "networks"})
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if len(resp.Networks) != 2 {
		t.Fatalf("expected 2 networks, got %d", len(resp.Networks))
	}
	for _, nw := range resp.Networks {
		if nw.SSID == "HomeBase" && !nw.Saved {
			t.Errorf("HomeBase should be marked saved")
		}
	}
}

func TestIPCStatus(t *testing.T) {
	fake := runner.NewFakeRunner()
	scriptBluetooth(fake)
	scriptNetwork(fake)

	_, cfg := newTestApp(t, fake)

	resp := roundTrip(t, cfg.SocketPath, Request{Command: "status"})
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if resp.Status == nil {
		t.Fatal("expected status payload")
	}
	if resp.Status.Bluetooth.Session.State != session.StateIdle {
		t.Errorf("expected idle bluetooth session, got %v", resp.Status.Bluetooth.Session.State)
	}
	if resp.Status.Display.Enabled {
		t.Errorf("display should report disabled when the service is absent")
	}
}

func TestIPCUnknownCommand(t *testing.T) {
	fake := runner.NewFakeRunner()
	_, cfg := newTestApp(t, fake)

	resp := roundTrip(t, cfg.SocketPath, Request{Command: "reticulate"})
	if resp.Error == "" {
		t.Fatal("expected an error for an unknown command")
	}
}

func TestIPCConnectRequiresDomain(t *testing.T) {
	fake := runner.NewFakeRunner()
	_, cfg := newTestApp(t, fake)

	resp := roundTrip(t, cfg.SocketPath, Request{Command: "connect", Target: "AA:BB:CC:DD:EE:FF"})
	if resp.Error == "" {
		t.Fatal("expected an error when domain is missing")
	}
}

func TestIPCFind(t *testing.T) {
	fake := runner.NewFakeRunner()
	scriptBluetooth(fake)
	scriptNetwork(fake)

	_, cfg := newTestApp(t, fake)

	// Populate both stores first.
	roundTrip(t, cfg.SocketPath, Request{Command: "devices"})
	roundTrip(t, cfg.SocketPath, Request{Command: "networks"})

	resp := roundTrip(t, cfg.SocketPath, Request{Command: "find", Query: "home"})
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if len(resp.Matches) == 0 {
		t.Fatal("expected at least one match")
	}
	if resp.Matches[0].Kind != "network" || resp.Matches[0].Target != "HomeBase" {
		t.Errorf("expected HomeBase as best match, got %+v", resp.Matches[0])
	}
}
