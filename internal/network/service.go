// Package network reconciles Wi-Fi state through nmcli: it polls scan results
// into a snapshot store and sequences connection operations through a session
// coordinator.
package network

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/config"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/poll"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/runner"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/session"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/snapshot"
)

// Network is one scanned Wi-Fi network. SSIDs are unique within a snapshot.
type Network struct {
	SSID    string `json:"ssid"`
	Signal  int    `json:"signal"`
	Secured bool   `json:"secured"`
	InUse   bool   `json:"in_use"`
	Saved   bool   `json:"saved"`
}

// Service owns the Wi-Fi snapshot store and coordinator.
type Service struct {
	runner       runner.Runner
	store        *snapshot.Store[Network]
	coord        *session.Coordinator
	poller       *poll.Poller
	queryTimeout time.Duration

	mu           sync.RWMutex
	radioEnabled bool
}

// NewService wires a Wi-Fi service from its dependencies. Nothing is polled
// until an observer registers.
func NewService(r runner.Runner, cfg config.NetworkConfig) (*Service, error) {
	policy, err := session.ParseBusyPolicy(cfg.BusyPolicy)
	if err != nil {
		return nil, fmt.Errorf("network busy policy: %w", err)
	}

	s := &Service{
		runner: r,
		store: snapshot.NewStore(func(a, b Network) bool {
			return a == b
		}),
		coord: session.New("network", r, session.Config{
			StepTimeout:    time.Duration(cfg.StepTimeout) * time.Second,
			GlobalDeadline: time.Duration(cfg.GlobalDeadline) * time.Second,
			Policy:         policy,
		}),
		queryTimeout: 10 * time.Second,
	}

	s.poller = poll.New("network", time.Duration(cfg.PollInterval)*time.Second, s.pollOnce, nil)

	return s, nil
}

// Store exposes the snapshot store for observers.
func (s *Service) Store() *snapshot.Store[Network] {
	return s.store
}

// Coordinator exposes the session coordinator for observers.
func (s *Service) Coordinator() *session.Coordinator {
	return s.coord
}

// Poller exposes the poller for observer registration.
func (s *Service) Poller() *poll.Poller {
	return s.poller
}

// RadioEnabled returns the last known Wi-Fi radio state.
func (s *Service) RadioEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.radioEnabled
}

// pollOnce refreshes the snapshot. A disabled radio clears the store and
// skips the scan; no polling work happens while the radio is off.
func (s *Service) pollOnce(ctx context.Context) error {
	enabled, err := s.readRadioState(ctx)
	if err != nil {
		return fmt.Errorf("failed to read radio state: %w", err)
	}

	s.mu.Lock()
	s.radioEnabled = enabled
	s.mu.Unlock()

	if !enabled {
		s.store.Clear()
		return nil
	}

	listOut, err := s.runner.Run(ctx, []string{
		"nmcli", "-t", "-f", "IN-USE,SSID,SIGNAL,SECURITY", "device", "wifi", "list",
	}, s.queryTimeout)
	if err != nil {
		return fmt.Errorf("wifi list failed: %w", err)
	}

	networks := parseWifiList(listOut.Stdout)

	// Saved-profile lookup failing is not fatal to the scan; the snapshot
	// just loses the saved flags for this tick.
	if savedOut, err := s.runner.Run(ctx, []string{
		"nmcli", "-t", "-f", "NAME", "connection", "show",
	}, s.queryTimeout); err == nil {
		saved := parseSavedProfiles(savedOut.Stdout)
		for i := range networks {
			networks[i].Saved = saved[networks[i].SSID]
		}
	} else {
		log.Printf("[NETWORK] Saved profile lookup failed: %v", err)
	}

	s.store.Replace(networks, time.Now())
	return nil
}

func (s *Service) readRadioState(ctx context.Context) (bool, error) {
	out, err := s.runner.Run(ctx, []string{"nmcli", "radio", "wifi"}, s.queryTimeout)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out.Stdout) == "enabled", nil
}

// Connect joins a network. A saved profile is activated by name; otherwise a
// fresh connection is made, with the password when one is given.
func (s *Service) Connect(ssid, password string) error {
	if ssid == "" {
		return fmt.Errorf("ssid is required")
	}

	saved := false
	for _, n := range s.store.Current().Items {
		if n.SSID == ssid {
			saved = n.Saved
			break
		}
	}

	var argv []string
	if saved {
		argv = []string{"nmcli", "connection", "up", "id", ssid}
	} else {
		argv = []string{"nmcli", "device", "wifi", "connect", ssid}
		if password != "" {
			argv = append(argv, "password", password)
		}
	}

	err := s.coord.Request(session.Sequence{
		Target: ssid,
		Op:     "connect",
		Steps:  []session.Step{{State: session.StateConnecting, Argv: argv}},
	})
	if err != nil {
		return err
	}

	s.poller.Kick()
	return nil
}

// Disconnect drops the active connection for ssid.
func (s *Service) Disconnect(ssid string) error {
	if ssid == "" {
		return fmt.Errorf("ssid is required")
	}

	err := s.coord.Request(session.Sequence{
		Target: ssid,
		Op:     "disconnect",
		Steps: []session.Step{
			{State: session.StateDisconnecting, Argv: []string{"nmcli", "connection", "down", "id", ssid}},
		},
	})
	if err != nil {
		return err
	}

	s.poller.Kick()
	return nil
}

// Forget deletes the saved profile for ssid. The profile itself is owned by
// NetworkManager; this only asks it to drop it.
func (s *Service) Forget(ssid string) error {
	if ssid == "" {
		return fmt.Errorf("ssid is required")
	}

	err := s.coord.Request(session.Sequence{
		Target: ssid,
		Op:     "forget",
		Steps: []session.Step{
			{State: session.StateDisconnecting, Argv: []string{"nmcli", "connection", "delete", "id", ssid}},
		},
	})
	if err != nil {
		return err
	}

	s.poller.Kick()
	return nil
}

// Rescan asks NetworkManager for a fresh scan and kicks the poller.
func (s *Service) Rescan(ctx context.Context) error {
	if _, err := s.runner.Run(ctx, []string{"nmcli", "device", "wifi", "rescan"}, s.queryTimeout); err != nil {
		return fmt.Errorf("rescan failed: %w", err)
	}
	s.poller.Kick()
	return nil
}

// SetRadio flips the Wi-Fi radio on or off.
func (s *Service) SetRadio(ctx context.Context, on bool) error {
	verb := "off"
	if on {
		verb = "on"
	}
	if _, err := s.runner.Run(ctx, []string{"nmcli", "radio", "wifi", verb}, s.queryTimeout); err != nil {
		return fmt.Errorf("failed to set radio %s: %w", verb, err)
	}
	s.poller.Kick()
	return nil
}

// Close stops the poller and coordinator.
func (s *Service) Close() {
	s.poller.Stop()
	s.coord.Close()
}
