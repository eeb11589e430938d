// Package bluetooth reconciles device state through bluetoothctl: a poller
// diffs the adapter's device list into a snapshot store, and a session
// coordinator sequences trust/pair/connect flows one target at a time.
package bluetooth

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/config"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/poll"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/runner"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/session"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/snapshot"
)

// Device is one known bluetooth device. MACs are unique within a snapshot.
type Device struct {
	MAC       string `json:"mac"`
	Name      string `json:"name"`
	Paired    bool   `json:"paired"`
	Connected bool   `json:"connected"`
	Trusted   bool   `json:"trusted"`
	Battery   int    `json:"battery"` // -1 when the device does not report one
	RSSI      int    `json:"rssi"`
}

type cachedInfo struct {
	info  deviceInfo
	taken time.Time
}

// Service owns the bluetooth snapshot store and coordinator.
type Service struct {
	runner       runner.Runner
	store        *snapshot.Store[Device]
	coord        *session.Coordinator
	poller       *poll.Poller
	infoCache    *lru.Cache[string, cachedInfo]
	infoCacheTTL time.Duration
	queryTimeout time.Duration

	mu      sync.RWMutex
	powered bool
}

// NewService wires a bluetooth service from its dependencies. Nothing is
// polled until an observer registers.
func NewService(r runner.Runner, cfg config.BluetoothConfig) (*Service, error) {
	policy, err := session.ParseBusyPolicy(cfg.BusyPolicy)
	if err != nil {
		return nil, fmt.Errorf("bluetooth busy policy: %w", err)
	}

	cacheSize := cfg.InfoCacheSize
	if cacheSize <= 0 {
		cacheSize = 64
	}
	cache, err := lru.New[string, cachedInfo](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create info cache: %w", err)
	}

	ttl := time.Duration(cfg.InfoCacheTTL) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	s := &Service{
		runner: r,
		store: snapshot.NewStore(func(a, b Device) bool {
			return a == b
		}),
		coord: session.New("bluetooth", r, session.Config{
			StepTimeout:    time.Duration(cfg.StepTimeout) * time.Second,
			GlobalDeadline: time.Duration(cfg.GlobalDeadline) * time.Second,
			Policy:         policy,
		}),
		infoCache:    cache,
		infoCacheTTL: ttl,
		queryTimeout: 10 * time.Second,
	}

	s.poller = poll.New("bluetooth", time.Duration(cfg.PollInterval)*time.Second, s.pollOnce, nil)

	return s, nil
}

// Store exposes the snapshot store for observers.
func (s *Service) Store() *snapshot.Store[Device] {
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

// Powered returns the last known adapter power state.
func (s *Service) Powered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.powered
}

// InvalidateInfo drops the cached info for one device, or everything when mac
// is empty. Called when a change notification arrives.
func (s *Service) InvalidateInfo(mac string) {
	if mac == "" {
		s.infoCache.Purge()
		return
	}
	s.infoCache.Remove(mac)
}

// pollOnce refreshes the snapshot. A powered-off adapter clears the store;
// per-device info failures degrade to list-only records rather than losing
// the snapshot.
func (s *Service) pollOnce(ctx context.Context) error {
	powered, err := s.readPowerState(ctx)
	if err != nil {
		return fmt.Errorf("failed to read adapter state: %w", err)
	}

	s.mu.Lock()
	s.powered = powered
	s.mu.Unlock()

	if !powered {
		s.store.Clear()
		s.infoCache.Purge()
		return nil
	}

	out, err := s.runner.Run(ctx, []string{"bluetoothctl", "devices"}, s.queryTimeout)
	if err != nil {
		return fmt.Errorf("device list failed: %w", err)
	}

	devices := parseDeviceList(out.Stdout)
	for i := range devices {
		info, err := s.deviceInfo(ctx, devices[i].MAC)
		if err != nil {
			log.Printf("[BLUETOOTH] Info for %s failed, keeping list entry: %v", devices[i].MAC, err)
			devices[i].Battery = -1
			continue
		}
		devices[i].Paired = info.Paired
		devices[i].Connected = info.Connected
		devices[i].Trusted = info.Trusted
		devices[i].Battery = info.Battery
		devices[i].RSSI = info.RSSI
	}

	s.store.Replace(devices, time.Now())
	return nil
}

func (s *Service) readPowerState(ctx context.Context) (bool, error) {
	out, err := s.runner.Run(ctx, []string{"bluetoothctl", "show"}, s.queryTimeout)
	if err != nil {
		return false, err
	}
	return strings.Contains(out.Stdout, "Powered: yes"), nil
}

// deviceInfo reads one device's attributes, consulting the LRU cache first so
// a tick does not spawn an info process per device every time.
func (s *Service) deviceInfo(ctx context.Context, mac string) (deviceInfo, error) {
	if cached, ok := s.infoCache.Get(mac); ok {
		if time.Since(cached.taken) < s.infoCacheTTL {
			return cached.info, nil
		}
		s.infoCache.Remove(mac)
	}

	out, err := s.runner.Run(ctx, []string{"bluetoothctl", "info", mac}, s.queryTimeout)
	if err != nil {
		return deviceInfo{}, err
	}

	info := parseDeviceInfo(out.Stdout)
	s.infoCache.Add(mac, cachedInfo{info: info, taken: time.Now()})
	return info, nil
}

// Connect connects to a device. An unpaired target is trusted and paired
// first; a paired one goes straight to connect.
func (s *Service) Connect(mac string) error {
	if !validMAC(mac) {
		return fmt.Errorf("invalid MAC address: %q", mac)
	}

	paired := false
	for _, d := range s.store.Current().Items {
		if d.MAC == mac {
			paired = d.Paired
			break
		}
	}

	var steps []session.Step
	if !paired {
		steps = append(steps,
			session.Step{State: session.StateTrusting, Argv: []string{"bluetoothctl", "trust", mac}},
			session.Step{State: session.StatePairing, Argv: []string{"bluetoothctl", "pair", mac}},
		)
	}
	steps = append(steps,
		session.Step{State: session.StateConnecting, Argv: []string{"bluetoothctl", "connect", mac}},
	)

	err := s.coord.Request(session.Sequence{Target: mac, Op: "connect", Steps: steps})
	if err != nil {
		return err
	}

	s.InvalidateInfo(mac)
	s.poller.Kick()
	return nil
}

// Disconnect drops the connection to a device.
func (s *Service) Disconnect(mac string) error {
	if !validMAC(mac) {
		return fmt.Errorf("invalid MAC address: %q", mac)
	}

	err := s.coord.Request(session.Sequence{
		Target: mac,
		Op:     "disconnect",
		Steps: []session.Step{
			{State: session.StateDisconnecting, Argv: []string{"bluetoothctl", "disconnect", mac}},
		},
	})
	if err != nil {
		return err
	}

	s.InvalidateInfo(mac)
	s.poller.Kick()
	return nil
}

// Pair pairs with a device without connecting.
func (s *Service) Pair(mac string) error {
	if !validMAC(mac) {
		return fmt.Errorf("invalid MAC address: %q", mac)
	}

	err := s.coord.Request(session.Sequence{
		Target: mac,
		Op:     "pair",
		Steps: []session.Step{
			{State: session.StateTrusting, Argv: []string{"bluetoothctl", "trust", mac}},
			{State: session.StatePairing, Argv: []string{"bluetoothctl", "pair", mac}},
		},
	})
	if err != nil {
		return err
	}

	s.InvalidateInfo(mac)
	s.poller.Kick()
	return nil
}

// Remove unpairs and forgets a device.
func (s *Service) Remove(mac string) error {
	if !validMAC(mac) {
		return fmt.Errorf("invalid MAC address: %q", mac)
	}

	err := s.coord.Request(session.Sequence{
		Target: mac,
		Op:     "remove",
		Steps: []session.Step{
			{State: session.StateDisconnecting, Argv: []string{"bluetoothctl", "remove", mac}},
		},
	})
	if err != nil {
		return err
	}

	s.InvalidateInfo(mac)
	s.poller.Kick()
	return nil
}

// SetPower flips the adapter on or off. Powering off clears the snapshot on
// the next poll.
func (s *Service) SetPower(ctx context.Context, on bool) error {
	verb := "off"
	if on {
		verb = "on"
	}
	if _, err := s.runner.Run(ctx, []string{"bluetoothctl", "power", verb}, s.queryTimeout); err != nil {
		return fmt.Errorf("failed to power %s adapter: %w", verb, err)
	}
	s.poller.Kick()
	return nil
}

// Close stops the poller and coordinator.
func (s *Service) Close() {
	s.poller.Stop()
	s.coord.Close()
}
