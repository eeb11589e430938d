package bluetooth

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	bluezBusName = "org.bluez"
	adapterPath  = "/org/bluez/hci0"
	adapterIface = "org.bluez.Adapter1"
	deviceIface  = "org.bluez.Device1"
	propsIface   = "org.freedesktop.DBus.Properties"
	propsSignal  = "org.freedesktop.DBus.Properties.PropertiesChanged"
)

// macFromPath extracts a MAC address from a BlueZ device object path like
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func macFromPath(path dbus.ObjectPath) string {
	s := string(path)
	prefix := adapterPath + "/dev_"
	if !strings.HasPrefix(s, prefix) {
		return ""
	}
	return strings.ReplaceAll(s[len(prefix):], "_", ":")
}

// Watcher listens for BlueZ PropertiesChanged signals on the system bus and
// kicks the service's poller so snapshot refreshes do not wait for the next
// tick. Polling remains the source of truth; the watcher only advances it.
type Watcher struct {
	conn    *dbus.Conn
	service *Service
	cancel  context.CancelFunc
}

// NewWatcher connects to the system bus and verifies BlueZ is present.
func NewWatcher(service *Service) (*Watcher, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to list bus names: %w", err)
	}

	found := false
	for _, n := range names {
		if n == bluezBusName {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, fmt.Errorf("org.bluez not found on system bus, is bluetooth.service running?")
	}

	return &Watcher{conn: conn, service: service}, nil
}

// Start subscribes to property change signals and begins forwarding them.
func (w *Watcher) Start() error {
	call := w.conn.BusObject().Call(
		"org.freedesktop.DBus.AddMatch", 0,
		"type='signal',interface='"+propsIface+"',member='PropertiesChanged',path_namespace='/org/bluez'",
	)
	if call.Err != nil {
		return fmt.Errorf("failed to add signal match: %w", call.Err)
	}

	sigCh := make(chan *dbus.Signal, 16)
	w.conn.Signal(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	go w.watch(ctx, sigCh)

	log.Printf("[BLUETOOTH] D-Bus change watcher started")
	return nil
}

func (w *Watcher) watch(ctx context.Context, sigCh chan *dbus.Signal) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[BLUETOOTH] Recovered from panic in change watcher: %v", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			w.handleSignal(sig)
		}
	}
}

func (w *Watcher) handleSignal(sig *dbus.Signal) {
	if sig.Name != propsSignal || len(sig.Body) < 2 {
		return
	}

	iface, ok := sig.Body[0].(string)
	if !ok {
		return
	}

	switch iface {
	case deviceIface:
		mac := macFromPath(sig.Path)
		if mac == "" {
			return
		}
		log.Printf("[BLUETOOTH] Properties changed for %s, refreshing", mac)
		w.service.InvalidateInfo(mac)
		w.service.Poller().Kick()
	case adapterIface:
		log.Printf("[BLUETOOTH] Adapter properties changed, refreshing")
		w.service.InvalidateInfo("")
		w.service.Poller().Kick()
	}
}

// Stop shuts down the watcher and closes the bus connection.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.conn != nil {
		w.conn.Close()
	}
}
