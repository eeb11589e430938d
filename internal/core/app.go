// Package core wires the domain services together and exposes them over a
// unix-socket IPC server. Services are explicit instances constructed here
// and handed their dependencies; nothing lives in package-level state.
package core

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/bluetooth"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/config"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/display"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/network"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/runner"
)

// App is the daemon: services plus the IPC server.
type App struct {
	config *config.Config

	bluetoothSvc *bluetooth.Service
	btWatcher    *bluetooth.Watcher
	networkSvc   *network.Service
	displaySvc   *display.Service

	ipc *IPCServer
}

// NewApp constructs all enabled services.
func NewApp(cfg *config.Config) (*App, error) {
	app := &App{config: cfg}
	execRunner := runner.NewExecRunner()

	if cfg.Bluetooth.Enabled {
		svc, err := bluetooth.NewService(execRunner, cfg.Bluetooth)
		if err != nil {
			return nil, fmt.Errorf("failed to create bluetooth service: %w", err)
		}
		app.bluetoothSvc = svc

		if cfg.Bluetooth.DBusWatcher {
			watcher, err := bluetooth.NewWatcher(svc)
			if err != nil {
				// The watcher is an accelerant; polling still works without it.
				log.Printf("[APP] Bluetooth change watcher unavailable: %v", err)
			} else {
				app.btWatcher = watcher
			}
		}
	}

	if cfg.Network.Enabled {
		svc, err := network.NewService(execRunner, cfg.Network)
		if err != nil {
			return nil, fmt.Errorf("failed to create network service: %w", err)
		}
		app.networkSvc = svc
	}

	if cfg.Display.Enabled {
		svc, err := display.NewService(execRunner, cfg.Display)
		if err != nil {
			return nil, fmt.Errorf("failed to create display service: %w", err)
		}
		app.displaySvc = svc
	}

	app.ipc = NewIPCServer(app, cfg)

	return app, nil
}

// Run starts the IPC server and the bluetooth change watcher, then blocks
// until SIGINT or SIGTERM.
func (a *App) Run() error {
	if err := a.ipc.Start(); err != nil {
		return fmt.Errorf("failed to start IPC server: %w", err)
	}

	if a.btWatcher != nil {
		if err := a.btWatcher.Start(); err != nil {
			log.Printf("[APP] Failed to start bluetooth change watcher: %v", err)
		}
	}

	log.Printf("[APP] %s running", a.config.AppName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[APP] Received %v, shutting down", sig)

	a.Stop()
	return nil
}

// Stop shuts everything down in reverse start order.
func (a *App) Stop() {
	if a.ipc != nil {
		a.ipc.Stop()
	}
	if a.btWatcher != nil {
		a.btWatcher.Stop()
	}
	if a.bluetoothSvc != nil {
		a.bluetoothSvc.Close()
	}
	if a.networkSvc != nil {
		a.networkSvc.Close()
	}
	if a.displaySvc != nil {
		a.displaySvc.Close()
	}
}
