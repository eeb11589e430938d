package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/config"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/core"
)

var socketPath = config.DefaultConfig.SocketPath

func init() {
	// Try to load config to get a custom socket path
	configPath := filepath.Join(os.Getenv("HOME"), ".config", "voidline", "config.toml")
	cfg, err := config.LoadConfig(configPath)
	if err == nil && cfg.SocketPath != "" {
		socketPath = cfg.SocketPath
	}
	if env := os.Getenv("VOIDLINE_SOCKET"); env != "" {
		socketPath = env
	}
}

func ipcCall(req core.Request) (core.Response, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return core.Response{}, fmt.Errorf("connect to daemon: %w (is voidlined running?)", err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return core.Response{}, fmt.Errorf("send request: %w", err)
	}

	var resp core.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return core.Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

func runCommand(req core.Request) error {
	resp, err := ipcCall(req)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%s", resp.Error)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// runSubscribe holds the connection open and relays event lines to stdout
// until the daemon goes away or we are interrupted.
func runSubscribe() error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w (is voidlined running?)", err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(core.Request{Command: "subscribe"}); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(os.Stdout)
	for {
		var ev core.Event
		if err := dec.Decode(&ev); err != nil {
			return nil
		}
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
}

func onFlag(arg string) (*bool, error) {
	switch arg {
	case "on":
		v := true
		return &v, nil
	case "off":
		v := false
		return &v, nil
	default:
		return nil, fmt.Errorf("expected on or off, got %q", arg)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: voidline-client <command> [args]

Commands:
  status                              daemon and session state
  devices                             known bluetooth devices
  networks                            scanned Wi-Fi networks
  outputs                             display outputs and modes
  connect bluetooth <mac>             trust, pair and connect a device
  connect network <ssid> [password]   join a Wi-Fi network
  disconnect bluetooth <mac>
  disconnect network <ssid>
  pair <mac>                          trust and pair without connecting
  remove <mac>                        unpair and forget a device
  forget <ssid>                       delete a saved Wi-Fi profile
  rescan                              trigger a Wi-Fi rescan
  power on|off                        bluetooth adapter power
  radio on|off                        Wi-Fi radio
  set-mode <output> <mode>            e.g. set-mode DP-1 1920x1080@144Hz
  find <query>                        fuzzy-match devices and networks
  subscribe                           stream state changes as JSON lines
`)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[1:]
	var err error

	switch args[0] {
	case "status", "devices", "networks", "outputs", "rescan":
		err = runCommand(core.Request{Command: args[0]})

	case "connect", "disconnect":
		if len(args) < 3 {
			printUsage()
			os.Exit(1)
		}
		req := core.Request{Command: args[0], Domain: args[1], Target: args[2]}
		if args[0] == "connect" && args[1] == "network" && len(args) > 3 {
			req.Password = args[3]
		}
		err = runCommand(req)

	case "pair", "remove", "forget":
		if len(args) < 2 {
			printUsage()
			os.Exit(1)
		}
		err = runCommand(core.Request{Command: args[0], Target: args[1]})

	case "power", "radio":
		if len(args) < 2 {
			printUsage()
			os.Exit(1)
		}
		var on *bool
		on, err = onFlag(args[1])
		if err == nil {
			err = runCommand(core.Request{Command: args[0], On: on})
		}

	case "set-mode":
		if len(args) < 3 {
			printUsage()
			os.Exit(1)
		}
		err = runCommand(core.Request{Command: "set-mode", Target: args[1], Mode: args[2]})

	case "find":
		if len(args) < 2 {
			printUsage()
			os.Exit(1)
		}
		err = runCommand(core.Request{Command: "find", Query: args[1]})

	case "subscribe":
		err = runSubscribe()

	case "help", "-h", "--help":
		printUsage()

	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
