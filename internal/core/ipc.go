package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/bluetooth"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/config"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/display"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/network"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/session"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/snapshot"
)

// IPCServer accepts unix-socket connections and routes requests to the
// domain services.
type IPCServer struct {
	app    *App
	config *config.Config

	mu       sync.Mutex
	server   *net.UnixListener
	running  bool
	handlers map[string]func(Request) Response
}

func NewIPCServer(app *App, cfg *config.Config) *IPCServer {
	s := &IPCServer{
		app:    app,
		config: cfg,
	}

	s.handlers = map[string]func(Request) Response{
		"status":     s.handleStatus,
		"devices":    s.handleDevices,
		"networks":   s.handleNetworks,
		"outputs":    s.handleOutputs,
		"connect":    s.handleConnect,
		"disconnect": s.handleDisconnect,
		"pair":       s.handlePair,
		"remove":     s.handleRemove,
		"forget":     s.handleForget,
		"rescan":     s.handleRescan,
		"power":      s.handlePower,
		"radio":      s.handleRadio,
		"set-mode":   s.handleSetMode,
		"find":       s.handleFind,
	}

	return s
}

func (s *IPCServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("IPC server already running")
	}

	socketPath := s.config.SocketPath
	if _, err := os.Stat(socketPath); err == nil {
		os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	s.server = listener.(*net.UnixListener)
	s.running = true

	log.Printf("[IPC] Server listening on %s", socketPath)

	go s.acceptConnections()

	return nil
}

func (s *IPCServer) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *IPCServer) acceptConnections() {
	for s.isRunning() {
		conn, err := s.server.Accept()
		if err != nil {
			if s.isRunning() {
				log.Printf("[IPC] Error accepting connection: %v", err)
			}
			continue
		}

		go s.handleConnection(conn)
	}
}

func (s *IPCServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		json.NewEncoder(conn).Encode(Response{Error: "invalid request: " + err.Error()})
		return
	}

	log.Printf("[IPC] Received command: %s", req.Command)

	if req.Command == "subscribe" {
		s.handleSubscribe(conn)
		return
	}

	resp := s.dispatch(req)
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Printf("[IPC] Failed to write response: %v", err)
	}
}

func (s *IPCServer) dispatch(req Request) Response {
	handler, ok := s.handlers[req.Command]
	if !ok {
		return Response{Error: fmt.Sprintf("unknown command: %q", req.Command)}
	}
	return handler(req)
}

func errorResponse(format string, args ...interface{}) Response {
	return Response{Error: fmt.Sprintf(format, args...)}
}

func (s *IPCServer) handleStatus(req Request) Response {
	payload := &StatusPayload{}

	if svc := s.app.bluetoothSvc; svc != nil {
		payload.Bluetooth = domainStatus(svc.Coordinator(), svc.Powered(), svc.Store().Len(), svc.Store().Current().Taken)
	}
	if svc := s.app.networkSvc; svc != nil {
		payload.Network = domainStatus(svc.Coordinator(), svc.RadioEnabled(), svc.Store().Len(), svc.Store().Current().Taken)
	}
	if svc := s.app.displaySvc; svc != nil {
		payload.Display = domainStatus(svc.Coordinator(), true, svc.Store().Len(), svc.Store().Current().Taken)
	}

	return Response{OK: true, Status: payload}
}

func domainStatus(coord *session.Coordinator, powered bool, items int, refreshed time.Time) DomainStatus {
	ds := DomainStatus{
		Enabled:   true,
		Powered:   powered,
		Session:   coord.Status(),
		Snapshot:  items,
		Refreshed: refreshed,
	}
	if failure, ok := coord.LastFailure(); ok {
		ds.Failure = &failure
	}
	return ds
}

func (s *IPCServer) handleDevices(req Request) Response {
	svc := s.app.bluetoothSvc
	if svc == nil {
		return errorResponse("bluetooth service is disabled")
	}

	s.refreshIfIdle(svc.Poller())
	snap := svc.Store().Current()
	return Response{OK: true, Devices: snap.Items, Taken: snap.Taken}
}

func (s *IPCServer) handleNetworks(req Request) Response {
	svc := s.app.networkSvc
	if svc == nil {
		return errorResponse("network service is disabled")
	}

	s.refreshIfIdle(svc.Poller())
	snap := svc.Store().Current()
	return Response{OK: true, Networks: snap.Items, Taken: snap.Taken}
}

func (s *IPCServer) handleOutputs(req Request) Response {
	svc := s.app.displaySvc
	if svc == nil {
		return errorResponse("display service is disabled")
	}

	s.refreshIfIdle(svc.Poller())
	snap := svc.Store().Current()
	return Response{OK: true, Outputs: snap.Items, Taken: snap.Taken}
}

// refreshIfIdle polls synchronously when no subscriber keeps the loop alive,
// so one-shot queries do not return a stale or empty snapshot.
func (s *IPCServer) refreshIfIdle(p interface {
	Observers() int
	PollNow(context.Context) error
}) {
	if p.Observers() > 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.PollNow(ctx); err != nil {
		log.Printf("[IPC] On-demand poll failed: %v", err)
	}
}

func (s *IPCServer) handleConnect(req Request) Response {
	switch req.Domain {
	case "bluetooth":
		if s.app.bluetoothSvc == nil {
			return errorResponse("bluetooth service is disabled")
		}
		if err := s.app.bluetoothSvc.Connect(req.Target); err != nil {
			return Response{Error: err.Error()}
		}
	case "network":
		if s.app.networkSvc == nil {
			return errorResponse("network service is disabled")
		}
		if err := s.app.networkSvc.Connect(req.Target, req.Password); err != nil {
			return Response{Error: err.Error()}
		}
	default:
		return errorResponse("connect requires domain bluetooth or network, got %q", req.Domain)
	}
	return Response{OK: true}
}

func (s *IPCServer) handleDisconnect(req Request) Response {
	switch req.Domain {
	case "bluetooth":
		if s.app.bluetoothSvc == nil {
			return errorResponse("bluetooth service is disabled")
		}
		if err := s.app.bluetoothSvc.Disconnect(req.Target); err != nil {
			return Response{Error: err.Error()}
		}
	case "network":
		if s.app.networkSvc == nil {
			return errorResponse("network service is disabled")
		}
		if err := s.app.networkSvc.Disconnect(req.Target); err != nil {
			return Response{Error: err.Error()}
		}
	default:
		return errorResponse("disconnect requires domain bluetooth or network, got %q", req.Domain)
	}
	return Response{OK: true}
}

func (s *IPCServer) handlePair(req Request) Response {
	if s.app.bluetoothSvc == nil {
		return errorResponse("bluetooth service is disabled")
	}
	if err := s.app.bluetoothSvc.Pair(req.Target); err != nil {
		return Response{Error: err.Error()}
	}
	return Response{OK: true}
}

func (s *IPCServer) handleRemove(req Request) Response {
	if s.app.bluetoothSvc == nil {
		return errorResponse("bluetooth service is disabled")
	}
	if err := s.app.bluetoothSvc.Remove(req.Target); err != nil {
		return Response{Error: err.Error()}
	}
	return Response{OK: true}
}

func (s *IPCServer) handleForget(req Request) Response {
	if s.app.networkSvc == nil {
		return errorResponse("network service is disabled")
	}
	if err := s.app.networkSvc.Forget(req.Target); err != nil {
		return Response{Error: err.Error()}
	}
	return Response{OK: true}
}

func (s *IPCServer) handleRescan(req Request) Response {
	if s.app.networkSvc == nil {
		return errorResponse("network service is disabled")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.app.networkSvc.Rescan(ctx); err != nil {
		return Response{Error: err.Error()}
	}
	return Response{OK: true}
}

func (s *IPCServer) handlePower(req Request) Response {
	if s.app.bluetoothSvc == nil {
		return errorResponse("bluetooth service is disabled")
	}
	if req.On == nil {
		return errorResponse("power requires on: true or false")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.app.bluetoothSvc.SetPower(ctx, *req.On); err != nil {
		return Response{Error: err.Error()}
	}
	return Response{OK: true}
}

func (s *IPCServer) handleRadio(req Request) Response {
	if s.app.networkSvc == nil {
		return errorResponse("network service is disabled")
	}
	if req.On == nil {
		return errorResponse("radio requires on: true or false")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.app.networkSvc.SetRadio(ctx, *req.On); err != nil {
		return Response{Error: err.Error()}
	}
	return Response{OK: true}
}

func (s *IPCServer) handleSetMode(req Request) Response {
	if s.app.displaySvc == nil {
		return errorResponse("display service is disabled")
	}
	if err := s.app.displaySvc.SetMode(req.Target, req.Mode); err != nil {
		return Response{Error: err.Error()}
	}
	return Response{OK: true}
}

// handleSubscribe streams snapshot and session events as JSON lines until the
// client hangs up. A subscription is what keeps the pollers running.
func (s *IPCServer) handleSubscribe(conn net.Conn) {
	log.Printf("[IPC] Subscriber attached")

	events := make(chan Event, 64)
	emit := func(ev Event) {
		select {
		case events <- ev:
		default:
			log.Printf("[IPC] Subscriber event buffer full, dropping %s", ev.Kind)
		}
	}

	var cancels []func()

	if svc := s.app.bluetoothSvc; svc != nil {
		svc.Poller().AddObserver()
		cancels = append(cancels, svc.Poller().RemoveObserver)
		cancels = append(cancels, svc.Store().Subscribe(func(snap snapshot.Snapshot[bluetooth.Device]) {
			emit(Event{Kind: "bluetooth_snapshot", Devices: snap.Items, Taken: snap.Taken})
		}))
		cancels = append(cancels, svc.Coordinator().Subscribe(func(st session.Status) {
			emit(Event{Kind: "bluetooth_session", Session: &st})
		}))
	}

	if svc := s.app.networkSvc; svc != nil {
		svc.Poller().AddObserver()
		cancels = append(cancels, svc.Poller().RemoveObserver)
		cancels = append(cancels, svc.Store().Subscribe(func(snap snapshot.Snapshot[network.Network]) {
			emit(Event{Kind: "network_snapshot", Networks: snap.Items, Taken: snap.Taken})
		}))
		cancels = append(cancels, svc.Coordinator().Subscribe(func(st session.Status) {
			emit(Event{Kind: "network_session", Session: &st})
		}))
	}

	if svc := s.app.displaySvc; svc != nil {
		svc.Poller().AddObserver()
		cancels = append(cancels, svc.Poller().RemoveObserver)
		cancels = append(cancels, svc.Store().Subscribe(func(snap snapshot.Snapshot[display.Output]) {
			emit(Event{Kind: "display_snapshot", Outputs: snap.Items, Taken: snap.Taken})
		}))
		cancels = append(cancels, svc.Coordinator().Subscribe(func(st session.Status) {
			emit(Event{Kind: "display_session", Session: &st})
		}))
	}

	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
		log.Printf("[IPC] Subscriber detached")
	}()

	// Detect hangup even while no events flow: the client sends nothing
	// after the subscribe request, so a read only returns on disconnect.
	done := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := conn.Read(buf); err != nil {
				close(done)
				return
			}
		}
	}()

	encoder := json.NewEncoder(conn)
	for {
		select {
		case ev := <-events:
			if err := encoder.Encode(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *IPCServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false

	if s.server != nil {
		s.server.Close()
	}

	socketPath := s.config.SocketPath
	if _, err := os.Stat(socketPath); err == nil {
		os.Remove(socketPath)
	}

	log.Println("[IPC] Server stopped")
	return nil
}
