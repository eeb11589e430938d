// Package display tracks compositor outputs over sway IPC and negotiates
// mode changes through the session coordinator.
package display

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/joshuarubin/go-sway"

	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/config"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/poll"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/runner"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/session"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/snapshot"
)

// Output is one compositor output. Names are unique within a snapshot.
type Output struct {
	Name        string   `json:"name"`
	Active      bool     `json:"active"`
	CurrentMode string   `json:"current_mode"`
	Modes       []string `json:"modes"`
}

func outputEqual(a, b Output) bool {
	if a.Name != b.Name || a.Active != b.Active || a.CurrentMode != b.CurrentMode {
		return false
	}
	if len(a.Modes) != len(b.Modes) {
		return false
	}
	for i := range a.Modes {
		if a.Modes[i] != b.Modes[i] {
			return false
		}
	}
	return true
}

// swaymsgOutput mirrors the fields of `swaymsg -t get_outputs` JSON used for
// the fallback path.
type swaymsgOutput struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Modes  []struct {
		Width   int64 `json:"width"`
		Height  int64 `json:"height"`
		Refresh int64 `json:"refresh"`
	} `json:"modes"`
	CurrentMode struct {
		Width   int64 `json:"width"`
		Height  int64 `json:"height"`
		Refresh int64 `json:"refresh"`
	} `json:"current_mode"`
}

func formatMode(width, height, refresh int64) string {
	// Refresh comes back in mHz.
	return fmt.Sprintf("%dx%d@%dHz", width, height, (refresh+500)/1000)
}

// Service owns the output snapshot store and coordinator.
type Service struct {
	runner       runner.Runner
	store        *snapshot.Store[Output]
	coord        *session.Coordinator
	poller       *poll.Poller
	queryTimeout time.Duration
}

// NewService wires a display service. Nothing is polled until an observer
// registers.
func NewService(r runner.Runner, cfg config.DisplayConfig) (*Service, error) {
	s := &Service{
		runner:       r,
		store:        snapshot.NewStore(outputEqual),
		queryTimeout: 10 * time.Second,
	}

	s.coord = session.New("display", r, session.Config{
		StepTimeout:    time.Duration(cfg.StepTimeout) * time.Second,
		GlobalDeadline: time.Duration(cfg.GlobalDeadline) * time.Second,
	})
	s.poller = poll.New("display", time.Duration(cfg.PollInterval)*time.Second, s.pollOnce, nil)

	return s, nil
}

// Store exposes the snapshot store for observers.
func (s *Service) Store() *snapshot.Store[Output] {
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

// pollOnce refreshes the output snapshot, preferring the sway IPC library and
// falling back to swaymsg.
func (s *Service) pollOnce(ctx context.Context) error {
	outputs, err := s.outputsFromSway(ctx)
	if err != nil {
		outputs, err = s.outputsFromSwaymsg(ctx)
		if err != nil {
			return fmt.Errorf("output query failed: %w", err)
		}
	}

	s.store.Replace(outputs, time.Now())
	return nil
}

func (s *Service) outputsFromSway(ctx context.Context) ([]Output, error) {
	client, err := sway.New(ctx)
	if err != nil {
		return nil, err
	}

	swayOutputs, err := client.GetOutputs(ctx)
	if err != nil {
		return nil, err
	}

	outputs := make([]Output, 0, len(swayOutputs))
	for _, o := range swayOutputs {
		out := Output{
			Name:        o.Name,
			Active:      o.Active,
			CurrentMode: formatMode(o.CurrentMode.Width, o.CurrentMode.Height, refreshMilliHz(o.CurrentMode.Refresh)),
		}
		for _, m := range o.Modes {
			out.Modes = append(out.Modes, formatMode(m.Width, m.Height, refreshMilliHz(m.Refresh)))
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// refreshMilliHz converts go-sway's Hz float (already divided by 1000 on
// unmarshal) back to the mHz integer formatMode expects.
func refreshMilliHz(r sway.Refresh) int64 {
	return int64(math.Round(float64(r) * 1000))
}

func (s *Service) outputsFromSwaymsg(ctx context.Context) ([]Output, error) {
	res, err := s.runner.Run(ctx, []string{"swaymsg", "-t", "get_outputs"}, s.queryTimeout)
	if err != nil {
		return nil, err
	}
	return parseSwaymsgOutputs(res.Stdout)
}

func parseSwaymsgOutputs(raw string) ([]Output, error) {
	var parsed []swaymsgOutput
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse swaymsg output: %w", err)
	}

	outputs := make([]Output, 0, len(parsed))
	for _, o := range parsed {
		out := Output{
			Name:        o.Name,
			Active:      o.Active,
			CurrentMode: formatMode(o.CurrentMode.Width, o.CurrentMode.Height, o.CurrentMode.Refresh),
		}
		for _, m := range o.Modes {
			out.Modes = append(out.Modes, formatMode(m.Width, m.Height, m.Refresh))
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// SetMode asks the compositor to switch an output to the given mode, e.g.
// "1920x1080@60Hz".
func (s *Service) SetMode(name, mode string) error {
	if name == "" || mode == "" {
		return fmt.Errorf("output name and mode are required")
	}

	err := s.coord.Request(session.Sequence{
		Target: name,
		Op:     "set-mode",
		Steps: []session.Step{
			{State: session.StateConnecting, Argv: []string{"swaymsg", "output", name, "mode", mode}},
		},
	})
	if err != nil {
		return err
	}

	s.poller.Kick()
	return nil
}

// Close stops the poller and coordinator.
func (s *Service) Close() {
	s.poller.Stop()
	s.coord.Close()
}
