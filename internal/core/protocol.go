package core

import (
	"time"

	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/bluetooth"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/display"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/network"
	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/session"
)

// Request is sent from a client to the daemon. One request per connection,
// except "subscribe" which holds the connection open for events.
type Request struct {
	// Command is one of: status, devices, networks, outputs, connect,
	// disconnect, pair, remove, forget, rescan, power, radio, set-mode,
	// find, subscribe.
	Command string `json:"command"`
	// Domain selects bluetooth or network where a command is ambiguous
	// (connect, disconnect).
	Domain   string `json:"domain,omitempty"`
	Target   string `json:"target,omitempty"`
	Password string `json:"password,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Query    string `json:"query,omitempty"`
	On       *bool  `json:"on,omitempty"`
}

// DomainStatus is the observable condition of one domain service.
type DomainStatus struct {
	Enabled   bool            `json:"enabled"`
	Powered   bool            `json:"powered"`
	Session   session.Status  `json:"session"`
	Failure   *session.Status `json:"failure,omitempty"`
	Snapshot  int             `json:"snapshot_items"`
	Refreshed time.Time       `json:"refreshed"`
}

// StatusPayload aggregates all domain statuses for the status command.
type StatusPayload struct {
	Bluetooth DomainStatus `json:"bluetooth"`
	Network   DomainStatus `json:"network"`
	Display   DomainStatus `json:"display"`
}

// FindMatch is one fuzzy search hit across devices and networks.
type FindMatch struct {
	Kind   string `json:"kind"` // "bluetooth" or "network"
	Target string `json:"target"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
}

// Response is sent from the daemon back to the client.
type Response struct {
	OK       bool                `json:"ok"`
	Error    string              `json:"error,omitempty"`
	Status   *StatusPayload      `json:"status,omitempty"`
	Devices  []bluetooth.Device  `json:"devices,omitempty"`
	Networks []network.Network   `json:"networks,omitempty"`
	Outputs  []display.Output    `json:"outputs,omitempty"`
	Matches  []FindMatch         `json:"matches,omitempty"`
	Taken    time.Time           `json:"taken,omitempty"`
}

// Event is one line of a subscribe stream.
type Event struct {
	Kind     string             `json:"kind"`
	Session  *session.Status    `json:"session,omitempty"`
	Devices  []bluetooth.Device `json:"devices,omitempty"`
	Networks []network.Network  `json:"networks,omitempty"`
	Outputs  []display.Output   `json:"outputs,omitempty"`
	Taken    time.Time          `json:"taken,omitempty"`
}
