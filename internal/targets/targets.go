// Package targets is the client for the target cloud API: the device roster
// and the per-device oneway command channel.
package targets

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors used by the dispatcher to classify command outcomes.
var (
	// ErrDeliveryTimeout means the command was sent but no acknowledgement
	// arrived in time. Targets apply oneway commands without acking, so the
	// dispatcher treats this as likely-delivered.
	ErrDeliveryTimeout = errors.New("targets: delivery timeout")

	// ErrAuthExpired means the cloud rejected our credentials mid-session.
	ErrAuthExpired = errors.New("targets: auth expired")
)

// Device is an immutable roster snapshot of one target. The session core
// never mutates device identity; it only annotates devices with
// session-scoped hit counters.
type Device struct {
	ID       string    `json:"deviceId"`
	Name     string    `json:"name"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

// Command is the payload delivered to a device. Targets must tolerate
// duplicate start/stop commands.
type Command struct {
	Event           string `json:"event"` // "start" or "stop"
	GameID          string `json:"gameId"`
	Timestamp       int64  `json:"timestamp"` // epoch milliseconds
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

// Commander sends a command to a single device. Implemented by Client;
// faked in dispatcher and lifecycle tests.
type Commander interface {
	SendCommand(ctx context.Context, deviceID string, cmd Command) error
}

// Roster lists devices and refreshes their status. Implemented by Client.
type Roster interface {
	ListDevices(ctx context.Context) ([]Device, error)
	PollStatus(ctx context.Context, deviceIDs []string) ([]Device, error)
}

// TokenProvider supplies bearer tokens, refreshing on demand. Implemented
// by the auth package.
type TokenProvider interface {
	EnsureToken(ctx context.Context, force bool) (string, error)
}
