// Package dispatch sends start/stop commands to a set of target devices
// concurrently and reports which devices accepted them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/daryaKuto/glowrange/internal/targets"
)

// CommandState tracks one device's progress through one command.
type CommandState string

const (
	StateIdle    CommandState = "idle"
	StatePending CommandState = "pending"
	StateSuccess CommandState = "success"
	StateError   CommandState = "error"
)

// Command events understood by targets.
const (
	EventStart = "start"
	EventStop  = "stop"
)

const defaultSendTimeout = 10 * time.Second

// Outcome is the final partition of devices after one dispatch call settles.
type Outcome struct {
	SuccessIDs []string
	ErrorIDs   []string
}

// Opts holds parameters for creating a Dispatcher.
type Opts struct {
	Commander targets.Commander
	Auth      targets.TokenProvider
	Timeout   time.Duration // per-device send timeout, default 10s
}

// Dispatcher fans a command out to every device independently, waits for
// all sends to settle, and keeps per-device command state for retries.
// Device failures never cancel other devices' sends.
type Dispatcher struct {
	commander targets.Commander
	auth      targets.TokenProvider
	timeout   time.Duration

	mu     sync.Mutex
	states map[string]map[string]CommandState // event → deviceID → state
}

// New creates a Dispatcher.
func New(opts Opts) (*Dispatcher, error) {
	if opts.Commander == nil {
		return nil, fmt.Errorf("dispatch: commander is required")
	}
	if opts.Auth == nil {
		return nil, fmt.Errorf("dispatch: token provider is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Dispatcher{
		commander: opts.Commander,
		auth:      opts.Auth,
		timeout:   timeout,
		states:    make(map[string]map[string]CommandState),
	}, nil
}

// Dispatch sends event to every device concurrently and blocks until all
// sends settle. The outcome lists devices in the order they were given.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, devices []targets.Device, gameID string, at time.Time, durationSeconds int) Outcome {
	return d.run(ctx, event, devices, gameID, at, durationSeconds)
}

// RetryFailed repeats the command for the devices currently in error state,
// using the same per-device protocol. Devices not in error state are skipped.
func (d *Dispatcher) RetryFailed(ctx context.Context, event string, devices []targets.Device, gameID string, at time.Time, durationSeconds int) Outcome {
	var failed []targets.Device
	d.mu.Lock()
	for _, dev := range devices {
		if d.states[event][dev.ID] == StateError {
			failed = append(failed, dev)
		}
	}
	d.mu.Unlock()
	return d.run(ctx, event, failed, gameID, at, durationSeconds)
}

// State returns the recorded command state for one device, StateIdle when
// nothing was dispatched.
func (d *Dispatcher) State(event, deviceID string) CommandState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.states[event][deviceID]; ok {
		return st
	}
	return StateIdle
}

// Reset clears all per-device command state at a session boundary.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states = make(map[string]map[string]CommandState)
}

func (d *Dispatcher) run(ctx context.Context, event string, devices []targets.Device, gameID string, at time.Time, durationSeconds int) Outcome {
	if len(devices) == 0 {
		return Outcome{}
	}

	cmd := targets.Command{
		Event:           event,
		GameID:          gameID,
		Timestamp:       at.UnixMilli(),
		DurationSeconds: durationSeconds,
	}

	results := make([]CommandState, len(devices))
	var wg sync.WaitGroup
	for i, dev := range devices {
		d.setState(event, dev.ID, StatePending)
		wg.Add(1)
		go func(i int, dev targets.Device) {
			defer wg.Done()
			st := d.sendOne(ctx, dev, cmd)
			results[i] = st
			d.setState(event, dev.ID, st)
		}(i, dev)
	}
	wg.Wait()

	var out Outcome
	for i, dev := range devices {
		if results[i] == StateSuccess {
			out.SuccessIDs = append(out.SuccessIDs, dev.ID)
		} else {
			out.ErrorIDs = append(out.ErrorIDs, dev.ID)
		}
	}
	return out
}

// sendOne delivers the command to a single device and classifies the result.
// A delivery timeout counts as success: targets apply oneway commands even
// when the ack path times out. Auth expiry triggers one forced token refresh
// and one retry; a second failure is terminal for this call.
func (d *Dispatcher) sendOne(ctx context.Context, dev targets.Device, cmd targets.Command) CommandState {
	err := d.send(ctx, dev.ID, cmd)
	if errors.Is(err, targets.ErrAuthExpired) {
		if _, refreshErr := d.auth.EnsureToken(ctx, true); refreshErr != nil {
			log.Printf("dispatch: token refresh for %s: %v", dev.ID, refreshErr)
			return StateError
		}
		err = d.send(ctx, dev.ID, cmd)
	}

	switch {
	case err == nil:
		return StateSuccess
	case errors.Is(err, targets.ErrDeliveryTimeout):
		log.Printf("dispatch: %s to %s timed out, assuming delivered", cmd.Event, dev.ID)
		return StateSuccess
	default:
		log.Printf("dispatch: %s to %s: %v", cmd.Event, dev.ID, err)
		return StateError
	}
}

func (d *Dispatcher) send(ctx context.Context, deviceID string, cmd targets.Command) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.commander.SendCommand(sendCtx, deviceID, cmd)
}

func (d *Dispatcher) setState(event, deviceID string, st CommandState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.states[event] == nil {
		d.states[event] = make(map[string]CommandState)
	}
	d.states[event][deviceID] = st
}
