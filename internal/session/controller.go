// Package session drives the practice session lifecycle: roster selection,
// launch, live running, and stop with summary finalization.
package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/daryaKuto/glowrange/internal/dispatch"
	"github.com/daryaKuto/glowrange/internal/models"
	"github.com/daryaKuto/glowrange/internal/summary"
	"github.com/daryaKuto/glowrange/internal/targets"
	"github.com/daryaKuto/glowrange/internal/telemetry"
)

// State is the lifecycle phase of the controller.
type State string

const (
	StateIdle       State = "idle"
	StateSelecting  State = "selecting"
	StateLaunching  State = "launching"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateFinalizing State = "finalizing"
)

const (
	defaultConfirmTimeout = 30 * time.Second
	defaultTickInterval   = 250 * time.Millisecond
)

// Recorder persists a finished session summary.
type Recorder interface {
	SaveSummary(rec *models.SessionRecord) error
}

// SubscribeFunc opens the hit stream feeding the given aggregator. The
// returned closer tears the stream down.
type SubscribeFunc func(ctx context.Context, agg *telemetry.Aggregator, deviceIDs []string, onWarning func(string)) (io.Closer, error)

// Opts holds parameters for creating a Controller.
type Opts struct {
	Dispatcher *dispatch.Dispatcher
	Subscribe  SubscribeFunc
	Recorder   Recorder         // optional; persistence failures degrade to warnings
	GameIDs    *GameIDGenerator // optional
	Clock      func() time.Time // optional, for tests

	ConfirmTimeout time.Duration // wait for first telemetry before warning, default 30s
	TickInterval   time.Duration // auto-stop poll interval, default 250ms

	OnWarning  func(msg string)                // optional
	OnFinished func(rec *models.SessionRecord) // optional, called after each summary
}

// Controller owns one session at a time. All transitions are serialized
// under a single mutex; concurrency lives only at the I/O edges (command
// fan-out, hit stream pump, auto-stop timer).
type Controller struct {
	dispatcher     *dispatch.Dispatcher
	subscribe      SubscribeFunc
	recorder       Recorder
	gameIDs        *GameIDGenerator
	clock          func() time.Time
	confirmTimeout time.Duration
	tick           time.Duration
	onWarning      func(string)
	onFinished     func(*models.SessionRecord)

	mu              sync.Mutex
	state           State
	roster          []targets.Device
	gameID          string
	durationSeconds int
	triggerAt       time.Time
	startAnchor     time.Time
	agg             *telemetry.Aggregator
	sub             io.Closer
	runCancel       context.CancelFunc
	runDone         chan struct{}
	autoStopped     bool
	warnings        []string
}

// New creates a Controller.
func New(opts Opts) (*Controller, error) {
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("session: dispatcher is required")
	}
	if opts.Subscribe == nil {
		return nil, fmt.Errorf("session: subscribe func is required")
	}
	c := &Controller{
		dispatcher:     opts.Dispatcher,
		subscribe:      opts.Subscribe,
		recorder:       opts.Recorder,
		gameIDs:        opts.GameIDs,
		clock:          opts.Clock,
		confirmTimeout: opts.ConfirmTimeout,
		tick:           opts.TickInterval,
		onWarning:      opts.OnWarning,
		onFinished:     opts.OnFinished,
		state:          StateIdle,
	}
	if c.gameIDs == nil {
		c.gameIDs = NewGameIDGenerator()
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.confirmTimeout <= 0 {
		c.confirmTimeout = defaultConfirmTimeout
	}
	if c.tick <= 0 {
		c.tick = defaultTickInterval
	}
	return c, nil
}

// Select records the device roster for the next session. Allowed from idle
// or selecting; reselecting replaces the previous roster.
func (c *Controller) Select(devices []targets.Device) error {
	if len(devices) == 0 {
		return fmt.Errorf("session: at least one device is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle && c.state != StateSelecting {
		return fmt.Errorf("session: cannot select devices in state %s", c.state)
	}
	c.roster = append([]targets.Device(nil), devices...)
	c.state = StateSelecting
	return nil
}

// Launch dispatches start to the selected roster and opens the hit stream.
// The session stays in launching until the first telemetry event arrives;
// if no device accepts the start, the controller falls back to selecting
// with the roster intact.
func (c *Controller) Launch(ctx context.Context, durationSeconds int) error {
	c.mu.Lock()
	if c.state != StateSelecting {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: launch requires a selected roster (state %s)", st)
	}
	gameID := c.gameIDs.Next()
	c.gameID = gameID
	c.state = StateLaunching
	c.durationSeconds = durationSeconds
	c.triggerAt = c.clock()
	c.warnings = nil
	roster := append([]targets.Device(nil), c.roster...)
	triggerAt := c.triggerAt
	c.mu.Unlock()

	c.dispatcher.Reset()
	out := c.dispatcher.Dispatch(ctx, dispatch.EventStart, roster, gameID, triggerAt, durationSeconds)
	if len(out.SuccessIDs) == 0 {
		c.mu.Lock()
		c.state = StateSelecting
		c.gameID = ""
		c.mu.Unlock()
		return fmt.Errorf("session: no device accepted start for %s", gameID)
	}
	for _, id := range out.ErrorIDs {
		c.warn(fmt.Sprintf("device %s failed to start", id))
	}

	agg := telemetry.NewAggregator(gameID, roster)
	runCtx, cancel := context.WithCancel(context.Background())
	ids := make([]string, len(roster))
	for i, d := range roster {
		ids[i] = d.ID
	}
	sub, err := c.subscribe(runCtx, agg, ids, c.warn)
	if err != nil {
		// No stream means no confirmation will ever arrive; the session
		// stays in launching until the operator cancels.
		c.warn(fmt.Sprintf("hit stream subscription for %s: %v", gameID, err))
		sub = nil
	}

	c.mu.Lock()
	c.agg = agg
	c.sub = sub
	c.runCancel = cancel
	c.runDone = make(chan struct{})
	c.autoStopped = false
	done := c.runDone
	c.mu.Unlock()

	go c.run(runCtx, agg, done)
	return nil
}

// Cancel dismisses a session that has not produced telemetry yet. No stop
// commands are sent and no summary is written. Once telemetry is live the
// session must go through Stop.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.mu.Unlock()
		return nil
	case StateSelecting:
	case StateLaunching:
		if c.confirmedLocked() {
			c.mu.Unlock()
			return fmt.Errorf("session: telemetry already live, stop the session instead")
		}
	default:
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: cannot cancel in state %s", st)
	}
	sub := c.sub
	cancel := c.runCancel
	c.resetLocked()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Close()
	}
	c.dispatcher.Reset()
	return nil
}

// RetryFailed re-sends the start command to roster devices whose first
// attempt failed. Devices already started are untouched.
func (c *Controller) RetryFailed(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateLaunching && c.state != StateRunning {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: no session to retry in state %s", st)
	}
	roster := append([]targets.Device(nil), c.roster...)
	gameID := c.gameID
	triggerAt := c.triggerAt
	duration := c.durationSeconds
	c.mu.Unlock()

	out := c.dispatcher.RetryFailed(ctx, dispatch.EventStart, roster, gameID, triggerAt, duration)
	for _, id := range out.ErrorIDs {
		c.warn(fmt.Sprintf("device %s failed to start on retry", id))
	}
	return nil
}

// Stop ends the running session: stop commands go to the full roster, the
// stream is torn down, and the summary is built and persisted. Stop is
// one-shot; a second call finds no active session.
func (c *Controller) Stop(ctx context.Context) (*models.SessionRecord, error) {
	c.mu.Lock()
	switch {
	case c.state == StateRunning:
	case c.state == StateLaunching && c.confirmedLocked():
		// Telemetry arrived but the run loop has not promoted yet.
	default:
		st := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("session: stop requires a running session (state %s)", st)
	}
	c.state = StateStopping
	if c.startAnchor.IsZero() {
		c.startAnchor = c.anchorLocked()
	}
	gameID := c.gameID
	roster := append([]targets.Device(nil), c.roster...)
	anchor := c.startAnchor
	agg := c.agg
	sub := c.sub
	cancel := c.runCancel
	c.mu.Unlock()

	stoppedAt := c.clock()
	out := c.dispatcher.Dispatch(ctx, dispatch.EventStop, roster, gameID, stoppedAt, 0)
	for _, id := range out.ErrorIDs {
		c.warn(fmt.Sprintf("device %s may not have received stop", id))
	}

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Close()
	}

	c.mu.Lock()
	c.state = StateFinalizing
	c.mu.Unlock()

	snap := agg.Snapshot()
	rec, err := summary.Build(summary.Input{
		GameID:      gameID,
		StartedAt:   anchor,
		StoppedAt:   stoppedAt,
		HitHistory:  snap.HitHistory,
		Splits:      snap.Splits,
		Transitions: snap.Transitions,
		Devices:     roster,
	})
	if err != nil {
		c.mu.Lock()
		c.resetLocked()
		c.mu.Unlock()
		return nil, fmt.Errorf("session: finalize %s: %w", gameID, err)
	}

	if c.recorder != nil {
		if err := c.recorder.SaveSummary(rec); err != nil {
			c.warn(fmt.Sprintf("summary for %s may not have been saved: %v", gameID, err))
		}
	}
	if c.onFinished != nil {
		c.onFinished(rec)
	}

	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
	c.dispatcher.Reset()
	return rec, nil
}

// Status is a point-in-time view of the controller for displays.
type Status struct {
	State          State                            `json:"state"`
	GameID         string                           `json:"gameId,omitempty"`
	Roster         []targets.Device                 `json:"roster,omitempty"`
	StartedAt      time.Time                        `json:"startedAt"`
	ElapsedSeconds float64                          `json:"elapsedSeconds"`
	TotalHits      int                              `json:"totalHits"`
	HitCounts      map[string]int                   `json:"hitCounts,omitempty"`
	StartStates    map[string]dispatch.CommandState `json:"startStates,omitempty"`
	Warnings       []string                         `json:"warnings,omitempty"`
}

// Status reports the current lifecycle state and live counters.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		State:     c.state,
		GameID:    c.gameID,
		Roster:    append([]targets.Device(nil), c.roster...),
		StartedAt: c.startAnchor,
		Warnings:  append([]string(nil), c.warnings...),
	}
	agg := c.agg
	anchor := c.startAnchor
	running := c.state == StateRunning
	c.mu.Unlock()

	if running && !anchor.IsZero() {
		st.ElapsedSeconds = c.clock().Sub(anchor).Seconds()
	}
	if agg != nil {
		snap := agg.Snapshot()
		st.HitCounts = snap.HitCounts
		for _, n := range snap.HitCounts {
			st.TotalHits += n
		}
	}
	if len(st.Roster) > 0 && st.State != StateIdle && st.State != StateSelecting {
		st.StartStates = make(map[string]dispatch.CommandState, len(st.Roster))
		for _, d := range st.Roster {
			st.StartStates[d.ID] = c.dispatcher.State(dispatch.EventStart, d.ID)
		}
	}
	return st
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GameID returns the active session's id, empty when no session is active.
func (c *Controller) GameID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameID
}

// run waits for the telemetry confirmation, promotes the session to running,
// then watches the clock for the auto-stop deadline.
func (c *Controller) run(ctx context.Context, agg *telemetry.Aggregator, done chan struct{}) {
	defer close(done)

	if !c.awaitConfirmation(ctx, agg) {
		return
	}

	c.mu.Lock()
	if c.state == StateLaunching {
		c.state = StateRunning
		c.startAnchor = c.anchorLocked()
	}
	duration := c.durationSeconds
	c.mu.Unlock()

	if duration <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	deadline := time.Duration(duration) * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			due := c.state == StateRunning && !c.autoStopped && c.clock().Sub(c.startAnchor) >= deadline
			if due {
				c.autoStopped = true
			}
			c.mu.Unlock()
			if due {
				if _, err := c.Stop(context.Background()); err != nil {
					log.Printf("session: auto-stop: %v", err)
				}
				return
			}
		}
	}
}

// awaitConfirmation blocks until the first telemetry event or cancellation.
// A confirmation timeout only warns; the session stays in launching until
// the operator decides.
func (c *Controller) awaitConfirmation(ctx context.Context, agg *telemetry.Aggregator) bool {
	timer := time.NewTimer(c.confirmTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-agg.Confirmed():
			return true
		case <-timer.C:
			c.warn("no telemetry received, session remains launching until cancelled")
		}
	}
}

// anchorLocked picks the session start anchor: the earlier of the launch
// trigger and the first telemetry timestamp, so elapsed time never reads
// negative. Caller holds c.mu.
func (c *Controller) anchorLocked() time.Time {
	anchor := c.triggerAt
	if c.agg != nil {
		if at, ok := c.agg.ConfirmedAt(); ok && at.Before(anchor) {
			anchor = at
		}
	}
	return anchor
}

// confirmedLocked reports whether telemetry confirmed the session. Caller
// holds c.mu.
func (c *Controller) confirmedLocked() bool {
	if c.agg == nil {
		return false
	}
	_, ok := c.agg.ConfirmedAt()
	return ok
}

// resetLocked returns the controller to idle. Caller holds c.mu.
func (c *Controller) resetLocked() {
	c.state = StateIdle
	c.gameID = ""
	c.roster = nil
	c.durationSeconds = 0
	c.triggerAt = time.Time{}
	c.startAnchor = time.Time{}
	c.agg = nil
	c.sub = nil
	c.runCancel = nil
	c.autoStopped = false
}

func (c *Controller) warn(msg string) {
	log.Printf("session: %s", msg)
	c.mu.Lock()
	c.warnings = append(c.warnings, msg)
	c.mu.Unlock()
	if c.onWarning != nil {
		c.onWarning(msg)
	}
}
