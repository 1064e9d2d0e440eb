// Package telemetry ingests the live hit-event stream for armed devices and
// derives the per-session hit statistics the lifecycle controller reads.
package telemetry

import (
	"sort"
	"sync"
	"time"

	"github.com/daryaKuto/glowrange/internal/targets"
)

// HitEvent is one impact reported by a target device. Ordering key is the
// producer timestamp, not arrival order.
type HitEvent struct {
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	GameID     string    `json:"gameId"`
	Timestamp  time.Time `json:"timestamp"`
}

// Split is the elapsed time between consecutive hits on the same device.
// SplitNumber is 1-based and dense per device.
type Split struct {
	DeviceID    string    `json:"deviceId"`
	SplitNumber int       `json:"splitNumber"`
	Seconds     float64   `json:"seconds"`
	Timestamp   time.Time `json:"timestamp"`
}

// Transition marks a change of device between two consecutive hits in
// global timestamp order.
type Transition struct {
	FromDevice       string  `json:"fromDevice"`
	ToDevice         string  `json:"toDevice"`
	TransitionNumber int     `json:"transitionNumber"`
	Seconds          float64 `json:"seconds"`
}

// Snapshot is an immutable view of the aggregated session telemetry.
type Snapshot struct {
	GameID           string
	HitCounts        map[string]int
	HitHistory       []HitEvent
	HitTimesByDevice map[string][]time.Time
	Splits           []Split
	Transitions      []Transition
	FirstEventAt     time.Time // zero until the session is telemetry-confirmed
}

// Aggregator accumulates accepted hit events for one session. Events with a
// foreign gameId or an unarmed device are discarded. Derived statistics are
// always computed from the timestamp-sorted history, so out-of-order arrival
// never corrupts splits or transitions.
type Aggregator struct {
	gameID string
	armed  map[string]bool

	mu           sync.Mutex
	history      []HitEvent // sorted by Timestamp
	firstEventAt time.Time
	confirmOnce  sync.Once
	confirmed    chan struct{}
}

// NewAggregator creates an Aggregator for one session's gameId and armed
// device roster.
func NewAggregator(gameID string, devices []targets.Device) *Aggregator {
	armed := make(map[string]bool, len(devices))
	for _, d := range devices {
		armed[d.ID] = true
	}
	return &Aggregator{
		gameID:    gameID,
		armed:     armed,
		confirmed: make(chan struct{}),
	}
}

// Ingest accepts or rejects one inbound event. The first accepted event
// confirms the session start and closes the Confirmed channel.
func (a *Aggregator) Ingest(ev HitEvent) bool {
	if ev.GameID != a.gameID || !a.armed[ev.DeviceID] {
		return false
	}

	a.mu.Lock()
	a.history = append(a.history, ev)
	sort.SliceStable(a.history, func(i, j int) bool {
		return a.history[i].Timestamp.Before(a.history[j].Timestamp)
	})
	if a.firstEventAt.IsZero() {
		a.firstEventAt = ev.Timestamp
	}
	a.mu.Unlock()

	a.confirmOnce.Do(func() { close(a.confirmed) })
	return true
}

// Confirmed is closed once the first event for this session is accepted.
func (a *Aggregator) Confirmed() <-chan struct{} {
	return a.confirmed
}

// ConfirmedAt returns the timestamp of the first accepted event.
func (a *Aggregator) ConfirmedAt() (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.firstEventAt, !a.firstEventAt.IsZero()
}

// Snapshot derives the current statistics from the accepted history. The
// returned value shares nothing with the aggregator's internal state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	history := make([]HitEvent, len(a.history))
	copy(history, a.history)
	firstEventAt := a.firstEventAt
	a.mu.Unlock()

	snap := Snapshot{
		GameID:           a.gameID,
		HitCounts:        make(map[string]int),
		HitHistory:       history,
		HitTimesByDevice: make(map[string][]time.Time),
		FirstEventAt:     firstEventAt,
	}

	splitCount := make(map[string]int)
	var prev *HitEvent
	for i := range history {
		ev := history[i]
		snap.HitCounts[ev.DeviceID]++
		times := snap.HitTimesByDevice[ev.DeviceID]
		if n := len(times); n > 0 {
			splitCount[ev.DeviceID]++
			snap.Splits = append(snap.Splits, Split{
				DeviceID:    ev.DeviceID,
				SplitNumber: splitCount[ev.DeviceID],
				Seconds:     ev.Timestamp.Sub(times[n-1]).Seconds(),
				Timestamp:   ev.Timestamp,
			})
		}
		snap.HitTimesByDevice[ev.DeviceID] = append(times, ev.Timestamp)

		if prev != nil && prev.DeviceID != ev.DeviceID {
			snap.Transitions = append(snap.Transitions, Transition{
				FromDevice:       prev.DeviceID,
				ToDevice:         ev.DeviceID,
				TransitionNumber: len(snap.Transitions) + 1,
				Seconds:          ev.Timestamp.Sub(prev.Timestamp).Seconds(),
			})
		}
		prev = &history[i]
	}

	return snap
}
