// Package summary reduces one session's accumulated telemetry into the
// immutable record handed to the history store.
package summary

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/daryaKuto/glowrange/internal/models"
	"github.com/daryaKuto/glowrange/internal/targets"
	"github.com/daryaKuto/glowrange/internal/telemetry"
)

// Input carries everything the builder needs. The builder performs no I/O;
// persistence is the caller's concern.
type Input struct {
	GameID      string
	StartedAt   time.Time
	StoppedAt   time.Time
	HitHistory  []telemetry.HitEvent
	Splits      []telemetry.Split
	Transitions []telemetry.Transition
	Devices     []targets.Device // final armed roster
}

// Build produces the session summary record. Hits from devices outside the
// final roster are dropped; every roster device gets a stat row even with
// zero hits.
func Build(in Input) (*models.SessionRecord, error) {
	if in.GameID == "" {
		return nil, fmt.Errorf("summary: gameId is required")
	}

	armed := make(map[string]bool, len(in.Devices))
	for _, d := range in.Devices {
		armed[d.ID] = true
	}

	var history []telemetry.HitEvent
	for _, ev := range in.HitHistory {
		if armed[ev.DeviceID] {
			history = append(history, ev)
		}
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})

	var splits []telemetry.Split
	for _, sp := range in.Splits {
		if armed[sp.DeviceID] {
			splits = append(splits, sp)
		}
	}

	duration := in.StoppedAt.Sub(in.StartedAt).Seconds()
	if duration < 0 {
		duration = 0
	}

	rec := &models.SessionRecord{
		GameID:          in.GameID,
		StartedAt:       in.StartedAt,
		StoppedAt:       in.StoppedAt,
		DurationSeconds: int(math.Round(duration)),
		TotalHits:       len(history),
		AvgHitInterval:  averageInterval(timestamps(history)),
		TransitionCount: len(in.Transitions),
		AvgTransition:   averageTransition(in.Transitions),
		Score:           score(history, duration),
	}

	for _, d := range in.Devices {
		rec.DeviceStats = append(rec.DeviceStats, deviceStat(d, history))
	}

	var err error
	if rec.HitHistory, err = marshalJSON(history); err != nil {
		return nil, fmt.Errorf("summary: marshal hit history: %w", err)
	}
	if rec.Splits, err = marshalJSON(splits); err != nil {
		return nil, fmt.Errorf("summary: marshal splits: %w", err)
	}
	if rec.Transitions, err = marshalJSON(in.Transitions); err != nil {
		return nil, fmt.Errorf("summary: marshal transitions: %w", err)
	}
	return rec, nil
}

// deviceStat computes one device's row from the filtered, sorted history.
func deviceStat(d targets.Device, history []telemetry.HitEvent) models.SessionDeviceStat {
	var times []time.Time
	for _, ev := range history {
		if ev.DeviceID == d.ID {
			times = append(times, ev.Timestamp)
		}
	}

	stat := models.SessionDeviceStat{
		DeviceID:    d.ID,
		DeviceName:  d.Name,
		HitCount:    len(times),
		AvgInterval: averageInterval(times),
	}
	if len(times) > 0 {
		first, last := times[0], times[len(times)-1]
		stat.FirstHitAt = &first
		stat.LastHitAt = &last
	}
	return stat
}

// averageInterval returns the mean gap in seconds between consecutive
// timestamps, 0 with fewer than two.
func averageInterval(times []time.Time) float64 {
	if len(times) < 2 {
		return 0
	}
	span := times[len(times)-1].Sub(times[0]).Seconds()
	return span / float64(len(times)-1)
}

// averageTransition returns the mean transition duration in seconds.
func averageTransition(transitions []telemetry.Transition) float64 {
	if len(transitions) == 0 {
		return 0
	}
	var total float64
	for _, tr := range transitions {
		total += tr.Seconds
	}
	return total / float64(len(transitions))
}

// score is proportional to hit count scaled by how much of the session span
// the shooter was active for. activeSpan falls back to the full session span
// when it would be degenerate (fewer than 2 hits, or simultaneous hits).
func score(history []telemetry.HitEvent, totalSpan float64) float64 {
	if len(history) == 0 || totalSpan <= 0 {
		return 0
	}
	activeSpan := totalSpan
	if len(history) >= 2 {
		if span := history[len(history)-1].Timestamp.Sub(history[0].Timestamp).Seconds(); span > 0 {
			activeSpan = span
		}
	}
	return float64(len(history)) * (totalSpan / activeSpan)
}

// timestamps extracts the (already sorted) hit timestamps.
func timestamps(history []telemetry.HitEvent) []time.Time {
	out := make([]time.Time, len(history))
	for i, ev := range history {
		out[i] = ev.Timestamp
	}
	return out
}

// marshalJSON marshals v, normalizing nil slices to empty JSON arrays.
func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	s := string(data)
	if s == "null" {
		s = "[]"
	}
	return s, nil
}
