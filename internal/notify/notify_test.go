package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/daryaKuto/glowrange/internal/db"
	"github.com/daryaKuto/glowrange/internal/history"
	"github.com/daryaKuto/glowrange/internal/models"
)

type mockAdapter struct {
	mu         sync.Mutex
	connectErr error
	sendErr    error
	sent       []Message
	closed     bool
}

func (m *mockAdapter) Connect(ctx context.Context) error { return m.connectErr }

func (m *mockAdapter) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func TestNotifier_PublishFansOut(t *testing.T) {
	a, b := &mockAdapter{}, &mockAdapter{}
	n := NewNotifier(a, b)
	if err := n.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	n.Publish(context.Background(), FormattedEvent{Title: "Session GM-1 finished"})
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Fatalf("sent = %d/%d, want 1/1", len(a.sent), len(b.sent))
	}
	if a.sent[0].Text != "Session GM-1 finished" {
		t.Errorf("fallback text = %q", a.sent[0].Text)
	}
}

func TestNotifier_SendFailureDoesNotBlockOthers(t *testing.T) {
	bad := &mockAdapter{sendErr: errors.New("rate limited")}
	good := &mockAdapter{}
	n := NewNotifier(bad, good)
	if err := n.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	n.Publish(context.Background(), FormattedEvent{Title: "warning"})
	if len(good.sent) != 1 {
		t.Errorf("good adapter sent = %d, want 1", len(good.sent))
	}
}

func TestNotifier_ConnectDropsFailingAdapters(t *testing.T) {
	bad := &mockAdapter{connectErr: errors.New("invalid token")}
	good := &mockAdapter{}
	n := NewNotifier(bad, good)
	if err := n.Connect(context.Background()); err != nil {
		t.Fatalf("Connect with one healthy adapter: %v", err)
	}

	n.Publish(context.Background(), FormattedEvent{Title: "x"})
	if len(bad.sent) != 0 {
		t.Error("dropped adapter still received messages")
	}
	if len(good.sent) != 1 {
		t.Errorf("good adapter sent = %d, want 1", len(good.sent))
	}
}

func TestNotifier_ConnectAllFailed(t *testing.T) {
	n := NewNotifier(&mockAdapter{connectErr: errors.New("nope")})
	if err := n.Connect(context.Background()); err == nil {
		t.Fatal("expected error when every adapter fails")
	}
}

func TestNotifier_NoAdapters(t *testing.T) {
	n := NewNotifier()
	if err := n.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	n.Publish(context.Background(), FormattedEvent{Title: "x"})
}

func TestFormatSummary(t *testing.T) {
	first := time.UnixMilli(1000)
	rec := &models.SessionRecord{
		GameID:          "GM-17",
		DurationSeconds: 95,
		TotalHits:       12,
		AvgHitInterval:  0.62,
		TransitionCount: 3,
		AvgTransition:   1.1,
		Score:           24.5,
		DeviceStats: []models.SessionDeviceStat{
			{DeviceID: "D1", DeviceName: "Alpha", HitCount: 8, AvgInterval: 0.5, FirstHitAt: &first},
			{DeviceID: "D2", HitCount: 4},
		},
	}

	ev := FormatSummary(rec)
	if ev.Title != "Session GM-17 finished" {
		t.Errorf("title = %q", ev.Title)
	}
	if ev.Severity != "success" || ev.Color != ColorSuccess {
		t.Errorf("severity/color = %q/%q", ev.Severity, ev.Color)
	}
	if !strings.Contains(ev.Body, "1m 35s") {
		t.Errorf("body missing duration: %s", ev.Body)
	}
	if !strings.Contains(ev.Body, "Alpha: 8 hits") {
		t.Errorf("body missing per-target line: %s", ev.Body)
	}
	if !strings.Contains(ev.Body, "D2: 4 hits") {
		t.Errorf("body should fall back to device id: %s", ev.Body)
	}
	var hits string
	for _, f := range ev.Fields {
		if f.Name == "Hits" {
			hits = f.Value
		}
	}
	if hits != "12" {
		t.Errorf("Hits field = %q, want 12", hits)
	}
}

func TestFormatWarning(t *testing.T) {
	ev := FormatWarning("GM-3", "device D2 may not have received stop")
	if ev.Title != "Session GM-3 warning" {
		t.Errorf("title = %q", ev.Title)
	}
	if ev.Severity != "warning" || ev.Color != ColorWarning {
		t.Errorf("severity/color = %q/%q", ev.Severity, ev.Color)
	}

	ev = FormatWarning("", "hit stream interrupted")
	if ev.Title != "Session warning" {
		t.Errorf("title without gameId = %q", ev.Title)
	}
}

func TestDigest_Validation(t *testing.T) {
	gdb, err := db.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	n := NewNotifier()
	if _, err := NewDigest(DigestOpts{Notifier: n, Expr: "0 18 * * *"}); err == nil {
		t.Error("expected error without db")
	}
	if _, err := NewDigest(DigestOpts{DB: gdb, Notifier: n, Expr: "not a cron"}); err == nil {
		t.Error("expected error for bad cron expression")
	}
	if _, err := NewDigest(DigestOpts{DB: gdb, Notifier: n, Expr: "0 18 * * *"}); err != nil {
		t.Errorf("NewDigest: %v", err)
	}
}

func TestDigest_Build(t *testing.T) {
	gdb, err := db.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatal(err)
	}
	d, err := NewDigest(DigestOpts{DB: gdb, Notifier: NewNotifier(), Expr: "0 18 * * *"})
	if err != nil {
		t.Fatal(err)
	}

	// No sessions in the period: digest suppressed.
	ev, err := d.Build(time.Now())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ev != nil {
		t.Fatal("expected nil event for an empty period")
	}

	now := time.Now()
	if _, err := history.Save(gdb, &models.SessionRecord{
		GameID:      "GM-1",
		StartedAt:   now.Add(-time.Hour),
		StoppedAt:   now.Add(-time.Hour).Add(90 * time.Second),
		TotalHits:   9,
		HitHistory:  "[]",
		Splits:      "[]",
		Transitions: "[]",
	}); err != nil {
		t.Fatal(err)
	}

	ev, err = d.Build(now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ev == nil {
		t.Fatal("expected digest event")
	}
	if ev.Title != "Practice Digest" {
		t.Errorf("title = %q", ev.Title)
	}
	if !strings.Contains(ev.Body, "**Sessions**: 1") {
		t.Errorf("body = %s", ev.Body)
	}
}
