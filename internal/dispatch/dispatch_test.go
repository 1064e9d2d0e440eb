package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/daryaKuto/glowrange/internal/targets"
)

// fakeCommander returns scripted errors per device. Repeated sends to the
// same device consume the device's error queue in order.
type fakeCommander struct {
	mu     sync.Mutex
	errs   map[string][]error
	sends  []string // deviceIDs in send order
	lastBy map[string]targets.Command
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{errs: make(map[string][]error), lastBy: make(map[string]targets.Command)}
}

func (f *fakeCommander) script(deviceID string, errs ...error) {
	f.errs[deviceID] = errs
}

func (f *fakeCommander) SendCommand(ctx context.Context, deviceID string, cmd targets.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, deviceID)
	f.lastBy[deviceID] = cmd
	queue := f.errs[deviceID]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	f.errs[deviceID] = queue[1:]
	return err
}

func (f *fakeCommander) sendCount(deviceID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.sends {
		if id == deviceID {
			n++
		}
	}
	return n
}

type fakeAuth struct {
	mu        sync.Mutex
	refreshes int
	err       error
}

func (f *fakeAuth) EnsureToken(ctx context.Context, force bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if force {
		f.refreshes++
	}
	return "tok", f.err
}

func devices(ids ...string) []targets.Device {
	out := make([]targets.Device, len(ids))
	for i, id := range ids {
		out[i] = targets.Device{ID: id, Name: "Target " + id}
	}
	return out
}

func newTestDispatcher(t *testing.T, cmdr targets.Commander, auth targets.TokenProvider) *Dispatcher {
	t.Helper()
	d, err := New(Opts{Commander: cmdr, Auth: auth, Timeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{Auth: &fakeAuth{}}); err == nil {
		t.Error("expected error for missing commander")
	}
	if _, err := New(Opts{Commander: newFakeCommander()}); err == nil {
		t.Error("expected error for missing token provider")
	}
}

func TestDispatch_AllSucceed(t *testing.T) {
	cmdr := newFakeCommander()
	d := newTestDispatcher(t, cmdr, &fakeAuth{})

	out := d.Dispatch(context.Background(), EventStart, devices("D1", "D2", "D3"), "GM-1", time.Now(), 60)
	if !reflect.DeepEqual(out.SuccessIDs, []string{"D1", "D2", "D3"}) {
		t.Errorf("SuccessIDs = %v", out.SuccessIDs)
	}
	if len(out.ErrorIDs) != 0 {
		t.Errorf("ErrorIDs = %v", out.ErrorIDs)
	}
	if st := d.State(EventStart, "D2"); st != StateSuccess {
		t.Errorf("state D2 = %q, want success", st)
	}
}

func TestDispatch_EmbedsGameIDAndDuration(t *testing.T) {
	cmdr := newFakeCommander()
	d := newTestDispatcher(t, cmdr, &fakeAuth{})

	at := time.UnixMilli(1_700_000_000_000)
	d.Dispatch(context.Background(), EventStart, devices("D1"), "GM-42", at, 90)

	got := cmdr.lastBy["D1"]
	if got.GameID != "GM-42" || got.Event != EventStart {
		t.Errorf("cmd = %+v", got)
	}
	if got.Timestamp != at.UnixMilli() {
		t.Errorf("timestamp = %d, want %d", got.Timestamp, at.UnixMilli())
	}
	if got.DurationSeconds != 90 {
		t.Errorf("duration = %d, want 90", got.DurationSeconds)
	}
}

func TestDispatch_TimeoutCountsAsSuccess(t *testing.T) {
	cmdr := newFakeCommander()
	cmdr.script("D1", targets.ErrDeliveryTimeout)
	d := newTestDispatcher(t, cmdr, &fakeAuth{})

	out := d.Dispatch(context.Background(), EventStart, devices("D1"), "GM-1", time.Now(), 0)
	if !reflect.DeepEqual(out.SuccessIDs, []string{"D1"}) {
		t.Errorf("SuccessIDs = %v, want [D1]", out.SuccessIDs)
	}
}

func TestDispatch_PartialFailure(t *testing.T) {
	cmdr := newFakeCommander()
	cmdr.script("D2", fmt.Errorf("device rejected"))
	d := newTestDispatcher(t, cmdr, &fakeAuth{})

	out := d.Dispatch(context.Background(), EventStart, devices("D1", "D2"), "GM-1", time.Now(), 0)
	if !reflect.DeepEqual(out.SuccessIDs, []string{"D1"}) {
		t.Errorf("SuccessIDs = %v", out.SuccessIDs)
	}
	if !reflect.DeepEqual(out.ErrorIDs, []string{"D2"}) {
		t.Errorf("ErrorIDs = %v", out.ErrorIDs)
	}
	if st := d.State(EventStart, "D2"); st != StateError {
		t.Errorf("state D2 = %q, want error", st)
	}
}

func TestDispatch_AuthExpiredRefreshesOnceAndRetries(t *testing.T) {
	cmdr := newFakeCommander()
	cmdr.script("D1", targets.ErrAuthExpired) // retry succeeds
	auth := &fakeAuth{}
	d := newTestDispatcher(t, cmdr, auth)

	out := d.Dispatch(context.Background(), EventStart, devices("D1"), "GM-1", time.Now(), 0)
	if !reflect.DeepEqual(out.SuccessIDs, []string{"D1"}) {
		t.Errorf("SuccessIDs = %v", out.SuccessIDs)
	}
	if auth.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", auth.refreshes)
	}
	if cmdr.sendCount("D1") != 2 {
		t.Errorf("sends to D1 = %d, want 2", cmdr.sendCount("D1"))
	}
}

func TestDispatch_AuthExpiredTwiceIsTerminal(t *testing.T) {
	cmdr := newFakeCommander()
	cmdr.script("D1", targets.ErrAuthExpired, targets.ErrAuthExpired)
	d := newTestDispatcher(t, cmdr, &fakeAuth{})

	out := d.Dispatch(context.Background(), EventStart, devices("D1"), "GM-1", time.Now(), 0)
	if !reflect.DeepEqual(out.ErrorIDs, []string{"D1"}) {
		t.Errorf("ErrorIDs = %v, want [D1]", out.ErrorIDs)
	}
	if cmdr.sendCount("D1") != 2 {
		t.Errorf("sends to D1 = %d, want 2 (no retry loop)", cmdr.sendCount("D1"))
	}
}

func TestDispatch_RetryAfterAuthTimeoutIsSuccess(t *testing.T) {
	cmdr := newFakeCommander()
	cmdr.script("D1", targets.ErrAuthExpired, targets.ErrDeliveryTimeout)
	d := newTestDispatcher(t, cmdr, &fakeAuth{})

	out := d.Dispatch(context.Background(), EventStart, devices("D1"), "GM-1", time.Now(), 0)
	if !reflect.DeepEqual(out.SuccessIDs, []string{"D1"}) {
		t.Errorf("SuccessIDs = %v, want [D1]", out.SuccessIDs)
	}
}

func TestRetryFailed_TargetsOnlyErrorDevices(t *testing.T) {
	cmdr := newFakeCommander()
	cmdr.script("D2", fmt.Errorf("boom"))
	d := newTestDispatcher(t, cmdr, &fakeAuth{})

	roster := devices("D1", "D2")
	d.Dispatch(context.Background(), EventStart, roster, "GM-1", time.Now(), 0)

	out := d.RetryFailed(context.Background(), EventStart, roster, "GM-1", time.Now(), 0)
	if !reflect.DeepEqual(out.SuccessIDs, []string{"D2"}) {
		t.Errorf("retry SuccessIDs = %v, want [D2]", out.SuccessIDs)
	}
	// D1 already succeeded and must not be re-sent.
	if cmdr.sendCount("D1") != 1 {
		t.Errorf("sends to D1 = %d, want 1", cmdr.sendCount("D1"))
	}
	if st := d.State(EventStart, "D2"); st != StateSuccess {
		t.Errorf("state D2 = %q, want success after retry", st)
	}
}

func TestDispatch_EmptyRoster(t *testing.T) {
	d := newTestDispatcher(t, newFakeCommander(), &fakeAuth{})
	out := d.Dispatch(context.Background(), EventStop, nil, "GM-1", time.Now(), 0)
	if len(out.SuccessIDs) != 0 || len(out.ErrorIDs) != 0 {
		t.Errorf("outcome = %+v, want empty", out)
	}
}

func TestReset_ClearsState(t *testing.T) {
	cmdr := newFakeCommander()
	cmdr.script("D1", fmt.Errorf("boom"))
	d := newTestDispatcher(t, cmdr, &fakeAuth{})

	d.Dispatch(context.Background(), EventStart, devices("D1"), "GM-1", time.Now(), 0)
	d.Reset()
	if st := d.State(EventStart, "D1"); st != StateIdle {
		t.Errorf("state after reset = %q, want idle", st)
	}
}
