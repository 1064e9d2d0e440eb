package slack

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/daryaKuto/glowrange/internal/notify"
	slackapi "github.com/slack-go/slack"
)

type postedMessage struct {
	channelID string
	options   []slackapi.MsgOption
}

type mockSlackClient struct {
	mu       sync.Mutex
	authResp *slackapi.AuthTestResponse
	authErr  error
	posted   []postedMessage
	postErrs []error // consumed one per call, nil past the end
}

func newMockSlackClient() *mockSlackClient {
	return &mockSlackClient{authResp: &slackapi.AuthTestResponse{UserID: "U_BOT_123"}}
}

func (m *mockSlackClient) AuthTest() (*slackapi.AuthTestResponse, error) {
	return m.authResp, m.authErr
}

func (m *mockSlackClient) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted = append(m.posted, postedMessage{channelID: channelID, options: options})
	if len(m.postErrs) > 0 {
		err := m.postErrs[0]
		m.postErrs = m.postErrs[1:]
		return "", "", err
	}
	return channelID, "1234567890.123456", nil
}

func (m *mockSlackClient) postedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posted)
}

func connectedAdapter(t *testing.T, client *mockSlackClient) *Adapter {
	t.Helper()
	a, err := New(AdapterOpts{Client: client, ChannelID: "C_DEFAULT"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return a
}

func TestNew_RequiresToken(t *testing.T) {
	if _, err := New(AdapterOpts{}); err == nil {
		t.Fatal("expected error without token or client")
	}
}

func TestConnect_AuthFailure(t *testing.T) {
	client := newMockSlackClient()
	client.authErr = errors.New("invalid_auth")
	a, err := New(AdapterOpts{Client: client})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Connect(context.Background()); err == nil {
		t.Fatal("expected auth error")
	}
}

func TestSend_RequiresConnect(t *testing.T) {
	a, err := New(AdapterOpts{Client: newMockSlackClient(), ChannelID: "C1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Send(context.Background(), notify.Message{Text: "hi"}); err == nil {
		t.Fatal("expected error before connect")
	}
}

func TestSend_UsesDefaultChannel(t *testing.T) {
	client := newMockSlackClient()
	a := connectedAdapter(t, client)

	msg := notify.Message{
		Text: "Session GM-1 finished",
		Events: []notify.FormattedEvent{{
			Title:  "Session GM-1 finished",
			Color:  notify.ColorSuccess,
			Fields: []notify.Field{{Name: "Hits", Value: "7", Short: true}},
		}},
	}
	if err := a.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if client.postedCount() != 1 {
		t.Fatalf("posted = %d, want 1", client.postedCount())
	}
	if got := client.posted[0].channelID; got != "C_DEFAULT" {
		t.Errorf("channel = %s, want C_DEFAULT", got)
	}

	if err := a.Send(context.Background(), notify.Message{ChannelID: "C_OTHER", Text: "x"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := client.posted[1].channelID; got != "C_OTHER" {
		t.Errorf("channel = %s, want C_OTHER", got)
	}
}

func TestSend_RetriesOnRateLimit(t *testing.T) {
	client := newMockSlackClient()
	client.postErrs = []error{&slackapi.RateLimitedError{RetryAfter: time.Millisecond}}
	a := connectedAdapter(t, client)

	if err := a.Send(context.Background(), notify.Message{Text: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if client.postedCount() != 2 {
		t.Errorf("posted = %d, want 2 (one retry)", client.postedCount())
	}
}

func TestSend_NonRateLimitErrorNotRetried(t *testing.T) {
	client := newMockSlackClient()
	client.postErrs = []error{errors.New("channel_not_found")}
	a := connectedAdapter(t, client)

	if err := a.Send(context.Background(), notify.Message{Text: "hi"}); err == nil {
		t.Fatal("expected error")
	}
	if client.postedCount() != 1 {
		t.Errorf("posted = %d, want 1 (no retry)", client.postedCount())
	}
}

func TestEventToAttachment(t *testing.T) {
	att := eventToAttachment(notify.FormattedEvent{
		Title: "Practice Digest",
		Body:  "**Sessions**: 3",
		Color: notify.ColorInfo,
		Fields: []notify.Field{
			{Name: "Sessions", Value: "3", Short: true},
			{Name: "Hits", Value: "42", Short: true},
		},
	})
	if att.Title != "Practice Digest" || att.Fallback != "Practice Digest" {
		t.Errorf("title/fallback = %q/%q", att.Title, att.Fallback)
	}
	if att.Color != notify.ColorInfo {
		t.Errorf("color = %q", att.Color)
	}
	if len(att.Fields) != 2 || att.Fields[1].Value != "42" || !att.Fields[1].Short {
		t.Errorf("fields = %+v", att.Fields)
	}
}

func TestClose_RefusesFurtherUse(t *testing.T) {
	a := connectedAdapter(t, newMockSlackClient())
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Connect(context.Background()); err == nil {
		t.Fatal("expected error connecting a closed adapter")
	}
}
