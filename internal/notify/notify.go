// Package notify delivers session results and warnings to chat platforms
// (Slack, Discord, etc.).
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Sidebar color hints for event attachments.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// Adapter is the interface platform-specific implementations must satisfy.
// Adapters are outbound-only: the range controller never takes commands
// from chat.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg Message) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// Message is an outbound message for a chat platform.
type Message struct {
	ChannelID string           // target channel (empty uses the adapter default)
	Text      string           // fallback text (platform-native formatting)
	Events    []FormattedEvent // structured event attachments
}

// FormattedEvent is a range event formatted for display in chat.
type FormattedEvent struct {
	Title    string  // event headline (e.g. "Session GM-17 finished")
	Body     string  // detail text
	Severity string  // "info", "warning", "error", "success"
	Color    string  // sidebar color hint
	Fields   []Field // key-value metadata pairs
}

// Field is a key-value pair displayed in an event attachment.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// Notifier fans one event out to every configured adapter. A failing
// adapter never blocks the others.
type Notifier struct {
	mu       sync.Mutex
	adapters []Adapter
}

// NewNotifier creates a Notifier over the given adapters.
func NewNotifier(adapters ...Adapter) *Notifier {
	return &Notifier{adapters: adapters}
}

// Connect connects every adapter. Adapters that fail to connect are dropped
// with a log line; an error is returned only when all of them fail.
func (n *Notifier) Connect(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.adapters) == 0 {
		return nil
	}

	var connected []Adapter
	var errs []string
	for _, a := range n.adapters {
		if err := a.Connect(ctx); err != nil {
			log.Printf("notify: adapter connect: %v", err)
			errs = append(errs, err.Error())
			continue
		}
		connected = append(connected, a)
	}
	n.adapters = connected
	if len(connected) == 0 {
		return fmt.Errorf("notify: all adapters failed to connect: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Publish sends the event to every connected adapter. Send failures are
// logged and swallowed; notifications are best-effort.
func (n *Notifier) Publish(ctx context.Context, ev FormattedEvent) {
	n.mu.Lock()
	adapters := append([]Adapter(nil), n.adapters...)
	n.mu.Unlock()

	msg := Message{Text: ev.Title, Events: []FormattedEvent{ev}}
	for _, a := range adapters {
		if err := a.Send(ctx, msg); err != nil {
			log.Printf("notify: send %q: %v", ev.Title, err)
		}
	}
}

// Close closes every adapter.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, a := range n.adapters {
		if err := a.Close(); err != nil {
			log.Printf("notify: adapter close: %v", err)
		}
	}
	n.adapters = nil
	return nil
}
