package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/daryaKuto/glowrange/internal/targets"
	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second

	// closeAuthExpired is the application close code the cloud uses when a
	// stream's credentials lapse.
	closeAuthExpired = 4401
)

// hitWire is the stream JSON shape; timestamps are epoch milliseconds.
type hitWire struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	GameID     string `json:"gameId"`
	Timestamp  int64  `json:"timestamp"`
}

// subscribeMsg is sent once per connection to select the session's stream.
type subscribeMsg struct {
	Cmd       string   `json:"cmd"`
	GameID    string   `json:"gameId"`
	DeviceIDs []string `json:"deviceIds"`
}

// SubscribeOpts holds parameters for opening a hit stream subscription.
type SubscribeOpts struct {
	URL        string
	Auth       targets.TokenProvider
	Aggregator *Aggregator
	DeviceIDs  []string
	// OnWarning receives non-fatal stream degradation notices.
	OnWarning func(msg string)
}

// Subscription is the cancellable handle for one session's hit stream.
// Closing it tears the connection down and stops all reconnection attempts;
// aggregator state accumulated so far is untouched.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Subscribe opens the stream and pumps accepted events into the aggregator
// until the context is cancelled or the subscription is closed. Credential
// expiry triggers a forced token refresh and a resubscribe; other stream
// errors reconnect with backoff. Already-aggregated hits survive both.
func Subscribe(ctx context.Context, opts SubscribeOpts) (*Subscription, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("telemetry: stream URL is required")
	}
	if opts.Auth == nil {
		return nil, fmt.Errorf("telemetry: token provider is required")
	}
	if opts.Aggregator == nil {
		return nil, fmt.Errorf("telemetry: aggregator is required")
	}
	if opts.OnWarning == nil {
		opts.OnWarning = func(string) {}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{cancel: cancel, done: make(chan struct{})}
	go s.run(streamCtx, opts)
	return s, nil
}

// Close tears down the subscription and waits for the pump to exit.
func (s *Subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *Subscription) run(ctx context.Context, opts SubscribeOpts) {
	defer close(s.done)

	delay := reconnectBaseDelay
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.connect(ctx, opts)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			opts.OnWarning(fmt.Sprintf("hit stream connect: %v", err))
			sleepWithContext(ctx, delay)
			delay = min(delay*2, reconnectMaxDelay)
			continue
		}
		delay = reconnectBaseDelay

		authExpired := s.pump(ctx, conn, opts)
		conn.Close()
		if ctx.Err() != nil {
			return
		}

		if authExpired {
			log.Printf("telemetry: stream credentials expired, refreshing and resubscribing")
			if _, err := opts.Auth.EnsureToken(ctx, true); err != nil {
				opts.OnWarning(fmt.Sprintf("hit stream token refresh: %v", err))
			}
			continue
		}
		opts.OnWarning("hit stream interrupted, reconnecting")
	}
}

// connect dials the stream and sends the subscribe message. A rejected
// handshake with a 401 forces one token refresh before reporting the error.
func (s *Subscription) connect(ctx context.Context, opts SubscribeOpts) (*websocket.Conn, error) {
	token, err := opts.Auth.EnsureToken(ctx, false)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			if _, refreshErr := opts.Auth.EnsureToken(ctx, true); refreshErr != nil {
				return nil, refreshErr
			}
		}
		return nil, err
	}

	sub := subscribeMsg{Cmd: "subscribe", GameID: opts.Aggregator.gameID, DeviceIDs: opts.DeviceIDs}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// pump reads events until the connection drops. Returns true when the drop
// was an auth-expiry close.
func (s *Subscription) pump(ctx context.Context, conn *websocket.Conn, opts SubscribeOpts) (authExpired bool) {
	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-pumpCtx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return websocket.IsCloseError(err, closeAuthExpired)
		}

		var wire hitWire
		if err := json.Unmarshal(data, &wire); err != nil {
			continue
		}
		opts.Aggregator.Ingest(HitEvent{
			DeviceID:   wire.DeviceID,
			DeviceName: wire.DeviceName,
			GameID:     wire.GameID,
			Timestamp:  time.UnixMilli(wire.Timestamp),
		})
	}
}

// sleepWithContext sleeps for duration d, returning early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
