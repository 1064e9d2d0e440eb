package targets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultCommandTimeout = 10 * time.Second

// Client talks to the target cloud REST API.
type Client struct {
	baseURL      string
	auth         TokenProvider
	httpClient   *http.Client
	offlineAfter time.Duration
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	BaseURL      string
	Auth         TokenProvider
	Timeout      time.Duration // per-request timeout, default 10s
	OfflineAfter time.Duration // staleness threshold for online derivation
	// For testing: inject a custom HTTP client.
	HTTPClient *http.Client
}

// NewClient creates a target cloud client.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("targets: base URL is required")
	}
	if opts.Auth == nil {
		return nil, fmt.Errorf("targets: token provider is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:      strings.TrimSuffix(opts.BaseURL, "/"),
		auth:         opts.Auth,
		httpClient:   hc,
		offlineAfter: opts.OfflineAfter,
	}, nil
}

// deviceWire is the roster JSON shape; timestamps are epoch milliseconds.
type deviceWire struct {
	DeviceID   string `json:"deviceId"`
	Name       string `json:"name"`
	LastSeenMs int64  `json:"lastSeen"`
}

// ListDevices fetches the full device roster.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	var wire []deviceWire
	if err := c.doJSON(ctx, http.MethodGet, "/api/devices", nil, &wire); err != nil {
		return nil, fmt.Errorf("targets: list devices: %w", err)
	}
	return c.fromWire(wire), nil
}

// PollStatus refreshes status for the given devices.
func (c *Client) PollStatus(ctx context.Context, deviceIDs []string) ([]Device, error) {
	body := map[string][]string{"deviceIds": deviceIDs}
	var wire []deviceWire
	if err := c.doJSON(ctx, http.MethodPost, "/api/devices/status", body, &wire); err != nil {
		return nil, fmt.Errorf("targets: poll status: %w", err)
	}
	return c.fromWire(wire), nil
}

// SendCommand delivers a oneway command to one device. A gateway timeout
// (or a transport-level timeout) returns ErrDeliveryTimeout: the cloud
// forwards oneway commands without waiting for the device, so a missing
// ack does not mean the command was lost. A 401 returns ErrAuthExpired.
func (c *Client) SendCommand(ctx context.Context, deviceID string, cmd Command) error {
	path := "/api/rpc/oneway/" + deviceID
	err := c.doJSON(ctx, http.MethodPost, path, cmd, nil)
	if err != nil {
		return fmt.Errorf("targets: send %s to %s: %w", cmd.Event, deviceID, err)
	}
	return nil
}

// doJSON performs one authenticated request, decoding the response into out
// when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	token, err := c.auth.EnsureToken(ctx, false)
	if err != nil {
		return err
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return ErrDeliveryTimeout
		}
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrAuthExpired
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		return ErrDeliveryTimeout
	case resp.StatusCode >= 400:
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// fromWire converts wire devices, deriving online status from last-seen
// staleness. The threshold is owned here, not by the session core.
func (c *Client) fromWire(wire []deviceWire) []Device {
	now := time.Now()
	devices := make([]Device, 0, len(wire))
	for _, w := range wire {
		lastSeen := time.UnixMilli(w.LastSeenMs)
		online := false
		if c.offlineAfter > 0 && w.LastSeenMs > 0 {
			online = now.Sub(lastSeen) <= c.offlineAfter
		}
		devices = append(devices, Device{
			ID:       w.DeviceID,
			Name:     w.Name,
			Online:   online,
			LastSeen: lastSeen,
		})
	}
	return devices
}

// isTimeout reports whether err is a transport-level timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
