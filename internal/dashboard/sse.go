package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/daryaKuto/glowrange/internal/session"
	"github.com/gin-gonic/gin"
)

const (
	ssePollInterval      = time.Second
	sseHeartbeatInterval = 15 * time.Second
)

// handleSSE streams the live session status to the client. Status events are
// sent on every lifecycle or counter change; heartbeats keep the connection
// alive between them.
func handleSSE(status func() session.Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		if status == nil {
			return
		}

		var lastPayload string
		ctx := c.Request.Context()
		ticker := time.NewTicker(ssePollInterval)
		heartbeat := time.NewTicker(sseHeartbeatInterval)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				st := status()
				payload, err := json.Marshal(st)
				if err != nil {
					continue
				}
				if string(payload) == lastPayload {
					continue
				}
				lastPayload = string(payload)
				writeSSE(c.Writer, "status", st)
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
