package webapi

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

// events streams every published State as a "state" event, with periodic
// heartbeats, until the client disconnects or the controller closes.
func (h *handlers) events(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	states, unsubscribe := h.ctrl.Subscribe()
	defer unsubscribe()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(h.heartbeat)
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
		case st, ok := <-states:
			if !ok {
				writeSSE(c.Writer, "closed", map[string]string{"type": "closed"})
				c.Writer.Flush()
				return
			}
			writeSSE(c.Writer, "state", st)
			c.Writer.Flush()
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
