package spots

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kilianp07/parkcast/core/model"
	"github.com/kilianp07/parkcast/core/monitoring"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamMessage is one websocket frame.
type streamMessage struct {
	Type     string               `json:"type"`
	Data     model.CameraSnapshot `json:"data"`
	Degraded bool                 `json:"degraded,omitempty"`
}

const writeWait = 5 * time.Second

// stream sends every current snapshot, then each update as it happens.
func (h *handler) stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.deps.Log != nil {
			h.deps.Log.Warnf("websocket upgrade failed: %v", err)
		}
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Read pump: detect client disconnect
	go func() {
		defer monitoring.Contain(map[string]string{"component": "ws_read"})
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sub := h.deps.Events.Subscribe()
	defer h.deps.Events.Unsubscribe(sub)

	if h.deps.Snapshots != nil {
		for _, snap := range h.deps.Snapshots.AllSnapshots() {
			if err := write(conn, streamMessage{Type: "snapshot", Data: snap}); err != nil {
				return
			}
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := write(conn, streamMessage{Type: "snapshot_update", Data: ev.Snapshot, Degraded: ev.Degraded}); err != nil {
				if h.deps.Log != nil {
					h.deps.Log.Debugf("ws write error: %v", err)
				}
				return
			}
		}
	}
}

func write(conn *websocket.Conn, msg streamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
