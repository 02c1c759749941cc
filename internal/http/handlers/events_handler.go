// README: Server-sent event stream of a notification room.
package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"streeteats/internal/modules/notify"
	"streeteats/internal/modules/order"
)

type EventsHandler struct {
	base
	sub       notify.Subscriber
	heartbeat time.Duration
}

func NewEventsHandler(sub notify.Subscriber, heartbeat time.Duration, verbose bool) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &EventsHandler{base: base{verbose: verbose}, sub: sub, heartbeat: heartbeat}
}

// Stream relays the room's events until the client goes away. Callers may only
// join their own room; admins may join any.
func (h *EventsHandler) Stream(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	room := c.Param("room")
	role, id, ok := notify.ParseRoom(room)
	if !ok {
		writeError(c, http.StatusBadRequest, "unknown room")
		return
	}
	if actor.Role != order.RoleAdmin && (string(actor.Role) != role || actor.ID != id) {
		writeError(c, http.StatusForbidden, "access denied")
		return
	}

	ctx := c.Request.Context()
	events, cancel, err := h.sub.Subscribe(ctx, room)
	if err != nil {
		h.writeOrderError(c, err)
		return
	}
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"room": room})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case env, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(env.Event, env)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
