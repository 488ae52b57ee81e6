// Package relay implements the room broadcast relay: it accepts websocket
// connections scoped to one shared workspace each and re-delivers every frame
// a client emits to the other members of the same room. Delivery is
// at-most-once and best-effort; nothing is persisted or replayed, so a client
// that was offline reconciles by re-fetching the workspace on its next visit.
package relay

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 512 * 1024

	// sendBuffer bounds per-connection backlog. A member that cannot keep up
	// is dropped rather than buffered without limit; it reconciles on
	// reconnect like any other offline client.
	sendBuffer = 64
)

type connection struct {
	ws        *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	roomID    string
	userID    string
}

// closeSend is safe against concurrent disconnect paths (read loop teardown
// and slow-consumer eviction can race).
func (c *connection) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub is the connection registry. Rooms are keyed by workspace id; membership
// lasts exactly as long as the websocket connection.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*connection]bool
}

func NewHub() *Hub {
	return &Hub{rooms: map[string]map[*connection]bool{}}
}

func (h *Hub) join(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[c.roomID]
	if members == nil {
		members = map[*connection]bool{}
		h.rooms[c.roomID] = members
	}
	members[c] = true
}

func (h *Hub) leave(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[c.roomID]
	if members == nil {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, c.roomID)
	}
}

// RoomSize reports the current number of connections in a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomID])
}

// broadcast delivers frame to every room member except sender. Members whose
// send buffer is full are disconnected; blocking here would stall the
// sender's read loop for the whole room.
func (h *Hub) broadcast(roomID string, sender *connection, frame []byte) {
	h.mu.Lock()
	var stale []*connection
	for member := range h.rooms[roomID] {
		if member == sender {
			continue
		}
		select {
		case member.send <- frame:
		default:
			stale = append(stale, member)
		}
	}
	h.mu.Unlock()

	for _, member := range stale {
		log.Printf("relay: dropping slow consumer user=%s room=%s", member.userID, member.roomID)
		h.leave(member)
		member.closeSend()
	}
}

// writePump drains the connection's send channel onto the wire and keeps the
// connection alive with periodic pings.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
