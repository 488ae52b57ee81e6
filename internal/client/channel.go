package client

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quillpad/sync/internal/event"
	"quillpad/sync/internal/store"
)

// ConnState is the channel's observable connection state.
type ConnState string

const (
	Connected    ConnState = "connected"
	Disconnected ConnState = "disconnected"
	Reconnecting ConnState = "reconnecting"
)

var ErrNotConnected = errors.New("channel not connected")

const (
	channelWriteWait   = 10 * time.Second
	channelDialTimeout = 5 * time.Second
)

// Channel maintains at most one live relay connection, scoped to the active
// shared workspace. Connection failures never surface as errors to the code
// driving navigation; they surface as state transitions the connection
// indicator subscribes to. Reconnection is user-triggered: there is no
// automatic retry, and no replay of events missed while offline — the client
// reconciles by re-fetching the workspace.
type Channel struct {
	relayURL string
	token    string
	onEvent  func(e event.Event)

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	state   ConnState
	room    string
	gen     int

	nextSub int
	subs    map[int]func(ConnState)
}

func NewChannel(relayURL, token string, onEvent func(e event.Event)) *Channel {
	return &Channel{
		relayURL: strings.TrimRight(relayURL, "/"),
		token:    token,
		onEvent:  onEvent,
		state:    Disconnected,
		subs:     map[int]func(ConnState){},
	}
}

// Connect opens a connection for ws if it is shared. For a private workspace
// it closes any live connection instead; private workspaces have no room.
// Switching workspaces tears the old connection down before dialing.
func (c *Channel) Connect(ctx context.Context, ws store.Workspace) {
	if ws.Visibility != store.VisibilityShared {
		c.Disconnect()
		return
	}

	c.mu.Lock()
	if c.room == ws.ID && c.conn != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.Disconnect()
	c.mu.Lock()
	c.room = ws.ID
	c.mu.Unlock()
	c.dial(ctx)
}

// Reconnect redials the last room. It is the manual recovery path surfaced
// behind the connection indicator.
func (c *Channel) Reconnect(ctx context.Context) {
	c.mu.Lock()
	room := c.room
	live := c.conn != nil
	c.mu.Unlock()
	if room == "" || live {
		return
	}
	c.dial(ctx)
}

func (c *Channel) dial(ctx context.Context) {
	c.setState(Reconnecting)

	c.mu.Lock()
	url := websocketURL(c.relayURL) + "/ws/" + c.room
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: channelDialTimeout}
	header := http.Header{"Authorization": {"Bearer " + c.token}}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		log.Printf("client: relay dial failed: %v", err)
		c.setState(Disconnected)
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	c.setState(Connected)

	go c.readLoop(conn, gen)
}

// Disconnect closes the connection if one exists. Idempotent.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.gen++
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	c.setState(Disconnected)
}

// Emit sends one event into the joined room.
func (c *Channel) Emit(e event.Event) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	frame, err := event.Encode(e)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(channelWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.dropConn(conn)
		return err
	}
	return nil
}

// Connected reports whether a live connection exists right now.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// State returns the current connection state.
func (c *Channel) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for connection state changes; the returned function
// unsubscribes. fn is called with the new state after every transition.
func (c *Channel) Subscribe(fn func(ConnState)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Channel) setState(state ConnState) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	fns := make([]func(ConnState), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

func (c *Channel) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.dropConn(conn)
			return
		}
		e, decodeErr := event.Decode(frame)
		if decodeErr != nil {
			log.Printf("client: dropping malformed frame: %v", decodeErr)
			continue
		}
		c.mu.Lock()
		stale := c.gen != gen
		c.mu.Unlock()
		if stale {
			return
		}
		if c.onEvent != nil {
			c.onEvent(e)
		}
	}
}

// dropConn transitions to disconnected if conn is still the live connection;
// a connection superseded by Disconnect/Connect is ignored.
func (c *Channel) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.gen++
	c.mu.Unlock()
	conn.Close()
	c.setState(Disconnected)
}

func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
