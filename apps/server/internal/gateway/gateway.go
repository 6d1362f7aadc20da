// Package gateway terminates runner websockets and relays frames between the
// wire and session actors. The first frame on a fresh socket must authenticate.
package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"blackjack-lite/apps/server/internal/auth"
	"blackjack-lite/apps/server/internal/codec"
	"blackjack-lite/apps/server/internal/lobby"
	"blackjack-lite/apps/server/internal/session"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: Restrict in production
	},
}

const (
	authWait       = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 65536
)

// Connection represents one authenticated runner websocket
type Connection struct {
	ID         string
	RunnerID   uint64
	RunnerName string
	Conn       *websocket.Conn
	Send       chan []byte
	Gateway    *Gateway
	LastPing   time.Time

	Session *session.Session
}

// Gateway manages WebSocket connections
type Gateway struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	runnerConns map[uint64]*Connection // runnerID -> active connection
	nextConnID  uint64
	nextSeq     uint64 // sequence for connection-scoped frames

	lobby *lobby.Lobby
	auth  auth.Service
}

// New creates a new Gateway instance
func New(lby *lobby.Lobby, authService auth.Service) *Gateway {
	return &Gateway{
		connections: make(map[string]*Connection),
		runnerConns: make(map[uint64]*Connection),
		lobby:       lby,
		auth:        authService,
	}
}

// HandleWebSocket upgrades the request and waits for the auth frame before
// admitting the connection.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] Upgrade error: %v", err)
		return
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(authWait))

	runnerID, runnerName, err := g.awaitAuth(conn)
	if err != nil {
		log.Printf("[Gateway] Auth failed from %s: %v", r.RemoteAddr, err)
		g.writeDirect(conn, "auth_failed", err.Error())
		conn.Close()
		return
	}

	g.mu.Lock()
	g.nextConnID++
	connID := fmt.Sprintf("conn_%d", g.nextConnID)
	c := &Connection{
		ID:         connID,
		RunnerID:   runnerID,
		RunnerName: runnerName,
		Conn:       conn,
		Send:       make(chan []byte, 256),
		Gateway:    g,
		LastPing:   time.Now(),
	}
	g.connections[connID] = c
	old := g.runnerConns[runnerID]
	g.runnerConns[runnerID] = c
	g.mu.Unlock()

	if old != nil {
		// The runner opened a second socket; the newest one wins.
		log.Printf("[Gateway] Runner %d replaced connection %s with %s", runnerID, old.ID, connID)
		old.Conn.Close()
	}

	log.Printf("[Gateway] Runner %d (%s) connected: %s, total: %d", runnerID, runnerName, connID, g.connectionCount())

	go c.writePump()

	s, resumed := g.lobby.Attach(runnerID, runnerName, c.enqueue)
	c.Session = s
	c.sendHello(s.ID, resumed)
	if resumed {
		// Replays the pending prompt, if any, behind the hello.
		if err := s.SubmitEvent(session.Event{Type: session.EventConnResume, Timestamp: time.Now()}); err != nil {
			c.sendError("session_closed", "session closed; reconnect to start a new one")
		}
	}

	go c.readPump()
}

// awaitAuth reads the first frame and resolves its session token.
func (g *Gateway) awaitAuth(conn *websocket.Conn) (uint64, string, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return 0, "", fmt.Errorf("read auth frame: %w", err)
	}

	var env codec.ClientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, "", fmt.Errorf("invalid auth frame: %w", err)
	}
	if env.Auth == nil || env.Auth.SessionToken == "" {
		return 0, "", fmt.Errorf("first frame must carry auth.session_token")
	}

	runnerID, runnerName, ok := g.auth.ResolveSession(env.Auth.SessionToken)
	if !ok {
		return 0, "", fmt.Errorf("invalid or expired session token")
	}
	return runnerID, runnerName, nil
}

func (c *Connection) readPump() {
	defer func() {
		c.Gateway.removeConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.LastPing = time.Now()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Gateway] Read error: %v", err)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.handleMessage(message)
		}
	}
}

func (c *Connection) handleMessage(data []byte) {
	var env codec.ClientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("[Gateway] Failed to unmarshal: %v", err)
		c.sendError("bad_frame", "invalid message format")
		return
	}

	log.Printf("[Gateway] Received from runner %d: %s", c.RunnerID, env.Type())

	var event session.Event
	switch {
	case env.EpisodeStart != nil:
		event = session.Event{Type: session.EventEpisodeStart, Start: env.EpisodeStart}
	case env.Turn != nil:
		event = session.Event{Type: session.EventTurn, Reply: env.Turn.Reply}
	case env.Abort != nil:
		event = session.Event{Type: session.EventAbort}
	case env.Auth != nil:
		// Already authenticated; a second auth frame is a no-op.
		return
	default:
		c.sendError("bad_frame", fmt.Sprintf("unknown payload type: %s", env.Type()))
		return
	}

	if c.Session == nil {
		c.sendError("no_session", "no session attached")
		return
	}
	if err := c.Session.SubmitEvent(event); err != nil {
		c.sendError("request_failed", err.Error())
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands a frame to the write pump, dropping it if the buffer is full.
func (c *Connection) enqueue(data []byte) {
	select {
	case c.Send <- data:
	default:
		// Drop if buffer full
	}
}

func (c *Connection) sendHello(sessionID string, resumed bool) {
	env := codec.Wrap("", c.Gateway.seq(), &codec.HelloPayload{
		RunnerID:   c.RunnerID,
		RunnerName: c.RunnerName,
		SessionID:  sessionID,
		Resumed:    resumed,
	})
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[Gateway] marshal hello failed: %v", err)
		return
	}
	c.enqueue(data)
}

func (c *Connection) sendError(code, message string) {
	env := codec.Wrap("", c.Gateway.seq(), &codec.ErrorPayload{
		Code:    code,
		Message: message,
	})
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// writeDirect pushes one frame on a socket with no pumps yet.
func (g *Gateway) writeDirect(conn *websocket.Conn, code, message string) {
	env := codec.Wrap("", g.seq(), &codec.ErrorPayload{Code: code, Message: message})
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.TextMessage, data)
}

func (g *Gateway) seq() uint64 {
	return atomic.AddUint64(&g.nextSeq, 1)
}

func (g *Gateway) connectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.connections)
}

func (g *Gateway) removeConnection(c *Connection) {
	g.mu.Lock()
	delete(g.connections, c.ID)
	active := g.runnerConns[c.RunnerID] == c
	if active {
		delete(g.runnerConns, c.RunnerID)
	}
	total := len(g.connections)
	g.mu.Unlock()

	log.Printf("[Gateway] Client disconnected: %s, total: %d", c.ID, total)

	// Only the runner's active connection reports loss; a replaced socket
	// going away must not mark the fresh one offline.
	if active {
		g.lobby.ConnLost(c.RunnerID)
	}
}
