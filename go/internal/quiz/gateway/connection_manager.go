package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizclock/go/internal/quiz/events"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages WebSocket connections for quiz pages
type ConnectionManager struct {
	// Connection pools organized by round ID
	roundConnections map[uuid.UUID]map[*Connection]bool
	mu               sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clock    clockwork.Clock

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a quiz page
type Connection struct {
	ID      string
	UserID  string
	RoundID uuid.UUID
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	lastPing    time.Time
	pingMu      sync.Mutex
	closeOnce   sync.Once
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
	// Clock stamps connections and drives pings. Socket deadlines always
	// use wall time.
	Clock clockwork.Clock
}

// BroadcastMessage represents a message to broadcast to connections
type BroadcastMessage struct {
	RoundID uuid.UUID
	Event   *events.Envelope
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			// quiz pages are served from anywhere; the socket is read-only
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	defaults := DefaultConnectionConfig()
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &ConnectionManager{
		roundConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		clock:       config.Clock,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start processes broadcast messages until ctx is cancelled
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket. If initial is
// not nil it is the first message the client receives.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string, roundID uuid.UUID, initial *events.Envelope) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := cm.clock.Now()
	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		RoundID:     roundID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: now,
		lastPing:    now,
	}

	if initial != nil {
		data, err := json.Marshal(initial)
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to marshal initial state: %w", err)
		}
		connection.Send <- data
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Str("round_id", roundID.String()).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roundConnections[conn.RoundID] == nil {
		cm.roundConnections[conn.RoundID] = make(map[*Connection]bool)
	}
	cm.roundConnections[conn.RoundID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("round_id", conn.RoundID.String()).
		Int("total_connections", len(cm.roundConnections[conn.RoundID])).
		Msg("connection registered")
}

// unregisterConnection removes a connection and closes its send channel.
// Safe to call more than once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.roundConnections[conn.RoundID]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}

	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.roundConnections, conn.RoundID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Str("round_id", conn.RoundID.String()).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.roundConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

// BroadcastToRound sends an event to all connections watching a round
func (cm *ConnectionManager) BroadcastToRound(roundID uuid.UUID, event *events.Envelope) {
	select {
	case cm.broadcastCh <- BroadcastMessage{RoundID: roundID, Event: event}:
	default:
		log.Warn().Str("round_id", roundID.String()).Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Hold the read lock while sending so unregisterConnection cannot close
	// a Send channel underneath us; sends never block.
	var slow []*Connection
	cm.mu.RLock()
	connections := cm.roundConnections[message.RoundID]
	sent := 0
	for conn := range connections {
		select {
		case conn.Send <- eventData:
			sent++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("round_id", message.RoundID.String()).
		Int("connections", sent).
		Msg("event broadcasted")
}

// ConnectionStats summarises active connections
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRounds     int            `json:"active_rounds"`
	RoundConnections map[string]int `json:"round_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveRounds:     len(cm.roundConnections),
		RoundConnections: make(map[string]int, len(cm.roundConnections)),
	}
	for roundID, connections := range cm.roundConnections {
		stats.TotalConnections += len(connections)
		stats.RoundConnections[roundID.String()] = len(connections)
	}
	return stats
}

func (c *Connection) touch() {
	c.pingMu.Lock()
	c.lastPing = c.Manager.clock.Now()
	c.pingMu.Unlock()
}

// LastPing returns when the client last answered a ping
func (c *Connection) LastPing() time.Time {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	return c.lastPing
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.Conn.Close()
	})
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := c.Manager.clock.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.Chan():
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.touch()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		log.Debug().
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			Int("size", len(message)).
			Msg("ignoring client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
