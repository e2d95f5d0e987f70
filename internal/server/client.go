package server

import (
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/gommon/log"

	"github.com/Tyrowin/groupchat/internal/config"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// ConnState is the lifecycle of one WebSocket connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Client is one user's WebSocket connection. Outbound events are written by
// writePump; inbound frames carry no commands and are discarded.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	userID         string
	addr           string
	state          atomic.Int32
	maxMessageSize int64
	rateLimiter    *frameLimiter
	rateLimit      config.RateLimitConfig
}

// NewClient wraps an upgraded connection authenticated as userID.
func NewClient(conn *websocket.Conn, hub *Hub, userID, addr string, cfg *config.Config) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, sendBuffer),
		hub:            hub,
		userID:         userID,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newFrameLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
}

// UserID returns the user the connection belongs to.
func (c *Client) UserID() string {
	return c.userID
}

// State returns the connection's current lifecycle state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Client) markOpen() {
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

func (c *Client) markClosed() {
	c.state.Store(int32(StateClosed))
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Warnf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Warnf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// handleReadError logs err by kind. Every read error ends the read loop.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Warnf("Frame from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Infof("Client %s (%s) disconnected: %v", c.userID, c.addr, err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Infof("Client %s (%s) connection closed: %v", c.userID, c.addr, err)
	default:
		log.Warnf("WebSocket read error from %s: %v", c.addr, err)
	}
}

func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		log.Warnf("Rate limit exceeded for %s (%d frames per %s); discarding frame", c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.markClosed()
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		log.Debugf("Discarding %d byte frame from %s (%s)", len(frame), c.userID, c.addr)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

func (c *Client) closeConnection() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		log.Warnf("Error closing connection for %s: %v", c.addr, err)
	}
}

// handleMessage writes one queued event. A closed channel means the hub has
// dropped the client, so a close frame is sent instead.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Warnf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			log.Warnf("Error writing message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

func (c *Client) writeCloseMessage() bool {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		log.Warnf("Error writing close message to %s: %v", c.addr, err)
	}
	return false
}

func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Warnf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Warnf("Error writing ping message to %s: %v", c.addr, err)
		return false
	}
	return true
}
