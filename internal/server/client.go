// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/ssechat/internal/hub"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one WebSocket connection attached to the hub. Delivered messages
// are written as JSON text frames; inbound frames are published.
type Client struct {
	conn           *websocket.Conn
	sub            *hub.Subscription
	hub            *hub.Hub
	log            zerolog.Logger
	maxMessageSize int64
	limiters       *limiterSet
	clientKey      string
	rateLimit      RateLimitConfig
}

// newClient subscribes a new client to h using the server's stream and limit
// settings. Inbound frames draw from the same per-address bucket in limiters
// as /chat, keyed by key. The caller starts the pumps.
func newClient(conn *websocket.Conn, h *hub.Hub, cfg Config, limiters *limiterSet, key string, log zerolog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	sub := h.Open(cfg.Stream.Buffer)
	return &Client{
		conn:           conn,
		sub:            sub,
		hub:            h,
		log:            log.With().Str("subscriber", sub.Handle().String()).Logger(),
		maxMessageSize: cfg.MaxMessageSize,
		limiters:       limiters,
		clientKey:      key,
		rateLimit:      cfg.RateLimit,
	}
}

// WebSocketHandler upgrades the request and attaches the connection to the hub.
// The read and write pumps run until either side closes; the hub subscription
// is released when the read pump exits. Once shutdown has started new
// connections are refused with 503.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if !s.trackPumps() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.wg.Add(-2)
		s.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	key := clientKey(r)
	client := newClient(conn, s.hub, s.cfg, s.limiters, key, s.log.With().Str("remote_addr", r.RemoteAddr).Logger())
	client.log.Debug().Msg("websocket client connected")

	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug().Err(err).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// handleReadError logs the reason a read failed. Every read error ends the
// read loop.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("max", c.maxMessageSize).Msg("message exceeded maximum size")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.log.Debug().Err(err).Msg("websocket client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("websocket connection closed")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.log.Warn().Err(err).Msg("unexpected websocket close")
	default:
		c.log.Debug().Err(err).Msg("websocket read error")
	}
}

// checkRateLimit reports whether the client may publish another message.
func (c *Client) checkRateLimit() bool {
	if c.limiters != nil && !c.limiters.allow(c.clientKey) {
		c.log.Warn().Str("client", c.clientKey).Int("burst", c.rateLimit.Burst).Dur("interval", c.rateLimit.RefillInterval).Msg("rate limit exceeded; discarding message")
		return false
	}
	return true
}

// processMessage decodes an inbound frame and publishes its content. It
// returns false when the frame was rejected.
func (c *Client) processMessage(raw []byte) bool {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.Debug().Err(err).Msg("invalid message")
		return false
	}
	if msg.Content == "" {
		return false
	}

	c.hub.Publish(msg.Content)
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.sub.Close()
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processMessage(raw)
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
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case msg, ok := <-c.sub.Messages():
		if !ok {
			c.writeCloseMessage()
			return false
		}
		return c.writeMessage(msg)
	case <-ticker.C:
		return c.writePing()
	}
}

func (c *Client) writeMessage(msg hub.Message) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug().Err(err).Msg("error setting write deadline")
		return false
	}

	err := c.conn.WriteJSON(OutboundMessage{ID: msg.ID, Content: msg.Text, Time: msg.Time})
	if err != nil {
		if !isExpectedCloseError(err) {
			c.log.Debug().Err(err).Msg("error writing message")
		}
		return false
	}
	return true
}

func (c *Client) writeCloseMessage() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil && !isExpectedCloseError(err) {
		c.log.Debug().Err(err).Msg("error writing close message")
	}
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Debug().Err(err).Msg("error writing ping")
		return false
	}
	return true
}

// closeConnection closes the connection, ignoring errors from a connection
// the other pump already closed.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug().Err(err).Msg("error closing connection")
	}
}
