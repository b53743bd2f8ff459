package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"courier/auth"
	"courier/contract"
	"courier/domain/event"
	"courier/runtime"
	"courier/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 50 * time.Second
	maxFrameSize = 16 * 1024
)

// Client is one live WebSocket connection. It is also the connection's
// EventSink: Consume pushes onto the buffered events channel, the write
// pump drains it onto the wire. A full buffer drops the event, never
// blocks the producer.
type Client struct {
	userID string
	connID string
	conn   *websocket.Conn
	events chan event.DomainEvent
	log    *slog.Logger

	closeOnce sync.Once
}

func NewClient(userID string, conn *websocket.Conn, bufferSize int, log *slog.Logger) *Client {
	return &Client{
		userID: userID,
		connID: uuid.NewString(),
		conn:   conn,
		events: make(chan event.DomainEvent, bufferSize),
		log:    log,
	}
}

// Handle is the registry identity of this connection.
func (c *Client) Handle() contract.Handle {
	return contract.Handle{ConnID: c.connID, Sink: c}
}

// Consume is called by the router and the presence broadcaster.
// It never blocks: a slow consumer loses live events and reconciles
// through the store on its next conversation open.
func (c *Client) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case c.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		c.log.Debug("Connection buffer full, event dropped",
			"user_id", c.userID, "kind", e.Kind())
		return nil
	}
}

// Close tears the underlying connection down. Safe to call more than
// once; a superseded connection is closed by the transport when a
// reconnect replaces it.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// writePump serializes events to JSON frames and keeps the connection
// alive with pings. It owns all writes to the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case evt := <-c.events:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(toWireEvent(evt)); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes inbound frames until the client disconnects.
// Inbound kinds: typing signals and messages sent over the socket.
func (c *Client) readPump(ctx context.Context, chat services.IChatService, broadcaster *runtime.Broadcaster) {
	defer func() {
		broadcaster.Disconnect(ctx, c.userID, c.Handle())
		c.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("WebSocket closed unexpectedly", "user_id", c.userID, "error", err)
			}
			return
		}
		c.handleFrame(ctx, chat, data)
	}
}

func (c *Client) handleFrame(ctx context.Context, chat services.IChatService, data []byte) {
	var frame struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		c.log.Debug("Malformed frame ignored", "user_id", c.userID)
		return
	}

	switch frame.Type {
	case "typing":
		var payload inboundTyping
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return
		}
		chat.SetTyping(ctx, c.userID, payload.Recipient, payload.IsTyping)
	case "message":
		var payload inboundMessage
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return
		}
		if _, err := chat.SendMessage(ctx, c.userID, payload.Recipient, payload.Content); err != nil {
			c.log.Warn("Send over socket rejected",
				"user_id", c.userID, "recipient", payload.Recipient, "error", err)
		}
	default:
		c.log.Debug("Unknown frame type ignored", "user_id", c.userID, "type", frame.Type)
	}
}

// WSHandler upgrades authenticated requests and wires the connection
// into the registry via the presence broadcaster.
type WSHandler struct {
	broadcaster *runtime.Broadcaster
	chat        services.IChatService
	bufferSize  int
	log         *slog.Logger
	upgrader    websocket.Upgrader
}

func NewWSHandler(broadcaster *runtime.Broadcaster, chat services.IChatService,
	bufferSize int, log *slog.Logger) *WSHandler {
	return &WSHandler{
		broadcaster: broadcaster,
		chat:        chat,
		bufferSize:  bufferSize,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades the request and runs the connection's pumps. The
// registry transition happens before the pumps start, so the presence
// broadcast reaches every other connected user including the fresh
// connection itself.
func (h *WSHandler) HandleWS(c *gin.Context) {
	userID := auth.UserID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := NewClient(userID, conn, h.bufferSize, h.log)
	if prev := h.broadcaster.Connect(context.Background(), userID, client.Handle()); prev != nil {
		// Reconnect supersede: close the replaced connection so it does
		// not linger half-open on the server.
		if superseded, ok := prev.Sink.(*Client); ok {
			superseded.Close()
		}
	}

	go client.writePump()
	go client.readPump(context.Background(), h.chat, h.broadcaster)
}
