package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/errs"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/fusion"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBuffer     = 64
)

// Message types exchanged over the device socket
const (
	MessageLocation      = "location"
	MessageAccelerometer = "accelerometer"
	MessageMagnetometer  = "magnetometer"
	MessageState         = "state"
	MessagePosition      = "position"
	MessageNotification  = "notification"
	MessageError         = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// InboundMessage is a sensor sample sent by the phone
type InboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// OutboundMessage is a state, position, notification or error pushed to the phone
type OutboundMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// deviceConn pumps one websocket connection. Sensor samples flow into the session's device
// feed; committed states, fused positions and notifications flow back out.
type deviceConn struct {
	conn    *websocket.Conn
	session *DeviceSession
	send    chan []byte
	replies chan OutboundMessage
}

func (a *NavigationAPI) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	ds, err := a.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw(r.Context(), "WebSocket upgrade failed", "session", ds.ID, "error", err)
		return
	}

	c := &deviceConn{
		conn:    conn,
		session: ds,
		send:    make(chan []byte, sendBuffer),
		replies: make(chan OutboundMessage, 8),
	}

	// The request context ends when the handler returns, so the pumps live on the manager's
	ctx, cancel := context.WithCancel(a.manager.ctx)
	logging.Infow(r.Context(), "Device connected", "session", ds.ID, "remote", r.RemoteAddr)

	go c.writePump()
	go c.forward(ctx)
	go c.readPump(ctx, cancel)
}

// readPump applies inbound samples until the connection fails, then stops the forwarder
func (c *deviceConn) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer func() {
		cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warnw(ctx, "WebSocket read failed", "session", c.session.ID, "error", err)
			}
			return
		}

		if err := c.handle(message); err != nil {
			logging.Debugw(ctx, "Rejected device message", "session", c.session.ID, "error", err)
			c.reply(OutboundMessage{Type: MessageError, Data: ErrorResponse{
				Error:     err.Error(),
				Code:      errs.Code(err).String(),
				Retryable: false,
			}})
		}
	}
}

// handle decodes one inbound message and pushes it into the device feed
func (c *deviceConn) handle(message []byte) error {
	var msg InboundMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return &errs.SensorError{Sensor: "device", Err: fmt.Errorf("invalid message format: %w", err)}
	}

	feed := c.session.Feed
	switch msg.Type {
	case MessageLocation:
		var fix fusion.Position
		if err := json.Unmarshal(msg.Data, &fix); err != nil {
			return &errs.SensorError{Sensor: "location", Err: err}
		}
		feed.PushLocation(fix)
	case MessageAccelerometer, MessageMagnetometer:
		var sample fusion.Sample
		if err := json.Unmarshal(msg.Data, &sample); err != nil {
			return &errs.SensorError{Sensor: msg.Type, Err: err}
		}
		if msg.Type == MessageAccelerometer {
			feed.PushAccelerometer(sample)
		} else {
			feed.PushMagnetometer(sample)
		}
	default:
		return &errs.SensorError{Sensor: "device", Err: fmt.Errorf("unknown message type %q", msg.Type)}
	}
	return nil
}

func (c *deviceConn) reply(msg OutboundMessage) {
	select {
	case c.replies <- msg:
	default:
	}
}

// forward is the only writer to send; it closes send when the session or connection ends
func (c *deviceConn) forward(ctx context.Context) {
	defer close(c.send)

	states, unsubscribeStates := c.session.Session.Subscribe(16)
	defer unsubscribeStates()
	notifications, unsubscribeNotifications := c.session.Session.Notifications(16)
	defer unsubscribeNotifications()
	positions, unsubscribePositions := c.session.Engine.Subscribe(16)
	defer unsubscribePositions()

	c.enqueue(ctx, OutboundMessage{Type: MessageState, Data: c.session.Session.State()})

	for {
		var msg OutboundMessage
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			msg = OutboundMessage{Type: MessageState, Data: state}
		case n, ok := <-notifications:
			if !ok {
				return
			}
			msg = OutboundMessage{Type: MessageNotification, Data: n}
		case pos, ok := <-positions:
			if !ok {
				return
			}
			msg = OutboundMessage{Type: MessagePosition, Data: pos}
		case msg = <-c.replies:
		}
		c.enqueue(ctx, msg)
	}
}

func (c *deviceConn) enqueue(ctx context.Context, msg OutboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Errorw(ctx, "Failed to encode outbound message", "session", c.session.ID, "type", msg.Type, "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		logging.Debugw(ctx, "Device too slow, dropping message", "session", c.session.ID, "type", msg.Type)
	}
}

// writePump writes queued messages and keeps the connection alive with pings
func (c *deviceConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
