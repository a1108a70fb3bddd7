package realtime

import (
	"sync"
	"time"

	"parley/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// wsConnection is one WebSocket client as the registry sees it. Outbound
// frames flow through a bounded queue drained by a single writer goroutine;
// Enqueue never blocks the broadcast path.
type wsConnection struct {
	id       string
	identity domain.IdentityID
	username string
	remote   string

	socket   *websocket.Conn
	outbound chan outboundFrame

	closeOnce sync.Once
	closing   chan struct{}

	mu          sync.Mutex
	closeReason string

	logger *zap.Logger
}

func newWSConnection(id string, identity *domain.Identity, remote string, socket *websocket.Conn, queueSize int, logger *zap.Logger) *wsConnection {
	return &wsConnection{
		id:       id,
		identity: identity.ID,
		username: identity.Username,
		remote:   remote,
		socket:   socket,
		outbound: make(chan outboundFrame, queueSize),
		closing:  make(chan struct{}),
		logger:   logger,
	}
}

func (c *wsConnection) ID() string                  { return c.id }
func (c *wsConnection) Identity() domain.IdentityID { return c.identity }
func (c *wsConnection) Protocol() string            { return "ws" }
func (c *wsConnection) RemoteAddr() string          { return c.remote }

// Enqueue queues a broadcast event, dropping it when the queue is full. A
// client that falls that far behind recovers by re-syncing after reconnect.
func (c *wsConnection) Enqueue(event domain.Event) bool {
	frame := outboundFrame{Type: "event", Event: event.EventName(), Data: event}
	select {
	case <-c.closing:
		return false
	default:
	}
	select {
	case c.outbound <- frame:
		return true
	default:
		c.logger.Warn("send queue full, dropping event",
			zap.String("conn_id", c.id),
			zap.String("event", event.EventName()),
		)
		return false
	}
}

// send queues a direct frame (hello, reply, error). Unlike Enqueue it waits,
// since a reply the client asked for must not be dropped while the
// connection is alive.
func (c *wsConnection) send(frame outboundFrame) bool {
	select {
	case c.outbound <- frame:
		return true
	case <-c.closing:
		return false
	}
}

// Close signals the writer to flush queued frames and shut the socket down.
// Safe to call from any goroutine, any number of times.
func (c *wsConnection) Close(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeReason = reason
		c.mu.Unlock()
		close(c.closing)
	})
}

func (c *wsConnection) reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

// writePump owns all writes to the socket: queued frames, keepalive pings
// and the final close message.
func (c *wsConnection) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case frame := <-c.outbound:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(frame); err != nil {
				c.logger.Debug("write failed, dropping connection",
					zap.String("conn_id", c.id),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closing:
			c.flush()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.reason())
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			c.socket.WriteMessage(websocket.CloseMessage, msg)
			return
		}
	}
}

// flush drains whatever is queued at close time so a fatal protocol error
// frame reaches the client before the socket goes away.
func (c *wsConnection) flush() {
	for {
		select {
		case frame := <-c.outbound:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
