package realtime

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"parley/internal/core/ports"
	"parley/internal/core/services"
	"parley/pkg/config"
	apperrors "parley/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketServer upgrades authenticated HTTP requests into real-time
// protocol sessions. Authentication and per-address admission both happen
// before the upgrade so rejected clients cost one HTTP round trip, not a
// socket.
type WebSocketServer struct {
	cfg      *config.Config
	chat     ports.ChatService
	identity ports.IdentityProvider
	registry ports.Registry
	presence ports.PresenceService
	members  ports.MemberRepository
	stats    *services.StatsService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWebSocketServer(
	cfg *config.Config,
	chat ports.ChatService,
	identity ports.IdentityProvider,
	registry ports.Registry,
	presence ports.PresenceService,
	members ports.MemberRepository,
	stats *services.StatsService,
	logger *zap.Logger,
) *WebSocketServer {
	s := &WebSocketServer{
		cfg:      cfg,
		chat:     chat,
		identity: identity,
		registry: registry,
		presence: presence,
		members:  members,
		stats:    stats,
		logger:   logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origins := s.cfg.Auth.AllowedOrigins
	if len(origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// bearerToken pulls the credential from the Authorization header or, for
// browser clients that cannot set headers on WebSocket requests, from the
// token query parameter.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

// HandleWebSocket serves GET /ws.
func (s *WebSocketServer) HandleWebSocket(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	identity, err := s.identity.Authenticate(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	addr := c.ClientIP()
	if !s.registry.AdmitAddress(addr) {
		s.stats.RecordAdmissionRejected()
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connections from this address"})
		return
	}

	socket, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.registry.ReleaseAddress(addr)
		s.logger.Warn("websocket upgrade failed",
			zap.String("remote_addr", addr),
			zap.Error(err),
		)
		return
	}

	conn := newWSConnection(uuid.NewString(), identity, addr, socket, s.cfg.Realtime.SendQueueSize, s.logger)
	s.serve(c, conn, identity.Admin)
}

func (s *WebSocketServer) serve(c *gin.Context, conn *wsConnection, admin bool) {
	ctx := c.Request.Context()

	s.registry.Register(conn)
	defer func() {
		// Unregister is synchronous: when it returns the connection is out
		// of every index and its address slot is released.
		s.registry.Unregister(conn.ID())
		s.presence.MarkOffline(conn.identity, conn.username)
		s.stats.RecordConnection("ws", false)
		conn.Close("")
	}()

	// Server-scoped events (role changes, bans, server deletion) reach this
	// connection through its server rooms.
	if serverIDs, err := s.members.ServersOf(ctx, conn.identity); err == nil {
		for _, serverID := range serverIDs {
			s.registry.JoinServer(conn.ID(), serverID)
		}
	} else {
		s.logger.Warn("failed to load member servers",
			zap.String("identity_id", string(conn.identity)),
			zap.Error(err),
		)
	}

	s.presence.MarkOnline(conn.identity, conn.username)
	s.stats.RecordConnection("ws", true)

	go conn.writePump(s.cfg.Realtime.PingInterval)

	conn.send(outboundFrame{Type: "hello", Data: helloData{
		SessionID:           conn.ID(),
		Identity:            conn.identity,
		Username:            conn.username,
		MOTD:                s.cfg.IRC.MOTD,
		HeartbeatIntervalMS: s.cfg.Realtime.PingInterval.Milliseconds(),
	}})

	s.logger.Info("websocket session started",
		zap.String("conn_id", conn.ID()),
		zap.String("identity_id", string(conn.identity)),
		zap.String("remote_addr", conn.RemoteAddr()),
	)

	actor := ports.Actor{
		ID:       conn.identity,
		Username: conn.username,
		Admin:    admin,
		ConnID:   conn.ID(),
	}
	s.readLoop(c, conn, actor)
}

func (s *WebSocketServer) readLoop(c *gin.Context, conn *wsConnection, actor ports.Actor) {
	socket := conn.socket
	socket.SetReadLimit(s.cfg.Realtime.MaxFrameBytes)
	socket.SetReadDeadline(time.Now().Add(s.cfg.Realtime.PongTimeout))
	socket.SetPongHandler(func(string) error {
		socket.SetReadDeadline(time.Now().Add(s.cfg.Realtime.PongTimeout))
		return nil
	})

	for {
		_, payload, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read error",
					zap.String("conn_id", conn.ID()),
					zap.Error(err),
				)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			// Framing errors are fatal to the connection: flush what is
			// queued, then close.
			conn.send(errorFrame(nil, apperrors.NewProtocolError("malformed frame")))
			conn.Close("protocol error")
			return
		}

		// Per-connection command throughput rides the command tier; the
		// "ws" tier only paces connection attempts before the upgrade.
		if !s.registry.TryConsume("command:"+conn.ID(), 1) {
			s.stats.RecordAdmissionRejected()
			conn.send(errorFrame(&frame.Seq, apperrors.NewRateLimitError(0)))
			continue
		}

		cmd, err := decodeCommand(frame.Type, frame.Data)
		if err != nil {
			conn.send(errorFrame(&frame.Seq, apperrors.NewInvalidInputError(err.Error())))
			continue
		}

		replies, err := s.chat.Apply(c.Request.Context(), actor, cmd)
		if err != nil {
			conn.send(errorFrame(&frame.Seq, err))
			continue
		}

		if len(replies) == 0 {
			// Every accepted command gets an acknowledgment frame.
			seq := frame.Seq
			conn.send(outboundFrame{Type: "reply", Seq: &seq})
			continue
		}
		for _, reply := range replies {
			seq := frame.Seq
			conn.send(outboundFrame{Type: "reply", Seq: &seq, Event: reply.EventName(), Data: reply})
		}
	}
}

// errorFrame maps any engine error to the wire shape. Unclassified errors
// surface as INTERNAL_ERROR with a generic message, never internal detail.
func errorFrame(seq *int64, err error) outboundFrame {
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		appErr = apperrors.NewInternalError("internal error")
	}

	fe := &frameError{
		Code:    string(appErr.Code),
		Message: appErr.Message,
	}
	if retryAfter := appErr.RetryAfter(); retryAfter > 0 {
		fe.RetryAfterMS = retryAfter.Milliseconds()
	}
	return outboundFrame{Type: "error", Seq: seq, Error: fe}
}
