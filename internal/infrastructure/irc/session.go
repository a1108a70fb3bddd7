package irc

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type sessionState int

const (
	stateConnecting sessionState = iota
	stateRegistering
	stateRegistered
	stateClosing
)

const (
	outboundQueueSize = 256
	capTimeout        = 10 * time.Second
	maxSASLFailures   = 3
	// rateStrikeLimit closes a connection that keeps hammering past the
	// limiter instead of backing off.
	rateStrikeLimit = 10
)

// capFlags is the negotiated IRCv3 capability set. The server advertises
// exactly server-time, message-tags and sasl.
type capFlags struct {
	serverTime  bool
	messageTags bool
	sasl        bool
}

// session is one IRC client connection. It implements ports.Connection so
// the registry fans engine events straight into its outbound queue, where
// they are rendered to protocol lines.
type session struct {
	id     string
	srv    *Server
	conn   net.Conn
	fmt    formatter
	remote string

	identity domain.IdentityID
	username string
	admin    bool

	mu    sync.Mutex
	nick  string
	state sessionState

	caps           capFlags
	capNegotiating bool
	capDeadline    time.Time

	passToken   string
	saslPending bool
	saslFails   int

	outbound  chan string
	closing   chan struct{}
	closeOnce sync.Once

	// channel id -> name, learned from snapshots and lists so events that
	// carry only the id can be rendered as #name.
	channelNames sync.Map

	rateStrikes int

	logger *zap.Logger
}

func newSession(srv *Server, conn net.Conn) *session {
	return &session{
		id:       uuid.NewString(),
		srv:      srv,
		conn:     conn,
		fmt:      formatter{serverName: srv.cfg.IRC.ServerName},
		remote:   remoteIP(conn),
		state:    stateConnecting,
		nick:     "*",
		outbound: make(chan string, outboundQueueSize),
		closing:  make(chan struct{}),
		logger:   srv.logger,
	}
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

// ports.Connection

func (s *session) ID() string                  { return s.id }
func (s *session) Identity() domain.IdentityID { return s.identity }
func (s *session) Protocol() string            { return "irc" }
func (s *session) RemoteAddr() string          { return s.remote }

func (s *session) Enqueue(event domain.Event) bool {
	lines := s.renderEvent(event)
	if len(lines) == 0 {
		return true // silent on this protocol, not dropped
	}
	for _, line := range lines {
		if !s.push(line) {
			return false
		}
	}
	return true
}

func (s *session) push(line string) bool {
	select {
	case <-s.closing:
		return false
	default:
	}
	select {
	case s.outbound <- line:
		return true
	default:
		s.logger.Warn("outbound queue full, dropping line",
			zap.String("conn_id", s.id),
			zap.String("nick", s.currentNick()),
		)
		return false
	}
}

func (s *session) Close(reason string) {
	s.closeOnce.Do(func() {
		if reason != "" {
			// Best effort; the writer flushes what is queued.
			select {
			case s.outbound <- s.fmt.errorLine(reason):
			default:
			}
		}
		close(s.closing)
	})
}

func (s *session) currentNick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nick
}

func (s *session) setNick(nick string) {
	s.mu.Lock()
	s.nick = nick
	s.mu.Unlock()
}

func (s *session) channelName(id domain.ChannelID) string {
	if name, ok := s.channelNames.Load(id); ok {
		return "#" + name.(string)
	}
	return "#" + string(id)
}

func (s *session) rememberChannel(id domain.ChannelID, name string) {
	s.channelNames.Store(id, name)
}

// writeLoop owns the socket's write side: it drains the outbound queue and
// appends CRLF. On close it flushes whatever is queued first.
func (s *session) writeLoop() {
	writer := bufio.NewWriter(s.conn)
	defer s.conn.Close()

	flush := func(line string) bool {
		s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if _, err := writer.WriteString(line + "\r\n"); err != nil {
			return false
		}
		return writer.Flush() == nil
	}

	for {
		select {
		case line := <-s.outbound:
			if !flush(line) {
				return
			}
		case <-s.closing:
			for {
				select {
				case line := <-s.outbound:
					if !flush(line) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// run drives the whole session: registration, then the command loop. The
// caller has already reserved the address slot.
func (s *session) run(ctx context.Context) {
	go s.writeLoop()

	defer func() {
		if s.state == stateRegistered {
			s.srv.registry.Unregister(s.id)
			s.srv.presence.MarkOffline(s.identity, s.currentNick())
			s.srv.stats.RecordConnection("irc", false)
		} else {
			s.srv.registry.ReleaseAddress(s.remote)
		}
		s.Close("")
	}()

	reader := bufio.NewReaderSize(s.conn, MaxLineLength)
	s.state = stateRegistering

	if !s.register(ctx, reader) {
		return
	}
	s.commandLoop(ctx, reader)
}

// readLine reads one CRLF-terminated line, enforcing the 512-byte framing
// limit. An oversized line is fatal: ERROR then close, nothing dispatched.
// ReadSlice never accumulates past the reader's buffer, so a peer streaming
// bytes without a terminator is cut off at the limit, not at the deadline.
func (s *session) readLine(reader *bufio.Reader, deadline time.Duration) (string, bool) {
	s.conn.SetReadDeadline(time.Now().Add(deadline))
	line, err := reader.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			s.Close("line too long")
		}
		return "", false
	}
	return strings.TrimRight(string(line), "\r\n"), true
}

// register collects NICK, USER and a credential (SASL PLAIN or PASS),
// negotiating capabilities on the side. It returns true once the session
// reached Registered.
func (s *session) register(ctx context.Context, reader *bufio.Reader) bool {
	var (
		nick, user string
		awaitSASL  bool // next AUTHENTICATE line carries the payload
	)

	deadline := s.srv.cfg.IRC.RegistrationTimeout

	for {
		if s.capNegotiating && time.Now().After(s.capDeadline) {
			// Negotiation timed out; proceed as if CAP END arrived.
			s.capNegotiating = false
		}

		line, ok := s.readLine(reader, deadline)
		if !ok {
			return false
		}
		msg, err := ParseLine(line)
		if err != nil {
			continue
		}

		switch msg.Command {
		case "CAP":
			s.handleCAP(msg)
		case "PASS":
			if len(msg.Params) < 1 {
				s.push(s.fmt.needMoreParams(nick, "PASS"))
				continue
			}
			s.passToken = msg.Param(0)
		case "NICK":
			if len(msg.Params) < 1 {
				s.push(s.fmt.noNicknameGiven(displayOr(nick)))
				continue
			}
			nick = msg.Param(0)
			s.setNick(nick)
		case "USER":
			if len(msg.Params) < 4 {
				s.push(s.fmt.needMoreParams(displayOr(nick), "USER"))
				continue
			}
			user = msg.Param(0)
		case "AUTHENTICATE":
			if awaitSASL {
				awaitSASL = false
				if s.handleSASLPayload(ctx, msg.Param(0)) {
					continue
				}
				if s.saslFails >= maxSASLFailures {
					s.Close("too many authentication failures")
					return false
				}
				continue
			}
			if !s.caps.sasl {
				s.push(s.fmt.saslFail(displayOr(nick)))
				continue
			}
			if strings.EqualFold(msg.Param(0), "PLAIN") {
				awaitSASL = true
				s.push("AUTHENTICATE +")
			} else {
				s.push(s.fmt.saslFail(displayOr(nick)))
			}
		case "PING":
			s.push(s.fmt.pong(msg.Trailing()))
		case "QUIT":
			return false
		default:
			s.push(s.fmt.notRegistered())
		}

		if nick != "" && user != "" && !s.capNegotiating && !awaitSASL {
			return s.completeRegistration(ctx, nick)
		}
	}
}

func displayOr(nick string) string {
	if nick == "" {
		return "*"
	}
	return nick
}

func (s *session) handleCAP(msg *Message) {
	nick := displayOr(s.currentNick())
	sub := strings.ToUpper(msg.Param(0))
	switch sub {
	case "LS":
		s.capNegotiating = true
		s.capDeadline = time.Now().Add(capTimeout)
		s.push((&Message{Prefix: s.fmt.serverName, Command: "CAP", Params: []string{nick, "LS", "server-time message-tags sasl"}}).String())
	case "REQ":
		requested := strings.Fields(msg.Trailing())
		granted := make([]string, 0, len(requested))
		for _, c := range requested {
			switch c {
			case "server-time":
				s.caps.serverTime = true
				granted = append(granted, c)
			case "message-tags":
				s.caps.messageTags = true
				granted = append(granted, c)
			case "sasl":
				s.caps.sasl = true
				granted = append(granted, c)
			default:
				s.push((&Message{Prefix: s.fmt.serverName, Command: "CAP", Params: []string{nick, "NAK", strings.Join(requested, " ")}}).String())
				return
			}
		}
		s.push((&Message{Prefix: s.fmt.serverName, Command: "CAP", Params: []string{nick, "ACK", strings.Join(granted, " ")}}).String())
	case "END":
		s.capNegotiating = false
	}
}

// handleSASLPayload decodes the PLAIN response (authzid\0authcid\0token)
// and authenticates the token. Reports true on success.
func (s *session) handleSASLPayload(ctx context.Context, payload string) bool {
	nick := displayOr(s.currentNick())

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		s.saslFails++
		s.push(s.fmt.saslFail(nick))
		return false
	}
	parts := strings.SplitN(string(raw), "\x00", 3)
	if len(parts) != 3 {
		s.saslFails++
		s.push(s.fmt.saslFail(nick))
		return false
	}

	identity, err := s.srv.identity.Authenticate(ctx, parts[2])
	if err != nil {
		s.saslFails++
		s.push(s.fmt.saslFail(nick))
		return false
	}

	s.identity = identity.ID
	s.username = identity.Username
	s.admin = identity.Admin
	s.push(s.fmt.loggedIn(nick, identity.Username))
	s.push(s.fmt.saslSuccess(nick))
	return true
}

// completeRegistration authenticates (PASS fallback when SASL did not run),
// registers with the engine and emits the welcome burst.
func (s *session) completeRegistration(ctx context.Context, nick string) bool {
	if s.identity == "" {
		if s.passToken == "" {
			s.push(s.fmt.passwordMismatch(nick))
			s.Close("authentication required")
			return false
		}
		identity, err := s.srv.identity.Authenticate(ctx, s.passToken)
		if err != nil {
			s.push(s.fmt.passwordMismatch(nick))
			s.Close("authentication failed")
			return false
		}
		s.identity = identity.ID
		s.username = identity.Username
		s.admin = identity.Admin
	}

	s.state = stateRegistered
	s.srv.registry.Register(s)

	if serverIDs, err := s.srv.members.ServersOf(ctx, s.identity); err == nil {
		for _, serverID := range serverIDs {
			s.srv.registry.JoinServer(s.id, serverID)
		}
	}

	s.srv.presence.MarkOnline(s.identity, nick)
	s.srv.stats.RecordConnection("irc", true)

	s.push(s.fmt.welcome(nick))
	s.push(s.fmt.yourHost(nick))
	s.push(s.fmt.created(nick))
	s.push(s.fmt.myInfo(nick))
	s.sendMOTD(nick)

	// A nick that differs from the account name becomes a per-server
	// nickname on the bootstrap server, best effort.
	if !strings.EqualFold(nick, s.username) {
		s.trySetNickname(ctx, nick)
	}

	s.logger.Info("irc session registered",
		zap.String("conn_id", s.id),
		zap.String("nick", nick),
		zap.String("identity_id", string(s.identity)),
		zap.String("remote_addr", s.remote),
	)
	return true
}

func (s *session) sendMOTD(nick string) {
	motd := s.srv.cfg.IRC.MOTD
	if len(motd) == 0 {
		s.push(s.fmt.noMOTD(nick))
		return
	}
	s.push(s.fmt.motdStart(nick))
	for _, line := range motd {
		s.push(s.fmt.motdLine(nick, line))
	}
	s.push(s.fmt.endOfMOTD(nick))
}

func (s *session) actor() ports.Actor {
	return ports.Actor{
		ID:       s.identity,
		Username: s.username,
		Admin:    s.admin,
		ConnID:   s.id,
	}
}

// commandLoop processes lines until the peer disconnects, the idle timeout
// expires or the session turns fatal.
func (s *session) commandLoop(ctx context.Context, reader *bufio.Reader) {
	for {
		select {
		case <-s.closing:
			return
		case <-ctx.Done():
			s.Close("server shutting down")
			return
		default:
		}

		line, ok := s.readLine(reader, s.srv.cfg.IRC.IdleTimeout)
		if !ok {
			return
		}
		msg, err := ParseLine(line)
		if err != nil {
			continue
		}

		if quit := s.handleCommand(ctx, msg); quit {
			return
		}
		if s.rateStrikes >= rateStrikeLimit {
			s.Close("rate limit exceeded")
			return
		}
	}
}
