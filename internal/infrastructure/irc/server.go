package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/internal/core/services"
	"parley/pkg/config"

	"go.uber.org/zap"
)

// Server accepts IRC connections and runs one session per client. It binds
// every session to the bootstrap server: #name on the wire addresses
// channel name in that tenant.
type Server struct {
	cfg      *config.Config
	chat     ports.ChatService
	identity ports.IdentityProvider
	registry ports.Registry
	presence ports.PresenceService
	members  ports.MemberRepository
	stats    *services.StatsService
	logger   *zap.Logger

	mu        sync.RWMutex
	bootstrap domain.ServerID
	listener  net.Listener
	wg        sync.WaitGroup
}

func NewServer(
	cfg *config.Config,
	chat ports.ChatService,
	identity ports.IdentityProvider,
	registry ports.Registry,
	presence ports.PresenceService,
	members ports.MemberRepository,
	stats *services.StatsService,
	logger *zap.Logger,
) *Server {
	return &Server{
		cfg:      cfg,
		chat:     chat,
		identity: identity,
		registry: registry,
		presence: presence,
		members:  members,
		stats:    stats,
		logger:   logger,
	}
}

func (srv *Server) bootstrapID() domain.ServerID {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	return srv.bootstrap
}

// Start resolves the bootstrap tenant, binds the listener and serves until
// the context is cancelled.
func (srv *Server) Start(ctx context.Context) error {
	bootstrap, err := srv.chat.ResolveServer(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to resolve bootstrap server: %w", err)
	}
	srv.mu.Lock()
	srv.bootstrap = bootstrap.ID
	srv.mu.Unlock()

	var listener net.Listener
	if srv.cfg.IRC.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(srv.cfg.IRC.TLS.CertFile, srv.cfg.IRC.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		listener, err = tls.Listen("tcp", srv.cfg.IRC.Address, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", srv.cfg.IRC.Address, err)
		}
	} else {
		listener, err = net.Listen("tcp", srv.cfg.IRC.Address)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", srv.cfg.IRC.Address, err)
		}
	}

	srv.mu.Lock()
	srv.listener = listener
	srv.mu.Unlock()

	srv.logger.Info("irc listener started",
		zap.String("address", srv.cfg.IRC.Address),
		zap.Bool("tls", srv.cfg.IRC.TLS.Enabled),
		zap.String("bootstrap_server", string(bootstrap.ID)),
	)

	go srv.acceptLoop(ctx)
	return nil
}

func (srv *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			srv.logger.Warn("accept failed", zap.Error(err))
			continue
		}

		// Admission runs before any protocol exchange; a rejected address
		// costs one TCP handshake.
		addr := remoteIP(conn)
		if !srv.registry.AdmitAddress(addr) {
			srv.stats.RecordAdmissionRejected()
			conn.Write([]byte("ERROR :Too many connections from your address\r\n"))
			conn.Close()
			continue
		}

		sess := newSession(srv, conn)
		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()
			sess.run(ctx)
		}()
	}
}

// Stop closes the listener and waits for sessions to drain.
func (srv *Server) Stop() {
	srv.mu.Lock()
	listener := srv.listener
	srv.mu.Unlock()
	if listener != nil {
		listener.Close()
	}
	srv.wg.Wait()
	srv.logger.Info("irc listener stopped")
}
