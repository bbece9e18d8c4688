// Package server wires the acceptor, sessions, registries, and packet
// handlers into the running game server.
package server

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/buddlerjoe/buddlerd/internal/gamemap"
	"github.com/buddlerjoe/buddlerd/internal/lobby"
	"github.com/buddlerjoe/buddlerd/internal/mapscript"
	"github.com/buddlerjoe/buddlerd/internal/network"
	"github.com/buddlerjoe/buddlerd/internal/ping"
	"github.com/buddlerjoe/buddlerd/internal/player"
	"github.com/buddlerjoe/buddlerd/internal/protocol"
	"github.com/buddlerjoe/buddlerd/internal/session"
	"github.com/buddlerjoe/buddlerd/pkg/config"
)

const gameVersion = "0.1.0"

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	instanceID string

	net         *network.Server
	players     *player.Registry
	lobbies     *lobby.Registry
	pingHandler *ping.Handler

	mapGen   gamemap.Generator
	noiseGen *gamemap.NoiseGenerator

	handlers map[protocol.Opcode]handlerFunc

	mu           sync.RWMutex
	sessions     map[int]*session.Session
	nextClientID int
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	players := player.NewRegistry()

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		instanceID: uuid.NewString(),
		net:        network.NewServer(cfg.Server.Port, logger),
		players:    players,
		lobbies:    lobby.NewRegistry(players),
		sessions:   make(map[int]*session.Session),
	}

	s.noiseGen = &gamemap.NoiseGenerator{
		StoneThreshold: cfg.Map.StoneThreshold,
		DirtThreshold:  cfg.Map.DirtThreshold,
		GoldChance:     cfg.Map.GoldChance,
		QmarkChance:    cfg.Map.QmarkChance,
		Octaves:        4,
		Scale:          12.0,
	}

	if cfg.Map.Generator == "noise" {
		s.mapGen = s.noiseGen
	} else {
		gen, err := mapscript.Load(cfg.Map.Generator, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load map generator: %w", err)
		}
		s.mapGen = gen
		logger.Info("loaded map script", "path", cfg.Map.Generator)
	}

	s.pingHandler = ping.NewHandler(
		fmt.Sprintf(":%d", cfg.Server.Port+1),
		s.serverInfo(),
		logger,
	)

	s.registerHandlers()
	return s, nil
}

// Start binds the game port and the discovery socket. Bind errors
// propagate unwrapped so main can map them to exit code 1.
func (s *Server) Start() error {
	if err := s.net.Start(s.handleConn); err != nil {
		return err
	}

	if err := s.pingHandler.Start(); err != nil {
		s.logger.Warn("failed to start ping handler", "error", err)
	}

	s.logger.Info("server started",
		"name", s.cfg.Server.Name,
		"instance", s.instanceID,
		"max_clients", s.cfg.Server.MaxClients,
	)
	return nil
}

// Stop closes the acceptor, tears down every session, and waits up to
// the configured grace period for their goroutines to drain.
func (s *Server) Stop() {
	s.logger.Info("stopping server")

	s.net.Stop()
	s.pingHandler.Stop()

	s.mu.RLock()
	open := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.RUnlock()

	for _, sess := range open {
		sess.Close(session.ReasonShutdown)
	}

	drained := make(chan struct{})
	go func() {
		for _, sess := range open {
			sess.Wait()
		}
		close(drained)
	}()

	grace := time.Duration(s.cfg.Limits.ShutdownGraceSeconds) * time.Second
	select {
	case <-drained:
	case <-time.After(grace):
		s.logger.Warn("shutdown grace period elapsed with sessions still draining")
	}

	s.logger.Info("server stopped")
}

// Addr reports the bound game address, for tests listening on port 0.
func (s *Server) Addr() net.Addr {
	return s.net.Addr()
}

func (s *Server) handleConn(conn net.Conn) {
	s.mu.Lock()
	if len(s.sessions) >= s.cfg.Server.MaxClients {
		s.mu.Unlock()
		s.logger.Warn("server full, rejecting connection", "remote", conn.RemoteAddr())
		conn.Write(protocol.Encode(protocol.New(protocol.OpServerFull)))
		conn.Close()
		return
	}

	s.nextClientID++
	id := s.nextClientID
	sess := session.New(id, conn, session.Config{
		MaxFrameBytes:  s.cfg.Limits.MaxFrameBytes,
		MalformedLimit: s.cfg.Limits.MalformedLimit,
		QueueSize:      s.cfg.Limits.QueueSize,
	}, s.logger, s.dispatch, s.teardown)
	s.sessions[id] = sess
	s.mu.Unlock()

	sess.Start()
	s.logger.Info("client connected", "client", id, "remote", conn.RemoteAddr())
	s.updatePingInfo()
}

// dispatch routes one inbound packet on the reader goroutine of its
// session. Unknown opcodes are logged and dropped.
func (s *Server) dispatch(sess *session.Session, pkt *protocol.Packet) {
	h, ok := s.handlers[pkt.Opcode]
	if !ok {
		if protocol.Known(pkt.Opcode) {
			s.logger.Debug("client sent server-bound opcode", "client", sess.ClientID, "opcode", string(pkt.Opcode))
		} else {
			s.logger.Info("unknown opcode ignored", "client", sess.ClientID, "opcode", string(pkt.Opcode))
		}
		return
	}
	h(sess, pkt)
}

// teardown is the session close hook: lobby leave (with the usual
// broadcasts to whoever remains), registry removal, unregistration.
// The session guarantees it runs exactly once.
func (s *Server) teardown(sess *session.Session, reason session.CloseReason) {
	res := s.lobbies.Leave(sess.ClientID)
	if res.Left && !res.Destroyed {
		if l, ok := s.lobbies.Get(res.LobbyID); ok {
			s.broadcastLobbyInfo(l)
		}
	}

	s.players.Remove(sess.ClientID)

	s.mu.Lock()
	delete(s.sessions, sess.ClientID)
	s.mu.Unlock()

	s.logger.Info("client torn down", "client", sess.ClientID, "reason", string(reason))
	s.updatePingInfo()
}

// buildMap generates and settles a lobby world. A failing map script
// falls back to the noise generator rather than blocking the start.
func (s *Server) buildMap(seed int64) (*gamemap.Map, error) {
	mc := s.cfg.Map

	grid, err := s.mapGen.Generate(mc.Width, mc.Height, seed)
	if err != nil && s.mapGen != gamemap.Generator(s.noiseGen) {
		s.logger.Warn("map script failed, falling back to noise generator", "error", err)
		grid, err = s.noiseGen.Generate(mc.Width, mc.Height, seed)
	}
	if err != nil {
		return nil, err
	}
	return gamemap.FromGrid(grid, seed, mc.BlockDim, mc.SurfaceZ)
}

func (s *Server) serverInfo() ping.ServerInfo {
	return ping.ServerInfo{
		InstanceID:     s.instanceID,
		Name:           s.cfg.Server.Name,
		PlayersCurrent: s.players.Count(),
		PlayersMax:     s.cfg.Server.MaxClients,
		OpenLobbies:    s.lobbies.Count(),
		GameVersion:    gameVersion,
	}
}

func (s *Server) updatePingInfo() {
	if s.pingHandler != nil {
		s.pingHandler.UpdateServerInfo(s.serverInfo())
	}
}
