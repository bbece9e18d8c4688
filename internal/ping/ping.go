// Package ping answers out-of-band discovery queries on a UDP socket
// next to the game port: "HELLO" gets a liveness reply, "HELLOLAN" a
// JSON summary of the running server.
package ping

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

type Handler struct {
	conn          *net.UDPConn
	logger        *slog.Logger
	stopChan      chan struct{}
	listenAddress string

	mu         sync.RWMutex
	serverInfo ServerInfo
}

type ServerInfo struct {
	InstanceID     string `json:"instance_id"`
	Name           string `json:"name"`
	PlayersCurrent int    `json:"players_current"`
	PlayersMax     int    `json:"players_max"`
	OpenLobbies    int    `json:"open_lobbies"`
	GameVersion    string `json:"game_version"`
}

func NewHandler(address string, info ServerInfo, logger *slog.Logger) *Handler {
	return &Handler{
		serverInfo:    info,
		logger:        logger,
		stopChan:      make(chan struct{}),
		listenAddress: address,
	}
}

func (h *Handler) Start() error {
	addr, err := net.ResolveUDPAddr("udp", h.listenAddress)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	h.conn = conn
	h.logger.Info("ping handler started", "address", h.listenAddress)

	go h.handlePackets()

	return nil
}

func (h *Handler) Stop() {
	close(h.stopChan)
	if h.conn != nil {
		h.conn.Close()
	}
	h.logger.Info("ping handler stopped")
}

func (h *Handler) UpdateServerInfo(info ServerInfo) {
	h.mu.Lock()
	h.serverInfo = info
	h.mu.Unlock()
}

func (h *Handler) handlePackets() {
	buffer := make([]byte, 1024)

	for {
		select {
		case <-h.stopChan:
			return
		default:
			n, addr, err := h.conn.ReadFromUDP(buffer)
			if err != nil {
				select {
				case <-h.stopChan:
					return
				default:
					h.logger.Error("failed to read UDP packet", "error", err)
					continue
				}
			}

			if n > 0 {
				h.handlePacket(buffer[:n], addr)
			}
		}
	}
}

func (h *Handler) handlePacket(data []byte, addr *net.UDPAddr) {
	if len(data) == 5 && string(data) == "HELLO" {
		h.handlePing(addr)
	} else if len(data) == 8 && string(data) == "HELLOLAN" {
		h.handleLANPing(addr)
	}
}

func (h *Handler) handlePing(addr *net.UDPAddr) {
	if _, err := h.conn.WriteToUDP([]byte("HI"), addr); err != nil {
		h.logger.Error("failed to send ping response", "error", err, "addr", addr)
		return
	}
	h.logger.Debug("sent ping response", "addr", addr)
}

func (h *Handler) handleLANPing(addr *net.UDPAddr) {
	h.mu.RLock()
	info := h.serverInfo
	h.mu.RUnlock()

	jsonData, err := json.Marshal(info)
	if err != nil {
		h.logger.Error("failed to marshal server info", "error", err)
		return
	}

	if _, err := h.conn.WriteToUDP(jsonData, addr); err != nil {
		h.logger.Error("failed to send LAN response", "error", err, "addr", addr)
	}
}
