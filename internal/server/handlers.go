package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/buddlerjoe/buddlerd/internal/lobby"
	"github.com/buddlerjoe/buddlerd/internal/player"
	"github.com/buddlerjoe/buddlerd/internal/protocol"
	"github.com/buddlerjoe/buddlerd/internal/session"
	"github.com/buddlerjoe/buddlerd/internal/validation"
)

type handlerFunc func(*session.Session, *protocol.Packet)

func (s *Server) registerHandlers() {
	s.handlers = map[protocol.Opcode]handlerFunc{
		protocol.OpLogin:       s.handleLogin,
		protocol.OpDisconnect:  s.handleDisconnect,
		protocol.OpGetName:     s.handleGetName,
		protocol.OpSetName:     s.handleSetName,
		protocol.OpGetLobbies:  s.handleGetLobbies,
		protocol.OpCreateLobby: s.handleCreateLobby,
		protocol.OpJoinLobby:   s.handleJoinLobby,
		protocol.OpLeaveLobby:  s.handleLeaveLobby,
		protocol.OpReady:       s.handleReady,
		protocol.OpBlockDamage: s.handleBlockDamage,
		protocol.OpSpawnItem:   s.handleSpawnItem,
		protocol.OpItemUsed:    s.handleItemUsed,
		protocol.OpChatToSrv:   s.handleChat,
	}
}

// Send queues a packet for one client. The packet is copied so a
// broadcast can stamp a different target id per receiver.
func (s *Server) Send(clientID int, pkt *protocol.Packet) bool {
	s.mu.RLock()
	sess, ok := s.sessions[clientID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	cp := *pkt
	cp.ClientID = clientID
	return sess.Enqueue(&cp)
}

// SendLobby fans a packet out to every member of a lobby except the
// given client id (0 excludes nobody).
func (s *Server) SendLobby(l *lobby.Lobby, pkt *protocol.Packet, except int) {
	for _, id := range l.Members() {
		if id == except {
			continue
		}
		s.Send(id, pkt)
	}
}

// SendAll fans a packet out to every logged-in client.
func (s *Server) SendAll(pkt *protocol.Packet) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		if _, ok := s.players.ByID(id); !ok {
			continue
		}
		s.Send(id, pkt)
	}
}

func (s *Server) reply(sess *session.Session, op protocol.Opcode, fields ...string) {
	sess.Enqueue(protocol.New(op, fields...))
}

// replyErr answers with the errors accumulated on the inbound packet.
func (s *Server) replyErr(sess *session.Session, op protocol.Opcode, pkt *protocol.Packet) {
	sess.Enqueue(&protocol.Packet{Opcode: op, Payload: pkt.ErrorPayload(), ClientID: sess.ClientID})
}

// args returns the payload fields with a leading empty field dropped.
// Padded opcodes like "BDMG " put a delimiter right after the opcode,
// which splits into an empty first field.
func args(pkt *protocol.Packet) []string {
	fields := pkt.Fields()
	if len(fields) > 0 && fields[0] == "" {
		fields = fields[1:]
	}
	return fields
}

// requireLogin resolves the sender's player record, rejecting packets
// from sessions that never logged in.
func (s *Server) requireLogin(sess *session.Session, op protocol.Opcode, pkt *protocol.Packet) (*player.Player, bool) {
	p, ok := s.players.ByID(sess.ClientID)
	if !ok {
		pkt.AddError("Not logged in.")
		s.replyErr(sess, op, pkt)
		return nil, false
	}
	return p, true
}

// requireLobby resolves the sender's current lobby.
func (s *Server) requireLobby(sess *session.Session, op protocol.Opcode, pkt *protocol.Packet) (*lobby.Lobby, bool) {
	l, ok := s.lobbies.ForClient(sess.ClientID)
	if !ok {
		pkt.AddError("Not in a lobby.")
		s.replyErr(sess, op, pkt)
		return nil, false
	}
	return l, true
}

func (s *Server) lobbyInfoPacket(l *lobby.Lobby) *protocol.Packet {
	listing := l.PlayerNamesIDsReadies(s.players.Username)
	return &protocol.Packet{
		Opcode:  protocol.OpLobbyInfo,
		Payload: protocol.Join("OK", l.Name) + protocol.Delimiter + listing,
	}
}

func (s *Server) broadcastLobbyInfo(l *lobby.Lobby) {
	s.SendLobby(l, s.lobbyInfoPacket(l), 0)
}

func (s *Server) handleLogin(sess *session.Session, pkt *protocol.Packet) {
	if _, ok := s.players.ByID(sess.ClientID); ok {
		pkt.AddError("Already logged in.")
		s.replyErr(sess, protocol.OpLogin, pkt)
		return
	}

	name := pkt.Payload
	if !validation.IsValidUsername(name) {
		pkt.AddError("Invalid username.")
		s.replyErr(sess, protocol.OpLogin, pkt)
		return
	}

	assigned := s.players.Add(sess.ClientID, name)
	s.reply(sess, protocol.OpLogin, "OK", strconv.Itoa(sess.ClientID))
	s.logger.Info("player logged in", "client", sess.ClientID, "name", assigned)
	s.updatePingInfo()
}

func (s *Server) handleDisconnect(sess *session.Session, pkt *protocol.Packet) {
	sess.Close(session.ReasonClientQuit)
}

func (s *Server) handleGetName(sess *session.Session, pkt *protocol.Packet) {
	p, ok := s.requireLogin(sess, protocol.OpGetName, pkt)
	if !ok {
		return
	}
	s.reply(sess, protocol.OpGetName, "OK", p.Username)
}

func (s *Server) handleSetName(sess *session.Session, pkt *protocol.Packet) {
	if _, ok := s.requireLogin(sess, protocol.OpSetName, pkt); !ok {
		return
	}

	name := pkt.Payload
	if !validation.IsValidUsername(name) {
		pkt.AddError("Invalid username.")
	} else if err := s.players.Rename(sess.ClientID, name); err != nil {
		pkt.AddError("Username already taken.")
	}
	if pkt.HasErrors() {
		s.replyErr(sess, protocol.OpSetName, pkt)
		return
	}

	s.reply(sess, protocol.OpSetName, "OK", name)

	// Lobby listings carry usernames, keep the members current.
	if l, ok := s.lobbies.ForClient(sess.ClientID); ok {
		s.broadcastLobbyInfo(l)
	}
}

func (s *Server) handleGetLobbies(sess *session.Session, pkt *protocol.Packet) {
	if _, ok := s.requireLogin(sess, protocol.OpGetLobbies, pkt); !ok {
		return
	}

	infos := s.lobbies.Snapshot()
	fields := make([]string, 0, 1+len(infos)*4)
	fields = append(fields, "OK")
	for _, in := range infos {
		fields = append(fields,
			strconv.Itoa(in.ID),
			in.Name,
			strconv.Itoa(in.Members),
			in.Status.String(),
		)
	}
	s.reply(sess, protocol.OpGetLobbies, fields...)
}

func (s *Server) handleCreateLobby(sess *session.Session, pkt *protocol.Packet) {
	if _, ok := s.requireLogin(sess, protocol.OpCreateLobby, pkt); !ok {
		return
	}

	name := pkt.Payload
	if !validation.IsValidLobbyName(name) {
		pkt.AddError("Invalid lobby name.")
		s.replyErr(sess, protocol.OpCreateLobby, pkt)
		return
	}

	l, err := s.lobbies.Create(name, sess.ClientID)
	if err != nil {
		pkt.AddError(lobbyErrMessage(err))
		s.replyErr(sess, protocol.OpCreateLobby, pkt)
		return
	}

	s.reply(sess, protocol.OpCreateLobby, "OK", strconv.Itoa(l.ID))
	s.broadcastLobbyInfo(l)
	s.logger.Info("lobby created", "lobby", l.ID, "name", l.Name, "host", sess.ClientID)
	s.updatePingInfo()
}

func (s *Server) handleJoinLobby(sess *session.Session, pkt *protocol.Packet) {
	if _, ok := s.requireLogin(sess, protocol.OpJoinLobby, pkt); !ok {
		return
	}

	lobbyID, ok := validation.ParseInt32(pkt.Payload)
	if !ok {
		pkt.AddError("Invalid lobby id.")
		s.replyErr(sess, protocol.OpJoinLobby, pkt)
		return
	}

	l, err := s.lobbies.Join(lobbyID, sess.ClientID)
	if err != nil {
		pkt.AddError(lobbyErrMessage(err))
		s.replyErr(sess, protocol.OpJoinLobby, pkt)
		return
	}

	s.broadcastLobbyInfo(l)
	if payload, ok := l.MapPacket(); ok {
		s.Send(sess.ClientID, &protocol.Packet{Opcode: protocol.OpMap, Payload: payload})
		s.sendDamageEntries(l, sess.ClientID)
	}
	s.logger.Info("player joined lobby", "client", sess.ClientID, "lobby", l.ID)
}

func (s *Server) handleLeaveLobby(sess *session.Session, pkt *protocol.Packet) {
	if _, ok := s.requireLogin(sess, protocol.OpLeaveLobby, pkt); !ok {
		return
	}

	res := s.lobbies.Leave(sess.ClientID)
	s.reply(sess, protocol.OpLeaveLobby, "OK")

	if res.Left && !res.Destroyed {
		if l, ok := s.lobbies.Get(res.LobbyID); ok {
			s.broadcastLobbyInfo(l)
		}
	}
	if res.Destroyed {
		s.logger.Info("lobby destroyed", "lobby", res.LobbyID)
	}
	s.updatePingInfo()
}

func (s *Server) handleReady(sess *session.Session, pkt *protocol.Packet) {
	if _, ok := s.requireLogin(sess, protocol.OpReady, pkt); !ok {
		return
	}
	l, ok := s.requireLobby(sess, protocol.OpReady, pkt)
	if !ok {
		return
	}

	_, startable := l.ToggleReady(sess.ClientID)
	s.broadcastLobbyInfo(l)
	if !startable {
		return
	}

	seed := time.Now().UnixNano()
	if _, err := l.Start(seed, s.buildMap); err != nil {
		s.logger.Error("failed to start lobby", "lobby", l.ID, "error", err)
		pkt.AddError("Map generation failed.")
		s.replyErr(sess, protocol.OpReady, pkt)
		return
	}

	payload, _ := l.MapPacket()
	s.SendLobby(l, &protocol.Packet{Opcode: protocol.OpMap, Payload: payload}, 0)
	s.logger.Info("lobby started", "lobby", l.ID, "seed", seed, "members", l.MemberCount())
	s.updatePingInfo()
}

// sendDamageEntries replays accumulated block damage to one client so a
// late joiner reconciles its fresh BRMAP with the lived-in world.
// Replayed entries carry client id 0.
func (s *Server) sendDamageEntries(l *lobby.Lobby, clientID int) {
	for _, e := range l.DamageEntries() {
		s.Send(clientID, protocol.New(protocol.OpBlockDamage,
			"", "0", strconv.Itoa(e.X), strconv.Itoa(e.Y), strconv.Itoa(e.Amount)))
	}
}

func (s *Server) handleBlockDamage(sess *session.Session, pkt *protocol.Packet) {
	if _, ok := s.requireLogin(sess, protocol.OpBlockDamage, pkt); !ok {
		return
	}
	l, ok := s.requireLobby(sess, protocol.OpBlockDamage, pkt)
	if !ok {
		return
	}

	fields := args(pkt)
	if len(fields) != 3 {
		pkt.AddError("Expected x, y, and damage.")
		s.replyErr(sess, protocol.OpBlockDamage, pkt)
		return
	}
	x, okX := validation.ParseInt32(fields[0])
	y, okY := validation.ParseInt32(fields[1])
	amount, okA := validation.ParseInt32(fields[2])
	if !okX || !okY || !okA {
		pkt.AddError("Malformed block damage fields.")
		s.replyErr(sess, protocol.OpBlockDamage, pkt)
		return
	}
	if amount <= 0 {
		pkt.AddError("Damage must be positive.")
		s.replyErr(sess, protocol.OpBlockDamage, pkt)
		return
	}

	res, err := l.DamageBlock(x, y, amount)
	if err != nil {
		if err == lobby.ErrNotRunning {
			pkt.AddError(lobbyErrMessage(err))
		} else {
			pkt.AddError("Block out of range.")
		}
		s.replyErr(sess, protocol.OpBlockDamage, pkt)
		return
	}
	if !res.Changed {
		return
	}

	s.SendLobby(l, protocol.New(protocol.OpBlockDamage,
		"", strconv.Itoa(sess.ClientID), fields[0], fields[1], fields[2]), 0)

	if res.DroppedItem {
		itemType := l.RollItemType()
		itemID := l.SpawnItem(itemType, res.DropX, res.DropY, res.DropZ, sess.ClientID)
		s.SendLobby(l, protocol.New(protocol.OpSpawnItem,
			"", itemType,
			strconv.Itoa(res.DropX), strconv.Itoa(res.DropY), strconv.Itoa(res.DropZ),
			strconv.Itoa(sess.ClientID), strconv.Itoa(itemID)), 0)
	}
}

func (s *Server) handleSpawnItem(sess *session.Session, pkt *protocol.Packet) {
	if _, ok := s.requireLogin(sess, protocol.OpSpawnItem, pkt); !ok {
		return
	}
	l, ok := s.requireLobby(sess, protocol.OpSpawnItem, pkt)
	if !ok {
		return
	}
	if l.Status() != lobby.StatusRunning {
		pkt.AddError("No running game.")
		s.replyErr(sess, protocol.OpSpawnItem, pkt)
		return
	}

	fields := args(pkt)
	if len(fields) != 4 {
		pkt.AddError("Expected item type, x, y, and z.")
		s.replyErr(sess, protocol.OpSpawnItem, pkt)
		return
	}
	itemType := fields[0]
	if !validation.IsValidItemType(itemType) {
		pkt.AddError("Unknown item type.")
		s.replyErr(sess, protocol.OpSpawnItem, pkt)
		return
	}
	x, okX := validation.ParseInt32(fields[1])
	y, okY := validation.ParseInt32(fields[2])
	z, okZ := validation.ParseInt32(fields[3])
	if !okX || !okY || !okZ {
		pkt.AddError("Malformed item position.")
		s.replyErr(sess, protocol.OpSpawnItem, pkt)
		return
	}

	itemID := l.SpawnItem(itemType, x, y, z, sess.ClientID)
	s.SendLobby(l, protocol.New(protocol.OpSpawnItem,
		"", itemType, fields[1], fields[2], fields[3],
		strconv.Itoa(sess.ClientID), strconv.Itoa(itemID)), 0)
}

func (s *Server) handleItemUsed(sess *session.Session, pkt *protocol.Packet) {
	if _, ok := s.requireLogin(sess, protocol.OpItemUsed, pkt); !ok {
		return
	}
	l, ok := s.requireLobby(sess, protocol.OpItemUsed, pkt)
	if !ok {
		return
	}

	fields := args(pkt)
	if len(fields) != 1 {
		pkt.AddError("Expected an item id.")
		s.replyErr(sess, protocol.OpItemUsed, pkt)
		return
	}
	itemID, okID := validation.ParseInt32(fields[0])
	if !okID {
		pkt.AddError("Malformed item id.")
		s.replyErr(sess, protocol.OpItemUsed, pkt)
		return
	}

	if !l.ConsumeItem(itemID) {
		pkt.AddError("Unknown or consumed item.")
		s.replyErr(sess, protocol.OpItemUsed, pkt)
		return
	}
	s.SendLobby(l, protocol.New(protocol.OpItemUsed,
		"", fields[0], strconv.Itoa(sess.ClientID)), 0)
}

func (s *Server) handleChat(sess *session.Session, pkt *protocol.Packet) {
	p, ok := s.requireLogin(sess, protocol.OpChatToSrv, pkt)
	if !ok {
		return
	}

	text := pkt.Payload
	if text == "" || !validation.IsExtendedASCII(text) {
		pkt.AddError("Invalid chat message.")
		s.replyErr(sess, protocol.OpChatToSrv, pkt)
		return
	}

	out := protocol.New(protocol.OpChatToCli,
		strconv.Itoa(sess.ClientID), p.Username, text)

	if strings.HasPrefix(text, "@") {
		target, rest, found := s.players.ResolveWhisper(text)
		if !found {
			pkt.AddError("Unknown whisper target.")
			s.replyErr(sess, protocol.OpChatToSrv, pkt)
			return
		}
		out = protocol.New(protocol.OpChatToCli,
			strconv.Itoa(sess.ClientID), p.Username, rest)
		if target == player.BroadcastTarget {
			s.SendAll(out)
			return
		}
		s.Send(target, out)
		if target != sess.ClientID {
			s.Send(sess.ClientID, out)
		}
		return
	}

	if l, ok := s.lobbies.ForClient(sess.ClientID); ok {
		s.SendLobby(l, out, 0)
		return
	}
	s.SendAll(out)
}

// lobbyErrMessage maps lobby sentinel errors to client-facing text.
func lobbyErrMessage(err error) string {
	switch err {
	case lobby.ErrNameTaken:
		return "Lobby name already taken."
	case lobby.ErrNameInvalid:
		return "Invalid lobby name."
	case lobby.ErrAlreadyInLobby:
		return "Already in a lobby."
	case lobby.ErrNoSuchLobby:
		return "No such lobby."
	case lobby.ErrLobbyFull:
		return "Lobby is full."
	case lobby.ErrLobbyRunning:
		return "Game already running."
	case lobby.ErrNotRunning:
		return "No running game."
	default:
		return "Request failed."
	}
}
