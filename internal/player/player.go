// Package player owns the process-wide player registry. Players are
// referenced everywhere else by client id only; the registry is the
// single place an id resolves to a record.
package player

import (
	"fmt"
	"strings"
	"sync"
)

const InitialLives = 2

// BroadcastTarget is the distinguished whisper target for "@all".
const BroadcastTarget = -1

type Player struct {
	ClientID int
	Username string
	LobbyID  int
	Ready    bool
	Lives    int
}

// Registry maps client ids and usernames to player records. Ids are
// allocated by the acceptor, monotonically and never reused within a
// process lifetime; the registry only indexes them.
type Registry struct {
	byID   map[int]*Player
	byName map[string]int
	mu     sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[int]*Player),
		byName: make(map[string]int),
	}
}

// Add registers a player under the session's client id. A username
// already in use gets a numeric suffix appended until it is unique;
// the name actually assigned is returned.
func (r *Registry) Add(clientID int, username string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := username
	for suffix := 1; ; suffix++ {
		if _, taken := r.byName[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s%d", username, suffix)
	}

	p := &Player{
		ClientID: clientID,
		Username: name,
		Lives:    InitialLives,
	}
	r.byID[clientID] = p
	r.byName[name] = clientID
	return name
}

func (r *Registry) Remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[id]; ok {
		delete(r.byName, p.Username)
		delete(r.byID, id)
	}
}

func (r *Registry) ByID(id int) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

func (r *Registry) ByUsername(name string) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

// Rename changes a player's username. Unlike Add it does not
// uniquify; a taken name is an error.
func (r *Registry) Rename(id int, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("no such client: %d", id)
	}
	if other, taken := r.byName[name]; taken && other != id {
		return fmt.Errorf("username already taken: %s", name)
	}
	delete(r.byName, p.Username)
	p.Username = name
	r.byName[name] = id
	return nil
}

func (r *Registry) Username(id int) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.byID[id]; ok {
		return p.Username
	}
	return ""
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// SetLobby records the lobby a player belongs to (0 = none). The lobby
// package drives this; the record is a weak back-reference only.
func (r *Registry) SetLobby(id, lobbyID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[id]; ok {
		p.LobbyID = lobbyID
		if lobbyID == 0 {
			p.Ready = false
		}
	}
}

func (r *Registry) LobbyOf(id int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.byID[id]; ok {
		return p.LobbyID
	}
	return 0
}

// ResolveWhisper resolves the "@name" prefix of a chat line. It
// returns the matched client id, the message remainder, and whether a
// target was found. "@all" resolves to BroadcastTarget. Usernames may
// contain spaces, so the longest registered username matching a prefix
// of the text wins.
func (r *Registry) ResolveWhisper(text string) (int, string, bool) {
	if !strings.HasPrefix(text, "@") {
		return 0, text, false
	}
	body := text[1:]

	if body == "all" || strings.HasPrefix(body, "all ") {
		return BroadcastTarget, strings.TrimPrefix(strings.TrimPrefix(body, "all"), " "), true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	bestID, bestLen := 0, 0
	for name, id := range r.byName {
		if len(name) <= bestLen || !strings.HasPrefix(body, name) {
			continue
		}
		if len(body) == len(name) || body[len(name)] == ' ' {
			bestID, bestLen = id, len(name)
		}
	}
	if bestLen == 0 {
		return 0, text, false
	}
	rest := strings.TrimPrefix(body[bestLen:], " ")
	return bestID, rest, true
}
