package lobby

import (
	"sort"
	"sync"

	"github.com/buddlerjoe/buddlerd/internal/player"
)

// Registry is the process-wide lobby directory. It enforces name
// uniqueness and keeps the player registry's weak lobby references in
// sync on every membership change.
type Registry struct {
	mu      sync.Mutex
	byID    map[int]*Lobby
	byName  map[string]int
	nextID  int
	players *player.Registry
}

func NewRegistry(players *player.Registry) *Registry {
	return &Registry{
		byID:    make(map[int]*Lobby),
		byName:  make(map[string]int),
		players: players,
	}
}

// Create makes a new OPEN lobby with clientID as host and sole member.
func (r *Registry) Create(name string, clientID int) (*Lobby, error) {
	if !nameValid(name) {
		return nil, ErrNameInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byName[name]; taken {
		return nil, ErrNameTaken
	}
	if r.players.LobbyOf(clientID) != 0 {
		return nil, ErrAlreadyInLobby
	}

	r.nextID++
	l := newLobby(r.nextID, name, clientID)
	r.byID[l.ID] = l
	r.byName[name] = l.ID
	r.players.SetLobby(clientID, l.ID)
	return l, nil
}

func (r *Registry) Get(id int) (*Lobby, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byID[id]
	return l, ok
}

// ForClient resolves the lobby a client currently belongs to.
func (r *Registry) ForClient(clientID int) (*Lobby, bool) {
	id := r.players.LobbyOf(clientID)
	if id == 0 {
		return nil, false
	}
	return r.Get(id)
}

// Join adds a client to an existing lobby.
func (r *Registry) Join(lobbyID, clientID int) (*Lobby, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.byID[lobbyID]
	if !ok {
		return nil, ErrNoSuchLobby
	}
	if r.players.LobbyOf(clientID) != 0 {
		return nil, ErrAlreadyInLobby
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.status == StatusRunning:
		return nil, ErrLobbyRunning
	case l.status == StatusClosed:
		return nil, ErrNoSuchLobby
	case len(l.members) >= MaxMembers:
		return nil, ErrLobbyFull
	}

	l.members = append(l.members, clientID)
	l.ready[clientID] = false
	r.players.SetLobby(clientID, l.ID)
	return l, nil
}

// LeaveResult describes what a Leave changed, so the caller can build
// the right broadcasts after all locks are released.
type LeaveResult struct {
	Left      bool
	LobbyID   int
	Destroyed bool
	NewHostID int
	Remaining []int
}

// Leave removes the client from whatever lobby it is in. Idempotent:
// leaving while in no lobby reports Left=false. The last member out
// destroys the lobby; a departing host hands the role to the next
// member by join order.
func (r *Registry) Leave(clientID int) LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	lobbyID := r.players.LobbyOf(clientID)
	if lobbyID == 0 {
		return LeaveResult{}
	}
	l, ok := r.byID[lobbyID]
	if !ok {
		r.players.SetLobby(clientID, 0)
		return LeaveResult{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexOf(clientID)
	if idx < 0 {
		r.players.SetLobby(clientID, 0)
		return LeaveResult{}
	}

	l.members = append(l.members[:idx], l.members[idx+1:]...)
	delete(l.ready, clientID)
	r.players.SetLobby(clientID, 0)

	res := LeaveResult{Left: true, LobbyID: l.ID, NewHostID: l.hostID}

	if len(l.members) == 0 {
		l.status = StatusClosed
		delete(r.byID, l.ID)
		delete(r.byName, l.Name)
		res.Destroyed = true
		res.NewHostID = 0
		return res
	}

	if l.hostID == clientID {
		l.hostID = l.members[0]
		res.NewHostID = l.hostID
	}
	res.Remaining = make([]int, len(l.members))
	copy(res.Remaining, l.members)
	return res
}

// Info is a point-in-time view of one lobby for GETLO listings.
type Info struct {
	ID      int
	Name    string
	Members int
	Status  Status
}

// Snapshot lists all lobbies. The registry lock is held only while
// gathering; formatting happens on the caller's copy.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	lobbies := make([]*Lobby, 0, len(r.byID))
	for _, l := range r.byID {
		lobbies = append(lobbies, l)
	}
	r.mu.Unlock()

	infos := make([]Info, 0, len(lobbies))
	for _, l := range lobbies {
		l.mu.Lock()
		infos = append(infos, Info{
			ID:      l.ID,
			Name:    l.Name,
			Members: len(l.members),
			Status:  l.status,
		})
		l.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
