// Package lobby manages named player groups, their lifecycle state
// machine, and the per-lobby world map. The registry exclusively owns
// lobbies; everyone else refers to them by id.
package lobby

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"github.com/buddlerjoe/buddlerd/internal/gamemap"
	"github.com/buddlerjoe/buddlerd/internal/protocol"
)

const (
	// MaxMembers caps lobby size; MinToStart is the member count
	// required before the all-ready transition can fire.
	MaxMembers = 8
	MinToStart = 2
)

var (
	ErrNameTaken      = errors.New("lobby name already taken")
	ErrNameInvalid    = errors.New("lobby name invalid")
	ErrAlreadyInLobby = errors.New("client already in a lobby")
	ErrNoSuchLobby    = errors.New("no such lobby")
	ErrLobbyFull      = errors.New("lobby is full")
	ErrLobbyRunning   = errors.New("lobby already running")
	ErrNotRunning     = errors.New("lobby has no running game")
)

type Status int

const (
	StatusOpen Status = iota
	StatusRunning
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusClosed:
		return "CLOSED"
	default:
		return "OPEN"
	}
}

// ItemTypes are the possible QMARK drops, rolled uniformly from the
// lobby's RNG stream.
var ItemTypes = [...]string{"DYNAMITE", "HEART", "STAR", "ICE"}

// Item is one spawned world item, tracked until consumed.
type Item struct {
	ID       int
	Type     string
	X, Y, Z  int
	OwnerID  int
	Consumed bool
}

// Lobby holds membership, readiness, and (while RUNNING) the map. Its
// mutex covers all of those; the lock order is always registry lock →
// lobby lock → player registry lock.
type Lobby struct {
	ID   int
	Name string

	mu       sync.Mutex
	hostID   int
	status   Status
	members  []int // join order
	ready    map[int]bool
	world    *gamemap.Map
	rng      *rand.Rand
	items    map[int]*Item
	nextItem int
}

func newLobby(id int, name string, hostID int) *Lobby {
	return &Lobby{
		ID:      id,
		Name:    name,
		hostID:  hostID,
		status:  StatusOpen,
		members: []int{hostID},
		ready:   map[int]bool{hostID: false},
		items:   make(map[int]*Item),
	}
}

func (l *Lobby) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *Lobby) HostID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hostID
}

func (l *Lobby) Members() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int, len(l.members))
	copy(out, l.members)
	return out
}

func (l *Lobby) MemberCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.members)
}

func (l *Lobby) HasMember(clientID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.indexOf(clientID) >= 0
}

func (l *Lobby) indexOf(clientID int) int {
	for i, id := range l.members {
		if id == clientID {
			return i
		}
	}
	return -1
}

// Map returns the lobby's world, nil while OPEN.
func (l *Lobby) Map() *gamemap.Map {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.world
}

// MapPacket renders the BRMAP payload (width║height║seed║rows…) under
// the lobby lock. Reports false while the lobby has no world.
func (l *Lobby) MapPacket() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.world == nil {
		return "", false
	}
	return protocol.Join(
		strconv.Itoa(l.world.Width),
		strconv.Itoa(l.world.Height),
		strconv.FormatInt(l.world.Seed, 10),
		l.world.PacketString(),
	), true
}

// DamageEntries snapshots the world's accumulated damage for map
// reconciliation after a BRMAP.
func (l *Lobby) DamageEntries() []gamemap.DamageEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.world == nil {
		return nil
	}
	return l.world.DamagePackets()
}

// ToggleReady flips the member's ready flag and reports whether the
// lobby is now eligible to start: OPEN, all ready, enough members.
func (l *Lobby) ToggleReady(clientID int) (ready bool, startable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.indexOf(clientID) < 0 {
		return false, false
	}
	l.ready[clientID] = !l.ready[clientID]

	if l.status != StatusOpen || len(l.members) < MinToStart {
		return l.ready[clientID], false
	}
	for _, id := range l.members {
		if !l.ready[id] {
			return l.ready[clientID], false
		}
	}
	return l.ready[clientID], true
}

// Start transitions OPEN → RUNNING: the world is generated with seed
// and the lobby's RNG stream is derived from it. Racing Start calls
// are safe; only the first one generates.
func (l *Lobby) Start(seed int64, build func(seed int64) (*gamemap.Map, error)) (*gamemap.Map, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status == StatusRunning {
		return l.world, nil
	}
	if l.status == StatusClosed {
		return nil, ErrNoSuchLobby
	}

	world, err := build(seed)
	if err != nil {
		return nil, fmt.Errorf("lobby %d map build: %w", l.ID, err)
	}
	l.world = world
	l.rng = rand.New(rand.NewSource(seed))
	l.status = StatusRunning
	return world, nil
}

// DamageBlock applies digging damage to the lobby's world. The lobby
// lock covers the map, so all mutations funnel through here.
func (l *Lobby) DamageBlock(x, y, amount int) (gamemap.DamageResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.world == nil {
		return gamemap.DamageResult{}, ErrNotRunning
	}
	return l.world.Damage(x, y, amount)
}

// RollItemType picks a QMARK drop uniformly from the lobby RNG stream.
func (l *Lobby) RollItemType() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rng == nil {
		return ItemTypes[0]
	}
	return ItemTypes[l.rng.Intn(len(ItemTypes))]
}

// SpawnItem records a world item and returns its id.
func (l *Lobby) SpawnItem(itemType string, x, y, z, ownerID int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextItem++
	l.items[l.nextItem] = &Item{
		ID:      l.nextItem,
		Type:    itemType,
		X:       x,
		Y:       y,
		Z:       z,
		OwnerID: ownerID,
	}
	return l.nextItem
}

// ConsumeItem marks an item used. Reports false for unknown or
// already-consumed ids.
func (l *Lobby) ConsumeItem(itemID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.items[itemID]
	if !ok || it.Consumed {
		return false
	}
	it.Consumed = true
	return true
}

// PlayerNamesIDsReadies renders the LOBCI member listing: one
// id║name║ready triple per member in join order. resolve maps a client
// id to its username.
func (l *Lobby) PlayerNamesIDsReadies(resolve func(int) string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	fields := make([]string, 0, len(l.members)*3)
	for _, id := range l.members {
		fields = append(fields,
			strconv.Itoa(id),
			resolve(id),
			strconv.FormatBool(l.ready[id]),
		)
	}
	return protocol.Join(fields...)
}

// nameValid is the structural check for Create; empty names and names
// carrying the field delimiter can never ride the wire.
func nameValid(name string) bool {
	return name != "" && !strings.Contains(name, protocol.Delimiter)
}
