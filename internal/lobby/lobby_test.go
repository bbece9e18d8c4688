package lobby

import (
	"strings"
	"testing"

	"github.com/buddlerjoe/buddlerd/internal/gamemap"
	"github.com/buddlerjoe/buddlerd/internal/player"
	"github.com/buddlerjoe/buddlerd/internal/protocol"
)

func testRegistry(t *testing.T, names ...string) (*Registry, *player.Registry) {
	t.Helper()
	players := player.NewRegistry()
	for i, n := range names {
		players.Add(i+1, n)
	}
	return NewRegistry(players), players
}

func buildTestMap(seed int64) (*gamemap.Map, error) {
	return gamemap.New(10, 8, seed, 6, 3, gamemap.DefaultNoiseGenerator())
}

func TestCreateAndJoin(t *testing.T) {
	lobbies, players := testRegistry(t, "joe", "anna")

	l, err := lobbies.Create("diggers", 1)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if l.HostID() != 1 || l.MemberCount() != 1 {
		t.Fatalf("host not sole member")
	}
	if players.LobbyOf(1) != l.ID {
		t.Fatalf("player record not linked to lobby")
	}

	if _, err := lobbies.Create("diggers", 2); err != ErrNameTaken {
		t.Fatalf("duplicate name got %v", err)
	}
	if _, err := lobbies.Create("another", 1); err != ErrAlreadyInLobby {
		t.Fatalf("double membership got %v", err)
	}
	if _, err := lobbies.Create("", 2); err != ErrNameInvalid {
		t.Fatalf("empty name got %v", err)
	}

	joined, err := lobbies.Join(l.ID, 2)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if joined.MemberCount() != 2 || !joined.HasMember(2) {
		t.Fatalf("join did not register member")
	}

	if _, err := lobbies.Join(999, 2); err != ErrNoSuchLobby {
		t.Fatalf("join of missing lobby got %v", err)
	}
}

func TestJoinFullLobby(t *testing.T) {
	names := make([]string, MaxMembers+1)
	for i := range names {
		names[i] = strings.Repeat("x", i+1)
	}
	lobbies, _ := testRegistry(t, names...)

	l, err := lobbies.Create("packed", 1)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	for id := 2; id <= MaxMembers; id++ {
		if _, err := lobbies.Join(l.ID, id); err != nil {
			t.Fatalf("join %d failed: %v", id, err)
		}
	}
	if _, err := lobbies.Join(l.ID, MaxMembers+1); err != ErrLobbyFull {
		t.Fatalf("overfull join got %v", err)
	}
}

func TestLeaveTransfersHost(t *testing.T) {
	lobbies, players := testRegistry(t, "joe", "anna", "ben")

	l, _ := lobbies.Create("diggers", 1)
	lobbies.Join(l.ID, 2)
	lobbies.Join(l.ID, 3)

	res := lobbies.Leave(1)
	if !res.Left || res.Destroyed {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.NewHostID != 2 || l.HostID() != 2 {
		t.Fatalf("host not transferred by join order")
	}
	if players.LobbyOf(1) != 0 {
		t.Fatalf("leaver still linked to lobby")
	}
}

func TestLeaveLastDestroysLobby(t *testing.T) {
	lobbies, _ := testRegistry(t, "joe")

	l, _ := lobbies.Create("diggers", 1)
	res := lobbies.Leave(1)
	if !res.Left || !res.Destroyed {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := lobbies.Get(l.ID); ok {
		t.Fatalf("destroyed lobby still registered")
	}
	if lobbies.Count() != 0 {
		t.Fatalf("registry not empty")
	}

	// name is free again
	if _, err := lobbies.Create("diggers", 1); err != nil {
		t.Fatalf("recreate failed: %v", err)
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	lobbies, _ := testRegistry(t, "joe")
	if res := lobbies.Leave(1); res.Left {
		t.Fatalf("leave without membership reported a change")
	}
}

func TestReadyTransition(t *testing.T) {
	lobbies, _ := testRegistry(t, "joe", "anna")

	l, _ := lobbies.Create("diggers", 1)

	// a lone ready member never starts the game
	if _, startable := l.ToggleReady(1); startable {
		t.Fatalf("lobby startable below minimum size")
	}

	lobbies.Join(l.ID, 2)
	ready, startable := l.ToggleReady(2)
	if !ready {
		t.Fatalf("toggle did not set ready")
	}
	if !startable {
		t.Fatalf("all-ready lobby not startable")
	}

	// toggling off again
	ready, startable = l.ToggleReady(2)
	if ready || startable {
		t.Fatalf("unready member left lobby startable")
	}
}

func TestStartGeneratesWorldOnce(t *testing.T) {
	lobbies, _ := testRegistry(t, "joe", "anna")
	l, _ := lobbies.Create("diggers", 1)
	lobbies.Join(l.ID, 2)

	world, err := l.Start(42, buildTestMap)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if l.Status() != StatusRunning {
		t.Fatalf("status %v after start", l.Status())
	}
	if world.Seed != 42 {
		t.Fatalf("world seed %d", world.Seed)
	}

	again, err := l.Start(77, buildTestMap)
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if again != world {
		t.Fatalf("second start regenerated the world")
	}
}

func TestJoinRunningLobbyRejected(t *testing.T) {
	lobbies, _ := testRegistry(t, "joe", "anna", "ben")
	l, _ := lobbies.Create("diggers", 1)
	lobbies.Join(l.ID, 2)
	if _, err := l.Start(42, buildTestMap); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if _, err := lobbies.Join(l.ID, 3); err != ErrLobbyRunning {
		t.Fatalf("join of running lobby got %v", err)
	}
}

func TestMapPacket(t *testing.T) {
	lobbies, _ := testRegistry(t, "joe", "anna")
	l, _ := lobbies.Create("diggers", 1)

	if _, ok := l.MapPacket(); ok {
		t.Fatalf("open lobby produced a map packet")
	}

	lobbies.Join(l.ID, 2)
	if _, err := l.Start(42, buildTestMap); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	payload, ok := l.MapPacket()
	if !ok {
		t.Fatalf("running lobby has no map packet")
	}
	fields := strings.Split(payload, protocol.Delimiter)
	if fields[0] != "10" || fields[1] != "8" || fields[2] != "42" {
		t.Fatalf("unexpected header fields %v", fields[:3])
	}
	if len(fields) != 3+8 {
		t.Fatalf("got %d fields, want %d", len(fields), 3+8)
	}
}

func TestDamageBlockRequiresRunning(t *testing.T) {
	lobbies, _ := testRegistry(t, "joe", "anna")
	l, _ := lobbies.Create("diggers", 1)

	if _, err := l.DamageBlock(0, 0, 1); err != ErrNotRunning {
		t.Fatalf("got %v, want ErrNotRunning", err)
	}

	lobbies.Join(l.ID, 2)
	if _, err := l.Start(42, buildTestMap); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := l.DamageBlock(0, 0, 1); err != nil {
		t.Fatalf("damage failed: %v", err)
	}
}

func TestItems(t *testing.T) {
	lobbies, _ := testRegistry(t, "joe", "anna")
	l, _ := lobbies.Create("diggers", 1)
	lobbies.Join(l.ID, 2)
	if _, err := l.Start(42, buildTestMap); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	found := false
	for _, it := range ItemTypes {
		if it == l.RollItemType() {
			found = true
		}
	}
	if !found {
		t.Fatalf("rolled item type outside the known set")
	}

	id1 := l.SpawnItem("HEART", 1, 2, 3, 1)
	id2 := l.SpawnItem("STAR", 4, 5, 6, 2)
	if id1 == id2 {
		t.Fatalf("item ids collide")
	}

	if !l.ConsumeItem(id1) {
		t.Fatalf("consume of live item failed")
	}
	if l.ConsumeItem(id1) {
		t.Fatalf("double consume succeeded")
	}
	if l.ConsumeItem(999) {
		t.Fatalf("consume of unknown item succeeded")
	}
}

func TestPlayerNamesIDsReadies(t *testing.T) {
	lobbies, players := testRegistry(t, "joe", "anna")
	l, _ := lobbies.Create("diggers", 1)
	lobbies.Join(l.ID, 2)
	l.ToggleReady(2)

	listing := l.PlayerNamesIDsReadies(players.Username)
	fields := strings.Split(listing, protocol.Delimiter)
	want := []string{"1", "joe", "false", "2", "anna", "true"}
	if len(fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(fields), len(want))
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Fatalf("field %d = %q, want %q", i, fields[i], want[i])
		}
	}
}

func TestSnapshot(t *testing.T) {
	lobbies, _ := testRegistry(t, "joe", "anna")
	lobbies.Create("alpha", 1)
	lobbies.Create("beta", 2)

	infos := lobbies.Snapshot()
	if len(infos) != 2 {
		t.Fatalf("got %d lobbies", len(infos))
	}
	if infos[0].Name != "alpha" || infos[1].Name != "beta" {
		t.Fatalf("snapshot not ordered by id: %+v", infos)
	}
	if infos[0].Members != 1 || infos[0].Status != StatusOpen {
		t.Fatalf("unexpected info %+v", infos[0])
	}
}
