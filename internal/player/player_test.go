package player

import (
	"testing"
)

func TestAddUniquifiesUsernames(t *testing.T) {
	r := NewRegistry()

	if got := r.Add(1, "joe"); got != "joe" {
		t.Fatalf("first add renamed to %q", got)
	}
	if got := r.Add(2, "joe"); got != "joe1" {
		t.Fatalf("second add got %q, want joe1", got)
	}
	if got := r.Add(3, "joe"); got != "joe2" {
		t.Fatalf("third add got %q, want joe2", got)
	}

	p, ok := r.ByUsername("joe1")
	if !ok || p.ClientID != 2 {
		t.Fatalf("joe1 not resolvable to client 2")
	}
}

func TestRemoveFreesUsername(t *testing.T) {
	r := NewRegistry()
	r.Add(1, "joe")
	r.Remove(1)

	if got := r.Add(2, "joe"); got != "joe" {
		t.Fatalf("freed username not reusable, got %q", got)
	}
	if _, ok := r.ByID(1); ok {
		t.Fatalf("removed player still resolvable")
	}
}

func TestRename(t *testing.T) {
	r := NewRegistry()
	r.Add(1, "joe")
	r.Add(2, "anna")

	if err := r.Rename(1, "anna"); err == nil {
		t.Fatalf("rename to taken name succeeded")
	}
	if err := r.Rename(1, "digger"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if r.Username(1) != "digger" {
		t.Fatalf("rename not applied: %q", r.Username(1))
	}
	if _, ok := r.ByUsername("joe"); ok {
		t.Fatalf("old username still indexed")
	}
	// renaming to your own current name is allowed
	if err := r.Rename(1, "digger"); err != nil {
		t.Fatalf("self-rename failed: %v", err)
	}
}

func TestSetLobbyClearsReady(t *testing.T) {
	r := NewRegistry()
	r.Add(1, "joe")

	r.SetLobby(1, 7)
	p, _ := r.ByID(1)
	p.Ready = true

	r.SetLobby(1, 0)
	if p.Ready {
		t.Fatalf("ready flag survived leaving the lobby")
	}
	if r.LobbyOf(1) != 0 {
		t.Fatalf("lobby reference not cleared")
	}
}

func TestResolveWhisper(t *testing.T) {
	r := NewRegistry()
	r.Add(1, "joe")
	r.Add(2, "joe the digger")

	id, rest, ok := r.ResolveWhisper("@joe hello")
	if !ok || id != 1 || rest != "hello" {
		t.Fatalf("got (%d, %q, %v)", id, rest, ok)
	}

	// longest matching username wins
	id, rest, ok = r.ResolveWhisper("@joe the digger hello")
	if !ok || id != 2 || rest != "hello" {
		t.Fatalf("got (%d, %q, %v)", id, rest, ok)
	}

	// exact name with empty body
	id, rest, ok = r.ResolveWhisper("@joe")
	if !ok || id != 1 || rest != "" {
		t.Fatalf("got (%d, %q, %v)", id, rest, ok)
	}

	id, rest, ok = r.ResolveWhisper("@all everyone listen")
	if !ok || id != BroadcastTarget || rest != "everyone listen" {
		t.Fatalf("got (%d, %q, %v)", id, rest, ok)
	}

	if _, _, ok := r.ResolveWhisper("@nobody hi"); ok {
		t.Fatalf("unknown target resolved")
	}
	if _, _, ok := r.ResolveWhisper("plain message"); ok {
		t.Fatalf("non-whisper resolved")
	}
	// a prefix of a username is not a match
	if _, _, ok := r.ResolveWhisper("@joehello"); ok {
		t.Fatalf("partial-word target resolved")
	}
}

func TestInitialLives(t *testing.T) {
	r := NewRegistry()
	r.Add(1, "joe")
	p, _ := r.ByID(1)
	if p.Lives != InitialLives {
		t.Fatalf("got %d lives, want %d", p.Lives, InitialLives)
	}
}
