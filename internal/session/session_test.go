package session

import (
	"bufio"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/buddlerjoe/buddlerd/internal/protocol"
)

func testConfig() Config {
	return Config{MaxFrameBytes: 2048, MalformedLimit: 8, QueueSize: 256}
}

type harness struct {
	sess      *Session
	client    net.Conn
	packets   chan *protocol.Packet
	teardowns chan CloseReason
	tornDown  atomic.Int32
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	server, client := net.Pipe()
	h := &harness{
		client:    client,
		packets:   make(chan *protocol.Packet, 16),
		teardowns: make(chan CloseReason, 4),
	}
	h.sess = New(7, server, cfg, nil,
		func(s *Session, p *protocol.Packet) { h.packets <- p },
		func(s *Session, r CloseReason) {
			h.tornDown.Add(1)
			h.teardowns <- r
		},
	)
	h.sess.Start()
	t.Cleanup(func() {
		client.Close()
		h.sess.Close(ReasonShutdown)
		h.sess.Wait()
	})
	return h
}

func (h *harness) send(t *testing.T, line string) {
	t.Helper()
	h.client.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := h.client.Write([]byte(line)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func (h *harness) recvPacket(t *testing.T) *protocol.Packet {
	t.Helper()
	select {
	case p := <-h.packets:
		return p
	case <-time.After(2 * time.Second):
		t.Fatalf("no packet dispatched")
		return nil
	}
}

func (h *harness) recvTeardown(t *testing.T) CloseReason {
	t.Helper()
	select {
	case r := <-h.teardowns:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("teardown never ran")
		return ""
	}
}

func TestDispatchStampsClientID(t *testing.T) {
	h := newHarness(t, testConfig())

	h.send(t, "LOGINjoe\n")
	p := h.recvPacket(t)
	if p.Opcode != protocol.OpLogin || p.Payload != "joe" {
		t.Fatalf("unexpected packet %+v", p)
	}
	if p.ClientID != 7 {
		t.Fatalf("client id %d, want 7", p.ClientID)
	}
}

func TestCRLFAccepted(t *testing.T) {
	h := newHarness(t, testConfig())

	h.send(t, "GETNM\r\n")
	p := h.recvPacket(t)
	if p.Opcode != protocol.OpGetName || p.Payload != "" {
		t.Fatalf("unexpected packet %+v", p)
	}
}

func TestWriteLoopEncodesFrames(t *testing.T) {
	h := newHarness(t, testConfig())

	if !h.sess.Enqueue(protocol.New(protocol.OpLogin, "OK", "7")) {
		t.Fatalf("enqueue rejected")
	}

	h.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(h.client).ReadString('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	want := "LOGINOK" + protocol.Delimiter + "7\n"
	if line != want {
		t.Fatalf("got %q, want %q", line, want)
	}
}

func TestFrameAtLimitAccepted(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg)

	payload := strings.Repeat("a", cfg.MaxFrameBytes-5)
	h.send(t, "CHATS"+payload+"\n")
	p := h.recvPacket(t)
	if len(p.Payload) != cfg.MaxFrameBytes-5 {
		t.Fatalf("payload truncated to %d bytes", len(p.Payload))
	}
}

func TestOversizedFrameDiscarded(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg)

	h.send(t, "CHATS"+strings.Repeat("a", cfg.MaxFrameBytes+100)+"\n")
	h.send(t, "GETNM\n")

	p := h.recvPacket(t)
	if p.Opcode != protocol.OpGetName {
		t.Fatalf("oversized frame leaked through as %+v", p)
	}
	if h.tornDown.Load() != 0 {
		t.Fatalf("single oversized frame closed the session")
	}
}

func TestMalformedLimitClosesSession(t *testing.T) {
	cfg := testConfig()
	cfg.MalformedLimit = 3
	h := newHarness(t, cfg)

	for i := 0; i < cfg.MalformedLimit; i++ {
		h.send(t, "xx\n")
	}
	if r := h.recvTeardown(t); r != ReasonMalformed {
		t.Fatalf("close reason %q", r)
	}
}

func TestValidFrameResetsMalformedCount(t *testing.T) {
	cfg := testConfig()
	cfg.MalformedLimit = 3
	h := newHarness(t, cfg)

	for round := 0; round < 3; round++ {
		h.send(t, "xx\n")
		h.send(t, "xx\n")
		h.send(t, "GETNM\n")
		h.recvPacket(t)
	}
	if h.tornDown.Load() != 0 {
		t.Fatalf("interleaved valid frames did not reset the counter")
	}
}

func TestTeardownRunsOnce(t *testing.T) {
	h := newHarness(t, testConfig())

	h.sess.Close(ReasonClientQuit)
	h.sess.Close(ReasonReadError)
	h.sess.Close(ReasonShutdown)
	h.sess.Wait()

	if r := h.recvTeardown(t); r != ReasonClientQuit {
		t.Fatalf("close reason %q", r)
	}
	if n := h.tornDown.Load(); n != 1 {
		t.Fatalf("teardown ran %d times", n)
	}
}

func TestPeerDisconnectTearsDown(t *testing.T) {
	h := newHarness(t, testConfig())

	h.client.Close()
	if r := h.recvTeardown(t); r != ReasonReadError {
		t.Fatalf("close reason %q", r)
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	h := newHarness(t, testConfig())

	h.sess.Close(ReasonShutdown)
	if h.sess.Enqueue(protocol.New(protocol.OpGetName)) {
		t.Fatalf("enqueue on closed session accepted")
	}
}
