// Package protocol implements the Buddler wire codec: one packet per
// LF-terminated line, a fixed 5-byte opcode, and payload fields joined
// by the U+2551 delimiter.
package protocol

import (
	"fmt"
	"strings"
)

// Delimiter separates payload fields. It is a single non-ASCII
// codepoint so it can never collide with a validated field.
const Delimiter = "║"

// OpcodeLen is the fixed opcode width in bytes. Tags with a natural
// length below five are right-padded with spaces.
const OpcodeLen = 5

type Opcode string

const (
	OpLogin       Opcode = "LOGIN"
	OpDisconnect  Opcode = "DISCO"
	OpGetName     Opcode = "GETNM"
	OpSetName     Opcode = "SETNM"
	OpGetLobbies  Opcode = "GETLO"
	OpCreateLobby Opcode = "CRELO"
	OpJoinLobby   Opcode = "JOINL"
	OpLobbyInfo   Opcode = "LOBCI"
	OpLeaveLobby  Opcode = "LEAVL"
	OpReady       Opcode = "READY"
	OpMap         Opcode = "BRMAP"
	OpBlockDamage Opcode = "BDMG "
	OpSpawnItem   Opcode = "SPAWN"
	OpItemUsed    Opcode = "ITMUS"
	OpChatToSrv   Opcode = "CHATS"
	OpChatToCli   Opcode = "CHATC"
	OpServerFull  Opcode = "FULL "
)

var known = map[Opcode]bool{
	OpLogin:       true,
	OpDisconnect:  true,
	OpGetName:     true,
	OpSetName:     true,
	OpGetLobbies:  true,
	OpCreateLobby: true,
	OpJoinLobby:   true,
	OpLobbyInfo:   true,
	OpLeaveLobby:  true,
	OpReady:       true,
	OpMap:         true,
	OpBlockDamage: true,
	OpSpawnItem:   true,
	OpItemUsed:    true,
	OpChatToSrv:   true,
	OpChatToCli:   true,
	OpServerFull:  true,
}

// Known reports whether op is part of the protocol. Unknown opcodes are
// logged and ignored by the dispatcher, never treated as wire errors.
func Known(op Opcode) bool {
	return known[op]
}

// Packet is one decoded wire message. ClientID is filled by the server
// on ingress (the sender) and names the target on egress. Validation
// problems accumulate on the packet instead of aborting control flow;
// handlers must check HasErrors before acting.
type Packet struct {
	Opcode   Opcode
	Payload  string
	ClientID int

	errs []string
}

func New(op Opcode, fields ...string) *Packet {
	return &Packet{Opcode: op, Payload: Join(fields...)}
}

func (p *Packet) AddError(msg string) {
	p.errs = append(p.errs, msg)
}

func (p *Packet) HasErrors() bool {
	return len(p.errs) > 0
}

func (p *Packet) Errors() []string {
	return p.errs
}

// ErrorPayload renders the accumulated errors as an ERR reply payload.
func (p *Packet) ErrorPayload() string {
	return Join(append([]string{"ERR"}, p.errs...)...)
}

// Fields splits the payload at every delimiter. An empty payload yields
// a single empty field, matching String.split semantics on the client.
func (p *Packet) Fields() []string {
	return strings.Split(p.Payload, Delimiter)
}

func Join(fields ...string) string {
	return strings.Join(fields, Delimiter)
}

// Encode frames p as opcode+payload+LF.
func Encode(p *Packet) []byte {
	buf := make([]byte, 0, OpcodeLen+len(p.Payload)+1)
	buf = append(buf, p.Opcode...)
	buf = append(buf, p.Payload...)
	return append(buf, '\n')
}

// Decode parses a single line (without the trailing LF). Lines shorter
// than an opcode are wire errors. Leading payload whitespace is
// trimmed, so Decode(Encode(p)) == p for any packet whose payload does
// not start with whitespace.
func Decode(line []byte) (*Packet, error) {
	if len(line) < OpcodeLen {
		return nil, fmt.Errorf("frame too short: %d bytes", len(line))
	}
	return &Packet{
		Opcode:  Opcode(line[:OpcodeLen]),
		Payload: strings.TrimLeft(string(line[OpcodeLen:]), " \t"),
	}, nil
}
