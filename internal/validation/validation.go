// Package validation checks wire payload fields before any handler
// acts on them.
package validation

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/buddlerjoe/buddlerd/internal/protocol"
)

const (
	MaxUsernameLen  = 16
	MaxLobbyNameLen = 24
)

var delimiterRune, _ = utf8.DecodeRuneInString(protocol.Delimiter)

// IsExtendedASCII reports whether every rune of s maps through code
// page 437 to a byte in 0x20–0xFE and is not the field delimiter.
// Control characters and the delimiter itself can never appear inside
// a field.
func IsExtendedASCII(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r == delimiterRune {
			return false
		}
		b, ok := charmap.CodePage437.EncodeRune(r)
		if !ok || b < 0x20 || b > 0xFE {
			return false
		}
	}
	return true
}

// IsValidUsername enforces 1–16 codepoints of extended ASCII with no
// leading '@' (reserved for whisper targets).
func IsValidUsername(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < 1 || n > MaxUsernameLen {
		return false
	}
	if strings.HasPrefix(s, "@") {
		return false
	}
	return IsExtendedASCII(s)
}

func IsValidLobbyName(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < 1 || n > MaxLobbyNameLen {
		return false
	}
	return IsExtendedASCII(s)
}

// ParseInt32 parses a signed 32-bit decimal field.
func ParseInt32(s string) (int, bool) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return int(v), true
}

var itemTypes = map[string]bool{
	"DYNAMITE": true,
	"HEART":    true,
	"STAR":     true,
	"ICE":      true,
}

func IsValidItemType(s string) bool {
	return itemTypes[s]
}
