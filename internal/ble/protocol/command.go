// Package protocol implements the Retroboard command wire format: one plain
// UTF-8 command per characteristic write, no framing and no length prefix.
package protocol

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxCommandBytes is the largest value a single GATT attribute write can carry.
const MaxCommandBytes = 512

var (
	// ErrEmptyCommand is returned for empty or whitespace-only commands.
	ErrEmptyCommand = errors.New("protocol: empty command")
	// ErrCommandTooLong is returned for commands over MaxCommandBytes.
	ErrCommandTooLong = errors.New("protocol: command too long")
	// ErrInvalidUTF8 is returned for commands that are not valid UTF-8.
	ErrInvalidUTF8 = errors.New("protocol: command is not valid UTF-8")
)

// EncodeCommand returns the bytes written to the command characteristic for
// command, which are the command's UTF-8 bytes unchanged. Blank commands are
// rejected.
func EncodeCommand(command string) ([]byte, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ErrEmptyCommand
	}
	if !utf8.ValidString(command) {
		return nil, ErrInvalidUTF8
	}
	if len(command) > MaxCommandBytes {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrCommandTooLong, len(command), MaxCommandBytes)
	}
	return []byte(command), nil
}

// DecodeMessage renders a notification payload for display. Invalid UTF-8 is
// replaced and trailing NUL padding from fixed-size firmware buffers is cut.
func DecodeMessage(data []byte) string {
	s := strings.ToValidUTF8(string(data), "�")
	s = strings.TrimRight(s, "\x00")
	return strings.TrimSpace(s)
}
