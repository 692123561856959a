package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeCommand(t *testing.T) {
	got, err := EncodeCommand("clock")
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}
	if string(got) != "clock" {
		t.Errorf("EncodeCommand(\"clock\") = %q, want %q", got, "clock")
	}
}

func TestEncodeCommandKeepsBytes(t *testing.T) {
	got, err := EncodeCommand(" clock\n")
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}
	if string(got) != " clock\n" {
		t.Errorf("EncodeCommand() = %q, want %q", got, " clock\n")
	}
}

func TestEncodeCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    error
	}{
		{"empty", "", ErrEmptyCommand},
		{"whitespace only", "  \t", ErrEmptyCommand},
		{"too long", strings.Repeat("a", MaxCommandBytes+1), ErrCommandTooLong},
		{"invalid utf8", "clo\xffck", ErrInvalidUTF8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeCommand(tt.command)
			if !errors.Is(err, tt.want) {
				t.Errorf("EncodeCommand(%q) error = %v, want %v", tt.command, err, tt.want)
			}
		})
	}
}

func TestEncodeCommandAtLimit(t *testing.T) {
	cmd := strings.Repeat("a", MaxCommandBytes)
	got, err := EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}
	if len(got) != MaxCommandBytes {
		t.Errorf("len = %d, want %d", len(got), MaxCommandBytes)
	}
}

func TestEncodeCommandMultibyte(t *testing.T) {
	got, err := EncodeCommand("héllo")
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}
	if len(got) != 6 {
		t.Errorf("len = %d, want 6 (UTF-8 bytes)", len(got))
	}
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"plain", []byte("ok"), "ok"},
		{"nul padded", []byte("clock\x00\x00\x00"), "clock"},
		{"invalid utf8", []byte{'a', 0xff, 'b'}, "a�b"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeMessage(tt.in); got != tt.want {
				t.Errorf("DecodeMessage(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
