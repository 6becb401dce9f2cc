// Package disasm defines a common instruction representation and walks
// code sections linearly, one decoded instruction after another.
package disasm

import (
	"errors"
	"fmt"
	"strings"
)

// Inst is a decoded instruction.
type Inst struct {
	Addr     uint64 // virtual address of instruction
	Len      int    // encoded length in bytes
	Bytes    []byte // raw encoding, len(Bytes) == Len
	Mnemonic string // lowercase, including any prefixes ("rep movsb")
	Operands string // formatted operand text, may be empty
}

// Stream is a linear sequence of instructions.
type Stream []Inst

// Text returns the mnemonic and operands separated by a space.
func (i Inst) Text() string {
	if i.Operands == "" {
		return i.Mnemonic
	}
	return i.Mnemonic + " " + i.Operands
}

var (
	ErrDecoderInit = errors.New("failed to initialize decoder")
	ErrDecode      = errors.New("disassembly failed")
)

// DecodeError reports where decoding stopped and the decoder's diagnostic.
type DecodeError struct {
	Section string
	Addr    uint64
	Msg     string
}

func (e *DecodeError) Error() string {
	var sb strings.Builder
	sb.WriteString("disassembly error")
	if e.Section != "" {
		sb.WriteString(" in ")
		sb.WriteString(e.Section)
	}
	fmt.Fprintf(&sb, " at %#x: %s", e.Addr, e.Msg)
	return sb.String()
}

func (e *DecodeError) Unwrap() error { return ErrDecode }

// Syntax selects the operand notation.
type Syntax int

const (
	Intel Syntax = iota
	GNU
)

func (s Syntax) String() string {
	if s == GNU {
		return "gnu"
	}
	return "intel"
}

// ParseSyntax accepts "intel", "gnu" or "att". The empty string is Intel.
func ParseSyntax(s string) (Syntax, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "intel":
		return Intel, nil
	case "gnu", "att", "at&t":
		return GNU, nil
	}
	return Intel, fmt.Errorf("unknown syntax %q (want intel or gnu)", s)
}
