package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"bininfo/internal/loader"
)

// Decoder turns the bytes at the start of code into one instruction located
// at pc. It never reads past len(code).
type Decoder interface {
	Decode(code []byte, pc uint64) (Inst, error)
}

// Options configures decoding.
type Options struct {
	Syntax Syntax
	// Symbols, when set, are used to name direct branch and call targets.
	Symbols []loader.Symbol
}

// NewDecoder returns a decoder for the given architecture and word width.
func NewDecoder(arch loader.Arch, bits int, opts Options) (Decoder, error) {
	if arch != loader.X86 {
		return nil, fmt.Errorf("%w: architecture %s", ErrDecoderInit, arch)
	}
	switch bits {
	case 16, 32, 64:
	default:
		return nil, fmt.Errorf("%w: %d-bit x86", ErrDecoderInit, bits)
	}
	return &x86Decoder{
		mode:   bits,
		syntax: opts.Syntax,
		lookup: symbolLookup(opts.Symbols),
	}, nil
}

type x86Decoder struct {
	mode   int
	syntax Syntax
	lookup x86asm.SymLookup
}

func (d *x86Decoder) Decode(code []byte, pc uint64) (Inst, error) {
	in, err := x86asm.Decode(code, d.mode)
	if err != nil {
		return Inst{}, err
	}
	if in.Len <= 0 || in.Len > len(code) {
		return Inst{}, fmt.Errorf("decoder reported length %d with %d bytes left", in.Len, len(code))
	}

	var text string
	if d.syntax == GNU {
		text = x86asm.GNUSyntax(in, pc, d.lookup)
	} else {
		text = x86asm.IntelSyntax(in, pc, d.lookup)
	}
	mnemonic, operands := splitInst(text)

	raw := make([]byte, in.Len)
	copy(raw, code)
	return Inst{
		Addr:     pc,
		Len:      in.Len,
		Bytes:    raw,
		Mnemonic: mnemonic,
		Operands: operands,
	}, nil
}

var prefixes = map[string]bool{
	"lock": true, "rep": true, "repe": true, "repz": true, "repne": true, "repnz": true,
	"bnd": true, "notrack": true, "xacquire": true, "xrelease": true,
	"data16": true, "data32": true, "addr16": true, "addr32": true, "rex": true, "rex.w": true,
}

// splitInst separates the mnemonic (with leading prefixes) from the operand
// text of a formatted instruction.
func splitInst(text string) (mnemonic, operands string) {
	rest := strings.TrimSpace(text)
	var parts []string
	for {
		tok, tail, _ := strings.Cut(rest, " ")
		parts = append(parts, tok)
		rest = strings.TrimSpace(tail)
		if !prefixes[strings.ToLower(tok)] || rest == "" {
			break
		}
	}
	return strings.ToLower(strings.Join(parts, " ")), rest
}

// symbolLookup names exact address matches. Static entries win over dynamic
// ones with the same address since they come first in the merged list.
func symbolLookup(syms []loader.Symbol) x86asm.SymLookup {
	byAddr := make(map[uint64]string)
	for _, s := range syms {
		if s.Addr == 0 || s.Name == "" || s.Type.Has(loader.SymTypeDebug) {
			continue
		}
		if _, ok := byAddr[s.Addr]; !ok {
			byAddr[s.Addr] = s.Name
		}
	}
	return func(addr uint64) (string, uint64) {
		if name, ok := byAddr[addr]; ok {
			return name, addr
		}
		return "", 0
	}
}
