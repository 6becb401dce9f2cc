package disasm

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"bininfo/internal/hexdump"
)

// ByteSlots is the number of raw-byte columns shown per instruction. It
// matches the hex dump row width so both listings line up.
const ByteSlots = hexdump.BytesPerRow

// MnemonicWidth is the field width the mnemonic is padded to.
const MnemonicWidth = 8

// Line formats inst as
//
//	0x0000000000001000: c3                                              ret
func Line(inst Inst) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "0x%016x: ", inst.Addr)
	sb.WriteString(byteColumns(inst.Bytes))
	fmt.Fprintf(&sb, "%-*s %s", MnemonicWidth, inst.Mnemonic, inst.Operands)
	return sb.String()
}

func byteColumns(raw []byte) string {
	var sb strings.Builder
	sb.Grow(ByteSlots * 3)
	for j := range ByteSlots {
		if j < len(raw) {
			fmt.Fprintf(&sb, "%02x ", raw[j])
		} else {
			sb.WriteString("   ")
		}
	}
	return sb.String()
}

// Lines formats every instruction of s.
func (s Stream) Lines() []string {
	out := make([]string, len(s))
	for i, inst := range s {
		out[i] = Line(inst)
	}
	return out
}

// Write prints one Line per instruction. When color is non-nil it is
// applied to each line before writing.
func (s Stream) Write(w io.Writer, color func(string) string) error {
	bw := bufio.NewWriter(w)
	for _, inst := range s {
		line := Line(inst)
		if color != nil {
			line = color(line)
		}
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return err
		}
	}
	return bw.Flush()
}
