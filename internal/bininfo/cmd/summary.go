package cmd

import (
	"bufio"
	"fmt"
	"io"

	"bininfo/internal/disasm"
	"bininfo/internal/loader"
	"bininfo/internal/ui/colorize"
)

const disasmHeader = "[*] Disassembly of .text section:"

// writeSummary prints the load banner, one line per section and, when the
// binary has any symbols, the symbol listing.
func writeSummary(w io.Writer, bin *loader.Binary) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "[*] Loaded binary '%s' %s/%s (%d bits) entry@0x%016x\n",
		bin.Filename, bin.TypeLabel, bin.ArchLabel, bin.Bits, bin.Entry)

	for _, s := range bin.Sections {
		fmt.Fprintf(bw, " 0x%016x %-8d %-20s %s\n", s.VMA, s.Size, s.Name, s.Kind)
	}

	if len(bin.Symbols) > 0 {
		fmt.Fprintln(bw, "[*] Scanned symbol tables:")
		for _, sym := range bin.Symbols {
			fmt.Fprintf(bw, " %-40s 0x%016x %s\n", sym.Name, sym.Addr, functionLabel(sym))
		}
	}
	return bw.Flush()
}

func functionLabel(sym loader.Symbol) string {
	if sym.Type.Has(loader.SymTypeFunction) {
		return "FUNCTION"
	}
	return ""
}

// writeDisasm prints the linear disassembly of the code section. A binary
// without one gets a note on errOut and no error.
func writeDisasm(out, errOut io.Writer, bin *loader.Binary, opts disasm.Options, color bool) error {
	stream, err := disasm.Disassemble(bin, opts)
	if err != nil {
		return fmt.Errorf("disassembly error: %w", err)
	}
	if stream == nil {
		fmt.Fprintln(errOut, "Nothing to disassemble")
		return nil
	}

	header := disasmHeader
	var paint func(string) string
	if color {
		header = colorize.Header(header)
		paint = colorize.InstructionLine
	}
	if _, err := fmt.Fprintln(out, header); err != nil {
		return err
	}
	return stream.Write(out, paint)
}
