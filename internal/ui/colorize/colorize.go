package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// NoColorEnv disables every colorizer in this package when set to any
// non-empty value.
const NoColorEnv = "BININFO_NO_COLOR"

const (
	addrColor  = "\033[38;2;79;79;79m"
	bytesColor = "\033[38;2;110;110;110m"
	headColor  = "\033[38;2;255;95;135m"
	reset      = "\033[0m"

	// byteColumns is the width of the raw-byte field: 16 slots of "xx ".
	byteColumns = 16 * 3
)

// Enabled reports whether colour output is allowed.
func Enabled() bool {
	return os.Getenv(NoColorEnv) == ""
}

// getAssemblyLexer returns an x86 assembly lexer with fallbacks
func getAssemblyLexer() chroma.Lexer {
	for _, name := range []string{"nasm", "gas", "GAS"} {
		if lexer := lexers.Get(name); lexer != nil {
			return chroma.Coalesce(lexer)
		}
	}
	return nil
}

// getDisasmStyle returns the disassembly style with fallbacks
func getDisasmStyle() *chroma.Style {
	for _, name := range []string{DisasmDark.Name, "dracula", "monokai"} {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Assembly highlights a block of assembly text.
func Assembly(code string) (string, error) {
	if !Enabled() {
		return code, nil
	}
	lexer := getAssemblyLexer()
	if lexer == nil {
		return code, nil
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}
	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code, err
	}
	return buf.String(), nil
}

// InstructionLine colorizes one listing line of the form
//
//	0x0000000000001000: 48 31 c0 ...          xor      rax, rax
//
// The address is gray, the raw bytes dim and the instruction text is
// highlighted by chroma. Lines in any other shape go through chroma whole.
func InstructionLine(line string) string {
	if !Enabled() {
		return line
	}

	addr, rest, ok := strings.Cut(line, ": ")
	if !ok || !isAddress(addr) {
		return colorizeFullLine(line)
	}

	if len(rest) < byteColumns {
		return colorizeFullLine(line)
	}
	raw, text := rest[:byteColumns], rest[byteColumns:]

	return fmt.Sprintf("%s%s:%s %s%s%s%s",
		addrColor, addr, reset,
		bytesColor, raw, reset,
		colorizeFullLine(text))
}

// Header renders a listing heading such as "[*] Disassembly of .text section:".
func Header(line string) string {
	if !Enabled() {
		return line
	}
	return headColor + line + reset
}

func isAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") || len(s) == 2 {
		return false
	}
	for i := 2; i < len(s); i++ {
		if !isHexChar(s[i]) {
			return false
		}
	}
	return true
}

// isHexChar checks if a character is a hexadecimal digit
func isHexChar(ch byte) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

// colorizeFullLine uses Chroma to colorize an assembly line
func colorizeFullLine(line string) string {
	out, err := Assembly(line)
	if err != nil {
		return line
	}
	return strings.TrimSuffix(out, "\n")
}

// StripANSI removes ANSI escape sequences.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			result.WriteRune(r)
		}
	}
	return result.String()
}
