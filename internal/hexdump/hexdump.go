// Package hexdump renders byte ranges as fixed-width rows of hex octets
// followed by an ASCII gutter.
//
//	48 65 6c 6c 6f 00                                        Hello.
//
// Every row reserves room for BytesPerRow octets, so the gutter starts in
// the same column whether or not the row is full.
package hexdump

import (
	"bufio"
	"io"
	"strings"

	"bininfo/internal/loader"
)

// BytesPerRow is the number of octets rendered per row.
const BytesPerRow = 16

const (
	cellWidth = 3 // " %02x"
	gutterSep = "  "
)

// GutterColumn is the zero-based column at which the ASCII gutter starts.
const GutterColumn = BytesPerRow*cellWidth + len(gutterSep)

// Options controls rendering.
type Options struct {
	// Legacy widens the printable range to 32..127 inclusive, which is what
	// older tooling emitted. The default range is 32..126.
	Legacy bool
}

const hexDigits = "0123456789abcdef"

func (o Options) printable(b byte) bool {
	if o.Legacy {
		return b >= 32 && b <= 127
	}
	return b >= 32 && b <= 126
}

// RowCount returns ceil(n / BytesPerRow).
func RowCount(n int) int {
	return (n + BytesPerRow - 1) / BytesPerRow
}

// Row renders at most BytesPerRow bytes of data as a single line without a
// trailing newline.
func (o Options) Row(data []byte) string {
	if len(data) > BytesPerRow {
		data = data[:BytesPerRow]
	}
	var sb strings.Builder
	sb.Grow(GutterColumn + BytesPerRow)
	for _, b := range data {
		sb.WriteByte(' ')
		sb.WriteByte(hexDigits[b>>4])
		sb.WriteByte(hexDigits[b&0xf])
	}
	for i := len(data); i < BytesPerRow; i++ {
		sb.WriteString("   ")
	}
	sb.WriteString(gutterSep)
	for _, b := range data {
		if o.printable(b) {
			sb.WriteByte(b)
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

// Rows renders data as RowCount(len(data)) lines. Empty input yields no rows.
func (o Options) Rows(data []byte) []string {
	rows := make([]string, 0, RowCount(len(data)))
	for off := 0; off < len(data); off += BytesPerRow {
		end := min(off+BytesPerRow, len(data))
		rows = append(rows, o.Row(data[off:end]))
	}
	return rows
}

// Write streams the rows of data to w, one per line.
func (o Options) Write(w io.Writer, data []byte) error {
	bw := bufio.NewWriter(w)
	for off := 0; off < len(data); off += BytesPerRow {
		end := min(off+BytesPerRow, len(data))
		if _, err := bw.WriteString(o.Row(data[off:end])); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Section renders the contents of s with default options.
func Section(s *loader.Section) []string {
	return Options{}.Rows(s.Bytes())
}

// Dump writes the contents of s to w with default options.
func Dump(w io.Writer, s *loader.Section) error {
	return Options{}.Write(w, s.Bytes())
}
