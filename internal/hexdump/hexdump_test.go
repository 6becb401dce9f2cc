package hexdump

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bininfo/internal/loader"
	"bininfo/internal/loader/loadertest"
)

func sequence(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte('A' + i%26)
	}
	return out
}

func TestRowsAlignment(t *testing.T) {
	for _, size := range []int{0, 1, 16, 17, 33} {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			data := sequence(size)
			rows := Options{}.Rows(data)
			require.Len(t, rows, RowCount(size))
			assert.Equal(t, (size+15)/16, len(rows))

			consumed := 0
			for _, row := range rows {
				n := min(BytesPerRow, size-consumed)
				assert.Equal(t, gutterSep, row[GutterColumn-len(gutterSep):GutterColumn])
				assert.Equal(t, string(data[consumed:consumed+n]), row[GutterColumn:])
				assert.Len(t, row, GutterColumn+n)
				consumed += n
			}
			assert.Equal(t, size, consumed)
		})
	}
}

func TestRowFormat(t *testing.T) {
	row := Options{}.Row([]byte("Hi\x00\xff"))
	want := " 48 69 00 ff" + strings.Repeat("   ", 12) + "  " + "Hi.."
	assert.Equal(t, want, row)
}

func TestPrintableBounds(t *testing.T) {
	data := []byte{31, 32, 126, 127, 128, 255}

	assert.Equal(t, ". ~...", Options{}.Rows(data)[0][GutterColumn:])
	assert.Equal(t, ". ~\x7f..", Options{Legacy: true}.Rows(data)[0][GutterColumn:])
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Options{}.Write(&buf, sequence(17)))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, GutterColumn, strings.Index(lines[0], "ABCD"))
	assert.Equal(t, GutterColumn, strings.Index(lines[1], "Q"))

	buf.Reset()
	require.NoError(t, Options{}.Write(&buf, nil))
	assert.Empty(t, buf.String())
}

func TestSection(t *testing.T) {
	bin, err := loader.Load(loadertest.WriteELF(t, loadertest.MinimalX86_64()))
	require.NoError(t, err)
	defer bin.Unload()

	rows := Section(bin.Section(".data"))
	require.Len(t, rows, 1)
	assert.Equal(t, " 68 69 00"+strings.Repeat("   ", 13)+"  hi.", rows[0])

	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, bin.CodeSection()))
	assert.Equal(t, " c3"+strings.Repeat("   ", 15)+"  .\n", buf.String())
}
