package cmd

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bininfo/internal/config"
	"bininfo/internal/loader"
	"bininfo/internal/loader/loadertest"
	"bininfo/internal/ui/colorize"
)

func newTestModel(t *testing.T, path string) model {
	t.Helper()
	t.Setenv(colorize.NoColorEnv, "1")
	o := &options{cfg: config.Default(), family: loader.Auto}
	m := NewModel(path, o)

	next, _ := m.Update(loadBinaryCmd(path, o)())
	m = next.(model)
	next, _ = m.Update(calculateDigestCmd(path)())
	m = next.(model)
	t.Cleanup(m.unload)
	return m
}

func TestModelLoad(t *testing.T) {
	m := newTestModel(t, loadertest.WriteELF(t, withSymbols()))

	require.NoError(t, m.loadErr)
	require.NotNil(t, m.bin)
	assert.False(t, m.loadingBinary)
	assert.False(t, m.loadingDigest)
	assert.Len(t, m.digest, 64)
	assert.Len(t, m.sectionsList.Items(), 2)
	assert.Len(t, m.symbolsList.Items(), 2)

	view := m.View()
	assert.Contains(t, view, "bininfo")
	assert.Contains(t, view, "Tab: cycle")
}

func TestModelLoadFailure(t *testing.T) {
	m := newTestModel(t, loadertest.Write(t, "notes.txt", []byte("not a binary")))

	require.Error(t, m.loadErr)
	assert.Nil(t, m.bin)
	assert.Equal(t, viewSummary, m.step(1))
	assert.Contains(t, m.View(), "Q: quit")
}

func TestModelCycle(t *testing.T) {
	m := newTestModel(t, loadertest.WriteELF(t, withSymbols()))

	var got []viewMode
	for range cycle {
		m.setMode(m.step(1))
		got = append(got, m.mode)
	}
	assert.Equal(t, []viewMode{viewSections, viewSymbols, viewDisasm, viewSummary}, got)

	m.setMode(m.step(-1))
	assert.Equal(t, viewDisasm, m.mode)
}

func TestModelCycleSkipsEmptySymbols(t *testing.T) {
	m := newTestModel(t, loadertest.WriteELF(t, loadertest.MinimalX86_64()))

	m.setMode(viewSections)
	m.setMode(m.step(1))
	assert.Equal(t, viewDisasm, m.mode)

	m.setMode(viewSymbols)
	assert.Equal(t, viewDisasm, m.mode)
}

func TestModelHexDump(t *testing.T) {
	m := newTestModel(t, loadertest.WriteELF(t, loadertest.MinimalX86_64()))

	m.showHex(m.bin.Sections[1])
	assert.Equal(t, viewHex, m.mode)
	assert.Contains(t, m.View(), "hi.")

	// Tab from the hex view continues after the sections list.
	assert.Equal(t, viewDisasm, m.step(1))
}

func TestModelDisasmView(t *testing.T) {
	m := newTestModel(t, loadertest.WriteELF(t, withSymbols()))

	m.setMode(viewDisasm)
	view := m.View()
	assert.Contains(t, view, disasmHeader)
	assert.Contains(t, view, "ret")
}

func TestModelResize(t *testing.T) {
	m := newTestModel(t, loadertest.WriteELF(t, loadertest.MinimalX86_64()))

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(model)
	assert.Equal(t, 120, m.width)
	assert.Equal(t, 40, m.height)
}
