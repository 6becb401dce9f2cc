package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/dustin/go-humanize"

	"bininfo/internal/bininfo/styles"
	"bininfo/internal/disasm"
	"bininfo/internal/hexdump"
	"bininfo/internal/loader"
	"bininfo/internal/ui/colorize"
)

type viewMode int

const (
	viewSummary viewMode = iota
	viewSections
	viewSymbols
	viewDisasm
	viewHex
)

// cycle is the tab order; viewHex is only reached from the sections list.
var cycle = []viewMode{viewSummary, viewSections, viewSymbols, viewDisasm}

type sectionItem struct {
	section *loader.Section
}

func (i sectionItem) FilterValue() string { return i.section.Name }

type symbolItem struct {
	sym loader.Symbol
}

func (i symbolItem) FilterValue() string { return i.sym.Name }

// itemDelegate renders both list kinds on a single line.
type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	indicator := " "
	addrStyle := styles.Address
	if index == m.Index() {
		indicator = ">"
		addrStyle = styles.AddressSelected
	}

	switch i := listItem.(type) {
	case sectionItem:
		s := i.section
		kind := styles.KindData
		if s.Kind == loader.KindCode {
			kind = styles.KindCode
		}
		fmt.Fprintf(w, " %s  %s  %-20s %s  %s",
			indicator,
			addrStyle.Render(fmt.Sprintf("%016x", s.VMA)),
			s.Name,
			kind.Render(s.Kind.String()),
			humanize.IBytes(s.Size))
	case symbolItem:
		fmt.Fprintf(w, " %s  %s  %-40s %s",
			indicator,
			addrStyle.Render(fmt.Sprintf("%016x", i.sym.Addr)),
			i.sym.Name,
			styles.Flags.Render(i.sym.Type.String()))
	}
}

type model struct {
	viewport     viewport.Model
	sectionsList list.Model
	symbolsList  list.Model
	disasmView   viewport.Model
	hexView      viewport.Model
	spinner      spinner.Model
	mode         viewMode
	filepath     string
	opts         *options
	color        bool

	bin           *loader.Binary
	loadErr       error
	disasmErr     error
	digest        string
	loadingBinary bool
	loadingDigest bool
	width         int
	height        int
}

// Message types
type digestCalculatedMsg struct {
	digest string
}

type binaryMsg struct {
	bin    *loader.Binary
	stream disasm.Stream
	err    error
	// disasmErr is kept apart from err: a decode failure does not
	// invalidate the loaded binary.
	disasmErr error
}

// Commands
func calculateDigestCmd(path string) tea.Cmd {
	return func() tea.Msg {
		digest, _, err := fileDigest(path)
		if err != nil {
			return digestCalculatedMsg{digest: fmt.Sprintf("error: %v", err)}
		}
		return digestCalculatedMsg{digest: digest}
	}
}

func loadBinaryCmd(path string, o *options) tea.Cmd {
	return func() tea.Msg {
		bin, err := o.load(path)
		if err != nil {
			return binaryMsg{err: err}
		}
		stream, derr := disasm.Disassemble(bin, o.disasmOptions(bin, false))
		return binaryMsg{bin: bin, stream: stream, disasmErr: derr}
	}
}

func newList(title string) list.Model {
	l := list.New([]list.Item{}, itemDelegate{}, 80, 24)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Title = title
	l.Styles.Title = styles.ListTitle
	l.SetShowHelp(true)
	return l
}

func newViewport() viewport.Model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)
	return vp
}

func NewModel(path string, o *options) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	m := model{
		viewport:      newViewport(),
		sectionsList:  newList("Sections"),
		symbolsList:   newList("Symbols"),
		disasmView:    newViewport(),
		hexView:       newViewport(),
		spinner:       s,
		mode:          viewSummary,
		filepath:      path,
		opts:          o,
		color:         (o.cfg == nil || !o.cfg.NoColor) && colorize.Enabled(),
		loadingBinary: true,
		loadingDigest: true,
		width:         80,
		height:        24,
	}
	m.updateContent()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		calculateDigestCmd(m.filepath),
		loadBinaryCmd(m.filepath, m.opts),
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case digestCalculatedMsg:
		m.digest = msg.digest
		m.loadingDigest = false
		m.updateContent()
		return m, nil

	case binaryMsg:
		m.loadingBinary = false
		m.loadErr = msg.err
		m.disasmErr = msg.disasmErr
		if msg.err != nil {
			slog.Debug("TUI load failed", "file", m.filepath, "error", msg.err)
		} else {
			m.bin = msg.bin
			m.updateLists()
			m.updateDisasm(msg.stream)
		}
		m.updateContent()
		return m, nil

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		if m.loadingDigest || m.loadingBinary {
			m.updateContent()
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			for _, vp := range []*viewport.Model{&m.viewport, &m.disasmView, &m.hexView} {
				vp.SetWidth(msg.Width)
				vp.SetHeight(msg.Height - 2)
			}
			m.sectionsList.SetWidth(msg.Width)
			m.sectionsList.SetHeight(msg.Height - 2)
			m.symbolsList.SetWidth(msg.Width)
			m.symbolsList.SetHeight(msg.Height - 2)
			m.updateContent()
		}

	case tea.KeyMsg:
		key := msg.String()
		if key == "ctrl+c" || (key == "q" && !m.filtering()) {
			m.unload()
			return m, tea.Quit
		}
		if !m.filtering() {
			switch key {
			case "tab":
				m.setMode(m.step(1))
				return m, nil
			case "shift+tab":
				m.setMode(m.step(-1))
				return m, nil
			case "esc", "backspace":
				if m.mode == viewHex {
					m.setMode(viewSections)
					return m, nil
				}
			case "enter":
				if m.mode == viewSections {
					if item, ok := m.sectionsList.SelectedItem().(sectionItem); ok {
						m.showHex(item.section)
					}
					return m, nil
				}
			}
		}
	}

	switch m.mode {
	case viewSections:
		m.sectionsList, cmd = m.sectionsList.Update(msg)
	case viewSymbols:
		m.symbolsList, cmd = m.symbolsList.Update(msg)
	case viewDisasm:
		m.disasmView, cmd = m.disasmView.Update(msg)
	case viewHex:
		m.hexView, cmd = m.hexView.Update(msg)
	default:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m model) filtering() bool {
	switch m.mode {
	case viewSections:
		return m.sectionsList.FilterState() == list.Filtering
	case viewSymbols:
		return m.symbolsList.FilterState() == list.Filtering
	}
	return false
}

// available reports whether v has anything to show.
func (m model) available(v viewMode) bool {
	if m.bin == nil {
		return v == viewSummary
	}
	switch v {
	case viewSymbols:
		return len(m.bin.Symbols) > 0
	case viewHex:
		return false
	}
	return true
}

// step returns the next available view dir positions away in the tab order.
func (m model) step(dir int) viewMode {
	cur := 0
	for i, v := range cycle {
		if v == m.mode || (m.mode == viewHex && v == viewSections) {
			cur = i
		}
	}
	for range cycle {
		cur = (cur + dir + len(cycle)) % len(cycle)
		if m.available(cycle[cur]) {
			return cycle[cur]
		}
	}
	return viewSummary
}

func (m *model) setMode(v viewMode) {
	if v != viewHex && !m.available(v) {
		return
	}
	m.mode = v
}

func (m *model) showHex(s *loader.Section) {
	opts := hexdump.Options{}
	if m.opts.cfg != nil {
		opts = m.opts.cfg.HexdumpOptions()
	}
	rows := opts.Rows(s.Bytes())
	header := fmt.Sprintf("%s  0x%016x  %s", s.Name, s.VMA, humanize.IBytes(s.Size))
	if m.color {
		header = colorize.Header(header)
	}
	m.hexView.SetContent(header + "\n\n" + strings.Join(rows, "\n"))
	m.hexView.GotoTop()
	m.mode = viewHex
}

func (m *model) unload() {
	if m.bin != nil {
		m.bin.Unload()
	}
}

func (m model) View() string {
	var content string
	switch m.mode {
	case viewSections:
		content = m.sectionsList.View()
	case viewSymbols:
		content = m.symbolsList.View()
	case viewDisasm:
		content = m.disasmView.View()
	case viewHex:
		content = m.hexView.View()
	default:
		content = m.viewport.View()
	}

	var menu string
	switch {
	case m.bin == nil:
		menu = " Q: quit "
	case m.mode == viewSections:
		menu = " Enter: hex dump • /: filter • Tab: cycle • Q: quit "
	case m.mode == viewSymbols:
		menu = " /: filter • Tab: cycle • Q: quit "
	case m.mode == viewHex:
		menu = " Esc: sections • Tab: cycle • Q: quit "
	default:
		menu = " Tab: cycle • Q: quit "
	}

	return content + "\n" + styles.MenuBar.Width(m.width).Render(menu)
}

func (m *model) updateLists() {
	sections := make([]list.Item, 0, len(m.bin.Sections))
	for _, s := range m.bin.Sections {
		sections = append(sections, sectionItem{section: s})
	}
	m.sectionsList.SetItems(sections)

	symbols := make([]list.Item, 0, len(m.bin.Symbols))
	for _, sym := range m.bin.Symbols {
		symbols = append(symbols, symbolItem{sym: sym})
	}
	m.symbolsList.SetItems(symbols)
}

func (m *model) updateDisasm(stream disasm.Stream) {
	var sb strings.Builder
	switch {
	case m.disasmErr != nil:
		sb.WriteString(styles.Error.Render(fmt.Sprintf("Disassembly error: %v", m.disasmErr)))
	case stream == nil:
		sb.WriteString("Nothing to disassemble")
	default:
		header := disasmHeader
		if m.color {
			header = colorize.Header(header)
		}
		sb.WriteString(header)
		for _, inst := range stream {
			line := disasm.Line(inst)
			if m.color {
				line = colorize.InstructionLine(line)
			}
			sb.WriteByte('\n')
			sb.WriteString(line)
		}
	}
	m.disasmView.SetContent(sb.String())
}

func (m *model) updateContent() {
	relPath := m.filepath
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, m.filepath); err == nil {
			relPath = rel
		}
	}

	var lines []string
	lines = append(lines, "; "+relPath)
	switch {
	case m.digest != "":
		lines = append(lines, "; sha256 "+m.digest)
	case m.loadingDigest:
		lines = append(lines, "; Calculating digest...")
	}
	if b := m.bin; b != nil {
		lines = append(lines,
			fmt.Sprintf("; %s/%s (%d bits)", b.TypeLabel, b.ArchLabel, b.Bits),
			fmt.Sprintf("; entry@0x%016x", b.Entry))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# bininfo\n\n```\n%s\n```", strings.Join(lines, "\n"))

	if m.loadErr != nil {
		fmt.Fprintf(&sb, "\n\n**Load failed:** %s", escapeMarkdown(m.loadErr.Error()))
	}
	if b := m.bin; b != nil {
		sb.WriteString("\n\n## Sections\n\n| Name | Kind | VMA | Size |\n|---|---|---|---|\n")
		for _, s := range b.Sections {
			fmt.Fprintf(&sb, "| %s | %s | 0x%016x | %s |\n",
				escapeMarkdown(s.Name), s.Kind, s.VMA, humanize.IBytes(s.Size))
		}
		funcs := 0
		for _, sym := range b.Symbols {
			if sym.Type.Has(loader.SymTypeFunction) {
				funcs++
			}
		}
		fmt.Fprintf(&sb, "\n%d symbols, %d functions\n", len(b.Symbols), funcs)
	}

	if m.loadingBinary {
		fmt.Fprintf(&sb, "\n\n%s Loading binary...", m.spinner.View())
	}
	if m.loadingDigest && m.digest == "" {
		fmt.Fprintf(&sb, "\n\n%s Calculating digest...", m.spinner.View())
	}

	width := m.width
	if width == 0 {
		width = 80
	}
	rendered := styles.Render(sb.String(), width-2, m.color)
	m.viewport.SetContent(lipgloss.NewStyle().MaxWidth(width).Render(strings.TrimSuffix(rendered, "\n")))
}

func escapeMarkdown(s string) string {
	r := strings.NewReplacer("|", "\\|", "`", "\\`", "*", "\\*", "_", "\\_")
	return r.Replace(s)
}
