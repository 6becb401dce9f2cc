package styles

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

// Styles shared by the interactive browser.
var (
	MenuBar = lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1)

	ListTitle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		MarginLeft(2)

	Address         = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	AddressSelected = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	Spinner         = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))

	KindCode = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Guac.Hex()))
	KindData = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Malibu.Hex()))
	Flags    = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Squid.Hex()))
	Error    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)
