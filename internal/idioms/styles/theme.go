// Package styles holds the colours and lipgloss/glamour styles used by the
// idioms command line.
package styles

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

// VS Code dark colours shared by the markdown and lipgloss styles.
const (
	Foreground = "#D4D4D4"
	Comment    = "#6A9955"
	InlineCode = "#EACD53"
	Number     = "#B5CEA8"
	Variable   = "#9CDCFE"
	LineNumber = "#858585"
)

var (
	// Address renders the start address of a match.
	Address = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	// Function renders demangled function names.
	Function = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	// Operand renders the dividend or multiplicand.
	Operand = lipgloss.NewStyle().Foreground(lipgloss.Color(Variable))

	// Constant renders a recovered constant.
	Constant = lipgloss.NewStyle().Foreground(lipgloss.Color(Number)).Bold(true)

	// Unresolved renders a constant that could not be recovered.
	Unresolved = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Cheeky.Hex())).Italic(true)

	// Sequence renders the mnemonic summary of a match.
	Sequence = lipgloss.NewStyle().Foreground(lipgloss.Color(LineNumber))

	// Header renders section titles in plain text output.
	Header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
)

// Operators colours each operation symbol.
var Operators = map[string]lipgloss.Style{
	"/":  lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Malibu.Hex())).Bold(true),
	"/u": lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Malibu.Hex())),
	"%":  lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Charple.Hex())).Bold(true),
	"%u": lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Charple.Hex())),
	"*":  lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Guac.Hex())).Bold(true),
}

// Operator returns the style for symbol, falling back to plain text.
func Operator(symbol string) lipgloss.Style {
	if s, ok := Operators[symbol]; ok {
		return s
	}
	return lipgloss.NewStyle()
}
