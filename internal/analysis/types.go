package analysis

import (
	"fmt"
	"strconv"
	"strings"

	"idioms/internal/pattern"
)

// Operation is the arithmetic operation an idiom implements.
type Operation string

const (
	Division         Operation = "division"
	DivisionUnsigned Operation = "division unsigned"
	Modulo           Operation = "modulo"
	ModuloUnsigned   Operation = "modulo unsigned"
	Multiplication   Operation = "multiplication"
)

// Symbol is the short operator used in listings.
func (o Operation) Symbol() string {
	switch o {
	case Division:
		return "/"
	case DivisionUnsigned:
		return "/u"
	case Modulo:
		return "%"
	case ModuloUnsigned:
		return "%u"
	case Multiplication:
		return "*"
	}
	return "?"
}

// Match is a recognised idiom. A nil Constant means the idiom was recognised
// but its constant could not be recovered.
type Match struct {
	Address   int64
	Length    int
	Operation Operation
	Operand   string
	Constant  *int64
	Sequence  pattern.Template
	Function  string
}

// Resolved reports whether the constant was recovered.
func (m Match) Resolved() bool { return m.Constant != nil }

// ConstantString renders the constant or "unknown".
func (m Match) ConstantString() string {
	if m.Constant == nil {
		return "unknown"
	}
	return strconv.FormatInt(*m.Constant, 10)
}

func (m Match) String() string {
	return fmt.Sprintf("Match at 0x%08x: %s %s %s (%s)",
		m.Address, m.Operand, m.Operation.Symbol(), m.ConstantString(),
		strings.Join(m.Sequence.Mnemonics(), "; "))
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
