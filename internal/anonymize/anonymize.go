// Package anonymize rewrites instruction operands into canonical tokens so
// that instruction windows can be compared against pattern templates.
//
// Stack frame locations become loc_i, numeric literals const_i and register
// names reg_i. Within one call the same concrete text always maps to the
// same token; numbering restarts for every call.
package anonymize

import (
	"fmt"
	"regexp"
	"strings"

	"idioms/internal/disasm"
)

// DefaultWindow is the number of instructions anonymized per attempt.
const DefaultWindow = 25

const (
	VariablePrefix = "loc_"
	ConstantPrefix = "const_"
	RegisterPrefix = "reg_"
)

// frameLocation matches a stack or frame slot such as "dword ptr [rbp-0x4]".
var frameLocation = regexp.MustCompile(`(?i)^(?:(?:byte|word|dword|qword)\s+)?ptr\s+\[\s*[er](?:sp|bp)\s*(?:[-+]\s*(?:0x[0-9a-f]+|[0-9]+)\s*)?\]$`)

// Result is an anonymized window and the reverse maps from token back to
// the original operand text.
type Result struct {
	Insts     []disasm.Instruction
	Variables map[string]string
	Constants map[string]string
	Registers map[string]string
}

// namer hands out tokens of one category.
type namer struct {
	prefix  string
	next    int
	byText  map[string]string
	byToken map[string]string
}

func newNamer(prefix string) *namer {
	return &namer{prefix: prefix, byText: map[string]string{}, byToken: map[string]string{}}
}

func (n *namer) name(text string) string {
	if tok, ok := n.byText[text]; ok {
		return tok
	}
	tok := fmt.Sprintf("%s%d", n.prefix, n.next)
	n.next++
	n.byText[text] = tok
	n.byToken[tok] = text
	return tok
}

// session carries the counters of a single Anonymize call.
type session struct {
	vars, consts, regs *namer
}

func newSession() *session {
	return &session{
		vars:   newNamer(VariablePrefix),
		consts: newNamer(ConstantPrefix),
		regs:   newNamer(RegisterPrefix),
	}
}

// Anonymize rewrites the first window instructions of insts. A window <= 0
// uses DefaultWindow. The input is not modified.
func Anonymize(insts []disasm.Instruction, window int) Result {
	if window <= 0 {
		window = DefaultWindow
	}
	if len(insts) > window {
		insts = insts[:window]
	}
	s := newSession()
	out := make([]disasm.Instruction, 0, len(insts))
	for _, inst := range insts {
		out = append(out, s.instruction(inst))
	}
	return Result{
		Insts:     out,
		Variables: s.vars.byToken,
		Constants: s.consts.byToken,
		Registers: s.regs.byToken,
	}
}

// Instruction anonymizes a single instruction on its own.
func Instruction(inst disasm.Instruction) disasm.Instruction {
	return newSession().instruction(inst)
}

func (s *session) instruction(inst disasm.Instruction) disasm.Instruction {
	ops := make([]string, 0, len(inst.Operands))
	for _, op := range inst.Operands {
		if op == "" {
			continue
		}
		ops = append(ops, s.operand(op))
	}
	return disasm.Instruction{Address: inst.Address, Mnemonic: inst.Mnemonic, Operands: ops}
}

func (s *session) operand(op string) string {
	if frameLocation.MatchString(strings.TrimSpace(op)) {
		return s.vars.name(op)
	}

	var b strings.Builder
	for i := 0; i < len(op); {
		c := op[i]
		switch {
		case isIdentStart(c):
			j := i + 1
			for j < len(op) && isIdentChar(op[j]) {
				j++
			}
			word := op[i:j]
			if IsRegister(word) {
				b.WriteString(s.regs.name(word))
			} else {
				b.WriteString(word)
			}
			i = j
		case isDigit(c) || (c == '-' && i+1 < len(op) && isDigit(op[i+1]) && signPosition(op, i)):
			j := scanNumber(op, i)
			b.WriteString(s.consts.name(op[i:j]))
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// signPosition reports whether a '-' at i is a sign rather than a
// subtraction inside a memory expression.
func signPosition(op string, i int) bool {
	return i == 0 || op[i-1] == '[' || op[i-1] == ' ' && strings.TrimSpace(op[:i]) == ""
}

func scanNumber(op string, i int) int {
	j := i
	if op[j] == '-' {
		j++
	}
	if j+1 < len(op) && op[j] == '0' && (op[j+1] == 'x' || op[j+1] == 'X') && j+2 < len(op) && isHexDigit(op[j+2]) {
		j += 2
		for j < len(op) && isHexDigit(op[j]) {
			j++
		}
		return j
	}
	for j < len(op) && isDigit(op[j]) {
		j++
	}
	return j
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
