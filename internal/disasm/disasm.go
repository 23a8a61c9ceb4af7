// Package disasm defines the instruction representation shared by the
// disassembler adapters, the anonymizer and the idiom matcher.
package disasm

import (
	"errors"
	"slices"
	"strings"
)

// TemplateAddress is the address carried by instructions that come from a
// pattern template rather than from a binary.
const TemplateAddress int64 = -1

// ErrUnsupportedArch is returned for binaries that are not x86 or x86-64.
var ErrUnsupportedArch = errors.New("unsupported architecture")

// Instruction is a single disassembled (or template) instruction.
type Instruction struct {
	Address  int64    // virtual address, TemplateAddress for templates
	Mnemonic string   // lowercase mnemonic
	Operands []string // operand text in source order
	Matched  bool     // set once the instruction belongs to a recognised idiom
}

// Equal compares mnemonic and operands. Address and Matched are ignored.
func (i Instruction) Equal(o Instruction) bool {
	return i.Mnemonic == o.Mnemonic && slices.Equal(i.Operands, o.Operands)
}

// Key is a compact form of mnemonic and operands usable as a map key.
func (i Instruction) Key() string {
	if len(i.Operands) == 0 {
		return i.Mnemonic
	}
	return i.Mnemonic + " " + strings.Join(i.Operands, ",")
}

func (i Instruction) String() string {
	if len(i.Operands) == 0 {
		return i.Mnemonic
	}
	return i.Mnemonic + " " + strings.Join(i.Operands, ", ")
}

// Clone returns a copy that does not share the operand slice.
func (i Instruction) Clone() Instruction {
	i.Operands = slices.Clone(i.Operands)
	return i
}

// ParseInstruction splits "mnemonic op, op" text into a template instruction.
func ParseInstruction(text string) Instruction {
	text = strings.TrimSpace(text)
	mnemonic, rest, _ := strings.Cut(text, " ")
	inst := Instruction{Address: TemplateAddress, Mnemonic: strings.ToLower(mnemonic)}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return inst
	}
	for _, op := range strings.Split(rest, ",") {
		if op = strings.TrimSpace(op); op != "" {
			inst.Operands = append(inst.Operands, op)
		}
	}
	return inst
}

// Function is the ordered instruction list of one disassembled function.
type Function struct {
	Name  string
	Addr  uint64
	Insts []Instruction
}

// Source produces the functions of a binary or listing.
type Source interface {
	Functions() ([]Function, error)
}
