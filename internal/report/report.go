// Package report renders scan results for decompiler plugins and terminals.
package report

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"idioms/internal/analysis"
	"idioms/internal/disasm"
)

// Entry is the per-address record written for downstream consumers.
type Entry struct {
	Operation analysis.Operation `json:"operation"`
	Constant  *int64             `json:"constant"`
	Operand   string             `json:"operand"`
}

// Decompiler maps each match start address to its entry. A later match at
// the same address replaces an earlier one.
func Decompiler(matches []analysis.Match) map[int64]Entry {
	out := make(map[int64]Entry, len(matches))
	for _, m := range matches {
		out[m.Address] = Entry{Operation: m.Operation, Constant: m.Constant, Operand: m.Operand}
	}
	return out
}

// WriteJSON writes the Decompiler map as indented JSON with decimal
// address keys in ascending order.
func WriteJSON(w io.Writer, matches []analysis.Match) error {
	bts, err := json.MarshalIndent(Decompiler(matches), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(bts)); err != nil {
		return fmt.Errorf("write JSON: %w", err)
	}
	return nil
}

// SortByConstant returns a copy of matches ordered by constant, unresolved
// constants sorting as zero. Ties keep scan order.
func SortByConstant(matches []analysis.Match) []analysis.Match {
	out := slices.Clone(matches)
	slices.SortStableFunc(out, func(a, b analysis.Match) int {
		return cmp.Compare(constantKey(a), constantKey(b))
	})
	return out
}

func constantKey(m analysis.Match) int64 {
	if m.Constant == nil {
		return 0
	}
	return *m.Constant
}

// Expression renders "operand op constant", e.g. "edi /u 3".
func Expression(m analysis.Match) string {
	return fmt.Sprintf("%s %s %s", m.Operand, m.Operation.Symbol(), m.ConstantString())
}

// FunctionName demangles the function symbol a match was found in.
func FunctionName(m analysis.Match) string {
	if m.Function == "" {
		return "?"
	}
	return Demangle(m.Function)
}

// Index finds the concrete instructions behind a match.
type Index struct {
	fns []disasm.Function
	pos map[int64][2]int // address -> function, instruction index
}

// NewIndex indexes every instruction address of fns.
func NewIndex(fns []disasm.Function) *Index {
	idx := &Index{fns: fns, pos: make(map[int64][2]int)}
	for f, fn := range fns {
		for i, inst := range fn.Insts {
			if _, ok := idx.pos[inst.Address]; !ok {
				idx.pos[inst.Address] = [2]int{f, i}
			}
		}
	}
	return idx
}

// Instructions returns the Length instructions starting at the match
// address, or nil if the address is unknown.
func (idx *Index) Instructions(m analysis.Match) []disasm.Instruction {
	if idx == nil {
		return nil
	}
	p, ok := idx.pos[m.Address]
	if !ok {
		return nil
	}
	insts := idx.fns[p[0]].Insts
	end := min(p[1]+m.Length, len(insts))
	return insts[p[1]:end]
}

// Summary counts matches per operation.
type Summary struct {
	Total      int
	Unresolved int
	Operations map[analysis.Operation]int
}

// Operations lists every operation in report order.
var Operations = []analysis.Operation{
	analysis.Division,
	analysis.DivisionUnsigned,
	analysis.Modulo,
	analysis.ModuloUnsigned,
	analysis.Multiplication,
}

// Summarize counts matches.
func Summarize(matches []analysis.Match) Summary {
	s := Summary{Total: len(matches), Operations: make(map[analysis.Operation]int)}
	for _, m := range matches {
		s.Operations[m.Operation]++
		if !m.Resolved() {
			s.Unresolved++
		}
	}
	return s
}
