package analysis

import (
	"slices"

	"idioms/internal/disasm"
	"idioms/internal/pattern"
)

// TemplateSet holds the templates of one family, longest first, and an
// index of their first instructions.
type TemplateSet struct {
	family    pattern.Family
	templates []pattern.Template
	heads     map[string]struct{}
}

// NewTemplateSet orders templates by descending length. Templates of equal
// length keep their relative order.
func NewTemplateSet(family pattern.Family, templates []pattern.Template) *TemplateSet {
	ts := &TemplateSet{
		family:    family,
		templates: slices.Clone(templates),
		heads:     make(map[string]struct{}),
	}
	slices.SortStableFunc(ts.templates, func(a, b pattern.Template) int { return b.Len() - a.Len() })
	for _, t := range ts.templates {
		if t.Len() > 0 {
			ts.heads[t.Insts[0].Key()] = struct{}{}
		}
	}
	return ts
}

// Family returns the family tag.
func (ts *TemplateSet) Family() pattern.Family { return ts.family }

// Len is the number of templates.
func (ts *TemplateSet) Len() int { return len(ts.templates) }

// Template returns the i-th template in search order.
func (ts *TemplateSet) Template(i int) pattern.Template { return ts.templates[i] }

// MatchesFirstInstruction reports whether an anonymized instruction can start
// one of the templates.
func (ts *TemplateSet) MatchesFirstInstruction(inst disasm.Instruction) bool {
	_, ok := ts.heads[inst.Key()]
	return ok
}

// Search returns the index of the longest template that is a prefix of the
// anonymized window and a Match covering it, or -1 and nil.
func (ts *TemplateSet) Search(window []disasm.Instruction) (int, *Match) {
	for i, t := range ts.templates {
		if len(window) < t.Len() {
			continue
		}
		if prefixEqual(t.Insts, window) {
			return i, &Match{Address: window[0].Address, Length: t.Len(), Sequence: t}
		}
	}
	return -1, nil
}

func prefixEqual(tmpl, window []disasm.Instruction) bool {
	for j := range tmpl {
		if !tmpl[j].Equal(window[j]) {
			return false
		}
	}
	return true
}
