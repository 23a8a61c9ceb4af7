package analysis

import (
	"idioms/internal/anonymize"
	"idioms/internal/disasm"
	"idioms/internal/pattern"
)

// Detector recognises the idioms of one operation family.
type Detector interface {
	// Family names the corpus family the detector uses.
	Family() pattern.Family

	// MatchesFirstInstruction is a cheap pre-filter on the anonymized
	// candidate start instruction.
	MatchesFirstInstruction(inst disasm.Instruction) bool

	// Search matches the anonymized window and reconstructs the constant.
	// It returns nil when nothing was recognised.
	Search(res anonymize.Result) *Match
}

// DetectorChain runs detectors in priority order; the first match wins.
type DetectorChain struct {
	detectors []Detector
}

// NewDetectorChain creates a new detector chain
func NewDetectorChain(detectors ...Detector) *DetectorChain {
	return &DetectorChain{
		detectors: detectors,
	}
}

// Detectors returns the chain in priority order.
func (dc *DetectorChain) Detectors() []Detector {
	return dc.detectors
}

// Detect tries every detector at the start of insts. The window is
// anonymized at most once and only after a pre-filter hit.
func (dc *DetectorChain) Detect(insts []disasm.Instruction, window int) *Match {
	if len(insts) == 0 {
		return nil
	}
	head := anonymize.Instruction(insts[0])
	var res *anonymize.Result
	for _, d := range dc.detectors {
		if !d.MatchesFirstInstruction(head) {
			continue
		}
		if res == nil {
			r := anonymize.Anonymize(insts, window)
			res = &r
		}
		if m := d.Search(*res); m != nil {
			return m
		}
	}
	return nil
}
