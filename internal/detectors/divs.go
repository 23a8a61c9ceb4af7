package detectors

import (
	"github.com/charmbracelet/log"

	"idioms/internal/analysis"
	"idioms/internal/anonymize"
	"idioms/internal/pattern"
)

// SignedDivisionDetector recognises x / c for signed x.
type SignedDivisionDetector struct {
	idiom
}

// NewSignedDivisionDetector creates a detector over the given templates.
func NewSignedDivisionDetector(templates []pattern.Template, tables Tables, logger *log.Logger) *SignedDivisionDetector {
	return &SignedDivisionDetector{newIdiom(pattern.SignedDivision, templates, tables, logger, "reg_1")}
}

func (d *SignedDivisionDetector) Search(res anonymize.Result) *analysis.Match {
	m, w := d.match(res)
	if m == nil {
		return nil
	}
	m.Operation = analysis.Division
	m.Constant = d.reconstruct(w)
	return m
}

func (d *SignedDivisionDetector) reconstruct(w *window) *int64 {
	if len(w.constants()) == 0 {
		return nil
	}
	if !w.has(mulMnemonics...) {
		return powerOfTwoDivision(w)
	}

	m, ok := w.multiplier(w.index(mulMnemonics...))
	if !ok {
		d.logger.Debug("no multiplier", "addr", w.insts[0].Address)
		return nil
	}
	power := w.shiftSum(true, "sar", "shr")
	q, ok := lookupSigned(d.tables.Signed, m, power)
	if !ok {
		d.logger.Debug("magic not in table", "magic", m, "power", power)
		return nil
	}
	// the sign word is subtracted from a positive quotient; any other
	// final subtraction takes the quotient from the sign word
	if sign := w.signRegister(); sign != "" {
		if i := w.last("sub"); i >= 0 && len(w.insts[i].Operands) == 2 && !w.sameRegister(w.insts[i].Operands[1], sign) {
			q = -q
		}
	}
	return &q
}

// powerOfTwoDivision takes the divisor from the final arithmetic shift; a
// trailing neg makes it negative.
func powerOfTwoDivision(w *window) *int64 {
	i := w.last("sar")
	if i < 0 {
		return nil
	}
	n, ok := w.immediate(i)
	if !ok {
		return nil
	}
	v, ok := pow2(n)
	if !ok {
		return nil
	}
	if w.insts[len(w.insts)-1].Mnemonic == "neg" {
		v = -v
	}
	return &v
}
