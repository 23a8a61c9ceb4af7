package detectors

import (
	"github.com/charmbracelet/log"

	"idioms/internal/analysis"
	"idioms/internal/anonymize"
	"idioms/internal/pattern"
)

// UnsignedDivisionDetector recognises x / c for unsigned x.
type UnsignedDivisionDetector struct {
	idiom
}

// NewUnsignedDivisionDetector creates a detector over the given templates.
func NewUnsignedDivisionDetector(templates []pattern.Template, tables Tables, logger *log.Logger) *UnsignedDivisionDetector {
	return &UnsignedDivisionDetector{newIdiom(pattern.UnsignedDivision, templates, tables, logger, "reg_1")}
}

func (d *UnsignedDivisionDetector) Search(res anonymize.Result) *analysis.Match {
	m, w := d.match(res)
	if m == nil {
		return nil
	}
	m.Operation = analysis.DivisionUnsigned
	if w.highShift() {
		return nil
	}
	m.Constant = d.reconstruct(w)
	return m
}

func (d *UnsignedDivisionDetector) reconstruct(w *window) *int64 {
	consts := w.constants()
	if len(consts) == 0 {
		return nil
	}
	if len(consts) == 1 || len(w.insts) == 1 && w.insts[0].Mnemonic == "shr" {
		n, ok := w.constant(consts[0])
		if !ok {
			return nil
		}
		v, ok := pow2(n)
		if !ok {
			return nil
		}
		return &v
	}

	i := w.last(mulMnemonics...)
	if i < 0 {
		return nil
	}
	m, ok := w.multiplier(i)
	if !ok {
		d.logger.Debug("no multiplier", "addr", w.insts[0].Address)
		return nil
	}
	m = unsignedMagic(m)
	power := w.shiftSum(false, "shr")

	if !w.preShifted(i) {
		if q, ok := lookup(d.tables.Unsigned, m, power); ok {
			return &q
		}
	}
	if q, ok := d.signedFallback(w, m, power); ok {
		return &q
	}
	d.logger.Debug("magic not in table", "magic", m, "power", power)
	return nil
}
