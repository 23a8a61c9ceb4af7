package detectors

import (
	"github.com/charmbracelet/log"

	"idioms/internal/analysis"
	"idioms/internal/anonymize"
	"idioms/internal/pattern"
)

// UnsignedModuloDetector recognises x % c for unsigned x.
type UnsignedModuloDetector struct {
	idiom
}

// NewUnsignedModuloDetector creates a detector over the given templates.
func NewUnsignedModuloDetector(templates []pattern.Template, tables Tables, logger *log.Logger) *UnsignedModuloDetector {
	return &UnsignedModuloDetector{newIdiom(pattern.UnsignedModulo, templates, tables, logger, "reg_1")}
}

func (d *UnsignedModuloDetector) Search(res anonymize.Result) *analysis.Match {
	m, w := d.match(res)
	if m == nil {
		return nil
	}
	m.Operation = analysis.ModuloUnsigned
	if len(w.constants()) == 0 {
		return m
	}
	switch {
	case w.has("div", "idiv"):
		m.Operation, m.Constant = w.divide(analysis.ModuloUnsigned, analysis.DivisionUnsigned)
	case !w.has(mulMnemonics...):
		// without a power of two mask this is not a remainder
		c, ok := maskModulo(w)
		if !ok {
			return nil
		}
		m.Constant = &c
	default:
		m.Constant = d.reconstruct(w)
	}
	return m
}

func (d *UnsignedModuloDetector) reconstruct(w *window) *int64 {
	if v, ok := w.multiplyBack(); ok {
		return &v
	}
	i := w.index(mulMnemonics...)
	mg, ok := w.multiplier(i)
	if !ok {
		d.logger.Debug("no multiplier", "addr", w.insts[0].Address)
		return nil
	}
	mg = unsignedMagic(mg)
	power := w.shiftSum(false, "shr")

	if !w.preShifted(i) {
		if q, ok := lookup(d.tables.Unsigned, mg, power); ok {
			return &q
		}
	}
	if q, ok := d.signedFallback(w, mg, power); ok {
		return &q
	}
	d.logger.Debug("magic not in table", "magic", mg, "power", power)
	return nil
}

// maskModulo reads c from an and with c-1. The mask must be one less than a
// power of two.
func maskModulo(w *window) (int64, bool) {
	i := w.index("and")
	if i < 0 {
		return 0, false
	}
	v, ok := w.immediate(i)
	if !ok || v < 0 {
		return 0, false
	}
	c := v + 1
	if c < 2 || c&(c-1) != 0 {
		return 0, false
	}
	return c, true
}
