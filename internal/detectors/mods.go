package detectors

import (
	"github.com/charmbracelet/log"

	"idioms/internal/analysis"
	"idioms/internal/anonymize"
	"idioms/internal/pattern"
)

// SignedModuloDetector recognises x % c for signed x.
type SignedModuloDetector struct {
	idiom
}

// NewSignedModuloDetector creates a detector over the given templates.
func NewSignedModuloDetector(templates []pattern.Template, tables Tables, logger *log.Logger) *SignedModuloDetector {
	return &SignedModuloDetector{newIdiom(pattern.SignedModulo, templates, tables, logger, "reg_1")}
}

func (d *SignedModuloDetector) Search(res anonymize.Result) *analysis.Match {
	m, w := d.match(res)
	if m == nil {
		return nil
	}
	m.Operation = analysis.Modulo
	if len(w.constants()) == 0 {
		return m
	}
	// a lone shift is a division and left to the division families
	if len(w.insts) == 1 && w.insts[0].Mnemonic == "shr" {
		return nil
	}
	switch {
	case w.has("div", "idiv"):
		m.Operation, m.Constant = w.divide(analysis.Modulo, analysis.Division)
	case !w.has(mulMnemonics...):
		m.Constant = powerOfTwoModulo(w)
	default:
		m.Constant = d.reconstruct(w)
	}
	return m
}

func (d *SignedModuloDetector) reconstruct(w *window) *int64 {
	if mg, ok := w.multiplier(w.index(mulMnemonics...)); ok {
		power := w.shiftSum(true, "sar", "shr")
		if q, ok := lookupSigned(d.tables.Signed, mg, power); ok {
			return &q
		}
		d.logger.Debug("magic not in table", "magic", mg, "power", power)
	}
	if v, ok := w.multiplyBack(); ok {
		return analysis.Int64(asInt32(v))
	}
	return nil
}

// powerOfTwoModulo reads the mask of a power of two remainder. An or with a
// negative mask (MSVC) or an and with a negative mask (clang) carry -c, an
// and with a positive mask carries c-1.
func powerOfTwoModulo(w *window) *int64 {
	for i, inst := range w.insts {
		if inst.Mnemonic != "or" {
			continue
		}
		if v, ok := w.immediate(i); ok && int32(v) <= 0 {
			return analysis.Int64(-asInt32(v))
		}
	}
	i := w.index("and")
	if i < 0 {
		return nil
	}
	v, ok := w.immediate(i)
	if !ok {
		return nil
	}
	if int32(v) < 0 {
		return analysis.Int64(-asInt32(v))
	}
	return analysis.Int64(v + 1)
}
