package detectors

import (
	"math"

	"github.com/charmbracelet/log"

	"idioms/internal/analysis"
	"idioms/internal/anonymize"
	"idioms/internal/pattern"
)

// MultiplicationDetector recognises x * c lowered to lea, add and imul
// sequences. Each template carries the expression giving c.
type MultiplicationDetector struct {
	idiom
}

// NewMultiplicationDetector creates a detector over the given templates.
func NewMultiplicationDetector(templates []pattern.Template, logger *log.Logger) *MultiplicationDetector {
	return &MultiplicationDetector{newIdiom(pattern.Multiplication, templates, Tables{}, logger, "reg_0")}
}

func (d *MultiplicationDetector) Search(res anonymize.Result) *analysis.Match {
	m, w := d.match(res)
	if m == nil {
		return nil
	}
	m.Operation = analysis.Multiplication
	if w.highHalf() {
		d.logger.Debug("multiply feeds a high-half shift", "addr", m.Address)
		return nil
	}

	values := make(map[string]int64)
	for _, tok := range w.constants() {
		if v, ok := w.constant(tok); ok {
			values[tok] = multiplicand(v)
		}
	}
	v, err := pattern.Eval(m.Sequence.Expr, values)
	if err != nil {
		d.logger.Warn("cannot evaluate constant", "addr", m.Address, "expr", m.Sequence.Expr, "err", err)
		return m
	}
	m.Constant = &v
	return m
}

// multiplicand reads a non-negative 32-bit immediate as a signed one.
func multiplicand(v int64) int64 {
	if v >= 0 && v <= math.MaxUint32 {
		return asInt32(v)
	}
	return v
}
