package detectors

// signedFallback resolves unsigned multipliers the unsigned table misses,
// trying the shift power as found and with the implicit high-half shift.
func (d *idiom) signedFallback(w *window, m int64, power int) (int64, bool) {
	for _, p := range []int{power, power + 32} {
		if q, ok := d.asSigned(w, m, p); ok {
			return q, true
		}
	}
	return 0, false
}

// asSigned handles multipliers that were pre- or post-shifted by the
// compiler and so do not appear in the unsigned table as emitted.
func (d *idiom) asSigned(w *window, m int64, power int) (int64, bool) {
	if q, ok := d.tables.Signed.Lookup(m, power); ok {
		return q, true
	}
	for i := int64(0); i < 50; i++ {
		if q, ok := d.tables.Unsigned.Lookup(m-i, power+3); ok {
			return q, true
		}
	}
	return d.cornerCases(w, m, power)
}

// cornerStep scales the multiplier by 2^(es*shift+ed), subtracts i for i in
// [from, from+n) and looks the result up in the signed table at
// power + ps*shift + pd. narrow steps only apply to shifts below 32.
type cornerStep struct {
	narrow  bool
	es, ed  int
	from, n int
	ps, pd  int
}

// cornerSteps is tried in order. Steps cover the even divisors 148, 152,
// 168, 224, 228, 280, 336, 584, 608, 672, 720, 1218 and 1344 among others.
var cornerSteps = []cornerStep{
	{narrow: true, es: 1, ed: 0, n: 50, ps: 0, pd: 0},
	{narrow: true, es: 1, ed: -1, n: 50, ps: 0, pd: -1},
	{narrow: true, es: 1, ed: -2, n: 3, ps: -1, pd: 1},
	{narrow: true, es: 1, ed: 2, n: 3, ps: 1, pd: 0},
	{es: 1, ed: 1, from: 1, n: 1, ps: 0, pd: 1},
	{es: 1, ed: 1, n: 8, ps: 1, pd: -2},
	{es: 1, ed: 1, n: 10, ps: 1, pd: -3},
	{es: 0, ed: 2, n: 12, ps: -1, pd: 2},
	{es: 0, ed: 1, n: 3, ps: -1, pd: 1},
	{es: 1, ed: 2, n: 20, ps: 1, pd: -1},
	{es: 1, ed: -2, n: 20, ps: -1, pd: 3},
	{es: 1, ed: -3, n: 25, ps: -1, pd: 3},
}

// cornerCases covers even divisors whose sequence pre-shifts the dividend
// by the amount of the first shr.
func (d *idiom) cornerCases(w *window, m int64, power int) (int64, bool) {
	first := w.index("shr")
	if first < 0 {
		return 0, false
	}
	n, ok := w.immediate(first)
	if !ok || n < 0 || n > 63 {
		return 0, false
	}
	shift := int(n)
	power += shift
	for _, step := range cornerSteps {
		if step.narrow && shift >= 32 {
			continue
		}
		base, ok := scale(m, step.es*shift+step.ed)
		if !ok {
			continue
		}
		p := power + step.ps*shift + step.pd
		for i := step.from; i < step.from+step.n; i++ {
			if q, ok := d.tables.Signed.Lookup(base-int64(i), p); ok {
				return q, true
			}
		}
	}
	return 0, false
}
