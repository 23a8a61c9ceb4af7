// Package detectors recovers the constant behind a matched compiler idiom.
// There is one detector per operation family; all of them share the window
// helpers in this file.
package detectors

import (
	"io"
	"io/fs"
	"math"
	"math/bits"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"idioms/internal/analysis"
	"idioms/internal/anonymize"
	"idioms/internal/disasm"
	"idioms/internal/magic"
	"idioms/internal/pattern"
)

// Tables holds the magic number tables shared by the detectors.
type Tables struct {
	Signed   *magic.Table
	Unsigned *magic.Table
}

// LoadTables reads both tables through the store, building them if needed.
func LoadTables(store *magic.Store, max int) (Tables, error) {
	signed, err := store.Load(magic.KindSigned, max)
	if err != nil {
		return Tables{}, err
	}
	unsigned, err := store.Load(magic.KindUnsigned, max)
	if err != nil {
		return Tables{}, err
	}
	return Tables{Signed: signed, Unsigned: unsigned}, nil
}

// New returns the detectors for every family in scan priority order, with
// templates read from fsys.
func New(fsys fs.FS, tables Tables, logger *log.Logger) []analysis.Detector {
	load := func(f pattern.Family) []pattern.Template { return pattern.Load(fsys, f, logger) }
	return []analysis.Detector{
		NewSignedModuloDetector(load(pattern.SignedModulo), tables, logger),
		NewUnsignedModuloDetector(load(pattern.UnsignedModulo), tables, logger),
		NewSignedDivisionDetector(load(pattern.SignedDivision), tables, logger),
		NewUnsignedDivisionDetector(load(pattern.UnsignedDivision), tables, logger),
		NewMultiplicationDetector(load(pattern.Multiplication), logger),
	}
}

// idiom carries the state every family detector shares.
type idiom struct {
	*analysis.TemplateSet
	tables  Tables
	logger  *log.Logger
	operand string // token used when a template names no operand
}

func newIdiom(family pattern.Family, templates []pattern.Template, tables Tables, logger *log.Logger, operand string) idiom {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return idiom{
		TemplateSet: analysis.NewTemplateSet(family, templates),
		tables:      tables,
		logger:      logger.WithPrefix(string(family)),
		operand:     operand,
	}
}

// match searches the templates and resolves the operand. The returned window
// covers the matched instructions only.
func (d *idiom) match(res anonymize.Result) (*analysis.Match, *window) {
	_, m := d.TemplateSet.Search(res.Insts)
	if m == nil {
		return nil, nil
	}
	w := &window{insts: res.Insts[:m.Length], res: res}
	if m.Length < len(res.Insts) {
		w.next = &res.Insts[m.Length]
	}
	tok := m.Sequence.Operand
	if tok == "" {
		tok = d.operand
	}
	m.Operand = w.operand(tok)
	if m.Operand == "" {
		m.Operand = w.operand(anonymize.RegisterPrefix + "0")
	}
	return m, w
}

// window is the matched slice of an anonymized window plus its reverse maps.
type window struct {
	insts []disasm.Instruction
	next  *disasm.Instruction
	res   anonymize.Result
}

func (w *window) operand(tok string) string {
	if v, ok := w.res.Registers[tok]; ok {
		return v
	}
	if v, ok := w.res.Variables[tok]; ok {
		return v
	}
	return w.res.Constants[tok]
}

func (w *window) constant(tok string) (int64, bool) {
	text, ok := w.res.Constants[tok]
	if !ok {
		return 0, false
	}
	return parseConstant(text)
}

func (w *window) register(tok string) (string, bool) {
	reg, ok := w.res.Registers[tok]
	return reg, ok
}

// constants lists the distinct constant tokens used by the matched
// instructions in order of appearance.
func (w *window) constants() []string {
	var out []string
	seen := map[string]bool{}
	for _, inst := range w.insts {
		for _, op := range inst.Operands {
			for _, tok := range constantTokens(op) {
				if !seen[tok] {
					seen[tok] = true
					out = append(out, tok)
				}
			}
		}
	}
	return out
}

func constantTokens(op string) []string {
	var out []string
	for {
		i := strings.Index(op, anonymize.ConstantPrefix)
		if i < 0 {
			return out
		}
		j := i + len(anonymize.ConstantPrefix)
		for j < len(op) && op[j] >= '0' && op[j] <= '9' {
			j++
		}
		out = append(out, op[i:j])
		op = op[j:]
	}
}

func (w *window) index(mnemonics ...string) int {
	for i, inst := range w.insts {
		if isOneOf(inst.Mnemonic, mnemonics) {
			return i
		}
	}
	return -1
}

func (w *window) last(mnemonics ...string) int {
	for i := len(w.insts) - 1; i >= 0; i-- {
		if isOneOf(w.insts[i].Mnemonic, mnemonics) {
			return i
		}
	}
	return -1
}

func (w *window) has(mnemonics ...string) bool {
	return w.index(mnemonics...) >= 0
}

func isOneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// immediate returns the last operand of instruction i if it is a constant.
func (w *window) immediate(i int) (int64, bool) {
	ops := w.insts[i].Operands
	if len(ops) == 0 {
		return 0, false
	}
	return w.constant(ops[len(ops)-1])
}

// shiftSum adds the immediate amounts of the given shift mnemonics. With
// skipSign set, sign extraction shifts by 31 and 63 are left out.
func (w *window) shiftSum(skipSign bool, mnemonics ...string) int {
	power := 0
	for i, inst := range w.insts {
		if !isOneOf(inst.Mnemonic, mnemonics) {
			continue
		}
		n, ok := w.immediate(i)
		if !ok || n < 0 || n > 63 {
			continue
		}
		if skipSign && (n == 31 || n == 63) {
			continue
		}
		power += int(n)
	}
	return power
}

var mulMnemonics = []string{"imul", "mul"}

// multiplier returns the magic number of the multiply at index i, read from
// its immediate or traced back through register moves.
func (w *window) multiplier(i int) (int64, bool) {
	if v, ok := w.immediate(i); ok && len(w.insts[i].Operands) > 1 {
		return v, true
	}
	return w.backtrack(i)
}

// backtrack looks for the immediate loaded into one of the factors of the
// multiply at index i. A one operand multiply also uses the accumulator.
func (w *window) backtrack(i int) (int64, bool) {
	mul := w.insts[i]
	var targets []string
	for _, op := range mul.Operands {
		if reg, ok := w.register(op); ok {
			targets = append(targets, registerFamily(reg))
		}
	}
	if len(mul.Operands) <= 1 {
		targets = append(targets, "a")
	}
	for _, fam := range targets {
		if v, ok := w.trace(i, fam); ok {
			return v, true
		}
	}
	return 0, false
}

// trace walks backwards from instruction i following moves into the
// register family fam until an immediate is loaded.
func (w *window) trace(i int, fam string) (int64, bool) {
	for j := i - 1; j >= 0; j-- {
		inst := w.insts[j]
		if inst.Mnemonic != "mov" && inst.Mnemonic != "movabs" || len(inst.Operands) != 2 {
			continue
		}
		dst, ok := w.register(inst.Operands[0])
		if !ok || registerFamily(dst) != fam {
			continue
		}
		src := inst.Operands[1]
		if v, ok := w.constant(src); ok {
			return v, true
		}
		reg, ok := w.register(src)
		if !ok {
			return 0, false
		}
		fam = registerFamily(reg)
	}
	return 0, false
}

// divide reconstructs a div/idiv idiom. The divisor is traced back from the
// divide operand. When the template ends in the divide, the operation is
// the modulo one only if the remainder register is copied right after.
func (w *window) divide(modulo, division analysis.Operation) (analysis.Operation, *int64) {
	i := w.last("div", "idiv")
	var divisor int64
	ok := false
	if ops := w.insts[i].Operands; len(ops) == 1 {
		if reg, isReg := w.register(ops[0]); isReg {
			divisor, ok = w.trace(i, registerFamily(reg))
		}
	}
	if !ok {
		divisor, ok = w.constant(anonymize.ConstantPrefix + "0")
	}
	op := modulo
	if i == len(w.insts)-1 && !w.remainderCopied() {
		op = division
	}
	if !ok {
		return op, nil
	}
	return op, analysis.Int64(asInt32(divisor))
}

func (w *window) remainderCopied() bool {
	if w.next == nil || w.next.Mnemonic != "mov" || len(w.next.Operands) != 2 {
		return false
	}
	src, ok := w.register(w.next.Operands[1])
	return ok && registerFamily(src) == "d"
}

// parseConstant reads the operand text of a constant: 0x prefixed or h
// suffixed hex, otherwise decimal, with an optional sign. Values that only
// fit as unsigned 64-bit wrap to their two's complement.
func parseConstant(text string) (int64, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var (
		u   uint64
		err error
	)
	switch {
	case strings.HasPrefix(s, "0x"):
		u, err = strconv.ParseUint(s[2:], 16, 64)
	case strings.HasSuffix(s, "h"):
		u, err = strconv.ParseUint(strings.TrimSuffix(s, "h"), 16, 64)
	default:
		u, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, false
	}
	v := int64(u)
	if neg {
		v = -v
	}
	return v, true
}

func asInt32(v int64) int64 { return int64(int32(v)) }

func asUint32(v int64) int64 { return int64(uint32(v)) }

// unsignedMagic undoes the sign extension a decoder applies to a 32-bit
// immediate.
func unsignedMagic(v int64) int64 {
	if v < 0 && v >= math.MinInt32 {
		return asUint32(v)
	}
	return v
}

// lookup tries power and then power+32, for sequences that take the high
// half of the product without an explicit shift.
func lookup(t *magic.Table, m int64, power int) (int64, bool) {
	if d, ok := t.Lookup(m, power); ok {
		return d, true
	}
	return t.Lookup(m, power+32)
}

// lookupSigned also retries a multiplier that is negative as int32, first
// as unsigned and then sign extended.
func lookupSigned(t *magic.Table, m int64, power int) (int64, bool) {
	if d, ok := lookup(t, m, power); ok {
		return d, true
	}
	if int32(m) >= 0 {
		return 0, false
	}
	if d, ok := lookup(t, asUint32(m), power); ok {
		return d, true
	}
	return lookup(t, asInt32(m), power)
}

// pow2 returns 2^n for shift amounts that fit.
func pow2(n int64) (int64, bool) {
	if n < 0 || n > 62 {
		return 0, false
	}
	return 1 << n, true
}

// scale returns m*2^exp when the result is exact and fits 63 bits.
func scale(m int64, exp int) (int64, bool) {
	if m < 0 {
		return 0, false
	}
	if exp < 0 {
		if m&(1<<-exp-1) != 0 {
			return 0, false
		}
		return m >> -exp, true
	}
	if bits.Len64(uint64(m))+exp > 62 {
		return 0, false
	}
	return m << exp, true
}

var registerFamilies = buildRegisterFamilies()

func buildRegisterFamilies() map[string]string {
	families := map[string][]string{
		"a":  {"rax", "eax", "ax", "al", "ah"},
		"b":  {"rbx", "ebx", "bx", "bl", "bh"},
		"c":  {"rcx", "ecx", "cx", "cl", "ch"},
		"d":  {"rdx", "edx", "dx", "dl", "dh"},
		"si": {"rsi", "esi", "si", "sil"},
		"di": {"rdi", "edi", "di", "dil"},
		"sp": {"rsp", "esp", "sp", "spl"},
		"bp": {"rbp", "ebp", "bp", "bpl"},
	}
	out := make(map[string]string)
	for fam, names := range families {
		for _, n := range names {
			out[n] = fam
		}
	}
	for i := 8; i <= 15; i++ {
		r := "r" + strconv.Itoa(i)
		for _, suffix := range []string{"", "d", "w", "b", "l"} {
			out[r+suffix] = r
		}
	}
	return out
}

// registerFamily maps a register to the full register it aliases.
func registerFamily(reg string) string {
	reg = strings.ToLower(reg)
	if fam, ok := registerFamilies[reg]; ok {
		return fam
	}
	return reg
}

// multiplyBack reads the divisor from a second multiply by an immediate, the
// quotient being multiplied back to form a remainder.
func (w *window) multiplyBack() (int64, bool) {
	first := w.index(mulMnemonics...)
	if first < 0 {
		return 0, false
	}
	for i := first + 1; i < len(w.insts); i++ {
		if !isOneOf(w.insts[i].Mnemonic, mulMnemonics) {
			continue
		}
		if len(w.insts[i].Operands) < 2 {
			return 0, false
		}
		return w.immediate(i)
	}
	return 0, false
}

// preShifted reports whether the dividend is shifted right before the
// multiply at index i, as compilers do for even divisors.
func (w *window) preShifted(i int) bool {
	first := w.index("shr")
	return first >= 0 && first < i
}

// highShift reports whether a window without a multiply shifts right by 32
// or more. Such a shift takes the high half of an earlier product and is
// not a division of its own.
func (w *window) highShift() bool {
	if w.has(mulMnemonics...) {
		return false
	}
	i := w.last("shr")
	if i < 0 {
		return false
	}
	n, ok := w.immediate(i)
	return ok && n >= 32
}

// highHalf reports whether the product of a matched trailing multiply is
// next shifted right by 32 or more, which makes it the magic multiply of a
// division rather than a multiplication.
func (w *window) highHalf() bool {
	if len(w.insts) == 0 {
		return false
	}
	last := w.insts[len(w.insts)-1]
	if !isOneOf(last.Mnemonic, mulMnemonics) || len(last.Operands) == 0 {
		return false
	}
	dst := last.Operands[0]
	rest := w.res.Insts[len(w.insts):]
	for j := 0; j < len(rest) && j < highHalfLookahead; j++ {
		inst := rest[j]
		if len(inst.Operands) == 0 || inst.Operands[0] != dst {
			continue
		}
		if inst.Mnemonic != "shr" && inst.Mnemonic != "sar" || len(inst.Operands) != 2 {
			return false
		}
		n, ok := w.constant(inst.Operands[1])
		return ok && n >= 32
	}
	return false
}

// highHalfLookahead bounds how far scheduling may move the high-half shift
// away from its multiply.
const highHalfLookahead = 4

// sameRegister reports whether two register tokens alias the same register.
func (w *window) sameRegister(a, b string) bool {
	ra, ok := w.register(a)
	if !ok {
		return false
	}
	rb, ok := w.register(b)
	return ok && registerFamily(ra) == registerFamily(rb)
}

// signRegister is the register shifted right by 31 or 63 to extract the sign.
func (w *window) signRegister() string {
	for i, inst := range w.insts {
		if inst.Mnemonic != "sar" && inst.Mnemonic != "shr" || len(inst.Operands) != 2 {
			continue
		}
		if n, ok := w.immediate(i); ok && (n == 31 || n == 63) {
			return inst.Operands[0]
		}
	}
	return ""
}
