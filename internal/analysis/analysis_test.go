package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idioms/internal/anonymize"
	"idioms/internal/disasm"
	"idioms/internal/pattern"
)

func template(lines ...string) pattern.Template {
	t := pattern.Template{}
	for _, l := range lines {
		t.Insts = append(t.Insts, disasm.ParseInstruction(l))
	}
	return t
}

func code(lines ...string) []disasm.Instruction {
	out := make([]disasm.Instruction, 0, len(lines))
	for i, l := range lines {
		inst := disasm.ParseListingInstruction(l)
		inst.Address = int64(0x1000 + 4*i)
		out = append(out, inst)
	}
	return out
}

// lengthDetector reports the template length as the constant.
type lengthDetector struct {
	*TemplateSet
	op Operation
}

func (d *lengthDetector) Search(res anonymize.Result) *Match {
	_, m := d.TemplateSet.Search(res.Insts)
	if m == nil {
		return nil
	}
	m.Operation = d.op
	m.Constant = Int64(int64(m.Length))
	return m
}

func TestTemplateSetLongestMatch(t *testing.T) {
	ts := NewTemplateSet(pattern.SignedDivision, []pattern.Template{
		template("shr reg_0, const_0"),
		template("mov reg_0, reg_1", "shr reg_0, const_0"),
		template("mov reg_0, reg_1"),
		template("mov reg_0, reg_1", "shr reg_0, const_0", "add reg_0, reg_1", "sar reg_0, const_1"),
	})
	require.Equal(t, 4, ts.Len())
	assert.Equal(t, 4, ts.Template(0).Len())

	res := anonymize.Anonymize(code("mov eax, edi", "shr eax, 0x1f", "ret"), 0)
	idx, m := ts.Search(res.Insts)
	require.NotNil(t, m)
	assert.Equal(t, 2, m.Length)
	assert.Equal(t, []string{"mov", "shr"}, ts.Template(idx).Mnemonics())
	assert.Equal(t, int64(0x1000), m.Address)

	// a window shorter than a template cannot match it
	_, m = ts.Search(res.Insts[:1])
	require.NotNil(t, m)
	assert.Equal(t, 1, m.Length)

	_, m = ts.Search(anonymize.Anonymize(code("push rbp"), 0).Insts)
	assert.Nil(t, m)
}

func TestTemplateSetFirstInstruction(t *testing.T) {
	ts := NewTemplateSet(pattern.Multiplication, []pattern.Template{
		template("lea reg_0, [reg_1+reg_1*const_0]"),
		template("imul reg_0, reg_1, const_0"),
	})
	assert.True(t, ts.MatchesFirstInstruction(anonymize.Instruction(code("lea eax, [rdi+rdi*2]")[0])))
	assert.True(t, ts.MatchesFirstInstruction(anonymize.Instruction(code("imul ecx, edx, 0x7")[0])))
	assert.False(t, ts.MatchesFirstInstruction(anonymize.Instruction(code("lea eax, [eax+eax*2]")[0])))
	assert.False(t, ts.MatchesFirstInstruction(anonymize.Instruction(code("ret")[0])))
}

func TestDetectorChainPriority(t *testing.T) {
	first := &lengthDetector{NewTemplateSet(pattern.SignedModulo, []pattern.Template{template("mov reg_0, reg_1", "and reg_0, const_0")}), Modulo}
	second := &lengthDetector{NewTemplateSet(pattern.SignedDivision, []pattern.Template{template("mov reg_0, reg_1")}), Division}
	chain := NewDetectorChain(first, second)
	assert.Len(t, chain.Detectors(), 2)

	m := chain.Detect(code("mov eax, edi", "and eax, 0x7"), 0)
	require.NotNil(t, m)
	assert.Equal(t, Modulo, m.Operation)

	m = chain.Detect(code("mov eax, edi", "ret"), 0)
	require.NotNil(t, m)
	assert.Equal(t, Division, m.Operation)
}

func TestScanFunctionMarksMatches(t *testing.T) {
	det := &lengthDetector{NewTemplateSet(pattern.Multiplication, []pattern.Template{
		template("mov reg_0, reg_1", "add reg_0, reg_0"),
		template("add reg_0, reg_0"),
	}), Multiplication}
	s := &Scanner{Chain: NewDetectorChain(det)}

	fn := disasm.Function{Name: "f", Insts: code("mov eax, edi", "add eax, eax", "add ecx, ecx", "ret")}
	matches := s.ScanFunction(&fn)

	require.Len(t, matches, 2)
	// the add inside the first match does not start a second one
	assert.Equal(t, int64(0x1000), matches[0].Address)
	assert.Equal(t, 2, matches[0].Length)
	assert.Equal(t, int64(0x1008), matches[1].Address)
	assert.Equal(t, "f", matches[1].Function)

	marked := make([]bool, len(fn.Insts))
	for i, inst := range fn.Insts {
		marked[i] = inst.Matched
	}
	assert.Equal(t, []bool{true, true, true, false}, marked)

	// every marked instruction lies in exactly one match
	for i, inst := range fn.Insts {
		n := 0
		for _, m := range matches {
			if inst.Address >= m.Address && inst.Address < m.Address+int64(4*m.Length) {
				n++
			}
		}
		if inst.Matched {
			assert.Equal(t, 1, n, "instruction %d", i)
		} else {
			assert.Zero(t, n, "instruction %d", i)
		}
	}
}

func TestScanFunctionsKeepsOrder(t *testing.T) {
	det := &lengthDetector{NewTemplateSet(pattern.Multiplication, []pattern.Template{template("add reg_0, reg_0")}), Multiplication}
	s := &Scanner{Chain: NewDetectorChain(det), Workers: 3}

	var fns []disasm.Function
	for i := range 10 {
		fns = append(fns, disasm.Function{Name: fmt.Sprintf("f%d", i), Insts: code("add eax, eax", "nop")})
	}
	matches, err := s.ScanFunctions(context.Background(), fns)
	require.NoError(t, err)
	require.Len(t, matches, 10)
	for i, m := range matches {
		assert.Equal(t, fmt.Sprintf("f%d", i), m.Function)
	}
}

func TestScanFunctionsCancelled(t *testing.T) {
	det := &lengthDetector{NewTemplateSet(pattern.Multiplication, nil), Multiplication}
	s := NewScanner(NewDetectorChain(det), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.ScanFunctions(ctx, []disasm.Function{{Name: "f", Insts: code("ret")}})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMatchString(t *testing.T) {
	m := Match{
		Address:   0x401000,
		Operation: DivisionUnsigned,
		Operand:   "edi",
		Constant:  Int64(3),
		Sequence:  template("mov reg_0, reg_1", "mov reg_2, const_0", "imul reg_3, reg_4", "shr reg_3, const_1"),
	}
	assert.Equal(t, "Match at 0x00401000: edi /u 3 (mov; mov; imul; shr)", m.String())

	m.Constant = nil
	m.Operation = Modulo
	assert.Equal(t, "Match at 0x00401000: edi % unknown (mov; mov; imul; shr)", m.String())
	assert.False(t, m.Resolved())
}

func TestOperationSymbol(t *testing.T) {
	tests := map[Operation]string{
		Division:         "/",
		DivisionUnsigned: "/u",
		Modulo:           "%",
		ModuloUnsigned:   "%u",
		Multiplication:   "*",
		Operation("x"):   "?",
	}
	for op, want := range tests {
		assert.Equal(t, want, op.Symbol(), string(op))
	}
}
