package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idioms/internal/analysis"
	"idioms/internal/disasm"
	"idioms/internal/pattern"
	"idioms/internal/ui/colorize"
)

func template(lines ...string) pattern.Template {
	var t pattern.Template
	for _, l := range lines {
		t.Insts = append(t.Insts, disasm.ParseInstruction(l))
	}
	return t
}

func fixture() ([]disasm.Function, []analysis.Match) {
	fns := []disasm.Function{{
		Name: "_ZN3foo3barEv",
		Addr: 0x10,
		Insts: []disasm.Instruction{
			{Address: 0x10, Mnemonic: "mov", Operands: []string{"eax", "edi"}},
			{Address: 0x12, Mnemonic: "shr", Operands: []string{"eax", "0x3"}},
			{Address: 0x15, Mnemonic: "lea", Operands: []string{"eax", "[rdi+rdi*4]"}},
			{Address: 0x18, Mnemonic: "ret"},
		},
	}}
	matches := []analysis.Match{
		{
			Address: 0x10, Length: 2, Operation: analysis.DivisionUnsigned, Operand: "edi",
			Constant: analysis.Int64(8), Sequence: template("mov reg_0, reg_1", "shr reg_0, const_0"),
			Function: "_ZN3foo3barEv",
		},
		{
			Address: 0x15, Length: 1, Operation: analysis.Multiplication, Operand: "rdi",
			Constant: analysis.Int64(5), Sequence: template("lea reg_0, [reg_1+reg_1*const_0]"),
			Function: "_ZN3foo3barEv",
		},
		{
			Address: 0x40, Length: 1, Operation: analysis.Modulo, Operand: "ecx",
			Sequence: template("and reg_0, const_0"),
		},
	}
	return fns, matches
}

func TestWriteJSON(t *testing.T) {
	_, matches := fixture()
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, matches))
	assert.JSONEq(t, `{
		"16": {"operation": "division unsigned", "constant": 8, "operand": "edi"},
		"21": {"operation": "multiplication", "constant": 5, "operand": "rdi"},
		"64": {"operation": "modulo", "constant": null, "operand": "ecx"}
	}`, buf.String())
}

func TestSortByConstant(t *testing.T) {
	_, matches := fixture()
	sorted := SortByConstant(matches)
	got := make([]int64, 0, len(sorted))
	for _, m := range sorted {
		got = append(got, m.Address)
	}
	assert.Equal(t, []int64{0x40, 0x15, 0x10}, got)
	assert.Equal(t, int64(0x10), matches[0].Address, "input order untouched")
}

func TestWriteListing(t *testing.T) {
	fns, matches := fixture()
	var buf bytes.Buffer
	require.NoError(t, WriteListing(&buf, matches, Options{}))
	assert.Equal(t, strings.Join([]string{
		"Match at 0x00000040: ecx % unknown (and)",
		"Match at 0x00000015: rdi * 5 (lea)",
		"Match at 0x00000010: edi /u 8 (mov; shr)",
	}, "\n")+"\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteListing(&buf, matches[:1], Options{Full: true, Index: NewIndex(fns)}))
	out := buf.String()
	assert.Contains(t, out, "; foo::bar()")
	assert.Contains(t, out, "00000010  mov eax, edi")
	assert.Contains(t, out, "00000012  shr eax, 0x3")
	assert.NotContains(t, out, "lea")
}

func TestStyledLine(t *testing.T) {
	_, matches := fixture()
	for _, m := range matches {
		assert.Equal(t, m.String(), colorize.StripANSI(StyledLine(m)))
	}
}

func TestIndexInstructions(t *testing.T) {
	fns, matches := fixture()
	idx := NewIndex(fns)
	assert.Len(t, idx.Instructions(matches[0]), 2)
	assert.Nil(t, idx.Instructions(matches[2]))

	m := matches[1]
	m.Length = 5
	assert.Len(t, idx.Instructions(m), 2, "clamped to the function end")

	var nilIdx *Index
	assert.Nil(t, nilIdx.Instructions(m))
}

func TestSummarize(t *testing.T) {
	_, matches := fixture()
	s := Summarize(matches)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Unresolved)
	assert.Equal(t, 1, s.Operations[analysis.Multiplication])
	assert.Zero(t, s.Operations[analysis.Division])
}

func TestMarkdown(t *testing.T) {
	fns, matches := fixture()
	md := Markdown(Header{Path: "a.out", Kind: "executable", Digest: "abc", Functions: 1}, matches, NewIndex(fns), true)
	for _, want := range []string{
		"; a.out (executable)",
		"| division unsigned | 1 |",
		"| `0x00000010` | `foo::bar()` | `edi /u 8` | mov; shr |",
		"`ecx % unknown`",
		"```nasm\n00000010  mov eax, edi\n00000012  shr eax, 0x3\n```",
	} {
		assert.Contains(t, md, want)
	}

	empty := Markdown(Header{Path: "x", Kind: "listing"}, nil, nil, false)
	assert.Contains(t, empty, "No idioms found.")
	assert.NotContains(t, empty, "## Constants")

	out, err := RenderMarkdown(md, 100)
	require.NoError(t, err)
	assert.Contains(t, colorize.StripANSI(out), "Summary")
}

func TestDemangle(t *testing.T) {
	assert.Equal(t, "foo::bar()", Demangle("_ZN3foo3barEv"))
	assert.Equal(t, "main", Demangle("main"))

	before, hits := DemangleStats()
	assert.Equal(t, "foo::bar()", Demangle("_ZN3foo3barEv"))
	after, hitsAfter := DemangleStats()
	assert.Equal(t, before, after)
	assert.Equal(t, hits+1, hitsAfter)
}
