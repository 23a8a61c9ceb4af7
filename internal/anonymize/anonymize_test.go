package anonymize

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"idioms/internal/disasm"
)

func insts(lines ...string) []disasm.Instruction {
	out := make([]disasm.Instruction, 0, len(lines))
	for i, l := range lines {
		inst := disasm.ParseListingInstruction(l)
		inst.Address = int64(0x1000 + i)
		out = append(out, inst)
	}
	return out
}

func texts(in []disasm.Instruction) []string {
	out := make([]string, 0, len(in))
	for _, inst := range in {
		out = append(out, inst.String())
	}
	return out
}

func TestAnonymizeDeterministic(t *testing.T) {
	res := Anonymize(insts("mov eax, ebx", "mov ebx, eax"), DefaultWindow)

	want := []string{"mov reg_0, reg_1", "mov reg_1, reg_0"}
	if diff := cmp.Diff(want, texts(res.Insts)); diff != "" {
		t.Errorf("anonymized mismatch (-want +got):\n%s", diff)
	}
	wantRegs := map[string]string{"reg_0": "eax", "reg_1": "ebx"}
	if diff := cmp.Diff(wantRegs, res.Registers); diff != "" {
		t.Errorf("registers mismatch (-want +got):\n%s", diff)
	}
}

func TestAnonymizeCategories(t *testing.T) {
	res := Anonymize(insts(
		"mov eax, dword ptr [rbp-0x4]",
		"imul eax, eax, -0x6db6db6d",
		"lea edx, [rax+rax*2]",
		"sar r8d, 0x1f",
		"mov dword ptr [rbp-0x4], eax",
		"shr eax, 0x1f",
	), DefaultWindow)

	want := []string{
		"mov reg_0, loc_0",
		"imul reg_0, reg_0, const_0",
		"lea reg_1, [reg_2+reg_2*const_1]",
		"sar reg_3, const_2",
		"mov loc_0, reg_0",
		"shr reg_0, const_2",
	}
	if diff := cmp.Diff(want, texts(res.Insts)); diff != "" {
		t.Errorf("anonymized mismatch (-want +got):\n%s", diff)
	}
	wantConsts := map[string]string{"const_0": "-0x6db6db6d", "const_1": "2", "const_2": "0x1f"}
	if diff := cmp.Diff(wantConsts, res.Constants); diff != "" {
		t.Errorf("constants mismatch (-want +got):\n%s", diff)
	}
	wantVars := map[string]string{"loc_0": "dword ptr [rbp-0x4]"}
	if diff := cmp.Diff(wantVars, res.Variables); diff != "" {
		t.Errorf("variables mismatch (-want +got):\n%s", diff)
	}
	if res.Registers["reg_3"] != "r8d" {
		t.Errorf("reg_3 = %q, want r8d", res.Registers["reg_3"])
	}
}

func TestAnonymizeWindowAndInputUntouched(t *testing.T) {
	in := insts("mov eax, 0x1", "mov ebx, 0x2", "mov ecx, 0x3")
	res := Anonymize(in, 2)
	if len(res.Insts) != 2 {
		t.Fatalf("got %d instructions, want 2", len(res.Insts))
	}
	if in[0].Operands[0] != "eax" {
		t.Errorf("input modified: %v", in[0])
	}
	if res.Insts[1].Address != in[1].Address {
		t.Errorf("address not preserved")
	}
}

func TestInstructionRestartsNumbering(t *testing.T) {
	a := Instruction(disasm.ParseListingInstruction("shr edx, 0x3"))
	b := Instruction(disasm.ParseListingInstruction("shr eax, 0x5"))
	if !a.Equal(b) {
		t.Errorf("%v and %v should anonymize identically", a, b)
	}
	if diff := cmp.Diff([]string{"reg_0", "const_0"}, a.Operands, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("operands mismatch (-want +got):\n%s", diff)
	}
}

func TestIsRegister(t *testing.T) {
	for _, r := range []string{"rax", "EAX", "r15b", "sil", "xmm7", "ah"} {
		if !IsRegister(r) {
			t.Errorf("IsRegister(%q) = false", r)
		}
	}
	for _, r := range []string{"ptr", "dword", "const_0", "loc_1", "rxx"} {
		if IsRegister(r) {
			t.Errorf("IsRegister(%q) = true", r)
		}
	}
}
