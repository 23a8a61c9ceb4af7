package colorize

import (
	"strings"
	"testing"

	"idioms/internal/disasm"
)

func sequence() []disasm.Instruction {
	return []disasm.Instruction{
		{Address: 0x401000, Mnemonic: "mov", Operands: []string{"eax", "edi"}},
		{Address: 0x401002, Mnemonic: "shr", Operands: []string{"eax", "0x1f"}},
	}
}

func TestColorizeSequenceDisabled(t *testing.T) {
	t.Setenv("IDIOMS_NO_COLOR", "1")
	got := ColorizeSequence(sequence())
	want := "00401000  mov eax, edi\n00401002  shr eax, 0x1f"
	if got != want {
		t.Errorf("ColorizeSequence() = %q, want %q", got, want)
	}
}

func TestColorizeKeepsText(t *testing.T) {
	t.Setenv("IDIOMS_NO_COLOR", "")
	got := ColorizeSequence(sequence())
	if !strings.Contains(got, "\x1b[") {
		t.Errorf("ColorizeSequence() has no escape sequences: %q", got)
	}
	plain := StripANSI(got)
	for _, want := range []string{"00401000", "mov", "eax", "0x1f"} {
		if !strings.Contains(plain, want) {
			t.Errorf("stripped output %q lacks %q", plain, want)
		}
	}
}

func TestFormatTemplateInstruction(t *testing.T) {
	inst := disasm.ParseInstruction("sar reg_0, const_1")
	if got := FormatInstruction(inst); !strings.HasSuffix(got, "sar reg_0, const_1") || strings.Contains(got, "ffff") {
		t.Errorf("FormatInstruction(template) = %q", got)
	}
}

func TestStripANSI(t *testing.T) {
	if got := StripANSI("\x1b[38;2;79;79;79m401000\x1b[0m mov"); got != "401000 mov" {
		t.Errorf("StripANSI() = %q", got)
	}
}
