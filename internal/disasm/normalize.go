package disasm

import (
	"regexp"
	"strings"
)

// mnemonicAliases folds decoder specific spellings onto the names used by the
// pattern corpus.
var mnemonicAliases = map[string]string{
	"movsxd": "movsx",
	"sal":    "shl",
	"jz":     "je",
	"jnz":    "jne",
	"jnb":    "jae",
	"jnbe":   "ja",
	"jnl":    "jge",
	"jnle":   "jg",
	"jnae":   "jb",
	"jna":    "jbe",
	"jnge":   "jl",
	"jng":    "jle",
	"cmovz":  "cmove",
	"cmovnz": "cmovne",
	"cmovnb": "cmovae",
	"cmovnl": "cmovge",
	"setz":   "sete",
	"setnz":  "setne",
}

// objdump spells out a unit scale and a zero displacement, x86asm omits both.
var (
	unitScale = regexp.MustCompile(`\*1\b`)
	zeroDisp  = regexp.MustCompile(`[+-]0x0+\]`)
)

// Normalize rewrites a decoded instruction into the form the pattern corpus
// uses: aliased mnemonics are folded, jumps lose their operands and memory
// operands without a size prefix lose their spaces. Address expressions drop
// a unit scale and a zero displacement.
func Normalize(inst Instruction) Instruction {
	inst.Mnemonic = strings.ToLower(strings.TrimSpace(inst.Mnemonic))
	if alias, ok := mnemonicAliases[inst.Mnemonic]; ok {
		inst.Mnemonic = alias
	}
	if IsJump(inst.Mnemonic) {
		inst.Operands = nil
		return inst
	}
	ops := make([]string, 0, len(inst.Operands))
	for _, op := range inst.Operands {
		op = strings.TrimSpace(op)
		if op == "" {
			continue
		}
		// lea operands carry no size and print as "ptr [..]"
		op = strings.TrimPrefix(op, "ptr ")
		if strings.HasPrefix(op, "[") {
			op = strings.ReplaceAll(op, " ", "")
		}
		if strings.Contains(op, "[") {
			op = unitScale.ReplaceAllString(op, "")
			op = zeroDisp.ReplaceAllString(op, "]")
		}
		ops = append(ops, op)
	}
	inst.Operands = ops
	return inst
}

// IsJump reports whether the mnemonic is an unconditional or conditional jump.
func IsJump(mnemonic string) bool {
	if mnemonic == "jmp" {
		return true
	}
	if !strings.HasPrefix(mnemonic, "j") || len(mnemonic) > 5 {
		return false
	}
	switch mnemonic {
	case "ja", "jae", "jb", "jbe", "jc", "je", "jg", "jge", "jl", "jle",
		"jna", "jnae", "jnb", "jnbe", "jnc", "jne", "jng", "jnge", "jnl", "jnle",
		"jno", "jnp", "jns", "jnz", "jo", "jp", "jpe", "jpo", "js", "jz",
		"jcxz", "jecxz", "jrcxz":
		return true
	}
	return false
}
