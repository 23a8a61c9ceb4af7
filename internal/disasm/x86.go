package disasm

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/arch/x86/x86asm"

	"idioms/internal/elfx"
)

// ELFSource disassembles the function symbols of an x86 or x86-64 ELF image.
type ELFSource struct {
	Image  *elfx.Image
	Only   []string // restrict to these symbol names when non-empty
	Logger *log.Logger
}

// NewELFSource opens path and checks that it is an x86 image. The caller
// closes the returned source.
func NewELFSource(path string, logger *log.Logger) (*ELFSource, error) {
	img, err := elfx.Open(path)
	if err != nil {
		return nil, err
	}
	if img.Mode() == 0 {
		machine := img.Machine()
		img.Close()
		return nil, fmt.Errorf("%s: %w", machine, ErrUnsupportedArch)
	}
	return &ELFSource{Image: img, Logger: logger}, nil
}

// Close releases the mapped image.
func (s *ELFSource) Close() error {
	return s.Image.Close()
}

// Functions decodes every selected function symbol.
func (s *ELFSource) Functions() ([]Function, error) {
	mode := s.Image.Mode()
	if mode == 0 {
		return nil, fmt.Errorf("%s: %w", s.Image.Machine(), ErrUnsupportedArch)
	}

	var only map[string]bool
	if len(s.Only) > 0 {
		only = make(map[string]bool, len(s.Only))
		for _, name := range s.Only {
			only[name] = true
		}
	}

	var fns []Function
	for _, sym := range s.Image.Functions() {
		if only != nil && !only[sym.Name] {
			continue
		}
		code, ok := s.Image.SliceVA(sym.Addr, sym.Size)
		if !ok {
			if s.Logger != nil {
				s.Logger.Debug("function outside mapped segments", "name", sym.Name, "addr", fmt.Sprintf("%#x", sym.Addr))
			}
			continue
		}
		fn := Function{Name: sym.Name, Addr: sym.Addr, Insts: DecodeX86(code, sym.Addr, mode)}
		if len(fn.Insts) > 0 {
			fns = append(fns, fn)
		}
	}
	return fns, nil
}

// DecodeX86 linearly decodes code loaded at base. Undecodable bytes are
// skipped one at a time.
func DecodeX86(code []byte, base uint64, mode int) []Instruction {
	var out []Instruction
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], mode)
		if err != nil || inst.Len == 0 {
			off++
			continue
		}
		pc := base + uint64(off)
		out = append(out, Normalize(fromX86(inst, pc)))
		off += inst.Len
	}
	return out
}

func fromX86(inst x86asm.Inst, pc uint64) Instruction {
	parsed := ParseListingInstruction(x86asm.IntelSyntax(inst, pc, nil))
	// IntelSyntax spells some conditions differently and prints prefixes
	// ahead of the mnemonic; the op name is authoritative.
	switch inst.Op {
	case x86asm.MOVSD_XMM:
		parsed.Mnemonic = "movsd"
	case x86asm.LCALL, x86asm.LJMP, x86asm.LRET:
	default:
		parsed.Mnemonic = strings.ToLower(inst.Op.String())
	}
	parsed.Address = int64(pc)
	return parsed
}
