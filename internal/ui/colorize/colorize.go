// Package colorize highlights x86 instruction text for terminal output.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"idioms/internal/disasm"
)

// Disabled reports whether IDIOMS_NO_COLOR turns colouring off.
func Disabled() bool {
	return os.Getenv("IDIOMS_NO_COLOR") != ""
}

// getAssemblyLexer returns an Intel-syntax lexer with fallbacks
func getAssemblyLexer() chroma.Lexer {
	for _, name := range []string{"nasm", "gas"} {
		if lexer := lexers.Get(name); lexer != nil {
			return chroma.Coalesce(lexer)
		}
	}
	return nil
}

func getDisasmStyle() *chroma.Style {
	for _, name := range []string{DisasmDark.Name, "dracula", "monokai"} {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

func getTerminalFormatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// ColorizeAssembly highlights a block of assembly. On any lexer or
// formatter failure the code is returned unchanged along with the error.
func ColorizeAssembly(code string) (string, error) {
	if Disabled() {
		return code, nil
	}
	lexer := getAssemblyLexer()
	if lexer == nil {
		return code, nil
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}
	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code, err
	}
	return buf.String(), nil
}

// ColorizeInstructionLine colours one "address  mnemonic operands" line,
// keeping the address gray.
func ColorizeInstructionLine(line string) string {
	if Disabled() {
		return line
	}
	if strings.HasPrefix(strings.TrimSpace(line), ";") {
		return fmt.Sprintf("\033[38;2;106;153;85m%s\033[0m", line)
	}

	addr, rest, ok := strings.Cut(line, " ")
	if !ok || !isHex(strings.TrimPrefix(addr, "0x")) {
		return colorizeFullLine(line)
	}
	return fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m %s", addr, colorizeFullLine(rest))
}

// ColorizeSequence renders insts as an address-prefixed listing, one
// instruction per line.
func ColorizeSequence(insts []disasm.Instruction) string {
	var b strings.Builder
	for i, inst := range insts {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(ColorizeInstructionLine(FormatInstruction(inst)))
	}
	return b.String()
}

// FormatInstruction renders the plain listing line for inst.
func FormatInstruction(inst disasm.Instruction) string {
	if inst.Address < 0 {
		return "          " + inst.String()
	}
	return fmt.Sprintf("%08x  %s", inst.Address, inst.String())
}

func colorizeFullLine(line string) string {
	out, err := ColorizeAssembly(line)
	if err != nil {
		return line
	}
	return strings.TrimRight(out, "\n")
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// StripANSI removes ANSI colour sequences.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			result.WriteRune(r)
		}
	}
	return result.String()
}
