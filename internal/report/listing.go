package report

import (
	"fmt"
	"io"
	"strings"

	"idioms/internal/analysis"
	"idioms/internal/idioms/styles"
	"idioms/internal/ui/colorize"
)

// Options controls the listing output.
type Options struct {
	Color bool   // lipgloss summaries and chroma instructions
	Full  bool   // print the matched instructions beneath each match
	Index *Index // required for Full
}

// WriteListing prints one line per match in constant order.
func WriteListing(w io.Writer, matches []analysis.Match, opts Options) error {
	for _, m := range SortByConstant(matches) {
		line := m.String()
		if opts.Color {
			line = StyledLine(m)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		if !opts.Full {
			continue
		}
		if _, err := fmt.Fprintln(w, fullDetail(m, opts)); err != nil {
			return err
		}
	}
	return nil
}

func fullDetail(m analysis.Match, opts Options) string {
	var b strings.Builder
	fn := "; " + FunctionName(m)
	if opts.Color {
		fn = styles.Function.Render(fn)
	}
	b.WriteString("    ")
	b.WriteString(fn)
	for _, inst := range opts.Index.Instructions(m) {
		line := colorize.FormatInstruction(inst)
		if opts.Color {
			line = colorize.ColorizeInstructionLine(line)
		}
		b.WriteString("\n    ")
		b.WriteString(line)
	}
	return b.String()
}

// StyledLine is the lipgloss rendering of Match.String.
func StyledLine(m analysis.Match) string {
	constant := styles.Constant.Render(m.ConstantString())
	if !m.Resolved() {
		constant = styles.Unresolved.Render(m.ConstantString())
	}
	symbol := m.Operation.Symbol()
	return fmt.Sprintf("Match at %s: %s %s %s %s",
		styles.Address.Render(fmt.Sprintf("0x%08x", m.Address)),
		styles.Operand.Render(m.Operand),
		styles.Operator(symbol).Render(symbol),
		constant,
		styles.Sequence.Render("("+strings.Join(m.Sequence.Mnemonics(), "; ")+")"),
	)
}
