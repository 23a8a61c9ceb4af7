package report

import (
	"fmt"
	"strings"

	"idioms/internal/analysis"
	"idioms/internal/idioms/styles"
	"idioms/internal/ui/colorize"
)

// Header describes the scanned input.
type Header struct {
	Path      string
	Kind      string // executable, library or listing
	Digest    string // sha256 of the input
	Functions int
}

// Markdown builds the report document. With full set every match gets its
// instruction listing as a code block.
func Markdown(h Header, matches []analysis.Match, idx *Index, full bool) string {
	var b strings.Builder
	b.WriteString("# Idioms\n\n")
	fmt.Fprintf(&b, "; %s (%s)\n\n", h.Path, h.Kind)
	if h.Digest != "" {
		fmt.Fprintf(&b, "; %s\n\n", h.Digest)
	}

	s := Summarize(matches)
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "%d functions, %d idioms, %d unresolved constants.\n\n", h.Functions, s.Total, s.Unresolved)
	b.WriteString("| operation | matches |\n|---|---:|\n")
	for _, op := range Operations {
		fmt.Fprintf(&b, "| %s | %d |\n", op, s.Operations[op])
	}

	if len(matches) == 0 {
		b.WriteString("\nNo idioms found.\n")
		return b.String()
	}

	b.WriteString("\n## Constants\n\n")
	b.WriteString("| address | function | expression | sequence |\n|---|---|---|---|\n")
	sorted := SortByConstant(matches)
	for _, m := range sorted {
		fmt.Fprintf(&b, "| `0x%08x` | `%s` | `%s` | %s |\n",
			m.Address, escapeCell(FunctionName(m)), Expression(m), strings.Join(m.Sequence.Mnemonics(), "; "))
	}

	if !full {
		return b.String()
	}
	b.WriteString("\n## Sequences\n")
	for _, m := range sorted {
		fmt.Fprintf(&b, "\n### 0x%08x %s\n\n", m.Address, Expression(m))
		b.WriteString("```nasm\n")
		for _, inst := range idx.Instructions(m) {
			b.WriteString(colorize.FormatInstruction(inst))
			b.WriteByte('\n')
		}
		b.WriteString("```\n")
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// RenderMarkdown renders md for a terminal of the given width.
func RenderMarkdown(md string, width int) (string, error) {
	r, err := styles.GetMarkdownRenderer(width)
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}
