package disasm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ListingSource reads an Intel syntax text listing. Two layouts are accepted:
//
//	name:                                  0000000000401126 <name>:
//	  401126: mov eax, edi                   401126:	89 f8	mov    eax,edi
//
// i.e. a hand written listing or the output of objdump -d -M intel.
type ListingSource struct {
	r io.Reader
}

// NewListingSource returns a Source reading from r.
func NewListingSource(r io.Reader) *ListingSource {
	return &ListingSource{r: r}
}

// Functions parses the whole listing.
func (s *ListingSource) Functions() ([]Function, error) {
	var (
		fns []Function
		cur *Function
	)
	flush := func() {
		if cur != nil && len(cur.Insts) > 0 {
			fns = append(fns, *cur)
		}
		cur = nil
	}

	sc := bufio.NewScanner(s.r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), " \t\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, ";") || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if name, addr, ok := parseFunctionHeader(trimmed); ok {
			flush()
			cur = &Function{Name: name, Addr: addr}
			continue
		}

		addrText, body, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		addr, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(addrText), "0x"), 16, 64)
		if err != nil {
			// section headers and other objdump chatter
			continue
		}
		text := instructionText(body)
		if text == "" {
			continue
		}
		if cur == nil {
			cur = &Function{Name: fmt.Sprintf("sub_%x", addr), Addr: addr}
		}
		inst := ParseListingInstruction(text)
		inst.Address = int64(addr)
		cur.Insts = append(cur.Insts, Normalize(inst))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read listing line %d: %w", lineNo, err)
	}
	flush()
	return fns, nil
}

// parseFunctionHeader recognises "name:" and "0000000000401126 <name>:".
func parseFunctionHeader(line string) (string, uint64, bool) {
	if !strings.HasSuffix(line, ":") {
		return "", 0, false
	}
	head := strings.TrimSuffix(line, ":")
	if addrText, rest, ok := strings.Cut(head, " <"); ok && strings.HasSuffix(rest, ">") {
		addr, err := strconv.ParseUint(addrText, 16, 64)
		if err != nil {
			return "", 0, false
		}
		return strings.TrimSuffix(rest, ">"), addr, true
	}
	if strings.ContainsAny(head, " \t") || head == "" {
		return "", 0, false
	}
	if _, err := strconv.ParseUint(strings.TrimPrefix(head, "0x"), 16, 64); err == nil {
		return "", 0, false
	}
	return head, 0, true
}

// instructionText drops the objdump byte column and trailing annotations.
func instructionText(body string) string {
	fields := strings.Split(body, "\t")
	text := ""
	for i := len(fields) - 1; i >= 0; i-- {
		if f := strings.TrimSpace(fields[i]); f != "" {
			text = f
			break
		}
	}
	if len(fields) > 1 && isHexBytes(text) {
		// data only line
		return ""
	}
	if i := strings.Index(text, " <"); i >= 0 {
		text = text[:i]
	}
	if i := strings.Index(text, "#"); i >= 0 {
		text = text[:i]
	}
	if i := strings.Index(text, ";"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

func isHexBytes(s string) bool {
	for _, f := range strings.Fields(s) {
		if len(f) != 2 {
			return false
		}
		if _, err := strconv.ParseUint(f, 16, 8); err != nil {
			return false
		}
	}
	return s != ""
}

// ParseListingInstruction splits listing text into mnemonic and operands.
// Operands are separated by commas outside of brackets.
func ParseListingInstruction(text string) Instruction {
	text = strings.TrimSpace(text)
	mnemonic, rest, _ := strings.Cut(text, " ")
	// prefixes print in front of the mnemonic
	for mnemonic == "lock" || mnemonic == "rep" || mnemonic == "repz" || mnemonic == "repnz" ||
		mnemonic == "repe" || mnemonic == "repne" || mnemonic == "data16" || mnemonic == "notrack" {
		mnemonic, rest, _ = strings.Cut(strings.TrimSpace(rest), " ")
	}
	inst := Instruction{Address: TemplateAddress, Mnemonic: strings.ToLower(mnemonic)}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return inst
	}
	depth := 0
	start := 0
	for i, r := range rest {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				inst.Operands = append(inst.Operands, strings.TrimSpace(rest[start:i]))
				start = i + 1
			}
		}
	}
	inst.Operands = append(inst.Operands, strings.TrimSpace(rest[start:]))
	return inst
}
