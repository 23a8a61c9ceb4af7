// Package pattern loads the anonymized instruction templates that describe
// compiler idioms, one set per operation family.
package pattern

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"idioms/internal/disasm"
)

// Family tags select the corpus files of one operation family.
type Family string

const (
	SignedModulo     Family = "mods"
	UnsignedModulo   Family = "modu"
	SignedDivision   Family = "divs"
	UnsignedDivision Family = "divu"
	Multiplication   Family = "mul"
)

// Families lists every family in scan priority order.
var Families = []Family{SignedModulo, UnsignedModulo, SignedDivision, UnsignedDivision, Multiplication}

//go:embed corpus
var embedded embed.FS

// Default returns the corpus compiled into the binary.
func Default() fs.FS {
	sub, err := fs.Sub(embedded, "corpus")
	if err != nil {
		panic(err)
	}
	return sub
}

// Dir returns a corpus rooted at a directory on disk.
func Dir(dir string) fs.FS {
	return os.DirFS(dir)
}

// Template is one anonymized idiom sequence.
type Template struct {
	Insts   []disasm.Instruction
	Expr    string // constant expression, multiplication only
	Operand string // token naming the source operand, empty for the family default
	Source  string // corpus file the template came from
}

// Len is the number of instructions.
func (t Template) Len() int { return len(t.Insts) }

// Mnemonics returns the instruction mnemonics in order.
func (t Template) Mnemonics() []string {
	out := make([]string, len(t.Insts))
	for i, inst := range t.Insts {
		out[i] = inst.Mnemonic
	}
	return out
}

// jsonRecord is one entry of a JSON corpus file.
type jsonRecord struct {
	Sequence []struct {
		Opcode   string   `json:"opcode"`
		Operands []string `json:"operands"`
	} `json:"sequence"`
	Operand string `json:"operand,omitempty"`
}

// yamlRecord is one entry of a YAML corpus file.
type yamlRecord struct {
	Pattern  []string `yaml:"pattern"`
	Constant string   `yaml:"constant"`
	Operand  string   `yaml:"operand"`
}

// Load reads every corpus file whose name contains the family tag and
// returns the templates longest first. Files that cannot be read or decoded
// are logged and skipped; a corpus without matching files yields nothing.
func Load(fsys fs.FS, family Family, logger *log.Logger) []Template {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	names, err := fs.Glob(fsys, "*"+string(family)+"*")
	if err != nil || len(names) == 0 {
		logger.Warn("no pattern files", "family", family, "err", err)
		return nil
	}
	sort.Strings(names)

	var out []Template
	for _, name := range names {
		bts, err := fs.ReadFile(fsys, name)
		if err != nil {
			logger.Warn("skipping pattern file", "file", name, "err", err)
			continue
		}
		var ts []Template
		switch strings.ToLower(path.Ext(name)) {
		case ".json":
			ts, err = decodeJSON(bts, name)
		case ".yaml", ".yml":
			ts, err = decodeYAML(bts, name, logger)
		default:
			continue
		}
		if err != nil {
			logger.Warn("skipping pattern file", "file", name, "err", err)
			continue
		}
		logger.Debug("loaded patterns", "file", name, "templates", len(ts))
		out = append(out, ts...)
	}

	slices.SortStableFunc(out, func(a, b Template) int { return b.Len() - a.Len() })
	return out
}

func decodeJSON(bts []byte, source string) ([]Template, error) {
	var recs []jsonRecord
	if err := json.Unmarshal(bts, &recs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", source, err)
	}
	out := make([]Template, 0, len(recs))
	for _, rec := range recs {
		t := Template{Operand: rec.Operand, Source: source}
		for _, inst := range rec.Sequence {
			t.Insts = append(t.Insts, disasm.Instruction{
				Address:  disasm.TemplateAddress,
				Mnemonic: strings.ToLower(inst.Opcode),
				Operands: slices.Clone(inst.Operands),
			})
		}
		if len(t.Insts) > 0 {
			out = append(out, t)
		}
	}
	return out, nil
}

// decodeYAML reads a stream of YAML documents, each a list of records. A
// record whose constant expression is not allowed is logged and dropped on
// its own.
func decodeYAML(bts []byte, source string, logger *log.Logger) ([]Template, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(bts)))
	var out []Template
	for {
		var recs []yamlRecord
		err := dec.Decode(&recs)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", source, err)
		}
		for _, rec := range recs {
			if len(rec.Pattern) == 0 {
				continue
			}
			if err := Check(rec.Constant); err != nil {
				logger.Warn("skipping pattern", "file", source, "pattern", rec.Pattern[0], "err", err)
				continue
			}
			t := Template{Expr: rec.Constant, Operand: rec.Operand, Source: source}
			for _, line := range rec.Pattern {
				t.Insts = append(t.Insts, disasm.ParseInstruction(line))
			}
			out = append(out, t)
		}
	}
	return out, nil
}
