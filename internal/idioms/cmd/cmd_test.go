package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idioms/internal/magic"
)

const listing = `
div3:
  401000: mov eax, edi
  401002: mov edx, 0xaaaaaaab
  401007: imul rax, rdx
  40100b: shr rax, 0x21
  40100f: ret
mul5:
  401010: lea eax, [rdi+rdi*4]
  401013: ret
`

// execute runs the root command with flags reset to their defaults.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	for _, c := range append([]*cobra.Command{rootCmd}, rootCmd.Commands()...) {
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestListingCommand(t *testing.T) {
	dataDir := t.TempDir()
	out, err := execute(t, listing, "listing", "--data-dir", dataDir, "-")
	require.NoError(t, err)
	assert.Equal(t, "Match at 0x00401000: edi /u 3 (mov; mov; imul; shr)\n"+
		"Match at 0x00401010: rdi * 5 (lea)\n", out)

	store := magic.Store{Dir: dataDir}
	assert.FileExists(t, store.Path(magic.KindSigned))
	assert.FileExists(t, store.Path(magic.KindUnsigned))
}

func TestListingCommandJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "code.lst")
	require.NoError(t, os.WriteFile(file, []byte(listing), 0o644))
	output := filepath.Join(dir, "idioms.json")

	out, err := execute(t, "", "listing", "--data-dir", dir, "--json", "-o", output, file)
	require.NoError(t, err)
	want := `{
		"4198400": {"operation": "division unsigned", "constant": 3, "operand": "edi"},
		"4198416": {"operation": "multiplication", "constant": 5, "operand": "rdi"}
	}`
	assert.JSONEq(t, want, out)

	bts, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.JSONEq(t, want, string(bts))
}

func TestListingCommandReport(t *testing.T) {
	out, err := execute(t, listing, "listing", "--data-dir", t.TempDir(), "--report", "--full")
	require.NoError(t, err)
	assert.Contains(t, out, "# Idioms")
	assert.Contains(t, out, "| `0x00401010` | `mul5` | `rdi * 5` | lea |")
	assert.Contains(t, out, "00401002  mov edx, 0xaaaaaaab")
}

func TestListingCommandCustomPatterns(t *testing.T) {
	patterns := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(patterns, "patterns-mul.yaml"),
		[]byte("- pattern: [\"lea reg_0, [reg_1+reg_1*const_0]\"]\n  constant: \"const_0 + 1\"\n  operand: reg_1\n"), 0o644))

	out, err := execute(t, listing, "listing", "--data-dir", t.TempDir(), "--patterns", patterns)
	require.NoError(t, err)
	assert.Equal(t, "Match at 0x00401010: rdi * 5 (lea)\n", out)
}

func TestListingCommandRejectsBadConfig(t *testing.T) {
	_, err := execute(t, listing, "listing", "--data-dir", t.TempDir(), "--window", "1000")
	assert.ErrorContains(t, err, "window")
}

func TestTableCommand(t *testing.T) {
	dataDir := t.TempDir()
	out, err := execute(t, "", "table", "--data-dir", dataDir, "--max-divisor", "64", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "signed")
	assert.Contains(t, out, "divisors [2, 64)")
	assert.Contains(t, out, "magic 0x92492493  power 34")
	assert.Contains(t, out, "magic 0x24924925  power 35")

	out, err = execute(t, "", "table", "--data-dir", dataDir, "--max-divisor", "64", "--rebuild")
	require.NoError(t, err)
	assert.NotContains(t, out, "power")

	_, err = execute(t, "", "table", "--data-dir", dataDir, "seven")
	assert.ErrorContains(t, err, "invalid divisor")
}

func TestSchemaCommand(t *testing.T) {
	out, err := execute(t, "", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"maxDivisor"`)
}

func TestRootMissingFile(t *testing.T) {
	_, err := execute(t, "", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "file not found")
}
