package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"idioms/internal/disasm"
	"idioms/internal/report"
)

var listingCmd = &cobra.Command{
	Use:   "listing [file]",
	Short: "Scan an Intel syntax text listing",
	Long: `Scan a text listing instead of an ELF binary. The listing is either
objdump -d -M intel output or lines of "address: mnemonic operands"
grouped under "name:" headers. Reads stdin when file is "-" or missing.`,
	Example: `
# Scan objdump output
objdump -d -M intel --no-show-raw-insn a.out | idioms listing -

# Write the decompiler annotation file
idioms listing -o idioms.json code.lst
  `,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ResolveCwd(cmd); err != nil {
			return err
		}

		var (
			r    io.Reader = cmd.InOrStdin()
			name           = "<stdin>"
		)
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open listing: %w", err)
			}
			defer f.Close()
			r = f
			name, _ = filepath.Abs(args[0])
		}

		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer logger.Close()

		header := report.Header{Path: name, Kind: "listing"}
		return analyze(cmd, cfg, logger.Logger, disasm.NewListingSource(r), header)
	},
}

func init() {
	addOutputFlags(listingCmd)
}
