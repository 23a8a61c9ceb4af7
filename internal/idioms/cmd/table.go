package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"idioms/internal/magic"
)

var tableCmd = &cobra.Command{
	Use:   "table [divisor...]",
	Short: "Build and inspect the magic number tables",
	Long: `Build the signed and unsigned magic number tables for the configured divisor
range, caching them in the data directory. With divisors given, print the
(magic, power) pairs that resolve to each of them.`,
	Example: `
# Cache tables for divisors below 4096
idioms table --max-divisor 4096

# Show the multipliers for division by 7 and -7
idioms table 7 -- -7
  `,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		divisors := make(map[int64]bool, len(args))
		for _, a := range args {
			d, err := strconv.ParseInt(a, 0, 64)
			if err != nil {
				return fmt.Errorf("invalid divisor %q: %w", a, err)
			}
			divisors[d] = true
		}

		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer logger.Close()

		rebuild, _ := cmd.Flags().GetBool("rebuild")
		store := &magic.Store{Dir: cfg.DataDir, Logger: logger.Logger}
		out := cmd.OutOrStdout()
		for _, kind := range []magic.Kind{magic.KindSigned, magic.KindUnsigned} {
			var t *magic.Table
			if rebuild {
				if t, err = magic.Build(kind, cfg.MaxDivisor); err == nil && store.Dir != "" {
					err = store.Save(t)
				}
			} else {
				t, err = store.Load(kind, cfg.MaxDivisor)
			}
			if err != nil {
				return fmt.Errorf("%s table: %w", kind, err)
			}

			fmt.Fprintf(out, "%-8s %6d entries  divisors [2, %d)  %s\n", kind, t.Len(), t.Max(), store.Path(kind))
			if len(divisors) == 0 {
				continue
			}
			for _, e := range t.Entries() {
				if divisors[e.Divisor] {
					fmt.Fprintf(out, "  %6d  magic %#x  power %d\n", e.Divisor, e.Magic, e.Power)
				}
			}
		}
		return nil
	},
}

func init() {
	tableCmd.Flags().Bool("rebuild", false, "Recompute the tables even if a cache covers the range")
}
