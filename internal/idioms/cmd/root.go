package cmd

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"idioms/internal/disasm"
	"idioms/internal/report"
)

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().StringP("data-dir", "D", "", "Directory caching the magic number tables")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().StringP("patterns", "p", "", "Directory of pattern files replacing the built-in corpus")
	rootCmd.PersistentFlags().Int("max-divisor", 0, "Exclusive upper bound of the divisor range (default 1024)")
	rootCmd.PersistentFlags().Int("window", 0, "Instructions anonymized per candidate start (default 25)")
	rootCmd.PersistentFlags().Int("workers", 0, "Functions scanned concurrently (default GOMAXPROCS)")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().StringSlice("function", nil, "Only scan these function symbols")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")
	addOutputFlags(rootCmd)

	rootCmd.AddCommand(listingCmd)
	rootCmd.AddCommand(tableCmd)
	rootCmd.AddCommand(schemaCmd)
}

var rootCmd = &cobra.Command{
	Use:   "idioms [binary]",
	Short: "Recover division, modulo and multiplication by constants from x86 code",
	Long: `Idioms scans the functions of an x86 or x86-64 ELF binary for the instruction
sequences compilers emit for arithmetic by a constant and recovers the constant.`,
	Example: `
# List every recovered idiom, sorted by constant
idioms /path/to/binary

# Write the decompiler annotation file
idioms -o idioms.json /path/to/binary

# Render a report with the matched instructions
idioms --report --full /path/to/binary
  `,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		stop, err := startProfiling(cmd)
		if err != nil {
			return err
		}
		defer stop()

		if _, err := ResolveCwd(cmd); err != nil {
			return err
		}
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve path: %w", err)
		}
		if _, err := os.Stat(absPath); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file not found: %s", args[0])
			}
			return fmt.Errorf("cannot access file: %w", err)
		}

		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer logger.Close()

		src, err := disasm.NewELFSource(absPath, logger.Logger)
		if err != nil {
			return fmt.Errorf("failed to load file: %w", err)
		}
		defer src.Close()

		only, _ := cmd.Flags().GetStringSlice("function")
		for _, name := range only {
			if _, ok := src.Image.FindFunctionByName(name); !ok {
				logger.Warn("function not found", "name", name)
			}
		}
		src.Only = only

		digest, err := fileDigest(absPath)
		if err != nil {
			return err
		}
		header := report.Header{Path: absPath, Kind: src.Image.Kind(), Digest: digest}
		return analyze(cmd, cfg, logger.Logger, src, header)
	},
}

// startProfiling honours --cpuprofile and --memprofile. The returned stop
// function writes the heap profile and ends CPU profiling.
func startProfiling(cmd *cobra.Command) (func(), error) {
	cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
	memprofile, _ := cmd.Flags().GetString("memprofile")

	var cpu *os.File
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			return nil, fmt.Errorf("could not create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("could not start CPU profile: %w", err)
		}
		cpu = f
	}

	return func() {
		if cpu != nil {
			pprof.StopCPUProfile()
			cpu.Close()
		}
		if memprofile == "" {
			return
		}
		f, err := os.Create(memprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
			return
		}
		defer f.Close()
		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
		}
	}, nil
}

func fileDigest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to calculate digest: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Execute runs the root command. Piped output bypasses fang so that help
// and errors stay plain text.
func Execute() {
	if !term.IsTerminal(os.Stdout.Fd()) {
		os.Setenv("IDIOMS_NO_COLOR", "1")
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %w", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}
	return cwd, nil
}
