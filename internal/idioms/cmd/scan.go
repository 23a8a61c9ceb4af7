package cmd

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"idioms/internal/analysis"
	"idioms/internal/config"
	"idioms/internal/detectors"
	"idioms/internal/disasm"
	idlog "idioms/internal/idioms/log"
	"idioms/internal/logging"
	"idioms/internal/magic"
	"idioms/internal/pattern"
	"idioms/internal/report"
	"idioms/internal/ui/colorize"
)

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "Write the address keyed JSON for decompiler annotation to this file")
	cmd.Flags().BoolP("json", "j", false, "Print the address keyed JSON instead of the listing")
	cmd.Flags().BoolP("report", "r", false, "Render a markdown report")
	cmd.Flags().BoolP("full", "f", false, "Show the matched instructions of every idiom")
}

// setup loads the configuration and the logger for a command run.
func setup(cmd *cobra.Command) (*config.Config, *logging.LoggerCloser, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.New(), file, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.Open(logging.Options{Debug: cfg.Debug})
	if err != nil {
		logger.Warn("logging to stderr", "err", err)
	}
	if err := idlog.Setup("", cfg.Debug); err != nil {
		logger.Warn("slog setup", "err", err)
	}
	logger.Debug("configuration", "data-dir", cfg.DataDir, "patterns", cfg.Patterns,
		"max-divisor", cfg.MaxDivisor, "window", cfg.Window, "workers", cfg.WorkerCount())
	return cfg, logger, nil
}

// corpus returns the configured pattern directory or the built-in corpus.
func corpus(cfg *config.Config) fs.FS {
	if cfg.Patterns != "" {
		return pattern.Dir(cfg.Patterns)
	}
	return pattern.Default()
}

// newScanner loads the magic tables and templates and wires the detector
// chain.
func newScanner(cfg *config.Config, logger *log.Logger) (*analysis.Scanner, error) {
	store := &magic.Store{Dir: cfg.DataDir, Logger: logger}
	tables, err := detectors.LoadTables(store, cfg.MaxDivisor)
	if err != nil {
		return nil, fmt.Errorf("magic tables: %w", err)
	}

	chain := analysis.NewDetectorChain(detectors.New(corpus(cfg), tables, logger)...)
	for _, d := range chain.Detectors() {
		if ts, ok := d.(interface{ Len() int }); ok && ts.Len() == 0 {
			logger.Warn("no templates", "family", d.Family())
		}
	}

	scanner := analysis.NewScanner(chain, logger)
	scanner.Window = cfg.Window
	scanner.Workers = cfg.WorkerCount()
	return scanner, nil
}

// analyze scans src and writes the results selected by the output flags.
func analyze(cmd *cobra.Command, cfg *config.Config, logger *log.Logger, src disasm.Source, header report.Header) error {
	scanner, err := newScanner(cfg, logger)
	if err != nil {
		return err
	}

	fns, err := src.Functions()
	if err != nil {
		return fmt.Errorf("disassemble: %w", err)
	}
	header.Functions = len(fns)
	logger.Debug("disassembled", "functions", len(fns))

	matches, err := scanner.ScanFunctions(cmd.Context(), fns)
	if err != nil {
		return err
	}
	s := report.Summarize(matches)
	logger.Info("scan complete", "functions", len(fns), "idioms", s.Total, "unresolved", s.Unresolved)

	return writeResults(cmd, header, fns, matches)
}

func writeResults(cmd *cobra.Command, header report.Header, fns []disasm.Function, matches []analysis.Match) error {
	output, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	showReport, _ := cmd.Flags().GetBool("report")
	showFull, _ := cmd.Flags().GetBool("full")

	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		if err := report.WriteJSON(f, matches); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close output: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return report.WriteJSON(out, matches)
	}

	tty := out == os.Stdout && term.IsTerminal(os.Stdout.Fd()) && !colorize.Disabled()
	idx := report.NewIndex(fns)
	if showReport {
		md := report.Markdown(header, matches, idx, showFull)
		if !tty {
			_, err := fmt.Fprint(out, md)
			return err
		}
		width := 100
		if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
			width = w
		}
		rendered, err := report.RenderMarkdown(md, width)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, rendered)
		return err
	}

	return report.WriteListing(out, matches, report.Options{Color: tty, Full: showFull, Index: idx})
}
