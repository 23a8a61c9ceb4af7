// Package analysis matches compiler idiom templates against the
// instructions of disassembled functions.
package analysis

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"idioms/internal/disasm"
)

// Scanner walks functions and collects the idioms found by a detector chain.
// The chain and its templates are shared read-only between workers.
type Scanner struct {
	Chain   *DetectorChain
	Window  int
	Workers int
	Logger  *log.Logger
}

// NewScanner creates a scanner with default window and worker count.
func NewScanner(chain *DetectorChain, logger *log.Logger) *Scanner {
	return &Scanner{
		Chain:   chain,
		Window:  DefaultWindow,
		Workers: DefaultWorkers(),
		Logger:  logger,
	}
}

func (s *Scanner) logger() *log.Logger {
	if s.Logger == nil {
		return log.New(io.Discard)
	}
	return s.Logger
}

func (s *Scanner) window() int {
	if s.Window <= 0 {
		return DefaultWindow
	}
	return min(s.Window, MaxWindow)
}

// ScanFunction tries every unmatched instruction as the start of an idiom.
// The instructions of each match are marked so that no later match starts
// inside it.
func (s *Scanner) ScanFunction(fn *disasm.Function) []Match {
	var out []Match
	for i := range fn.Insts {
		if fn.Insts[i].Matched {
			continue
		}
		m := s.Chain.Detect(fn.Insts[i:], s.window())
		if m == nil {
			continue
		}
		m.Function = fn.Name
		for j := i; j < i+m.Length && j < len(fn.Insts); j++ {
			fn.Insts[j].Matched = true
		}
		out = append(out, *m)
	}
	return out
}

// ScanFunctions scans functions concurrently and returns the matches in
// function order.
func (s *Scanner) ScanFunctions(ctx context.Context, fns []disasm.Function) ([]Match, error) {
	workers := s.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	results := make([][]Match, len(fns))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range fns {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = s.ScanFunction(&fns[i])
			if len(results[i]) > 0 {
				s.logger().Debug("scanned function", "name", fns[i].Name, "matches", len(results[i]))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Match
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}
