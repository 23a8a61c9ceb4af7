package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNewLevelFromEnv(t *testing.T) {
	t.Setenv(EnvLevel, "warn")
	t.Setenv(EnvPrefix, "")

	var buf bytes.Buffer
	lg := New(&buf, Options{}.FromEnv())
	defer lg.Close()

	lg.Info("hidden")
	lg.Warn("shown", "divisor", 7)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "divisor=7") {
		t.Errorf("warn message missing: %q", out)
	}
	if !strings.Contains(out, "idioms") {
		t.Errorf("default prefix missing: %q", out)
	}
}

func TestDebugFlagOverridesEnv(t *testing.T) {
	t.Setenv(EnvLevel, "error")

	var buf bytes.Buffer
	lg := New(&buf, Options{Debug: true}.FromEnv())
	if !lg.Debugging() {
		t.Fatalf("level = %v with Debug set, want debug", lg.GetLevel())
	}
	lg.Debug("window", "start", "0x401000")
	if !strings.Contains(buf.String(), "window") {
		t.Errorf("debug message missing: %q", buf.String())
	}

	lg = New(&buf, Options{}.FromEnv())
	if lg.Debugging() {
		t.Errorf("level = %v without Debug, want error", lg.GetLevel())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]log.Level{
		"debug":   log.DebugLevel,
		" DEBUG ": log.DebugLevel,
		"warn":    log.WarnLevel,
		"Warning": log.WarnLevel,
		"error":   log.ErrorLevel,
		"":        log.InfoLevel,
		"loud":    log.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.log")
	lg, err := Open(Options{File: path, Prefix: "test "})
	if err != nil {
		t.Fatal(err)
	}
	lg.Info("scanned", "functions", 3)
	if err := lg.Close(); err != nil {
		t.Fatal(err)
	}

	bts, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(bts), "test") || !strings.Contains(string(bts), "functions=3") {
		t.Errorf("log file = %q", bts)
	}
}

func TestOpenFileFallsBack(t *testing.T) {
	lg, err := Open(Options{File: filepath.Join(t.TempDir(), "missing", "scan.log")})
	if err == nil {
		t.Fatal("expected an error for an unwritable log file")
	}
	if lg == nil {
		t.Fatal("no fallback logger")
	}
	if err := lg.Close(); err != nil {
		t.Errorf("Close() on stderr logger = %v", err)
	}
}
