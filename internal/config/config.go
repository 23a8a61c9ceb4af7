// Package config loads the idioms settings from flags, IDIOMS_* environment
// variables and an optional YAML file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"idioms/internal/analysis"
	"idioms/internal/magic"
)

// EnvPrefix is prepended to every environment variable, e.g. IDIOMS_WINDOW.
const EnvPrefix = "idioms"

// Config represents configuration for the idioms tool
type Config struct {
	Debug      bool   `mapstructure:"debug" json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`
	DataDir    string `mapstructure:"data-dir" json:"dataDir" jsonschema:"title=Data Directory,description=Directory caching the magic number tables"`
	Patterns   string `mapstructure:"patterns" json:"patterns,omitempty" jsonschema:"title=Patterns,description=Directory of pattern files replacing the built-in corpus"`
	MaxDivisor int    `mapstructure:"max-divisor" json:"maxDivisor" jsonschema:"title=Max Divisor,description=Exclusive upper bound of the divisor range,minimum=3,default=1024"`
	Window     int    `mapstructure:"window" json:"window" jsonschema:"title=Window,description=Instructions anonymized per candidate start,minimum=1,maximum=256,default=25"`
	Workers    int    `mapstructure:"workers" json:"workers" jsonschema:"title=Workers,description=Functions scanned concurrently (0 uses GOMAXPROCS),minimum=0"`
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// DefaultDataDir is the user cache directory for idioms, or a directory
// below the working directory when no cache directory is known.
func DefaultDataDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".idioms"
	}
	return filepath.Join(dir, "idioms")
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("debug", false)
	v.SetDefault("data-dir", DefaultDataDir())
	v.SetDefault("patterns", "")
	v.SetDefault("max-divisor", magic.DefaultMaxDivisor)
	v.SetDefault("window", analysis.DefaultWindow)
	v.SetDefault("workers", 0)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file, binds flags and returns the
// validated configuration. Flags win over the environment, which wins over
// the file.
func Load(v *viper.Viper, file string, flags *pflag.FlagSet) (*Config, error) {
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the numeric ranges.
func (c *Config) Validate() error {
	if c.MaxDivisor < 3 || c.MaxDivisor > magic.MaxDivisorLimit {
		return fmt.Errorf("%w: max-divisor %d not in [3, %d]", ErrInvalid, c.MaxDivisor, magic.MaxDivisorLimit)
	}
	if c.Window < 1 || c.Window > analysis.MaxWindow {
		return fmt.Errorf("%w: window %d not in [1, %d]", ErrInvalid, c.Window, analysis.MaxWindow)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d is negative", ErrInvalid, c.Workers)
	}
	return nil
}

// WorkerCount resolves Workers, using GOMAXPROCS for 0.
func (c *Config) WorkerCount() int {
	if c.Workers == 0 {
		return analysis.DefaultWorkers()
	}
	return c.Workers
}

// Schema returns the JSON schema of the configuration file.
func Schema() ([]byte, error) {
	reflector := new(jsonschema.Reflector)
	bts, err := json.MarshalIndent(reflector.Reflect(&Config{}), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return bts, nil
}
