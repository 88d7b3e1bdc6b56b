package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"

	"github.com/searchktools/scratch-server/core"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "SCRATCH_"

// Config holds all application configuration.
type Config struct {
	Addr      string
	Directory string
	Workers   int
	LogLevel  string
	Telemetry bool
}

// New loads configuration from the process arguments and environment,
// exiting on invalid input.
func New() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// Load parses args, then fills every flag that was not given explicitly from
// its SCRATCH_* environment variable. A single positional argument is taken
// as the directory when --directory is absent.
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("scratch-server", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", core.DefaultAddr, "TCP address to listen on")
	fs.StringVar(&cfg.Directory, "directory", ".", "Directory served under /files/")
	fs.IntVar(&cfg.Workers, "workers", runtime.NumCPU(), "Number of worker goroutines")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug/info/warn/error)")
	fs.BoolVar(&cfg.Telemetry, "telemetry", false, "Export traces, metrics and logs over OTLP/gRPC")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if fs.NArg() > 1 {
		return nil, fmt.Errorf("config: unexpected arguments %q", fs.Args()[1:])
	}
	if fs.NArg() == 1 && !set["directory"] {
		cfg.Directory = fs.Arg(0)
		set["directory"] = true
	}

	if err := cfg.applyEnv(set); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(set map[string]bool) error {
	lookup := func(name string) (string, bool) {
		if set[name] {
			return "", false
		}
		return os.LookupEnv(EnvPrefix + envName(name))
	}

	if v, ok := lookup("addr"); ok {
		c.Addr = v
	}
	if v, ok := lookup("directory"); ok {
		c.Directory = v
	}
	if v, ok := lookup("log-level"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup("workers"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sWORKERS: %w", EnvPrefix, err)
		}
		c.Workers = n
	}
	if v, ok := lookup("telemetry"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %sTELEMETRY: %w", EnvPrefix, err)
		}
		c.Telemetry = b
	}

	return nil
}

// envName maps a flag name to its environment suffix, e.g. log-level -> LOG_LEVEL
func envName(flagName string) string {
	b := []byte(flagName)
	for i, c := range b {
		switch {
		case c == '-':
			b[i] = '_'
		case 'a' <= c && c <= 'z':
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	}
	if c.Directory == "" {
		return errors.New("config: directory must not be empty")
	}
	if c.Addr == "" {
		return errors.New("config: addr must not be empty")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return level, nil
}
