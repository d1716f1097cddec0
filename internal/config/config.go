package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultJobs      = 0
	DefaultProfile   = false
	DefaultNoCache   = false
	DefaultVerbose   = false
	DefaultToolchain = "auto"

	// EnvPrefix namespaces environment overrides, e.g. CPPLAB_JOBS
	EnvPrefix = "CPPLAB"
)

// Holds the configuration options for cpplab
type Config struct {
	// Directory holding the bundled toolchains (mingw64/, mingw32/)
	CompilersDir string

	// Maximum parallel compiles; 0 selects the default
	Jobs int

	// Append a JSON line per build to ProfileLog
	Profile bool
	// Profiling log path; empty selects the user cache directory
	ProfileLog string

	// Build history database; empty selects the user cache directory
	HistoryDB string

	// Rebuild even when the cache says nothing changed
	NoCache bool

	// Enable verbose output
	Verbose bool

	// Toolchain preference: auto, 64bit, 32bit or a toolchain name
	Toolchain string
}

func Load() (*Config, error) {
	cfg := &Config{
		CompilersDir: viper.GetString("compilers_dir"),
		Jobs:         viper.GetInt("jobs"),
		Profile:      viper.GetBool("profile"),
		ProfileLog:   viper.GetString("profile_log"),
		HistoryDB:    viper.GetString("history_db"),
		NoCache:      viper.GetBool("no_cache"),
		Verbose:      viper.GetBool("verbose"),
		Toolchain:    viper.GetString("toolchain"),
	}

	// Apply defaults if not set
	if cfg.CompilersDir == "" {
		cfg.CompilersDir = DefaultCompilersDir()
	}

	if cfg.Toolchain == "" {
		cfg.Toolchain = DefaultToolchain
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Jobs < 0 {
		return fmt.Errorf("invalid job count: %d", c.Jobs)
	}

	abs, err := filepath.Abs(c.CompilersDir)
	if err != nil {
		return fmt.Errorf("invalid compilers directory: %v", err)
	}

	c.CompilersDir = abs

	// Resolve optional file paths
	for _, p := range []*string{&c.ProfileLog, &c.HistoryDB} {
		if *p == "" {
			continue
		}

		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("invalid path %q: %v", *p, err)
		}

		*p = abs
	}

	return nil
}

// DefaultCompilersDir is the compilers directory shipped next to the executable
func DefaultCompilersDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "compilers"
	}

	return filepath.Join(filepath.Dir(exe), "compilers")
}
